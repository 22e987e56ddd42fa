// broadcast/broadcast.go
package broadcast

import (
	"errors"

	"github.com/wfunc/relayserver/network"
	"github.com/wfunc/relayserver/room"
	"github.com/wfunc/relayserver/session"
)

var ErrRoomNotFound = errors.New("room not found")

// Broadcaster fans an event out to a room's participants.
type Broadcaster interface {
	BroadcastToRoom(code string, msg *network.Message) error
	// BroadcastToOthers reaches every participant except the named one,
	// e.g. the close notification to whoever remains after a leave.
	BroadcastToOthers(code, exceptPlayerID string, msg *network.Message) error
}

// RoomBroadcaster resolves recipients through the room store, falling
// back to the session registry for rooms already dropped from the store.
type RoomBroadcaster struct {
	roomManager    *room.Manager
	sessionManager *session.Manager
}

func NewRoomBroadcaster(roomManager *room.Manager, sessionManager *session.Manager) *RoomBroadcaster {
	return &RoomBroadcaster{
		roomManager:    roomManager,
		sessionManager: sessionManager,
	}
}

func (b *RoomBroadcaster) BroadcastToRoom(code string, msg *network.Message) error {
	return b.send(code, "", msg)
}

func (b *RoomBroadcaster) BroadcastToOthers(code, exceptPlayerID string, msg *network.Message) error {
	return b.send(code, exceptPlayerID, msg)
}

func (b *RoomBroadcaster) send(code, exceptPlayerID string, msg *network.Message) error {
	participants, err := b.roomManager.ListParticipants(code)
	if err == nil {
		for _, p := range participants {
			if exceptPlayerID != "" && p.ID == exceptPlayerID {
				continue
			}
			if p.Session == nil {
				continue
			}
			// Best effort; a dead connection is cleaned up by its own
			// read loop.
			_ = p.Session.Send(msg)
		}
		return nil
	}

	sessions := b.sessionManager.ByRoom(code)
	if len(sessions) == 0 {
		return ErrRoomNotFound
	}
	for _, s := range sessions {
		if exceptPlayerID != "" && s.PlayerID() == exceptPlayerID {
			continue
		}
		_ = s.Send(msg)
	}
	return nil
}
