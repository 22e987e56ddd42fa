// room/manager.go
package room

import (
	"errors"
	"sync"
	"time"
)

var ErrRoomNotFound = errors.New("room not found")

// Manager is the room store: the single source of truth for which
// participants belong to which room.
type Manager struct {
	rooms  map[string]*Room
	mutex  sync.RWMutex
	keygen *KeyGenerator
}

func NewManager() *Manager {
	return &Manager{
		rooms:  make(map[string]*Room),
		keygen: NewKeyGenerator(),
	}
}

// CreateRoom opens a room containing exactly the creator and indexes it
// under a fresh code. A generator collision is resolved by drawing
// again; callers never observe one.
func (m *Manager) CreateRoom(creator *Participant) *Room {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var code string
	for {
		code = m.keygen.Generate()
		if _, taken := m.rooms[code]; !taken {
			break
		}
	}

	r := newRoom(code, creator)
	m.rooms[code] = r
	return r
}

func (m *Manager) GetRoom(code string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	r, exists := m.rooms[code]
	return r, exists
}

// JoinRoom admits a second participant and advances the room to role
// negotiation. Returns ErrRoomNotFound or ErrRoomFull accordingly.
func (m *Manager) JoinRoom(code string, p *Participant) (*Room, error) {
	m.mutex.RLock()
	r, exists := m.rooms[code]
	m.mutex.RUnlock()

	if !exists {
		return nil, ErrRoomNotFound
	}
	if err := r.AddParticipant(p); err != nil {
		return nil, err
	}
	return r, nil
}

// RemoveRoom closes the room and deletes it from the index. The closed
// room is returned so the caller can finish notifications or archive a
// match record; subsequent GetRoom calls miss.
func (m *Manager) RemoveRoom(code string) (*Room, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	r, exists := m.rooms[code]
	if !exists {
		return nil, false
	}
	r.Close()
	delete(m.rooms, code)
	return r, true
}

// ListParticipants resolves the ordered participant list for a code.
func (m *Manager) ListParticipants(code string) ([]*Participant, error) {
	r, exists := m.GetRoom(code)
	if !exists {
		return nil, ErrRoomNotFound
	}
	return r.Participants(), nil
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

// Coin exposes the shared random source for the chooser draw.
func (m *Manager) Coin() bool {
	return m.keygen.Coin()
}

// IdleRoomCodes lists rooms with no activity since the cutoff. Used by
// the optional idle sweep; the caller runs the normal close path per code.
func (m *Manager) IdleRoomCodes(cutoff time.Time) []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var codes []string
	for code, r := range m.rooms {
		if r.LastActive().Before(cutoff) {
			codes = append(codes, code)
		}
	}
	return codes
}
