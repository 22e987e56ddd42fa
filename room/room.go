// room/room.go
package room

import (
	"errors"
	"sync"
	"time"

	"github.com/wfunc/relayserver/network"
	"github.com/wfunc/relayserver/session"
)

const MaxParticipants = 2

var (
	ErrRoomFull            = errors.New("room is full")
	ErrParticipantNotFound = errors.New("participant not found in room")
	// ErrPiecesAssigned means a choose arrived after the room already went
	// active with both pieces set; reprocessing would flap the roles.
	ErrPiecesAssigned = errors.New("pieces already assigned")
)

// Participant is the runtime record for one side of a room. Only its
// Public projection ever crosses the wire; the session handle stays
// server-side.
type Participant struct {
	ID      string
	Name    string
	Piece   string
	Session *session.Session
}

// Public returns the wire-visible projection of the participant.
func (p *Participant) Public() *network.Player {
	return &network.Player{
		ID:    p.ID,
		Name:  p.Name,
		Piece: p.Piece,
	}
}

// Room pairs up to two participants for one game. The Manager is the
// sole owner; everything else refers to a room by code and re-resolves
// through the store. All lifecycle operations on one room serialize on
// its mutex, so different rooms proceed fully in parallel.
type Room struct {
	code      string
	CreatedAt time.Time

	mutex        sync.Mutex
	phase        Phase
	participants []*Participant
	lastActive   time.Time
	activeAt     time.Time
	turns        int
}

func newRoom(code string, creator *Participant) *Room {
	now := time.Now()
	return &Room{
		code:         code,
		CreatedAt:    now,
		phase:        PhaseOpen,
		participants: []*Participant{creator},
		lastActive:   now,
	}
}

func (r *Room) Code() string {
	return r.code
}

func (r *Room) Phase() Phase {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.phase
}

func (r *Room) setPhaseLocked(to Phase) error {
	if !canTransition(r.phase, to) {
		return ErrPhaseTransition
	}
	r.phase = to
	return nil
}

// AddParticipant admits the second participant and moves the room into
// role negotiation. The capacity invariant holds under concurrent joins.
func (r *Room) AddParticipant(p *Participant) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if len(r.participants) >= MaxParticipants {
		return ErrRoomFull
	}
	if err := r.setPhaseLocked(PhaseRoleNegotiation); err != nil {
		return err
	}
	r.participants = append(r.participants, p)
	r.lastActive = time.Now()
	return nil
}

// Participants returns a copy of the ordered participant list.
func (r *Room) Participants() []*Participant {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	out := make([]*Participant, len(r.participants))
	copy(out, r.participants)
	return out
}

func (r *Room) ParticipantByID(id string) (*Participant, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, p := range r.participants {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// Opponent resolves the other side of a two-participant room.
func (r *Room) Opponent(id string) (*Participant, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, p := range r.participants {
		if p.ID != id {
			return p, true
		}
	}
	return nil, false
}

// AssignPieces applies the chooser's piece and gives the opponent the
// complementary one, then moves the room into its active phase. One
// choice fully determines both sides.
func (r *Room) AssignPieces(chooserID, piece string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.phase == PhaseActive && r.piecesAssignedLocked() {
		return ErrPiecesAssigned
	}
	if !canTransition(r.phase, PhaseActive) {
		return ErrPhaseTransition
	}

	var chooser *Participant
	for _, p := range r.participants {
		if p.ID == chooserID {
			chooser = p
			break
		}
	}
	if chooser == nil {
		return ErrParticipantNotFound
	}

	chooser.Piece = piece
	for _, p := range r.participants {
		if p.ID != chooserID {
			p.Piece = network.OpposingPiece(piece)
		}
	}

	r.phase = PhaseActive
	now := time.Now()
	r.activeAt = now
	r.lastActive = now
	return nil
}

func (r *Room) piecesAssignedLocked() bool {
	if len(r.participants) < MaxParticipants {
		return false
	}
	for _, p := range r.participants {
		if p.Piece == "" {
			return false
		}
	}
	return true
}

// CountTurn bumps the relayed-turn counter and returns the new total.
func (r *Room) CountTurn() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.turns++
	r.lastActive = time.Now()
	return r.turns
}

func (r *Room) Turns() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.turns
}

func (r *Room) Touch() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.lastActive = time.Now()
}

func (r *Room) LastActive() time.Time {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.lastActive
}

// ActiveAt reports when both pieces were assigned; zero if the room
// never reached its active phase.
func (r *Room) ActiveAt() time.Time {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.activeAt
}

// Close marks the room closed. Called by the store while removing the
// room from its index; the code may be reissued afterwards.
func (r *Room) Close() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.phase = PhaseClosed
}
