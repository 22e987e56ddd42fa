// models/models.go
package models

import (
	"time"
)

// Close reasons recorded with a match.
const (
	ReasonLeave      = "leave"
	ReasonDisconnect = "disconnect"
	ReasonExpired    = "expired"
)

// MatchRecord is the write-only archive entry for a finished room.
// Live room state is never persisted or restored from these.
type MatchRecord struct {
	RoomCode  string        `json:"room_code"`
	Players   []MatchPlayer `json:"players"`
	Turns     int           `json:"turns"`
	Reason    string        `json:"reason"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
}

// MatchPlayer mirrors the wire-visible participant projection.
type MatchPlayer struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Piece string `json:"piece,omitempty"`
}
