package network

import "encoding/json"

// Inbound event types.
const (
	MsgTypeCreate = "create"
	MsgTypeJoin   = "join"
	MsgTypeChoose = "choose"
	MsgTypeGame   = "game"
	MsgTypeLeave  = "leave"
)

// Outbound event types.
const (
	MsgTypeInfo          = "info"
	MsgTypeReady         = "ready"
	MsgTypeReadyToChoose = "readyToChoose"
	MsgTypeStart         = "start"
	MsgTypeClose         = "close"
)

// The two mutually exclusive pieces a participant can play.
const (
	PieceX = "X"
	PieceO = "O"
)

// Message is the wire envelope for every event in both directions.
type Message struct {
	Type   string `json:"type"`
	Params Params `json:"params"`
}

// Params carries the event payload. Fields not relevant to an event are
// left zero and omitted from the serialized form.
type Params struct {
	Room   string  `json:"room,omitempty"`
	Player *Player `json:"player,omitempty"`
	// Count mirrors the "no-clients" field of info replies.
	Count int `json:"no-clients,omitempty"`
	// TicTacToe is the opaque per-turn payload. The relay never
	// inspects it, so it stays raw JSON end to end.
	TicTacToe json.RawMessage `json:"tictactoe,omitempty"`
}

// Player is the wire-visible projection of a participant. The runtime
// record that holds the connection handle lives in the room package and
// is never serialized.
type Player struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Piece string `json:"piece,omitempty"`
}

// OpposingPiece returns the complement within the two-piece set. Unknown
// values default to O so a single choice always determines both sides.
func OpposingPiece(piece string) string {
	if piece == PieceO {
		return PieceX
	}
	return PieceO
}
