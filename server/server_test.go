package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/wfunc/relayserver/config"
	"github.com/wfunc/relayserver/logger"
	"github.com/wfunc/relayserver/network"
	"github.com/wfunc/relayserver/room"
	"github.com/wfunc/relayserver/session"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

// MockConnection is a test double for the network.Connection interface
// that records every outbound message.
type MockConnection struct {
	mutex  sync.Mutex
	sent   []*network.Message
	closed bool
}

func (m *MockConnection) Send(msg *network.Message) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}
func (m *MockConnection) ReadMessage() (*network.Message, error) { return nil, io.EOF }
func (m *MockConnection) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.closed = true
	return nil
}
func (m *MockConnection) RemoteAddr() net.Addr                { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration) {}

func (m *MockConnection) messages() []*network.Message {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	out := make([]*network.Message, len(m.sent))
	copy(out, m.sent)
	return out
}

func (m *MockConnection) lastOfType(msgType string) *network.Message {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].Type == msgType {
			return m.sent[i]
		}
	}
	return nil
}

func newTestServer() *RelayServer {
	return NewRelayServer(&config.Config{}, nil, nil)
}

// connect registers a session the way handleConnection would, without a
// real websocket behind it.
func connect(s *RelayServer, sessionID string) (*session.Session, *MockConnection) {
	conn := &MockConnection{}
	sess := session.NewSession(sessionID, conn)
	s.sessionManager.Add(sess)
	return sess, conn
}

// pairRoom drives create+join and returns the room code along with both
// sides' sessions and connections.
func pairRoom(t *testing.T, s *RelayServer) (string, *session.Session, *MockConnection, *session.Session, *MockConnection) {
	t.Helper()

	sess1, conn1 := connect(s, "sess-1")
	sess2, conn2 := connect(s, "sess-2")

	s.dispatch(sess1, &network.Message{
		Type:   network.MsgTypeCreate,
		Params: network.Params{Player: &network.Player{ID: "p1", Name: "alice"}},
	})

	info := conn1.lastOfType(network.MsgTypeInfo)
	if info == nil {
		t.Fatal("create should reply with info")
	}
	code := info.Params.Room

	s.dispatch(sess2, &network.Message{
		Type:   network.MsgTypeJoin,
		Params: network.Params{Room: code, Player: &network.Player{ID: "p2", Name: "bob"}},
	})

	return code, sess1, conn1, sess2, conn2
}

// chooserOf resolves which side received readyToChoose.
func chooserOf(t *testing.T, conn1, conn2 *MockConnection) (chooserID string, chooserConn, waiterConn *MockConnection) {
	t.Helper()

	if conn1.lastOfType(network.MsgTypeReadyToChoose) != nil {
		return "p1", conn1, conn2
	}
	if conn2.lastOfType(network.MsgTypeReadyToChoose) != nil {
		return "p2", conn2, conn1
	}
	t.Fatal("Neither side received readyToChoose")
	return "", nil, nil
}

func TestCreateRoom(t *testing.T) {
	s := newTestServer()
	sess, conn := connect(s, "sess-1")

	s.dispatch(sess, &network.Message{
		Type:   network.MsgTypeCreate,
		Params: network.Params{Player: &network.Player{ID: "p1"}},
	})

	info := conn.lastOfType(network.MsgTypeInfo)
	if info == nil {
		t.Fatal("Expected an info reply")
	}
	if len(info.Params.Room) != room.CodeLength {
		t.Errorf("Expected a %d-char room code, got %q", room.CodeLength, info.Params.Room)
	}
	if info.Params.Count != 1 {
		t.Errorf("Expected participant count 1, got %d", info.Params.Count)
	}

	if s.roomManager.Count() != 1 {
		t.Errorf("Expected 1 room in the store, got %d", s.roomManager.Count())
	}
	if sess.RoomCode() != info.Params.Room {
		t.Error("Session should be bound to the created room")
	}
}

func TestCreate_WithoutParticipant(t *testing.T) {
	s := newTestServer()
	sess, conn := connect(s, "sess-1")

	s.dispatch(sess, &network.Message{Type: network.MsgTypeCreate})

	if len(conn.messages()) != 0 {
		t.Error("A create without participant should be dropped silently")
	}
	if s.roomManager.Count() != 0 {
		t.Error("No room should be created")
	}
}

func TestJoin_RoleNegotiation(t *testing.T) {
	s := newTestServer()
	code, _, conn1, _, conn2 := pairRoom(t, s)

	r, exists := s.roomManager.GetRoom(code)
	if !exists {
		t.Fatal("Room should still be in the store")
	}
	if r.Phase() != room.PhaseRoleNegotiation {
		t.Errorf("Expected phase role_negotiation, got %s", r.Phase())
	}

	chooserID, chooserConn, waiterConn := chooserOf(t, conn1, conn2)

	readyToChoose := chooserConn.lastOfType(network.MsgTypeReadyToChoose)
	ready := waiterConn.lastOfType(network.MsgTypeReady)
	if ready == nil {
		t.Fatal("The waiter side should receive ready")
	}
	if waiterConn.lastOfType(network.MsgTypeReadyToChoose) != nil {
		t.Error("Only one side may receive readyToChoose")
	}

	// Each payload describes the opponent, never the recipient.
	if readyToChoose.Params.Player == nil || readyToChoose.Params.Player.ID == chooserID {
		t.Error("readyToChoose should carry the opponent's info")
	}
	if ready.Params.Player == nil || ready.Params.Player.ID != chooserID {
		t.Error("ready should carry the chooser's info")
	}
}

func TestJoin_RoomNotFound(t *testing.T) {
	s := newTestServer()
	sess, conn := connect(s, "sess-1")

	s.dispatch(sess, &network.Message{
		Type:   network.MsgTypeJoin,
		Params: network.Params{Room: "ZZZZZ", Player: &network.Player{ID: "p2"}},
	})

	if len(conn.messages()) != 0 {
		t.Error("Joining a missing room should send nothing")
	}
	if sess.RoomCode() != "" {
		t.Error("Session must not be bound after a failed join")
	}
}

func TestJoin_RoomFull(t *testing.T) {
	s := newTestServer()
	code, _, _, _, _ := pairRoom(t, s)

	sess3, conn3 := connect(s, "sess-3")
	s.dispatch(sess3, &network.Message{
		Type:   network.MsgTypeJoin,
		Params: network.Params{Room: code, Player: &network.Player{ID: "p3"}},
	})

	info := conn3.lastOfType(network.MsgTypeInfo)
	if info == nil {
		t.Fatal("A full room should reply with an empty info")
	}
	if info.Params.Room != "" || info.Params.Count != 0 {
		t.Errorf("Full-room info should carry empty params, got %+v", info.Params)
	}

	r, _ := s.roomManager.GetRoom(code)
	if len(r.Participants()) != 2 {
		t.Errorf("Capacity invariant violated: %d participants", len(r.Participants()))
	}
}

func TestChoose_StartsBothSides(t *testing.T) {
	s := newTestServer()
	code, sess1, conn1, sess2, conn2 := pairRoom(t, s)

	chooserID, chooserConn, waiterConn := chooserOf(t, conn1, conn2)
	chooserSess := sess1
	if chooserID == "p2" {
		chooserSess = sess2
	}

	s.dispatch(chooserSess, &network.Message{
		Type:   network.MsgTypeChoose,
		Params: network.Params{Room: code, Player: &network.Player{ID: chooserID, Piece: network.PieceX}},
	})

	r, _ := s.roomManager.GetRoom(code)
	if r.Phase() != room.PhaseActive {
		t.Errorf("Expected phase active, got %s", r.Phase())
	}

	chooserStart := chooserConn.lastOfType(network.MsgTypeStart)
	waiterStart := waiterConn.lastOfType(network.MsgTypeStart)
	if chooserStart == nil || waiterStart == nil {
		t.Fatal("Both sides should receive start")
	}

	// The chooser learns the opponent holds O, the waiter learns the
	// chooser holds X.
	if chooserStart.Params.Player.Piece != network.PieceO {
		t.Errorf("Chooser's start should name an O opponent, got %s", chooserStart.Params.Player.Piece)
	}
	if waiterStart.Params.Player.ID != chooserID || waiterStart.Params.Player.Piece != network.PieceX {
		t.Errorf("Waiter's start should name the X chooser, got %+v", waiterStart.Params.Player)
	}
}

func TestChoose_RoomMissing(t *testing.T) {
	s := newTestServer()
	sess, conn := connect(s, "sess-1")

	s.dispatch(sess, &network.Message{
		Type:   network.MsgTypeChoose,
		Params: network.Params{Room: "ZZZZZ", Player: &network.Player{ID: "p1", Piece: network.PieceX}},
	})

	if len(conn.messages()) != 0 {
		t.Error("Choose on a closed room should be a no-op")
	}
}

func TestGame_RelayToOpponentOnly(t *testing.T) {
	s := newTestServer()
	code, sess1, conn1, _, conn2 := pairRoom(t, s)

	payload := json.RawMessage(`{"position":4}`)
	before1 := len(conn1.messages())

	s.dispatch(sess1, &network.Message{
		Type:   network.MsgTypeGame,
		Params: network.Params{Room: code, Player: &network.Player{ID: "p1"}, TicTacToe: payload},
	})

	relayed := conn2.lastOfType(network.MsgTypeGame)
	if relayed == nil {
		t.Fatal("Opponent should receive the relayed turn")
	}
	if !bytes.Equal(relayed.Params.TicTacToe, payload) {
		t.Errorf("Payload must be forwarded verbatim, got %s", relayed.Params.TicTacToe)
	}

	if len(conn1.messages()) != before1 {
		t.Error("The acting participant must not receive its own turn")
	}
}

func TestGame_NoOpponent(t *testing.T) {
	s := newTestServer()
	sess, conn := connect(s, "sess-1")

	s.dispatch(sess, &network.Message{
		Type:   network.MsgTypeCreate,
		Params: network.Params{Player: &network.Player{ID: "p1"}},
	})
	code := conn.lastOfType(network.MsgTypeInfo).Params.Room
	before := len(conn.messages())

	s.dispatch(sess, &network.Message{
		Type:   network.MsgTypeGame,
		Params: network.Params{Room: code, Player: &network.Player{ID: "p1"}, TicTacToe: json.RawMessage(`{"position":0}`)},
	})

	if len(conn.messages()) != before {
		t.Error("A turn with no opponent present should be dropped")
	}
}

func TestLeave_NotifiesRemainingSide(t *testing.T) {
	s := newTestServer()
	code, sess1, conn1, sess2, conn2 := pairRoom(t, s)

	before1 := len(conn1.messages())

	s.dispatch(sess1, &network.Message{
		Type:   network.MsgTypeLeave,
		Params: network.Params{Room: code},
	})

	if conn2.lastOfType(network.MsgTypeClose) == nil {
		t.Error("The remaining side should receive close")
	}
	if len(conn1.messages()) != before1 {
		t.Error("The leaver should not receive close")
	}

	if _, exists := s.roomManager.GetRoom(code); exists {
		t.Error("The room should be removed from the store")
	}
	if sess1.RoomCode() != "" || sess2.RoomCode() != "" {
		t.Error("Both sessions should be unbound from the closed room")
	}
}

func TestLeave_LoneCreator(t *testing.T) {
	s := newTestServer()
	sess, conn := connect(s, "sess-1")

	s.dispatch(sess, &network.Message{
		Type:   network.MsgTypeCreate,
		Params: network.Params{Player: &network.Player{ID: "p1"}},
	})
	code := conn.lastOfType(network.MsgTypeInfo).Params.Room
	before := len(conn.messages())

	s.dispatch(sess, &network.Message{
		Type:   network.MsgTypeLeave,
		Params: network.Params{Room: code},
	})

	if len(conn.messages()) != before {
		t.Error("Closing a lone room should send zero notifications")
	}
	if _, exists := s.roomManager.GetRoom(code); exists {
		t.Error("The lone room should still be removed")
	}
}

func TestLeave_UnknownRoom(t *testing.T) {
	s := newTestServer()
	sess, conn := connect(s, "sess-1")

	s.dispatch(sess, &network.Message{
		Type:   network.MsgTypeLeave,
		Params: network.Params{Room: "ZZZZZ"},
	})

	if len(conn.messages()) != 0 {
		t.Error("Leave on a missing room should be a no-op")
	}
}

func TestUnknownEventType(t *testing.T) {
	s := newTestServer()
	sess, conn := connect(s, "sess-1")

	s.dispatch(sess, &network.Message{Type: "teleport"})

	if len(conn.messages()) != 0 {
		t.Error("An unknown event type should be absorbed")
	}
}

func TestDisconnectCleanup(t *testing.T) {
	s := newTestServer()
	code, sess1, conn1, _, conn2 := pairRoom(t, s)

	s.cleanupSession(sess1)

	if conn2.lastOfType(network.MsgTypeClose) == nil {
		t.Error("The remaining side should learn about the disconnect")
	}
	if _, exists := s.roomManager.GetRoom(code); exists {
		t.Error("The room should be removed after a disconnect")
	}
	if _, exists := s.sessionManager.Get(sess1.GetID()); exists {
		t.Error("The departing session should leave the registry")
	}
	if !conn1.closed {
		t.Error("The departing connection should be closed")
	}
}

// TestFullScenario walks the whole protocol end to end:
// create -> join -> choose -> game -> leave.
func TestFullScenario(t *testing.T) {
	s := newTestServer()
	code, sess1, conn1, sess2, conn2 := pairRoom(t, s)

	chooserID, chooserConn, waiterConn := chooserOf(t, conn1, conn2)
	chooserSess, waiterSess := sess1, sess2
	if chooserID == "p2" {
		chooserSess, waiterSess = sess2, sess1
	}

	s.dispatch(chooserSess, &network.Message{
		Type:   network.MsgTypeChoose,
		Params: network.Params{Room: code, Player: &network.Player{ID: chooserID, Piece: network.PieceX}},
	})
	if chooserConn.lastOfType(network.MsgTypeStart) == nil || waiterConn.lastOfType(network.MsgTypeStart) == nil {
		t.Fatal("Both sides should receive start")
	}

	payload := json.RawMessage(`{"position":4}`)
	s.dispatch(chooserSess, &network.Message{
		Type:   network.MsgTypeGame,
		Params: network.Params{Room: code, Player: &network.Player{ID: chooserID}, TicTacToe: payload},
	})

	relayed := waiterConn.lastOfType(network.MsgTypeGame)
	if relayed == nil || !bytes.Equal(relayed.Params.TicTacToe, payload) {
		t.Fatal("The waiter should receive the unmodified turn payload")
	}

	s.dispatch(waiterSess, &network.Message{
		Type:   network.MsgTypeLeave,
		Params: network.Params{Room: code},
	})
	if chooserConn.lastOfType(network.MsgTypeClose) == nil {
		t.Error("The chooser should receive close after the waiter leaves")
	}
	if _, exists := s.roomManager.GetRoom(code); exists {
		t.Error("getRoom should miss after leave")
	}
}
