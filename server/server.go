package server

import (
	"net/http"
	"net/rpc"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wfunc/relayserver/broadcast"
	"github.com/wfunc/relayserver/config"
	"github.com/wfunc/relayserver/logger"
	"github.com/wfunc/relayserver/models"
	"github.com/wfunc/relayserver/monitor"
	"github.com/wfunc/relayserver/network"
	"github.com/wfunc/relayserver/persistence"
	"github.com/wfunc/relayserver/room"
	relayrpc "github.com/wfunc/relayserver/rpc"
	"github.com/wfunc/relayserver/services"
	"github.com/wfunc/relayserver/session"
	"github.com/wfunc/relayserver/timer"
)

// RelayServer pairs two participants per room and forwards their turn
// payloads to each other. All protocol errors are absorbed locally; a
// malformed or out-of-order event never terminates a connection.
type RelayServer struct {
	httpAddr    string
	rpcAddr     string
	heartbeat   time.Duration
	idleTimeout time.Duration
	sweepEvery  time.Duration

	upgrader       websocket.Upgrader
	roomManager    *room.Manager
	sessionManager *session.Manager
	broadcaster    broadcast.Broadcaster
	matchService   *services.MatchService
	monitor        *monitor.Monitor
	rpcServer      *relayrpc.Server
	timers         *timer.Manager
	shutdownChan   chan struct{}
}

// NewRelayServer wires the room store, session registry and match
// archive. Listeners are not opened until Start; mon may be nil.
func NewRelayServer(cfg *config.Config, store persistence.Store, mon *monitor.Monitor) *RelayServer {
	s := &RelayServer{
		httpAddr:       cfg.Server.HTTPAddress,
		rpcAddr:        cfg.Server.RPCAddress,
		heartbeat:      cfg.Server.Heartbeat,
		idleTimeout:    cfg.Room.IdleTimeout,
		sweepEvery:     cfg.Room.SweepInterval,
		roomManager:    room.NewManager(),
		sessionManager: session.NewManager(),
		matchService:   services.NewMatchService(store),
		monitor:        mon,
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.broadcaster = broadcast.NewRoomBroadcaster(s.roomManager, s.sessionManager)
	return s
}

// Start opens the RPC listener, the optional idle sweep and the
// websocket endpoint. Blocks serving HTTP.
func (s *RelayServer) Start() error {
	if s.rpcAddr != "" {
		rpcServer, err := relayrpc.NewServer(s.rpcAddr)
		if err != nil {
			return err
		}
		s.rpcServer = rpcServer
		rpc.Register(relayrpc.NewRelayService(s.roomManager, s.sessionManager, s.matchService))
		go s.rpcServer.Start()
	}

	if s.idleTimeout > 0 {
		s.timers = timer.NewManager()
		s.timers.Schedule(s.sweepEvery, s.sweepEvery, s.sweepIdleRooms)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	logger.Log.Infof("Relay server listening on %s", s.httpAddr)
	return http.ListenAndServe(s.httpAddr, mux)
}

func (s *RelayServer) Shutdown() {
	close(s.shutdownChan)
	if s.rpcServer != nil {
		s.rpcServer.Stop()
	}
	if s.timers != nil {
		s.timers.Stop()
	}
}

func (s *RelayServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(network.NewWSConnection(conn))
}

func (s *RelayServer) handleConnection(conn network.Connection) {
	if s.heartbeat > 0 {
		conn.SetHeartbeat(s.heartbeat)
	}

	sess := session.NewSession(uuid.New().String(), conn)
	s.sessionManager.Add(sess)
	if s.monitor != nil {
		s.monitor.IncOnlineSessions()
	}

	logger.Log.Infof("New connection from %s, session ID: %s", conn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", conn.RemoteAddr(), sess.GetID())
		s.cleanupSession(sess)
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.dispatch(sess, msg)
		}
	}
}

// cleanupSession runs on transport closure: the departing side's room
// is closed as if it had sent leave, then the session leaves the
// registry.
func (s *RelayServer) cleanupSession(sess *session.Session) {
	if code := sess.RoomCode(); code != "" {
		s.closeRoom(code, sess.PlayerID(), models.ReasonDisconnect)
	}
	s.sessionManager.Remove(sess.GetID())
	if s.monitor != nil {
		s.monitor.DecOnlineSessions()
	}
	sess.Close()
}

// dispatch routes one inbound event by its type discriminator.
func (s *RelayServer) dispatch(sess *session.Session, msg *network.Message) {
	if s.monitor != nil {
		s.monitor.IncMessagesReceived()
		start := time.Now()
		defer func() {
			s.monitor.ObserveMessageLatency(time.Since(start))
		}()
	}

	switch msg.Type {
	case network.MsgTypeCreate:
		s.handleCreate(sess, msg.Params)
	case network.MsgTypeJoin:
		s.handleJoin(sess, msg.Params)
	case network.MsgTypeChoose:
		s.handleChoose(sess, msg.Params)
	case network.MsgTypeGame:
		s.handleGame(sess, msg.Params)
	case network.MsgTypeLeave:
		s.handleLeave(sess, msg.Params)
	default:
		logger.Log.Warnf("Unknown event type: %q", msg.Type)
	}
}

func (s *RelayServer) handleCreate(sess *session.Session, params network.Params) {
	if params.Player == nil || params.Player.ID == "" {
		logger.Log.Warn("create event without participant id")
		return
	}
	if sess.RoomCode() != "" {
		logger.Log.Warnf("Session %s tried to create a room while already in room %s",
			sess.GetID(), sess.RoomCode())
		return
	}

	p := &room.Participant{
		ID:      params.Player.ID,
		Name:    params.Player.Name,
		Session: sess,
	}
	r := s.roomManager.CreateRoom(p)
	sess.Bind(p.ID, r.Code())
	if s.monitor != nil {
		s.monitor.SetActiveRooms(s.roomManager.Count())
	}

	logger.Log.Infof("Room created: %s", r.Code())

	sess.Send(&network.Message{
		Type: network.MsgTypeInfo,
		Params: network.Params{
			Room:  r.Code(),
			Count: len(r.Participants()),
		},
	})
}

func (s *RelayServer) handleJoin(sess *session.Session, params network.Params) {
	if params.Player == nil || params.Player.ID == "" || params.Room == "" {
		logger.Log.Warn("join event without room code or participant id")
		return
	}
	if sess.RoomCode() != "" {
		logger.Log.Warnf("Session %s tried to join room %s while already in room %s",
			sess.GetID(), params.Room, sess.RoomCode())
		return
	}

	p := &room.Participant{
		ID:      params.Player.ID,
		Name:    params.Player.Name,
		Session: sess,
	}

	r, err := s.roomManager.JoinRoom(params.Room, p)
	switch err {
	case nil:
	case room.ErrRoomFull:
		logger.Log.Warnf("Room %s is full", params.Room)
		sess.Send(&network.Message{Type: network.MsgTypeInfo})
		return
	default:
		// Not found, or the room closed while we were joining.
		logger.Log.Warnf("Room %s does not exist", params.Room)
		return
	}

	sess.Bind(p.ID, r.Code())
	logger.Log.Infof("Session %s joined room %s", sess.GetID(), r.Code())

	s.notifyPaired(r)
}

// notifyPaired runs role negotiation for a freshly paired room: a fair
// coin picks the chooser, who receives readyToChoose; the waiter
// receives ready. Each side's payload describes the opponent.
func (s *RelayServer) notifyPaired(r *room.Room) {
	participants := r.Participants()
	if len(participants) < room.MaxParticipants {
		return
	}

	chooser, waiter := participants[0], participants[1]
	if s.roomManager.Coin() {
		chooser, waiter = waiter, chooser
	}

	chooser.Session.Send(&network.Message{
		Type:   network.MsgTypeReadyToChoose,
		Params: network.Params{Player: waiter.Public()},
	})
	waiter.Session.Send(&network.Message{
		Type:   network.MsgTypeReady,
		Params: network.Params{Player: chooser.Public()},
	})
}

func (s *RelayServer) handleChoose(sess *session.Session, params network.Params) {
	if params.Player == nil || params.Player.ID == "" || params.Room == "" {
		logger.Log.Warn("choose event without room code or participant id")
		return
	}

	r, exists := s.roomManager.GetRoom(params.Room)
	if !exists {
		// Room already closed; nothing to apply the choice to.
		return
	}

	err := r.AssignPieces(params.Player.ID, params.Player.Piece)
	switch err {
	case nil:
	case room.ErrPiecesAssigned:
		// Duplicate or late choose; keeping the first assignment avoids
		// role flapping mid-game.
		logger.Log.Debugf("Ignoring repeated choose for room %s", r.Code())
		return
	case room.ErrParticipantNotFound:
		logger.Log.Warnf("Participant %s not found in room %s", params.Player.ID, r.Code())
		return
	default:
		logger.Log.Warnf("Cannot apply choose for room %s in phase %s", r.Code(), r.Phase())
		return
	}

	// Both sides learn who they are playing against and with which piece.
	for _, p := range r.Participants() {
		opponent, ok := r.Opponent(p.ID)
		if !ok {
			continue
		}
		p.Session.Send(&network.Message{
			Type:   network.MsgTypeStart,
			Params: network.Params{Player: opponent.Public()},
		})
	}
}

// handleGame relays one turn payload, untouched, to the opponent only.
func (s *RelayServer) handleGame(sess *session.Session, params network.Params) {
	if params.Player == nil || params.Player.ID == "" || params.Room == "" {
		logger.Log.Warn("game event without room code or participant id")
		return
	}

	r, exists := s.roomManager.GetRoom(params.Room)
	if !exists {
		// Room closed mid-game; no one left to notify.
		return
	}

	opponent, ok := r.Opponent(params.Player.ID)
	if !ok {
		// Opponent already left; drop without blaming the sender.
		return
	}

	r.CountTurn()
	if s.monitor != nil {
		s.monitor.IncTurnsRelayed()
	}

	opponent.Session.Send(&network.Message{
		Type:   network.MsgTypeGame,
		Params: network.Params{TicTacToe: params.TicTacToe},
	})
}

func (s *RelayServer) handleLeave(sess *session.Session, params network.Params) {
	code := params.Room
	if code == "" {
		code = sess.RoomCode()
	}
	if code == "" {
		return
	}
	s.closeRoom(code, sess.PlayerID(), models.ReasonLeave)
}

// closeRoom notifies every participant other than the departing one,
// removes the room from the store and unbinds the room's sessions.
// A missing room is a no-op. Safe with fewer than two participants:
// a lone creator leaving produces zero notifications.
func (s *RelayServer) closeRoom(code, departingPlayerID, reason string) {
	if _, exists := s.roomManager.GetRoom(code); !exists {
		return
	}

	s.broadcaster.BroadcastToOthers(code, departingPlayerID, &network.Message{
		Type: network.MsgTypeClose,
	})

	removed, ok := s.roomManager.RemoveRoom(code)
	if !ok {
		return
	}
	if s.monitor != nil {
		s.monitor.SetActiveRooms(s.roomManager.Count())
	}

	for _, roomSess := range s.sessionManager.ByRoom(code) {
		roomSess.Unbind()
	}

	logger.Log.Infof("Room %s closed (%s)", code, reason)

	if err := s.matchService.RecordMatch(removed, reason); err != nil {
		logger.Log.Errorf("Failed to archive match for room %s: %v", code, err)
	}
}

// sweepIdleRooms closes rooms with no activity for the configured idle
// timeout. Both sides receive close, same as an explicit leave.
func (s *RelayServer) sweepIdleRooms() {
	cutoff := time.Now().Add(-s.idleTimeout)
	for _, code := range s.roomManager.IdleRoomCodes(cutoff) {
		logger.Log.Infof("Expiring idle room %s", code)
		s.closeRoom(code, "", models.ReasonExpired)
	}
}
