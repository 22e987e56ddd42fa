package rpc

import (
	"net"
	"net/rpc"

	"github.com/wfunc/relayserver/logger"
	"github.com/wfunc/relayserver/models"
	"github.com/wfunc/relayserver/room"
	"github.com/wfunc/relayserver/services"
	"github.com/wfunc/relayserver/session"
)

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
}

// NewServer creates a new RPC server. Services are registered by the
// caller before Start.
func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  addr,
	}, nil
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if _, ok := err.(*net.OpError); ok {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// RelayService exposes operational stats and the match archive over
// net/rpc. Methods follow the net/rpc signature rules: exported method,
// exported args, pointer reply, error return.
type RelayService struct {
	roomManager    *room.Manager
	sessionManager *session.Manager
	matchService   *services.MatchService
}

func NewRelayService(rm *room.Manager, sm *session.Manager, ms *services.MatchService) *RelayService {
	return &RelayService{
		roomManager:    rm,
		sessionManager: sm,
		matchService:   ms,
	}
}

type StatsArgs struct{}

type StatsReply struct {
	ActiveRooms     int
	OnlineSessions  int
	ArchivedMatches int64
}

func (rs *RelayService) GetStats(args *StatsArgs, reply *StatsReply) error {
	reply.ActiveRooms = rs.roomManager.Count()
	reply.OnlineSessions = rs.sessionManager.Count()

	count, err := rs.matchService.MatchCount()
	if err != nil {
		return err
	}
	reply.ArchivedMatches = count
	return nil
}

type PlayerMatchesArgs struct {
	PlayerID string
	Limit    int
}

type PlayerMatchesReply struct {
	Matches []models.MatchRecord
}

func (rs *RelayService) GetPlayerMatches(args *PlayerMatchesArgs, reply *PlayerMatchesReply) error {
	matches, err := rs.matchService.PlayerMatches(args.PlayerID, args.Limit)
	if err != nil {
		return err
	}
	reply.Matches = matches
	return nil
}
