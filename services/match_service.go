// services/match_service.go
package services

import (
	"time"

	"github.com/wfunc/relayserver/models"
	"github.com/wfunc/relayserver/persistence"
	"github.com/wfunc/relayserver/room"
)

// MatchService archives finished rooms. With a nil store every call is
// a no-op, which is how the relay runs without a database.
type MatchService struct {
	store persistence.Store
}

func NewMatchService(store persistence.Store) *MatchService {
	return &MatchService{store: store}
}

func (s *MatchService) Enabled() bool {
	return s.store != nil
}

// RecordMatch writes an archive entry for a closed room. Rooms that
// never reached the active phase are not matches and are skipped.
func (s *MatchService) RecordMatch(r *room.Room, reason string) error {
	if s.store == nil {
		return nil
	}

	startedAt := r.ActiveAt()
	if startedAt.IsZero() {
		return nil
	}

	participants := r.Participants()
	players := make([]models.MatchPlayer, 0, len(participants))
	for _, p := range participants {
		players = append(players, models.MatchPlayer{
			ID:    p.ID,
			Name:  p.Name,
			Piece: p.Piece,
		})
	}

	rec := &models.MatchRecord{
		RoomCode:  r.Code(),
		Players:   players,
		Turns:     r.Turns(),
		Reason:    reason,
		StartedAt: startedAt,
		EndedAt:   time.Now(),
	}
	return s.store.SaveMatchRecord(rec)
}

// PlayerMatches returns the most recent archived matches for a player.
func (s *MatchService) PlayerMatches(playerID string, limit int) ([]models.MatchRecord, error) {
	if s.store == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	return s.store.MatchesForPlayer(playerID, limit)
}

// MatchCount reports how many matches have been archived.
func (s *MatchService) MatchCount() (int64, error) {
	if s.store == nil {
		return 0, nil
	}
	return s.store.MatchCount()
}
