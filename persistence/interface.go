// persistence/interface.go
package persistence

import (
	"errors"

	"github.com/wfunc/relayserver/models"
)

// Store 对局归档接口
type Store interface {
	SaveMatchRecord(rec *models.MatchRecord) error
	MatchesForPlayer(playerID string, limit int) ([]models.MatchRecord, error)
	MatchCount() (int64, error)
	Close() error
}

var ErrRecordNotFound = errors.New("record not found")
