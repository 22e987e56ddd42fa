// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wfunc/relayserver/models"

	// PostgreSQL 驱动
	_ "github.com/lib/pq"
)

// PostgreSQL 基于 database/sql 的归档实现
type PostgreSQL struct {
	db *sql.DB
}

func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(db); err != nil {
		return nil, err
	}

	return &PostgreSQL{db: db}, nil
}

func initTables(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS match_records (
            id SERIAL PRIMARY KEY,
            room_code VARCHAR(16) NOT NULL,
            players JSONB NOT NULL,
            turns INT NOT NULL DEFAULT 0,
            reason VARCHAR(32) NOT NULL,
            started_at TIMESTAMP,
            ended_at TIMESTAMP,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
        CREATE INDEX IF NOT EXISTS idx_match_records_room_code ON match_records(room_code)
    `)
	return err
}

func (p *PostgreSQL) SaveMatchRecord(rec *models.MatchRecord) error {
	players, err := json.Marshal(rec.Players)
	if err != nil {
		return err
	}

	tx, err := p.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
        INSERT INTO match_records (room_code, players, turns, reason, started_at, ended_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, rec.RoomCode, players, rec.Turns, rec.Reason, rec.StartedAt, rec.EndedAt)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (p *PostgreSQL) MatchesForPlayer(playerID string, limit int) ([]models.MatchRecord, error) {
	needle, err := json.Marshal([]map[string]string{{"id": playerID}})
	if err != nil {
		return nil, err
	}

	rows, err := p.db.Query(`
        SELECT room_code, players, turns, reason, started_at, ended_at
        FROM match_records
        WHERE players @> $1
        ORDER BY ended_at DESC
        LIMIT $2
    `, needle, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.MatchRecord
	for rows.Next() {
		var (
			rec     models.MatchRecord
			players []byte
		)
		if err := rows.Scan(&rec.RoomCode, &players, &rec.Turns, &rec.Reason,
			&rec.StartedAt, &rec.EndedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(players, &rec.Players); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (p *PostgreSQL) MatchCount() (int64, error) {
	var count int64
	err := p.db.QueryRow(`SELECT COUNT(*) FROM match_records`).Scan(&count)
	return count, err
}

func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
