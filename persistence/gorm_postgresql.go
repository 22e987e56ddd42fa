// persistence/gorm_postgresql.go
package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/wfunc/relayserver/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormPostgreSQL 基于 GORM 的归档实现
type GormPostgreSQL struct {
	db *gorm.DB
}

func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&models.GormMatchRecord{}); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

func (g *GormPostgreSQL) SaveMatchRecord(rec *models.MatchRecord) error {
	row := &models.GormMatchRecord{
		RoomCode:  rec.RoomCode,
		Players:   rec.Players,
		Turns:     rec.Turns,
		Reason:    rec.Reason,
		StartedAt: rec.StartedAt,
		EndedAt:   rec.EndedAt,
	}
	return g.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(row).Error
	})
}

func (g *GormPostgreSQL) MatchesForPlayer(playerID string, limit int) ([]models.MatchRecord, error) {
	needle, err := json.Marshal([]map[string]string{{"id": playerID}})
	if err != nil {
		return nil, err
	}

	var rows []models.GormMatchRecord
	err = g.db.
		Where("players @> ?", string(needle)).
		Order("ended_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	records := make([]models.MatchRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, models.MatchRecord{
			RoomCode:  row.RoomCode,
			Players:   row.Players,
			Turns:     row.Turns,
			Reason:    row.Reason,
			StartedAt: row.StartedAt,
			EndedAt:   row.EndedAt,
		})
	}
	return records, nil
}

func (g *GormPostgreSQL) MatchCount() (int64, error) {
	var count int64
	err := g.db.Model(&models.GormMatchRecord{}).Count(&count).Error
	return count, err
}

func (g *GormPostgreSQL) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
