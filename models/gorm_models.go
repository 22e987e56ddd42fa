// models/gorm_models.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// GormMatchRecord 对局归档记录
type GormMatchRecord struct {
	gorm.Model
	RoomCode  string        `gorm:"index;not null"`
	Players   []MatchPlayer `gorm:"type:jsonb;serializer:json;not null"`
	Turns     int           `gorm:"default:0"`
	Reason    string        `gorm:"not null"`
	StartedAt time.Time
	EndedAt   time.Time
}

func (GormMatchRecord) TableName() string {
	return "match_records"
}
