// models/gorm_models.go
package models

import (
	"gorm.io/gorm"
)

// GormRoom 房间快照，每个房间一行
type GormRoom struct {
	gorm.Model
	RoomID string `gorm:"uniqueIndex;not null"`
	Phase  string `gorm:"not null"`
	Data   Room   `gorm:"type:jsonb;serializer:json;not null"`
}

func (GormRoom) TableName() string { return "room_snapshots" }

// GormGameRecord 对局记录
type GormGameRecord struct {
	gorm.Model
	RoomID string       `gorm:"index;not null"`
	Winner string       `gorm:"not null;default:''"`
	Entry  HistoryEntry `gorm:"type:jsonb;serializer:json;not null"`
}

func (GormGameRecord) TableName() string { return "game_records" }
