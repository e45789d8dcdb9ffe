// persistence/interface.go
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ziqiy-dream/werewolf-judge/models"
)

// DefaultHistoryLimit 对局记录最多保留条数
const DefaultHistoryLimit = 50

// Store 房间快照与对局记录存储
type Store interface {
	// SaveSnapshot replaces the stored registry with rooms.
	SaveSnapshot(ctx context.Context, rooms []*models.Room) error
	LoadSnapshot(ctx context.Context) ([]*models.Room, error)
	// SaveHistoryEntry appends entry and drops the oldest entries beyond the limit.
	SaveHistoryEntry(ctx context.Context, entry models.HistoryEntry) error
	// LoadHistory returns the retained entries, oldest first.
	LoadHistory(ctx context.Context) ([]models.HistoryEntry, error)
	Close() error
}

// 错误定义
var (
	ErrRecordNotFound = errors.New("record not found")
	ErrUnknownDriver  = errors.New("unknown storage driver")
)

func historyLimit(n int) int {
	if n <= 0 {
		return DefaultHistoryLimit
	}
	return n
}

// trimHistory keeps the newest limit entries.
func trimHistory(entries []models.HistoryEntry, limit int) []models.HistoryEntry {
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries
}

// encodeSnapshot writes rooms as a JSON array of [id, room] pairs.
func encodeSnapshot(rooms []*models.Room) ([]byte, error) {
	pairs := make([][2]interface{}, 0, len(rooms))
	for _, r := range rooms {
		pairs = append(pairs, [2]interface{}{r.ID, r})
	}
	return json.MarshalIndent(pairs, "", "  ")
}

func decodeSnapshot(data []byte) ([]*models.Room, error) {
	var pairs [][2]json.RawMessage
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	rooms := make([]*models.Room, 0, len(pairs))
	for _, pair := range pairs {
		var r models.Room
		if err := json.Unmarshal(pair[1], &r); err != nil {
			return nil, fmt.Errorf("decode room: %w", err)
		}
		if r.ID == "" {
			if err := json.Unmarshal(pair[0], &r.ID); err != nil {
				return nil, fmt.Errorf("decode room id: %w", err)
			}
		}
		rooms = append(rooms, &r)
	}
	return rooms, nil
}
