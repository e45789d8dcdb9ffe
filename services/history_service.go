// services/history_service.go
package services

import (
	"context"
	"fmt"

	"github.com/ziqiy-dream/werewolf-judge/models"
	"github.com/ziqiy-dream/werewolf-judge/persistence"
)

// winnerCounter is implemented by stores that can aggregate winners in the database.
type winnerCounter interface {
	CountByWinner(ctx context.Context) (map[string]int64, error)
}

// Stats 对局统计
type Stats struct {
	Games   int                       `json:"games"`
	Winners map[string]int64          `json:"winners"`
	Deaths  map[models.DeathCause]int `json:"deaths"`
	Roles   map[models.Role]int       `json:"roles"`
}

type HistoryService struct {
	store persistence.Store
}

func NewHistoryService(store persistence.Store) *HistoryService {
	return &HistoryService{store: store}
}

// Recent returns up to n entries, newest first. n <= 0 returns all of them.
func (s *HistoryService) Recent(ctx context.Context, n int) ([]models.HistoryEntry, error) {
	entries, err := s.store.LoadHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if n <= 0 || n > len(entries) {
		n = len(entries)
	}
	result := make([]models.HistoryEntry, 0, n)
	for i := len(entries) - 1; i >= 0 && len(result) < n; i-- {
		result = append(result, entries[i])
	}
	return result, nil
}

// Stats 汇总最近 n 条对局记录，n <= 0 表示全部
func (s *HistoryService) Stats(ctx context.Context, n int) (*Stats, error) {
	entries, err := s.Recent(ctx, n)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Games:   len(entries),
		Winners: make(map[string]int64),
		Deaths:  make(map[models.DeathCause]int),
		Roles:   make(map[models.Role]int),
	}
	for _, e := range entries {
		stats.Winners[string(e.Winner)]++
		for _, p := range e.Players {
			if p.Role != "" {
				stats.Roles[p.Role]++
			}
			if !p.IsAlive && p.DeathReason != "" {
				stats.Deaths[p.DeathReason]++
			}
		}
	}

	// 数据库里的计数更准确
	if wc, ok := s.store.(winnerCounter); ok && n <= 0 {
		winners, err := wc.CountByWinner(ctx)
		if err != nil {
			return nil, fmt.Errorf("count winners: %w", err)
		}
		stats.Winners = winners
	}
	return stats, nil
}
