package persistence

import (
	"context"
	"sync"

	"github.com/ziqiy-dream/werewolf-judge/models"
)

// MemoryStore keeps deep copies in process memory. Used when persistence is
// switched off and in tests.
type MemoryStore struct {
	mutex   sync.Mutex
	rooms   []*models.Room
	history []models.HistoryEntry
	limit   int
	saves   int
}

func NewMemoryStore(limit int) *MemoryStore {
	return &MemoryStore{limit: historyLimit(limit)}
}

func (s *MemoryStore) SaveSnapshot(ctx context.Context, rooms []*models.Room) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.rooms = cloneRooms(rooms)
	s.saves++
	return nil
}

func (s *MemoryStore) LoadSnapshot(ctx context.Context) ([]*models.Room, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return cloneRooms(s.rooms), nil
}

func (s *MemoryStore) SaveHistoryEntry(ctx context.Context, entry models.HistoryEntry) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.history = trimHistory(append(s.history, entry), s.limit)
	return nil
}

func (s *MemoryStore) LoadHistory(ctx context.Context) ([]models.HistoryEntry, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make([]models.HistoryEntry, len(s.history))
	copy(out, s.history)
	return out, nil
}

// Saves returns how many snapshots have been written.
func (s *MemoryStore) Saves() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.saves
}

func (s *MemoryStore) Close() error { return nil }

func cloneRooms(rooms []*models.Room) []*models.Room {
	out := make([]*models.Room, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Clone())
	}
	return out
}
