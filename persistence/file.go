package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ziqiy-dream/werewolf-judge/models"
)

const (
	roomsFile   = "rooms.json"
	historyFile = "gameHistory.json"
)

// FileStore keeps the snapshot and the history as two JSON files in one
// directory. Writes go to a temp file first and are renamed into place.
type FileStore struct {
	dir   string
	limit int
	mutex sync.Mutex
}

func NewFileStore(dir string, limit int) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStore{dir: dir, limit: historyLimit(limit)}, nil
}

func (s *FileStore) SaveSnapshot(ctx context.Context, rooms []*models.Room) error {
	data, err := encodeSnapshot(rooms)
	if err != nil {
		return err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.writeFile(roomsFile, data)
}

// LoadSnapshot returns no rooms when the file does not exist yet.
func (s *FileStore) LoadSnapshot(ctx context.Context) ([]*models.Room, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, roomsFile))
	if errors.Is(err, os.ErrNotExist) {
		return []*models.Room{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(data)
}

func (s *FileStore) SaveHistoryEntry(ctx context.Context, entry models.HistoryEntry) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entries, err := s.readHistory()
	if err != nil {
		// 文件损坏时从空列表重新开始
		entries = nil
	}
	entries = trimHistory(append(entries, entry), s.limit)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return s.writeFile(historyFile, data)
}

func (s *FileStore) LoadHistory(ctx context.Context) ([]models.HistoryEntry, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.readHistory()
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) readHistory() ([]models.HistoryEntry, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, historyFile))
	if errors.Is(err, os.ErrNotExist) {
		return []models.HistoryEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []models.HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return entries, nil
}

func (s *FileStore) writeFile(name string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(s.dir, name))
}
