package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ziqiy-dream/werewolf-judge/models"
)

// RedisStore keeps the snapshot under one string key and the history in a
// capped list.
// Key: {prefix}:rooms, Value: JSON [[id, room], ...]
// Key: {prefix}:history, List of JSON entries, oldest first
type RedisStore struct {
	client *redis.Client
	prefix string
	limit  int
}

func NewRedisStore(client *redis.Client, prefix string, limit int) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, limit: historyLimit(limit)}
}

// DialRedis 创建 Redis 客户端并检查连通性
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func (s *RedisStore) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + ":" + name
}

func (s *RedisStore) roomsKey() string   { return s.key("rooms") }
func (s *RedisStore) historyKey() string { return s.key("history") }

func (s *RedisStore) SaveSnapshot(ctx context.Context, rooms []*models.Room) error {
	data, err := encodeSnapshot(rooms)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.roomsKey(), data, 0).Err()
}

func (s *RedisStore) LoadSnapshot(ctx context.Context) ([]*models.Room, error) {
	data, err := s.client.Get(ctx, s.roomsKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return []*models.Room{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(data)
}

func (s *RedisStore) SaveHistoryEntry(ctx context.Context, entry models.HistoryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, s.historyKey(), data)
		pipe.LTrim(ctx, s.historyKey(), int64(-s.limit), -1)
		return nil
	})
	return err
}

func (s *RedisStore) LoadHistory(ctx context.Context) ([]models.HistoryEntry, error) {
	items, err := s.client.LRange(ctx, s.historyKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]models.HistoryEntry, 0, len(items))
	for _, item := range items {
		var e models.HistoryEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("decode history: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
