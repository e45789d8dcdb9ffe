package persistence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ziqiy-dream/werewolf-judge/config"
)

// Open builds the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", "file":
		return NewFileStore(cfg.DataDir, cfg.HistoryLimit)
	case "memory":
		return NewMemoryStore(cfg.HistoryLimit), nil
	case "postgres":
		pg := cfg.Postgres
		return NewPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName, cfg.HistoryLimit)
	case "gorm":
		pg := cfg.Postgres
		return NewGormPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName, cfg.HistoryLimit)
	case "redis":
		client, err := DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		return NewRedisStore(client, cfg.Redis.KeyPrefix, cfg.HistoryLimit), nil
	case "sqlite":
		path := cfg.SQLite.Path
		if path == "" {
			path = filepath.Join(cfg.DataDir, "werewolf.db")
		}
		if !strings.HasPrefix(path, "file:") {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, err
			}
		}
		return NewSQLiteStore(path, cfg.HistoryLimit)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
