// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	// PostgreSQL 驱动
	_ "github.com/lib/pq"

	"github.com/ziqiy-dream/werewolf-judge/models"
)

// PostgreSQL 数据库实现，直接使用 database/sql
type PostgreSQL struct {
	db    *sql.DB
	limit int
}

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(host string, port int, user, password, dbname string, limit int) (*PostgreSQL, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	// 设置连接池参数
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &PostgreSQL{db: db, limit: historyLimit(limit)}, nil
}

// initTables 初始化数据库表结构
func initTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS rooms (
            room_id VARCHAR(16) PRIMARY KEY,
            phase VARCHAR(32) NOT NULL,
            data JSONB NOT NULL,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS game_history (
            id SERIAL PRIMARY KEY,
            room_id VARCHAR(16) NOT NULL,
            data JSONB NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
        CREATE INDEX IF NOT EXISTS idx_game_history_room_id ON game_history(room_id);
    `)
	return err
}

// SaveSnapshot 整表替换
func (p *PostgreSQL) SaveSnapshot(ctx context.Context, rooms []*models.Room) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rooms`); err != nil {
		return err
	}
	for _, r := range rooms {
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rooms (room_id, phase, data) VALUES ($1, $2, $3)`,
			r.ID, string(r.GameState.Phase), data); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *PostgreSQL) LoadSnapshot(ctx context.Context) ([]*models.Room, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT data FROM rooms ORDER BY room_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := []*models.Room{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r models.Room
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		rooms = append(rooms, &r)
	}
	return rooms, rows.Err()
}

// SaveHistoryEntry 追加一条对局记录并删除超出上限的旧记录
func (p *PostgreSQL) SaveHistoryEntry(ctx context.Context, entry models.HistoryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO game_history (room_id, data) VALUES ($1, $2)`, entry.RoomID, data); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
        DELETE FROM game_history
        WHERE id NOT IN (SELECT id FROM game_history ORDER BY id DESC LIMIT $1)
    `, p.limit); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgreSQL) LoadHistory(ctx context.Context) ([]models.HistoryEntry, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT data FROM game_history ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.HistoryEntry{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var e models.HistoryEntry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close 关闭数据库连接
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
