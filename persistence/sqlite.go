package persistence

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ziqiy-dream/werewolf-judge/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS rooms (
	room_id TEXT PRIMARY KEY,
	phase TEXT NOT NULL,
	data TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS game_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id TEXT NOT NULL,
	data TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// SQLiteStore is an embedded single-file store built on sqlx.
type SQLiteStore struct {
	db    *sqlx.DB
	limit int
}

type sqliteRoomRow struct {
	RoomID string `db:"room_id"`
	Phase  string `db:"phase"`
	Data   string `db:"data"`
}

// NewSQLiteStore opens path, which may be a file name or a sqlite URI such as
// "file:test?mode=memory".
func NewSQLiteStore(path string, limit int) (*SQLiteStore, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// sqlite 只允许一个写者；单连接也让内存库在连接间保持一致
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, limit: historyLimit(limit)}, nil
}

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, rooms []*models.Room) error {
	tx, err := s.db.BeginTxx(ctx, nil)
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
		row := sqliteRoomRow{RoomID: r.ID, Phase: string(r.GameState.Phase), Data: string(data)}
		if _, err := tx.NamedExecContext(ctx,
			`INSERT INTO rooms (room_id, phase, data) VALUES (:room_id, :phase, :data)`, row); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) LoadSnapshot(ctx context.Context) ([]*models.Room, error) {
	var rows []sqliteRoomRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT room_id, phase, data FROM rooms ORDER BY room_id`); err != nil {
		return nil, err
	}
	rooms := make([]*models.Room, 0, len(rows))
	for _, row := range rows {
		var r models.Room
		if err := json.Unmarshal([]byte(row.Data), &r); err != nil {
			return nil, err
		}
		rooms = append(rooms, &r)
	}
	return rooms, nil
}

func (s *SQLiteStore) SaveHistoryEntry(ctx context.Context, entry models.HistoryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO game_history (room_id, data) VALUES (?, ?)`, entry.RoomID, string(data)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM game_history
		WHERE id NOT IN (SELECT id FROM game_history ORDER BY id DESC LIMIT ?)`, s.limit); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) LoadHistory(ctx context.Context) ([]models.HistoryEntry, error) {
	var raw []string
	if err := s.db.SelectContext(ctx, &raw, `SELECT data FROM game_history ORDER BY id`); err != nil {
		return nil, err
	}
	entries := make([]models.HistoryEntry, 0, len(raw))
	for _, data := range raw {
		var e models.HistoryEntry
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
