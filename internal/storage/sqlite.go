package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS posts (
		id             TEXT PRIMARY KEY,
		text           TEXT NOT NULL,
		processed_text TEXT NOT NULL,
		category       TEXT NOT NULL,
		timestamp      INTEGER NOT NULL,
		meta           TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_posts_timestamp ON posts (timestamp)`,
}

// SQLiteStore 单文件存储，适合本地运行；timestamp 以 UnixNano 保存
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "storage: open sqlite")
	}
	// 单进程批处理；:memory: 下也保证所有语句落在同一个连接上
	db.SetMaxOpenConns(1)

	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, eris.Wrap(err, "storage: create sqlite schema")
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM posts WHERE id = ? LIMIT 1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "storage: exists %s", id)
	}
	return true, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, rec Record) error {
	var meta sql.NullString
	if rec.Meta != nil {
		bs, err := json.Marshal(rec.Meta)
		if err != nil {
			return eris.Wrapf(err, "storage: encode meta %s", rec.ID)
		}
		meta = sql.NullString{String: string(bs), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (id, text, processed_text, category, timestamp, meta)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.Text, rec.ProcessedText, rec.Category, rec.Timestamp.UTC().UnixNano(), meta,
	)
	if err != nil {
		return eris.Wrapf(err, "storage: insert %s", rec.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "storage: insert %s", rec.ID)
	}
	if n == 0 {
		return ErrDuplicate
	}
	return nil
}

func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, processed_text, category, timestamp, meta
		FROM posts
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "storage: list recent")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec  Record
			ts   int64
			meta sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Text, &rec.ProcessedText, &rec.Category, &ts, &meta); err != nil {
			return nil, eris.Wrap(err, "storage: scan post")
		}
		rec.Timestamp = time.Unix(0, ts).UTC()
		if meta.Valid {
			rec.Meta = &RecordMeta{}
			if err := json.Unmarshal([]byte(meta.String), rec.Meta); err != nil {
				return nil, eris.Wrapf(err, "storage: decode meta %s", rec.ID)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "storage: iterate posts")
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
