package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // CGO-free SQLite
)

// SQLiteKV stores a region in one table of a local SQLite database
type SQLiteKV struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

// OpenSQLite opens (or creates) the database file at path
func OpenSQLite(path string) (*sql.DB, error) {
	// WAL + busy timeout to avoid "database is locked"
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	return db, nil
}

// NewSQLiteKV creates the region table if needed
func NewSQLiteKV(ctx context.Context, db *sql.DB, table string) (*SQLiteKV, error) {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s(
	  key        TEXT    PRIMARY KEY,
	  value      BLOB    NOT NULL,
	  expires_at INTEGER NOT NULL DEFAULT 0
	)`, table))
	if err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", table, err)
	}

	return &SQLiteKV{
		db:    db,
		table: table,
		now:   time.Now,
	}, nil
}

func (s *SQLiteKV) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	var expiresAt int64
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT value, expires_at FROM %s WHERE key = ?`, s.table), key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if expiresAt != 0 && s.now().UnixMilli() >= expiresAt {
		_ = s.Delete(ctx, key)
		return nil, ErrNotFound
	}
	return value, nil
}

func (s *SQLiteKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = s.now().Add(ttl).UnixMilli()
	}

	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
	`, s.table), key, value, expiresAt)
	return err
}

func (s *SQLiteKV) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, s.table), key)
	return err
}
