package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const queryTimeout = 5 * time.Second

const schema = `
CREATE TABLE IF NOT EXISTS settings (
	grp   TEXT NOT NULL,
	key   TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (grp, key)
)`

// SQLite is a repository kept in a SQLite database.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) Set(ctx context.Context, group, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO settings(grp, key, value) VALUES (?, ?, ?)
ON CONFLICT(grp, key) DO UPDATE SET value=excluded.value
`, group, key, value)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", group, key, err)
	}
	return nil
}

func (s *SQLite) String(group, key string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE grp = ? AND key = ?`, group, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s/%s", ErrNotFound, group, key)
	}
	if err != nil {
		return "", fmt.Errorf("get %s/%s: %w", group, key, err)
	}
	return v, nil
}

func (s *SQLite) Int(group, key string) (int, error) {
	v, err := s.String(group, key)
	if err != nil {
		return 0, err
	}
	return atoi(group, key, v)
}

// Import copies every value of m into the database.
func (s *SQLite) Import(ctx context.Context, m Map) error {
	for group, values := range m {
		for key, v := range values {
			if err := s.Set(ctx, group, key, v); err != nil {
				return err
			}
		}
	}
	return nil
}
