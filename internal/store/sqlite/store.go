// Package sqlite persists run settings and contact samples.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	pragmas := []struct{ name, stmt string }{
		{"busy_timeout", "PRAGMA busy_timeout = 5000"},
		{"journal_mode", "PRAGMA journal_mode = WAL"},
		{"synchronous", "PRAGMA synchronous = NORMAL"},
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p.stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite pragma %s: %w", p.name, err)
		}
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
