package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure Go driver, no cgo

	"basegraph.app/counsel/internal/model"
)

const (
	createSQLiteCaseFileSQL = `
CREATE TABLE IF NOT EXISTS case_worksheets (
    session_id  TEXT PRIMARY KEY,
    state       TEXT NOT NULL,
    revision    INTEGER NOT NULL DEFAULT 1,
    created_at  TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

	readSQLiteCaseFileSQL = `SELECT state FROM case_worksheets WHERE session_id = ?`

	upsertSQLiteCaseFileSQL = `
INSERT INTO case_worksheets (session_id, state) VALUES (?, ?)
ON CONFLICT (session_id) DO UPDATE
SET state = excluded.state,
    revision = case_worksheets.revision + 1,
    updated_at = CURRENT_TIMESTAMP`

	deleteSQLiteCaseFileSQL = `DELETE FROM case_worksheets WHERE session_id = ?`
)

// SQLiteCaseFileStore keeps worksheets in a single embedded database file, for
// single-node deployments that want durability without running Postgres.
type SQLiteCaseFileStore struct {
	db *sql.DB
}

func NewSQLiteCaseFileStore(ctx context.Context, path string) (*SQLiteCaseFileStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating case file database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening case file database: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		createSQLiteCaseFileSQL,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("initializing case file database: %w", err)
		}
	}
	return &SQLiteCaseFileStore{db: db}, nil
}

func (s *SQLiteCaseFileStore) Read(ctx context.Context, sessionID string) (*model.CaseState, error) {
	var raw string
	if err := s.db.QueryRowContext(ctx, readSQLiteCaseFileSQL, sessionID).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading case file: %w", err)
	}

	state := model.NewCaseState()
	if err := json.Unmarshal([]byte(raw), state); err != nil {
		return nil, fmt.Errorf("decoding case file: %w", err)
	}
	return state, nil
}

func (s *SQLiteCaseFileStore) Write(ctx context.Context, sessionID string, state *model.CaseState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding case file: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, upsertSQLiteCaseFileSQL, sessionID, string(raw)); err != nil {
		return fmt.Errorf("writing case file: %w", err)
	}
	return nil
}

func (s *SQLiteCaseFileStore) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, deleteSQLiteCaseFileSQL, sessionID); err != nil {
		return fmt.Errorf("deleting case file: %w", err)
	}
	return nil
}

func (s *SQLiteCaseFileStore) Close() error {
	return s.db.Close()
}
