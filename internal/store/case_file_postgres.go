package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"basegraph.app/counsel/core/db"
	"basegraph.app/counsel/internal/model"
)

const (
	readCaseFileSQL = `SELECT state FROM case_worksheets WHERE session_id = $1`

	upsertCaseFileSQL = `
INSERT INTO case_worksheets (session_id, state, revision, created_at, updated_at)
VALUES ($1, $2, 1, now(), now())
ON CONFLICT (session_id) DO UPDATE
SET state = EXCLUDED.state,
    revision = case_worksheets.revision + 1,
    updated_at = now()`

	deleteCaseFileSQL = `DELETE FROM case_worksheets WHERE session_id = $1`
)

// PostgresCaseFileStore stores each worksheet as one JSONB row.
type PostgresCaseFileStore struct {
	q db.Querier
}

func NewPostgresCaseFileStore(q db.Querier) *PostgresCaseFileStore {
	return &PostgresCaseFileStore{q: q}
}

func (s *PostgresCaseFileStore) Read(ctx context.Context, sessionID string) (*model.CaseState, error) {
	var raw []byte
	if err := s.q.QueryRow(ctx, readCaseFileSQL, sessionID).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading case file: %w", err)
	}

	state := model.NewCaseState()
	if err := json.Unmarshal(raw, state); err != nil {
		return nil, fmt.Errorf("decoding case file: %w", err)
	}
	return state, nil
}

func (s *PostgresCaseFileStore) Write(ctx context.Context, sessionID string, state *model.CaseState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding case file: %w", err)
	}
	if _, err := s.q.Exec(ctx, upsertCaseFileSQL, sessionID, raw); err != nil {
		return fmt.Errorf("writing case file: %w", err)
	}
	return nil
}

func (s *PostgresCaseFileStore) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.q.Exec(ctx, deleteCaseFileSQL, sessionID); err != nil {
		return fmt.Errorf("deleting case file: %w", err)
	}
	return nil
}
