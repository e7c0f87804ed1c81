package store

import (
	"context"
	"errors"

	"basegraph.app/counsel/internal/model"
)

// ErrNotFound is returned when a session has no stored case file.
var ErrNotFound = errors.New("not found")

// CaseFileStore keeps the per-session worksheet. Writes are best-effort: callers log a
// failed write and carry on with the in-memory state.
type CaseFileStore interface {
	Read(ctx context.Context, sessionID string) (*model.CaseState, error)
	Write(ctx context.Context, sessionID string, state *model.CaseState) error
	Delete(ctx context.Context, sessionID string) error
}
