package store

import (
	"context"
	"sync"

	"basegraph.app/counsel/internal/model"
)

// MemoryCaseFileStore is used when no database is configured and in tests.
type MemoryCaseFileStore struct {
	mu    sync.RWMutex
	files map[string]*model.CaseState
}

func NewMemoryCaseFileStore() *MemoryCaseFileStore {
	return &MemoryCaseFileStore{files: make(map[string]*model.CaseState)}
}

func (s *MemoryCaseFileStore) Read(_ context.Context, sessionID string) (*model.CaseState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.files[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return state.Clone(), nil
}

func (s *MemoryCaseFileStore) Write(_ context.Context, sessionID string, state *model.CaseState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.files[sessionID] = state.Clone()
	return nil
}

func (s *MemoryCaseFileStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.files, sessionID)
	return nil
}
