package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"basegraph.app/counsel/internal/model"
)

const (
	// MaxCaseFileSize caps a single worksheet on disk.
	MaxCaseFileSize = 1024 * 1024

	caseFileExt = ".json"
)

var ErrInvalidSessionID = errors.New("invalid session id")

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// LocalCaseFileStore writes one JSON worksheet per session under rootDir.
type LocalCaseFileStore struct {
	rootDir string
}

func NewLocalCaseFileStore(rootDir string) (*LocalCaseFileStore, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("case file root directory is required")
	}

	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating case file root directory: %w", err)
	}

	return &LocalCaseFileStore{rootDir: rootDir}, nil
}

func (s *LocalCaseFileStore) Read(_ context.Context, sessionID string) (*model.CaseState, error) {
	path, err := s.pathFor(sessionID)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
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

func (s *LocalCaseFileStore) Write(_ context.Context, sessionID string, state *model.CaseState) error {
	path, err := s.pathFor(sessionID)
	if err != nil {
		return err
	}

	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding case file: %w", err)
	}
	if len(raw) > MaxCaseFileSize {
		return fmt.Errorf("case file for %s is %d bytes, limit is %d", sessionID, len(raw), MaxCaseFileSize)
	}

	// Atomic write: temp file, then rename
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o644); err != nil {
		return fmt.Errorf("writing temp case file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming case file: %w", err)
	}
	return nil
}

func (s *LocalCaseFileStore) Delete(_ context.Context, sessionID string) error {
	path, err := s.pathFor(sessionID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting case file: %w", err)
	}
	return nil
}

// ValidSessionID reports whether id is safe to use as a file name and stream key.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id) && !strings.Contains(id, "..")
}

// pathFor rejects anything that could escape rootDir.
func (s *LocalCaseFileStore) pathFor(sessionID string) (string, error) {
	if !ValidSessionID(sessionID) {
		return "", ErrInvalidSessionID
	}
	return filepath.Join(s.rootDir, sessionID+caseFileExt), nil
}
