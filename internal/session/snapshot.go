package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"basegraph.app/counsel/internal/model"
	"basegraph.app/counsel/internal/store"
)

// Snapshot is everything another replica needs to pick a session up mid-conversation,
// including an interrogation paused for input.
type Snapshot struct {
	State     *model.CaseState `json:"state"`
	History   []model.Message  `json:"history"`
	Pending   *Pending         `json:"pending,omitempty"`
	Rounds    int              `json:"rounds"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// SnapshotStore shares live sessions between replicas. Load returns store.ErrNotFound
// for a session no replica has saved.
type SnapshotStore interface {
	Load(ctx context.Context, sessionID string) (*Snapshot, error)
	Save(ctx context.Context, sessionID string, snap *Snapshot) error
	Delete(ctx context.Context, sessionID string) error
}

func (s *Session) snapshot() *Snapshot {
	return &Snapshot{
		State:     s.State,
		History:   s.History,
		Pending:   s.Pending,
		Rounds:    s.Rounds,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func fromSnapshot(sessionID string, snap *Snapshot) *Session {
	state := snap.State
	if state == nil {
		state = model.NewCaseState()
	}
	return &Session{
		ID:        sessionID,
		State:     state,
		History:   snap.History,
		Pending:   snap.Pending,
		Rounds:    snap.Rounds,
		CreatedAt: snap.CreatedAt,
		UpdatedAt: snap.UpdatedAt,
	}
}

// RedisSnapshotStore keeps one JSON snapshot per session with a sliding TTL.
type RedisSnapshotStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisSnapshotStore(client *redis.Client, prefix string, ttl time.Duration) *RedisSnapshotStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisSnapshotStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisSnapshotStore) key(sessionID string) string {
	return fmt.Sprintf("%s:%s", s.prefix, sessionID)
}

func (s *RedisSnapshotStore) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	raw, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("load session snapshot: %w", err)
	}
	return decodeSnapshot(raw)
}

func (s *RedisSnapshotStore) Save(ctx context.Context, sessionID string, snap *Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode session snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sessionID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session snapshot: %w", err)
	}
	return nil
}

func (s *RedisSnapshotStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete session snapshot: %w", err)
	}
	return nil
}

func decodeSnapshot(raw []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode session snapshot: %w", err)
	}
	return &snap, nil
}
