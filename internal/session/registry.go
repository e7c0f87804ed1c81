package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"basegraph.app/counsel/internal/model"
	"basegraph.app/counsel/internal/store"
)

// Pending records an interrogation paused for user input, so the next message can
// resume it instead of being routed afresh.
type Pending struct {
	Intent   model.Intent `json:"intent"`
	Query    string       `json:"query"`
	Question string       `json:"question"`
}

// Session is the single-owner state of one conversation. Only the holder of the
// session lock reads or writes it.
type Session struct {
	ID        string
	State     *model.CaseState
	History   []model.Message
	Pending   *Pending
	Rounds    int // interrogation cycles run so far
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s *Session) AddMessage(role, content string) {
	now := time.Now().UTC()
	s.History = append(s.History, model.Message{Role: role, Content: content, Timestamp: now})
	s.UpdatedAt = now
}

// Context returns the router's view of the conversation.
func (s *Session) Context(userID string) model.ConversationContext {
	return model.ConversationContext{
		SessionID: s.ID,
		UserID:    userID,
		Messages:  append([]model.Message{}, s.History...),
	}
}

// Registry hands out exclusive access to sessions. Independent sessions proceed in
// parallel; turns on the same session queue behind its lock.
//
// With a SnapshotStore the shared snapshot is authoritative: every Acquire reloads it
// and every release saves it before unlocking, so any replica holding the lock sees the
// previous turn. Without one, sessions live in this process only.
type Registry struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	locker    Locker
	files     store.CaseFileStore
	snapshots SnapshotStore
	lockWait  time.Duration
}

func NewRegistry(locker Locker, files store.CaseFileStore, lockWait time.Duration) *Registry {
	if lockWait <= 0 {
		lockWait = 30 * time.Second
	}
	return &Registry{
		sessions: make(map[string]*Session),
		locker:   locker,
		files:    files,
		lockWait: lockWait,
	}
}

// WithSnapshots shares sessions through snapshots. Needed whenever the locker spans
// replicas.
func (r *Registry) WithSnapshots(snapshots SnapshotStore) *Registry {
	r.snapshots = snapshots
	return r
}

// Acquire locks the session and returns it, creating it on first use. A new session
// picks up any worksheet a previous process left behind. The caller must call release.
func (r *Registry) Acquire(ctx context.Context, sessionID string) (*Session, func(), error) {
	if sessionID == "" {
		return nil, nil, errors.New("session id is required")
	}

	unlock, err := r.lock(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	sess, ok := r.sessions[sessionID]
	r.mu.Unlock()

	switch {
	case r.snapshots != nil:
		sess = r.load(ctx, sessionID, sess)
	case !ok:
		sess = r.create(ctx, sessionID)
	}

	r.mu.Lock()
	r.sessions[sessionID] = sess
	r.mu.Unlock()

	release := func() {
		ctx := context.WithoutCancel(ctx)
		if r.snapshots != nil {
			if err := r.snapshots.Save(ctx, sessionID, sess.snapshot()); err != nil {
				slog.WarnContext(ctx, "failed to save session snapshot", "session_id", sessionID, "error", err)
			}
		}
		if err := unlock(ctx); err != nil {
			slog.WarnContext(ctx, "failed to release session lock", "session_id", sessionID, "error", err)
		}
	}

	return sess, release, nil
}

func (r *Registry) lock(ctx context.Context, sessionID string) (Unlock, error) {
	lockCtx, cancel := context.WithTimeout(ctx, r.lockWait)
	unlock, err := r.locker.Lock(lockCtx, sessionID)
	cancel()
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			err = ErrLockTimeout
		}
		return nil, fmt.Errorf("locking session %s: %w", sessionID, err)
	}
	return unlock, nil
}

func (r *Registry) create(ctx context.Context, sessionID string) *Session {
	now := time.Now().UTC()
	return &Session{ID: sessionID, State: r.hydrate(ctx, sessionID), CreatedAt: now, UpdatedAt: now}
}

// load picks the session up from its shared snapshot. A missing snapshot means the
// session is new or was ended elsewhere, so any cached copy is stale. If the snapshot
// store is unreachable the cached copy is the best there is.
func (r *Registry) load(ctx context.Context, sessionID string, cached *Session) *Session {
	snap, err := r.snapshots.Load(ctx, sessionID)
	switch {
	case err == nil:
		return fromSnapshot(sessionID, snap)
	case errors.Is(err, store.ErrNotFound):
		return r.create(ctx, sessionID)
	default:
		slog.WarnContext(ctx, "failed to load session snapshot", "session_id", sessionID, "error", err)
		if cached != nil {
			return cached
		}
		return r.create(ctx, sessionID)
	}
}

func (r *Registry) hydrate(ctx context.Context, sessionID string) *model.CaseState {
	if r.files == nil {
		return model.NewCaseState()
	}

	state, err := r.files.Read(ctx, sessionID)
	switch {
	case err == nil:
		slog.InfoContext(ctx, "resumed case file from worksheet", "session_id", sessionID, "facts", len(state.Facts))
		return state
	case errors.Is(err, store.ErrNotFound):
		return model.NewCaseState()
	default:
		slog.WarnContext(ctx, "failed to read case worksheet, starting empty", "session_id", sessionID, "error", err)
		return model.NewCaseState()
	}
}

// End discards the session, its snapshot and its worksheet. Waits for any in-flight turn
// to finish; ErrLockTimeout if that takes longer than the wait budget.
func (r *Registry) End(ctx context.Context, sessionID string) (bool, error) {
	unlock, err := r.lock(ctx, sessionID)
	if err != nil {
		return false, err
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			slog.WarnContext(ctx, "failed to release session lock", "session_id", sessionID, "error", err)
		}
	}()

	r.mu.Lock()
	_, existed := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	if r.snapshots != nil {
		if _, err := r.snapshots.Load(ctx, sessionID); err == nil {
			existed = true
		}
		if err := r.snapshots.Delete(ctx, sessionID); err != nil {
			slog.WarnContext(ctx, "failed to delete session snapshot", "session_id", sessionID, "error", err)
		}
	}

	if r.files != nil {
		if err := r.files.Delete(ctx, sessionID); err != nil {
			slog.WarnContext(ctx, "failed to delete case worksheet", "session_id", sessionID, "error", err)
		}
	}

	return existed, nil
}

// Len reports how many sessions are held in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
