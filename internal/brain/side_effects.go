package brain

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"basegraph.app/counsel/internal/model"
	"basegraph.app/counsel/internal/notify"
	"basegraph.app/counsel/internal/store"
)

// sideEffects runs worksheet writes and status updates off the turn's critical path.
// Neither can fail or slow down a turn. Effects for one session run in the order they
// were queued, one at a time; different sessions do not wait on each other.
type sideEffects struct {
	files    store.CaseFileStore
	notifier notify.Notifier
	timeout  time.Duration

	mu    sync.Mutex
	lanes map[string]*lane
	wg    sync.WaitGroup
}

// lane is one session's FIFO queue. done closes when the queue empties and its
// worker exits.
type lane struct {
	queue []func()
	done  chan struct{}
}

func newSideEffects(files store.CaseFileStore, notifier notify.Notifier, timeout time.Duration) *sideEffects {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &sideEffects{
		files:    files,
		notifier: notifier,
		timeout:  timeout,
		lanes:    make(map[string]*lane),
	}
}

func (s *sideEffects) writeWorksheet(ctx context.Context, sessionID string, state *model.CaseState) {
	if s == nil || s.files == nil {
		return
	}

	snapshot := state.Clone()
	s.enqueue(ctx, sessionID, func(ctx context.Context) {
		if err := s.files.Write(ctx, sessionID, snapshot); err != nil {
			warn := &PersistenceWarning{SessionID: sessionID, Err: err}
			slog.WarnContext(ctx, "case worksheet not persisted", "error", warn)
		}
	})
}

func (s *sideEffects) notify(ctx context.Context, sessionID, status string) {
	if s == nil || s.notifier == nil {
		return
	}

	s.enqueue(ctx, sessionID, func(ctx context.Context) {
		if err := s.notifier.Notify(ctx, sessionID, status); err != nil {
			slog.DebugContext(ctx, "status update dropped", "status", status, "error", err)
		}
	})
}

func (s *sideEffects) enqueue(ctx context.Context, sessionID string, fn func(ctx context.Context)) {
	detached := context.WithoutCancel(ctx)
	task := func() {
		ctx, cancel := context.WithTimeout(detached, s.timeout)
		defer cancel()
		fn(ctx)
	}

	s.mu.Lock()
	if l, ok := s.lanes[sessionID]; ok {
		l.queue = append(l.queue, task)
		s.mu.Unlock()
		return
	}
	l := &lane{queue: []func(){task}, done: make(chan struct{})}
	s.lanes[sessionID] = l
	s.wg.Add(1)
	s.mu.Unlock()

	go s.work(sessionID, l)
}

func (s *sideEffects) work(sessionID string, l *lane) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		if len(l.queue) == 0 {
			delete(s.lanes, sessionID)
			close(l.done)
			s.mu.Unlock()
			return
		}
		task := l.queue[0]
		l.queue = l.queue[1:]
		s.mu.Unlock()

		task()
	}
}

// drain blocks until every effect queued for sessionID so far has run. Each effect is
// bounded by the write timeout, so drain is too.
func (s *sideEffects) drain(sessionID string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	l, ok := s.lanes[sessionID]
	s.mu.Unlock()
	if ok {
		<-l.done
	}
}

// releaseAfter hands the session lock back only once the session's queued effects have
// landed, so the next holder (on any replica) never reads a worksheet older than the
// last turn and never races a late write.
func (s *sideEffects) releaseAfter(sessionID string, release func()) {
	if s == nil {
		release()
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.drain(sessionID)
		release()
	}()
}

// wait blocks until pending side effects finish. Used on shutdown.
func (s *sideEffects) wait() {
	if s != nil {
		s.wg.Wait()
	}
}
