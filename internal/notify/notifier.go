package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Notifier pushes short status lines to whoever is watching a session.
// Delivery is best-effort; callers never fail a turn because a status was lost.
type Notifier interface {
	Notify(ctx context.Context, sessionID, status string) error
}

// StreamKey is the Redis stream carrying status updates for one session.
func StreamKey(prefix, sessionID string) string {
	return fmt.Sprintf("%s:session-%s", prefix, sessionID)
}

type redisNotifier struct {
	client *redis.Client
	prefix string
	maxLen int64
}

// NewRedisNotifier appends status entries to a capped per-session stream.
func NewRedisNotifier(client *redis.Client, prefix string) Notifier {
	return &redisNotifier{
		client: client,
		prefix: prefix,
		maxLen: 500,
	}
}

func (n *redisNotifier) Notify(ctx context.Context, sessionID, status string) error {
	stream := StreamKey(n.prefix, sessionID)
	if err := n.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: n.maxLen,
		Approx: true,
		Values: map[string]any{
			"status": status,
			"at":     time.Now().UTC().Format(time.RFC3339Nano),
		},
	}).Err(); err != nil {
		return fmt.Errorf("publish status: %w", err)
	}
	return nil
}

type logNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier writes status updates to the log. Used when Redis is not configured.
func NewLogNotifier(logger *slog.Logger) Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &logNotifier{logger: logger}
}

func (n *logNotifier) Notify(ctx context.Context, sessionID, status string) error {
	n.logger.InfoContext(ctx, "session status", "session_id", sessionID, "status", status)
	return nil
}
