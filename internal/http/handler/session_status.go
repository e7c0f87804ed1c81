package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"basegraph.app/counsel/internal/notify"
	"basegraph.app/counsel/internal/store"
)

const statusReadBlock = 25 * time.Second

type SessionStatusHandler struct {
	redis  *redis.Client
	prefix string
}

func NewSessionStatusHandler(redisClient *redis.Client, streamPrefix string) *SessionStatusHandler {
	return &SessionStatusHandler{redis: redisClient, prefix: streamPrefix}
}

type statusEvent struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	At     string `json:"at,omitempty"`
}

// Stream relays a session's status updates as server-sent events until the client
// disconnects. Pass last_id to resume after a reconnect.
func (h *SessionStatusHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	if h.redis == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "status stream not configured"})
		return
	}

	sessionID := c.Param("session_id")
	if !store.ValidSessionID(sessionID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	stream := notify.StreamKey(h.prefix, sessionID)
	lastID := c.Query("last_id")
	if lastID == "" {
		lastID = "$"
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	setSSEHeaders(c.Writer)
	sseWrite(c.Writer, "ping", "ready")
	flusher.Flush()

	for {
		if ctx.Err() != nil {
			return
		}

		res, err := h.redis.XRead(ctx, &redis.XReadArgs{
			Streams: []string{stream, lastID},
			Block:   statusReadBlock,
			Count:   100,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				sseWrite(c.Writer, "ping", time.Now().UTC().Format(time.RFC3339Nano))
				flusher.Flush()
				continue
			}
			if ctx.Err() != nil {
				return
			}
			sseWrite(c.Writer, "error", map[string]string{"error": err.Error()})
			flusher.Flush()
			// Avoid spinning on a dead connection.
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, streamRes := range res {
			for _, msg := range streamRes.Messages {
				lastID = msg.ID
				sseWrite(c.Writer, "status", toStatusEvent(msg))
				flusher.Flush()
			}
		}
	}
}

func toStatusEvent(msg redis.XMessage) statusEvent {
	ev := statusEvent{ID: msg.ID}
	if s, ok := msg.Values["status"].(string); ok {
		ev.Status = s
	}
	if at, ok := msg.Values["at"].(string); ok {
		ev.At = at
	}
	return ev
}

func setSSEHeaders(w http.ResponseWriter) {
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
}

func sseWrite(w http.ResponseWriter, event string, data any) {
	payload := marshalPayload(data)
	if event != "" {
		_, _ = fmt.Fprintf(w, "event: %s\n", event)
	}
	for _, line := range strings.Split(payload, "\n") {
		_, _ = fmt.Fprintf(w, "data: %s\n", line)
	}
	_, _ = fmt.Fprint(w, "\n")
}

func marshalPayload(data any) string {
	switch payload := data.(type) {
	case string:
		return payload
	case []byte:
		return string(payload)
	default:
		bytes, err := json.Marshal(payload)
		if err != nil {
			return fmt.Sprintf("%v", data)
		}
		return string(bytes)
	}
}
