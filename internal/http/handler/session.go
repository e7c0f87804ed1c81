package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"basegraph.app/counsel/internal/brain"
	"basegraph.app/counsel/internal/http/dto"
	"basegraph.app/counsel/internal/service"
	"basegraph.app/counsel/internal/store"
)

type SessionHandler struct {
	conversations service.ConversationService
}

func NewSessionHandler(conversations service.ConversationService) *SessionHandler {
	return &SessionHandler{conversations: conversations}
}

// SendMessage runs one turn. A failed turn still answers 200: its text is the apology.
func (h *SessionHandler) SendMessage(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("session_id")

	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid message request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out, err := h.conversations.SendMessage(ctx, sessionID, req.UserID, req.Message)
	if err != nil {
		var turnErr *brain.TurnError
		switch {
		case errors.Is(err, store.ErrInvalidSessionID):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		case errors.Is(err, brain.ErrEmptyMessage):
			c.JSON(http.StatusBadRequest, gin.H{"error": "message is empty"})
		case errors.As(err, &turnErr) && turnErr.Retryable:
			slog.InfoContext(ctx, "session busy", "session_id", sessionID, "error", err)
			c.Header("Retry-After", "1")
			c.JSON(http.StatusConflict, gin.H{"error": "session is busy, retry shortly"})
		default:
			if ctx.Err() != nil {
				return
			}
			slog.ErrorContext(ctx, "failed to handle turn", "session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to handle message"})
		}
		return
	}

	c.JSON(http.StatusOK, dto.ToTurnResponse(out))
}

func (h *SessionHandler) End(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("session_id")

	existed, err := h.conversations.EndSession(ctx, sessionID)
	if err != nil {
		var turnErr *brain.TurnError
		switch {
		case errors.Is(err, store.ErrInvalidSessionID):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		case errors.As(err, &turnErr) && turnErr.Retryable:
			slog.InfoContext(ctx, "session busy, not ended", "session_id", sessionID, "error", err)
			c.Header("Retry-After", "1")
			c.JSON(http.StatusConflict, gin.H{"error": "session is busy, retry shortly"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to end session"})
		}
		return
	}

	c.JSON(http.StatusOK, dto.EndSessionResponse{SessionID: sessionID, Existed: existed})
}
