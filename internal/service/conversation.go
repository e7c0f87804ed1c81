package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"basegraph.app/counsel/internal/brain"
	"basegraph.app/counsel/internal/store"
)

// TurnRunner is the orchestration core the conversation service drives.
type TurnRunner interface {
	HandleTurn(ctx context.Context, in brain.TurnInput) (*brain.TurnOutput, error)
	EndSession(ctx context.Context, sessionID string) (bool, error)
}

type ConversationService interface {
	SendMessage(ctx context.Context, sessionID, userID, message string) (*brain.TurnOutput, error)
	EndSession(ctx context.Context, sessionID string) (bool, error)
}

type conversationService struct {
	runner TurnRunner
}

func NewConversationService(runner TurnRunner) ConversationService {
	return &conversationService{runner: runner}
}

func (s *conversationService) SendMessage(ctx context.Context, sessionID, userID, message string) (*brain.TurnOutput, error) {
	if !store.ValidSessionID(sessionID) {
		return nil, store.ErrInvalidSessionID
	}
	if strings.TrimSpace(message) == "" {
		return nil, brain.ErrEmptyMessage
	}

	out, err := s.runner.HandleTurn(ctx, brain.TurnInput{
		SessionID: sessionID,
		UserID:    userID,
		Message:   message,
	})
	if err != nil {
		return nil, fmt.Errorf("handling turn: %w", err)
	}

	slog.InfoContext(ctx, "turn handled",
		"session_id", sessionID,
		"turn_id", out.TurnID,
		"status", out.Status)
	return out, nil
}

func (s *conversationService) EndSession(ctx context.Context, sessionID string) (bool, error) {
	if !store.ValidSessionID(sessionID) {
		return false, store.ErrInvalidSessionID
	}

	existed, err := s.runner.EndSession(ctx, sessionID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to end session", "session_id", sessionID, "error", err)
		return false, fmt.Errorf("ending session: %w", err)
	}
	return existed, nil
}
