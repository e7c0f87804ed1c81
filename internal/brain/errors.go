package brain

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyMessage     = errors.New("latest user message is empty")
	ErrUnknownIntent    = errors.New("unknown intent")
	ErrDraftUnavailable = errors.New("drafting unavailable")
)

// RoutingError means the request could not be classified. There is no fallback intent.
type RoutingError struct {
	Reason string
	Err    error
}

func (e *RoutingError) Error() string {
	if e.Err == nil {
		return "routing failed: " + e.Reason
	}
	return fmt.Sprintf("routing failed: %s: %v", e.Reason, e.Err)
}

func (e *RoutingError) Unwrap() error { return e.Err }

type Phase string

const (
	PhaseDeconstruction Phase = "deconstruction"
	PhaseGapAnalysis    Phase = "gap_analysis"
)

// ExtractionError means a structured extraction call failed or returned the wrong shape.
// Fatal is set once the phase has used its retry, or when retrying cannot help.
type ExtractionError struct {
	Phase    Phase
	Attempts int
	Fatal    bool
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s extraction failed after %d attempt(s): %v", e.Phase, e.Attempts, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ReviewUnavailableError means the compliance review could not run. The draft is withheld.
type ReviewUnavailableError struct {
	Err error
}

func (e *ReviewUnavailableError) Error() string {
	return fmt.Sprintf("review unavailable: %v", e.Err)
}

func (e *ReviewUnavailableError) Unwrap() error { return e.Err }

// PersistenceWarning reports a failed worksheet write. Never fails a turn.
type PersistenceWarning struct {
	SessionID string
	Err       error
}

func (e *PersistenceWarning) Error() string {
	return fmt.Sprintf("case worksheet write failed for session %s: %v", e.SessionID, e.Err)
}

func (e *PersistenceWarning) Unwrap() error { return e.Err }

// TurnError is returned for failures the orchestrator cannot turn into a user message,
// such as a busy session or a cancelled request.
type TurnError struct {
	Err       error
	Retryable bool
}

func (e *TurnError) Error() string {
	return e.Err.Error()
}

func (e *TurnError) Unwrap() error {
	return e.Err
}

func NewRetryableError(err error) *TurnError {
	return &TurnError{Err: err, Retryable: true}
}

func NewFatalError(err error) *TurnError {
	return &TurnError{Err: err, Retryable: false}
}
