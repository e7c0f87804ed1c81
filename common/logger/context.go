package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Stages enrich the context once and every slog.*Context call below them picks the
// fields up through TraceHandler.
type LogFields struct {
	SessionID *string // Chat session the turn belongs to
	TurnID    *int64  // Snowflake ID of the turn being processed
	Intent    *string // Router intent (e.g., "LEGAL_RESEARCH")
	Phase     *string // Interrogation phase (e.g., "deconstructing")
	Component string  // Component name (OTel semantic convention style, e.g., "counsel.brain.router")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.SessionID != nil {
		result.SessionID = next.SessionID
	}
	if next.TurnID != nil {
		result.TurnID = next.TurnID
	}
	if next.Intent != nil {
		result.Intent = next.Intent
	}
	if next.Phase != nil {
		result.Phase = next.Phase
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{SessionID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate shortens s to at most maxLen runes, appending "..." if truncated.
// Works on runes so Arabic text is never cut mid-character.
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
