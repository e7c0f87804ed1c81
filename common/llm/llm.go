package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
)

// Provider constants for LLM provider selection.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

var (
	// ErrUnparsable means the provider answered but the content did not match the requested shape.
	ErrUnparsable = errors.New("llm response unparsable")
	// ErrCircuitOpen means recent calls failed and the gateway is refusing new ones.
	ErrCircuitOpen = errors.New("llm circuit open")
	// ErrTimeout means the per-call deadline passed before the provider answered.
	ErrTimeout = errors.New("llm call timed out")
)

// Client is the language model gateway: given a prompt and an optional structured-output
// schema, it fills result. With a schema, result is a pointer to the schema's Go type.
// Without a schema, result must be a *string and receives the raw text.
// Implementations never retry; retry policy belongs to the caller.
type Client interface {
	Chat(ctx context.Context, req Request, result any) (*Response, error)
	Model() string
}

type Request struct {
	SystemPrompt string
	UserPrompt   string
	SchemaName   string
	Schema       any // nil = plain text response
	MaxTokens    int
	Temperature  *float64 // nil = model default, explicit 0 = deterministic
}

type Response struct {
	PromptTokens     int
	CompletionTokens int
}

// Config holds LLM client configuration.
type Config struct {
	Provider  string // "openai" or "anthropic"
	APIKey    string // Required: API key for the provider
	BaseURL   string // Optional: custom API endpoint
	Model     string
	MaxTokens int // default when a Request leaves MaxTokens unset
}

// New creates a Client for cfg.Provider. Defaults to OpenAI if no provider is specified.
func New(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	switch cfg.Provider {
	case ProviderOpenAI, "":
		return newOpenAIClient(cfg), nil
	case ProviderAnthropic:
		return newAnthropicClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

// GenerateSchema reflects the JSON schema used for structured output of T.
func GenerateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

func Temp(t float64) *float64 {
	return &t
}

// decodeInto writes content into result: raw text for schema-less requests, JSON otherwise.
func decodeInto(req Request, content string, result any) error {
	if req.Schema == nil {
		text, ok := result.(*string)
		if !ok {
			return fmt.Errorf("text response requires *string result, got %T", result)
		}
		if content == "" {
			return fmt.Errorf("%w: empty text response", ErrUnparsable)
		}
		*text = content
		return nil
	}

	if content == "" {
		return fmt.Errorf("%w: empty structured response", ErrUnparsable)
	}
	if err := json.Unmarshal([]byte(content), result); err != nil {
		return fmt.Errorf("%w: %v", ErrUnparsable, err)
	}
	return nil
}

func maxTokensFor(req Request, fallback int) int64 {
	switch {
	case req.MaxTokens > 0:
		return int64(req.MaxTokens)
	case fallback > 0:
		return int64(fallback)
	default:
		return 4096
	}
}

// IsRetryable reports whether a failed call may be attempted again. Malformed output is
// retryable (the model may comply next time); cancellation and client errors are not.
func IsRetryable(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		slog.DebugContext(ctx, "llm error not retryable: context cancelled")
		return false
	}

	if errors.Is(err, ErrCircuitOpen) {
		return false
	}

	if errors.Is(err, ErrUnparsable) || errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	status := 0
	var openaiErr *openai.Error
	var anthropicErr *anthropic.Error
	switch {
	case errors.As(err, &openaiErr):
		status = openaiErr.StatusCode
	case errors.As(err, &anthropicErr):
		status = anthropicErr.StatusCode
	default:
		// Network errors (no API response) are generally retryable
		slog.WarnContext(ctx, "llm network error, retryable", "error", err)
		return true
	}

	switch {
	case status == 429:
		slog.WarnContext(ctx, "llm rate limited, retryable", "status_code", status)
		return true
	case status >= 500:
		slog.WarnContext(ctx, "llm server error, retryable", "status_code", status)
		return true
	default:
		slog.ErrorContext(ctx, "llm client error, not retryable", "status_code", status)
		return false
	}
}
