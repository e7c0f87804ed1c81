package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// GuardConfig bounds every call made through a guarded client.
type GuardConfig struct {
	Name              string        // breaker name, shows up in logs
	Timeout           time.Duration // per-call deadline; 0 disables
	RequestsPerSecond float64       // 0 disables rate limiting
	Burst             int
	FailureThreshold  uint32        // consecutive failures before the breaker opens
	OpenTimeout       time.Duration // how long the breaker stays open
}

type guarded struct {
	inner   Client
	cfg     GuardConfig
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewGuarded wraps inner with a per-call timeout, an optional token bucket and a circuit
// breaker. It adds no retries.
func NewGuarded(inner Client, cfg GuardConfig) Client {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	g := &guarded{inner: inner, cfg: cfg}

	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// Bad output and caller cancellation say nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrUnparsable) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("llm circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	})

	return g
}

func (g *guarded) Chat(ctx context.Context, req Request, result any) (*Response, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("llm rate limit wait: %w", err)
		}
	}

	callCtx := ctx
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.Chat(callCtx, req, result)
	})
	if err != nil {
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return nil, fmt.Errorf("%w (%s): %v", ErrCircuitOpen, g.cfg.Name, err)
		case ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded):
			return nil, fmt.Errorf("%w after %s: %v", ErrTimeout, g.cfg.Timeout, err)
		default:
			return nil, err
		}
	}

	resp, _ := out.(*Response)
	if resp == nil {
		resp = &Response{}
	}
	return resp, nil
}

func (g *guarded) Model() string {
	return g.inner.Model()
}
