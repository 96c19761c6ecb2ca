package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Guard wraps a Client with a per-call deadline and a circuit breaker.
type Guard struct {
	next    Client
	breaker *Breaker
	timeout time.Duration
	logger  *slog.Logger
}

// NewGuard wraps next. A zero timeout means 60s; a nil breaker gets NewBreaker().
func NewGuard(next Client, timeout time.Duration, breaker *Breaker, logger *slog.Logger) *Guard {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if breaker == nil {
		breaker = NewBreaker()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{next: next, breaker: breaker, timeout: timeout, logger: logger}
}

// Complete forwards req unless the breaker is open.
func (g *Guard) Complete(ctx context.Context, req Request) (string, error) {
	if !g.breaker.Allow() {
		return "", fmt.Errorf("%w: circuit open", ErrUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	out, err := g.next.Complete(ctx, req)
	if err != nil {
		g.breaker.RecordFailure()
		g.logger.Warn("llm: call failed",
			"error", err, "duration", time.Since(start), "breaker", g.breaker.State().String())
		return "", err
	}
	g.breaker.RecordSuccess()
	return out, nil
}

// Breaker exposes the breaker for status reporting.
func (g *Guard) Breaker() *Breaker { return g.breaker }
