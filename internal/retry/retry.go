// Package retry wraps units of work with bounded, exponentially backed-off
// retry. Counters are kept per operation name and reset on success, so a
// flaky operation that eventually succeeds starts from a clean slate.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Policy bounds a single operation's retry behaviour.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultPolicy matches the per-worker defaults: 3 retries, 1s base delay.
var DefaultPolicy = Policy{MaxRetries: 3, BaseDelay: time.Second}

// ExhaustedError reports that an operation failed past its retry budget.
// It carries the last underlying error and the total failed attempt count.
type ExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("operation %s exhausted %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Retrier tracks attempt counters across invocations, keyed by operation name.
type Retrier struct {
	mu       sync.Mutex
	attempts map[string]int
}

func New() *Retrier {
	return &Retrier{attempts: make(map[string]int)}
}

// Attempts returns the current failure count for an operation.
func (r *Retrier) Attempts(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts[op]
}

func (r *Retrier) bump(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[op]++
	return r.attempts[op]
}

func (r *Retrier) reset(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.attempts, op)
}

// Do runs fn, retrying on failure with delays of baseDelay*2^n. The loop is
// iterative with an explicit counter; it never recurses and never retries
// past the policy budget. Backoff waits are cancelled by the context.
func (r *Retrier) Do(ctx context.Context, op string, p Policy, fn func(context.Context) error) error {
	if p.MaxRetries <= 0 {
		p.MaxRetries = DefaultPolicy.MaxRetries
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultPolicy.BaseDelay
	}

	for {
		err := fn(ctx)
		if err == nil {
			slog.Debug("operation succeeded", "op", op, "attempt", r.Attempts(op)+1)
			r.reset(op)
			return nil
		}

		attempts := r.bump(op)
		slog.Warn("operation attempt failed", "op", op, "attempt", attempts, "max", p.MaxRetries, "error", err)

		if attempts >= p.MaxRetries {
			r.reset(op)
			return &ExhaustedError{Op: op, Attempts: attempts, Err: err}
		}

		// attempts-1 failures preceded this wait: 1x, 2x, 4x, ...
		delay := p.BaseDelay * (1 << (attempts - 1))
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
