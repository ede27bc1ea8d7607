// Package worker implements the role-bound units of execution. A worker
// receives a read-only view of the shared state and returns a partial update;
// it never mutates the record directly. Generation failures are absorbed by
// deterministic fallbacks, so a run completes even without a provider.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mtzanidakis/helios/internal/llm"
	"github.com/mtzanidakis/helios/internal/retry"
	"github.com/mtzanidakis/helios/internal/state"
)

type Status string

const (
	StatusIdle      Status = "idle"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

type Worker interface {
	Role() state.Role
	// Execute performs the role's work against a read-only state view and
	// returns the partial update to merge. Wrapped internally by the retry
	// policy configured for the worker.
	Execute(ctx context.Context, view *state.State) (*state.Update, error)
	// Validate pre-checks a produced update; used by the correction loop.
	Validate(u *state.Update) bool
	Status() Status
	Close() error
}

// Options configure a worker's retry and correction behaviour.
type Options struct {
	Policy         retry.Policy
	MaxCorrections int
}

// produceFunc builds the role's partial update for one invocation.
type produceFunc func(ctx context.Context, view *state.State) (*state.Update, error)

// Base carries the machinery shared by every role worker: lifecycle status,
// the retry wrapper, and the bounded generate-validate-correct loop.
type Base struct {
	role    state.Role
	client  llm.Client
	retrier *retry.Retrier
	opts    Options
	produce produceFunc

	mu     sync.Mutex
	status Status
}

func newBase(role state.Role, client llm.Client, opts Options) *Base {
	if opts.Policy.MaxRetries == 0 {
		opts.Policy = retry.DefaultPolicy
	}
	return &Base{
		role:    role,
		client:  client,
		retrier: retry.New(),
		opts:    opts,
		status:  StatusIdle,
	}
}

func (b *Base) Role() state.Role { return b.role }

func (b *Base) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *Base) setStatus(s Status) {
	b.mu.Lock()
	b.status = s
	b.mu.Unlock()
}

func (b *Base) Close() error {
	b.setStatus(StatusIdle)
	return nil
}

// Validate rejects empty updates; role workers with stricter requirements
// check them inside their produce functions via the correction loop.
func (b *Base) Validate(u *state.Update) bool {
	return u != nil && !u.Empty()
}

func (b *Base) Execute(ctx context.Context, view *state.State) (*state.Update, error) {
	b.setStatus(StatusExecuting)

	var upd *state.Update
	op := fmt.Sprintf("%s.%s.execute", view.ProjectID, b.role)
	err := b.retrier.Do(ctx, op, b.opts.Policy, func(ctx context.Context) error {
		u, err := b.produce(ctx, view)
		if err != nil {
			return err
		}
		if !b.Validate(u) {
			return fmt.Errorf("produced update failed validation")
		}
		upd = u
		return nil
	})
	if err != nil {
		b.setStatus(StatusError)
		return nil, err
	}

	b.setStatus(StatusCompleted)
	return upd, nil
}

// structured runs the bounded generate-validate-correct loop: generate a JSON
// object, check it with valid, and on rejection ask the provider to fix its
// answer. Returns the provider's error unchanged so callers can fall back.
func (b *Base) structured(ctx context.Context, prompt, system string, out any, valid func() bool) error {
	attempts := b.opts.MaxCorrections + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := b.client.GenerateStructured(ctx, prompt, out, system); err != nil {
			return err
		}
		if valid == nil || valid() {
			return nil
		}
		lastErr = fmt.Errorf("%s: structured response rejected by validation", b.role)
		slog.Debug("requesting regeneration", "role", b.role, "attempt", i+1)
		prompt += "\n\nThe previous response did not satisfy the required shape. Correct it."
	}
	return lastErr
}
