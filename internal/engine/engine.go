// Package engine drives project runs. A run executes the active role's
// worker, merges the returned update into the shared state, persists
// progress, and consults the routing table for the next role until the
// pipeline completes or fails.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/mtzanidakis/helios/internal/bus"
	"github.com/mtzanidakis/helios/internal/config"
	"github.com/mtzanidakis/helios/internal/llm"
	"github.com/mtzanidakis/helios/internal/retry"
	"github.com/mtzanidakis/helios/internal/routing"
	"github.com/mtzanidakis/helios/internal/state"
	"github.com/mtzanidakis/helios/internal/store"
	"github.com/mtzanidakis/helios/internal/worker"
	"github.com/mtzanidakis/helios/internal/workspace"
)

// eventSink is the fire-and-forget publisher boundary; *bus.Client
// satisfies it.
type eventSink interface {
	PublishJSON(topic string, v any) error
}

// Engine starts and tracks runs. Each run gets its own worker set so retry
// counters and lifecycle status never leak between projects.
type Engine struct {
	cfg    config.EngineConfig
	table  *routing.Table
	client llm.Client
	store  *store.Store
	ws     *workspace.Manager
	events eventSink // optional; nil disables event publishing

	// newWorkers builds the per-run worker set; replaced in tests.
	newWorkers func() worker.Set

	mu   sync.RWMutex
	runs map[string]*Run
}

func New(cfg config.EngineConfig, table *routing.Table, client llm.Client, st *store.Store, ws *workspace.Manager, events *bus.Client) *Engine {
	e := &Engine{
		cfg:    cfg,
		table:  table,
		client: client,
		store:  st,
		ws:     ws,
		runs:   make(map[string]*Run),
	}
	if events != nil {
		e.events = events
	}
	e.newWorkers = func() worker.Set {
		return worker.NewSet(e.client, worker.Options{
			Policy: retry.Policy{
				MaxRetries: e.cfg.MaxRetries,
				BaseDelay:  e.cfg.BaseDelay,
			},
			MaxCorrections: e.cfg.MaxCorrections,
		})
	}
	return e
}

// Start creates a project record and launches its run loop. The returned Run
// is already executing; callers observe it via Status, Snapshot, and Wait.
func (e *Engine) Start(ctx context.Context, name, description string) (*Run, error) {
	if name == "" {
		return nil, fmt.Errorf("project name is required")
	}

	projectID := uuid.NewString()
	if err := e.store.SaveProject(&store.Project{
		ID:          projectID,
		Name:        name,
		Description: description,
		Status:      "running",
	}); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}

	workers := e.newWorkers()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &Run{
		ID:      projectID,
		engine:  e,
		workers: workers,
		state:   state.New(projectID, name, description, nowUTC()),
		status:  StatusRunning,
		resume:  make(chan struct{}, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	e.mu.Lock()
	e.runs[projectID] = r
	e.mu.Unlock()

	slog.Info("run starting", "project", projectID, "name", name)
	go r.loop(runCtx)

	return r, nil
}

// Run returns the tracked run for a project, if any.
func (e *Engine) Run(projectID string) (*Run, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.runs[projectID]
	return r, ok
}

// Runs returns every tracked run, including finished ones.
func (e *Engine) Runs() []*Run {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Run, 0, len(e.runs))
	for _, r := range e.runs {
		out = append(out, r)
	}
	return out
}

// Shutdown stops all active runs and waits for their loops to exit.
func (e *Engine) Shutdown() {
	e.mu.RLock()
	runs := make([]*Run, 0, len(e.runs))
	for _, r := range e.runs {
		runs = append(runs, r)
	}
	e.mu.RUnlock()

	for _, r := range runs {
		r.Stop()
	}
	for _, r := range runs {
		<-r.done
	}
}
