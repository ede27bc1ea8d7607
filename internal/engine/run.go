package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mtzanidakis/helios/internal/bus"
	"github.com/mtzanidakis/helios/internal/retry"
	"github.com/mtzanidakis/helios/internal/routing"
	"github.com/mtzanidakis/helios/internal/state"
	"github.com/mtzanidakis/helios/internal/store"
	"github.com/mtzanidakis/helios/internal/worker"
)

type RunStatus string

const (
	StatusIdle      RunStatus = "idle"
	StatusRunning   RunStatus = "running"
	StatusPaused    RunStatus = "paused"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Run is one project execution. The loop owns the state record; everything
// observable from outside goes through the mutex-guarded accessors.
type Run struct {
	ID      string
	engine  *Engine
	workers worker.Set

	mu       sync.Mutex
	state    *state.State
	status   RunStatus
	pauseReq bool
	err      error

	resume chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

func (r *Run) Status() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Err returns the terminal error for a failed run, nil otherwise.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Snapshot returns a deep copy of the current state record.
func (r *Run) Snapshot() *state.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone()
}

// Pause requests a pause. The loop honors it at the next iteration boundary,
// never mid-worker.
func (r *Run) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusRunning {
		return fmt.Errorf("run is %s, cannot pause", r.status)
	}
	r.pauseReq = true
	return nil
}

func (r *Run) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.status {
	case StatusPaused:
	case StatusRunning:
		// Pause requested but not yet reached; withdraw it.
		r.pauseReq = false
		return nil
	default:
		return fmt.Errorf("run is %s, cannot resume", r.status)
	}
	r.pauseReq = false
	select {
	case r.resume <- struct{}{}:
	default:
	}
	return nil
}

// Stop cancels the run. A paused run is woken up to observe the cancellation.
func (r *Run) Stop() {
	r.cancel()
	select {
	case r.resume <- struct{}{}:
	default:
	}
}

// Wait blocks until the run reaches a terminal status or the context ends.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Run) loop(ctx context.Context) {
	defer close(r.done)
	defer r.workers.Close()

	r.publish("run_started", map[string]any{"name": r.state.Name})

	for iter := 0; ; iter++ {
		if ctx.Err() != nil {
			r.finishFailed(state.RoleNone, state.ErrTerminalRunFailure, "run stopped", 0)
			return
		}
		if !r.waitIfPaused(ctx) {
			r.finishFailed(state.RoleNone, state.ErrTerminalRunFailure, "run stopped", 0)
			return
		}
		if max := r.engine.cfg.MaxIterations; max > 0 && iter >= max {
			r.finishFailed(state.RoleNone, state.ErrTerminalRunFailure,
				fmt.Sprintf("run exceeded %d iterations without completing", max), 0)
			return
		}

		view := r.Snapshot()
		role := view.ActiveRole

		w, ok := r.workers[role]
		if !ok {
			r.finishFailed(role, state.ErrRoleNotFound,
				fmt.Sprintf("no worker registered for role %s", role), 0)
			return
		}

		r.publish("worker_starting", map[string]any{"role": string(role), "iteration": iter})

		started := nowUTC()
		upd, err := w.Execute(ctx, view)
		elapsed := time.Since(started)

		if err != nil {
			if ctx.Err() != nil {
				r.finishFailed(role, state.ErrTerminalRunFailure, "run stopped", 0)
				return
			}
			if !r.recoverFrom(role, err, started, elapsed) {
				return
			}
			continue
		}

		merged := r.merge(upd)
		r.persistProgress(merged, upd)
		r.appendRunLog(store.RunLogEntry{
			ProjectID: r.ID,
			Role:      role,
			StartedAt: started,
			Duration:  elapsed,
			Success:   true,
		})
		r.publish("worker_completed", map[string]any{
			"role":        string(role),
			"iteration":   iter,
			"duration_ms": elapsed.Milliseconds(),
		})
		r.publish("state_updated", stateSummary(merged))

		if merged.Completed {
			r.finishCompleted(merged)
			return
		}

		decision := r.engine.table.Next(role, merged, r.workers.Registered)
		if decision.Done {
			r.finishCompleted(merged)
			return
		}

		handoff := state.Handoff{
			From:   role,
			To:     decision.Next,
			Reason: decision.Reason,
			At:     nowUTC(),
		}
		routeUpd := &state.Update{
			ActiveRole:    &decision.Next,
			ClearOverride: decision.FromOverride,
			Handoffs:      []state.Handoff{handoff},
		}
		r.merge(routeUpd)
		if err := r.engine.store.AppendHandoff(r.ID, handoff); err != nil {
			slog.Error("persist handoff failed", "project", r.ID, "error", err)
		}
		slog.Info("handoff", "project", r.ID, "from", handoff.From, "to", handoff.To, "reason", handoff.Reason)
	}
}

// recoverFrom handles a worker failure after its retry budget is spent. It
// reroutes to a registered alternate role when the recovery table has one;
// otherwise the run fails terminally. Returns false when the run is over.
func (r *Run) recoverFrom(role state.Role, err error, started time.Time, elapsed time.Duration) bool {
	attempts := 0
	kind := state.ErrRetryExhausted
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		attempts = exhausted.Attempts
	} else {
		kind = state.ErrValidationFailure
	}

	r.appendRunLog(store.RunLogEntry{
		ProjectID: r.ID,
		Role:      role,
		StartedAt: started,
		Duration:  elapsed,
		Success:   false,
		Error:     err.Error(),
	})

	alt, ok := routing.Alternate(role, r.workers.Registered)
	if !ok {
		r.finishFailed(role, kind, err.Error(), attempts)
		return false
	}

	slog.Warn("role failed, rerouting to alternate", "project", r.ID, "role", role, "alternate", alt, "error", err)

	rec := state.ErrorRecord{
		Role:     role,
		Kind:     kind,
		Message:  err.Error(),
		Attempts: attempts,
		At:       nowUTC(),
	}
	handoff := state.Handoff{
		From:   role,
		To:     alt,
		Reason: fmt.Sprintf("recovery: %s failed", role),
		At:     nowUTC(),
	}
	r.merge(&state.Update{
		ActiveRole: &alt,
		Errors:     []state.ErrorRecord{rec},
		Handoffs:   []state.Handoff{handoff},
	})
	if err := r.engine.store.AppendRunError(r.ID, rec); err != nil {
		slog.Error("persist run error failed", "project", r.ID, "error", err)
	}
	if err := r.engine.store.AppendHandoff(r.ID, handoff); err != nil {
		slog.Error("persist handoff failed", "project", r.ID, "error", err)
	}
	r.publish("worker_failed", map[string]any{
		"role":      string(role),
		"alternate": string(alt),
		"error":     err.Error(),
	})
	return true
}

// waitIfPaused blocks while a pause is in effect. Returns false when the run
// was stopped while waiting.
func (r *Run) waitIfPaused(ctx context.Context) bool {
	r.mu.Lock()
	if !r.pauseReq {
		r.mu.Unlock()
		return true
	}
	r.status = StatusPaused
	r.mu.Unlock()

	slog.Info("run paused", "project", r.ID)
	r.publish("run_paused", nil)

	for {
		select {
		case <-ctx.Done():
			return false
		case <-r.resume:
			if ctx.Err() != nil {
				return false
			}
			r.mu.Lock()
			r.status = StatusRunning
			r.mu.Unlock()
			slog.Info("run resumed", "project", r.ID)
			r.publish("run_resumed", nil)
			return true
		}
	}
}

func (r *Run) merge(u *state.Update) *state.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state.Merge(r.state, u, nowUTC())
	return r.state.Clone()
}

// persistProgress writes the iteration's results: task snapshots, new
// artifact versions, and the artifact files in the project workspace.
func (r *Run) persistProgress(merged *state.State, upd *state.Update) {
	st := r.engine.store

	for _, t := range merged.Tasks {
		if err := st.SaveTask(r.ID, t); err != nil {
			slog.Error("persist task failed", "project", r.ID, "task", t.ID, "error", err)
		}
	}

	for _, produced := range upd.Artifacts {
		a, ok := merged.Artifacts[produced.Key]
		if !ok {
			continue
		}
		if err := st.SaveArtifact(r.ID, a); err != nil {
			slog.Error("persist artifact failed", "project", r.ID, "key", a.Key, "error", err)
		}
		if r.engine.ws != nil {
			if err := r.engine.ws.WriteFile(r.ID, a.Key, []byte(a.Content)); err != nil {
				slog.Error("write workspace file failed", "project", r.ID, "key", a.Key, "error", err)
			}
		}
	}
}

func (r *Run) appendRunLog(e store.RunLogEntry) {
	if err := r.engine.store.AppendRunLog(r.ID, e); err != nil {
		slog.Error("persist run log failed", "project", r.ID, "error", err)
	}
}

func (r *Run) finishCompleted(merged *state.State) {
	final := merged.FinalOutput
	if final == "" {
		completed, total := merged.TaskCounts()
		final = fmt.Sprintf("Project %q completed: %d of %d tasks done, %d artifacts produced.",
			merged.Name, completed, total, len(merged.Artifacts))
	}

	completed := true
	none := state.RoleNone
	r.merge(&state.Update{ActiveRole: &none, Completed: &completed, FinalOutput: &final})

	r.mu.Lock()
	r.status = StatusCompleted
	r.mu.Unlock()

	if err := r.engine.store.UpdateProjectStatus(r.ID, "completed", final); err != nil {
		slog.Error("persist project status failed", "project", r.ID, "error", err)
	}
	slog.Info("run completed", "project", r.ID)
	r.publish("run_completed", map[string]any{"final_output": final})
}

func (r *Run) finishFailed(role state.Role, kind state.ErrorKind, message string, attempts int) {
	rec := state.ErrorRecord{
		Role:     role,
		Kind:     kind,
		Message:  message,
		Attempts: attempts,
		Terminal: true,
		At:       nowUTC(),
	}
	terminal := state.ErrorRecord{
		Role:     role,
		Kind:     state.ErrTerminalRunFailure,
		Message:  message,
		Terminal: true,
		At:       nowUTC(),
	}

	completed := true
	none := state.RoleNone
	upd := &state.Update{
		ActiveRole: &none,
		Completed:  &completed,
		Errors:     []state.ErrorRecord{rec},
	}
	if kind != state.ErrTerminalRunFailure {
		upd.Errors = append(upd.Errors, terminal)
	}
	r.merge(upd)

	r.mu.Lock()
	r.status = StatusFailed
	r.err = fmt.Errorf("%s: %s", kind, message)
	r.mu.Unlock()

	for _, e := range upd.Errors {
		if err := r.engine.store.AppendRunError(r.ID, e); err != nil {
			slog.Error("persist run error failed", "project", r.ID, "error", err)
		}
	}
	if err := r.engine.store.UpdateProjectStatus(r.ID, "failed", message); err != nil {
		slog.Error("persist project status failed", "project", r.ID, "error", err)
	}
	slog.Error("run failed", "project", r.ID, "role", role, "kind", kind, "message", message)
	r.publish("run_failed", map[string]any{
		"role":  string(role),
		"kind":  string(kind),
		"error": message,
	})
}

func (r *Run) publish(eventType string, data map[string]any) {
	if r.engine.events == nil {
		return
	}
	event := map[string]any{
		"type":       eventType,
		"project_id": r.ID,
		"timestamp":  nowUTC().Format(time.RFC3339),
	}
	if data != nil {
		event["data"] = data
	}
	if err := r.engine.events.PublishJSON(bus.TopicProjectEvents(r.ID), event); err != nil {
		slog.Debug("publish event failed", "project", r.ID, "type", eventType, "error", err)
	}
}

func stateSummary(s *state.State) map[string]any {
	completed, total := s.TaskCounts()
	return map[string]any{
		"active_role":     string(s.ActiveRole),
		"tasks_completed": completed,
		"tasks_total":     total,
		"artifacts":       len(s.Artifacts),
		"messages":        len(s.Messages),
	}
}

func nowUTC() time.Time { return time.Now().UTC() }
