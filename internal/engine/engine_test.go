package engine

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mtzanidakis/helios/internal/config"
	"github.com/mtzanidakis/helios/internal/llm"
	"github.com/mtzanidakis/helios/internal/retry"
	"github.com/mtzanidakis/helios/internal/routing"
	"github.com/mtzanidakis/helios/internal/state"
	"github.com/mtzanidakis/helios/internal/store"
	"github.com/mtzanidakis/helios/internal/worker"
	"github.com/mtzanidakis/helios/internal/workspace"
)

func testEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()

	dir := t.TempDir()
	db, err := store.New(config.StoreConfig{Path: filepath.Join(dir, "test.db")})
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ws, err := workspace.NewManager(config.WorkspaceConfig{BasePath: filepath.Join(dir, "workspaces")})
	if err != nil {
		t.Fatalf("init workspace: %v", err)
	}

	cfg := config.EngineConfig{
		MaxRetries:     2,
		BaseDelay:      time.Millisecond,
		MaxCorrections: 1,
		MaxIterations:  50,
	}
	table := routing.NewTable(routing.NewHeuristics(config.RoutingConfig{
		FullstackKeywords:  []string{"fullstack", "full-stack"},
		DeploymentKeywords: []string{"deploy", "docker"},
	}))

	// No provider configured: workers run on their deterministic fallbacks.
	return New(cfg, table, llm.NewHTTP(config.LLMConfig{}), db, ws, nil), db
}

func waitDone(t *testing.T, r *Run) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	select {
	case <-r.done:
	case <-ctx.Done():
		t.Fatal("run did not finish in time")
	}
}

// failingWorker always reports an exhausted retry budget.
type failingWorker struct {
	role state.Role
}

func (f *failingWorker) Role() state.Role { return f.role }
func (f *failingWorker) Execute(context.Context, *state.State) (*state.Update, error) {
	return nil, &retry.ExhaustedError{Op: string(f.role), Attempts: 2, Err: errors.New("boom")}
}
func (f *failingWorker) Validate(*state.Update) bool { return true }
func (f *failingWorker) Status() worker.Status       { return worker.StatusError }
func (f *failingWorker) Close() error                { return nil }

// blockingWorker parks until released, so tests can pause or stop mid-run.
type blockingWorker struct {
	role     state.Role
	started  chan struct{}
	release  chan struct{}
	delegate worker.Worker
}

func (b *blockingWorker) Role() state.Role { return b.role }
func (b *blockingWorker) Execute(ctx context.Context, view *state.State) (*state.Update, error) {
	select {
	case b.started <- struct{}{}:
	default:
	}
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b.delegate.Execute(ctx, view)
}
func (b *blockingWorker) Validate(u *state.Update) bool { return b.delegate.Validate(u) }
func (b *blockingWorker) Status() worker.Status         { return b.delegate.Status() }
func (b *blockingWorker) Close() error                  { return b.delegate.Close() }

func TestRunCompletesBackendPipeline(t *testing.T) {
	eng, db := testEngine(t)

	run, err := eng.Start(context.Background(), "invoices", "A REST API with a database for invoices")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, run)

	if run.Status() != StatusCompleted {
		t.Fatalf("expected completed, got %s (err: %v)", run.Status(), run.Err())
	}

	snap := run.Snapshot()
	if !snap.Completed || snap.FinalOutput == "" {
		t.Error("expected completed state with final output")
	}
	if snap.ActiveRole != state.RoleNone {
		t.Errorf("completed run should have no active role, got %s", snap.ActiveRole)
	}
	if _, ok := snap.Artifacts["README.md"]; !ok {
		t.Error("expected README artifact")
	}
	if _, ok := snap.Artifacts["qa/test-report.md"]; !ok {
		t.Error("expected test report artifact")
	}

	// Handoff chain follows the routing table
	wantChain := []state.Role{
		state.RoleTaskDecomposer,
		state.RoleBackendEngineer,
		state.RoleQAEngineer,
		state.RoleCodeReviewer,
		state.RoleDocumentationWriter,
	}
	if len(snap.Handoffs) != len(wantChain) {
		t.Fatalf("expected %d handoffs, got %d", len(wantChain), len(snap.Handoffs))
	}
	for i, want := range wantChain {
		if snap.Handoffs[i].To != want {
			t.Errorf("handoff %d: expected %s, got %s", i, want, snap.Handoffs[i].To)
		}
	}

	// Persisted records agree with the in-memory result
	p, err := db.GetProject(run.ID)
	if err != nil || p == nil {
		t.Fatalf("get project: %v", err)
	}
	if p.Status != "completed" {
		t.Errorf("expected persisted status completed, got %s", p.Status)
	}
	entries, err := db.ListRunLog(run.ID)
	if err != nil {
		t.Fatalf("list run log: %v", err)
	}
	if len(entries) == 0 {
		t.Error("expected run log entries")
	}
	for _, e := range entries {
		if !e.Success {
			t.Errorf("unexpected failed entry for %s: %s", e.Role, e.Error)
		}
	}
	artifacts, err := db.ListLatestArtifacts(run.ID)
	if err != nil || len(artifacts) == 0 {
		t.Errorf("expected persisted artifacts, got %d (err %v)", len(artifacts), err)
	}
}

func TestRunFullstackPipelineSkipsFrontend(t *testing.T) {
	eng, _ := testEngine(t)

	run, err := eng.Start(context.Background(), "shop", "A fullstack shop application")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, run)

	if run.Status() != StatusCompleted {
		t.Fatalf("expected completed, got %s", run.Status())
	}
	snap := run.Snapshot()
	if snap.Handoffs[1].To != state.RoleFullstackEngineer {
		t.Errorf("expected fullstack engineer after decomposer, got %s", snap.Handoffs[1].To)
	}
}

func TestRunRecoversThroughAlternateRole(t *testing.T) {
	eng, db := testEngine(t)
	base := eng.newWorkers
	eng.newWorkers = func() worker.Set {
		set := base()
		set[state.RoleBackendEngineer] = &failingWorker{role: state.RoleBackendEngineer}
		return set
	}

	run, err := eng.Start(context.Background(), "api", "A REST API")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, run)

	if run.Status() != StatusCompleted {
		t.Fatalf("expected recovery to complete the run, got %s (err %v)", run.Status(), run.Err())
	}

	snap := run.Snapshot()
	foundRecovery := false
	for _, h := range snap.Handoffs {
		if h.From == state.RoleBackendEngineer && h.To == state.RoleFullstackEngineer {
			foundRecovery = true
		}
	}
	if !foundRecovery {
		t.Error("expected a recovery handoff to the fullstack engineer")
	}

	records, err := db.ListRunErrors(run.ID)
	if err != nil {
		t.Fatalf("list run errors: %v", err)
	}
	if len(records) != 1 || records[0].Kind != state.ErrRetryExhausted || records[0].Terminal {
		t.Errorf("expected one non-terminal retry_exhausted record, got %+v", records)
	}
}

func TestRunFailsTerminallyWithoutAlternate(t *testing.T) {
	eng, db := testEngine(t)
	base := eng.newWorkers
	eng.newWorkers = func() worker.Set {
		set := base()
		set[state.RoleBackendEngineer] = &failingWorker{role: state.RoleBackendEngineer}
		delete(set, state.RoleFullstackEngineer)
		return set
	}

	run, err := eng.Start(context.Background(), "api", "A REST API")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, run)

	if run.Status() != StatusFailed {
		t.Fatalf("expected failed, got %s", run.Status())
	}
	if run.Err() == nil {
		t.Fatal("expected terminal error")
	}

	snap := run.Snapshot()
	if !snap.Completed || snap.ActiveRole != state.RoleNone {
		t.Errorf("failed run should end completed with no active role, got completed=%v role=%s",
			snap.Completed, snap.ActiveRole)
	}

	records, err := db.ListRunErrors(run.ID)
	if err != nil {
		t.Fatalf("list run errors: %v", err)
	}
	var kinds []string
	for _, rec := range records {
		kinds = append(kinds, string(rec.Kind))
	}
	if len(records) != 2 || records[0].Kind != state.ErrRetryExhausted || records[1].Kind != state.ErrTerminalRunFailure {
		t.Errorf("expected retry_exhausted then terminal_run_failure, got %v", kinds)
	}

	p, _ := db.GetProject(run.ID)
	if p.Status != "failed" {
		t.Errorf("expected persisted status failed, got %s", p.Status)
	}
}

func TestRunFailsOnUnregisteredRole(t *testing.T) {
	eng, _ := testEngine(t)
	base := eng.newWorkers
	eng.newWorkers = func() worker.Set {
		set := base()
		delete(set, state.RoleAnalyzer)
		return set
	}

	run, err := eng.Start(context.Background(), "api", "A REST API")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, run)

	if run.Status() != StatusFailed {
		t.Fatalf("expected failed, got %s", run.Status())
	}
	if !strings.Contains(run.Err().Error(), string(state.ErrRoleNotFound)) {
		t.Errorf("expected role_not_found error, got %v", run.Err())
	}
}

func TestRunMaxIterationsGuard(t *testing.T) {
	eng, _ := testEngine(t)
	eng.cfg.MaxIterations = 2

	run, err := eng.Start(context.Background(), "api", "A REST API")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, run)

	if run.Status() != StatusFailed {
		t.Fatalf("expected failed, got %s", run.Status())
	}
	if !strings.Contains(run.Err().Error(), "iterations") {
		t.Errorf("expected iteration guard message, got %v", run.Err())
	}
}

func TestRunPauseAndResume(t *testing.T) {
	eng, _ := testEngine(t)
	blocker := &blockingWorker{
		role:    state.RoleAnalyzer,
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	base := eng.newWorkers
	eng.newWorkers = func() worker.Set {
		set := base()
		blocker.delegate = set[state.RoleAnalyzer]
		set[state.RoleAnalyzer] = blocker
		return set
	}

	run, err := eng.Start(context.Background(), "api", "A REST API")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	<-blocker.started
	// Pause lands mid-worker; the loop must finish the analyzer first
	if err := run.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if run.Status() != StatusRunning {
		t.Errorf("expected still running before the boundary, got %s", run.Status())
	}
	close(blocker.release)

	deadline := time.Now().Add(5 * time.Second)
	for run.Status() != StatusPaused {
		if time.Now().After(deadline) {
			t.Fatal("run never paused")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Work done before the pause is preserved
	if len(run.Snapshot().Handoffs) == 0 {
		t.Error("expected the analyzer handoff before pausing")
	}

	if err := run.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	waitDone(t, run)
	if run.Status() != StatusCompleted {
		t.Fatalf("expected completed after resume, got %s (err %v)", run.Status(), run.Err())
	}
}

func TestRunStop(t *testing.T) {
	eng, db := testEngine(t)
	blocker := &blockingWorker{
		role:    state.RoleAnalyzer,
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	base := eng.newWorkers
	eng.newWorkers = func() worker.Set {
		set := base()
		blocker.delegate = set[state.RoleAnalyzer]
		set[state.RoleAnalyzer] = blocker
		return set
	}

	run, err := eng.Start(context.Background(), "api", "A REST API")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	<-blocker.started
	run.Stop()
	waitDone(t, run)

	if run.Status() != StatusFailed {
		t.Fatalf("expected failed after stop, got %s", run.Status())
	}
	p, _ := db.GetProject(run.ID)
	if p.Status != "failed" {
		t.Errorf("expected persisted status failed, got %s", p.Status)
	}
}

func TestEngineTracksRuns(t *testing.T) {
	eng, _ := testEngine(t)

	run, err := eng.Start(context.Background(), "api", "A REST API")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	got, ok := eng.Run(run.ID)
	if !ok || got != run {
		t.Error("run not tracked by project id")
	}
	if len(eng.Runs()) != 1 {
		t.Errorf("expected 1 tracked run, got %d", len(eng.Runs()))
	}
	waitDone(t, run)
}

func TestStartRejectsEmptyName(t *testing.T) {
	eng, _ := testEngine(t)
	if _, err := eng.Start(context.Background(), "", "desc"); err == nil {
		t.Fatal("expected an error for an empty name")
	}
}

// eventRecorder captures published events in order, standing in for the bus.
type eventRecorder struct {
	mu     sync.Mutex
	events []map[string]any
}

func (r *eventRecorder) PublishJSON(topic string, v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := v.(map[string]any); ok {
		r.events = append(r.events, m)
	}
	return nil
}

func (r *eventRecorder) snapshot() []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]map[string]any(nil), r.events...)
}

func TestRunPublishesLifecycleEvents(t *testing.T) {
	eng, _ := testEngine(t)
	rec := &eventRecorder{}
	eng.events = rec

	run, err := eng.Start(context.Background(), "api", "A REST API")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, run)

	events := rec.snapshot()
	if len(events) == 0 {
		t.Fatal("no events published")
	}

	types := make([]string, len(events))
	for i, e := range events {
		types[i], _ = e["type"].(string)
		if id, _ := e["project_id"].(string); id != run.ID {
			t.Errorf("event %d carries project_id %q, want %q", i, id, run.ID)
		}
	}

	if types[0] != "run_started" {
		t.Errorf("expected run_started first, got %v", types)
	}
	if types[len(types)-1] != "run_completed" {
		t.Errorf("expected run_completed last, got %v", types)
	}

	var starting, completed int
	for i, typ := range types {
		switch typ {
		case "worker_starting":
			starting++
		case "worker_completed":
			completed++
			if i+1 >= len(types) || types[i+1] != "state_updated" {
				t.Errorf("worker_completed at %d not followed by state_updated: %v", i, types)
			}
			data, _ := events[i]["data"].(map[string]any)
			if role, _ := data["role"].(string); role == "" {
				t.Errorf("worker_completed at %d missing role: %v", i, events[i])
			}
			if _, ok := data["duration_ms"]; !ok {
				t.Errorf("worker_completed at %d missing duration: %v", i, events[i])
			}
		}
	}
	if starting == 0 || starting != completed {
		t.Errorf("expected every worker_starting to pair with a worker_completed, got %d/%d", starting, completed)
	}
}
