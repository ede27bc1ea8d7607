package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mtzanidakis/helios/internal/config"
	"github.com/mtzanidakis/helios/internal/state"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestProjectLifecycle(t *testing.T) {
	s := testStore(t)

	p := &Project{ID: "p1", Name: "demo", Description: "a demo", Status: "running"}
	if err := s.SaveProject(p); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetProject("p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Name != "demo" || got.Status != "running" {
		t.Fatalf("unexpected project: %+v", got)
	}
	if got.CompletedAt != nil {
		t.Error("fresh project should have no completion time")
	}

	if err := s.UpdateProjectStatus("p1", "completed", "all done"); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, _ = s.GetProject("p1")
	if got.Status != "completed" || got.FinalOutput != "all done" {
		t.Errorf("unexpected updated project: %+v", got)
	}
	if got.CompletedAt == nil {
		t.Error("terminal status should set completion time")
	}

	missing, err := s.GetProject("nope")
	if err != nil || missing != nil {
		t.Errorf("expected nil for missing project, got %+v (err %v)", missing, err)
	}

	projects, err := s.ListProjects()
	if err != nil || len(projects) != 1 {
		t.Errorf("expected 1 project, got %d (err %v)", len(projects), err)
	}
}

func TestTaskUpsert(t *testing.T) {
	s := testStore(t)
	_ = s.SaveProject(&Project{ID: "p1", Name: "demo", Description: "d", Status: "running"})

	task := state.Task{
		ID:           "t1",
		Title:        "Build API",
		Description:  "the backend",
		AssignedRole: state.RoleBackendEngineer,
		Status:       state.TaskPending,
		DependsOn:    []string{"t0"},
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.SaveTask("p1", task); err != nil {
		t.Fatalf("save: %v", err)
	}

	task.Status = state.TaskCompleted
	task.ArtifactIDs = []string{"a1"}
	if err := s.SaveTask("p1", task); err != nil {
		t.Fatalf("re-save: %v", err)
	}

	tasks, err := s.ListProjectTasks("p1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected upsert, got %d rows", len(tasks))
	}
	got := tasks[0]
	if got.Status != state.TaskCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}
	if len(got.DependsOn) != 1 || got.DependsOn[0] != "t0" {
		t.Errorf("depends_on lost: %v", got.DependsOn)
	}
	if len(got.ArtifactIDs) != 1 || got.ArtifactIDs[0] != "a1" {
		t.Errorf("artifact_ids lost: %v", got.ArtifactIDs)
	}
}

func TestArtifactVersioning(t *testing.T) {
	s := testStore(t)
	_ = s.SaveProject(&Project{ID: "p1", Name: "demo", Description: "d", Status: "running"})

	now := time.Now().UTC()
	for i, content := range []string{"v1", "v2", "v3"} {
		a := state.Artifact{
			ID:        content,
			Key:       "backend/api.md",
			Content:   content,
			Version:   i + 1,
			CreatedBy: state.RoleBackendEngineer,
			CreatedAt: now,
		}
		if err := s.SaveArtifact("p1", a); err != nil {
			t.Fatalf("save version %d: %v", i+1, err)
		}
	}
	_ = s.SaveArtifact("p1", state.Artifact{
		ID: "other", Key: "frontend/ui.md", Content: "ui", Version: 1,
		CreatedBy: state.RoleFrontendEngineer, CreatedAt: now,
	})

	latest, err := s.ListLatestArtifacts("p1")
	if err != nil {
		t.Fatalf("list latest: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(latest))
	}
	for _, a := range latest {
		if a.Key == "backend/api.md" && (a.Version != 3 || a.Content != "v3") {
			t.Errorf("expected latest v3, got v%d %q", a.Version, a.Content)
		}
	}

	versions, err := s.ListArtifactVersions("p1", "backend/api.md")
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(versions))
	}
	for i, a := range versions {
		if a.Version != i+1 {
			t.Errorf("versions out of order: %v", versions)
		}
	}
}

func TestRunLogAndErrors(t *testing.T) {
	s := testStore(t)
	_ = s.SaveProject(&Project{ID: "p1", Name: "demo", Description: "d", Status: "running"})

	now := time.Now().UTC()
	entries := []RunLogEntry{
		{ProjectID: "p1", Role: state.RoleAnalyzer, StartedAt: now, Duration: 120 * time.Millisecond, Success: true},
		{ProjectID: "p1", Role: state.RoleBackendEngineer, StartedAt: now, Duration: time.Second, Success: false, Error: "boom"},
	}
	for _, e := range entries {
		if err := s.AppendRunLog("p1", e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := s.ListRunLog("p1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Role != state.RoleAnalyzer || !got[0].Success {
		t.Errorf("unexpected first entry: %+v", got[0])
	}
	if got[1].Error != "boom" || got[1].Duration != time.Second {
		t.Errorf("unexpected second entry: %+v", got[1])
	}

	rec := state.ErrorRecord{
		Role: state.RoleBackendEngineer, Kind: state.ErrRetryExhausted,
		Message: "boom", Attempts: 3, At: now,
	}
	if err := s.AppendRunError("p1", rec); err != nil {
		t.Fatalf("append error: %v", err)
	}
	records, err := s.ListRunErrors("p1")
	if err != nil || len(records) != 1 {
		t.Fatalf("list errors: %v (%d)", err, len(records))
	}
	if records[0].Kind != state.ErrRetryExhausted || records[0].Attempts != 3 {
		t.Errorf("unexpected record: %+v", records[0])
	}
}

func TestHandoffs(t *testing.T) {
	s := testStore(t)
	_ = s.SaveProject(&Project{ID: "p1", Name: "demo", Description: "d", Status: "running"})

	now := time.Now().UTC()
	h := state.Handoff{From: state.RoleAnalyzer, To: state.RoleTaskDecomposer, Reason: "analysis complete", At: now}
	if err := s.AppendHandoff("p1", h); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := s.ListHandoffs("p1")
	if err != nil || len(got) != 1 {
		t.Fatalf("list: %v (%d)", err, len(got))
	}
	if got[0].From != state.RoleAnalyzer || got[0].To != state.RoleTaskDecomposer {
		t.Errorf("unexpected handoff: %+v", got[0])
	}
}

func TestSecrets(t *testing.T) {
	s := testStore(t)

	if err := s.SaveSecret("llm_api_key", []byte("sealed-1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SaveSecret("llm_api_key", []byte("sealed-2")); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.GetSecret("llm_api_key")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "sealed-2" {
		t.Errorf("expected upserted value, got %q", got)
	}

	names, err := s.ListSecretNames()
	if err != nil || len(names) != 1 || names[0] != "llm_api_key" {
		t.Errorf("unexpected names: %v (err %v)", names, err)
	}

	if err := s.DeleteSecret("llm_api_key"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err = s.GetSecret("llm_api_key")
	if err != nil || got != nil {
		t.Errorf("expected nil after delete, got %q (err %v)", got, err)
	}
}

func TestSchedules(t *testing.T) {
	s := testStore(t)

	next := time.Now().UTC().Add(-time.Minute) // already due
	sc := &Schedule{
		ID: "s1", Name: "nightly", Description: "rebuild the demo",
		Cron: "0 2 * * *", Status: "active", NextRunAt: &next,
	}
	if err := s.SaveSchedule(sc); err != nil {
		t.Fatalf("save: %v", err)
	}

	due, err := s.GetDueSchedules(time.Now().UTC())
	if err != nil || len(due) != 1 {
		t.Fatalf("expected 1 due schedule, got %d (err %v)", len(due), err)
	}

	future := time.Now().UTC().Add(time.Hour)
	if err := s.UpdateScheduleRun("s1", "started", &future); err != nil {
		t.Fatalf("update run: %v", err)
	}
	due, _ = s.GetDueSchedules(time.Now().UTC())
	if len(due) != 0 {
		t.Errorf("schedule still due after advancing next_run_at")
	}

	got, err := s.GetSchedule("s1")
	if err != nil || got == nil {
		t.Fatalf("get: %v", err)
	}
	if got.LastStatus != "started" || got.LastRunAt == nil {
		t.Errorf("last run not recorded: %+v", got)
	}

	// Disabled schedules never come due
	got.Status = "disabled"
	past := time.Now().UTC().Add(-time.Hour)
	got.NextRunAt = &past
	_ = s.SaveSchedule(got)
	due, _ = s.GetDueSchedules(time.Now().UTC())
	if len(due) != 0 {
		t.Error("disabled schedule reported as due")
	}

	if err := s.DeleteSchedule("s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	schedules, _ := s.ListSchedules()
	if len(schedules) != 0 {
		t.Errorf("expected empty list after delete, got %d", len(schedules))
	}
}
