package worker

import (
	"testing"

	"github.com/mtzanidakis/helios/internal/state"
)

func TestParseRole(t *testing.T) {
	cases := []struct {
		in   string
		want state.Role
		ok   bool
	}{
		{"backend_engineer", state.RoleBackendEngineer, true},
		{"backend", state.RoleBackendEngineer, true},
		{"Full-Stack_Engineer", state.RoleFullstackEngineer, true},
		{" qa ", state.RoleQAEngineer, true},
		{"planner", state.RoleTaskDecomposer, true},
		{"docs", state.RoleDocumentationWriter, true},
		{"wizard", state.RoleNone, false},
		{"", state.RoleNone, false},
	}
	for _, tc := range cases {
		got, ok := parseRole(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("parseRole(%q) = (%s, %v), want (%s, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestSlug(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Implement core service", "implement-core-service"},
		{"User  Interface", "user-interface"},
		{"API / v2", "api-v2"},
		{"!!!", "task"},
		{"already-slugged", "already-slugged"},
	}
	for _, tc := range cases {
		if got := slug(tc.in); got != tc.want {
			t.Errorf("slug(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFirstSentence(t *testing.T) {
	if got := firstSentence("One. Two. Three."); got != "One." {
		t.Errorf("got %q", got)
	}
	if got := firstSentence("no terminator here"); got != "no terminator here" {
		t.Errorf("got %q", got)
	}
}

func TestTasksForSkipsTerminal(t *testing.T) {
	view := newView("x")
	view.Tasks = []state.Task{
		{ID: "t1", AssignedRole: state.RoleBackendEngineer, Status: state.TaskPending},
		{ID: "t2", AssignedRole: state.RoleBackendEngineer, Status: state.TaskCompleted},
		{ID: "t3", AssignedRole: state.RoleBackendEngineer, Status: state.TaskFailed},
		{ID: "t4", AssignedRole: state.RoleFrontendEngineer, Status: state.TaskPending},
	}

	got := tasksFor(view, state.RoleBackendEngineer)
	if len(got) != 1 || got[0].ID != "t1" {
		t.Errorf("expected only the pending backend task, got %v", got)
	}

	both := tasksFor(view, state.RoleBackendEngineer, state.RoleFrontendEngineer)
	if len(both) != 2 {
		t.Errorf("expected two claimable tasks, got %d", len(both))
	}
}
