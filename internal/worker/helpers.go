package worker

import (
	"strings"
	"time"

	"github.com/mtzanidakis/helios/internal/state"
)

func now() time.Time { return time.Now().UTC() }

func note(from, to state.Role, kind, content string) state.Message {
	return state.Message{From: from, To: to, Kind: kind, Content: content, At: now()}
}

// parseRole maps loose role names coming back from the provider onto the
// canonical role set.
func parseRole(s string) (state.Role, bool) {
	switch strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, "-", "_"))) {
	case "analyzer", "project_analyzer":
		return state.RoleAnalyzer, true
	case "task_decomposer", "decomposer", "planner":
		return state.RoleTaskDecomposer, true
	case "frontend", "frontend_engineer":
		return state.RoleFrontendEngineer, true
	case "backend", "backend_engineer":
		return state.RoleBackendEngineer, true
	case "fullstack", "fullstack_engineer", "full_stack_engineer":
		return state.RoleFullstackEngineer, true
	case "devops", "devops_engineer":
		return state.RoleDevOpsEngineer, true
	case "qa", "qa_engineer", "tester":
		return state.RoleQAEngineer, true
	case "code_reviewer", "reviewer":
		return state.RoleCodeReviewer, true
	case "documentation_writer", "docs", "technical_writer":
		return state.RoleDocumentationWriter, true
	}
	return state.RoleNone, false
}

// slug turns a task title into a stable file-name fragment, so re-entering a
// role after a failed review rewrites the same artifact keys.
func slug(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_', r == '/':
			b.WriteByte('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	for strings.Contains(out, "--") {
		out = strings.ReplaceAll(out, "--", "-")
	}
	if out == "" {
		out = "task"
	}
	return out
}

// tasksFor returns the non-terminal tasks assigned to any of the given roles.
func tasksFor(view *state.State, roles ...state.Role) []state.Task {
	var out []state.Task
	for _, t := range view.Tasks {
		if t.Status == state.TaskCompleted || t.Status == state.TaskFailed {
			continue
		}
		for _, r := range roles {
			if t.AssignedRole == r {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	for _, sep := range []string{". ", ".\n", "!", "?"} {
		if idx := strings.Index(text, sep); idx > 0 {
			return text[:idx+1]
		}
	}
	if len(text) > 200 {
		return text[:200]
	}
	return text
}
