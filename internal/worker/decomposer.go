package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/mtzanidakis/helios/internal/llm"
	"github.com/mtzanidakis/helios/internal/state"
)

const decomposerSystem = "You break software projects into ordered engineering tasks. Assign each task to one of: frontend_engineer, backend_engineer, fullstack_engineer, devops_engineer, qa_engineer, code_reviewer, documentation_writer."

// NewTaskDecomposer builds the worker that turns the analysis into the task
// plan. Tasks are created here once and only mutated (status) afterwards.
func NewTaskDecomposer(client llm.Client, opts Options) Worker {
	b := newBase(state.RoleTaskDecomposer, client, opts)
	b.produce = func(ctx context.Context, view *state.State) (*state.Update, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var plan struct {
			Tasks []struct {
				Title       string `json:"title"`
				Description string `json:"description"`
				Role        string `json:"role"`
			} `json:"tasks"`
		}

		var sb strings.Builder
		sb.WriteString("Decompose this project into tasks:\n\n")
		sb.WriteString(view.Description)
		if mem, ok := view.RoleMemory[state.RoleAnalyzer]; ok {
			if summary, ok := mem["summary"].(string); ok && summary != "" {
				fmt.Fprintf(&sb, "\n\nAnalysis: %s", summary)
			}
		}

		tasks := make([]state.Task, 0)
		err := b.structured(ctx, sb.String(), decomposerSystem, &plan, func() bool {
			if len(plan.Tasks) == 0 {
				return false
			}
			for _, t := range plan.Tasks {
				if t.Title == "" {
					return false
				}
				if _, ok := parseRole(t.Role); !ok {
					return false
				}
			}
			return true
		})
		if err == nil {
			var prev string
			for _, t := range plan.Tasks {
				role, _ := parseRole(t.Role)
				task := newTask(t.Title, t.Description, role, prev)
				tasks = append(tasks, task)
				prev = task.ID
			}
		} else {
			slog.Debug("task decomposition failed, using fallback plan", "project", view.ProjectID, "error", err)
			tasks = fallbackPlan(view)
		}

		return &state.Update{
			Tasks: tasks,
			Messages: []state.Message{
				note(state.RoleTaskDecomposer, state.RoleBackendEngineer, "plan",
					fmt.Sprintf("created %d tasks", len(tasks))),
			},
			RoleMemory: map[state.Role]state.RoleMemory{
				state.RoleTaskDecomposer: {"task_count": len(tasks)},
			},
		}, nil
	}
	return b
}

func newTask(title, description string, role state.Role, dependsOn string) state.Task {
	t := state.Task{
		ID:           uuid.NewString(),
		Title:        title,
		Description:  description,
		AssignedRole: role,
		Status:       state.TaskPending,
		CreatedAt:    now(),
	}
	if dependsOn != "" {
		t.DependsOn = []string{dependsOn}
	}
	return t
}

// fallbackPlan is the deterministic decomposition used when the provider is
// unavailable: a linear plan derived from the inferred components.
func fallbackPlan(view *state.State) []state.Task {
	components := inferComponents(view.Description)
	hasFrontend := false
	for _, c := range components {
		if c == "frontend" {
			hasFrontend = true
		}
	}
	fullstack := strings.Contains(strings.ToLower(view.Description), "fullstack") ||
		strings.Contains(strings.ToLower(view.Description), "full-stack")

	var tasks []state.Task
	var prev string
	add := func(title, desc string, role state.Role) {
		t := newTask(title, desc, role, prev)
		tasks = append(tasks, t)
		prev = t.ID
	}

	implRole := state.RoleBackendEngineer
	if fullstack {
		implRole = state.RoleFullstackEngineer
	}

	add("Implement core service", "Build the primary backend service and data model.", implRole)
	if hasFrontend && !fullstack {
		add("Implement user interface", "Build the user-facing frontend.", state.RoleFrontendEngineer)
	}
	if strings.Contains(strings.ToLower(view.Description), "deploy") ||
		strings.Contains(strings.ToLower(view.Description), "docker") ||
		strings.Contains(strings.ToLower(view.Description), "kubernetes") {
		add("Prepare deployment", "Containerize the service and define the pipeline.", state.RoleDevOpsEngineer)
	}
	add("Write test suite", "Cover the implemented behaviour with tests.", state.RoleQAEngineer)
	add("Review implementation", "Review code quality and correctness.", state.RoleCodeReviewer)
	add("Write documentation", "Document setup and usage.", state.RoleDocumentationWriter)

	return tasks
}
