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

// engineerSpec parameterizes the three implementation roles and devops, which
// share one execution shape: pick up assigned tasks, emit one artifact per
// task, and report the tasks completed.
type engineerSpec struct {
	role    state.Role
	claims  []state.Role // task assignments this role picks up
	dir     string
	system  string
	defTask string // title of the artifact produced when no task is assigned
}

var engineerSpecs = map[state.Role]engineerSpec{
	state.RoleFrontendEngineer: {
		role:    state.RoleFrontendEngineer,
		claims:  []state.Role{state.RoleFrontendEngineer},
		dir:     "frontend",
		system:  "You implement user interfaces. Produce the file content for the requested task.",
		defTask: "User interface",
	},
	state.RoleBackendEngineer: {
		role:    state.RoleBackendEngineer,
		claims:  []state.Role{state.RoleBackendEngineer},
		dir:     "backend",
		system:  "You implement backend services. Produce the file content for the requested task.",
		defTask: "Core service",
	},
	state.RoleFullstackEngineer: {
		role:    state.RoleFullstackEngineer,
		claims:  []state.Role{state.RoleFullstackEngineer, state.RoleFrontendEngineer, state.RoleBackendEngineer},
		dir:     "app",
		system:  "You implement complete applications, frontend and backend. Produce the file content for the requested task.",
		defTask: "Application",
	},
	state.RoleDevOpsEngineer: {
		role:    state.RoleDevOpsEngineer,
		claims:  []state.Role{state.RoleDevOpsEngineer},
		dir:     "deploy",
		system:  "You prepare deployment configuration. Produce the file content for the requested task.",
		defTask: "Deployment configuration",
	},
}

// NewEngineer builds one of the implementation workers (frontend, backend,
// fullstack, devops).
func NewEngineer(role state.Role, client llm.Client, opts Options) Worker {
	spec, ok := engineerSpecs[role]
	if !ok {
		panic(fmt.Sprintf("worker: no engineer spec for role %s", role))
	}

	b := newBase(role, client, opts)
	b.produce = func(ctx context.Context, view *state.State) (*state.Update, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tasks := tasksFor(view, spec.claims...)
		if len(tasks) == 0 {
			// Recovery entry without a plan: still make progress.
			tasks = []state.Task{{Title: spec.defTask, Description: view.Description}}
		}

		upd := &state.Update{
			TaskStatus:    make(map[string]state.TaskStatus),
			TaskArtifacts: make(map[string][]string),
		}

		for _, task := range tasks {
			key := fmt.Sprintf("%s/%s.md", spec.dir, slug(task.Title))
			content := b.generateContent(ctx, view, spec, task)
			artifact := state.Artifact{
				ID:        uuid.NewString(),
				Key:       key,
				Content:   content,
				CreatedBy: role,
				CreatedAt: now(),
			}
			upd.Artifacts = append(upd.Artifacts, artifact)
			if task.ID != "" {
				upd.TaskStatus[task.ID] = state.TaskCompleted
				upd.TaskArtifacts[task.ID] = append(upd.TaskArtifacts[task.ID], artifact.ID)
			}
		}

		upd.Messages = []state.Message{
			note(role, state.RoleQAEngineer, "implementation",
				fmt.Sprintf("completed %d task(s), wrote %d artifact(s)", len(tasks), len(upd.Artifacts))),
		}
		upd.RoleMemory = map[state.Role]state.RoleMemory{
			role: {
				"last_task":       tasks[len(tasks)-1].Title,
				"artifacts_count": len(upd.Artifacts),
			},
		}
		return upd, nil
	}
	return b
}

func (b *Base) generateContent(ctx context.Context, view *state.State, spec engineerSpec, task state.Task) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Project: %s\n\n%s\n\nTask: %s\n%s\n", view.Name, view.Description, task.Title, task.Description)
	if passed, issueType, ok := view.ReviewOutcome(); ok && !passed {
		fmt.Fprintf(&sb, "\nA prior review failed with %s issues. Address them in this revision.\n", issueType)
	}

	content, err := b.client.Generate(ctx, sb.String(), spec.system)
	if err != nil || strings.TrimSpace(content) == "" {
		if err != nil && err != llm.ErrNotConfigured {
			slog.Debug("content generation failed, using scaffold", "role", spec.role, "task", task.Title, "error", err)
		}
		return scaffold(view, spec, task)
	}
	return content
}

// scaffold is the deterministic fallback artifact body.
func scaffold(view *state.State, spec engineerSpec, task state.Task) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", task.Title)
	fmt.Fprintf(&sb, "Generated by %s for project %q.\n\n", spec.role, view.Name)
	if task.Description != "" {
		fmt.Fprintf(&sb, "%s\n\n", task.Description)
	}
	sb.WriteString("## Outline\n\n- structure the module\n- implement the behaviour\n- wire it into the project\n")
	return sb.String()
}
