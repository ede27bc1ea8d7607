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

const docSystem = "You write project documentation. Produce a README for the described project and its artifacts."

// NewDocumentationWriter builds the final worker in the pipeline.
func NewDocumentationWriter(client llm.Client, opts Options) Worker {
	b := newBase(state.RoleDocumentationWriter, client, opts)
	b.produce = func(ctx context.Context, view *state.State) (*state.Update, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		keys := artifactKeys(view)

		var sb strings.Builder
		fmt.Fprintf(&sb, "Write a README for project %q.\n\nDescription: %s\n\nFiles:\n", view.Name, view.Description)
		for _, k := range keys {
			fmt.Fprintf(&sb, "- %s\n", k)
		}

		readme, err := b.client.Generate(ctx, sb.String(), docSystem)
		if err != nil || strings.TrimSpace(readme) == "" {
			if err != nil && err != llm.ErrNotConfigured {
				slog.Debug("readme generation failed, using fallback", "project", view.ProjectID, "error", err)
			}
			readme = fallbackReadme(view, keys)
		}

		upd := &state.Update{
			Artifacts: []state.Artifact{{
				ID:        uuid.NewString(),
				Key:       "README.md",
				Content:   readme,
				CreatedBy: state.RoleDocumentationWriter,
				CreatedAt: now(),
			}},
			Messages: []state.Message{
				note(state.RoleDocumentationWriter, state.RoleNone, "documentation", "documentation complete"),
			},
			TaskStatus: make(map[string]state.TaskStatus),
		}
		for _, t := range tasksFor(view, state.RoleDocumentationWriter) {
			if t.ID != "" {
				upd.TaskStatus[t.ID] = state.TaskCompleted
			}
		}
		return upd, nil
	}
	return b
}

func fallbackReadme(view *state.State, keys []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n%s\n\n## Project files\n\n", view.Name, view.Description)
	for _, k := range keys {
		fmt.Fprintf(&sb, "- `%s`\n", k)
	}
	completed, total := view.TaskCounts()
	fmt.Fprintf(&sb, "\n## Status\n\n%d of %d tasks completed.\n", completed, total)
	return sb.String()
}
