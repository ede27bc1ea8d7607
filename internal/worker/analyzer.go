package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mtzanidakis/helios/internal/llm"
	"github.com/mtzanidakis/helios/internal/state"
)

const analyzerSystem = "You analyze software project descriptions. Identify the summary and the technical components the project needs."

// NewAnalyzer builds the worker that turns the raw project description into a
// structured analysis stored in its role memory.
func NewAnalyzer(client llm.Client, opts Options) Worker {
	b := newBase(state.RoleAnalyzer, client, opts)
	b.produce = func(ctx context.Context, view *state.State) (*state.Update, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var analysis struct {
			Summary    string   `json:"summary"`
			Components []string `json:"components"`
		}

		prompt := fmt.Sprintf("Analyze this project description and list its technical components:\n\n%s", view.Description)
		err := b.structured(ctx, prompt, analyzerSystem, &analysis, func() bool {
			return analysis.Summary != ""
		})
		if err != nil {
			slog.Debug("analysis generation failed, using fallback", "project", view.ProjectID, "error", err)
			analysis.Summary = firstSentence(view.Description)
			analysis.Components = inferComponents(view.Description)
		}

		return &state.Update{
			RoleMemory: map[state.Role]state.RoleMemory{
				state.RoleAnalyzer: {
					"summary":    analysis.Summary,
					"components": analysis.Components,
				},
			},
			Messages: []state.Message{
				note(state.RoleAnalyzer, state.RoleTaskDecomposer, "analysis", analysis.Summary),
			},
		}, nil
	}
	return b
}

// inferComponents is the deterministic fallback analysis: a keyword scan over
// the description.
func inferComponents(description string) []string {
	desc := strings.ToLower(description)
	var components []string
	if strings.Contains(desc, "frontend") || strings.Contains(desc, "ui") || strings.Contains(desc, "web") {
		components = append(components, "frontend")
	}
	if strings.Contains(desc, "backend") || strings.Contains(desc, "api") || strings.Contains(desc, "server") || strings.Contains(desc, "database") {
		components = append(components, "backend")
	}
	if strings.Contains(desc, "deploy") || strings.Contains(desc, "docker") || strings.Contains(desc, "kubernetes") {
		components = append(components, "infrastructure")
	}
	if len(components) == 0 {
		components = []string{"backend"}
	}
	return components
}
