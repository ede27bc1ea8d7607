package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mtzanidakis/helios/internal/llm"
	"github.com/mtzanidakis/helios/internal/state"
)

const reviewerSystem = "You review generated project artifacts. Report whether the implementation passes and, if not, whether the issues are frontend, backend, or general."

// maxReviewRounds bounds the review-fix loop: after this many failed reviews
// the reviewer passes the run through rather than cycling forever.
const maxReviewRounds = 3

// NewCodeReviewer builds the worker whose role memory drives the
// review-failure routing branch.
func NewCodeReviewer(client llm.Client, opts Options) Worker {
	b := newBase(state.RoleCodeReviewer, client, opts)
	b.produce = func(ctx context.Context, view *state.State) (*state.Update, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rounds := reviewRounds(view) + 1

		var review struct {
			Passed    bool   `json:"passed"`
			IssueType string `json:"issue_type"`
			Notes     string `json:"notes"`
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Review the artifacts of project %q:\n\n", view.Name)
		for _, k := range artifactKeys(view) {
			a := view.Artifacts[k]
			fmt.Fprintf(&sb, "### %s (v%d, by %s)\n\n%s\n\n", a.Key, a.Version, a.CreatedBy, truncateContent(a.Content, 2000))
		}

		err := b.structured(ctx, sb.String(), reviewerSystem, &review, func() bool {
			switch review.IssueType {
			case "", "frontend", "backend", "general":
				return true
			}
			return false
		})
		if err != nil {
			slog.Debug("review generation failed, passing by default", "project", view.ProjectID, "error", err)
			review.Passed = true
			review.IssueType = ""
			review.Notes = "automated review unavailable; artifacts accepted"
		}

		if !review.Passed && rounds >= maxReviewRounds {
			slog.Info("review round limit reached, accepting artifacts", "project", view.ProjectID, "rounds", rounds)
			review.Passed = true
			review.Notes += " (round limit reached)"
		}

		verdict := "passed"
		if !review.Passed {
			verdict = "failed: " + review.IssueType
		}

		upd := &state.Update{
			RoleMemory: map[state.Role]state.RoleMemory{
				state.RoleCodeReviewer: {
					state.MemReviewPassed: review.Passed,
					state.MemIssueType:    review.IssueType,
					"rounds":              rounds,
					"notes":               review.Notes,
				},
			},
			Messages: []state.Message{
				note(state.RoleCodeReviewer, state.RoleDocumentationWriter, "review", "review "+verdict),
			},
			TaskStatus: make(map[string]state.TaskStatus),
		}
		if review.Passed {
			for _, t := range tasksFor(view, state.RoleCodeReviewer) {
				if t.ID != "" {
					upd.TaskStatus[t.ID] = state.TaskCompleted
				}
			}
		}
		return upd, nil
	}
	return b
}

func reviewRounds(view *state.State) int {
	mem, ok := view.RoleMemory[state.RoleCodeReviewer]
	if !ok {
		return 0
	}
	switch v := mem["rounds"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func truncateContent(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n... (truncated)"
}
