package routing

import (
	"strings"

	"github.com/mtzanidakis/helios/internal/config"
)

// Heuristics holds the keyword predicates used for routing decisions over the
// immutable project description. The lists come from configuration so the
// policy can be replaced without touching the state machine.
type Heuristics struct {
	fullstack  []string
	deployment []string
}

func NewHeuristics(cfg config.RoutingConfig) Heuristics {
	return Heuristics{
		fullstack:  lower(cfg.FullstackKeywords),
		deployment: lower(cfg.DeploymentKeywords),
	}
}

// WantsFullstack reports whether the description asks for a combined
// frontend+backend build.
func (h Heuristics) WantsFullstack(description string) bool {
	return matchesAny(description, h.fullstack)
}

// WantsDeployment reports whether the description mentions deployment or
// infrastructure work.
func (h Heuristics) WantsDeployment(description string) bool {
	return matchesAny(description, h.deployment)
}

func matchesAny(text string, keywords []string) bool {
	text = strings.ToLower(text)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func lower(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
