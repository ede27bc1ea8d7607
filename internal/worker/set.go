package worker

import (
	"github.com/mtzanidakis/helios/internal/llm"
	"github.com/mtzanidakis/helios/internal/state"
)

// Set is a run's worker registry: one worker per registered role. Runs never
// share a Set — workers carry per-run retry counters and lifecycle status.
type Set map[state.Role]Worker

// NewSet registers the full role roster. Each run gets a fresh set.
func NewSet(client llm.Client, opts Options) Set {
	return Set{
		state.RoleAnalyzer:            NewAnalyzer(client, opts),
		state.RoleTaskDecomposer:      NewTaskDecomposer(client, opts),
		state.RoleFrontendEngineer:    NewEngineer(state.RoleFrontendEngineer, client, opts),
		state.RoleBackendEngineer:     NewEngineer(state.RoleBackendEngineer, client, opts),
		state.RoleFullstackEngineer:   NewEngineer(state.RoleFullstackEngineer, client, opts),
		state.RoleDevOpsEngineer:      NewEngineer(state.RoleDevOpsEngineer, client, opts),
		state.RoleQAEngineer:          NewQAEngineer(client, opts),
		state.RoleCodeReviewer:        NewCodeReviewer(client, opts),
		state.RoleDocumentationWriter: NewDocumentationWriter(client, opts),
	}
}

// Registered reports whether a role has a bound worker.
func (s Set) Registered(role state.Role) bool {
	_, ok := s[role]
	return ok
}

// Close releases every worker's resources.
func (s Set) Close() {
	for _, w := range s {
		_ = w.Close()
	}
}
