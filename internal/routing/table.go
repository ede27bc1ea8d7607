// Package routing decides which role runs next. Transitions live in a static
// table of rules evaluated in canonical order, so new roles or policies are
// added by editing the table rather than a control-flow graph.
package routing

import (
	"github.com/mtzanidakis/helios/internal/state"
)

// Registered reports whether a role has a worker bound in the current run.
type Registered func(state.Role) bool

// Decision is the outcome of a routing step.
type Decision struct {
	Next         state.Role
	Done         bool
	FromOverride bool
	Reason       string
}

// rule maps a current role plus a state predicate to the next role. A nil
// predicate always matches. pick computes dynamic targets (review loops);
// when pick is nil the static next/done pair is used.
type rule struct {
	from state.Role
	when func(*Table, *state.State) bool
	next state.Role
	done bool
	pick func(*Table, *state.State, Registered) (state.Role, string)
	why  string
}

// Table evaluates routing rules. Ties are broken by first match.
type Table struct {
	heur  Heuristics
	rules []rule
}

func NewTable(h Heuristics) *Table {
	t := &Table{heur: h}
	t.rules = []rule{
		{from: state.RoleAnalyzer, next: state.RoleTaskDecomposer, why: "analysis complete"},
		{
			from: state.RoleTaskDecomposer,
			when: func(t *Table, s *state.State) bool { return t.heur.WantsFullstack(s.Description) },
			next: state.RoleFullstackEngineer,
			why:  "fullstack project",
		},
		{from: state.RoleTaskDecomposer, next: state.RoleBackendEngineer, why: "tasks decomposed"},
		{from: state.RoleFrontendEngineer, next: state.RoleBackendEngineer, why: "frontend done"},
		{
			from: state.RoleBackendEngineer,
			when: func(t *Table, s *state.State) bool { return t.heur.WantsDeployment(s.Description) },
			next: state.RoleDevOpsEngineer,
			why:  "deployment requested",
		},
		{from: state.RoleBackendEngineer, next: state.RoleQAEngineer, why: "implementation done"},
		{
			from: state.RoleFullstackEngineer,
			when: func(t *Table, s *state.State) bool { return t.heur.WantsDeployment(s.Description) },
			next: state.RoleDevOpsEngineer,
			why:  "deployment requested",
		},
		{from: state.RoleFullstackEngineer, next: state.RoleQAEngineer, why: "implementation done"},
		{from: state.RoleDevOpsEngineer, next: state.RoleQAEngineer, why: "infrastructure done"},
		{from: state.RoleQAEngineer, next: state.RoleCodeReviewer, why: "tests done"},
		{
			from: state.RoleCodeReviewer,
			when: func(_ *Table, s *state.State) bool {
				passed, _, ok := s.ReviewOutcome()
				return ok && !passed
			},
			pick: pickReviewTarget,
		},
		{from: state.RoleCodeReviewer, next: state.RoleDocumentationWriter, why: "review passed"},
		{from: state.RoleDocumentationWriter, done: true, why: "documentation written"},
	}
	return t
}

// Next computes the role that should run after current. An explicit
// pending_override on the state always wins over the table; the caller is
// responsible for clearing the consumed override via a merge.
func (t *Table) Next(current state.Role, s *state.State, registered Registered) Decision {
	if s.PendingOverride != state.RoleNone {
		return Decision{
			Next:         s.PendingOverride,
			FromOverride: true,
			Reason:       "explicit override",
		}
	}

	for _, r := range t.rules {
		if r.from != current {
			continue
		}
		if r.when != nil && !r.when(t, s) {
			continue
		}
		if r.pick != nil {
			next, why := r.pick(t, s, registered)
			return Decision{Next: next, Reason: why}
		}
		return Decision{Next: r.next, Done: r.done, Reason: r.why}
	}

	// Unknown role: let the engine surface it as a configuration bug.
	return Decision{Done: true, Reason: "no routing rule"}
}

// pickReviewTarget sends a failed review back to the role responsible for the
// recorded issue type.
func pickReviewTarget(_ *Table, s *state.State, registered Registered) (state.Role, string) {
	_, issueType, _ := s.ReviewOutcome()
	switch issueType {
	case "frontend":
		return state.RoleFrontendEngineer, "review failed: frontend issues"
	case "backend":
		return state.RoleBackendEngineer, "review failed: backend issues"
	}
	if registered != nil && registered(state.RoleFullstackEngineer) {
		return state.RoleFullstackEngineer, "review failed: general issues"
	}
	return state.RoleFrontendEngineer, "review failed: general issues"
}
