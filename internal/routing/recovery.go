package routing

import "github.com/mtzanidakis/helios/internal/state"

// Alternate returns the role that can take over after failed exhausted its
// retry budget, or ok=false when the run cannot be recovered. Like the
// routing table this is data: a static map consulted before giving up.
var alternates = map[state.Role]state.Role{
	state.RoleFrontendEngineer:  state.RoleFullstackEngineer,
	state.RoleBackendEngineer:   state.RoleFullstackEngineer,
	state.RoleFullstackEngineer: state.RoleFrontendEngineer,
}

func Alternate(failed state.Role, registered Registered) (state.Role, bool) {
	alt, ok := alternates[failed]
	if !ok {
		return state.RoleNone, false
	}
	if registered != nil && !registered(alt) {
		return state.RoleNone, false
	}
	return alt, true
}
