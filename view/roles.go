package view

import "github.com/distview/distview/view/comm"

// ResolveRoles returns the roles that execute the next render for a
// distributed-rendering decision. A builtin session always returns every
// role so the single process participates regardless of the decision.
func ResolveRoles(topo comm.Topology, distributed bool) comm.RoleSet {
	if topo.IsBuiltin() {
		return comm.RoleAll
	}
	if distributed {
		return comm.RoleClient | comm.RoleRenderServer
	}
	return comm.RoleClient
}

// Participates reports whether a process holding local roles takes part in
// a render executed by set.
func Participates(set, local comm.RoleSet) bool {
	return set.Overlaps(local)
}
