package view

import (
	"testing"

	"github.com/distview/distview/view/comm"
)

func TestResolveRoles(t *testing.T) {
	tests := []struct {
		name        string
		topo        comm.Topology
		distributed bool
		want        comm.RoleSet
	}{
		{"builtin local", comm.Builtin(), false, comm.RoleAll},
		{"builtin distributed", comm.Builtin(), true, comm.RoleAll},
		{"client-server local", comm.ClientServer(2), false, comm.RoleClient},
		{"client-server distributed", comm.ClientServer(2), true, comm.RoleClient | comm.RoleRenderServer},
		{"separate servers distributed", comm.ClientDataRender(2, 2), true, comm.RoleClient | comm.RoleRenderServer},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ResolveRoles(tc.topo, tc.distributed); got != tc.want {
				t.Errorf("ResolveRoles = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestParticipates(t *testing.T) {
	topo := comm.ClientDataRender(1, 1) // 0 client, 1 data, 2 render
	distributed := ResolveRoles(topo, true)
	local := ResolveRoles(topo, false)

	want := map[int][2]bool{ // rank -> {distributed, local}
		0: {true, true},
		1: {false, false},
		2: {true, false},
	}
	for rank, w := range want {
		roles := topo.RolesOf(rank)
		if got := Participates(distributed, roles); got != w[0] {
			t.Errorf("rank %d distributed: got %t, want %t", rank, got, w[0])
		}
		if got := Participates(local, roles); got != w[1] {
			t.Errorf("rank %d local: got %t, want %t", rank, got, w[1])
		}
	}

	// the single builtin process always participates
	if !Participates(ResolveRoles(comm.Builtin(), false), comm.Builtin().RolesOf(0)) {
		t.Error("builtin process must participate")
	}
}
