// Package comm provides the process-topology and collective-operations handle
// that every view component receives explicitly.
//
// Collective calls (AllReduceSum, AllReduceLogicalOr, AllGather, AllToAll,
// Gather, Broadcast, Barrier) block until every rank of the session has made
// the same call. A rank that skips a collective hangs the session; nothing
// here detects that. Callers MUST NOT guard collective calls with
// rank-dependent conditions.
package comm

import (
	"fmt"
	"strings"
)

// RoleSet is a bitmask over process roles.
type RoleSet uint8

const (
	RoleDataServer RoleSet = 1 << iota
	RoleRenderServer
	RoleClient

	RoleNone RoleSet = 0
	RoleAll          = RoleDataServer | RoleRenderServer | RoleClient
)

// Has reports whether every role in r is set.
func (s RoleSet) Has(r RoleSet) bool { return s&r == r }

// Overlaps reports whether s and r share any role.
func (s RoleSet) Overlaps(r RoleSet) bool { return s&r != 0 }

func (s RoleSet) String() string {
	if s == RoleNone {
		return "none"
	}
	var parts []string
	if s&RoleClient != 0 {
		parts = append(parts, "client")
	}
	if s&RoleDataServer != 0 {
		parts = append(parts, "data-server")
	}
	if s&RoleRenderServer != 0 {
		parts = append(parts, "render-server")
	}
	return strings.Join(parts, "|")
}

// SessionMode names how roles are laid out over processes.
type SessionMode string

const (
	// ModeBuiltin is a single process acting as client, data and render server.
	ModeBuiltin SessionMode = "builtin"
	// ModeClientServer is rank 0 as client plus ranks 1..N-1 as combined
	// data and render servers.
	ModeClientServer SessionMode = "client-server"
	// ModeClientDataRender is rank 0 as client, then DataServers data-server
	// ranks, then RenderServers render-server ranks.
	ModeClientDataRender SessionMode = "client-data-render"
)

var validModes = map[SessionMode]bool{
	ModeBuiltin: true, ModeClientServer: true, ModeClientDataRender: true,
}

// IsValidMode reports whether name is a recognized session mode.
func IsValidMode(name string) bool {
	return validModes[SessionMode(name)]
}

// Topology is the static layout of a session.
type Topology struct {
	Mode          SessionMode
	Processes     int
	DataServers   int // ModeClientDataRender only
	RenderServers int // ModeClientDataRender only
}

// Builtin returns the single-process topology.
func Builtin() Topology {
	return Topology{Mode: ModeBuiltin, Processes: 1}
}

// ClientServer returns a topology with one client and servers combined
// data/render server ranks.
func ClientServer(servers int) Topology {
	return Topology{Mode: ModeClientServer, Processes: servers + 1}
}

// ClientDataRender returns a topology with separate data and render servers.
func ClientDataRender(data, render int) Topology {
	return Topology{
		Mode:          ModeClientDataRender,
		Processes:     1 + data + render,
		DataServers:   data,
		RenderServers: render,
	}
}

// Validate checks the process counts against the mode.
func (t Topology) Validate() error {
	switch t.Mode {
	case ModeBuiltin:
		if t.Processes != 1 {
			return fmt.Errorf("builtin session must have exactly 1 process, got %d", t.Processes)
		}
	case ModeClientServer:
		if t.Processes < 2 {
			return fmt.Errorf("client-server session needs at least 2 processes, got %d", t.Processes)
		}
	case ModeClientDataRender:
		if t.DataServers < 1 || t.RenderServers < 1 {
			return fmt.Errorf("client-data-render session needs data and render servers, got %d/%d",
				t.DataServers, t.RenderServers)
		}
		if t.Processes != 1+t.DataServers+t.RenderServers {
			return fmt.Errorf("client-data-render session: processes (%d) != 1 + data (%d) + render (%d)",
				t.Processes, t.DataServers, t.RenderServers)
		}
	default:
		return fmt.Errorf("unknown session mode %q", t.Mode)
	}
	return nil
}

// IsBuiltin reports whether the session is a single process.
func (t Topology) IsBuiltin() bool {
	return t.Mode == ModeBuiltin
}

// ClientRank is the rank that displays results.
func (t Topology) ClientRank() int { return 0 }

// RolesOf returns the roles held by rank.
func (t Topology) RolesOf(rank int) RoleSet {
	if rank < 0 || rank >= t.Processes {
		return RoleNone
	}
	switch t.Mode {
	case ModeBuiltin:
		return RoleAll
	case ModeClientServer:
		if rank == 0 {
			return RoleClient
		}
		return RoleDataServer | RoleRenderServer
	case ModeClientDataRender:
		switch {
		case rank == 0:
			return RoleClient
		case rank <= t.DataServers:
			return RoleDataServer
		default:
			return RoleRenderServer
		}
	}
	return RoleNone
}

// RanksWith returns, in ascending order, the ranks holding any role in r.
func (t Topology) RanksWith(r RoleSet) []int {
	var out []int
	for rank := 0; rank < t.Processes; rank++ {
		if t.RolesOf(rank).Overlaps(r) {
			out = append(out, rank)
		}
	}
	return out
}

// RenderRanks returns the render-server ranks.
func (t Topology) RenderRanks() []int { return t.RanksWith(RoleRenderServer) }

// DataRanks returns the data-server ranks.
func (t Topology) DataRanks() []int { return t.RanksWith(RoleDataServer) }

// SeparateRenderServers reports whether data and render servers are distinct processes.
func (t Topology) SeparateRenderServers() bool {
	return t.Mode == ModeClientDataRender
}

func (t Topology) String() string {
	if t.Mode == ModeClientDataRender {
		return fmt.Sprintf("%s(data=%d,render=%d)", t.Mode, t.DataServers, t.RenderServers)
	}
	return fmt.Sprintf("%s(%d)", t.Mode, t.Processes)
}
