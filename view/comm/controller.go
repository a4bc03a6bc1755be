package comm

import "gonum.org/v1/gonum/floats"

// Controller is one rank's view of the session: its identity, the static
// topology, and the collective primitives shared with every other rank.
type Controller interface {
	LocalProcessID() int
	NumberOfProcesses() int
	Topology() Topology

	IsClient() bool
	IsDataServer() bool
	IsRenderServer() bool

	// AllReduceSum returns the sum of v over all ranks, accumulated in rank
	// order so every rank observes the identical float.
	AllReduceSum(v float64) float64
	// AllReduceLogicalOr returns true on every rank iff any rank passed true.
	AllReduceLogicalOr(v bool) bool
	// AllGather returns every rank's payload, indexed by rank.
	AllGather(payload []byte) [][]byte
	// AllToAll sends outgoing[r] to rank r and returns the payloads
	// received, indexed by sender. len(outgoing) must equal NumberOfProcesses.
	AllToAll(outgoing [][]byte) [][]byte
	// Gather returns every rank's payload on root and nil elsewhere.
	Gather(payload []byte, root int) [][]byte
	// Broadcast returns root's payload on every rank.
	Broadcast(payload []byte, root int) []byte
	Barrier()
}

// Solo is the Controller of a builtin single-process session. Every
// collective is the identity.
type Solo struct{}

var _ Controller = Solo{}

// NewSolo returns the builtin controller.
func NewSolo() Solo { return Solo{} }

func (Solo) LocalProcessID() int    { return 0 }
func (Solo) NumberOfProcesses() int { return 1 }
func (Solo) Topology() Topology     { return Builtin() }
func (Solo) IsClient() bool         { return true }
func (Solo) IsDataServer() bool     { return true }
func (Solo) IsRenderServer() bool   { return true }

func (Solo) AllReduceSum(v float64) float64   { return v }
func (Solo) AllReduceLogicalOr(v bool) bool   { return v }
func (Solo) AllGather(p []byte) [][]byte      { return [][]byte{p} }
func (Solo) Gather(p []byte, _ int) [][]byte  { return [][]byte{p} }
func (Solo) Broadcast(p []byte, _ int) []byte { return p }
func (Solo) Barrier()                         {}

func (Solo) AllToAll(outgoing [][]byte) [][]byte {
	if len(outgoing) != 1 {
		panic("Solo.AllToAll: outgoing must have exactly one entry")
	}
	return [][]byte{outgoing[0]}
}

// sumInRankOrder is shared by controllers so the reduction order, and with
// it the floating-point result, is the same everywhere.
func sumInRankOrder(values []float64) float64 {
	return floats.Sum(values)
}
