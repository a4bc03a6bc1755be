package comm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrGroupAborted is returned by Group.Run for ranks released from a
// collective because another rank failed.
var ErrGroupAborted = errors.New("comm: group aborted")

// Group simulates the ranks of one session inside a single OS process. Each
// rank runs on its own goroutine and collectives are barrier rounds over a
// shared staging area.
//
// Group exists for tests and the CLI; it is the in-process stand-in for an
// MPI communicator.
type Group struct {
	topo Topology

	mu         sync.Mutex
	cond       *sync.Cond
	stage      []any
	result     []any
	arrived    int
	generation uint64
	aborted    bool

	sent []int64 // payload bytes sent by each rank
}

// NewGroup creates a group for topo. Panics if topo is invalid.
func NewGroup(topo Topology) *Group {
	if err := topo.Validate(); err != nil {
		panic(fmt.Sprintf("comm.NewGroup: %v", err))
	}
	g := &Group{
		topo:  topo,
		stage: make([]any, topo.Processes),
		sent:  make([]int64, topo.Processes),
	}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Size returns the number of ranks.
func (g *Group) Size() int { return g.topo.Processes }

// Topology returns the group's topology.
func (g *Group) Topology() Topology { return g.topo }

// Controller returns the handle for rank.
func (g *Group) Controller(rank int) Controller {
	if rank < 0 || rank >= g.topo.Processes {
		panic(fmt.Sprintf("comm.Group.Controller: rank %d out of range [0,%d)", rank, g.topo.Processes))
	}
	return &rankController{group: g, rank: rank}
}

// BytesSent returns the payload bytes each rank has sent through
// collectives so far.
func (g *Group) BytesSent() []int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]int64, len(g.sent))
	copy(out, g.sent)
	return out
}

// Run executes fn once per rank, concurrently, and waits for all of them.
// If any rank returns an error or panics, ranks blocked in a collective are
// released with ErrGroupAborted and the first error is returned.
func (g *Group) Run(ctx context.Context, fn func(ctx context.Context, c Controller) error) error {
	eg, ctx := errgroup.WithContext(ctx)
	for rank := 0; rank < g.topo.Processes; rank++ {
		c := g.Controller(rank)
		eg.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					if r == ErrGroupAborted {
						err = ErrGroupAborted
					} else {
						err = fmt.Errorf("rank %d panicked: %v", c.LocalProcessID(), r)
					}
				}
				if err != nil {
					g.abort()
				}
			}()
			return fn(ctx, c)
		})
	}
	return eg.Wait()
}

func (g *Group) abort() {
	g.mu.Lock()
	g.aborted = true
	g.cond.Broadcast()
	g.mu.Unlock()
}

// exchange deposits v for rank and returns every rank's deposit once all
// ranks have arrived. The returned slice is shared and read-only.
func (g *Group) exchange(rank int, v any, bytes int) []any {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.aborted {
		panic(ErrGroupAborted)
	}
	g.sent[rank] += int64(bytes)
	gen := g.generation
	g.stage[rank] = v
	g.arrived++
	if g.arrived == len(g.stage) {
		g.result = g.stage
		g.stage = make([]any, len(g.stage))
		g.arrived = 0
		g.generation++
		g.cond.Broadcast()
		return g.result
	}
	for gen == g.generation {
		if g.aborted {
			panic(ErrGroupAborted)
		}
		g.cond.Wait()
	}
	return g.result
}

type rankController struct {
	group *Group
	rank  int
}

func (c *rankController) LocalProcessID() int    { return c.rank }
func (c *rankController) NumberOfProcesses() int { return c.group.topo.Processes }
func (c *rankController) Topology() Topology     { return c.group.topo }

func (c *rankController) IsClient() bool {
	return c.group.topo.RolesOf(c.rank).Has(RoleClient)
}

func (c *rankController) IsDataServer() bool {
	return c.group.topo.RolesOf(c.rank).Has(RoleDataServer)
}

func (c *rankController) IsRenderServer() bool {
	return c.group.topo.RolesOf(c.rank).Has(RoleRenderServer)
}

func (c *rankController) AllReduceSum(v float64) float64 {
	all := c.group.exchange(c.rank, v, 8)
	values := make([]float64, len(all))
	for i, x := range all {
		values[i] = x.(float64)
	}
	return sumInRankOrder(values)
}

func (c *rankController) AllReduceLogicalOr(v bool) bool {
	all := c.group.exchange(c.rank, v, 1)
	for _, x := range all {
		if x.(bool) {
			return true
		}
	}
	return false
}

func (c *rankController) AllGather(payload []byte) [][]byte {
	all := c.group.exchange(c.rank, payload, len(payload)*(c.NumberOfProcesses()-1))
	out := make([][]byte, len(all))
	for i, x := range all {
		out[i] = x.([]byte)
	}
	return out
}

func (c *rankController) AllToAll(outgoing [][]byte) [][]byte {
	n := c.NumberOfProcesses()
	if len(outgoing) != n {
		panic(fmt.Sprintf("AllToAll: rank %d passed %d payloads for %d ranks", c.rank, len(outgoing), n))
	}
	sent := 0
	for r, p := range outgoing {
		if r != c.rank {
			sent += len(p)
		}
	}
	all := c.group.exchange(c.rank, outgoing, sent)
	in := make([][]byte, n)
	for sender, x := range all {
		in[sender] = x.([][]byte)[c.rank]
	}
	return in
}

func (c *rankController) Gather(payload []byte, root int) [][]byte {
	sent := len(payload)
	if c.rank == root {
		sent = 0
	}
	all := c.group.exchange(c.rank, payload, sent)
	if c.rank != root {
		return nil
	}
	out := make([][]byte, len(all))
	for i, x := range all {
		out[i] = x.([]byte)
	}
	return out
}

func (c *rankController) Broadcast(payload []byte, root int) []byte {
	sent := 0
	if c.rank == root {
		sent = len(payload) * (c.NumberOfProcesses() - 1)
	}
	all := c.group.exchange(c.rank, payload, sent)
	return all[root].([]byte)
}

func (c *rankController) Barrier() {
	c.group.exchange(c.rank, struct{}{}, 0)
}
