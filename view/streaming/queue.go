// Package streaming ranks out-of-core blocks by view-dependent importance and
// hands them out to ranks one collective Pop at a time.
//
// Every rank holds an identical PriorityQueue built from the same
// descriptors. Consistency comes from every rank applying the same
// deterministic sequence of Initialize/UpdatePriorities/Pop calls; the queue
// itself is never exchanged between ranks.
package streaming

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/distview/distview/view/comm"
	"github.com/distview/distview/view/geom"
)

// Descriptor describes a streamable unit before the queue owns it.
type Descriptor struct {
	ID         uint32
	Bounds     geom.Box
	Refinement int
}

// Block is a queued unit with its current priority.
type Block struct {
	ID         uint32
	Bounds     geom.Box
	Refinement int
	Priority   float64
	// Coverage is the frustum coverage from the last UpdatePriorities, 1
	// before any update.
	Coverage float64
	// Contending is false for blocks pushed out of contention by the
	// frustum or clamp bounds. They stay queued at priority 0.
	Contending bool
}

// DefaultBlockID is handed to ranks whose slot of a collective Pop could
// not be filled.
const DefaultBlockID uint32 = 0

// PriorityQueue is the per-rank streaming queue.
type PriorityQueue struct {
	ctrl   comm.Controller
	scorer Scorer
	heap   blockHeap
}

// NewPriorityQueue creates an empty queue. A nil scorer selects the
// screen-space scorer. Panics if ctrl is nil.
func NewPriorityQueue(ctrl comm.Controller, scorer Scorer) *PriorityQueue {
	if ctrl == nil {
		panic("streaming.NewPriorityQueue: controller must not be nil")
	}
	if scorer == nil {
		scorer = NewScorer("")
	}
	return &PriorityQueue{ctrl: ctrl, scorer: scorer}
}

// Initialize replaces the queue contents with descs. Coarser blocks get
// higher initial priority; ties fall back to ID order. O(n) heapify after an
// O(n) copy.
func (q *PriorityQueue) Initialize(descs []Descriptor) {
	blocks := make([]Block, len(descs))
	for i, d := range descs {
		blocks[i] = Block{
			ID:         d.ID,
			Bounds:     d.Bounds,
			Refinement: d.Refinement,
			Priority:   coarsePriority(d.Refinement),
			Coverage:   1,
			Contending: true,
		}
	}
	q.heap.reset(blocks)
}

// UpdatePriorities rescores every queued block for the frustum. When clamp is
// initialized, blocks that do not intersect it drop out of contention. Set
// membership never changes. O(n) scoring plus O(n) heapify.
func (q *PriorityQueue) UpdatePriorities(f geom.Frustum, clamp geom.Box) {
	clamped := clamp.IsValid()
	blocks := q.heap.blocks
	for i := range blocks {
		b := &blocks[i]
		b.Coverage = f.Coverage(b.Bounds)
		b.Contending = b.Coverage > 0 && (!clamped || clamp.Intersects(b.Bounds))
		if !b.Contending {
			b.Priority = 0
			continue
		}
		b.Priority = q.scorer.Score(*b, f)
	}
	q.heap.reset(blocks)
}

// Pop hands out one block identifier to this rank.
//
// Collectively, one Pop removes the top N blocks (N = number of ranks) from
// every rank's copy, and rank i receives the i-th of them. Slots beyond the
// remaining supply receive DefaultBlockID. Popping an empty queue logs and
// returns DefaultBlockID; it never waits.
func (q *PriorityQueue) Pop() uint32 {
	if q.IsEmpty() {
		logrus.Warnf("streaming: rank %d popped an empty queue; nothing left to stream", q.ctrl.LocalProcessID())
		return DefaultBlockID
	}
	n := q.ctrl.NumberOfProcesses()
	me := q.ctrl.LocalProcessID()
	id := DefaultBlockID
	for slot := 0; slot < n; slot++ {
		b, ok := q.heap.popNext()
		if !ok {
			break
		}
		if slot == me {
			id = b.ID
		}
	}
	return id
}

// IsEmpty reports whether no blocks remain. Every rank observes the same
// answer after the same sequence of calls.
func (q *PriorityQueue) IsEmpty() bool {
	return q.heap.Len() == 0
}

// Len returns the number of queued blocks.
func (q *PriorityQueue) Len() int {
	return q.heap.Len()
}

// Peek returns the block the next Pop would hand to slot 0.
func (q *PriorityQueue) Peek() (Block, bool) {
	return q.heap.peek()
}

// Snapshot returns the queued blocks in pop order without modifying the queue.
func (q *PriorityQueue) Snapshot() []Block {
	out := make([]Block, len(q.heap.blocks))
	copy(out, q.heap.blocks)
	sort.Slice(out, func(i, j int) bool { return before(out[i], out[j]) })
	return out
}
