package amr

import (
	"github.com/distview/distview/view/comm"
	"github.com/distview/distview/view/geom"
	"github.com/distview/distview/view/streaming"
)

// StreamingQueue is the streaming-catalog surface exposed to AMR data
// sources: a priority queue over one catalog's blocks.
type StreamingQueue struct {
	ctrl    comm.Controller
	scorer  streaming.Scorer
	catalog *Catalog
	queue   *streaming.PriorityQueue
}

// NewStreamingQueue creates an uninitialized queue. A nil scorer selects the
// screen-space scorer.
func NewStreamingQueue(ctrl comm.Controller, scorer streaming.Scorer) *StreamingQueue {
	return &StreamingQueue{
		ctrl:   ctrl,
		scorer: scorer,
		queue:  streaming.NewPriorityQueue(ctrl, scorer),
	}
}

// Initialize loads every block of catalog, discarding any previous state.
func (s *StreamingQueue) Initialize(catalog *Catalog) {
	s.catalog = catalog
	s.queue = streaming.NewPriorityQueue(s.ctrl, s.scorer)
	if catalog != nil {
		s.queue.Initialize(catalog.Descriptors())
	}
}

// Reinitialize rebuilds the queue from the current catalog. Block identity is
// preserved; priorities reset to their coarse-first defaults.
func (s *StreamingQueue) Reinitialize() {
	if s.catalog != nil {
		s.Initialize(s.catalog)
	}
}

// Update reprioritizes for view planes without clamping.
func (s *StreamingQueue) Update(planes [24]float64) {
	s.UpdateClamped(planes, geom.UninitializedBounds())
}

// UpdateClamped reprioritizes for view planes, excluding blocks outside
// clamp when clamp is initialized. No-op before Initialize.
func (s *StreamingQueue) UpdateClamped(planes [24]float64, clamp [6]float64) {
	if s.catalog == nil {
		return
	}
	s.queue.UpdatePriorities(geom.FrustumFromPlanes(planes), geom.BoxFromBounds(clamp))
}

// Pop returns this rank's next block identifier. See streaming.PriorityQueue.Pop.
func (s *StreamingQueue) Pop() uint32 {
	return s.queue.Pop()
}

// IsEmpty reports whether every block has been handed out.
func (s *StreamingQueue) IsEmpty() bool {
	return s.queue.IsEmpty()
}

// Remaining returns the number of queued blocks.
func (s *StreamingQueue) Remaining() int {
	return s.queue.Len()
}

// Catalog returns the catalog passed to Initialize, or nil.
func (s *StreamingQueue) Catalog() *Catalog {
	return s.catalog
}
