package streaming

import "container/heap"

// blockHeap is a max-heap of blocks with a deterministic total order.
// Ordering: priority (higher first) → refinement (coarser first) → ID (lower first).
type blockHeap struct {
	blocks []Block
}

// Len implements heap.Interface
func (h *blockHeap) Len() int {
	return len(h.blocks)
}

// Less implements heap.Interface with deterministic ordering
func (h *blockHeap) Less(i, j int) bool {
	return before(h.blocks[i], h.blocks[j])
}

// before reports whether a pops ahead of b.
func before(a, b Block) bool {
	// Primary: priority (higher first)
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	// Secondary: refinement level (coarser first)
	if a.Refinement != b.Refinement {
		return a.Refinement < b.Refinement
	}
	// Tertiary: identifier (lower first, deterministic tie-breaker)
	return a.ID < b.ID
}

// Swap implements heap.Interface
func (h *blockHeap) Swap(i, j int) {
	h.blocks[i], h.blocks[j] = h.blocks[j], h.blocks[i]
}

// Push implements heap.Interface
func (h *blockHeap) Push(x interface{}) {
	h.blocks = append(h.blocks, x.(Block))
}

// Pop implements heap.Interface
func (h *blockHeap) Pop() interface{} {
	old := h.blocks
	n := len(old)
	item := old[n-1]
	h.blocks = old[0 : n-1]
	return item
}

// reset replaces the contents and restores the heap invariant in O(n).
func (h *blockHeap) reset(blocks []Block) {
	h.blocks = blocks
	heap.Init(h)
}

// popNext removes and returns the top block.
func (h *blockHeap) popNext() (Block, bool) {
	if h.Len() == 0 {
		return Block{}, false
	}
	return heap.Pop(h).(Block), true
}

// peek returns the top block without removing it.
func (h *blockHeap) peek() (Block, bool) {
	if h.Len() == 0 {
		return Block{}, false
	}
	return h.blocks[0], true
}
