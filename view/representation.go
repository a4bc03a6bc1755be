package view

import (
	"sort"

	"github.com/distview/distview/view/geom"
)

// ElementBytes is the geometry-size estimate charged per element.
const ElementBytes = 56

// Element is one cell or point of a piece: an identifier stable across
// redistribution and its spatial extent.
type Element struct {
	ID     int64    `json:"id"`
	Bounds geom.Box `json:"bounds"`
}

// Piece is the data handle a representation hands to the delivery
// coordinator and gets back once delivery is complete.
type Piece struct {
	Elements []Element `json:"elements,omitempty"`
	// Outline marks a placeholder holding only the global bounds.
	Outline bool `json:"outline,omitempty"`
}

// Len returns the number of elements.
func (p Piece) Len() int { return len(p.Elements) }

// Bytes returns the geometry-size estimate of the piece.
func (p Piece) Bytes() int64 { return int64(len(p.Elements)) * ElementBytes }

// Bounds returns the union of the element bounds.
func (p Piece) Bounds() geom.Box {
	b := geom.EmptyBox()
	for _, e := range p.Elements {
		b = b.Union(e.Bounds)
	}
	return b
}

// OutlinePiece returns a placeholder piece holding only bounds.
func OutlinePiece(bounds geom.Box) Piece {
	if !bounds.IsValid() {
		return Piece{Outline: true}
	}
	return Piece{Outline: true, Elements: []Element{{ID: -1, Bounds: bounds}}}
}

// MergePieces concatenates pieces into one, sorted by element identifier and
// then by position so the result does not depend on arrival order.
func MergePieces(pieces ...Piece) Piece {
	var out Piece
	for _, p := range pieces {
		out.Elements = append(out.Elements, p.Elements...)
		out.Outline = out.Outline || p.Outline
	}
	sortElements(out.Elements)
	return out
}

func sortElements(es []Element) {
	sort.SliceStable(es, func(i, j int) bool {
		a, b := es[i], es[j]
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		if a.Bounds.Min.X != b.Bounds.Min.X {
			return a.Bounds.Min.X < b.Bounds.Min.X
		}
		if a.Bounds.Min.Y != b.Bounds.Min.Y {
			return a.Bounds.Min.Y < b.Bounds.Min.Y
		}
		return a.Bounds.Min.Z < b.Bounds.Min.Z
	})
}

// Representation is what the view needs from each piece of displayed data.
// Implementations must answer identically-shaped questions on every rank;
// only the local values (sizes, bounds, pieces) differ per rank.
type Representation interface {
	ID() string
	// GeometrySize estimates the local bytes that would be rendered.
	GeometrySize(lod bool) int64
	RedistributionPolicy() RedistributionPolicy
	// DeliveryBounds returns the local geometry bounds.
	DeliveryBounds() geom.Box
	RequiresDistributedRendering(lod bool) bool
	RequiresLocalOnlyRendering(lod bool) bool
	// Piece returns the local data handle for lod.
	Piece(lod bool) Piece
	// SetPieceProducer receives the piece this rank renders after delivery.
	SetPieceProducer(p Piece, lod bool)
}

// BoundaryModer is implemented by redistributable representations that
// choose how boundary elements are handled. Others use SplitBoundary.
type BoundaryModer interface {
	RedistributionMode() RedistributionMode
}

// ClientDeliverer is implemented by representations that must reach the
// client even when it is not rendering, such as on-screen annotations.
type ClientDeliverer interface {
	DeliverToClient() bool
	// GatherBeforeDelivery false ships only the root server's own piece.
	GatherBeforeDelivery() bool
}

// AllProcessesDeliverer is implemented by representations whose full data
// must be present on every rank.
type AllProcessesDeliverer interface {
	DeliverToAllProcesses() bool
}

// Streamable is implemented by representations that fetch blocks
// progressively between renders.
type Streamable interface {
	// StreamingUpdate reprioritizes for the view planes and fetches the
	// next blocks. It reports whether this rank now has a pending piece.
	StreamingUpdate(planes [24]float64, clamp [6]float64) bool
	// TakeStreamedPiece returns and clears the pending piece.
	TakeStreamedPiece() Piece
	// AppendStreamedPiece adds a delivered streamed piece to the rendered data.
	AppendStreamedPiece(p Piece)
}

// StreamProgress is implemented by streamables that report what their last
// StreamingUpdate fetched.
type StreamProgress interface {
	LastPopped() []uint32
	Remaining() int
}

func boundaryMode(r Representation) RedistributionMode {
	if m, ok := r.(BoundaryModer); ok {
		return m.RedistributionMode()
	}
	return SplitBoundary
}

func clientDelivery(r Representation) (deliver, gather bool) {
	if c, ok := r.(ClientDeliverer); ok {
		return c.DeliverToClient(), c.GatherBeforeDelivery()
	}
	return false, true
}

func deliverToAll(r Representation) bool {
	if c, ok := r.(AllProcessesDeliverer); ok {
		return c.DeliverToAllProcesses()
	}
	return false
}
