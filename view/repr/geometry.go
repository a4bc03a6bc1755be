// Package repr provides the concrete representations driven by a render
// view: partitioned geometry, streamed AMR blocks and client-only legends.
package repr

import (
	"math"

	"github.com/distview/distview/view"
	"github.com/distview/distview/view/geom"
)

// GeometryOptions configures a Geometry representation.
type GeometryOptions struct {
	Policy               view.RedistributionPolicy
	Mode                 view.RedistributionMode
	DeliverToClient      bool
	GatherBeforeDelivery bool
	DeliverToAll         bool
	RequiresDistributed  bool
	RequiresLocalOnly    bool
	// LODResolution is the fraction of elements kept in LOD geometry.
	LODResolution float64
	// UseOutlineForLOD replaces LOD geometry with the bounding outline.
	UseOutlineForLOD bool
}

// Geometry is a representation of this rank's share of a partitioned mesh.
type Geometry struct {
	id        string
	elements  []view.Element
	opts      GeometryOptions
	delivered [2]view.Piece // indexed by lodIndex
}

var (
	_ view.Representation  = (*Geometry)(nil)
	_ view.BoundaryModer   = (*Geometry)(nil)
	_ view.ClientDeliverer = (*Geometry)(nil)
)

// NewGeometry creates a geometry representation over this rank's elements.
// The slice is copied.
func NewGeometry(id string, elements []view.Element, opts GeometryOptions) *Geometry {
	return &Geometry{
		id:       id,
		elements: append([]view.Element(nil), elements...),
		opts:     opts,
	}
}

func lodIndex(lod bool) int {
	if lod {
		return 1
	}
	return 0
}

func (g *Geometry) ID() string { return g.id }

func (g *Geometry) GeometrySize(lod bool) int64 { return g.Piece(lod).Bytes() }

func (g *Geometry) RedistributionPolicy() view.RedistributionPolicy { return g.opts.Policy }

func (g *Geometry) RedistributionMode() view.RedistributionMode { return g.opts.Mode }

func (g *Geometry) DeliveryBounds() geom.Box {
	return view.Piece{Elements: g.elements}.Bounds()
}

func (g *Geometry) RequiresDistributedRendering(bool) bool { return g.opts.RequiresDistributed }

func (g *Geometry) RequiresLocalOnlyRendering(bool) bool { return g.opts.RequiresLocalOnly }

func (g *Geometry) DeliverToClient() bool { return g.opts.DeliverToClient }

func (g *Geometry) GatherBeforeDelivery() bool { return g.opts.GatherBeforeDelivery }

func (g *Geometry) DeliverToAllProcesses() bool { return g.opts.DeliverToAll }

// Piece returns the local elements, decimated or reduced to an outline for LOD.
func (g *Geometry) Piece(lod bool) view.Piece {
	if !lod {
		return view.Piece{Elements: append([]view.Element(nil), g.elements...)}
	}
	if g.opts.UseOutlineForLOD {
		if len(g.elements) == 0 {
			return view.Piece{}
		}
		return view.OutlinePiece(g.DeliveryBounds())
	}
	return view.Piece{Elements: decimate(g.elements, g.opts.LODResolution)}
}

// SetPieceProducer stores the delivered piece.
func (g *Geometry) SetPieceProducer(p view.Piece, lod bool) {
	g.delivered[lodIndex(lod)] = p
}

// Delivered returns the piece this rank renders at the given resolution.
func (g *Geometry) Delivered(lod bool) view.Piece {
	return g.delivered[lodIndex(lod)]
}

// decimate keeps ceil(len*fraction) elements spread evenly over es.
func decimate(es []view.Element, fraction float64) []view.Element {
	n := len(es)
	keep := int(math.Ceil(float64(n) * fraction))
	if keep >= n {
		return append([]view.Element(nil), es...)
	}
	out := make([]view.Element, 0, keep)
	for i := 0; i < keep; i++ {
		out = append(out, es[i*n/keep])
	}
	return out
}
