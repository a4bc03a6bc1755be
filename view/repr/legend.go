package repr

import (
	"github.com/distview/distview/view"
	"github.com/distview/distview/view/geom"
)

// Legend is an on-screen annotation. It has no geometry for the render
// decision and always reaches the client, shipped from the root server only.
type Legend struct {
	id        string
	label     view.Element
	delivered view.Piece
}

var (
	_ view.Representation  = (*Legend)(nil)
	_ view.ClientDeliverer = (*Legend)(nil)
)

// NewLegend creates a legend whose annotation occupies screen-space
// extent bounds.
func NewLegend(id string, bounds geom.Box) *Legend {
	return &Legend{id: id, label: view.Element{ID: 0, Bounds: bounds}}
}

func (l *Legend) ID() string                                      { return l.id }
func (l *Legend) GeometrySize(bool) int64                         { return 0 }
func (l *Legend) RedistributionPolicy() view.RedistributionPolicy { return view.PolicyNone }
func (l *Legend) DeliveryBounds() geom.Box                        { return geom.EmptyBox() }
func (l *Legend) RequiresDistributedRendering(bool) bool          { return false }
func (l *Legend) RequiresLocalOnlyRendering(bool) bool            { return false }
func (l *Legend) DeliverToClient() bool                           { return true }
func (l *Legend) GatherBeforeDelivery() bool                      { return false }

// Piece returns the annotation. Every rank builds the same one.
func (l *Legend) Piece(bool) view.Piece {
	return view.Piece{Elements: []view.Element{l.label}}
}

func (l *Legend) SetPieceProducer(p view.Piece, _ bool) { l.delivered = p }

// Delivered returns the annotation piece this rank displays.
func (l *Legend) Delivered() view.Piece { return l.delivered }
