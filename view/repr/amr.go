package repr

import (
	"github.com/distview/distview/view"
	"github.com/distview/distview/view/amr"
	"github.com/distview/distview/view/comm"
	"github.com/distview/distview/view/geom"
	"github.com/distview/distview/view/streaming"
)

// AMR is a streamed AMR dataset. Blocks are fetched a few per streaming
// update in priority order; each fetched block becomes one element.
//
// There is no separate LOD geometry: streaming already delivers coarse
// blocks first, so LOD passes size, ship and render the same blocks as full
// passes.
type AMR struct {
	id            string
	ctrl          comm.Controller
	catalog       *amr.Catalog
	queue         *amr.StreamingQueue
	blocksPerPass int
	initialized   bool

	pending    view.Piece
	streamed   view.Piece
	delivered  [2]view.Piece
	lastPopped []uint32
}

var (
	_ view.Representation = (*AMR)(nil)
	_ view.Streamable     = (*AMR)(nil)
	_ view.StreamProgress = (*AMR)(nil)
)

// NewAMR creates a streamed representation of meta. blocksPerPass below 1
// is treated as 1.
func NewAMR(id string, ctrl comm.Controller, meta *amr.Metadata, scorer streaming.Scorer, blocksPerPass int) *AMR {
	if blocksPerPass < 1 {
		blocksPerPass = 1
	}
	return &AMR{
		id:            id,
		ctrl:          ctrl,
		catalog:       amr.NewCatalog(meta),
		queue:         amr.NewStreamingQueue(ctrl, scorer),
		blocksPerPass: blocksPerPass,
	}
}

func (a *AMR) ID() string { return a.id }

// GeometrySize is the size of the blocks streamed to this rank so far, for
// either resolution.
func (a *AMR) GeometrySize(bool) int64 { return a.streamed.Bytes() }

func (a *AMR) RedistributionPolicy() view.RedistributionPolicy { return view.PolicyNone }

// DeliveryBounds is the whole AMR domain on every rank.
func (a *AMR) DeliveryBounds() geom.Box { return a.catalog.Metadata().Domain() }

func (a *AMR) RequiresDistributedRendering(bool) bool { return false }
func (a *AMR) RequiresLocalOnlyRendering(bool) bool   { return false }

// Piece returns the blocks streamed to this rank so far, for either
// resolution.
func (a *AMR) Piece(bool) view.Piece { return a.streamed }

func (a *AMR) SetPieceProducer(p view.Piece, lod bool) { a.delivered[lodIndex(lod)] = p }

// Delivered returns the piece delivered by the last update pass.
func (a *AMR) Delivered(lod bool) view.Piece { return a.delivered[lodIndex(lod)] }

// StreamingUpdate reprioritizes for the view and pops up to blocksPerPass
// blocks. Slots starved by an underflowing Pop are recognized from the
// queue length beforehand and do not refetch block 0.
func (a *AMR) StreamingUpdate(planes [24]float64, clamp [6]float64) bool {
	if !a.initialized {
		a.queue.Initialize(a.catalog)
		a.initialized = true
	}
	a.queue.UpdateClamped(planes, clamp)
	a.lastPopped = a.lastPopped[:0]
	me := a.ctrl.LocalProcessID()
	for i := 0; i < a.blocksPerPass && !a.queue.IsEmpty(); i++ {
		starved := me >= a.queue.Remaining()
		id := a.queue.Pop()
		if starved {
			continue
		}
		a.lastPopped = append(a.lastPopped, id)
		level, index, ok := a.catalog.IndexPair(id)
		if !ok {
			continue
		}
		b, _ := a.catalog.Metadata().Bounds(level, index)
		a.pending.Elements = append(a.pending.Elements, view.Element{ID: int64(id), Bounds: b})
	}
	return a.pending.Len() > 0
}

// TakeStreamedPiece returns and clears the pending blocks.
func (a *AMR) TakeStreamedPiece() view.Piece {
	p := a.pending
	a.pending = view.Piece{}
	return p
}

// AppendStreamedPiece adds delivered blocks to the streamed data.
func (a *AMR) AppendStreamedPiece(p view.Piece) {
	if p.Len() == 0 {
		return
	}
	a.streamed = view.MergePieces(a.streamed, p)
}

// Streamed returns every block delivered to this rank.
func (a *AMR) Streamed() view.Piece { return a.streamed }

// LastPopped returns the block identifiers this rank fetched in the last
// StreamingUpdate.
func (a *AMR) LastPopped() []uint32 { return append([]uint32(nil), a.lastPopped...) }

// Remaining returns the blocks not yet handed out.
func (a *AMR) Remaining() int { return a.queue.Remaining() }

// Restart re-queues every block of the catalog and drops streamed data.
func (a *AMR) Restart() {
	if a.initialized {
		a.queue.Reinitialize()
	}
	a.pending = view.Piece{}
	a.streamed = view.Piece{}
}
