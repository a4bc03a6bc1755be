package view

import (
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/distview/distview/view/comm"
	"github.com/distview/distview/view/geom"
)

// DeliveryStats describes what one delivery pass did on this rank.
type DeliveryStats struct {
	Regions       int      // partition regions built this pass, 0 when none
	Redistributed int      // representations moved through the partition
	Skipped       []string // redistributable representations left untouched
	ElementsSent  int      // elements this rank sent to other ranks
	BytesSent     int64    // encoded payload bytes this rank sent to other ranks
	ElementsHeld  int      // elements this rank holds after delivery
}

type deliveryKey struct {
	rep string
	lod bool
}

// repSummary is one rank's contribution about one representation.
type repSummary struct {
	Policy RedistributionPolicy `json:"p"`
	Bounds geom.Box             `json:"b"`
	Mode   RedistributionMode   `json:"m"`
	Client bool                 `json:"c,omitempty"`
	Gather bool                 `json:"g,omitempty"`
	All    bool                 `json:"a,omitempty"`
}

// repPlan is the agreed, session-wide view of one representation for a pass.
type repPlan struct {
	rep    Representation
	policy RedistributionPolicy
	bounds []geom.Box // delivery bounds indexed by rank
	mode   RedistributionMode
	client bool
	gather bool
	all    bool
}

func (p *repPlan) globalBounds() geom.Box {
	b := geom.EmptyBox()
	for _, rb := range p.bounds {
		b = b.Union(rb)
	}
	return b
}

// DeliveryCoordinator moves representation pieces to the ranks that render
// them. Deliver and DeliverStreamed are collective. Per-pass state is
// discarded at the start of the next pass.
type DeliveryCoordinator struct {
	ctrl      comm.Controller
	cfg       Config
	delivered map[deliveryKey]Piece
	partition *Partition
	stats     DeliveryStats
}

// NewDeliveryCoordinator creates a coordinator. Panics if ctrl is nil.
func NewDeliveryCoordinator(ctrl comm.Controller, cfg Config) *DeliveryCoordinator {
	if ctrl == nil {
		panic("view.NewDeliveryCoordinator: controller must not be nil")
	}
	return &DeliveryCoordinator{
		ctrl:      ctrl,
		cfg:       cfg,
		delivered: make(map[deliveryKey]Piece),
	}
}

// Stats returns the statistics of the last pass.
func (c *DeliveryCoordinator) Stats() DeliveryStats { return c.stats }

// Partition returns the partition built by the last pass, or nil.
func (c *DeliveryCoordinator) Partition() *Partition { return c.partition }

// Delivered returns the piece this rank received for rep in the last pass
// of the given resolution.
func (c *DeliveryCoordinator) Delivered(rep string, lod bool) (Piece, bool) {
	p, ok := c.delivered[deliveryKey{rep, lod}]
	return p, ok
}

// Deliver runs one delivery pass over reps for a distributed-rendering
// decision. reps must be in the same order on every rank.
func (c *DeliveryCoordinator) Deliver(reps []Representation, distributed, lod bool) DeliveryStats {
	c.stats = DeliveryStats{}
	c.partition = nil
	for k := range c.delivered {
		if k.lod == lod {
			delete(c.delivered, k)
		}
	}

	plans := c.plan(reps, lod)
	topo := c.ctrl.Topology()

	switch {
	case topo.IsBuiltin():
		for _, p := range plans {
			c.publish(p.rep, p.rep.Piece(lod), lod)
		}
	case !distributed:
		for _, p := range plans {
			c.publish(p.rep, c.collectLocal(p, p.rep.Piece(lod)), lod)
		}
	default:
		c.deliverDistributed(plans, lod)
	}

	logrus.Debugf("delivery (lod=%t, distributed=%t): rank %d sent %d elements (%s), holds %d",
		lod, distributed, c.ctrl.LocalProcessID(), c.stats.ElementsSent,
		humanize.Bytes(uint64(c.stats.BytesSent)), c.stats.ElementsHeld)
	return c.stats
}

func (c *DeliveryCoordinator) deliverDistributed(plans []*repPlan, lod bool) {
	topo := c.ctrl.Topology()
	renderRanks := topo.RenderRanks()

	// Data left on the client by an earlier local pass must reach a render
	// rank. Client-delivered copies stay put: the client already has them.
	working := make([]Piece, len(plans))
	for i, p := range plans {
		if p.client || p.all {
			working[i] = c.forward(p.rep.Piece(lod))
			continue
		}
		working[i] = c.toRenderRanks(p.rep.Piece(lod))
	}

	ordered := c.cfg.OrderedCompositing && len(renderRanks) > 1
	if ordered && anyPolicy(plans, PolicyRedistributable) {
		c.partition = c.buildPartition(plans, working)
	}
	c.stats.Regions = c.partition.Len()

	for i, p := range plans {
		if !p.policy.Has(PolicyRedistributable) || !ordered {
			continue
		}
		if c.partition == nil {
			if c.ctrl.LocalProcessID() == topo.ClientRank() {
				logrus.Warnf("delivery: no spatial partition available for redistributable representation %q; leaving it untouched this pass", p.rep.ID())
			}
			c.stats.Skipped = append(c.stats.Skipped, p.rep.ID())
			continue
		}
		working[i] = c.redistribute(working[i], p.mode)
		c.stats.Redistributed++
	}

	renders := c.ctrl.IsRenderServer()
	for i, p := range plans {
		var out Piece
		switch {
		case p.all:
			out = c.gatherToAll(working[i])
		case p.client:
			out = c.deliverToClient(working[i], p.gather, renderRanks[0])
		case renders:
			out = working[i]
		case c.ctrl.IsClient():
			out = OutlinePiece(p.globalBounds())
		}
		c.publish(p.rep, out, lod)
	}
}

// DeliverStreamed moves rep's pending streamed piece to where it renders:
// the render ranks when distributed, the client otherwise.
func (c *DeliveryCoordinator) DeliverStreamed(rep Streamable, distributed bool) {
	piece := rep.TakeStreamedPiece()
	topo := c.ctrl.Topology()
	var out Piece
	switch {
	case topo.IsBuiltin():
		out = piece
	case distributed:
		out = c.toRenderRanks(piece)
	default:
		out = c.gatherTo(piece, topo.ClientRank())
	}
	rep.AppendStreamedPiece(out)
}

// plan exchanges every representation's local summary in one all-gather and
// derives the agreed per-representation plan.
func (c *DeliveryCoordinator) plan(reps []Representation, lod bool) []*repPlan {
	local := make([]repSummary, len(reps))
	for i, r := range reps {
		deliver, gather := clientDelivery(r)
		local[i] = repSummary{
			Policy: r.RedistributionPolicy(),
			Bounds: r.DeliveryBounds(),
			Mode:   boundaryMode(r),
			Client: deliver,
			Gather: gather,
			All:    deliverToAll(r),
		}
		if lod {
			local[i].Bounds = r.Piece(true).Bounds()
		}
	}
	payloads := c.ctrl.AllGather(comm.MustEncode(local))

	n := c.ctrl.NumberOfProcesses()
	summaries := make([][]repSummary, n)
	for rank, b := range payloads {
		if err := comm.Decode(b, &summaries[rank]); err != nil {
			logrus.Warnf("delivery: rank %d summary unreadable: %v", rank, err)
		}
	}

	isClient := c.ctrl.LocalProcessID() == c.ctrl.Topology().ClientRank()
	plans := make([]*repPlan, len(reps))
	for i, r := range reps {
		p := &repPlan{rep: r, bounds: make([]geom.Box, n), gather: true}
		modeSet := false
		for rank := 0; rank < n; rank++ {
			p.bounds[rank] = geom.EmptyBox()
			if i >= len(summaries[rank]) {
				continue
			}
			s := summaries[rank][i]
			p.policy |= s.Policy
			p.bounds[rank] = s.Bounds
			p.client = p.client || s.Client
			p.gather = p.gather && s.Gather
			p.all = p.all || s.All
			if !modeSet {
				p.mode, modeSet = s.Mode, true
			}
		}
		if isClient {
			p.policy = p.policy.Normalize(r.ID())
		} else {
			p.policy = p.policy.normalized()
		}
		plans[i] = p
	}
	return plans
}

// forwardTarget returns the render-rank index whose data rank feeds it, or
// -1 for ranks holding no data.
func forwardTarget(topo comm.Topology, rank int) int {
	renderRanks := topo.RenderRanks()
	if topo.SeparateRenderServers() {
		for j, d := range topo.DataRanks() {
			if d == rank {
				return j % len(renderRanks)
			}
		}
	}
	for i, r := range renderRanks {
		if r == rank {
			return i
		}
	}
	return -1
}

// forward sends data-server pieces to render servers when they are separate
// processes. Data rank j feeds render rank j mod R.
func (c *DeliveryCoordinator) forward(piece Piece) Piece {
	topo := c.ctrl.Topology()
	if !topo.SeparateRenderServers() {
		return piece
	}
	me := c.ctrl.LocalProcessID()
	outgoing := make([][]byte, c.ctrl.NumberOfProcesses())
	if c.ctrl.IsDataServer() {
		if t := forwardTarget(topo, me); t >= 0 {
			dest := topo.RenderRanks()[t]
			outgoing[dest] = c.encode(piece, dest)
		}
	}
	received := c.ctrl.AllToAll(outgoing)
	var parts []Piece
	if c.ctrl.IsRenderServer() {
		parts = append(parts, piece)
	}
	for _, b := range received {
		parts = append(parts, decodePiece(b))
	}
	return MergePieces(parts...)
}

// toRenderRanks moves the pieces of ranks that do not render onto render
// ranks: data ranks feed their forwarding target, any other rank the first
// render rank.
func (c *DeliveryCoordinator) toRenderRanks(piece Piece) Piece {
	topo := c.ctrl.Topology()
	renderRanks := topo.RenderRanks()
	renders := c.ctrl.IsRenderServer()
	outgoing := make([][]byte, c.ctrl.NumberOfProcesses())
	if !renders {
		dest := renderRanks[0]
		if t := forwardTarget(topo, c.ctrl.LocalProcessID()); t >= 0 {
			dest = renderRanks[t]
		}
		outgoing[dest] = c.encode(piece, dest)
	}
	received := c.ctrl.AllToAll(outgoing)
	if !renders {
		return Piece{}
	}
	parts := []Piece{piece}
	for _, b := range received {
		parts = append(parts, decodePiece(b))
	}
	return MergePieces(parts...)
}

// buildPartition derives this pass's partition: the authoritative per-rank
// bounds of the first use-bounds representation, or a kd split of the
// load-balancing data.
func (c *DeliveryCoordinator) buildPartition(plans []*repPlan, working []Piece) *Partition {
	topo := c.ctrl.Topology()
	regions := len(topo.RenderRanks())

	for _, p := range plans {
		if !p.policy.Has(PolicyUseBoundsForRedistribution) {
			continue
		}
		boxes := make([]geom.Box, regions)
		for i := range boxes {
			boxes[i] = geom.EmptyBox()
		}
		valid := false
		for rank, b := range p.bounds {
			if t := forwardTarget(topo, rank); t >= 0 && b.IsValid() {
				boxes[t] = boxes[t].Union(b)
				valid = true
			}
		}
		if valid {
			return &Partition{Regions: boxes}
		}
	}

	domain := geom.EmptyBox()
	for _, p := range plans {
		if p.policy.Has(PolicyRedistributable) || p.policy.Has(PolicyUseForLoadBalancing) {
			domain = domain.Union(p.globalBounds())
		}
	}

	var centres []r3.Vec
	if anyPolicy(plans, PolicyUseForLoadBalancing) {
		var local []r3.Vec
		for i, p := range plans {
			if p.policy.Has(PolicyUseForLoadBalancing) {
				for _, e := range working[i].Elements {
					local = append(local, e.Bounds.Center())
				}
			}
		}
		for rank, b := range c.ctrl.AllGather(comm.MustEncode(local)) {
			var pts []r3.Vec
			if err := comm.Decode(b, &pts); err != nil {
				logrus.Warnf("delivery: rank %d load-balancing centres unreadable: %v", rank, err)
			}
			centres = append(centres, pts...)
		}
	} else {
		for _, p := range plans {
			if !p.policy.Has(PolicyRedistributable) {
				continue
			}
			for _, b := range p.bounds {
				if b.IsValid() {
					centres = append(centres, b.Center())
				}
			}
		}
	}
	return BuildPartition(centres, domain, regions)
}

// redistribute moves piece's elements to the render rank owning them and
// returns what this rank receives.
func (c *DeliveryCoordinator) redistribute(piece Piece, mode RedistributionMode) Piece {
	renderRanks := c.ctrl.Topology().RenderRanks()
	buckets := make([]Piece, c.ctrl.NumberOfProcesses())
	for _, e := range piece.Elements {
		for _, t := range c.targets(e, mode) {
			dest := renderRanks[t.region]
			buckets[dest].Elements = append(buckets[dest].Elements, t.elem)
		}
	}
	outgoing := make([][]byte, len(buckets))
	for dest, b := range buckets {
		outgoing[dest] = c.encode(b, dest)
	}
	received := c.ctrl.AllToAll(outgoing)
	parts := make([]Piece, 0, len(received))
	for _, b := range received {
		parts = append(parts, decodePiece(b))
	}
	return MergePieces(parts...)
}

type target struct {
	region int
	elem   Element
}

func (c *DeliveryCoordinator) targets(e Element, mode RedistributionMode) []target {
	owner := target{region: c.partition.Owner(e.Bounds.Center()), elem: e}
	if mode == UniquelyAssignBoundary {
		return []target{owner}
	}
	regions := c.partition.Overlapping(e.Bounds)
	switch len(regions) {
	case 0:
		return []target{owner}
	case 1:
		return []target{{region: regions[0], elem: e}}
	}
	out := make([]target, 0, len(regions))
	for _, r := range regions {
		part := e
		if mode == SplitBoundary {
			part.Bounds = e.Bounds.Intersection(c.partition.Regions[r])
		}
		out = append(out, target{region: r, elem: part})
	}
	return out
}

// collectLocal delivers a representation for local rendering: everything
// goes to the client and server ranks keep nothing.
func (c *DeliveryCoordinator) collectLocal(p *repPlan, piece Piece) Piece {
	topo := c.ctrl.Topology()
	switch {
	case p.all:
		return c.gatherToAll(piece)
	case p.client && !p.gather:
		root := topo.DataRanks()[0]
		out := c.sendTo(root, topo.ClientRank(), piece)
		if !c.ctrl.IsClient() {
			return Piece{}
		}
		return out
	}
	return c.gatherTo(piece, topo.ClientRank())
}

// deliverToClient ships a consolidated piece from the root server to the
// client. Servers keep their own piece. With gather false only the root's
// piece is shipped.
func (c *DeliveryCoordinator) deliverToClient(piece Piece, gather bool, root int) Piece {
	shipped := piece
	if gather {
		shipped = c.gatherTo(piece, root)
	}
	client := c.ctrl.Topology().ClientRank()
	received := c.sendTo(root, client, shipped)
	if c.ctrl.IsClient() {
		return received
	}
	return piece
}

// gatherTo merges every rank's piece on root. Other ranks get an empty piece.
func (c *DeliveryCoordinator) gatherTo(piece Piece, root int) Piece {
	parts := c.ctrl.Gather(c.encode(piece, root), root)
	if parts == nil {
		return Piece{}
	}
	pieces := make([]Piece, len(parts))
	for i, b := range parts {
		pieces[i] = decodePiece(b)
	}
	return MergePieces(pieces...)
}

// gatherToAll merges every rank's piece on every rank.
func (c *DeliveryCoordinator) gatherToAll(piece Piece) Piece {
	root := c.ctrl.Topology().ClientRank()
	merged := c.gatherTo(piece, root)
	var payload []byte
	if c.ctrl.LocalProcessID() == root {
		payload = comm.MustEncode(merged)
		c.countSent(merged.Len()*(c.ctrl.NumberOfProcesses()-1), len(payload)*(c.ctrl.NumberOfProcesses()-1))
	}
	return decodePiece(c.ctrl.Broadcast(payload, root))
}

// sendTo moves piece from rank from to rank to and returns it on to.
func (c *DeliveryCoordinator) sendTo(from, to int, piece Piece) Piece {
	outgoing := make([][]byte, c.ctrl.NumberOfProcesses())
	if c.ctrl.LocalProcessID() == from {
		outgoing[to] = c.encode(piece, to)
	}
	received := c.ctrl.AllToAll(outgoing)
	if c.ctrl.LocalProcessID() != to {
		return Piece{}
	}
	return decodePiece(received[from])
}

// encode serializes piece for dest, counting it as sent traffic when dest
// is another rank. Empty pieces encode to nil.
func (c *DeliveryCoordinator) encode(piece Piece, dest int) []byte {
	if piece.Len() == 0 && !piece.Outline {
		return nil
	}
	b := comm.MustEncode(piece)
	if dest != c.ctrl.LocalProcessID() {
		c.countSent(piece.Len(), len(b))
	}
	return b
}

func (c *DeliveryCoordinator) countSent(elements, bytes int) {
	c.stats.ElementsSent += elements
	c.stats.BytesSent += int64(bytes)
}

func (c *DeliveryCoordinator) publish(rep Representation, piece Piece, lod bool) {
	c.delivered[deliveryKey{rep.ID(), lod}] = piece
	c.stats.ElementsHeld += piece.Len()
	rep.SetPieceProducer(piece, lod)
}

func decodePiece(b []byte) Piece {
	var p Piece
	if err := comm.Decode(b, &p); err != nil {
		logrus.Warnf("delivery: dropping unreadable piece: %v", err)
		return Piece{}
	}
	return p
}

func anyPolicy(plans []*repPlan, f RedistributionPolicy) bool {
	for _, p := range plans {
		if p.policy.Has(f) {
			return true
		}
	}
	return false
}
