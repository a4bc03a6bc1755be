package view

import (
	"github.com/sirupsen/logrus"

	"github.com/distview/distview/view/comm"
	"github.com/distview/distview/view/geom"
	"github.com/distview/distview/view/trace"
)

// Frame describes one render handed to the Renderer.
type Frame struct {
	Pass        int
	Interactive bool
	LOD         bool
	Distributed bool
	Roles       comm.RoleSet
	Elements    int // elements this rank renders across all representations
}

// Renderer is the rasterization black box. It is only invoked on ranks that
// participate in the frame.
type Renderer interface {
	Render(f Frame)
}

// NullRenderer records the frames it is asked to render.
type NullRenderer struct {
	Frames []Frame
}

// Render implements Renderer.
func (r *NullRenderer) Render(f Frame) {
	r.Frames = append(r.Frames, f)
}

// Option configures a RenderView.
type Option func(*RenderView)

// WithRenderer sets the renderer. The default is a NullRenderer.
func WithRenderer(r Renderer) Option {
	return func(v *RenderView) { v.renderer = r }
}

// WithTrace records decisions, deliveries and streaming updates into rt.
func WithTrace(rt *trace.RenderTrace) Option {
	return func(v *RenderView) { v.trace = rt }
}

// RenderView is one rank's render view: the trigger surface over the
// decision engine, the role resolver and the delivery coordinator.
type RenderView struct {
	ctrl        comm.Controller
	cfg         Config
	engine      *DecisionEngine
	coordinator *DeliveryCoordinator
	renderer    Renderer
	trace       *trace.RenderTrace

	reps  []Representation
	clamp [6]float64

	pass       int
	lodStale   bool
	usedLOD    bool
	stillRoles comm.RoleSet
	lodRoles   comm.RoleSet
}

// NewRenderView creates a view. Panics if ctrl is nil or cfg is invalid.
func NewRenderView(ctrl comm.Controller, cfg Config, opts ...Option) *RenderView {
	if ctrl == nil {
		panic("view.NewRenderView: controller must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		panic("view.NewRenderView: " + err.Error())
	}
	v := &RenderView{
		ctrl:        ctrl,
		cfg:         cfg,
		engine:      NewDecisionEngine(ctrl, cfg),
		coordinator: NewDeliveryCoordinator(ctrl, cfg),
		renderer:    &NullRenderer{},
		clamp:       geom.UninitializedBounds(),
		lodStale:    true,
	}
	initial := ResolveRoles(ctrl.Topology(), false)
	v.stillRoles, v.lodRoles = initial, initial
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Config returns the view settings.
func (v *RenderView) Config() Config { return v.cfg }

// AddRepresentation appends r. Every rank must add the same representations
// in the same order.
func (v *RenderView) AddRepresentation(r Representation) {
	v.reps = append(v.reps, r)
}

// RemoveRepresentation removes the representation with id and reports
// whether it was present.
func (v *RenderView) RemoveRepresentation(id string) bool {
	for i, r := range v.reps {
		if r.ID() == id {
			v.reps = append(v.reps[:i], v.reps[i+1:]...)
			return true
		}
	}
	return false
}

// Representations returns the registered representations in order.
func (v *RenderView) Representations() []Representation {
	out := make([]Representation, len(v.reps))
	copy(out, v.reps)
	return out
}

// SetClampBounds restricts streaming to blocks intersecting b. Pass
// geom.UninitializedBounds to remove the clamp.
func (v *RenderView) SetClampBounds(b [6]float64) { v.clamp = b }

// Decision returns the last published render decision.
func (v *RenderView) Decision() Decision { return v.engine.Decision() }

// DecisionState returns the decision engine's state.
func (v *RenderView) DecisionState() State { return v.engine.State() }

// Delivery returns the delivery coordinator.
func (v *RenderView) Delivery() *DeliveryCoordinator { return v.coordinator }

// StillRenderRoles returns the roles executing the next still render.
func (v *RenderView) StillRenderRoles() comm.RoleSet { return v.stillRoles }

// LODRenderRoles returns the roles executing the next LOD render.
func (v *RenderView) LODRenderRoles() comm.RoleSet { return v.lodRoles }

// UsedLODForLastRender reports whether the last render used LOD geometry.
func (v *RenderView) UsedLODForLastRender() bool { return v.usedLOD }

// Update runs a full-resolution pass: size reduction, decision, role
// derivation and delivery. Collective.
func (v *RenderView) Update() {
	v.pass++
	reports, reqs := v.collect(false)
	d := v.engine.EvaluateFull(reports, reqs)
	v.stillRoles = ResolveRoles(v.ctrl.Topology(), d.UseDistributedRenderingForRender)
	v.recordDecision(d, false)

	stats := v.coordinator.Deliver(v.reps, d.UseDistributedRenderingForRender, false)
	v.recordDelivery(stats, false, d.UseDistributedRenderingForRender)
	v.lodStale = true
}

// UpdateLOD runs an LOD pass. Collective.
func (v *RenderView) UpdateLOD() {
	v.pass++
	reports, reqs := v.collect(true)
	d := v.engine.EvaluateLOD(reports, reqs)
	v.lodRoles = ResolveRoles(v.ctrl.Topology(), d.UseDistributedRenderingForLODRender)
	v.recordDecision(d, true)

	stats := v.coordinator.Deliver(v.reps, d.UseDistributedRenderingForLODRender, true)
	v.recordDelivery(stats, true, d.UseDistributedRenderingForLODRender)
	v.lodStale = false
}

// StillRender renders full-resolution geometry. Collective.
func (v *RenderView) StillRender() {
	d := v.engine.Decision()
	v.render(false, false, d.UseDistributedRenderingForRender, v.stillRoles)
}

// InteractiveRender renders LOD geometry when the last Update decided so,
// running UpdateLOD first if it has not run since that Update. Collective.
func (v *RenderView) InteractiveRender() {
	d := v.engine.Decision()
	if !d.UseLODForInteractiveRender {
		v.render(true, false, d.UseDistributedRenderingForRender, v.stillRoles)
		return
	}
	if v.lodStale {
		v.UpdateLOD()
		d = v.engine.Decision()
	}
	v.render(true, true, d.UseDistributedRenderingForLODRender, v.lodRoles)
}

// StreamingUpdate reprioritizes every streamable representation for the
// view planes and fetches its next blocks. It returns, identically on every
// rank, the representations with a pending piece on any rank. Collective.
func (v *RenderView) StreamingUpdate(planes [24]float64) []string {
	v.pass++
	var ids []string
	for _, r := range v.reps {
		s, ok := r.(Streamable)
		if !ok {
			continue
		}
		pending := s.StreamingUpdate(planes, v.clamp)
		if v.ctrl.AllReduceLogicalOr(pending) {
			ids = append(ids, r.ID())
		}
		if b, ok := r.(StreamProgress); ok {
			v.trace.RecordStream(trace.StreamRecord{
				Pass:           v.pass,
				Rank:           v.ctrl.LocalProcessID(),
				Representation: r.ID(),
				Blocks:         b.LastPopped(),
				Remaining:      b.Remaining(),
			})
		}
	}
	return ids
}

// DeliverStreamedPieces delivers the pending pieces of the named
// representations. ids must be the result of StreamingUpdate. Collective.
func (v *RenderView) DeliverStreamedPieces(ids []string) {
	distributed := v.engine.Decision().UseDistributedRenderingForRender
	for _, id := range ids {
		s, ok := v.streamable(id)
		if !ok {
			// ids come from StreamingUpdate, so every rank skips alike.
			logrus.Warnf("streaming: representation %q is not streamable or was removed; skipping delivery", id)
			continue
		}
		v.coordinator.DeliverStreamed(s, distributed)
	}
}

func (v *RenderView) streamable(id string) (Streamable, bool) {
	for _, r := range v.reps {
		if r.ID() == id {
			s, ok := r.(Streamable)
			return s, ok
		}
	}
	return nil, false
}

func (v *RenderView) collect(lod bool) ([]GeometrySizeReport, Requirements) {
	reports := make([]GeometrySizeReport, 0, len(v.reps))
	var reqs Requirements
	for _, r := range v.reps {
		reports = append(reports, GeometrySizeReport{
			Representation: r.ID(),
			Bytes:          r.GeometrySize(lod),
			LOD:            lod,
		})
		reqs.Distributed = reqs.Distributed || r.RequiresDistributedRendering(lod)
		reqs.LocalOnly = reqs.LocalOnly || r.RequiresLocalOnlyRendering(lod)
	}
	return reports, reqs
}

func (v *RenderView) render(interactive, lod, distributed bool, roles comm.RoleSet) {
	v.pass++
	v.usedLOD = lod
	// Keeps every rank in step even though only participants draw.
	v.ctrl.Barrier()
	if !Participates(roles, v.ctrl.Topology().RolesOf(v.ctrl.LocalProcessID())) {
		return
	}
	elements := 0
	for _, r := range v.reps {
		if p, ok := v.coordinator.Delivered(r.ID(), lod); ok {
			elements += p.Len()
		}
	}
	v.renderer.Render(Frame{
		Pass:        v.pass,
		Interactive: interactive,
		LOD:         lod,
		Distributed: distributed,
		Roles:       roles,
		Elements:    elements,
	})
}

func (v *RenderView) recordDecision(d Decision, lod bool) {
	rec := trace.DecisionRecord{
		Pass:      v.pass,
		Rank:      v.ctrl.LocalProcessID(),
		LOD:       lod,
		Bytes:     d.FullBytes,
		Threshold: v.cfg.RemoteRenderingThresholdMB,
		Forced:    d.Forced,
	}
	if lod {
		rec.Bytes = d.LODBytes
		rec.Distributed = d.UseDistributedRenderingForLODRender
		rec.Roles = v.lodRoles.String()
	} else {
		rec.Distributed = d.UseDistributedRenderingForRender
		rec.UseLOD = d.UseLODForInteractiveRender
		rec.Roles = v.stillRoles.String()
	}
	v.trace.RecordDecision(rec)
}

func (v *RenderView) recordDelivery(s DeliveryStats, lod, distributed bool) {
	v.trace.RecordDelivery(trace.DeliveryRecord{
		Pass:          v.pass,
		Rank:          v.ctrl.LocalProcessID(),
		LOD:           lod,
		Distributed:   distributed,
		Regions:       s.Regions,
		Redistributed: s.Redistributed,
		Skipped:       s.Skipped,
		ElementsSent:  s.ElementsSent,
		BytesSent:     s.BytesSent,
		ElementsHeld:  s.ElementsHeld,
	})
}
