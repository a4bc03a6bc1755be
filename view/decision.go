package view

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/distview/distview/view/comm"
)

// bytesPerMB converts aggregate bytes to the megabytes thresholds are given in.
const bytesPerMB = 1e6

// GeometrySizeReport is one representation's local size estimate for a pass.
type GeometrySizeReport struct {
	Representation string
	Bytes          int64
	LOD            bool
}

// Requirements are the hard rendering requirements raised locally in a pass.
type Requirements struct {
	Distributed bool
	LocalOnly   bool
}

// State is the decision engine's position in a pass.
type State int

const (
	StateUndetermined State = iota
	StateEvaluating
	StateDecided
)

func (s State) String() string {
	switch s {
	case StateUndetermined:
		return "undetermined"
	case StateEvaluating:
		return "evaluating"
	case StateDecided:
		return "decided"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Decision is the published outcome of the most recent passes. Full passes
// replace the full-resolution fields and LOD passes the LOD field.
type Decision struct {
	UseDistributedRenderingForRender    bool
	UseDistributedRenderingForLODRender bool
	UseLODForInteractiveRender          bool

	FullBytes float64 // aggregate full-resolution bytes from the last full pass
	LODBytes  float64 // aggregate LOD bytes from the last LOD pass

	// Forced records which requirement flag overrode the size heuristic in
	// the last evaluation: "distributed", "local" or "".
	Forced string
}

// DecisionEngine makes the per-pass render decision. Evaluate calls are
// collective.
type DecisionEngine struct {
	ctrl     comm.Controller
	cfg      Config
	state    State
	decision Decision
}

// NewDecisionEngine creates an engine in StateUndetermined. Panics if ctrl is nil.
func NewDecisionEngine(ctrl comm.Controller, cfg Config) *DecisionEngine {
	if ctrl == nil {
		panic("view.NewDecisionEngine: controller must not be nil")
	}
	return &DecisionEngine{ctrl: ctrl, cfg: cfg}
}

// State returns the engine state.
func (e *DecisionEngine) State() State { return e.state }

// Decision returns the last published decision.
func (e *DecisionEngine) Decision() Decision { return e.decision }

// EvaluateFull decides distributed rendering and LOD use for the next still
// and interactive renders from full-resolution reports.
func (e *DecisionEngine) EvaluateFull(reports []GeometrySizeReport, reqs Requirements) Decision {
	e.state = StateEvaluating
	total, count, dist, local := e.reduce(reports, reqs, false)

	next := e.decision
	next.FullBytes = total
	next.Forced = ""
	if count == 0 {
		logrus.Debugf("render decision: no representations on any rank; rendering locally at full resolution")
		next.UseDistributedRenderingForRender = false
		next.UseLODForInteractiveRender = false
	} else {
		next.UseDistributedRenderingForRender, next.Forced = e.distributed(total, dist, local, "full")
		next.UseLODForInteractiveRender = total/bytesPerMB > e.cfg.LODRenderingThresholdMB
	}
	e.publish(next)
	return next
}

// EvaluateLOD decides distributed rendering for the next LOD render from LOD
// reports.
func (e *DecisionEngine) EvaluateLOD(reports []GeometrySizeReport, reqs Requirements) Decision {
	e.state = StateEvaluating
	total, count, dist, local := e.reduce(reports, reqs, true)

	next := e.decision
	next.LODBytes = total
	next.Forced = ""
	if count == 0 {
		logrus.Debugf("render decision: no LOD representations on any rank; rendering LOD locally")
		next.UseDistributedRenderingForLODRender = false
	} else {
		next.UseDistributedRenderingForLODRender, next.Forced = e.distributed(total, dist, local, "lod")
	}
	e.publish(next)
	return next
}

// reduce runs the collective part of a pass. It makes the same four
// collective calls on every rank whatever the local inputs.
func (e *DecisionEngine) reduce(reports []GeometrySizeReport, reqs Requirements, lod bool) (total, count float64, dist, local bool) {
	sizes := make([]float64, 0, len(reports))
	for _, r := range reports {
		if r.LOD == lod {
			sizes = append(sizes, float64(r.Bytes))
		}
	}
	localSum := 0.0
	if len(sizes) > 0 {
		localSum = floats.Sum(sizes)
	}
	total = e.ctrl.AllReduceSum(localSum)
	count = e.ctrl.AllReduceSum(float64(len(sizes)))
	dist = e.ctrl.AllReduceLogicalOr(reqs.Distributed)
	local = e.ctrl.AllReduceLogicalOr(reqs.LocalOnly)
	return total, count, dist, local
}

// distributed applies the decision rules to reduced inputs. Requirement
// flags win over size; both flags resolve to distributed.
func (e *DecisionEngine) distributed(total float64, dist, local bool, kind string) (bool, string) {
	topo := e.ctrl.Topology()
	if !e.cfg.RemoteRenderingAvailable || topo.IsBuiltin() {
		return false, ""
	}
	switch {
	case dist && local:
		if e.ctrl.LocalProcessID() == topo.ClientRank() {
			logrus.Warnf("render decision (%s): representations require both distributed and local-only rendering; using distributed rendering", kind)
		}
		return true, "distributed"
	case dist:
		return true, "distributed"
	case local:
		return false, "local"
	}
	over := total/bytesPerMB > e.cfg.RemoteRenderingThresholdMB
	logrus.Debugf("render decision (%s): rank %d aggregate %s vs threshold %.1f MB -> distributed=%t",
		kind, e.ctrl.LocalProcessID(), humanize.Bytes(uint64(total)), e.cfg.RemoteRenderingThresholdMB, over)
	return over, ""
}

func (e *DecisionEngine) publish(d Decision) {
	e.decision = d
	e.state = StateDecided
}
