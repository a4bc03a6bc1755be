package scene

import (
	"fmt"

	"github.com/distview/distview/view"
	"github.com/distview/distview/view/amr"
	"github.com/distview/distview/view/comm"
	"github.com/distview/distview/view/geom"
	"github.com/distview/distview/view/repr"
	"github.com/distview/distview/view/streaming"
)

// elementFraction is the size of a generated element relative to the
// extent of its rank's slab.
const elementFraction = 0.05

// Build creates the representations of spec for the rank behind ctrl, in
// spec order. Every rank calls it with the same spec; geometry differs per
// rank but is a pure function of (seed, representation, rank).
func Build(spec *Spec, ctrl comm.Controller) ([]view.Representation, error) {
	rng := NewPartitionedRNG(SceneKey(spec.Seed))
	rank := ctrl.LocalProcessID()
	out := make([]view.Representation, 0, len(spec.Representations))
	for i := range spec.Representations {
		rs := &spec.Representations[i]
		bounds, err := boxFrom(rs.Name+".bounds", rs.Bounds)
		if err != nil {
			return nil, err
		}
		switch rs.Kind {
		case KindGeometry:
			opts, err := geometryOptions(rs, spec.View)
			if err != nil {
				return nil, err
			}
			elements := generateElements(rng, rs, bounds, ctrl.Topology(), rank)
			out = append(out, repr.NewGeometry(rs.Name, elements, opts))
		case KindAMR:
			meta, err := amr.UniformRefinement(bounds, rs.Levels, rs.Refinement)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", rs.Name, err)
			}
			scorer := streaming.NewScorer(spec.View.Streaming.Scorer)
			out = append(out, repr.NewAMR(rs.Name, ctrl, meta, scorer, spec.View.Streaming.BlocksPerPass))
		case KindLegend:
			out = append(out, repr.NewLegend(rs.Name, bounds))
		default:
			return nil, fmt.Errorf("%s: unknown kind %q", rs.Name, rs.Kind)
		}
	}
	return out, nil
}

func geometryOptions(rs *RepresentationSpec, cfg view.Config) (repr.GeometryOptions, error) {
	policy, err := view.ParsePolicy(rs.Policy)
	if err != nil {
		return repr.GeometryOptions{}, fmt.Errorf("%s: %w", rs.Name, err)
	}
	mode, err := view.ParseRedistributionMode(rs.Mode)
	if err != nil {
		return repr.GeometryOptions{}, fmt.Errorf("%s: %w", rs.Name, err)
	}
	gather := true
	if rs.GatherBeforeDelivery != nil {
		gather = *rs.GatherBeforeDelivery
	}
	return repr.GeometryOptions{
		Policy:               policy,
		Mode:                 mode,
		DeliverToClient:      rs.DeliverToClient,
		GatherBeforeDelivery: gather,
		DeliverToAll:         rs.DeliverToAll,
		RequiresDistributed:  rs.RequiresDistributed,
		RequiresLocalOnly:    rs.RequiresLocal,
		LODResolution:        cfg.LODResolution,
		UseOutlineForLOD:     cfg.UseOutlineForLOD,
	}, nil
}

// generateElements places rs.ElementsPerRank elements inside this rank's
// slab of bounds. Data ranks split bounds into equal slabs along its longest
// axis, the way a partitioned reader hands out pieces. Ranks holding no
// data get none.
func generateElements(rng *PartitionedRNG, rs *RepresentationSpec, bounds geom.Box, topo comm.Topology, rank int) []view.Element {
	dataRanks := topo.DataRanks()
	slot := -1
	for i, r := range dataRanks {
		if r == rank {
			slot = i
		}
	}
	if slot < 0 || rs.ElementsPerRank == 0 {
		return nil
	}

	slab := bounds
	axis := bounds.LongestAxis()
	lo, hi := axisRange(bounds, axis)
	width := (hi - lo) / float64(len(dataRanks))
	_, slab = slab.Split(axis, lo+width*float64(slot))
	slab, _ = slab.Split(axis, lo+width*float64(slot+1))

	r := rng.ForSubsystem(SubsystemGeometry(rs.Name, rank))
	ext := slab.Extent()
	half := [3]float64{ext.X * elementFraction / 2, ext.Y * elementFraction / 2, ext.Z * elementFraction / 2}
	out := make([]view.Element, rs.ElementsPerRank)
	for i := range out {
		c := [3]float64{
			slab.Min.X + r.Float64()*ext.X,
			slab.Min.Y + r.Float64()*ext.Y,
			slab.Min.Z + r.Float64()*ext.Z,
		}
		b := geom.NewBox(c[0]-half[0], c[0]+half[0], c[1]-half[1], c[1]+half[1], c[2]-half[2], c[2]+half[2])
		out[i] = view.Element{
			ID:     int64(rank)<<32 | int64(i),
			Bounds: b.Intersection(slab),
		}
	}
	return out
}

func axisRange(b geom.Box, axis int) (lo, hi float64) {
	switch axis {
	case 0:
		return b.Min.X, b.Max.X
	case 1:
		return b.Min.Y, b.Max.Y
	}
	return b.Min.Z, b.Max.Z
}
