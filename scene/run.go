package scene

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/distview/distview/view"
	"github.com/distview/distview/view/comm"
	"github.com/distview/distview/view/trace"
)

// RankReport is what one rank observed over a run.
type RankReport struct {
	Rank     int
	Roles    comm.RoleSet
	Frames   []view.Frame
	Decision view.Decision
	Trace    *trace.RenderTrace
	Summary  *trace.TraceSummary
}

// Report is the outcome of a run.
type Report struct {
	Topology  comm.Topology
	Ranks     []RankReport
	BytesSent []int64 // collective payload bytes sent per rank
}

// Run builds spec on an in-process group and drives its frames on every
// rank. The spec must have passed Validate.
func Run(ctx context.Context, spec *Spec, level trace.Level) (*Report, error) {
	topo := spec.Topology()
	frustum, err := spec.Camera.Frustum()
	if err != nil {
		return nil, fmt.Errorf("camera: %w", err)
	}
	planes := frustum.Planes()

	g := comm.NewGroup(topo)
	report := &Report{Topology: topo, Ranks: make([]RankReport, topo.Processes)}
	err = g.Run(ctx, func(ctx context.Context, c comm.Controller) error {
		reps, err := Build(spec, c)
		if err != nil {
			return err
		}
		renderer := &view.NullRenderer{}
		rt := trace.NewRenderTrace(level)
		v := view.NewRenderView(c, spec.View, view.WithRenderer(renderer), view.WithTrace(rt))
		for _, r := range reps {
			v.AddRepresentation(r)
		}
		v.SetClampBounds(spec.Clamp())

		for i, f := range spec.Frames {
			if err := ctx.Err(); err != nil {
				return err
			}
			switch f {
			case FrameStill:
				v.Update()
				v.StillRender()
			case FrameInteractive:
				v.InteractiveRender()
			case FrameStream:
				v.DeliverStreamedPieces(v.StreamingUpdate(planes))
			default:
				return fmt.Errorf("frame[%d]: unknown frame %q", i, f)
			}
		}

		rank := c.LocalProcessID()
		report.Ranks[rank] = RankReport{
			Rank:     rank,
			Roles:    topo.RolesOf(rank),
			Frames:   renderer.Frames,
			Decision: v.Decision(),
			Trace:    rt,
			Summary:  trace.Summarize(rt),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	report.BytesSent = g.BytesSent()
	logrus.Debugf("scene run complete: %d ranks, %d frames", topo.Processes, len(spec.Frames))
	return report, nil
}
