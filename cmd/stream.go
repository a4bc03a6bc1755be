package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/distview/distview/view/amr"
	"github.com/distview/distview/view/comm"
	"github.com/distview/distview/view/geom"
	"github.com/distview/distview/view/streaming"
)

var (
	streamLevels    int       // AMR levels
	streamRatio     int       // Per-axis refinement ratio
	streamRanks     int       // Processes popping from the queue
	streamMaxBlocks int       // Stop after this many blocks in total (0 = drain)
	streamScorer    string    // Priority scorer
	streamDomain    []float64 // AMR domain bounds
	streamViewBox   []float64 // Orthographic view box; empty = whole domain
	streamClamp     []float64 // Optional clamp bounds
)

// streamCmd drains an AMR priority queue for a camera and prints the pop order
var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Print the order in which ranks stream AMR blocks for a view",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !streaming.IsValidScorer(streamScorer) {
			return fmt.Errorf("unknown --scorer %q; valid: %s", streamScorer, strings.Join(streaming.ValidScorerNames(), ", "))
		}
		if streamRanks < 1 {
			return fmt.Errorf("--ranks must be >= 1, got %d", streamRanks)
		}
		domain, err := boxFlag("domain", streamDomain)
		if err != nil {
			return err
		}
		meta, err := amr.UniformRefinement(domain, streamLevels, streamRatio)
		if err != nil {
			return err
		}
		viewBox := domain
		if len(streamViewBox) > 0 {
			if viewBox, err = boxFlag("view-box", streamViewBox); err != nil {
				return err
			}
		}
		clamp := geom.UninitializedBounds()
		if len(streamClamp) > 0 {
			b, err := boxFlag("clamp", streamClamp)
			if err != nil {
				return err
			}
			clamp = b.Bounds()
		}

		passes, err := drainQueue(cmd.Context(), meta, streamRanks, streamScorer,
			geom.BoxFrustum(viewBox).Planes(), clamp, streamMaxBlocks)
		if err != nil {
			return err
		}
		printPasses(cmd.OutOrStdout(), passes, streamRanks)
		return nil
	},
}

// streamPass holds the block each rank popped in one pass, -1 when starved.
type streamPass []int64

// drainQueue pops from identical queues on every rank of a simulated session
// until they are empty or maxBlocks blocks have been handed out.
func drainQueue(ctx context.Context, meta *amr.Metadata, ranks int, scorer string, planes [24]float64, clamp [6]float64, maxBlocks int) ([]streamPass, error) {
	topo := comm.Builtin()
	if ranks > 1 {
		topo = comm.ClientServer(ranks - 1)
	}
	perRank := make([][]int64, ranks)
	g := comm.NewGroup(topo)
	err := g.Run(ctx, func(ctx context.Context, c comm.Controller) error {
		q := amr.NewStreamingQueue(c, streaming.NewScorer(scorer))
		q.Initialize(amr.NewCatalog(meta))
		q.UpdateClamped(planes, clamp)
		me := c.LocalProcessID()
		handed := 0
		for !q.IsEmpty() && (maxBlocks == 0 || handed < maxBlocks) {
			starved := me >= q.Remaining()
			handed += min(ranks, q.Remaining())
			id := q.Pop()
			if starved {
				perRank[me] = append(perRank[me], -1)
				continue
			}
			perRank[me] = append(perRank[me], int64(id))
		}
		return ctx.Err()
	})
	if err != nil {
		return nil, err
	}
	passes := make([]streamPass, len(perRank[0]))
	for i := range passes {
		passes[i] = make(streamPass, ranks)
		for r := range perRank {
			passes[i][r] = perRank[r][i]
		}
	}
	return passes, nil
}

func printPasses(out io.Writer, passes []streamPass, ranks int) {
	total := 0
	for i, p := range passes {
		cells := make([]string, ranks)
		for r, id := range p {
			if id < 0 {
				cells[r] = fmt.Sprintf("rank%d=-", r)
				continue
			}
			cells[r] = fmt.Sprintf("rank%d=%d", r, id)
			total++
		}
		fmt.Fprintf(out, "pass %d: %s\n", i+1, strings.Join(cells, " "))
	}
	fmt.Fprintf(out, "%d blocks in %d passes\n", total, len(passes))
}

func boxFlag(name string, v []float64) (geom.Box, error) {
	if len(v) != 6 {
		return geom.Box{}, fmt.Errorf("--%s: want 6 values (xmin,xmax,ymin,ymax,zmin,zmax), got %d", name, len(v))
	}
	b := geom.NewBox(v[0], v[1], v[2], v[3], v[4], v[5])
	if !b.IsValid() {
		return geom.Box{}, fmt.Errorf("--%s: min exceeds max in %v", name, v)
	}
	return b, nil
}

func init() {
	streamCmd.Flags().IntVar(&streamLevels, "levels", 3, "Number of AMR refinement levels")
	streamCmd.Flags().IntVar(&streamRatio, "ratio", 2, "Per-axis refinement ratio between levels")
	streamCmd.Flags().IntVar(&streamRanks, "ranks", 2, "Number of processes popping from the queue")
	streamCmd.Flags().IntVar(&streamMaxBlocks, "max-blocks", 0, "Stop after this many blocks (0 = drain the queue)")
	streamCmd.Flags().StringVar(&streamScorer, "scorer", "screen-space", "Priority scorer (screen-space, coarse-first)")
	streamCmd.Flags().Float64SliceVar(&streamDomain, "domain", []float64{0, 1, 0, 1, 0, 1}, "AMR domain bounds xmin,xmax,ymin,ymax,zmin,zmax")
	streamCmd.Flags().Float64SliceVar(&streamViewBox, "view-box", nil, "Orthographic view box bounds (default: the whole domain)")
	streamCmd.Flags().Float64SliceVar(&streamClamp, "clamp", nil, "Clamp bounds restricting which blocks compete")
}
