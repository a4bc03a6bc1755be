package cmd

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/distview/distview/scene"
	"github.com/distview/distview/view"
	"github.com/distview/distview/view/trace"
)

var (
	scenePath  string // Scene YAML
	configPath string // Optional view config overriding the scene's view block
	seed       int64  // Overrides the scene seed when set
	traceOut   string // Optional JSONL+zstd trace file
	traceLevel string // Trace verbosity
)

// runCmd builds a scene on simulated ranks and drives its frames
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scene's frames on an in-process session",
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := scene.Load(scenePath)
		if err != nil {
			return err
		}
		if configPath != "" {
			cfg, err := view.LoadConfig(configPath)
			if err != nil {
				return err
			}
			spec.View = cfg
		}
		// CLI seed wins only when given explicitly.
		if cmd.Flags().Changed("seed") {
			spec.Seed = seed
		}
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("invalid scene: %w", err)
		}
		if !trace.IsValidLevel(traceLevel) {
			return fmt.Errorf("unknown --trace-level %q; valid: none, decisions, streaming", traceLevel)
		}
		level := trace.Level(traceLevel)
		if traceOut != "" && (level == trace.LevelNone || level == "") {
			level = trace.LevelDecisions
		}

		logrus.Infof("running %d frames on %s", len(spec.Frames), spec.Topology())
		report, err := scene.Run(cmd.Context(), spec, level)
		if err != nil {
			return err
		}
		if traceOut != "" {
			if err := writeTraces(traceOut, report); err != nil {
				return err
			}
			logrus.Infof("trace written to %s", traceOut)
		}
		printReport(cmd.OutOrStdout(), report)
		return nil
	},
}

func writeTraces(path string, report *scene.Report) (err error) {
	w, err := trace.CreateFile(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}()
	for _, r := range report.Ranks {
		if err := w.WriteTrace(r.Trace); err != nil {
			return err
		}
	}
	return nil
}

func printReport(out io.Writer, report *scene.Report) {
	fmt.Fprintf(out, "=== Render Session ===\n")
	fmt.Fprintf(out, "Topology: %s\n", report.Topology)
	for _, r := range report.Ranks {
		s := r.Summary
		fmt.Fprintf(out, "rank %d [%s]: frames=%d distributed=%t lod=%t sent=%d elements (%s) blocks=%d skipped=%d\n",
			r.Rank, r.Roles, len(r.Frames),
			r.Decision.UseDistributedRenderingForRender, r.Decision.UseLODForInteractiveRender,
			s.ElementsSent, humanize.Bytes(uint64(s.BytesSent)), s.BlocksStreamed, s.SkippedRedistribute)
	}
	var total int64
	for _, b := range report.BytesSent {
		total += b
	}
	fmt.Fprintf(out, "Collective traffic: %s\n", humanize.Bytes(uint64(total)))
}

func init() {
	runCmd.Flags().StringVar(&scenePath, "scene", "", "Path to the scene YAML")
	runCmd.Flags().StringVar(&configPath, "config", "", "Path to a view config YAML replacing the scene's view block")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for scene geometry (overrides the scene seed when set)")
	runCmd.Flags().StringVar(&traceOut, "trace-out", "", "Write decision and delivery traces to this .jsonl.zst file")
	runCmd.Flags().StringVar(&traceLevel, "trace-level", "none", "Trace level (none, decisions, streaming)")
	_ = runCmd.MarkFlagRequired("scene")
}
