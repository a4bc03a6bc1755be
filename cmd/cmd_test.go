package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distview/distview/view/amr"
	"github.com/distview/distview/view/geom"
	"github.com/distview/distview/view/trace"
)

// executeCommand runs the root command with args and returns its output.
// Scalar flags are reset to their defaults first since cobra keeps state
// between executions.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	logLevel = "warn"
	scenePath, configPath, traceOut, traceLevel, seed = "", "", "", "none", 42
	streamLevels, streamRatio, streamRanks, streamMaxBlocks, streamScorer = 3, 2, 2, 0, "screen-space"
	for _, c := range []*cobra.Command{rootCmd, runCmd, streamCmd} {
		c.Flags().VisitAll(func(f *pflag.Flag) { f.Changed = false })
	}
	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) { f.Changed = false })

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

const cliScene = `
seed: 3
topology:
  mode: client-server
  processes: 3
view:
  remote_rendering_threshold_mb: 0.001
camera:
  planes: [1,0,0,0, -1,0,0,8, 0,1,0,0, 0,-1,0,8, 0,0,-1,8, 0,0,1,0]
representations:
  - name: mesh
    kind: geometry
    bounds: [0, 8, 0, 8, 0, 8]
    elements_per_rank: 20
    policy: [redistributable]
  - name: blocks
    kind: amr
    bounds: [0, 8, 0, 8, 0, 8]
    levels: 2
    refinement: 2
frames: [still, stream]
`

func writeScene(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scene.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cliScene), 0644))
	return path
}

func TestRunCommand_PrintsReportAndWritesTrace(t *testing.T) {
	// GIVEN a scene and a trace destination
	tracePath := filepath.Join(t.TempDir(), "trace.jsonl.zst")

	// WHEN the run command executes
	out, err := executeCommand(t, "run", "--scene", writeScene(t), "--trace-out", tracePath)
	require.NoError(t, err)

	// THEN the report lists every rank
	assert.Contains(t, out, "=== Render Session ===")
	assert.Contains(t, out, "rank 0 [client]")
	assert.Contains(t, out, "rank 2 [data-server|render-server]")
	assert.Contains(t, out, "distributed=true")
	assert.Contains(t, out, "Collective traffic:")

	// AND the trace holds one decision per rank
	f, err := os.Open(tracePath)
	require.NoError(t, err)
	defer f.Close()
	entries, err := trace.ReadEntries(f)
	require.NoError(t, err)
	decisions := 0
	for _, e := range entries {
		if e.Kind == "decision" {
			decisions++
		}
	}
	assert.Equal(t, 3, decisions)
}

func TestRunCommand_Errors(t *testing.T) {
	_, err := executeCommand(t, "run")
	assert.Error(t, err, "--scene is required")

	_, err = executeCommand(t, "run", "--scene", filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	_, err = executeCommand(t, "run", "--scene", writeScene(t), "--trace-level", "verbose")
	assert.ErrorContains(t, err, "--trace-level")

	_, err = executeCommand(t, "--log", "chatty", "run", "--scene", writeScene(t))
	assert.Error(t, err)
}

func TestRunCommand_ConfigReplacesSceneView(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "view.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("remote_rendering_threshold_mb: 100\n"), 0644))

	out, err := executeCommand(t, "run", "--scene", writeScene(t), "--config", cfgPath, "--seed", "9")
	require.NoError(t, err)
	assert.Contains(t, out, "distributed=false")
	assert.NotContains(t, out, "distributed=true")
}

func TestStreamCommand_DrainsQueue(t *testing.T) {
	out, err := executeCommand(t, "stream", "--levels", "2", "--ratio", "2", "--ranks", "2", "--scorer", "coarse-first")
	require.NoError(t, err)
	assert.Contains(t, out, "pass 1: rank0=0 rank1=")
	assert.Contains(t, out, "pass 5: rank0=")
	assert.Contains(t, out, "rank1=-")
	assert.Contains(t, out, "9 blocks in 5 passes")
}

func TestStreamCommand_MaxBlocks(t *testing.T) {
	out, err := executeCommand(t, "stream", "--levels", "2", "--ranks", "2", "--max-blocks", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "4 blocks in 2 passes")
}

func TestStreamCommand_RejectsBadInput(t *testing.T) {
	_, err := executeCommand(t, "stream", "--scorer", "random")
	assert.ErrorContains(t, err, "unknown --scorer")
	_, err = executeCommand(t, "stream", "--ranks", "0")
	assert.Error(t, err)
	_, err = executeCommand(t, "stream", "--ratio", "1")
	assert.Error(t, err)
	_, err = executeCommand(t, "stream", "--levels", "12")
	assert.ErrorContains(t, err, "exceed")
}

func TestDrainQueue_EveryBlockOnceAcrossRanks(t *testing.T) {
	meta, err := amr.UniformRefinement(geom.NewBox(0, 1, 0, 1, 0, 1), 3, 2)
	require.NoError(t, err)
	view := geom.BoxFrustum(geom.NewBox(0, 0.5, 0, 0.5, 0, 1)).Planes()

	passes, err := drainQueue(context.Background(), meta, 3, "screen-space", view, geom.UninitializedBounds(), 0)
	require.NoError(t, err)

	seen := map[int64]int{}
	for _, p := range passes {
		require.Len(t, p, 3)
		for _, id := range p {
			if id >= 0 {
				seen[id]++
			}
		}
	}
	assert.Len(t, seen, 73)
	for id, n := range seen {
		assert.Equal(t, 1, n, "block %d", id)
	}
	assert.Len(t, passes, 25)
}

func TestBoxFlag(t *testing.T) {
	b, err := boxFlag("domain", []float64{0, 2, 0, 1, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, geom.NewBox(0, 2, 0, 1, 0, 1), b)

	_, err = boxFlag("domain", []float64{0, 1})
	assert.Error(t, err)
	_, err = boxFlag("domain", []float64{2, 1, 0, 1, 0, 1})
	assert.Error(t, err)
}
