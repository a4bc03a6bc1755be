package scene

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distview/distview/view/trace"
)

func TestRun_DrivesFramesOnEveryRank(t *testing.T) {
	// GIVEN a scene whose geometry exceeds the remote-rendering threshold
	spec := parseSample(t)

	// WHEN it runs
	report, err := Run(context.Background(), spec, trace.LevelStreaming)
	require.NoError(t, err)

	// THEN every rank rendered the still and interactive frames distributed
	require.Len(t, report.Ranks, 3)
	for rank, r := range report.Ranks {
		require.Len(t, r.Frames, 2, "rank %d", rank)
		assert.True(t, r.Decision.UseDistributedRenderingForRender, "rank %d", rank)
		assert.True(t, r.Frames[0].Distributed)
		assert.False(t, r.Frames[1].LOD, "geometry is under the LOD threshold")
		assert.Equal(t, 1, r.Summary.FullPasses)
		// two stream frames over a 9-block catalog on 3 ranks
		assert.Len(t, r.Trace.Streams, 2)
	}

	blocks := 0
	for _, r := range report.Ranks {
		blocks += r.Summary.BlocksPerRepresentation["blocks"]
	}
	assert.Equal(t, 6, blocks, "three ranks fetch one block per stream frame")
	assert.Positive(t, report.BytesSent[1], "servers exchange geometry")
}

func TestRun_IsDeterministic(t *testing.T) {
	spec := parseSample(t)
	a, err := Run(context.Background(), spec, trace.LevelDecisions)
	require.NoError(t, err)
	b, err := Run(context.Background(), spec, trace.LevelDecisions)
	require.NoError(t, err)

	for rank := range a.Ranks {
		assert.Equal(t, a.Ranks[rank].Frames, b.Ranks[rank].Frames, "rank %d", rank)
		assert.Equal(t, a.Ranks[rank].Trace.Deliveries, b.Ranks[rank].Trace.Deliveries, "rank %d", rank)
	}
}

func TestRun_LocalRenderingOnlyTheClientDraws(t *testing.T) {
	spec := parseSample(t)
	spec.View.RemoteRenderingThresholdMB = 100
	report, err := Run(context.Background(), spec, trace.LevelNone)
	require.NoError(t, err)

	assert.Len(t, report.Ranks[0].Frames, 2)
	assert.Empty(t, report.Ranks[1].Frames)
	assert.Empty(t, report.Ranks[2].Frames)
	assert.Equal(t, 101, report.Ranks[0].Frames[0].Elements, "100 mesh elements plus the legend")
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, parseSample(t), trace.LevelNone)
	assert.Error(t, err)
}
