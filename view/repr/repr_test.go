package repr_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distview/distview/view"
	"github.com/distview/distview/view/amr"
	"github.com/distview/distview/view/comm"
	"github.com/distview/distview/view/geom"
	"github.com/distview/distview/view/internal/testutil"
	"github.com/distview/distview/view/repr"
	"github.com/distview/distview/view/streaming"
)

func row(base int64, n int) []view.Element {
	out := make([]view.Element, n)
	for i := range out {
		x := float64(i)
		out[i] = view.Element{ID: base + int64(i), Bounds: geom.NewBox(x, x+1, 0, 1, 0, 1)}
	}
	return out
}

func elementIDs(p view.Piece) []int64 {
	out := make([]int64, 0, p.Len())
	for _, e := range p.Elements {
		out = append(out, e.ID)
	}
	return out
}

func TestGeometry_LODDecimation(t *testing.T) {
	tests := []struct {
		name     string
		fraction float64
		want     []int64
	}{
		{"half", 0.5, []int64{0, 2, 4, 6, 8}},
		{"quarter rounds up", 0.25, []int64{0, 3, 6}},
		{"all", 1, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}},
		{"none", 0, []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := repr.NewGeometry("mesh", row(0, 10), repr.GeometryOptions{LODResolution: tt.fraction})
			assert.Equal(t, tt.want, elementIDs(g.Piece(true)))
			assert.Equal(t, int64(len(tt.want))*view.ElementBytes, g.GeometrySize(true))
			assert.Equal(t, int64(10)*view.ElementBytes, g.GeometrySize(false))
		})
	}
}

func TestGeometry_OutlineLOD(t *testing.T) {
	g := repr.NewGeometry("mesh", row(0, 4), repr.GeometryOptions{UseOutlineForLOD: true})
	lod := g.Piece(true)
	assert.True(t, lod.Outline)
	require.Len(t, lod.Elements, 1)
	assert.Equal(t, geom.NewBox(0, 4, 0, 1, 0, 1), lod.Elements[0].Bounds)

	empty := repr.NewGeometry("mesh", nil, repr.GeometryOptions{UseOutlineForLOD: true})
	assert.Zero(t, empty.Piece(true).Len())
	assert.False(t, empty.DeliveryBounds().IsValid())
}

func TestGeometry_PieceIsACopy(t *testing.T) {
	es := row(0, 2)
	g := repr.NewGeometry("mesh", es, repr.GeometryOptions{})
	es[0].ID = 99
	p := g.Piece(false)
	p.Elements[1].ID = 42
	assert.Equal(t, []int64{0, 1}, elementIDs(g.Piece(false)))
}

func TestLegend_DeliveredOnceToClient(t *testing.T) {
	for _, distributed := range []bool{false, true} {
		results := testutil.RunRanks(t, comm.ClientServer(3), func(c comm.Controller) (view.Piece, error) {
			l := repr.NewLegend("legend", geom.NewBox(0, 1, 0, 0.1, 0, 0))
			dc := view.NewDeliveryCoordinator(c, view.DefaultConfig())
			dc.Deliver([]view.Representation{l}, distributed, false)
			return l.Delivered(), nil
		})
		require.Len(t, results[0].Elements, 1, "distributed=%t", distributed)
		assert.Equal(t, geom.NewBox(0, 1, 0, 0.1, 0, 0), results[0].Elements[0].Bounds)
	}
}

func TestRenderView_GeometryAndLegendEndToEnd(t *testing.T) {
	// GIVEN two servers each holding a redistributable row and a shared legend
	cfg := view.DefaultConfig()
	cfg.RemoteRenderingThresholdMB = 0.0001

	type result struct {
		mesh, legend view.Piece
		decision     view.Decision
	}
	results := testutil.RunRanks(t, comm.ClientServer(2), func(c comm.Controller) (result, error) {
		var es []view.Element
		if c.LocalProcessID() > 0 {
			es = row(int64(c.LocalProcessID())*100, 8)
		}
		mesh := repr.NewGeometry("mesh", es, repr.GeometryOptions{
			Policy:        view.PolicyRedistributable,
			LODResolution: 0.5,
		})
		legend := repr.NewLegend("legend", geom.NewBox(0, 1, 0, 0.1, 0, 0))
		v := view.NewRenderView(c, cfg)
		v.AddRepresentation(mesh)
		v.AddRepresentation(legend)

		// WHEN one full pass runs
		v.Update()
		v.StillRender()
		return result{mesh: mesh.Delivered(false), legend: legend.Delivered(), decision: v.Decision()}, nil
	})

	// THEN rendering is distributed and the mesh is split across servers
	for rank, r := range results {
		assert.True(t, r.decision.UseDistributedRenderingForRender, "rank %d", rank)
	}
	assert.Equal(t, []int64{100, 101, 102, 103, 200, 201, 202, 203}, elementIDs(results[1].mesh))
	assert.Equal(t, []int64{104, 105, 106, 107, 204, 205, 206, 207}, elementIDs(results[2].mesh))
	assert.True(t, results[0].mesh.Outline)
	assert.Len(t, results[0].legend.Elements, 1)
}

func newMetadata(t *testing.T) *amr.Metadata {
	t.Helper()
	m, err := amr.UniformRefinement(geom.NewBox(0, 8, 0, 8, 0, 8), 3, 2)
	require.NoError(t, err)
	return m
}

func TestAMR_StreamsEveryBlockExactlyOnce(t *testing.T) {
	meta := newMetadata(t)
	planes := geom.BoxFrustum(geom.NewBox(-1, 9, -1, 9, -1, 9)).Planes()

	type result struct {
		streamed []int64
		passes   int
		popped   map[uint32]bool
	}
	results := testutil.RunRanks(t, comm.ClientServer(1), func(c comm.Controller) (result, error) {
		a := repr.NewAMR("amr", c, meta, streaming.NewScorer("coarse-first"), 1)
		v := view.NewRenderView(c, view.DefaultConfig())
		v.AddRepresentation(a)

		res := result{popped: map[uint32]bool{}}
		for res.passes < 200 {
			pending := v.StreamingUpdate(planes)
			for _, id := range a.LastPopped() {
				if res.popped[id] {
					t.Errorf("rank %d fetched block %d twice", c.LocalProcessID(), id)
				}
				res.popped[id] = true
			}
			if len(pending) == 0 {
				break
			}
			v.DeliverStreamedPieces(pending)
			res.passes++
		}
		res.streamed = elementIDs(a.Streamed())
		return res, nil
	})

	// THEN the client received all 73 blocks, each once, in 37 passes
	require.Len(t, results[0].streamed, 73)
	for i, id := range results[0].streamed {
		assert.Equal(t, int64(i), id)
	}
	assert.Equal(t, 37, results[0].passes)
	assert.Equal(t, results[0].passes, results[1].passes)
	assert.Empty(t, results[1].streamed, "servers keep nothing when rendering locally")

	// AND the two ranks fetched disjoint blocks
	assert.Len(t, results[0].popped, 37)
	assert.Len(t, results[1].popped, 36)
	for id := range results[1].popped {
		assert.False(t, results[0].popped[id], "block %d fetched by both ranks", id)
	}
}

func TestAMR_ClampExcludesOutsideBlocks(t *testing.T) {
	a := repr.NewAMR("amr", comm.NewSolo(), newMetadata(t), nil, 200)
	planes := geom.BoxFrustum(geom.NewBox(-1, 9, -1, 9, -1, 9)).Planes()
	clamp := geom.NewBox(0, 3, 0, 3, 0, 3)

	require.True(t, a.StreamingUpdate(planes, clamp.Bounds()))
	assert.Len(t, a.LastPopped(), 73, "out-of-contention blocks stay queued at priority 0")
	assert.Zero(t, a.Remaining())

	a.Restart()
	assert.Equal(t, 73, a.Remaining())
	assert.Zero(t, a.Streamed().Len())
}

func TestAMR_BuiltinKeepsStreamedBlocks(t *testing.T) {
	a := repr.NewAMR("amr", comm.NewSolo(), newMetadata(t), streaming.NewScorer("coarse-first"), 0)
	v := view.NewRenderView(comm.NewSolo(), view.DefaultConfig())
	v.AddRepresentation(a)
	planes := geom.BoxFrustum(geom.NewBox(0, 8, 0, 8, 0, 8)).Planes()

	pending := v.StreamingUpdate(planes)
	require.Equal(t, []string{"amr"}, pending)
	v.DeliverStreamedPieces(pending)

	require.Equal(t, 1, a.Streamed().Len())
	assert.Equal(t, int64(0), a.Streamed().Elements[0].ID, "the root block streams first")
	assert.Equal(t, int64(view.ElementBytes), a.GeometrySize(false))
	assert.Equal(t, geom.NewBox(0, 8, 0, 8, 0, 8), a.DeliveryBounds())
}

// switchable is a geometry whose local-only requirement can be flipped
// between passes to force the render decision either way.
type switchable struct {
	*repr.Geometry
	local bool
}

func (s *switchable) RequiresLocalOnlyRendering(bool) bool { return s.local }

func TestRenderView_ModeTransitionsKeepEveryElement(t *testing.T) {
	meta, err := amr.UniformRefinement(geom.NewBox(0, 4, 0, 4, 0, 4), 2, 2)
	require.NoError(t, err)
	planes := geom.BoxFrustum(geom.NewBox(-1, 5, -1, 5, -1, 5)).Planes()
	cfg := view.DefaultConfig()
	cfg.RemoteRenderingThresholdMB = 1e-9

	// holdings is what one rank holds after one Update.
	type holdings struct {
		distributed bool
		mesh        []int64
		blocks      []int64
		outline     bool
	}

	// run streams every block in the first mode, then updates in the second
	// mode and back in the first.
	run := func(t *testing.T, startLocal bool) [][]holdings {
		return testutil.RunRanks(t, comm.ClientServer(2), func(c comm.Controller) ([]holdings, error) {
			var es []view.Element
			if c.LocalProcessID() > 0 {
				es = row(int64(c.LocalProcessID())*100, 4)
			}
			mesh := &switchable{
				Geometry: repr.NewGeometry("mesh", es, repr.GeometryOptions{
					Policy: view.PolicyRedistributable,
					Mode:   view.UniquelyAssignBoundary,
				}),
				local: startLocal,
			}
			blocks := repr.NewAMR("blocks", c, meta, streaming.NewScorer("coarse-first"), 3)
			v := view.NewRenderView(c, cfg)
			v.AddRepresentation(mesh)
			v.AddRepresentation(blocks)

			var out []holdings
			update := func() {
				v.Update()
				out = append(out, holdings{
					distributed: v.Decision().UseDistributedRenderingForRender,
					mesh:        elementIDs(mesh.Delivered(false)),
					blocks:      elementIDs(blocks.Delivered(false)),
					outline:     blocks.Delivered(false).Outline,
				})
			}

			update()
			v.DeliverStreamedPieces(v.StreamingUpdate(planes))
			mesh.local = !startLocal
			update()
			mesh.local = startLocal
			update()
			return out, nil
		})
	}

	allBlocks := []int64{0, 1, 2, 3, 4, 5, 6, 7, 8}
	allMesh := []int64{100, 101, 102, 103, 200, 201, 202, 203}

	// renderRanks returns the union of what ranks 1 and 2 hold, in order.
	renderRanks := func(h [][]holdings, pass int, pick func(holdings) []int64) []int64 {
		var merged []int64
		for rank := 1; rank < 3; rank++ {
			merged = append(merged, pick(h[rank][pass])...)
		}
		sort.Slice(merged, func(i, j int) bool { return merged[i] < merged[j] })
		return merged
	}
	meshOf := func(h holdings) []int64 { return h.mesh }
	blocksOf := func(h holdings) []int64 { return h.blocks }

	checkLocal := func(t *testing.T, h [][]holdings, pass int, wantBlocks []int64) {
		t.Helper()
		assert.False(t, h[0][pass].distributed)
		assert.Equal(t, allMesh, h[0][pass].mesh, "client mesh after pass %d", pass)
		assert.Equal(t, wantBlocks, h[0][pass].blocks, "client blocks after pass %d", pass)
		for rank := 1; rank < 3; rank++ {
			assert.Empty(t, h[rank][pass].mesh, "rank %d mesh after pass %d", rank, pass)
			assert.Empty(t, h[rank][pass].blocks, "rank %d blocks after pass %d", rank, pass)
		}
	}
	checkDistributed := func(t *testing.T, h [][]holdings, pass int, wantBlocks []int64) {
		t.Helper()
		assert.True(t, h[0][pass].distributed)
		assert.Equal(t, allMesh, renderRanks(h, pass, meshOf), "render-rank mesh after pass %d", pass)
		assert.Equal(t, wantBlocks, renderRanks(h, pass, blocksOf), "render-rank blocks after pass %d", pass)
		assert.True(t, h[0][pass].outline, "client keeps an outline after pass %d", pass)
	}

	t.Run("local to distributed", func(t *testing.T) {
		h := run(t, true)
		checkLocal(t, h, 0, []int64{})
		checkDistributed(t, h, 1, allBlocks)
		checkLocal(t, h, 2, allBlocks)
	})
	t.Run("distributed to local", func(t *testing.T) {
		h := run(t, false)
		checkDistributed(t, h, 0, nil)
		checkLocal(t, h, 1, allBlocks)
		checkDistributed(t, h, 2, allBlocks)
	})
}
