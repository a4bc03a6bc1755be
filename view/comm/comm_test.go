package comm

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopology_Validate(t *testing.T) {
	tests := []struct {
		name    string
		topo    Topology
		wantErr bool
	}{
		{"builtin", Builtin(), false},
		{"builtin with two processes", Topology{Mode: ModeBuiltin, Processes: 2}, true},
		{"client-server", ClientServer(3), false},
		{"client-server without servers", Topology{Mode: ModeClientServer, Processes: 1}, true},
		{"client-data-render", ClientDataRender(2, 2), false},
		{"client-data-render count mismatch", Topology{Mode: ModeClientDataRender, Processes: 4, DataServers: 2, RenderServers: 2}, true},
		{"unknown mode", Topology{Mode: "mesh", Processes: 3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.topo.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTopology_Roles(t *testing.T) {
	cs := ClientServer(2)
	assert.Equal(t, RoleClient, cs.RolesOf(0))
	assert.Equal(t, RoleDataServer|RoleRenderServer, cs.RolesOf(1))
	assert.Equal(t, []int{1, 2}, cs.RenderRanks())
	assert.Equal(t, []int{1, 2}, cs.DataRanks())

	cdr := ClientDataRender(2, 3)
	assert.Equal(t, []int{1, 2}, cdr.DataRanks())
	assert.Equal(t, []int{3, 4, 5}, cdr.RenderRanks())
	assert.True(t, cdr.SeparateRenderServers())

	assert.Equal(t, RoleAll, Builtin().RolesOf(0))
	assert.Equal(t, RoleNone, Builtin().RolesOf(1))
	assert.Equal(t, "client|render-server", (RoleClient | RoleRenderServer).String())
}

func TestGroup_AllReduceAgreesOnEveryRank(t *testing.T) {
	// GIVEN three server ranks reporting different values
	g := NewGroup(ClientServer(3))
	local := []float64{0, 10, 200, 5}

	var mu sync.Mutex
	sums := map[int]float64{}
	ors := map[int]bool{}

	// WHEN every rank reduces
	err := g.Run(context.Background(), func(_ context.Context, c Controller) error {
		s := c.AllReduceSum(local[c.LocalProcessID()])
		o := c.AllReduceLogicalOr(c.LocalProcessID() == 2)
		mu.Lock()
		sums[c.LocalProcessID()] = s
		ors[c.LocalProcessID()] = o
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	// THEN every rank observes the same result
	for rank := 0; rank < 4; rank++ {
		assert.Equal(t, 215.0, sums[rank], "rank %d", rank)
		assert.True(t, ors[rank], "rank %d", rank)
	}
}

func TestGroup_PointToPointPatterns(t *testing.T) {
	g := NewGroup(ClientServer(2))
	results := make([][][]byte, 3)
	gathers := make([][][]byte, 3)
	bcasts := make([][]byte, 3)

	err := g.Run(context.Background(), func(_ context.Context, c Controller) error {
		me := byte(c.LocalProcessID())
		out := make([][]byte, c.NumberOfProcesses())
		for r := range out {
			out[r] = []byte{me, byte(r)}
		}
		results[me] = c.AllToAll(out)
		gathers[me] = c.Gather([]byte{me}, 1)
		bcasts[me] = c.Broadcast([]byte{me * 10}, 2)
		c.Barrier()
		return nil
	})
	require.NoError(t, err)

	for rank := 0; rank < 3; rank++ {
		for sender := 0; sender < 3; sender++ {
			assert.Equal(t, []byte{byte(sender), byte(rank)}, results[rank][sender])
		}
		assert.Equal(t, []byte{20}, bcasts[rank])
	}
	assert.Nil(t, gathers[0])
	assert.Equal(t, [][]byte{{0}, {1}, {2}}, gathers[1])
	assert.Nil(t, gathers[2])
	assert.Greater(t, g.BytesSent()[0], int64(0))
}

func TestGroup_FailingRankReleasesOthers(t *testing.T) {
	// GIVEN a rank that fails before reaching a collective
	g := NewGroup(ClientServer(2))
	boom := errors.New("boom")

	// WHEN the others block in a barrier
	err := g.Run(context.Background(), func(_ context.Context, c Controller) error {
		if c.LocalProcessID() == 1 {
			return boom
		}
		c.Barrier()
		return nil
	})

	// THEN Run returns instead of hanging
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom) || errors.Is(err, ErrGroupAborted))
}

func TestSolo_CollectivesAreIdentity(t *testing.T) {
	s := NewSolo()
	assert.Equal(t, 3.5, s.AllReduceSum(3.5))
	assert.False(t, s.AllReduceLogicalOr(false))
	assert.Equal(t, [][]byte{{1}}, s.AllToAll([][]byte{{1}}))
	assert.True(t, s.IsClient() && s.IsRenderServer() && s.IsDataServer())
	assert.True(t, s.Topology().IsBuiltin())
}

func TestCodec_RoundTrip(t *testing.T) {
	type payload struct {
		Name   string
		Values []float64
	}
	in := payload{Name: "mesh", Values: []float64{1, 2, 3}}
	data, err := Encode(in)
	require.NoError(t, err)

	var out payload
	require.NoError(t, Decode(data, &out))
	assert.Equal(t, in, out)

	var untouched payload
	require.NoError(t, Decode(nil, &untouched))
	assert.Equal(t, payload{}, untouched)

	assert.Error(t, Decode([]byte("not zstd"), &out))
}
