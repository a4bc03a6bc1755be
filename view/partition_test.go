package view

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/distview/distview/view/geom"
)

func lineCentres(n int) []r3.Vec {
	out := make([]r3.Vec, n)
	for i := range out {
		out[i] = r3.Vec{X: float64(i) + 0.5, Y: 0.5, Z: 0.5}
	}
	return out
}

func TestBuildPartition_MedianSplitsPowerOfTwo(t *testing.T) {
	p := BuildPartition(lineCentres(8), geom.NewBox(0, 8, 0, 1, 0, 1), 4)
	require.NotNil(t, p)
	assert.Equal(t, []geom.Box{
		geom.NewBox(0, 2, 0, 1, 0, 1),
		geom.NewBox(2, 4, 0, 1, 0, 1),
		geom.NewBox(4, 6, 0, 1, 0, 1),
		geom.NewBox(6, 8, 0, 1, 0, 1),
	}, p.Regions)
}

func TestBuildPartition_ProportionalSplitForThreeRegions(t *testing.T) {
	p := BuildPartition(lineCentres(6), geom.NewBox(0, 6, 0, 1, 0, 1), 3)
	require.Equal(t, 3, p.Len())
	assert.Equal(t, geom.NewBox(0, 2, 0, 1, 0, 1), p.Regions[0])
	assert.Equal(t, geom.NewBox(2, 4, 0, 1, 0, 1), p.Regions[1])
	assert.Equal(t, geom.NewBox(4, 6, 0, 1, 0, 1), p.Regions[2])
}

func TestBuildPartition_IndependentOfInputOrder(t *testing.T) {
	domain := geom.NewBox(0, 8, 0, 8, 0, 8)
	pts := []r3.Vec{{X: 1, Y: 7, Z: 2}, {X: 3, Y: 1, Z: 5}, {X: 6, Y: 2, Z: 1}, {X: 7, Y: 6, Z: 7}, {X: 2, Y: 4, Z: 3}}
	reversed := make([]r3.Vec, len(pts))
	for i, p := range pts {
		reversed[len(pts)-1-i] = p
	}
	assert.Equal(t, BuildPartition(pts, domain, 3).Regions, BuildPartition(reversed, domain, 3).Regions)
}

func TestBuildPartition_NoCentresSplitsGeometrically(t *testing.T) {
	p := BuildPartition(nil, geom.NewBox(0, 4, 0, 1, 0, 1), 2)
	require.Equal(t, 2, p.Len())
	assert.Equal(t, geom.NewBox(0, 2, 0, 1, 0, 1), p.Regions[0])
}

func TestBuildPartition_InvalidInput(t *testing.T) {
	assert.Nil(t, BuildPartition(lineCentres(4), geom.EmptyBox(), 2))
	assert.Nil(t, BuildPartition(lineCentres(4), geom.NewBox(0, 1, 0, 1, 0, 1), 0))
	var p *Partition
	assert.Equal(t, 0, p.Len())
}

func TestPartition_OwnerAndOverlapping(t *testing.T) {
	p := &Partition{Regions: []geom.Box{
		geom.NewBox(0, 4, 0, 1, 0, 1),
		geom.NewBox(4, 8, 0, 1, 0, 1),
	}}
	assert.Equal(t, 0, p.Owner(r3.Vec{X: 1, Y: 0.5, Z: 0.5}))
	assert.Equal(t, 1, p.Owner(r3.Vec{X: 5, Y: 0.5, Z: 0.5}))
	assert.Equal(t, 0, p.Owner(r3.Vec{X: 4, Y: 0.5, Z: 0.5}), "shared face goes to the lower region")
	assert.Equal(t, 1, p.Owner(r3.Vec{X: 20, Y: 0.5, Z: 0.5}), "outside falls back to nearest")

	assert.Equal(t, []int{0}, p.Overlapping(geom.NewBox(3, 4, 0, 1, 0, 1)), "touching is not overlapping")
	assert.Equal(t, []int{0, 1}, p.Overlapping(geom.NewBox(3.5, 4.5, 0, 1, 0, 1)))
	assert.Equal(t, []int{0, 1}, p.Overlapping(geom.NewBox(4, 4, 0, 1, 0, 1)), "flat boxes on a face touch both")
	assert.Empty(t, p.Overlapping(geom.EmptyBox()))
}
