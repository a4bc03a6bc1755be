package view

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/distview/distview/view/geom"
)

// Partition is a shared spatial split of the domain into one region per
// render rank. Region i belongs to the i-th render rank.
type Partition struct {
	Regions []geom.Box
}

// Len returns the number of regions.
func (p *Partition) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Regions)
}

// BuildPartition splits domain into regions boxes with a kd-style recursion:
// each node is cut on its longest axis at the point that divides its centres
// in proportion to the region counts on either side. The result depends
// only on the multiset of centres, not their order. Returns nil if domain is
// uninitialized or regions < 1.
func BuildPartition(centres []r3.Vec, domain geom.Box, regions int) *Partition {
	if !domain.IsValid() || regions < 1 {
		return nil
	}
	pts := make([]r3.Vec, 0, len(centres))
	for _, c := range centres {
		if domain.Contains(c) {
			pts = append(pts, c)
		}
	}
	p := &Partition{Regions: make([]geom.Box, 0, regions)}
	p.split(domain, pts, regions)
	return p
}

func (p *Partition) split(box geom.Box, pts []r3.Vec, n int) {
	if n == 1 {
		p.Regions = append(p.Regions, box)
		return
	}
	axis := box.LongestAxis()
	nlo := n / 2
	sort.Slice(pts, func(i, j int) bool { return lessOnAxis(pts[i], pts[j], axis) })

	lo, hi := coord(box.Min, axis), coord(box.Max, axis)
	at := lo + (hi-lo)*float64(nlo)/float64(n)
	k := len(pts) * nlo / n
	if k > 0 && k < len(pts) {
		at = (coord(pts[k-1], axis) + coord(pts[k], axis)) / 2
	}
	at = math.Max(lo, math.Min(hi, at))

	loBox, hiBox := box.Split(axis, at)
	p.split(loBox, pts[:k], nlo)
	p.split(hiBox, pts[k:], n-nlo)
}

// Owner returns the region containing pt, preferring the lowest index on
// shared faces, or the nearest region when pt lies outside every region.
func (p *Partition) Owner(pt r3.Vec) int {
	best, bestDist := 0, math.Inf(1)
	for i, r := range p.Regions {
		if r.Contains(pt) {
			return i
		}
		if d := r.Distance(pt); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// Overlapping returns, in ascending order, the regions sharing volume with b.
// Along axes where b is flat, touching counts as sharing.
func (p *Partition) Overlapping(b geom.Box) []int {
	var out []int
	for i, r := range p.Regions {
		if overlapsOpen(b, r) {
			out = append(out, i)
		}
	}
	return out
}

func overlapsOpen(b, r geom.Box) bool {
	if !b.IsValid() || !r.IsValid() {
		return false
	}
	for axis := 0; axis < 3; axis++ {
		bmin, bmax := coord(b.Min, axis), coord(b.Max, axis)
		rmin, rmax := coord(r.Min, axis), coord(r.Max, axis)
		if bmin == bmax {
			if bmin < rmin || bmin > rmax {
				return false
			}
			continue
		}
		if bmin >= rmax || bmax <= rmin {
			return false
		}
	}
	return true
}

func coord(v r3.Vec, axis int) float64 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	}
	return v.Z
}

func lessOnAxis(a, b r3.Vec, axis int) bool {
	for i := 0; i < 3; i++ {
		ax := (axis + i) % 3
		if ca, cb := coord(a, ax), coord(b, ax); ca != cb {
			return ca < cb
		}
	}
	return false
}
