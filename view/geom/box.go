// Package geom provides the axis-aligned box and view-frustum math shared by
// the streaming priority queue and the delivery coordinator.
package geom

import (
	"encoding/json"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Box is an axis-aligned bounding box.
//
// The zero value is a degenerate box at the origin, not an empty one. Use
// EmptyBox for the uninitialized sentinel: an uninitialized box never
// intersects anything and contributes nothing to a union.
type Box struct {
	Min r3.Vec
	Max r3.Vec
}

// EmptyBox returns the uninitialized sentinel (inverted bounds).
func EmptyBox() Box {
	inf := math.Inf(1)
	return Box{
		Min: r3.Vec{X: inf, Y: inf, Z: inf},
		Max: r3.Vec{X: -inf, Y: -inf, Z: -inf},
	}
}

// NewBox builds a box from VTK-ordered bounds. If any axis is inverted the
// result is uninitialized.
func NewBox(xmin, xmax, ymin, ymax, zmin, zmax float64) Box {
	if xmin > xmax || ymin > ymax || zmin > zmax {
		return EmptyBox()
	}
	return Box{
		Min: r3.Vec{X: xmin, Y: ymin, Z: zmin},
		Max: r3.Vec{X: xmax, Y: ymax, Z: zmax},
	}
}

// BoxFromBounds builds a box from a (xmin,xmax,ymin,ymax,zmin,zmax) array.
func BoxFromBounds(b [6]float64) Box {
	return NewBox(b[0], b[1], b[2], b[3], b[4], b[5])
}

// UninitializedBounds returns the bounds array convention for "no bounds".
func UninitializedBounds() [6]float64 {
	return [6]float64{1, -1, 1, -1, 1, -1}
}

// IsValid reports whether the box is initialized. Degenerate boxes (a single
// point, a flat slab) are valid.
func (b Box) IsValid() bool {
	return b.Min.X <= b.Max.X && b.Min.Y <= b.Max.Y && b.Min.Z <= b.Max.Z
}

// Bounds returns (xmin,xmax,ymin,ymax,zmin,zmax). Uninitialized boxes
// return UninitializedBounds.
func (b Box) Bounds() [6]float64 {
	if !b.IsValid() {
		return UninitializedBounds()
	}
	return [6]float64{b.Min.X, b.Max.X, b.Min.Y, b.Max.Y, b.Min.Z, b.Max.Z}
}

// Union returns the smallest box enclosing both boxes.
func (b Box) Union(o Box) Box {
	if !b.IsValid() {
		return o
	}
	if !o.IsValid() {
		return b
	}
	return Box{
		Min: r3.Vec{X: math.Min(b.Min.X, o.Min.X), Y: math.Min(b.Min.Y, o.Min.Y), Z: math.Min(b.Min.Z, o.Min.Z)},
		Max: r3.Vec{X: math.Max(b.Max.X, o.Max.X), Y: math.Max(b.Max.Y, o.Max.Y), Z: math.Max(b.Max.Z, o.Max.Z)},
	}
}

// AddPoint grows the box to include p.
func (b *Box) AddPoint(p r3.Vec) {
	*b = b.Union(Box{Min: p, Max: p})
}

// Intersection returns the overlap of two boxes, uninitialized if disjoint.
func (b Box) Intersection(o Box) Box {
	if !b.IsValid() || !o.IsValid() {
		return EmptyBox()
	}
	return NewBox(
		math.Max(b.Min.X, o.Min.X), math.Min(b.Max.X, o.Max.X),
		math.Max(b.Min.Y, o.Min.Y), math.Min(b.Max.Y, o.Max.Y),
		math.Max(b.Min.Z, o.Min.Z), math.Min(b.Max.Z, o.Max.Z),
	)
}

// Intersects reports whether the boxes overlap (touching faces count).
func (b Box) Intersects(o Box) bool {
	return b.Intersection(o).IsValid()
}

// Contains reports whether p lies inside or on the box.
func (b Box) Contains(p r3.Vec) bool {
	if !b.IsValid() {
		return false
	}
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Center returns the box centre. Undefined for uninitialized boxes.
func (b Box) Center() r3.Vec {
	return r3.Scale(0.5, r3.Add(b.Min, b.Max))
}

// Extent returns the side lengths; zero for uninitialized boxes.
func (b Box) Extent() r3.Vec {
	if !b.IsValid() {
		return r3.Vec{}
	}
	return r3.Sub(b.Max, b.Min)
}

// Diagonal returns the length of the box diagonal.
func (b Box) Diagonal() float64 {
	return r3.Norm(b.Extent())
}

// Volume returns the box volume; zero for degenerate or uninitialized boxes.
func (b Box) Volume() float64 {
	e := b.Extent()
	return e.X * e.Y * e.Z
}

// LongestAxis returns 0, 1 or 2 for the axis with the largest extent.
// Ties resolve to the lower axis.
func (b Box) LongestAxis() int {
	e := b.Extent()
	axis, best := 0, e.X
	if e.Y > best {
		axis, best = 1, e.Y
	}
	if e.Z > best {
		axis = 2
	}
	return axis
}

// Split cuts the box with the plane axis=at and returns the lower and upper halves.
func (b Box) Split(axis int, at float64) (lo, hi Box) {
	lo, hi = b, b
	switch axis {
	case 0:
		lo.Max.X, hi.Min.X = at, at
	case 1:
		lo.Max.Y, hi.Min.Y = at, at
	default:
		lo.Max.Z, hi.Min.Z = at, at
	}
	return lo, hi
}

// Corners returns the eight box vertices.
func (b Box) Corners() [8]r3.Vec {
	var c [8]r3.Vec
	for i := range c {
		p := b.Min
		if i&1 != 0 {
			p.X = b.Max.X
		}
		if i&2 != 0 {
			p.Y = b.Max.Y
		}
		if i&4 != 0 {
			p.Z = b.Max.Z
		}
		c[i] = p
	}
	return c
}

// Distance returns the Euclidean distance from p to the box, zero inside.
func (b Box) Distance(p r3.Vec) float64 {
	if !b.IsValid() {
		return math.Inf(1)
	}
	d := r3.Vec{
		X: math.Max(0, math.Max(b.Min.X-p.X, p.X-b.Max.X)),
		Y: math.Max(0, math.Max(b.Min.Y-p.Y, p.Y-b.Max.Y)),
		Z: math.Max(0, math.Max(b.Min.Z-p.Z, p.Z-b.Max.Z)),
	}
	return r3.Norm(d)
}

// IntersectsPlanes reports whether the box overlaps the convex region bounded
// by planes (inside is the non-negative half-space of every plane).
func (b Box) IntersectsPlanes(planes []Plane) bool {
	if !b.IsValid() {
		return false
	}
	for _, pl := range planes {
		if pl.SignedDistance(b.positiveVertex(pl.Normal)) < 0 {
			return false
		}
	}
	return true
}

// positiveVertex returns the corner furthest along n.
func (b Box) positiveVertex(n r3.Vec) r3.Vec {
	p := b.Min
	if n.X >= 0 {
		p.X = b.Max.X
	}
	if n.Y >= 0 {
		p.Y = b.Max.Y
	}
	if n.Z >= 0 {
		p.Z = b.Max.Z
	}
	return p
}

// negativeVertex returns the corner furthest against n.
func (b Box) negativeVertex(n r3.Vec) r3.Vec {
	p := b.Max
	if n.X >= 0 {
		p.X = b.Min.X
	}
	if n.Y >= 0 {
		p.Y = b.Min.Y
	}
	if n.Z >= 0 {
		p.Z = b.Min.Z
	}
	return p
}

// MarshalJSON encodes the box as a six-element bounds array, or null when
// uninitialized (the sentinel uses infinities, which JSON cannot carry).
func (b Box) MarshalJSON() ([]byte, error) {
	if !b.IsValid() {
		return []byte("null"), nil
	}
	return json.Marshal(b.Bounds())
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (b *Box) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*b = EmptyBox()
		return nil
	}
	var bounds [6]float64
	if err := json.Unmarshal(data, &bounds); err != nil {
		return err
	}
	*b = BoxFromBounds(bounds)
	return nil
}
