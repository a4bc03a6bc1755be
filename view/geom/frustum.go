package geom

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Plane is the half-space Normal·p + D >= 0.
type Plane struct {
	Normal r3.Vec
	D      float64
}

// SignedDistance returns Normal·p + D. Positive values are inside. The
// result is a true distance only when Normal is unit length.
func (p Plane) SignedDistance(x r3.Vec) float64 {
	return r3.Dot(p.Normal, x) + p.D
}

// Frustum plane indices.
const (
	PlaneLeft = iota
	PlaneRight
	PlaneBottom
	PlaneTop
	PlaneNear
	PlaneFar
)

// Frustum is the six inward-facing clipping planes of a camera, ordered
// left, right, bottom, top, near, far.
type Frustum [6]Plane

// Containment classifies a box against a frustum.
type Containment int

const (
	Outside Containment = iota
	Intersecting
	Inside
)

func (c Containment) String() string {
	switch c {
	case Outside:
		return "outside"
	case Intersecting:
		return "intersecting"
	case Inside:
		return "inside"
	default:
		return "unknown"
	}
}

// FrustumFromPlanes builds a frustum from the 24-double (a,b,c,d)x6 layout.
func FrustumFromPlanes(planes [24]float64) Frustum {
	var f Frustum
	for i := range f {
		o := 4 * i
		f[i] = Plane{
			Normal: r3.Vec{X: planes[o], Y: planes[o+1], Z: planes[o+2]},
			D:      planes[o+3],
		}
	}
	return f
}

// ParsePlanes builds a frustum from a slice that must hold exactly 24 values.
func ParsePlanes(v []float64) (Frustum, error) {
	if len(v) != 24 {
		return Frustum{}, fmt.Errorf("view planes: want 24 values, got %d", len(v))
	}
	var a [24]float64
	copy(a[:], v)
	for i, x := range a {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return Frustum{}, fmt.Errorf("view planes: value %d is not finite", i)
		}
	}
	return FrustumFromPlanes(a), nil
}

// Planes returns the 24-double layout.
func (f Frustum) Planes() [24]float64 {
	var out [24]float64
	for i, p := range f {
		out[4*i] = p.Normal.X
		out[4*i+1] = p.Normal.Y
		out[4*i+2] = p.Normal.Z
		out[4*i+3] = p.D
	}
	return out
}

// Classify reports whether b lies outside, across, or fully inside f.
func (f Frustum) Classify(b Box) Containment {
	if !b.IsValid() {
		return Outside
	}
	result := Inside
	for _, pl := range f {
		if pl.SignedDistance(b.positiveVertex(pl.Normal)) < 0 {
			return Outside
		}
		if pl.SignedDistance(b.negativeVertex(pl.Normal)) < 0 {
			result = Intersecting
		}
	}
	return result
}

// Contains reports whether p is inside every plane.
func (f Frustum) Contains(p r3.Vec) bool {
	for _, pl := range f {
		if pl.SignedDistance(p) < 0 {
			return false
		}
	}
	return true
}

const coverageSamples = 3

// Coverage estimates the fraction of b inside f: 0 outside, 1 fully inside,
// otherwise the share of a 3x3x3 sample lattice that is inside, never below
// one sample.
func (f Frustum) Coverage(b Box) float64 {
	switch f.Classify(b) {
	case Outside:
		return 0
	case Inside:
		return 1
	}
	e := b.Extent()
	total := coverageSamples * coverageSamples * coverageSamples
	in := 0
	for i := 0; i < coverageSamples; i++ {
		for j := 0; j < coverageSamples; j++ {
			for k := 0; k < coverageSamples; k++ {
				p := r3.Vec{
					X: b.Min.X + e.X*float64(i)/float64(coverageSamples-1),
					Y: b.Min.Y + e.Y*float64(j)/float64(coverageSamples-1),
					Z: b.Min.Z + e.Z*float64(k)/float64(coverageSamples-1),
				}
				if f.Contains(p) {
					in++
				}
			}
		}
	}
	if in == 0 {
		in = 1
	}
	return float64(in) / float64(total)
}

// NearDistance returns the distance from p to the near plane, clamped at zero.
func (f Frustum) NearDistance(p r3.Vec) float64 {
	near := f[PlaneNear]
	n := r3.Norm(near.Normal)
	if n == 0 {
		return 0
	}
	return math.Max(0, near.SignedDistance(p)/n)
}

// BoxFrustum returns an orthographic frustum whose inside is exactly b, with
// the camera on the +Z side looking down -Z.
func BoxFrustum(b Box) Frustum {
	return Frustum{
		PlaneLeft:   {Normal: r3.Vec{X: 1}, D: -b.Min.X},
		PlaneRight:  {Normal: r3.Vec{X: -1}, D: b.Max.X},
		PlaneBottom: {Normal: r3.Vec{Y: 1}, D: -b.Min.Y},
		PlaneTop:    {Normal: r3.Vec{Y: -1}, D: b.Max.Y},
		PlaneNear:   {Normal: r3.Vec{Z: -1}, D: b.Max.Z},
		PlaneFar:    {Normal: r3.Vec{Z: 1}, D: -b.Min.Z},
	}
}

// PerspectiveFrustum builds the frustum of a pinhole camera. fovY is the
// vertical field of view in degrees.
func PerspectiveFrustum(eye, target, up r3.Vec, fovY, aspect, near, far float64) Frustum {
	fwd := r3.Unit(r3.Sub(target, eye))
	right := r3.Unit(r3.Cross(fwd, up))
	trueUp := r3.Cross(right, fwd)

	halfV := math.Tan(fovY * math.Pi / 360)
	halfH := halfV * aspect

	through := func(n r3.Vec) Plane {
		n = r3.Unit(n)
		return Plane{Normal: n, D: -r3.Dot(n, eye)}
	}
	left := r3.Sub(fwd, r3.Scale(halfH, right))
	rightDir := r3.Add(fwd, r3.Scale(halfH, right))
	bottom := r3.Sub(fwd, r3.Scale(halfV, trueUp))
	top := r3.Add(fwd, r3.Scale(halfV, trueUp))

	nearPt := r3.Add(eye, r3.Scale(near, fwd))
	farPt := r3.Add(eye, r3.Scale(far, fwd))
	back := r3.Scale(-1, fwd)

	return Frustum{
		PlaneLeft:   through(r3.Cross(left, trueUp)),
		PlaneRight:  through(r3.Cross(trueUp, rightDir)),
		PlaneBottom: through(r3.Cross(right, bottom)),
		PlaneTop:    through(r3.Cross(top, right)),
		PlaneNear:   {Normal: fwd, D: -r3.Dot(fwd, nearPt)},
		PlaneFar:    {Normal: back, D: -r3.Dot(back, farPt)},
	}
}
