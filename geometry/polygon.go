// Package geometry provides the polygon routines used to project overlay
// shapes: membership tests over multi-ring polygons and decomposition of simple
// polygons into convex pieces.
//
// Points are mgl64.Vec2 values. A polygon is implicitly closed: the last point
// connects back to the first one.
package geometry

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Polygon is an ordered, implicitly closed sequence of points.
type Polygon []mgl64.Vec2

// Reversed returns a copy of p in the opposite winding.
func (p Polygon) Reversed() Polygon {
	r := make(Polygon, len(p))
	for i, pt := range p {
		r[len(p)-1-i] = pt
	}
	return r
}

// IsInside reports whether point lies inside the polygon described by rings,
// using the even-odd rule over every ring. Holes and disjoint parts are given
// as additional rings. Rings with fewer than two points are ignored.
func IsInside(point mgl64.Vec2, rings ...Polygon) bool {
	crossings := 0

	for _, ring := range rings {
		if len(ring) < 2 {
			continue
		}

		prev := ring[len(ring)-1]
		for _, pt := range ring {
			if crossesRay(prev, pt, point) {
				crossings++
			}
			prev = pt
		}
	}

	return crossings%2 == 1
}

// IsInside3D is IsInside for rings of 3D points projected on the horizontal
// (x, z) plane.
func IsInside3D(point mgl64.Vec3, rings ...[]mgl64.Vec3) bool {
	projected := make([]Polygon, len(rings))
	for i, ring := range rings {
		projected[i] = Project(ring)
	}
	return IsInside(Horizontal(point), projected...)
}

// Horizontal returns the (x, z) components of a 3D point.
func Horizontal(p mgl64.Vec3) mgl64.Vec2 {
	return mgl64.Vec2{p.X(), p.Z()}
}

// Project maps a 3D ring on the horizontal plane.
func Project(ring []mgl64.Vec3) Polygon {
	p := make(Polygon, len(ring))
	for i, pt := range ring {
		p[i] = Horizontal(pt)
	}
	return p
}

// crossesRay reports whether the edge (a, b) crosses the horizontal ray going
// from p towards +x.
func crossesRay(a, b, p mgl64.Vec2) bool {
	if (p.Y() < a.Y()) == (p.Y() < b.Y()) {
		return false
	}
	return p.X() < a.X()+(p.Y()-a.Y())/(b.Y()-a.Y())*(b.X()-a.X())
}

// Area returns the signed area of p: positive when counter-clockwise.
func Area(p Polygon) float64 {
	if len(p) < 3 {
		return 0
	}

	var sum float64
	prev := p[len(p)-1]
	for _, pt := range p {
		sum += prev.X()*pt.Y() - pt.X()*prev.Y()
		prev = pt
	}
	return sum / 2
}

// IsConvex reports whether every turn of p has the same orientation. Turns
// closer to straight than tolerance are ignored.
func IsConvex(p Polygon, tolerance float64) bool {
	if len(p) < 3 {
		return false
	}

	var positive, negative bool
	for i := range p {
		c, ok := turn(p, i)
		if !ok {
			continue
		}

		switch {
		case c > tolerance:
			positive = true
		case c < -tolerance:
			negative = true
		}
	}
	return !(positive && negative)
}

// turn returns the z component of the cross product between the normalized
// incoming and outgoing edges at index i. It returns false when one of the
// edges has no length.
func turn(p Polygon, i int) (float64, bool) {
	in, out, ok := edges(p, i)
	if !ok {
		return 0, false
	}
	return cross(in, out), true
}

func edges(p Polygon, i int) (in, out mgl64.Vec2, ok bool) {
	n := len(p)
	prev := p[(i-1+n)%n]
	mid := p[i]
	next := p[(i+1)%n]

	in, ok = normalized(mid.Sub(prev))
	if !ok {
		return in, out, false
	}
	out, ok = normalized(next.Sub(mid))
	return in, out, ok
}

func cross(a, b mgl64.Vec2) float64 {
	return a.X()*b.Y() - a.Y()*b.X()
}

func normalized(v mgl64.Vec2) (mgl64.Vec2, bool) {
	l := v.Len()
	if l == 0 || math.IsNaN(l) || math.IsInf(l, 0) {
		return mgl64.Vec2{}, false
	}
	return v.Mul(1 / l), true
}
