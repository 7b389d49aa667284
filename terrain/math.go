package terrain

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

func EqualWithEpsilon(a, b, epsilon float64) bool {
	return math.Abs(a-b) <= epsilon
}

func InRangeWithEpsilon(value, min, max, epsilon float64) bool {
	return value+epsilon >= min && value-epsilon <= max
}

// Quad is a flat rectangular surface sample.
type Quad struct {
	ID      string     `json:"id"`
	Center  mgl64.Vec3 `json:"center"`
	Extents mgl64.Vec3 `json:"extents"` // Half-Extents!

	// implicit
	Normal mgl64.Vec3 `json:"-"`

	MergeCount uint32 `json:"merge_count"`
}

// NewQuad creates a quad with a new id and its normal computed from its
// extents.
func NewQuad(center, extents mgl64.Vec3) Quad {
	return Quad{
		ID:      uuid.NewString(),
		Center:  center,
		Extents: extents,
		Normal:  calculateNormal(center, extents),
	}
}

func (q Quad) Min() mgl64.Vec3 {
	return q.Center.Sub(q.Extents)
}

func (q Quad) Max() mgl64.Vec3 {
	return q.Center.Add(q.Extents)
}

func doHorizontalPlanesOverlap(a, b Quad) bool {
	minA, maxA := a.Min(), a.Max()
	minB, maxB := b.Min(), b.Max()

	if minA.X() >= maxB.X() || maxA.X() <= minB.X() {
		return false
	}
	if minA.Z() >= maxB.Z() || maxA.Z() <= minB.Z() {
		return false
	}

	// overlap on both axes -> must overlap
	return true
}

func calculateNormal(c, e mgl64.Vec3) mgl64.Vec3 {
	pointA := c.Add(mgl64.Vec3{e.X(), e.Y(), 0})
	pointB := c.Add(mgl64.Vec3{0, e.Y(), e.Z()})
	normal := pointB.Sub(c).Cross(pointA.Sub(c))

	if l := normal.Len(); l != 0 {
		normal = normal.Mul(1 / l)
	}
	return normal
}

// Ray is a segment going from From to To.
type Ray struct {
	From mgl64.Vec3
	To   mgl64.Vec3
}

// At returns the point of the ray at parameter t, 0 being From and 1 To.
func (r Ray) At(t float64) mgl64.Vec3 {
	return r.From.Add(r.To.Sub(r.From).Mul(t))
}

// IntersectQuad returns whether r hits q and the ray parameter of the hit.
func IntersectQuad(r Ray, q Quad) (bool, float64) {
	rayDir := r.To.Sub(r.From)

	denominator := q.Normal.Dot(rayDir)
	if denominator != 0 {
		t := (q.Normal.Dot(q.Center) - q.Normal.Dot(r.From)) / denominator
		if t >= 0 && t <= 1 {
			hitPoint := r.At(t)

			// check hitPoint is in bounds:
			minPoint, maxPoint := q.Min(), q.Max()
			if InRangeWithEpsilon(hitPoint.X(), minPoint.X(), maxPoint.X(), 0.0001) &&
				InRangeWithEpsilon(hitPoint.Y(), minPoint.Y(), maxPoint.Y(), 0.0001) &&
				InRangeWithEpsilon(hitPoint.Z(), minPoint.Z(), maxPoint.Z(), 0.0001) {
				return true, t
			}
		}
	}
	return false, -1
}
