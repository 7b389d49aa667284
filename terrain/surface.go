package terrain

import (
	"sync"

	"github.com/go-gl/mathgl/mgl64"
)

// Surface is a concurrency safe terrain made of horizontal quads. It
// implements the raycast.Caster interface.
type Surface struct {
	mutex sync.RWMutex
	grid  *RegularGrid
}

// NewSurface creates an empty surface partitioned in cells of the given
// resolution.
func NewSurface(resolution float64) *Surface {
	return &Surface{
		grid: NewRegularGrid(1, 1, resolution),
	}
}

// Insert adds the given quads to the surface. Quads overlapping an existing
// one at a close height are merged into it.
func (s *Surface) Insert(quads ...Quad) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, q := range quads {
		s.grid.InsertQuad(q)
	}
}

// Cast returns the first surface point hit by the segment going from origin
// along direction for maxDistance.
func (s *Surface) Cast(origin, direction mgl64.Vec3, maxDistance float64) (mgl64.Vec3, bool) {
	ray := Ray{
		From: origin,
		To:   origin.Add(direction.Mul(maxDistance)),
	}

	s.mutex.RLock()
	q, t := s.grid.IntersectQuad(ray)
	s.mutex.RUnlock()

	if q == nil {
		return mgl64.Vec3{}, false
	}
	return ray.At(t), true
}

// Region returns copies of the quads covering the horizontal region between
// minPoint and maxPoint.
func (s *Surface) Region(minPoint, maxPoint mgl64.Vec3) []Quad {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	found := s.grid.GetRegion(minPoint, maxPoint)
	quads := make([]Quad, len(found))
	for i, q := range found {
		quads[i] = *q
	}
	return quads
}

func (s *Surface) DebugInfo() DebugInfo {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.grid.GetDebugInfo()
}
