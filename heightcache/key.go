package heightcache

import (
	"cmp"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Key is the horizontal position of a point, rounded to one decimal.
type Key struct {
	X float64
	Z float64
}

// KeyOf returns the key of a 3D point. Y is the vertical axis.
func KeyOf(p mgl64.Vec3) Key {
	return Key{
		X: round1(p.X()),
		Z: round1(p.Z()),
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Distance returns the euclidean distance between two keys.
func (k Key) Distance(o Key) float64 {
	return math.Hypot(k.X-o.X, k.Z-o.Z)
}

// Compare orders keys by their truncated integer coordinates first, then by
// their exact coordinates. Nearest key lookups rely on this order.
func Compare(a, b Key) int {
	if c := cmp.Compare(int64(a.X), int64(b.X)); c != 0 {
		return c
	}
	if c := cmp.Compare(int64(a.Z), int64(b.Z)); c != 0 {
		return c
	}
	if c := cmp.Compare(a.X, b.X); c != 0 {
		return c
	}
	return cmp.Compare(a.Z, b.Z)
}
