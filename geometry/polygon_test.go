package geometry

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/require"
)

func square(minX, minY, size float64) Polygon {
	return Polygon{
		{minX, minY},
		{minX + size, minY},
		{minX + size, minY + size},
		{minX, minY + size},
	}
}

func TestIsInside(t *testing.T) {
	unit := square(0, 0, 1)

	t.Run("inside unit square", func(t *testing.T) {
		require.True(t, IsInside(mgl64.Vec2{0.5, 0.5}, unit))
	})

	t.Run("outside unit square", func(t *testing.T) {
		require.False(t, IsInside(mgl64.Vec2{2, 2}, unit))
		require.False(t, IsInside(mgl64.Vec2{-0.5, 0.5}, unit))
	})

	t.Run("clockwise ring", func(t *testing.T) {
		require.True(t, IsInside(mgl64.Vec2{0.5, 0.5}, unit.Reversed()))
	})

	t.Run("hole", func(t *testing.T) {
		outer := square(0, 0, 4)
		hole := square(1, 1, 2)

		require.False(t, IsInside(mgl64.Vec2{2, 2}, outer, hole))
		require.True(t, IsInside(mgl64.Vec2{0.5, 0.5}, outer, hole))
		require.True(t, IsInside(mgl64.Vec2{3.5, 2}, outer, hole))
	})

	t.Run("disjoint parts", func(t *testing.T) {
		a := square(0, 0, 1)
		b := square(5, 5, 1)

		require.True(t, IsInside(mgl64.Vec2{5.5, 5.5}, a, b))
		require.False(t, IsInside(mgl64.Vec2{3, 3}, a, b))
	})

	t.Run("degenerate rings are skipped", func(t *testing.T) {
		require.False(t, IsInside(mgl64.Vec2{0, 0}))
		require.False(t, IsInside(mgl64.Vec2{0, 0}, Polygon{}, Polygon{{0, 0}}))
		require.True(t, IsInside(mgl64.Vec2{0.5, 0.5}, unit, Polygon{{0.5, 0.5}}))
	})
}

func TestIsInside3D(t *testing.T) {
	ring := []mgl64.Vec3{
		{0, 10, 0},
		{4, 12, 0},
		{4, 8, 4},
		{0, 9, 4},
	}

	require.True(t, IsInside3D(mgl64.Vec3{2, -100, 2}, ring))
	require.False(t, IsInside3D(mgl64.Vec3{2, 0, 5}, ring))
}

func TestArea(t *testing.T) {
	require.Equal(t, 4.0, Area(square(0, 0, 2)))
	require.Equal(t, -4.0, Area(square(0, 0, 2).Reversed()))
	require.Zero(t, Area(Polygon{{0, 0}, {1, 1}}))
}

func TestIsConvex(t *testing.T) {
	require.True(t, IsConvex(square(0, 0, 1), ReflexTolerance))
	require.False(t, IsConvex(Polygon{{0, 0}, {2, 0}, {2, 1}, {1, 1}, {1, 2}, {0, 2}}, ReflexTolerance))
	require.False(t, IsConvex(Polygon{{0, 0}, {1, 0}}, ReflexTolerance))
}
