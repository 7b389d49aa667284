package terrain

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var down = mgl64.Vec3{0, -1, 0}

func TestSurfaceCast(t *testing.T) {
	s := NewSurface(1)
	s.Insert(FlatGround(3, 10))

	t.Run("hit", func(t *testing.T) {
		hit, ok := s.Cast(mgl64.Vec3{1, 11, 1}, down, 100)
		require.True(t, ok)
		require.InDelta(t, 1, hit.X(), 0.0001)
		require.InDelta(t, 3, hit.Y(), 0.0001)
		require.InDelta(t, 1, hit.Z(), 0.0001)
	})

	t.Run("outside the terrain", func(t *testing.T) {
		_, ok := s.Cast(mgl64.Vec3{50, 11, 50}, down, 100)
		require.False(t, ok)
	})

	t.Run("below the ground", func(t *testing.T) {
		_, ok := s.Cast(mgl64.Vec3{1, 2, 1}, down, 100)
		require.False(t, ok)
	})

	t.Run("out of reach", func(t *testing.T) {
		_, ok := s.Cast(mgl64.Vec3{1, 11, 1}, down, 5)
		require.False(t, ok)
	})

	t.Run("highest surface first", func(t *testing.T) {
		s := NewSurface(1)
		s.Insert(
			FlatGround(0, 10),
			NewQuad(mgl64.Vec3{2, 1.5, 2}, mgl64.Vec3{0.5, 0, 0.5}),
		)

		hit, ok := s.Cast(mgl64.Vec3{2, 9.5, 2}, down, 100)
		require.True(t, ok)
		require.InDelta(t, 1.5, hit.Y(), 0.0001)

		hit, ok = s.Cast(mgl64.Vec3{-2, 9.5, -2}, down, 100)
		require.True(t, ok)
		require.InDelta(t, 0, hit.Y(), 0.0001)
	})
}

func TestSurfaceInsertMerges(t *testing.T) {
	s := NewSurface(1)
	s.Insert(
		NewQuad(mgl64.Vec3{0, 1, 0}, mgl64.Vec3{1, 0, 1}),
		NewQuad(mgl64.Vec3{0, 1.2, 0}, mgl64.Vec3{1, 0, 1}),
	)

	info := s.DebugInfo()
	require.Equal(t, uint32(1), info.PlaneCount)
	require.Equal(t, uint32(1), info.MergeCount)

	quads := s.Region(mgl64.Vec3{-5, 0, -5}, mgl64.Vec3{5, 0, 5})
	require.Len(t, quads, 1)
	require.InDelta(t, 1.04, quads[0].Center.Y(), 0.0001)
}

func TestSurfaceRegion(t *testing.T) {
	s := NewSurface(1)
	s.Insert(
		NewQuad(mgl64.Vec3{-4, 0, -4}, mgl64.Vec3{0.5, 0, 0.5}),
		NewQuad(mgl64.Vec3{4, 0, 4}, mgl64.Vec3{0.5, 0, 0.5}),
	)

	quads := s.Region(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{10, 0, 10})
	expected := []Quad{{
		Center:  mgl64.Vec3{4, 0, 4},
		Extents: mgl64.Vec3{0.5, 0, 0.5},
		Normal:  mgl64.Vec3{0, 1, 0},
	}}

	diff := cmp.Diff(expected, quads,
		cmpopts.IgnoreFields(Quad{}, "ID"),
		cmpopts.EquateApprox(0, 0.0001),
	)
	require.Empty(t, diff)

	// returned quads are copies:
	quads[0].Center = mgl64.Vec3{}
	require.Equal(t, mgl64.Vec3{4, 0, 4}, s.Region(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{10, 0, 10})[0].Center)
}

func TestSurfaceConcurrentAccess(t *testing.T) {
	s := NewSurface(1)
	s.Insert(FlatGround(0, 20))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			s.Insert(NewQuad(mgl64.Vec3{float64(i * 3), 5, 0}, mgl64.Vec3{1, 0, 1}))
		}(i)
		go func() {
			defer wg.Done()
			_, ok := s.Cast(mgl64.Vec3{-8, 10, -8}, down, 100)
			assert.True(t, ok)
		}()
	}
	wg.Wait()

	require.Equal(t, uint32(5), s.DebugInfo().PlaneCount)
}

func TestReadQuads(t *testing.T) {
	t.Run("valid document", func(t *testing.T) {
		quads, err := ReadQuads(strings.NewReader(`{
			"quads": [
				{"center": [0, 1, 0], "extents": [2, 0, 2]},
				{"center": [5, 2, 5], "extents": [1, 0, 1]}
			]
		}`))
		require.NoError(t, err)
		require.Len(t, quads, 2)
		require.Equal(t, mgl64.Vec3{5, 2, 5}, quads[1].Center)
		require.Equal(t, mgl64.Vec3{1, 0, 1}, quads[1].Extents)
		require.NotEmpty(t, quads[0].ID)
		require.True(t, quads[0].Normal.ApproxEqual(mgl64.Vec3{0, 1, 0}))
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := ReadQuads(strings.NewReader(`{"quads": [`))
		require.Error(t, err)
	})

	t.Run("negative extents", func(t *testing.T) {
		_, err := ReadQuads(strings.NewReader(`{"quads": [{"center": [0, 0, 0], "extents": [-1, 0, 1]}]}`))
		require.Error(t, err)
	})
}

func TestLoadFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "terrain.json")
	err := os.WriteFile(filename, []byte(`{"quads": [{"center": [0, 0, 0], "extents": [1, 0, 1]}]}`), 0o600)
	require.NoError(t, err)

	quads, err := LoadFile(filename)
	require.NoError(t, err)
	require.Len(t, quads, 1)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
