package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aukilabs/dagaz/ground"
	"github.com/aukilabs/dagaz/heightcache"
	"github.com/aukilabs/dagaz/raycast"
	"github.com/aukilabs/dagaz/terrain"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/go-cmp/cmp"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	cache   *heightcache.Cache
	anchor  *ground.AtomicAnchor
	surface *terrain.Surface
	server  *httptest.Server
}

func newTestAPI(t *testing.T) testAPI {
	surface := terrain.NewSurface(1)
	surface.Insert(terrain.FlatGround(-1.5, 20))

	cache := heightcache.New(100)
	scheduler := raycast.NewScheduler(surface, cache)
	anchor := &ground.AtomicAnchor{}
	service := ground.New(cache, scheduler, anchor)

	api := API{
		Ground:                  service,
		Anchor:                  anchor,
		Terrain:                 surface,
		DefaultMaxVerticalDelta: 5,
	}

	var mux http.ServeMux
	api.Register(&mux, HandleWithCORS)

	server := httptest.NewServer(&mux)
	t.Cleanup(func() {
		server.Close()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		service.Stop(ctx)
	})

	return testAPI{
		cache:   cache,
		anchor:  anchor,
		surface: surface,
		server:  server,
	}
}

func (a testAPI) do(t *testing.T, method, path, body string, out any) int {
	req, err := http.NewRequest(method, a.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	b, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	if out != nil && res.StatusCode < 300 {
		require.NoError(t, json.Unmarshal(b, out), string(b))
	}
	return res.StatusCode
}

func TestAPIHeight(t *testing.T) {
	a := newTestAPI(t)
	a.cache.Put(heightcache.Key{X: 1, Z: 2}, -1.5)

	tests := []struct {
		scenario string
		query    string
		status   int
		expected heightResponse
	}{
		{
			scenario: "resolved",
			query:    "x=1&y=0&z=2",
			status:   http.StatusOK,
			expected: heightResponse{Point: mgl64.Vec3{1, -1.5, 2}, OK: true},
		},
		{
			scenario: "clamped with default delta",
			query:    "x=1&y=10&z=2",
			status:   http.StatusOK,
			expected: heightResponse{Point: mgl64.Vec3{1, 5, 2}, OK: true},
		},
		{
			scenario: "clamped with custom delta",
			query:    "x=1&y=10&z=2&delta=2",
			status:   http.StatusOK,
			expected: heightResponse{Point: mgl64.Vec3{1, 8, 2}, OK: true},
		},
		{
			scenario: "unresolved",
			query:    "x=40&y=0&z=40",
			status:   http.StatusOK,
			expected: heightResponse{Point: mgl64.Vec3{40, 0, 40}},
		},
		{
			scenario: "missing coordinate",
			query:    "x=1&y=0",
			status:   http.StatusBadRequest,
		},
		{
			scenario: "not a number",
			query:    "x=NaN&y=0&z=0",
			status:   http.StatusBadRequest,
		},
		{
			scenario: "negative delta",
			query:    "x=1&y=0&z=2&delta=-1",
			status:   http.StatusBadRequest,
		},
	}

	for _, test := range tests {
		t.Run(test.scenario, func(t *testing.T) {
			var res heightResponse
			status := a.do(t, http.MethodGet, "/height?"+test.query, "", &res)
			require.Equal(t, test.status, status)
			if status == http.StatusOK {
				require.Equal(t, test.expected, res)
			}
		})
	}
}

func TestAPIAnchor(t *testing.T) {
	a := newTestAPI(t)

	var res anchorBody
	require.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/anchor", "", &res))
	require.Nil(t, res.Anchor)

	require.Equal(t, http.StatusOK, a.do(t, http.MethodPut, "/anchor", `{"anchor":[1,2,3]}`, nil))
	anchor, ok := a.anchor.Anchor()
	require.True(t, ok)
	require.Equal(t, mgl64.Vec3{1, 2, 3}, anchor)

	require.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/anchor", "", &res))
	require.Equal(t, &mgl64.Vec3{1, 2, 3}, res.Anchor)

	require.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPut, "/anchor", `{}`, nil))
	require.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPut, "/anchor", `{"anchor":`, nil))

	require.Equal(t, http.StatusNoContent, a.do(t, http.MethodDelete, "/anchor", "", nil))
	_, ok = a.anchor.Anchor()
	require.False(t, ok)
}

func TestAPIStats(t *testing.T) {
	a := newTestAPI(t)
	a.cache.Put(heightcache.Key{}, 0)
	a.anchor.Set(mgl64.Vec3{4, 5, 6})

	var stats ground.Stats
	require.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/stats", "", &stats))
	require.Equal(t, ground.Stats{
		Entries:  1,
		Capacity: 100,
		Anchor:   &mgl64.Vec3{4, 5, 6},
	}, stats)
}

func TestAPITerrain(t *testing.T) {
	a := newTestAPI(t)

	t.Run("insert quads", func(t *testing.T) {
		var res insertedBody
		status := a.do(t, http.MethodPost, "/terrain/quads", `{"quads": [
			{"center": [30, 2, 30], "extents": [1, 0, 1]},
			{"center": [34, 2, 30], "extents": [1, 0, 1]}
		]}`, &res)
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, 2, res.Inserted)

		hit, ok := a.surface.Cast(mgl64.Vec3{30, 10, 30}, raycast.Down, 100)
		require.True(t, ok)
		require.InDelta(t, 2, hit.Y(), 0.0001)
	})

	t.Run("invalid quads", func(t *testing.T) {
		status := a.do(t, http.MethodPost, "/terrain/quads", `{"quads": [{"center": [0, 0, 0], "extents": [-1, 0, 1]}]}`, nil)
		require.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("region", func(t *testing.T) {
		var res quadsBody
		status := a.do(t, http.MethodGet, "/terrain/region?min_x=35&min_z=35&max_x=29&max_z=29", "", &res)
		require.Equal(t, http.StatusOK, status)
		require.Len(t, res.Quads, 2)

		status = a.do(t, http.MethodGet, "/terrain/region?min_x=50&min_z=50&max_x=60&max_z=60", "", &res)
		require.Equal(t, http.StatusOK, status)
		require.Empty(t, res.Quads)

		status = a.do(t, http.MethodGet, "/terrain/region?min_x=0", "", nil)
		require.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("debug", func(t *testing.T) {
		var info terrain.DebugInfo
		require.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/terrain/debug", "", &info))
		require.Equal(t, uint32(3), info.PlaneCount)
		require.Equal(t, info.RowCount*info.ColCount, len(info.Occupancy))
	})
}

func TestAPIGeometry(t *testing.T) {
	a := newTestAPI(t)

	t.Run("decompose", func(t *testing.T) {
		var res decomposeResponse
		status := a.do(t, http.MethodPost, "/geometry/decompose", `{"polygon": [[0,0],[1,0],[1,1],[0,1]]}`, &res)
		require.Equal(t, http.StatusOK, status)
		require.Len(t, res.Pieces, 1)
		require.Len(t, res.Pieces[0], 4)
	})

	t.Run("decompose empty polygon", func(t *testing.T) {
		var res decomposeResponse
		status := a.do(t, http.MethodPost, "/geometry/decompose", `{"polygon": []}`, &res)
		require.Equal(t, http.StatusOK, status)
	})

	t.Run("decompose invalid body", func(t *testing.T) {
		status := a.do(t, http.MethodPost, "/geometry/decompose", `[`, nil)
		require.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("inside", func(t *testing.T) {
		body := `{
			"point": [%s],
			"rings": [
				[[0,0],[10,0],[10,10],[0,10]],
				[[4,4],[6,4],[6,6],[4,6]]
			]
		}`

		var res insideResponse
		require.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/geometry/inside", strings.Replace(body, "%s", "2,2", 1), &res))
		require.True(t, res.Inside)

		require.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/geometry/inside", strings.Replace(body, "%s", "5,5", 1), &res))
		require.False(t, res.Inside)
	})
}

func TestAPIEasing(t *testing.T) {
	a := newTestAPI(t)

	t.Run("identity", func(t *testing.T) {
		var res easingResponse
		require.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/easing?samples=4", "", &res))

		expected := easingResponse{
			In:      "none",
			Out:     "none",
			Samples: []float64{0, 0.25, 0.5, 0.75, 1},
		}
		require.Empty(t, cmp.Diff(expected, res))
	})

	t.Run("composed", func(t *testing.T) {
		var res easingResponse
		require.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/easing?in=quad&out=cubic", "", &res))
		require.Len(t, res.Samples, defaultEasingSamples+1)
		require.InDelta(t, 0, res.Samples[0], 1e-9)
		require.InDelta(t, 1, res.Samples[defaultEasingSamples], 1e-9)
	})

	t.Run("unknown kind", func(t *testing.T) {
		require.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/easing?in=wobble", "", nil))
	})

	t.Run("invalid samples", func(t *testing.T) {
		require.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/easing?samples=0", "", nil))
		require.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/easing?samples=abc", "", nil))
	})
}

func TestAPIMethodNotAllowed(t *testing.T) {
	a := newTestAPI(t)
	require.Equal(t, http.StatusMethodNotAllowed, a.do(t, http.MethodPost, "/height", "", nil))
}
