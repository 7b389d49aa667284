package http

import (
	"math"
	"net/http"
	"strconv"

	"github.com/aukilabs/dagaz/easing"
	"github.com/aukilabs/dagaz/geometry"
	"github.com/aukilabs/dagaz/ground"
	"github.com/aukilabs/dagaz/terrain"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	defaultEasingSamples = 32
	maxEasingSamples     = 4096
)

// GroundService answers ground height queries.
type GroundService interface {
	Query(point mgl64.Vec3, maxVerticalDelta float64) (mgl64.Vec3, bool)
	Stats() ground.Stats
}

// Anchor is the anchor of a ground service.
type Anchor interface {
	ground.AnchorProvider
	Set(mgl64.Vec3)
	Clear()
}

// Terrain is the surface rays are cast against.
type Terrain interface {
	Insert(quads ...terrain.Quad)
	Region(minPoint, maxPoint mgl64.Vec3) []terrain.Quad
	DebugInfo() terrain.DebugInfo
}

// API serves the ground height, terrain and geometry endpoints.
type API struct {
	Ground  GroundService
	Anchor  Anchor
	Terrain Terrain

	// The vertical delta used by height queries that do not specify one.
	DefaultMaxVerticalDelta float64
}

// Register registers the API endpoints on mux, each wrapped with wrap when
// not nil.
func (a *API) Register(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	handle := func(pattern string, h http.HandlerFunc) {
		var handler http.Handler = h
		if wrap != nil {
			handler = wrap(handler)
		}
		mux.Handle(pattern, handler)
	}

	handle("GET /height", a.HandleHeight)
	handle("GET /stats", a.HandleStats)
	handle("GET /anchor", a.HandleGetAnchor)
	handle("PUT /anchor", a.HandlePutAnchor)
	handle("DELETE /anchor", a.HandleDeleteAnchor)
	handle("GET /terrain/region", a.HandleTerrainRegion)
	handle("POST /terrain/quads", a.HandleTerrainQuads)
	handle("GET /terrain/debug", a.HandleTerrainDebug)
	handle("POST /geometry/decompose", a.HandleDecompose)
	handle("POST /geometry/inside", a.HandleInside)
	handle("GET /easing", a.HandleEasing)
}

type heightResponse struct {
	Point mgl64.Vec3 `json:"point"`
	OK    bool       `json:"ok"`
}

// HandleHeight answers the ground height at the x, y and z query parameters.
// The optional delta parameter bounds the vertical distance to y.
func (a *API) HandleHeight(w http.ResponseWriter, r *http.Request) {
	point, err := queryVec3(r, "x", "y", "z")
	if err != nil {
		BadRequest(w, err)
		return
	}

	delta := a.DefaultMaxVerticalDelta
	if r.URL.Query().Has("delta") {
		if delta, err = queryFloat(r, "delta"); err != nil {
			BadRequest(w, err)
			return
		}
	}
	if delta < 0 {
		BadRequest(w, errors.New("negative delta").
			WithType(ErrTypeBadRequest).
			WithTag("delta", delta))
		return
	}

	p, ok := a.Ground.Query(point, delta)
	writeJSON(w, http.StatusOK, heightResponse{
		Point: p,
		OK:    ok,
	})
}

func (a *API) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Ground.Stats())
}

type anchorBody struct {
	Anchor *mgl64.Vec3 `json:"anchor"`
}

func (a *API) HandleGetAnchor(w http.ResponseWriter, r *http.Request) {
	var res anchorBody
	if anchor, ok := a.Anchor.Anchor(); ok {
		res.Anchor = &anchor
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) HandlePutAnchor(w http.ResponseWriter, r *http.Request) {
	var req anchorBody
	if err := decodeBody(r, &req); err != nil {
		BadRequest(w, err)
		return
	}

	if req.Anchor == nil || !isFinite(req.Anchor[:]...) {
		BadRequest(w, errors.New("invalid anchor").
			WithType(ErrTypeBadRequest).
			WithTag("anchor", req.Anchor))
		return
	}

	a.Anchor.Set(*req.Anchor)
	writeJSON(w, http.StatusOK, req)
}

func (a *API) HandleDeleteAnchor(w http.ResponseWriter, r *http.Request) {
	a.Anchor.Clear()
	w.WriteHeader(http.StatusNoContent)
}

type quadsBody struct {
	Quads []terrain.Quad `json:"quads"`
}

// HandleTerrainRegion answers the quads covering the horizontal region
// between the min_x, min_z, max_x and max_z query parameters.
func (a *API) HandleTerrainRegion(w http.ResponseWriter, r *http.Request) {
	minX, errMinX := queryFloat(r, "min_x")
	minZ, errMinZ := queryFloat(r, "min_z")
	maxX, errMaxX := queryFloat(r, "max_x")
	maxZ, errMaxZ := queryFloat(r, "max_z")
	for _, err := range []error{errMinX, errMinZ, errMaxX, errMaxZ} {
		if err != nil {
			BadRequest(w, err)
			return
		}
	}

	quads := a.Terrain.Region(
		mgl64.Vec3{math.Min(minX, maxX), 0, math.Min(minZ, maxZ)},
		mgl64.Vec3{math.Max(minX, maxX), 0, math.Max(minZ, maxZ)},
	)
	if quads == nil {
		quads = []terrain.Quad{}
	}
	writeJSON(w, http.StatusOK, quadsBody{Quads: quads})
}

type insertedBody struct {
	Inserted int `json:"inserted"`
}

// HandleTerrainQuads inserts the quads of a terrain document in the terrain.
func (a *API) HandleTerrainQuads(w http.ResponseWriter, r *http.Request) {
	quads, err := terrain.ReadQuads(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		BadRequest(w, err)
		return
	}

	a.Terrain.Insert(quads...)
	writeJSON(w, http.StatusOK, insertedBody{Inserted: len(quads)})
}

func (a *API) HandleTerrainDebug(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Terrain.DebugInfo())
}

type decomposeRequest struct {
	Polygon geometry.Polygon `json:"polygon"`
}

type decomposeResponse struct {
	Pieces []geometry.Polygon `json:"pieces"`
}

func (a *API) HandleDecompose(w http.ResponseWriter, r *http.Request) {
	var req decomposeRequest
	if err := decodeBody(r, &req); err != nil {
		BadRequest(w, err)
		return
	}

	for _, p := range req.Polygon {
		if !isFinite(p[:]...) {
			BadRequest(w, errors.New("invalid polygon point").
				WithType(ErrTypeBadRequest).
				WithTag("point", p))
			return
		}
	}

	pieces := geometry.Decompose(req.Polygon)
	if pieces == nil {
		pieces = []geometry.Polygon{}
	}
	writeJSON(w, http.StatusOK, decomposeResponse{Pieces: pieces})
}

type insideRequest struct {
	Point mgl64.Vec2         `json:"point"`
	Rings []geometry.Polygon `json:"rings"`
}

type insideResponse struct {
	Inside bool `json:"inside"`
}

func (a *API) HandleInside(w http.ResponseWriter, r *http.Request) {
	var req insideRequest
	if err := decodeBody(r, &req); err != nil {
		BadRequest(w, err)
		return
	}

	writeJSON(w, http.StatusOK, insideResponse{
		Inside: geometry.IsInside(req.Point, req.Rings...),
	})
}

type easingResponse struct {
	In      string    `json:"in"`
	Out     string    `json:"out"`
	Samples []float64 `json:"samples"`
}

// HandleEasing samples the curve composed from the in and out query
// parameters. The samples parameter sets the number of intervals.
func (a *API) HandleEasing(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	in, err := easing.ParseKind(q.Get("in"))
	if err != nil {
		BadRequest(w, err)
		return
	}

	out, err := easing.ParseKind(q.Get("out"))
	if err != nil {
		BadRequest(w, err)
		return
	}

	n := defaultEasingSamples
	if q.Has("samples") {
		if n, err = strconv.Atoi(q.Get("samples")); err != nil || n < 1 || n > maxEasingSamples {
			BadRequest(w, errors.New("invalid samples").
				WithType(ErrTypeBadRequest).
				WithTag("samples", q.Get("samples")).
				WithTag("max", maxEasingSamples))
			return
		}
	}

	spec := easing.Spec{In: in, Out: out}
	writeJSON(w, http.StatusOK, easingResponse{
		In:      in.String(),
		Out:     out.String(),
		Samples: easing.Sample(spec.Func(), n),
	})
}

func queryFloat(r *http.Request, name string) (float64, error) {
	s := r.URL.Query().Get(name)

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !isFinite(v) {
		return 0, errors.New("invalid query parameter").
			WithType(ErrTypeBadRequest).
			WithTag("name", name).
			WithTag("value", s)
	}
	return v, nil
}

func queryVec3(r *http.Request, x, y, z string) (mgl64.Vec3, error) {
	var v mgl64.Vec3
	for i, name := range []string{x, y, z} {
		c, err := queryFloat(r, name)
		if err != nil {
			return mgl64.Vec3{}, err
		}
		v[i] = c
	}
	return v, nil
}

func isFinite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
