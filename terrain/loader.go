package terrain

import (
	"io"
	"os"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/segmentio/encoding/json"
)

const (
	ErrTypeInvalidTerrain = "invalid_terrain"
)

type quadFile struct {
	Quads []struct {
		Center  mgl64.Vec3 `json:"center"`
		Extents mgl64.Vec3 `json:"extents"`
	} `json:"quads"`
}

// ReadQuads decodes a terrain document:
//
//	{"quads": [{"center": [x, y, z], "extents": [x, y, z]}]}
//
// Extents are half-extents. Every decoded quad gets a new id.
func ReadQuads(r io.Reader) ([]Quad, error) {
	var f quadFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, errors.New("decoding terrain failed").
			WithType(ErrTypeInvalidTerrain).
			Wrap(err)
	}

	quads := make([]Quad, 0, len(f.Quads))
	for i, q := range f.Quads {
		if q.Extents.X() < 0 || q.Extents.Y() < 0 || q.Extents.Z() < 0 {
			return nil, errors.New("negative quad extents").
				WithType(ErrTypeInvalidTerrain).
				WithTag("index", i).
				WithTag("extents", q.Extents)
		}
		quads = append(quads, NewQuad(q.Center, q.Extents))
	}
	return quads, nil
}

// LoadFile reads the quads of the terrain document at the given path.
func LoadFile(filename string) ([]Quad, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.New("opening terrain file failed").
			WithTag("filename", filename).
			Wrap(err)
	}
	defer f.Close()

	quads, err := ReadQuads(f)
	if err != nil {
		return nil, errors.New("loading terrain file failed").
			WithTag("filename", filename).
			Wrap(err)
	}
	return quads, nil
}

// FlatGround returns a single horizontal quad at the given height, centered on
// the origin and spanning size on both horizontal axes.
func FlatGround(height, size float64) Quad {
	return NewQuad(mgl64.Vec3{0, height, 0}, mgl64.Vec3{size / 2, 0, size / 2})
}
