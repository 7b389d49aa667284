package geometry

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	ErrTypeDegenerate = "degenerate_polygon"
)

// ReflexTolerance is the cross product of normalized edges above which a
// vertex is considered reflex.
const ReflexTolerance = 0.1

// Decompose splits a simple polygon into convex pieces. Decomposition is best
// effort: when a piece can't be split because of degenerate edges, it is kept
// whole and a warning is logged.
func Decompose(p Polygon) []Polygon {
	if len(p) < 3 {
		return []Polygon{p}
	}

	pieces, err := decompose(normalizeWinding(p))
	if err != nil {
		logs.WithTag("points", len(p)).Warn(err)
		return []Polygon{p}
	}
	return pieces
}

// normalizeWinding orients p so that the vertex minimizing x+y, which is
// always convex, turns clockwise.
func normalizeWinding(p Polygon) Polygon {
	index := 0
	lowest := p[0].X() + p[0].Y()
	for i, pt := range p {
		if v := pt.X() + pt.Y(); v < lowest {
			index = i
			lowest = v
		}
	}

	if c, ok := turn(p, index); ok && c > ReflexTolerance {
		return p.Reversed()
	}
	return p
}

// decompose splits a clockwise polygon at its first reflex vertex and recurses
// on both halves. It returns an error typed ErrTypeDegenerate when this level
// can't be split; pieces of sub levels that can't be split are kept whole.
func decompose(p Polygon) ([]Polygon, error) {
	if len(p) < 4 {
		return []Polygon{p}, nil
	}

	reflex := -1
	var bisector mgl64.Vec2
	for i := range p {
		in, out, ok := edges(p, i)
		if !ok {
			return nil, errors.New("zero length edge").
				WithType(ErrTypeDegenerate).
				WithTag("index", i)
		}

		if cross(in, out) > ReflexTolerance {
			reflex = i
			bisector, ok = normalized(in.Sub(out))
			if !ok {
				return nil, errors.New("undefined bisector").
					WithType(ErrTypeDegenerate).
					WithTag("index", i)
			}
			break
		}
	}

	if reflex < 0 {
		return []Polygon{p}, nil
	}

	target, err := splitTarget(p, reflex, bisector)
	if err != nil {
		return nil, err
	}

	lo, hi := min(reflex, target), max(reflex, target)
	outside := make(Polygon, 0, len(p))
	inside := make(Polygon, 0, len(p))
	for i, pt := range p {
		if i <= lo || i >= hi {
			outside = append(outside, pt)
		}
		if i >= lo && i <= hi {
			inside = append(inside, pt)
		}
	}

	var pieces []Polygon
	for _, half := range []Polygon{outside, inside} {
		sub, err := decompose(half)
		if err != nil {
			logs.WithTag("points", len(half)).Warn(err)
			sub = []Polygon{half}
		}

		for _, piece := range sub {
			if len(piece) > 2 {
				pieces = append(pieces, piece)
			}
		}
	}
	return pieces, nil
}

// splitTarget returns the vertex, not adjacent to reflex, whose direction from
// reflex is the most aligned with the bisector.
func splitTarget(p Polygon, reflex int, bisector mgl64.Vec2) (int, error) {
	n := len(p)
	origin := p[reflex]

	target := -1
	best := 0.0
	for i := range p {
		if indexDistance(i, reflex, n) < 2 {
			continue
		}

		d, ok := normalized(p[i].Sub(origin))
		if !ok {
			return 0, errors.New("split vertex overlaps reflex vertex").
				WithType(ErrTypeDegenerate).
				WithTag("index", i).
				WithTag("reflex_index", reflex)
		}

		if alignment := d.Dot(bisector); target < 0 || alignment > best {
			target = i
			best = alignment
		}
	}

	if target < 0 {
		return 0, errors.New("no split vertex").
			WithType(ErrTypeDegenerate).
			WithTag("reflex_index", reflex)
	}
	return target, nil
}

func indexDistance(i, j, n int) int {
	d := i - j
	if d < 0 {
		d = -d
	}
	return min(d, n-d)
}
