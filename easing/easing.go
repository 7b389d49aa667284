// Package easing composes directional easing curves used to animate overlay
// shapes. Every curve maps [0,1] to roughly [0,1]; Back and Elastic overshoot.
package easing

import (
	"math"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

const (
	ErrTypeUnknownKind = "unknown_ease_kind"
)

// Kind is a family of easing curves.
type Kind int

const (
	None Kind = iota
	Sine
	Quad
	Cubic
	Quart
	Quint
	Expo
	Circ
	Back
	Elastic
	Bounce
)

var kindNames = [...]string{
	None:    "none",
	Sine:    "sine",
	Quad:    "quad",
	Cubic:   "cubic",
	Quart:   "quart",
	Quint:   "quint",
	Expo:    "expo",
	Circ:    "circ",
	Back:    "back",
	Elastic: "elastic",
	Bounce:  "bounce",
}

// Kinds lists every kind, None included.
func Kinds() []Kind {
	kinds := make([]Kind, len(kindNames))
	for i := range kindNames {
		kinds[i] = Kind(i)
	}
	return kinds
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Overshoots reports whether the curve intentionally leaves [0,1].
func (k Kind) Overshoots() bool {
	return k == Back || k == Elastic
}

// ParseKind parses a kind name, case insensitive. An empty string is None.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return None, nil
	}

	for i, name := range kindNames {
		if name == s {
			return Kind(i), nil
		}
	}

	return None, errors.New("unknown ease kind").
		WithType(ErrTypeUnknownKind).
		WithTag("kind", s)
}

// Func is an easing function over [0,1].
type Func func(x float64) float64

// Spec is an immutable (in, out) pair.
type Spec struct {
	In  Kind
	Out Kind
}

func (s Spec) Func() Func {
	return Compose(s.In, s.Out)
}

// Compose builds the curve easing in with the in kind and out with the out
// kind. The in half is the out curve mirrored around (0.5, 0.5). When both are
// set the halves are scaled to [0,0.5) and [0.5,1] and meet at 0.5.
func Compose(in, out Kind) Func {
	switch {
	case in == None && out == None:
		return func(x float64) float64 { return x }

	case in == None:
		return EaseOut(out)

	case out == None:
		easeIn := EaseOut(in)
		return func(x float64) float64 {
			return 1 - easeIn(1-x)
		}

	default:
		easeIn := EaseOut(in)
		easeOut := EaseOut(out)
		return func(x float64) float64 {
			if x < 0.5 {
				return (1 - easeIn(1-2*x)) / 2
			}
			return (1 + easeOut(2*x-1)) / 2
		}
	}
}

const (
	backC1 = 1.70158
	backC3 = backC1 + 1

	elasticC4 = (2 * math.Pi) / 3

	bounceN1 = 7.5625
	bounceD1 = 2.75
)

// EaseOut returns the ease-out curve of a kind. None and unknown kinds are
// linear.
func EaseOut(k Kind) Func {
	switch k {
	case Sine:
		return func(x float64) float64 { return math.Sin(x * math.Pi / 2) }
	case Quad:
		return func(x float64) float64 { return 1 - (1-x)*(1-x) }
	case Cubic:
		return func(x float64) float64 { return 1 - math.Pow(1-x, 3) }
	case Quart:
		return func(x float64) float64 { return 1 - math.Pow(1-x, 4) }
	case Quint:
		return func(x float64) float64 { return 1 - math.Pow(1-x, 5) }
	case Expo:
		return easeOutExpo
	case Circ:
		return func(x float64) float64 { return math.Sqrt(1 - math.Pow(x-1, 2)) }
	case Back:
		return func(x float64) float64 {
			return 1 + backC3*math.Pow(x-1, 3) + backC1*math.Pow(x-1, 2)
		}
	case Elastic:
		return easeOutElastic
	case Bounce:
		return easeOutBounce
	default:
		return func(x float64) float64 { return x }
	}
}

func easeOutExpo(x float64) float64 {
	if x == 1 {
		return 1
	}
	return 1 - math.Pow(2, -10*x)
}

func easeOutElastic(x float64) float64 {
	switch x {
	case 0:
		return 0
	case 1:
		return 1
	}
	return math.Pow(2, -10*x)*math.Sin((x*10-0.75)*elasticC4) + 1
}

func easeOutBounce(x float64) float64 {
	switch {
	case x < 1/bounceD1:
		return bounceN1 * x * x

	case x < 2/bounceD1:
		x -= 1.5 / bounceD1
		return bounceN1*x*x + 0.75

	case x < 2.5/bounceD1:
		x -= 2.25 / bounceD1
		return bounceN1*x*x + 0.9375

	default:
		x -= 2.625 / bounceD1
		return bounceN1*x*x + 0.984375
	}
}

// Sample evaluates f at n+1 evenly spaced points of [0,1].
func Sample(f Func, n int) []float64 {
	if n < 1 {
		n = 1
	}

	samples := make([]float64, n+1)
	for i := 0; i <= n; i++ {
		samples[i] = f(float64(i) / float64(n))
	}
	return samples
}
