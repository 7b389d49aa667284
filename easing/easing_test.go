package easing

import (
	"math"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestComposeIdentity(t *testing.T) {
	f := Compose(None, None)
	for _, x := range []float64{0, 0.1, 0.25, 0.5, 0.75, 0.9, 1} {
		require.Equal(t, x, f(x))
	}
}

func TestComposeBoundaries(t *testing.T) {
	for _, k := range Kinds() {
		t.Run(k.String(), func(t *testing.T) {
			f := Compose(k, k)
			require.InDelta(t, 0, f(0), 1e-9)
			require.InDelta(t, 1, f(1), 1e-9)

			out := Compose(None, k)
			require.InDelta(t, 0, out(0), 1e-9)
			require.InDelta(t, 1, out(1), 1e-9)

			in := Compose(k, None)
			require.InDelta(t, 0, in(0), 1e-9)
			require.InDelta(t, 1, in(1), 1e-9)
		})
	}
}

func TestComposeContinuousAtHalf(t *testing.T) {
	const eps = 1e-6

	for _, k := range Kinds() {
		t.Run(k.String(), func(t *testing.T) {
			f := Compose(k, k)
			require.InDelta(t, 0.5, f(0.5), 1e-9)
			require.InDelta(t, f(0.5), f(0.5-eps), 1e-3)
		})
	}

	t.Run("mixed kinds", func(t *testing.T) {
		f := Compose(Quad, Bounce)
		require.InDelta(t, 0.5, f(0.5), 1e-9)
		require.InDelta(t, f(0.5), f(0.5-eps), 1e-3)
	})
}

func TestComposeInIsMirroredOut(t *testing.T) {
	in := Compose(Cubic, None)
	out := EaseOut(Cubic)

	for _, x := range []float64{0.1, 0.3, 0.6, 0.8} {
		require.InDelta(t, 1-out(1-x), in(x), 1e-12)
	}

	// ease in starts slow
	require.Less(t, in(0.25), 0.25)
}

func TestEaseOutMonotonicFamilies(t *testing.T) {
	for _, k := range Kinds() {
		if k.Overshoots() || k == Bounce {
			continue
		}

		t.Run(k.String(), func(t *testing.T) {
			samples := Sample(EaseOut(k), 50)
			for i := 1; i < len(samples); i++ {
				require.GreaterOrEqual(t, samples[i]+1e-12, samples[i-1])
				require.LessOrEqual(t, samples[i], 1+1e-9)
			}
		})
	}
}

func TestEaseOutOvershoot(t *testing.T) {
	maxOf := func(k Kind) float64 {
		m := math.Inf(-1)
		for _, v := range Sample(EaseOut(k), 200) {
			m = math.Max(m, v)
		}
		return m
	}

	require.Greater(t, maxOf(Back), 1.0)
	require.Greater(t, maxOf(Elastic), 1.0)
}

func TestEaseOutBounceSegments(t *testing.T) {
	f := EaseOut(Bounce)
	require.InDelta(t, 0.75, f(1.5/bounceD1), 1e-12)
	require.InDelta(t, 0.9375, f(2.25/bounceD1), 1e-12)
	require.InDelta(t, 0.984375, f(2.625/bounceD1), 1e-12)
}

func TestParseKind(t *testing.T) {
	t.Run("known kinds round trip", func(t *testing.T) {
		for _, k := range Kinds() {
			parsed, err := ParseKind(k.String())
			require.NoError(t, err)
			require.Equal(t, k, parsed)
		}
	})

	t.Run("empty is none", func(t *testing.T) {
		k, err := ParseKind("  ")
		require.NoError(t, err)
		require.Equal(t, None, k)
	})

	t.Run("case insensitive", func(t *testing.T) {
		k, err := ParseKind("Elastic")
		require.NoError(t, err)
		require.Equal(t, Elastic, k)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := ParseKind("wobble")
		require.Error(t, err)
		require.Equal(t, ErrTypeUnknownKind, errors.Type(err))
	})
}

func TestSpecFunc(t *testing.T) {
	s := Spec{In: Sine, Out: Sine}
	require.InDelta(t, Compose(Sine, Sine)(0.3), s.Func()(0.3), 1e-12)
	require.Equal(t, "unknown", Kind(42).String())
}
