package geom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pairFrom(x1s, x1e, x2s, x2e [3]float64) PairCoords {
	var c PairCoords
	copy(c[0:3], x1s[:])
	copy(c[3:6], x1e[:])
	copy(c[6:9], x2s[:])
	copy(c[9:12], x2e[:])
	return c
}

func swapped(c PairCoords) PairCoords {
	var s PairCoords
	copy(s[0:6], c[6:12])
	copy(s[6:12], c[0:6])
	return s
}

func TestMinDistanceParallelSegments(t *testing.T) {
	c := pairFrom([3]float64{0, 0, 0}, [3]float64{1, 0, 0},
		[3]float64{0, 0.08, 0}, [3]float64{1, 0.08, 0})
	assert.InDelta(t, 0.08, c.MinDistance(), 1e-12)
}

func TestMinDistanceCrossingSegments(t *testing.T) {
	// Perpendicular skew segments crossing above the midpoint.
	c := pairFrom([3]float64{0, 0, 0}, [3]float64{1, 0, 0},
		[3]float64{0.5, 0.25, -0.5}, [3]float64{0.5, 0.25, 0.5})
	dist, t1, t2 := c.ClosestApproach()
	assert.InDelta(t, 0.25, dist, 1e-12)
	assert.InDelta(t, 0.5, t1, 1e-12)
	assert.InDelta(t, 0.5, t2, 1e-12)
}

func TestMinDistanceClampedEndpoints(t *testing.T) {
	// Segments pointing away from each other: closest approach is between
	// the two near endpoints.
	c := pairFrom([3]float64{0, 0, 0}, [3]float64{-1, 0, 0},
		[3]float64{1, 1, 0}, [3]float64{2, 2, 0})
	dist, t1, t2 := c.ClosestApproach()
	assert.InDelta(t, 1.4142135623730951, dist, 1e-12)
	assert.Zero(t, t1)
	assert.Zero(t, t2)
}

func TestMinDistanceSymmetricUnderSwap(t *testing.T) {
	cases := []PairCoords{
		pairFrom([3]float64{0, 0, 0}, [3]float64{1, 0, 0},
			[3]float64{0.4, 0.08, -0.5}, [3]float64{0.6, 0.09, 0.5}),
		pairFrom([3]float64{0, 0, 0}, [3]float64{1, 0, 0},
			[3]float64{0, 0.2, 0}, [3]float64{1, 0.2, 0}),
		pairFrom([3]float64{-1, 2, 0.5}, [3]float64{0.3, 1.1, -0.2},
			[3]float64{2, 2, 2}, [3]float64{3, 1, 2}),
	}
	for i, c := range cases {
		s := swapped(c)
		assert.InDelta(t, c.MinDistance(), s.MinDistance(), 1e-12, "case %d", i)
	}
}

func TestDerivedParamsMatchDots(t *testing.T) {
	c := pairFrom([3]float64{0, 0, 0}, [3]float64{1, 0, 0},
		[3]float64{0.4, 0.08, -0.5}, [3]float64{0.6, 0.09, 0.5})
	p, dist := c.DerivedParams()

	e1 := c.X1E().Sub(c.X1S())
	e2 := c.X2E().Sub(c.X2S())
	e12 := c.X2S().Sub(c.X1S())
	assert.InDelta(t, e1.Dot(e1), p[ParamD1], 1e-12)
	assert.InDelta(t, e2.Dot(e2), p[ParamD2], 1e-12)
	assert.InDelta(t, e1.Dot(e2), p[ParamR], 1e-12)
	assert.InDelta(t, e1.Dot(e12), p[ParamS1], 1e-12)
	assert.InDelta(t, e2.Dot(e12), p[ParamS2], 1e-12)

	wantDist, _, wantT2 := c.ClosestApproach()
	assert.Equal(t, wantDist, dist)
	assert.Equal(t, wantT2, p[ParamT2])

	require.True(t, c.Finite())
}

func TestInteriorClassification(t *testing.T) {
	skew := pairFrom([3]float64{0, 0, 0}, [3]float64{1, 0, 0},
		[3]float64{0.4, 0.08, -0.5}, [3]float64{0.6, 0.09, 0.5})
	assert.True(t, skew.Interior())

	parallel := pairFrom([3]float64{0, 0, 0}, [3]float64{1, 0, 0},
		[3]float64{0, 0.08, 0}, [3]float64{1, 0.08, 0})
	assert.False(t, parallel.Interior())

	clamped := pairFrom([3]float64{0, 0, 0}, [3]float64{-1, 0, 0},
		[3]float64{1, 1, 0}, [3]float64{2, 2, 0})
	assert.False(t, clamped.Interior())
}
