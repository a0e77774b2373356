package geom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairIndexExcludesAdjacentEdges(t *testing.T) {
	idx := NewPairIndex(20, 2)
	for _, pr := range idx.Pairs {
		assert.Greater(t, pr.J, pr.I)
		assert.Greater(t, pr.J-pr.I, 2, "pair (%d,%d) inside the exclusion window", pr.I, pr.J)
	}
}

func TestPairIndexCountMatchesFormula(t *testing.T) {
	for _, tc := range []struct {
		numEdges, window int
	}{
		{4, 2}, {10, 2}, {50, 2}, {7, 0}, {5, 4}, {3, 2},
	} {
		idx := NewPairIndex(tc.numEdges, tc.window)

		want := 0
		for i := 0; i < tc.numEdges; i++ {
			if add := tc.numEdges - i - (tc.window + 1); add > 0 {
				want += add
			}
		}
		assert.Equal(t, want, idx.Len(), "numEdges=%d window=%d", tc.numEdges, tc.window)

		// Brute force over all pairs must agree.
		brute := 0
		for i := 0; i < tc.numEdges; i++ {
			for j := i + 1; j < tc.numEdges; j++ {
				if j-i > tc.window {
					brute++
				}
			}
		}
		assert.Equal(t, brute, idx.Len())
	}
}

func TestPairIndexOrderIsStable(t *testing.T) {
	a := NewPairIndex(12, 2)
	b := NewPairIndex(12, 2)
	require.Equal(t, a.Pairs, b.Pairs)

	// First pair starts at the lowest eligible combination.
	require.NotEmpty(t, a.Pairs)
	assert.Equal(t, EdgePair{I: 0, J: 3}, a.Pairs[0])
}
