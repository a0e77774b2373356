package assemble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"rod-contact/internal/geom"
)

// six-edge rod: 7 nodes, 21 dof.
const testNV = 21

func newTestAssembler() (*Assembler, []float64, []float64) {
	forces := make([]float64, testNV)
	hessian := make([]float64, testNV*testNV)
	return New(forces, hessian), forces, hessian
}

func unitForces(n int) [][12]float64 {
	out := make([][12]float64, n)
	for i := range out {
		for c := 0; c < 12; c++ {
			out[i][c] = float64(c + 1)
		}
	}
	return out
}

func TestAddForcesPlacesEdgeBlocks(t *testing.T) {
	a, forces, _ := newTestAssembler()
	a.AddForces([]geom.EdgePair{{I: 0, J: 3}}, unitForces(1))

	// Edge 0 covers dof 0..5, edge 3 covers dof 9..14.
	for c := 0; c < 6; c++ {
		assert.Equal(t, float64(c+1), forces[c])
		assert.Equal(t, float64(c+7), forces[9+c])
	}
	for _, i := range []int{6, 7, 8, 15, 16, 17, 18, 19, 20} {
		assert.Zero(t, forces[i])
	}
}

func TestAddForcesAccumulatesSharedEdges(t *testing.T) {
	a, forces, _ := newTestAssembler()
	// Pairs (0,3) and (0,5) share edge 0: its block accumulates.
	a.AddForces([]geom.EdgePair{{I: 0, J: 3}, {I: 0, J: 5}}, unitForces(2))
	for c := 0; c < 6; c++ {
		assert.Equal(t, 2*float64(c+1), forces[c])
	}
}

func TestAddHessiansPlacesFourBlocks(t *testing.T) {
	a, _, hessian := newTestAssembler()

	local := mat.NewDense(12, 12, nil)
	for i := 0; i < 12; i++ {
		for j := 0; j < 12; j++ {
			local.Set(i, j, float64(12*i+j))
		}
	}
	a.AddHessians([]geom.EdgePair{{I: 1, J: 4}}, []*mat.Dense{local})

	h := mat.NewDense(testNV, testNV, hessian)
	// Edge 1 block starts at dof 3, edge 4 block at dof 12.
	for r := 0; r < 6; r++ {
		for c := 0; c < 6; c++ {
			assert.Equal(t, local.At(r, c), h.At(3+r, 3+c))
			assert.Equal(t, local.At(r, 6+c), h.At(3+r, 12+c))
			assert.Equal(t, local.At(6+r, c), h.At(12+r, 3+c))
			assert.Equal(t, local.At(6+r, 6+c), h.At(12+r, 12+c))
		}
	}
}

func TestZeroingClearsPriorContents(t *testing.T) {
	a, forces, hessian := newTestAssembler()
	for i := range forces {
		forces[i] = 42
	}
	for i := range hessian {
		hessian[i] = 42
	}
	a.ZeroForces()
	a.ZeroHessian()
	for i := range forces {
		require.Zero(t, forces[i])
	}
	for i := range hessian {
		require.Zero(t, hessian[i])
	}
}

func TestScaleAppliesGain(t *testing.T) {
	a, forces, hessian := newTestAssembler()
	a.AddForces([]geom.EdgePair{{I: 0, J: 3}}, unitForces(1))
	hessian[0] = 2

	a.Scale(10, false)
	assert.Equal(t, 10.0, forces[0])
	assert.Equal(t, 2.0, hessian[0], "hessian untouched unless requested")

	a.Scale(10, true)
	assert.Equal(t, 100.0, forces[0])
	assert.Equal(t, 20.0, hessian[0])
}
