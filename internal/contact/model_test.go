package contact

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"rod-contact/internal/geom"
)

// slidingVelocities moves the first edge along +x and the second along -x.
func slidingVelocities() []geom.PairCoords {
	return []geom.PairCoords{{
		0.1, 0, 0, 0.1, 0, 0,
		-0.2, 0, 0, -0.2, 0, 0,
	}}
}

func TestFrictionChangesOnlyTheFrictionTerm(t *testing.T) {
	m := loadTestModel(t, 0.3)
	coords := []geom.PairCoords{skewPair()}
	params, _ := coords[0].DerivedParams()
	vels := slidingVelocities()

	off, err := m.Forces(coords, []geom.Params{params}, vels, false)
	require.NoError(t, err)
	on, err := m.Forces(coords, []geom.Params{params}, vels, true)
	require.NoError(t, err)

	// The conservative component is identical in both runs; the difference
	// is exactly the friction term.
	conservative := m.conservative(coords, []geom.Params{params})
	assert.Equal(t, conservative[0], off[0])

	var diff [12]float64
	var mag float64
	for i := 0; i < 12; i++ {
		diff[i] = on[0][i] - off[0][i]
		mag += diff[i] * diff[i]
	}
	assert.Greater(t, mag, 0.0, "sliding contact must produce friction")

	// Each edge's friction is split equally between its endpoints, and the
	// two edges carry opposite shares.
	for a := 0; a < 3; a++ {
		assert.InDelta(t, diff[a], diff[3+a], 1e-12)
		assert.InDelta(t, diff[6+a], diff[9+a], 1e-12)
		assert.InDelta(t, -diff[a], diff[6+a], 1e-12)
	}
}

func TestFrictionVanishesWithoutSliding(t *testing.T) {
	m := loadTestModel(t, 0.3)
	coords := []geom.PairCoords{skewPair()}
	params, _ := coords[0].DerivedParams()
	still := []geom.PairCoords{{}}

	off, err := m.Forces(coords, []geom.Params{params}, still, false)
	require.NoError(t, err)
	on, err := m.Forces(coords, []geom.Params{params}, still, true)
	require.NoError(t, err)
	assert.Equal(t, off, on, "zero relative velocity has sign 0 and no friction")
}

func TestFrictionJacobianContribution(t *testing.T) {
	m := loadTestModel(t, 0.3)
	coords := []geom.PairCoords{skewPair()}
	params, _ := coords[0].DerivedParams()
	vels := slidingVelocities()

	_, plain, err := m.ForcesAndHessians(coords, []geom.Params{params}, vels, false)
	require.NoError(t, err)
	_, withFriction, err := m.ForcesAndHessians(coords, []geom.Params{params}, vels, true)
	require.NoError(t, err)

	assert.False(t, mat.Equal(plain[0], withFriction[0]),
		"friction jacobian must alter the hessian for a sliding contact")
	assert.False(t, math.IsNaN(mat.Sum(withFriction[0])))
}

// nanForceProvider poisons the second-layer gradients.
type nanForceProvider struct{ Provider }

func (p nanForceProvider) SecondGrads(params []geom.Params) [][15]float64 {
	out := make([][15]float64, len(params))
	for i := range out {
		out[i][0] = math.NaN()
	}
	return out
}

// nanFrictionProvider poisons only the friction jacobian block.
type nanFrictionProvider struct{ Provider }

func (p nanFrictionProvider) FrictionJacobian(inputs []FrictionInput) []*mat.Dense {
	out := make([]*mat.Dense, len(inputs))
	for i := range out {
		d := mat.NewDense(6, 24, nil)
		d.Set(0, 0, math.NaN())
		out[i] = d
	}
	return out
}

func TestNonFiniteForceIsFatal(t *testing.T) {
	base, err := LoadProvider("lse", testSharpness, testContactLen)
	require.NoError(t, err)
	m := NewModel(nanForceProvider{base}, 0.3, testLogger())

	coords := []geom.PairCoords{skewPair()}
	params, _ := coords[0].DerivedParams()

	_, err = m.Forces(coords, []geom.Params{params}, slidingVelocities(), false)
	assert.ErrorContains(t, err, "non-finite contact force")

	_, _, err = m.ForcesAndHessians(coords, []geom.Params{params}, slidingVelocities(), false)
	assert.ErrorContains(t, err, "non-finite contact force")
}

func TestNonFiniteFrictionJacobianFallsBack(t *testing.T) {
	base, err := LoadProvider("lse", testSharpness, testContactLen)
	require.NoError(t, err)
	m := NewModel(nanFrictionProvider{base}, 0.3, testLogger())
	fallbacks := 0
	m.OnFallback = func() { fallbacks++ }

	coords := []geom.PairCoords{skewPair()}
	params, _ := coords[0].DerivedParams()
	vels := slidingVelocities()

	forces, hess, err := m.ForcesAndHessians(coords, []geom.Params{params}, vels, true)
	require.NoError(t, err, "the conservative hessian is a valid recovery")
	assert.Equal(t, 1, fallbacks)

	// Forces keep the friction term, the hessian drops only the jacobian.
	conservativeHess := m.conservativeHessians(coords, []geom.Params{params})
	assert.True(t, mat.Equal(conservativeHess[0], hess[0]))
	var sum float64
	for _, v := range forces[0] {
		sum += v
	}
	assert.False(t, math.IsNaN(sum))
}
