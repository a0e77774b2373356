package contact

import (
	"fmt"
	"log"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/mat"

	"rod-contact/internal/geom"
)

// Model composes the provider's building blocks into per-pair forces and
// Hessians. Pairs are independent; all loops are straight per-pair scans over
// the batch.
type Model struct {
	provider Provider
	mu       float64 // friction coefficient
	logger   *log.Logger

	// OnFallback, when set, is called each time a non-finite friction
	// jacobian is discarded.
	OnFallback func()

	ddRows [9][12]float64
	hconst []*mat.Dense
}

func NewModel(p Provider, mu float64, logger *log.Logger) *Model {
	m := &Model{provider: p, mu: mu, logger: logger, hconst: p.FirstHessConst()}
	dd := p.DD()
	for r := 0; r < 9; r++ {
		for c := 0; c < 12; c++ {
			m.ddRows[r][c] = dd.At(r, c)
		}
	}
	return m
}

// Forces evaluates the total per-pair forces for the active set. The
// conservative part is the exact chain-ruled energy gradient; the friction
// term is added on top when enabled. A non-finite total force is fatal: the
// solver integrates these directly and there is no safe value to substitute.
func (m *Model) Forces(coords []geom.PairCoords, params []geom.Params, vels []geom.PairCoords, friction bool) ([][12]float64, error) {
	dEdx := m.conservative(coords, params)
	total := dEdx
	if friction {
		total = make([][12]float64, len(dEdx))
		ffr := m.frictionForces(coords, vels, dEdx)
		for i := range dEdx {
			for c := 0; c < 12; c++ {
				total[i][c] = dEdx[i][c] + ffr[i][c]
			}
		}
	}
	if !forcesFinite(total) {
		return nil, fmt.Errorf("contact: non-finite contact force over %d active pairs", len(total))
	}
	return total, nil
}

// ForcesAndHessians additionally assembles the per-pair 12x12 Hessians. A
// non-finite value in the aggregate Hessian discards only the
// friction-jacobian term and keeps the conservative Hessian, which is always
// well defined; the event is logged so operators can see the model being
// driven outside the friction fit.
func (m *Model) ForcesAndHessians(coords []geom.PairCoords, params []geom.Params, vels []geom.PairCoords, friction bool) ([][12]float64, []*mat.Dense, error) {
	dEdx := m.conservative(coords, params)
	hess := m.conservativeHessians(coords, params)

	total := dEdx
	totalHess := hess
	if friction {
		ffr := m.frictionForces(coords, vels, dEdx)
		ffrJac := m.frictionJacobians(coords, vels, dEdx, hess)

		total = make([][12]float64, len(dEdx))
		for i := range dEdx {
			for c := 0; c < 12; c++ {
				total[i][c] = dEdx[i][c] + ffr[i][c]
			}
		}
		totalHess = make([]*mat.Dense, len(hess))
		for i := range hess {
			sum := mat.NewDense(12, 12, nil)
			sum.Add(hess[i], ffrJac[i])
			totalHess[i] = sum
		}
		if !hessiansFinite(totalHess) {
			m.logger.Printf("[Contact] non-finite friction jacobian, keeping conservative hessian only")
			if m.OnFallback != nil {
				m.OnFallback()
			}
			totalHess = hess
		}
	}
	if !forcesFinite(total) {
		return nil, nil, fmt.Errorf("contact: non-finite contact force over %d active pairs", len(total))
	}
	return total, totalHess, nil
}

// conservative chain-rules the energy gradient back to raw coordinates:
// dE/dx = s_grad[:9]·dd + Σ_k s_grad[9+k]·f_grad[k].
func (m *Model) conservative(coords []geom.PairCoords, params []geom.Params) [][12]float64 {
	fg := m.provider.FirstGrads(coords)
	sg := m.provider.SecondGrads(params)

	out := make([][12]float64, len(coords))
	for i := range coords {
		for r := 0; r < 9; r++ {
			w := sg[i][r]
			for c := 0; c < 12; c++ {
				out[i][c] += w * m.ddRows[r][c]
			}
		}
		for k := 0; k < 6; k++ {
			w := sg[i][9+k]
			for c := 0; c < 12; c++ {
				out[i][c] += w * fg[i][k][c]
			}
		}
	}
	return out
}

// conservativeHessians assembles d²E/dx² per pair: the second-layer Hessian
// contracted through the parameter gradients on both sides, plus the
// first-layer curvature weighted by the second-layer gradient.
func (m *Model) conservativeHessians(coords []geom.PairCoords, params []geom.Params) []*mat.Dense {
	fg := m.provider.FirstGrads(coords)
	sg := m.provider.SecondGrads(params)
	sh := m.provider.SecondHess(params)
	hvar := m.provider.FirstHessVar(coords)

	out := make([]*mat.Dense, len(coords))
	for i := range coords {
		// Parameter-to-coordinate routes: dd rows for the linear parameters,
		// first-layer gradients for the rest.
		var routes [15][12]float64
		copy(routes[:9], m.ddRows[:])
		copy(routes[9:], fg[i][:])

		// d²E/(dp_a dx) for every derived parameter a.
		var shc [15][12]float64
		for a := 0; a < 15; a++ {
			for b := 0; b < 15; b++ {
				w := sh[i].At(a, b)
				if w == 0 {
					continue
				}
				for c := 0; c < 12; c++ {
					shc[a][c] += w * routes[b][c]
				}
			}
		}

		h := mat.NewDense(12, 12, nil)
		for r := 0; r < 9; r++ {
			h.RankOne(h, 1, mat.NewVecDense(12, shc[r][:]), mat.NewVecDense(12, m.ddRows[r][:]))
		}
		for k := 0; k < 5; k++ {
			h.Add(h, scaled(m.hconst[k], sg[i][9+k]))
			h.RankOne(h, 1, mat.NewVecDense(12, shc[9+k][:]), mat.NewVecDense(12, fg[i][k][:]))
		}
		h.Add(h, scaled(hvar[i], sg[i][14]))
		h.RankOne(h, 1, mat.NewVecDense(12, shc[14][:]), mat.NewVecDense(12, fg[i][5][:]))
		out[i] = h
	}
	return out
}

// frictionForces applies the Coulomb-style correction: tangent directions
// from averaged endpoint velocities, sliding sign from the relative
// tangential velocity, magnitude mu times the normal force, a quarter of each
// edge's share per endpoint.
func (m *Model) frictionForces(coords []geom.PairCoords, vels []geom.PairCoords, dEdx [][12]float64) [][12]float64 {
	out := make([][12]float64, len(coords))
	for i := range coords {
		c := &coords[i]
		e1 := c.X1E().Sub(c.X1S())
		e2 := c.X2E().Sub(c.X2S())
		if e1.Len() < tinyLen || e2.Len() < tinyLen {
			continue
		}
		t1 := e2.Normalize()
		t2 := e1.Normalize()

		f1s := mgl64.Vec3{dEdx[i][0], dEdx[i][1], dEdx[i][2]}
		f1e := mgl64.Vec3{dEdx[i][3], dEdx[i][4], dEdx[i][5]}
		ffrVal := m.mu * f1s.Add(f1e).Len()

		v := &vels[i]
		v1 := v.X1S().Add(v.X1E()).Mul(0.5)
		v2 := v.X2S().Add(v.X2E()).Mul(0.5)
		vr := v1.Sub(v2)

		dir1 := sign(vr.Dot(t1))
		dir2 := sign(vr.Mul(-1).Dot(t2))

		ffr1 := t1.Mul(dir1 * ffrVal)
		ffr2 := t2.Mul(dir2 * ffrVal)
		half := ffr1.Sub(ffr2).Mul(0.25) // quarter of the edge total per endpoint
		for a := 0; a < 3; a++ {
			out[i][a] = half[a]
			out[i][3+a] = half[a]
			out[i][6+a] = -half[a]
			out[i][9+a] = -half[a]
		}
	}
	return out
}

// frictionJacobians chain-rules the provider's partial friction jacobian
// through the contact Hessian: the friction force depends on coordinates both
// directly and through the conservative force.
func (m *Model) frictionJacobians(coords []geom.PairCoords, vels []geom.PairCoords, dEdx [][12]float64, hess []*mat.Dense) []*mat.Dense {
	inputs := make([]FrictionInput, len(coords))
	for i := range coords {
		copy(inputs[i][0:12], coords[i][:])
		copy(inputs[i][12:24], vels[i][:])
		copy(inputs[i][24:36], dEdx[i][:])
		inputs[i][36] = m.mu
	}
	partials := m.provider.FrictionJacobian(inputs)

	out := make([]*mat.Dense, len(coords))
	for i, g := range partials {
		var top, bottom mat.Dense
		top.Mul(g.Slice(0, 3, 12, 24), hess[i])
		top.Add(&top, g.Slice(0, 3, 0, 12))
		bottom.Mul(g.Slice(3, 6, 12, 24), hess[i])
		bottom.Add(&bottom, g.Slice(3, 6, 0, 12))

		j := mat.NewDense(12, 12, nil)
		j.Slice(0, 3, 0, 12).(*mat.Dense).Copy(&top)
		j.Slice(3, 6, 0, 12).(*mat.Dense).Copy(&top)
		j.Slice(6, 9, 0, 12).(*mat.Dense).Copy(&bottom)
		j.Slice(9, 12, 0, 12).(*mat.Dense).Copy(&bottom)
		out[i] = j
	}
	return out
}

func forcesFinite(forces [][12]float64) bool {
	var sum float64
	for i := range forces {
		for _, v := range forces[i] {
			sum += v
		}
	}
	return !math.IsNaN(sum) && !math.IsInf(sum, 0)
}

func hessiansFinite(hess []*mat.Dense) bool {
	var sum float64
	for _, h := range hess {
		sum += mat.Sum(h)
	}
	return !math.IsNaN(sum) && !math.IsInf(sum, 0)
}
