// Package contact evaluates the contact energy model for active edge pairs:
// it composes precomputed differential building blocks through a two-level
// chain rule into per-pair forces and Hessians, optionally corrected for
// Coulomb friction, and adapts the penalty stiffness between timesteps.
package contact

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"rod-contact/internal/geom"
)

// FrictionInput is the 37-scalar input of the friction-jacobian block:
// 12 pair coordinates, 12 endpoint velocities, the 12-component conservative
// force gradient and the friction coefficient.
type FrictionInput [37]float64

// Provider supplies the precomputed differential building blocks of a contact
// energy model. All methods are pure and batch over pairs; shapes are fixed
// and checked once at load time. The chain-rule code never looks behind this
// interface.
type Provider interface {
	// DD is the constant 9x12 jacobian of the linear derived parameters
	// (e1, e2, e12) with respect to the raw pair coordinates.
	DD() *mat.Dense
	// FirstGrads returns, per pair, the gradients of the six nonlinear
	// derived parameters (five dot products and t2) with respect to the raw
	// 12 coordinates.
	FirstGrads(coords []geom.PairCoords) [][6][12]float64
	// FirstHessConst returns the five constant 12x12 Hessians of the dot
	// products.
	FirstHessConst() []*mat.Dense
	// FirstHessVar returns, per pair, the 12x12 Hessian of t2.
	FirstHessVar(coords []geom.PairCoords) []*mat.Dense
	// SecondGrads returns, per pair, the energy gradient with respect to the
	// 15 derived parameters.
	SecondGrads(params []geom.Params) [][15]float64
	// SecondHess returns, per pair, the 15x15 energy Hessian with respect to
	// the derived parameters.
	SecondHess(params []geom.Params) []*mat.Dense
	// FrictionJacobian returns, per pair, the 6x24 partial jacobian of the
	// per-node friction forces with respect to coordinates and forces.
	FrictionJacobian(inputs []FrictionInput) []*mat.Dense
}

// providerFactory builds a provider for a given stiffness constant and
// contact length, mirroring the artifact naming key of the offline generator.
type providerFactory func(ceK, contactLen float64) (Provider, error)

var providers = map[string]providerFactory{
	"lse": newLSEProvider,
}

// LoadProvider resolves an energy-model key and validates the provider's
// shapes before first use. Unknown keys and shape violations are load-time
// failures; nothing recovers from a malformed provider.
func LoadProvider(key string, ceK, contactLen float64) (Provider, error) {
	factory, ok := providers[key]
	if !ok {
		return nil, fmt.Errorf("contact: unknown energy model %q", key)
	}
	p, err := factory(ceK, contactLen)
	if err != nil {
		return nil, fmt.Errorf("contact: loading model %q: %w", key, err)
	}
	if err := validateProvider(p); err != nil {
		return nil, fmt.Errorf("contact: model %q violates the provider contract: %w", key, err)
	}
	return p, nil
}

// validateProvider probes the provider with a single well-separated pair and
// checks every dynamic shape of the contract.
func validateProvider(p Provider) error {
	probe := []geom.PairCoords{{
		0, 0, 0, 1, 0, 0,
		0, 0.5, 1, 1, 0.5, 1,
	}}
	pr, _ := probe[0].DerivedParams()
	params := []geom.Params{pr}

	if err := checkDims("dd", p.DD(), 9, 12); err != nil {
		return err
	}
	hc := p.FirstHessConst()
	if len(hc) != 5 {
		return fmt.Errorf("expected 5 constant first-layer hessians, got %d", len(hc))
	}
	for i, h := range hc {
		if err := checkDims(fmt.Sprintf("constant hessian %d", i), h, 12, 12); err != nil {
			return err
		}
	}
	if got := len(p.FirstGrads(probe)); got != 1 {
		return fmt.Errorf("first-layer gradients: expected 1 batch entry, got %d", got)
	}
	hv := p.FirstHessVar(probe)
	if len(hv) != 1 {
		return fmt.Errorf("variable first-layer hessian: expected 1 batch entry, got %d", len(hv))
	}
	if err := checkDims("variable first-layer hessian", hv[0], 12, 12); err != nil {
		return err
	}
	if got := len(p.SecondGrads(params)); got != 1 {
		return fmt.Errorf("second-layer gradients: expected 1 batch entry, got %d", got)
	}
	sh := p.SecondHess(params)
	if len(sh) != 1 {
		return fmt.Errorf("second-layer hessian: expected 1 batch entry, got %d", len(sh))
	}
	if err := checkDims("second-layer hessian", sh[0], 15, 15); err != nil {
		return err
	}
	fj := p.FrictionJacobian([]FrictionInput{{}})
	if len(fj) != 1 {
		return fmt.Errorf("friction jacobian: expected 1 batch entry, got %d", len(fj))
	}
	return checkDims("friction jacobian", fj[0], 6, 24)
}

func checkDims(what string, m mat.Matrix, rows, cols int) error {
	r, c := m.Dims()
	if r != rows || c != cols {
		return fmt.Errorf("%s: expected %dx%d, got %dx%d", what, rows, cols, r, c)
	}
	return nil
}
