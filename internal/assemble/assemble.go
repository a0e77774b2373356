// Package assemble scatter-adds per-pair contact contributions into the
// global force and Hessian buffers shared with the external solver.
package assemble

import (
	"gonum.org/v1/gonum/mat"

	"rod-contact/internal/geom"
)

// Assembler owns the output side of the shared buffers. Edge id i covers the
// six contiguous scalars starting at offset 3i of the force vector (nodes i
// and i+1); Hessian contributions land as four 6x6 self/cross blocks. Pairs
// sharing an edge write overlapping blocks, so the scatter is sequential.
type Assembler struct {
	forces  []float64
	hessian *mat.Dense // view over the shared row-major slice
	nv      int
}

// New wraps the shared output buffers. hessian must have length nv*nv.
func New(forces, hessian []float64) *Assembler {
	nv := len(forces)
	return &Assembler{
		forces:  forces,
		hessian: mat.NewDense(nv, nv, hessian),
		nv:      nv,
	}
}

// ZeroForces clears the force buffer. Called at the start of every step so a
// contact-free step leaves exact zeros behind.
func (a *Assembler) ZeroForces() {
	for i := range a.forces {
		a.forces[i] = 0
	}
}

// ZeroHessian clears the Hessian buffer. Only called on steps that request
// second derivatives.
func (a *Assembler) ZeroHessian() {
	a.hessian.Zero()
}

// AddForces scatters the per-pair 12-dof forces into the global vector.
func (a *Assembler) AddForces(pairs []geom.EdgePair, forces [][12]float64) {
	for i, pr := range pairs {
		fi := 3 * pr.I
		fj := 3 * pr.J
		for c := 0; c < 6; c++ {
			a.forces[fi+c] += forces[i][c]
			a.forces[fj+c] += forces[i][6+c]
		}
	}
}

// AddHessians scatters the per-pair 12x12 Hessians as four 6x6 blocks.
func (a *Assembler) AddHessians(pairs []geom.EdgePair, hess []*mat.Dense) {
	for i, pr := range pairs {
		h := hess[i]
		bi := 3 * pr.I
		bj := 3 * pr.J
		a.addBlock(bi, bi, h, 0, 0)
		a.addBlock(bi, bj, h, 0, 6)
		a.addBlock(bj, bi, h, 6, 0)
		a.addBlock(bj, bj, h, 6, 6)
	}
}

func (a *Assembler) addBlock(row, col int, h *mat.Dense, hr, hc int) {
	for r := 0; r < 6; r++ {
		for c := 0; c < 6; c++ {
			a.hessian.Set(row+r, col+c, a.hessian.At(row+r, col+c)+h.At(hr+r, hc+c))
		}
	}
}

// Scale applies the contact stiffness gain in place to the force buffer and,
// when withHessian is set, to the Hessian buffer.
func (a *Assembler) Scale(gain float64, withHessian bool) {
	for i := range a.forces {
		a.forces[i] *= gain
	}
	if withHessian {
		a.hessian.Scale(gain, a.hessian)
	}
}
