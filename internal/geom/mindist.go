package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// PairCoords holds the stacked endpoint coordinates of an edge pair:
// [x1s x1e x2s x2e], 3 scalars each.
type PairCoords [12]float64

// Params is the derived parameter vector the energy model differentiates
// against: the three difference vectors e1, e2, e12, the five dot products
// e1·e1, e2·e2, e1·e2, e1·e12, e2·e12 and the closest-point parameter t2 on
// the second edge.
type Params [15]float64

const (
	ParamD1 = 9
	ParamD2 = 10
	ParamR  = 11
	ParamS1 = 12
	ParamS2 = 13
	ParamT2 = 14
)

// parallelEps bounds the determinant D1*D2-R^2 below which two edges are
// treated as parallel.
const parallelEps = 1e-12

func (c *PairCoords) vec(i int) mgl64.Vec3 {
	return mgl64.Vec3{c[3*i], c[3*i+1], c[3*i+2]}
}

// X1S etc. return the four endpoints as vectors.
func (c *PairCoords) X1S() mgl64.Vec3 { return c.vec(0) }
func (c *PairCoords) X1E() mgl64.Vec3 { return c.vec(1) }
func (c *PairCoords) X2S() mgl64.Vec3 { return c.vec(2) }
func (c *PairCoords) X2E() mgl64.Vec3 { return c.vec(3) }

// ClosestApproach computes the minimum distance between the two segments of a
// pair together with the clamped closest-point parameters t1 (first edge) and
// t2 (second edge). Standard Lumelsky clamping; symmetric in the two edges up
// to swapping t1 and t2.
func (c *PairCoords) ClosestApproach() (dist, t1, t2 float64) {
	e1 := c.X1E().Sub(c.X1S())
	e2 := c.X2E().Sub(c.X2S())
	e12 := c.X2S().Sub(c.X1S())

	d1 := e1.Dot(e1)
	d2 := e2.Dot(e2)
	r := e1.Dot(e2)
	s1 := e1.Dot(e12)
	s2 := e2.Dot(e12)

	denom := d1*d2 - r*r
	if denom > parallelEps {
		t1 = clamp01((s1*d2 - r*s2) / denom)
	} else {
		t1 = 0
	}
	if d2 > 0 {
		t2 = (r*t1 - s2) / d2
	}
	if t2 < 0 {
		t2 = 0
		if d1 > 0 {
			t1 = clamp01(s1 / d1)
		}
	} else if t2 > 1 {
		t2 = 1
		if d1 > 0 {
			t1 = clamp01((s1 + r) / d1)
		}
	}

	p1 := c.X1S().Add(e1.Mul(t1))
	p2 := c.X2S().Add(e2.Mul(t2))
	return p2.Sub(p1).Len(), t1, t2
}

// MinDistance returns only the closest-approach distance.
func (c *PairCoords) MinDistance() float64 {
	d, _, _ := c.ClosestApproach()
	return d
}

// DerivedParams evaluates the full derived parameter vector for the energy
// model, plus the distance it corresponds to.
func (c *PairCoords) DerivedParams() (Params, float64) {
	e1 := c.X1E().Sub(c.X1S())
	e2 := c.X2E().Sub(c.X2S())
	e12 := c.X2S().Sub(c.X1S())

	var p Params
	p[0], p[1], p[2] = e1.X(), e1.Y(), e1.Z()
	p[3], p[4], p[5] = e2.X(), e2.Y(), e2.Z()
	p[6], p[7], p[8] = e12.X(), e12.Y(), e12.Z()
	p[ParamD1] = e1.Dot(e1)
	p[ParamD2] = e2.Dot(e2)
	p[ParamR] = e1.Dot(e2)
	p[ParamS1] = e1.Dot(e12)
	p[ParamS2] = e2.Dot(e12)

	dist, _, t2 := c.ClosestApproach()
	p[ParamT2] = t2
	return p, dist
}

// Interior reports whether the closest approach lies strictly inside both
// segments away from the parallel degeneracy, i.e. whether t2 is locally a
// smooth function of the coordinates.
func (c *PairCoords) Interior() bool {
	e1 := c.X1E().Sub(c.X1S())
	e2 := c.X2E().Sub(c.X2S())
	d1 := e1.Dot(e1)
	d2 := e2.Dot(e2)
	r := e1.Dot(e2)
	if d1*d2-r*r <= parallelEps {
		return false
	}
	_, t1, t2 := c.ClosestApproach()
	const edgeEps = 1e-9
	return t1 > edgeEps && t1 < 1-edgeEps && t2 > edgeEps && t2 < 1-edgeEps
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Finite reports whether every coordinate is a usable float.
func (c *PairCoords) Finite() bool {
	for _, v := range c {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
