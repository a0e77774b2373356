package contact

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/mat"

	"rod-contact/internal/geom"
)

// lseProvider is the built-in energy model: a log-sum-exp smoothed penalty
// E = (1/k) log(1 + exp(k (h - delta))) on the closest-approach distance
// delta, expressed through the layered derived parameters so that the
// chain-rule composition sees the same shapes as an offline-generated
// artifact set.
type lseProvider struct {
	k float64 // smoothing sharpness (ce_k)
	h float64 // contact length (2 x normalized radius)

	dd     *mat.Dense   // 9x12
	hconst []*mat.Dense // five 12x12 Hessians of the dot products
}

func newLSEProvider(ceK, contactLen float64) (Provider, error) {
	if ceK <= 0 {
		return nil, fmt.Errorf("lse: sharpness must be positive, got %g", ceK)
	}
	if contactLen <= 0 {
		return nil, fmt.Errorf("lse: contact length must be positive, got %g", contactLen)
	}
	p := &lseProvider{k: ceK, h: contactLen}

	// Selection matrices of the three difference vectors. Everything constant
	// in the first layer derives from these.
	e1Sel := diffSelector(0, 1)
	e2Sel := diffSelector(2, 3)
	e12Sel := diffSelector(0, 2)

	p.dd = mat.NewDense(9, 12, nil)
	p.dd.Slice(0, 3, 0, 12).(*mat.Dense).Copy(e1Sel)
	p.dd.Slice(3, 6, 0, 12).(*mat.Dense).Copy(e2Sel)
	p.dd.Slice(6, 9, 0, 12).(*mat.Dense).Copy(e12Sel)

	// Hessian of (A x)·(B x) is AᵀB + BᵀA.
	p.hconst = []*mat.Dense{
		bilinearHess(e1Sel, e1Sel),
		bilinearHess(e2Sel, e2Sel),
		bilinearHess(e1Sel, e2Sel),
		bilinearHess(e1Sel, e12Sel),
		bilinearHess(e2Sel, e12Sel),
	}
	return p, nil
}

// diffSelector builds the 3x12 matrix mapping stacked pair coordinates to the
// difference endpoint[to] - endpoint[from].
func diffSelector(from, to int) *mat.Dense {
	m := mat.NewDense(3, 12, nil)
	for a := 0; a < 3; a++ {
		m.Set(a, 3*from+a, -1)
		m.Set(a, 3*to+a, 1)
	}
	return m
}

func bilinearHess(a, b *mat.Dense) *mat.Dense {
	var ab, ba mat.Dense
	ab.Mul(a.T(), b)
	ba.Mul(b.T(), a)
	h := mat.NewDense(12, 12, nil)
	h.Add(&ab, &ba)
	return h
}

func (p *lseProvider) DD() *mat.Dense               { return p.dd }
func (p *lseProvider) FirstHessConst() []*mat.Dense { return p.hconst }

// pairDots gathers the difference vectors and dot products of one pair.
type pairDots struct {
	e1, e2, e12       mgl64.Vec3
	d1, d2, r, s1, s2 float64
}

func newPairDots(c *geom.PairCoords) pairDots {
	e1 := c.X1E().Sub(c.X1S())
	e2 := c.X2E().Sub(c.X2S())
	e12 := c.X2S().Sub(c.X1S())
	return pairDots{
		e1: e1, e2: e2, e12: e12,
		d1: e1.Dot(e1), d2: e2.Dot(e2), r: e1.Dot(e2),
		s1: e1.Dot(e12), s2: e2.Dot(e12),
	}
}

// dotGrads returns the 12-gradients of [D1 D2 R S1 S2].
func (d *pairDots) dotGrads() [5][12]float64 {
	var g [5][12]float64
	for a := 0; a < 3; a++ {
		// D1 = e1·e1
		g[0][a] = -2 * d.e1[a]
		g[0][3+a] = 2 * d.e1[a]
		// D2 = e2·e2
		g[1][6+a] = -2 * d.e2[a]
		g[1][9+a] = 2 * d.e2[a]
		// R = e1·e2
		g[2][a] = -d.e2[a]
		g[2][3+a] = d.e2[a]
		g[2][6+a] = -d.e1[a]
		g[2][9+a] = d.e1[a]
		// S1 = e1·e12
		g[3][a] = -(d.e12[a] + d.e1[a])
		g[3][3+a] = d.e12[a]
		g[3][6+a] = d.e1[a]
		// S2 = e2·e12
		g[4][a] = -d.e2[a]
		g[4][6+a] = d.e2[a] - d.e12[a]
		g[4][9+a] = d.e12[a]
	}
	return g
}

// t2Sensitivity returns dt2/d[dots] for an interior contact, where
// t2 = N/M with N = R S1 - S2 D1 and M = D1 D2 - R².
func (d *pairDots) t2Sensitivity() (u [5]float64, t2, m float64) {
	n := d.r*d.s1 - d.s2*d.d1
	m = d.d1*d.d2 - d.r*d.r
	t2 = n / m
	nk := [5]float64{-d.s2, 0, d.s1, d.r, -d.d1}
	mk := [5]float64{d.d2, d.d1, -2 * d.r, 0, 0}
	for k := 0; k < 5; k++ {
		u[k] = (nk[k] - t2*mk[k]) / m
	}
	return u, t2, m
}

func (p *lseProvider) FirstGrads(coords []geom.PairCoords) [][6][12]float64 {
	out := make([][6][12]float64, len(coords))
	for i := range coords {
		d := newPairDots(&coords[i])
		dg := d.dotGrads()
		copy(out[i][:5], dg[:])
		// t2 is only smooth for interior contacts; on a clamp or in the
		// parallel degeneracy the parameter sits on an active bound and its
		// local sensitivity vanishes.
		if coords[i].Interior() {
			u, _, _ := d.t2Sensitivity()
			for k := 0; k < 5; k++ {
				for c := 0; c < 12; c++ {
					out[i][5][c] += u[k] * dg[k][c]
				}
			}
		}
	}
	return out
}

func (p *lseProvider) FirstHessVar(coords []geom.PairCoords) []*mat.Dense {
	out := make([]*mat.Dense, len(coords))
	for i := range coords {
		h := mat.NewDense(12, 12, nil)
		out[i] = h
		if !coords[i].Interior() {
			continue
		}
		d := newPairDots(&coords[i])
		dg := d.dotGrads()
		u, t2, m := d.t2Sensitivity()

		var nkl, mkl [5][5]float64
		nkl[2][3], nkl[3][2] = 1, 1   // d²N/dR dS1
		nkl[0][4], nkl[4][0] = -1, -1 // d²N/dD1 dS2
		mkl[0][1], mkl[1][0] = 1, 1   // d²M/dD1 dD2
		mkl[2][2] = -2                // d²M/dR²
		mk := [5]float64{d.d2, d.d1, -2 * d.r, 0, 0}

		for k := 0; k < 5; k++ {
			h.Add(h, scaled(p.hconst[k], u[k]))
		}
		for k := 0; k < 5; k++ {
			for l := 0; l < 5; l++ {
				w := (nkl[k][l] - t2*mkl[k][l] - u[l]*mk[k] - u[k]*mk[l]) / m
				if w == 0 {
					continue
				}
				gk := mat.NewVecDense(12, dg[k][:])
				gl := mat.NewVecDense(12, dg[l][:])
				h.RankOne(h, w, gk, gl)
			}
		}
	}
	return out
}

func scaled(m *mat.Dense, f float64) *mat.Dense {
	var s mat.Dense
	s.Scale(f, m)
	return &s
}

// secondLayer holds everything the derived-parameter derivatives share for
// one pair.
type secondLayer struct {
	e1, e2 mgl64.Vec3
	t1, t2 float64
	d1, r  float64
	// closest-approach difference vector, its norm and unit direction
	c    mgl64.Vec3
	dist float64
	chat mgl64.Vec3

	t1Clamped bool
	valid     bool
}

const tinyLen = 1e-12

func newSecondLayer(pr *geom.Params) secondLayer {
	s := secondLayer{
		e1: mgl64.Vec3{pr[0], pr[1], pr[2]},
		e2: mgl64.Vec3{pr[3], pr[4], pr[5]},
		d1: pr[geom.ParamD1],
		r:  pr[geom.ParamR],
		t2: pr[geom.ParamT2],
	}
	e12 := mgl64.Vec3{pr[6], pr[7], pr[8]}

	if s.d1 > tinyLen {
		raw := (pr[geom.ParamS1] + s.r*s.t2) / s.d1
		s.t1 = raw
		if raw <= 0 || raw >= 1 {
			s.t1Clamped = true
			if raw < 0 {
				s.t1 = 0
			} else if raw > 1 {
				s.t1 = 1
			}
		}
	} else {
		s.t1Clamped = true
	}

	s.c = e12.Add(s.e2.Mul(s.t2)).Sub(s.e1.Mul(s.t1))
	s.dist = s.c.Len()
	if s.dist > tinyLen {
		s.chat = s.c.Mul(1 / s.dist)
		s.valid = true
	}
	return s
}

// jacobian returns the 3x15 jacobian of the difference vector c with respect
// to the derived parameters, treating all 15 as independent.
func (s *secondLayer) jacobian() *mat.Dense {
	j := mat.NewDense(3, 15, nil)
	for a := 0; a < 3; a++ {
		j.Set(a, a, -s.t1)
		j.Set(a, 3+a, s.t2)
		j.Set(a, 6+a, 1)
		if s.t1Clamped {
			j.Set(a, geom.ParamT2, s.e2[a])
			continue
		}
		j.Set(a, geom.ParamD1, s.t1/s.d1*s.e1[a])
		j.Set(a, geom.ParamR, -s.t2/s.d1*s.e1[a])
		j.Set(a, geom.ParamS1, -1/s.d1*s.e1[a])
		j.Set(a, geom.ParamT2, s.e2[a]-s.r/s.d1*s.e1[a])
	}
	return j
}

// sigma is the numerically stable logistic function.
func sigma(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func (p *lseProvider) SecondGrads(params []geom.Params) [][15]float64 {
	out := make([][15]float64, len(params))
	for i := range params {
		s := newSecondLayer(&params[i])
		if !s.valid {
			continue
		}
		dE := -sigma(p.k * (p.h - s.dist)) // dE/d(dist)
		j := s.jacobian()
		for col := 0; col < 15; col++ {
			var dDist float64
			for a := 0; a < 3; a++ {
				dDist += s.chat[a] * j.At(a, col)
			}
			out[i][col] = dE * dDist
		}
	}
	return out
}

func (p *lseProvider) SecondHess(params []geom.Params) []*mat.Dense {
	out := make([]*mat.Dense, len(params))
	for i := range params {
		h := mat.NewDense(15, 15, nil)
		out[i] = h
		s := newSecondLayer(&params[i])
		if !s.valid {
			continue
		}
		sg := sigma(p.k * (p.h - s.dist))
		dE := -sg
		d2E := p.k * sg * (1 - sg)

		j := s.jacobian()
		gradDist := mat.NewVecDense(15, nil)
		gradDist.MulVec(j.T(), mat.NewVecDense(3, s.chat[:]))

		// d²E/dp² = E'' ∇δ∇δᵀ + E' [ (JᵀJ - ∇δ∇δᵀ)/δ + Σ_a ĉ_a d²c_a/dp² ]
		var jtj mat.Dense
		jtj.Mul(j.T(), j)
		h.Scale(dE/s.dist, &jtj)
		h.RankOne(h, d2E-dE/s.dist, gradDist, gradDist)
		p.addCurvature(h, &s, dE)
	}
	return out
}

// addCurvature accumulates E' ĉ·(d²c/dp²). The only nonzero second
// derivatives of c come through t1(D1, R, S1, t2) and the bilinear t2·e2 term.
func (p *lseProvider) addCurvature(h *mat.Dense, s *secondLayer, dE float64) {
	addSym := func(i, j int, v float64) {
		h.Set(i, j, h.At(i, j)+v)
		if i != j {
			h.Set(j, i, h.At(j, i)+v)
		}
	}
	for a := 0; a < 3; a++ {
		w := dE * s.chat[a]
		addSym(3+a, geom.ParamT2, w) // d²c_a/de2_a dt2 = 1
		if s.t1Clamped {
			continue
		}
		// d²c_a/de1_a dq = -dt1/dq
		addSym(a, geom.ParamD1, w*s.t1/s.d1)
		addSym(a, geom.ParamR, -w*s.t2/s.d1)
		addSym(a, geom.ParamS1, -w/s.d1)
		addSym(a, geom.ParamT2, -w*s.r/s.d1)
		// d²c_a/dq dq' = -e1_a d²t1/dq dq'
		e := s.e1[a]
		addSym(geom.ParamD1, geom.ParamD1, -w*e*2*s.t1/(s.d1*s.d1))
		addSym(geom.ParamD1, geom.ParamR, w*e*s.t2/(s.d1*s.d1))
		addSym(geom.ParamD1, geom.ParamS1, w*e/(s.d1*s.d1))
		addSym(geom.ParamD1, geom.ParamT2, w*e*s.r/(s.d1*s.d1))
		addSym(geom.ParamR, geom.ParamT2, -w*e/s.d1)
	}
}

func (p *lseProvider) FrictionJacobian(inputs []FrictionInput) []*mat.Dense {
	out := make([]*mat.Dense, len(inputs))
	for i := range inputs {
		out[i] = frictionPartial(&inputs[i])
	}
	return out
}

// frictionPartial differentiates the per-node friction force on the first
// edge with respect to coordinates (columns 0..11) and conservative forces
// (columns 12..23). The second edge's rows are the exact negation. The
// sliding-sign factors are piecewise constant, so only the tangent directions
// and the normal-force magnitude carry derivatives.
func frictionPartial(in *FrictionInput) *mat.Dense {
	g := mat.NewDense(6, 24, nil)

	x1s := mgl64.Vec3{in[0], in[1], in[2]}
	x1e := mgl64.Vec3{in[3], in[4], in[5]}
	x2s := mgl64.Vec3{in[6], in[7], in[8]}
	x2e := mgl64.Vec3{in[9], in[10], in[11]}
	e1 := x1e.Sub(x1s)
	e2 := x2e.Sub(x2s)
	len1, len2 := e1.Len(), e2.Len()
	if len1 < tinyLen || len2 < tinyLen {
		return g
	}
	t1 := e2.Mul(1 / len2) // tangent along the second edge
	t2 := e1.Mul(1 / len1) // tangent along the first edge

	v1 := mgl64.Vec3{in[12] + in[15], in[13] + in[16], in[14] + in[17]}.Mul(0.5)
	v2 := mgl64.Vec3{in[18] + in[21], in[19] + in[22], in[20] + in[23]}.Mul(0.5)
	vr := v1.Sub(v2)
	dir1 := sign(vr.Dot(t1))
	dir2 := sign(vr.Mul(-1).Dot(t2))

	fsum := mgl64.Vec3{in[24] + in[27], in[25] + in[28], in[26] + in[29]}
	fn := fsum.Len()
	mu := in[36]

	// d(per-node force)/d(forces): direction (dir1 T1 - dir2 T2) times the
	// gradient of |f1s + f1e|.
	if fn > tinyLen {
		w := t1.Mul(dir1).Sub(t2.Mul(dir2)).Mul(0.25 * mu)
		fhat := fsum.Mul(1 / fn)
		for a := 0; a < 3; a++ {
			for b := 0; b < 3; b++ {
				v := w[a] * fhat[b]
				g.Set(a, 12+b, v)
				g.Set(a, 15+b, v)
				g.Set(3+a, 12+b, -v)
				g.Set(3+a, 15+b, -v)
			}
		}
	}

	// d(per-node force)/d(coordinates): through the normalized tangents.
	// dT/de = (I - TTᵀ)/|e|.
	scale := 0.25 * mu * fn
	for a := 0; a < 3; a++ {
		for b := 0; b < 3; b++ {
			var id float64
			if a == b {
				id = 1
			}
			p1 := (id - t1[a]*t1[b]) / len2 // dT1_a/de2_b
			p2 := (id - t2[a]*t2[b]) / len1 // dT2_a/de1_b
			dX1s := scale * dir2 * p2  // -dir2 * dT2/dx1s = -dir2 * (-P2/len1)
			dX2s := -scale * dir1 * p1 // dir1 * dT1/dx2s
			g.Set(a, b, dX1s)
			g.Set(a, 3+b, -dX1s)
			g.Set(a, 6+b, dX2s)
			g.Set(a, 9+b, -dX2s)
			g.Set(3+a, b, -dX1s)
			g.Set(3+a, 3+b, dX1s)
			g.Set(3+a, 6+b, -dX2s)
			g.Set(3+a, 9+b, dX2s)
		}
	}
	return g
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
