// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cone implements the Jordan-algebra operations and Nesterov-Todd
// scaling for the cone K = R₊ˡ × SOC(q₁) × ... × SOC(qₙ): the conic product
// and division, the per-block NT scaling state, the fast scale λ = W·z, the
// arrow-expanded KKT sub-block multiply, the conic line search, and the
// cone-interior shift. Grounded on original_source/src/ecos.cpp's
// updateScalings/scale/conicProduct/conicDivision/scale2add/updateKKT, with
// the corrected semantics spec.md §4.1/§4.3/§4.4/§4.6/§4.7 pins where the
// C++ source has known bugs (the LP line-search bound using num_eq instead
// of num_pc, the conicProduct head index, the under-determined conic_step
// expression, the lkbar_times_dzk term using ds instead of dz).
package cone

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Layout describes the fixed block structure of the cone K: l nonnegative
// orthant coordinates followed by SOC blocks of the given dimensions, in
// declaration order. This layout never changes during a solve (spec.md §3).
type Layout struct {
	NumLP int   // l: dimension of the nonnegative orthant
	SOC   []int // q_1 .. q_ncones: dimensions of each second-order cone
}

// Dim returns the total cone dimension m = l + Σqᵢ.
func (ly Layout) Dim() int {
	d := ly.NumLP
	for _, q := range ly.SOC {
		d += q
	}
	return d
}

// NumCones returns the number of second-order cone blocks.
func (ly Layout) NumCones() int { return len(ly.SOC) }

// SOCStart returns the offset into an m-vector of the i-th SOC block.
func (ly Layout) SOCStart(i int) int {
	start := ly.NumLP
	for j := 0; j < i; j++ {
		start += ly.SOC[j]
	}
	return start
}

// ExpandedDim returns N's cone-block width: the native cone dimension plus
// two extra ("v" and "u") columns per second-order cone, the KKT expansion
// of spec.md §3/§4.3 (N = n + p + m + 2*ncones) that keeps the (3,3) KKT
// block sparse instead of materializing a dense per-cone W².
func (ly Layout) ExpandedDim() int {
	d := ly.NumLP
	for _, q := range ly.SOC {
		d += q + 2
	}
	return d
}

// ExpandedSOCStart returns the offset into an ExpandedDim()-length vector
// of the i-th SOC block's native part (its v-slot and u-slot immediately
// follow, at +q and +q+1).
func (ly Layout) ExpandedSOCStart(i int) int {
	start := ly.NumLP
	for j := 0; j < i; j++ {
		start += ly.SOC[j] + 2
	}
	return start
}

// ScatterNative copies a native (length Dim()) vector into the matching
// positions of an expanded (length ExpandedDim()) vector, zeroing every
// block's v-slot and u-slot. Used to build the cone-block of a KKT
// right-hand side, which never has data for the expansion columns.
func (ly Layout) ScatterNative(native, expanded []float64) {
	l := ly.NumLP
	for i := 0; i < l; i++ {
		expanded[i] = native[i]
	}
	for k, q := range ly.SOC {
		src := ly.SOCStart(k)
		dst := ly.ExpandedSOCStart(k)
		for i := 0; i < q; i++ {
			expanded[dst+i] = native[src+i]
		}
		expanded[dst+q] = 0
		expanded[dst+q+1] = 0
	}
}

// ExpandedIndexOf maps a native cone-coordinate index (0..Dim()-1) to its
// position in an ExpandedDim()-length vector, used by the KKT assembler to
// place G's columns into the expanded (3,*) block at the right offsets.
func (ly Layout) ExpandedIndexOf(native int) int {
	if native < ly.NumLP {
		return native
	}
	rem := native - ly.NumLP
	off := ly.NumLP
	for _, q := range ly.SOC {
		if rem < q {
			return off + rem
		}
		rem -= q
		off += q + 2
	}
	panic("cone: native index out of range")
}

// GatherNative copies the native part of an expanded (length ExpandedDim())
// vector back into a native (length Dim()) vector, discarding each block's
// v-slot and u-slot.
func (ly Layout) GatherNative(expanded, native []float64) {
	l := ly.NumLP
	for i := 0; i < l; i++ {
		native[i] = expanded[i]
	}
	for k, q := range ly.SOC {
		src := ly.ExpandedSOCStart(k)
		dst := ly.SOCStart(k)
		for i := 0; i < q; i++ {
			native[dst+i] = expanded[src+i]
		}
	}
}

// LPScaling holds the Nesterov-Todd scaling state for the nonnegative
// orthant block: w = sqrt(s/z), v = s/z (spec.md §3).
type LPScaling struct {
	W, V []float64 // length l
}

// SOCScaling holds the Nesterov-Todd scaling state for a single second-order
// cone block (spec.md §3, §4.1): the arrow-form factors (a, d1, u0, u1, v1,
// eta, eta²) and the vector q of length dim-1.
type SOCScaling struct {
	Dim  int
	Eta  float64
	Eta2 float64
	A    float64
	W    float64 // = q'q
	D1   float64
	U0   float64
	U1   float64
	V1   float64
	Q    []float64 // length Dim-1
}

// Scaling is the complete NT scaling state for the cone K.
type Scaling struct {
	Layout Layout
	LP     LPScaling
	SOC    []SOCScaling
}

// NewScaling allocates a Scaling for the given layout with all scratch
// vectors sized once, per spec.md §5 ("scratch buffers allocated once at
// construction").
func NewScaling(ly Layout) *Scaling {
	sc := &Scaling{
		Layout: ly,
		LP:     LPScaling{W: make([]float64, ly.NumLP), V: make([]float64, ly.NumLP)},
		SOC:    make([]SOCScaling, len(ly.SOC)),
	}
	for i, q := range ly.SOC {
		sc.SOC[i] = SOCScaling{Dim: q, Q: make([]float64, q-1)}
	}
	return sc
}

// Update recomputes the NT scaling from the current (s, z) and writes
// lambda = W*z, per spec.md §4.1. It returns false as soon as a cone
// residual is non-positive or the NT derivation fails (spec.md §7's
// cone-residual-negative / nt-derivation-failure conditions); the caller
// must then abort the iteration.
func (sc *Scaling) Update(s, z, lambda []float64) bool {
	ly := sc.Layout
	l := ly.NumLP

	for i := 0; i < l; i++ {
		sc.LP.W[i] = math.Sqrt(s[i] / z[i])
		sc.LP.V[i] = s[i] / z[i]
	}

	for k := range sc.SOC {
		start := ly.SOCStart(k)
		q := ly.SOC[k]
		sk := &sc.SOC[k]

		s0, z0 := s[start], z[start]
		s1, z1 := s[start+1:start+q], z[start+1:start+q]

		sres := s0*s0 - floats.Dot(s1, s1)
		zres := z0*z0 - floats.Dot(z1, z1)
		if sres <= 0 || zres <= 0 {
			return false
		}

		snorm, znorm := math.Sqrt(sres), math.Sqrt(zres)
		sk.Eta2 = snorm / znorm
		sk.Eta = math.Sqrt(sk.Eta2)

		sbar0, zbar0 := s0/snorm, z0/znorm

		dot := sbar0 * zbar0
		for i := range s1 {
			dot += (s1[i] / snorm) * (z1[i] / znorm)
		}
		gamma := math.Sqrt(0.5 * (1 + dot))

		a := (sbar0 + zbar0) / (2 * gamma)
		for i := range sk.Q {
			sk.Q[i] = ((s1[i]/snorm - z1[i]/znorm)) / (2 * gamma)
		}
		w := floats.Dot(sk.Q, sk.Q)

		c := (1 + a) + w/(1+a)
		d := 1 + 2/(1+a) + w/((1+a)*(1+a))
		d1 := math.Max(0, 0.5*(a*a+w*(1-(c*c)/(1+w*d))))
		u0sq := a*a + w - d1
		if u0sq <= 0 {
			return false
		}
		u0 := math.Sqrt(u0sq)

		c2byu0 := (c * c) / u0sq
		diff := c2byu0 - d
		if diff <= 0 {
			return false
		}

		sk.A = a
		sk.W = w
		sk.D1 = d1
		sk.U0 = u0
		sk.U1 = math.Sqrt(c2byu0)
		sk.V1 = math.Sqrt(diff)
	}

	sc.Scale(z, lambda)
	return true
}

// Scale computes lambda = W*z, the fast NT scale of spec.md §4.1's "Fast
// scaling" paragraph.
func (sc *Scaling) Scale(z, lambda []float64) {
	ly := sc.Layout
	l := ly.NumLP
	for i := 0; i < l; i++ {
		lambda[i] = sc.LP.W[i] * z[i]
	}

	for k := range sc.SOC {
		start := ly.SOCStart(k)
		q := ly.SOC[k]
		sk := &sc.SOC[k]
		sk.Apply(z[start:start+q], lambda[start:start+q])
	}
}

// Apply computes block = W*vec for this single SOC block, where vec and
// block both have length Dim (the block's own head-plus-tail slice).
func (sk *SOCScaling) Apply(vec, block []float64) {
	v0 := vec[0]
	v1 := vec[1:]
	out1 := block[1:]

	zeta := floats.Dot(sk.Q, v1)
	factor := v0 + zeta/(1+sk.A)

	block[0] = sk.Eta * (sk.A*v0 + zeta)
	for i := range v1 {
		out1[i] = sk.Eta * (v1[i] + factor*sk.Q[i])
	}
}

// ArrowMultiplyExpanded computes y = B*x, where B is this cone's exact
// (3,3) KKT sub-block on the ExpandedDim()-length cone block (spec.md
// §4.3's arrow expansion, §4.4 step 3's "fast arrow multiply"), including
// the static regularization delta. x and y must both have length
// ly.ExpandedDim(). Grounded on ecos.cpp's updateKKT numeric-update
// formulas: the per-component (not constant-fill) v/u off-diagonal terms,
// and the sign-flipped regularization on the u-slot diagonal.
func (ly Layout) ArrowMultiplyExpanded(sc *Scaling, delta float64, x, y []float64) {
	l := ly.NumLP
	for i := 0; i < l; i++ {
		y[i] = (-sc.LP.V[i] - delta) * x[i]
	}

	off := l
	for k, q := range ly.SOC {
		sk := &sc.SOC[k]
		eta2 := sk.Eta2

		head := x[off]
		tail := x[off+1 : off+q]
		vSlot := x[off+q]
		uSlot := x[off+q+1]

		yTail := y[off+1 : off+q]
		vDot := 0.0
		for i, qi := range sk.Q {
			vDot += qi * tail[i]
		}

		y[off] = (-eta2*sk.D1-delta)*head + (-eta2*sk.U0)*uSlot
		for i, qi := range sk.Q {
			yTail[i] = (-eta2-delta)*tail[i] + (-eta2*sk.V1*qi)*vSlot + (-eta2*sk.U1*qi)*uSlot
		}
		y[off+q] = (-eta2-delta)*vSlot + (-eta2*sk.V1)*vDot
		y[off+q+1] = (eta2+delta)*uSlot + (-eta2*sk.U0)*head + (-eta2*sk.U1)*vDot

		off += q + 2
	}
}

// JordanProduct computes w = u ∘ v, the conic product of spec.md §4.1: for
// the LP block, elementwise; for each SOC, (u∘v)₀ = uᵀv and
// (u∘v)_{1:} = u₀v_{1:} + v₀u_{1:}.
func (ly Layout) JordanProduct(u, v, w []float64) {
	l := ly.NumLP
	for i := 0; i < l; i++ {
		w[i] = u[i] * v[i]
	}
	for k, q := range ly.SOC {
		start := ly.SOCStart(k)
		u0, v0 := u[start], v[start]
		u1, v1 := u[start+1:start+q], v[start+1:start+q]
		w[start] = u0*v0 + floats.Dot(u1, v1)
		w1 := w[start+1 : start+q]
		for i := range w1 {
			w1[i] = u0*v1[i] + v0*u1[i]
		}
	}
}

// JordanDivision computes v = u \ w, the conic division of spec.md §4.1.
// It returns false ("not-in-cone") when the SOC determinant rho = u0²-‖u1‖²
// is non-positive for any block.
func (ly Layout) JordanDivision(u, w, v []float64) bool {
	l := ly.NumLP
	for i := 0; i < l; i++ {
		v[i] = w[i] / u[i]
	}
	for k, q := range ly.SOC {
		start := ly.SOCStart(k)
		u0, w0 := u[start], w[start]
		u1 := u[start+1 : start+q]
		w1 := w[start+1 : start+q]

		rho := u0*u0 - floats.Dot(u1, u1)
		if rho <= 0 {
			return false
		}

		u1w1 := floats.Dot(u1, w1)
		v0 := (u0*w0 - u1w1) / rho
		factor := (u1w1/u0 - w0) / rho

		v[start] = v0
		v1 := v[start+1 : start+q]
		for i := range v1 {
			v1[i] = factor*u1[i] + w1[i]/u0
		}
	}
	return true
}
