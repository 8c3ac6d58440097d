// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package socp

import (
	"errors"
	"os"

	"github.com/curioloop/socp/cone"
	"github.com/curioloop/socp/equil"
	"github.com/curioloop/socp/kkt"
	"github.com/curioloop/socp/sparse"
)

// Problem specifies a second-order cone program in the standard primal
// form (spec.md §3):
//
//	minimize    c'x
//	subject to  A x = b
//	            G x + s = h,  s in K
//
// K is the Cartesian product described by Cone: the leading Cone.NumLP
// coordinates form a nonnegative orthant, followed by one second-order
// cone per entry of Cone.SOC.
type Problem struct {
	C []float64
	A *sparse.Matrix // p x n, may be nil for p == 0
	B []float64      // length p

	G *sparse.Matrix // m x n
	H []float64      // length m

	Cone cone.Layout
}

// New validates the problem and builds an Optimizer: it equilibrates its
// own copy of the problem data (spec.md §4.2) and runs the KKT system's
// one-time symbolic factorization (spec.md §4.3). The caller's A, G, and
// slices are never mutated.
func (p *Problem) New(settings Settings, logger *Logger) (*Optimizer, error) {
	n := len(p.C)
	m := p.Cone.Dim()

	if n == 0 {
		return nil, errors.New("socp: objective dimension must be greater than 0")
	}
	if p.Cone.NumLP < 0 {
		return nil, errors.New("socp: negative nonnegative-orthant dimension")
	}
	for _, q := range p.Cone.SOC {
		if q < 1 {
			return nil, errors.New("socp: second-order cone dimension must be at least 1")
		}
	}
	if p.G == nil {
		return nil, errors.New("socp: G is required")
	}
	if gr, gc := p.G.Dims(); gr != m || gc != n {
		return nil, errors.New("socp: G dimensions do not match c and the cone layout")
	}
	if len(p.H) != m {
		return nil, errors.New("socp: len(h) does not match the cone dimension")
	}

	p_ := len(p.B)
	a := p.A
	if a == nil {
		a = sparse.NewFromTriplets(0, n, nil, nil, nil)
	} else if ar, ac := a.Dims(); ar != p_ || ac != n {
		return nil, errors.New("socp: A dimensions do not match b and c")
	}

	if logger == nil {
		logger = &Logger{Level: LogNoop}
	}
	if logger.Msg == nil {
		logger.Msg = os.Stdout
	}
	if !settings.Verbose {
		logger = &Logger{Level: LogNoop}
	}

	c := append([]float64(nil), p.C...)
	b := append([]float64(nil), p.B...)
	h := append([]float64(nil), p.H...)
	aCopy := a.Clone()
	gCopy := p.G.Clone()

	scaling := equil.Equilibrate(aCopy, gCopy, b, h, c, p.Cone)

	sys, err := kkt.Build(aCopy, gCopy, p.Cone, settings.Delta)
	if err != nil {
		return nil, err
	}

	opt := &Optimizer{
		n: n, p: p_, m: m,
		cone:     p.Cone,
		settings: settings,
		logger:   logger,
		c:        c, b: b, h: h,
		a: aCopy, g: gCopy,
		scaling: scaling,
		sys:     sys,
	}
	return opt, nil
}

// Optimizer holds the equilibrated problem data and the one-time KKT
// symbolic factorization for a Problem, mirroring the teacher's
// Optimizer/Workspace split (lbfgsb/optimize.go). Fit rewrites the shared
// KKT system's values and the factorization scratch held here, so Fit
// calls on one Optimizer must not run concurrently, even with separate
// Workspaces.
type Optimizer struct {
	n, p, m int
	cone    cone.Layout

	settings Settings
	logger   *Logger

	c, b, h []float64
	a, g    *sparse.Matrix

	scaling *equil.Scaling
	sys     *kkt.System
}
