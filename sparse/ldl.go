// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sparse

import "errors"

// ErrZeroPivot is returned by Factorize when a diagonal pivot underflows to
// zero; the caller surfaces this as a factorization failure (spec.md §7).
var ErrZeroPivot = errors.New("sparse: zero pivot in LDL factorization")

// Symbolic holds the fixed nonzero pattern of the unit-lower-triangular
// factor L, computed once from the upper-triangular pattern of K (spec.md
// §4.3: "Symbolic factorization runs once at the start of solve"). Only the
// pattern is stored; Factorize fills in the numeric values against it.
//
// The elimination order is the natural (identity) column order: the solver
// keeps K quasidefinite via static regularization rather than relying on a
// fill-reducing permutation, matching spec.md §4.3's "δ is a static
// regularization" and the no-pivoting assumption of a direct quasidefinite
// solve.
type Symbolic struct {
	n      int
	parent []int // elimination tree parent, -1 at a root
	colPtr []int // length n+1, into row/val arrays of L

	// rowIdx holds the row pattern of each column of L. Its size is fixed by
	// Analyze, but the entries are (re-)populated by every Factorize call:
	// since the up-looking algorithm derives a column's fill purely from the
	// structural reachability of A's pattern (never from numeric values),
	// repeated Factorize calls against matrices with the same pattern always
	// reproduce the same rowIdx. This avoids a redundant values-free pass.
	rowIdx  []int
	flagBuf []int // scratch reused by Factorize
	stack   []int
	yPat    []int
}

// Analyze computes the elimination tree and the column pattern of L from
// the upper-triangular part of the symmetric matrix A (only entries with
// row <= col are read). A's sparsity pattern must not change between calls
// that reuse this Symbolic.
func Analyze(a *Matrix) (*Symbolic, error) {
	n := a.Cols
	if a.Rows != n {
		return nil, errors.New("sparse: LDL requires a square matrix")
	}

	parent := make([]int, n)
	flag := make([]int, n)
	lnz := make([]int, n)
	for k := range parent {
		parent[k] = -1
		flag[k] = k
	}

	for k := 0; k < n; k++ {
		a.Col(k, func(i int, _ float64) {
			for i < k {
				if flag[i] == k {
					return
				}
				if parent[i] == -1 {
					parent[i] = k
				}
				lnz[i]++
				flag[i] = k
				i = parent[i]
			}
		})
	}

	colPtr := make([]int, n+1)
	for k := 0; k < n; k++ {
		colPtr[k+1] = colPtr[k] + lnz[k]
	}

	s := &Symbolic{
		n:       n,
		parent:  parent,
		colPtr:  colPtr,
		rowIdx:  make([]int, colPtr[n]),
		flagBuf: make([]int, n),
		stack:   make([]int, n),
		yPat:    make([]int, n),
	}
	return s, nil
}

// Numeric holds the factor values L (unit lower triangular, stored using
// Symbolic's pattern) and the diagonal D such that K = L D Lᵀ.
type Numeric struct {
	sym  *Symbolic
	lVal []float64 // parallel to sym.rowIdx
	d    []float64
	dInv []float64
	fill []int // scratch: entries filled so far per column, this factorization
}

// Factorize performs the numeric LDLᵀ factorization of the upper-triangular
// matrix A against the fixed pattern in s, per spec.md §4.3-4.4. A must have
// the same sparsity pattern (or a subset of it) that was analyzed.
func (s *Symbolic) Factorize(a *Matrix) (*Numeric, error) {
	n := s.n
	num := &Numeric{
		sym:  s,
		lVal: make([]float64, len(s.rowIdx)),
		d:    make([]float64, n),
		dInv: make([]float64, n),
		fill: make([]int, n),
	}

	y := make([]float64, n)
	flag := s.flagBuf
	for i := range flag {
		flag[i] = -1
	}
	pattern := s.yPat
	stack := s.stack

	for k := 0; k < n; k++ {
		y[k] = 0
		top := n
		flag[k] = k
		num.fill[k] = 0

		a.Col(k, func(i int, val float64) {
			if i > k {
				return
			}
			if i == k {
				y[k] += val
				return
			}
			y[i] += val
			length := 0
			j := i
			for flag[j] != k {
				pattern[length] = j
				length++
				flag[j] = k
				j = s.parent[j]
			}
			for length > 0 {
				length--
				top--
				stack[top] = pattern[length]
			}
		})

		d := y[k]
		y[k] = 0

		for ; top < n; top++ {
			i := stack[top]
			yi := y[i]
			y[i] = 0

			p0 := s.colPtr[i]
			p1 := p0 + num.fill[i]
			lki := yi * num.dInv[i]
			for p := p0; p < p1; p++ {
				y[s.rowIdx[p]] -= num.lVal[p] * yi
			}
			d -= lki * yi

			p := p0 + num.fill[i]
			s.rowIdx[p] = k
			num.lVal[p] = lki
			num.fill[i]++
		}

		if d == 0 {
			return nil, ErrZeroPivot
		}
		num.d[k] = d
		num.dInv[k] = 1.0 / d
	}

	return num, nil
}

// Solve solves K*x = rhs in place, overwriting rhs with the solution x.
// It performs the unit-lower-triangular solve, the diagonal scale, and the
// unit-upper-triangular solve implied by K = L D Lᵀ.
func (num *Numeric) Solve(rhs []float64) {
	s := num.sym
	n := s.n

	// forward solve: L*y = rhs
	for k := 0; k < n; k++ {
		yk := rhs[k]
		p0, p1 := s.colPtr[k], s.colPtr[k]+num.fill[k]
		for p := p0; p < p1; p++ {
			rhs[s.rowIdx[p]] -= num.lVal[p] * yk
		}
		rhs[k] = yk
	}

	// diagonal scale: D*z = y
	for k := 0; k < n; k++ {
		rhs[k] *= num.dInv[k]
	}

	// backward solve: Lᵀ*x = z
	for k := n - 1; k >= 0; k-- {
		p0, p1 := s.colPtr[k], s.colPtr[k]+num.fill[k]
		sum := 0.0
		for p := p0; p < p1; p++ {
			sum += num.lVal[p] * rhs[s.rowIdx[p]]
		}
		rhs[k] -= sum
	}
}

// SolveCopy solves K*x = rhs and returns a new slice holding x, leaving rhs
// untouched.
func (num *Numeric) SolveCopy(rhs []float64) []float64 {
	x := make([]float64, len(rhs))
	copy(x, rhs)
	num.Solve(x)
	return x
}
