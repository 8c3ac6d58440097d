// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sparse implements the compressed-sparse-column matrix and
// symmetric-indefinite LDLᵀ factorizer that the solver consumes as an
// external collaborator: construction from (row, col, value) triplets with
// deduplication, column-major iteration, transpose, matrix-vector product,
// and symbolic/numeric LDLᵀ factorization with triangular solve.
package sparse

import "sort"

// Matrix is a sparse matrix in compressed-sparse-column (CSC) format.
// Within a column, row indices are sorted ascending and unique.
type Matrix struct {
	Rows, Cols int
	ColPtr     []int     // length Cols+1
	RowIdx     []int     // length ColPtr[Cols]
	Data       []float64 // length ColPtr[Cols]
}

// NewFromTriplets builds a CSC matrix from (row, col, value) triplets.
// Duplicate (row, col) pairs are summed, matching the accumulation
// semantics callers expect when assembling a matrix from several blocks.
func NewFromTriplets(rows, cols int, rowIdx, colIdx []int, data []float64) *Matrix {
	if len(rowIdx) != len(colIdx) || len(rowIdx) != len(data) {
		panic("sparse: triplet slices must have equal length")
	}

	type entry struct {
		row int
		val float64
	}
	byCol := make([][]entry, cols)
	for k, c := range colIdx {
		byCol[c] = append(byCol[c], entry{rowIdx[k], data[k]})
	}

	m := &Matrix{Rows: rows, Cols: cols, ColPtr: make([]int, cols+1)}
	for c := 0; c < cols; c++ {
		entries := byCol[c]
		sort.Slice(entries, func(i, j int) bool { return entries[i].row < entries[j].row })

		deduped := entries[:0]
		for _, e := range entries {
			if n := len(deduped); n > 0 && deduped[n-1].row == e.row {
				deduped[n-1].val += e.val
			} else {
				deduped = append(deduped, e)
			}
		}

		for _, e := range deduped {
			m.RowIdx = append(m.RowIdx, e.row)
			m.Data = append(m.Data, e.val)
		}
		m.ColPtr[c+1] = len(m.RowIdx)
	}
	return m
}

// Dims returns the matrix dimensions.
func (m *Matrix) Dims() (rows, cols int) { return m.Rows, m.Cols }

// NNZ returns the number of stored (structural) nonzeros.
func (m *Matrix) NNZ() int { return len(m.Data) }

// Col calls fn for every stored entry of column j, in row-ascending order.
func (m *Matrix) Col(j int, fn func(row int, val float64)) {
	for p := m.ColPtr[j]; p < m.ColPtr[j+1]; p++ {
		fn(m.RowIdx[p], m.Data[p])
	}
}

// Clone returns an independent copy of m.
func (m *Matrix) Clone() *Matrix {
	return &Matrix{
		Rows:   m.Rows,
		Cols:   m.Cols,
		ColPtr: append([]int(nil), m.ColPtr...),
		RowIdx: append([]int(nil), m.RowIdx...),
		Data:   append([]float64(nil), m.Data...),
	}
}

// Transpose returns the transpose of m as a new CSC matrix.
func (m *Matrix) Transpose() *Matrix {
	rows, cols := m.Rows, m.Cols
	rowIdx := make([]int, 0, len(m.RowIdx))
	colIdx := make([]int, 0, len(m.RowIdx))
	data := make([]float64, 0, len(m.RowIdx))
	for c := 0; c < cols; c++ {
		m.Col(c, func(row int, val float64) {
			rowIdx = append(rowIdx, c)
			colIdx = append(colIdx, row)
			data = append(data, val)
		})
	}
	return NewFromTriplets(cols, rows, rowIdx, colIdx, data)
}

// MulVec computes y = A*x. x must have length Cols, y must have length Rows.
func (m *Matrix) MulVec(x, y []float64) {
	if len(x) != m.Cols || len(y) != m.Rows {
		panic("sparse: dimension mismatch in MulVec")
	}
	for i := range y {
		y[i] = 0
	}
	m.AddMulVec(x, y)
}

// AddMulVec computes y += A*x.
func (m *Matrix) AddMulVec(x, y []float64) {
	if len(x) != m.Cols || len(y) != m.Rows {
		panic("sparse: dimension mismatch in AddMulVec")
	}
	for c := 0; c < m.Cols; c++ {
		xc := x[c]
		if xc == 0 {
			continue
		}
		for p := m.ColPtr[c]; p < m.ColPtr[c+1]; p++ {
			y[m.RowIdx[p]] += m.Data[p] * xc
		}
	}
}

// MulTransVec computes y = Aᵀ*x without materializing the transpose.
func (m *Matrix) MulTransVec(x, y []float64) {
	if len(x) != m.Rows || len(y) != m.Cols {
		panic("sparse: dimension mismatch in MulTransVec")
	}
	for c := 0; c < m.Cols; c++ {
		sum := 0.0
		for p := m.ColPtr[c]; p < m.ColPtr[c+1]; p++ {
			sum += m.Data[p] * x[m.RowIdx[p]]
		}
		y[c] = sum
	}
}

// AddMulTransVec computes y += Aᵀ*x.
func (m *Matrix) AddMulTransVec(x, y []float64) {
	if len(x) != m.Rows || len(y) != m.Cols {
		panic("sparse: dimension mismatch in AddMulTransVec")
	}
	for c := 0; c < m.Cols; c++ {
		sum := 0.0
		for p := m.ColPtr[c]; p < m.ColPtr[c+1]; p++ {
			sum += m.Data[p] * x[m.RowIdx[p]]
		}
		y[c] += sum
	}
}

// ToDense returns the dense row-major representation, for tests only.
func (m *Matrix) ToDense() [][]float64 {
	out := make([][]float64, m.Rows)
	for i := range out {
		out[i] = make([]float64, m.Cols)
	}
	for c := 0; c < m.Cols; c++ {
		m.Col(c, func(row int, val float64) {
			out[row][c] = val
		})
	}
	return out
}
