package slu

import (
	"math"
	"math/rand"
)

// finiteBound is the clip applied to non-finite feature values before
// fitting.
const finiteBound = 1e12

// sparseMatrix is a CSR matrix of training rows over the global feature
// index space.
type sparseMatrix struct {
	rows, cols int
	indptr     []int
	indices    []int
	data       []float64
}

// newSparseMatrix returns an empty matrix with the given column count.
func newSparseMatrix(cols int) *sparseMatrix {
	return &sparseMatrix{cols: cols, indptr: []int{0}}
}

// AppendRow adds one row given parallel (ascending index, value) slices.
func (m *sparseMatrix) AppendRow(idxs []int, vals []float64) {
	m.indices = append(m.indices, idxs...)
	m.data = append(m.data, vals...)
	m.rows++
	m.indptr = append(m.indptr, len(m.indices))
}

// Row returns the stored slices of row i.
func (m *sparseMatrix) Row(i int) ([]int, []float64) {
	lo, hi := m.indptr[i], m.indptr[i+1]
	return m.indices[lo:hi], m.data[lo:hi]
}

// RowDot computes the dot product of row i with a dense vector.
func (m *sparseMatrix) RowDot(i int, w []float64) float64 {
	idxs, vals := m.Row(i)
	s := 0.0
	for k, j := range idxs {
		s += vals[k] * w[j]
	}
	return s
}

// ColumnOccurrences counts, per column, the entries that are finite and
// non-zero.
func (m *sparseMatrix) ColumnOccurrences() []int {
	occs := make([]int, m.cols)
	for k, j := range m.indices {
		v := m.data[k]
		if v != 0 && !math.IsNaN(v) && !math.IsInf(v, 0) {
			occs[j]++
		}
	}
	return occs
}

// ZeroColumnsAndClip zeroes every entry of the dropped columns and clips the
// remaining entries to a finite range: infinities crop to the bound, NaNs
// drop to zero.
func (m *sparseMatrix) ZeroColumnsAndClip(drop []bool) {
	for k, j := range m.indices {
		if drop[j] {
			m.data[k] = 0
			continue
		}
		m.data[k] = cropToFinite(m.data[k])
	}
}

func cropToFinite(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v > finiteBound:
		return finiteBound
	case v < -finiteBound:
		return -finiteBound
	default:
		return v
	}
}

// EliminateZeros drops explicit zero entries from the representation.
func (m *sparseMatrix) EliminateZeros() {
	newIndptr := make([]int, 1, len(m.indptr))
	newIndices := m.indices[:0]
	newData := m.data[:0]
	pos := 0
	for i := 0; i < m.rows; i++ {
		lo, hi := m.indptr[i], m.indptr[i+1]
		for k := lo; k < hi; k++ {
			if m.data[k] == 0 {
				continue
			}
			newIndices = append(newIndices, m.indices[k])
			newData = append(newData, m.data[k])
			pos++
		}
		newIndptr = append(newIndptr, pos)
	}
	m.indices = newIndices[:pos]
	m.data = newData[:pos]
	m.indptr = newIndptr
}

// DenseRows materialises the matrix row by row.
func (m *sparseMatrix) DenseRows() [][]float64 {
	out := make([][]float64, m.rows)
	for i := 0; i < m.rows; i++ {
		row := make([]float64, m.cols)
		idxs, vals := m.Row(i)
		for k, j := range idxs {
			row[j] = vals[k]
		}
		out[i] = row
	}
	return out
}

// balanceData oversamples the minority class with replacement until both
// classes reach the prior maximum count. Augmented rows are appended after
// the originals.
func balanceData(m *sparseMatrix, y []int, rng *rand.Rand) (*sparseMatrix, []int) {
	byClass := make(map[int][]int)
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	maxCount := 0
	for _, idxs := range byClass {
		if len(idxs) > maxCount {
			maxCount = len(idxs)
		}
	}

	out := newSparseMatrix(m.cols)
	for i := 0; i < m.rows; i++ {
		idxs, vals := m.Row(i)
		out.AppendRow(idxs, vals)
	}
	newY := append([]int(nil), y...)

	// Deterministic class order keeps balancing reproducible under a fixed
	// seed.
	for _, label := range []int{0, 1} {
		idxs, ok := byClass[label]
		if !ok {
			continue
		}
		for n := maxCount - len(idxs); n > 0; n-- {
			src := idxs[rng.Intn(len(idxs))]
			ri, rv := m.Row(src)
			out.AppendRow(ri, rv)
			newY = append(newY, label)
		}
	}
	return out, newY
}
