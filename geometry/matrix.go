package geometry

import (
	"github.com/swdee/go-detkit"
	"gonum.org/v1/gonum/mat"
)

// OverlapMatrix is a dense mapping of (candidate, ground truth) index pairs to
// an overlap ratio.  Rows are candidates and columns are ground truths.  It is
// never mutated after construction
type OverlapMatrix struct {
	// dense is nil when either dimension is zero as gonum does not allow
	// empty matrices
	dense *mat.Dense
	rows  int
	cols  int
}

// OverlapFunc returns the overlap between candidate i and ground truth j
type OverlapFunc func(i, j int) float32

// NewOverlapMatrix builds a rows x cols matrix by evaluating fn for every
// cell.  When workers is greater than one, rows are split across goroutines
// which each write a disjoint set of cells
func NewOverlapMatrix(rows, cols int, fn OverlapFunc, workers int) *OverlapMatrix {

	m := &OverlapMatrix{rows: rows, cols: cols}

	if rows <= 0 || cols <= 0 {
		m.rows, m.cols = max(rows, 0), max(cols, 0)
		return m
	}

	data := make([]float64, rows*cols)

	fill := func(start, end int) {
		for i := start; i < end; i++ {
			for j := 0; j < cols; j++ {
				data[i*cols+j] = float64(fn(i, j))
			}
		}
	}

	workers = max(min(workers, rows), 1)
	chunk := (rows + workers - 1) / workers

	detkit.ForEach(workers, workers, func(w int) {
		fill(w*chunk, min((w+1)*chunk, rows))
	})

	m.dense = mat.NewDense(rows, cols, data)
	return m
}

// NewOverlapMatrixFromRows builds a matrix from a slice of rows, as used when
// the overlaps were computed elsewhere.  All rows must have the same length
func NewOverlapMatrixFromRows(values [][]float32) (*OverlapMatrix, error) {

	rows := len(values)
	cols := 0

	if rows > 0 {
		cols = len(values[0])
	}

	for i, r := range values {
		if len(r) != cols {
			return nil, detkit.Shapef("overlap row %d has %d columns, expected %d",
				i, len(r), cols)
		}
	}

	return NewOverlapMatrix(rows, cols, func(i, j int) float32 {
		return values[i][j]
	}, 1), nil
}

// BoxOverlaps computes the IoU of every candidate box against every ground
// truth box
func BoxOverlaps(candidates, truths []Box, normalized bool, workers int) *OverlapMatrix {
	return NewOverlapMatrix(len(candidates), len(truths), func(i, j int) float32 {
		return Overlap(candidates[i], truths[j], normalized)
	}, workers)
}

// PolygonOverlaps computes the polygon IoU of every candidate polygon against
// every ground truth polygon
func PolygonOverlaps(candidates, truths []Polygon, workers int) *OverlapMatrix {
	return NewOverlapMatrix(len(candidates), len(truths), func(i, j int) float32 {
		return PolygonIoU(candidates[i], truths[j])
	}, workers)
}

// Dims returns the number of candidates (rows) and ground truths (columns)
func (m *OverlapMatrix) Dims() (int, int) {
	return m.rows, m.cols
}

// At returns the overlap of candidate i with ground truth j
func (m *OverlapMatrix) At(i, j int) float32 {
	return float32(m.dense.At(i, j))
}

// Row returns a copy of the overlaps for candidate i
func (m *OverlapMatrix) Row(i int) []float32 {

	out := make([]float32, m.cols)

	for j := range out {
		out[j] = m.At(i, j)
	}

	return out
}

// RowMax returns the ground truth index with the largest overlap for
// candidate i and its value.  Ties go to the lowest ground truth index and
// NaN cells are skipped.  The index is -1 when there are no ground truths or
// every cell in the row is NaN
func (m *OverlapMatrix) RowMax(i int) (int, float32) {

	best := -1
	bestVal := float32(0)

	for j := 0; j < m.cols; j++ {
		v := m.At(i, j)

		if v != v {
			continue
		}

		if best == -1 || v > bestVal {
			best = j
			bestVal = v
		}
	}

	return best, bestVal
}

// Dense returns a copy of the overlaps as a gonum matrix.  It returns nil for
// an empty matrix
func (m *OverlapMatrix) Dense() *mat.Dense {
	if m.dense == nil {
		return nil
	}
	return mat.DenseCopyOf(m.dense)
}
