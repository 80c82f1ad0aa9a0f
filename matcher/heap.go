package matcher

import (
	"container/heap"

	"github.com/swdee/go-detkit/geometry"
)

// cell is a single overlap matrix entry
type cell struct {
	val float32
	row int32
	col int32
}

// cellHeap is a max heap of cells ordered by value, then lowest row, then
// lowest column
type cellHeap []cell

func (h cellHeap) Len() int { return len(h) }

func (h cellHeap) Less(a, b int) bool {
	if h[a].val != h[b].val {
		return h[a].val > h[b].val
	}
	if h[a].row != h[b].row {
		return h[a].row < h[b].row
	}
	return h[a].col < h[b].col
}

func (h cellHeap) Swap(a, b int) { h[a], h[b] = h[b], h[a] }

func (h *cellHeap) Push(x any) { *h = append(*h, x.(cell)) }

func (h *cellHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// greedyHeap runs the greedy pass using a max heap of every cell reaching the
// threshold.  Cells whose row or column has already been matched are
// discarded lazily as they reach the top, which gives the same pairs as
// greedyLinear
func greedyHeap(m *geometry.OverlapMatrix, threshold float32, a *Assignment) {

	rows, cols := m.Dims()

	h := make(cellHeap, 0, rows*cols)

	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := m.At(i, j)

			if v != v || v < threshold {
				continue
			}

			h = append(h, cell{val: v, row: int32(i), col: int32(j)})
		}
	}

	heap.Init(&h)

	remaining := min(rows, cols)

	for h.Len() > 0 && remaining > 0 {
		c := heap.Pop(&h).(cell)
		i, j := int(c.row), int(c.col)

		if a.CandidateToGT[i] != -1 || a.GTToCandidate[j] != -1 {
			continue
		}

		a.assign(i, j, c.val)
		remaining--
	}
}
