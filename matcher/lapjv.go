package matcher

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/swdee/go-detkit/geometry"
)

// large is the starting column price and exceeds any reduced cost
const large = 1e6

// lap solves a dense square linear assignment problem with the
// Jonker-Volgenant algorithm, minimizing the summed cost
type lap struct {
	n    int
	cost [][]float64
	// rowCol is the column assigned to each row
	rowCol []int
	// colRow is the row assigned to each column
	colRow []int
	// price is the dual variable of each column
	price []float64
}

func newLAP(cost [][]float64) *lap {
	n := len(cost)
	return &lap{
		n:      n,
		cost:   cost,
		rowCol: make([]int, n),
		colRow: make([]int, n),
		price:  make([]float64, n),
	}
}

// solve returns the column assigned to each row
func (s *lap) solve() ([]int, error) {

	if s.n == 0 {
		return nil, nil
	}

	free := s.reduceColumns()

	// two rounds of augmenting row reduction before the shortest path phase
	for k := 0; k < 2 && len(free) > 0; k++ {
		free = s.reduceRows(free)
	}

	if len(free) > 0 {
		if err := s.augment(free); err != nil {
			return nil, err
		}
	}

	return s.rowCol, nil
}

// reduceColumns assigns each column to its cheapest row, keeping the first
// claim on a row, and transfers the reduction of uniquely assigned rows.  It
// returns the rows left unassigned
func (s *lap) reduceColumns() []int {

	n := s.n
	unique := make([]bool, n)

	for i := 0; i < n; i++ {
		s.rowCol[i] = -1
		s.price[i] = large
		s.colRow[i] = 0
		unique[i] = true
	}

	for i := 0; i < n; i++ {
		for j, c := range s.cost[i] {
			if c < s.price[j] {
				s.price[j] = c
				s.colRow[j] = i
			}
		}
	}

	for j := n - 1; j >= 0; j-- {
		i := s.colRow[j]

		if s.rowCol[i] < 0 {
			s.rowCol[i] = j
		} else {
			unique[i] = false
			s.colRow[j] = -1
		}
	}

	free := make([]int, 0, n)

	for i := 0; i < n; i++ {

		if s.rowCol[i] < 0 {
			free = append(free, i)
			continue
		}

		if !unique[i] {
			continue
		}

		j := s.rowCol[i]
		best := float64(large)

		for j2, c := range s.cost[i] {
			if j2 != j && c-s.price[j2] < best {
				best = c - s.price[j2]
			}
		}

		s.price[j] -= best
	}

	return free
}

// reduceRows runs augmenting row reduction over the free rows in place and
// returns the rows still free
func (s *lap) reduceRows(free []int) []int {

	n := s.n
	current, next, rounds := 0, 0, 0

	for current < len(free) {

		rounds++
		i := free[current]
		current++

		// lowest and second lowest reduced cost of row i
		j1, v1 := 0, s.cost[i][0]-s.price[0]
		j2, v2 := -1, float64(large)

		for j := 1; j < n; j++ {
			c := s.cost[i][j] - s.price[j]

			if c >= v2 {
				continue
			}

			if c >= v1 {
				j2, v2 = j, c
			} else {
				j2, v2 = j1, v1
				j1, v1 = j, c
			}
		}

		owner := s.colRow[j1]
		lowered := s.price[j1] - (v2 - v1)
		lowers := lowered < s.price[j1]

		switch {
		case rounds < current*n:
			if lowers {
				s.price[j1] = lowered
			} else if owner >= 0 && j2 >= 0 {
				j1 = j2
				owner = s.colRow[j2]
			}

			if owner >= 0 {
				if lowers {
					current--
					free[current] = owner
				} else {
					free[next] = owner
					next++
				}
			}

		case owner >= 0:
			free[next] = owner
			next++
		}

		s.rowCol[i] = j1
		s.colRow[j1] = i
	}

	return free[:next]
}

// augment assigns each free row along a shortest augmenting path
func (s *lap) augment(free []int) error {

	pred := make([]int, s.n)

	for _, f := range free {

		j := s.shortestPath(f, pred)

		if j < 0 || j >= s.n {
			return errors.Errorf("no augmenting path from row %d", f)
		}

		i := -1

		for k := 0; i != f; k++ {
			if k >= s.n {
				return errors.Errorf("augmenting path from row %d does not end", f)
			}

			i = pred[j]
			s.colRow[j] = i
			j, s.rowCol[i] = s.rowCol[i], j
		}
	}

	return nil
}

// shortestPath runs a Dijkstra search over reduced costs from row start and
// returns the unassigned column ending the path, updating the column prices
// and filling pred with the predecessor row of each column
func (s *lap) shortestPath(start int, pred []int) int {

	n := s.n
	cols := make([]int, n)
	dist := make([]float64, n)

	for j := 0; j < n; j++ {
		cols[j] = j
		pred[j] = start
		dist[j] = s.cost[start][j] - s.price[j]
	}

	// cols[:ready] are done, cols[lo:hi] are to scan, cols[hi:] are todo
	lo, hi, ready := 0, 0, 0
	end := -1

	for end == -1 {

		if lo == hi {
			ready = lo
			hi = s.collectMin(lo, dist, cols)

			for _, j := range cols[lo:hi] {
				if s.colRow[j] < 0 {
					end = j
				}
			}
		}

		if end == -1 {
			lo, hi, end = s.scan(lo, hi, dist, cols, pred)
		}
	}

	closest := dist[cols[lo]]

	for _, j := range cols[:ready] {
		s.price[j] += dist[j] - closest
	}

	return end
}

// collectMin moves the todo columns with the smallest distance to the front
// of cols[lo:] and returns the end of that run
func (s *lap) collectMin(lo int, dist []float64, cols []int) int {

	hi := lo + 1
	closest := dist[cols[lo]]

	for k := hi; k < s.n; k++ {
		j := cols[k]

		if dist[j] > closest {
			continue
		}

		if dist[j] < closest {
			hi = lo
			closest = dist[j]
		}

		cols[k] = cols[hi]
		cols[hi] = j
		hi++
	}

	return hi
}

// scan relaxes the todo columns through each column on the scan list.  It
// returns the updated list bounds and an unassigned column reached at the
// current minimum distance, or -1
func (s *lap) scan(lo, hi int, dist []float64, cols, pred []int) (int, int, int) {

	for lo != hi {

		j := cols[lo]
		lo++

		i := s.colRow[j]
		closest := dist[j]
		h := s.cost[i][j] - s.price[j] - closest

		for k := hi; k < s.n; k++ {
			j = cols[k]
			reduced := s.cost[i][j] - s.price[j] - h

			if reduced >= dist[j] {
				continue
			}

			dist[j] = reduced
			pred[j] = i

			if reduced != closest {
				continue
			}

			if s.colRow[j] < 0 {
				return lo, hi, j
			}

			cols[k] = cols[hi]
			cols[hi] = j
			hi++
		}
	}

	return lo, hi, -1
}

// shortlist returns the ascending candidate rows that can appear in a maximum
// total overlap matching: for each ground truth its cols best candidates at
// or above threshold.  Any other candidate can be swapped for an unused one
// of these without lowering the total
func shortlist(m *geometry.OverlapMatrix, threshold float32) []int {

	rows, cols := m.Dims()
	keep := make(map[int]struct{})
	order := make([]int, 0, rows)

	for j := 0; j < cols; j++ {

		order = order[:0]

		for i := 0; i < rows; i++ {
			if v := m.At(i, j); v == v && v >= threshold {
				order = append(order, i)
			}
		}

		sort.SliceStable(order, func(a, b int) bool {
			return m.At(order[a], j) > m.At(order[b], j)
		})

		for _, i := range order[:min(len(order), cols)] {
			keep[i] = struct{}{}
		}
	}

	out := make([]int, 0, len(keep))

	for i := range keep {
		out = append(out, i)
	}

	sort.Ints(out)

	return out
}

// optimal runs the max-one-match pass as a linear assignment maximizing the
// summed overlap of matched pairs.  Pairs below threshold are never matched
func optimal(m *geometry.OverlapMatrix, threshold float32, a *Assignment) error {

	_, cols := m.Dims()
	cand := shortlist(m, threshold)

	if len(cand) == 0 {
		return nil
	}

	n := max(len(cand), cols)
	cost := make([][]float64, n)

	for r := range cost {
		cost[r] = make([]float64, n)

		for j := range cost[r] {

			// padding and sub threshold cells cost the same as no match
			cost[r][j] = 1

			if r >= len(cand) || j >= cols {
				continue
			}

			if v := m.At(cand[r], j); v == v && v >= threshold {
				cost[r][j] = 1 - float64(v)
			}
		}
	}

	assigned, err := newLAP(cost).solve()

	if err != nil {
		return errors.Wrap(err, "optimal match")
	}

	for r, i := range cand {

		j := assigned[r]

		if j < 0 || j >= cols {
			continue
		}

		if v := m.At(i, j); v == v && v >= threshold {
			a.assign(i, j, v)
		}
	}

	return nil
}
