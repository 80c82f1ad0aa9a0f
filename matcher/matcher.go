package matcher

import (
	"github.com/swdee/go-detkit"
	"github.com/swdee/go-detkit/geometry"
)

// MatchType selects which passes the matcher runs
type MatchType int

const (
	// Bipartite runs only the greedy max-one-match pass
	Bipartite MatchType = iota
	// PerPrediction runs the greedy pass then matches every remaining
	// candidate to its best ground truth when the overlap reaches the
	// positive threshold
	PerPrediction
)

// String returns the config name of the match type
func (t MatchType) String() string {
	switch t {
	case Bipartite:
		return "bipartite"
	case PerPrediction:
		return "per_prediction"
	}
	return "unknown"
}

// ParseMatchType returns the match type with the given config name
func ParseMatchType(s string) (MatchType, error) {
	switch s {
	case "bipartite":
		return Bipartite, nil
	case "per_prediction":
		return PerPrediction, nil
	}
	return 0, detkit.Configf("unknown match type %q", s)
}

// Label is the training role assigned to a candidate
type Label int8

const (
	// Background candidates overlap every ground truth less than the
	// negative threshold
	Background Label = iota
	// Positive candidates are matched to a ground truth
	Positive
	// Ignore candidates sit between the thresholds and are excluded from
	// the loss
	Ignore
)

// String returns a readable label name
func (l Label) String() string {
	switch l {
	case Background:
		return "background"
	case Positive:
		return "positive"
	case Ignore:
		return "ignore"
	}
	return "unknown"
}

// defaultMatchThreshold excludes zero overlaps from the greedy pass
const defaultMatchThreshold = 1e-6

// Params defines the struct containing the matcher parameters
type Params struct {
	// Type selects bipartite only or bipartite plus per prediction matching
	Type MatchType
	// MatchThreshold is the smallest overlap the greedy pass will match
	MatchThreshold float32
	// PositiveThreshold is the smallest overlap at which the per prediction
	// pass matches a candidate
	PositiveThreshold float32
	// NegativeThreshold is the overlap below which an unmatched candidate is
	// labelled background.  Unmatched candidates at or above it are ignored
	NegativeThreshold float32
	// LinearScanCells is the largest matrix size, in cells, solved by a
	// plain linear scan.  Larger matrices use a lazy deletion max heap
	LinearScanCells int
	// Optimal replaces the greedy max-one-match pass with a linear assignment
	// maximizing the summed overlap of the matched pairs
	Optimal bool
}

// DefaultParams returns an instance of Params configured with the values
// used for SSD training
// - Type: PerPrediction
// - Positive Threshold: 0.5
// - Negative Threshold: 0.5
// - Linear Scan Cells: 256
func DefaultParams() Params {
	return Params{
		Type:              PerPrediction,
		MatchThreshold:    defaultMatchThreshold,
		PositiveThreshold: 0.5,
		NegativeThreshold: 0.5,
		LinearScanCells:   256,
	}
}

// Validate checks the parameters and returns a configuration error if any
// are out of range
func (p Params) Validate() error {

	if p.Type != Bipartite && p.Type != PerPrediction {
		return detkit.Configf("unknown match type %d", p.Type)
	}

	if err := detkit.CheckUnit("match threshold", p.MatchThreshold); err != nil {
		return err
	}

	if err := detkit.CheckUnit("positive overlap threshold", p.PositiveThreshold); err != nil {
		return err
	}

	if err := detkit.CheckUnit("negative overlap threshold", p.NegativeThreshold); err != nil {
		return err
	}

	if p.NegativeThreshold > p.PositiveThreshold {
		return detkit.Configf("negative overlap threshold %v exceeds positive threshold %v",
			p.NegativeThreshold, p.PositiveThreshold)
	}

	if p.LinearScanCells < 0 {
		return detkit.Configf("linear scan cells must not be negative")
	}

	return nil
}

// Assignment is the result of matching candidates to ground truths.  Every
// candidate has an entry in each per candidate slice
type Assignment struct {
	// CandidateToGT is the matched ground truth of each candidate or -1
	CandidateToGT []int
	// Overlaps is the overlap with the matched ground truth, or the best
	// overlap with any ground truth when unmatched
	Overlaps []float32
	// Labels is the training role of each candidate
	Labels []Label
	// Bipartite marks candidates matched during the max-one-match pass
	Bipartite []bool
	// GTToCandidate is the candidate matched to each ground truth during the
	// max-one-match pass or -1
	GTToCandidate []int
}

// NumPositives returns the number of matched candidates
func (a *Assignment) NumPositives() int {

	n := 0

	for _, l := range a.Labels {
		if l == Positive {
			n++
		}
	}

	return n
}

// Indices returns the ascending candidate indices carrying label l
func (a *Assignment) Indices(l Label) []int {

	out := make([]int, 0)

	for i, x := range a.Labels {
		if x == l {
			out = append(out, i)
		}
	}

	return out
}

// newAssignment returns an assignment with every candidate and ground truth
// unmatched
func newAssignment(rows, cols int) *Assignment {

	a := &Assignment{
		CandidateToGT: make([]int, rows),
		Overlaps:      make([]float32, rows),
		Labels:        make([]Label, rows),
		Bipartite:     make([]bool, rows),
		GTToCandidate: make([]int, cols),
	}

	for i := range a.CandidateToGT {
		a.CandidateToGT[i] = -1
	}

	for j := range a.GTToCandidate {
		a.GTToCandidate[j] = -1
	}

	return a
}

// Match assigns ground truths to candidates using the overlap matrix, where
// rows are candidates and columns are ground truths.
//
// The greedy pass repeatedly takes the largest remaining overlap, ties going
// to the lowest candidate then lowest ground truth index, matches the pair and
// removes both from consideration until no pair reaches MatchThreshold.  The
// per prediction pass then gives each unmatched candidate its best ground
// truth when that overlap reaches PositiveThreshold, allowing a ground truth
// to be claimed by several candidates.  Finally unmatched candidates are
// labelled background or ignore against NegativeThreshold.
//
// With Optimal set the greedy pass is replaced by a linear assignment solved
// with the Jonker-Volgenant algorithm over the shortlisted candidates, which
// maximizes the summed overlap of the matched pairs instead.
//
// The result depends only on the matrix values and parameters
func Match(m *geometry.OverlapMatrix, p Params) (*Assignment, error) {

	if err := p.Validate(); err != nil {
		return nil, err
	}

	rows, cols := m.Dims()
	a := newAssignment(rows, cols)

	switch {
	case rows == 0 || cols == 0:
		// nothing to match
	case p.Optimal:
		if err := optimal(m, p.MatchThreshold, a); err != nil {
			return nil, err
		}
	default:
		if rows*cols <= p.LinearScanCells {
			greedyLinear(m, p.MatchThreshold, a)
		} else {
			greedyHeap(m, p.MatchThreshold, a)
		}
	}

	for i := 0; i < rows; i++ {

		if a.CandidateToGT[i] != -1 {
			a.Labels[i] = Positive
			continue
		}

		j, best := m.RowMax(i)

		if j == -1 {
			a.Labels[i] = Background
			continue
		}

		if p.Type == PerPrediction && best >= p.PositiveThreshold {
			a.CandidateToGT[i] = j
			a.Overlaps[i] = best
			a.Labels[i] = Positive
			continue
		}

		a.Overlaps[i] = best

		if best < p.NegativeThreshold {
			a.Labels[i] = Background
		} else {
			a.Labels[i] = Ignore
		}
	}

	return a, nil
}

// assign records a max-one-match pair
func (a *Assignment) assign(i, j int, v float32) {
	a.CandidateToGT[i] = j
	a.GTToCandidate[j] = i
	a.Overlaps[i] = v
	a.Bipartite[i] = true
}

// greedyLinear runs the greedy pass by scanning the whole matrix for the
// largest remaining value on each round.  Scanning in (row, col) order with a
// strict comparison resolves ties to the lowest row then column
func greedyLinear(m *geometry.OverlapMatrix, threshold float32, a *Assignment) {

	rows, cols := m.Dims()
	rounds := min(rows, cols)

	for k := 0; k < rounds; k++ {

		bestI, bestJ := -1, -1
		bestVal := float32(0)

		for i := 0; i < rows; i++ {
			if a.CandidateToGT[i] != -1 {
				continue
			}

			for j := 0; j < cols; j++ {
				if a.GTToCandidate[j] != -1 {
					continue
				}

				v := m.At(i, j)

				if v != v || v < threshold {
					continue
				}

				if bestI == -1 || v > bestVal {
					bestI, bestJ, bestVal = i, j, v
				}
			}
		}

		if bestI == -1 {
			return
		}

		a.assign(bestI, bestJ, bestVal)
	}
}
