package matcher

import (
	"github.com/swdee/go-detkit"
)

// AssignTargets builds per candidate targets from per ground truth values.
// values has one row of K values for each ground truth.  Matched candidates
// receive their ground truth row with weight 1, all other candidates receive
// K copies of mismatch with weight 0.  Candidates listed in negatives also
// receive mismatch but with weight 1 so they contribute to the loss as
// background
func AssignTargets(values [][]float32, a *Assignment, negatives []int,
	mismatch float32) ([][]float32, []float32, error) {

	if len(values) != len(a.GTToCandidate) {
		return nil, nil, detkit.Shapef("target rows %d do not match ground truth count %d",
			len(values), len(a.GTToCandidate))
	}

	k := 0

	if len(values) > 0 {
		k = len(values[0])
	}

	for j, row := range values {
		if len(row) != k {
			return nil, nil, detkit.Shapef("target row %d has %d values, expected %d",
				j, len(row), k)
		}
	}

	n := len(a.CandidateToGT)

	for _, idx := range negatives {
		if idx < 0 || idx >= n {
			return nil, nil, detkit.Shapef("negative index %d out of range [0-%d)", idx, n)
		}
	}

	out := make([][]float32, n)
	weights := make([]float32, n)

	// single backing array for all rows
	backing := make([]float32, n*k)

	for i := 0; i < n; i++ {
		row := backing[i*k : (i+1)*k : (i+1)*k]

		if gt := a.CandidateToGT[i]; gt >= 0 {
			copy(row, values[gt])
			weights[i] = 1
		} else {
			fill(row, mismatch)
		}

		out[i] = row
	}

	for _, idx := range negatives {
		fill(out[idx], mismatch)
		weights[idx] = 1
	}

	return out, weights, nil
}

// fill sets every element of s to v
func fill(s []float32, v float32) {
	for i := range s {
		s[i] = v
	}
}
