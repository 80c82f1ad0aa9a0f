package mining

import (
	"container/heap"
	"sort"

	"github.com/swdee/go-detkit"
	"github.com/swdee/go-detkit/matcher"
)

// Params defines the struct containing the hard example mining parameters
type Params struct {
	// NegPosRatio is the number of negatives selected per positive
	NegPosRatio float32
	// NegOverlap is the overlap below which a background candidate may be
	// selected as a negative
	NegOverlap float32
	// SampleSize caps the number of negatives per image, zero is unbounded
	SampleSize int
}

// DefaultParams returns an instance of Params configured with the values
// used for SSD training
// - Negative to Positive Ratio: 3
// - Negative Overlap: 0.5
// - Sample Size: unbounded
func DefaultParams() Params {
	return Params{
		NegPosRatio: 3,
		NegOverlap:  0.5,
	}
}

// Validate checks the parameters and returns a configuration error if any
// are out of range
func (p Params) Validate() error {

	if !(p.NegPosRatio >= 0) {
		return detkit.Configf("negative to positive ratio must not be negative, got %v",
			p.NegPosRatio)
	}

	if err := detkit.CheckUnit("negative overlap", p.NegOverlap); err != nil {
		return err
	}

	if p.SampleSize < 0 {
		return detkit.Configf("sample size must not be negative, got %d", p.SampleSize)
	}

	return nil
}

// lossEntry is a candidate and its loss
type lossEntry struct {
	loss float32
	idx  int
}

// weaker reports whether a ranks below b
func weaker(a, b lossEntry) bool {
	if a.loss != b.loss {
		return a.loss < b.loss
	}
	return a.idx > b.idx
}

// lossHeap is a min heap holding the best negatives found so far, with the
// weakest at the root.  A lower loss is weaker and, for equal losses, a
// higher index is weaker
type lossHeap []lossEntry

func (h lossHeap) Len() int { return len(h) }

func (h lossHeap) Less(a, b int) bool { return weaker(h[a], h[b]) }

func (h lossHeap) Swap(a, b int) { h[a], h[b] = h[b], h[a] }

func (h *lossHeap) Push(x any) { *h = append(*h, x.(lossEntry)) }

func (h *lossHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// MaxNegative selects the background candidates with the highest loss to
// train against.  Eligible candidates are labelled background with a best
// overlap below NegOverlap.  The number selected is the number of positives
// times NegPosRatio, rounded down, limited by the eligible count and
// SampleSize.  Equal losses prefer the lower candidate index.  The selected
// indices are returned in ascending order.  The Assignment is not modified
func MaxNegative(loss []float32, a *matcher.Assignment, p Params) ([]int, error) {

	if err := p.Validate(); err != nil {
		return nil, err
	}

	if len(loss) != len(a.Labels) {
		return nil, detkit.Shapef("%d loss values for %d candidates", len(loss), len(a.Labels))
	}

	eligible := make([]int, 0)

	for i, l := range a.Labels {
		// NaN losses are never selected
		if l == matcher.Background && a.Overlaps[i] < p.NegOverlap && loss[i] == loss[i] {
			eligible = append(eligible, i)
		}
	}

	k := int(float32(a.NumPositives()) * p.NegPosRatio)
	k = min(k, len(eligible))

	if p.SampleSize > 0 {
		k = min(k, p.SampleSize)
	}

	if k <= 0 {
		return []int{}, nil
	}

	h := make(lossHeap, 0, k)

	for _, i := range eligible {
		e := lossEntry{loss: loss[i], idx: i}

		if h.Len() < k {
			heap.Push(&h, e)
			continue
		}

		// replace the weakest when e is stronger
		if weaker(h[0], e) {
			h[0] = e
			heap.Fix(&h, 0)
		}
	}

	out := make([]int, len(h))

	for i, e := range h {
		out[i] = e.idx
	}

	sort.Ints(out)

	return out, nil
}

// Mask returns a per candidate flag marking the given indices
func Mask(n int, indices []int) []bool {

	out := make([]bool, n)

	for _, i := range indices {
		if i >= 0 && i < n {
			out[i] = true
		}
	}

	return out
}
