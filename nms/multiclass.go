package nms

import (
	"sort"

	"github.com/swdee/go-detkit"
)

// Detection is a candidate kept by multi-class suppression
type Detection struct {
	// Index is the candidate index in the input
	Index int
	// Class is the class label the candidate was kept under
	Class int
	// Score is the class score of the candidate
	Score float32
}

// MultiClassParams defines the struct containing the multi-class suppression
// parameters
type MultiClassParams struct {
	Params
	// BackgroundLabel is the class skipped during suppression, -1 to keep
	// every class
	BackgroundLabel int
	// KeepTopK limits the total detections across all classes to those with
	// the highest scores, zero or less is unbounded
	KeepTopK int
	// Workers is the number of classes suppressed concurrently
	Workers int
}

// DefaultMultiClassParams returns an instance of MultiClassParams configured
// with default values
// - Params: DefaultParams()
// - Background Label: -1
// - Keep Top K: unbounded
// - Workers: 1
func DefaultMultiClassParams() MultiClassParams {
	return MultiClassParams{
		Params:          DefaultParams(),
		BackgroundLabel: -1,
		Workers:         1,
	}
}

// Validate checks the parameters and returns a configuration error if any
// are out of range
func (mp MultiClassParams) Validate() error {

	if err := mp.Params.Validate(); err != nil {
		return err
	}

	if mp.BackgroundLabel < -1 {
		return detkit.Configf("background label must be -1 or a class index, got %d",
			mp.BackgroundLabel)
	}

	return nil
}

// MultiClass runs suppression independently for every class over a shared
// set of candidates.  scores holds one row per class with a score for every
// candidate, and overlap compares candidates by index.  Detections are
// returned grouped by ascending class with each class in descending score
// order, regardless of how many workers are used
func MultiClass(scores [][]float32, overlap OverlapFunc, mp MultiClassParams) ([]Detection, error) {

	if err := mp.Validate(); err != nil {
		return nil, err
	}

	n := 0

	if len(scores) > 0 {
		n = len(scores[0])
	}

	for c, row := range scores {
		if len(row) != n {
			return nil, detkit.Shapef("class %d has %d scores, expected %d", c, len(row), n)
		}
	}

	all := make([]int, n)

	for i := range all {
		all[i] = i
	}

	perClass := make([][]int, len(scores))

	detkit.ForEach(len(scores), mp.Workers, func(c int) {
		if c == mp.BackgroundLabel {
			return
		}
		perClass[c] = suppress(all, scores[c], overlap, mp.Params)
	})

	dets := make([]Detection, 0)

	for c, kept := range perClass {
		for _, i := range kept {
			dets = append(dets, Detection{Index: i, Class: c, Score: scores[c][i]})
		}
	}

	return keepTopK(dets, mp.KeepTopK), nil
}

// ByClass runs suppression for candidates that each carry a single class
// label.  Candidates with a negative label or the background label are
// skipped.  Detections are ordered as for MultiClass
func ByClass(classes []int, scores []float32, overlap OverlapFunc, mp MultiClassParams) ([]Detection, error) {

	if err := mp.Validate(); err != nil {
		return nil, err
	}

	if len(classes) != len(scores) {
		return nil, detkit.Shapef("%d class labels but %d scores", len(classes), len(scores))
	}

	groups := make(map[int][]int)

	for i, c := range classes {
		if c < 0 || c == mp.BackgroundLabel {
			continue
		}
		groups[c] = append(groups[c], i)
	}

	labels := make([]int, 0, len(groups))

	for c := range groups {
		labels = append(labels, c)
	}

	sort.Ints(labels)

	perClass := make([][]int, len(labels))

	detkit.ForEach(len(labels), mp.Workers, func(k int) {
		perClass[k] = suppress(groups[labels[k]], scores, overlap, mp.Params)
	})

	dets := make([]Detection, 0)

	for k, kept := range perClass {
		for _, i := range kept {
			dets = append(dets, Detection{Index: i, Class: labels[k], Score: scores[i]})
		}
	}

	return keepTopK(dets, mp.KeepTopK), nil
}

// keepTopK limits detections, which must be grouped by ascending class, to
// the k highest scoring.  Equal scores prefer the lower class then the
// earlier detection within the class.  The survivors keep their class
// grouping
func keepTopK(dets []Detection, k int) []Detection {

	if k <= 0 || len(dets) <= k {
		return dets
	}

	sort.SliceStable(dets, func(a, b int) bool {
		return dets[a].Score > dets[b].Score
	})

	dets = dets[:k]

	sort.SliceStable(dets, func(a, b int) bool {
		return dets[a].Class < dets[b].Class
	})

	return dets
}
