package nms

import (
	"sort"

	"github.com/swdee/go-detkit"
	"github.com/swdee/go-detkit/geometry"
)

// OverlapFunc returns the overlap between candidates i and j
type OverlapFunc func(i, j int) float32

// Params defines the struct containing the suppression parameters
type Params struct {
	// IoUThreshold is the maximum overlap allowed between two kept
	// candidates.  A candidate overlapping a kept one by more than this value
	// is suppressed, equal overlap is kept
	IoUThreshold float32
	// ScoreThreshold drops candidates scoring below it before suppression
	ScoreThreshold float32
	// TopK stops suppression once this many candidates are kept, zero or less
	// is unbounded
	TopK int
	// PreTopK keeps only the highest scoring candidates before suppression,
	// zero or less is unbounded
	PreTopK int
	// Eta shrinks the IoU threshold after each kept candidate while the
	// threshold is above 0.5.  A value of 1 disables the adaptive threshold
	Eta float32
}

// DefaultParams returns an instance of Params configured with default values
// - IoU Threshold: 0.45
// - Score Threshold: 0.25
// - Top K: unbounded
// - Pre Top K: unbounded
// - Eta: 1
func DefaultParams() Params {
	return Params{
		IoUThreshold:   0.45,
		ScoreThreshold: 0.25,
		Eta:            1,
	}
}

// Validate checks the parameters and returns a configuration error if any
// are out of range
func (p Params) Validate() error {

	if err := detkit.CheckUnit("iou threshold", p.IoUThreshold); err != nil {
		return err
	}

	if err := detkit.CheckUnit("score threshold", p.ScoreThreshold); err != nil {
		return err
	}

	if !(p.Eta > 0 && p.Eta <= 1) {
		return detkit.Configf("nms eta must be within (0,1], got %v", p.Eta)
	}

	return nil
}

// Suppress runs greedy non-maximum suppression and returns the indices of
// the kept candidates in descending score order.  Candidates with equal
// scores keep their input order
func Suppress(scores []float32, overlap OverlapFunc, p Params) ([]int, error) {

	if err := p.Validate(); err != nil {
		return nil, err
	}

	all := make([]int, len(scores))

	for i := range all {
		all[i] = i
	}

	return suppress(all, scores, overlap, p), nil
}

// suppress runs non-maximum suppression over the candidate indices given,
// which must already be validated
func suppress(candidates []int, scores []float32, overlap OverlapFunc, p Params) []int {

	order := make([]int, 0, len(candidates))

	for _, i := range candidates {
		// also rejects NaN scores
		if scores[i] >= p.ScoreThreshold {
			order = append(order, i)
		}
	}

	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	if p.PreTopK > 0 && len(order) > p.PreTopK {
		order = order[:p.PreTopK]
	}

	kept := make([]int, 0, len(order))
	threshold := p.IoUThreshold

	for _, n := range order {

		if p.TopK > 0 && len(kept) >= p.TopK {
			break
		}

		keep := true

		for _, m := range kept {
			if overlap(m, n) > threshold {
				keep = false
				break
			}
		}

		if !keep {
			continue
		}

		kept = append(kept, n)

		if p.Eta < 1 && threshold > 0.5 {
			threshold *= p.Eta
		}
	}

	return kept
}

// Boxes runs suppression over axis aligned boxes using the continuous IoU
// when normalized is true, otherwise the inclusive pixel IoU
func Boxes(boxes []geometry.Box, scores []float32, normalized bool, p Params) ([]int, error) {

	if len(boxes) != len(scores) {
		return nil, detkit.Shapef("%d boxes but %d scores", len(boxes), len(scores))
	}

	return Suppress(scores, BoxOverlap(boxes, normalized), p)
}

// Polygons runs suppression over arbitrary polygons such as rotated boxes or
// text regions
func Polygons(polys []geometry.Polygon, scores []float32, p Params) ([]int, error) {

	if len(polys) != len(scores) {
		return nil, detkit.Shapef("%d polygons but %d scores", len(polys), len(scores))
	}

	return Suppress(scores, PolygonOverlap(polys), p)
}

// BoxOverlap returns an OverlapFunc over a set of boxes
func BoxOverlap(boxes []geometry.Box, normalized bool) OverlapFunc {
	return func(i, j int) float32 {
		return geometry.Overlap(boxes[i], boxes[j], normalized)
	}
}

// PolygonOverlap returns an OverlapFunc over a set of polygons
func PolygonOverlap(polys []geometry.Polygon) OverlapFunc {
	return func(i, j int) float32 {
		return geometry.PolygonIoU(polys[i], polys[j])
	}
}
