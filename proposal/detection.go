package proposal

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"github.com/swdee/go-detkit"
	"github.com/swdee/go-detkit/coder"
	"github.com/swdee/go-detkit/geometry"
	"github.com/swdee/go-detkit/nms"
)

// DetectionParams defines the struct containing the SSD detection output
// parameters
type DetectionParams struct {
	// NMS are the multi-class suppression parameters.  PreTopK is applied
	// per class and KeepTopK across all classes
	NMS nms.MultiClassParams
	// Coder are the box coder parameters.  Its variances are used when no per
	// prior variances are given
	Coder coder.Params
}

// SSDDetectionParams returns an instance of DetectionParams configured with
// the default SSD values
// - Background Label: 0
// - NMS Threshold: 0.3
// - Score Threshold: 0.01
// - NMS Top K: 400
// - Keep Top K: 200
// - Coder: SSD variances on normalized coordinates
func SSDDetectionParams() DetectionParams {

	mp := nms.DefaultMultiClassParams()
	mp.IoUThreshold = 0.3
	mp.ScoreThreshold = 0.01
	mp.PreTopK = 400
	mp.KeepTopK = 200
	mp.BackgroundLabel = 0

	return DetectionParams{
		NMS:   mp,
		Coder: coder.SSDParams(),
	}
}

// Detection is a decoded and suppressed SSD detection
type Detection struct {
	Class int
	Score float32
	Box   geometry.Box
	// PriorIndex is the index of the prior box the detection was decoded from
	PriorIndex int
}

// DetectionOutput decodes the location predictions against the prior boxes
// and runs multi-class suppression on the class scores.
//
// priors and loc hold one row per prior.  variances is either empty, to use
// the coder variances, or holds one row per prior.  scores holds one row of
// class scores per prior.  Priors that fail to decode are never detected.
// Detections are grouped by ascending class, each in descending score order
func DetectionOutput(priors []geometry.Box, variances [][4]float32, loc [][4]float32,
	scores [][]float32, dp DetectionParams) ([]Detection, error) {

	if err := dp.NMS.Validate(); err != nil {
		return nil, err
	}

	if err := dp.Coder.Validate(); err != nil {
		return nil, err
	}

	n := len(priors)

	if len(loc) != n {
		return nil, detkit.Shapef("%d location rows for %d priors", len(loc), n)
	}

	if len(variances) != 0 && len(variances) != n {
		return nil, detkit.Shapef("%d variance rows for %d priors", len(variances), n)
	}

	if len(scores) != n {
		return nil, detkit.Shapef("%d score rows for %d priors", len(scores), n)
	}

	classes := 0

	if n > 0 {
		classes = len(scores[0])
	}

	// transpose scores to one row per class
	perClass := make([][]float32, classes)

	for c := range perClass {
		perClass[c] = make([]float32, n)
	}

	for i, row := range scores {
		if len(row) != classes {
			return nil, detkit.Shapef("prior %d has %d class scores, expected %d",
				i, len(row), classes)
		}

		for c, s := range row {
			perClass[c][i] = s
		}
	}

	boxes := make([]geometry.Box, n)
	cp := dp.Coder

	for i := range priors {

		if len(variances) != 0 {
			cp.Variances = variances[i]
		}

		b, err := coder.Decode(priors[i], loc[i], cp)

		if err != nil {
			if errors.Is(err, detkit.ErrConfiguration) {
				return nil, err
			}

			// remove the prior from every class
			for c := range perClass {
				perClass[c][i] = math32.Inf(-1)
			}
			continue
		}

		boxes[i] = b
	}

	dets, err := nms.MultiClass(perClass, nms.BoxOverlap(boxes, cp.Normalized), dp.NMS)

	if err != nil {
		return nil, err
	}

	out := make([]Detection, len(dets))

	for k, d := range dets {
		out[k] = Detection{
			Class:      d.Class,
			Score:      d.Score,
			Box:        boxes[d.Index],
			PriorIndex: d.Index,
		}
	}

	return out, nil
}
