package proposal

import (
	"github.com/swdee/go-detkit"
	"github.com/swdee/go-detkit/coder"
	"github.com/swdee/go-detkit/geometry"
	"github.com/swdee/go-detkit/nms"
	"go.uber.org/zap"
)

// Params defines the struct containing the proposal generation parameters
type Params struct {
	// PreNMSTopN is the number of highest scoring boxes kept before
	// suppression, zero or less keeps all
	PreNMSTopN int
	// PostNMSTopN is the number of proposals returned after suppression,
	// zero or less returns all
	PostNMSTopN int
	// NMSThreshold is the maximum IoU allowed between two proposals
	NMSThreshold float32
	// NMSEta is the adaptive suppression threshold factor, 1 disables it
	NMSEta float32
	// MinSize is the minimum width and height of a proposal in the original
	// image, it is multiplied by the image scale
	MinSize float32
	// ScoreThreshold drops anchors scoring below it
	ScoreThreshold float32
	// Coder are the box coder parameters used to decode the deltas
	Coder coder.Params
	// Workers is the number of images processed concurrently by
	// GenerateBatch
	Workers int
}

// DefaultParams returns an instance of Params configured with the values
// used for region proposal networks on pixel coordinates
// - Pre NMS Top N: 6000
// - Post NMS Top N: 1000
// - NMS Threshold: 0.5
// - NMS Eta: 1
// - Min Size: 0.1
// - Score Threshold: 0
// - Coder: unit variances on inclusive pixel coordinates
// - Workers: 1
func DefaultParams() Params {

	c := coder.DefaultParams()
	c.Normalized = false

	return Params{
		PreNMSTopN:   6000,
		PostNMSTopN:  1000,
		NMSThreshold: 0.5,
		NMSEta:       1,
		MinSize:      0.1,
		Coder:        c,
		Workers:      1,
	}
}

// Validate checks the parameters and returns a configuration error if any
// are out of range
func (p Params) Validate() error {

	if err := p.nmsParams().Validate(); err != nil {
		return err
	}

	if !(p.MinSize >= 0) {
		return detkit.Configf("min size must not be negative, got %v", p.MinSize)
	}

	return p.Coder.Validate()
}

// nmsParams returns the suppression parameters of the pipeline
func (p Params) nmsParams() nms.Params {
	return nms.Params{
		IoUThreshold:   p.NMSThreshold,
		ScoreThreshold: p.ScoreThreshold,
		TopK:           p.PostNMSTopN,
		PreTopK:        p.PreNMSTopN,
		Eta:            p.NMSEta,
	}
}

// Image holds the network outputs for one image, with one score and one
// delta for every anchor
type Image struct {
	// Height and Width of the network input image
	Height, Width float32
	// Scale is the resize factor from the original image to the network
	// input
	Scale float32
	// Scores is the objectness score of each anchor
	Scores []float32
	// Deltas is the predicted regression of each anchor
	Deltas [][4]float32
}

// Proposal is a single region proposal
type Proposal struct {
	Box   geometry.Box
	Score float32
	// AnchorIndex is the index of the anchor the proposal was decoded from
	AnchorIndex int
}

// Stats counts the anchors removed at each stage of the pipeline
type Stats struct {
	Anchors    int
	BelowScore int
	Invalid    int
	Degenerate int
	TooSmall   int
	Suppressed int
}

// Result is the output of the pipeline for one image
type Result struct {
	// Proposals in descending score order
	Proposals []Proposal
	Stats     Stats
}

// Boxes returns the proposal boxes
func (r *Result) Boxes() []geometry.Box {

	out := make([]geometry.Box, len(r.Proposals))

	for i, p := range r.Proposals {
		out[i] = p.Box
	}

	return out
}

// Pipeline turns anchors and network outputs into region proposals.  It
// holds no per image state and is safe for concurrent use
type Pipeline struct {
	// Params are the pipeline parameters
	Params Params
	log    *zap.Logger
}

// NewPipeline returns an instance of the proposal pipeline
func NewPipeline(p Params) *Pipeline {
	return &Pipeline{
		Params: p,
		log:    zap.NewNop(),
	}
}

// SetLogger sets the logger used for per image diagnostics
func (pl *Pipeline) SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	pl.log = l
}

// Generate runs the pipeline for a single image.  Anchors are decoded with
// the predicted deltas, clipped to the image, filtered by size, then
// suppressed.  Anchors that fail to decode are skipped
func (pl *Pipeline) Generate(anchors []geometry.Box, img Image) (*Result, error) {

	if err := pl.Params.Validate(); err != nil {
		return nil, err
	}

	return pl.generate(anchors, img)
}

// generate runs the pipeline with already validated parameters
func (pl *Pipeline) generate(anchors []geometry.Box, img Image) (*Result, error) {

	p := pl.Params

	if len(img.Scores) != len(anchors) {
		return nil, detkit.Shapef("%d scores for %d anchors", len(img.Scores), len(anchors))
	}

	if len(img.Deltas) != len(anchors) {
		return nil, detkit.Shapef("%d deltas for %d anchors", len(img.Deltas), len(anchors))
	}

	if !(img.Height > 0 && img.Width > 0 && img.Scale > 0) {
		return nil, detkit.Geometryf("image size %vx%v scale %v", img.Width, img.Height, img.Scale)
	}

	// clip window
	maxX, maxY := img.Width, img.Height

	if !p.Coder.Normalized {
		maxX, maxY = maxX-1, maxY-1
	}

	minSize := p.MinSize * img.Scale
	off := float32(1)

	if p.Coder.Normalized {
		off = 0
	}

	stats := Stats{Anchors: len(anchors)}

	boxes := make([]geometry.Box, 0, len(anchors))
	scores := make([]float32, 0, len(anchors))
	index := make([]int, 0, len(anchors))

	for i, a := range anchors {

		// also rejects NaN scores
		if !(img.Scores[i] >= p.ScoreThreshold) {
			stats.BelowScore++
			continue
		}

		b, err := coder.Decode(a, img.Deltas[i], p.Coder)

		if err != nil {
			stats.Invalid++
			continue
		}

		b = b.Clip(0, 0, maxX, maxY)

		w := b.X2 - b.X1 + off
		h := b.Y2 - b.Y1 + off

		if w <= 0 || h <= 0 {
			stats.Degenerate++
			continue
		}

		if w < minSize || h < minSize {
			stats.TooSmall++
			continue
		}

		boxes = append(boxes, b)
		scores = append(scores, img.Scores[i])
		index = append(index, i)
	}

	kept, err := nms.Suppress(scores, nms.BoxOverlap(boxes, p.Coder.Normalized), p.nmsParams())

	if err != nil {
		return nil, err
	}

	stats.Suppressed = len(boxes) - len(kept)

	res := &Result{
		Proposals: make([]Proposal, len(kept)),
		Stats:     stats,
	}

	for k, n := range kept {
		res.Proposals[k] = Proposal{
			Box:         boxes[n],
			Score:       scores[n],
			AnchorIndex: index[n],
		}
	}

	pl.log.Debug("generated proposals",
		zap.Int("anchors", stats.Anchors),
		zap.Int("below_score", stats.BelowScore),
		zap.Int("invalid", stats.Invalid),
		zap.Int("degenerate", stats.Degenerate),
		zap.Int("too_small", stats.TooSmall),
		zap.Int("suppressed", stats.Suppressed),
		zap.Int("proposals", len(res.Proposals)),
	)

	return res, nil
}
