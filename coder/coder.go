package coder

import (
	"github.com/chewxy/math32"
	"github.com/swdee/go-detkit"
	"github.com/swdee/go-detkit/geometry"
)

// DefaultClipLog is the upper bound, ln(1000/16), applied to the log domain
// width and height deltas before exponentiating during decode
const DefaultClipLog = 4.135166556742356

// Params defines the struct containing the box coder parameters
type Params struct {
	// Variances scale the (cx, cy, w, h) regression targets
	Variances [4]float32
	// Normalized is true when box coordinates are continuous, such as values
	// normalized to [0,1].  When false coordinates are inclusive pixel
	// indices and widths are x2-x1+1
	Normalized bool
	// ClipLog is the maximum log domain width/height delta used by Decode
	ClipLog float32
}

// DefaultParams returns an instance of Params configured with
// - Variances: 1, 1, 1, 1
// - Normalized: true
// - ClipLog: ln(1000/16)
func DefaultParams() Params {
	return Params{
		Variances:  [4]float32{1, 1, 1, 1},
		Normalized: true,
		ClipLog:    DefaultClipLog,
	}
}

// SSDParams returns an instance of Params configured with the variances used
// by SSD prior boxes
// - Variances: 0.1, 0.1, 0.2, 0.2
// - Normalized: true
// - ClipLog: ln(1000/16)
func SSDParams() Params {
	p := DefaultParams()
	p.Variances = [4]float32{0.1, 0.1, 0.2, 0.2}
	return p
}

// Validate checks the parameters and returns a configuration error if any
// are out of range
func (p Params) Validate() error {

	for i, v := range p.Variances {
		if !(v > 0) {
			return detkit.Configf("variance %d must be positive, got %v", i, v)
		}
	}

	if !(p.ClipLog > 0) {
		return detkit.Configf("clip log must be positive, got %v", p.ClipLog)
	}

	return nil
}

// pixelOffset is the amount added to an extent for inclusive pixel
// coordinates
func (p Params) pixelOffset() float32 {
	if p.Normalized {
		return 0
	}
	return 1
}

// center returns the center and size of a box under the coder convention
func (p Params) center(b geometry.Box) (cx, cy, w, h float32) {
	off := p.pixelOffset()
	w = b.X2 - b.X1 + off
	h = b.Y2 - b.Y1 + off
	cx = b.X1 + w/2
	cy = b.Y1 + h/2
	return
}

// Encode returns the regression target of ground truth box gt relative to
// anchor.  Centers are encoded as offsets in units of the anchor size and
// sizes as log ratios, each divided by its variance
func Encode(anchor, gt geometry.Box, p Params) ([4]float32, error) {

	var delta [4]float32

	if err := p.Validate(); err != nil {
		return delta, err
	}

	acx, acy, aw, ah := p.center(anchor)

	if aw <= 0 || ah <= 0 {
		return delta, detkit.Geometryf("anchor %v has no extent", anchor)
	}

	gcx, gcy, gw, gh := p.center(gt)

	if gw <= 0 || gh <= 0 {
		return delta, detkit.Geometryf("ground truth %v has no extent", gt)
	}

	v := p.Variances

	delta[0] = (gcx - acx) / aw / v[0]
	delta[1] = (gcy - acy) / ah / v[1]
	delta[2] = math32.Log(gw/aw) / v[2]
	delta[3] = math32.Log(gh/ah) / v[3]

	return delta, nil
}

// Decode applies the regression delta to anchor and returns the resulting
// box.  It is the inverse of Encode.  The log domain size terms are clamped
// to ClipLog before exponentiating so extreme deltas can not overflow
func Decode(anchor geometry.Box, delta [4]float32, p Params) (geometry.Box, error) {

	if err := p.Validate(); err != nil {
		return geometry.Box{}, err
	}

	acx, acy, aw, ah := p.center(anchor)

	if aw <= 0 || ah <= 0 {
		return geometry.Box{}, detkit.Geometryf("anchor %v has no extent", anchor)
	}

	v := p.Variances

	cx := delta[0]*v[0]*aw + acx
	cy := delta[1]*v[1]*ah + acy
	w := math32.Exp(min(delta[2]*v[2], p.ClipLog)) * aw
	h := math32.Exp(min(delta[3]*v[3], p.ClipLog)) * ah

	off := p.pixelOffset()

	return geometry.Box{
		X1: cx - w/2,
		Y1: cy - h/2,
		X2: cx + w/2 - off,
		Y2: cy + h/2 - off,
	}, nil
}

// EncodeAll encodes truths[i] against anchors[i] for every row.  Rows that
// fail with invalid geometry are left zero and marked false in the returned
// validity slice
func EncodeAll(anchors, truths []geometry.Box, p Params) ([][4]float32, []bool, error) {

	if len(anchors) != len(truths) {
		return nil, nil, detkit.Shapef("truth count %d does not match anchor count %d",
			len(truths), len(anchors))
	}

	if err := p.Validate(); err != nil {
		return nil, nil, err
	}

	deltas := make([][4]float32, len(anchors))
	valid := make([]bool, len(anchors))

	for i := range anchors {
		d, err := Encode(anchors[i], truths[i], p)

		if err != nil {
			continue
		}

		deltas[i] = d
		valid[i] = true
	}

	return deltas, valid, nil
}

// DecodeAll decodes deltas[i] against anchors[i] for every row.  Rows with a
// degenerate anchor are left zero and marked false in the returned validity
// slice
func DecodeAll(anchors []geometry.Box, deltas [][4]float32, p Params) ([]geometry.Box, []bool, error) {

	if len(anchors) != len(deltas) {
		return nil, nil, detkit.Shapef("delta count %d does not match anchor count %d",
			len(deltas), len(anchors))
	}

	if err := p.Validate(); err != nil {
		return nil, nil, err
	}

	boxes := make([]geometry.Box, len(anchors))
	valid := make([]bool, len(anchors))

	for i := range anchors {
		b, err := Decode(anchors[i], deltas[i], p)

		if err != nil {
			continue
		}

		boxes[i] = b
		valid[i] = true
	}

	return boxes, valid, nil
}
