package anchor

import (
	"math"

	"github.com/chewxy/math32"
	"github.com/swdee/go-detkit"
	"github.com/swdee/go-detkit/geometry"
)

// ratioEpsilon is the tolerance used when removing duplicate aspect ratios
const ratioEpsilon = 1e-6

// PriorParams defines the struct containing the SSD prior box parameters
type PriorParams struct {
	// MinSizes are the square prior sizes in input pixels
	MinSizes []float32
	// MaxSizes are optional and when set must match MinSizes in length.  Each
	// adds a square prior of size sqrt(min*max)
	MaxSizes []float32
	// AspectRatios are the extra width / height ratios generated for each min
	// size.  A ratio of 1 is always present
	AspectRatios []float32
	// Flip adds the reciprocal of each aspect ratio
	Flip bool
	// Clip restricts the normalized prior coordinates to [0,1]
	Clip bool
	// StepW and StepH are the cell spacing in input pixels.  Zero means
	// image size / feature map size
	StepW, StepH float32
	// Offset is the fractional position of the prior center within a cell
	Offset float32
	// Variances are attached to every prior
	Variances [4]float32
}

// SSDPriorParams returns an instance of PriorParams configured with the
// default values for the first layer of an SSD300 model
// - Min Size: 30
// - Max Size: 60
// - Aspect Ratios: 2 (flipped)
// - Offset: 0.5
// - Variances: 0.1, 0.1, 0.2, 0.2
func SSDPriorParams() PriorParams {
	return PriorParams{
		MinSizes:     []float32{30},
		MaxSizes:     []float32{60},
		AspectRatios: []float32{2},
		Flip:         true,
		Clip:         true,
		Offset:       0.5,
		Variances:    [4]float32{0.1, 0.1, 0.2, 0.2},
	}
}

// Validate checks the parameters and returns a configuration error if any
// are out of range
func (p PriorParams) Validate() error {

	if len(p.MinSizes) == 0 {
		return detkit.Configf("prior min sizes must not be empty")
	}

	if len(p.MaxSizes) > 0 && len(p.MaxSizes) != len(p.MinSizes) {
		return detkit.Configf("prior max sizes count %d does not match min sizes count %d",
			len(p.MaxSizes), len(p.MinSizes))
	}

	for i, s := range p.MinSizes {
		if !(s > 0) {
			return detkit.Configf("prior min size must be positive, got %v", s)
		}
		if len(p.MaxSizes) > 0 && !(p.MaxSizes[i] >= s) {
			return detkit.Configf("prior max size %v is smaller than min size %v",
				p.MaxSizes[i], s)
		}
	}

	for _, r := range p.AspectRatios {
		if !(r > 0) {
			return detkit.Configf("prior aspect ratio must be positive, got %v", r)
		}
	}

	if !(p.StepW >= 0 && p.StepH >= 0) {
		return detkit.Configf("prior steps must not be negative")
	}

	if !(p.Offset >= 0 && p.Offset <= 1) {
		return detkit.Configf("prior offset must be within [0,1], got %v", p.Offset)
	}

	return validateVariances(p.Variances)
}

// ExpandAspectRatios returns the aspect ratios with 1 first, duplicates
// removed and, when flip is set, the reciprocal following each new ratio
func ExpandAspectRatios(ratios []float32, flip bool) []float32 {

	out := []float32{1}

	for _, ar := range ratios {
		exists := false

		for _, o := range out {
			if math32.Abs(ar-o) < ratioEpsilon {
				exists = true
				break
			}
		}

		if exists {
			continue
		}

		out = append(out, ar)

		if flip {
			out = append(out, 1/ar)
		}
	}

	return out
}

// PerCell returns the number of priors generated for each feature map cell
func (p PriorParams) PerCell() int {
	return len(ExpandAspectRatios(p.AspectRatios, p.Flip))*len(p.MinSizes) + len(p.MaxSizes)
}

// Priors produces SSD prior boxes for a feature map of featH x featW cells on
// an image of imgH x imgW pixels.  Boxes are normalized by the image size.
// For each min size a cell holds the square min size prior, then the
// sqrt(min*max) prior when max sizes are set, then one prior for each
// remaining aspect ratio
func Priors(featH, featW, imgH, imgW int, p PriorParams) (*Grid, error) {

	if featH <= 0 || featW <= 0 || imgH <= 0 || imgW <= 0 {
		return nil, detkit.Configf("feature map %dx%d and image %dx%d must be positive",
			featH, featW, imgH, imgW)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	ratios := ExpandAspectRatios(p.AspectRatios, p.Flip)

	// a zero step is derived from the image to feature map ratio per axis
	stepW, stepH := p.StepW, p.StepH

	if stepW == 0 {
		stepW = float32(imgW) / float32(featW)
	}

	if stepH == 0 {
		stepH = float32(imgH) / float32(featH)
	}

	perCell := len(ratios)*len(p.MinSizes) + len(p.MaxSizes)

	g := &Grid{
		Boxes:     make([]geometry.Box, 0, featH*featW*perCell),
		Variances: p.Variances,
		Height:    featH,
		Width:     featW,
		PerCell:   perCell,
	}

	iw := float32(imgW)
	ih := float32(imgH)

	add := func(cx, cy, bw, bh float32) {
		b := geometry.Box{
			X1: (cx - bw/2) / iw,
			Y1: (cy - bh/2) / ih,
			X2: (cx + bw/2) / iw,
			Y2: (cy + bh/2) / ih,
		}

		if p.Clip {
			b = b.Clip(0, 0, 1, 1)
		}

		g.Boxes = append(g.Boxes, b)
	}

	for h := 0; h < featH; h++ {
		cy := (float32(h) + p.Offset) * stepH

		for w := 0; w < featW; w++ {
			cx := (float32(w) + p.Offset) * stepW

			for s, minSize := range p.MinSizes {
				add(cx, cy, minSize, minSize)

				if len(p.MaxSizes) > 0 {
					size := math32.Sqrt(minSize * p.MaxSizes[s])
					add(cx, cy, size, size)
				}

				for _, ar := range ratios {
					if math32.Abs(ar-1) < ratioEpsilon {
						continue
					}

					sr := math32.Sqrt(ar)
					add(cx, cy, minSize*sr, minSize/sr)
				}
			}
		}
	}

	return g, nil
}

// LayerSizes derives the min and max prior sizes of each layer of a multi
// layer SSD head from a min and max ratio (in percent) of the base image
// size.  The first layer uses 10% and 20% of the base size
func LayerSizes(numLayers, minRatio, maxRatio int, baseSize float32) ([]float32, []float32, error) {

	if numLayers <= 2 {
		return nil, nil, detkit.Configf("layer count must be greater than 2, got %d", numLayers)
	}

	if minRatio <= 0 || maxRatio <= minRatio {
		return nil, nil, detkit.Configf("ratios must satisfy 0 < min < max, got %d and %d",
			minRatio, maxRatio)
	}

	step := int(math.Floor(float64(maxRatio-minRatio) / float64(numLayers-2)))

	if step <= 0 {
		return nil, nil, detkit.Configf("ratio range %d-%d is too small for %d layers",
			minRatio, maxRatio, numLayers)
	}

	minSizes := []float32{baseSize * 0.1}
	maxSizes := []float32{baseSize * 0.2}

	for ratio := minRatio; ratio <= maxRatio; ratio += step {
		minSizes = append(minSizes, baseSize*float32(ratio)/100)
		maxSizes = append(maxSizes, baseSize*float32(ratio+step)/100)
	}

	return minSizes, maxSizes, nil
}
