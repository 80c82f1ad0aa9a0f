package anchor

import (
	"github.com/chewxy/math32"
	"github.com/swdee/go-detkit"
	"github.com/swdee/go-detkit/geometry"
)

// Params defines the struct containing the anchor grid parameters
type Params struct {
	// Stride is the distance in input pixels between neighbouring feature map
	// cells
	Stride float32
	// Offset is the fractional position of the anchor center within a cell,
	// commonly 0.5 for the cell center
	Offset float32
	// Scales are the anchor sizes expressed as multiples of Stride
	Scales []float32
	// Ratios are the anchor aspect ratios expressed as width / height
	Ratios []float32
	// Variances are attached to every anchor and used by the box coder to
	// scale regression targets
	Variances [4]float32
}

// DefaultParams returns an instance of Params configured with
// - Stride: 16
// - Offset: 0.5
// - Scales: 2, 4, 8, 16, 32
// - Ratios: 0.5, 1, 2
// - Variances: 1, 1, 1, 1
func DefaultParams() Params {
	return Params{
		Stride:    16,
		Offset:    0.5,
		Scales:    []float32{2, 4, 8, 16, 32},
		Ratios:    []float32{0.5, 1, 2},
		Variances: [4]float32{1, 1, 1, 1},
	}
}

// PerCell returns the number of anchors generated for each feature map cell
func (p Params) PerCell() int {
	return len(p.Scales) * len(p.Ratios)
}

// CellIndex returns the position within a cell of the anchor for the given
// scale and ratio index
func (p Params) CellIndex(scale, ratio int) int {
	return scale*len(p.Ratios) + ratio
}

// Validate checks the parameters and returns a configuration error if any
// are out of range
func (p Params) Validate() error {

	if !(p.Stride > 0) {
		return detkit.Configf("anchor stride must be positive, got %v", p.Stride)
	}

	if !(p.Offset >= 0 && p.Offset <= 1) {
		return detkit.Configf("anchor offset must be within [0,1], got %v", p.Offset)
	}

	if len(p.Scales) == 0 {
		return detkit.Configf("anchor scales must not be empty")
	}

	if len(p.Ratios) == 0 {
		return detkit.Configf("anchor ratios must not be empty")
	}

	for _, s := range p.Scales {
		if !(s > 0) {
			return detkit.Configf("anchor scale must be positive, got %v", s)
		}
	}

	for _, r := range p.Ratios {
		if !(r > 0) {
			return detkit.Configf("anchor ratio must be positive, got %v", r)
		}
	}

	return validateVariances(p.Variances)
}

// Grid is a deterministic ordered sequence of anchor boxes generated for a
// feature map.  It is immutable after generation
type Grid struct {
	// Boxes are the anchors in row major order over (row, col) followed by
	// the per cell ordering
	Boxes []geometry.Box
	// Variances are the regression variances shared by every anchor
	Variances [4]float32
	// Height is the feature map height in cells
	Height int
	// Width is the feature map width in cells
	Width int
	// PerCell is the number of anchors at each cell
	PerCell int
}

// Len returns the number of anchors in the grid
func (g *Grid) Len() int {
	return len(g.Boxes)
}

// Index returns the position in Boxes of the k'th anchor of cell (row, col)
func (g *Grid) Index(row, col, k int) int {
	return (row*g.Width+col)*g.PerCell + k
}

// At returns the k'th anchor of cell (row, col)
func (g *Grid) At(row, col, k int) geometry.Box {
	return g.Boxes[g.Index(row, col, k)]
}

// Generate produces the anchor grid for a feature map of height x width cells.
// For cell (i, j) the anchor center is ((j+offset)*stride, (i+offset)*stride)
// and for each (scale, ratio) pair the anchor is stride*scale*sqrt(ratio)
// wide and stride*scale/sqrt(ratio) high.  Anchors are ordered row major over
// (i, j), then by scale, then by ratio
func Generate(height, width int, p Params) (*Grid, error) {

	if height <= 0 || width <= 0 {
		return nil, detkit.Configf("feature map size must be positive, got %dx%d",
			height, width)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	// anchor sizes are the same for every cell so work them out once
	sizes := make([][2]float32, 0, p.PerCell())

	for _, scale := range p.Scales {
		for _, ratio := range p.Ratios {
			sr := math32.Sqrt(ratio)
			sizes = append(sizes, [2]float32{
				p.Stride * scale * sr,
				p.Stride * scale / sr,
			})
		}
	}

	g := &Grid{
		Boxes:     make([]geometry.Box, 0, height*width*len(sizes)),
		Variances: p.Variances,
		Height:    height,
		Width:     width,
		PerCell:   len(sizes),
	}

	for i := 0; i < height; i++ {
		cy := (float32(i) + p.Offset) * p.Stride

		for j := 0; j < width; j++ {
			cx := (float32(j) + p.Offset) * p.Stride

			for _, wh := range sizes {
				g.Boxes = append(g.Boxes, geometry.CenterBox{
					CX: cx, CY: cy, W: wh[0], H: wh[1],
				}.Corners())
			}
		}
	}

	return g, nil
}

// validateVariances checks all variances are positive
func validateVariances(v [4]float32) error {

	for i, x := range v {
		if !(x > 0) {
			return detkit.Configf("variance %d must be positive, got %v", i, x)
		}
	}

	return nil
}
