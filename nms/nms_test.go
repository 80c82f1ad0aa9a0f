package nms

import (
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-detkit"
	"github.com/swdee/go-detkit/geometry"
)

// matrixOverlap returns an OverlapFunc reading a fixed symmetric matrix
func matrixOverlap(m [][]float32) OverlapFunc {
	return func(i, j int) float32 {
		return m[i][j]
	}
}

// plain returns params with no score filtering
func plain(threshold float32) Params {
	p := DefaultParams()
	p.IoUThreshold = threshold
	p.ScoreThreshold = 0
	return p
}

func TestSuppressIdenticalBoxes(t *testing.T) {

	box := geometry.NewBox(10, 10, 50, 50)

	for _, normalized := range []bool{true, false} {
		kept, err := Boxes([]geometry.Box{box, box}, []float32{0.9, 0.8}, normalized, plain(0.5))
		require.NoError(t, err)
		assert.Equal(t, []int{0}, kept)
	}

	// input order does not matter
	kept, err := Boxes([]geometry.Box{box, box}, []float32{0.8, 0.9}, true, plain(0.5))
	require.NoError(t, err)
	assert.Equal(t, []int{1}, kept)
}

func TestSuppress(t *testing.T) {

	overlaps := [][]float32{
		{1, 0.6, 0.2, 0},
		{0.6, 1, 0.5, 0},
		{0.2, 0.5, 1, 0},
		{0, 0, 0, 1},
	}

	tests := []struct {
		name     string
		scores   []float32
		modify   func(p *Params)
		expected []int
	}{
		{
			name:     "basic",
			scores:   []float32{0.9, 0.8, 0.7, 0.6},
			modify:   func(p *Params) {},
			expected: []int{0, 2, 3},
		},
		{
			name:     "equal overlap is kept",
			scores:   []float32{0.7, 0.9, 0.8, 0.6},
			modify:   func(p *Params) {},
			expected: []int{1, 2, 3},
		},
		{
			name:     "score threshold",
			scores:   []float32{0.9, 0.8, 0.29, 0.3},
			modify:   func(p *Params) { p.ScoreThreshold = 0.3 },
			expected: []int{0, 3},
		},
		{
			name:     "ties keep input order",
			scores:   []float32{0.5, 0.5, 0.5, 0.5},
			modify:   func(p *Params) { p.IoUThreshold = 0.1 },
			expected: []int{0, 3},
		},
		{
			name:     "top k",
			scores:   []float32{0.9, 0.8, 0.7, 0.6},
			modify:   func(p *Params) { p.TopK = 2 },
			expected: []int{0, 2},
		},
		{
			name:     "pre top k",
			scores:   []float32{0.9, 0.8, 0.7, 0.6},
			modify:   func(p *Params) { p.PreTopK = 2 },
			expected: []int{0},
		},
		{
			name:     "threshold one keeps everything",
			scores:   []float32{0.9, 0.8, 0.7, 0.6},
			modify:   func(p *Params) { p.IoUThreshold = 1 },
			expected: []int{0, 1, 2, 3},
		},
		{
			name:     "all filtered",
			scores:   []float32{0.1, 0.1, 0.1, 0.1},
			modify:   func(p *Params) { p.ScoreThreshold = 0.5 },
			expected: []int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := plain(0.5)
			tt.modify(&p)

			kept, err := Suppress(tt.scores, matrixOverlap(overlaps), p)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, kept)
		})
	}
}

func TestSuppressEmpty(t *testing.T) {
	kept, err := Suppress(nil, nil, plain(0.5))
	require.NoError(t, err)
	assert.Empty(t, kept)
}

func TestSuppressAdaptiveEta(t *testing.T) {

	overlaps := [][]float32{
		{1, 0, 0.6},
		{0, 1, 0},
		{0.6, 0, 1},
	}
	scores := []float32{0.9, 0.8, 0.7}

	p := plain(0.7)

	kept, err := Suppress(scores, matrixOverlap(overlaps), p)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, kept)

	// 0.7 -> 0.56 after the first keep, then 0.448 after the second, so the
	// third candidate is now suppressed
	p.Eta = 0.8

	kept, err = Suppress(scores, matrixOverlap(overlaps), p)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, kept)

	// the threshold stops shrinking once at or below 0.5
	p = plain(0.5)
	p.Eta = 0.1
	overlaps[0][2], overlaps[2][0] = 0.45, 0.45

	kept, err = Suppress(scores, matrixOverlap(overlaps), p)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, kept)
}

func TestSuppressNoKeptPairExceedsThreshold(t *testing.T) {

	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 20; trial++ {
		n := 5 + rng.Intn(60)
		boxes := make([]geometry.Box, n)
		scores := make([]float32, n)

		for i := range boxes {
			x := rng.Float32() * 100
			y := rng.Float32() * 100
			boxes[i] = geometry.NewBox(x, y, x+5+rng.Float32()*40, y+5+rng.Float32()*40)
			scores[i] = rng.Float32()
		}

		for _, thr := range []float32{0.7, 0.5, 0.3, 0.1} {
			kept, err := Boxes(boxes, scores, true, plain(thr))
			require.NoError(t, err)

			for a := 0; a < len(kept); a++ {
				for b := a + 1; b < len(kept); b++ {
					iou := geometry.IoU(boxes[kept[a]], boxes[kept[b]])
					require.LessOrEqual(t, iou, thr)
				}
				if a > 0 {
					require.GreaterOrEqual(t, scores[kept[a-1]], scores[kept[a]])
				}
			}
		}
	}
}

func TestSuppressSmallNormalizedDuplicates(t *testing.T) {

	b := geometry.NewBox(0.1, 0.1, 0.1008, 0.1008)

	kept, err := Boxes([]geometry.Box{b, b}, []float32{0.9, 0.8}, true, plain(0.5))
	require.NoError(t, err)
	assert.Equal(t, []int{0}, kept)

	kept, err = Polygons([]geometry.Polygon{b.Polygon(), b.Polygon()}, []float32{0.9, 0.8}, plain(0.5))
	require.NoError(t, err)
	assert.Equal(t, []int{0}, kept)
}

func TestSuppressNormalizedProperties(t *testing.T) {

	rng := rand.New(rand.NewSource(19))

	for trial := 0; trial < 20; trial++ {
		n := 5 + rng.Intn(40)
		boxes := make([]geometry.Box, 0, 2*n)
		scores := make([]float32, 0, 2*n)

		for i := 0; i < n; i++ {
			// sides from 1e-4 up to 0.05
			w := float32(1e-4) * float32(1+rng.Intn(500))
			h := float32(1e-4) * float32(1+rng.Intn(500))
			x := rng.Float32() * (1 - w)
			y := rng.Float32() * (1 - h)
			b := geometry.NewBox(x, y, x+w, y+h)

			// every box comes with a lower scored exact duplicate
			s := 0.5 + rng.Float32()/2
			boxes = append(boxes, b, b)
			scores = append(scores, s, s/2)
		}

		for _, thr := range []float32{0.7, 0.5, 0.3} {
			kept, err := Boxes(boxes, scores, true, plain(thr))
			require.NoError(t, err)

			seen := make(map[geometry.Box]bool)

			for a := 0; a < len(kept); a++ {
				require.False(t, seen[boxes[kept[a]]], "trial %d: duplicate kept", trial)
				seen[boxes[kept[a]]] = true

				for b := a + 1; b < len(kept); b++ {
					require.LessOrEqual(t, geometry.IoU(boxes[kept[a]], boxes[kept[b]]), thr)
				}
			}
		}
	}
}

func TestSuppressShrinksWithThreshold(t *testing.T) {

	// a row of 10x10 boxes each shifted 2 pixels from the last, scored in
	// order, so a candidate k steps from a kept box overlaps it by
	// 0.667, 0.429, 0.25, 0.111, then 0
	boxes := make([]geometry.Box, 12)
	scores := make([]float32, 12)

	for i := range boxes {
		x := float32(2 * i)
		boxes[i] = geometry.NewBox(x, 0, x+10, 10)
		scores[i] = 1 - 0.05*float32(i)
	}

	tests := []struct {
		threshold float32
		expected  int
	}{
		{0.9, 12},
		{0.6, 6},
		{0.4, 4},
		{0.2, 3},
		{0.1, 3},
		{0, 3},
	}

	last := len(boxes)

	for _, tt := range tests {
		kept, err := Boxes(boxes, scores, true, plain(tt.threshold))
		require.NoError(t, err)

		assert.Len(t, kept, tt.expected, "threshold %v", tt.threshold)
		assert.LessOrEqual(t, len(kept), last)
		last = len(kept)
	}
}

func TestPolygons(t *testing.T) {

	a := geometry.RotatedBox{CX: 50, CY: 50, W: 40, H: 20, Angle: 0.5}.Polygon()
	b := geometry.RotatedBox{CX: 51, CY: 50, W: 40, H: 20, Angle: 0.5}.Polygon()
	c := geometry.RotatedBox{CX: 200, CY: 200, W: 40, H: 20, Angle: 1.2}.Polygon()

	kept, err := Polygons([]geometry.Polygon{a, b, c}, []float32{0.7, 0.9, 0.8}, plain(0.5))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, kept)
}

func TestShapeAndParamErrors(t *testing.T) {

	_, err := Boxes(make([]geometry.Box, 2), []float32{1}, true, plain(0.5))
	assert.True(t, errors.Is(err, detkit.ErrShapeMismatch))

	_, err = Polygons(make([]geometry.Polygon, 1), nil, plain(0.5))
	assert.True(t, errors.Is(err, detkit.ErrShapeMismatch))

	tests := []struct {
		name   string
		modify func(p *Params)
	}{
		{"iou above one", func(p *Params) { p.IoUThreshold = 1.1 }},
		{"negative score threshold", func(p *Params) { p.ScoreThreshold = -0.5 }},
		{"zero eta", func(p *Params) { p.Eta = 0 }},
		{"eta above one", func(p *Params) { p.Eta = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.modify(&p)

			_, err := Suppress([]float32{1}, matrixOverlap([][]float32{{1}}), p)
			assert.True(t, errors.Is(err, detkit.ErrConfiguration), "got %v", err)
		})
	}
}
