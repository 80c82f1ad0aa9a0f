package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// square returns an axis aligned square polygon
func square(x, y, size float32) Polygon {
	return NewBox(x, y, x+size, y+size).Polygon()
}

func TestPolygonArea(t *testing.T) {

	tests := []struct {
		name     string
		poly     Polygon
		expected float32
	}{
		{"unit square", square(0, 0, 1), 1},
		{"counter clockwise square", Polygon{{0, 0}, {0, 2}, {2, 2}, {2, 0}}, 4},
		{"triangle", NewPolygon([]float32{0, 0, 4, 0, 0, 3}), 6},
		{"L shape", NewPolygon([]float32{0, 0, 2, 0, 2, 1, 1, 1, 1, 2, 0, 2}), 3},
		{"two vertices", Polygon{{0, 0}, {1, 1}}, 0},
		{"collinear", Polygon{{0, 0}, {1, 1}, {2, 2}}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, tt.poly.Area(), 1e-6)
		})
	}
}

func TestRotatedBoxPolygon(t *testing.T) {

	r := RotatedBox{CX: 10, CY: 10, W: 4, H: 2, Angle: math.Pi / 4}
	p := r.Polygon()

	require.Len(t, p, 4)
	assert.InDelta(t, 8, p.Area(), 1e-4)

	// unrotated box matches the axis aligned corners
	p = RotatedBox{CX: 2, CY: 3, W: 4, H: 2}.Polygon()
	b := p.Bounds()
	assert.InDelta(t, 0, b.X1, 1e-6)
	assert.InDelta(t, 2, b.Y1, 1e-6)
	assert.InDelta(t, 4, b.X2, 1e-6)
	assert.InDelta(t, 4, b.Y2, 1e-6)
}

func TestPolygonIoU(t *testing.T) {

	tests := []struct {
		name     string
		a, b     Polygon
		expected float32
	}{
		{
			name:     "non overlapping squares",
			a:        square(0, 0, 2),
			b:        square(5, 5, 2),
			expected: 0,
		},
		{
			name:     "squares sharing an edge",
			a:        square(0, 0, 2),
			b:        square(2, 0, 2),
			expected: 0,
		},
		{
			name:     "identical squares",
			a:        square(0, 0, 2),
			b:        square(0, 0, 2),
			expected: 1,
		},
		{
			name:     "half overlap",
			a:        square(0, 0, 2),
			b:        square(1, 0, 2),
			expected: 2.0 / 6.0,
		},
		{
			name:     "opposite winding",
			a:        square(0, 0, 2),
			b:        Polygon{{1, 0}, {1, 2}, {3, 2}, {3, 0}},
			expected: 2.0 / 6.0,
		},
		{
			name:     "non convex L shape with square",
			a:        NewPolygon([]float32{0, 0, 2, 0, 2, 1, 1, 1, 1, 2, 0, 2}),
			b:        square(1, 1, 1),
			expected: 0,
		},
		{
			name:     "non convex L shape with covering square",
			a:        NewPolygon([]float32{0, 0, 2, 0, 2, 1, 1, 1, 1, 2, 0, 2}),
			b:        square(0, 0, 2),
			expected: 3.0 / 4.0,
		},
		{
			name:     "degenerate polygon",
			a:        Polygon{{0, 0}, {1, 1}},
			b:        square(0, 0, 2),
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, PolygonIoU(tt.a, tt.b), 1e-4)
			assert.InDelta(t, PolygonIoU(tt.a, tt.b), PolygonIoU(tt.b, tt.a), 1e-5)
		})
	}
}

func TestPolygonIoUMatchesBoxIoU(t *testing.T) {

	a := NewBox(0, 0, 10, 10)
	b := NewBox(5, 5, 15, 15)

	assert.InDelta(t, IoU(a, b), PolygonIoU(a.Polygon(), b.Polygon()), 1e-4)
}

func TestPolygonIntersectionMultiplePieces(t *testing.T) {

	// U shape with two arms crossed by a horizontal bar
	u := NewPolygon([]float32{0, 0, 3, 0, 3, 3, 2, 3, 2, 1, 1, 1, 1, 3, 0, 3})
	bar := NewPolygon([]float32{-1, 2, 4, 2, 4, 2.5, -1, 2.5})

	pieces := PolygonIntersection(u, bar)
	require.Len(t, pieces, 2)

	for _, p := range pieces {
		assert.InDelta(t, 0.5, p.Area(), 1e-3)
	}

	assert.InDelta(t, 1.0, PolygonIntersectionArea(u, bar), 1e-3)
}

func TestPolygonIntersectionEmpty(t *testing.T) {

	assert.Empty(t, PolygonIntersection(square(0, 0, 1), square(3, 3, 1)))
	assert.Empty(t, PolygonIntersection(Polygon{}, square(0, 0, 1)))
	assert.Equal(t, float32(0), PolygonIntersectionArea(square(0, 0, 1), square(3, 3, 1)))
}
