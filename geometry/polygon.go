package geometry

import (
	"github.com/chewxy/math32"
)

// Point is a 2D vertex
type Point struct {
	X, Y float32
}

// Polygon is an ordered sequence of vertices where insertion order is the
// winding order.  It is implicitly closed and is not required to be convex
type Polygon []Point

// RotatedBox is an oriented rectangle defined by its center, size and a
// rotation angle in radians
type RotatedBox struct {
	CX, CY, W, H, Angle float32
}

// NewPolygon builds a Polygon from a flat slice of x,y coordinate pairs,
// such as the 8 values of a quadrilateral.  A trailing odd value is ignored
func NewPolygon(coords []float32) Polygon {

	p := make(Polygon, 0, len(coords)/2)

	for i := 0; i+1 < len(coords); i += 2 {
		p = append(p, Point{X: coords[i], Y: coords[i+1]})
	}

	return p
}

// SignedArea returns the shoelace area of the polygon, positive for counter
// clockwise winding in a y-up coordinate system
func (p Polygon) SignedArea() float32 {

	if len(p) < 3 {
		return 0
	}

	var sum float64

	for i := range p {
		j := (i + 1) % len(p)
		sum += float64(p[i].X)*float64(p[j].Y) - float64(p[j].X)*float64(p[i].Y)
	}

	return float32(sum / 2)
}

// Area returns the absolute area of the polygon.  Areas within Epsilon of
// zero relative to the bounding box area are returned as zero
func (p Polygon) Area() float32 {

	a := math32.Abs(p.SignedArea())

	if a <= Epsilon*p.Bounds().Area() {
		return 0
	}

	return a
}

// Bounds returns the axis aligned bounding box of the polygon
func (p Polygon) Bounds() Box {

	if len(p) == 0 {
		return Box{}
	}

	b := Box{X1: p[0].X, Y1: p[0].Y, X2: p[0].X, Y2: p[0].Y}

	for _, pt := range p[1:] {
		b.X1 = min(b.X1, pt.X)
		b.Y1 = min(b.Y1, pt.Y)
		b.X2 = max(b.X2, pt.X)
		b.Y2 = max(b.Y2, pt.Y)
	}

	return b
}

// Flat returns the polygon vertices as a flat slice of x,y pairs
func (p Polygon) Flat() []float32 {

	out := make([]float32, 0, len(p)*2)

	for _, pt := range p {
		out = append(out, pt.X, pt.Y)
	}

	return out
}

// Polygon converts the rotated box to its four corner coordinates
func (r RotatedBox) Polygon() Polygon {

	aCos := math32.Cos(r.Angle)
	aSin := math32.Sin(r.Angle)

	// corner positions relative to center
	cornersX := [4]float32{-r.W / 2, -r.W / 2, r.W / 2, r.W / 2}
	cornersY := [4]float32{-r.H / 2, r.H / 2, r.H / 2, -r.H / 2}

	corners := make(Polygon, 4)

	for i := 0; i < 4; i++ {
		corners[i] = Point{
			X: aCos*cornersX[i] - aSin*cornersY[i] + r.CX,
			Y: aSin*cornersX[i] + aCos*cornersY[i] + r.CY,
		}
	}

	return corners
}
