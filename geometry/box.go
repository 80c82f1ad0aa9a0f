package geometry

import (
	"fmt"
)

// Epsilon is the relative tolerance used when comparing areas, so polygon
// areas and clipped intersections smaller than Epsilon times the size of their
// inputs are treated as zero.  It is scaled by the inputs so boxes normalized
// to [0,1] and pixel boxes behave the same
const Epsilon = 1e-6

// Box is an axis aligned rectangle in corner (x1, y1, x2, y2) format.  A valid
// box has X2 >= X1 and Y2 >= Y1
type Box struct {
	X1, Y1, X2, Y2 float32
}

// CenterBox is an axis aligned rectangle in center/size (cx, cy, w, h) format
type CenterBox struct {
	CX, CY, W, H float32
}

// NewBox returns a Box from corner coordinates
func NewBox(x1, y1, x2, y2 float32) Box {
	return Box{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

// Width returns the continuous width of the box
func (b Box) Width() float32 {
	return b.X2 - b.X1
}

// Height returns the continuous height of the box
func (b Box) Height() float32 {
	return b.Y2 - b.Y1
}

// Area returns the continuous area of the box, or zero if the box is
// degenerate
func (b Box) Area() float32 {
	w, h := b.Width(), b.Height()

	if w <= 0 || h <= 0 {
		return 0
	}

	return w * h
}

// PixelArea returns the area of the box treating coordinates as inclusive
// pixel indices, ie: a box from 0 to 9 is 10 pixels wide
func (b Box) PixelArea() float32 {
	w := b.X2 - b.X1 + 1
	h := b.Y2 - b.Y1 + 1

	if w <= 0 || h <= 0 {
		return 0
	}

	return w * h
}

// Valid reports whether the box has positive continuous area
func (b Box) Valid() bool {
	return b.X2 > b.X1 && b.Y2 > b.Y1
}

// Center converts the box to center/size format
func (b Box) Center() CenterBox {
	w := b.Width()
	h := b.Height()

	return CenterBox{
		CX: b.X1 + w/2,
		CY: b.Y1 + h/2,
		W:  w,
		H:  h,
	}
}

// Clip clamps the box coordinates to the rectangle [minX,maxX] x [minY,maxY]
func (b Box) Clip(minX, minY, maxX, maxY float32) Box {
	return Box{
		X1: clampf32(b.X1, minX, maxX),
		Y1: clampf32(b.Y1, minY, maxY),
		X2: clampf32(b.X2, minX, maxX),
		Y2: clampf32(b.Y2, minY, maxY),
	}
}

// Polygon returns the four corners of the box in clockwise order starting at
// the top left corner
func (b Box) Polygon() Polygon {
	return Polygon{
		{X: b.X1, Y: b.Y1},
		{X: b.X2, Y: b.Y1},
		{X: b.X2, Y: b.Y2},
		{X: b.X1, Y: b.Y2},
	}
}

// String formats the box for display
func (b Box) String() string {
	return fmt.Sprintf("(%.2f, %.2f), (%.2f, %.2f)", b.X1, b.Y1, b.X2, b.Y2)
}

// Corners converts the center/size box to corner format
func (c CenterBox) Corners() Box {
	return Box{
		X1: c.CX - c.W/2,
		Y1: c.CY - c.H/2,
		X2: c.CX + c.W/2,
		Y2: c.CY + c.H/2,
	}
}

// Intersect returns the overlapping region of two boxes.  The result is
// degenerate (not Valid) when the boxes do not overlap
func Intersect(a, b Box) Box {
	return Box{
		X1: max(a.X1, b.X1),
		Y1: max(a.Y1, b.Y1),
		X2: min(a.X2, b.X2),
		Y2: min(a.Y2, b.Y2),
	}
}

// IoU works out the Intersection over Union of two boxes using continuous
// coordinates, as used for boxes normalized to [0,1].  Degenerate boxes and
// boxes that do not intersect have an IoU of zero
func IoU(a, b Box) float32 {

	if !a.Valid() || !b.Valid() {
		return 0
	}

	iw := min(a.X2, b.X2) - max(a.X1, b.X1)
	ih := min(a.Y2, b.Y2) - max(a.Y1, b.Y1)

	if iw <= 0 || ih <= 0 {
		return 0
	}

	intersection := iw * ih
	union := a.Area() + b.Area() - intersection

	if union <= 0 {
		return 0
	}

	return clampf32(intersection/union, 0, 1)
}

// PixelIoU works out the Intersection over Union of two boxes with inclusive
// pixel coordinates, adding 1.0 to each extent
func PixelIoU(a, b Box) float32 {

	if a.X2 < a.X1 || a.Y2 < a.Y1 || b.X2 < b.X1 || b.Y2 < b.Y1 {
		return 0
	}

	iw := min(a.X2, b.X2) - max(a.X1, b.X1) + 1
	ih := min(a.Y2, b.Y2) - max(a.Y1, b.Y1) + 1

	if iw <= 0 || ih <= 0 {
		return 0
	}

	intersection := iw * ih
	union := a.PixelArea() + b.PixelArea() - intersection

	if union <= 0 {
		return 0
	}

	return clampf32(intersection/union, 0, 1)
}

// Overlap returns IoU for normalized coordinates and PixelIoU otherwise
func Overlap(a, b Box, normalized bool) float32 {
	if normalized {
		return IoU(a, b)
	}
	return PixelIoU(a, b)
}

// clampf32 clamps a float value between a minimum and maximum value
func clampf32(x, lo, hi float32) float32 {

	if x < lo {
		return lo
	} else if x > hi {
		return hi
	}

	return x
}
