package geometry

import (
	"math"

	clipper "github.com/ctessum/go.clipper"
)

// clipRange is the integer extent the larger side of a pair of polygons is
// scaled to before clipping.  It is kept well inside the clipper low range so
// that cross products never overflow
const clipRange = 1 << 20

// clipFrame maps float coordinates onto the integer grid used by the clipper
type clipFrame struct {
	originX, originY float64
	scale            float64
}

// newClipFrame returns a frame covering the combined bounds of both polygons
func newClipFrame(a, b Polygon) clipFrame {

	ba := a.Bounds()
	bb := b.Bounds()

	minX := float64(min(ba.X1, bb.X1))
	minY := float64(min(ba.Y1, bb.Y1))
	extent := math.Max(float64(max(ba.X2, bb.X2))-minX, float64(max(ba.Y2, bb.Y2))-minY)

	scale := 1.0
	if extent > 0 {
		scale = clipRange / extent
	}

	return clipFrame{originX: minX, originY: minY, scale: scale}
}

// toPath converts a polygon into a clipper integer path
func (f clipFrame) toPath(p Polygon) clipper.Path {

	path := make(clipper.Path, 0, len(p))

	for _, pt := range p {
		path = append(path, &clipper.IntPoint{
			X: clipper.CInt(math.Round((float64(pt.X) - f.originX) * f.scale)),
			Y: clipper.CInt(math.Round((float64(pt.Y) - f.originY) * f.scale)),
		})
	}

	return path
}

// fromPath converts a clipper integer path back into a polygon
func (f clipFrame) fromPath(path clipper.Path) Polygon {

	p := make(Polygon, 0, len(path))

	for _, pt := range path {
		p = append(p, Point{
			X: float32(float64(pt.X)/f.scale + f.originX),
			Y: float32(float64(pt.Y)/f.scale + f.originY),
		})
	}

	return p
}

// pathArea returns the signed shoelace area of an integer path in the
// frames float coordinate units
func (f clipFrame) pathArea(path clipper.Path) float64 {

	if len(path) < 3 {
		return 0
	}

	var sum float64

	for i := range path {
		j := (i + 1) % len(path)
		sum += float64(path[i].X)*float64(path[j].Y) - float64(path[j].X)*float64(path[i].Y)
	}

	return sum / 2 / (f.scale * f.scale)
}

// clipIntersection runs the clipper boolean intersection of subject and clip
// using the even-odd fill rule, which supports non-convex and self
// intersecting input
func clipIntersection(f clipFrame, subject, clip Polygon) clipper.Paths {

	c := clipper.NewClipper(0)
	c.AddPath(f.toPath(subject), clipper.PtSubject, true)
	c.AddPath(f.toPath(clip), clipper.PtClip, true)

	solution, ok := c.Execute1(clipper.CtIntersection, clipper.PftEvenOdd, clipper.PftEvenOdd)

	if !ok {
		return nil
	}

	return solution
}

// PolygonIntersection returns the polygons making up the intersection of a
// and b.  The result may be empty, a single polygon or several disjoint
// polygons.  Holes are returned with the opposite winding to outer rings
func PolygonIntersection(a, b Polygon) []Polygon {

	if len(a) < 3 || len(b) < 3 {
		return nil
	}

	f := newClipFrame(a, b)
	solution := clipIntersection(f, a, b)

	out := make([]Polygon, 0, len(solution))

	for _, path := range solution {
		if len(path) < 3 {
			continue
		}
		out = append(out, f.fromPath(path))
	}

	return out
}

// PolygonIntersectionArea returns the total area of the intersection of a and
// b, with holes subtracted
func PolygonIntersectionArea(a, b Polygon) float32 {

	if len(a) < 3 || len(b) < 3 {
		return 0
	}

	// cheap rejection when the bounding boxes do not touch
	if !Intersect(a.Bounds(), b.Bounds()).Valid() {
		return 0
	}

	f := newClipFrame(a, b)

	var total float64

	for _, path := range clipIntersection(f, a, b) {
		total += f.pathArea(path)
	}

	total = math.Abs(total)

	// clipping can leave slivers along shared edges
	if total <= Epsilon*float64(max(a.Bounds().Area(), b.Bounds().Area())) {
		return 0
	}

	return float32(total)
}

// PolygonIoU works out the Intersection over Union of two polygons.  Polygons
// with fewer than three vertices or zero area have an IoU of zero
func PolygonIoU(a, b Polygon) float32 {

	areaA := a.Area()
	areaB := b.Area()

	if areaA <= 0 || areaB <= 0 {
		return 0
	}

	inter := PolygonIntersectionArea(a, b)

	if inter <= 0 {
		return 0
	}

	// clipping artifacts can leave the intersection marginally larger than
	// the smaller input
	inter = min(inter, areaA, areaB)

	union := areaA + areaB - inter

	if union <= 0 {
		return 0
	}

	return clampf32(inter/union, 0, 1)
}
