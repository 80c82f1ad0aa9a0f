package tensorop

import (
	"github.com/swdee/go-detkit"
	"github.com/swdee/go-detkit/anchor"
	"github.com/swdee/go-detkit/coder"
	"github.com/swdee/go-detkit/geometry"
	"github.com/swdee/go-detkit/matcher"
	"github.com/swdee/go-detkit/nms"
	"gorgonia.org/tensor"
)

// float32Data returns the row major float32 values of t after checking it is
// a rank 2 tensor with cols columns
func float32Data(name string, t *tensor.Dense, cols int) ([]float32, int, error) {

	if t == nil {
		return nil, 0, detkit.Shapef("%s tensor is nil", name)
	}

	if t.Dtype() != tensor.Float32 {
		return nil, 0, detkit.Shapef("%s tensor must be float32, got %v", name, t.Dtype())
	}

	shape := t.Shape()

	if shape.Dims() != 2 || (cols > 0 && shape[1] != cols) {
		if cols > 0 {
			return nil, 0, detkit.Shapef("%s tensor must have shape (N, %d), got %v", name, cols, shape)
		}
		return nil, 0, detkit.Shapef("%s tensor must be rank 2, got %v", name, shape)
	}

	if t.IsMaterializable() {
		t = t.Materialize().(*tensor.Dense)
	}

	return t.Data().([]float32), shape[0], nil
}

// boxes reads an (N, 4) tensor of corner boxes
func boxes(name string, t *tensor.Dense) ([]geometry.Box, error) {

	data, n, err := float32Data(name, t, 4)

	if err != nil {
		return nil, err
	}

	out := make([]geometry.Box, n)

	for i := range out {
		out[i] = geometry.NewBox(data[i*4], data[i*4+1], data[i*4+2], data[i*4+3])
	}

	return out, nil
}

// rows4 reads an (N, 4) tensor into fixed size rows
func rows4(name string, t *tensor.Dense) ([][4]float32, error) {

	data, n, err := float32Data(name, t, 4)

	if err != nil {
		return nil, err
	}

	out := make([][4]float32, n)

	for i := range out {
		copy(out[i][:], data[i*4:i*4+4])
	}

	return out, nil
}

// newFloat32 returns a float32 tensor backed by data, or nil when the shape
// holds no elements
func newFloat32(data []float32, shape ...int) *tensor.Dense {

	if len(data) == 0 {
		return nil
	}

	return tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(shape...),
		tensor.WithBacking(data),
	)
}

// FromBoxes returns an (N, 4) tensor of corner boxes, or nil when empty
func FromBoxes(bs []geometry.Box) *tensor.Dense {

	data := make([]float32, 0, len(bs)*4)

	for _, b := range bs {
		data = append(data, b.X1, b.Y1, b.X2, b.Y2)
	}

	return newFloat32(data, len(bs), 4)
}

// IoUSimilarity returns the (N, M) overlap of every box in x (N, 4) with
// every box in y (M, 4).  It returns nil when either input is empty
func IoUSimilarity(x, y *tensor.Dense, normalized bool) (*tensor.Dense, error) {

	xb, err := boxes("x", x)

	if err != nil {
		return nil, err
	}

	yb, err := boxes("y", y)

	if err != nil {
		return nil, err
	}

	m := geometry.BoxOverlaps(xb, yb, normalized, 1)
	data := make([]float32, 0, len(xb)*len(yb))

	for i := range xb {
		data = append(data, m.Row(i)...)
	}

	return newFloat32(data, len(xb), len(yb)), nil
}

// BoxEncode encodes each target box (N, 4) against the prior box (N, 4) in
// the same row.  priorVar is nil to use the coder variances or holds a
// variance row (N, 4) for each prior.  Rows that can not be encoded are zero
// and false in the returned validity slice
func BoxEncode(priors, priorVar, targets *tensor.Dense, p coder.Params) (*tensor.Dense, []bool, error) {
	return applyCoder(priors, priorVar, targets, p, true)
}

// BoxDecode decodes each delta row (N, 4) against the prior box (N, 4) in
// the same row.  priorVar is as for BoxEncode.  Rows that can not be decoded
// are zero and false in the returned validity slice
func BoxDecode(priors, priorVar, deltas *tensor.Dense, p coder.Params) (*tensor.Dense, []bool, error) {
	return applyCoder(priors, priorVar, deltas, p, false)
}

// applyCoder runs the encoder or decoder over every row
func applyCoder(priors, priorVar, values *tensor.Dense, p coder.Params,
	encode bool) (*tensor.Dense, []bool, error) {

	if err := p.Validate(); err != nil {
		return nil, nil, err
	}

	pb, err := boxes("prior", priors)

	if err != nil {
		return nil, nil, err
	}

	vals, err := rows4("target", values)

	if err != nil {
		return nil, nil, err
	}

	if len(vals) != len(pb) {
		return nil, nil, detkit.Shapef("%d target rows for %d priors", len(vals), len(pb))
	}

	var variances [][4]float32

	if priorVar != nil {
		if variances, err = rows4("prior variance", priorVar); err != nil {
			return nil, nil, err
		}

		if len(variances) != len(pb) {
			return nil, nil, detkit.Shapef("%d variance rows for %d priors", len(variances), len(pb))
		}
	}

	out := make([]float32, len(pb)*4)
	valid := make([]bool, len(pb))

	for i := range pb {

		cp := p

		if variances != nil {
			cp.Variances = variances[i]

			if err := cp.Validate(); err != nil {
				return nil, nil, err
			}
		}

		var row [4]float32

		if encode {
			row, err = coder.Encode(pb[i], geometry.NewBox(vals[i][0], vals[i][1], vals[i][2], vals[i][3]), cp)
		} else {
			var b geometry.Box
			b, err = coder.Decode(pb[i], vals[i], cp)
			row = [4]float32{b.X1, b.Y1, b.X2, b.Y2}
		}

		if err != nil {
			continue
		}

		copy(out[i*4:], row[:])
		valid[i] = true
	}

	return newFloat32(out, len(pb), 4), valid, nil
}

// PriorBox generates SSD prior boxes for a feature map and returns the boxes
// and variances, each of shape (featH, featW, priors per cell, 4)
func PriorBox(featH, featW, imgH, imgW int, p anchor.PriorParams) (*tensor.Dense, *tensor.Dense, error) {

	g, err := anchor.Priors(featH, featW, imgH, imgW, p)

	if err != nil {
		return nil, nil, err
	}

	data := make([]float32, 0, g.Len()*4)
	vars := make([]float32, 0, g.Len()*4)

	for _, b := range g.Boxes {
		data = append(data, b.X1, b.Y1, b.X2, b.Y2)
		vars = append(vars, g.Variances[:]...)
	}

	return newFloat32(data, featH, featW, g.PerCell, 4),
		newFloat32(vars, featH, featW, g.PerCell, 4), nil
}

// BipartiteMatch matches the rows (candidates) of an (N, M) overlap tensor
// to its columns (ground truths).  It returns an int tensor (N) holding the
// matched column of each row or -1, and a float32 tensor (N) holding the
// matched or best overlap of each row
func BipartiteMatch(dist *tensor.Dense, p matcher.Params) (*tensor.Dense, *tensor.Dense, error) {

	data, n, err := float32Data("distance", dist, 0)

	if err != nil {
		return nil, nil, err
	}

	cols := dist.Shape()[1]

	m := geometry.NewOverlapMatrix(n, cols, func(i, j int) float32 {
		return data[i*cols+j]
	}, 1)

	a, err := matcher.Match(m, p)

	if err != nil {
		return nil, nil, err
	}

	if n == 0 {
		return nil, nil, nil
	}

	indices := tensor.New(
		tensor.Of(tensor.Int),
		tensor.WithShape(n),
		tensor.WithBacking(a.CandidateToGT),
	)

	return indices, newFloat32(a.Overlaps, n), nil
}

// MultiClassNMS runs multi-class suppression over boxes (N, 4) with class
// scores (C, N).  It returns a (K, 6) tensor with one detection per row as
// [label, score, x1, y1, x2, y2], grouped by ascending label.  It returns nil
// when nothing is detected
func MultiClassNMS(bboxes, scores *tensor.Dense, normalized bool,
	mp nms.MultiClassParams) (*tensor.Dense, error) {

	bs, err := boxes("bboxes", bboxes)

	if err != nil {
		return nil, err
	}

	data, classes, err := float32Data("scores", scores, len(bs))

	if err != nil {
		return nil, err
	}

	rows := make([][]float32, classes)

	for c := range rows {
		rows[c] = data[c*len(bs) : (c+1)*len(bs)]
	}

	dets, err := nms.MultiClass(rows, nms.BoxOverlap(bs, normalized), mp)

	if err != nil {
		return nil, err
	}

	out := make([]float32, 0, len(dets)*6)

	for _, d := range dets {
		b := bs[d.Index]
		out = append(out, float32(d.Class), d.Score, b.X1, b.Y1, b.X2, b.Y2)
	}

	return newFloat32(out, len(dets), 6), nil
}

// Boxes returns the corner boxes of an (N, 4) tensor
func Boxes(t *tensor.Dense) ([]geometry.Box, error) {
	return boxes("boxes", t)
}
