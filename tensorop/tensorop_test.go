package tensorop

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-detkit"
	"github.com/swdee/go-detkit/anchor"
	"github.com/swdee/go-detkit/coder"
	"github.com/swdee/go-detkit/geometry"
	"github.com/swdee/go-detkit/matcher"
	"github.com/swdee/go-detkit/nms"
	"gorgonia.org/tensor"
)

// dense returns a float32 tensor of the given shape
func dense(data []float32, shape ...int) *tensor.Dense {
	return tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(shape...),
		tensor.WithBacking(data),
	)
}

func TestIoUSimilarity(t *testing.T) {

	x := dense([]float32{
		0, 0, 10, 10,
		5, 0, 15, 10,
	}, 2, 4)

	y := dense([]float32{0, 0, 10, 10}, 1, 4)

	out, err := IoUSimilarity(x, y, true)
	require.NoError(t, err)

	assert.Equal(t, tensor.Shape{2, 1}, out.Shape())
	assert.InDeltaSlice(t, []float32{1, 50.0 / 150}, out.Data().([]float32), 1e-6)
}

func TestShapeValidation(t *testing.T) {

	good := dense([]float32{0, 0, 1, 1}, 1, 4)

	tests := []struct {
		name string
		x    *tensor.Dense
	}{
		{"nil", nil},
		{"three columns", dense([]float32{0, 0, 1, 1, 2, 2}, 2, 3)},
		{"rank three", dense([]float32{0, 0, 1, 1}, 1, 1, 4)},
		{"rank one", dense([]float32{0, 0, 1, 1}, 4)},
		{"float64", tensor.New(
			tensor.Of(tensor.Float64),
			tensor.WithShape(1, 4),
			tensor.WithBacking([]float64{0, 0, 1, 1}),
		)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := IoUSimilarity(tt.x, good, true)
			assert.True(t, errors.Is(err, detkit.ErrShapeMismatch), "got %v", err)

			_, _, err = BoxDecode(tt.x, nil, good, coder.DefaultParams())
			assert.True(t, errors.Is(err, detkit.ErrShapeMismatch), "got %v", err)
		})
	}
}

func TestBoxEncodeDecodeRoundTrip(t *testing.T) {

	priors := dense([]float32{
		0.1, 0.1, 0.3, 0.4,
		0.5, 0.5, 0.9, 0.7,
		// degenerate
		0.2, 0.2, 0.2, 0.2,
	}, 3, 4)

	targets := dense([]float32{
		0.12, 0.08, 0.35, 0.38,
		0.4, 0.45, 0.95, 0.8,
		0.1, 0.1, 0.2, 0.2,
	}, 3, 4)

	p := coder.SSDParams()

	deltas, valid, err := BoxEncode(priors, nil, targets, p)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, false}, valid)
	assert.Equal(t, tensor.Shape{3, 4}, deltas.Shape())

	decoded, valid, err := BoxDecode(priors, nil, deltas, p)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, false}, valid)

	want := targets.Data().([]float32)
	got := decoded.Data().([]float32)

	assert.InDeltaSlice(t, want[:8], got[:8], 1e-5)
	assert.Equal(t, []float32{0, 0, 0, 0}, got[8:])
}

func TestBoxDecodeVariances(t *testing.T) {

	priors := dense([]float32{0.2, 0.2, 0.4, 0.4}, 1, 4)
	deltas := dense([]float32{1, 0, 0, 0}, 1, 4)

	out, _, err := BoxDecode(priors, dense([]float32{0.5, 1, 1, 1}, 1, 4), deltas, coder.DefaultParams())
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.3, 0.2, 0.5, 0.4}, out.Data().([]float32), 1e-6)

	_, _, err = BoxDecode(priors, dense([]float32{0, 1, 1, 1}, 1, 4), deltas, coder.DefaultParams())
	assert.True(t, errors.Is(err, detkit.ErrConfiguration))

	_, _, err = BoxDecode(priors, dense([]float32{1, 1, 1, 1, 1, 1, 1, 1}, 2, 4), deltas, coder.DefaultParams())
	assert.True(t, errors.Is(err, detkit.ErrShapeMismatch))

	_, _, err = BoxDecode(priors, nil, dense([]float32{0, 0, 0, 0, 0, 0, 0, 0}, 2, 4), coder.DefaultParams())
	assert.True(t, errors.Is(err, detkit.ErrShapeMismatch))
}

func TestPriorBox(t *testing.T) {

	p := anchor.SSDPriorParams()

	boxes, variances, err := PriorBox(2, 3, 300, 300, p)
	require.NoError(t, err)

	g, err := anchor.Priors(2, 3, 300, 300, p)
	require.NoError(t, err)

	assert.Equal(t, tensor.Shape{2, 3, g.PerCell, 4}, boxes.Shape())
	assert.Equal(t, tensor.Shape{2, 3, g.PerCell, 4}, variances.Shape())

	data := boxes.Data().([]float32)
	for i, b := range g.Boxes {
		assert.Equal(t, []float32{b.X1, b.Y1, b.X2, b.Y2}, data[i*4:i*4+4])
	}

	vars := variances.Data().([]float32)
	assert.Equal(t, []float32{0.1, 0.1, 0.2, 0.2}, vars[len(vars)-4:])

	_, _, err = PriorBox(0, 3, 300, 300, p)
	assert.True(t, errors.Is(err, detkit.ErrConfiguration))
}

func TestBipartiteMatch(t *testing.T) {

	dist := dense([]float32{
		0.9, 0.1,
		0.2, 0.8,
		0.3, 0.05,
	}, 3, 2)

	indices, overlaps, err := BipartiteMatch(dist, matcher.DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, -1}, indices.Data().([]int))
	assert.InDeltaSlice(t, []float32{0.9, 0.8, 0.3}, overlaps.Data().([]float32), 1e-7)

	p := matcher.DefaultParams()
	p.PositiveThreshold = 2

	_, _, err = BipartiteMatch(dist, p)
	assert.True(t, errors.Is(err, detkit.ErrConfiguration))
}

func TestMultiClassNMS(t *testing.T) {

	bboxes := FromBoxes([]geometry.Box{
		geometry.NewBox(0, 0, 10, 10),
		geometry.NewBox(0, 0, 10, 10),
		geometry.NewBox(20, 20, 30, 30),
	})

	scores := dense([]float32{
		0.9, 0.8, 0.1,
		0.2, 0.3, 0.7,
	}, 2, 3)

	mp := nms.DefaultMultiClassParams()
	mp.ScoreThreshold = 0.15

	out, err := MultiClassNMS(bboxes, scores, true, mp)
	require.NoError(t, err)

	assert.Equal(t, tensor.Shape{3, 6}, out.Shape())
	assert.Equal(t, []float32{
		0, 0.9, 0, 0, 10, 10,
		1, 0.7, 20, 20, 30, 30,
		1, 0.3, 0, 0, 10, 10,
	}, out.Data().([]float32))

	// nothing detected
	mp.ScoreThreshold = 0.95
	out, err = MultiClassNMS(bboxes, scores, true, mp)
	require.NoError(t, err)
	assert.Nil(t, out)

	// scores must have one column per box
	_, err = MultiClassNMS(bboxes, dense([]float32{0.1, 0.2}, 1, 2), true, mp)
	assert.True(t, errors.Is(err, detkit.ErrShapeMismatch))
}

func TestBoxesRoundTrip(t *testing.T) {

	in := []geometry.Box{
		geometry.NewBox(1, 2, 3, 4),
		geometry.NewBox(5, 6, 7, 8),
	}

	out, err := Boxes(FromBoxes(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	assert.Nil(t, FromBoxes(nil))
}
