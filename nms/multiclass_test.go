package nms

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdee/go-detkit"
	"github.com/swdee/go-detkit/geometry"
)

var multiBoxes = []geometry.Box{
	geometry.NewBox(0, 0, 10, 10),
	geometry.NewBox(1, 0, 11, 10),
	geometry.NewBox(50, 50, 60, 60),
}

var multiScores = [][]float32{
	{0.9, 0.9, 0.9},
	{0.8, 0.7, 0.1},
	{0.3, 0.95, 0.6},
}

func multiParams() MultiClassParams {
	mp := DefaultMultiClassParams()
	mp.IoUThreshold = 0.5
	mp.ScoreThreshold = 0.2
	mp.BackgroundLabel = 0
	return mp
}

func TestMultiClass(t *testing.T) {

	mp := multiParams()

	dets, err := MultiClass(multiScores, BoxOverlap(multiBoxes, true), mp)
	require.NoError(t, err)

	assert.Equal(t, []Detection{
		{Index: 0, Class: 1, Score: 0.8},
		{Index: 1, Class: 2, Score: 0.95},
		{Index: 2, Class: 2, Score: 0.6},
	}, dets)

	// without a background class, class 0 is suppressed too
	mp.BackgroundLabel = -1

	dets, err = MultiClass(multiScores, BoxOverlap(multiBoxes, true), mp)
	require.NoError(t, err)

	require.Len(t, dets, 5)
	assert.Equal(t, Detection{Index: 0, Class: 0, Score: 0.9}, dets[0])
	assert.Equal(t, Detection{Index: 2, Class: 0, Score: 0.9}, dets[1])
}

func TestMultiClassKeepTopK(t *testing.T) {

	mp := multiParams()
	mp.KeepTopK = 2

	dets, err := MultiClass(multiScores, BoxOverlap(multiBoxes, true), mp)
	require.NoError(t, err)

	assert.Equal(t, []Detection{
		{Index: 0, Class: 1, Score: 0.8},
		{Index: 1, Class: 2, Score: 0.95},
	}, dets)

	// equal scores across classes prefer the lower class
	scores := [][]float32{
		{0.5, 0},
		{0, 0.5},
	}
	mp = multiParams()
	mp.BackgroundLabel = -1
	mp.KeepTopK = 1

	dets, err = MultiClass(scores, matrixOverlap([][]float32{{1, 0}, {0, 1}}), mp)
	require.NoError(t, err)
	assert.Equal(t, []Detection{{Index: 0, Class: 0, Score: 0.5}}, dets)
}

func TestMultiClassWorkersDeterministic(t *testing.T) {

	classes := 12
	boxes := make([]geometry.Box, 40)

	for i := range boxes {
		x := float32(i%8) * 7
		y := float32(i/8) * 9
		boxes[i] = geometry.NewBox(x, y, x+15, y+15)
	}

	scores := make([][]float32, classes)

	for c := range scores {
		scores[c] = make([]float32, len(boxes))
		for i := range scores[c] {
			scores[c][i] = float32((i*31+c*17)%97) / 97
		}
	}

	mp := multiParams()
	mp.KeepTopK = 50

	mp.Workers = 1
	expected, err := MultiClass(scores, BoxOverlap(boxes, true), mp)
	require.NoError(t, err)
	require.NotEmpty(t, expected)

	for _, workers := range []int{2, 4, 16} {
		mp.Workers = workers

		for run := 0; run < 5; run++ {
			dets, err := MultiClass(scores, BoxOverlap(boxes, true), mp)
			require.NoError(t, err)
			require.Equal(t, expected, dets, "workers %d", workers)
		}
	}

	for i := 1; i < len(expected); i++ {
		assert.LessOrEqual(t, expected[i-1].Class, expected[i].Class)
	}
}

func TestByClass(t *testing.T) {

	box := geometry.NewBox(0, 0, 10, 10)
	boxes := []geometry.Box{box, box, box, box, box}
	classes := []int{1, 1, 2, -1, 0}
	scores := []float32{0.9, 0.8, 0.7, 0.99, 0.6}

	mp := multiParams()
	mp.BackgroundLabel = -1

	dets, err := ByClass(classes, scores, BoxOverlap(boxes, true), mp)
	require.NoError(t, err)

	assert.Equal(t, []Detection{
		{Index: 4, Class: 0, Score: 0.6},
		{Index: 0, Class: 1, Score: 0.9},
		{Index: 2, Class: 2, Score: 0.7},
	}, dets)

	mp.BackgroundLabel = 0
	mp.Workers = 3

	dets, err = ByClass(classes, scores, BoxOverlap(boxes, true), mp)
	require.NoError(t, err)

	assert.Equal(t, []Detection{
		{Index: 0, Class: 1, Score: 0.9},
		{Index: 2, Class: 2, Score: 0.7},
	}, dets)
}

func TestMultiClassErrors(t *testing.T) {

	_, err := MultiClass([][]float32{{1, 2}, {1}}, nil, multiParams())
	assert.True(t, errors.Is(err, detkit.ErrShapeMismatch))

	_, err = ByClass([]int{1}, []float32{1, 2}, nil, multiParams())
	assert.True(t, errors.Is(err, detkit.ErrShapeMismatch))

	mp := multiParams()
	mp.BackgroundLabel = -2

	_, err = MultiClass(nil, nil, mp)
	assert.True(t, errors.Is(err, detkit.ErrConfiguration))

	dets, err := MultiClass(nil, nil, multiParams())
	require.NoError(t, err)
	assert.Empty(t, dets)
}
