package yolo

import (
	"image"
	"testing"

	api "github.com/etesami/people-counting-system/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// output builds a [1, 4+classes, anchors] tensor from per-anchor rows.
func output(classes int, rows ...[]float32) []float32 {
	channels := 4 + classes
	data := make([]float32, channels*len(rows))
	for i, r := range rows {
		for c := 0; c < channels; c++ {
			data[c*len(rows)+i] = r[c]
		}
	}
	return data
}

func TestDecodeKeepsPersons(t *testing.T) {
	data := output(2,
		[]float32{50, 50, 20, 40, 0.9, 0.1},
		[]float32{100, 100, 10, 10, 0.3, 0.95},
		[]float32{200, 120, 40, 80, 0.51, 0},
	)
	cands, err := Decode(data, 6, 3, PersonClass, 0.5)
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, image.Rect(40, 30, 60, 70), cands[0].Box)
	assert.Equal(t, float32(0.9), cands[0].Score)
	assert.Equal(t, image.Rect(180, 80, 220, 160), cands[1].Box)

	other, err := Decode(data, 6, 3, 1, 0.5)
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, image.Rect(95, 95, 105, 105), other[0].Box)
}

func TestDecodeRejectsBadShapes(t *testing.T) {
	_, err := Decode(make([]float32, 10), 4, 2, 0, 0.5)
	require.Error(t, err)
	_, err = Decode(make([]float32, 10), 5, 3, 0, 0.5)
	require.Error(t, err)
	_, err = Decode(make([]float32, 12), 6, 2, 2, 0.5)
	require.Error(t, err)
}

func TestToDetections(t *testing.T) {
	cands := []Candidate{
		{Box: image.Rect(-10, 5, 30, 50), Score: 0.8},
		{Box: image.Rect(0, 0, 10, 10), Score: 0.6},
		{Box: image.Rect(700, 10, 720, 40), Score: 0.7},
	}
	boxes, scores := Split(cands)
	dets := ToDetections(boxes, scores, []int{0, 2, 9}, image.Rect(0, 0, 640, 480))

	require.Len(t, dets, 1)
	assert.Equal(t, api.Detection{X1: 0, Y1: 5, X2: 30, Y2: 50, Confidence: float64(float32(0.8))}, dets[0])
}
