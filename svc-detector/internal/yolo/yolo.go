// Package yolo decodes raw YOLOv8 detection output.
package yolo

import (
	"fmt"
	"image"

	api "github.com/etesami/people-counting-system/api"
)

// PersonClass is the COCO class index of "person".
const PersonClass = 0

// Candidate is one box above the score threshold, in network input pixels.
type Candidate struct {
	Box   image.Rectangle
	Score float32
}

// Decode reads a YOLOv8 output laid out as [1, 4+classes, anchors] and keeps
// the anchors whose score for class is above minScore. Rows 0..3 hold the
// box center, width and height.
func Decode(data []float32, channels, anchors, class int, minScore float32) ([]Candidate, error) {
	if channels < 5 || anchors <= 0 {
		return nil, fmt.Errorf("unexpected output shape [1, %d, %d]", channels, anchors)
	}
	if class < 0 || 4+class >= channels {
		return nil, fmt.Errorf("class %d out of range for %d channels", class, channels)
	}
	if len(data) < channels*anchors {
		return nil, fmt.Errorf("output has %d values, want %d", len(data), channels*anchors)
	}

	at := func(c, i int) float32 { return data[c*anchors+i] }

	var out []Candidate
	for i := 0; i < anchors; i++ {
		score := at(4+class, i)
		if score <= minScore {
			continue
		}
		cx, cy, w, h := at(0, i), at(1, i), at(2, i), at(3, i)
		out = append(out, Candidate{
			Box:   image.Rect(int(cx-w/2), int(cy-h/2), int(cx+w/2), int(cy+h/2)),
			Score: score,
		})
	}
	return out, nil
}

// Split returns the boxes and scores of candidates, in the form NMS expects.
func Split(cands []Candidate) ([]image.Rectangle, []float32) {
	boxes := make([]image.Rectangle, len(cands))
	scores := make([]float32, len(cands))
	for i, c := range cands {
		boxes[i] = c.Box
		scores[i] = c.Score
	}
	return boxes, scores
}

// ToDetections keeps the boxes picked by NMS, clipped to the frame. Boxes
// left empty by clipping are dropped.
func ToDetections(boxes []image.Rectangle, scores []float32, keep []int, frame image.Rectangle) []api.Detection {
	out := make([]api.Detection, 0, len(keep))
	for _, idx := range keep {
		if idx < 0 || idx >= len(boxes) {
			continue
		}
		b := boxes[idx].Intersect(frame)
		if b.Empty() {
			continue
		}
		out = append(out, api.Detection{
			X1:         b.Min.X,
			Y1:         b.Min.Y,
			X2:         b.Max.X,
			Y2:         b.Max.Y,
			Confidence: float64(scores[idx]),
		})
	}
	return out
}
