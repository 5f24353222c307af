// Package tracker assigns stable integer identities to per-frame person
// detections with a greedy IoU match.
//
// Matching is frame-local and first-candidate-wins: each detection, in input
// order, takes the unused known track with the highest IoU, ties going to the
// lowest id. There is no motion model and no re-identification.
package tracker

import (
	"fmt"

	"github.com/etesami/people-counting-system/pkg/geometry"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	// IoUThreshold is the minimum overlap for a detection to keep a track's id.
	IoUThreshold float64 `validate:"gt=0,lte=1"`
	// MaxAge is the number of consecutive unmatched frames a track survives.
	MaxAge int `validate:"gte=0"`
}

var BaseConfig = Config{
	IoUThreshold: 0.35,
	MaxAge:       12,
}

var validate = validator.New()

// Validate checks the config ranges.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid tracker config: %w", err)
	}
	return nil
}

// Detection is one person box reported by the detector for a frame.
type Detection struct {
	Box        geometry.Box
	Confidence float64
}

// Track is an identity-stamped box returned by Update.
type Track struct {
	Box        geometry.Box
	ID         int
	Confidence float64
}

type track struct {
	id         int
	box        geometry.Box
	age        int
	confidence float64
}

// Tracker owns the track pool. It is single-writer: Update must not be called
// concurrently.
type Tracker struct {
	Config
	tracksPool map[int]*track
	// ids of live tracks in ascending order; ids are allocated monotonically
	// so appending keeps it sorted.
	order  []int
	nextID int
}

func New(config Config) *Tracker {
	return &Tracker{
		Config:     config,
		tracksPool: make(map[int]*track),
		nextID:     1,
	}
}

// Update consumes one frame of detections and returns one track per detection,
// in detection order.
func (t *Tracker) Update(dets []Detection) []Track {
	for _, id := range t.order {
		t.tracksPool[id].age++
	}

	used := make(map[int]struct{}, len(dets))
	out := make([]Track, 0, len(dets))

	for _, det := range dets {
		bestID, bestIoU := 0, 0.0
		for _, id := range t.order {
			if _, ok := used[id]; ok {
				continue
			}
			if iou := geometry.IoU(det.Box, t.tracksPool[id].box); iou > bestIoU {
				bestID, bestIoU = id, iou
			}
		}

		if bestID != 0 && bestIoU >= t.IoUThreshold {
			tr := t.tracksPool[bestID]
			tr.box = det.Box
			tr.age = 0
			tr.confidence = det.Confidence
			used[bestID] = struct{}{}
			out = append(out, Track{Box: det.Box, ID: bestID, Confidence: det.Confidence})
			continue
		}

		id := t.nextID
		t.nextID++
		t.tracksPool[id] = &track{id: id, box: det.Box, confidence: det.Confidence}
		t.order = append(t.order, id)
		used[id] = struct{}{}
		out = append(out, Track{Box: det.Box, ID: id, Confidence: det.Confidence})
	}

	t.prune()

	return out
}

func (t *Tracker) prune() {
	kept := t.order[:0]
	for _, id := range t.order {
		if t.tracksPool[id].age > t.MaxAge {
			delete(t.tracksPool, id)
			continue
		}
		kept = append(kept, id)
	}
	t.order = kept
}

// Len returns the number of tracks still held, matched or not.
func (t *Tracker) Len() int {
	return len(t.order)
}

// Created returns how many ids have been allocated so far.
func (t *Tracker) Created() int {
	return t.nextID - 1
}

// Age returns the age of a live track and whether it exists.
func (t *Tracker) Age(id int) (int, bool) {
	tr, ok := t.tracksPool[id]
	if !ok {
		return 0, false
	}
	return tr.age, true
}
