package snapshot

import (
	"sync/atomic"
	"time"

	"github.com/etesami/people-counting-system/pkg/tracker"
	"github.com/etesami/people-counting-system/pkg/zone"
)

// View is the latest completed frame as published by the frame loop.
// A published View must not be modified.
type View struct {
	SourceID    string
	FrameID     int64
	Tracks      []tracker.Track
	LineCounts  map[int]int
	Zones       []zone.Zone
	FrameWidth  int
	FrameHeight int
	UpdatedAt   time.Time
}

var emptyView = &View{}

// State hands the frame loop's views to readers. Publish swaps a pointer and
// Load never blocks, so readers always get a whole view, possibly a stale one.
type State struct {
	v atomic.Pointer[View]
}

// Publish makes v the current view.
func (s *State) Publish(v *View) {
	s.v.Store(v)
}

// Load returns the current view, or an empty one before the first Publish.
func (s *State) Load() *View {
	if v := s.v.Load(); v != nil {
		return v
	}
	return emptyView
}

// Snapshot builds a fresh snapshot from a single loaded view.
func (s *State) Snapshot(now time.Time) Snapshot {
	v := s.Load()
	return Build(v.Tracks, v.Zones, v.LineCounts, v.FrameWidth, v.FrameHeight, now)
}
