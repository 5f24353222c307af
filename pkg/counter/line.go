// Package counter turns tracker output into per-zone counts.
//
// Line zones accumulate crossings across frames in a LineCounter. Polygon
// zones are counted afresh on every call by UniqueIDsInZone.
package counter

import (
	"maps"

	"github.com/etesami/people-counting-system/pkg/geometry"
	"github.com/etesami/people-counting-system/pkg/tracker"
	"github.com/etesami/people-counting-system/pkg/zone"
)

// LineCounter keeps the last centroid of every track and a monotonic crossing
// counter per line zone id. It is driven by the frame loop only and is not
// safe for concurrent use; publish Counts() to readers instead.
type LineCounter struct {
	prev   map[int]geometry.PointF
	counts map[int]int
}

func NewLineCounter() *LineCounter {
	return &LineCounter{
		prev:   make(map[int]geometry.PointF),
		counts: make(map[int]int),
	}
}

// Crossed reports a strict side change of a track centroid relative to the
// line. Positions exactly on the line never count.
func Crossed(l zone.Line, prev, now geometry.PointF) bool {
	return geometry.SignedSide(l.A, l.B, prev)*geometry.SignedSide(l.A, l.B, now) < 0
}

// Update counts crossings between the previous tick and this one, then
// replaces the previous centroids with the current ones. It returns the
// number of crossings added per zone id in this tick.
func (c *LineCounter) Update(tracks []tracker.Track, zones []zone.Zone) map[int]int {
	now := make(map[int]geometry.PointF, len(tracks))
	for _, tr := range tracks {
		now[tr.ID] = tr.Box.Centroid()
	}

	added := make(map[int]int)
	for _, z := range zones {
		line, ok := z.Shape.(zone.Line)
		if !ok {
			continue
		}
		if _, seen := c.counts[z.ID]; !seen {
			c.counts[z.ID] = 0
		}
		for id, p := range now {
			prev, ok := c.prev[id]
			if !ok {
				continue
			}
			if Crossed(line, prev, p) {
				c.counts[z.ID]++
				added[z.ID]++
			}
		}
	}

	c.prev = now
	return added
}

// Count returns the cumulative crossings of a line zone, 0 if never seen.
func (c *LineCounter) Count(zoneID int) int {
	return c.counts[zoneID]
}

// Counts returns a copy of all counters.
func (c *LineCounter) Counts() map[int]int {
	return maps.Clone(c.counts)
}
