// Package snapshot combines tracker output and zone counts into the
// point-in-time view read by streaming endpoints and the metrics history.
package snapshot

import (
	"time"

	"github.com/etesami/people-counting-system/pkg/counter"
	"github.com/etesami/people-counting-system/pkg/geometry"
	"github.com/etesami/people-counting-system/pkg/tracker"
	"github.com/etesami/people-counting-system/pkg/zone"
)

// Center is a track centroid normalized to the frame size.
type Center struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Snapshot is one consistent, timestamped aggregation. Zone values are
// occupancy for polygon zones and cumulative crossings for line zones;
// ZoneKinds says which.
type Snapshot struct {
	TotalPeople int               `json:"total_people"`
	Zones       map[string]int    `json:"zones"`
	ZoneKinds   map[string]string `json:"zone_kinds,omitempty"`
	Centers     []Center          `json:"centers"`
	Timestamp   int64             `json:"timestamp"`
}

// Build aggregates one snapshot. lineCounts is keyed by zone id; lines that
// were never observed report 0.
func Build(tracks []tracker.Track, zones []zone.Zone, lineCounts map[int]int, frameWidth, frameHeight int, now time.Time) Snapshot {
	s := Snapshot{
		TotalPeople: len(tracks),
		Zones:       make(map[string]int, len(zones)),
		ZoneKinds:   make(map[string]string, len(zones)),
		Centers:     make([]Center, 0, len(tracks)),
		Timestamp:   now.Unix(),
	}

	for _, z := range zones {
		switch shape := z.Shape.(type) {
		case zone.Polygon:
			s.Zones[z.Name] = counter.UniqueIDsInZone(shape, tracks)
		case zone.Line:
			s.Zones[z.Name] = lineCounts[z.ID]
		default:
			continue
		}
		s.ZoneKinds[z.Name] = z.Kind().String()
	}

	for _, tr := range tracks {
		c := geometry.Normalize(tr.Box.Centroid(), frameWidth, frameHeight)
		s.Centers = append(s.Centers, Center{X: c.X, Y: c.Y})
	}

	return s
}
