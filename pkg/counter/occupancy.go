package counter

import (
	"github.com/etesami/people-counting-system/pkg/geometry"
	"github.com/etesami/people-counting-system/pkg/tracker"
	"github.com/etesami/people-counting-system/pkg/zone"
)

// UniqueIDsInZone counts distinct track ids whose box centroid lies inside
// the polygon. Repeated ids in the input are counted once.
func UniqueIDsInZone(polygon zone.Polygon, tracks []tracker.Track) int {
	seen := make(map[int]struct{}, len(tracks))
	for _, tr := range tracks {
		if _, ok := seen[tr.ID]; ok {
			continue
		}
		if geometry.PointInPolygon(tr.Box.Centroid(), polygon.Vertices) {
			seen[tr.ID] = struct{}{}
		}
	}
	return len(seen)
}
