package counter

import (
	"testing"

	"github.com/etesami/people-counting-system/pkg/geometry"
	"github.com/etesami/people-counting-system/pkg/tracker"
	"github.com/etesami/people-counting-system/pkg/zone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// at returns a 2x2 box whose centroid is (cx, cy).
func at(id, cx, cy int) tracker.Track {
	return tracker.Track{ID: id, Box: geometry.Box{X1: cx - 1, Y1: cy - 1, X2: cx + 1, Y2: cy + 1}, Confidence: 0.9}
}

func mustZone(t *testing.T, id int, name string, pts ...geometry.Point) zone.Zone {
	t.Helper()
	z, err := zone.New(id, name, pts)
	require.NoError(t, err)
	return z
}

func TestLineCounterCountsFlip(t *testing.T) {
	line := mustZone(t, 7, "door", geometry.Point{X: 0, Y: 0}, geometry.Point{X: 0, Y: 100})
	zones := []zone.Zone{line}
	c := NewLineCounter()

	c.Update([]tracker.Track{at(1, -1, 50)}, zones)
	require.Equal(t, 0, c.Count(7))

	added := c.Update([]tracker.Track{at(1, 1, 50)}, zones)
	require.Equal(t, 1, c.Count(7))
	require.Equal(t, map[int]int{7: 1}, added)

	// same side, no crossing
	c.Update([]tracker.Track{at(1, 1, 60)}, zones)
	require.Equal(t, 1, c.Count(7))

	// back across counts again; counters are not directional
	c.Update([]tracker.Track{at(1, -3, 60)}, zones)
	require.Equal(t, 2, c.Count(7))
}

func TestLineCounterOnLineIsNotAFlip(t *testing.T) {
	zones := []zone.Zone{mustZone(t, 1, "door", geometry.Point{X: 0, Y: 0}, geometry.Point{X: 0, Y: 100})}
	c := NewLineCounter()

	c.Update([]tracker.Track{at(1, -1, 50)}, zones)
	c.Update([]tracker.Track{at(1, 0, 50)}, zones)
	c.Update([]tracker.Track{at(1, 1, 50)}, zones)
	require.Equal(t, 0, c.Count(1))
}

func TestLineCounterFirstTickNeverCounts(t *testing.T) {
	zones := []zone.Zone{mustZone(t, 1, "door", geometry.Point{X: 0, Y: 0}, geometry.Point{X: 0, Y: 100})}
	c := NewLineCounter()

	c.Update([]tracker.Track{at(1, -1, 50)}, zones)
	// track 2 appears already on the other side
	c.Update([]tracker.Track{at(2, 1, 50)}, zones)
	require.Equal(t, 0, c.Count(1))
}

func TestLineCounterHistoryReplacedNotMerged(t *testing.T) {
	zones := []zone.Zone{mustZone(t, 1, "door", geometry.Point{X: 0, Y: 0}, geometry.Point{X: 0, Y: 100})}
	c := NewLineCounter()

	c.Update([]tracker.Track{at(1, -1, 50)}, zones)
	c.Update(nil, zones)
	c.Update([]tracker.Track{at(1, 1, 50)}, zones)
	require.Equal(t, 0, c.Count(1))
}

func TestLineCounterLazyInitAndNeverReset(t *testing.T) {
	door := mustZone(t, 1, "door", geometry.Point{X: 0, Y: 0}, geometry.Point{X: 0, Y: 100})
	lobby := mustZone(t, 2, "lobby", geometry.Point{X: 0, Y: 0}, geometry.Point{X: 10, Y: 0}, geometry.Point{X: 10, Y: 10})
	c := NewLineCounter()

	require.Empty(t, c.Counts())
	c.Update(nil, []zone.Zone{door, lobby})
	require.Equal(t, map[int]int{1: 0}, c.Counts())

	c.Update([]tracker.Track{at(1, -1, 50)}, []zone.Zone{door})
	c.Update([]tracker.Track{at(1, 1, 50)}, []zone.Zone{door})
	// the zone disappearing from the list does not reset its counter
	c.Update([]tracker.Track{at(1, -1, 50)}, nil)
	require.Equal(t, 1, c.Count(1))

	counts := c.Counts()
	counts[1] = 100
	assert.Equal(t, 1, c.Count(1))
}

func TestLineCounterMultipleTracksAndLines(t *testing.T) {
	vertical := mustZone(t, 1, "v", geometry.Point{X: 0, Y: 0}, geometry.Point{X: 0, Y: 100})
	horizontal := mustZone(t, 2, "h", geometry.Point{X: -50, Y: 50}, geometry.Point{X: 50, Y: 50})
	zones := []zone.Zone{vertical, horizontal}
	c := NewLineCounter()

	c.Update([]tracker.Track{at(1, -5, 40), at(2, 5, 40)}, zones)
	// 1 crosses both, 2 crosses only the horizontal one
	c.Update([]tracker.Track{at(1, 5, 60), at(2, 5, 60)}, zones)

	assert.Equal(t, 1, c.Count(1))
	assert.Equal(t, 2, c.Count(2))
	assert.Equal(t, 0, c.Count(99))
}

func TestUniqueIDsInZone(t *testing.T) {
	sq := zone.Polygon{Vertices: []geometry.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}}

	require.Equal(t, 0, UniqueIDsInZone(sq, nil))
	require.Equal(t, 1, UniqueIDsInZone(sq, []tracker.Track{at(1, 5, 5), at(2, 15, 5)}))
	require.Equal(t, 2, UniqueIDsInZone(sq, []tracker.Track{at(1, 5, 5), at(2, 3, 3)}))

	// duplicate ids count once
	require.Equal(t, 1, UniqueIDsInZone(sq, []tracker.Track{at(1, 5, 5), at(1, 6, 6)}))
	// a duplicate id outside does not hide the one inside
	require.Equal(t, 1, UniqueIDsInZone(sq, []tracker.Track{at(1, 50, 50), at(1, 6, 6)}))

	require.Equal(t, 0, UniqueIDsInZone(zone.Polygon{}, []tracker.Track{at(1, 5, 5)}))
}
