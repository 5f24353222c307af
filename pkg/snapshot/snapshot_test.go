package snapshot

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/etesami/people-counting-system/pkg/geometry"
	"github.com/etesami/people-counting-system/pkg/tracker"
	"github.com/etesami/people-counting-system/pkg/zone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Unix(1_700_000_000, 0)

func mustZone(t *testing.T, id int, name string, pts ...geometry.Point) zone.Zone {
	t.Helper()
	z, err := zone.New(id, name, pts)
	require.NoError(t, err)
	return z
}

func square(t *testing.T, id int, name string) zone.Zone {
	return mustZone(t, id, name, geometry.Point{X: 0, Y: 0}, geometry.Point{X: 100, Y: 0}, geometry.Point{X: 100, Y: 100}, geometry.Point{X: 0, Y: 100})
}

func TestBuildEmpty(t *testing.T) {
	s := Build(nil, []zone.Zone{square(t, 1, "Z1")}, nil, 640, 480, now)

	require.Equal(t, 0, s.TotalPeople)
	require.Equal(t, map[string]int{"Z1": 0}, s.Zones)
	require.Empty(t, s.Centers)
	require.Equal(t, now.Unix(), s.Timestamp)

	b, err := json.Marshal(s)
	require.NoError(t, err)
	require.JSONEq(t, `{"total_people":0,"zones":{"Z1":0},"zone_kinds":{"Z1":"polygon"},"centers":[],"timestamp":1700000000}`, string(b))
}

func TestBuildMixedZones(t *testing.T) {
	tracks := []tracker.Track{
		{ID: 1, Box: geometry.Box{X1: 10, Y1: 10, X2: 30, Y2: 50}},
		{ID: 2, Box: geometry.Box{X1: 200, Y1: 200, X2: 240, Y2: 280}},
	}
	zones := []zone.Zone{
		square(t, 1, "lobby"),
		mustZone(t, 2, "door", geometry.Point{X: 150, Y: 0}, geometry.Point{X: 150, Y: 480}),
		mustZone(t, 3, "exit", geometry.Point{X: 400, Y: 0}, geometry.Point{X: 400, Y: 480}),
	}

	s := Build(tracks, zones, map[int]int{2: 5}, 400, 400, now)

	assert.Equal(t, 2, s.TotalPeople)
	assert.Equal(t, map[string]int{"lobby": 1, "door": 5, "exit": 0}, s.Zones)
	assert.Equal(t, map[string]string{"lobby": "polygon", "door": "line", "exit": "line"}, s.ZoneKinds)
	require.Len(t, s.Centers, 2)
	assert.InDelta(t, 20.0/400, s.Centers[0].X, 1e-12)
	assert.InDelta(t, 30.0/400, s.Centers[0].Y, 1e-12)
	assert.InDelta(t, 220.0/400, s.Centers[1].X, 1e-12)
}

func TestBuildUnknownFrameSize(t *testing.T) {
	tracks := []tracker.Track{{ID: 1, Box: geometry.Box{X1: 0, Y1: 0, X2: 10, Y2: 20}}}
	s := Build(tracks, nil, nil, 0, 0, now)
	require.Equal(t, []Center{{X: 5, Y: 10}}, s.Centers)
	require.Empty(t, s.Zones)
}

func TestBuildReturnsFreshValues(t *testing.T) {
	zones := []zone.Zone{mustZone(t, 1, "door", geometry.Point{X: 0, Y: 0}, geometry.Point{X: 0, Y: 10})}
	counts := map[int]int{1: 3}

	a := Build(nil, zones, counts, 1, 1, now)
	a.Zones["door"] = 100
	counts[1] = 4

	b := Build(nil, zones, counts, 1, 1, now)
	require.Equal(t, 4, b.Zones["door"])
}

func TestStateLoadBeforePublish(t *testing.T) {
	var st State
	v := st.Load()
	require.NotNil(t, v)
	require.Empty(t, v.Tracks)

	s := st.Snapshot(now)
	require.Equal(t, 0, s.TotalPeople)
	require.NotNil(t, s.Centers)
}

func TestStatePublish(t *testing.T) {
	var st State
	st.Publish(&View{
		FrameID:     9,
		Tracks:      []tracker.Track{{ID: 4, Box: geometry.Box{X1: 0, Y1: 0, X2: 10, Y2: 10}}},
		LineCounts:  map[int]int{2: 1},
		Zones:       []zone.Zone{square(t, 1, "Z1"), mustZone(t, 2, "L", geometry.Point{X: 0, Y: 0}, geometry.Point{X: 0, Y: 9})},
		FrameWidth:  100,
		FrameHeight: 100,
	})

	s := st.Snapshot(now)
	require.Equal(t, 1, s.TotalPeople)
	require.Equal(t, map[string]int{"Z1": 1, "L": 1}, s.Zones)
	require.Equal(t, int64(9), st.Load().FrameID)
}

func TestStateConcurrentReaders(t *testing.T) {
	var st State
	zones := []zone.Zone{square(t, 1, "Z1")}
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 500; i++ {
			tracks := make([]tracker.Track, i%5)
			for j := range tracks {
				tracks[j] = tracker.Track{ID: j + 1, Box: geometry.Box{X1: 1, Y1: 1, X2: 9, Y2: 9}}
			}
			st.Publish(&View{FrameID: int64(i), Tracks: tracks, Zones: zones, FrameWidth: 10, FrameHeight: 10})
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				s := st.Snapshot(now)
				// every track sits inside Z1, so a torn read would disagree
				if s.TotalPeople != s.Zones["Z1"] && len(s.Zones) > 0 {
					t.Errorf("inconsistent snapshot: %+v", s)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestHistoryRing(t *testing.T) {
	h := NewHistory(3)
	_, ok := h.Latest()
	require.False(t, ok)

	for i := int64(1); i <= 5; i++ {
		h.Push(Snapshot{TotalPeople: int(i), Timestamp: i})
	}
	require.Equal(t, 3, h.Len())

	latest, ok := h.Latest()
	require.True(t, ok)
	require.Equal(t, int64(5), latest.Timestamp)

	rows := h.Since(0)
	require.Len(t, rows, 3)
	require.Equal(t, []int64{3, 4, 5}, []int64{rows[0].Timestamp, rows[1].Timestamp, rows[2].Timestamp})

	require.Len(t, h.Since(4), 2)
	require.Empty(t, h.Since(6))
}

func TestHistoryDefaultCapacity(t *testing.T) {
	h := NewHistory(0)
	require.Len(t, h.buf, DefaultHistorySize)
}

func TestSummarize(t *testing.T) {
	require.Equal(t, Summary{Zones: map[string]ZoneSummary{}}, Summarize(nil))

	rows := []Snapshot{
		{TotalPeople: 1, Zones: map[string]int{"A": 1}, Timestamp: 10},
		{TotalPeople: 2, Zones: map[string]int{"A": 0, "B": 4}, Timestamp: 11},
		{TotalPeople: 4, Zones: map[string]int{"A": 2}, Timestamp: 12},
	}
	s := Summarize(rows)

	assert.Equal(t, 3, s.Samples)
	assert.Equal(t, int64(10), s.From)
	assert.Equal(t, int64(12), s.To)
	assert.Equal(t, 2.33, s.AveragePeople)
	assert.Equal(t, 4, s.PeakPeople)
	assert.Equal(t, ZoneSummary{Average: 1, Peak: 2}, s.Zones["A"])
	assert.Equal(t, ZoneSummary{Average: 1.33, Peak: 4}, s.Zones["B"])
}
