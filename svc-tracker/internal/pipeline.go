package internal

import (
	"slices"
	"sync"
	"time"

	api "github.com/etesami/people-counting-system/api"
	"github.com/etesami/people-counting-system/pkg/counter"
	"github.com/etesami/people-counting-system/pkg/geometry"
	metric "github.com/etesami/people-counting-system/pkg/metric"
	"github.com/etesami/people-counting-system/pkg/snapshot"
	"github.com/etesami/people-counting-system/pkg/tracker"
	"github.com/etesami/people-counting-system/pkg/zone"
	log "github.com/sirupsen/logrus"
)

// Pipeline runs the frame loop of one video source: tracker, line counter
// and the published view. Process calls are serialized; readers go through
// the lock-free state.
type Pipeline struct {
	mu       sync.Mutex
	sourceId string
	tracker  *tracker.Tracker
	lines    *counter.LineCounter
	zones    []zone.Zone
	width    int
	height   int
	state    snapshot.State
	metric   *metric.Metric
}

func NewPipeline(sourceId string, config tracker.Config, zones []zone.Zone, m *metric.Metric) *Pipeline {
	p := &Pipeline{
		sourceId: sourceId,
		tracker:  tracker.New(config),
		lines:    counter.NewLineCounter(),
		zones:    slices.Clone(zones),
		metric:   m,
	}
	p.state.Publish(&snapshot.View{SourceID: sourceId, Zones: p.zones, LineCounts: map[int]int{}})
	return p
}

// Process runs one frame through the tracker and counters and publishes the
// resulting view. A frame without a size keeps the last known one.
func (p *Pipeline) Process(fd *api.FrameDetections) []tracker.Track {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	dets := make([]tracker.Detection, len(fd.Detections))
	for i, d := range fd.Detections {
		dets[i] = tracker.Detection{
			Box:        geometry.Box{X1: d.X1, Y1: d.Y1, X2: d.X2, Y2: d.Y2},
			Confidence: d.Confidence,
		}
	}

	created := p.tracker.Created()
	tracks := p.tracker.Update(dets)
	added := p.lines.Update(tracks, p.zones)

	if fd.Width > 0 && fd.Height > 0 {
		p.width, p.height = fd.Width, fd.Height
	}

	view := &snapshot.View{
		SourceID:    p.sourceId,
		FrameID:     fd.FrameId,
		Tracks:      tracks,
		LineCounts:  p.lines.Counts(),
		Zones:       p.zones,
		FrameWidth:  p.width,
		FrameHeight: p.height,
		UpdatedAt:   start,
	}
	p.state.Publish(view)

	if p.metric != nil {
		p.recordMetrics(view, added, p.tracker.Created()-created, time.Since(start))
	}

	for id, n := range added {
		log.WithFields(log.Fields{"source": p.sourceId, "frame": fd.FrameId, "zone": id}).Debugf("Counted %d crossing(s)", n)
	}
	return tracks
}

func (p *Pipeline) recordMetrics(view *snapshot.View, added map[int]int, created int, elapsed time.Duration) {
	p.metric.AddFrameCount("processed", 1)
	p.metric.AddProcessingTime("track", float64(elapsed)/float64(time.Millisecond))
	p.metric.SetActiveTracks(p.sourceId, len(view.Tracks))
	p.metric.AddTracksCreated(p.sourceId, created)

	s := snapshot.Build(view.Tracks, view.Zones, view.LineCounts, view.FrameWidth, view.FrameHeight, view.UpdatedAt)
	for _, z := range view.Zones {
		if n, ok := s.Zones[z.Name]; ok {
			p.metric.SetZoneCount(p.sourceId, z.Name, s.ZoneKinds[z.Name], n)
		}
		p.metric.AddCrossings(p.sourceId, z.Name, added[z.ID])
	}
}

// SetZones replaces the zone list. Line counters are keyed by zone id, so a
// line that keeps its id keeps its count. The new zones are published at once.
func (p *Pipeline) SetZones(zones []zone.Zone) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.zones = slices.Clone(zones)
	v := *p.state.Load()
	v.Zones = p.zones
	p.state.Publish(&v)
}

// Snapshot aggregates the latest published view.
func (p *Pipeline) Snapshot(now time.Time) snapshot.Snapshot {
	return p.state.Snapshot(now)
}

// FrameID returns the id of the last processed frame.
func (p *Pipeline) FrameID() int64 {
	return p.state.Load().FrameID
}
