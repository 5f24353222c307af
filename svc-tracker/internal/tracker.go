package internal

import (
	"context"
	"slices"
	"sync"
	"time"

	api "github.com/etesami/people-counting-system/api"
	metric "github.com/etesami/people-counting-system/pkg/metric"
	"github.com/etesami/people-counting-system/pkg/snapshot"
	"github.com/etesami/people-counting-system/pkg/tracker"
	"github.com/etesami/people-counting-system/pkg/zone"
	log "github.com/sirupsen/logrus"
)

// DefaultSource names frames that arrive without a source id.
const DefaultSource = "default"

// Server implements api.PipelineServer with one Pipeline per source.
type Server struct {
	Config tracker.Config
	Metric *metric.Metric

	mu        sync.Mutex
	zones     []zone.Zone
	pipelines sync.Map
}

func NewServer(config tracker.Config, zones []zone.Zone, m *metric.Metric) *Server {
	return &Server{
		Config: config,
		Metric: m,
		zones:  slices.Clone(zones),
	}
}

// Pipeline returns the pipeline of sourceId, creating it with the current
// zones on first use.
func (s *Server) Pipeline(sourceId string) *Pipeline {
	if p, ok := s.pipelines.Load(sourceId); ok {
		return p.(*Pipeline)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, loaded := s.pipelines.LoadOrStore(sourceId, NewPipeline(sourceId, s.Config, s.zones, s.Metric))
	if !loaded {
		log.WithField("source", sourceId).Info("New video source")
	}
	return p.(*Pipeline)
}

// SetZones replaces the zones of every pipeline and of those created later.
func (s *Server) SetZones(zones []zone.Zone) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zones = slices.Clone(zones)
	s.pipelines.Range(func(_, v any) bool {
		v.(*Pipeline).SetZones(s.zones)
		return true
	})
	log.Infof("Zones updated: %d zone(s)", len(zones))
}

// Zones returns the current zone list.
func (s *Server) Zones() []zone.Zone {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.zones)
}

// SendDetections handles detections from the detector service
func (s *Server) SendDetections(ctx context.Context, in *api.FrameDetections) (*api.TrackedFrame, error) {
	recTime := time.Now()
	if in.SourceId == "" {
		in.SourceId = DefaultSource
	}
	log.WithFields(log.Fields{"source": in.SourceId, "frame": in.FrameId}).Debugf("Received [Detector]: [%d] detection(s)", len(in.Detections))

	if s.Metric != nil && in.Timestamp > 0 {
		if transit := recTime.Sub(time.UnixMilli(in.Timestamp)); transit >= 0 {
			s.Metric.AddTransitTime("detector", float64(transit)/float64(time.Millisecond))
		}
	}

	tracks := s.Pipeline(in.SourceId).Process(in)

	out := &api.TrackedFrame{
		SourceId:          in.SourceId,
		FrameId:           in.FrameId,
		Tracks:            make([]api.Track, len(tracks)),
		ReceivedTimestamp: recTime.UnixMilli(),
	}
	for i, tr := range tracks {
		out.Tracks[i] = api.Track{
			Id:         tr.ID,
			X1:         tr.Box.X1,
			Y1:         tr.Box.Y1,
			X2:         tr.Box.X2,
			Y2:         tr.Box.Y2,
			Confidence: tr.Confidence,
		}
	}
	out.AckSentTimestamp = time.Now().UnixMilli()
	return out, nil
}

// LiveSnapshot returns the latest snapshot of a source. A source that has
// not sent frames yet reports zeros over the current zones.
func (s *Server) LiveSnapshot(ctx context.Context, in *api.SnapshotRequest) (*snapshot.Snapshot, error) {
	sourceId := in.SourceId
	if sourceId == "" {
		sourceId = DefaultSource
	}
	now := time.Now()
	if p, ok := s.pipelines.Load(sourceId); ok {
		snap := p.(*Pipeline).Snapshot(now)
		return &snap, nil
	}
	snap := snapshot.Build(nil, s.Zones(), nil, 0, 0, now)
	return &snap, nil
}
