package internal

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	api "github.com/etesami/people-counting-system/api"
	mt "github.com/etesami/people-counting-system/pkg/metric"
	"github.com/etesami/people-counting-system/pkg/snapshot"
	"github.com/etesami/people-counting-system/pkg/utils"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	SourceId       string
	PollInterval   time.Duration
	PollTimeout    time.Duration
	StreamInterval time.Duration
}

// Server polls the tracker for snapshots, keeps the history and serves
// them over HTTP.
type Server struct {
	Config  *Config
	History *snapshot.History
	Alerter *Alerter
	Metric  *mt.Metric

	// holds an api.PipelineClient, kept fresh by utils.MonitorConnection
	TrClient atomic.Value

	latest atomic.Pointer[snapshot.Snapshot]
	now    func() time.Time
}

func NewServer(config *Config, history *snapshot.History, alerter *Alerter, m *mt.Metric) *Server {
	return &Server{
		Config:  config,
		History: history,
		Alerter: alerter,
		Metric:  m,
		now:     time.Now,
	}
}

// Latest returns the last polled snapshot.
func (s *Server) Latest() (snapshot.Snapshot, bool) {
	if p := s.latest.Load(); p != nil {
		return *p, true
	}
	return snapshot.Snapshot{}, false
}

// Poll fetches one snapshot from the tracker, records it and evaluates the
// alert threshold.
func (s *Server) Poll(ctx context.Context) error {
	client, ok := utils.LoadClient(&s.TrClient)
	if !ok {
		s.Metric.AddPoll("no_client")
		return fmt.Errorf("tracker client is not initialized")
	}

	stTime := s.now()
	snap, err := client.LiveSnapshot(ctx, &api.SnapshotRequest{SourceId: s.Config.SourceId})
	if err != nil {
		s.Metric.AddPoll("error")
		return fmt.Errorf("error polling snapshot: %w", err)
	}
	addE2ELatency("tracker", s.Metric, stTime)
	s.Metric.AddPoll("ok")

	s.latest.Store(snap)
	s.History.Push(*snap)

	if alert := s.Alerter.Observe(*snap); alert != nil {
		s.Metric.AddAlert(s.Config.SourceId)
		log.WithFields(log.Fields{
			"alert":     alert.ID,
			"source":    s.Config.SourceId,
			"total":     alert.Total,
			"threshold": alert.Threshold,
		}).Warn("Occupancy above threshold")
	}
	return nil
}

// Run polls every PollInterval until ctx is done. Failed polls are logged
// and skipped.
func (s *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Stopping snapshot poller")
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, s.Config.PollTimeout)
			if err := s.Poll(pctx); err != nil {
				log.Warnf("Poll failed: %v", err)
			}
			cancel()
		}
	}
}
