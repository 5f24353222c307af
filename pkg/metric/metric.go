package metric

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric wraps the Prometheus collectors shared by all services. A service
// registers only once; the Add* methods are safe from any goroutine.
type Metric struct {
	mu sync.Mutex

	sentDataBytesHistogram *prometheus.HistogramVec
	procTimeHistogram      *prometheus.HistogramVec
	transitTimeHistogram   *prometheus.HistogramVec
	e2eTimeHistogram       *prometheus.HistogramVec

	procTime      *prometheus.GaugeVec
	activeTracks  *prometheus.GaugeVec
	zoneCount     *prometheus.GaugeVec
	frameCount    *prometheus.CounterVec
	tracksCreated *prometheus.CounterVec
	crossings     *prometheus.CounterVec
	alerts        *prometheus.CounterVec
	polls         *prometheus.CounterVec
}

// RegisterMetrics creates the collectors with the given buckets (nil means
// prometheus.DefBuckets) and registers them on reg.
func (m *Metric) RegisterMetrics(reg prometheus.Registerer, sentDataBuckets, procTimeBuckets, transitTimeBuckets, e2eTimeBuckets []float64) {
	if sentDataBuckets == nil {
		sentDataBuckets = prometheus.DefBuckets
	}
	if procTimeBuckets == nil {
		procTimeBuckets = prometheus.DefBuckets
	}
	if transitTimeBuckets == nil {
		transitTimeBuckets = prometheus.DefBuckets
	}
	if e2eTimeBuckets == nil {
		e2eTimeBuckets = prometheus.DefBuckets
	}

	m.sentDataBytesHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sent_data_bytes_histogram",
			Help:    "Histogram of sent data bytes.",
			Buckets: sentDataBuckets,
		},
		[]string{"service"},
	)
	m.procTimeHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "processing_time_ms_histogram",
			Help:    "Histogram of processing times.",
			Buckets: procTimeBuckets,
		},
		[]string{"stage"},
	)
	m.transitTimeHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transit_time_ms_histogram",
			Help:    "Histogram of network transit times, remote processing excluded.",
			Buckets: transitTimeBuckets,
		},
		[]string{"service"},
	)
	m.e2eTimeHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "e2e_time_ms_histogram",
			Help:    "Histogram of end-to-end request latency.",
			Buckets: e2eTimeBuckets,
		},
		[]string{"service"},
	)
	m.procTime = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "processing_time_ms",
			Help: "Gauge of the latest processing time.",
		},
		[]string{"stage"},
	)
	m.activeTracks = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "active_tracks",
			Help: "Tracks reported in the latest frame.",
		},
		[]string{"source"},
	)
	m.zoneCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "zone_count",
			Help: "Occupancy of polygon zones and cumulative crossings of line zones.",
		},
		[]string{"source", "zone", "kind"},
	)
	m.frameCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frames_total",
			Help: "Frames seen, by status.",
		},
		[]string{"status"},
	)
	m.tracksCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracks_created_total",
			Help: "Track ids allocated.",
		},
		[]string{"source"},
	)
	m.crossings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "line_crossings_total",
			Help: "Line crossings counted.",
		},
		[]string{"source", "zone"},
	)
	m.alerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_total",
			Help: "Occupancy alerts raised.",
		},
		[]string{"source"},
	)
	m.polls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_polls_total",
			Help: "Snapshot polls, by result.",
		},
		[]string{"result"},
	)

	reg.MustRegister(
		m.sentDataBytesHistogram,
		m.procTimeHistogram,
		m.transitTimeHistogram,
		m.e2eTimeHistogram,
		m.procTime,
		m.activeTracks,
		m.zoneCount,
		m.frameCount,
		m.tracksCreated,
		m.crossings,
		m.alerts,
		m.polls,
	)
}

func (m *Metric) AddSentDataBytes(s string, bytes float64) {
	m.lock()
	defer m.unlock()
	m.sentDataBytesHistogram.WithLabelValues(s).Observe(bytes)
}

func (m *Metric) AddProcessingTime(stage string, ms float64) {
	m.lock()
	defer m.unlock()
	m.procTimeHistogram.WithLabelValues(stage).Observe(ms)
	m.procTime.WithLabelValues(stage).Set(ms)
}

func (m *Metric) AddTransitTime(s string, ms float64) {
	m.lock()
	defer m.unlock()
	m.transitTimeHistogram.WithLabelValues(s).Observe(ms)
}

func (m *Metric) AddE2ETimes(s string, ms float64) {
	m.lock()
	defer m.unlock()
	m.e2eTimeHistogram.WithLabelValues(s).Observe(ms)
}

func (m *Metric) AddFrameCount(status string, n float64) {
	m.lock()
	defer m.unlock()
	m.frameCount.WithLabelValues(status).Add(n)
}

func (m *Metric) SetActiveTracks(source string, n int) {
	m.lock()
	defer m.unlock()
	m.activeTracks.WithLabelValues(source).Set(float64(n))
}

func (m *Metric) SetZoneCount(source, zone, kind string, n int) {
	m.lock()
	defer m.unlock()
	m.zoneCount.WithLabelValues(source, zone, kind).Set(float64(n))
}

func (m *Metric) AddTracksCreated(source string, n int) {
	if n <= 0 {
		return
	}
	m.lock()
	defer m.unlock()
	m.tracksCreated.WithLabelValues(source).Add(float64(n))
}

func (m *Metric) AddCrossings(source, zone string, n int) {
	if n <= 0 {
		return
	}
	m.lock()
	defer m.unlock()
	m.crossings.WithLabelValues(source, zone).Add(float64(n))
}

func (m *Metric) AddAlert(source string) {
	m.lock()
	defer m.unlock()
	m.alerts.WithLabelValues(source).Inc()
}

func (m *Metric) AddPoll(result string) {
	m.lock()
	defer m.unlock()
	m.polls.WithLabelValues(result).Inc()
}

func (m *Metric) lock() {
	m.mu.Lock()
}

func (m *Metric) unlock() {
	m.mu.Unlock()
}
