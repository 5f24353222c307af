package internal

import (
	"time"

	mt "github.com/etesami/people-counting-system/pkg/metric"
)

// E2E latency (ms) of a request to a remote service, remote processing
// included.
func addE2ELatency(l string, m *mt.Metric, stTime time.Time) {
	m.AddE2ETimes(l, sinceMs(stTime))
}

// Processing time of a local stage, such as serving one HTTP response.
func addProcessingTime(l string, m *mt.Metric, stTime time.Time) {
	m.AddProcessingTime(l, sinceMs(stTime))
}

// Bytes written to a client.
func addSentDataBytes(l string, m *mt.Metric, n int) {
	m.AddSentDataBytes(l, float64(n))
}

func sinceMs(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}
