package internal

import (
	"time"

	mt "github.com/etesami/people-counting-system/pkg/metric"
)

func addSentDataBytes(l string, m *mt.Metric, sentDataBytes float64) {
	m.AddSentDataBytes(l, sentDataBytes)
}

// E2E Latency (ms) is similar to transit time (ms) but includes the time taken
// to process the frame in the remote service
func addE2ELatency(l string, m *mt.Metric, elapsedMs float64) {
	m.AddE2ETimes(l, elapsedMs)
}

// Transit time (ms) include the time taken to send the detections
// to the remote service and receive the response, not including
// the processing time in the remote service.
func addTransitTime(l string, m *mt.Metric, elapsedMs float64) {
	m.AddTransitTime(l, elapsedMs)
}

func addProcessingTime(l string, m *mt.Metric, stTime time.Time) {
	elapsed := float64(time.Since(stTime).Microseconds()) / 1000.0
	m.AddProcessingTime(l, elapsed)
}

// Empty frames are failed reads from the video source.
// More than 10 in a row stop the video input
func increaseEmptyFrames(m *mt.Metric) {
	m.AddFrameCount("empty", 1)
}

// Skipped frames are dropped because the queue is full or the tracker is
// unreachable
func increaseSkippedFrames(m *mt.Metric) {
	m.AddFrameCount("skipped", 1)
}

// Processed frames made it through detection and were acknowledged by the
// tracker
func increaseProcessedFrames(m *mt.Metric) {
	m.AddFrameCount("processed", 1)
}

// Total frames are all frames read from the video source
func increaseTotalFrames(m *mt.Metric) {
	m.AddFrameCount("all", 1)
}
