package snapshot

import (
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultHistorySize holds six hours of one-per-ten-seconds points, or
// about 36 minutes at one point per second.
const DefaultHistorySize = 6 * 60 * 6

// History is a bounded ring of snapshots, oldest overwritten first.
type History struct {
	mu    sync.RWMutex
	buf   []Snapshot
	start int
	n     int
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{buf: make([]Snapshot, capacity)}
}

// Push appends s, evicting the oldest entry when full.
func (h *History) Push(s Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = s
		h.n++
		return
	}
	h.buf[h.start] = s
	h.start = (h.start + 1) % len(h.buf)
}

// Len returns the number of stored snapshots.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.n
}

// Latest returns the most recent snapshot.
func (h *History) Latest() (Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.n == 0 {
		return Snapshot{}, false
	}
	return h.buf[(h.start+h.n-1)%len(h.buf)], true
}

// Since returns, oldest first, the snapshots with Timestamp >= cutoff.
func (h *History) Since(cutoff int64) []Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Snapshot, 0, h.n)
	for i := 0; i < h.n; i++ {
		s := h.buf[(h.start+i)%len(h.buf)]
		if s.Timestamp >= cutoff {
			out = append(out, s)
		}
	}
	return out
}

// ZoneSummary aggregates one zone over a window.
type ZoneSummary struct {
	Average float64 `json:"average"`
	Peak    int     `json:"peak"`
}

// Summary aggregates a window of snapshots.
type Summary struct {
	Samples       int                    `json:"samples"`
	From          int64                  `json:"from"`
	To            int64                  `json:"to"`
	AveragePeople float64                `json:"average_people"`
	PeakPeople    int                    `json:"peak_people"`
	Zones         map[string]ZoneSummary `json:"zones"`
}

// Summarize computes averages (2 decimals) and peaks. A zone missing from a
// row counts as 0 for that row.
func Summarize(rows []Snapshot) Summary {
	sum := Summary{Samples: len(rows), Zones: map[string]ZoneSummary{}}
	if len(rows) == 0 {
		return sum
	}
	sum.From = rows[0].Timestamp
	sum.To = rows[len(rows)-1].Timestamp

	totals := make([]float64, len(rows))
	for i, r := range rows {
		totals[i] = float64(r.TotalPeople)
	}
	sum.AveragePeople = round2(stat.Mean(totals, nil))
	sum.PeakPeople = int(floats.Max(totals))

	names := map[string]struct{}{}
	for _, r := range rows {
		for name := range r.Zones {
			names[name] = struct{}{}
		}
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	values := make([]float64, len(rows))
	for _, name := range sorted {
		for i, r := range rows {
			values[i] = float64(r.Zones[name])
		}
		sum.Zones[name] = ZoneSummary{
			Average: round2(stat.Mean(values, nil)),
			Peak:    int(floats.Max(values)),
		}
	}
	return sum
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
