package internal

import (
	"fmt"
	"sync"

	"github.com/etesami/people-counting-system/pkg/snapshot"
	"github.com/google/uuid"
)

const (
	DefaultAlertThreshold = 20
	maxRecentAlerts       = 100
)

// Alert is raised when the total head count goes above the threshold.
type Alert struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Total     int    `json:"total_people"`
	Threshold int    `json:"threshold"`
	Message   string `json:"message"`
}

// Alerter raises one alert per excursion above the threshold: it fires on
// the rising edge and rearms once the total is back at or below it.
type Alerter struct {
	mu        sync.Mutex
	threshold int
	active    bool
	recent    []Alert
}

func NewAlerter(threshold int) *Alerter {
	return &Alerter{threshold: threshold}
}

func (a *Alerter) Threshold() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.threshold
}

// SetThreshold changes the threshold; the next Observe compares against it.
func (a *Alerter) SetThreshold(threshold int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.threshold = threshold
}

// Observe returns the alert raised by s, or nil.
func (a *Alerter) Observe(s snapshot.Snapshot) *Alert {
	a.mu.Lock()
	defer a.mu.Unlock()

	if s.TotalPeople <= a.threshold {
		a.active = false
		return nil
	}
	if a.active {
		return nil
	}
	a.active = true

	alert := Alert{
		ID:        uuid.NewString(),
		Timestamp: s.Timestamp,
		Total:     s.TotalPeople,
		Threshold: a.threshold,
		Message:   fmt.Sprintf("%d people exceed the threshold of %d", s.TotalPeople, a.threshold),
	}
	a.recent = append(a.recent, alert)
	if len(a.recent) > maxRecentAlerts {
		a.recent = a.recent[len(a.recent)-maxRecentAlerts:]
	}
	return &alert
}

// Recent returns the last alerts, oldest first.
func (a *Alerter) Recent() []Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Alert{}, a.recent...)
}
