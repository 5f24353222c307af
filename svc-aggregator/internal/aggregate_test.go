package internal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	api "github.com/etesami/people-counting-system/api"
	mt "github.com/etesami/people-counting-system/pkg/metric"
	"github.com/etesami/people-counting-system/pkg/snapshot"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

var t0 = time.Unix(1_700_000_000, 0)

type fakeTracker struct {
	mu     sync.Mutex
	totals []int
	calls  int
	err    error
	source string
}

func (f *fakeTracker) SendDetections(context.Context, *api.FrameDetections, ...grpc.CallOption) (*api.TrackedFrame, error) {
	return nil, errors.New("not used")
}

func (f *fakeTracker) LiveSnapshot(_ context.Context, in *api.SnapshotRequest, _ ...grpc.CallOption) (*snapshot.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.source = in.SourceId
	if f.err != nil {
		return nil, f.err
	}
	total := f.totals[min(f.calls, len(f.totals)-1)]
	f.calls++
	return &snapshot.Snapshot{
		TotalPeople: total,
		Zones:       map[string]int{"room": total},
		Centers:     []snapshot.Center{},
		Timestamp:   t0.Unix() + int64(f.calls),
	}, nil
}

func newTestServer(t *testing.T, tr *fakeTracker) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := &mt.Metric{}
	m.RegisterMetrics(reg, nil, nil, nil, nil)

	s := NewServer(&Config{
		SourceId:       "cam1",
		PollInterval:   10 * time.Millisecond,
		PollTimeout:    time.Second,
		StreamInterval: 10 * time.Millisecond,
	}, snapshot.NewHistory(10), NewAlerter(DefaultAlertThreshold), m)
	s.now = func() time.Time { return t0.Add(time.Minute) }
	if tr != nil {
		s.TrClient.Store(api.PipelineClient(tr))
	}
	return s, reg
}

func TestPollWithoutClient(t *testing.T) {
	s, reg := newTestServer(t, nil)
	require.Error(t, s.Poll(context.Background()))
	_, ok := s.Latest()
	require.False(t, ok)
	n, err := testutil.GatherAndCount(reg, "snapshot_polls_total")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestPollRecordsHistory(t *testing.T) {
	tr := &fakeTracker{totals: []int{1, 2, 3}}
	s, _ := newTestServer(t, tr)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Poll(context.Background()))
	}
	latest, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, 3, latest.TotalPeople)
	assert.Equal(t, 3, s.History.Len())
	assert.Equal(t, "cam1", tr.source)
}

func TestPollError(t *testing.T) {
	tr := &fakeTracker{totals: []int{1}, err: errors.New("unavailable")}
	s, _ := newTestServer(t, tr)
	require.ErrorContains(t, s.Poll(context.Background()), "unavailable")
	assert.Equal(t, 0, s.History.Len())
}

func TestPollRaisesAlertOnRisingEdge(t *testing.T) {
	tr := &fakeTracker{totals: []int{5, 21, 25, 20, 22}}
	s, reg := newTestServer(t, tr)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Poll(context.Background()))
	}
	alerts := s.Alerter.Recent()
	require.Len(t, alerts, 2)
	assert.Equal(t, 21, alerts[0].Total)
	assert.Equal(t, 22, alerts[1].Total)
	assert.NotEqual(t, alerts[0].ID, alerts[1].ID)

	expected := `
# HELP alerts_total Occupancy alerts raised.
# TYPE alerts_total counter
alerts_total{source="cam1"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "alerts_total"))
}

func TestRunStopsOnCancel(t *testing.T) {
	tr := &fakeTracker{totals: []int{1}}
	s, _ := newTestServer(t, tr)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return s.History.Len() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestAlerterThreshold(t *testing.T) {
	a := NewAlerter(2)
	assert.Nil(t, a.Observe(snapshot.Snapshot{TotalPeople: 2}))
	assert.NotNil(t, a.Observe(snapshot.Snapshot{TotalPeople: 3}))
	assert.Nil(t, a.Observe(snapshot.Snapshot{TotalPeople: 4}))

	a.SetThreshold(10)
	assert.Equal(t, 10, a.Threshold())
	assert.Nil(t, a.Observe(snapshot.Snapshot{TotalPeople: 4}))
	alert := a.Observe(snapshot.Snapshot{TotalPeople: 11, Timestamp: 5})
	require.NotNil(t, alert)
	assert.Equal(t, 10, alert.Threshold)
	assert.Equal(t, int64(5), alert.Timestamp)
}

func newHTTP(t *testing.T, s *Server) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	s.Routes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	return resp.StatusCode
}

func TestLiveEndpoint(t *testing.T) {
	tr := &fakeTracker{totals: []int{4}}
	s, _ := newTestServer(t, tr)
	ts := newHTTP(t, s)

	var before snapshot.Snapshot
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/live", &before))
	assert.Equal(t, 0, before.TotalPeople)
	assert.Equal(t, t0.Add(time.Minute).Unix(), before.Timestamp)

	require.NoError(t, s.Poll(context.Background()))
	var after snapshot.Snapshot
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/live", &after))
	assert.Equal(t, 4, after.TotalPeople)
	assert.Equal(t, map[string]int{"room": 4}, after.Zones)
}

func TestStreamEndpoint(t *testing.T) {
	tr := &fakeTracker{totals: []int{7}}
	s, _ := newTestServer(t, tr)
	require.NoError(t, s.Poll(context.Background()))
	ts := newHTTP(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/live/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	sc := bufio.NewScanner(resp.Body)
	var events []string
	for sc.Scan() && len(events) < 2 {
		if line := sc.Text(); strings.HasPrefix(line, "data: ") {
			events = append(events, strings.TrimPrefix(line, "data: "))
		}
	}
	require.Len(t, events, 2)
	var snap snapshot.Snapshot
	require.NoError(t, json.Unmarshal([]byte(events[1]), &snap))
	assert.Equal(t, 7, snap.TotalPeople)
}

func TestHistoryEndpoints(t *testing.T) {
	s, _ := newTestServer(t, nil)
	now := s.now().Unix()
	s.History.Push(snapshot.Snapshot{TotalPeople: 9, Timestamp: now - 20*60})
	s.History.Push(snapshot.Snapshot{TotalPeople: 1, Zones: map[string]int{"room": 1}, Timestamp: now - 10*60})
	s.History.Push(snapshot.Snapshot{TotalPeople: 3, Zones: map[string]int{"room": 2}, Timestamp: now - 60})
	ts := newHTTP(t, s)

	var rows []snapshot.Snapshot
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/history", &rows))
	assert.Len(t, rows, 2)

	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/history?minutes=30", &rows))
	assert.Len(t, rows, 3)

	var sum snapshot.Summary
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/history/summary?minutes=15", &sum))
	assert.Equal(t, 2, sum.Samples)
	assert.Equal(t, 2.0, sum.AveragePeople)
	assert.Equal(t, 3, sum.PeakPeople)
	assert.Equal(t, snapshot.ZoneSummary{Average: 1.5, Peak: 2}, sum.Zones["room"])

	var e map[string]string
	require.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/history?minutes=abc", &e))
	require.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/history/summary?minutes=0", &e))
}

func postSettings(t *testing.T, url, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(url+"/api/settings", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestSettingsEndpoints(t *testing.T) {
	s, _ := newTestServer(t, nil)
	ts := newHTTP(t, s)

	var got map[string]int
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/settings", &got))
	assert.Equal(t, DefaultAlertThreshold, got["alert_threshold"])

	code, out := postSettings(t, ts.URL, `{"alert_threshold": 35}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, 35, s.Alerter.Threshold())

	code, _ = postSettings(t, ts.URL, `{"alert_threshold": "12"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 12, s.Alerter.Threshold())

	code, _ = postSettings(t, ts.URL, ``)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, DefaultAlertThreshold, s.Alerter.Threshold())

	for _, body := range []string{`{"alert_threshold": "many"}`, `{"alert_threshold": -1}`, `{"alert_threshold": true}`, `{oops`} {
		code, _ = postSettings(t, ts.URL, body)
		assert.Equal(t, http.StatusBadRequest, code, body)
	}
	assert.Equal(t, DefaultAlertThreshold, s.Alerter.Threshold())
}

func TestAlertsEndpoint(t *testing.T) {
	tr := &fakeTracker{totals: []int{30}}
	s, _ := newTestServer(t, tr)
	require.NoError(t, s.Poll(context.Background()))
	ts := newHTTP(t, s)

	var alerts []Alert
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/alerts", &alerts))
	require.Len(t, alerts, 1)
	assert.Equal(t, 30, alerts[0].Total)
	assert.Len(t, alerts[0].ID, 36)
}
