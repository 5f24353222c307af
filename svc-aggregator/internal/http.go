package internal

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/etesami/people-counting-system/pkg/snapshot"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const defaultHistoryMinutes = 15

// Routes registers the API handlers on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/live", s.handleLive)
	mux.HandleFunc("GET /api/live/stream", s.handleStream)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/history/summary", s.handleSummary)
	mux.HandleFunc("GET /api/alerts", s.handleAlerts)
	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("POST /api/settings", s.handleSetSettings)
}

// current returns the latest snapshot, or an empty one before the first poll.
func (s *Server) current() snapshot.Snapshot {
	if snap, ok := s.Latest(); ok {
		return snap
	}
	return snapshot.Snapshot{
		Zones:     map[string]int{},
		Centers:   []snapshot.Center{},
		Timestamp: s.now().Unix(),
	}
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	stTime := time.Now()
	writeJSON(w, http.StatusOK, s.current())
	addProcessingTime("http_live", s.Metric, stTime)
}

// handleStream pushes the latest snapshot as a server-sent event every
// StreamInterval until the client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ticker := time.NewTicker(s.Config.StreamInterval)
	defer ticker.Stop()

	for {
		b, err := json.Marshal(s.current())
		if err != nil {
			log.Errorf("Error marshalling snapshot: %v", err)
			return
		}
		n, err := fmt.Fprintf(w, "data: %s\n\n", b)
		if err != nil {
			log.Debugf("Stream client gone: %v", err)
			return
		}
		flusher.Flush()
		addSentDataBytes("sse", s.Metric, n)

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) window(r *http.Request) ([]snapshot.Snapshot, error) {
	minutes := defaultHistoryMinutes
	if v := strings.TrimSpace(r.URL.Query().Get("minutes")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid minutes %q", v)
		}
		minutes = n
	}
	cutoff := s.now().Unix() - int64(minutes)*60
	return s.History.Since(cutoff), nil
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	rows, err := s.window(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	rows, err := s.window(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot.Summarize(rows))
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Alerter.Recent())
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"alert_threshold": s.Alerter.Threshold()})
}

// handleSetSettings accepts {"alert_threshold": N}; N may be a number or a
// numeric string and defaults to DefaultAlertThreshold when absent.
func (s *Server) handleSetSettings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		body = []byte("{}")
	}
	if !gjson.ValidBytes(body) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid json"))
		return
	}

	threshold := DefaultAlertThreshold
	switch v := gjson.GetBytes(body, "alert_threshold"); v.Type {
	case gjson.Null:
	case gjson.Number:
		threshold = int(v.Int())
	case gjson.String:
		n, err := strconv.Atoi(strings.TrimSpace(v.Str))
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid alert_threshold %q", v.Str))
			return
		}
		threshold = n
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid alert_threshold %s", v.Raw))
		return
	}
	if threshold < 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("alert_threshold must not be negative"))
		return
	}

	s.Alerter.SetThreshold(threshold)
	log.WithField("alert_threshold", threshold).Info("Settings updated")
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("Error writing response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
