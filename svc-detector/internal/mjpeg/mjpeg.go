// Package mjpeg serves the latest annotated frame as a multipart JPEG stream.
package mjpeg

import (
	"net/http"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// Stream holds the last published JPEG. Publish and ServeHTTP may run
// concurrently.
type Stream struct {
	Interval time.Duration
	frame    atomic.Pointer[[]byte]
	seq      atomic.Uint64
}

func NewStream(interval time.Duration) *Stream {
	return &Stream{Interval: interval}
}

// Publish replaces the current frame. jpg must not be modified afterwards.
func (s *Stream) Publish(jpg []byte) {
	s.frame.Store(&jpg)
	s.seq.Add(1)
}

// Latest returns the current frame, if any.
func (s *Stream) Latest() ([]byte, bool) {
	if p := s.frame.Load(); p != nil {
		return *p, true
	}
	return nil, false
}

// ServeHTTP writes each new frame as one part until the client goes away.
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	log.Debug("New client connection established")
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	var sent uint64
	for {
		if seq := s.seq.Load(); seq != sent {
			if jpg, ok := s.Latest(); ok {
				if err := writePart(w, jpg); err != nil {
					log.Debugf("Client disconnected: %v", err)
					return
				}
				flusher.Flush()
				sent = seq
			}
		}

		select {
		case <-r.Context().Done():
			log.Debug("Client disconnected")
			return
		case <-ticker.C:
		}
	}
}

func writePart(w http.ResponseWriter, jpg []byte) error {
	if _, err := w.Write([]byte("--frame\r\nContent-Type: image/jpeg\r\n\r\n")); err != nil {
		return err
	}
	if _, err := w.Write(jpg); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}
