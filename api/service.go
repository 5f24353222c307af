package api

import (
	"fmt"
	"net"
	"time"
)

// Detection is one person box in frame pixels, (X1, Y1) top left.
type Detection struct {
	X1         int     `json:"x1"`
	Y1         int     `json:"y1"`
	X2         int     `json:"x2"`
	Y2         int     `json:"y2"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
}

// FrameDetections is what the detector sends for every processed frame.
// Timestamp is the send time in unix milliseconds.
type FrameDetections struct {
	SourceId   string      `json:"source_id"`
	FrameId    int64       `json:"frame_id" validate:"gte=0"`
	Timestamp  int64       `json:"timestamp"`
	Width      int         `json:"width" validate:"gte=0"`
	Height     int         `json:"height" validate:"gte=0"`
	Detections []Detection `json:"detections" validate:"dive"`
}

// Track is a tracked box with its stable id.
type Track struct {
	Id         int     `json:"id"`
	X1         int     `json:"x1"`
	Y1         int     `json:"y1"`
	X2         int     `json:"x2"`
	Y2         int     `json:"y2"`
	Confidence float64 `json:"confidence"`
}

// TrackedFrame acknowledges a FrameDetections. The timestamps are unix
// milliseconds and let the sender split the round trip from remote work.
type TrackedFrame struct {
	SourceId          string  `json:"source_id"`
	FrameId           int64   `json:"frame_id"`
	Tracks            []Track `json:"tracks"`
	ReceivedTimestamp int64   `json:"received_timestamp"`
	AckSentTimestamp  int64   `json:"ack_sent_timestamp"`
}

type SnapshotRequest struct {
	SourceId string `json:"source_id"`
}

type Service struct {
	Address string
	Port    string
}

func (s *Service) Target() string {
	return net.JoinHostPort(s.Address, s.Port)
}

func (s *Service) ServiceReachable() error {
	if s.Address == "" || s.Port == "" {
		return fmt.Errorf("service address or port is not set")
	}
	conn, err := net.DialTimeout("tcp", s.Target(), 3*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()
	return nil
}
