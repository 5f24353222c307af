package internal

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	api "github.com/etesami/people-counting-system/api"
	mt "github.com/etesami/people-counting-system/pkg/metric"
	"github.com/etesami/people-counting-system/pkg/utils"
	"github.com/etesami/people-counting-system/pkg/zone"
	"github.com/etesami/people-counting-system/svc-detector/internal/mjpeg"
	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
	"google.golang.org/protobuf/proto"
)

type RunnerConfig struct {
	SourceId           string
	SendTimeout        time.Duration
	SaveImage          bool
	SaveImagePath      string
	SaveImageFrequency int
}

// Runner drives one source: capture, detect, send to the tracker, annotate.
type Runner struct {
	Config   *RunnerConfig
	Input    *VideoInput
	Detector *Detector
	Zones    []zone.Zone
	Stream   *mjpeg.Stream
	Metric   *mt.Metric

	// holds an api.PipelineClient, kept fresh by utils.MonitorConnection
	TrClient atomic.Value

	frameId int64
}

// Run processes frames until ctx is done or the video input stops.
func (r *Runner) Run(ctx context.Context) error {
	for {
		frame, ok := r.Input.ReadFrame(ctx)
		if !ok {
			if err := ctx.Err(); err != nil {
				return err
			}
			return errors.New("video input stopped")
		}
		r.processFrame(ctx, frame)
		frame.Close()
	}
}

func (r *Runner) processFrame(ctx context.Context, frame gocv.Mat) {
	r.frameId++
	stTime := time.Now()

	dets, err := r.Detector.Detect(frame)
	addProcessingTime("detect", r.Metric, stTime)
	if err != nil {
		log.WithField("frame", r.frameId).Errorf("Detection failed: %v", err)
		increaseSkippedFrames(r.Metric)
		return
	}

	var tracks []api.Track
	tf, err := r.send(ctx, dets, frame.Cols(), frame.Rows())
	if err != nil {
		log.WithField("frame", r.frameId).Warnf("Error sending detections: %v", err)
		increaseSkippedFrames(r.Metric)
	} else {
		tracks = tf.Tracks
		increaseProcessedFrames(r.Metric)
	}

	r.annotate(frame, tracks)
}

// send delivers one frame of detections to the tracker and records the
// transit and end-to-end latencies.
func (r *Runner) send(ctx context.Context, dets []api.Detection, width, height int) (*api.TrackedFrame, error) {
	client, ok := utils.LoadClient(&r.TrClient)
	if !ok {
		return nil, fmt.Errorf("tracker client is not initialized")
	}

	sentTime := time.Now()
	fd := &api.FrameDetections{
		SourceId:   r.Config.SourceId,
		FrameId:    r.frameId,
		Timestamp:  sentTime.UnixMilli(),
		Width:      width,
		Height:     height,
		Detections: dets,
	}

	cctx, cancel := context.WithTimeout(ctx, r.Config.SendTimeout)
	defer cancel()
	tf, err := client.SendDetections(cctx, fd)
	if err != nil {
		return nil, err
	}
	now := time.Now()

	if msg, err := api.ToStruct(fd); err == nil {
		addSentDataBytes("tracker", r.Metric, float64(proto.Size(msg)))
	}
	transTime, err := utils.CalculateRtt(
		utils.UnixMilliToTime(fd.Timestamp),
		utils.UnixMilliToTime(tf.ReceivedTimestamp),
		utils.UnixMilliToTime(tf.AckSentTimestamp),
		now)
	if err != nil {
		log.Debugf("Skipping transit time: %v", err)
	} else {
		addTransitTime("tracker", r.Metric, transTime)
	}
	e2e := float64(now.Sub(sentTime).Microseconds()) / 1000.0
	addE2ELatency("tracker", r.Metric, e2e)

	log.WithFields(log.Fields{"frame": fd.FrameId, "detections": len(dets), "tracks": len(tf.Tracks)}).
		Debugf("Sent frame, RTT [%.2f]ms, Total [%.2f]ms", transTime, e2e)
	return tf, nil
}

// annotate draws the overlay, then publishes the frame to the preview
// stream and writes every SaveImageFrequency-th frame to disk.
func (r *Runner) annotate(frame gocv.Mat, tracks []api.Track) {
	save := r.Config.SaveImage && r.Config.SaveImageFrequency > 0 && r.frameId%int64(r.Config.SaveImageFrequency) == 0
	if r.Stream == nil && !save {
		return
	}
	stTime := time.Now()
	DrawOverlay(&frame, r.Zones, tracks)

	if save {
		filename := filepath.Join(r.Config.SaveImagePath, fmt.Sprintf("%d_detector.jpg", time.Now().UnixNano()))
		if ok := gocv.IMWrite(filename, frame); !ok {
			log.Warnf("Failed to write frame to %s", filename)
		}
	}

	if r.Stream != nil {
		buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame)
		if err != nil {
			log.Warnf("Error encoding frame: %v", err)
		} else {
			r.Stream.Publish(append([]byte(nil), buf.GetBytes()...))
			buf.Close()
		}
	}
	addProcessingTime("overlay", r.Metric, stTime)
}
