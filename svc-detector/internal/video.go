package internal

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"sync"
	"time"

	mt "github.com/etesami/people-counting-system/pkg/metric"
	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

const maxEmptyFrames = 10

// VideoConfig holds the capture parameters
type VideoConfig struct {
	// file path, rtsp:// url or webcam index
	VideoSource string
	QueueSize   int
	// resize target; zero keeps the source size
	ImageWidth  int
	ImageHeight int
	// wait after an empty read
	RetryDelay time.Duration
}

// VideoInput reads frames in its own goroutine and hands them over through a
// bounded queue. Files are rewound at the end; live sources give up after
// maxEmptyFrames empty reads in a row.
type VideoInput struct {
	config      *VideoConfig
	queue       chan gocv.Mat
	done        chan struct{}
	stopped     chan struct{}
	capture     *gocv.VideoCapture
	isFile      bool
	emptyFrames int
	wg          sync.WaitGroup
	closeOnce   sync.Once
	metric      *mt.Metric
}

// NewVideoInput opens the source and starts reading.
func NewVideoInput(config *VideoConfig, m *mt.Metric) (*VideoInput, error) {
	var device any = config.VideoSource
	if idx, err := strconv.Atoi(config.VideoSource); err == nil {
		device = idx
	}
	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("error opening video source %q: %w", config.VideoSource, err)
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 1
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 500 * time.Millisecond
	}

	vi := &VideoInput{
		config:  config,
		queue:   make(chan gocv.Mat, config.QueueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		capture: capture,
		// live sources report no frame count
		isFile: capture.Get(gocv.VideoCaptureFrameCount) > 0,
		metric: m,
	}
	log.Infof("Opened video source: %s", config.VideoSource)

	vi.wg.Add(1)
	go vi.readFrames()
	return vi, nil
}

// readFrames reads frames from the video source and queues them, dropping
// a frame when the queue is full
func (vi *VideoInput) readFrames() {
	defer vi.wg.Done()
	defer close(vi.stopped)

	img := gocv.NewMat()
	defer img.Close()

	rewound := false
	for {
		select {
		case <-vi.done:
			return
		default:
		}

		if ok := vi.capture.Read(&img); !ok || img.Empty() {
			if vi.isFile && !rewound {
				rewound = true
				vi.capture.Set(gocv.VideoCapturePosFrames, 0)
				log.Debug("End of file, rewinding")
				continue
			}
			increaseEmptyFrames(vi.metric)
			vi.emptyFrames++
			if vi.emptyFrames > maxEmptyFrames {
				log.Errorf("Too many empty frames, stopping video input %s", vi.config.VideoSource)
				return
			}
			select {
			case <-vi.done:
				return
			case <-time.After(vi.config.RetryDelay):
			}
			continue
		}
		vi.emptyFrames = 0
		rewound = false
		increaseTotalFrames(vi.metric)

		frame := gocv.NewMat()
		if vi.config.ImageWidth > 0 && vi.config.ImageHeight > 0 {
			gocv.Resize(img, &frame, image.Pt(vi.config.ImageWidth, vi.config.ImageHeight), 0, 0, gocv.InterpolationDefault)
		} else {
			img.CopyTo(&frame)
		}

		select {
		case vi.queue <- frame:
		case <-vi.done:
			frame.Close()
			return
		default:
			increaseSkippedFrames(vi.metric)
			frame.Close()
		}
	}
}

// ReadFrame waits for the next frame. The caller owns and closes it. It
// returns false once the input stopped or ctx is done.
func (vi *VideoInput) ReadFrame(ctx context.Context) (gocv.Mat, bool) {
	select {
	case frame, ok := <-vi.queue:
		return frame, ok
	case <-vi.stopped:
		return gocv.Mat{}, false
	case <-ctx.Done():
		return gocv.Mat{}, false
	}
}

// Close stops the reader and releases the source
func (vi *VideoInput) Close() {
	vi.closeOnce.Do(func() {
		close(vi.done)
		vi.wg.Wait()
		vi.capture.Close()
		close(vi.queue)
		for frame := range vi.queue {
			frame.Close()
		}
		log.Info("Video input closed")
	})
}
