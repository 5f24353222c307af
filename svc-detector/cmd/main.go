package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/etesami/people-counting-system/api"
	metric "github.com/etesami/people-counting-system/pkg/metric"
	utils "github.com/etesami/people-counting-system/pkg/utils"
	"github.com/etesami/people-counting-system/pkg/zone"
	log "github.com/sirupsen/logrus"

	"github.com/etesami/people-counting-system/svc-detector/internal"
	"github.com/etesami/people-counting-system/svc-detector/internal/mjpeg"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	utils.SetupLogging(utils.GetEnv("LOG_LEVEL", "info"))

	// Setup the metric service for tracking metrics both locally and remote services
	sentDataBuckets := utils.ParseBuckets(os.Getenv("SENT_DATA_BUCKETS"))
	procTimeBuckets := utils.ParseBuckets(os.Getenv("PROC_TIME_BUCKETS"))
	transTimeBuckets := utils.ParseBuckets(os.Getenv("TRANSMIT_TIME_BUCKETS"))
	e2eTimeBuckets := utils.ParseBuckets(os.Getenv("E2E_TIME_BUCKETS"))
	m := &metric.Metric{}
	m.RegisterMetrics(prometheus.DefaultRegisterer, sentDataBuckets, procTimeBuckets, transTimeBuckets, e2eTimeBuckets)

	videoSource := os.Getenv("VIDEO_SOURCE")
	if videoSource == "" {
		panic("VIDEO_SOURCE environment variable is not set")
	}

	detector, err := internal.NewDetector(&internal.DtConfig{
		Model:          utils.GetEnv("YOLO_MODEL", "yolov8n.onnx"),
		ImageWidth:     utils.GetEnvInt("IMAGE_WIDTH", 640),
		ImageHeight:    utils.GetEnvInt("IMAGE_HEIGHT", 640),
		ScoreThreshold: float32(utils.GetEnvFloat("SCORE_THRESHOLD", 0.5)),
		NMSThreshold:   float32(utils.GetEnvFloat("NMS_THRESHOLD", 0.4)),
	})
	if err != nil {
		log.Fatalf("Error loading detector: %v", err)
	}
	defer detector.Close()

	input, err := internal.NewVideoInput(&internal.VideoConfig{
		VideoSource: videoSource,
		QueueSize:   utils.GetEnvInt("QUEUE_SIZE", 2),
		ImageWidth:  utils.GetEnvInt("FRAME_WIDTH", 0),
		ImageHeight: utils.GetEnvInt("FRAME_HEIGHT", 0),
	}, m)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer input.Close()

	var zones []zone.Zone
	if path := os.Getenv("ZONES_FILE"); path != "" {
		if zones, err = zone.Load(path); err != nil {
			log.Fatalf("Error loading zones: %v", err)
		}
	}

	stream := mjpeg.NewStream(utils.GetEnvDuration("PREVIEW_INTERVAL", 40*time.Millisecond))
	runner := &internal.Runner{
		Config: &internal.RunnerConfig{
			SourceId:           utils.GetEnv("SOURCE_ID", ""),
			SendTimeout:        utils.GetEnvDuration("SEND_TIMEOUT", 2*time.Second),
			SaveImage:          os.Getenv("SAVE_IMAGE") == "true",
			SaveImagePath:      utils.GetEnv("SAVE_IMAGE_PATH", "."),
			SaveImageFrequency: utils.GetEnvInt("SAVE_IMAGE_FREQUENCY", 100),
		},
		Input:    input,
		Detector: detector,
		Zones:    zones,
		Stream:   stream,
		Metric:   m,
	}

	// Setup the remote service (tracker) to send detections
	REMOTE_TRACKER_HOST := os.Getenv("REMOTE_TRACKER_HOST")
	REMOTE_TRACKER_PORT := os.Getenv("REMOTE_TRACKER_PORT")
	if REMOTE_TRACKER_HOST == "" || REMOTE_TRACKER_PORT == "" {
		panic("REMOTE_TRACKER_HOST or REMOTE_TRACKER_PORT environment variable is not set")
	}
	targetSvc := api.Service{
		Address: REMOTE_TRACKER_HOST,
		Port:    REMOTE_TRACKER_PORT,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go utils.MonitorConnection(ctx, targetSvc, &runner.TrClient, 5*time.Second)

	metricAddr := os.Getenv("METRIC_ADDR")
	metricPort := utils.GetEnv("METRIC_PORT", "9101")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/video", stream)

	server := &http.Server{
		Addr:        net.JoinHostPort(metricAddr, metricPort),
		Handler:     mux,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	// Start server in a goroutine
	go func() {
		log.Infof("Starting metrics server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()

	runErr := make(chan error, 1)
	go func() { runErr <- runner.Run(ctx) }()

	// Set up channel to listen for interrupt or terminate signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info("Received shutdown signal")
		cancel()
		<-runErr
	case err := <-runErr:
		log.Errorf("Runner stopped: %v", err)
	}
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Error shutting down server: %v", err)
	}
	log.Info("Server shut down gracefully")
}
