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
	"github.com/etesami/people-counting-system/pkg/snapshot"
	utils "github.com/etesami/people-counting-system/pkg/utils"
	"github.com/etesami/people-counting-system/svc-aggregator/internal"
	log "github.com/sirupsen/logrus"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	utils.SetupLogging(utils.GetEnv("LOG_LEVEL", "info"))

	// Setup the metric service for tracking metrics both locally and remote services
	sentDataBuckets := utils.ParseBuckets(os.Getenv("SENT_DATA_BUCKETS"))
	procTimeBuckets := utils.ParseBuckets(os.Getenv("PROC_TIME_BUCKETS"))
	e2eTimeBuckets := utils.ParseBuckets(os.Getenv("E2E_TIME_BUCKETS"))
	m := &metric.Metric{}
	m.RegisterMetrics(prometheus.DefaultRegisterer, sentDataBuckets, procTimeBuckets, nil, e2eTimeBuckets)

	conf := &internal.Config{
		SourceId:       utils.GetEnv("SOURCE_ID", ""),
		PollInterval:   utils.GetEnvDuration("POLL_INTERVAL", time.Second),
		PollTimeout:    utils.GetEnvDuration("POLL_TIMEOUT", 2*time.Second),
		StreamInterval: utils.GetEnvDuration("STREAM_INTERVAL", 500*time.Millisecond),
	}
	if conf.PollInterval <= 0 || conf.StreamInterval <= 0 {
		log.Fatalf("POLL_INTERVAL and STREAM_INTERVAL must be positive")
	}

	s := internal.NewServer(
		conf,
		snapshot.NewHistory(utils.GetEnvInt("HISTORY_SIZE", snapshot.DefaultHistorySize)),
		internal.NewAlerter(utils.GetEnvInt("ALERT_THRESHOLD", internal.DefaultAlertThreshold)),
		m,
	)

	// Setup the remote tracking service and keep a client connected to it
	REMOTE_TRACKER_HOST := os.Getenv("REMOTE_TRACKER_HOST")
	REMOTE_TRACKER_PORT := os.Getenv("REMOTE_TRACKER_PORT")
	if REMOTE_TRACKER_HOST == "" || REMOTE_TRACKER_PORT == "" {
		panic("REMOTE_TRACKER_HOST or REMOTE_TRACKER_PORT environment variable is not set")
	}
	targetTrackingSvc := api.Service{
		Address: REMOTE_TRACKER_HOST,
		Port:    REMOTE_TRACKER_PORT,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go utils.MonitorConnection(ctx, targetTrackingSvc, &s.TrClient, 5*time.Second)
	go s.Run(ctx)

	httpAddr := os.Getenv("HTTP_ADDR")
	httpPort := utils.GetEnv("HTTP_PORT", "8080")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	s.Routes(mux)

	server := &http.Server{
		Addr:    net.JoinHostPort(httpAddr, httpPort),
		Handler: mux,
		// open event streams end with the poller
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	// Start server in a goroutine
	go func() {
		log.Infof("Starting HTTP server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()

	// Set up channel to listen for interrupt or terminate signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan // Wait for signal
	log.Info("Received shutdown signal")
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Error shutting down server: %v", err)
	}
	log.Info("Server shut down gracefully")
}
