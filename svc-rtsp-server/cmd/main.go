package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	metric "github.com/etesami/people-counting-system/pkg/metric"
	utils "github.com/etesami/people-counting-system/pkg/utils"
	"github.com/etesami/people-counting-system/svc-rtsp-server/internal"
	log "github.com/sirupsen/logrus"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	utils.SetupLogging(utils.GetEnv("LOG_LEVEL", "info"))

	RTSP_SERVER_HOST := os.Getenv("RTSP_SERVER_HOST")
	RTSP_SERVER_PORT := os.Getenv("RTSP_SERVER_PORT")
	if RTSP_SERVER_HOST == "" || RTSP_SERVER_PORT == "" {
		panic("RTSP_SERVER_HOST or RTSP_SERVER_PORT environment variable is not set")
	}
	rtspPort, err := strconv.Atoi(RTSP_SERVER_PORT)
	if err != nil {
		log.Fatalf("Invalid RTSP_SERVER_PORT: %v", err)
	}

	FILEPATH := os.Getenv("FILEPATH")
	if FILEPATH == "" {
		panic("FILEPATH environment variable is not set")
	}

	m := &metric.Metric{}
	m.RegisterMetrics(prometheus.DefaultRegisterer,
		utils.ParseBuckets(os.Getenv("SENT_DATA_BUCKETS")),
		utils.ParseBuckets(os.Getenv("PROC_TIME_BUCKETS")),
		utils.ParseBuckets(os.Getenv("TRANSMIT_TIME_BUCKETS")),
		utils.ParseBuckets(os.Getenv("E2E_TIME_BUCKETS")))

	h, err := internal.Start(RTSP_SERVER_HOST, rtspPort, utils.GetEnvInt("UDP_RTP_PORT", 8000))
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer h.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub := &internal.Publisher{Path: FILEPATH, Stream: h.Stream, Metric: m}
	pubErr := make(chan error, 1)
	go func() { pubErr <- pub.Run(ctx) }()

	srvErr := make(chan error, 1)
	go func() { srvErr <- h.Server.Wait() }()

	metricAddr := os.Getenv("METRIC_ADDR")
	metricPort := utils.GetEnv("METRIC_PORT", "9102")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:    net.JoinHostPort(metricAddr, metricPort),
		Handler: mux,
	}
	go func() {
		log.Infof("Starting metrics server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info("Received shutdown signal")
	case err := <-pubErr:
		log.Errorf("Publisher stopped: %v", err)
	case err := <-srvErr:
		log.Errorf("RTSP server stopped: %v", err)
	}
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Error shutting down server: %v", err)
	}
	log.Info("Server shut down gracefully")
}
