package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	api "github.com/etesami/people-counting-system/api"
	metric "github.com/etesami/people-counting-system/pkg/metric"
	"github.com/etesami/people-counting-system/pkg/tracker"
	utils "github.com/etesami/people-counting-system/pkg/utils"
	"github.com/etesami/people-counting-system/pkg/zone"
	log "github.com/sirupsen/logrus"

	"github.com/etesami/people-counting-system/svc-tracker/internal"
	"google.golang.org/grpc"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func loadZones(path string) []zone.Zone {
	if path == "" {
		log.Warn("ZONES_FILE is not set, counting without zones")
		return nil
	}
	zones, err := zone.Load(path)
	if err != nil {
		log.Fatalf("Error loading zones: %v", err)
	}
	log.Infof("Loaded %d zone(s) from %s", len(zones), path)
	return zones
}

func main() {
	utils.SetupLogging(utils.GetEnv("LOG_LEVEL", "info"))

	// Setup the metric service for tracking metrics both locally and remote services
	e2eTimeBuckets := utils.ParseBuckets(os.Getenv("E2E_TIME_BUCKETS"))
	procTimeBuckets := utils.ParseBuckets(os.Getenv("PROC_TIME_BUCKETS"))
	sentDataByteBuckets := utils.ParseBuckets(os.Getenv("SENT_DATA_BYTE_BUCKETS"))
	transTimeBuckets := utils.ParseBuckets(os.Getenv("TRANSMIT_TIME_BUCKETS"))
	m := &metric.Metric{}
	m.RegisterMetrics(prometheus.DefaultRegisterer, sentDataByteBuckets, procTimeBuckets, transTimeBuckets, e2eTimeBuckets)

	// Local service initialization (detector) to receive detections
	svcHost := os.Getenv("SVC_TRACKER_HOST")
	svcPort := os.Getenv("SVC_TRACKER_PORT")
	if svcPort == "" || svcHost == "" {
		panic("SVC_TRACKER_HOST or SVC_TRACKER_PORT environment variable is not set")
	}
	localSvc := &api.Service{
		Address: svcHost,
		Port:    svcPort,
	}

	config := tracker.Config{
		IoUThreshold: utils.GetEnvFloat("IOU_THRESHOLD", tracker.BaseConfig.IoUThreshold),
		MaxAge:       utils.GetEnvInt("MAX_AGE", tracker.BaseConfig.MaxAge),
	}
	if err := config.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	zonesFile := os.Getenv("ZONES_FILE")
	s := internal.NewServer(config, loadZones(zonesFile), m)

	// We listen on all interfaces
	listener, err := net.Listen("tcp", fmt.Sprintf(":%s", localSvc.Port))
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}

	grpcServer := grpc.NewServer()
	api.RegisterPipelineServer(grpcServer, s)

	go func() {
		log.Infof("Starting gRPC server on %s", localSvc.Target())
		if err := grpcServer.Serve(listener); err != nil {
			log.Fatalf("Failed to serve: %v", err)
		}
	}()

	metricAddr := os.Getenv("METRIC_ADDR")
	metricPort := utils.GetEnv("METRIC_PORT", "9100")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    net.JoinHostPort(metricAddr, metricPort),
		Handler: mux,
	}

	// Start server in a goroutine
	go func() {
		log.Infof("Starting metrics server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()

	// SIGHUP reloads the zones file, SIGINT/SIGTERM stop the service
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigChan {
		if sig != syscall.SIGHUP {
			break
		}
		if zonesFile == "" {
			log.Warn("Received SIGHUP but ZONES_FILE is not set")
			continue
		}
		zones, err := zone.Load(zonesFile)
		if err != nil {
			log.Errorf("Keeping current zones, reload failed: %v", err)
			continue
		}
		s.SetZones(zones)
	}

	log.Info("Received shutdown signal")
	grpcServer.GracefulStop()
	if err := server.Shutdown(context.Background()); err != nil {
		log.Errorf("Error shutting down server: %v", err)
	}
	log.Info("Server shut down gracefully")
}
