package utils

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	api "github.com/etesami/people-counting-system/api"
	log "github.com/sirupsen/logrus"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
)

// CalculateRtt returns the network part of a round trip in milliseconds:
// request transit plus ack transit, remote processing excluded.
func CalculateRtt(msgSentTime, msgRecTime, ackSentTime, ackRecTime time.Time) (float64, error) {
	t1 := msgRecTime.Sub(msgSentTime)
	t2 := ackRecTime.Sub(ackSentTime)
	if t1 < 0 || t2 < 0 {
		return -1, fmt.Errorf("clock skew: request %v, ack %v", t1, t2)
	}
	return float64(t1+t2) / float64(time.Millisecond), nil
}

func StrUnixToTime(unixStr string) (time.Time, error) {
	unixInt, err := strconv.ParseInt(unixStr, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse unix time: %w", err)
	}
	return UnixMilliToTime(unixInt), nil
}

// UnixMilliToTime converts a Unix timestamp in milliseconds to a time.Time object
func UnixMilliToTime(unixMilli int64) time.Time {
	return time.UnixMilli(unixMilli)
}

// ParseBuckets parses a comma-separated string of bucket values into a slice of float64
func ParseBuckets(env string) []float64 {
	if env == "" {
		return nil
	}
	parts := strings.Split(env, ",")
	var buckets []float64
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			log.Warnf("Error parsing bucket value '%s': %v", p, err)
			return nil
		}
		buckets = append(buckets, f)
	}
	return buckets
}

// GetEnv returns the variable or def when unset or empty.
func GetEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func GetEnvInt(key string, def int) int {
	v := GetEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warnf("Invalid %s=%q, using %d: %v", key, v, def, err)
		return def
	}
	return n
}

func GetEnvFloat(key string, def float64) float64 {
	v := GetEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Warnf("Invalid %s=%q, using %v: %v", key, v, def, err)
		return def
	}
	return f
}

// GetEnvDuration accepts Go durations ("500ms") or bare seconds ("2").
func GetEnvDuration(key string, def time.Duration) time.Duration {
	v := GetEnv(key, "")
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if s, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(s * float64(time.Second))
	}
	log.Warnf("Invalid %s=%q, using %v", key, v, def)
	return def
}

// SetupLogging sets the logrus level from a name such as "debug"; unknown
// names keep info.
func SetupLogging(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.Warnf("Unknown log level %q, using info", level)
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

// MonitorConnection keeps clientRef holding an api.PipelineClient for
// targetSvc, reconnecting every interval while the service is down. It
// returns when ctx is done.
func MonitorConnection(ctx context.Context, targetSvc api.Service, clientRef *atomic.Value, interval time.Duration) {
	var conn *grpc.ClientConn
	defer func() {
		if conn != nil {
			conn.Close()
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := targetSvc.ServiceReachable(); err != nil {
			log.Warnf("Target service [%s] is not reachable: %v", targetSvc.Target(), err)
		} else if conn == nil || conn.GetState() == connectivity.Shutdown || conn.GetState() == connectivity.TransientFailure {
			if conn != nil {
				conn.Close()
			}
			newConn, err := grpc.NewClient(targetSvc.Target(), grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				log.Errorf("Failed to connect: %v", err)
				conn = nil
			} else {
				conn = newConn
				clientRef.Store(api.NewPipelineClient(conn))
				log.Infof("gRPC client for [%s] connected and stored", targetSvc.Target())
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// LoadClient returns the client stored by MonitorConnection, if any.
func LoadClient(clientRef *atomic.Value) (api.PipelineClient, bool) {
	c, ok := clientRef.Load().(api.PipelineClient)
	return c, ok
}
