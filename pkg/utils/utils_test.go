package utils

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	api "github.com/etesami/people-counting-system/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateRtt(t *testing.T) {
	base := time.UnixMilli(1_700_000_000_000)
	rtt, err := CalculateRtt(base, base.Add(3*time.Millisecond), base.Add(50*time.Millisecond), base.Add(52*time.Millisecond))
	require.NoError(t, err)
	assert.InDelta(t, 5.0, rtt, 1e-9)

	_, err = CalculateRtt(base, base.Add(-time.Millisecond), base, base)
	require.Error(t, err)
}

func TestUnixTimes(t *testing.T) {
	tm, err := StrUnixToTime("1700000000123")
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000_123), tm.UnixMilli())

	_, err = StrUnixToTime("soon")
	require.Error(t, err)
}

func TestParseBuckets(t *testing.T) {
	assert.Nil(t, ParseBuckets(""))
	assert.Equal(t, []float64{0.5, 1, 10}, ParseBuckets("0.5, 1,10"))
	assert.Nil(t, ParseBuckets("1,x"))
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("PC_STR", "  value ")
	t.Setenv("PC_INT", "7")
	t.Setenv("PC_BAD_INT", "seven")
	t.Setenv("PC_FLOAT", "0.5")
	t.Setenv("PC_DUR", "250ms")
	t.Setenv("PC_SECS", "2")
	t.Setenv("PC_BAD_DUR", "later")

	assert.Equal(t, "value", GetEnv("PC_STR", "def"))
	assert.Equal(t, "def", GetEnv("PC_UNSET", "def"))
	assert.Equal(t, 7, GetEnvInt("PC_INT", 1))
	assert.Equal(t, 1, GetEnvInt("PC_BAD_INT", 1))
	assert.Equal(t, 0.5, GetEnvFloat("PC_FLOAT", 0.35))
	assert.Equal(t, 0.35, GetEnvFloat("PC_UNSET", 0.35))
	assert.Equal(t, 250*time.Millisecond, GetEnvDuration("PC_DUR", time.Second))
	assert.Equal(t, 2*time.Second, GetEnvDuration("PC_SECS", time.Second))
	assert.Equal(t, time.Second, GetEnvDuration("PC_BAD_DUR", time.Second))
}

func TestMonitorConnectionStoresClient(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()
	host, port, err := net.SplitHostPort(lis.Addr().String())
	require.NoError(t, err)

	var ref atomic.Value
	_, ok := LoadClient(&ref)
	require.False(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		MonitorConnection(ctx, api.Service{Address: host, Port: port}, &ref, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, ok := LoadClient(&ref)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop")
	}
}
