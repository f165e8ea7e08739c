package server

import (
	"context"
	"net"
	"testing"
	"time"

	"secure-pastebox/internal/constants"
	"secure-pastebox/internal/platform/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type toggleChecker struct {
	up atomic.Bool
}

func (c *toggleChecker) Available(context.Context) bool { return c.up.Load() }
func (c *toggleChecker) Name() string                   { return "toggle" }

func TestHealthServer_FollowsStore(t *testing.T) {
	checker := &toggleChecker{}
	checker.up.Store(true)

	hs, err := NewHealthServer(config.TLSConfig{}, checker)
	require.NoError(t, err)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hs.Serve(ctx, lis) }()
	defer func() {
		cancel()
		<-done
	}()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		callCtx, callCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer callCancel()
		resp, err := client.Check(callCtx, &healthpb.HealthCheckRequest{Service: constants.HealthServiceName})
		require.NoError(t, err)
		return resp.GetStatus()
	}

	// Watch 啟動時會立即刷新一次
	require.Eventually(t, func() bool {
		return check() == healthpb.HealthCheckResponse_SERVING
	}, 5*time.Second, 20*time.Millisecond)

	checker.up.Store(false)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, hs.Refresh(ctx))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check())

	checker.up.Store(true)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, hs.Refresh(ctx))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check())
}

func TestLoadTLSConfig_Disabled(t *testing.T) {
	tlsConfig, err := LoadTLSConfig(config.TLSConfig{})
	require.NoError(t, err)
	assert.Nil(t, tlsConfig)

	creds, err := LoadTLSCredentials(config.TLSConfig{})
	require.NoError(t, err)
	assert.Nil(t, creds)
}

func TestLoadTLSConfig_MissingFiles(t *testing.T) {
	_, err := LoadTLSConfig(config.TLSConfig{Enabled: true, CertFile: "missing.pem", KeyFile: "missing.key"})
	assert.Error(t, err)
}
