package api

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"diagdesk/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func startGRPC(t *testing.T, cfg config.APIConfig, probe Probe) (healthpb.HealthClient, *GRPCServer) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	logger := zerolog.Nop()
	srv := newGRPCServer(cfg, lis, probe, &logger)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
		defer done()
		srv.Shutdown(shutdownCtx)
	})

	conn, err := grpc.NewClient(srv.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn), srv
}

func TestGRPCHealth_Serving(t *testing.T) {
	client, _ := startGRPC(t, config.APIConfig{}, func(context.Context) error { return nil })

	var header metadata.MD
	ctx := metadata.AppendToOutgoingContext(context.Background(), requestIDMetadataKey, "req-1")
	require.Eventually(t, func() bool {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName}, grpc.Header(&header))
		return err == nil && resp.Status == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"req-1"}, header.Get(requestIDMetadataKey))
}

func TestGRPCHealth_ProbeFailure(t *testing.T) {
	var healthy atomic.Bool
	client, srv := startGRPC(t, config.APIConfig{}, func(context.Context) error {
		if healthy.Load() {
			return nil
		}
		return errors.New("backend down")
	})

	require.Eventually(t, func() bool {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
		return err == nil && resp.Status == healthpb.HealthCheckResponse_NOT_SERVING
	}, 2*time.Second, 20*time.Millisecond)

	healthy.Store(true)
	srv.check(context.Background())
	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func TestGRPC_RateLimit(t *testing.T) {
	client, _ := startGRPC(t, config.APIConfig{RateLimit: config.APIRateLimitConfig{RPS: 0.001, Burst: 1}}, nil)

	var lastErr error
	for i := 0; i < 3; i++ {
		_, lastErr = client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	}
	assert.Equal(t, codes.ResourceExhausted, status.Code(lastErr))
}

func TestRequestIDFromMetadata(t *testing.T) {
	assert.NotEmpty(t, requestIDFromMetadata(context.Background()))

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(requestIDMetadataKey, " abc "))
	assert.Equal(t, "abc", requestIDFromMetadata(ctx))
}
