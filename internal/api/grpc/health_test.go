package grpc

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type fakePinger struct {
	fail  atomic.Bool
	calls atomic.Int32
}

func (p *fakePinger) Ping(ctx context.Context) error {
	p.calls.Add(1)
	if p.fail.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func servingStatus(t *testing.T, h *HealthReporter, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := h.Server().Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.Status
}

func TestHealthReporter_Check(t *testing.T) {
	db := &fakePinger{}
	h := NewHealthReporter(db, time.Minute)

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(t, h, ""))

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, h.Check(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(t, h, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(t, h, LedgerServiceName))

	db.fail.Store(true)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, h.Check(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(t, h, LedgerServiceName))
}

func TestHealthReporter_NilPinger(t *testing.T) {
	h := NewHealthReporter(nil, 0)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, h.Check(context.Background()))
}

func TestHealthReporter_Run(t *testing.T) {
	db := &fakePinger{}
	h := NewHealthReporter(db, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return db.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	// Shutdown flips everything to NOT_SERVING.
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(t, h, ""))
}

func TestHealthReporter_UnknownService(t *testing.T) {
	h := NewHealthReporter(&fakePinger{}, time.Minute)
	_, err := h.Server().Check(context.Background(), &healthpb.HealthCheckRequest{Service: "other"})
	assert.Error(t, err)
}
