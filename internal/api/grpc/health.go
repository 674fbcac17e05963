package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"property-ledger-backend/internal/logger"
)

// LedgerServiceName is the health service name clients can ask for in
// addition to the overall "" status.
const LedgerServiceName = "ledger.v1.Ledger"

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthReporter publishes database readiness through the standard gRPC
// health protocol.
type HealthReporter struct {
	server   *health.Server
	db       Pinger
	interval time.Duration
	timeout  time.Duration
}

func NewHealthReporter(db Pinger, interval time.Duration) *HealthReporter {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	h := &HealthReporter{
		server:   health.NewServer(),
		db:       db,
		interval: interval,
		timeout:  2 * time.Second,
	}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Register attaches the health service to s.
func (h *HealthReporter) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Server exposes the underlying health implementation.
func (h *HealthReporter) Server() healthpb.HealthServer {
	return h.server
}

// Check pings the database once and publishes the result.
func (h *HealthReporter) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if h.db == nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	} else {
		pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
		err := h.db.Ping(pingCtx)
		cancel()
		if err != nil {
			logger.Warn("Database health check failed", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	h.set(status)
	return status
}

// Run checks readiness every interval until ctx is cancelled, then marks
// every service as not serving.
func (h *HealthReporter) Run(ctx context.Context) {
	h.Check(ctx)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}

func (h *HealthReporter) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(LedgerServiceName, status)
}
