// Package health holds the readiness probe shared by /readyz and the gRPC
// health service.
package health

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"procuredata.io/internal/obs"
)

// ServiceName is the name registered with the gRPC health service.
const ServiceName = "procuredata-api"

// Checker reports whether the service can take traffic.
type Checker interface {
	Check(ctx context.Context) error
}

// Probe pings the database when one is configured.
type Probe struct {
	DB *sql.DB
}

func (p Probe) Check(ctx context.Context) error {
	if p.DB == nil {
		return nil
	}
	return p.DB.PingContext(ctx)
}

// GRPCServer exposes grpc.health.v1.Health with a status driven by a Checker.
type GRPCServer struct {
	hs *health.Server
}

func NewGRPCServer() *GRPCServer {
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &GRPCServer{hs: hs}
}

// Register installs the health service on srv.
func (g *GRPCServer) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, g.hs)
}

// Refresh runs one check and updates the serving status.
func (g *GRPCServer) Refresh(ctx context.Context, probe Checker) error {
	err := probe.Check(ctx)
	status := healthpb.HealthCheckResponse_SERVING
	if err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.hs.SetServingStatus("", status)
	g.hs.SetServingStatus(ServiceName, status)
	obs.SetReady(err == nil)
	return err
}

// Watch refreshes the status every interval until ctx ends, then marks the
// service as shutting down.
func (g *GRPCServer) Watch(ctx context.Context, probe Checker, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	check := func() {
		cctx, cancel := context.WithTimeout(ctx, interval/2)
		defer cancel()
		if err := g.Refresh(cctx, probe); err != nil && ctx.Err() == nil {
			obs.Logger().Warn("readiness check failed", zap.Error(err))
		}
	}
	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			g.hs.Shutdown()
			return
		case <-ticker.C:
			check()
		}
	}
}
