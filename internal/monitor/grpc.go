package monitor

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/finishline/internal/monitoring"
)

// PipelineService is the health service name reported alongside the
// server-wide status.
const PipelineService = "finishline.Pipeline"

// GRPCHealth serves grpc.health.v1. It starts NOT_SERVING.
type GRPCHealth struct {
	server *grpc.Server
	health *health.Server
}

func NewGRPCHealth() *GRPCHealth {
	hs := health.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	g := &GRPCHealth{server: srv, health: hs}
	g.SetServing(false)
	return g
}

// SetServing flips both the server-wide and the pipeline status.
func (g *GRPCHealth) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(PipelineService, status)
}

// Serve blocks serving on lis until Stop.
func (g *GRPCHealth) Serve(lis net.Listener) error {
	monitoring.Opsf("[monitor] grpc health listening on %s", lis.Addr())
	return g.server.Serve(lis)
}

// Stop marks everything NOT_SERVING and drains connections.
func (g *GRPCHealth) Stop() {
	g.health.Shutdown()
	g.server.GracefulStop()
}
