// Package server runs the optional gRPC listener used by orchestrators for
// health checks.
package server

import (
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health-checked service.
const ServiceName = "webmcp.v1.Relay"

// HealthServer serves grpc.health.v1 and reflection.
type HealthServer struct {
	grpc   *grpc.Server
	health *health.Server
	logger *zap.Logger
}

func NewHealthServer(logger *zap.Logger) *HealthServer {
	gs := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: 5 * time.Minute,
			Time:              30 * time.Second,
			Timeout:           5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             10 * time.Second,
			PermitWithoutStream: true,
		}),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	// Reflection for grpcurl.
	reflection.Register(gs)

	return &HealthServer{grpc: gs, health: hs, logger: logger}
}

// Serve blocks until the listener fails or Shutdown is called.
func (s *HealthServer) Serve(lis net.Listener) error {
	s.logger.Info("grpc health server listening", zap.String("addr", lis.Addr().String()))
	return s.grpc.Serve(lis)
}

// SetServing flips the relay's reported status.
func (s *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_SERVING
	if !serving {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
}

// Shutdown reports NOT_SERVING and stops the server gracefully.
func (s *HealthServer) Shutdown() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
