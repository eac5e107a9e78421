package api

import (
	"context"
	"fmt"
	"net"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/edfinlab/spendtrends/internal/metrics"
	"github.com/edfinlab/spendtrends/internal/models"
	"github.com/edfinlab/spendtrends/internal/utils"
)

// ServiceName is the health-checked service; "" reports the whole server.
const ServiceName = "spendtrends.Pipeline"

// HealthServer exposes the gRPC health protocol for watch mode. The pipeline
// service reports SERVING after a successful run and NOT_SERVING after a
// failed one, so probes see stale or broken output.
type HealthServer struct {
	gracefulTimeout time.Duration
	grpcServer      *grpc.Server
	health          *health.Server
	listener        net.Listener
}

// NewHealthServer constructs a gRPC server bound to address.
func NewHealthServer(address string, gracefulTimeout time.Duration, opts ...grpc.ServerOption) (*HealthServer, error) {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", address, err)
	}

	grpc_prometheus.EnableHandlingTimeHistogram()
	serverOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
		grpc.ChainStreamInterceptor(grpc_prometheus.StreamServerInterceptor),
	}
	serverOpts = append(serverOpts, opts...)
	grpcServer := grpc.NewServer(serverOpts...)

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	// Nothing has run yet.
	healthSrv.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	grpc_prometheus.Register(grpcServer)

	reflection.Register(grpcServer)

	return &HealthServer{
		gracefulTimeout: gracefulTimeout,
		grpcServer:      grpcServer,
		health:          healthSrv,
		listener:        lis,
	}, nil
}

// RunCompleted flips the pipeline service status after each run.
func (s *HealthServer) RunCompleted(sample utils.RunSample, _ *models.RunResult, _ []string) {
	status := healthpb.HealthCheckResponse_SERVING
	if sample.Outcome == metrics.OutcomeError {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
}

// Start serves incoming gRPC requests until Shutdown is invoked.
func (s *HealthServer) Start() error {
	if s.grpcServer == nil || s.listener == nil {
		return fmt.Errorf("server not initialised")
	}
	return s.grpcServer.Serve(s.listener)
}

// Shutdown attempts a graceful shutdown, falling back to Stop when ctx ends.
func (s *HealthServer) Shutdown(ctx context.Context) {
	if s.grpcServer == nil {
		return
	}
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		s.grpcServer.Stop()
	case <-stopped:
	}
}

// Address exposes the bound listener address.
func (s *HealthServer) Address() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// GracefulTimeout returns the configured graceful timeout duration.
func (s *HealthServer) GracefulTimeout() time.Duration {
	return s.gracefulTimeout
}
