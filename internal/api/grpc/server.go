// Package grpcapi serves the standard gRPC health service, reflecting the
// caption pipeline's state.
package grpcapi

import (
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"scanner-caption-service/internal/observability"
	"scanner-caption-service/internal/observability/logging"
	"scanner-caption-service/internal/observability/metrics"
)

// ServiceName is the health service name of the caption pipeline.
const ServiceName = "scanner.caption.Pipeline"

// Server wraps a gRPC server exposing health and reflection.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	lis    net.Listener
	logger zerolog.Logger
}

// New binds port and registers the health service. Both the overall and the
// pipeline status start as NOT_SERVING.
func New(port string) (*Server, error) {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return nil, err
	}

	g := grpc.NewServer(
		grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor(metrics.DefaultMetrics)),
		grpc.ChainStreamInterceptor(observability.StreamServerInterceptor(metrics.DefaultMetrics)),
	)

	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(g, hs)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(g)

	return &Server{
		grpc:   g,
		health: hs,
		lis:    lis,
		logger: logging.WithComponent("grpc"),
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.lis.Addr().String()
}

// Serve runs the server in a goroutine.
func (s *Server) Serve() {
	go func() {
		s.logger.Info().Str("addr", s.Addr()).Msg("gRPC health server started")
		if err := s.grpc.Serve(s.lis); err != nil {
			s.logger.Error().Err(err).Msg("gRPC serve failed")
		}
	}()
}

// SetServing updates the reported status.
func (s *Server) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Shutdown reports NOT_SERVING and stops the server gracefully.
func (s *Server) Shutdown() {
	s.logger.Info().Msg("Shutting down gRPC server")
	s.SetServing(false)
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
