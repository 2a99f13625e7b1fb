// Package server runs the gRPC health service that orchestrators probe.
// Serving status follows database reachability.
package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/scholarvault/scholarvault-service/internal/database"
)

// ServiceName is the name the service's own status is reported under.
const ServiceName = "scholarvault.v1.ScholarVault"

const defaultCheckInterval = 15 * time.Second

// HealthChecker reports database health.
type HealthChecker interface {
	Health(ctx context.Context) database.HealthStatus
}

// Config holds gRPC server configuration.
type Config struct {
	Address string
	// CheckInterval is how often the database is probed.
	CheckInterval time.Duration
}

// HealthServer serves grpc.health.v1.Health.
type HealthServer struct {
	cfg     Config
	grpc    *grpc.Server
	health  *health.Server
	checker HealthChecker
	logger  zerolog.Logger
}

// NewHealthServer creates the gRPC server and registers the health and
// reflection services. Both the overall status and ServiceName start as
// NOT_SERVING until the first probe.
func NewHealthServer(cfg Config, checker HealthChecker, logger zerolog.Logger) *HealthServer {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = defaultCheckInterval
	}

	gs := grpc.NewServer(
		grpc.MaxConcurrentStreams(100),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     15 * time.Minute,
			MaxConnectionAge:      30 * time.Minute,
			MaxConnectionAgeGrace: 5 * time.Minute,
			Time:                  5 * time.Minute,
			Timeout:               1 * time.Minute,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Minute,
			PermitWithoutStream: true,
		}),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	s := &HealthServer{
		cfg:     cfg,
		grpc:    gs,
		health:  hs,
		checker: checker,
		logger:  logger.With().Str("component", "grpc-health").Logger(),
	}
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Serve accepts connections on lis until Shutdown.
func (s *HealthServer) Serve(lis net.Listener) error {
	s.logger.Info().Str("address", lis.Addr().String()).Msg("gRPC health server starting")
	if err := s.grpc.Serve(lis); err != nil {
		return fmt.Errorf("serve gRPC: %w", err)
	}
	return nil
}

// Start listens on the configured address and serves.
func (s *HealthServer) Start() error {
	lis, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("listen on gRPC port: %w", err)
	}
	return s.Serve(lis)
}

// Watch probes the database every CheckInterval and updates the serving
// status until ctx is done.
func (s *HealthServer) Watch(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	s.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// Refresh probes the database once and returns the resulting status.
func (s *HealthServer) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if s.checker != nil {
		checkCtx, cancel := context.WithTimeout(ctx, s.cfg.CheckInterval)
		h := s.checker.Health(checkCtx)
		cancel()
		if !h.Healthy() {
			s.logger.Warn().Str("status", h.Status).Str("error", h.Error).Msg("database unhealthy")
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.setStatus(status)
	return status
}

// Shutdown marks the service NOT_SERVING and stops the server, forcing the
// stop when ctx expires first.
func (s *HealthServer) Shutdown(ctx context.Context) {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		s.logger.Info().Msg("gRPC server stopped gracefully")
	case <-ctx.Done():
		s.logger.Warn().Msg("gRPC server forced shutdown due to timeout")
		s.grpc.Stop()
	}
}

func (s *HealthServer) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
