// Package grpc exposes the standard gRPC health service for the storefront
// daemon. Serving status follows the keyed store's reachability.
package grpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/oriys/storefront/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported alongside the overall
// ("") status.
const ServiceName = "storefront"

// Pinger reports whether a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server serves gRPC health checks.
type Server struct {
	pinger   Pinger
	interval time.Duration
	server   *grpc.Server
	health   *health.Server

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a health server that pings p every interval.
func NewServer(p Pinger, interval time.Duration) *Server {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	s := &Server{
		pinger:   p,
		interval: interval,
		server:   grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor)),
		health:   health.NewServer(),
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.Serve(lis)
	logging.Op().Info("gRPC health server started", "addr", lis.Addr().String())
	return nil
}

// Serve serves on lis in the background and starts the status watcher.
func (s *Server) Serve(lis net.Listener) {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.Refresh(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.watch(ctx)
	}()

	go func() {
		if err := s.server.Serve(lis); err != nil {
			logging.Op().Error("gRPC server error", "error", err)
		}
	}()
}

// Stop marks the service as not serving and stops gracefully.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()

	s.health.Shutdown()
	s.server.GracefulStop()
}

// Refresh pings the backend once and updates the serving status.
func (s *Server) Refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.pinger.Ping(ctx); err != nil {
		logging.Op().Warn("health check failed", "error", err)
		s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	s.setStatus(healthpb.HealthCheckResponse_SERVING)
}

func (s *Server) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

func (s *Server) watch(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}
