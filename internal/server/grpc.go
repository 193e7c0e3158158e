package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"conversation-chaos/internal/config"
	"conversation-chaos/internal/logging"
	"conversation-chaos/internal/monitoring"
)

// LedgerService is the health service name that tracks the run ledger. The
// empty name reports the server as a whole.
const LedgerService = "conversation-chaos.Ledger"

const defaultPingInterval = 10 * time.Second

// GRPCServer exposes the standard gRPC health service. Status follows the
// ledger: NOT_SERVING while it does not answer pings.
type GRPCServer struct {
	config   *config.Config
	logger   *logging.Logger
	ledger   monitoring.Pinger
	health   *health.Server
	server   *grpc.Server
	interval time.Duration

	stopPing chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewGRPCServer creates a new gRPC server. A nil ledger leaves the status
// at SERVING.
func NewGRPCServer(cfg *config.Config, ledger monitoring.Pinger, logger *logging.Logger) *GRPCServer {
	s := &GRPCServer{
		config:   cfg,
		logger:   logger,
		ledger:   ledger,
		health:   health.NewServer(),
		interval: defaultPingInterval,
		stopPing: make(chan struct{}),
	}

	s.server = grpc.NewServer(grpc.UnaryInterceptor(s.loggingInterceptor))
	healthpb.RegisterHealthServer(s.server, s.health)
	reflection.Register(s.server)
	return s
}

// Start listens on the configured gRPC port and serves in the background
func (s *GRPCServer) Start() error {
	address := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.GRPCPort)

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	s.logger.Info("Starting gRPC server", "address", address, "service", "grpc")
	go func() {
		if err := s.Serve(listener); err != nil {
			s.logger.Error("gRPC server failed", "error", err.Error())
		}
	}()
	return nil
}

// Serve pings the ledger and serves on lis until Stop
func (s *GRPCServer) Serve(lis net.Listener) error {
	s.pingLedger(context.Background())
	s.wg.Add(1)
	go s.pingLoop()
	return s.server.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains in-flight calls
func (s *GRPCServer) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping gRPC server")
		close(s.stopPing)
		s.wg.Wait()
		s.health.Shutdown()
		s.server.GracefulStop()
	})
}

func (s *GRPCServer) pingLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopPing:
			return
		case <-ticker.C:
			s.pingLedger(context.Background())
		}
	}
}

// pingLedger pings the ledger and publishes the result
func (s *GRPCServer) pingLedger(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if s.ledger != nil {
		ctx, cancel := context.WithTimeout(ctx, s.interval)
		defer cancel()
		if err := s.ledger.Ping(ctx); err != nil {
			s.logger.Warn("Ledger health ping failed", "error", err.Error())
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}

	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(LedgerService, status)
}

// loggingInterceptor is a gRPC unary interceptor for logging
func (s *GRPCServer) loggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()

	resp, err := handler(ctx, req)

	duration := time.Since(start)
	if err != nil {
		s.logger.ErrorContext(ctx, "gRPC request failed",
			"method", info.FullMethod,
			"duration_ms", duration.Milliseconds(),
			"error", err.Error(),
		)
	} else {
		s.logger.DebugContext(ctx, "gRPC request completed",
			"method", info.FullMethod,
			"duration_ms", duration.Milliseconds(),
		)
	}
	return resp, err
}
