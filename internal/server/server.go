package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"conversation-chaos/internal/api"
	"conversation-chaos/internal/config"
	"conversation-chaos/internal/ledger"
	"conversation-chaos/internal/logging"
	"conversation-chaos/internal/monitoring"
	"conversation-chaos/internal/rng"
	"conversation-chaos/internal/security"
	"conversation-chaos/internal/tracing"
)

// Version is reported by health checks.
const Version = "1.0.0"

type Server struct {
	config     *config.Config
	logger     *logging.Logger
	ledger     ledger.Store
	tracing    *tracing.TracingService
	limiter    *security.RateLimiter
	grpcServer *GRPCServer
	httpServer *HTTPServer
	startTime  time.Time
}

func NewServer(cfg *config.Config) (*Server, error) {
	logger := logging.NewLogger(&cfg.Logging)

	logger.Info("Initializing server",
		"version", Version,
		"ledger_backend", cfg.Ledger.Backend,
	)

	ts, err := tracing.NewTracingService(cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracing service: %w", err)
	}

	var metrics *monitoring.ChaosMetrics
	if cfg.Metrics.Enabled {
		metrics = monitoring.NewChaosMetrics()
	}

	store, err := ledger.NewStore(&cfg.Ledger)
	if err != nil {
		ts.Close(context.Background())
		return nil, fmt.Errorf("failed to open run ledger: %w", err)
	}
	instrumented := ledger.NewInstrumentedStore(store, logger, metrics, ts)

	health := monitoring.NewHealthManager(Version)
	health.RegisterChecker(monitoring.NewLedgerHealthChecker(instrumented, ledger.Backend(store)))
	health.RegisterChecker(monitoring.NewDeterminismChecker(rng.SelfTest))
	health.RegisterChecker(monitoring.NewRuntimeHealthChecker(1024, 10000))

	var limiter *security.RateLimiter
	if cfg.Server.RateLimit.Enabled {
		limiter = security.NewRateLimiter(cfg.Server.RateLimit, logger, metrics)
	}

	restHandler := api.NewRESTHandler(cfg, api.Dependencies{
		Ledger:      instrumented,
		Logger:      logger,
		Metrics:     metrics,
		Health:      health,
		Tracing:     ts,
		RateLimiter: limiter,
	})

	return &Server{
		config:     cfg,
		logger:     logger,
		ledger:     instrumented,
		tracing:    ts,
		limiter:    limiter,
		grpcServer: NewGRPCServer(cfg, instrumented, logger),
		httpServer: NewHTTPServer(cfg, restHandler, logger),
		startTime:  time.Now(),
	}, nil
}

// Start runs both servers until one fails or SIGINT/SIGTERM arrives
func (s *Server) Start() error {
	s.logger.Info("Starting conversation chaos server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 2)

	if err := s.grpcServer.Start(); err != nil {
		return fmt.Errorf("gRPC server failed: %w", err)
	}

	go func() {
		if err := s.httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	s.logger.Info("Server started successfully",
		"http_port", s.config.Server.Port,
		"grpc_port", s.config.Server.GRPCPort,
	)

	select {
	case err := <-errChan:
		s.logger.Error("Server encountered an error", "error", err.Error())
		s.Shutdown(ctx)
		return err
	case sig := <-sigChan:
		s.logger.Info("Received shutdown signal", "signal", sig.String())
		return s.Shutdown(ctx)
	}
}

// Shutdown stops both servers, then closes the ledger and flushes traces
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	done := make(chan error, 1)

	go func() {
		s.grpcServer.Stop()

		if err := s.httpServer.Stop(shutdownCtx); err != nil {
			s.logger.Error("Failed to stop HTTP server", "error", err.Error())
		}
		if s.limiter != nil {
			s.limiter.Stop()
		}

		var errs []error
		if err := s.ledger.Close(); err != nil {
			s.logger.Error("Failed to close run ledger", "error", err.Error())
			errs = append(errs, err)
		}
		if err := s.tracing.Close(shutdownCtx); err != nil {
			s.logger.Error("Failed to flush traces", "error", err.Error())
			errs = append(errs, err)
		}
		done <- errors.Join(errs...)
	}()

	select {
	case err := <-done:
		if err != nil {
			s.logger.Error("Error during shutdown", "error", err.Error())
			return err
		}
		s.logger.Info("Server shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		s.logger.Error("Shutdown timeout exceeded")
		return fmt.Errorf("shutdown timeout exceeded")
	}
}

func (s *Server) GetUptime() time.Duration {
	return time.Since(s.startTime)
}
