package ops_api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/custody-ledger/internal/config"
	"github.com/custody-ledger/internal/ops_api/handler"
	"github.com/custody-ledger/internal/ops_api/service"
	"github.com/custody-ledger/internal/platform/metrics"
	"github.com/gin-gonic/gin"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/prometheus/client_golang/prometheus"
)

// Services bundles what the HTTP handlers read from and write to
type Services struct {
	Wallets  service.WalletService
	Reports  service.ReportService
	Commands service.CommandService
	Payouts  service.PayoutService
}

// Server handles HTTP requests and manages the application's lifecycle
type Server struct {
	logger          *slog.Logger
	httpServer      *http.Server
	httpRouter      *gin.Engine
	shutdownTimeout time.Duration
}

// NewServer creates the ops HTTP server. db may be nil, in which case /ready
// only reports the process is up.
func NewServer(
	log *slog.Logger,
	cfg *config.Config,
	svc Services,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
	db Pinger,
	clk clock.Clock,
) *Server {
	if cfg.Application.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	httpRouter := gin.New()

	setupRouter(log, httpRouter, handlers{
		wallets:  handler.NewWalletHandler(log, svc.Wallets),
		commands: handler.NewCommandHandler(log, svc.Commands),
		reports:  handler.NewReportHandler(log, svc.Reports, clk),
		payouts:  handler.NewPayoutHandler(log, svc.Payouts),
	}, m, gatherer, db, clk)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpRouter,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		logger:          log,
		httpServer:      httpServer,
		httpRouter:      httpRouter,
		shutdownTimeout: cfg.Server.ShutdownTimeout,
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.httpRouter
}

// Start begins listening for HTTP requests and blocks until Stop
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop drains in-flight requests, giving up after the shutdown timeout
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop HTTP server: %w", err)
	}
	return nil
}
