package ops_api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/custody-ledger/internal/ops_api/handler"
	"github.com/custody-ledger/internal/ops_api/middleware"
	"github.com/custody-ledger/internal/platform/metrics"
	"github.com/gin-gonic/gin"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

type handlers struct {
	wallets  *handler.WalletHandler
	commands *handler.CommandHandler
	reports  *handler.ReportHandler
	payouts  *handler.PayoutHandler
}

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	h handlers,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
	db Pinger,
	clk clock.Clock,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Logger(logger, "/health", "/ready", "/metrics"))
	r.Use(middleware.Metrics(m))

	v1 := r.Group("/api/v1")
	{
		wallets := v1.Group("/wallets")
		{
			wallets.POST("", h.commands.CreateWallet)
			wallets.GET("/:id", h.wallets.Get)
			wallets.GET("/:id/balance", h.wallets.Balance)
			wallets.GET("/:id/entries", h.wallets.Entries)
			wallets.GET("/:id/addresses", h.wallets.Addresses)
			wallets.POST("/:id/addresses", h.commands.AllocateAddress)
		}

		v1.POST("/transfers", h.commands.Transfer)
		v1.POST("/payouts", h.commands.RequestPayout)
		v1.GET("/payouts/:id", h.payouts.Get)

		reports := v1.Group("/reconciliation/reports")
		{
			reports.GET("", h.reports.List)
			reports.GET("/latest", h.reports.Latest)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": clk.Now().UTC()})
	})

	// ready also checks the ledger database
	r.GET("/ready", func(c *gin.Context) {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				logger.Warn("Readiness check failed", "error", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}
