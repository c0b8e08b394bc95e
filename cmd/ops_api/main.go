package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/custody-ledger/internal/config"
	"github.com/custody-ledger/internal/data/mongo"
	"github.com/custody-ledger/internal/data/postgres"
	"github.com/custody-ledger/internal/logger"
	"github.com/custody-ledger/internal/ops_api"
	"github.com/custody-ledger/internal/ops_api/service"
	"github.com/custody-ledger/internal/platform/messaging/producers"
	"github.com/custody-ledger/internal/platform/metrics"
	"github.com/custody-ledger/internal/platform/persistence"
	engine "github.com/custody-ledger/internal/wallet_engine/service"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("ops_api")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	clk := clock.NewDefaultClock()
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	commandProducer, err := producers.NewCommandProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize command Kafka producer", "error", err)
		os.Exit(1)
	}

	// reads only: the ledger here never records entries
	ledger := engine.NewBalanceLedger(log, postgresDB, engine.Repositories{
		Wallets:   postgres.NewWalletRepository(log, postgresDB),
		Entries:   postgres.NewLedgerRepository(log, postgresDB),
		Addresses: postgres.NewAddressRepository(log, postgresDB),
	}, clk)

	server := ops_api.NewServer(log, cfg, ops_api.Services{
		Wallets:  service.NewWalletService(ledger, postgres.NewAddressRepository(log, postgresDB)),
		Reports:  service.NewReportService(mongo.NewReportRepository(log, mongoDB.Database())),
		Commands: service.NewCommandService(log, commandProducer, clk, m),
		Payouts:  service.NewPayoutService(postgres.NewPayoutRepository(log, postgresDB)),
	}, m, registry, postgresDB, clk)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	// stop taking requests before closing what they use
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}
	if err := commandProducer.Close(); err != nil {
		log.Error("Error closing Kafka producer", "error", err)
	}
	postgresDB.Close()
	if err := mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	if serverErr != nil {
		log.Error("Ops API shutdown with errors", "error", serverErr)
		os.Exit(1)
	}
	log.Info("Ops API shutdown completed")
}
