package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/custody-ledger/internal/config"
	"github.com/custody-ledger/internal/data/mongo"
	"github.com/custody-ledger/internal/data/postgres"
	"github.com/custody-ledger/internal/logger"
	"github.com/custody-ledger/internal/platform/lock"
	"github.com/custody-ledger/internal/platform/messaging/consumers"
	"github.com/custody-ledger/internal/platform/messaging/natsbus"
	"github.com/custody-ledger/internal/platform/messaging/producers"
	"github.com/custody-ledger/internal/platform/metrics"
	"github.com/custody-ledger/internal/platform/node"
	"github.com/custody-ledger/internal/platform/persistence"
	"github.com/custody-ledger/internal/wallet_engine/components"
	"github.com/custody-ledger/internal/wallet_engine/consumer"
	"github.com/custody-ledger/internal/wallet_engine/outbox_poller"
	"github.com/custody-ledger/internal/wallet_engine/scheduler"
	"github.com/custody-ledger/internal/wallet_engine/service"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("ledger_worker")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)
	log.Info("Starting Ledger Worker",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
		"network", cfg.Node.Network,
	)

	clk := clock.NewDefaultClock()
	m := metrics.New(prometheus.DefaultRegisterer)

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
	if err := mongoDB.EnsureIndexes(appCtx, mongo.ReportCollectionName, mongo.ReportIndexes()); err != nil {
		log.Error("Failed to prepare report indexes", "error", err)
		os.Exit(1)
	}

	nodeClient, err := node.NewBitcoindClient(log, cfg.Node)
	if err != nil {
		log.Error("Failed to connect to the wallet node", "error", err)
		os.Exit(1)
	}

	locker, err := lock.NewEtcdLocker(appCtx, log, cfg.Etcd)
	if err != nil {
		log.Error("Failed to connect to etcd", "error", err)
		os.Exit(1)
	}

	repos := service.Repositories{
		Wallets:     postgres.NewWalletRepository(log, postgresDB),
		Entries:     postgres.NewLedgerRepository(log, postgresDB),
		Addresses:   postgres.NewAddressRepository(log, postgresDB),
		Deposits:    postgres.NewDepositRepository(log, postgresDB),
		Checkpoints: postgres.NewCheckpointRepository(log, postgresDB),
		Payouts:     postgres.NewPayoutRepository(log, postgresDB),
		Outbox:      postgres.NewOutboxRepository(log, postgresDB),
		Reports:     mongo.NewReportRepository(log, mongoDB.Database()),
	}

	kafkaConsumer := consumers.NewKafkaConsumer(appCtx, log, &cfg.Kafka)

	// dlqProducer is nil when no DLQ topic is configured; its users handle that
	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka, clk)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}

	eventPublisher, err := newEventPublisher(appCtx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize balance event publisher", "error", err, "transport", cfg.Events.Transport)
		os.Exit(1)
	}

	engine := components.CreateEngine(postgresDB, repos, nodeClient, locker, dlqProducer, log, cfg, clk, m)

	commandHandler := consumer.NewCommandHandler(log, engine.Commands, dlqProducer)

	relay := outbox_poller.NewEventRelay(repos.Outbox, eventPublisher, clk, m, log)
	poller := outbox_poller.NewPoller(&cfg.Outbox, repos.Outbox, relay, locker, ticker.New(cfg.Outbox.PollingInterval), clk, m, log)

	jobs := scheduler.New(log, scheduler.LedgerJobs(cfg, scheduler.Runners{
		PollDeposits: func(ctx context.Context) error {
			_, err := engine.Watcher.Run(ctx)
			return err
		},
		EnsurePoolLevel: engine.Allocator.EnsurePoolLevel,
		RunBatch: func(ctx context.Context) error {
			_, err := engine.Batcher.RunBatch(ctx)
			return err
		},
		Reconcile: func(ctx context.Context) error {
			_, err := engine.Checker.Run(ctx)
			return err
		},
		PurgeOutbox: poller.Purge,
	})...)

	if err := kafkaConsumer.Subscribe(appCtx, commandHandler.HandleMessage); err != nil {
		log.Error("Failed to subscribe to wallet commands", "error", err)
		os.Exit(1)
	}

	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		log.Info("Starting Outbox Poller",
			"interval", cfg.Outbox.PollingInterval.String(),
			"batch_size", cfg.Outbox.BatchSize,
		)
		poller.Start(appCtx)
	}()

	jobs.Start(appCtx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-quit
	log.Info("Shutdown signal received")

	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	stopped := make(chan struct{})
	go func() {
		jobs.Wait()
		<-pollerDone
		close(stopped)
	}()

	select {
	case <-stopped:
		log.Info("All background loops stopped")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	if err := kafkaConsumer.Close(); err != nil {
		log.Error("Error closing Kafka consumer", "error", err)
	}

	// the pool drains after intake stops so no accepted command is dropped
	engine.Shutdown()

	if dlqProducer != nil {
		if err := dlqProducer.Close(); err != nil {
			log.Error("Error closing DLQ Kafka producer", "error", err)
		}
	}
	if err := eventPublisher.Close(); err != nil {
		log.Error("Error closing event publisher", "error", err)
	}
	if err := locker.Close(); err != nil {
		log.Error("Error closing etcd client", "error", err)
	}
	nodeClient.Close()
	postgresDB.Close()
	if err := mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	log.Info("Ledger Worker shutdown completed")
}

// newEventPublisher picks the balance event transport
func newEventPublisher(ctx context.Context, cfg *config.Config, log *slog.Logger) (producers.EventPublisher, error) {
	if cfg.Events.Transport == "nats" {
		return natsbus.NewPublisher(ctx, log, cfg.Nats)
	}
	return producers.NewEventProducer(ctx, log, &cfg.Kafka)
}
