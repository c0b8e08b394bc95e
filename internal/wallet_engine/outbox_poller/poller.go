package outbox_poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/custody-ledger/internal/config"
	"github.com/custody-ledger/internal/domain/outbox"
	"github.com/custody-ledger/internal/platform/lock"
	"github.com/custody-ledger/internal/platform/metrics"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
)

// Poller relays pending outbox messages on every tick. Only the worker
// holding the relay lock polls, so events of one wallet leave in order.
type Poller struct {
	outboxRepo       outbox.Repository
	relay            EventRelay
	locker           lock.Locker
	ticker           ticker.Ticker
	clock            clock.Clock
	metrics          *metrics.Metrics
	logger           *slog.Logger
	batchSize        int
	maxRetryAttempts int
	lockLease        time.Duration
	retention        time.Duration
}

func NewPoller(
	cfg *config.OutboxConfig,
	outboxRepo outbox.Repository,
	relay EventRelay,
	locker lock.Locker,
	t ticker.Ticker,
	clk clock.Clock,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		outboxRepo:       outboxRepo,
		relay:            relay,
		locker:           locker,
		ticker:           t,
		clock:            clk,
		metrics:          m,
		logger:           logger,
		batchSize:        cfg.BatchSize,
		maxRetryAttempts: cfg.MaxRetryAttempts,
		lockLease:        cfg.RelayLockLease,
		retention:        cfg.Retention,
	}
}

// Start polls until ctx is canceled
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("Starting outbox poller",
		"batch_size", p.batchSize,
		"max_retry_attempts", p.maxRetryAttempts,
	)
	p.ticker.Resume()
	defer p.ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox poller stopping")
			return
		case <-p.ticker.Ticks():
			if err := p.ProcessPending(ctx); err != nil {
				p.logger.Error("Error relaying pending outbox messages", "error", err)
			}
		}
	}
}

// ProcessPending relays one batch in insertion order. The first failure ends
// the batch so that later events cannot overtake the failed one; once a
// message runs out of attempts it is parked and the rest move on.
func (p *Poller) ProcessPending(ctx context.Context) error {
	acquired, err := p.locker.TryAcquire(ctx, lock.KeyOutboxRelay, p.lockLease)
	if err != nil {
		return fmt.Errorf("failed to acquire outbox relay lock: %w", err)
	}
	if !acquired {
		p.logger.Debug("Outbox relay lock held elsewhere, skipping poll")
		return nil
	}
	defer func() {
		if err := p.locker.Release(context.WithoutCancel(ctx), lock.KeyOutboxRelay); err != nil {
			p.logger.Warn("Failed to release outbox relay lock", "error", err)
		}
	}()
	defer p.sampleBacklog(ctx)

	messages, err := p.outboxRepo.ListPending(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list pending outbox messages: %w", err)
	}
	if len(messages) == 0 {
		return nil
	}

	p.logger.Debug("Fetched pending outbox messages", "count", len(messages))

	for _, msg := range messages {
		err := p.relay.Relay(ctx, msg)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrUndecodable) {
			continue
		}

		attempts, errRec := p.outboxRepo.RecordFailedAttempt(ctx, msg.ID, p.clock.Now().UTC())
		if errRec != nil {
			p.logger.Error("Failed to record outbox attempt", "outbox_id", msg.ID, "error", errRec)
			return nil
		}
		p.logger.Error("Failed to relay outbox message",
			"outbox_id", msg.ID, "event_id", msg.EventID.String(), "attempts", attempts, "error", err,
		)

		if attempts < p.maxRetryAttempts {
			return nil
		}

		p.logger.Warn("Max retry attempts reached, marking outbox message FAILED_TO_PUBLISH",
			"outbox_id", msg.ID, "event_id", msg.EventID.String(), "wallet_id", msg.WalletID.String(),
		)
		if errMark := p.outboxRepo.MarkFailed(ctx, msg.ID, p.clock.Now().UTC()); errMark != nil {
			p.logger.Error("Failed to mark outbox message FAILED_TO_PUBLISH", "outbox_id", msg.ID, "error", errMark)
			return nil
		}
		p.metrics.OutboxFailed.Inc()
	}
	return nil
}

func (p *Poller) sampleBacklog(ctx context.Context) {
	n, err := p.outboxRepo.CountPending(ctx)
	if err != nil {
		p.logger.Warn("Failed to count outbox backlog", "error", err)
		return
	}
	p.metrics.OutboxBacklog.Set(float64(n))
}

// Purge deletes published messages older than the retention period
func (p *Poller) Purge(ctx context.Context) error {
	cutoff := p.clock.Now().UTC().Add(-p.retention)
	n, err := p.outboxRepo.PurgePublished(ctx, cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		p.metrics.OutboxPurged.Add(float64(n))
		p.logger.Info("Purged published outbox messages", "count", n, "cutoff", cutoff)
	}
	return nil
}
