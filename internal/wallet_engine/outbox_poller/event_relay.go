package outbox_poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/custody-ledger/internal/domain/outbox"
	"github.com/custody-ledger/internal/platform/messaging/producers"
	"github.com/custody-ledger/internal/platform/metrics"
	"github.com/lightningnetwork/lnd/clock"
)

// ErrUndecodable marks a message whose payload no retry can fix. The relay
// has already parked it as FAILED_TO_PUBLISH.
var ErrUndecodable = errors.New("undecodable outbox payload")

// EventRelay moves one outbox message onto the balance event bus
type EventRelay interface {
	Relay(ctx context.Context, message *outbox.Message) error
}

type EventRelayImpl struct {
	outboxRepo outbox.Repository
	publisher  producers.EventPublisher
	clock      clock.Clock
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewEventRelay(
	outboxRepo outbox.Repository,
	publisher producers.EventPublisher,
	clk clock.Clock,
	m *metrics.Metrics,
	logger *slog.Logger,
) EventRelay {
	return &EventRelayImpl{
		outboxRepo: outboxRepo,
		publisher:  publisher,
		clock:      clk,
		metrics:    m,
		logger:     logger,
	}
}

// Relay publishes the message and marks it PUBLISHED. Consumers dedupe on
// the event id, so a crash between publish and mark only causes a
// redelivery.
func (r *EventRelayImpl) Relay(ctx context.Context, message *outbox.Message) error {
	event, err := message.Event()
	if err != nil {
		r.logger.Error("Failed to decode balance event from outbox payload", "outbox_id", message.ID, "error", err)
		if markErr := r.outboxRepo.MarkFailed(ctx, message.ID, r.clock.Now().UTC()); markErr != nil {
			r.logger.Error("Also failed to park undecodable outbox message", "outbox_id", message.ID, "mark_error", markErr)
		}
		r.metrics.OutboxFailed.Inc()
		return fmt.Errorf("%w: outbox %d: %v", ErrUndecodable, message.ID, err)
	}

	logger := r.logger.With("outbox_id", message.ID, "event_id", event.EventID.String(), "wallet_id", event.WalletID.String())

	if err := r.publisher.PublishEvent(ctx, message); err != nil {
		return fmt.Errorf("publish outbox %d failed: %w", message.ID, err)
	}

	if err := r.outboxRepo.MarkPublished(ctx, message.ID, r.clock.Now().UTC()); err != nil {
		var notFound outbox.ErrMessageNotFound
		if errors.As(err, &notFound) {
			// settled by an earlier holder of the relay lock
			logger.Warn("Published event was already settled")
			return nil
		}
		logger.Error("Event published but outbox message not marked", "error", err)
		return fmt.Errorf("event %s published, but failed to mark outbox %d: %w", event.EventID, message.ID, err)
	}

	r.metrics.OutboxPublished.Inc()
	logger.Debug("Balance event published", "view", event.View, "delta", event.Delta.String())
	return nil
}
