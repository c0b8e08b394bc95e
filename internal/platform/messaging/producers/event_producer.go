package producers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/custody-ledger/internal/config"
	"github.com/custody-ledger/internal/domain/outbox"
	"github.com/segmentio/kafka-go"
)

// EventProducer publishes balance-changed events to Kafka. Writes are
// synchronous and wait for all in-sync replicas, since the outbox row is only
// marked published after this returns.
type EventProducer struct {
	logger *slog.Logger
	writer KafkaWriter
	topic  string
}

// NewEventProducer creates the producer and ensures the events topic exists
func NewEventProducer(_ context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*EventProducer, error) {
	if cfg.EventsTopic == "" {
		return nil, fmt.Errorf("kafka events topic is not configured")
	}

	if err := dialAndEnsureTopic(cfg, cfg.EventsTopic, logger); err != nil {
		return nil, fmt.Errorf("failed to ensure events topic %s exists: %w", cfg.EventsTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.BrokerList()...),
		Topic:        cfg.EventsTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: cfg.MaxWait,
	}

	return &EventProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.EventsTopic,
	}, nil
}

// PublishEvent writes the stored payload unchanged, keyed by wallet id.
// Consumers deduplicate on the event-id header.
func (p *EventProducer) PublishEvent(ctx context.Context, msg *outbox.Message) error {
	km := kafka.Message{
		Key:   []byte(msg.WalletID.String()),
		Value: msg.Payload,
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(msg.EventID.String())},
			{Key: "content-type", Value: []byte("application/json")},
		},
	}

	if err := p.writer.WriteMessages(ctx, km); err != nil {
		p.logger.Error("Failed to publish balance event",
			"topic", p.topic,
			"event_id", msg.EventID.String(),
			"wallet_id", msg.WalletID.String(),
			"error", err,
		)
		return fmt.Errorf("failed to publish event %s to %s: %w", msg.EventID, p.topic, err)
	}

	p.logger.Debug("Published balance event", "topic", p.topic, "event_id", msg.EventID.String())
	return nil
}

func (p *EventProducer) Close() error {
	p.logger.Info("Closing event producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close event writer for topic %s: %w", p.topic, err)
	}
	return nil
}
