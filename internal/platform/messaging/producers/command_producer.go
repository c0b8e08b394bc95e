package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/custody-ledger/internal/config"
	"github.com/custody-ledger/internal/domain/shared"
	"github.com/segmentio/kafka-go"
)

// CommandProducer writes wallet commands to the command topic. Commands are
// keyed by the wallet they act on so one wallet's commands stay ordered on a
// single partition.
type CommandProducer struct {
	logger *slog.Logger
	writer KafkaWriter
	topic  string
}

// NewCommandProducer creates the producer and ensures the topic exists
func NewCommandProducer(_ context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*CommandProducer, error) {
	if cfg.CommandTopic == "" {
		return nil, fmt.Errorf("kafka command topic is not configured")
	}

	if err := dialAndEnsureTopic(cfg, cfg.CommandTopic, logger); err != nil {
		return nil, fmt.Errorf("failed to ensure command topic %s exists: %w", cfg.CommandTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.BrokerList()...),
		Topic:        cfg.CommandTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: cfg.MaxWait,
	}

	return &CommandProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.CommandTopic,
	}, nil
}

// PublishCommand blocks until the broker acknowledged the command
func (p *CommandProducer) PublishCommand(ctx context.Context, cmd *shared.Command) error {
	value, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}

	key, err := cmd.PartitionKey()
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "command-type", Value: []byte(cmd.Type)},
			{Key: "command-id", Value: []byte(cmd.CommandID.String())},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish command", "topic", p.topic, "command_id", cmd.CommandID.String(), "error", err)
		return fmt.Errorf("failed to publish command to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published command", "topic", p.topic, "command_id", cmd.CommandID.String(), "type", cmd.Type)
	return nil
}

func (p *CommandProducer) Close() error {
	p.logger.Info("Closing command producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close command writer for topic %s: %w", p.topic, err)
	}
	return nil
}
