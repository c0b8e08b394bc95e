package producers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/custody-ledger/internal/config"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/segmentio/kafka-go"
)

var ErrDLQDisabled = errors.New("dead letter queue disabled")

// DLQProducer parks wallet commands the ledger refused or could not decode.
type DLQProducer struct {
	logger   *slog.Logger
	writer   KafkaWriter
	dlqTopic string
	clock    clock.Clock
}

// deadLetter is the JSON body written to the DLQ topic. A command that
// parsed is embedded as-is; bytes that were never valid JSON are kept in Raw
// (base64) so nothing the producer sent is lost.
type deadLetter struct {
	Key        string          `json:"key"`
	Command    json.RawMessage `json:"command,omitempty"`
	Raw        []byte          `json:"raw,omitempty"`
	Reason     string          `json:"reason"`
	RejectedAt time.Time       `json:"rejected_at"`
}

func newDeadLetter(key string, value []byte, reason string, at time.Time) deadLetter {
	dl := deadLetter{Key: key, Reason: reason, RejectedAt: at.UTC()}
	if json.Valid(value) {
		dl.Command = value
	} else {
		dl.Raw = value
	}
	return dl
}

// NewDLQProducer returns a nil producer if cfg.DLQTopic is empty
func NewDLQProducer(_ context.Context, logger *slog.Logger, cfg *config.KafkaConfig, clk clock.Clock) (*DLQProducer, error) {
	if cfg.DLQTopic == "" {
		logger.Info("DLQ topic is not configured, DLQ producer disabled")
		return nil, nil
	}

	if err := dialAndEnsureTopic(cfg, cfg.DLQTopic, logger); err != nil {
		return nil, fmt.Errorf("failed to ensure DLQ topic %s exists: %w", cfg.DLQTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.BrokerList()...),
		Topic:        cfg.DLQTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: cfg.MaxWait,
	}

	return &DLQProducer{
		logger:   logger,
		writer:   writer,
		dlqTopic: cfg.DLQTopic,
		clock:    clk,
	}, nil
}

// PublishToDLQ keys the dead letter like the original command so rejects for
// one wallet land on one partition in the order they were rejected.
func (p *DLQProducer) PublishToDLQ(ctx context.Context, key string, value []byte, reason string) error {
	if p == nil || p.writer == nil {
		return ErrDLQDisabled
	}

	dl := newDeadLetter(key, value, reason, p.clock.Now())
	body, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("encode dead letter for %s: %w", key, err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: body,
		Time:  dl.RejectedAt,
		Headers: []kafka.Header{
			{Key: "dlq-reason", Value: []byte(reason)},
			{Key: "dlq-rejected-at", Value: []byte(dl.RejectedAt.Format(time.RFC3339Nano))},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Dead letter write failed", "topic", p.dlqTopic, "key", key, "error", err)
		return fmt.Errorf("write dead letter to %s: %w", p.dlqTopic, err)
	}

	p.logger.Info("Command dead-lettered", "topic", p.dlqTopic, "key", key, "reason", reason, "raw", dl.Raw != nil)
	return nil
}

func (p *DLQProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	p.logger.Info("Closing DLQ producer", "topic", p.dlqTopic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close DLQ writer for topic %s: %w", p.dlqTopic, err)
	}
	return nil
}
