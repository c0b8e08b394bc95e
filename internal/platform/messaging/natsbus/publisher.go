// Package natsbus publishes balance events to NATS JetStream, the
// alternative to the Kafka events topic.
package natsbus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/custody-ledger/internal/config"
	"github.com/custody-ledger/internal/domain/outbox"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// streamPublisher is the part of jetstream.JetStream the publisher uses
type streamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher writes each event to <prefix>.<wallet_id>. The event id is sent
// as the JetStream message id, so a relay retry inside the stream's
// duplicate window is dropped by the server.
type Publisher struct {
	js     streamPublisher
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
}

// NewPublisher connects, ensures the stream exists and returns a publisher
func NewPublisher(ctx context.Context, logger *slog.Logger, cfg config.NatsConfig) (*Publisher, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("custody-ledger"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	if err := EnsureStream(ctx, js, cfg); err != nil {
		nc.Close()
		return nil, err
	}

	logger.Info("Connected to NATS JetStream", "url", cfg.URL, "stream", cfg.StreamName)

	return &Publisher{
		js:     js,
		conn:   nc,
		prefix: cfg.SubjectPrefix,
		logger: logger,
	}, nil
}

// EnsureStream creates or updates the balance events stream
func EnsureStream(ctx context.Context, js jetstream.JetStream, cfg config.NatsConfig) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.StreamName,
		Subjects:  []string{cfg.SubjectPrefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    cfg.MaxAge,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", cfg.StreamName, err)
	}
	return nil
}

// Subject returns the subject a wallet's events are published on
func (p *Publisher) Subject(msg *outbox.Message) string {
	return p.prefix + "." + msg.WalletID.String()
}

func (p *Publisher) PublishEvent(ctx context.Context, msg *outbox.Message) error {
	subject := p.Subject(msg)
	ack, err := p.js.Publish(ctx, subject, msg.Payload, jetstream.WithMsgID(msg.EventID.String()))
	if err != nil {
		p.logger.Error("Failed to publish balance event", "subject", subject, "event_id", msg.EventID.String(), "error", err)
		return fmt.Errorf("publish event %s to %s: %w", msg.EventID, subject, err)
	}

	if ack.Duplicate {
		p.logger.Debug("Event already in stream", "subject", subject, "event_id", msg.EventID.String())
	}
	return nil
}

func (p *Publisher) Close() error {
	if p.conn == nil {
		return nil
	}
	p.logger.Info("Draining NATS connection")
	return p.conn.Drain()
}
