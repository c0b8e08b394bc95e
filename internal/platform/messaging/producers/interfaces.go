package producers

import (
	"context"

	"github.com/custody-ledger/internal/domain/outbox"
	"github.com/custody-ledger/internal/domain/shared"
	"github.com/segmentio/kafka-go"
)

// CommandPublisher enqueues wallet commands for the ledger workers
type CommandPublisher interface {
	PublishCommand(ctx context.Context, cmd *shared.Command) error
	Close() error
}

// EventPublisher delivers one outbox message to the balance event bus. A nil
// return means the broker acknowledged the write.
type EventPublisher interface {
	PublishEvent(ctx context.Context, msg *outbox.Message) error
	Close() error
}

// DeadLetterPublisher handles publishing messages to a Dead Letter Queue
type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, key string, originalMessageValue []byte, reason string) error
	Close() error
}

// KafkaWriter wraps kafka.Writer methods for testing
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}
