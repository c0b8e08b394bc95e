package consumers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/custody-ledger/internal/config"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader serves a fixed list of messages, then blocks until ctx ends
type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
	fetchErrs []error
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.messages) > 0 {
		msg := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) Committed() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func newTestConsumer(reader KafkaReader) *KafkaConsumer {
	return &KafkaConsumer{
		reader: reader,
		topic:  "wallet_commands",
		sleep: func(ctx context.Context, _ time.Duration) bool {
			return ctx.Err() == nil
		},
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
}

func TestNewKafkaConsumer(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	cfg := &config.KafkaConfig{
		Brokers:       "localhost:9092",
		CommandTopic:  "wallet_commands",
		ConsumerGroup: "ledger-workers",
		MinBytes:      1024,
		MaxBytes:      10240,
		MaxWait:       time.Second,
	}

	consumer := NewKafkaConsumer(context.Background(), logger, cfg)
	require.NotNil(t, consumer)
	require.NotNil(t, consumer.reader)
	assert.Equal(t, "wallet_commands", consumer.topic)
	assert.Equal(t, "ledger-workers", consumer.groupID)
	assert.NoError(t, consumer.Close())
}

func TestKafkaConsumer_CommitsAfterSuccess(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{{Offset: 1}, {Offset: 2}}}
	consumer := newTestConsumer(reader)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, consumer.Subscribe(ctx, func(_ context.Context, _, _ []byte) error {
		return nil
	}))

	assert.Eventually(t, func() bool {
		return len(reader.Committed()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{1, 2}, reader.Committed())
}

func TestKafkaConsumer_RetriesFailedMessageInPlace(t *testing.T) {
	reader := &fakeReader{
		messages:  []kafka.Message{{Offset: 10, Value: []byte("10")}, {Offset: 11, Value: []byte("11")}},
		fetchErrs: []error{errors.New("broker unavailable")},
	}
	consumer := newTestConsumer(reader)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	calls := map[string]int{}
	var order []string
	require.NoError(t, consumer.Subscribe(ctx, func(_ context.Context, _, value []byte) error {
		mu.Lock()
		defer mu.Unlock()
		off := string(value)
		calls[off]++
		order = append(order, off)
		if off == "10" && calls[off] < 3 {
			return errors.New("database unavailable")
		}
		return nil
	}))

	assert.Eventually(t, func() bool {
		return len(reader.Committed()) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, calls["10"])
	assert.Equal(t, 1, calls["11"])
	assert.Equal(t, []string{"10", "10", "10", "11"}, order)
	assert.Equal(t, []int64{10, 11}, reader.Committed())
}

func TestKafkaConsumer_Close(t *testing.T) {
	consumer := &KafkaConsumer{reader: nil, logger: slog.New(slog.NewJSONHandler(io.Discard, nil))}
	require.NoError(t, consumer.Close())
}
