package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/custody-ledger/internal/domain/shared"
	"github.com/custody-ledger/internal/platform/messaging/producers"
	"github.com/custody-ledger/internal/wallet_engine/service"
)

// CommandHandler turns Kafka messages into wallet commands
type CommandHandler struct {
	commands service.CommandProcessor
	dlq      producers.DeadLetterPublisher
	logger   *slog.Logger
}

func NewCommandHandler(logger *slog.Logger, commands service.CommandProcessor, dlq producers.DeadLetterPublisher) *CommandHandler {
	return &CommandHandler{
		commands: commands,
		dlq:      dlq,
		logger:   logger,
	}
}

// HandleMessage decodes and applies one command. A returned error leaves the
// offset uncommitted so the consumer retries the message.
func (h *CommandHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var cmd shared.Command
	if err := json.Unmarshal(value, &cmd); err != nil {
		h.logger.Error("Failed to unmarshal wallet command", "error", err, "message_key", string(key))

		if h.dlq != nil {
			reason := "unmarshal: " + err.Error()
			dlqErr := h.dlq.PublishToDLQ(ctx, string(key), value, reason)
			if dlqErr == nil {
				return nil
			}
			h.logger.Error("Failed to publish undecodable command to DLQ", "dlq_error", dlqErr, "message_key", string(key))
		}
		return fmt.Errorf("failed to unmarshal message value: %w", err)
	}

	logger := h.logger
	if cmd.CorrelationID != "" {
		logger = h.logger.With("correlation_id", cmd.CorrelationID)
	}
	logger.Debug("Received wallet command", "command_id", cmd.CommandID.String(), "type", cmd.Type)

	if err := h.commands.ProcessCommand(ctx, &cmd); err != nil {
		logger.Error("Failed to process command", "command_id", cmd.CommandID.String(), "error", err)
		return fmt.Errorf("processing command %s failed: %w", cmd.CommandID.String(), err)
	}
	return nil
}
