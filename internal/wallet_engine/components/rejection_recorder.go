package components

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/custody-ledger/internal/domain/shared"
	"github.com/custody-ledger/internal/platform/messaging/producers"
	"github.com/custody-ledger/internal/wallet_engine/service"
)

type RejectionRecorderImpl struct {
	dlq    producers.DeadLetterPublisher
	logger *slog.Logger
}

// NewRejectionRecorder parks rejected commands on the DLQ. With no DLQ
// configured the rejection is only logged.
func NewRejectionRecorder(dlq producers.DeadLetterPublisher, logger *slog.Logger) service.RejectionRecorder {
	return &RejectionRecorderImpl{
		dlq:    dlq,
		logger: logger,
	}
}

func (r *RejectionRecorderImpl) RecordRejection(ctx context.Context, cmd *shared.Command, reason string) error {
	logger := r.logger.With("command_id", cmd.CommandID.String(), "type", cmd.Type)
	if cmd.CorrelationID != "" {
		logger = logger.With("correlation_id", cmd.CorrelationID)
	}

	if r.dlq == nil {
		logger.Warn("Command rejected, no DLQ configured", "reason", reason)
		return nil
	}

	key, err := cmd.PartitionKey()
	if err != nil {
		key = cmd.CommandID.String()
	}

	value, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal rejected command %s: %w", cmd.CommandID, err)
	}

	if err := r.dlq.PublishToDLQ(ctx, key, value, reason); err != nil {
		if errors.Is(err, producers.ErrDLQDisabled) {
			logger.Warn("Command rejected, DLQ disabled", "reason", reason)
			return nil
		}
		logger.Error("Failed to record rejected command", "error", err)
		return err
	}

	logger.Info("Recorded rejected command", "reason", reason)
	return nil
}
