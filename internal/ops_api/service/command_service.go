package service

import (
	"context"
	"log/slog"

	"github.com/custody-ledger/internal/domain/shared"
	"github.com/custody-ledger/internal/ops_api/middleware"
	"github.com/custody-ledger/internal/platform/messaging/producers"
	"github.com/custody-ledger/internal/platform/metrics"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/clock"
)

type CommandServiceImpl struct {
	producer producers.CommandPublisher
	clock    clock.Clock
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewCommandService(logger *slog.Logger, producer producers.CommandPublisher, clk clock.Clock, m *metrics.Metrics) CommandService {
	return &CommandServiceImpl{
		producer: producer,
		clock:    clk,
		metrics:  m,
		logger:   logger,
	}
}

// Submit returns once Kafka acknowledged the command. The command is applied
// later by a worker; a resubmitted commandID is applied at most once.
func (s *CommandServiceImpl) Submit(ctx context.Context, typ shared.CommandType, commandID uuid.UUID, payload any) (*shared.Command, error) {
	correlationID := middleware.CorrelationIDFromContext(ctx)
	cmd, err := shared.NewCommand(typ, payload, correlationID, s.clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	if commandID != uuid.Nil {
		cmd.CommandID = commandID
	}

	if err := s.producer.PublishCommand(ctx, cmd); err != nil {
		s.metrics.CommandsSubmitted.WithLabelValues(string(typ), "error").Inc()
		s.logger.Error("Failed to publish command",
			"command_id", cmd.CommandID.String(),
			"type", typ,
			"correlation_id", correlationID,
			"error", err,
		)
		return nil, err
	}

	s.metrics.CommandsSubmitted.WithLabelValues(string(typ), "accepted").Inc()
	s.logger.Info("Command published",
		"command_id", cmd.CommandID.String(),
		"type", typ,
		"correlation_id", correlationID,
	)
	return cmd, nil
}
