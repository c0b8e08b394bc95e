package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/custody-ledger/internal/domain/address"
	"github.com/custody-ledger/internal/domain/ledger"
	"github.com/custody-ledger/internal/domain/shared"
	"github.com/custody-ledger/internal/domain/wallet"
	"github.com/custody-ledger/internal/platform/metrics"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/clock"
)

// CommandService applies wallet commands read from Kafka. Rejected commands
// are recorded and acknowledged; infrastructure errors are returned so the
// message is delivered again.
type CommandService struct {
	ledger     *BalanceLedger
	allocator  *AddressAllocator
	transfers  *TransferEngine
	payouts    *PayoutService
	validator  CommandValidator
	recorder   RejectionRecorder
	maxRetries int
	clock      clock.Clock
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewCommandService(
	logger *slog.Logger,
	bl *BalanceLedger,
	allocator *AddressAllocator,
	transfers *TransferEngine,
	payouts *PayoutService,
	validator CommandValidator,
	recorder RejectionRecorder,
	maxConflictRetries int,
	clk clock.Clock,
	m *metrics.Metrics,
) *CommandService {
	return &CommandService{
		ledger:     bl,
		allocator:  allocator,
		transfers:  transfers,
		payouts:    payouts,
		validator:  validator,
		recorder:   recorder,
		maxRetries: maxConflictRetries,
		clock:      clk,
		metrics:    m,
		logger:     logger,
	}
}

// IsRejection reports whether err is a business refusal that no retry can
// fix for the same command.
func IsRejection(err error) bool {
	return errors.Is(err, shared.ErrInvalidArgument) ||
		errors.Is(err, shared.ErrInsufficientFunds) ||
		errors.Is(err, shared.ErrUnknownCommandType) ||
		errors.Is(err, wallet.ErrWalletNotFound{})
}

func (s *CommandService) ProcessCommand(ctx context.Context, cmd *shared.Command) error {
	logger := s.logger.With("command_id", cmd.CommandID.String(), "type", cmd.Type)
	if cmd.CorrelationID != "" {
		logger = logger.With("correlation_id", cmd.CorrelationID)
	}

	start := s.clock.Now()
	result := "applied"
	defer func() {
		s.metrics.Commands.WithLabelValues(string(cmd.Type), result).Inc()
		s.metrics.CommandDuration.WithLabelValues(string(cmd.Type)).Observe(s.clock.Now().Sub(start).Seconds())
	}()

	logger.Info("Processing command")

	// 1. Validate
	if err := s.validator.Validate(ctx, cmd); err != nil {
		result = "rejected"
		return s.reject(ctx, logger, cmd, err)
	}

	// 2. Check idempotency
	skip, err := s.validator.CheckIdempotency(ctx, cmd)
	if err != nil {
		result = "error"
		return err
	}
	if skip {
		result = "duplicate"
		return nil
	}

	// 3. Apply, retrying lost version races
	for attempt := 0; ; attempt++ {
		err = s.apply(ctx, cmd)
		if !errors.Is(err, shared.ErrConcurrencyConflict{}) || attempt >= s.maxRetries {
			break
		}
		logger.Debug("Command lost version race, retrying", "attempt", attempt+1)
	}

	switch {
	case err == nil:
		logger.Info("Command applied")
		return nil
	case errors.Is(err, ledger.ErrDuplicateEntry{}):
		result = "duplicate"
		logger.Info("Command already applied")
		return nil
	case IsRejection(err):
		result = "rejected"
		return s.reject(ctx, logger, cmd, err)
	default:
		result = "error"
		logger.Error("Failed to apply command", "error", err)
		return fmt.Errorf("command %s failed: %w", cmd.CommandID, err)
	}
}

func (s *CommandService) apply(ctx context.Context, cmd *shared.Command) error {
	switch cmd.Type {
	case shared.CommandCreateWallet:
		var p shared.CreateWalletPayload
		if err := cmd.Decode(&p); err != nil {
			return err
		}
		if p.WalletID == uuid.Nil {
			p.WalletID = cmd.CommandID
		}
		_, err := s.ledger.CreateWallet(ctx, p.WalletID, p.Label)
		return err

	case shared.CommandAllocateAddress:
		var p shared.AllocateAddressPayload
		if err := cmd.Decode(&p); err != nil {
			return err
		}
		addr, err := s.allocator.AllocateForCommand(ctx, cmd.CommandID, p.WalletID, p.FreshOnly)
		if err != nil {
			if errors.Is(err, address.ErrAddressPoolExhausted) {
				s.logger.Warn("Address pool exhausted", "wallet_id", p.WalletID.String())
			}
			return err
		}
		s.logger.Info("Address allocated", "wallet_id", p.WalletID.String(), "address", addr.Address)
		return nil

	case shared.CommandTransfer:
		var p shared.TransferPayload
		if err := cmd.Decode(&p); err != nil {
			return err
		}
		_, err := s.transfers.Transfer(ctx, TransferRequest{
			ID:          cmd.CommandID,
			From:        p.FromWalletID,
			To:          p.ToWalletID,
			Amount:      p.Amount,
			Description: p.Description,
		})
		return err

	case shared.CommandRequestPayout:
		var p shared.RequestPayoutPayload
		if err := cmd.Decode(&p); err != nil {
			return err
		}
		req := PayoutRequest{
			ID:        cmd.CommandID,
			From:      p.FromWalletID,
			ToAddress: p.ToAddress,
			Amount:    p.Amount,
		}
		if p.ExpiresAt != nil {
			req.ExpiresAt = *p.ExpiresAt
		}
		_, err := s.payouts.RequestPayout(ctx, req)
		return err

	default:
		return fmt.Errorf("%w: %s", shared.ErrUnknownCommandType, cmd.Type)
	}
}

// reject records the refusal and acknowledges the command. Only a failure to
// record it is returned, so the command is not lost.
func (s *CommandService) reject(ctx context.Context, logger *slog.Logger, cmd *shared.Command, cause error) error {
	logger.Warn("Command rejected", "reason", cause)
	if err := s.recorder.RecordRejection(ctx, cmd, cause.Error()); err != nil {
		logger.Error("Failed to record command rejection", "error", err)
		return err
	}
	return nil
}
