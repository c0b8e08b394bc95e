package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/custody-ledger/internal/domain/ledger"
	"github.com/custody-ledger/internal/domain/shared"
	"github.com/custody-ledger/internal/wallet_engine/service"
	"github.com/google/uuid"
)

// EntryLookup finds ledger entries by id
type EntryLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*ledger.Entry, error)
}

type CommandValidatorImpl struct {
	entries EntryLookup
	logger  *slog.Logger
}

func NewCommandValidator(entries EntryLookup, logger *slog.Logger) service.CommandValidator {
	return &CommandValidatorImpl{
		entries: entries,
		logger:  logger,
	}
}

// Validate checks the command shape. Balance and wallet existence are left to
// the components applying it, inside their transactions.
func (v *CommandValidatorImpl) Validate(ctx context.Context, cmd *shared.Command) error {
	logger := v.logger
	if cmd.CorrelationID != "" {
		logger = v.logger.With("correlation_id", cmd.CorrelationID)
	}

	if cmd.CommandID == uuid.Nil {
		return fmt.Errorf("%w: command id is required", shared.ErrInvalidArgument)
	}

	var err error
	switch cmd.Type {
	case shared.CommandCreateWallet:
		var p shared.CreateWalletPayload
		err = cmd.Decode(&p)

	case shared.CommandAllocateAddress:
		var p shared.AllocateAddressPayload
		if err = cmd.Decode(&p); err == nil && p.WalletID == uuid.Nil {
			err = fmt.Errorf("%w: wallet_id is required", shared.ErrInvalidArgument)
		}

	case shared.CommandTransfer:
		var p shared.TransferPayload
		if err = cmd.Decode(&p); err == nil {
			err = validateTransfer(p)
		}

	case shared.CommandRequestPayout:
		var p shared.RequestPayoutPayload
		if err = cmd.Decode(&p); err == nil {
			err = validatePayout(p)
		}

	default:
		err = fmt.Errorf("%w: %q", shared.ErrUnknownCommandType, cmd.Type)
	}

	if err != nil {
		logger.Error("Invalid command", "command_id", cmd.CommandID.String(), "type", cmd.Type, "error", err)
	}
	return err
}

func validateTransfer(p shared.TransferPayload) error {
	switch {
	case p.FromWalletID == uuid.Nil || p.ToWalletID == uuid.Nil:
		return fmt.Errorf("%w: both wallets are required", shared.ErrInvalidArgument)
	case p.FromWalletID == p.ToWalletID:
		return fmt.Errorf("%w: cannot transfer to the same wallet", shared.ErrInvalidArgument)
	}
	return shared.ValidateAmount(p.Amount)
}

func validatePayout(p shared.RequestPayoutPayload) error {
	switch {
	case p.FromWalletID == uuid.Nil:
		return fmt.Errorf("%w: from_wallet_id is required", shared.ErrInvalidArgument)
	case p.ToAddress == "":
		return fmt.Errorf("%w: to_address is required", shared.ErrInvalidArgument)
	}
	return shared.ValidateAmount(p.Amount)
}

// CheckIdempotency reports whether the command already produced its entry.
// Wallet creation and address allocation are naturally repeatable and are
// never skipped here.
func (v *CommandValidatorImpl) CheckIdempotency(ctx context.Context, cmd *shared.Command) (bool, error) {
	if cmd.Type != shared.CommandTransfer && cmd.Type != shared.CommandRequestPayout {
		return false, nil
	}

	logger := v.logger
	if cmd.CorrelationID != "" {
		logger = v.logger.With("correlation_id", cmd.CorrelationID)
	}

	existing, err := v.entries.GetByID(ctx, cmd.CommandID)
	if err != nil && !errors.Is(err, ledger.ErrEntryNotFound{}) {
		logger.Error("Failed to check ledger for idempotency", "command_id", cmd.CommandID.String(), "error", err)
		return false, fmt.Errorf("idempotency check failed for command %s: %w", cmd.CommandID.String(), err)
	}

	if existing != nil {
		logger.Info("Command already applied (idempotency)", "command_id", cmd.CommandID.String(), "kind", existing.Kind)
		return true, nil
	}
	return false, nil
}
