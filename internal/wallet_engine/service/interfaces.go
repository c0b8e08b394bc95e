// Package service implements the custody ledger: the balance ledger, address
// allocation and deposit crediting, internal transfers, batched payouts and
// reconciliation, plus the command service that drives them from Kafka.
package service

import (
	"context"

	"github.com/custody-ledger/internal/domain/address"
	"github.com/custody-ledger/internal/domain/deposit"
	"github.com/custody-ledger/internal/domain/ledger"
	"github.com/custody-ledger/internal/domain/outbox"
	"github.com/custody-ledger/internal/domain/payout"
	"github.com/custody-ledger/internal/domain/reconciliation"
	"github.com/custody-ledger/internal/domain/shared"
	"github.com/custody-ledger/internal/domain/wallet"
)

// CommandProcessor applies one decoded wallet command
type CommandProcessor interface {
	ProcessCommand(ctx context.Context, cmd *shared.Command) error
}

// CommandValidator checks commands before they touch any state
type CommandValidator interface {
	Validate(ctx context.Context, cmd *shared.Command) error
	CheckIdempotency(ctx context.Context, cmd *shared.Command) (bool, error)
}

// RejectionRecorder keeps a record of commands refused for business reasons
type RejectionRecorder interface {
	RecordRejection(ctx context.Context, cmd *shared.Command, reason string) error
}

// Repositories bundles the stores the components work on
type Repositories struct {
	Wallets     wallet.Repository
	Entries     ledger.Repository
	Addresses   address.Repository
	Deposits    deposit.Repository
	Checkpoints deposit.CheckpointRepository
	Payouts     payout.Repository
	Outbox      outbox.Repository
	Reports     reconciliation.Repository
}
