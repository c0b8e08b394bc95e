package ledger

import (
	"fmt"
	"time"

	"github.com/custody-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Entry is an immutable movement of value between two parties. It is the only
// thing that changes a wallet balance; corrections are new entries.
type Entry struct {
	ID                uuid.UUID        `json:"id"`
	Kind              shared.EntryKind `json:"kind"`
	FromWalletID      *uuid.UUID       `json:"from_wallet_id,omitempty"`
	ToWalletID        *uuid.UUID       `json:"to_wallet_id,omitempty"`
	ToExternalAddress string           `json:"to_external_address,omitempty"`
	Amount            decimal.Decimal  `json:"amount"`
	DepositID         *int64           `json:"deposit_id,omitempty"`
	PayoutID          *uuid.UUID       `json:"payout_id,omitempty"`
	Description       string           `json:"description,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
}

func ptr[T any](v T) *T { return &v }

// NewTransferEntry moves amount between two wallets
func NewTransferEntry(id, from, to uuid.UUID, amount decimal.Decimal, description string) *Entry {
	return &Entry{
		ID:           orNew(id),
		Kind:         shared.EntryKindTransfer,
		FromWalletID: ptr(from),
		ToWalletID:   ptr(to),
		Amount:       amount,
		Description:  description,
	}
}

// NewDepositEntry credits a confirmed inbound payment to its wallet
func NewDepositEntry(to uuid.UUID, amount decimal.Decimal, depositID int64, txid string) *Entry {
	return &Entry{
		ID:          uuid.New(),
		Kind:        shared.EntryKindDeposit,
		ToWalletID:  ptr(to),
		Amount:      amount,
		DepositID:   ptr(depositID),
		Description: "deposit " + txid,
	}
}

// NewPayoutEntry reserves amount from a wallet for an external payout
func NewPayoutEntry(id, from uuid.UUID, toAddress string, amount decimal.Decimal, payoutID uuid.UUID) *Entry {
	return &Entry{
		ID:                orNew(id),
		Kind:              shared.EntryKindPayout,
		FromWalletID:      ptr(from),
		ToExternalAddress: toAddress,
		Amount:            amount,
		PayoutID:          ptr(payoutID),
	}
}

// NewFeeEntry charges the network fee of one payout batch to the fee wallet
func NewFeeEntry(feeWallet uuid.UUID, fee decimal.Decimal, batchID uuid.UUID, txid string) *Entry {
	return &Entry{
		ID:                batchID,
		Kind:              shared.EntryKindFee,
		FromWalletID:      ptr(feeWallet),
		ToExternalAddress: shared.NetworkFeeSink,
		Amount:            fee,
		Description:       "network fee " + txid,
	}
}

func orNew(id uuid.UUID) uuid.UUID {
	if id == uuid.Nil {
		return uuid.New()
	}
	return id
}

// Validate checks the amount and the party shape required by the entry kind.
func (e *Entry) Validate() error {
	if err := shared.ValidateAmount(e.Amount); err != nil {
		return err
	}

	switch e.Kind {
	case shared.EntryKindTransfer:
		if e.FromWalletID == nil || e.ToWalletID == nil || e.ToExternalAddress != "" {
			return fmt.Errorf("%w: transfer needs exactly two wallets", shared.ErrInvalidArgument)
		}
		if *e.FromWalletID == *e.ToWalletID {
			return fmt.Errorf("%w: cannot transfer to the same wallet", shared.ErrInvalidArgument)
		}
	case shared.EntryKindDeposit:
		if e.FromWalletID != nil || e.ToWalletID == nil || e.DepositID == nil {
			return fmt.Errorf("%w: deposit credits one wallet from one deposit", shared.ErrInvalidArgument)
		}
	case shared.EntryKindPayout, shared.EntryKindFee:
		if e.FromWalletID == nil || e.ToWalletID != nil || e.ToExternalAddress == "" {
			return fmt.Errorf("%w: %s debits one wallet to one external address", shared.ErrInvalidArgument, e.Kind)
		}
		if e.Kind == shared.EntryKindPayout && e.PayoutID == nil {
			return fmt.Errorf("%w: payout entry must reference its payout", shared.ErrInvalidArgument)
		}
	default:
		return fmt.Errorf("%w: unknown entry kind %q", shared.ErrInvalidArgument, e.Kind)
	}

	return nil
}

// Delta returns the signed effect of the entry on walletID's balance
func (e *Entry) Delta(walletID uuid.UUID) decimal.Decimal {
	delta := decimal.Zero
	if e.ToWalletID != nil && *e.ToWalletID == walletID {
		delta = delta.Add(e.Amount)
	}
	if e.FromWalletID != nil && *e.FromWalletID == walletID {
		delta = delta.Sub(e.Amount)
	}
	return delta
}
