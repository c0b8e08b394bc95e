package shared

import (
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrInvalidArgument marks requests rejected before any mutation
	// (bad address, non-positive or over-precision amount, self-transfer).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInsufficientFunds is permanent for the balance snapshot it was
	// computed from. Retrying requires a fresh balance read.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrExternalNodeTransient covers network failures, timeouts and node-side
	// conditions expected to clear on their own.
	ErrExternalNodeTransient = errors.New("external node transient error")

	// ErrExternalNodeProtocol is a terminal rejection by the node.
	ErrExternalNodeProtocol = errors.New("external node protocol error")

	// ErrReconciliationMismatch is reported by the reconciliation checker. It
	// never blocks other operations.
	ErrReconciliationMismatch = errors.New("reconciliation mismatch")
)

// ErrConcurrencyConflict is returned when a conditional debit affected zero
// rows because the wallet version moved since it was read. No data changed.
type ErrConcurrencyConflict struct {
	WalletID uuid.UUID
}

func (e ErrConcurrencyConflict) Error() string {
	return "concurrent modification detected for wallet: " + e.WalletID.String()
}

// Is matches any ErrConcurrencyConflict when the target carries uuid.Nil
func (e ErrConcurrencyConflict) Is(target error) bool {
	t, ok := target.(ErrConcurrencyConflict)
	if !ok {
		return false
	}
	if t.WalletID == uuid.Nil {
		return true
	}
	return e.WalletID == t.WalletID
}

// IsRetryable reports whether the caller may simply retry the operation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict{}) || errors.Is(err, ErrExternalNodeTransient)
}
