// Package node talks to the external payment node that custodies the pooled
// funds. The node owns the keys and signs sends; this package only asks it to
// generate addresses, report receipts and execute multi-output sends.
package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/custody-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ErrSendOutcomeUnknown is returned when a send timed out after the request
// may have reached the node. It is a protocol error: the obligations must not
// be released into another send before an operator checks the node.
var ErrSendOutcomeUnknown = fmt.Errorf("%w: send outcome unknown", shared.ErrExternalNodeProtocol)

// ReceiveEvent is one incoming output reported by the node
type ReceiveEvent struct {
	Address       string
	TxID          string
	Vout          uint32
	Amount        decimal.Decimal
	Confirmations int64
}

// TxInfo is the subset of a wallet transaction the batcher needs
type TxInfo struct {
	TxID          string
	Fee           decimal.Decimal // always non-negative
	Confirmations int64
}

// Client is the node RPC surface consumed by the ledger. Every method fails
// with an error wrapping shared.ErrExternalNodeTransient or
// shared.ErrExternalNodeProtocol.
type Client interface {
	CreateAddress(ctx context.Context) (string, error)
	GetReceived(ctx context.Context, address string, minConf int) (decimal.Decimal, error)
	// ListReceivedSince returns receive events after checkpoint (a block hash,
	// "" for all history) and the checkpoint to use next time. Events with
	// fewer than minConf confirmations are listed again on the next call.
	ListReceivedSince(ctx context.Context, checkpoint string, minConf int) ([]ReceiveEvent, string, error)
	SendMany(ctx context.Context, outputs map[string]decimal.Decimal) (string, error)
	GetTransaction(ctx context.Context, txid string) (*TxInfo, error)
	GetBalance(ctx context.Context, minConf int) (decimal.Decimal, error)
	// ValidateAddress checks encoding and network locally, without an RPC
	ValidateAddress(address string) error
}

// IsTransient reports whether err is worth retrying on a later run
func IsTransient(err error) bool {
	return errors.Is(err, shared.ErrExternalNodeTransient)
}
