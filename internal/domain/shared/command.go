package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrUnknownCommandType = errors.New("unknown command type")

// CommandType names a wallet operation requested over Kafka
type CommandType string

const (
	CommandCreateWallet    CommandType = "CREATE_WALLET"
	CommandAllocateAddress CommandType = "ALLOCATE_ADDRESS"
	CommandTransfer        CommandType = "TRANSFER"
	CommandRequestPayout   CommandType = "REQUEST_PAYOUT"
)

// Command is the Kafka envelope for wallet commands. CommandID doubles as the
// idempotency key of whatever the command creates.
type Command struct {
	CommandID     uuid.UUID       `json:"command_id"`
	Type          CommandType     `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

type CreateWalletPayload struct {
	WalletID uuid.UUID `json:"wallet_id"`
	Label    string    `json:"label"`
}

type AllocateAddressPayload struct {
	WalletID  uuid.UUID `json:"wallet_id"`
	FreshOnly bool      `json:"fresh_only"`
}

type TransferPayload struct {
	FromWalletID uuid.UUID       `json:"from_wallet_id"`
	ToWalletID   uuid.UUID       `json:"to_wallet_id"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description,omitempty"`
}

type RequestPayoutPayload struct {
	FromWalletID uuid.UUID       `json:"from_wallet_id"`
	ToAddress    string          `json:"to_address"`
	Amount       decimal.Decimal `json:"amount"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
}

// NewCommand wraps payload in an envelope with a fresh command id
func NewCommand(typ CommandType, payload any, correlationID string, now time.Time) (*Command, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", typ, err)
	}
	return &Command{
		CommandID:     uuid.New(),
		Type:          typ,
		Payload:       raw,
		CorrelationID: correlationID,
		Timestamp:     now,
	}, nil
}

// Decode unmarshals the payload into dst, reporting malformed payloads as
// ErrInvalidArgument.
func (c *Command) Decode(dst any) error {
	if err := json.Unmarshal(c.Payload, dst); err != nil {
		return fmt.Errorf("%w: malformed %s payload: %v", ErrInvalidArgument, c.Type, err)
	}
	return nil
}

// PartitionKey returns the id of the wallet the command debits or targets.
// Commands of one wallet share a key and therefore a partition.
func (c *Command) PartitionKey() (string, error) {
	var walletID uuid.UUID
	switch c.Type {
	case CommandCreateWallet:
		var p CreateWalletPayload
		if err := c.Decode(&p); err != nil {
			return "", err
		}
		walletID = p.WalletID
	case CommandAllocateAddress:
		var p AllocateAddressPayload
		if err := c.Decode(&p); err != nil {
			return "", err
		}
		walletID = p.WalletID
	case CommandTransfer:
		var p TransferPayload
		if err := c.Decode(&p); err != nil {
			return "", err
		}
		walletID = p.FromWalletID
	case CommandRequestPayout:
		var p RequestPayoutPayload
		if err := c.Decode(&p); err != nil {
			return "", err
		}
		walletID = p.FromWalletID
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCommandType, c.Type)
	}

	if walletID == uuid.Nil {
		return c.CommandID.String(), nil
	}
	return walletID.String(), nil
}
