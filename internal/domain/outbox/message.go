package outbox

import (
	"encoding/json"
	"time"

	"github.com/custody-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BalanceChanged is the notification emitted for every change of a wallet's
// unconfirmed or confirmed balance. Delta is signed.
type BalanceChanged struct {
	EventID    uuid.UUID          `json:"event_id"`
	WalletID   uuid.UUID          `json:"wallet_id"`
	View       shared.BalanceView `json:"view"`
	Delta      decimal.Decimal    `json:"delta"`
	EntryID    *uuid.UUID         `json:"entry_id,omitempty"`
	DepositID  *int64             `json:"deposit_id,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// Message stores one event for reliable, at-least-once publishing. It is
// written in the same database transaction as the change it describes.
type Message struct {
	ID            int64               `json:"id"`
	EventID       uuid.UUID           `json:"event_id"`
	WalletID      uuid.UUID           `json:"wallet_id"`
	Payload       json.RawMessage     `json:"payload"`
	Status        shared.OutboxStatus `json:"status"`
	Attempts      int                 `json:"attempts"`
	CreatedAt     time.Time           `json:"created_at"`
	LastAttemptAt *time.Time          `json:"last_attempt_at,omitempty"`
}

func NewMessage(event *BalanceChanged) (*Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	return &Message{
		EventID:   event.EventID,
		WalletID:  event.WalletID,
		Payload:   payload,
		Status:    shared.OutboxStatusPending,
		Attempts:  0,
		CreatedAt: event.OccurredAt,
	}, nil
}

func (m *Message) IncrementAttempts(now time.Time) {
	m.Attempts++
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsPublished(now time.Time) {
	m.Status = shared.OutboxStatusPublished
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsFailed(now time.Time) {
	m.Status = shared.OutboxStatusFailedToPublish
	m.LastAttemptAt = &now
}

// Event decodes the payload
func (m *Message) Event() (*BalanceChanged, error) {
	var event BalanceChanged
	if err := json.Unmarshal(m.Payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
