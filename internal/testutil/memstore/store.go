// Package memstore is an in-memory stand-in for the Postgres and Mongo
// repositories. Every conditional update mirrors its SQL counterpart: the
// same guard, the same affected-row outcome.
//
// ExecuteTx serializes transactions and restores a snapshot when fn fails.
// Writes made outside ExecuteTx while a transaction is rolling back are lost
// with it, which the tests using this package never do.
package memstore

import (
	"context"
	"sync"

	"github.com/custody-ledger/internal/domain/address"
	"github.com/custody-ledger/internal/domain/deposit"
	"github.com/custody-ledger/internal/domain/ledger"
	"github.com/custody-ledger/internal/domain/outbox"
	"github.com/custody-ledger/internal/domain/payout"
	"github.com/custody-ledger/internal/domain/reconciliation"
	"github.com/custody-ledger/internal/domain/wallet"
	"github.com/custody-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lightningnetwork/lnd/clock"
)

var _ persistence.TxRunner = (*Store)(nil)

type state struct {
	wallets     map[uuid.UUID]wallet.Wallet
	addresses   map[int64]address.Address
	deposits    map[int64]deposit.Transaction
	entries     map[uuid.UUID]ledger.Entry
	entryOrder  []uuid.UUID
	payouts     map[uuid.UUID]payout.Payout
	batches     map[uuid.UUID]payout.Batch
	outbox      []outbox.Message
	checkpoints map[string]string
	reports     []reconciliation.Report

	nextAddressID int64
	nextDepositID int64
	nextOutboxID  int64
}

func (s *state) clone() *state {
	c := &state{
		wallets:       make(map[uuid.UUID]wallet.Wallet, len(s.wallets)),
		addresses:     make(map[int64]address.Address, len(s.addresses)),
		deposits:      make(map[int64]deposit.Transaction, len(s.deposits)),
		entries:       make(map[uuid.UUID]ledger.Entry, len(s.entries)),
		entryOrder:    append([]uuid.UUID(nil), s.entryOrder...),
		payouts:       make(map[uuid.UUID]payout.Payout, len(s.payouts)),
		batches:       make(map[uuid.UUID]payout.Batch, len(s.batches)),
		outbox:        append([]outbox.Message(nil), s.outbox...),
		checkpoints:   make(map[string]string, len(s.checkpoints)),
		reports:       append([]reconciliation.Report(nil), s.reports...),
		nextAddressID: s.nextAddressID,
		nextDepositID: s.nextDepositID,
		nextOutboxID:  s.nextOutboxID,
	}
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	for k, v := range s.addresses {
		c.addresses[k] = v
	}
	for k, v := range s.deposits {
		c.deposits[k] = v
	}
	for k, v := range s.entries {
		c.entries[k] = v
	}
	for k, v := range s.payouts {
		c.payouts[k] = v
	}
	for k, v := range s.batches {
		c.batches[k] = v
	}
	for k, v := range s.checkpoints {
		c.checkpoints[k] = v
	}
	return c
}

// Store holds all tables. Stored values are never mutated in place: updates
// replace the map value, so a snapshot is a shallow copy of every map.
type Store struct {
	txMu  sync.Mutex
	mu    sync.Mutex
	data  *state
	clock clock.Clock
}

func New(clk clock.Clock) *Store {
	return &Store{
		clock: clk,
		data: &state{
			wallets:     map[uuid.UUID]wallet.Wallet{},
			addresses:   map[int64]address.Address{},
			deposits:    map[int64]deposit.Transaction{},
			entries:     map[uuid.UUID]ledger.Entry{},
			payouts:     map[uuid.UUID]payout.Payout{},
			batches:     map[uuid.UUID]payout.Batch{},
			checkpoints: map[string]string{},
		},
	}
}

// ExecuteTx runs fn with a nil transaction handle; the repositories ignore it.
func (s *Store) ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	committed := false
	defer func() {
		if !committed {
			s.mu.Lock()
			s.data = snapshot
			s.mu.Unlock()
		}
	}()

	if err := fn(nil); err != nil {
		return err
	}
	committed = true
	return nil
}

// read runs fn under the data lock
func (s *Store) read(fn func(d *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.data)
}

func (s *Store) Wallets() wallet.Repository { return &walletRepo{s: s} }
func (s *Store) Addresses() address.Repository { return &addressRepo{s: s} }
func (s *Store) Deposits() deposit.Repository { return &depositRepo{s: s} }
func (s *Store) Checkpoints() deposit.CheckpointRepository { return &checkpointRepo{s: s} }
func (s *Store) Entries() ledger.Repository { return &entryRepo{s: s} }
func (s *Store) Payouts() payout.Repository { return &payoutRepo{s: s} }
func (s *Store) Outbox() outbox.Repository { return &outboxRepo{s: s} }
func (s *Store) Reports() reconciliation.Repository { return &reportRepo{s: s} }

func ptr[T any](v T) *T { return &v }
