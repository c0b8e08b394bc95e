package memstore

import (
	"context"

	"github.com/custody-ledger/internal/domain/deposit"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type depositRepo struct {
	s *Store
}

func (r *depositRepo) WithTx(pgx.Tx) deposit.Repository { return r }

func sameDeposit(t deposit.Transaction, addressID int64, txid string, amount decimal.Decimal) bool {
	return t.AddressID == addressID && t.ExternalTxID == txid && t.Amount.Equal(amount)
}

func (r *depositRepo) Insert(_ context.Context, tx *deposit.Transaction) (bool, error) {
	inserted := false
	r.s.read(func(d *state) {
		for _, t := range d.deposits {
			if sameDeposit(t, tx.AddressID, tx.ExternalTxID, tx.Amount) {
				return
			}
		}
		d.nextDepositID++
		now := r.s.clock.Now()
		tx.ID = d.nextDepositID
		tx.CreatedAt = now
		tx.UpdatedAt = now
		d.deposits[tx.ID] = *tx
		inserted = true
	})
	return inserted, nil
}

func (r *depositRepo) Find(_ context.Context, addressID int64, externalTxID string, amount decimal.Decimal) (*deposit.Transaction, error) {
	var out *deposit.Transaction
	r.s.read(func(d *state) {
		for _, t := range d.deposits {
			if sameDeposit(t, addressID, externalTxID, amount) {
				out = &t
				return
			}
		}
	})
	return out, nil
}

func (r *depositRepo) UpdateConfirmations(_ context.Context, id int64, confirmations int64) error {
	r.s.read(func(d *state) {
		t, ok := d.deposits[id]
		if !ok || t.Credited {
			return
		}
		t.Confirmations = confirmations
		t.UpdatedAt = r.s.clock.Now()
		d.deposits[id] = t
	})
	return nil
}

func (r *depositRepo) MarkCredited(_ context.Context, id int64, entryID uuid.UUID) (bool, error) {
	marked := false
	r.s.read(func(d *state) {
		t, ok := d.deposits[id]
		if !ok || t.Credited {
			return
		}
		t.Credited = true
		t.LedgerEntryID = ptr(entryID)
		t.UpdatedAt = r.s.clock.Now()
		d.deposits[id] = t
		marked = true
	})
	return marked, nil
}

func (r *depositRepo) SumCredited(_ context.Context) (decimal.Decimal, error) {
	total := decimal.Zero
	r.s.read(func(d *state) {
		for _, t := range d.deposits {
			if t.Credited {
				total = total.Add(t.Amount)
			}
		}
	})
	return total, nil
}

// DepositCount returns the number of stored deposit rows
func (s *Store) DepositCount() int {
	n := 0
	s.read(func(d *state) { n = len(d.deposits) })
	return n
}

type checkpointRepo struct {
	s *Store
}

func (r *checkpointRepo) Get(_ context.Context, name string) (string, error) {
	var v string
	r.s.read(func(d *state) { v = d.checkpoints[name] })
	return v, nil
}

func (r *checkpointRepo) Save(_ context.Context, name, value string) error {
	r.s.read(func(d *state) { d.checkpoints[name] = value })
	return nil
}
