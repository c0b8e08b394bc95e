package memstore

import (
	"context"

	"github.com/custody-ledger/internal/domain/ledger"
	"github.com/custody-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type entryRepo struct {
	s *Store
}

func (r *entryRepo) WithTx(pgx.Tx) ledger.Repository { return r }

func (r *entryRepo) Create(_ context.Context, e *ledger.Entry) error {
	var err error
	r.s.read(func(d *state) {
		if _, ok := d.entries[e.ID]; ok {
			err = ledger.ErrDuplicateEntry{EntryID: e.ID}
			return
		}
		e.CreatedAt = r.s.clock.Now()
		d.entries[e.ID] = *e
		d.entryOrder = append(d.entryOrder, e.ID)
	})
	return err
}

func (r *entryRepo) GetByID(_ context.Context, id uuid.UUID) (*ledger.Entry, error) {
	var out *ledger.Entry
	r.s.read(func(d *state) {
		if e, ok := d.entries[id]; ok {
			out = &e
		}
	})
	if out == nil {
		return nil, ledger.ErrEntryNotFound{EntryID: id}
	}
	return out, nil
}

func involves(e ledger.Entry, walletID uuid.UUID) bool {
	return (e.FromWalletID != nil && *e.FromWalletID == walletID) ||
		(e.ToWalletID != nil && *e.ToWalletID == walletID)
}

// ListByWallet returns newest first, like the SQL ORDER BY created_at DESC
func (r *entryRepo) ListByWallet(_ context.Context, walletID uuid.UUID, limit, offset int) ([]*ledger.Entry, error) {
	var out []*ledger.Entry
	r.s.read(func(d *state) {
		skipped := 0
		for i := len(d.entryOrder) - 1; i >= 0 && len(out) < limit; i-- {
			e := d.entries[d.entryOrder[i]]
			if !involves(e, walletID) {
				continue
			}
			if skipped < offset {
				skipped++
				continue
			}
			out = append(out, &e)
		}
	})
	return out, nil
}

func (r *entryRepo) CountByWallet(_ context.Context, walletID uuid.UUID) (int64, error) {
	var n int64
	r.s.read(func(d *state) {
		for _, e := range d.entries {
			if involves(e, walletID) {
				n++
			}
		}
	})
	return n, nil
}

func (r *entryRepo) SumForWallet(_ context.Context, walletID uuid.UUID) (decimal.Decimal, decimal.Decimal, error) {
	credits, debits := decimal.Zero, decimal.Zero
	r.s.read(func(d *state) {
		for _, e := range d.entries {
			if e.ToWalletID != nil && *e.ToWalletID == walletID {
				credits = credits.Add(e.Amount)
			}
			if e.FromWalletID != nil && *e.FromWalletID == walletID {
				debits = debits.Add(e.Amount)
			}
		}
	})
	return credits, debits, nil
}

func (r *entryRepo) SumByKind(_ context.Context, kind shared.EntryKind) (decimal.Decimal, error) {
	total := decimal.Zero
	r.s.read(func(d *state) {
		for _, e := range d.entries {
			if e.Kind == kind {
				total = total.Add(e.Amount)
			}
		}
	})
	return total, nil
}

// EntriesOfKind lists entries of kind in insertion order
func (s *Store) EntriesOfKind(kind shared.EntryKind) []ledger.Entry {
	var out []ledger.Entry
	s.read(func(d *state) {
		for _, id := range d.entryOrder {
			if e := d.entries[id]; e.Kind == kind {
				out = append(out, e)
			}
		}
	})
	return out
}
