package memstore

import (
	"context"
	"sort"

	"github.com/custody-ledger/internal/domain/shared"
	"github.com/custody-ledger/internal/domain/wallet"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type walletRepo struct {
	s *Store
}

func (r *walletRepo) WithTx(pgx.Tx) wallet.Repository { return r }

func (r *walletRepo) Create(_ context.Context, w *wallet.Wallet) error {
	var err error
	r.s.read(func(d *state) {
		if _, ok := d.wallets[w.ID]; ok {
			err = wallet.ErrDuplicateWallet{WalletID: w.ID}
			return
		}
		d.wallets[w.ID] = *w
	})
	return err
}

func (r *walletRepo) GetByID(_ context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	var out *wallet.Wallet
	r.s.read(func(d *state) {
		if w, ok := d.wallets[id]; ok {
			out = &w
		}
	})
	if out == nil {
		return nil, wallet.ErrWalletNotFound{WalletID: id}
	}
	return out, nil
}

func (r *walletRepo) LockForUpdate(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	return r.GetByID(ctx, id)
}

func (r *walletRepo) ListIDs(_ context.Context) ([]uuid.UUID, error) {
	var ws []wallet.Wallet
	r.s.read(func(d *state) {
		for _, w := range d.wallets {
			ws = append(ws, w)
		}
	})
	sort.Slice(ws, func(i, j int) bool {
		if !ws[i].CreatedAt.Equal(ws[j].CreatedAt) {
			return ws[i].CreatedAt.Before(ws[j].CreatedAt)
		}
		return ws[i].ID.String() < ws[j].ID.String()
	})
	ids := make([]uuid.UUID, len(ws))
	for i, w := range ws {
		ids[i] = w.ID
	}
	return ids, nil
}

func (r *walletRepo) DebitCAS(_ context.Context, id uuid.UUID, amount decimal.Decimal, expectedVersion int64) error {
	var err error
	r.s.read(func(d *state) {
		w, ok := d.wallets[id]
		if !ok || w.Version != expectedVersion {
			err = shared.ErrConcurrencyConflict{WalletID: id}
			return
		}
		w.Balance = w.Balance.Sub(amount)
		w.Version++
		w.UpdatedAt = r.s.clock.Now()
		d.wallets[id] = w
	})
	return err
}

func (r *walletRepo) Credit(_ context.Context, id uuid.UUID, amount decimal.Decimal) error {
	var err error
	r.s.read(func(d *state) {
		w, ok := d.wallets[id]
		if !ok {
			err = wallet.ErrWalletNotFound{WalletID: id}
			return
		}
		w.Balance = w.Balance.Add(amount)
		w.UpdatedAt = r.s.clock.Now()
		d.wallets[id] = w
	})
	return err
}

func (r *walletRepo) SetCachedBalance(_ context.Context, id uuid.UUID, balance decimal.Decimal) error {
	var err error
	r.s.read(func(d *state) {
		w, ok := d.wallets[id]
		if !ok {
			err = wallet.ErrWalletNotFound{WalletID: id}
			return
		}
		w.Balance = balance
		w.Version++
		w.UpdatedAt = r.s.clock.Now()
		d.wallets[id] = w
	})
	return err
}

func (r *walletRepo) SumBalances(_ context.Context) (decimal.Decimal, error) {
	total := decimal.Zero
	r.s.read(func(d *state) {
		for _, w := range d.wallets {
			total = total.Add(w.Balance)
		}
	})
	return total, nil
}

// CorruptCachedBalance overwrites a wallet's cache without touching the
// version, simulating drift for reconciliation tests.
func (s *Store) CorruptCachedBalance(id uuid.UUID, balance decimal.Decimal) {
	s.read(func(d *state) {
		w := d.wallets[id]
		w.Balance = balance
		d.wallets[id] = w
	})
}
