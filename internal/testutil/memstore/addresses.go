package memstore

import (
	"context"
	"sort"

	"github.com/custody-ledger/internal/domain/address"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type addressRepo struct {
	s *Store
}

func (r *addressRepo) WithTx(pgx.Tx) address.Repository { return r }

func sortedAddresses(d *state, keep func(a address.Address) bool) []*address.Address {
	var out []*address.Address
	for _, a := range d.addresses {
		if keep(a) {
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *addressRepo) CreateMany(_ context.Context, addrs []string) (int, error) {
	inserted := 0
	r.s.read(func(d *state) {
		known := make(map[string]bool, len(d.addresses))
		for _, a := range d.addresses {
			known[a.Address] = true
		}
		for _, s := range addrs {
			if known[s] {
				continue
			}
			known[s] = true
			d.nextAddressID++
			d.addresses[d.nextAddressID] = address.Address{
				ID:                  d.nextAddressID,
				Address:             s,
				ReceivedUnconfirmed: decimal.Zero,
				ReceivedConfirmed:   decimal.Zero,
				CreatedAt:           r.s.clock.Now(),
			}
			inserted++
		}
	})
	return inserted, nil
}

func (r *addressRepo) GetByAddress(_ context.Context, addr string) (*address.Address, error) {
	var out *address.Address
	r.s.read(func(d *state) {
		for _, a := range d.addresses {
			if a.Address == addr {
				out = &a
				return
			}
		}
	})
	if out == nil {
		return nil, address.ErrAddressNotFound{Address: addr}
	}
	return out, nil
}

func (r *addressRepo) ListByWallet(_ context.Context, walletID uuid.UUID) ([]*address.Address, error) {
	var out []*address.Address
	r.s.read(func(d *state) {
		out = sortedAddresses(d, func(a address.Address) bool { return a.OwnedBy(walletID) })
	})
	return out, nil
}

func (r *addressRepo) ListWithActivity(_ context.Context) ([]*address.Address, error) {
	var out []*address.Address
	r.s.read(func(d *state) {
		out = sortedAddresses(d, func(a address.Address) bool {
			return a.WalletID != nil && a.ReceivedUnconfirmed.IsPositive()
		})
	})
	return out, nil
}

func (r *addressRepo) LatestForWallet(_ context.Context, walletID uuid.UUID) (*address.Address, error) {
	var out *address.Address
	r.s.read(func(d *state) {
		for _, a := range sortedAddresses(d, func(a address.Address) bool { return a.Active && a.OwnedBy(walletID) }) {
			if out == nil || !a.ClaimedAt.Before(*out.ClaimedAt) {
				out = a
			}
		}
	})
	return out, nil
}

func (r *addressRepo) ListFree(_ context.Context, limit int) ([]*address.Address, error) {
	var out []*address.Address
	r.s.read(func(d *state) {
		out = sortedAddresses(d, func(a address.Address) bool { return a.IsFree() })
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *addressRepo) CountFree(_ context.Context) (int, error) {
	n := 0
	r.s.read(func(d *state) {
		for _, a := range d.addresses {
			if a.IsFree() {
				n++
			}
		}
	})
	return n, nil
}

func (r *addressRepo) Claim(_ context.Context, id int64, walletID, commandID uuid.UUID) (bool, error) {
	var (
		claimed bool
		err     error
	)
	r.s.read(func(d *state) {
		a, ok := d.addresses[id]
		if !ok || !a.IsFree() {
			return
		}
		if commandID != uuid.Nil {
			for _, other := range d.addresses {
				if other.ClaimCommandID != nil && *other.ClaimCommandID == commandID {
					err = address.ErrClaimCommandUsed
					return
				}
			}
			a.ClaimCommandID = ptr(commandID)
		}
		a.Active = true
		a.WalletID = ptr(walletID)
		a.ClaimedAt = ptr(r.s.clock.Now())
		d.addresses[id] = a
		claimed = true
	})
	return claimed, err
}

func (r *addressRepo) ClaimedByCommand(_ context.Context, commandID uuid.UUID) (*address.Address, error) {
	var out *address.Address
	r.s.read(func(d *state) {
		for _, a := range d.addresses {
			if a.ClaimCommandID != nil && *a.ClaimCommandID == commandID {
				out = &a
				return
			}
		}
	})
	return out, nil
}

func (r *addressRepo) AddUnconfirmed(_ context.Context, id int64, amount decimal.Decimal) error {
	var err error
	r.s.read(func(d *state) {
		a, ok := d.addresses[id]
		if !ok {
			err = address.ErrAddressNotFound{}
			return
		}
		a.ReceivedUnconfirmed = a.ReceivedUnconfirmed.Add(amount)
		d.addresses[id] = a
	})
	return err
}

func (r *addressRepo) AdvanceConfirmed(_ context.Context, id int64, expected, amount decimal.Decimal) (bool, error) {
	advanced := false
	r.s.read(func(d *state) {
		a, ok := d.addresses[id]
		if !ok || !a.ReceivedConfirmed.Equal(expected) {
			return
		}
		a.ReceivedConfirmed = a.ReceivedConfirmed.Add(amount)
		d.addresses[id] = a
		advanced = true
	})
	return advanced, nil
}

func (r *addressRepo) PendingForWallet(_ context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	total := decimal.Zero
	r.s.read(func(d *state) {
		for _, a := range d.addresses {
			if a.OwnedBy(walletID) {
				total = total.Add(a.Pending())
			}
		}
	})
	return total, nil
}
