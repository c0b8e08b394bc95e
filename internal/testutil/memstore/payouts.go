package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/custody-ledger/internal/domain/payout"
	"github.com/custody-ledger/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type payoutRepo struct {
	s *Store
}

func (r *payoutRepo) WithTx(pgx.Tx) payout.Repository { return r }

func (r *payoutRepo) Create(_ context.Context, p *payout.Payout) error {
	r.s.read(func(d *state) { d.payouts[p.ID] = *p })
	return nil
}

func (r *payoutRepo) GetByID(_ context.Context, id uuid.UUID) (*payout.Payout, error) {
	var out *payout.Payout
	r.s.read(func(d *state) {
		if p, ok := d.payouts[id]; ok {
			out = &p
		}
	})
	if out == nil {
		return nil, payout.ErrPayoutNotFound{PayoutID: id}
	}
	return out, nil
}

func sortedPayouts(d *state, keep func(p payout.Payout) bool) []*payout.Payout {
	var out []*payout.Payout
	for _, p := range d.payouts {
		if keep(p) {
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func isPending(p payout.Payout) bool {
	return !p.Claimed && p.Status == shared.PayoutStatusPending
}

func inBatch(p payout.Payout, batchID uuid.UUID) bool {
	return p.BatchID != nil && *p.BatchID == batchID
}

func (r *payoutRepo) ListByBatch(_ context.Context, batchID uuid.UUID) ([]*payout.Payout, error) {
	var out []*payout.Payout
	r.s.read(func(d *state) {
		out = sortedPayouts(d, func(p payout.Payout) bool { return inBatch(p, batchID) })
	})
	return out, nil
}

func (r *payoutRepo) ListPending(_ context.Context, limit int) ([]*payout.Payout, error) {
	var out []*payout.Payout
	r.s.read(func(d *state) { out = sortedPayouts(d, isPending) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *payoutRepo) CountPending(_ context.Context) (int, error) {
	n := 0
	r.s.read(func(d *state) {
		for _, p := range d.payouts {
			if isPending(p) {
				n++
			}
		}
	})
	return n, nil
}

func (r *payoutRepo) Claim(_ context.Context, ids []uuid.UUID, batchID uuid.UUID) ([]uuid.UUID, error) {
	var claimed []uuid.UUID
	r.s.read(func(d *state) {
		for _, id := range ids {
			p, ok := d.payouts[id]
			if !ok || !isPending(p) {
				continue
			}
			p.Claimed = true
			p.Status = shared.PayoutStatusClaimed
			p.BatchID = ptr(batchID)
			d.payouts[id] = p
			claimed = append(claimed, id)
		}
	})
	return claimed, nil
}

// updateClaimed applies fn to every CLAIMED payout of the batch
func (r *payoutRepo) updateClaimed(batchID uuid.UUID, fn func(p *payout.Payout)) int {
	n := 0
	r.s.read(func(d *state) {
		for id, p := range d.payouts {
			if !inBatch(p, batchID) || p.Status != shared.PayoutStatusClaimed {
				continue
			}
			fn(&p)
			d.payouts[id] = p
			n++
		}
	})
	return n
}

func (r *payoutRepo) Release(_ context.Context, batchID uuid.UUID) (int, error) {
	return r.updateClaimed(batchID, func(p *payout.Payout) {
		p.Claimed = false
		p.Status = shared.PayoutStatusPending
		p.BatchID = nil
	}), nil
}

func (r *payoutRepo) MarkExecuted(_ context.Context, batchID uuid.UUID, externalTxID string, executedAt time.Time) error {
	r.updateClaimed(batchID, func(p *payout.Payout) {
		p.Status = shared.PayoutStatusExecuted
		p.ExternalTxID = externalTxID
		p.ExecutedAt = ptr(executedAt)
	})
	return nil
}

func (r *payoutRepo) MarkFailed(_ context.Context, batchID uuid.UUID, reason string) error {
	r.updateClaimed(batchID, func(p *payout.Payout) {
		p.Status = shared.PayoutStatusFailed
		p.FailureReason = reason
	})
	return nil
}

func (r *payoutRepo) SetFeeShare(_ context.Context, id uuid.UUID, share decimal.Decimal) error {
	r.s.read(func(d *state) {
		if p, ok := d.payouts[id]; ok {
			p.FeeShare = share
			d.payouts[id] = p
		}
	})
	return nil
}

func (r *payoutRepo) SumReserved(_ context.Context) (decimal.Decimal, error) {
	total := decimal.Zero
	r.s.read(func(d *state) {
		for _, p := range d.payouts {
			if p.Status != shared.PayoutStatusExecuted {
				total = total.Add(p.Amount)
			}
		}
	})
	return total, nil
}

func (r *payoutRepo) CreateBatch(_ context.Context, b *payout.Batch) error {
	r.s.read(func(d *state) {
		b.UpdatedAt = b.CreatedAt
		d.batches[b.ID] = *b
	})
	return nil
}

func (r *payoutRepo) GetBatch(_ context.Context, id uuid.UUID) (*payout.Batch, error) {
	var out *payout.Batch
	r.s.read(func(d *state) {
		if b, ok := d.batches[id]; ok {
			out = &b
		}
	})
	if out == nil {
		return nil, payout.ErrBatchNotFound{BatchID: id}
	}
	return out, nil
}

func (r *payoutRepo) UpdateBatch(_ context.Context, b *payout.Batch) error {
	var err error
	r.s.read(func(d *state) {
		if _, ok := d.batches[b.ID]; !ok {
			err = payout.ErrBatchNotFound{BatchID: b.ID}
			return
		}
		b.UpdatedAt = r.s.clock.Now()
		d.batches[b.ID] = *b
	})
	return err
}

func unposted(b payout.Batch) bool {
	return b.Status == shared.BatchStatusSent && !b.FeePosted
}

func (r *payoutRepo) ListUnpostedFees(_ context.Context) ([]*payout.Batch, error) {
	var out []*payout.Batch
	r.s.read(func(d *state) {
		for _, b := range d.batches {
			if unposted(b) {
				out = append(out, &b)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *payoutRepo) SumUnpostedFees(_ context.Context) (decimal.Decimal, error) {
	total := decimal.Zero
	r.s.read(func(d *state) {
		for _, b := range d.batches {
			if unposted(b) {
				total = total.Add(b.Fee)
			}
		}
	})
	return total, nil
}

// Batches returns every batch record
func (s *Store) Batches() []payout.Batch {
	var out []payout.Batch
	s.read(func(d *state) {
		for _, b := range d.batches {
			out = append(out, b)
		}
	})
	return out
}

// AllPayouts returns every obligation
func (s *Store) AllPayouts() []payout.Payout {
	var out []payout.Payout
	s.read(func(d *state) {
		for _, p := range d.payouts {
			out = append(out, p)
		}
	})
	return out
}
