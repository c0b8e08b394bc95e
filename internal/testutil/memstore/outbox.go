package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/custody-ledger/internal/domain/outbox"
	"github.com/custody-ledger/internal/domain/reconciliation"
	"github.com/custody-ledger/internal/domain/shared"
	"github.com/jackc/pgx/v5"
)

type outboxRepo struct {
	s *Store
}

func (r *outboxRepo) WithTx(pgx.Tx) outbox.Repository { return r }

func (r *outboxRepo) Create(_ context.Context, m *outbox.Message) error {
	r.s.read(func(d *state) {
		d.nextOutboxID++
		m.ID = d.nextOutboxID
		d.outbox = append(d.outbox, *m)
	})
	return nil
}

func (r *outboxRepo) ListPending(_ context.Context, limit int) ([]*outbox.Message, error) {
	var out []*outbox.Message
	r.s.read(func(d *state) {
		for _, m := range d.outbox {
			if m.Status == shared.OutboxStatusPending && len(out) < limit {
				out = append(out, &m)
			}
		}
	})
	return out, nil
}

func (r *outboxRepo) CountPending(_ context.Context) (int64, error) {
	var n int64
	r.s.read(func(d *state) {
		for _, m := range d.outbox {
			if m.Status == shared.OutboxStatusPending {
				n++
			}
		}
	})
	return n, nil
}

// update applies fn to message id; fn returning false leaves it untouched
// and reports it as not found, like a guarded UPDATE matching no row.
func (r *outboxRepo) update(id int64, fn func(m *outbox.Message) bool) error {
	found := false
	r.s.read(func(d *state) {
		for i := range d.outbox {
			if d.outbox[i].ID == id {
				m := d.outbox[i]
				if found = fn(&m); found {
					d.outbox[i] = m
				}
				return
			}
		}
	})
	if !found {
		return outbox.ErrMessageNotFound{ID: id}
	}
	return nil
}

func (r *outboxRepo) settle(id int64, at time.Time, mark func(m *outbox.Message, at time.Time)) error {
	return r.update(id, func(m *outbox.Message) bool {
		if m.Status != shared.OutboxStatusPending {
			return false
		}
		mark(m, at)
		return true
	})
}

func (r *outboxRepo) MarkPublished(_ context.Context, id int64, at time.Time) error {
	return r.settle(id, at, (*outbox.Message).MarkAsPublished)
}

func (r *outboxRepo) MarkFailed(_ context.Context, id int64, at time.Time) error {
	return r.settle(id, at, (*outbox.Message).MarkAsFailed)
}

func (r *outboxRepo) RecordFailedAttempt(_ context.Context, id int64, at time.Time) (int, error) {
	var attempts int
	err := r.update(id, func(m *outbox.Message) bool {
		m.IncrementAttempts(at)
		attempts = m.Attempts
		return true
	})
	return attempts, err
}

func (r *outboxRepo) PurgePublished(_ context.Context, cutoff time.Time) (int64, error) {
	var purged int64
	r.s.read(func(d *state) {
		kept := d.outbox[:0]
		for _, m := range d.outbox {
			if m.Status == shared.OutboxStatusPublished && m.LastAttemptAt != nil && m.LastAttemptAt.Before(cutoff) {
				purged++
				continue
			}
			kept = append(kept, m)
		}
		d.outbox = kept
	})
	return purged, nil
}

// Events decodes every queued balance event in insertion order
func (s *Store) Events() []*outbox.BalanceChanged {
	var out []*outbox.BalanceChanged
	s.read(func(d *state) {
		for _, m := range d.outbox {
			if e, err := m.Event(); err == nil {
				out = append(out, e)
			}
		}
	})
	return out
}

// OutboxMessages returns a copy of the outbox table
func (s *Store) OutboxMessages() []outbox.Message {
	var out []outbox.Message
	s.read(func(d *state) { out = append(out, d.outbox...) })
	return out
}

type reportRepo struct {
	s *Store
}

func (r *reportRepo) Create(_ context.Context, report *reconciliation.Report) error {
	r.s.read(func(d *state) { d.reports = append(d.reports, *report) })
	return nil
}

func (r *reportRepo) Latest(_ context.Context) (*reconciliation.Report, error) {
	var out *reconciliation.Report
	r.s.read(func(d *state) {
		for _, rep := range d.reports {
			if out == nil || !rep.StartedAt.Before(out.StartedAt) {
				out = &rep
			}
		}
	})
	if out == nil {
		return nil, reconciliation.ErrNoReport
	}
	return out, nil
}

func (r *reportRepo) ListByTimeRange(_ context.Context, start, end time.Time, limit, offset int) ([]*reconciliation.Report, error) {
	var out []*reconciliation.Report
	r.s.read(func(d *state) {
		for _, rep := range d.reports {
			if !rep.StartedAt.Before(start) && !rep.StartedAt.After(end) {
				out = append(out, &rep)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
