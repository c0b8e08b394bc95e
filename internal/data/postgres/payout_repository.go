package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/custody-ledger/internal/domain/payout"
	"github.com/custody-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// PayoutRepository implements the payout.Repository interface for PostgreSQL.
// It owns both the payouts and payout_batches tables.
type PayoutRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewPayoutRepository creates a new PostgreSQL payout repository
func NewPayoutRepository(logger *slog.Logger, db *persistence.PostgresDB) payout.Repository {
	return &PayoutRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *PayoutRepository) WithTx(tx pgx.Tx) payout.Repository {
	return &PayoutRepository{
		querier: tx,
		logger:  r.logger,
	}
}

const payoutColumns = `id, wallet_id, to_address, amount, ledger_entry_id, status, claimed, batch_id, external_txid, fee_share, failure_reason, created_at, expires_at, executed_at`

func (r *PayoutRepository) Create(ctx context.Context, p *payout.Payout) error {
	query := `
		INSERT INTO payouts (id, wallet_id, to_address, amount, ledger_entry_id, status, claimed, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, $7, $8)
	`

	_, err := r.querier.Exec(ctx, query,
		p.ID,
		p.WalletID,
		p.ToAddress,
		p.Amount,
		p.LedgerEntryID,
		p.Status,
		p.CreatedAt,
		p.ExpiresAt,
	)
	if err != nil {
		r.logger.Error("Failed to create payout", "id", p.ID.String(), "wallet_id", p.WalletID.String(), "error", err)
		return fmt.Errorf("failed to create payout: %w", err)
	}
	return nil
}

func (r *PayoutRepository) GetByID(ctx context.Context, id uuid.UUID) (*payout.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE id = $1`

	p, err := scanPayout(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payout.ErrPayoutNotFound{PayoutID: id}
		}
		r.logger.Error("Failed to get payout", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get payout: %w", err)
	}
	return p, nil
}

func (r *PayoutRepository) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*payout.Payout, error) {
	query := `SELECT ` + payoutColumns + `
		FROM payouts
		WHERE batch_id = $1
		ORDER BY created_at ASC, id ASC
	`
	return r.list(ctx, "list batch payouts", query, batchID)
}

// ListPending returns up to limit unclaimed obligations, oldest first
func (r *PayoutRepository) ListPending(ctx context.Context, limit int) ([]*payout.Payout, error) {
	query := `SELECT ` + payoutColumns + `
		FROM payouts
		WHERE claimed = false AND status = 'PENDING'
		ORDER BY created_at ASC, id ASC
		LIMIT $1
	`
	return r.list(ctx, "list pending payouts", query, limit)
}

func (r *PayoutRepository) CountPending(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM payouts WHERE claimed = false AND status = 'PENDING'`

	var n int
	if err := r.querier.QueryRow(ctx, query).Scan(&n); err != nil {
		r.logger.Error("Failed to count pending payouts", "error", err)
		return 0, fmt.Errorf("failed to count pending payouts: %w", err)
	}
	return n, nil
}

// Claim flips unclaimed rows to claimed in one statement. Rows another
// batch already took are silently skipped and absent from the result.
func (r *PayoutRepository) Claim(ctx context.Context, ids []uuid.UUID, batchID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		UPDATE payouts
		SET claimed = true, status = 'CLAIMED', batch_id = $1
		WHERE id = ANY($2) AND claimed = false AND status = 'PENDING'
		RETURNING id
	`

	rows, err := r.querier.Query(ctx, query, batchID, ids)
	if err != nil {
		r.logger.Error("Failed to claim payouts", "batch_id", batchID.String(), "error", err)
		return nil, fmt.Errorf("failed to claim payouts: %w", err)
	}
	defer rows.Close()

	var claimed []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan claimed payout id: %w", err)
		}
		claimed = append(claimed, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over claimed payouts: %w", err)
	}
	return claimed, nil
}

// Release puts a batch's claimed obligations back into the pending pool
func (r *PayoutRepository) Release(ctx context.Context, batchID uuid.UUID) (int, error) {
	query := `
		UPDATE payouts
		SET claimed = false, status = 'PENDING', batch_id = NULL
		WHERE batch_id = $1 AND status = 'CLAIMED'
	`

	result, err := r.querier.Exec(ctx, query, batchID)
	if err != nil {
		r.logger.Error("Failed to release payouts", "batch_id", batchID.String(), "error", err)
		return 0, fmt.Errorf("failed to release payouts: %w", err)
	}
	return int(result.RowsAffected()), nil
}

func (r *PayoutRepository) MarkExecuted(ctx context.Context, batchID uuid.UUID, externalTxID string, executedAt time.Time) error {
	query := `
		UPDATE payouts
		SET status = 'EXECUTED', external_txid = $2, executed_at = $3
		WHERE batch_id = $1 AND status = 'CLAIMED'
	`

	if _, err := r.querier.Exec(ctx, query, batchID, externalTxID, executedAt); err != nil {
		r.logger.Error("Failed to mark payouts executed", "batch_id", batchID.String(), "error", err)
		return fmt.Errorf("failed to mark payouts executed: %w", err)
	}
	return nil
}

// MarkFailed parks the batch's obligations for manual resolution. They stay
// claimed so no later batch picks them up.
func (r *PayoutRepository) MarkFailed(ctx context.Context, batchID uuid.UUID, reason string) error {
	query := `
		UPDATE payouts
		SET status = 'FAILED', failure_reason = $2
		WHERE batch_id = $1 AND status = 'CLAIMED'
	`

	if _, err := r.querier.Exec(ctx, query, batchID, reason); err != nil {
		r.logger.Error("Failed to mark payouts failed", "batch_id", batchID.String(), "error", err)
		return fmt.Errorf("failed to mark payouts failed: %w", err)
	}
	return nil
}

func (r *PayoutRepository) SetFeeShare(ctx context.Context, id uuid.UUID, share decimal.Decimal) error {
	query := `UPDATE payouts SET fee_share = $1 WHERE id = $2`

	if _, err := r.querier.Exec(ctx, query, share, id); err != nil {
		r.logger.Error("Failed to set fee share", "id", id.String(), "error", err)
		return fmt.Errorf("failed to set fee share: %w", err)
	}
	return nil
}

// SumReserved totals funds debited from wallets but not yet sent
func (r *PayoutRepository) SumReserved(ctx context.Context) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM payouts WHERE status IN ('PENDING', 'CLAIMED', 'FAILED')`

	var total decimal.Decimal
	if err := r.querier.QueryRow(ctx, query).Scan(&total); err != nil {
		r.logger.Error("Failed to sum reserved payouts", "error", err)
		return decimal.Zero, fmt.Errorf("failed to sum reserved payouts: %w", err)
	}
	return total, nil
}

func (r *PayoutRepository) CreateBatch(ctx context.Context, b *payout.Batch) error {
	query := `
		INSERT INTO payout_batches (id, status, external_txid, fee, fee_posted, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`

	_, err := r.querier.Exec(ctx, query, b.ID, b.Status, b.ExternalTxID, b.Fee, b.FeePosted, b.FailureReason, b.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create payout batch", "id", b.ID.String(), "error", err)
		return fmt.Errorf("failed to create payout batch: %w", err)
	}
	return nil
}

func (r *PayoutRepository) GetBatch(ctx context.Context, id uuid.UUID) (*payout.Batch, error) {
	query := `
		SELECT id, status, external_txid, fee, fee_posted, failure_reason, created_at, updated_at
		FROM payout_batches
		WHERE id = $1
	`

	b, err := scanBatch(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payout.ErrBatchNotFound{BatchID: id}
		}
		r.logger.Error("Failed to get payout batch", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get payout batch: %w", err)
	}
	return b, nil
}

func (r *PayoutRepository) UpdateBatch(ctx context.Context, b *payout.Batch) error {
	query := `
		UPDATE payout_batches
		SET status = $1, external_txid = $2, fee = $3, fee_posted = $4, failure_reason = $5, updated_at = NOW()
		WHERE id = $6
	`

	result, err := r.querier.Exec(ctx, query, b.Status, b.ExternalTxID, b.Fee, b.FeePosted, b.FailureReason, b.ID)
	if err != nil {
		r.logger.Error("Failed to update payout batch", "id", b.ID.String(), "error", err)
		return fmt.Errorf("failed to update payout batch: %w", err)
	}
	if result.RowsAffected() == 0 {
		return payout.ErrBatchNotFound{BatchID: b.ID}
	}
	return nil
}

// ListUnpostedFees returns sent batches whose fee is not yet in the ledger
func (r *PayoutRepository) ListUnpostedFees(ctx context.Context) ([]*payout.Batch, error) {
	query := `
		SELECT id, status, external_txid, fee, fee_posted, failure_reason, created_at, updated_at
		FROM payout_batches
		WHERE status = 'SENT' AND fee_posted = false
		ORDER BY created_at ASC
	`

	rows, err := r.querier.Query(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list unposted fees", "error", err)
		return nil, fmt.Errorf("failed to list unposted fees: %w", err)
	}
	defer rows.Close()

	var batches []*payout.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payout batch: %w", err)
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over payout batches: %w", err)
	}
	return batches, nil
}

func (r *PayoutRepository) SumUnpostedFees(ctx context.Context) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(fee), 0) FROM payout_batches WHERE status = 'SENT' AND fee_posted = false`

	var total decimal.Decimal
	if err := r.querier.QueryRow(ctx, query).Scan(&total); err != nil {
		r.logger.Error("Failed to sum unposted fees", "error", err)
		return decimal.Zero, fmt.Errorf("failed to sum unposted fees: %w", err)
	}
	return total, nil
}

func (r *PayoutRepository) list(ctx context.Context, op, query string, args ...any) ([]*payout.Payout, error) {
	rows, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to "+op, "error", err)
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	defer rows.Close()

	var out []*payout.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payout: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over payouts: %w", err)
	}
	return out, nil
}

func scanPayout(row pgx.Row) (*payout.Payout, error) {
	var p payout.Payout
	err := row.Scan(
		&p.ID,
		&p.WalletID,
		&p.ToAddress,
		&p.Amount,
		&p.LedgerEntryID,
		&p.Status,
		&p.Claimed,
		&p.BatchID,
		&p.ExternalTxID,
		&p.FeeShare,
		&p.FailureReason,
		&p.CreatedAt,
		&p.ExpiresAt,
		&p.ExecutedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanBatch(row pgx.Row) (*payout.Batch, error) {
	var b payout.Batch
	err := row.Scan(
		&b.ID,
		&b.Status,
		&b.ExternalTxID,
		&b.Fee,
		&b.FeePosted,
		&b.FailureReason,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
