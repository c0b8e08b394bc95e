package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/custody-ledger/internal/domain/ledger"
	"github.com/custody-ledger/internal/domain/shared"
	"github.com/custody-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// LedgerRepository implements the ledger.Repository interface for PostgreSQL.
// Rows are only ever inserted.
type LedgerRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewLedgerRepository creates a new PostgreSQL ledger repository
func NewLedgerRepository(logger *slog.Logger, db *persistence.PostgresDB) ledger.Repository {
	return &LedgerRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *LedgerRepository) WithTx(tx pgx.Tx) ledger.Repository {
	return &LedgerRepository{
		querier: tx,
		logger:  r.logger,
	}
}

const entryColumns = `id, kind, from_wallet_id, to_wallet_id, COALESCE(to_external_address, ''), amount, deposit_id, payout_id, description, created_at`

// Create appends entry. Reusing an id yields ErrDuplicateEntry.
func (r *LedgerRepository) Create(ctx context.Context, e *ledger.Entry) error {
	query := `
		INSERT INTO ledger_entries (id, kind, from_wallet_id, to_wallet_id, to_external_address, amount, deposit_id, payout_id, description, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, NOW())
		RETURNING created_at
	`

	err := r.querier.QueryRow(ctx, query,
		e.ID,
		e.Kind,
		e.FromWalletID,
		e.ToWalletID,
		e.ToExternalAddress,
		e.Amount,
		e.DepositID,
		e.PayoutID,
		e.Description,
	).Scan(&e.CreatedAt)
	if err != nil {
		if persistence.IsUniqueViolation(err) {
			return ledger.ErrDuplicateEntry{EntryID: e.ID}
		}
		r.logger.Error("Failed to append ledger entry",
			"id", e.ID.String(),
			"kind", string(e.Kind),
			"error", err,
		)
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}

	return nil
}

func (r *LedgerRepository) GetByID(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE id = $1`

	e, err := scanEntry(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrEntryNotFound{EntryID: id}
		}
		r.logger.Error("Failed to get ledger entry", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	return e, nil
}

// ListByWallet pages through the entries touching walletID, newest first
func (r *LedgerRepository) ListByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*ledger.Entry, error) {
	query := `SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE from_wallet_id = $1 OR to_wallet_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.querier.Query(ctx, query, walletID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list ledger entries", "wallet_id", walletID.String(), "error", err)
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over ledger entries: %w", err)
	}
	return entries, nil
}

func (r *LedgerRepository) CountByWallet(ctx context.Context, walletID uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM ledger_entries WHERE from_wallet_id = $1 OR to_wallet_id = $1`

	var n int64
	if err := r.querier.QueryRow(ctx, query, walletID).Scan(&n); err != nil {
		r.logger.Error("Failed to count ledger entries", "wallet_id", walletID.String(), "error", err)
		return 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}
	return n, nil
}

// SumForWallet aggregates the entries in and out of walletID. The balance
// is credits minus debits.
func (r *LedgerRepository) SumForWallet(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, decimal.Decimal, error) {
	query := `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE to_wallet_id = $1), 0),
			COALESCE(SUM(amount) FILTER (WHERE from_wallet_id = $1), 0)
		FROM ledger_entries
		WHERE from_wallet_id = $1 OR to_wallet_id = $1
	`

	var credits, debits decimal.Decimal
	if err := r.querier.QueryRow(ctx, query, walletID).Scan(&credits, &debits); err != nil {
		r.logger.Error("Failed to sum ledger entries", "wallet_id", walletID.String(), "error", err)
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to sum ledger entries: %w", err)
	}
	return credits, debits, nil
}

func (r *LedgerRepository) SumByKind(ctx context.Context, kind shared.EntryKind) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE kind = $1`

	var total decimal.Decimal
	if err := r.querier.QueryRow(ctx, query, kind).Scan(&total); err != nil {
		r.logger.Error("Failed to sum ledger entries by kind", "kind", string(kind), "error", err)
		return decimal.Zero, fmt.Errorf("failed to sum ledger entries by kind: %w", err)
	}
	return total, nil
}

func scanEntry(row pgx.Row) (*ledger.Entry, error) {
	var e ledger.Entry
	err := row.Scan(
		&e.ID,
		&e.Kind,
		&e.FromWalletID,
		&e.ToWalletID,
		&e.ToExternalAddress,
		&e.Amount,
		&e.DepositID,
		&e.PayoutID,
		&e.Description,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
