package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/custody-ledger/internal/domain/deposit"
	"github.com/custody-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// DepositRepository implements the deposit.Repository interface for PostgreSQL
type DepositRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewDepositRepository creates a new PostgreSQL deposit repository
func NewDepositRepository(logger *slog.Logger, db *persistence.PostgresDB) deposit.Repository {
	return &DepositRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *DepositRepository) WithTx(tx pgx.Tx) deposit.Repository {
	return &DepositRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Insert records a new deposit. The unique (address, txid, amount) key makes
// re-observation of the same payment a no-op.
func (r *DepositRepository) Insert(ctx context.Context, t *deposit.Transaction) (bool, error) {
	query := `
		INSERT INTO deposits (address_id, wallet_id, external_txid, amount, confirmations, credited, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, false, NOW(), NOW())
		ON CONFLICT (address_id, external_txid, amount) DO NOTHING
		RETURNING id, created_at, updated_at
	`

	err := r.querier.QueryRow(ctx, query, t.AddressID, t.WalletID, t.ExternalTxID, t.Amount, t.Confirmations).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		r.logger.Error("Failed to insert deposit",
			"address_id", t.AddressID,
			"txid", t.ExternalTxID,
			"error", err,
		)
		return false, fmt.Errorf("failed to insert deposit: %w", err)
	}
	return true, nil
}

// Find returns the deposit matching the triple, or nil
func (r *DepositRepository) Find(ctx context.Context, addressID int64, externalTxID string, amount decimal.Decimal) (*deposit.Transaction, error) {
	query := `
		SELECT id, address_id, wallet_id, external_txid, amount, confirmations, credited, ledger_entry_id, created_at, updated_at
		FROM deposits
		WHERE address_id = $1 AND external_txid = $2 AND amount = $3
	`

	var t deposit.Transaction
	err := r.querier.QueryRow(ctx, query, addressID, externalTxID, amount).Scan(
		&t.ID,
		&t.AddressID,
		&t.WalletID,
		&t.ExternalTxID,
		&t.Amount,
		&t.Confirmations,
		&t.Credited,
		&t.LedgerEntryID,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to find deposit", "address_id", addressID, "txid", externalTxID, "error", err)
		return nil, fmt.Errorf("failed to find deposit: %w", err)
	}
	return &t, nil
}

func (r *DepositRepository) UpdateConfirmations(ctx context.Context, id int64, confirmations int64) error {
	query := `
		UPDATE deposits
		SET confirmations = $1, updated_at = NOW()
		WHERE id = $2 AND credited = false
	`

	if _, err := r.querier.Exec(ctx, query, confirmations, id); err != nil {
		r.logger.Error("Failed to update deposit confirmations", "id", id, "error", err)
		return fmt.Errorf("failed to update deposit confirmations: %w", err)
	}
	return nil
}

// MarkCredited flips credited once. A second caller gets false.
func (r *DepositRepository) MarkCredited(ctx context.Context, id int64, entryID uuid.UUID) (bool, error) {
	query := `
		UPDATE deposits
		SET credited = true, ledger_entry_id = $1, updated_at = NOW()
		WHERE id = $2 AND credited = false
	`

	result, err := r.querier.Exec(ctx, query, entryID, id)
	if err != nil {
		r.logger.Error("Failed to mark deposit credited", "id", id, "error", err)
		return false, fmt.Errorf("failed to mark deposit credited: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

func (r *DepositRepository) SumCredited(ctx context.Context) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM deposits WHERE credited = true`

	var total decimal.Decimal
	if err := r.querier.QueryRow(ctx, query).Scan(&total); err != nil {
		r.logger.Error("Failed to sum credited deposits", "error", err)
		return decimal.Zero, fmt.Errorf("failed to sum credited deposits: %w", err)
	}
	return total, nil
}
