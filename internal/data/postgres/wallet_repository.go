// Package postgres provides PostgreSQL implementations of the domain
// repositories. Every balance-affecting statement is a single conditional
// update whose affected-row count is checked by the caller.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/custody-ledger/internal/domain/shared"
	"github.com/custody-ledger/internal/domain/wallet"
	"github.com/custody-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// WalletRepository implements the wallet.Repository interface for PostgreSQL
type WalletRepository struct {
	querier persistence.Querier // *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewWalletRepository creates a new PostgreSQL wallet repository
func NewWalletRepository(logger *slog.Logger, db *persistence.PostgresDB) wallet.Repository {
	return &WalletRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a copy bound to tx
func (r *WalletRepository) WithTx(tx pgx.Tx) wallet.Repository {
	return &WalletRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new wallet. A reused id yields ErrDuplicateWallet.
func (r *WalletRepository) Create(ctx context.Context, w *wallet.Wallet) error {
	query := `
		INSERT INTO wallets (id, label, balance, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.querier.Exec(ctx, query, w.ID, w.Label, w.Balance, w.Version, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		if persistence.IsUniqueViolation(err) {
			return wallet.ErrDuplicateWallet{WalletID: w.ID}
		}
		r.logger.Error("Failed to create wallet", "id", w.ID.String(), "error", err)
		return fmt.Errorf("failed to create wallet: %w", err)
	}

	return nil
}

// GetByID retrieves a wallet by its ID
func (r *WalletRepository) GetByID(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	query := `
		SELECT id, label, balance, version, created_at, updated_at
		FROM wallets
		WHERE id = $1
	`
	return r.scanOne(ctx, "get wallet", query, id)
}

// LockForUpdate reads the wallet under a row lock. Only meaningful inside a
// transaction.
func (r *WalletRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	query := `
		SELECT id, label, balance, version, created_at, updated_at
		FROM wallets
		WHERE id = $1
		FOR UPDATE
	`
	return r.scanOne(ctx, "lock wallet for update", query, id)
}

func (r *WalletRepository) scanOne(ctx context.Context, op string, query string, id uuid.UUID) (*wallet.Wallet, error) {
	var w wallet.Wallet
	err := r.querier.QueryRow(ctx, query, id).Scan(
		&w.ID,
		&w.Label,
		&w.Balance,
		&w.Version,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, wallet.ErrWalletNotFound{WalletID: id}
		}
		r.logger.Error("Failed to "+op, "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	return &w, nil
}

// ListIDs returns every wallet id in creation order
func (r *WalletRepository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	query := `
		SELECT id
		FROM wallets
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.querier.Query(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list wallets", "error", err)
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan wallet id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over wallets: %w", err)
	}

	return ids, nil
}

// DebitCAS subtracts amount if and only if the wallet is still at
// expectedVersion.
func (r *WalletRepository) DebitCAS(ctx context.Context, id uuid.UUID, amount decimal.Decimal, expectedVersion int64) error {
	query := `
		UPDATE wallets
		SET balance = balance - $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3
	`

	result, err := r.querier.Exec(ctx, query, amount, id, expectedVersion)
	if err != nil {
		r.logger.Error("Failed to debit wallet", "id", id.String(), "error", err)
		return fmt.Errorf("failed to debit wallet: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrConcurrencyConflict{WalletID: id}
	}

	return nil
}

// Credit increments the cached balance. Addition commutes, so no version check.
func (r *WalletRepository) Credit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	query := `
		UPDATE wallets
		SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.querier.Exec(ctx, query, amount, id)
	if err != nil {
		r.logger.Error("Failed to credit wallet", "id", id.String(), "error", err)
		return fmt.Errorf("failed to credit wallet: %w", err)
	}

	if result.RowsAffected() == 0 {
		return wallet.ErrWalletNotFound{WalletID: id}
	}

	return nil
}

// SetCachedBalance overwrites the cache with a recomputed value
func (r *WalletRepository) SetCachedBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	query := `
		UPDATE wallets
		SET balance = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.querier.Exec(ctx, query, balance, id)
	if err != nil {
		r.logger.Error("Failed to correct cached balance", "id", id.String(), "error", err)
		return fmt.Errorf("failed to correct cached balance: %w", err)
	}

	if result.RowsAffected() == 0 {
		return wallet.ErrWalletNotFound{WalletID: id}
	}

	return nil
}

// SumBalances totals the cached balances of all wallets
func (r *WalletRepository) SumBalances(ctx context.Context) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(balance), 0) FROM wallets`

	var total decimal.Decimal
	if err := r.querier.QueryRow(ctx, query).Scan(&total); err != nil {
		r.logger.Error("Failed to sum wallet balances", "error", err)
		return decimal.Zero, fmt.Errorf("failed to sum wallet balances: %w", err)
	}
	return total, nil
}
