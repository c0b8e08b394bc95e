package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/custody-ledger/internal/domain/address"
	"github.com/custody-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// AddressRepository implements the address.Repository interface for PostgreSQL
type AddressRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewAddressRepository creates a new PostgreSQL address pool repository
func NewAddressRepository(logger *slog.Logger, db *persistence.PostgresDB) address.Repository {
	return &AddressRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *AddressRepository) WithTx(tx pgx.Tx) address.Repository {
	return &AddressRepository{
		querier: tx,
		logger:  r.logger,
	}
}

const addressColumns = `id, address, wallet_id, received_unconfirmed, received_confirmed, active, created_at, claimed_at, claim_command_id`

// CreateMany adds node-generated addresses to the free pool
func (r *AddressRepository) CreateMany(ctx context.Context, addresses []string) (int, error) {
	query := `
		INSERT INTO addresses (address)
		SELECT UNNEST($1::text[])
		ON CONFLICT (address) DO NOTHING
	`

	result, err := r.querier.Exec(ctx, query, addresses)
	if err != nil {
		r.logger.Error("Failed to insert pool addresses", "count", len(addresses), "error", err)
		return 0, fmt.Errorf("failed to insert pool addresses: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// GetByAddress looks an address up by its network encoding
func (r *AddressRepository) GetByAddress(ctx context.Context, addr string) (*address.Address, error) {
	query := `SELECT ` + addressColumns + ` FROM addresses WHERE address = $1`

	a, err := scanAddress(r.querier.QueryRow(ctx, query, addr))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, address.ErrAddressNotFound{Address: addr}
		}
		r.logger.Error("Failed to get address", "address", addr, "error", err)
		return nil, fmt.Errorf("failed to get address: %w", err)
	}
	return a, nil
}

// ListByWallet returns the wallet's addresses, newest claim first
func (r *AddressRepository) ListByWallet(ctx context.Context, walletID uuid.UUID) ([]*address.Address, error) {
	query := `SELECT ` + addressColumns + `
		FROM addresses
		WHERE wallet_id = $1
		ORDER BY claimed_at DESC, id DESC
	`
	return r.list(ctx, "list wallet addresses", query, walletID)
}

// ListWithActivity returns every claimed address that has seen funds
func (r *AddressRepository) ListWithActivity(ctx context.Context) ([]*address.Address, error) {
	query := `SELECT ` + addressColumns + `
		FROM addresses
		WHERE wallet_id IS NOT NULL AND received_unconfirmed > 0
		ORDER BY id ASC
	`
	return r.list(ctx, "list active addresses", query)
}

// LatestForWallet returns the newest active address or nil
func (r *AddressRepository) LatestForWallet(ctx context.Context, walletID uuid.UUID) (*address.Address, error) {
	query := `SELECT ` + addressColumns + `
		FROM addresses
		WHERE wallet_id = $1 AND active = true
		ORDER BY claimed_at DESC, id DESC
		LIMIT 1
	`

	a, err := scanAddress(r.querier.QueryRow(ctx, query, walletID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get latest address", "wallet_id", walletID.String(), "error", err)
		return nil, fmt.Errorf("failed to get latest address: %w", err)
	}
	return a, nil
}

// ListFree returns up to limit claimable addresses, oldest first
func (r *AddressRepository) ListFree(ctx context.Context, limit int) ([]*address.Address, error) {
	query := `SELECT ` + addressColumns + `
		FROM addresses
		WHERE active = false AND wallet_id IS NULL AND received_unconfirmed = 0
		ORDER BY id ASC
		LIMIT $1
	`
	return r.list(ctx, "list free addresses", query, limit)
}

func (r *AddressRepository) CountFree(ctx context.Context) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM addresses
		WHERE active = false AND wallet_id IS NULL AND received_unconfirmed = 0
	`

	var n int
	if err := r.querier.QueryRow(ctx, query).Scan(&n); err != nil {
		r.logger.Error("Failed to count free addresses", "error", err)
		return 0, fmt.Errorf("failed to count free addresses: %w", err)
	}
	return n, nil
}

// Claim takes a free address for walletID. The WHERE clause repeats the
// free-pool predicate so two claimers of the same row cannot both win, and
// the unique claim_command_id stops one command from taking two rows.
func (r *AddressRepository) Claim(ctx context.Context, id int64, walletID, commandID uuid.UUID) (bool, error) {
	query := `
		UPDATE addresses
		SET active = true, wallet_id = $1, claimed_at = NOW(), claim_command_id = $3
		WHERE id = $2 AND active = false AND wallet_id IS NULL AND received_unconfirmed = 0
	`

	var claimedBy *uuid.UUID
	if commandID != uuid.Nil {
		claimedBy = &commandID
	}

	result, err := r.querier.Exec(ctx, query, walletID, id, claimedBy)
	if err != nil {
		if persistence.IsUniqueViolation(err) {
			return false, address.ErrClaimCommandUsed
		}
		r.logger.Error("Failed to claim address", "id", id, "wallet_id", walletID.String(), "error", err)
		return false, fmt.Errorf("failed to claim address: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

func (r *AddressRepository) ClaimedByCommand(ctx context.Context, commandID uuid.UUID) (*address.Address, error) {
	query := `SELECT ` + addressColumns + ` FROM addresses WHERE claim_command_id = $1`

	a, err := scanAddress(r.querier.QueryRow(ctx, query, commandID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get address by claim command", "command_id", commandID.String(), "error", err)
		return nil, fmt.Errorf("failed to get address by claim command: %w", err)
	}
	return a, nil
}

func (r *AddressRepository) AddUnconfirmed(ctx context.Context, id int64, amount decimal.Decimal) error {
	query := `
		UPDATE addresses
		SET received_unconfirmed = received_unconfirmed + $1
		WHERE id = $2
	`

	result, err := r.querier.Exec(ctx, query, amount, id)
	if err != nil {
		r.logger.Error("Failed to add unconfirmed amount", "id", id, "error", err)
		return fmt.Errorf("failed to add unconfirmed amount: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("address %d vanished while adding unconfirmed amount", id)
	}
	return nil
}

// AdvanceConfirmed is a compare-and-swap on received_confirmed
func (r *AddressRepository) AdvanceConfirmed(ctx context.Context, id int64, expected, amount decimal.Decimal) (bool, error) {
	query := `
		UPDATE addresses
		SET received_confirmed = received_confirmed + $1
		WHERE id = $2 AND received_confirmed = $3
	`

	result, err := r.querier.Exec(ctx, query, amount, id, expected)
	if err != nil {
		r.logger.Error("Failed to advance confirmed amount", "id", id, "error", err)
		return false, fmt.Errorf("failed to advance confirmed amount: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// PendingForWallet sums received-but-uncredited funds over the wallet's addresses
func (r *AddressRepository) PendingForWallet(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(GREATEST(received_unconfirmed - received_confirmed, 0)), 0)
		FROM addresses
		WHERE wallet_id = $1
	`

	var pending decimal.Decimal
	if err := r.querier.QueryRow(ctx, query, walletID).Scan(&pending); err != nil {
		r.logger.Error("Failed to sum pending deposits", "wallet_id", walletID.String(), "error", err)
		return decimal.Zero, fmt.Errorf("failed to sum pending deposits: %w", err)
	}
	return pending, nil
}

func (r *AddressRepository) list(ctx context.Context, op, query string, args ...any) ([]*address.Address, error) {
	rows, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to "+op, "error", err)
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	defer rows.Close()

	var out []*address.Address
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan address: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over addresses: %w", err)
	}
	return out, nil
}

func scanAddress(row pgx.Row) (*address.Address, error) {
	var a address.Address
	err := row.Scan(
		&a.ID,
		&a.Address,
		&a.WalletID,
		&a.ReceivedUnconfirmed,
		&a.ReceivedConfirmed,
		&a.Active,
		&a.CreatedAt,
		&a.ClaimedAt,
		&a.ClaimCommandID,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
