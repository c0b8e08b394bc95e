package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/custody-ledger/internal/domain/address"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

var addressRowColumns = []string{"id", "address", "wallet_id", "received_unconfirmed", "received_confirmed", "active", "created_at", "claimed_at", "claim_command_id"}

func TestAddressRepository_Claim(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &AddressRepository{querier: mock, logger: newTestLogger()}
	walletID := uuid.New()

	query := `
		UPDATE addresses
		SET active = true, wallet_id = \$1, claimed_at = NOW\(\), claim_command_id = \$3
		WHERE id = \$2 AND active = false AND wallet_id IS NULL AND received_unconfirmed = 0
	`

	commandID := uuid.New()

	tests := []struct {
		name      string
		commandID uuid.UUID
		claimedBy *uuid.UUID
		affected  int64
		err       error
		wantErr   error
		want      bool
	}{
		{"won the row", uuid.Nil, nil, 1, nil, nil, true},
		{"won the row for a command", commandID, &commandID, 1, nil, nil, true},
		{"lost the race", uuid.Nil, nil, 0, nil, nil, false},
		{"command already claimed", commandID, &commandID, 0, &pgconn.PgError{Code: "23505"}, address.ErrClaimCommandUsed, false},
		{"db error", uuid.Nil, nil, 0, errBoom, errBoom, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := mock.ExpectExec(query).WithArgs(walletID, int64(9), tt.claimedBy)
			if tt.err != nil {
				exp.WillReturnError(tt.err)
			} else {
				exp.WillReturnResult(pgxmock.NewResult("UPDATE", tt.affected))
			}

			got, err := repo.Claim(ctx, 9, walletID, tt.commandID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAddressRepository_GetByAddress(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &AddressRepository{querier: mock, logger: newTestLogger()}
	walletID := uuid.New()
	claimed := time.Now()

	mock.ExpectQuery(`FROM addresses WHERE address = \$1`).
		WithArgs("bcrt1qabc").
		WillReturnRows(pgxmock.NewRows(addressRowColumns).
			AddRow(int64(3), "bcrt1qabc", &walletID, decimal.RequireFromString("1.5"), decimal.RequireFromString("1"), true, claimed, &claimed, (*uuid.UUID)(nil)))

	a, err := repo.GetByAddress(ctx, "bcrt1qabc")
	require.NoError(t, err)
	assert.True(t, a.OwnedBy(walletID))
	assert.True(t, a.Pending().Equal(decimal.RequireFromString("0.5")))

	mock.ExpectQuery(`FROM addresses WHERE address = \$1`).
		WithArgs("unknown").
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.GetByAddress(ctx, "unknown")
	var notFound address.ErrAddressNotFound
	assert.ErrorAs(t, err, &notFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddressRepository_ClaimedByCommand(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &AddressRepository{querier: mock, logger: newTestLogger()}
	walletID := uuid.New()
	commandID := uuid.New()
	claimed := time.Now()

	mock.ExpectQuery(`FROM addresses WHERE claim_command_id = \$1`).
		WithArgs(commandID).
		WillReturnRows(pgxmock.NewRows(addressRowColumns).
			AddRow(int64(5), "bcrt1qcmd", &walletID, decimal.Zero, decimal.Zero, true, claimed, &claimed, &commandID))

	a, err := repo.ClaimedByCommand(context.Background(), commandID)
	require.NoError(t, err)
	assert.Equal(t, "bcrt1qcmd", a.Address)
	assert.Equal(t, commandID, *a.ClaimCommandID)

	other := uuid.New()
	mock.ExpectQuery(`FROM addresses WHERE claim_command_id = \$1`).
		WithArgs(other).
		WillReturnError(pgx.ErrNoRows)

	a, err = repo.ClaimedByCommand(context.Background(), other)
	assert.NoError(t, err)
	assert.Nil(t, a)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddressRepository_LatestForWallet_None(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &AddressRepository{querier: mock, logger: newTestLogger()}
	walletID := uuid.New()

	mock.ExpectQuery(`WHERE wallet_id = \$1 AND active = true`).
		WithArgs(walletID).
		WillReturnError(pgx.ErrNoRows)

	a, err := repo.LatestForWallet(context.Background(), walletID)
	assert.NoError(t, err)
	assert.Nil(t, a)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddressRepository_ListFree(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &AddressRepository{querier: mock, logger: newTestLogger()}
	now := time.Now()

	mock.ExpectQuery(`WHERE active = false AND wallet_id IS NULL AND received_unconfirmed = 0\s+ORDER BY id ASC\s+LIMIT \$1`).
		WithArgs(2).
		WillReturnRows(pgxmock.NewRows(addressRowColumns).
			AddRow(int64(1), "a1", (*uuid.UUID)(nil), decimal.Zero, decimal.Zero, false, now, (*time.Time)(nil), (*uuid.UUID)(nil)).
			AddRow(int64(2), "a2", (*uuid.UUID)(nil), decimal.Zero, decimal.Zero, false, now, (*time.Time)(nil), (*uuid.UUID)(nil)))

	free, err := repo.ListFree(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, free, 2)
	assert.True(t, free[0].IsFree())
	assert.Equal(t, "a2", free[1].Address)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddressRepository_AdvanceConfirmed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &AddressRepository{querier: mock, logger: newTestLogger()}
	query := `SET received_confirmed = received_confirmed \+ \$1\s+WHERE id = \$2 AND received_confirmed = \$3`

	mock.ExpectExec(query).WithArgs(pgxmock.AnyArg(), int64(4), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	ok, err := repo.AdvanceConfirmed(context.Background(), 4, decimal.Zero, decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectExec(query).WithArgs(pgxmock.AnyArg(), int64(4), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	ok, err = repo.AdvanceConfirmed(context.Background(), 4, decimal.Zero, decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddressRepository_CreateMany(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &AddressRepository{querier: mock, logger: newTestLogger()}
	addrs := []string{"a1", "a2", "a3"}

	mock.ExpectExec(`INSERT INTO addresses \(address\)\s+SELECT UNNEST\(\$1::text\[\]\)\s+ON CONFLICT \(address\) DO NOTHING`).
		WithArgs(addrs).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	n, err := repo.CreateMany(context.Background(), addrs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
