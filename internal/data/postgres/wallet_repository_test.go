package postgres

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/custody-ledger/internal/domain/shared"
	"github.com/custody-ledger/internal/domain/wallet"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestWalletRepository_Create(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &WalletRepository{querier: mock, logger: newTestLogger()}
	w := wallet.NewWallet(uuid.New(), "alice", time.Now())

	query := `
		INSERT INTO wallets \(id, label, balance, version, created_at, updated_at\)
		VALUES \(\$1, \$2, \$3, \$4, \$5, \$6\)
	`

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(w.ID, w.Label, pgxmock.AnyArg(), w.Version, w.CreatedAt, w.UpdatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		assert.NoError(t, repo.Create(ctx, w))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(w.ID, w.Label, pgxmock.AnyArg(), w.Version, w.CreatedAt, w.UpdatedAt).
			WillReturnError(&pgconn.PgError{Code: "23505"})

		err := repo.Create(ctx, w)
		var dup wallet.ErrDuplicateWallet
		assert.ErrorAs(t, err, &dup)
		assert.Equal(t, w.ID, dup.WalletID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure", func(t *testing.T) {
		dbErr := errors.New("db error")
		mock.ExpectExec(query).
			WithArgs(w.ID, w.Label, pgxmock.AnyArg(), w.Version, w.CreatedAt, w.UpdatedAt).
			WillReturnError(dbErr)

		err := repo.Create(ctx, w)
		assert.ErrorIs(t, err, dbErr)
		assert.Contains(t, err.Error(), "failed to create wallet")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestWalletRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &WalletRepository{querier: mock, logger: newTestLogger()}
	now := time.Now()
	expected := &wallet.Wallet{
		ID:        uuid.New(),
		Label:     "alice",
		Balance:   decimal.RequireFromString("10.5"),
		Version:   3,
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := `
		SELECT id, label, balance, version, created_at, updated_at
		FROM wallets
		WHERE id = \$1
	`

	t.Run("success", func(t *testing.T) {
		rows := pgxmock.NewRows([]string{"id", "label", "balance", "version", "created_at", "updated_at"}).
			AddRow(expected.ID, expected.Label, expected.Balance, expected.Version, expected.CreatedAt, expected.UpdatedAt)
		mock.ExpectQuery(query).WithArgs(expected.ID).WillReturnRows(rows)

		got, err := repo.GetByID(ctx, expected.ID)
		require.NoError(t, err)
		assert.Equal(t, expected.ID, got.ID)
		assert.True(t, expected.Balance.Equal(got.Balance))
		assert.Equal(t, int64(3), got.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(expected.ID).WillReturnError(pgx.ErrNoRows)

		got, err := repo.GetByID(ctx, expected.ID)
		assert.Nil(t, got)
		assert.ErrorIs(t, err, wallet.ErrWalletNotFound{WalletID: expected.ID})
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("db error", func(t *testing.T) {
		dbErr := errors.New("some db error")
		mock.ExpectQuery(query).WithArgs(expected.ID).WillReturnError(dbErr)

		_, err := repo.GetByID(ctx, expected.ID)
		assert.ErrorIs(t, err, dbErr)
		assert.Contains(t, err.Error(), "failed to get wallet")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestWalletRepository_DebitCAS(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &WalletRepository{querier: mock, logger: newTestLogger()}
	id := uuid.New()
	amount := decimal.RequireFromString("4")

	query := `
		UPDATE wallets
		SET balance = balance - \$1, version = version \+ 1, updated_at = NOW\(\)
		WHERE id = \$2 AND version = \$3
	`

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(query).WithArgs(pgxmock.AnyArg(), id, int64(7)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		assert.NoError(t, repo.DebitCAS(ctx, id, amount, 7))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("version moved", func(t *testing.T) {
		mock.ExpectExec(query).WithArgs(pgxmock.AnyArg(), id, int64(7)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.DebitCAS(ctx, id, amount, 7)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict{WalletID: id})
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("db error", func(t *testing.T) {
		dbErr := errors.New("conn reset")
		mock.ExpectExec(query).WithArgs(pgxmock.AnyArg(), id, int64(7)).WillReturnError(dbErr)

		err := repo.DebitCAS(ctx, id, amount, 7)
		assert.ErrorIs(t, err, dbErr)
		assert.False(t, errors.Is(err, shared.ErrConcurrencyConflict{}))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestWalletRepository_Credit(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &WalletRepository{querier: mock, logger: newTestLogger()}
	id := uuid.New()

	query := `
		UPDATE wallets
		SET balance = balance \+ \$1, updated_at = NOW\(\)
		WHERE id = \$2
	`

	mock.ExpectExec(query).WithArgs(pgxmock.AnyArg(), id).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	assert.NoError(t, repo.Credit(ctx, id, decimal.RequireFromString("2")))

	mock.ExpectExec(query).WithArgs(pgxmock.AnyArg(), id).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, repo.Credit(ctx, id, decimal.RequireFromString("2")), wallet.ErrWalletNotFound{})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepository_SetCachedBalance(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &WalletRepository{querier: mock, logger: newTestLogger()}
	id := uuid.New()

	mock.ExpectExec(`UPDATE wallets\s+SET balance = \$1, version = version \+ 1`).
		WithArgs(pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	assert.NoError(t, repo.SetCachedBalance(ctx, id, decimal.RequireFromString("3")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepository_ListIDsAndSum(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &WalletRepository{querier: mock, logger: newTestLogger()}
	a, b := uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT id\s+FROM wallets`).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(a).AddRow(b))

	ids, err := repo.ListIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b}, ids)

	mock.ExpectQuery(`SELECT COALESCE\(SUM\(balance\), 0\) FROM wallets`).
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(decimal.RequireFromString("12.5")))

	total, err := repo.SumBalances(ctx)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.RequireFromString("12.5")))

	assert.NoError(t, mock.ExpectationsWereMet())
}
