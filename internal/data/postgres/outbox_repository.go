package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/custody-ledger/internal/domain/outbox"
	"github.com/custody-ledger/internal/domain/shared"
	"github.com/custody-ledger/internal/platform/persistence"
	"github.com/jackc/pgx/v5"
)

// OutboxRepository implements the outbox.Repository interface for PostgreSQL
type OutboxRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewOutboxRepository(logger *slog.Logger, db *persistence.PostgresDB) outbox.Repository {
	return &OutboxRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx binds the repository to tx so the event commits with the balance
// change it describes.
func (r *OutboxRepository) WithTx(tx pgx.Tx) outbox.Repository {
	return &OutboxRepository{
		querier: tx,
		logger:  r.logger,
	}
}

func (r *OutboxRepository) Create(ctx context.Context, message *outbox.Message) error {
	query := `
		INSERT INTO outbox_messages (event_id, wallet_id, payload, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := r.querier.QueryRow(ctx, query,
		message.EventID,
		message.WalletID,
		message.Payload,
		message.Status,
		message.Attempts,
		message.CreatedAt,
	).Scan(&message.ID)
	if err != nil {
		r.logger.Error("Failed to enqueue balance event",
			"event_id", message.EventID.String(),
			"wallet_id", message.WalletID.String(),
			"error", err,
		)
		return fmt.Errorf("failed to enqueue balance event: %w", err)
	}
	return nil
}

// ListPending orders by id, which is commit order within one wallet since
// the wallet row is locked by the writing transaction.
func (r *OutboxRepository) ListPending(ctx context.Context, limit int) ([]*outbox.Message, error) {
	query := `
		SELECT id, event_id, wallet_id, payload, status, attempts, created_at, last_attempt_at
		FROM outbox_messages
		WHERE status = $1
		ORDER BY id ASC
		LIMIT $2
	`

	rows, err := r.querier.Query(ctx, query, shared.OutboxStatusPending, limit)
	if err != nil {
		r.logger.Error("Failed to list pending balance events", "error", err)
		return nil, fmt.Errorf("failed to list pending balance events: %w", err)
	}

	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*outbox.Message, error) {
		var m outbox.Message
		err := row.Scan(&m.ID, &m.EventID, &m.WalletID, &m.Payload, &m.Status, &m.Attempts, &m.CreatedAt, &m.LastAttemptAt)
		return &m, err
	})
	if err != nil {
		r.logger.Error("Failed to scan pending balance events", "error", err)
		return nil, fmt.Errorf("failed to scan pending balance events: %w", err)
	}
	return messages, nil
}

func (r *OutboxRepository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := r.querier.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_messages WHERE status = $1`, shared.OutboxStatusPending).Scan(&n)
	if err != nil {
		r.logger.Error("Failed to count pending balance events", "error", err)
		return 0, fmt.Errorf("failed to count pending balance events: %w", err)
	}
	return n, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, id int64, at time.Time) error {
	return r.setStatus(ctx, id, shared.OutboxStatusPublished, at)
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id int64, at time.Time) error {
	return r.setStatus(ctx, id, shared.OutboxStatusFailedToPublish, at)
}

// setStatus only moves PENDING rows, so a late relay cannot resurrect a
// message another worker already settled.
func (r *OutboxRepository) setStatus(ctx context.Context, id int64, status shared.OutboxStatus, at time.Time) error {
	query := `
		UPDATE outbox_messages
		SET status = $1, last_attempt_at = $2
		WHERE id = $3 AND status = 'PENDING'
	`

	result, err := r.querier.Exec(ctx, query, status, at, id)
	if err != nil {
		r.logger.Error("Failed to settle balance event", "id", id, "status", string(status), "error", err)
		return fmt.Errorf("failed to set outbox message %d to %s: %w", id, status, err)
	}
	if result.RowsAffected() == 0 {
		return outbox.ErrMessageNotFound{ID: id}
	}
	return nil
}

func (r *OutboxRepository) RecordFailedAttempt(ctx context.Context, id int64, at time.Time) (int, error) {
	query := `
		UPDATE outbox_messages
		SET attempts = attempts + 1, last_attempt_at = $1
		WHERE id = $2
		RETURNING attempts
	`

	var attempts int
	if err := r.querier.QueryRow(ctx, query, at, id).Scan(&attempts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, outbox.ErrMessageNotFound{ID: id}
		}
		r.logger.Error("Failed to record outbox attempt", "id", id, "error", err)
		return 0, fmt.Errorf("failed to record attempt for outbox message %d: %w", id, err)
	}
	return attempts, nil
}

// PurgePublished keeps FAILED_TO_PUBLISH rows; those need an operator
func (r *OutboxRepository) PurgePublished(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM outbox_messages WHERE status = $1 AND last_attempt_at < $2`

	result, err := r.querier.Exec(ctx, query, shared.OutboxStatusPublished, cutoff)
	if err != nil {
		r.logger.Error("Failed to purge published balance events", "cutoff", cutoff, "error", err)
		return 0, fmt.Errorf("failed to purge published balance events: %w", err)
	}
	return result.RowsAffected(), nil
}
