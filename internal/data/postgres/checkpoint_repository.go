package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/custody-ledger/internal/domain/deposit"
	"github.com/custody-ledger/internal/platform/persistence"
	"github.com/jackc/pgx/v5"
)

// CheckpointRepository stores named scan positions in poll_checkpoints
type CheckpointRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewCheckpointRepository(logger *slog.Logger, db *persistence.PostgresDB) deposit.CheckpointRepository {
	return &CheckpointRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// Get returns "" when no checkpoint was saved under name
func (r *CheckpointRepository) Get(ctx context.Context, name string) (string, error) {
	query := `SELECT value FROM poll_checkpoints WHERE name = $1`

	var value string
	if err := r.querier.QueryRow(ctx, query, name).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		r.logger.Error("Failed to read checkpoint", "name", name, "error", err)
		return "", fmt.Errorf("failed to read checkpoint: %w", err)
	}
	return value, nil
}

func (r *CheckpointRepository) Save(ctx context.Context, name, value string) error {
	query := `
		INSERT INTO poll_checkpoints (name, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`

	if _, err := r.querier.Exec(ctx, query, name, value); err != nil {
		r.logger.Error("Failed to save checkpoint", "name", name, "error", err)
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}
