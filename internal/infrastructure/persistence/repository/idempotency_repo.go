package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/spend-requests/internal/application/port"
	"github.com/garyjia/spend-requests/internal/domain/entity"
	"github.com/garyjia/spend-requests/internal/infrastructure/persistence/sqlite"
)

// IdempotencyRepository implements port.IdempotencyRepository
type IdempotencyRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewIdempotencyRepository creates a new idempotency key repository
func NewIdempotencyRepository(db *sql.DB, logger *zap.Logger) port.IdempotencyRepository {
	return &IdempotencyRepository{
		db:     db,
		logger: logger,
	}
}

// Get returns the unexpired record for (userID, key), or nil
func (r *IdempotencyRepository) Get(ctx context.Context, userID, key string, now time.Time) (*entity.IdempotencyRecord, error) {
	query := `
		SELECT key, user_id, method, path, status_code, body, created_at, expires_at
		FROM idempotency_keys
		WHERE user_id = ? AND key = ? AND expires_at > ?
	`

	var rec entity.IdempotencyRecord
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, userID, key, now.UTC()).Scan(
		&rec.Key,
		&rec.UserID,
		&rec.Method,
		&rec.Path,
		&rec.StatusCode,
		&rec.Body,
		&rec.CreatedAt,
		&rec.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get idempotency record", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("failed to get idempotency record: %w", err)
	}

	return &rec, nil
}

// Reserve inserts a pending record. An expired record for the same user and key
// is replaced; an unexpired one keeps the key and Reserve reports false.
func (r *IdempotencyRepository) Reserve(ctx context.Context, rec *entity.IdempotencyRecord) (bool, error) {
	query := `
		INSERT INTO idempotency_keys (user_id, key, method, path, status_code, body, created_at, expires_at)
		VALUES (?, ?, ?, ?, 0, NULL, ?, ?)
		ON CONFLICT(user_id, key) DO UPDATE SET
			method = excluded.method,
			path = excluded.path,
			status_code = 0,
			body = NULL,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
		WHERE idempotency_keys.expires_at <= excluded.created_at
	`

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		rec.UserID,
		rec.Key,
		rec.Method,
		rec.Path,
		rec.CreatedAt.UTC(),
		rec.ExpiresAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to reserve idempotency key", zap.String("key", rec.Key), zap.Error(err))
		return false, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	return n == 1, nil
}

// Complete stores the response for a key reserved by Reserve
func (r *IdempotencyRepository) Complete(ctx context.Context, rec *entity.IdempotencyRecord) error {
	query := `
		UPDATE idempotency_keys
		SET status_code = ?, body = ?, expires_at = ?
		WHERE user_id = ? AND key = ? AND status_code = 0
	`

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		rec.StatusCode,
		rec.Body,
		rec.ExpiresAt.UTC(),
		rec.UserID,
		rec.Key,
	)
	if err != nil {
		r.logger.Error("Failed to complete idempotency key", zap.String("key", rec.Key), zap.Error(err))
		return fmt.Errorf("failed to complete idempotency key: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to complete idempotency key: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: no pending idempotency key %q", port.ErrNotFound, rec.Key)
	}
	return nil
}

// Release deletes a pending reservation so the key can be used again
func (r *IdempotencyRepository) Release(ctx context.Context, userID, key string) error {
	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx,
		`DELETE FROM idempotency_keys WHERE user_id = ? AND key = ? AND status_code = 0`, userID, key)
	if err != nil {
		r.logger.Error("Failed to release idempotency key", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// DeleteExpired removes records that expired at or before now
func (r *IdempotencyRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx,
		`DELETE FROM idempotency_keys WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		r.logger.Error("Failed to delete expired idempotency records", zap.Error(err))
		return 0, fmt.Errorf("failed to delete expired idempotency records: %w", err)
	}

	return result.RowsAffected()
}

// Verify interface compliance
var _ port.IdempotencyRepository = (*IdempotencyRepository)(nil)
