package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/spend-requests/internal/application/port"
	"github.com/garyjia/spend-requests/internal/infrastructure/persistence/sqlite"
)

// SequenceRepository implements port.SequenceRepository on a counters table
type SequenceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSequenceRepository creates a new sequence repository
func NewSequenceRepository(db *sql.DB, logger *zap.Logger) port.SequenceRepository {
	return &SequenceRepository{
		db:     db,
		logger: logger,
	}
}

// Next increments and returns the named counter, starting at 1
func (r *SequenceRepository) Next(ctx context.Context, name string) (int64, error) {
	query := `
		INSERT INTO sequences (name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1
		RETURNING value
	`

	var value int64
	if err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, name).Scan(&value); err != nil {
		r.logger.Error("Failed to advance sequence", zap.String("name", name), zap.Error(err))
		return 0, fmt.Errorf("failed to advance sequence %s: %w", name, err)
	}

	return value, nil
}

// Verify interface compliance
var _ port.SequenceRepository = (*SequenceRepository)(nil)
