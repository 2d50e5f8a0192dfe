package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/spend-requests/internal/application/port"
	"github.com/garyjia/spend-requests/internal/domain/entity"
	"github.com/garyjia/spend-requests/internal/domain/workflow"
	"github.com/garyjia/spend-requests/internal/infrastructure/persistence/sqlite"
)

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Append adds a history entry
func (r *HistoryRepository) Append(ctx context.Context, entry *entity.HistoryEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	query := `
		INSERT INTO request_history (
			id, request_id, actor, role, action, from_status, to_status, comment, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		entry.ID,
		entry.RequestID,
		entry.Actor,
		string(entry.Role),
		string(entry.Action),
		string(entry.FromStatus),
		string(entry.ToStatus),
		entry.Comment,
		entry.Timestamp.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to append history entry", zap.String("request_id", entry.RequestID.String()), zap.Error(err))
		return fmt.Errorf("failed to append history: %w", err)
	}

	return nil
}

// ListByRequest retrieves all history entries for a request in the order they were written
func (r *HistoryRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]entity.HistoryEntry, error) {
	query := `
		SELECT id, request_id, actor, role, action, from_status, to_status, comment, timestamp
		FROM request_history
		WHERE request_id = ?
		ORDER BY timestamp ASC, rowid ASC
	`

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, requestID)
	if err != nil {
		r.logger.Error("Failed to list history", zap.String("request_id", requestID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var entries []entity.HistoryEntry
	for rows.Next() {
		var (
			e                      entity.HistoryEntry
			role, action, from, to string
		)
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Actor, &role, &action, &from, &to, &e.Comment, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		e.Role = workflow.Role(role)
		e.Action = workflow.Action(action)
		e.FromStatus = workflow.Status(from)
		e.ToStatus = workflow.Status(to)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Verify interface compliance
var _ port.HistoryRepository = (*HistoryRepository)(nil)
