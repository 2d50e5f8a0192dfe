package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/spend-requests/internal/application/port"
	"github.com/garyjia/spend-requests/internal/domain/entity"
	"github.com/garyjia/spend-requests/internal/domain/workflow"
	"github.com/garyjia/spend-requests/internal/infrastructure/persistence/sqlite"
)

const eventColumns = `id, request_id, type, actor, role, comment, payload, created_at`

// EventRepository implements port.EventRepository
type EventRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEventRepository creates a new audit event repository
func NewEventRepository(db *sql.DB, logger *zap.Logger) port.EventRepository {
	return &EventRepository{
		db:     db,
		logger: logger,
	}
}

// Append stores an audit event
func (r *EventRepository) Append(ctx context.Context, evt *entity.RequestEvent) error {
	if evt.ID == uuid.Nil {
		evt.ID = uuid.New()
	}

	query := `INSERT INTO request_events (` + eventColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		evt.ID,
		evt.RequestID,
		evt.Type,
		evt.Actor,
		string(evt.Role),
		evt.Comment,
		evt.Payload,
		evt.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to append event",
			zap.String("request_id", evt.RequestID.String()),
			zap.String("type", evt.Type),
			zap.Error(err))
		return fmt.Errorf("failed to append event: %w", err)
	}

	return nil
}

// ListByRequest retrieves the audit trail of a request, oldest first
func (r *EventRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]entity.RequestEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM request_events WHERE request_id = ? ORDER BY created_at ASC, rowid ASC`

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, requestID)
	if err != nil {
		r.logger.Error("Failed to list events", zap.String("request_id", requestID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []entity.RequestEvent
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *evt)
	}

	return events, rows.Err()
}

// Latest retrieves the newest event of one of types, or nil
func (r *EventRepository) Latest(ctx context.Context, requestID uuid.UUID, types ...string) (*entity.RequestEvent, error) {
	args := []interface{}{requestID}
	query := `SELECT ` + eventColumns + ` FROM request_events WHERE request_id = ?`
	if len(types) > 0 {
		marks := make([]string, len(types))
		for i, t := range types {
			marks[i] = "?"
			args = append(args, t)
		}
		query += ` AND type IN (` + strings.Join(marks, ", ") + `)`
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT 1`

	evt, err := scanEvent(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get latest event", zap.String("request_id", requestID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get latest event: %w", err)
	}

	return evt, nil
}

func scanEvent(row rowScanner) (*entity.RequestEvent, error) {
	var (
		evt  entity.RequestEvent
		role string
	)
	if err := row.Scan(&evt.ID, &evt.RequestID, &evt.Type, &evt.Actor, &role, &evt.Comment, &evt.Payload, &evt.CreatedAt); err != nil {
		return nil, err
	}
	evt.Role = workflow.Role(role)
	return &evt, nil
}

// Verify interface compliance
var _ port.EventRepository = (*EventRepository)(nil)
