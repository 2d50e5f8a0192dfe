package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/spend-requests/internal/application/port"
	"github.com/garyjia/spend-requests/internal/domain/entity"
	"github.com/garyjia/spend-requests/internal/infrastructure/persistence/sqlite"
)

const (
	assignmentColumns = `id, request_id, sub_registrar_id, assigned_by, status, assigned_at`
	reportColumns     = `id, request_id, sub_registrar_id, document_status, report_data, status, published_at, created_at, updated_at`
)

// SubRegistrarRepository implements port.SubRegistrarRepository
type SubRegistrarRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSubRegistrarRepository creates a new repository for assignments and reports
func NewSubRegistrarRepository(db *sql.DB, logger *zap.Logger) port.SubRegistrarRepository {
	return &SubRegistrarRepository{
		db:     db,
		logger: logger,
	}
}

// SaveAssignment upserts the assignment of a request. The stored id is kept on update.
func (r *SubRegistrarRepository) SaveAssignment(ctx context.Context, a *entity.SubRegistrarAssignment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	query := `
		INSERT INTO sub_registrar_assignments (` + assignmentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(request_id) DO UPDATE SET
			sub_registrar_id = excluded.sub_registrar_id,
			assigned_by = excluded.assigned_by,
			status = excluded.status,
			assigned_at = excluded.assigned_at
	`

	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		a.ID,
		a.RequestID,
		a.SubRegistrarID,
		a.AssignedBy,
		a.Status,
		a.AssignedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to save assignment",
			zap.String("request_id", a.RequestID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to save assignment: %w", err)
	}

	return nil
}

// GetAssignment returns the assignment of a request, or nil
func (r *SubRegistrarRepository) GetAssignment(ctx context.Context, requestID uuid.UUID) (*entity.SubRegistrarAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM sub_registrar_assignments WHERE request_id = ?`

	a, err := scanAssignment(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, requestID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get assignment", zap.String("request_id", requestID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return a, nil
}

// ListAssignments lists assignments, newest first
func (r *SubRegistrarRepository) ListAssignments(ctx context.Context, subRegistrarID string, limit, offset int) ([]entity.SubRegistrarAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM sub_registrar_assignments`
	var args []interface{}
	if subRegistrarID != "" {
		query += ` WHERE sub_registrar_id = ?`
		args = append(args, subRegistrarID)
	}
	query += ` ORDER BY assigned_at DESC, rowid DESC`
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list assignments", zap.String("sub_registrar_id", subRegistrarID), zap.Error(err))
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var out []entity.SubRegistrarAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// SaveReport upserts the report of a request. The stored id and created_at are kept on update.
func (r *SubRegistrarRepository) SaveReport(ctx context.Context, rep *entity.SubRegistrarReport) error {
	if rep.ID == uuid.Nil {
		rep.ID = uuid.New()
	}

	var data sql.NullString
	if rep.ReportData != nil {
		raw, err := json.Marshal(rep.ReportData)
		if err != nil {
			return fmt.Errorf("failed to encode report data: %w", err)
		}
		data = sql.NullString{String: string(raw), Valid: true}
	}

	query := `
		INSERT INTO sub_registrar_reports (` + reportColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(request_id) DO UPDATE SET
			sub_registrar_id = excluded.sub_registrar_id,
			document_status = excluded.document_status,
			report_data = excluded.report_data,
			status = excluded.status,
			published_at = excluded.published_at,
			updated_at = excluded.updated_at
	`

	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		rep.ID,
		rep.RequestID,
		rep.SubRegistrarID,
		string(rep.DocumentStatus),
		data,
		string(rep.Status),
		nullTime(rep.PublishedAt),
		rep.CreatedAt.UTC(),
		rep.UpdatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to save report",
			zap.String("request_id", rep.RequestID.String()),
			zap.Error(err))
		return fmt.Errorf("failed to save report: %w", err)
	}

	return nil
}

// GetReport returns the report of a request, or nil
func (r *SubRegistrarRepository) GetReport(ctx context.Context, requestID uuid.UUID) (*entity.SubRegistrarReport, error) {
	query := `SELECT ` + reportColumns + ` FROM sub_registrar_reports WHERE request_id = ?`

	var (
		rep               entity.SubRegistrarReport
		docStatus, status string
		data              sql.NullString
		publishedAt       sql.NullTime
	)
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, requestID).Scan(
		&rep.ID,
		&rep.RequestID,
		&rep.SubRegistrarID,
		&docStatus,
		&data,
		&status,
		&publishedAt,
		&rep.CreatedAt,
		&rep.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get report", zap.String("request_id", requestID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	rep.DocumentStatus = entity.DocumentStatus(docStatus)
	rep.Status = entity.ReportStatus(status)
	rep.PublishedAt = timePtr(publishedAt)
	if data.Valid {
		if err := json.Unmarshal([]byte(data.String), &rep.ReportData); err != nil {
			return nil, fmt.Errorf("failed to decode report data: %w", err)
		}
	}
	return &rep, nil
}

func scanAssignment(row rowScanner) (*entity.SubRegistrarAssignment, error) {
	var a entity.SubRegistrarAssignment
	if err := row.Scan(&a.ID, &a.RequestID, &a.SubRegistrarID, &a.AssignedBy, &a.Status, &a.AssignedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// Verify interface compliance
var _ port.SubRegistrarRepository = (*SubRegistrarRepository)(nil)
