package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/spend-requests/internal/application/port"
	"github.com/garyjia/spend-requests/internal/domain/entity"
	"github.com/garyjia/spend-requests/internal/domain/workflow"
	"github.com/garyjia/spend-requests/internal/infrastructure/persistence/sqlite"
)

const requestColumns = `
	id, version, request_number, status, amount, currency, vat_rate, due_date,
	counterparty_id, doc_type, doc_number, doc_date, description, comment, files,
	priority, expense_splits, payment_allocations, payment_execution,
	created_by, created_at, updated_at, submitted_at`

// RequestRepository implements port.RequestRepository
type RequestRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *sql.DB, logger *zap.Logger) port.RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new request
func (r *RequestRepository) Create(ctx context.Context, req *entity.PaymentRequest) error {
	cols, err := encodeJSONColumns(req)
	if err != nil {
		return err
	}

	query := `INSERT INTO payment_requests (` + requestColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		req.ID,
		req.Version,
		nullString(req.RequestNumber),
		string(req.Status),
		req.Amount,
		req.Currency,
		req.VATRate,
		nullTime(req.DueDate),
		req.CounterpartyID,
		req.DocType,
		req.DocNumber,
		nullTime(req.DocDate),
		req.Description,
		req.Comment,
		cols.files,
		req.Priority,
		cols.splits,
		cols.allocations,
		cols.execution,
		req.CreatedBy,
		req.CreatedAt.UTC(),
		req.UpdatedAt.UTC(),
		nullTime(req.SubmittedAt),
	)
	if err != nil {
		r.logger.Error("Failed to create request", zap.String("id", req.ID.String()), zap.Error(err))
		return fmt.Errorf("failed to create request: %w", err)
	}

	return nil
}

// GetByID retrieves a request, or nil when it does not exist
func (r *RequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.PaymentRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM payment_requests WHERE id = ?`

	req, err := scanRequest(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get request", zap.String("id", id.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get request: %w", err)
	}

	return req, nil
}

// List retrieves requests matching filter, most recently updated first
func (r *RequestRepository) List(ctx context.Context, filter port.RequestFilter) ([]*entity.PaymentRequest, error) {
	var (
		where []string
		args  []interface{}
	)

	if len(filter.Statuses) > 0 {
		marks := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if filter.CreatedBy != "" {
		where = append(where, "created_by = ?")
		args = append(args, filter.CreatedBy)
	}
	if filter.DueBefore != nil {
		where = append(where, "due_date IS NOT NULL AND due_date < ?")
		args = append(args, filter.DueBefore.UTC())
	}

	query := `SELECT ` + requestColumns + ` FROM payment_requests`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list requests", zap.Error(err))
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var out []*entity.PaymentRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		out = append(out, req)
	}

	return out, rows.Err()
}

// Update writes req when the stored version still equals req.Version
func (r *RequestRepository) Update(ctx context.Context, req *entity.PaymentRequest) error {
	cols, err := encodeJSONColumns(req)
	if err != nil {
		return err
	}

	query := `
		UPDATE payment_requests SET
			version = version + 1, request_number = ?, status = ?, amount = ?, currency = ?,
			vat_rate = ?, due_date = ?, counterparty_id = ?, doc_type = ?, doc_number = ?,
			doc_date = ?, description = ?, comment = ?, files = ?, priority = ?,
			expense_splits = ?, payment_allocations = ?, payment_execution = ?,
			updated_at = ?, submitted_at = ?
		WHERE id = ? AND version = ?
	`

	conn := sqlite.Conn(ctx, r.db)
	result, err := conn.ExecContext(ctx, query,
		nullString(req.RequestNumber),
		string(req.Status),
		req.Amount,
		req.Currency,
		req.VATRate,
		nullTime(req.DueDate),
		req.CounterpartyID,
		req.DocType,
		req.DocNumber,
		nullTime(req.DocDate),
		req.Description,
		req.Comment,
		cols.files,
		req.Priority,
		cols.splits,
		cols.allocations,
		cols.execution,
		req.UpdatedAt.UTC(),
		nullTime(req.SubmittedAt),
		req.ID,
		req.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update request", zap.String("id", req.ID.String()), zap.Error(err))
		return fmt.Errorf("failed to update request: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		var stored int64
		err := conn.QueryRowContext(ctx, `SELECT version FROM payment_requests WHERE id = ?`, req.ID).Scan(&stored)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %s", port.ErrNotFound, req.ID)
		}
		if err != nil {
			return fmt.Errorf("failed to read version: %w", err)
		}
		return fmt.Errorf("%w: have version %d, stored %d", port.ErrVersionConflict, req.Version, stored)
	}

	req.Version++
	return nil
}

type jsonColumns struct {
	files       string
	splits      string
	allocations string
	execution   sql.NullString
}

func encodeJSONColumns(req *entity.PaymentRequest) (jsonColumns, error) {
	var (
		cols jsonColumns
		err  error
	)
	if cols.files, err = marshalList(req.Files); err != nil {
		return cols, fmt.Errorf("failed to encode files: %w", err)
	}
	if cols.splits, err = marshalList(req.ExpenseSplits); err != nil {
		return cols, fmt.Errorf("failed to encode expense splits: %w", err)
	}
	if cols.allocations, err = marshalList(req.PaymentAllocations); err != nil {
		return cols, fmt.Errorf("failed to encode payment allocations: %w", err)
	}
	if req.PaymentExecution != nil {
		data, err := json.Marshal(req.PaymentExecution)
		if err != nil {
			return cols, fmt.Errorf("failed to encode payment execution: %w", err)
		}
		cols.execution = sql.NullString{String: string(data), Valid: true}
	}
	return cols, nil
}

// marshalList encodes a slice, writing "[]" for nil
func marshalList[T any](items []T) (string, error) {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row rowScanner) (*entity.PaymentRequest, error) {
	var (
		req                           entity.PaymentRequest
		status                        string
		requestNumber, execution      sql.NullString
		dueDate, docDate, submittedAt sql.NullTime
		files, splits, allocations    string
	)

	err := row.Scan(
		&req.ID,
		&req.Version,
		&requestNumber,
		&status,
		&req.Amount,
		&req.Currency,
		&req.VATRate,
		&dueDate,
		&req.CounterpartyID,
		&req.DocType,
		&req.DocNumber,
		&docDate,
		&req.Description,
		&req.Comment,
		&files,
		&req.Priority,
		&splits,
		&allocations,
		&execution,
		&req.CreatedBy,
		&req.CreatedAt,
		&req.UpdatedAt,
		&submittedAt,
	)
	if err != nil {
		return nil, err
	}

	req.Status = workflow.Status(status)
	req.RequestNumber = requestNumber.String
	req.DueDate = timePtr(dueDate)
	req.DocDate = timePtr(docDate)
	req.SubmittedAt = timePtr(submittedAt)

	if err := unmarshalList(files, &req.Files); err != nil {
		return nil, fmt.Errorf("failed to decode files: %w", err)
	}
	if err := unmarshalList(splits, &req.ExpenseSplits); err != nil {
		return nil, fmt.Errorf("failed to decode expense splits: %w", err)
	}
	if err := unmarshalList(allocations, &req.PaymentAllocations); err != nil {
		return nil, fmt.Errorf("failed to decode payment allocations: %w", err)
	}
	if execution.Valid {
		var exec entity.PaymentExecution
		if err := json.Unmarshal([]byte(execution.String), &exec); err != nil {
			return nil, fmt.Errorf("failed to decode payment execution: %w", err)
		}
		req.PaymentExecution = &exec
	}

	return &req, nil
}

// unmarshalList decodes a JSON array, leaving the slice nil when empty
func unmarshalList[T any](data string, out *[]T) error {
	if data == "" || data == "[]" {
		*out = nil
		return nil
	}
	return json.Unmarshal([]byte(data), out)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// Verify interface compliance
var _ port.RequestRepository = (*RequestRepository)(nil)
