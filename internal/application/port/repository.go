package port

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/spend-requests/internal/domain/entity"
	"github.com/garyjia/spend-requests/internal/domain/workflow"
)

var (
	// ErrNotFound is returned when a request does not exist
	ErrNotFound = errors.New("request not found")

	// ErrVersionConflict is returned when a write is based on a stale version of a request
	ErrVersionConflict = errors.New("request was modified concurrently")
)

// RequestFilter narrows a request listing
type RequestFilter struct {
	Statuses  []workflow.Status
	CreatedBy string
	// DueBefore keeps requests whose due date lies strictly before the given time
	DueBefore *time.Time
	Limit     int
	Offset    int
}

// RequestRepository defines persistence operations for PaymentRequest.
// GetByID returns (nil, nil) when the request does not exist.
type RequestRepository interface {
	Create(ctx context.Context, req *entity.PaymentRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.PaymentRequest, error)
	List(ctx context.Context, filter RequestFilter) ([]*entity.PaymentRequest, error)
	// Update writes req if the stored version equals req.Version, then increments req.Version
	Update(ctx context.Context, req *entity.PaymentRequest) error
}

// HistoryRepository is append-only; there is intentionally no update or delete
type HistoryRepository interface {
	Append(ctx context.Context, entry *entity.HistoryEntry) error
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]entity.HistoryEntry, error)
}

// EventRepository stores audit events
type EventRepository interface {
	Append(ctx context.Context, evt *entity.RequestEvent) error
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]entity.RequestEvent, error)
	// Latest returns the newest event of one of the given types, or (nil, nil)
	Latest(ctx context.Context, requestID uuid.UUID, types ...string) (*entity.RequestEvent, error)
}

// SequenceRepository hands out monotonically increasing values per sequence name
type SequenceRepository interface {
	Next(ctx context.Context, name string) (int64, error)
}

// IdempotencyRepository stores responses keyed by Idempotency-Key. A key is
// reserved before its request runs and completed or released afterwards.
type IdempotencyRepository interface {
	// Get returns (nil, nil) when no unexpired record exists
	Get(ctx context.Context, userID, key string, now time.Time) (*entity.IdempotencyRecord, error)
	// Reserve inserts rec as a pending record. It reports false when an unexpired
	// record already holds the same user and key.
	Reserve(ctx context.Context, rec *entity.IdempotencyRecord) (bool, error)
	// Complete stores the response of a reserved key
	Complete(ctx context.Context, rec *entity.IdempotencyRecord) error
	// Release drops a pending reservation
	Release(ctx context.Context, userID, key string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// SubRegistrarRepository stores assignments and reports of the document collection
// stage. Getters return (nil, nil) when nothing is stored.
type SubRegistrarRepository interface {
	// SaveAssignment inserts a, or replaces the assignment of the same request
	SaveAssignment(ctx context.Context, a *entity.SubRegistrarAssignment) error
	GetAssignment(ctx context.Context, requestID uuid.UUID) (*entity.SubRegistrarAssignment, error)
	// ListAssignments lists the assignments of one sub-registrar, or all when subRegistrarID is ""
	ListAssignments(ctx context.Context, subRegistrarID string, limit, offset int) ([]entity.SubRegistrarAssignment, error)
	// SaveReport inserts r or replaces the report of the same request
	SaveReport(ctx context.Context, r *entity.SubRegistrarReport) error
	GetReport(ctx context.Context, requestID uuid.UUID) (*entity.SubRegistrarReport, error)
}
