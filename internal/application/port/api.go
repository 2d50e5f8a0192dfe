package port

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/spend-requests/internal/domain/entity"
	"github.com/garyjia/spend-requests/internal/domain/workflow"
)

// Actor identifies who performs an operation
type Actor struct {
	UserID string
	Role   workflow.Role
}

// DistributorDecision is the distributor's verdict on a classified request
type DistributorDecision string

const (
	DecisionApprove         DistributorDecision = "approve"
	DecisionApproveOnBehalf DistributorDecision = "approve_on_behalf"
	DecisionDecline         DistributorDecision = "decline"
	DecisionReturn          DistributorDecision = "return"
)

// DistributorActionInput carries a distributor decision
type DistributorActionInput struct {
	Action      DistributorDecision        `json:"action" validate:"required,oneof=approve approve_on_behalf decline return"`
	Comment     string                     `json:"comment"`
	Allocations []entity.PaymentAllocation `json:"allocations,omitempty" validate:"omitempty,dive"`
	Priority    string                     `json:"priority,omitempty"`
}

// StatusUpdateInput moves a request to a status reachable by a single action
type StatusUpdateInput struct {
	Status    workflow.Status          `json:"status" validate:"required"`
	Comment   string                   `json:"comment"`
	Execution *entity.PaymentExecution `json:"execution,omitempty"`
}

// ListFilter is the boundary form of a listing query
type ListFilter struct {
	Statuses  []workflow.Status
	CreatedBy string
	Overdue   bool
}

// RequestAPI is the persistence boundary consumed by the draft coordinator and the UI shell
type RequestAPI interface {
	CreateDraft(ctx context.Context, actor Actor, fields entity.RequestFields) (*entity.PaymentRequest, error)
	UpdateDraft(ctx context.Context, actor Actor, id uuid.UUID, fields entity.RequestFields) (*entity.PaymentRequest, error)
	Submit(ctx context.Context, actor Actor, id uuid.UUID) (*entity.PaymentRequest, error)
	Classify(ctx context.Context, actor Actor, id uuid.UUID, splits []entity.ExpenseSplit, comment string) (*entity.PaymentRequest, error)
	DistributorAction(ctx context.Context, actor Actor, id uuid.UUID, in DistributorActionInput) (*entity.PaymentRequest, error)
	UpdateStatus(ctx context.Context, actor Actor, id uuid.UUID, in StatusUpdateInput) (*entity.PaymentRequest, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.PaymentRequest, error)
	GetAll(ctx context.Context, filter ListFilter) ([]*entity.PaymentRequest, error)
	GetEvents(ctx context.Context, id uuid.UUID) ([]entity.RequestEvent, error)
}

// RegisterExporter renders the payment register
type RegisterExporter interface {
	Export(ctx context.Context, requests []*entity.PaymentRequest, generatedAt time.Time) ([]byte, error)
}
