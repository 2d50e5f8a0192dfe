package workflow

import (
	"context"

	"github.com/google/uuid"

	"github.com/garyjia/spend-requests/internal/application/port"
	"github.com/garyjia/spend-requests/internal/domain/entity"
	domainwf "github.com/garyjia/spend-requests/internal/domain/workflow"
)

// Command asks the engine to perform a role action on a request
type Command struct {
	RequestID uuid.UUID
	Actor     port.Actor
	Action    domainwf.Action
	Comment   string
	// ExpectedVersion, when non-zero, must match the stored version
	ExpectedVersion int64
	// Apply copies the action's payload onto the candidate request before guards run
	Apply func(req *entity.PaymentRequest) error
}

// Engine applies lifecycle transitions atomically
type Engine interface {
	// Transition validates and applies cmd, returning the updated request
	Transition(ctx context.Context, cmd Command) (*entity.PaymentRequest, error)

	// Authority returns the transition authority the engine consults
	Authority() Authority
}
