package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/garyjia/spend-requests/internal/domain/entity"
	domainwf "github.com/garyjia/spend-requests/internal/domain/workflow"
)

// TransitionInput is the data the guards of a transition inspect. Request is the
// candidate state of the request with the action's payload already applied.
type TransitionInput struct {
	Request *entity.PaymentRequest
	Comment string
}

var errNoRequest = errors.New("request data is required")

// BuildPaymentRequestStateMachine creates a state machine for one request
func BuildPaymentRequestStateMachine(initial domainwf.Status, in *TransitionInput) domainwf.StateMachine {
	if in == nil {
		in = &TransitionInput{}
	}

	submittable := func(ctx context.Context) error {
		if in.Request == nil {
			return errNoRequest
		}
		return in.Request.CheckSubmittable()
	}
	splitsBalanced := func(ctx context.Context) error {
		if in.Request == nil {
			return errNoRequest
		}
		return in.Request.CheckSplits()
	}
	allocationsBalanced := func(ctx context.Context) error {
		if in.Request == nil {
			return errNoRequest
		}
		return in.Request.CheckAllocations()
	}
	commented := func(ctx context.Context) error {
		if strings.TrimSpace(in.Comment) == "" {
			return errors.New("comment is required")
		}
		return nil
	}
	paidFull := func(ctx context.Context) error {
		exec, err := execution(in)
		if err != nil {
			return err
		}
		if !exec.ActualAmount.Equal(in.Request.Amount) {
			return fmt.Errorf("full payment must equal %s", in.Request.Amount.String())
		}
		return nil
	}
	paidPartial := func(ctx context.Context) error {
		exec, err := execution(in)
		if err != nil {
			return err
		}
		if !exec.ActualAmount.IsPositive() || !exec.ActualAmount.LessThan(in.Request.Amount) {
			return fmt.Errorf("partial payment must be between 0 and %s", in.Request.Amount.String())
		}
		return nil
	}

	builder := domainwf.NewBuilder()

	builder.Configure(domainwf.StatusDraft).
		PermitIf(domainwf.ActionSubmit, domainwf.StatusSubmitted, submittable, domainwf.RoleExecutor).
		Permit(domainwf.ActionCancel, domainwf.StatusCancelled, domainwf.RoleExecutor, domainwf.RoleAdmin)

	builder.Configure(domainwf.StatusSubmitted).
		PermitIf(domainwf.ActionClassify, domainwf.StatusClassified, splitsBalanced, domainwf.RoleRegistrar).
		Permit(domainwf.ActionCancel, domainwf.StatusCancelled, domainwf.RoleExecutor, domainwf.RoleAdmin)

	builder.Configure(domainwf.StatusClassified).
		PermitIf(domainwf.ActionReturn, domainwf.StatusReturned, commented, domainwf.RoleRegistrar, domainwf.RoleDistributor).
		PermitIf(domainwf.ActionApprove, domainwf.StatusApproved, allocationsBalanced, domainwf.RoleDistributor).
		PermitIf(domainwf.ActionApproveOnBehalf, domainwf.StatusApprovedOnBehalf, allocationsBalanced, domainwf.RoleDistributor).
		Permit(domainwf.ActionDecline, domainwf.StatusDeclined, domainwf.RoleDistributor).
		Permit(domainwf.ActionCancel, domainwf.StatusCancelled, domainwf.RoleAdmin)

	// the only way out of returned is back to the requester's resubmission
	builder.Configure(domainwf.StatusReturned).
		PermitIf(domainwf.ActionResubmit, domainwf.StatusSubmitted, submittable, domainwf.RoleExecutor)

	for _, approved := range []domainwf.Status{domainwf.StatusApproved, domainwf.StatusApprovedOnBehalf} {
		builder.Configure(approved).
			PermitIf(domainwf.ActionReturn, domainwf.StatusReturned, commented, domainwf.RoleDistributor).
			Permit(domainwf.ActionAddToRegister, domainwf.StatusInRegister, domainwf.RoleTreasurer).
			PermitIf(domainwf.ActionReject, domainwf.StatusRejected, commented, domainwf.RoleTreasurer).
			Permit(domainwf.ActionCancel, domainwf.StatusCancelled, domainwf.RoleAdmin)
	}

	builder.Configure(domainwf.StatusInRegister).
		Permit(domainwf.ActionApproveForPayment, domainwf.StatusApprovedForPayment, domainwf.RoleTreasurer).
		PermitIf(domainwf.ActionReject, domainwf.StatusRejected, commented, domainwf.RoleTreasurer).
		Permit(domainwf.ActionCancel, domainwf.StatusCancelled, domainwf.RoleAdmin)

	builder.Configure(domainwf.StatusApprovedForPayment).
		PermitIf(domainwf.ActionPayFull, domainwf.StatusPaidFull, paidFull, domainwf.RoleTreasurer).
		PermitIf(domainwf.ActionPayPartial, domainwf.StatusPaidPartial, paidPartial, domainwf.RoleTreasurer).
		PermitIf(domainwf.ActionReject, domainwf.StatusRejected, commented, domainwf.RoleTreasurer)

	// paid-full, paid-partial, rejected, declined and cancelled are terminal

	return builder.Build(initial)
}

func execution(in *TransitionInput) (*entity.PaymentExecution, error) {
	if in.Request == nil {
		return nil, errNoRequest
	}
	if in.Request.PaymentExecution == nil {
		return nil, errors.New("payment execution data is required")
	}
	if in.Request.PaymentExecution.ExecutedAt.IsZero() {
		return nil, errors.New("execution date is required")
	}
	return in.Request.PaymentExecution, nil
}
