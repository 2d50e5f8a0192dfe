package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/spend-requests/internal/domain/entity"
	domainwf "github.com/garyjia/spend-requests/internal/domain/workflow"
)

type legalKey struct {
	from   domainwf.Status
	role   domainwf.Role
	action domainwf.Action
}

// legalTable pins the complete set of legal transitions
var legalTable = map[legalKey]domainwf.Status{
	{domainwf.StatusDraft, domainwf.RoleExecutor, domainwf.ActionSubmit}: domainwf.StatusSubmitted,
	{domainwf.StatusDraft, domainwf.RoleExecutor, domainwf.ActionCancel}: domainwf.StatusCancelled,
	{domainwf.StatusDraft, domainwf.RoleAdmin, domainwf.ActionCancel}:    domainwf.StatusCancelled,

	{domainwf.StatusSubmitted, domainwf.RoleRegistrar, domainwf.ActionClassify}: domainwf.StatusClassified,
	{domainwf.StatusSubmitted, domainwf.RoleExecutor, domainwf.ActionCancel}:    domainwf.StatusCancelled,
	{domainwf.StatusSubmitted, domainwf.RoleAdmin, domainwf.ActionCancel}:       domainwf.StatusCancelled,

	{domainwf.StatusClassified, domainwf.RoleRegistrar, domainwf.ActionReturn}:            domainwf.StatusReturned,
	{domainwf.StatusClassified, domainwf.RoleDistributor, domainwf.ActionReturn}:          domainwf.StatusReturned,
	{domainwf.StatusClassified, domainwf.RoleDistributor, domainwf.ActionApprove}:         domainwf.StatusApproved,
	{domainwf.StatusClassified, domainwf.RoleDistributor, domainwf.ActionApproveOnBehalf}: domainwf.StatusApprovedOnBehalf,
	{domainwf.StatusClassified, domainwf.RoleDistributor, domainwf.ActionDecline}:         domainwf.StatusDeclined,
	{domainwf.StatusClassified, domainwf.RoleAdmin, domainwf.ActionCancel}:                domainwf.StatusCancelled,

	{domainwf.StatusReturned, domainwf.RoleExecutor, domainwf.ActionResubmit}: domainwf.StatusSubmitted,

	{domainwf.StatusApproved, domainwf.RoleDistributor, domainwf.ActionReturn}:       domainwf.StatusReturned,
	{domainwf.StatusApproved, domainwf.RoleTreasurer, domainwf.ActionAddToRegister}:  domainwf.StatusInRegister,
	{domainwf.StatusApproved, domainwf.RoleTreasurer, domainwf.ActionReject}:         domainwf.StatusRejected,
	{domainwf.StatusApproved, domainwf.RoleAdmin, domainwf.ActionCancel}:             domainwf.StatusCancelled,
	{domainwf.StatusApprovedOnBehalf, domainwf.RoleDistributor, domainwf.ActionReturn}: domainwf.StatusReturned,
	{domainwf.StatusApprovedOnBehalf, domainwf.RoleTreasurer, domainwf.ActionAddToRegister}: domainwf.StatusInRegister,
	{domainwf.StatusApprovedOnBehalf, domainwf.RoleTreasurer, domainwf.ActionReject}:        domainwf.StatusRejected,
	{domainwf.StatusApprovedOnBehalf, domainwf.RoleAdmin, domainwf.ActionCancel}:            domainwf.StatusCancelled,

	{domainwf.StatusInRegister, domainwf.RoleTreasurer, domainwf.ActionApproveForPayment}: domainwf.StatusApprovedForPayment,
	{domainwf.StatusInRegister, domainwf.RoleTreasurer, domainwf.ActionReject}:            domainwf.StatusRejected,
	{domainwf.StatusInRegister, domainwf.RoleAdmin, domainwf.ActionCancel}:                domainwf.StatusCancelled,

	{domainwf.StatusApprovedForPayment, domainwf.RoleTreasurer, domainwf.ActionPayFull}:    domainwf.StatusPaidFull,
	{domainwf.StatusApprovedForPayment, domainwf.RoleTreasurer, domainwf.ActionPayPartial}: domainwf.StatusPaidPartial,
	{domainwf.StatusApprovedForPayment, domainwf.RoleTreasurer, domainwf.ActionReject}:     domainwf.StatusRejected,
}

var (
	allRoles = []domainwf.Role{
		domainwf.RoleExecutor, domainwf.RoleRegistrar, domainwf.RoleSubRegistrar,
		domainwf.RoleDistributor, domainwf.RoleTreasurer, domainwf.RoleAdmin,
	}
	allActions = []domainwf.Action{
		domainwf.ActionSubmit, domainwf.ActionResubmit, domainwf.ActionClassify, domainwf.ActionReturn,
		domainwf.ActionApprove, domainwf.ActionApproveOnBehalf, domainwf.ActionDecline, domainwf.ActionReject,
		domainwf.ActionAddToRegister, domainwf.ActionApproveForPayment, domainwf.ActionPayFull,
		domainwf.ActionPayPartial, domainwf.ActionCancel, domainwf.ActionCreate,
	}
)

// satisfying returns a request at status that passes every data precondition
// except the pay_partial one, which needs a smaller execution amount.
func satisfying(status domainwf.Status, action domainwf.Action) *entity.PaymentRequest {
	due := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	amount := decimal.NewFromInt(100000)
	actual := amount
	if action == domainwf.ActionPayPartial {
		actual = decimal.NewFromInt(40000)
	}
	return &entity.PaymentRequest{
		ID:     uuid.New(),
		Status: status,
		RequestFields: entity.RequestFields{
			Amount:         amount,
			Currency:       "RUB",
			DueDate:        &due,
			CounterpartyID: "cp-1",
		},
		ExpenseSplits:      []entity.ExpenseSplit{{CategoryID: "rent", Amount: amount}},
		PaymentAllocations: []entity.PaymentAllocation{{ContractID: "C-1", Amount: amount}},
		PaymentExecution: &entity.PaymentExecution{
			ActualAmount: actual,
			ExecutedAt:   due,
			ExchangeRate: decimal.NewFromInt(1),
		},
	}
}

func TestAuthority_LegalityIsExhaustive(t *testing.T) {
	authority := NewAuthority()
	ctx := context.Background()

	for _, status := range domainwf.AllStatuses() {
		for _, role := range allRoles {
			for _, action := range allActions {
				key := legalKey{status, role, action}
				want, legal := legalTable[key]

				req := satisfying(status, action)
				got, err := authority.Authorize(ctx, role, action, TransitionInput{Request: req, Comment: "reason"})

				if legal {
					if assert.NoError(t, err, "%s/%s/%s", status, role, action) {
						assert.Equal(t, want, got, "%s/%s/%s", status, role, action)
					}
					assert.True(t, authority.CanPerform(status, role, action))
					continue
				}

				assert.Error(t, err, "%s/%s/%s should be refused", status, role, action)
				assert.True(t, domainwf.IsValidationError(err), "%s/%s/%s: %v", status, role, action, err)
				assert.Equal(t, status, req.Status, "refusal must not change status")
				assert.False(t, authority.CanPerform(status, role, action))
			}
		}
	}
}

func TestAuthority_TerminalStatusesRefuseEverything(t *testing.T) {
	authority := NewAuthority()
	for _, status := range domainwf.AllStatuses() {
		if !status.IsTerminal() {
			continue
		}
		_, err := authority.Authorize(context.Background(), domainwf.RoleAdmin, domainwf.ActionCancel,
			TransitionInput{Request: satisfying(status, domainwf.ActionCancel)})
		assert.ErrorIs(t, err, domainwf.ErrTerminalState, status.String())
		assert.Empty(t, authority.PermittedActions(status, domainwf.RoleAdmin))
	}
}

func TestAuthority_ClassifyRequiresBalancedSplits(t *testing.T) {
	authority := NewAuthority()
	req := satisfying(domainwf.StatusSubmitted, domainwf.ActionClassify)
	req.ExpenseSplits = nil

	_, err := authority.Authorize(context.Background(), domainwf.RoleRegistrar, domainwf.ActionClassify, TransitionInput{Request: req})
	require.ErrorIs(t, err, domainwf.ErrGuardFailed)
	assert.Contains(t, err.Error(), "splits must total 100000")

	req.ExpenseSplits = []entity.ExpenseSplit{{CategoryID: "rent", Amount: decimal.NewFromInt(100000)}}
	to, err := authority.Authorize(context.Background(), domainwf.RoleRegistrar, domainwf.ActionClassify, TransitionInput{Request: req})
	require.NoError(t, err)
	assert.Equal(t, domainwf.StatusClassified, to)
}

func TestAuthority_ApproveRequiresBalancedAllocations(t *testing.T) {
	authority := NewAuthority()

	for _, action := range []domainwf.Action{domainwf.ActionApprove, domainwf.ActionApproveOnBehalf} {
		req := satisfying(domainwf.StatusClassified, action)
		req.PaymentAllocations = []entity.PaymentAllocation{{ContractID: "C-1", Amount: decimal.NewFromInt(99999)}}

		_, err := authority.Authorize(context.Background(), domainwf.RoleDistributor, action, TransitionInput{Request: req})
		require.ErrorIs(t, err, domainwf.ErrGuardFailed)
		assert.Contains(t, err.Error(), "allocations must total 100000")
	}
}

func TestAuthority_ReturnRequiresComment(t *testing.T) {
	authority := NewAuthority()
	req := satisfying(domainwf.StatusClassified, domainwf.ActionReturn)

	_, err := authority.Authorize(context.Background(), domainwf.RoleDistributor, domainwf.ActionReturn, TransitionInput{Request: req, Comment: "  "})
	assert.ErrorIs(t, err, domainwf.ErrGuardFailed)
}

func TestAuthority_PaymentGuards(t *testing.T) {
	authority := NewAuthority()

	tests := []struct {
		name    string
		action  domainwf.Action
		actual  *decimal.Decimal
		noExec  bool
		wantErr bool
	}{
		{name: "full equals amount", action: domainwf.ActionPayFull},
		{name: "full below amount", action: domainwf.ActionPayFull, actual: ptr(decimal.NewFromInt(10)), wantErr: true},
		{name: "partial below amount", action: domainwf.ActionPayPartial},
		{name: "partial equal to amount", action: domainwf.ActionPayPartial, actual: ptr(decimal.NewFromInt(100000)), wantErr: true},
		{name: "partial zero", action: domainwf.ActionPayPartial, actual: ptr(decimal.Zero), wantErr: true},
		{name: "missing execution", action: domainwf.ActionPayFull, noExec: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := satisfying(domainwf.StatusApprovedForPayment, tt.action)
			if tt.actual != nil {
				req.PaymentExecution.ActualAmount = *tt.actual
			}
			if tt.noExec {
				req.PaymentExecution = nil
			}
			_, err := authority.Authorize(context.Background(), domainwf.RoleTreasurer, tt.action, TransitionInput{Request: req})
			if tt.wantErr {
				assert.ErrorIs(t, err, domainwf.ErrGuardFailed)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAuthority_ActionFor(t *testing.T) {
	authority := NewAuthority()

	action, err := authority.ActionFor(domainwf.StatusApprovedForPayment, domainwf.RoleTreasurer, domainwf.StatusPaidPartial)
	require.NoError(t, err)
	assert.Equal(t, domainwf.ActionPayPartial, action)

	action, err = authority.ActionFor(domainwf.StatusApproved, domainwf.RoleTreasurer, domainwf.StatusInRegister)
	require.NoError(t, err)
	assert.Equal(t, domainwf.ActionAddToRegister, action)

	_, err = authority.ActionFor(domainwf.StatusDraft, domainwf.RoleTreasurer, domainwf.StatusPaidFull)
	assert.ErrorIs(t, err, domainwf.ErrInvalidTransition)

	_, err = authority.ActionFor(domainwf.StatusDeclined, domainwf.RoleAdmin, domainwf.StatusCancelled)
	assert.ErrorIs(t, err, domainwf.ErrTerminalState)

	_, err = authority.ActionFor(domainwf.StatusDraft, domainwf.RoleExecutor, domainwf.Status("to-pay"))
	assert.True(t, errors.Is(err, domainwf.ErrInvalidState))
}

func TestAuthority_ReturnedOnlyExitsToSubmitted(t *testing.T) {
	authority := NewAuthority()
	for _, role := range allRoles {
		for _, action := range authority.PermittedActions(domainwf.StatusReturned, role) {
			to, err := authority.ActionFor(domainwf.StatusReturned, role, domainwf.StatusSubmitted)
			require.NoError(t, err)
			assert.Equal(t, action, to)
			assert.Equal(t, domainwf.RoleExecutor, role)
		}
	}
}

func ptr(d decimal.Decimal) *decimal.Decimal { return &d }
