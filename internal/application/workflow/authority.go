package workflow

import (
	"context"
	"fmt"

	domainwf "github.com/garyjia/spend-requests/internal/domain/workflow"
)

// Authority decides whether a (status, role, action) triple is legal and where it leads.
// It holds no state and is safe for concurrent use.
type Authority struct{}

// NewAuthority creates a transition authority
func NewAuthority() Authority {
	return Authority{}
}

// Authorize validates the action against the candidate request and returns the resulting status.
func (Authority) Authorize(ctx context.Context, role domainwf.Role, action domainwf.Action, in TransitionInput) (domainwf.Status, error) {
	if in.Request == nil {
		return "", errNoRequest
	}
	if !role.IsValid() {
		return "", fmt.Errorf("%w: %q", domainwf.ErrInvalidRole, role)
	}

	from := in.Request.Status
	if !from.IsValid() {
		return "", fmt.Errorf("%w: %q", domainwf.ErrInvalidState, from)
	}

	machine := BuildPaymentRequestStateMachine(from, &in)
	if err := machine.Fire(ctx, action, role); err != nil {
		return "", err
	}

	return machine.Status(), nil
}

// CanPerform reports whether role is the designated actor for action at status.
// Data preconditions are not evaluated.
func (Authority) CanPerform(status domainwf.Status, role domainwf.Role, action domainwf.Action) bool {
	if !status.IsValid() {
		return false
	}
	return BuildPaymentRequestStateMachine(status, nil).CanFire(action, role)
}

// PermittedActions lists the actions role may attempt at status
func (Authority) PermittedActions(status domainwf.Status, role domainwf.Role) []domainwf.Action {
	if !status.IsValid() {
		return []domainwf.Action{}
	}
	return BuildPaymentRequestStateMachine(status, nil).PermittedActions(role)
}

// ActionFor finds the single action that moves role from status to target.
func (Authority) ActionFor(status domainwf.Status, role domainwf.Role, target domainwf.Status) (domainwf.Action, error) {
	if !status.IsValid() {
		return "", fmt.Errorf("%w: %q", domainwf.ErrInvalidState, status)
	}
	if !target.IsValid() {
		return "", fmt.Errorf("%w: %q", domainwf.ErrInvalidState, target)
	}
	if status.IsTerminal() {
		return "", fmt.Errorf("%w: cannot move from %s", domainwf.ErrTerminalState, status)
	}

	machine := BuildPaymentRequestStateMachine(status, nil)
	for _, action := range machine.PermittedActions(role) {
		if to, ok := machine.Target(action, role); ok && to == target {
			return action, nil
		}
	}

	return "", fmt.Errorf("%w: %s cannot move a request from %s to %s", domainwf.ErrInvalidTransition, role, status, target)
}
