package workflow

import "context"

// StateMachine tracks the current status of one request and validates role actions
type StateMachine interface {
	// Status returns the current status
	Status() Status

	// CanFire reports whether role may attempt action in the current status
	CanFire(action Action, role Role) bool

	// Fire attempts the action as role, moving to the new status if allowed
	Fire(ctx context.Context, action Action, role Role) error

	// PermittedActions returns the actions role may attempt in the current status
	PermittedActions(role Role) []Action

	// Target returns the status action would lead to for role, ignoring guards
	Target(action Action, role Role) (Status, bool)
}
