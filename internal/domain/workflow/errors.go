package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when no transition exists for an action in the current status
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidState is returned when a status is not part of the closed set
	ErrInvalidState = errors.New("invalid status")

	// ErrInvalidRole is returned for an unknown role
	ErrInvalidRole = errors.New("invalid role")

	// ErrRoleNotPermitted is returned when the role is not the designated actor for an action
	ErrRoleNotPermitted = errors.New("role not permitted")

	// ErrTerminalState is returned when an action is attempted on a terminal status
	ErrTerminalState = errors.New("request is in a terminal status")

	// ErrGuardFailed is returned when a data precondition fails
	ErrGuardFailed = errors.New("precondition failed")
)

// IsValidationError reports whether err is one of the transition refusals.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrRoleNotPermitted) ||
		errors.Is(err, ErrTerminalState) ||
		errors.Is(err, ErrGuardFailed) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrInvalidRole)
}
