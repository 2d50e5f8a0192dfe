package port

import (
	"errors"

	"github.com/garyjia/spend-requests/internal/domain/workflow"
)

var (
	// ErrValidation marks malformed input
	ErrValidation = errors.New("validation failed")

	// ErrNotEditable is returned when a draft edit targets a request past the requester's stage
	ErrNotEditable = errors.New("request is not editable in its current status")

	// ErrInProgress is returned when an Idempotency-Key is held by a request that has not finished
	ErrInProgress = errors.New("a request with this idempotency key is in progress")
)

// Wire codes for boundary errors. Both sides of the REST transport use them.
const (
	CodeValidation         = "validation_failed"
	CodePreconditionFailed = "precondition_failed"
	CodeInvalidTransition  = "invalid_transition"
	CodeTerminalState      = "terminal_state"
	CodeInvalidState       = "invalid_state"
	CodeInvalidRole        = "invalid_role"
	CodeForbidden          = "forbidden"
	CodeNotEditable        = "not_editable"
	CodeNotFound           = "not_found"
	CodeVersionConflict    = "version_conflict"
	CodeInProgress         = "in_progress"
	CodeInternal           = "internal"
)

// codeTable is ordered; the first matching sentinel wins
var codeTable = []struct {
	code string
	err  error
}{
	{CodeNotFound, ErrNotFound},
	{CodeVersionConflict, ErrVersionConflict},
	{CodeInProgress, ErrInProgress},
	{CodeNotEditable, ErrNotEditable},
	{CodeTerminalState, workflow.ErrTerminalState},
	{CodeForbidden, workflow.ErrRoleNotPermitted},
	{CodePreconditionFailed, workflow.ErrGuardFailed},
	{CodeInvalidTransition, workflow.ErrInvalidTransition},
	{CodeInvalidState, workflow.ErrInvalidState},
	{CodeInvalidRole, workflow.ErrInvalidRole},
	{CodeValidation, ErrValidation},
}

// CodeOf returns the wire code for err
func CodeOf(err error) string {
	for _, c := range codeTable {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// ErrorOf returns the sentinel for a wire code, or nil for unknown codes
func ErrorOf(code string) error {
	for _, c := range codeTable {
		if c.code == code {
			return c.err
		}
	}
	return nil
}
