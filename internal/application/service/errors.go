package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/garyjia/spend-requests/internal/application/port"
	"github.com/garyjia/spend-requests/pkg/utils"
)

var (
	// ErrValidation marks malformed input
	ErrValidation = port.ErrValidation

	// ErrNotEditable is returned when a draft edit targets a request past the requester's stage
	ErrNotEditable = port.ErrNotEditable

	// ErrNotFound is returned when a request does not exist
	ErrNotFound = port.ErrNotFound

	// ErrVersionConflict is returned when a write is based on a stale version
	ErrVersionConflict = port.ErrVersionConflict
)

// ValidationError lists the offending fields
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), strings.Join(parts, ", "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Fields: map[string]string{field: reason}}
}

// validateStruct runs the shared validator and converts its errors
func validateStruct(v interface{}) error {
	err := utils.Validator().Struct(v)
	if err == nil {
		return nil
	}
	if fields := utils.ProcessValidationErrors(err); len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return fmt.Errorf("%w: %v", ErrValidation, err)
}
