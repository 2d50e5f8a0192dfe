package utils

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	currencyRegex      = regexp.MustCompile(`^[A-Z]{3}$`)
	requestNumberRegex = regexp.MustCompile(`^REQ-\d{6,}$`)

	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator. Field names in errors use json tags,
// and the "currency" tag checks ISO 4217 style codes.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})
		_ = v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
			return ValidateCurrency(fl.Field().String()) == nil
		})
		validate = v
	})
	return validate
}

// ProcessValidationErrors flattens validator errors into field -> failed tag
func ProcessValidationErrors(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}

	out := make(map[string]string, len(validationErrors))
	for _, ve := range validationErrors {
		field := ve.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		out[field] = ve.Tag()
	}
	return out
}

// ValidateCurrency checks a three-letter upper-case currency code
func ValidateCurrency(code string) error {
	if !currencyRegex.MatchString(code) {
		return errors.New("currency must be a three-letter code")
	}
	return nil
}

// IsRequestNumber reports whether s looks like an issued request number
func IsRequestNumber(s string) bool {
	return requestNumberRegex.MatchString(s)
}
