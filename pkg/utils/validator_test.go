package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Currency string  `json:"currency" validate:"omitempty,currency"`
	Name     string  `json:"name" validate:"required"`
	Items    []child `json:"items" validate:"dive"`
}

type child struct {
	Code string `json:"code" validate:"required"`
}

func TestValidator_JSONFieldNames(t *testing.T) {
	err := Validator().Struct(sample{Currency: "rub", Items: []child{{}}})
	require.Error(t, err)

	fields := ProcessValidationErrors(err)
	assert.Equal(t, "currency", fields["currency"])
	assert.Equal(t, "required", fields["name"])
	assert.Equal(t, "required", fields["items[0].code"])
}

func TestValidator_Valid(t *testing.T) {
	assert.NoError(t, Validator().Struct(sample{Currency: "RUB", Name: "x"}))
	assert.NoError(t, Validator().Struct(sample{Name: "x"}))
}

func TestProcessValidationErrors_OtherError(t *testing.T) {
	assert.Nil(t, ProcessValidationErrors(assert.AnError))
}

func TestValidateCurrency(t *testing.T) {
	tests := []struct {
		code    string
		wantErr bool
	}{
		{"RUB", false},
		{"USD", false},
		{"usd", true},
		{"RU", true},
		{"RUBL", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := ValidateCurrency(tt.code)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsRequestNumber(t *testing.T) {
	assert.True(t, IsRequestNumber("REQ-000001"))
	assert.True(t, IsRequestNumber("REQ-1234567"))
	assert.False(t, IsRequestNumber("REQ-12"))
	assert.False(t, IsRequestNumber("req-000001"))
}
