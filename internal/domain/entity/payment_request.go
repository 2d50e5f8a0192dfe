package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garyjia/spend-requests/internal/domain/workflow"
)

// RequestFields holds the requester-editable part of a payment request.
type RequestFields struct {
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency" validate:"omitempty,currency"`
	VATRate        decimal.Decimal `json:"vat_rate"`
	DueDate        *time.Time      `json:"due_date,omitempty"`
	CounterpartyID string          `json:"counterparty_id" validate:"max=128"`
	DocType        string          `json:"doc_type,omitempty" validate:"max=64"`
	DocNumber      string          `json:"doc_number,omitempty" validate:"max=64"`
	DocDate        *time.Time      `json:"doc_date,omitempty"`
	Description    string          `json:"description,omitempty" validate:"max=4000"`
	Comment        string          `json:"comment,omitempty" validate:"max=4000"`
	Files          []Attachment    `json:"files,omitempty" validate:"omitempty,dive"`
}

// PaymentRequest is the central entity routed through the approval pipeline
type PaymentRequest struct {
	ID            uuid.UUID       `json:"id"`
	Version       int64           `json:"version"`
	RequestNumber string          `json:"request_number,omitempty"`
	Status        workflow.Status `json:"status"`
	RequestFields
	Priority           string              `json:"priority,omitempty"`
	ExpenseSplits      []ExpenseSplit      `json:"expense_splits,omitempty"`
	PaymentAllocations []PaymentAllocation `json:"payment_allocations,omitempty"`
	PaymentExecution   *PaymentExecution   `json:"payment_execution,omitempty"`
	History            []HistoryEntry      `json:"history,omitempty"`
	CreatedBy          string              `json:"created_by"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
	SubmittedAt        *time.Time          `json:"submitted_at,omitempty"`
}

// Attachment is file metadata; file storage itself lives elsewhere
type Attachment struct {
	Name     string `json:"name" validate:"required,max=255"`
	URL      string `json:"url" validate:"omitempty,url"`
	Size     int64  `json:"size" validate:"gte=0"`
	MimeType string `json:"mime_type,omitempty"`
}

// ExpenseSplit assigns part of the amount to an expense category
type ExpenseSplit struct {
	CategoryID string          `json:"category_id" validate:"required"`
	ContractID string          `json:"contract_id,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Comment    string          `json:"comment,omitempty"`
}

// PaymentAllocation assigns part of the amount to a contract and payment date
type PaymentAllocation struct {
	ContractID  string          `json:"contract_id" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	PlannedDate *time.Time      `json:"planned_date,omitempty"`
	Priority    string          `json:"priority,omitempty"`
	Comment     string          `json:"comment,omitempty"`
}

// PaymentExecution records an actual payment
type PaymentExecution struct {
	ActualAmount decimal.Decimal `json:"actual_amount"`
	ExecutedAt   time.Time       `json:"executed_at"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
	Comment      string          `json:"comment,omitempty"`
}

// IsDraft reports whether the request is still an unsubmitted draft
func (r *PaymentRequest) IsDraft() bool {
	return r.Status == workflow.StatusDraft
}

// IsPersisted reports whether the request has a server-assigned identity
func (r *PaymentRequest) IsPersisted() bool {
	return r.ID != uuid.Nil
}

// SplitsTotal sums the expense splits
func (r *PaymentRequest) SplitsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, s := range r.ExpenseSplits {
		total = total.Add(s.Amount)
	}
	return total
}

// AllocationsTotal sums the payment allocations
func (r *PaymentRequest) AllocationsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, a := range r.PaymentAllocations {
		total = total.Add(a.Amount)
	}
	return total
}

// CheckSplits returns an error unless splits are non-empty, positive and total the amount.
func (r *PaymentRequest) CheckSplits() error {
	if len(r.ExpenseSplits) == 0 || !r.SplitsTotal().Equal(r.Amount) {
		return fmt.Errorf("splits must total %s", r.Amount.String())
	}
	for i, s := range r.ExpenseSplits {
		if !s.Amount.IsPositive() {
			return fmt.Errorf("split %d amount must be positive", i+1)
		}
		if s.CategoryID == "" {
			return fmt.Errorf("split %d has no expense category", i+1)
		}
	}
	return nil
}

// CheckAllocations returns an error unless allocations are non-empty, positive and total the amount.
func (r *PaymentRequest) CheckAllocations() error {
	if len(r.PaymentAllocations) == 0 || !r.AllocationsTotal().Equal(r.Amount) {
		return fmt.Errorf("allocations must total %s", r.Amount.String())
	}
	for i, a := range r.PaymentAllocations {
		if !a.Amount.IsPositive() {
			return fmt.Errorf("allocation %d amount must be positive", i+1)
		}
		if a.ContractID == "" {
			return fmt.Errorf("allocation %d has no contract", i+1)
		}
	}
	return nil
}

// CheckSubmittable returns an error when required fields for submission are missing.
func (r *PaymentRequest) CheckSubmittable() error {
	switch {
	case r.CounterpartyID == "":
		return fmt.Errorf("counterparty is required")
	case r.DueDate == nil:
		return fmt.Errorf("due date is required")
	case !r.Amount.IsPositive():
		return fmt.Errorf("amount must be positive")
	}
	return nil
}

// Summary projects the request into a list row
func (r *PaymentRequest) Summary() RequestSummary {
	return RequestSummary{
		ID:             r.ID,
		RequestNumber:  r.RequestNumber,
		Status:         r.Status,
		Amount:         r.Amount,
		Currency:       r.Currency,
		CounterpartyID: r.CounterpartyID,
		DueDate:        r.DueDate,
		CreatedBy:      r.CreatedBy,
		Version:        r.Version,
		UpdatedAt:      r.UpdatedAt,
	}
}

// RequestSummary is the list/dashboard projection of a payment request
type RequestSummary struct {
	ID             uuid.UUID       `json:"id"`
	RequestNumber  string          `json:"request_number,omitempty"`
	Status         workflow.Status `json:"status"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	CounterpartyID string          `json:"counterparty_id"`
	DueDate        *time.Time      `json:"due_date,omitempty"`
	CreatedBy      string          `json:"created_by"`
	Version        int64           `json:"version"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// FormatRequestNumber renders a sequence value as a human-readable request number
func FormatRequestNumber(seq int64) string {
	return fmt.Sprintf("REQ-%06d", seq)
}
