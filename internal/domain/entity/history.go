package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/spend-requests/internal/domain/workflow"
)

// HistoryEntry is one append-only step in a request's lifecycle
type HistoryEntry struct {
	ID         uuid.UUID       `json:"id"`
	RequestID  uuid.UUID       `json:"request_id"`
	Actor      string          `json:"actor"`
	Role       workflow.Role   `json:"role"`
	Action     workflow.Action `json:"action"`
	FromStatus workflow.Status `json:"from_status"`
	ToStatus   workflow.Status `json:"to_status"`
	Comment    string          `json:"comment,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Audit event types recorded alongside history
const (
	EventCreated            = "CREATED"
	EventUpdated            = "UPDATED"
	EventSubmitted          = "SUBMITTED"
	EventResubmitted        = "RESUBMITTED"
	EventClassified         = "CLASSIFIED"
	EventReturned           = "RETURNED"
	EventApproved           = "APPROVED"
	EventApprovedOnBehalf   = "APPROVED_ON_BEHALF"
	EventDeclined           = "DECLINED"
	EventRejected           = "REJECTED"
	EventAddedToRegister    = "ADDED_TO_REGISTER"
	EventApprovedForPayment = "APPROVED_FOR_PAYMENT"
	EventPaid               = "PAID"
	EventCancelled          = "CANCELLED"
)

// ActionEventTypes maps each workflow action to the audit event it records
var ActionEventTypes = map[workflow.Action]string{
	workflow.ActionSubmit:            EventSubmitted,
	workflow.ActionResubmit:          EventResubmitted,
	workflow.ActionClassify:          EventClassified,
	workflow.ActionReturn:            EventReturned,
	workflow.ActionApprove:           EventApproved,
	workflow.ActionApproveOnBehalf:   EventApprovedOnBehalf,
	workflow.ActionDecline:           EventDeclined,
	workflow.ActionReject:            EventRejected,
	workflow.ActionAddToRegister:     EventAddedToRegister,
	workflow.ActionApproveForPayment: EventApprovedForPayment,
	workflow.ActionPayFull:           EventPaid,
	workflow.ActionPayPartial:        EventPaid,
	workflow.ActionCancel:            EventCancelled,
}

// RequestEvent is an audit record with an optional free-text comment
type RequestEvent struct {
	ID        uuid.UUID     `json:"id"`
	RequestID uuid.UUID     `json:"request_id"`
	Type      string        `json:"type"`
	Actor     string        `json:"actor"`
	Role      workflow.Role `json:"role"`
	Comment   string        `json:"comment,omitempty"`
	Payload   string        `json:"payload,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// IsReason reports whether the event carries a refusal reason for the requester
func (e RequestEvent) IsReason() bool {
	switch e.Type {
	case EventRejected, EventDeclined, EventReturned:
		return true
	}
	return false
}

// IdempotencyRecord stores the first response produced for an Idempotency-Key.
// StatusCode is 0 while the request holding the key is still running.
type IdempotencyRecord struct {
	Key        string    `json:"key"`
	UserID     string    `json:"user_id"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	StatusCode int       `json:"status_code"`
	Body       []byte    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// IsPending reports whether the key is reserved but has no response yet
func (r IdempotencyRecord) IsPending() bool {
	return r.StatusCode == 0
}
