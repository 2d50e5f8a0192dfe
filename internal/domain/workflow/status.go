package workflow

import (
	"fmt"
	"strings"
)

// Status is a lifecycle status of a payment request. The underlying string is the
// wire value used at the persistence boundary.
type Status string

const (
	StatusDraft              Status = "draft"
	StatusSubmitted          Status = "submitted"
	StatusClassified         Status = "classified"
	StatusReturned           Status = "returned"
	StatusApproved           Status = "approved"
	StatusApprovedOnBehalf   Status = "approved-on-behalf"
	StatusInRegister         Status = "in-register"
	StatusApprovedForPayment Status = "approved-for-payment"
	StatusPaidFull           Status = "paid-full"
	StatusPaidPartial        Status = "paid-partial"
	StatusRejected           Status = "rejected"
	StatusDeclined           Status = "declined"
	StatusCancelled          Status = "cancelled"
)

// statusInfo describes a status. Stage is expressed in tenths so that the
// half-steps of the pipeline (returned, approved-for-payment) stay integral.
// Sibling outcomes with no position in the pipeline have stage -1.
type statusInfo struct {
	stage      int
	terminal   bool
	backendKey string
}

var statusTable = map[Status]statusInfo{
	StatusDraft:              {stage: 0, backendKey: "DRAFT"},
	StatusSubmitted:          {stage: 10, backendKey: "SUBMITTED"},
	StatusReturned:           {stage: 15, backendKey: "RETURNED"},
	StatusClassified:         {stage: 20, backendKey: "REGISTERED"},
	StatusApproved:           {stage: 30, backendKey: "APPROVED"},
	StatusApprovedOnBehalf:   {stage: 30, backendKey: "APPROVED_ON_BEHALF"},
	StatusInRegister:         {stage: 40, backendKey: "IN_REGISTRY"},
	StatusApprovedForPayment: {stage: 45, backendKey: "APPROVED_FOR_PAYMENT"},
	StatusPaidFull:           {stage: 50, terminal: true, backendKey: "PAID_FULL"},
	StatusPaidPartial:        {stage: 50, terminal: true, backendKey: "PAID_PARTIAL"},
	StatusRejected:           {stage: -1, terminal: true, backendKey: "REJECTED"},
	StatusDeclined:           {stage: -1, terminal: true, backendKey: "DECLINED"},
	StatusCancelled:          {stage: -1, terminal: true, backendKey: "CANCELLED"},
}

// orderedStatuses lists every status in pipeline order.
var orderedStatuses = []Status{
	StatusDraft,
	StatusSubmitted,
	StatusReturned,
	StatusClassified,
	StatusApproved,
	StatusApprovedOnBehalf,
	StatusInRegister,
	StatusApprovedForPayment,
	StatusPaidFull,
	StatusPaidPartial,
	StatusRejected,
	StatusDeclined,
	StatusCancelled,
}

var byBackendKey = func() map[string]Status {
	m := make(map[string]Status, len(statusTable)+1)
	for s, info := range statusTable {
		m[info.backendKey] = s
	}
	// legacy alias, accepted inbound only
	m["TO_PAY"] = StatusApprovedForPayment
	return m
}()

// AllStatuses returns the closed status set in pipeline order.
func AllStatuses() []Status {
	out := make([]Status, len(orderedStatuses))
	copy(out, orderedStatuses)
	return out
}

// ParseStatus converts a wire value into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.TrimSpace(s))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidState, s)
	}
	return st, nil
}

// FromBackendKey converts an upper-snake backend enum key into a Status.
func FromBackendKey(key string) (Status, error) {
	st, ok := byBackendKey[strings.ToUpper(strings.TrimSpace(key))]
	if !ok {
		return "", fmt.Errorf("%w: backend key %q", ErrInvalidState, key)
	}
	return st, nil
}

// BackendKey returns the upper-snake backend enum key.
func (s Status) BackendKey() string {
	return statusTable[s].backendKey
}

// String returns the wire value of the status
func (s Status) String() string {
	return string(s)
}

// IsValid returns true if the status belongs to the closed set
func (s Status) IsValid() bool {
	_, ok := statusTable[s]
	return ok
}

// IsTerminal returns true if no further role-driven transition is legal
func (s Status) IsTerminal() bool {
	return statusTable[s].terminal
}

// Stage returns the pipeline stage in tenths, or -1 for off-pipeline outcomes.
func (s Status) Stage() int {
	info, ok := statusTable[s]
	if !ok {
		return -1
	}
	return info.stage
}

// IsPaid reports whether the status records an executed payment.
func (s Status) IsPaid() bool {
	return s == StatusPaidFull || s == StatusPaidPartial
}
