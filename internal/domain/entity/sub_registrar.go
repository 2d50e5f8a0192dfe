package entity

import (
	"time"

	"github.com/google/uuid"
)

// DocumentStatus records how much of the supporting paperwork a sub-registrar received
type DocumentStatus string

const (
	DocumentsNotReceived       DocumentStatus = "not_received"
	DocumentsReceivedFull      DocumentStatus = "received_full"
	DocumentsReceivedPartially DocumentStatus = "received_partially"
)

// IsValid reports whether s is a known document status
func (s DocumentStatus) IsValid() bool {
	switch s {
	case DocumentsNotReceived, DocumentsReceivedFull, DocumentsReceivedPartially:
		return true
	}
	return false
}

// ReportStatus is the lifecycle of a sub-registrar report
type ReportStatus string

const (
	ReportDraft     ReportStatus = "DRAFT"
	ReportPublished ReportStatus = "PUBLISHED"
)

// Assignment statuses
const (
	AssignmentAssigned = "ASSIGNED"
	AssignmentReported = "REPORTED"
)

// EventReportPublished is the audit event recorded when a sub-registrar report is published
const EventReportPublished = "REPORT_PUBLISHED"

// SubRegistrarAssignment hands a classified request to one sub-registrar for document collection.
// A request has at most one assignment.
type SubRegistrarAssignment struct {
	ID             uuid.UUID `json:"id"`
	RequestID      uuid.UUID `json:"request_id"`
	SubRegistrarID string    `json:"sub_registrar_id"`
	AssignedBy     string    `json:"assigned_by"`
	Status         string    `json:"status"`
	AssignedAt     time.Time `json:"assigned_at"`
}

// SubRegistrarReport is the document report a sub-registrar files for an assigned request.
// Once published it is read-only.
type SubRegistrarReport struct {
	ID             uuid.UUID              `json:"id"`
	RequestID      uuid.UUID              `json:"request_id"`
	SubRegistrarID string                 `json:"sub_registrar_id"`
	DocumentStatus DocumentStatus         `json:"document_status"`
	ReportData     map[string]interface{} `json:"report_data,omitempty"`
	Status         ReportStatus           `json:"status"`
	PublishedAt    *time.Time             `json:"published_at,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// IsPublished reports whether the report has been published
func (r *SubRegistrarReport) IsPublished() bool {
	return r.Status == ReportPublished
}
