package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/spend-requests/internal/application/port"
	"github.com/garyjia/spend-requests/internal/domain/entity"
	"github.com/garyjia/spend-requests/internal/domain/workflow"
)

// SubRegistrarService runs the document collection stage. A registrar assigns a
// classified request to a sub-registrar, who keeps a draft report on it and
// publishes it once the paperwork is settled.
type SubRegistrarService interface {
	Assign(ctx context.Context, actor port.Actor, requestID uuid.UUID, subRegistrarID string) (*entity.SubRegistrarAssignment, error)
	// Assignments lists the assignments of the acting sub-registrar
	Assignments(ctx context.Context, actor port.Actor, page Page) ([]entity.SubRegistrarAssignment, error)
	// AllAssignments lists every assignment; any role may filter by it
	AllAssignments(ctx context.Context, actor port.Actor, page Page) ([]entity.SubRegistrarAssignment, error)
	Report(ctx context.Context, actor port.Actor, requestID uuid.UUID) (*entity.SubRegistrarReport, error)
	SaveReportDraft(ctx context.Context, actor port.Actor, in ReportInput) (*entity.SubRegistrarReport, error)
	PublishReport(ctx context.Context, actor port.Actor, requestID uuid.UUID) (*entity.SubRegistrarReport, error)
}

// Page bounds a listing
type Page struct {
	Limit  int `validate:"gte=0,lte=1000"`
	Offset int `validate:"gte=0"`
}

// ReportInput is the body of a report draft save
type ReportInput struct {
	RequestID      uuid.UUID              `json:"request_id"`
	DocumentStatus entity.DocumentStatus  `json:"document_status"`
	ReportData     map[string]interface{} `json:"report_data"`
}

var (
	assignRoles = map[workflow.Role]bool{workflow.RoleRegistrar: true, workflow.RoleAdmin: true}
	reportRoles = map[workflow.Role]bool{workflow.RoleSubRegistrar: true, workflow.RoleRegistrar: true, workflow.RoleAdmin: true}
)

type subRegistrarServiceImpl struct {
	requestRepo port.RequestRepository
	repo        port.SubRegistrarRepository
	eventRepo   port.EventRepository
	txManager   port.TransactionManager
	logger      Logger
	now         func() time.Time
}

var _ SubRegistrarService = (*subRegistrarServiceImpl)(nil)

// NewSubRegistrarService creates a new SubRegistrarService. now may be nil.
func NewSubRegistrarService(
	requestRepo port.RequestRepository,
	repo port.SubRegistrarRepository,
	eventRepo port.EventRepository,
	txManager port.TransactionManager,
	logger Logger,
	now func() time.Time,
) SubRegistrarService {
	if now == nil {
		now = time.Now
	}
	return &subRegistrarServiceImpl{
		requestRepo: requestRepo,
		repo:        repo,
		eventRepo:   eventRepo,
		txManager:   txManager,
		logger:      logger,
		now:         now,
	}
}

// Assign hands a request at or past classification to a sub-registrar. An existing
// assignment is moved unless its report is already published.
func (s *subRegistrarServiceImpl) Assign(ctx context.Context, actor port.Actor, requestID uuid.UUID, subRegistrarID string) (*entity.SubRegistrarAssignment, error) {
	if err := requireRole(actor, assignRoles); err != nil {
		return nil, err
	}
	if subRegistrarID == "" {
		return nil, invalid("sub_registrar_id", "required")
	}

	var out *entity.SubRegistrarAssignment
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		req, err := s.loadRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status.Stage() < workflow.StatusClassified.Stage() {
			return fmt.Errorf("%w: request must be classified before assignment, status is %s", workflow.ErrGuardFailed, req.Status)
		}

		report, err := s.repo.GetReport(ctx, requestID)
		if err != nil {
			return err
		}
		if report != nil && report.IsPublished() {
			return fmt.Errorf("%w: report for %s is already published", ErrNotEditable, requestID)
		}

		out = &entity.SubRegistrarAssignment{
			RequestID:      requestID,
			SubRegistrarID: subRegistrarID,
			AssignedBy:     actor.UserID,
			Status:         entity.AssignmentAssigned,
			AssignedAt:     s.now().UTC(),
		}
		if current, err := s.repo.GetAssignment(ctx, requestID); err != nil {
			return err
		} else if current != nil {
			out.ID = current.ID
		}
		return s.repo.SaveAssignment(ctx, out)
	})
	if err != nil {
		return nil, err
	}

	s.logInfo("Request assigned to sub-registrar",
		"request_id", requestID.String(),
		"sub_registrar_id", subRegistrarID,
		"assigned_by", actor.UserID)
	return out, nil
}

func (s *subRegistrarServiceImpl) Assignments(ctx context.Context, actor port.Actor, page Page) ([]entity.SubRegistrarAssignment, error) {
	if err := requireRole(actor, map[workflow.Role]bool{workflow.RoleSubRegistrar: true}); err != nil {
		return nil, err
	}
	if err := validateStruct(page); err != nil {
		return nil, err
	}
	return s.repo.ListAssignments(ctx, actor.UserID, page.Limit, page.Offset)
}

func (s *subRegistrarServiceImpl) AllAssignments(ctx context.Context, actor port.Actor, page Page) ([]entity.SubRegistrarAssignment, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	if err := validateStruct(page); err != nil {
		return nil, err
	}
	return s.repo.ListAssignments(ctx, "", page.Limit, page.Offset)
}

// Report returns the report filed for a request
func (s *subRegistrarServiceImpl) Report(ctx context.Context, actor port.Actor, requestID uuid.UUID) (*entity.SubRegistrarReport, error) {
	if err := requireRole(actor, reportRoles); err != nil {
		return nil, err
	}
	report, err := s.repo.GetReport(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, fmt.Errorf("%w: no report for %s", ErrNotFound, requestID)
	}
	return report, nil
}

// SaveReportDraft creates or overwrites the draft report of a request assigned to the actor
func (s *subRegistrarServiceImpl) SaveReportDraft(ctx context.Context, actor port.Actor, in ReportInput) (*entity.SubRegistrarReport, error) {
	if err := requireRole(actor, map[workflow.Role]bool{workflow.RoleSubRegistrar: true}); err != nil {
		return nil, err
	}
	if in.RequestID == uuid.Nil {
		return nil, invalid("request_id", "required")
	}
	if !in.DocumentStatus.IsValid() {
		return nil, invalid("document_status", "oneof")
	}

	var out *entity.SubRegistrarReport
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		existing, err := s.ownReport(ctx, actor, in.RequestID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		out = &entity.SubRegistrarReport{
			RequestID:      in.RequestID,
			SubRegistrarID: actor.UserID,
			DocumentStatus: in.DocumentStatus,
			ReportData:     in.ReportData,
			Status:         entity.ReportDraft,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if existing != nil {
			out.ID = existing.ID
			out.CreatedAt = existing.CreatedAt
		}
		return s.repo.SaveReport(ctx, out)
	})
	if err != nil {
		return nil, err
	}

	s.logInfo("Report draft saved", "request_id", in.RequestID.String(), "sub_registrar_id", actor.UserID)
	return out, nil
}

// PublishReport freezes the actor's draft report and closes the assignment
func (s *subRegistrarServiceImpl) PublishReport(ctx context.Context, actor port.Actor, requestID uuid.UUID) (*entity.SubRegistrarReport, error) {
	if err := requireRole(actor, map[workflow.Role]bool{workflow.RoleSubRegistrar: true}); err != nil {
		return nil, err
	}

	var out *entity.SubRegistrarReport
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		report, err := s.ownReport(ctx, actor, requestID)
		if err != nil {
			return err
		}
		if report == nil {
			return fmt.Errorf("%w: no report for %s", ErrNotFound, requestID)
		}

		now := s.now().UTC()
		report.Status = entity.ReportPublished
		report.PublishedAt = &now
		report.UpdatedAt = now
		if err := s.repo.SaveReport(ctx, report); err != nil {
			return err
		}

		assignment, err := s.repo.GetAssignment(ctx, requestID)
		if err != nil {
			return err
		}
		assignment.Status = entity.AssignmentReported
		if err := s.repo.SaveAssignment(ctx, assignment); err != nil {
			return err
		}

		evt := &entity.RequestEvent{
			ID:        uuid.New(),
			RequestID: requestID,
			Type:      entity.EventReportPublished,
			Actor:     actor.UserID,
			Role:      actor.Role,
			Comment:   string(report.DocumentStatus),
			CreatedAt: now,
		}
		if err := s.eventRepo.Append(ctx, evt); err != nil {
			return fmt.Errorf("failed to append event: %w", err)
		}
		out = report
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logInfo("Report published", "request_id", requestID.String(), "sub_registrar_id", actor.UserID)
	return out, nil
}

// ownReport checks that the request is assigned to the actor and returns its
// editable report, or nil when none was saved yet
func (s *subRegistrarServiceImpl) ownReport(ctx context.Context, actor port.Actor, requestID uuid.UUID) (*entity.SubRegistrarReport, error) {
	if _, err := s.loadRequest(ctx, requestID); err != nil {
		return nil, err
	}

	assignment, err := s.repo.GetAssignment(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if assignment == nil {
		return nil, fmt.Errorf("%w: request %s is not assigned", workflow.ErrGuardFailed, requestID)
	}
	if assignment.SubRegistrarID != actor.UserID {
		return nil, fmt.Errorf("%w: request is assigned to another sub-registrar", workflow.ErrRoleNotPermitted)
	}

	report, err := s.repo.GetReport(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if report != nil && report.IsPublished() {
		return nil, fmt.Errorf("%w: report for %s is already published", ErrNotEditable, requestID)
	}
	return report, nil
}

func (s *subRegistrarServiceImpl) loadRequest(ctx context.Context, id uuid.UUID) (*entity.PaymentRequest, error) {
	req, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load request: %w", err)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return req, nil
}

func (s *subRegistrarServiceImpl) logInfo(msg string, kv ...interface{}) {
	if s.logger != nil {
		s.logger.Info(msg, kv...)
	}
}

func requireRole(actor port.Actor, allowed map[workflow.Role]bool) error {
	if err := checkActor(actor); err != nil {
		return err
	}
	if !allowed[actor.Role] {
		return fmt.Errorf("%w: %s", workflow.ErrRoleNotPermitted, actor.Role)
	}
	return nil
}
