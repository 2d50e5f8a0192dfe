package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garyjia/spend-requests/internal/application/dispatcher"
	"github.com/garyjia/spend-requests/internal/application/port"
	appwf "github.com/garyjia/spend-requests/internal/application/workflow"
	"github.com/garyjia/spend-requests/internal/domain/entity"
	"github.com/garyjia/spend-requests/internal/domain/event"
	"github.com/garyjia/spend-requests/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// RequestService is the server side of the persistence boundary
type RequestService interface {
	port.RequestAPI

	// RejectionReason returns the newest refusal event, or nil when there is none
	RejectionReason(ctx context.Context, id uuid.UUID) (*entity.RequestEvent, error)

	// Summaries lists every request as a summary row
	Summaries(ctx context.Context) ([]entity.RequestSummary, error)

	// ExportRegister renders the requests awaiting payment
	ExportRegister(ctx context.Context) ([]byte, error)
}

// registerStatuses are the statuses listed on the payment register
var registerStatuses = []workflow.Status{workflow.StatusInRegister, workflow.StatusApprovedForPayment}

type classifyInput struct {
	Splits []entity.ExpenseSplit `json:"splits" validate:"dive"`
}

var maxVATRate = decimal.NewFromInt(100)

var decisionActions = map[port.DistributorDecision]workflow.Action{
	port.DecisionApprove:         workflow.ActionApprove,
	port.DecisionApproveOnBehalf: workflow.ActionApproveOnBehalf,
	port.DecisionDecline:         workflow.ActionDecline,
	port.DecisionReturn:          workflow.ActionReturn,
}

type requestServiceImpl struct {
	requestRepo port.RequestRepository
	historyRepo port.HistoryRepository
	eventRepo   port.EventRepository
	txManager   port.TransactionManager
	engine      appwf.Engine
	exporter    port.RegisterExporter
	dispatcher  dispatcher.Dispatcher
	logger      Logger
	now         func() time.Time
}

var _ RequestService = (*requestServiceImpl)(nil)

// Option configures the request service
type Option func(*requestServiceImpl)

// WithDispatcher sets the dispatcher that receives created and draft-saved events
func WithDispatcher(d dispatcher.Dispatcher) Option {
	return func(s *requestServiceImpl) {
		s.dispatcher = d
	}
}

// WithExporter sets the payment register exporter
func WithExporter(e port.RegisterExporter) Option {
	return func(s *requestServiceImpl) {
		s.exporter = e
	}
}

// WithLogger sets the service logger
func WithLogger(l Logger) Option {
	return func(s *requestServiceImpl) {
		s.logger = l
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *requestServiceImpl) {
		s.now = now
	}
}

// NewRequestService creates a new RequestService
func NewRequestService(
	requestRepo port.RequestRepository,
	historyRepo port.HistoryRepository,
	eventRepo port.EventRepository,
	txManager port.TransactionManager,
	engine appwf.Engine,
	opts ...Option,
) RequestService {
	s := &requestServiceImpl{
		requestRepo: requestRepo,
		historyRepo: historyRepo,
		eventRepo:   eventRepo,
		txManager:   txManager,
		engine:      engine,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateDraft persists a new draft owned by the actor
func (s *requestServiceImpl) CreateDraft(ctx context.Context, actor port.Actor, fields entity.RequestFields) (*entity.PaymentRequest, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	if actor.Role != workflow.RoleExecutor {
		return nil, fmt.Errorf("%w: %s cannot create requests", workflow.ErrRoleNotPermitted, actor.Role)
	}
	if err := validateFields(fields); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	req := &entity.PaymentRequest{
		ID:            uuid.New(),
		Version:       1,
		Status:        workflow.StatusDraft,
		RequestFields: fields,
		CreatedBy:     actor.UserID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	entry := entity.HistoryEntry{
		ID:        uuid.New(),
		RequestID: req.ID,
		Actor:     actor.UserID,
		Role:      actor.Role,
		Action:    workflow.ActionCreate,
		ToStatus:  workflow.StatusDraft,
		Timestamp: now,
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.requestRepo.Create(txCtx, req); err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		if err := s.historyRepo.Append(txCtx, &entry); err != nil {
			return fmt.Errorf("failed to append history: %w", err)
		}
		return s.audit(txCtx, req.ID, entity.EventCreated, actor, "")
	})
	if err != nil {
		s.logError("Failed to create draft", err, "actor", actor.UserID)
		return nil, err
	}

	req.History = []entity.HistoryEntry{entry}
	s.logInfo("Draft created", "request_id", req.ID.String(), "actor", actor.UserID)
	s.emit(ctx, event.TypeRequestCreated, req)

	return req, nil
}

// UpdateDraft replaces the requester-editable fields of a draft or returned request
func (s *requestServiceImpl) UpdateDraft(ctx context.Context, actor port.Actor, id uuid.UUID, fields entity.RequestFields) (*entity.PaymentRequest, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	if err := validateFields(fields); err != nil {
		return nil, err
	}

	var updated *entity.PaymentRequest
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		current, err := s.load(txCtx, id)
		if err != nil {
			return err
		}
		if current.CreatedBy != actor.UserID {
			return fmt.Errorf("%w: only the author may edit a draft", workflow.ErrRoleNotPermitted)
		}
		if current.Status != workflow.StatusDraft && current.Status != workflow.StatusReturned {
			return fmt.Errorf("%w: %s", ErrNotEditable, current.Status)
		}
		if v := port.ExpectedVersion(ctx); v != 0 && v != current.Version {
			return fmt.Errorf("%w: have version %d, stored %d", ErrVersionConflict, v, current.Version)
		}

		candidate := *current
		candidate.RequestFields = fields
		candidate.UpdatedAt = s.now().UTC()
		if err := s.requestRepo.Update(txCtx, &candidate); err != nil {
			return fmt.Errorf("failed to update request: %w", err)
		}
		if err := s.audit(txCtx, id, entity.EventUpdated, actor, ""); err != nil {
			return err
		}
		updated = &candidate
		return nil
	})
	if err != nil {
		if !isExpected(err) {
			s.logError("Failed to update draft", err, "request_id", id.String())
		}
		return nil, err
	}

	if err := s.attachHistory(ctx, updated); err != nil {
		return nil, err
	}
	s.emit(ctx, event.TypeDraftSaved, updated)

	return updated, nil
}

// Submit sends a draft to the registrar, or resubmits a returned request
func (s *requestServiceImpl) Submit(ctx context.Context, actor port.Actor, id uuid.UUID) (*entity.PaymentRequest, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	action := workflow.ActionSubmit
	if current.Status == workflow.StatusReturned {
		action = workflow.ActionResubmit
	}

	return s.transition(ctx, appwf.Command{
		RequestID: id,
		Actor:     actor,
		Action:    action,
		Apply: func(req *entity.PaymentRequest) error {
			if req.CreatedBy != actor.UserID {
				return fmt.Errorf("%w: only the author may submit", workflow.ErrRoleNotPermitted)
			}
			return nil
		},
	})
}

// Classify records expense splits and moves a submitted request on to the distributor
func (s *requestServiceImpl) Classify(ctx context.Context, actor port.Actor, id uuid.UUID, splits []entity.ExpenseSplit, comment string) (*entity.PaymentRequest, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	if err := validateStruct(classifyInput{Splits: splits}); err != nil {
		return nil, err
	}

	return s.transition(ctx, appwf.Command{
		RequestID: id,
		Actor:     actor,
		Action:    workflow.ActionClassify,
		Comment:   comment,
		Apply: func(req *entity.PaymentRequest) error {
			req.ExpenseSplits = append([]entity.ExpenseSplit(nil), splits...)
			return nil
		},
	})
}

// DistributorAction applies the distributor's decision on a classified request
func (s *requestServiceImpl) DistributorAction(ctx context.Context, actor port.Actor, id uuid.UUID, in port.DistributorActionInput) (*entity.PaymentRequest, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	action, ok := decisionActions[in.Action]
	if !ok {
		return nil, invalid("action", "oneof")
	}

	return s.transition(ctx, appwf.Command{
		RequestID: id,
		Actor:     actor,
		Action:    action,
		Comment:   in.Comment,
		Apply: func(req *entity.PaymentRequest) error {
			if len(in.Allocations) > 0 {
				req.PaymentAllocations = append([]entity.PaymentAllocation(nil), in.Allocations...)
			}
			if in.Priority != "" {
				req.Priority = in.Priority
			}
			return nil
		},
	})
}

// UpdateStatus moves a request to a target status through the single action that reaches it
func (s *requestServiceImpl) UpdateStatus(ctx context.Context, actor port.Actor, id uuid.UUID, in port.StatusUpdateInput) (*entity.PaymentRequest, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if !in.Status.IsValid() {
		return nil, invalid("status", "oneof")
	}
	if in.Execution != nil && !in.Status.IsPaid() {
		return nil, invalid("execution", "paid_only")
	}

	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	action, err := s.engine.Authority().ActionFor(current.Status, actor.Role, in.Status)
	if err != nil {
		return nil, err
	}

	return s.transition(ctx, appwf.Command{
		RequestID: id,
		Actor:     actor,
		Action:    action,
		Comment:   in.Comment,
		Apply: func(req *entity.PaymentRequest) error {
			if req.Status != current.Status {
				return fmt.Errorf("%w: status changed to %s", ErrVersionConflict, req.Status)
			}
			if in.Execution != nil {
				exec := *in.Execution
				req.PaymentExecution = &exec
			}
			return nil
		},
	})
}

// GetByID returns a request with its history
func (s *requestServiceImpl) GetByID(ctx context.Context, id uuid.UUID) (*entity.PaymentRequest, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.attachHistory(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// GetAll lists requests matching filter
func (s *requestServiceImpl) GetAll(ctx context.Context, filter port.ListFilter) ([]*entity.PaymentRequest, error) {
	for _, st := range filter.Statuses {
		if !st.IsValid() {
			return nil, invalid("status", "oneof")
		}
	}

	now := s.now()
	repoFilter := port.RequestFilter{
		Statuses:  filter.Statuses,
		CreatedBy: filter.CreatedBy,
	}
	if filter.Overdue {
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		repoFilter.DueBefore = &today
	}

	reqs, err := s.requestRepo.List(ctx, repoFilter)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	if !filter.Overdue {
		return reqs, nil
	}

	out := reqs[:0]
	for _, r := range reqs {
		if r.Summary().IsOverdue(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

// GetEvents returns the audit trail of a request, oldest first
func (s *requestServiceImpl) GetEvents(ctx context.Context, id uuid.UUID) ([]entity.RequestEvent, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	events, err := s.eventRepo.ListByRequest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

// RejectionReason returns the newest refusal event, or nil
func (s *requestServiceImpl) RejectionReason(ctx context.Context, id uuid.UUID) (*entity.RequestEvent, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	evt, err := s.eventRepo.Latest(ctx, id, entity.EventRejected, entity.EventDeclined, entity.EventReturned)
	if err != nil {
		return nil, fmt.Errorf("failed to load rejection reason: %w", err)
	}
	return evt, nil
}

// Summaries lists every request as a summary row
func (s *requestServiceImpl) Summaries(ctx context.Context) ([]entity.RequestSummary, error) {
	reqs, err := s.requestRepo.List(ctx, port.RequestFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	out := make([]entity.RequestSummary, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, r.Summary())
	}
	return out, nil
}

// ExportRegister renders in-register and approved-for-payment requests
func (s *requestServiceImpl) ExportRegister(ctx context.Context) ([]byte, error) {
	if s.exporter == nil {
		return nil, errors.New("register exporter is not configured")
	}
	reqs, err := s.requestRepo.List(ctx, port.RequestFilter{Statuses: registerStatuses})
	if err != nil {
		return nil, fmt.Errorf("failed to list register: %w", err)
	}
	data, err := s.exporter.Export(ctx, reqs, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to export register: %w", err)
	}
	s.logInfo("Register exported", "requests", len(reqs), "bytes", len(data))
	return data, nil
}

func (s *requestServiceImpl) transition(ctx context.Context, cmd appwf.Command) (*entity.PaymentRequest, error) {
	cmd.ExpectedVersion = port.ExpectedVersion(ctx)
	return s.engine.Transition(ctx, cmd)
}

func (s *requestServiceImpl) load(ctx context.Context, id uuid.UUID) (*entity.PaymentRequest, error) {
	req, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load request: %w", err)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return req, nil
}

func (s *requestServiceImpl) attachHistory(ctx context.Context, req *entity.PaymentRequest) error {
	history, err := s.historyRepo.ListByRequest(ctx, req.ID)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	req.History = history
	return nil
}

func (s *requestServiceImpl) audit(ctx context.Context, id uuid.UUID, typ string, actor port.Actor, comment string) error {
	evt := &entity.RequestEvent{
		ID:        uuid.New(),
		RequestID: id,
		Type:      typ,
		Actor:     actor.UserID,
		Role:      actor.Role,
		Comment:   comment,
		CreatedAt: s.now().UTC(),
	}
	if err := s.eventRepo.Append(ctx, evt); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (s *requestServiceImpl) emit(ctx context.Context, typ event.Type, req *entity.PaymentRequest) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.DispatchAsync(ctx, event.NewEvent(typ, req.ID, map[string]interface{}{
		"status":  req.Status.String(),
		"version": req.Version,
		"summary": req.Summary(),
	}))
}

func (s *requestServiceImpl) logInfo(msg string, kv ...interface{}) {
	if s.logger != nil {
		s.logger.Info(msg, kv...)
	}
}

func (s *requestServiceImpl) logError(msg string, err error, kv ...interface{}) {
	if s.logger != nil {
		s.logger.Error(msg, append(kv, "error", err)...)
	}
}

func checkActor(actor port.Actor) error {
	if actor.UserID == "" {
		return invalid("user_id", "required")
	}
	if !actor.Role.IsValid() {
		return fmt.Errorf("%w: %q", workflow.ErrInvalidRole, actor.Role)
	}
	return nil
}

func validateFields(fields entity.RequestFields) error {
	if fields.Amount.IsNegative() {
		return invalid("amount", "gte")
	}
	if fields.VATRate.IsNegative() || fields.VATRate.GreaterThan(maxVATRate) {
		return invalid("vat_rate", "range")
	}
	return validateStruct(fields)
}

// isExpected reports errors that are normal outcomes of user input
func isExpected(err error) bool {
	return workflow.IsValidationError(err) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotEditable) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrVersionConflict)
}
