package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/spend-requests/internal/application/dispatcher"
	"github.com/garyjia/spend-requests/internal/application/port"
	"github.com/garyjia/spend-requests/internal/domain/entity"
	"github.com/garyjia/spend-requests/internal/domain/event"
	domainwf "github.com/garyjia/spend-requests/internal/domain/workflow"
)

// RequestNumberSequence is the sequence name used for request numbers
const RequestNumberSequence = "request_number"

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type engineImpl struct {
	requestRepo  port.RequestRepository
	historyRepo  port.HistoryRepository
	eventRepo    port.EventRepository
	sequenceRepo port.SequenceRepository
	txManager    port.TransactionManager
	dispatcher   dispatcher.Dispatcher
	authority    Authority
	logger       Logger
	now          func() time.Time
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithLogger sets the engine logger
func WithLogger(l Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = l
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	requestRepo port.RequestRepository,
	historyRepo port.HistoryRepository,
	eventRepo port.EventRepository,
	sequenceRepo port.SequenceRepository,
	txManager port.TransactionManager,
	opts ...EngineOption,
) Engine {
	e := &engineImpl{
		requestRepo:  requestRepo,
		historyRepo:  historyRepo,
		eventRepo:    eventRepo,
		sequenceRepo: sequenceRepo,
		txManager:    txManager,
		authority:    NewAuthority(),
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func (e *engineImpl) Authority() Authority {
	return e.authority
}

// Transition validates and applies cmd inside one transaction
func (e *engineImpl) Transition(ctx context.Context, cmd Command) (*entity.PaymentRequest, error) {
	var (
		updated *entity.PaymentRequest
		from    domainwf.Status
	)

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		current, err := e.requestRepo.GetByID(txCtx, cmd.RequestID)
		if err != nil {
			return fmt.Errorf("failed to load request: %w", err)
		}
		if current == nil {
			return fmt.Errorf("%w: %s", port.ErrNotFound, cmd.RequestID)
		}
		if cmd.ExpectedVersion != 0 && cmd.ExpectedVersion != current.Version {
			return fmt.Errorf("%w: have version %d, stored %d", port.ErrVersionConflict, cmd.ExpectedVersion, current.Version)
		}

		from = current.Status
		candidate := *current
		if cmd.Apply != nil {
			if err := cmd.Apply(&candidate); err != nil {
				return err
			}
		}

		to, err := e.authority.Authorize(txCtx, cmd.Actor.Role, cmd.Action, TransitionInput{
			Request: &candidate,
			Comment: cmd.Comment,
		})
		if err != nil {
			return err
		}

		now := e.now().UTC()
		candidate.Status = to
		candidate.UpdatedAt = now

		if to == domainwf.StatusSubmitted && candidate.RequestNumber == "" {
			seq, err := e.sequenceRepo.Next(txCtx, RequestNumberSequence)
			if err != nil {
				return fmt.Errorf("failed to allocate request number: %w", err)
			}
			candidate.RequestNumber = entity.FormatRequestNumber(seq)
		}
		if to == domainwf.StatusSubmitted && candidate.SubmittedAt == nil {
			candidate.SubmittedAt = &now
		}

		if err := e.requestRepo.Update(txCtx, &candidate); err != nil {
			return fmt.Errorf("failed to update request: %w", err)
		}

		entry := &entity.HistoryEntry{
			ID:         uuid.New(),
			RequestID:  candidate.ID,
			Actor:      cmd.Actor.UserID,
			Role:       cmd.Actor.Role,
			Action:     cmd.Action,
			FromStatus: from,
			ToStatus:   to,
			Comment:    cmd.Comment,
			Timestamp:  now,
		}
		if err := e.historyRepo.Append(txCtx, entry); err != nil {
			return fmt.Errorf("failed to append history: %w", err)
		}

		audit := &entity.RequestEvent{
			ID:        uuid.New(),
			RequestID: candidate.ID,
			Type:      entity.ActionEventTypes[cmd.Action],
			Actor:     cmd.Actor.UserID,
			Role:      cmd.Actor.Role,
			Comment:   cmd.Comment,
			CreatedAt: now,
		}
		if err := e.eventRepo.Append(txCtx, audit); err != nil {
			return fmt.Errorf("failed to append event: %w", err)
		}

		updated = &candidate
		return nil
	})
	if err != nil {
		if e.logger != nil && !domainwf.IsValidationError(err) && !errors.Is(err, port.ErrNotFound) {
			e.logger.Error("Transition failed",
				"request_id", cmd.RequestID.String(),
				"action", cmd.Action.String(),
				"error", err,
			)
		}
		return nil, err
	}

	history, err := e.historyRepo.ListByRequest(ctx, updated.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	updated.History = history

	if e.logger != nil {
		e.logger.Info("Request transitioned",
			"request_id", updated.ID.String(),
			"from", from.String(),
			"to", updated.Status.String(),
			"action", cmd.Action.String(),
			"actor", cmd.Actor.UserID,
		)
	}

	e.emit(ctx, updated, from, cmd)

	return updated, nil
}

func (e *engineImpl) emit(ctx context.Context, req *entity.PaymentRequest, from domainwf.Status, cmd Command) {
	if e.dispatcher == nil {
		return
	}

	payload := map[string]interface{}{
		"previous_status": from.String(),
		"new_status":      req.Status.String(),
		"action":          cmd.Action.String(),
		"actor":           cmd.Actor.UserID,
		"summary":         req.Summary(),
	}
	statusEvent := event.NewEvent(event.TypeStatusChanged, req.ID, payload)
	e.dispatcher.DispatchAsync(ctx, statusEvent)

	if req.Status.IsPaid() {
		e.dispatcher.DispatchAsync(ctx, event.NewEventWithCorrelation(event.TypeRequestPaid, req.ID, payload, statusEvent.CorrelationID))
	}
}
