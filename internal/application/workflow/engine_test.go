package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/spend-requests/internal/application/dispatcher"
	"github.com/garyjia/spend-requests/internal/application/port"
	"github.com/garyjia/spend-requests/internal/domain/entity"
	"github.com/garyjia/spend-requests/internal/domain/event"
	domainwf "github.com/garyjia/spend-requests/internal/domain/workflow"
)

// Mock implementations

type mockRequestRepo struct {
	requests  map[uuid.UUID]*entity.PaymentRequest
	updateErr error
	updates   int
}

func newMockRequestRepo(reqs ...*entity.PaymentRequest) *mockRequestRepo {
	m := &mockRequestRepo{requests: make(map[uuid.UUID]*entity.PaymentRequest)}
	for _, r := range reqs {
		m.requests[r.ID] = r
	}
	return m
}

func (m *mockRequestRepo) Create(ctx context.Context, req *entity.PaymentRequest) error {
	cp := *req
	m.requests[req.ID] = &cp
	return nil
}

func (m *mockRequestRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.PaymentRequest, error) {
	r, ok := m.requests[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *mockRequestRepo) List(ctx context.Context, filter port.RequestFilter) ([]*entity.PaymentRequest, error) {
	return nil, nil
}

func (m *mockRequestRepo) Update(ctx context.Context, req *entity.PaymentRequest) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	stored := m.requests[req.ID]
	if stored == nil || stored.Version != req.Version {
		return port.ErrVersionConflict
	}
	m.updates++
	req.Version++
	cp := *req
	m.requests[req.ID] = &cp
	return nil
}

type mockHistoryRepo struct {
	entries   []entity.HistoryEntry
	appendErr error
}

func (m *mockHistoryRepo) Append(ctx context.Context, entry *entity.HistoryEntry) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *mockHistoryRepo) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]entity.HistoryEntry, error) {
	var out []entity.HistoryEntry
	for _, e := range m.entries {
		if e.RequestID == requestID {
			out = append(out, e)
		}
	}
	return out, nil
}

type mockEventRepo struct {
	events []entity.RequestEvent
}

func (m *mockEventRepo) Append(ctx context.Context, evt *entity.RequestEvent) error {
	m.events = append(m.events, *evt)
	return nil
}

func (m *mockEventRepo) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]entity.RequestEvent, error) {
	return m.events, nil
}

func (m *mockEventRepo) Latest(ctx context.Context, requestID uuid.UUID, types ...string) (*entity.RequestEvent, error) {
	return nil, nil
}

type mockSequenceRepo struct {
	next int64
}

func (m *mockSequenceRepo) Next(ctx context.Context, name string) (int64, error) {
	m.next++
	return m.next, nil
}

// mockTxManager applies fn and restores the repositories when it fails
type mockTxManager struct {
	repo *mockRequestRepo
	hist *mockHistoryRepo
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	snapshot := make(map[uuid.UUID]*entity.PaymentRequest, len(m.repo.requests))
	for k, v := range m.repo.requests {
		snapshot[k] = v
	}
	entries := append([]entity.HistoryEntry(nil), m.hist.entries...)

	if err := fn(ctx); err != nil {
		m.repo.requests = snapshot
		m.hist.entries = entries
		return err
	}
	return nil
}

type mockDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (m *mockDispatcher) Subscribe(eventType event.Type, handler dispatcher.Handler) {}

func (m *mockDispatcher) SubscribeNamed(eventType event.Type, name string, handler dispatcher.Handler) {
}

func (m *mockDispatcher) Unsubscribe(eventType event.Type, name string) {}

func (m *mockDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	m.DispatchAsync(ctx, evt)
	return nil
}

func (m *mockDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *mockDispatcher) ListHandlers(eventType event.Type) []dispatcher.HandlerInfo {
	return nil
}

func (m *mockDispatcher) Close() error {
	return nil
}

type fixture struct {
	engine Engine
	repo   *mockRequestRepo
	hist   *mockHistoryRepo
	events *mockEventRepo
	seq    *mockSequenceRepo
	disp   *mockDispatcher
}

func newFixture(reqs ...*entity.PaymentRequest) *fixture {
	f := &fixture{
		repo:   newMockRequestRepo(reqs...),
		hist:   &mockHistoryRepo{},
		events: &mockEventRepo{},
		seq:    &mockSequenceRepo{},
		disp:   &mockDispatcher{},
	}
	fixed := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	f.engine = NewEngine(f.repo, f.hist, f.events, f.seq,
		&mockTxManager{repo: f.repo, hist: f.hist},
		WithDispatcher(f.disp),
		WithClock(func() time.Time { return fixed }),
	)
	return f
}

func draftRequest(amount int64) *entity.PaymentRequest {
	due := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	return &entity.PaymentRequest{
		ID:        uuid.New(),
		Version:   1,
		Status:    domainwf.StatusDraft,
		CreatedBy: "u-exec",
		RequestFields: entity.RequestFields{
			Amount:         decimal.NewFromInt(amount),
			Currency:       "RUB",
			DueDate:        &due,
			CounterpartyID: "cp-1",
		},
	}
}

var (
	executor    = port.Actor{UserID: "u-exec", Role: domainwf.RoleExecutor}
	registrar   = port.Actor{UserID: "u-reg", Role: domainwf.RoleRegistrar}
	distributor = port.Actor{UserID: "u-dist", Role: domainwf.RoleDistributor}
	treasurer   = port.Actor{UserID: "u-treas", Role: domainwf.RoleTreasurer}
)

func TestEngine_SubmitAssignsRequestNumberOnce(t *testing.T) {
	req := draftRequest(100000)
	f := newFixture(req)
	ctx := context.Background()

	submitted, err := f.engine.Transition(ctx, Command{RequestID: req.ID, Actor: executor, Action: domainwf.ActionSubmit})
	require.NoError(t, err)
	assert.Equal(t, domainwf.StatusSubmitted, submitted.Status)
	assert.Equal(t, "REQ-000001", submitted.RequestNumber)
	assert.Equal(t, int64(2), submitted.Version)
	require.NotNil(t, submitted.SubmittedAt)

	splits := []entity.ExpenseSplit{{CategoryID: "rent", Amount: decimal.NewFromInt(100000)}}
	classified, err := f.engine.Transition(ctx, Command{
		RequestID: req.ID, Actor: registrar, Action: domainwf.ActionClassify,
		Apply: func(r *entity.PaymentRequest) error { r.ExpenseSplits = splits; return nil },
	})
	require.NoError(t, err)

	returned, err := f.engine.Transition(ctx, Command{RequestID: req.ID, Actor: registrar, Action: domainwf.ActionReturn, Comment: "wrong category"})
	require.NoError(t, err)

	resubmitted, err := f.engine.Transition(ctx, Command{RequestID: req.ID, Actor: executor, Action: domainwf.ActionResubmit})
	require.NoError(t, err)

	for _, r := range []*entity.PaymentRequest{classified, returned, resubmitted} {
		assert.Equal(t, "REQ-000001", r.RequestNumber)
	}
	assert.Equal(t, int64(1), f.seq.next, "sequence should be drawn exactly once")
	assert.Len(t, resubmitted.History, 4)
}

func TestEngine_ClassifyScenario(t *testing.T) {
	req := draftRequest(100000)
	req.Status = domainwf.StatusSubmitted
	f := newFixture(req)
	ctx := context.Background()

	_, err := f.engine.Transition(ctx, Command{RequestID: req.ID, Actor: registrar, Action: domainwf.ActionClassify})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "splits must total 100000")
	assert.Equal(t, 0, f.repo.updates)
	assert.Empty(t, f.hist.entries)

	stored, _ := f.repo.GetByID(ctx, req.ID)
	assert.Equal(t, domainwf.StatusSubmitted, stored.Status)

	classified, err := f.engine.Transition(ctx, Command{
		RequestID: req.ID, Actor: registrar, Action: domainwf.ActionClassify,
		Apply: func(r *entity.PaymentRequest) error {
			r.ExpenseSplits = []entity.ExpenseSplit{{CategoryID: "rent", Amount: decimal.NewFromInt(100000)}}
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domainwf.StatusClassified, classified.Status)
}

func TestEngine_DistributorReturnScenario(t *testing.T) {
	req := draftRequest(5000)
	req.Status = domainwf.StatusClassified
	req.RequestNumber = "REQ-000042"
	f := newFixture(req)

	returned, err := f.engine.Transition(context.Background(), Command{
		RequestID: req.ID, Actor: distributor, Action: domainwf.ActionReturn, Comment: "missing invoice",
	})
	require.NoError(t, err)
	assert.Equal(t, domainwf.StatusReturned, returned.Status)
	require.Len(t, returned.History, 1)
	assert.Equal(t, domainwf.ActionReturn, returned.History[0].Action)
	assert.Equal(t, "missing invoice", returned.History[0].Comment)
	require.Len(t, f.events.events, 1)
	assert.Equal(t, entity.EventReturned, f.events.events[0].Type)

	auth := f.engine.Authority()
	assert.Equal(t, []domainwf.Action{domainwf.ActionResubmit}, auth.PermittedActions(returned.Status, domainwf.RoleExecutor))
}

func TestEngine_IllegalTransitionLeavesNoTrace(t *testing.T) {
	req := draftRequest(100)
	f := newFixture(req)

	_, err := f.engine.Transition(context.Background(), Command{RequestID: req.ID, Actor: treasurer, Action: domainwf.ActionPayFull})
	require.Error(t, err)
	assert.True(t, domainwf.IsValidationError(err))
	assert.Equal(t, 0, f.repo.updates)
	assert.Empty(t, f.hist.entries)
	assert.Empty(t, f.disp.events)
}

func TestEngine_NotFoundAndVersionConflict(t *testing.T) {
	req := draftRequest(100)
	f := newFixture(req)

	_, err := f.engine.Transition(context.Background(), Command{RequestID: uuid.New(), Actor: executor, Action: domainwf.ActionSubmit})
	assert.ErrorIs(t, err, port.ErrNotFound)

	_, err = f.engine.Transition(context.Background(), Command{RequestID: req.ID, Actor: executor, Action: domainwf.ActionSubmit, ExpectedVersion: 7})
	assert.ErrorIs(t, err, port.ErrVersionConflict)
}

func TestEngine_HistoryFailureRollsBack(t *testing.T) {
	req := draftRequest(100)
	f := newFixture(req)
	f.hist.appendErr = errors.New("disk full")

	_, err := f.engine.Transition(context.Background(), Command{RequestID: req.ID, Actor: executor, Action: domainwf.ActionSubmit})
	require.Error(t, err)

	stored, _ := f.repo.GetByID(context.Background(), req.ID)
	assert.Equal(t, domainwf.StatusDraft, stored.Status)
	assert.Empty(t, stored.RequestNumber)
}

func TestEngine_EmitsStatusAndPaidEvents(t *testing.T) {
	req := draftRequest(700)
	req.Status = domainwf.StatusApprovedForPayment
	f := newFixture(req)

	_, err := f.engine.Transition(context.Background(), Command{
		RequestID: req.ID, Actor: treasurer, Action: domainwf.ActionPayFull,
		Apply: func(r *entity.PaymentRequest) error {
			r.PaymentExecution = &entity.PaymentExecution{
				ActualAmount: decimal.NewFromInt(700),
				ExecutedAt:   time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC),
				ExchangeRate: decimal.NewFromInt(1),
			}
			return nil
		},
	})
	require.NoError(t, err)

	require.Len(t, f.disp.events, 2)
	assert.Equal(t, event.TypeStatusChanged, f.disp.events[0].Type)
	assert.Equal(t, "paid-full", f.disp.events[0].GetPayloadString("new_status"))
	assert.Equal(t, event.TypeRequestPaid, f.disp.events[1].Type)
	assert.Equal(t, f.disp.events[0].CorrelationID, f.disp.events[1].CorrelationID)
}
