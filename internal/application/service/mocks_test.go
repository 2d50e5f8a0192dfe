package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/spend-requests/internal/application/dispatcher"
	"github.com/garyjia/spend-requests/internal/application/port"
	"github.com/garyjia/spend-requests/internal/domain/entity"
	"github.com/garyjia/spend-requests/internal/domain/event"
)

// Mock repositories

type mockRequestRepo struct {
	mu        sync.Mutex
	requests  map[uuid.UUID]*entity.PaymentRequest
	createErr error
	listFunc  func(filter port.RequestFilter) ([]*entity.PaymentRequest, error)
}

func newMockRequestRepo() *mockRequestRepo {
	return &mockRequestRepo{requests: make(map[uuid.UUID]*entity.PaymentRequest)}
}

func (m *mockRequestRepo) Create(ctx context.Context, req *entity.PaymentRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cp := *req
	m.requests[req.ID] = &cp
	return nil
}

func (m *mockRequestRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.PaymentRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *mockRequestRepo) List(ctx context.Context, filter port.RequestFilter) ([]*entity.PaymentRequest, error) {
	if m.listFunc != nil {
		return m.listFunc(filter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*entity.PaymentRequest
	for _, r := range m.requests {
		if len(filter.Statuses) > 0 {
			match := false
			for _, st := range filter.Statuses {
				match = match || r.Status == st
			}
			if !match {
				continue
			}
		}
		if filter.CreatedBy != "" && r.CreatedBy != filter.CreatedBy {
			continue
		}
		if filter.DueBefore != nil && (r.DueDate == nil || !r.DueDate.Before(*filter.DueBefore)) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *mockRequestRepo) Update(ctx context.Context, req *entity.PaymentRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.requests[req.ID]
	if stored == nil || stored.Version != req.Version {
		return port.ErrVersionConflict
	}
	req.Version++
	cp := *req
	m.requests[req.ID] = &cp
	return nil
}

func (m *mockRequestRepo) put(req *entity.PaymentRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *req
	m.requests[req.ID] = &cp
}

type mockHistoryRepo struct {
	mu      sync.Mutex
	entries []entity.HistoryEntry
}

func (m *mockHistoryRepo) Append(ctx context.Context, entry *entity.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *mockHistoryRepo) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]entity.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.HistoryEntry
	for _, e := range m.entries {
		if e.RequestID == requestID {
			out = append(out, e)
		}
	}
	return out, nil
}

type mockEventRepo struct {
	mu     sync.Mutex
	events []entity.RequestEvent
}

func (m *mockEventRepo) Append(ctx context.Context, evt *entity.RequestEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *evt)
	return nil
}

func (m *mockEventRepo) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]entity.RequestEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.RequestEvent
	for _, e := range m.events {
		if e.RequestID == requestID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockEventRepo) Latest(ctx context.Context, requestID uuid.UUID, types ...string) (*entity.RequestEvent, error) {
	events, _ := m.ListByRequest(ctx, requestID)
	for i := len(events) - 1; i >= 0; i-- {
		for _, t := range types {
			if events[i].Type == t {
				e := events[i]
				return &e, nil
			}
		}
	}
	return nil, nil
}

type mockSequenceRepo struct {
	mu   sync.Mutex
	next int64
}

func (m *mockSequenceRepo) Next(ctx context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	return m.next, nil
}

// mockTxManager serializes transactions
type mockTxManager struct {
	mu sync.Mutex
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx)
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

func (m *mockDispatcher) types() []event.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]event.Type, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

type mockExporter struct {
	got         []*entity.PaymentRequest
	generatedAt time.Time
}

func (m *mockExporter) Export(ctx context.Context, requests []*entity.PaymentRequest, generatedAt time.Time) ([]byte, error) {
	m.got = requests
	m.generatedAt = generatedAt
	return []byte("xlsx"), nil
}

type mockSubRegistrarRepo struct {
	mu          sync.Mutex
	assignments map[uuid.UUID]entity.SubRegistrarAssignment
	reports     map[uuid.UUID]entity.SubRegistrarReport
	order       []uuid.UUID
}

func newMockSubRegistrarRepo() *mockSubRegistrarRepo {
	return &mockSubRegistrarRepo{
		assignments: make(map[uuid.UUID]entity.SubRegistrarAssignment),
		reports:     make(map[uuid.UUID]entity.SubRegistrarReport),
	}
}

func (m *mockSubRegistrarRepo) SaveAssignment(ctx context.Context, a *entity.SubRegistrarAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if _, ok := m.assignments[a.RequestID]; !ok {
		m.order = append(m.order, a.RequestID)
	}
	m.assignments[a.RequestID] = *a
	return nil
}

func (m *mockSubRegistrarRepo) GetAssignment(ctx context.Context, requestID uuid.UUID) (*entity.SubRegistrarAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[requestID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *mockSubRegistrarRepo) ListAssignments(ctx context.Context, subRegistrarID string, limit, offset int) ([]entity.SubRegistrarAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.SubRegistrarAssignment
	for _, id := range m.order {
		a := m.assignments[id]
		if subRegistrarID == "" || a.SubRegistrarID == subRegistrarID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockSubRegistrarRepo) SaveReport(ctx context.Context, r *entity.SubRegistrarReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	m.reports[r.RequestID] = *r
	return nil
}

func (m *mockSubRegistrarRepo) GetReport(ctx context.Context, requestID uuid.UUID) (*entity.SubRegistrarReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[requestID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}
