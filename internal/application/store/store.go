// Package store keeps an in-memory, event-fed view of request summaries.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garyjia/spend-requests/internal/application/dispatcher"
	"github.com/garyjia/spend-requests/internal/domain/entity"
	"github.com/garyjia/spend-requests/internal/domain/event"
	"github.com/garyjia/spend-requests/internal/domain/workflow"
)

// ChangeKind describes a store mutation
type ChangeKind string

const (
	ChangeReplace ChangeKind = "replace"
	ChangeUpsert  ChangeKind = "upsert"
	ChangeRemove  ChangeKind = "remove"
)

// Change is delivered to subscribers after each mutation
type Change struct {
	Kind    ChangeKind
	ID      uuid.UUID
	Summary *entity.RequestSummary
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Statuses  []workflow.Status
	CreatedBy string
	Overdue   bool
}

// Stats aggregates the current contents
type Stats struct {
	Total    int                        `json:"total"`
	Active   int                        `json:"active"`
	Overdue  int                        `json:"overdue"`
	ByStatus map[workflow.Status]int    `json:"by_status"`
	Amounts  map[string]decimal.Decimal `json:"amounts_by_currency"`
	Paid     map[string]decimal.Decimal `json:"paid_by_currency"`
}

// Store holds request summaries keyed by id
type Store struct {
	mu      sync.RWMutex
	items   map[uuid.UUID]entity.RequestSummary
	subs    map[int]func(Change)
	nextSub int
	now     func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the clock used for overdue checks
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty store
func New(opts ...Option) *Store {
	s := &Store{
		items: make(map[uuid.UUID]entity.RequestSummary),
		subs:  make(map[int]func(Change)),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Replace swaps the whole content
func (s *Store) Replace(items []entity.RequestSummary) {
	s.mu.Lock()
	s.items = make(map[uuid.UUID]entity.RequestSummary, len(items))
	for _, item := range items {
		s.items[item.ID] = item
	}
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeReplace})
}

// Upsert stores item unless a copy with a higher version is already held. It
// reports whether the store changed.
func (s *Store) Upsert(item entity.RequestSummary) bool {
	s.mu.Lock()
	if cur, ok := s.items[item.ID]; ok && cur.Version > item.Version {
		s.mu.Unlock()
		return false
	}
	s.items[item.ID] = item
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeUpsert, ID: item.ID, Summary: &item})
	return true
}

// Remove drops an item
func (s *Store) Remove(id uuid.UUID) bool {
	s.mu.Lock()
	_, ok := s.items[id]
	delete(s.items, id)
	s.mu.Unlock()

	if ok {
		s.notify(Change{Kind: ChangeRemove, ID: id})
	}
	return ok
}

// Get returns one item
func (s *Store) Get(id uuid.UUID) (entity.RequestSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	return item, ok
}

// List returns the matching items, most recently updated first
func (s *Store) List(f Filter) []entity.RequestSummary {
	now := s.now()

	s.mu.RLock()
	out := make([]entity.RequestSummary, 0, len(s.items))
	for _, item := range s.items {
		if matches(item, f, now) {
			out = append(out, item)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func matches(item entity.RequestSummary, f Filter, now time.Time) bool {
	if f.CreatedBy != "" && item.CreatedBy != f.CreatedBy {
		return false
	}
	if f.Overdue && !item.IsOverdue(now) {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, st := range f.Statuses {
		if item.Status == st {
			return true
		}
	}
	return false
}

// Stats aggregates counts and amounts
func (s *Store) Stats() Stats {
	now := s.now()
	st := Stats{
		ByStatus: make(map[workflow.Status]int),
		Amounts:  make(map[string]decimal.Decimal),
		Paid:     make(map[string]decimal.Decimal),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.items {
		st.Total++
		st.ByStatus[item.Status]++
		if !item.Status.IsTerminal() {
			st.Active++
			st.Amounts[item.Currency] = st.Amounts[item.Currency].Add(item.Amount)
		}
		if item.IsOverdue(now) {
			st.Overdue++
		}
		if item.Status.IsPaid() {
			st.Paid[item.Currency] = st.Paid[item.Currency].Add(item.Amount)
		}
	}
	return st
}

// Len returns the number of items held
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Subscribe registers fn for every change. The returned func unregisters it.
// fn runs on the mutating goroutine after the store lock is released.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify(c Change) {
	s.mu.RLock()
	subs := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.RUnlock()

	for _, fn := range subs {
		fn(c)
	}
}

// Handle applies a request event carrying a summary payload
func (s *Store) Handle(_ context.Context, evt *event.Event) error {
	raw, ok := evt.GetPayload("summary")
	if !ok {
		return fmt.Errorf("event %s for %s has no summary", evt.Type, evt.RequestID)
	}

	var summary entity.RequestSummary
	switch v := raw.(type) {
	case entity.RequestSummary:
		summary = v
	case *entity.RequestSummary:
		if v == nil {
			return fmt.Errorf("event %s for %s has a nil summary", evt.Type, evt.RequestID)
		}
		summary = *v
	default:
		return fmt.Errorf("event %s for %s has summary of type %T", evt.Type, evt.RequestID, raw)
	}

	s.Upsert(summary)
	return nil
}

// Register subscribes the store to every event that carries a request summary
func (s *Store) Register(d dispatcher.Dispatcher) {
	for _, t := range []event.Type{event.TypeRequestCreated, event.TypeDraftSaved, event.TypeStatusChanged} {
		d.SubscribeNamed(t, "store."+string(t), s.Handle)
	}
}
