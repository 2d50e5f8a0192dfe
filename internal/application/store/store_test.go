package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/spend-requests/internal/application/dispatcher"
	"github.com/garyjia/spend-requests/internal/domain/entity"
	"github.com/garyjia/spend-requests/internal/domain/event"
	"github.com/garyjia/spend-requests/internal/domain/workflow"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func day(offset int) *time.Time {
	d := now.AddDate(0, 0, offset)
	return &d
}

func item(status workflow.Status, amount string, due *time.Time) entity.RequestSummary {
	return entity.RequestSummary{
		ID:        uuid.New(),
		Status:    status,
		Amount:    decimal.RequireFromString(amount),
		Currency:  "RUB",
		DueDate:   due,
		CreatedBy: "alice",
		Version:   1,
		UpdatedAt: now,
	}
}

func newStore() *Store {
	return New(WithClock(func() time.Time { return now }))
}

func TestStore_UpsertGetRemove(t *testing.T) {
	s := newStore()
	a := item(workflow.StatusDraft, "100", nil)

	assert.True(t, s.Upsert(a))
	got, ok := s.Get(a.ID)
	require.True(t, ok)
	assert.Equal(t, a, got)

	assert.True(t, s.Remove(a.ID))
	assert.False(t, s.Remove(a.ID))
	_, ok = s.Get(a.ID)
	assert.False(t, ok)
}

func TestStore_UpsertIgnoresOlderCopy(t *testing.T) {
	s := newStore()
	a := item(workflow.StatusSubmitted, "100", nil)
	require.True(t, s.Upsert(a))

	a.Version = 2
	require.True(t, s.Upsert(a))

	older := a
	older.Status = workflow.StatusDraft
	older.Version = 1
	older.UpdatedAt = a.UpdatedAt.Add(-time.Minute)
	assert.False(t, s.Upsert(older))

	got, _ := s.Get(a.ID)
	assert.Equal(t, workflow.StatusSubmitted, got.Status)
}

func TestStore_UpsertOrdersByVersionNotClock(t *testing.T) {
	s := newStore()
	a := item(workflow.StatusClassified, "100", nil)
	a.Version = 3
	require.True(t, s.Upsert(a))

	// a lower version stamped later by a skewed clock is still stale
	skewed := a
	skewed.Status = workflow.StatusSubmitted
	skewed.Version = 2
	skewed.UpdatedAt = a.UpdatedAt.Add(time.Hour)
	assert.False(t, s.Upsert(skewed))

	// a higher version wins even with an earlier timestamp
	next := a
	next.Status = workflow.StatusApproved
	next.Version = 4
	next.UpdatedAt = a.UpdatedAt.Add(-time.Second)
	assert.True(t, s.Upsert(next))

	got, _ := s.Get(a.ID)
	assert.Equal(t, workflow.StatusApproved, got.Status)
	assert.Equal(t, int64(4), got.Version)
}

func TestStore_ListFilters(t *testing.T) {
	s := newStore()
	draft := item(workflow.StatusDraft, "10", day(5))
	late := item(workflow.StatusSubmitted, "20", day(-2))
	paidLate := item(workflow.StatusPaidFull, "30", day(-2))
	bobs := item(workflow.StatusSubmitted, "40", nil)
	bobs.CreatedBy = "bob"
	bobs.UpdatedAt = now.Add(time.Hour)
	s.Replace([]entity.RequestSummary{draft, late, paidLate, bobs})

	all := s.List(Filter{})
	require.Len(t, all, 4)
	assert.Equal(t, bobs.ID, all[0].ID)

	assert.Len(t, s.List(Filter{Statuses: []workflow.Status{workflow.StatusSubmitted}}), 2)
	assert.Len(t, s.List(Filter{CreatedBy: "bob"}), 1)

	overdue := s.List(Filter{Overdue: true})
	require.Len(t, overdue, 1)
	assert.Equal(t, late.ID, overdue[0].ID)
}

func TestStore_Stats(t *testing.T) {
	s := newStore()
	s.Replace([]entity.RequestSummary{
		item(workflow.StatusDraft, "10", day(1)),
		item(workflow.StatusSubmitted, "20.50", day(-1)),
		item(workflow.StatusPaidFull, "30", day(-10)),
		item(workflow.StatusPaidPartial, "5", nil),
		item(workflow.StatusCancelled, "99", nil),
	})

	st := s.Stats()
	assert.Equal(t, 5, st.Total)
	assert.Equal(t, 2, st.Active)
	assert.Equal(t, 1, st.Overdue)
	assert.Equal(t, 1, st.ByStatus[workflow.StatusDraft])
	assert.True(t, decimal.RequireFromString("30.50").Equal(st.Amounts["RUB"]))
	assert.True(t, decimal.RequireFromString("35").Equal(st.Paid["RUB"]))
}

func TestStore_Subscribe(t *testing.T) {
	s := newStore()
	var changes []Change
	unsubscribe := s.Subscribe(func(c Change) { changes = append(changes, c) })

	a := item(workflow.StatusDraft, "1", nil)
	s.Upsert(a)
	s.Remove(a.ID)
	s.Replace(nil)

	require.Len(t, changes, 3)
	assert.Equal(t, ChangeUpsert, changes[0].Kind)
	assert.Equal(t, a.ID, changes[0].ID)
	assert.Equal(t, ChangeRemove, changes[1].Kind)
	assert.Equal(t, ChangeReplace, changes[2].Kind)

	unsubscribe()
	s.Upsert(a)
	assert.Len(t, changes, 3)
}

func TestStore_SubscriberMayReadStore(t *testing.T) {
	s := newStore()
	var seen int
	s.Subscribe(func(Change) { seen = s.Len() })

	s.Upsert(item(workflow.StatusDraft, "1", nil))
	assert.Equal(t, 1, seen)
}

func TestStore_HandleEvent(t *testing.T) {
	s := newStore()
	a := item(workflow.StatusClassified, "10", nil)

	evt := event.NewEvent(event.TypeStatusChanged, a.ID, map[string]interface{}{"summary": a})
	require.NoError(t, s.Handle(context.Background(), evt))
	got, ok := s.Get(a.ID)
	require.True(t, ok)
	assert.Equal(t, workflow.StatusClassified, got.Status)

	b := item(workflow.StatusDraft, "10", nil)
	require.NoError(t, s.Handle(context.Background(), event.NewEvent(event.TypeDraftSaved, b.ID, map[string]interface{}{"summary": &b})))
	_, ok = s.Get(b.ID)
	assert.True(t, ok)

	assert.Error(t, s.Handle(context.Background(), event.NewEvent(event.TypeStatusChanged, a.ID, nil)))
	assert.Error(t, s.Handle(context.Background(), event.NewEvent(event.TypeStatusChanged, a.ID, map[string]interface{}{"summary": "x"})))
}

func TestStore_RegisterWithDispatcher(t *testing.T) {
	s := newStore()
	d := dispatcher.NewDispatcher()
	defer d.Close()
	s.Register(d)

	a := item(workflow.StatusSubmitted, "10", nil)
	for _, typ := range []event.Type{event.TypeRequestCreated, event.TypeDraftSaved, event.TypeStatusChanged} {
		assert.Len(t, d.ListHandlers(typ), 1, typ)
	}

	require.NoError(t, d.Dispatch(context.Background(), event.NewEvent(event.TypeStatusChanged, a.ID, map[string]interface{}{"summary": a})))
	_, ok := s.Get(a.ID)
	assert.True(t, ok)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := newStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a := item(workflow.StatusDraft, "1", nil)
			s.Upsert(a)
			s.List(Filter{})
			s.Stats()
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, s.Len())
}
