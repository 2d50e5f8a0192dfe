package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/spend-requests/internal/domain/event"
)

type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *mockLogger) ErrorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

func newEvent(t event.Type) *event.Event {
	return event.NewEvent(t, uuid.New(), nil)
}

func TestSubscribe_GeneratesUniqueNames(t *testing.T) {
	d := NewDispatcher()
	noop := func(ctx context.Context, evt *event.Event) error { return nil }

	d.Subscribe(event.TypeStatusChanged, noop)
	d.Subscribe(event.TypeStatusChanged, noop)
	d.Subscribe(event.TypeDraftSaved, noop)

	handlers := d.ListHandlers(event.TypeStatusChanged)
	require.Len(t, handlers, 2)
	assert.NotEqual(t, handlers[0].Name, handlers[1].Name)
	assert.Nil(t, handlers[0].Handler, "ListHandlers should not expose handler funcs")
}

func TestUnsubscribe(t *testing.T) {
	d := NewDispatcher()
	var calls int32
	d.SubscribeNamed(event.TypeStatusChanged, "store", func(ctx context.Context, evt *event.Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	d.Unsubscribe(event.TypeStatusChanged, "store")

	require.NoError(t, d.Dispatch(context.Background(), newEvent(event.TypeStatusChanged)))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestDispatch_RunsAllHandlersAndJoinsErrors(t *testing.T) {
	logger := &mockLogger{}
	d := NewDispatcher(WithLogger(logger))

	var order []string
	boom := errors.New("boom")
	d.SubscribeNamed(event.TypeStatusChanged, "first", func(ctx context.Context, evt *event.Event) error {
		order = append(order, "first")
		return boom
	})
	d.SubscribeNamed(event.TypeStatusChanged, "second", func(ctx context.Context, evt *event.Event) error {
		order = append(order, "second")
		panic("bad handler")
	})
	d.SubscribeNamed(event.TypeStatusChanged, "third", func(ctx context.Context, evt *event.Event) error {
		order = append(order, "third")
		return nil
	})

	err := d.Dispatch(context.Background(), newEvent(event.TypeStatusChanged))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "handler panic: bad handler")
	assert.Equal(t, []string{"first", "second", "third"}, order)
	assert.Equal(t, 2, logger.ErrorCount())
}

func TestDispatchAsync_SurvivesCallerCancellation(t *testing.T) {
	d := NewDispatcher()

	done := make(chan error, 1)
	d.Subscribe(event.TypeStatusChanged, func(ctx context.Context, evt *event.Event) error {
		time.Sleep(10 * time.Millisecond)
		done <- ctx.Err()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	d.DispatchAsync(ctx, newEvent(event.TypeStatusChanged))
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("async handler did not run")
	}
	require.NoError(t, d.Close())
}

func TestClose(t *testing.T) {
	logger := &mockLogger{}
	d := NewDispatcher(WithLogger(logger))

	var finished atomic.Bool
	d.Subscribe(event.TypeRequestCreated, func(ctx context.Context, evt *event.Event) error {
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
		return nil
	})

	d.DispatchAsync(context.Background(), newEvent(event.TypeRequestCreated))
	require.NoError(t, d.Close())
	assert.True(t, finished.Load(), "Close should wait for async handlers")

	assert.ErrorIs(t, d.Close(), ErrClosed)
	assert.ErrorIs(t, d.Dispatch(context.Background(), newEvent(event.TypeRequestCreated)), ErrClosed)

	d.DispatchAsync(context.Background(), newEvent(event.TypeRequestCreated))
	assert.Equal(t, 1, logger.ErrorCount())
}

func TestConcurrentSubscribeAndDispatch(t *testing.T) {
	d := NewDispatcher()
	var count int64

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			d.Subscribe(event.TypeDraftSaved, func(ctx context.Context, evt *event.Event) error {
				atomic.AddInt64(&count, 1)
				return nil
			})
		}()
		go func() {
			defer wg.Done()
			_ = d.Dispatch(context.Background(), newEvent(event.TypeDraftSaved))
		}()
	}
	wg.Wait()

	assert.Len(t, d.ListHandlers(event.TypeDraftSaved), 20)
}
