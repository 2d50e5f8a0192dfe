package requestapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/spend-requests/internal/application/port"
	"github.com/garyjia/spend-requests/internal/domain/entity"
	"github.com/garyjia/spend-requests/internal/domain/workflow"
)

var alice = port.Actor{UserID: "alice", Role: workflow.RoleExecutor}

func writeEnvelope(w http.ResponseWriter, status int, env map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func newClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/", RetryMaxElapsed: 2 * time.Second})
}

func TestClient_CreateDraft(t *testing.T) {
	var (
		mu   sync.Mutex
		seen *http.Request
		body entity.RequestFields
	)
	id := uuid.New()

	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		seen = r.Clone(context.Background())
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		writeEnvelope(w, http.StatusCreated, map[string]interface{}{
			"success": true,
			"data":    map[string]interface{}{"id": id, "version": 1, "status": "draft", "amount": "100"},
		})
	})

	req, err := c.CreateDraft(context.Background(), alice, entity.RequestFields{Amount: decimal.NewFromInt(100), Currency: "RUB"})
	require.NoError(t, err)
	assert.Equal(t, id, req.ID)
	assert.Equal(t, workflow.StatusDraft, req.Status)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPost, seen.Method)
	assert.Equal(t, "/api/requests", seen.URL.Path)
	assert.Equal(t, "alice", seen.Header.Get("X-User-ID"))
	assert.Equal(t, "executor", seen.Header.Get("X-User-Role"))
	assert.NotEmpty(t, seen.Header.Get("Idempotency-Key"))
	assert.Equal(t, "RUB", body.Currency)
}

func TestClient_ExpectedVersionBecomesIfMatch(t *testing.T) {
	var ifMatch atomic.Value
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		ifMatch.Store(r.Header.Get("If-Match"))
		writeEnvelope(w, http.StatusOK, map[string]interface{}{"success": true, "data": map[string]interface{}{"version": 4}})
	})

	ctx := port.WithExpectedVersion(context.Background(), 3)
	req, err := c.UpdateDraft(ctx, alice, uuid.New(), entity.RequestFields{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), req.Version)
	assert.Equal(t, `"3"`, ifMatch.Load())
}

func TestClient_ErrorsMapToSentinels(t *testing.T) {
	tests := []struct {
		status int
		code   string
		want   error
	}{
		{http.StatusNotFound, port.CodeNotFound, port.ErrNotFound},
		{http.StatusConflict, port.CodeVersionConflict, port.ErrVersionConflict},
		{http.StatusConflict, port.CodeInvalidTransition, workflow.ErrInvalidTransition},
		{http.StatusForbidden, port.CodeForbidden, workflow.ErrRoleNotPermitted},
		{http.StatusUnprocessableEntity, port.CodePreconditionFailed, workflow.ErrGuardFailed},
		{http.StatusUnprocessableEntity, port.CodeValidation, port.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			var calls atomic.Int32
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				writeEnvelope(w, tt.status, map[string]interface{}{
					"success": false, "error": "nope", "code": tt.code, "fields": map[string]string{"amount": "gte"},
				})
			})

			_, err := c.GetByID(WithActor(context.Background(), alice), uuid.New())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, int32(1), calls.Load())

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, "gte", apiErr.Fields["amount"])
		})
	}
}

func TestClient_RetriesTransientReads(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeEnvelope(w, http.StatusServiceUnavailable, map[string]interface{}{"success": false, "error": "busy"})
			return
		}
		assert.Equal(t, "paid-full,paid-partial", r.URL.Query().Get("status"))
		assert.Equal(t, "true", r.URL.Query().Get("overdue"))
		writeEnvelope(w, http.StatusOK, map[string]interface{}{"success": true, "data": []interface{}{}})
	})

	list, err := c.GetAll(WithActor(context.Background(), alice), port.ListFilter{
		Statuses: []workflow.Status{workflow.StatusPaidFull, workflow.StatusPaidPartial},
		Overdue:  true,
	})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_SubmitRetriesUnderOneKey(t *testing.T) {
	var (
		calls atomic.Int32
		mu    sync.Mutex
		keys  []string
	)
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		mu.Unlock()
		if calls.Add(1) == 1 {
			writeEnvelope(w, http.StatusBadGateway, map[string]interface{}{"success": false})
			return
		}
		writeEnvelope(w, http.StatusOK, map[string]interface{}{"success": true, "data": map[string]interface{}{"status": "submitted"}})
	})

	req, err := c.Submit(context.Background(), alice, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusSubmitted, req.Status)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, keys, 2)
	assert.NotEmpty(t, keys[0])
	assert.Equal(t, keys[0], keys[1])
}

func TestClient_CreateDraftUsesPinnedKey(t *testing.T) {
	var (
		calls atomic.Int32
		mu    sync.Mutex
		keys  []string
	)
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		mu.Unlock()
		if calls.Add(1) == 1 {
			writeEnvelope(w, http.StatusConflict, map[string]interface{}{
				"success": false, "code": port.CodeInProgress, "error": "in progress",
			})
			return
		}
		writeEnvelope(w, http.StatusCreated, map[string]interface{}{"success": true, "data": map[string]interface{}{"status": "draft"}})
	})

	ctx := port.WithIdempotencyKey(context.Background(), "draft-key-0001")
	_, err := c.CreateDraft(ctx, alice, entity.RequestFields{Currency: "RUB"})
	require.NoError(t, err)
	_, err = c.CreateDraft(ctx, alice, entity.RequestFields{Currency: "RUB"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"draft-key-0001", "draft-key-0001", "draft-key-0001"}, keys)
}

func TestClient_VersionConflictIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeEnvelope(w, http.StatusConflict, map[string]interface{}{"success": false, "code": port.CodeVersionConflict})
	})

	_, err := c.Submit(context.Background(), alice, uuid.New())
	assert.ErrorIs(t, err, port.ErrVersionConflict)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_PlainWritesAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeEnvelope(w, http.StatusServiceUnavailable, map[string]interface{}{"success": false, "error": "busy"})
	})

	_, err := c.Classify(context.Background(), alice, uuid.New(), nil, "")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_RejectionReasonMayBeNull(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, map[string]interface{}{"success": true, "data": nil})
	})

	evt, err := c.RejectionReason(WithActor(context.Background(), alice), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, evt)
}

func TestClient_ContextCancelStopsRetry(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusServiceUnavailable, map[string]interface{}{"success": false})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.GetEvents(ctx, uuid.New())
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
