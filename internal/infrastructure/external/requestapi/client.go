// Package requestapi is the HTTP client side of the request persistence boundary.
package requestapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/garyjia/spend-requests/internal/application/port"
	"github.com/garyjia/spend-requests/internal/domain/entity"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
	// RetryMaxElapsed bounds the total time spent retrying one call
	RetryMaxElapsed time.Duration
}

// APIError is a non-2xx answer from the server
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Fields     map[string]string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("request api: %s", e.Message)
}

// Unwrap exposes the sentinel behind the wire code
func (e *APIError) Unwrap() error {
	return port.ErrorOf(e.Code)
}

// Client implements port.RequestAPI over REST
type Client struct {
	baseURL         string
	http            *http.Client
	logger          Logger
	retryMaxElapsed time.Duration
	newKey          func() string
}

var _ port.RequestAPI = (*Client)(nil)

// Option configures the client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the client logger
func WithLogger(l Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithKeyGenerator overrides how idempotency keys are minted
func WithKeyGenerator(fn func() string) Option {
	return func(c *Client) {
		c.newKey = fn
	}
}

// NewClient creates a new request API client
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RetryMaxElapsed <= 0 {
		cfg.RetryMaxElapsed = 10 * time.Second
	}

	c := &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		http:            &http.Client{Timeout: cfg.Timeout},
		retryMaxElapsed: cfg.RetryMaxElapsed,
		newKey:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope mirrors the server response body
type envelope struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data"`
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Fields  map[string]string `json:"fields"`
}

// call describes one HTTP exchange
type call struct {
	method string
	path   string
	query  url.Values
	actor  *port.Actor
	body   interface{}
	// retry is set for reads and for writes carrying an idempotency key
	retry          bool
	idempotencyKey string
}

// CreateDraft persists a new draft. The call is retried under one idempotency key,
// taken from ctx when the caller pinned one.
func (c *Client) CreateDraft(ctx context.Context, actor port.Actor, fields entity.RequestFields) (*entity.PaymentRequest, error) {
	return c.requestCall(ctx, call{
		method:         http.MethodPost,
		path:           "/api/requests",
		actor:          &actor,
		body:           fields,
		retry:          true,
		idempotencyKey: c.keyFor(ctx),
	})
}

// UpdateDraft saves draft fields
func (c *Client) UpdateDraft(ctx context.Context, actor port.Actor, id uuid.UUID, fields entity.RequestFields) (*entity.PaymentRequest, error) {
	return c.requestCall(ctx, call{
		method: http.MethodPut,
		path:   requestPath(id, ""),
		actor:  &actor,
		body:   fields,
	})
}

// Submit sends a draft or returned request to the registrar
func (c *Client) Submit(ctx context.Context, actor port.Actor, id uuid.UUID) (*entity.PaymentRequest, error) {
	return c.requestCall(ctx, call{
		method:         http.MethodPost,
		path:           requestPath(id, "/submit"),
		actor:          &actor,
		retry:          true,
		idempotencyKey: c.keyFor(ctx),
	})
}

// Classify records expense splits
func (c *Client) Classify(ctx context.Context, actor port.Actor, id uuid.UUID, splits []entity.ExpenseSplit, comment string) (*entity.PaymentRequest, error) {
	return c.requestCall(ctx, call{
		method: http.MethodPost,
		path:   requestPath(id, "/classify"),
		actor:  &actor,
		body: map[string]interface{}{
			"splits":  splits,
			"comment": comment,
		},
	})
}

// DistributorAction applies a distributor decision
func (c *Client) DistributorAction(ctx context.Context, actor port.Actor, id uuid.UUID, in port.DistributorActionInput) (*entity.PaymentRequest, error) {
	return c.requestCall(ctx, call{
		method: http.MethodPost,
		path:   requestPath(id, "/distributor-action"),
		actor:  &actor,
		body:   in,
	})
}

// UpdateStatus moves a request to a target status
func (c *Client) UpdateStatus(ctx context.Context, actor port.Actor, id uuid.UUID, in port.StatusUpdateInput) (*entity.PaymentRequest, error) {
	return c.requestCall(ctx, call{
		method: http.MethodPost,
		path:   requestPath(id, "/status"),
		actor:  &actor,
		body:   in,
	})
}

// GetByID fetches one request
func (c *Client) GetByID(ctx context.Context, id uuid.UUID) (*entity.PaymentRequest, error) {
	return c.requestCall(ctx, call{
		method: http.MethodGet,
		path:   requestPath(id, ""),
		actor:  actorFrom(ctx),
		retry:  true,
	})
}

// GetAll lists requests matching filter
func (c *Client) GetAll(ctx context.Context, filter port.ListFilter) ([]*entity.PaymentRequest, error) {
	q := url.Values{}
	if len(filter.Statuses) > 0 {
		parts := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			parts[i] = st.String()
		}
		q.Set("status", strings.Join(parts, ","))
	}
	if filter.CreatedBy != "" {
		q.Set("created_by", filter.CreatedBy)
	}
	if filter.Overdue {
		q.Set("overdue", "true")
	}

	var out []*entity.PaymentRequest
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   "/api/requests",
		query:  q,
		actor:  actorFrom(ctx),
		retry:  true,
	}, &out)
	return out, err
}

// GetEvents lists the audit events of a request
func (c *Client) GetEvents(ctx context.Context, id uuid.UUID) ([]entity.RequestEvent, error) {
	var out []entity.RequestEvent
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   requestPath(id, "/events"),
		actor:  actorFrom(ctx),
		retry:  true,
	}, &out)
	return out, err
}

// RejectionReason returns the newest refusal event, or nil
func (c *Client) RejectionReason(ctx context.Context, id uuid.UUID) (*entity.RequestEvent, error) {
	var out *entity.RequestEvent
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   requestPath(id, "/rejection-reason"),
		actor:  actorFrom(ctx),
		retry:  true,
	}, &out)
	return out, err
}

func (c *Client) keyFor(ctx context.Context) string {
	if key := port.IdempotencyKey(ctx); key != "" {
		return key
	}
	return c.newKey()
}

func (c *Client) requestCall(ctx context.Context, cl call) (*entity.PaymentRequest, error) {
	var out entity.PaymentRequest
	if err := c.do(ctx, cl, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do runs cl, retrying transient failures when cl.retry is set
func (c *Client) do(ctx context.Context, cl call, out interface{}) error {
	var payload []byte
	if cl.body != nil {
		raw, err := json.Marshal(cl.body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		payload = raw
	}

	if !cl.retry {
		return c.once(ctx, cl, payload, out)
	}

	op := func() error {
		err := c.once(ctx, cl, payload, out)
		if err != nil && isRetryable(err) {
			c.logInfo("Retrying request api call", "method", cl.method, "path", cl.path, "error", err)
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.retryMaxElapsed
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}

func (c *Client) once(ctx context.Context, cl call, payload []byte, out interface{}) error {
	target := c.baseURL + cl.path
	if len(cl.query) > 0 {
		target += "?" + cl.query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, target, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cl.actor != nil {
		req.Header.Set("X-User-ID", cl.actor.UserID)
		req.Header.Set("X-User-Role", cl.actor.Role.String())
	}
	if v := port.ExpectedVersion(ctx); v > 0 {
		req.Header.Set("If-Match", strconv.Quote(strconv.FormatInt(v, 10)))
	}
	if cl.idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", cl.idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < http.StatusBadRequest {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return &APIError{
			StatusCode: resp.StatusCode,
			Code:       env.Code,
			Message:    env.Error,
			Fields:     env.Fields,
		}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

// isRetryable reports transport failures, server-side errors and keys still held
// by an earlier attempt
func isRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == port.CodeInProgress {
			return true
		}
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset")
}

func (c *Client) logInfo(msg string, kv ...interface{}) {
	if c.logger != nil {
		c.logger.Info(msg, kv...)
	}
}

func requestPath(id uuid.UUID, suffix string) string {
	return "/api/requests/" + id.String() + suffix
}

type actorKey struct{}

// WithActor attaches the acting identity used by read calls
func WithActor(ctx context.Context, actor port.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func actorFrom(ctx context.Context) *port.Actor {
	if actor, ok := ctx.Value(actorKey{}).(port.Actor); ok {
		return &actor
	}
	return nil
}
