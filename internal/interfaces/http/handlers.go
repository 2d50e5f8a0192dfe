package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/garyjia/spend-requests/internal/application/port"
	"github.com/garyjia/spend-requests/internal/application/service"
	"github.com/garyjia/spend-requests/internal/application/store"
	"github.com/garyjia/spend-requests/internal/domain/entity"
	"github.com/garyjia/spend-requests/internal/domain/workflow"
)

// XLSXContentType is the media type of the exported register
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handlers contains all HTTP request handlers
type Handlers struct {
	service service.RequestService
	store   *store.Store
	logger  Logger
	version string
}

// NewHandlers creates a new Handlers instance
func NewHandlers(svc service.RequestService, st *store.Store, logger Logger, version string) *Handlers {
	return &Handlers{
		service: svc,
		store:   st,
		logger:  logger,
		version: version,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool              `json:"success"`
	Data    interface{}       `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Code    string            `json:"code,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// ClassifyRequest is the body of POST /api/requests/:id/classify
type ClassifyRequest struct {
	Splits  []entity.ExpenseSplit `json:"splits"`
	Comment string                `json:"comment"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   h.version,
		},
	})
}

// CreateDraft handles POST /api/requests
func (h *Handlers) CreateDraft(c *gin.Context) {
	var fields entity.RequestFields
	if !bindJSON(c, &fields) {
		return
	}

	req, err := h.service.CreateDraft(c.Request.Context(), actorFrom(c), fields)
	if err != nil {
		h.fail(c, "Failed to create draft", err)
		return
	}
	respondRequest(c, http.StatusCreated, req)
}

// UpdateDraft handles PUT /api/requests/:id
func (h *Handlers) UpdateDraft(c *gin.Context) {
	id, ctx, ok := requestScope(c)
	if !ok {
		return
	}
	var fields entity.RequestFields
	if !bindJSON(c, &fields) {
		return
	}

	req, err := h.service.UpdateDraft(ctx, actorFrom(c), id, fields)
	if err != nil {
		h.fail(c, "Failed to update draft", err, "request_id", id)
		return
	}
	respondRequest(c, http.StatusOK, req)
}

// Submit handles POST /api/requests/:id/submit
func (h *Handlers) Submit(c *gin.Context) {
	id, ctx, ok := requestScope(c)
	if !ok {
		return
	}

	req, err := h.service.Submit(ctx, actorFrom(c), id)
	if err != nil {
		h.fail(c, "Failed to submit request", err, "request_id", id)
		return
	}
	respondRequest(c, http.StatusOK, req)
}

// Classify handles POST /api/requests/:id/classify
func (h *Handlers) Classify(c *gin.Context) {
	id, ctx, ok := requestScope(c)
	if !ok {
		return
	}
	var body ClassifyRequest
	if !bindJSON(c, &body) {
		return
	}

	req, err := h.service.Classify(ctx, actorFrom(c), id, body.Splits, body.Comment)
	if err != nil {
		h.fail(c, "Failed to classify request", err, "request_id", id)
		return
	}
	respondRequest(c, http.StatusOK, req)
}

// DistributorAction handles POST /api/requests/:id/distributor-action
func (h *Handlers) DistributorAction(c *gin.Context) {
	id, ctx, ok := requestScope(c)
	if !ok {
		return
	}
	var in port.DistributorActionInput
	if !bindJSON(c, &in) {
		return
	}

	req, err := h.service.DistributorAction(ctx, actorFrom(c), id, in)
	if err != nil {
		h.fail(c, "Failed to apply distributor action", err, "request_id", id, "action", in.Action)
		return
	}
	respondRequest(c, http.StatusOK, req)
}

// UpdateStatus handles POST /api/requests/:id/status
func (h *Handlers) UpdateStatus(c *gin.Context) {
	id, ctx, ok := requestScope(c)
	if !ok {
		return
	}
	var in port.StatusUpdateInput
	if !bindJSON(c, &in) {
		return
	}
	if in.Status != "" {
		st, err := parseStatus(string(in.Status))
		if err != nil {
			abortWithError(c, err)
			return
		}
		in.Status = st
	}

	req, err := h.service.UpdateStatus(ctx, actorFrom(c), id, in)
	if err != nil {
		h.fail(c, "Failed to update status", err, "request_id", id, "status", in.Status)
		return
	}
	respondRequest(c, http.StatusOK, req)
}

// GetRequest handles GET /api/requests/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	req, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get request", err, "request_id", id)
		return
	}
	respondRequest(c, http.StatusOK, req)
}

// ListRequests handles GET /api/requests
func (h *Handlers) ListRequests(c *gin.Context) {
	filter, err := parseListFilter(c)
	if err != nil {
		abortWithError(c, err)
		return
	}

	requests, err := h.service.GetAll(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, "Failed to list requests", err)
		return
	}
	if requests == nil {
		requests = []*entity.PaymentRequest{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: requests})
}

// GetEvents handles GET /api/requests/:id/events
func (h *Handlers) GetEvents(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	events, err := h.service.GetEvents(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get events", err, "request_id", id)
		return
	}
	if events == nil {
		events = []entity.RequestEvent{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: events})
}

// RejectionReason handles GET /api/requests/:id/rejection-reason.
// Data is null when the request was never refused.
func (h *Handlers) RejectionReason(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	evt, err := h.service.RejectionReason(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get rejection reason", err, "request_id", id)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: evt})
}

// Stats handles GET /api/requests/stats
func (h *Handlers) Stats(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusOK, Response{Success: true, Data: store.Stats{}})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: h.store.Stats()})
}

// ExportRegister handles GET /api/register/export
func (h *Handlers) ExportRegister(c *gin.Context) {
	data, err := h.service.ExportRegister(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to export register", err)
		return
	}

	filename := fmt.Sprintf("register-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, XLSXContentType, data)
}

// fail logs unexpected errors and writes the error envelope
func (h *Handlers) fail(c *gin.Context, msg string, err error, keysAndValues ...interface{}) {
	if port.CodeOf(err) == port.CodeInternal {
		h.logger.Error(msg, append(keysAndValues, "error", err)...)
	}
	abortWithError(c, err)
}

// statusByCode maps wire error codes to HTTP statuses
var statusByCode = map[string]int{
	port.CodeValidation:         http.StatusUnprocessableEntity,
	port.CodePreconditionFailed: http.StatusUnprocessableEntity,
	port.CodeInvalidTransition:  http.StatusConflict,
	port.CodeTerminalState:      http.StatusConflict,
	port.CodeNotEditable:        http.StatusConflict,
	port.CodeVersionConflict:    http.StatusConflict,
	port.CodeInProgress:         http.StatusConflict,
	port.CodeForbidden:          http.StatusForbidden,
	port.CodeNotFound:           http.StatusNotFound,
	port.CodeInvalidRole:        http.StatusBadRequest,
	port.CodeInvalidState:       http.StatusBadRequest,
}

// abortWithError writes the error envelope and stops the handler chain
func abortWithError(c *gin.Context, err error) {
	code := port.CodeOf(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	resp := Response{Success: false, Error: err.Error(), Code: code}
	if status == http.StatusInternalServerError {
		resp.Error = "internal error"
	}

	var verr *service.ValidationError
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}

	c.AbortWithStatusJSON(status, resp)
}

func respondRequest(c *gin.Context, status int, req *entity.PaymentRequest) {
	c.Header(HeaderETag, strconv.Quote(strconv.FormatInt(req.Version, 10)))
	c.JSON(status, Response{Success: true, Data: req})
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		abortWithError(c, &service.ValidationError{Fields: map[string]string{"body": "malformed"}})
		return false
	}
	return true
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		abortWithError(c, fmt.Errorf("%w: malformed id %q", port.ErrNotFound, c.Param("id")))
		return uuid.Nil, false
	}
	return id, true
}

// requestScope parses the path id and carries If-Match into the request context
func requestScope(c *gin.Context) (uuid.UUID, context.Context, bool) {
	id, ok := pathID(c)
	if !ok {
		return uuid.Nil, nil, false
	}

	ctx := c.Request.Context()
	if raw := strings.TrimSpace(c.GetHeader(HeaderIfMatch)); raw != "" {
		v, err := strconv.ParseInt(strings.Trim(raw, `"`), 10, 64)
		if err != nil || v <= 0 {
			abortWithError(c, &service.ValidationError{Fields: map[string]string{HeaderIfMatch: "version"}})
			return uuid.Nil, nil, false
		}
		ctx = port.WithExpectedVersion(ctx, v)
	}
	return id, ctx, true
}

// parseStatus accepts both wire values and upper-snake backend keys
func parseStatus(raw string) (workflow.Status, error) {
	if st, err := workflow.ParseStatus(raw); err == nil {
		return st, nil
	}
	return workflow.FromBackendKey(raw)
}

func parseListFilter(c *gin.Context) (port.ListFilter, error) {
	var filter port.ListFilter

	for _, v := range c.QueryArray("status") {
		for _, raw := range strings.Split(v, ",") {
			if strings.TrimSpace(raw) == "" {
				continue
			}
			st, err := parseStatus(raw)
			if err != nil {
				return filter, err
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}

	filter.CreatedBy = c.Query("created_by")

	if raw := c.Query("overdue"); raw != "" {
		overdue, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, &service.ValidationError{Fields: map[string]string{"overdue": "bool"}}
		}
		filter.Overdue = overdue
	}
	return filter, nil
}
