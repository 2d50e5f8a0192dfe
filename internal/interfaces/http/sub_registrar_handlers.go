package http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/garyjia/spend-requests/internal/application/port"
	"github.com/garyjia/spend-requests/internal/application/service"
	"github.com/garyjia/spend-requests/internal/domain/entity"
)

const (
	defaultAssignmentLimit    = 100
	defaultAllAssignmentLimit = 1000
)

// AssignRequest is the body of POST /api/sub-registrar/assignments
type AssignRequest struct {
	RequestID      uuid.UUID `json:"request_id"`
	SubRegistrarID string    `json:"sub_registrar_id"`
}

// PublishReportRequest is the body of POST /api/sub-registrar/publish-report
type PublishReportRequest struct {
	RequestID uuid.UUID `json:"request_id"`
}

// SubRegistrarHandlers serves the document collection endpoints
type SubRegistrarHandlers struct {
	service service.SubRegistrarService
	logger  Logger
}

// NewSubRegistrarHandlers creates a new SubRegistrarHandlers instance
func NewSubRegistrarHandlers(svc service.SubRegistrarService, logger Logger) *SubRegistrarHandlers {
	return &SubRegistrarHandlers{service: svc, logger: logger}
}

// MyAssignments handles GET /api/sub-registrar/assignments
func (h *SubRegistrarHandlers) MyAssignments(c *gin.Context) {
	page, ok := parsePage(c, defaultAssignmentLimit)
	if !ok {
		return
	}

	items, err := h.service.Assignments(c.Request.Context(), actorFrom(c), page)
	if err != nil {
		h.fail(c, "Failed to list assignments", err)
		return
	}
	respondAssignments(c, items)
}

// AllAssignments handles GET /api/sub-registrar/assignments/all
func (h *SubRegistrarHandlers) AllAssignments(c *gin.Context) {
	page, ok := parsePage(c, defaultAllAssignmentLimit)
	if !ok {
		return
	}

	items, err := h.service.AllAssignments(c.Request.Context(), actorFrom(c), page)
	if err != nil {
		h.fail(c, "Failed to list assignments", err)
		return
	}
	respondAssignments(c, items)
}

// Assign handles POST /api/sub-registrar/assignments
func (h *SubRegistrarHandlers) Assign(c *gin.Context) {
	var in AssignRequest
	if !bindJSON(c, &in) {
		return
	}

	a, err := h.service.Assign(c.Request.Context(), actorFrom(c), in.RequestID, in.SubRegistrarID)
	if err != nil {
		h.fail(c, "Failed to assign request", err, "request_id", in.RequestID.String())
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: a})
}

// GetReport handles GET /api/sub-registrar/reports/:request_id
func (h *SubRegistrarHandlers) GetReport(c *gin.Context) {
	id, err := uuid.Parse(c.Param("request_id"))
	if err != nil {
		abortWithError(c, fmt.Errorf("%w: malformed id %q", port.ErrNotFound, c.Param("request_id")))
		return
	}

	report, err := h.service.Report(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.fail(c, "Failed to get report", err, "request_id", id.String())
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: report})
}

// SaveDraft handles POST /api/sub-registrar/save-draft
func (h *SubRegistrarHandlers) SaveDraft(c *gin.Context) {
	var in service.ReportInput
	if !bindJSON(c, &in) {
		return
	}

	report, err := h.service.SaveReportDraft(c.Request.Context(), actorFrom(c), in)
	if err != nil {
		h.fail(c, "Failed to save report draft", err, "request_id", in.RequestID.String())
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: report})
}

// PublishReport handles POST /api/sub-registrar/publish-report
func (h *SubRegistrarHandlers) PublishReport(c *gin.Context) {
	var in PublishReportRequest
	if !bindJSON(c, &in) {
		return
	}

	report, err := h.service.PublishReport(c.Request.Context(), actorFrom(c), in.RequestID)
	if err != nil {
		h.fail(c, "Failed to publish report", err, "request_id", in.RequestID.String())
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: report})
}

func (h *SubRegistrarHandlers) fail(c *gin.Context, msg string, err error, keysAndValues ...interface{}) {
	if port.CodeOf(err) == port.CodeInternal {
		h.logger.Error(msg, append(keysAndValues, "error", err)...)
	}
	abortWithError(c, err)
}

func respondAssignments(c *gin.Context, items []entity.SubRegistrarAssignment) {
	if items == nil {
		items = []entity.SubRegistrarAssignment{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: items})
}

// parsePage reads skip and limit query parameters
func parsePage(c *gin.Context, defaultLimit int) (service.Page, bool) {
	page := service.Page{Limit: defaultLimit}
	for name, dst := range map[string]*int{"skip": &page.Offset, "limit": &page.Limit} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			abortWithError(c, &service.ValidationError{Fields: map[string]string{name: "int"}})
			return page, false
		}
		*dst = v
	}
	return page, true
}
