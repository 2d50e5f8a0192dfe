package router

import (
	"github.com/google/uuid"

	"github.com/garyjia/spend-requests/internal/domain/entity"
	"github.com/garyjia/spend-requests/internal/domain/workflow"
)

// Msg is an input to Reduce
type Msg interface {
	msg()
}

// SetRole switches the acting identity; a different user or role drops all transient state
type SetRole struct {
	UserID string
	Role   workflow.Role
}

// SetPage navigates to a top-level page
type SetPage struct{ Page Page }

// OpenRequest opens a request on the surface its (role, status) calls for
type OpenRequest struct{ Request entity.RequestSummary }

// OpenCreateForm opens an empty draft form
type OpenCreateForm struct{}

// CloseForm returns to the list
type CloseForm struct{}

// ResetForm drops the open form along with the dashboard filter and loading flag
type ResetForm struct{}

// SetViewMode selects a view mode directly
type SetViewMode struct{ Mode ViewMode }

// SetDashboardFilter narrows the dashboard
type SetDashboardFilter struct{ Filter string }

// SetLoading toggles the loading indicator
type SetLoading struct{ Loading bool }

func (SetRole) msg()            {}
func (SetPage) msg()            {}
func (OpenRequest) msg()        {}
func (OpenCreateForm) msg()     {}
func (CloseForm) msg()          {}
func (ResetForm) msg()          {}
func (SetViewMode) msg()        {}
func (SetDashboardFilter) msg() {}
func (SetLoading) msg()         {}

// Reduce returns the state that follows s after m. It never mutates s.
func Reduce(s AppState, m Msg) AppState {
	next := s
	next.Notice = ""

	switch m := m.(type) {
	case SetRole:
		if m.UserID == s.UserID && m.Role == s.Role {
			return next
		}
		next.UserID = m.UserID
		next.Role = m.Role
		next = resetTransient(next)

	case SetPage:
		next.Page = m.Page
		next = resetForm(next)

	case OpenRequest:
		own := m.Request.CreatedBy != "" && m.Request.CreatedBy == s.UserID
		d := Resolve(s.Role, m.Request.Status, own)
		if d.Surface == SurfaceList {
			next = resetForm(next)
			next.Notice = d.Notice
			return next
		}
		id := m.Request.ID
		next.Page = PageRequests
		next.SelectedRequestID = &id
		next.ShowCreateForm = d.Surface == SurfaceEditDraft
		next.ViewMode = d.ViewMode

	case OpenCreateForm:
		next.ShowCreateForm = true
		next.SelectedRequestID = nil
		next.ViewMode = ViewModeList

	case CloseForm:
		next = resetForm(next)

	case ResetForm:
		next = resetForm(next)
		next.DashboardFilter = ""
		next.IsLoading = false

	case SetViewMode:
		if !m.Mode.IsValid() {
			return s
		}
		next.ViewMode = m.Mode
		next.ShowCreateForm = false
		if m.Mode == ViewModeList {
			next.SelectedRequestID = nil
		}

	case SetDashboardFilter:
		next.DashboardFilter = m.Filter

	case SetLoading:
		next.IsLoading = m.Loading

	default:
		return s
	}

	return next
}

func resetForm(s AppState) AppState {
	s.ShowCreateForm = false
	s.SelectedRequestID = nil
	s.ViewMode = ViewModeList
	return s
}

func resetTransient(s AppState) AppState {
	s = resetForm(s)
	s.Page = PageDashboard
	s.DashboardFilter = ""
	return s
}

// Present selects the surface for the current state. req is the selected request,
// or nil when nothing is selected.
func Present(s AppState, req *entity.RequestSummary) Descriptor {
	if s.ShowCreateForm {
		status := workflow.StatusDraft
		if req != nil {
			status = req.Status
		}
		return describe(SurfaceEditDraft, s.Role, status)
	}

	if req == nil || s.SelectedRequestID == nil || *s.SelectedRequestID != req.ID {
		return describe(SurfaceList, s.Role, workflow.StatusDraft)
	}

	surface, ok := viewModeSurfaces[s.ViewMode]
	if !ok {
		return describe(SurfaceList, s.Role, req.Status)
	}
	return describe(surface, s.Role, req.Status)
}

var viewModeSurfaces = map[ViewMode]Surface{
	ViewModeView:             SurfaceView,
	ViewModeClassify:         SurfaceClassify,
	ViewModeClassifyItems:    SurfaceClassifyItems,
	ViewModeApprove:          SurfaceApprove,
	ViewModeTreasurerApprove: SurfaceTreasurerExecute,
	ViewModeRegister:         SurfaceRegister,
}

// Selected returns the selected request id, if any
func (s AppState) Selected() (uuid.UUID, bool) {
	if s.SelectedRequestID == nil {
		return uuid.Nil, false
	}
	return *s.SelectedRequestID, true
}
