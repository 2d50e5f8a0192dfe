package router

import (
	"github.com/google/uuid"

	"github.com/garyjia/spend-requests/internal/domain/workflow"
)

// ViewMode selects what the requests page shows
type ViewMode string

const (
	ViewModeList             ViewMode = "list"
	ViewModeClassify         ViewMode = "classify"
	ViewModeClassifyItems    ViewMode = "classify-items"
	ViewModeApprove          ViewMode = "approve"
	ViewModeRegister         ViewMode = "register"
	ViewModeTreasurerApprove ViewMode = "treasurer-approve"
	ViewModeView             ViewMode = "view"
)

// IsValid reports whether the view mode is known
func (m ViewMode) IsValid() bool {
	switch m {
	case ViewModeList, ViewModeClassify, ViewModeClassifyItems, ViewModeApprove,
		ViewModeRegister, ViewModeTreasurerApprove, ViewModeView:
		return true
	}
	return false
}

// Page is a top-level page of the shell
type Page string

const (
	PageDashboard Page = "dashboard"
	PageRequests  Page = "requests"
	PageRegister  Page = "register"
)

// AppState is the shell's serializable state
type AppState struct {
	UserID            string        `json:"user_id"`
	Role              workflow.Role `json:"role"`
	Page              Page          `json:"page"`
	ShowCreateForm    bool          `json:"show_create_form"`
	SelectedRequestID *uuid.UUID    `json:"selected_request_id,omitempty"`
	ViewMode          ViewMode      `json:"view_mode"`
	DashboardFilter   string        `json:"dashboard_filter,omitempty"`
	IsLoading         bool          `json:"is_loading"`
	Notice            string        `json:"notice,omitempty"`
}

// InitialState returns the state of a freshly opened shell
func InitialState(userID string, role workflow.Role) AppState {
	return AppState{
		UserID:   userID,
		Role:     role,
		Page:     PageDashboard,
		ViewMode: ViewModeList,
	}
}
