// Package router maps workflow context to a presentation surface. Everything here
// is a pure function of its inputs.
package router

import (
	appwf "github.com/garyjia/spend-requests/internal/application/workflow"
	"github.com/garyjia/spend-requests/internal/domain/workflow"
)

// Surface is an editing or viewing surface
type Surface string

const (
	SurfaceList             Surface = "list"
	SurfaceEditDraft        Surface = "edit-draft"
	SurfaceClassify         Surface = "classify"
	SurfaceClassifyItems    Surface = "classify-items"
	SurfaceApprove          Surface = "approve"
	SurfaceTreasurerExecute Surface = "treasurer-execute"
	SurfaceRegister         Surface = "register"
	SurfaceView             Surface = "view"
)

// NoticeNoTreasurerAction is shown when a treasurer opens a request outside their stage
const NoticeNoTreasurerAction = "request does not require treasurer action"

// Descriptor tells the shell what to render and which actions to enable
type Descriptor struct {
	Surface  Surface           `json:"surface"`
	ViewMode ViewMode          `json:"view_mode"`
	Primary  workflow.Action   `json:"primary,omitempty"`
	Actions  []workflow.Action `json:"actions"`
	Notice   string            `json:"notice,omitempty"`
}

type routeKey struct {
	role   workflow.Role
	status workflow.Status
	own    bool
}

// routeTable lists every (role, status, own draft) that opens an action surface.
// Anything absent opens the read-only view.
var routeTable = map[routeKey]Surface{
	{workflow.RoleExecutor, workflow.StatusDraft, true}:    SurfaceEditDraft,
	{workflow.RoleExecutor, workflow.StatusReturned, true}: SurfaceEditDraft,

	{workflow.RoleRegistrar, workflow.StatusSubmitted, false}: SurfaceClassifyItems,

	{workflow.RoleDistributor, workflow.StatusClassified, false}: SurfaceApprove,

	{workflow.RoleTreasurer, workflow.StatusApproved, false}:           SurfaceTreasurerExecute,
	{workflow.RoleTreasurer, workflow.StatusApprovedOnBehalf, false}:   SurfaceTreasurerExecute,
	{workflow.RoleTreasurer, workflow.StatusInRegister, false}:         SurfaceTreasurerExecute,
	{workflow.RoleTreasurer, workflow.StatusApprovedForPayment, false}: SurfaceTreasurerExecute,
}

// fallbackSurface overrides the read-only default for a role
var fallbackSurface = map[workflow.Role]Surface{
	workflow.RoleTreasurer: SurfaceList,
}

// surfaceViewModes maps surfaces to the view mode that selects them
var surfaceViewModes = map[Surface]ViewMode{
	SurfaceList:             ViewModeList,
	SurfaceEditDraft:        ViewModeList,
	SurfaceClassify:         ViewModeClassify,
	SurfaceClassifyItems:    ViewModeClassifyItems,
	SurfaceApprove:          ViewModeApprove,
	SurfaceTreasurerExecute: ViewModeTreasurerApprove,
	SurfaceRegister:         ViewModeRegister,
	SurfaceView:             ViewModeView,
}

// surfaceActions is the set of actions an action surface can trigger
var surfaceActions = map[Surface][]workflow.Action{
	SurfaceEditDraft:        {workflow.ActionSubmit, workflow.ActionResubmit, workflow.ActionCancel},
	SurfaceClassify:         {workflow.ActionClassify},
	SurfaceClassifyItems:    {workflow.ActionClassify},
	SurfaceApprove:          {workflow.ActionApprove, workflow.ActionApproveOnBehalf, workflow.ActionDecline, workflow.ActionReturn},
	SurfaceTreasurerExecute: {workflow.ActionAddToRegister, workflow.ActionApproveForPayment, workflow.ActionPayFull, workflow.ActionPayPartial, workflow.ActionReject},
	SurfaceRegister:         {workflow.ActionAddToRegister, workflow.ActionApproveForPayment},
}

// primaryActions is the main button per status on the surfaces that host several steps
var primaryActions = map[workflow.Status]workflow.Action{
	workflow.StatusDraft:              workflow.ActionSubmit,
	workflow.StatusReturned:           workflow.ActionResubmit,
	workflow.StatusSubmitted:          workflow.ActionClassify,
	workflow.StatusClassified:         workflow.ActionApprove,
	workflow.StatusApproved:           workflow.ActionAddToRegister,
	workflow.StatusApprovedOnBehalf:   workflow.ActionAddToRegister,
	workflow.StatusInRegister:         workflow.ActionApproveForPayment,
	workflow.StatusApprovedForPayment: workflow.ActionPayFull,
}

var authority = appwf.NewAuthority()

// Resolve selects the surface for a role opening a request in status.
// own reports whether the request is the acting user's own; it only matters to the requester.
func Resolve(role workflow.Role, status workflow.Status, own bool) Descriptor {
	own = own && role == workflow.RoleExecutor

	surface, ok := routeTable[routeKey{role, status, own}]
	if !ok {
		surface, ok = fallbackSurface[role]
		if !ok {
			surface = SurfaceView
		}
	}

	return describe(surface, role, status)
}

func describe(surface Surface, role workflow.Role, status workflow.Status) Descriptor {
	d := Descriptor{
		Surface:  surface,
		ViewMode: surfaceViewModes[surface],
		Actions:  actionsFor(surface, role, status),
	}
	if surface == SurfaceList && role == workflow.RoleTreasurer {
		d.Notice = NoticeNoTreasurerAction
	}
	if primary, ok := primaryActions[status]; ok && contains(d.Actions, primary) {
		d.Primary = primary
	}
	return d
}

// actionsFor intersects what the authority permits with what the surface can trigger.
// The read-only view exposes every permitted action; the list exposes none.
func actionsFor(surface Surface, role workflow.Role, status workflow.Status) []workflow.Action {
	if surface == SurfaceList {
		return []workflow.Action{}
	}
	permitted := authority.PermittedActions(status, role)
	bound, ok := surfaceActions[surface]
	if !ok {
		return permitted
	}
	out := make([]workflow.Action, 0, len(permitted))
	for _, a := range permitted {
		if contains(bound, a) {
			out = append(out, a)
		}
	}
	return out
}

func contains(actions []workflow.Action, a workflow.Action) bool {
	for _, x := range actions {
		if x == a {
			return true
		}
	}
	return false
}
