package workflow

// Action is a role-initiated operation that may move a request to a new status.
type Action string

const (
	ActionSubmit            Action = "submit"
	ActionResubmit          Action = "resubmit"
	ActionClassify          Action = "classify"
	ActionReturn            Action = "return"
	ActionApprove           Action = "approve"
	ActionApproveOnBehalf   Action = "approve_on_behalf"
	ActionDecline           Action = "decline"
	ActionReject            Action = "reject"
	ActionAddToRegister     Action = "add_to_register"
	ActionApproveForPayment Action = "approve_for_payment"
	ActionPayFull           Action = "pay_full"
	ActionPayPartial        Action = "pay_partial"
	ActionCancel            Action = "cancel"

	// ActionCreate is recorded in history when a draft is first persisted; it is not a transition
	ActionCreate Action = "create"
)

// String returns the string representation of the action
func (a Action) String() string {
	return string(a)
}
