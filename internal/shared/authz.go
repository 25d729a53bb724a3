package shared

import "context"

// StepUpAction identifies a sensitive operation guarded by step-up verification.
type StepUpAction string

// Sensitive actions requiring a valid step-up credential before the first write.
const (
	ActionStockAdjust      StepUpAction = "inventory.adjust"
	ActionPOEditSubmitted  StepUpAction = "procurement.po.edit_submitted"
	ActionPOCancel         StepUpAction = "procurement.po.cancel"
	ActionSupplierDelete   StepUpAction = "masterdata.supplier.delete"
	ActionSupplierBankView StepUpAction = "masterdata.supplier.bank_view"
)

// StepUpHeader carries the step-up credential on guarded requests.
const StepUpHeader = "X-Step-Up-Pin"

// StepUpGate verifies a step-up credential for a user and a sensitive action.
// Implementations return ErrStepUpRequired when the credential is rejected and
// ErrStepUpRateLimited when the attempt budget is exhausted. Workflows must
// treat any non-nil error as a hard abort before their first write.
type StepUpGate interface {
	Verify(ctx context.Context, userID int64, action StepUpAction, credential string) error
}
