package production

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/loomline-erp/loomline-erp/internal/shared"
)

// Work order lifecycle statuses.
type WOStatus string

const (
	WOStatusDraft        WOStatus = "DRAFT"
	WOStatusIssued       WOStatus = "ISSUED"
	WOStatusInProduction WOStatus = "IN_PRODUCTION"
	WOStatusPartial      WOStatus = "PARTIAL"
	WOStatusCompleted    WOStatus = "COMPLETED"
	WOStatusCancelled    WOStatus = "CANCELLED"
)

// WorkOrder is a production order against a CMT vendor for a finished good.
// ActualQty accumulates from finished-goods receipts.
type WorkOrder struct {
	ID             int64
	Number         string
	VendorID       int64
	FinishedGoodID int64
	PlannedQty     decimal.Decimal
	ActualQty      decimal.Decimal
	Status         WOStatus
	IssuedAt       time.Time
	CompletedAt    time.Time
	Note           string
	CreatedBy      int64
	CreatedAt      time.Time
}

// ConsumptionLine is one row of the work order's material plan snapshot,
// taken at creation time. IssuedQty and ReturnedQty are rolled up as
// material issues and vendor returns post against the work order.
type ConsumptionLine struct {
	ID          int64
	WorkOrderID int64
	MaterialID  int64
	PlannedQty  decimal.Decimal
	IssuedQty   decimal.Decimal
	ReturnedQty decimal.Decimal
}

// MaterialIssue documents materials sent to the vendor.
type MaterialIssue struct {
	ID          int64
	Number      string
	WorkOrderID int64
	TotalCost   decimal.Decimal
	IssuedAt    time.Time
	Note        string
	CreatedBy   int64
}

// MaterialIssueLine is one issued material, valued at the average cost in
// effect when the issue posted.
type MaterialIssueLine struct {
	ID         int64
	IssueID    int64
	MaterialID int64
	Qty        decimal.Decimal
	UnitCost   decimal.Decimal
	TotalCost  decimal.Decimal
}

// FGReceipt documents finished goods returned by the vendor. AcceptedQty is
// received minus rejected; UnitCost is the allocated production cost.
type FGReceipt struct {
	ID          int64
	Number      string
	WorkOrderID int64
	ReceivedQty decimal.Decimal
	RejectedQty decimal.Decimal
	AcceptedQty decimal.Decimal
	UnitCost    decimal.Decimal
	ReceivedAt  time.Time
	Note        string
	CreatedBy   int64
}

// Vendor return lifecycle statuses.
type ReturnStatus string

const (
	ReturnStatusDraft     ReturnStatus = "DRAFT"
	ReturnStatusProcessed ReturnStatus = "PROCESSED"
	ReturnStatusCompleted ReturnStatus = "COMPLETED"
)

// VendorReturn documents unused materials coming back from a vendor. Lines
// are valued at draft time from the current average cost; processing posts
// the stock effect; completion only attaches logistics metadata.
type VendorReturn struct {
	ID             int64
	Number         string
	WorkOrderID    int64
	VendorID       int64
	Status         ReturnStatus
	TotalValue     decimal.Decimal
	TrackingNumber string
	ReceiptProof   string
	Note           string
	CreatedBy      int64
	CreatedAt      time.Time
	ProcessedAt    time.Time
	CompletedAt    time.Time
}

// VendorReturnLine is one returned material.
type VendorReturnLine struct {
	ID         int64
	ReturnID   int64
	MaterialID int64
	Qty        decimal.Decimal
	UnitCost   decimal.Decimal
	TotalValue decimal.Decimal
}

var (
	// ErrWONotFound indicates a missing work order.
	ErrWONotFound = fmt.Errorf("production: work order %w", shared.ErrNotFound)
	// ErrReturnNotFound indicates a missing vendor return.
	ErrReturnNotFound = fmt.Errorf("production: vendor return %w", shared.ErrNotFound)
	// ErrHasFGReceipts blocks cancellation once finished goods were received.
	ErrHasFGReceipts = fmt.Errorf("%w: work order already has finished goods receipts", shared.ErrStateConflict)
	// ErrNotInPlan rejects issuing or returning a material absent from the
	// work order's consumption plan.
	ErrNotInPlan = fmt.Errorf("%w: material not in work order consumption plan", shared.ErrValidation)
	// ErrShortage blocks work order creation while any material is short.
	ErrShortage = errors.New("production: material shortage")
)

// ShortageError lists the short materials that blocked work order creation.
type ShortageError struct {
	Shortages map[int64]decimal.Decimal // materialID -> short quantity
}

func (e *ShortageError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for id, qty := range e.Shortages {
		parts = append(parts, fmt.Sprintf("material %d short %s", id, qty.String()))
	}
	return "production: material shortage: " + strings.Join(parts, ", ")
}

// Is lets errors.Is match both the package sentinel and the shared
// state-conflict category.
func (e *ShortageError) Is(target error) bool {
	return target == ErrShortage || target == shared.ErrStateConflict
}
