package procurement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/loomline-erp/loomline-erp/internal/shared"
)

// Purchase order lifecycle statuses.
type POStatus string

const (
	POStatusDraft     POStatus = "DRAFT"
	POStatusSubmitted POStatus = "SUBMITTED"
	POStatusPartial   POStatus = "PARTIAL"
	POStatusClosed    POStatus = "CLOSED"
	POStatusOver      POStatus = "OVER"
	POStatusCancelled POStatus = "CANCELLED"
)

// PurchaseOrder is an order placed with a supplier.
type PurchaseOrder struct {
	ID         int64
	Number     string
	SupplierID int64
	Status     POStatus
	OrderedAt  time.Time
	ExpectedAt time.Time
	Note       string
	CreatedBy  int64
	CreatedAt  time.Time
}

// POItem is one ordered line. ReceivedQty is rolled up by goods receipts.
type POItem struct {
	ID          int64
	POID        int64
	ItemID      int64
	OrderedQty  decimal.Decimal
	ReceivedQty decimal.Decimal
	UnitPrice   decimal.Decimal
}

// GoodsReceipt records physical receipt of purchased materials, against a
// purchase order or standalone.
type GoodsReceipt struct {
	ID         int64
	Number     string
	POID       int64
	SupplierID int64
	ReceivedAt time.Time
	TotalValue decimal.Decimal
	Note       string
	CreatedBy  int64
}

// GRNLine is one received line.
type GRNLine struct {
	ID       int64
	GRNID    int64
	ItemID   int64
	Qty      decimal.Decimal
	UnitCost decimal.Decimal
}

var (
	// ErrPONotFound indicates a missing purchase order.
	ErrPONotFound = fmt.Errorf("procurement: purchase order %w", shared.ErrNotFound)
	// ErrGRNNotFound indicates a missing goods receipt.
	ErrGRNNotFound = fmt.Errorf("procurement: goods receipt %w", shared.ErrNotFound)
	// ErrHasReceipts blocks cancellation or line edits once goods were received.
	ErrHasReceipts = fmt.Errorf("%w: purchase order already has goods receipts", shared.ErrStateConflict)
)

// recomputeStatus derives the purchase order status from its lines after a
// receipt. CLOSED when every line is fully received, OVER when any line
// exceeds its ordered quantity, PARTIAL when anything has been received,
// otherwise the current status stands.
func recomputeStatus(current POStatus, items []POItem) POStatus {
	allComplete := true
	anyOver := false
	anyReceived := false
	for _, item := range items {
		if item.ReceivedQty.IsPositive() {
			anyReceived = true
		}
		if item.ReceivedQty.LessThan(item.OrderedQty) {
			allComplete = false
		}
		if item.ReceivedQty.GreaterThan(item.OrderedQty) {
			anyOver = true
		}
	}
	switch {
	case anyOver:
		return POStatusOver
	case allComplete && len(items) > 0:
		return POStatusClosed
	case anyReceived:
		return POStatusPartial
	default:
		return current
	}
}
