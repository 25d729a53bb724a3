package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/loomline-erp/loomline-erp/internal/shared"
)

// ItemType classifies stock keeping units.
type ItemType string

const (
	ItemTypeFabric       ItemType = "FABRIC"
	ItemTypeAccessory    ItemType = "ACCESSORY"
	ItemTypeFinishedGood ItemType = "FINISHED_GOOD"
)

// Item is a stock keeping unit. The catalog owns its lifecycle; the costing
// core only reads it and mutates the linked InventoryValue.
type Item struct {
	ID           int64
	SKU          string
	Name         string
	Type         ItemType
	UOM          string
	ReorderPoint decimal.Decimal
	CreatedAt    time.Time
}

// InventoryValue is the current costing state of one item, exactly one row
// per item. Invariant after every mutation: TotalValue == QtyOnHand * AvgCost.
type InventoryValue struct {
	ItemID     int64
	QtyOnHand  decimal.Decimal
	AvgCost    decimal.Decimal
	TotalValue decimal.Decimal
	UpdatedAt  time.Time
}

// MovementType enumerates ledger entry kinds.
type MovementType string

const (
	MovementIn         MovementType = "IN"
	MovementOut        MovementType = "OUT"
	MovementAdjustment MovementType = "ADJUSTMENT"
)

// DocRef identifies the document a movement originated from.
type DocRef struct {
	DocType   string
	DocID     int64
	DocNumber string
}

// StockMovement is an append-only ledger row. Qty is signed: positive for
// inbound, negative for outbound and adjustment decreases. BalanceQty and
// BalanceValue snapshot the InventoryValue state immediately after this
// movement was applied.
type StockMovement struct {
	ID           int64
	ItemID       int64
	Type         MovementType
	Ref          DocRef
	Qty          decimal.Decimal
	UnitCost     decimal.Decimal
	TotalCost    decimal.Decimal
	BalanceQty   decimal.Decimal
	BalanceValue decimal.Decimal
	Note         string
	CreatedAt    time.Time
}

// StockCardEntry is one row of the stock card report.
type StockCardEntry struct {
	DocNumber    string
	DocType      string
	Type         MovementType
	QtyIn        decimal.Decimal
	QtyOut       decimal.Decimal
	UnitCost     decimal.Decimal
	BalanceQty   decimal.Decimal
	BalanceValue decimal.Decimal
	Note         string
	PostedAt     time.Time
}

// StockCard is the report for one item and date range.
type StockCard struct {
	ItemID       int64
	OpeningQty   decimal.Decimal
	OpeningValue decimal.Decimal
	Entries      []StockCardEntry
}

// StockCardFilter selects the report range.
type StockCardFilter struct {
	ItemID int64
	From   time.Time
	To     time.Time
	Limit  int
}

var (
	// ErrItemNotFound indicates an unknown item id or SKU.
	ErrItemNotFound = fmt.Errorf("inventory: item %w", shared.ErrNotFound)
	// ErrInvalidQuantity indicates a non-positive quantity input.
	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	// ErrInvalidUnitCost indicates a negative unit cost input.
	ErrInvalidUnitCost = fmt.Errorf("%w: unit cost must be >= 0", shared.ErrValidation)
	// ErrInsufficientStock is the category matched by errors.Is for
	// consumptions that would drive quantity negative.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
)

// InsufficientStockError identifies the item whose on-hand quantity cannot
// cover a requested consumption. It aborts the whole enclosing transaction.
type InsufficientStockError struct {
	ItemID    int64
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock for item %d: requested %s, available %s",
		e.ItemID, e.Requested.String(), e.Available.String())
}

// Is lets errors.Is match the typed error both as the insufficient stock
// category and as a state conflict for HTTP mapping.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock || target == shared.ErrStateConflict
}
