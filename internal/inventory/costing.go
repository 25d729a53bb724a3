package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// Costing transitions are pure functions over InventoryValue snapshots so
// the moving-average arithmetic is testable without persistence. All math
// uses decimal; binary floating point never touches a quantity or cost.
//
// Quantity and total value are the canonical state. The average cost is
// re-derived as totalValue/qtyOnHand after each transition, so replaying
// the signed movement values always reproduces the stored total exactly
// while qty*avgCost matches it within division precision.

// receive applies an inbound movement using the weighted-average formula:
//
//	newTotal = prevTotal + qty*unitCost
//	newAvg   = newTotal / newQty (0 when newQty is 0)
func receive(prev InventoryValue, qty, unitCost decimal.Decimal, now time.Time) InventoryValue {
	newQty := prev.QtyOnHand.Add(qty)
	newTotal := prev.TotalValue.Add(qty.Mul(unitCost))
	newAvg := decimal.Zero
	if newQty.IsPositive() {
		newAvg = newTotal.Div(newQty)
	} else {
		// Zero stock carries no cost forward; the next receipt starts fresh.
		newTotal = decimal.Zero
	}
	return InventoryValue{
		ItemID:     prev.ItemID,
		QtyOnHand:  newQty,
		AvgCost:    newAvg,
		TotalValue: newTotal,
		UpdatedAt:  now,
	}
}

// consume applies an outbound movement at the current average cost. The
// average is not recomputed on the way out. Returns the outgoing value
// (qty * prevAvg) alongside the new state.
func consume(prev InventoryValue, qty decimal.Decimal, now time.Time) (InventoryValue, decimal.Decimal, error) {
	if qty.GreaterThan(prev.QtyOnHand) {
		return InventoryValue{}, decimal.Zero, &InsufficientStockError{
			ItemID:    prev.ItemID,
			Requested: qty,
			Available: prev.QtyOnHand,
		}
	}
	outgoingValue := qty.Mul(prev.AvgCost)
	newQty := prev.QtyOnHand.Sub(qty)
	newTotal := prev.TotalValue.Sub(outgoingValue)
	newAvg := prev.AvgCost
	if newQty.IsZero() {
		// Reset so a stale cost never leaks into a receipt against zero stock.
		newAvg = decimal.Zero
		newTotal = decimal.Zero
	}
	return InventoryValue{
		ItemID:     prev.ItemID,
		QtyOnHand:  newQty,
		AvgCost:    newAvg,
		TotalValue: newTotal,
		UpdatedAt:  now,
	}, outgoingValue, nil
}

// Replay folds movements in creation order from a zero balance, applying the
// same zero-quantity reset the transitions do. The result must reproduce the
// current InventoryValue exactly; the integrity job and tests rely on this.
func Replay(movements []StockMovement) (qty, value decimal.Decimal) {
	qty, value = decimal.Zero, decimal.Zero
	for _, m := range movements {
		qty = qty.Add(m.Qty)
		value = value.Add(m.TotalCost)
		if qty.IsZero() {
			value = decimal.Zero
		}
	}
	return qty, value
}
