package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// TxStore is the persistence surface the engine needs inside the caller's
// transaction. GetValueForUpdate must take a row lock on the item's
// InventoryValue so concurrent workflows serialize per item.
type TxStore interface {
	GetValueForUpdate(ctx context.Context, itemID int64) (InventoryValue, error)
	UpsertValue(ctx context.Context, value InventoryValue) error
	InsertMovement(ctx context.Context, movement StockMovement) (int64, error)
}

// ErrValueNotFound indicates the item has no InventoryValue row yet. The
// engine treats it as a zero balance and upserts.
var ErrValueNotFound = errors.New("inventory: value row not found")

// Transition is the before/after result of one costing engine application.
// Movement carries exactly the after state as its balance snapshot.
type Transition struct {
	Before   InventoryValue
	After    InventoryValue
	Movement StockMovement
}

// Engine applies moving-average costing transitions and writes the matching
// ledger row in the same transaction. It holds no state of its own.
type Engine struct{}

// NewEngine constructs the costing engine.
func NewEngine() *Engine {
	return &Engine{}
}

// ReceiptInput describes an inbound application.
type ReceiptInput struct {
	ItemID   int64
	Qty      decimal.Decimal
	UnitCost decimal.Decimal
	Type     MovementType
	Ref      DocRef
	Note     string
	Now      time.Time
}

// ConsumptionInput describes an outbound application at current average cost.
type ConsumptionInput struct {
	ItemID int64
	Qty    decimal.Decimal
	Type   MovementType
	Ref    DocRef
	Note   string
	Now    time.Time
}

// ApplyReceipt locks the item's value row, applies the weighted-average
// receipt transition, persists the new state and appends the ledger row.
func (e *Engine) ApplyReceipt(ctx context.Context, store TxStore, in ReceiptInput) (Transition, error) {
	if !in.Qty.IsPositive() {
		return Transition{}, ErrInvalidQuantity
	}
	if in.UnitCost.IsNegative() {
		return Transition{}, ErrInvalidUnitCost
	}
	prev, err := e.lockValue(ctx, store, in.ItemID)
	if err != nil {
		return Transition{}, err
	}
	next := receive(prev, in.Qty, in.UnitCost, in.Now)
	movementType := in.Type
	if movementType == "" {
		movementType = MovementIn
	}
	movement := StockMovement{
		ItemID:       in.ItemID,
		Type:         movementType,
		Ref:          in.Ref,
		Qty:          in.Qty,
		UnitCost:     in.UnitCost,
		TotalCost:    in.Qty.Mul(in.UnitCost),
		BalanceQty:   next.QtyOnHand,
		BalanceValue: next.TotalValue,
		Note:         in.Note,
		CreatedAt:    in.Now,
	}
	return e.persist(ctx, store, prev, next, movement)
}

// ApplyConsumption locks the value row, verifies sufficiency and applies the
// outbound transition at the current average cost. The whole enclosing
// transaction fails when stock cannot cover the quantity.
func (e *Engine) ApplyConsumption(ctx context.Context, store TxStore, in ConsumptionInput) (Transition, error) {
	if !in.Qty.IsPositive() {
		return Transition{}, ErrInvalidQuantity
	}
	prev, err := e.lockValue(ctx, store, in.ItemID)
	if err != nil {
		return Transition{}, err
	}
	next, outgoingValue, err := consume(prev, in.Qty, in.Now)
	if err != nil {
		return Transition{}, err
	}
	movementType := in.Type
	if movementType == "" {
		movementType = MovementOut
	}
	movement := StockMovement{
		ItemID:       in.ItemID,
		Type:         movementType,
		Ref:          in.Ref,
		Qty:          in.Qty.Neg(),
		UnitCost:     prev.AvgCost,
		TotalCost:    outgoingValue.Neg(),
		BalanceQty:   next.QtyOnHand,
		BalanceValue: next.TotalValue,
		Note:         in.Note,
		CreatedAt:    in.Now,
	}
	return e.persist(ctx, store, prev, next, movement)
}

// ApplyAdjustment routes a signed quantity through the matching transition.
// Positive adjustments post at the current average cost, so only quantity
// and total value move; negative adjustments are consumptions.
func (e *Engine) ApplyAdjustment(ctx context.Context, store TxStore, itemID int64, qty decimal.Decimal, ref DocRef, note string, now time.Time) (Transition, error) {
	if qty.IsZero() {
		return Transition{}, ErrInvalidQuantity
	}
	if qty.IsPositive() {
		prev, err := e.lockValue(ctx, store, itemID)
		if err != nil {
			return Transition{}, err
		}
		next := receive(prev, qty, prev.AvgCost, now)
		movement := StockMovement{
			ItemID:       itemID,
			Type:         MovementAdjustment,
			Ref:          ref,
			Qty:          qty,
			UnitCost:     prev.AvgCost,
			TotalCost:    qty.Mul(prev.AvgCost),
			BalanceQty:   next.QtyOnHand,
			BalanceValue: next.TotalValue,
			Note:         note,
			CreatedAt:    now,
		}
		return e.persist(ctx, store, prev, next, movement)
	}
	return e.ApplyConsumption(ctx, store, ConsumptionInput{
		ItemID: itemID,
		Qty:    qty.Neg(),
		Type:   MovementAdjustment,
		Ref:    ref,
		Note:   note,
		Now:    now,
	})
}

func (e *Engine) lockValue(ctx context.Context, store TxStore, itemID int64) (InventoryValue, error) {
	prev, err := store.GetValueForUpdate(ctx, itemID)
	if err != nil {
		if errors.Is(err, ErrValueNotFound) {
			return InventoryValue{ItemID: itemID, QtyOnHand: decimal.Zero, AvgCost: decimal.Zero, TotalValue: decimal.Zero}, nil
		}
		return InventoryValue{}, err
	}
	return prev, nil
}

func (e *Engine) persist(ctx context.Context, store TxStore, prev, next InventoryValue, movement StockMovement) (Transition, error) {
	if err := store.UpsertValue(ctx, next); err != nil {
		return Transition{}, err
	}
	id, err := store.InsertMovement(ctx, movement)
	if err != nil {
		return Transition{}, err
	}
	movement.ID = id
	return Transition{Before: prev, After: next, Movement: movement}, nil
}
