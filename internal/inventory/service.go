package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/loomline-erp/loomline-erp/internal/sequence"
	"github.com/loomline-erp/loomline-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
	GetItem(ctx context.Context, itemID int64) (Item, error)
	GetValue(ctx context.Context, itemID int64) (InventoryValue, error)
	GetStockCard(ctx context.Context, filter StockCardFilter) (StockCard, error)
	ListMovements(ctx context.Context, itemID int64) ([]StockMovement, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates inventory reads and the stock adjustment workflow.
type Service struct {
	repo      RepositoryPort
	engine    *Engine
	sequencer *sequence.Sequencer
	gate      shared.StepUpGate
	clock     func() time.Time
}

// NewService builds Service. clock may be nil, defaulting to time.Now.
func NewService(repo RepositoryPort, engine *Engine, sequencer *sequence.Sequencer, gate shared.StepUpGate, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{repo: repo, engine: engine, sequencer: sequencer, gate: gate, clock: clock}
}

// GetStockCard returns the movement report for one item.
func (s *Service) GetStockCard(ctx context.Context, filter StockCardFilter) (StockCard, error) {
	if filter.ItemID == 0 {
		return StockCard{}, fmt.Errorf("%w: item required", shared.ErrValidation)
	}
	return s.repo.GetStockCard(ctx, filter)
}

// GetValue returns the current costing state for one item.
func (s *Service) GetValue(ctx context.Context, itemID int64) (InventoryValue, error) {
	if itemID == 0 {
		return InventoryValue{}, fmt.Errorf("%w: item required", shared.ErrValidation)
	}
	v, err := s.repo.GetValue(ctx, itemID)
	if errors.Is(err, ErrValueNotFound) {
		return InventoryValue{ItemID: itemID, QtyOnHand: decimal.Zero, AvgCost: decimal.Zero, TotalValue: decimal.Zero}, nil
	}
	return v, err
}

// AdjustmentInput describes a signed stock adjustment request.
type AdjustmentInput struct {
	ItemID     int64
	Qty        decimal.Decimal
	Reason     string
	ActorID    int64
	Credential string
}

// AdjustmentResult reports the posted document and before/after state.
type AdjustmentResult struct {
	DocNumber string
	Before    InventoryValue
	After     InventoryValue
}

// PostAdjustment runs the stock adjustment workflow: step-up verification
// before any write, then document number, costing transition, ledger row and
// audit trail inside one transaction.
func (s *Service) PostAdjustment(ctx context.Context, input AdjustmentInput) (AdjustmentResult, error) {
	if input.ItemID == 0 {
		return AdjustmentResult{}, fmt.Errorf("%w: item required", shared.ErrValidation)
	}
	if input.Qty.IsZero() {
		return AdjustmentResult{}, fmt.Errorf("%w: adjustment quantity must be non-zero", shared.ErrValidation)
	}
	if input.Reason == "" {
		return AdjustmentResult{}, fmt.Errorf("%w: adjustment reason required", shared.ErrValidation)
	}
	if s.gate != nil {
		if err := s.gate.Verify(ctx, input.ActorID, shared.ActionStockAdjust, input.Credential); err != nil {
			return AdjustmentResult{}, err
		}
	}
	if _, err := s.repo.GetItem(ctx, input.ItemID); err != nil {
		return AdjustmentResult{}, err
	}

	now := s.clock()
	var result AdjustmentResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		docNumber, err := s.sequencer.Next(ctx, tx.Sequences(), sequence.DocTypeADJ, now)
		if err != nil {
			return err
		}
		ref := DocRef{DocType: string(sequence.DocTypeADJ), DocNumber: docNumber}
		transition, err := s.engine.ApplyAdjustment(ctx, tx, input.ItemID, input.Qty, ref, input.Reason, now)
		if err != nil {
			return err
		}
		result = AdjustmentResult{DocNumber: docNumber, Before: transition.Before, After: transition.After}
		return tx.Audit().Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "inventory.adjustment",
			Entity:   "stock_adjustment",
			EntityID: docNumber,
			Meta: map[string]any{
				"item_id":      input.ItemID,
				"qty":          input.Qty.String(),
				"reason":       input.Reason,
				"before_qty":   transition.Before.QtyOnHand.String(),
				"before_value": transition.Before.TotalValue.String(),
				"after_qty":    transition.After.QtyOnHand.String(),
				"after_value":  transition.After.TotalValue.String(),
			},
			At: now,
		})
	})
	if err != nil {
		return AdjustmentResult{}, err
	}
	return result, nil
}
