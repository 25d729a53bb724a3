package procurement

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/loomline-erp/loomline-erp/internal/inventory"
	"github.com/loomline-erp/loomline-erp/internal/sequence"
	"github.com/loomline-erp/loomline-erp/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPO(ctx context.Context, poID int64) (PurchaseOrder, []POItem, error)
	GetGRN(ctx context.Context, grnID int64) (GoodsReceipt, []GRNLine, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates purchase order and goods receipt workflows.
type Service struct {
	repo      RepositoryPort
	engine    *inventory.Engine
	sequencer *sequence.Sequencer
	gate      shared.StepUpGate
	audit     AuditPort
	clock     func() time.Time
}

// NewService constructs procurement service. clock may be nil.
func NewService(repo RepositoryPort, engine *inventory.Engine, sequencer *sequence.Sequencer, gate shared.StepUpGate, audit AuditPort, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{repo: repo, engine: engine, sequencer: sequencer, gate: gate, audit: audit, clock: clock}
}

// POLineInput describes one ordered line.
type POLineInput struct {
	ItemID     int64
	OrderedQty decimal.Decimal
	UnitPrice  decimal.Decimal
}

// CreatePOInput describes a purchase order creation payload.
type CreatePOInput struct {
	SupplierID int64
	ExpectedAt time.Time
	Note       string
	ActorID    int64
	Lines      []POLineInput
}

// CreatePurchaseOrder persists a DRAFT purchase order with a reserved number.
func (s *Service) CreatePurchaseOrder(ctx context.Context, input CreatePOInput) (PurchaseOrder, error) {
	if input.SupplierID == 0 || len(input.Lines) == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: supplier and at least one line required", shared.ErrValidation)
	}
	for _, line := range input.Lines {
		if line.ItemID == 0 || !line.OrderedQty.IsPositive() || line.UnitPrice.IsNegative() {
			return PurchaseOrder{}, fmt.Errorf("%w: purchase order line requires item, positive quantity and non-negative price", shared.ErrValidation)
		}
	}
	now := s.clock()
	po := PurchaseOrder{
		SupplierID: input.SupplierID,
		Status:     POStatusDraft,
		OrderedAt:  now,
		ExpectedAt: input.ExpectedAt,
		Note:       input.Note,
		CreatedBy:  input.ActorID,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := s.sequencer.Next(ctx, tx.Sequences(), sequence.DocTypePO, now)
		if err != nil {
			return err
		}
		po.Number = number
		poID, err := tx.CreatePO(ctx, po)
		if err != nil {
			return err
		}
		po.ID = poID
		for _, line := range input.Lines {
			item := POItem{POID: poID, ItemID: line.ItemID, OrderedQty: line.OrderedQty, ReceivedQty: decimal.Zero, UnitPrice: line.UnitPrice}
			if err := tx.InsertPOItem(ctx, item); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, input.ActorID, "procurement.po_create", po.Number, map[string]any{"supplier_id": input.SupplierID})
	return po, nil
}

// SubmitPurchaseOrder transitions DRAFT to SUBMITTED.
func (s *Service) SubmitPurchaseOrder(ctx context.Context, poID, actorID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, _, err := tx.GetPOForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		if po.Status != POStatusDraft {
			return fmt.Errorf("%w: purchase order %s is %s", shared.ErrStateConflict, po.Number, po.Status)
		}
		return tx.UpdatePOStatus(ctx, poID, POStatusSubmitted)
	})
}

// UpdatePOInput carries edits to a purchase order.
type UpdatePOInput struct {
	POID       int64
	SupplierID int64
	ExpectedAt time.Time
	Note       string
	Lines      []POLineInput
	ActorID    int64
	Credential string
}

// UpdatePurchaseOrder edits a purchase order. Drafts are freely editable;
// a submitted order additionally requires step-up verification. Orders with
// any goods receipt can no longer be edited.
func (s *Service) UpdatePurchaseOrder(ctx context.Context, input UpdatePOInput) error {
	current, _, err := s.repo.GetPO(ctx, input.POID)
	if err != nil {
		return err
	}
	switch current.Status {
	case POStatusDraft:
	case POStatusSubmitted:
		if s.gate != nil {
			if err := s.gate.Verify(ctx, input.ActorID, shared.ActionPOEditSubmitted, input.Credential); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: purchase order %s is %s", shared.ErrStateConflict, current.Number, current.Status)
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, _, err := tx.GetPOForUpdate(ctx, input.POID)
		if err != nil {
			return err
		}
		if po.Status != current.Status {
			return fmt.Errorf("%w: purchase order %s changed status concurrently", shared.ErrStateConflict, po.Number)
		}
		receipts, err := tx.CountReceipts(ctx, input.POID)
		if err != nil {
			return err
		}
		if receipts > 0 {
			return ErrHasReceipts
		}
		po.SupplierID = input.SupplierID
		po.ExpectedAt = input.ExpectedAt
		po.Note = input.Note
		if err := tx.UpdatePOHeader(ctx, po); err != nil {
			return err
		}
		if len(input.Lines) == 0 {
			return nil
		}
		items := make([]POItem, 0, len(input.Lines))
		for _, line := range input.Lines {
			if line.ItemID == 0 || !line.OrderedQty.IsPositive() || line.UnitPrice.IsNegative() {
				return fmt.Errorf("%w: purchase order line requires item, positive quantity and non-negative price", shared.ErrValidation)
			}
			items = append(items, POItem{ItemID: line.ItemID, OrderedQty: line.OrderedQty, ReceivedQty: decimal.Zero, UnitPrice: line.UnitPrice})
		}
		return tx.ReplacePOItems(ctx, input.POID, items)
	})
}

// CancelPurchaseOrder cancels a DRAFT or SUBMITTED order with no receipts.
// Requires step-up verification before any write.
func (s *Service) CancelPurchaseOrder(ctx context.Context, poID, actorID int64, credential string) error {
	if s.gate != nil {
		if err := s.gate.Verify(ctx, actorID, shared.ActionPOCancel, credential); err != nil {
			return err
		}
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, _, err := tx.GetPOForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		if po.Status != POStatusDraft && po.Status != POStatusSubmitted {
			return fmt.Errorf("%w: purchase order %s is %s", shared.ErrStateConflict, po.Number, po.Status)
		}
		receipts, err := tx.CountReceipts(ctx, poID)
		if err != nil {
			return err
		}
		if receipts > 0 {
			return ErrHasReceipts
		}
		return tx.UpdatePOStatus(ctx, poID, POStatusCancelled)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "procurement.po_cancel", fmt.Sprintf("%d", poID), nil)
	return nil
}

// GRNLineInput describes one received line.
type GRNLineInput struct {
	ItemID   int64
	Qty      decimal.Decimal
	UnitCost decimal.Decimal
}

// GoodsReceiptInput describes a goods receipt posting.
type GoodsReceiptInput struct {
	POID       int64
	SupplierID int64
	Note       string
	ActorID    int64
	Lines      []GRNLineInput
}

// GoodsReceiptResult reports the posted document.
type GoodsReceiptResult struct {
	GRN      GoodsReceipt
	POStatus POStatus
}

// PostGoodsReceipt posts a goods receipt in one transaction: document
// number, one receipt transition plus ledger row per line, received-quantity
// rollup on the linked purchase order and its status recomputation.
func (s *Service) PostGoodsReceipt(ctx context.Context, input GoodsReceiptInput) (GoodsReceiptResult, error) {
	if len(input.Lines) == 0 {
		return GoodsReceiptResult{}, fmt.Errorf("%w: at least one line required", shared.ErrValidation)
	}
	for _, line := range input.Lines {
		if line.ItemID == 0 || !line.Qty.IsPositive() || line.UnitCost.IsNegative() {
			return GoodsReceiptResult{}, fmt.Errorf("%w: receipt line requires item, positive quantity and non-negative cost", shared.ErrValidation)
		}
	}
	now := s.clock()
	var result GoodsReceiptResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var po PurchaseOrder
		var items []POItem
		if input.POID != 0 {
			var err error
			po, items, err = tx.GetPOForUpdate(ctx, input.POID)
			if err != nil {
				return err
			}
			if po.Status == POStatusDraft || po.Status == POStatusCancelled {
				return fmt.Errorf("%w: purchase order %s is %s", shared.ErrStateConflict, po.Number, po.Status)
			}
			if input.SupplierID == 0 {
				input.SupplierID = po.SupplierID
			}
		}
		number, err := s.sequencer.Next(ctx, tx.Sequences(), sequence.DocTypeGRN, now)
		if err != nil {
			return err
		}
		grn := GoodsReceipt{
			Number:     number,
			POID:       input.POID,
			SupplierID: input.SupplierID,
			ReceivedAt: now,
			TotalValue: decimal.Zero,
			Note:       input.Note,
			CreatedBy:  input.ActorID,
		}
		grnID, err := tx.CreateGRN(ctx, grn)
		if err != nil {
			return err
		}
		grn.ID = grnID

		total := decimal.Zero
		for _, line := range input.Lines {
			transition, err := s.engine.ApplyReceipt(ctx, tx.Inventory(), inventory.ReceiptInput{
				ItemID:   line.ItemID,
				Qty:      line.Qty,
				UnitCost: line.UnitCost,
				Type:     inventory.MovementIn,
				Ref:      inventory.DocRef{DocType: string(sequence.DocTypeGRN), DocID: grnID, DocNumber: number},
				Note:     input.Note,
				Now:      now,
			})
			if err != nil {
				return err
			}
			if err := tx.InsertGRNLine(ctx, GRNLine{GRNID: grnID, ItemID: line.ItemID, Qty: line.Qty, UnitCost: line.UnitCost}); err != nil {
				return err
			}
			total = total.Add(transition.Movement.TotalCost)

			if input.POID != 0 {
				for _, item := range items {
					if item.ItemID == line.ItemID {
						if err := tx.AddReceivedQty(ctx, item.ID, line.Qty); err != nil {
							return err
						}
						break
					}
				}
			}
		}
		if err := tx.SetGRNTotal(ctx, grnID, total); err != nil {
			return err
		}
		grn.TotalValue = total
		result.GRN = grn

		if input.POID != 0 {
			_, updated, err := tx.GetPOForUpdate(ctx, input.POID)
			if err != nil {
				return err
			}
			status := recomputeStatus(po.Status, updated)
			if status != po.Status {
				if err := tx.UpdatePOStatus(ctx, input.POID, status); err != nil {
					return err
				}
			}
			result.POStatus = status
		}
		return nil
	})
	if err != nil {
		return GoodsReceiptResult{}, err
	}
	s.recordAudit(ctx, input.ActorID, "procurement.grn_post", result.GRN.Number, map[string]any{
		"po_id": input.POID,
		"total": result.GRN.TotalValue.String(),
	})
	return result, nil
}

// GetPurchaseOrder loads a purchase order with lines.
func (s *Service) GetPurchaseOrder(ctx context.Context, poID int64) (PurchaseOrder, []POItem, error) {
	return s.repo.GetPO(ctx, poID)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "procurement",
		EntityID: entityID,
		Meta:     meta,
	})
}
