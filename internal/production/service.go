package production

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/loomline-erp/loomline-erp/internal/inventory"
	"github.com/loomline-erp/loomline-erp/internal/mrp"
	"github.com/loomline-erp/loomline-erp/internal/sequence"
	"github.com/loomline-erp/loomline-erp/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetWO(ctx context.Context, woID int64) (WorkOrder, []ConsumptionLine, error)
	GetReturn(ctx context.Context, returnID int64) (VendorReturn, []VendorReturnLine, error)
}

// PlannerPort abstracts the material requirement planner.
type PlannerPort interface {
	Plan(ctx context.Context, finishedGoodID int64, plannedQty decimal.Decimal) (mrp.Plan, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates contract-manufacturing production workflows.
type Service struct {
	repo      RepositoryPort
	planner   PlannerPort
	engine    *inventory.Engine
	sequencer *sequence.Sequencer
	audit     AuditPort
	clock     func() time.Time
}

// NewService constructs production service. clock may be nil.
func NewService(repo RepositoryPort, planner PlannerPort, engine *inventory.Engine, sequencer *sequence.Sequencer, audit AuditPort, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{repo: repo, planner: planner, engine: engine, sequencer: sequencer, audit: audit, clock: clock}
}

// PlanMaterials exposes the planner for plan previews.
func (s *Service) PlanMaterials(ctx context.Context, finishedGoodID int64, plannedQty decimal.Decimal) (mrp.Plan, error) {
	return s.planner.Plan(ctx, finishedGoodID, plannedQty)
}

// CreateWOInput describes a work order creation payload.
type CreateWOInput struct {
	VendorID       int64
	FinishedGoodID int64
	PlannedQty     decimal.Decimal
	Note           string
	ActorID        int64
}

// CreateWorkOrder re-evaluates the material plan at submit time and creates
// the work order with its consumption plan snapshot. Any positive shortage
// fails the creation with nothing persisted.
func (s *Service) CreateWorkOrder(ctx context.Context, input CreateWOInput) (WorkOrder, error) {
	if input.VendorID == 0 || input.FinishedGoodID == 0 {
		return WorkOrder{}, fmt.Errorf("%w: vendor and finished good required", shared.ErrValidation)
	}
	if !input.PlannedQty.IsPositive() {
		return WorkOrder{}, fmt.Errorf("%w: planned quantity must be positive", shared.ErrValidation)
	}
	plan, err := s.planner.Plan(ctx, input.FinishedGoodID, input.PlannedQty)
	if err != nil {
		return WorkOrder{}, err
	}
	if plan.HasShortage() {
		shortages := make(map[int64]decimal.Decimal)
		for _, line := range plan.Lines {
			if line.ShortageQty.IsPositive() {
				shortages[line.MaterialID] = line.ShortageQty
			}
		}
		return WorkOrder{}, &ShortageError{Shortages: shortages}
	}

	now := s.clock()
	wo := WorkOrder{
		VendorID:       input.VendorID,
		FinishedGoodID: input.FinishedGoodID,
		PlannedQty:     input.PlannedQty,
		ActualQty:      decimal.Zero,
		Status:         WOStatusDraft,
		Note:           input.Note,
		CreatedBy:      input.ActorID,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := s.sequencer.Next(ctx, tx.Sequences(), sequence.DocTypeWO, now)
		if err != nil {
			return err
		}
		wo.Number = number
		woID, err := tx.CreateWO(ctx, wo)
		if err != nil {
			return err
		}
		wo.ID = woID
		for _, line := range plan.Lines {
			cl := ConsumptionLine{
				WorkOrderID: woID,
				MaterialID:  line.MaterialID,
				PlannedQty:  line.RequiredQty,
				IssuedQty:   decimal.Zero,
				ReturnedQty: decimal.Zero,
			}
			if err := tx.InsertConsumptionLine(ctx, cl); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return WorkOrder{}, err
	}
	s.recordAudit(ctx, input.ActorID, "production.wo_create", wo.Number, map[string]any{
		"finished_good_id": input.FinishedGoodID,
		"planned_qty":      input.PlannedQty.String(),
	})
	return wo, nil
}

// IssueWorkOrder transitions DRAFT to ISSUED.
func (s *Service) IssueWorkOrder(ctx context.Context, woID, actorID int64) error {
	now := s.clock()
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		wo, err := tx.GetWOForUpdate(ctx, woID)
		if err != nil {
			return err
		}
		if wo.Status != WOStatusDraft {
			return fmt.Errorf("%w: work order %s is %s", shared.ErrStateConflict, wo.Number, wo.Status)
		}
		return tx.UpdateWOStatus(ctx, woID, WOStatusIssued, now, time.Time{})
	})
}

// CancelWorkOrder cancels a DRAFT or ISSUED work order. Blocked once any
// finished goods receipt exists.
func (s *Service) CancelWorkOrder(ctx context.Context, woID, actorID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		wo, err := tx.GetWOForUpdate(ctx, woID)
		if err != nil {
			return err
		}
		if wo.Status != WOStatusDraft && wo.Status != WOStatusIssued {
			return fmt.Errorf("%w: work order %s is %s", shared.ErrStateConflict, wo.Number, wo.Status)
		}
		receipts, err := tx.CountFGReceipts(ctx, woID)
		if err != nil {
			return err
		}
		if receipts > 0 {
			return ErrHasFGReceipts
		}
		return tx.UpdateWOStatus(ctx, woID, WOStatusCancelled, time.Time{}, time.Time{})
	})
}

// IssueLineInput requests one material quantity.
type IssueLineInput struct {
	MaterialID int64
	Qty        decimal.Decimal
}

// MaterialIssueInput describes a material issue posting.
type MaterialIssueInput struct {
	WorkOrderID int64
	Note        string
	ActorID     int64
	Lines       []IssueLineInput
}

// PostMaterialIssue posts materials to the vendor in one transaction: each
// line is a consumption at the current average cost with a sufficiency
// check; the consumption plan's issuedQty rolls up; the first issue moves
// the work order into IN_PRODUCTION.
func (s *Service) PostMaterialIssue(ctx context.Context, input MaterialIssueInput) (MaterialIssue, error) {
	if input.WorkOrderID == 0 || len(input.Lines) == 0 {
		return MaterialIssue{}, fmt.Errorf("%w: work order and at least one line required", shared.ErrValidation)
	}
	for _, line := range input.Lines {
		if line.MaterialID == 0 || !line.Qty.IsPositive() {
			return MaterialIssue{}, fmt.Errorf("%w: issue line requires material and positive quantity", shared.ErrValidation)
		}
	}
	now := s.clock()
	var issue MaterialIssue
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		wo, err := tx.GetWOForUpdate(ctx, input.WorkOrderID)
		if err != nil {
			return err
		}
		switch wo.Status {
		case WOStatusIssued, WOStatusInProduction, WOStatusPartial:
		default:
			return fmt.Errorf("%w: work order %s is %s", shared.ErrStateConflict, wo.Number, wo.Status)
		}
		planLines, err := tx.GetConsumptionLinesForUpdate(ctx, input.WorkOrderID)
		if err != nil {
			return err
		}
		byMaterial := make(map[int64]ConsumptionLine, len(planLines))
		for _, line := range planLines {
			byMaterial[line.MaterialID] = line
		}

		number, err := s.sequencer.Next(ctx, tx.Sequences(), sequence.DocTypeIssue, now)
		if err != nil {
			return err
		}
		issue = MaterialIssue{Number: number, WorkOrderID: input.WorkOrderID, TotalCost: decimal.Zero, IssuedAt: now, Note: input.Note, CreatedBy: input.ActorID}
		issueID, err := tx.CreateIssue(ctx, issue)
		if err != nil {
			return err
		}
		issue.ID = issueID

		total := decimal.Zero
		for _, line := range input.Lines {
			planLine, ok := byMaterial[line.MaterialID]
			if !ok {
				return fmt.Errorf("%w: material %d", ErrNotInPlan, line.MaterialID)
			}
			transition, err := s.engine.ApplyConsumption(ctx, tx.Inventory(), inventory.ConsumptionInput{
				ItemID: line.MaterialID,
				Qty:    line.Qty,
				Type:   inventory.MovementOut,
				Ref:    inventory.DocRef{DocType: string(sequence.DocTypeIssue), DocID: issueID, DocNumber: number},
				Note:   fmt.Sprintf("Issue to WO %s", wo.Number),
				Now:    now,
			})
			if err != nil {
				return err
			}
			lineCost := transition.Movement.TotalCost.Neg()
			if err := tx.InsertIssueLine(ctx, MaterialIssueLine{
				IssueID:    issueID,
				MaterialID: line.MaterialID,
				Qty:        line.Qty,
				UnitCost:   transition.Movement.UnitCost,
				TotalCost:  lineCost,
			}); err != nil {
				return err
			}
			if err := tx.AddIssuedQty(ctx, planLine.ID, line.Qty); err != nil {
				return err
			}
			total = total.Add(lineCost)
		}
		if err := tx.SetIssueTotal(ctx, issueID, total); err != nil {
			return err
		}
		issue.TotalCost = total

		if wo.Status == WOStatusIssued {
			if err := tx.UpdateWOStatus(ctx, input.WorkOrderID, WOStatusInProduction, time.Time{}, time.Time{}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return MaterialIssue{}, err
	}
	s.recordAudit(ctx, input.ActorID, "production.issue_post", issue.Number, map[string]any{
		"work_order_id": input.WorkOrderID,
		"total_cost":    issue.TotalCost.String(),
	})
	return issue, nil
}

// FGReceiptInput describes a finished goods receipt.
type FGReceiptInput struct {
	WorkOrderID int64
	ReceivedQty decimal.Decimal
	RejectedQty decimal.Decimal
	Note        string
	ActorID     int64
}

// PostFGReceipt receives finished goods from the vendor. The accepted
// quantity enters stock at the allocated cost: total material issue cost
// posted to the work order divided by the accepted quantity.
func (s *Service) PostFGReceipt(ctx context.Context, input FGReceiptInput) (FGReceipt, error) {
	if input.WorkOrderID == 0 {
		return FGReceipt{}, fmt.Errorf("%w: work order required", shared.ErrValidation)
	}
	if !input.ReceivedQty.IsPositive() || input.RejectedQty.IsNegative() {
		return FGReceipt{}, fmt.Errorf("%w: received quantity must be positive and rejected non-negative", shared.ErrValidation)
	}
	accepted := input.ReceivedQty.Sub(input.RejectedQty)
	if accepted.IsNegative() {
		return FGReceipt{}, fmt.Errorf("%w: rejected quantity exceeds received", shared.ErrValidation)
	}
	now := s.clock()
	var receipt FGReceipt
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		wo, err := tx.GetWOForUpdate(ctx, input.WorkOrderID)
		if err != nil {
			return err
		}
		switch wo.Status {
		case WOStatusInProduction, WOStatusPartial:
		default:
			return fmt.Errorf("%w: work order %s is %s", shared.ErrStateConflict, wo.Number, wo.Status)
		}
		number, err := s.sequencer.Next(ctx, tx.Sequences(), sequence.DocTypeReceipt, now)
		if err != nil {
			return err
		}
		issuedCost, err := tx.SumIssueCost(ctx, input.WorkOrderID)
		if err != nil {
			return err
		}
		unitCost := decimal.Zero
		if accepted.IsPositive() {
			unitCost = issuedCost.Div(accepted)
		}
		receipt = FGReceipt{
			Number:      number,
			WorkOrderID: input.WorkOrderID,
			ReceivedQty: input.ReceivedQty,
			RejectedQty: input.RejectedQty,
			AcceptedQty: accepted,
			UnitCost:    unitCost,
			ReceivedAt:  now,
			Note:        input.Note,
			CreatedBy:   input.ActorID,
		}
		receiptID, err := tx.CreateFGReceipt(ctx, receipt)
		if err != nil {
			return err
		}
		receipt.ID = receiptID

		if accepted.IsPositive() {
			_, err = s.engine.ApplyReceipt(ctx, tx.Inventory(), inventory.ReceiptInput{
				ItemID:   wo.FinishedGoodID,
				Qty:      accepted,
				UnitCost: unitCost,
				Type:     inventory.MovementIn,
				Ref:      inventory.DocRef{DocType: string(sequence.DocTypeReceipt), DocID: receiptID, DocNumber: number},
				Note:     fmt.Sprintf("FG receipt for WO %s", wo.Number),
				Now:      now,
			})
			if err != nil {
				return err
			}
			if err := tx.AddActualQty(ctx, input.WorkOrderID, accepted); err != nil {
				return err
			}
		}

		newActual := wo.ActualQty.Add(accepted)
		status := WOStatusPartial
		completedAt := time.Time{}
		if newActual.GreaterThanOrEqual(wo.PlannedQty) {
			status = WOStatusCompleted
			completedAt = now
		}
		return tx.UpdateWOStatus(ctx, input.WorkOrderID, status, time.Time{}, completedAt)
	})
	if err != nil {
		return FGReceipt{}, err
	}
	s.recordAudit(ctx, input.ActorID, "production.fg_receipt_post", receipt.Number, map[string]any{
		"work_order_id": input.WorkOrderID,
		"accepted_qty":  receipt.AcceptedQty.String(),
		"unit_cost":     receipt.UnitCost.String(),
	})
	return receipt, nil
}

// ReturnLineInput requests one returned material quantity.
type ReturnLineInput struct {
	MaterialID int64
	Qty        decimal.Decimal
}

// VendorReturnInput describes a vendor return draft.
type VendorReturnInput struct {
	WorkOrderID int64
	VendorID    int64
	Note        string
	ActorID     int64
	Lines       []ReturnLineInput
}

// CreateVendorReturn records a DRAFT return with lines valued at the
// current average cost. No stock moves until the return is processed.
func (s *Service) CreateVendorReturn(ctx context.Context, input VendorReturnInput) (VendorReturn, error) {
	if input.VendorID == 0 || len(input.Lines) == 0 {
		return VendorReturn{}, fmt.Errorf("%w: vendor and at least one line required", shared.ErrValidation)
	}
	for _, line := range input.Lines {
		if line.MaterialID == 0 || !line.Qty.IsPositive() {
			return VendorReturn{}, fmt.Errorf("%w: return line requires material and positive quantity", shared.ErrValidation)
		}
	}
	now := s.clock()
	var ret VendorReturn
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := s.sequencer.Next(ctx, tx.Sequences(), sequence.DocTypeRET, now)
		if err != nil {
			return err
		}
		ret = VendorReturn{
			Number:      number,
			WorkOrderID: input.WorkOrderID,
			VendorID:    input.VendorID,
			Status:      ReturnStatusDraft,
			TotalValue:  decimal.Zero,
			Note:        input.Note,
			CreatedBy:   input.ActorID,
		}
		retID, err := tx.CreateReturn(ctx, ret)
		if err != nil {
			return err
		}
		ret.ID = retID
		total := decimal.Zero
		for _, line := range input.Lines {
			value, err := tx.Inventory().GetValueForUpdate(ctx, line.MaterialID)
			if err != nil && !errors.Is(err, inventory.ErrValueNotFound) {
				return err
			}
			lineValue := line.Qty.Mul(value.AvgCost)
			if err := tx.InsertReturnLine(ctx, VendorReturnLine{
				ReturnID:   retID,
				MaterialID: line.MaterialID,
				Qty:        line.Qty,
				UnitCost:   value.AvgCost,
				TotalValue: lineValue,
			}); err != nil {
				return err
			}
			total = total.Add(lineValue)
		}
		ret.TotalValue = total
		return tx.SetReturnTotal(ctx, retID, total)
	})
	if err != nil {
		return VendorReturn{}, err
	}
	return ret, nil
}

// ProcessVendorReturn posts the stock effect of a DRAFT return: each line
// re-enters stock as a receipt at its draft valuation, and the linked work
// order's returnedQty rolls up. Fails unless the return is still DRAFT.
func (s *Service) ProcessVendorReturn(ctx context.Context, returnID, actorID int64) error {
	now := s.clock()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ret, lines, err := tx.GetReturnForUpdate(ctx, returnID)
		if err != nil {
			return err
		}
		if ret.Status != ReturnStatusDraft {
			return fmt.Errorf("%w: vendor return %s is %s", shared.ErrStateConflict, ret.Number, ret.Status)
		}
		var planLines []ConsumptionLine
		byMaterial := make(map[int64]ConsumptionLine)
		if ret.WorkOrderID != 0 {
			planLines, err = tx.GetConsumptionLinesForUpdate(ctx, ret.WorkOrderID)
			if err != nil {
				return err
			}
			for _, line := range planLines {
				byMaterial[line.MaterialID] = line
			}
		}
		for _, line := range lines {
			_, err := s.engine.ApplyReceipt(ctx, tx.Inventory(), inventory.ReceiptInput{
				ItemID:   line.MaterialID,
				Qty:      line.Qty,
				UnitCost: line.UnitCost,
				Type:     inventory.MovementIn,
				Ref:      inventory.DocRef{DocType: string(sequence.DocTypeRET), DocID: ret.ID, DocNumber: ret.Number},
				Note:     fmt.Sprintf("Vendor return %s", ret.Number),
				Now:      now,
			})
			if err != nil {
				return err
			}
			if ret.WorkOrderID != 0 {
				planLine, ok := byMaterial[line.MaterialID]
				if !ok {
					return fmt.Errorf("%w: material %d", ErrNotInPlan, line.MaterialID)
				}
				if err := tx.AddReturnedQty(ctx, planLine.ID, line.Qty); err != nil {
					return err
				}
			}
		}
		return tx.UpdateReturnStatus(ctx, returnID, ReturnStatusProcessed, now)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "production.return_process", fmt.Sprintf("%d", returnID), nil)
	return nil
}

// CompleteVendorReturn attaches logistics metadata to a processed return.
// It has no further inventory effect.
func (s *Service) CompleteVendorReturn(ctx context.Context, returnID int64, tracking, proof string, actorID int64) error {
	now := s.clock()
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ret, _, err := tx.GetReturnForUpdate(ctx, returnID)
		if err != nil {
			return err
		}
		if ret.Status != ReturnStatusProcessed {
			return fmt.Errorf("%w: vendor return %s is %s", shared.ErrStateConflict, ret.Number, ret.Status)
		}
		return tx.SetReturnLogistics(ctx, returnID, tracking, proof, now)
	})
}

// GetWorkOrder loads a work order with its consumption plan.
func (s *Service) GetWorkOrder(ctx context.Context, woID int64) (WorkOrder, []ConsumptionLine, error) {
	return s.repo.GetWO(ctx, woID)
}

// GetVendorReturn loads a vendor return with lines.
func (s *Service) GetVendorReturn(ctx context.Context, returnID int64) (VendorReturn, []VendorReturnLine, error) {
	return s.repo.GetReturn(ctx, returnID)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "production",
		EntityID: entityID,
		Meta:     meta,
	})
}
