package mrp

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/loomline-erp/loomline-erp/internal/shared"
)

// ConsumptionRule is one BOM line: material and quantity needed to produce
// one unit of a finished good, plus the expected waste percentage. Lifecycle
// is owned by BOM management; the planner only reads active rules.
type ConsumptionRule struct {
	ID             int64
	FinishedGoodID int64
	MaterialID     int64
	QtyPerUnit     decimal.Decimal
	WastePct       decimal.Decimal
	Active         bool
}

// PlanLine compares the required quantity of one material against current
// available stock.
type PlanLine struct {
	MaterialID   int64
	MaterialSKU  string
	MaterialName string
	QtyPerUnit   decimal.Decimal
	WastePct     decimal.Decimal
	RequiredQty  decimal.Decimal
	AvailableQty decimal.Decimal
	ShortageQty  decimal.Decimal
}

// Plan is a material requirement plan for one planned output quantity.
type Plan struct {
	FinishedGoodID int64
	PlannedQty     decimal.Decimal
	Lines          []PlanLine
}

// HasShortage reports whether any line is short.
func (p Plan) HasShortage() bool {
	for _, line := range p.Lines {
		if line.ShortageQty.IsPositive() {
			return true
		}
	}
	return false
}

// ErrNoBOM indicates the finished good has no active consumption rules.
var ErrNoBOM = fmt.Errorf("%w: finished good has no active bill of materials", shared.ErrValidation)

// RulesPort reads active BOM lines.
type RulesPort interface {
	ActiveRules(ctx context.Context, finishedGoodID int64) ([]ConsumptionRule, error)
}

// StockPort reads current available stock per material.
type StockPort interface {
	AvailableQty(ctx context.Context, itemID int64) (decimal.Decimal, error)
	ItemLabel(ctx context.Context, itemID int64) (sku, name string, err error)
}

// Planner derives material plans. It is a pure read-side calculation; work
// order creation re-evaluates it at submit time since stock may have moved.
type Planner struct {
	rules RulesPort
	stock StockPort
}

// NewPlanner constructs Planner.
func NewPlanner(rules RulesPort, stock StockPort) *Planner {
	return &Planner{rules: rules, stock: stock}
}

var hundred = decimal.NewFromInt(100)

// RequiredQty computes plannedOutput * qtyPerUnit * (1 + wastePct/100).
func RequiredQty(plannedOutput, qtyPerUnit, wastePct decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(wastePct.Div(hundred))
	return plannedOutput.Mul(qtyPerUnit).Mul(factor)
}

// Plan builds the material requirement plan for producing plannedQty units
// of the finished good.
func (p *Planner) Plan(ctx context.Context, finishedGoodID int64, plannedQty decimal.Decimal) (Plan, error) {
	if finishedGoodID == 0 || !plannedQty.IsPositive() {
		return Plan{}, fmt.Errorf("%w: finished good and positive planned quantity required", shared.ErrValidation)
	}
	rules, err := p.rules.ActiveRules(ctx, finishedGoodID)
	if err != nil {
		return Plan{}, err
	}
	if len(rules) == 0 {
		return Plan{}, ErrNoBOM
	}
	plan := Plan{FinishedGoodID: finishedGoodID, PlannedQty: plannedQty}
	for _, rule := range rules {
		required := RequiredQty(plannedQty, rule.QtyPerUnit, rule.WastePct)
		available, err := p.stock.AvailableQty(ctx, rule.MaterialID)
		if err != nil {
			return Plan{}, err
		}
		shortage := required.Sub(available)
		if shortage.IsNegative() {
			shortage = decimal.Zero
		}
		line := PlanLine{
			MaterialID:   rule.MaterialID,
			QtyPerUnit:   rule.QtyPerUnit,
			WastePct:     rule.WastePct,
			RequiredQty:  required,
			AvailableQty: available,
			ShortageQty:  shortage,
		}
		if sku, name, err := p.stock.ItemLabel(ctx, rule.MaterialID); err == nil {
			line.MaterialSKU, line.MaterialName = sku, name
		}
		plan.Lines = append(plan.Lines, line)
	}
	return plan, nil
}
