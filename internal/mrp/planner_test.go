package mrp

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/loomline-erp/loomline-erp/internal/shared"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type mockRules struct {
	rules map[int64][]ConsumptionRule
	err   error
}

func (m *mockRules) ActiveRules(ctx context.Context, finishedGoodID int64) ([]ConsumptionRule, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.rules[finishedGoodID], nil
}

type mockStock struct {
	qty    map[int64]decimal.Decimal
	labels map[int64][2]string
	err    error
}

func (m *mockStock) AvailableQty(ctx context.Context, itemID int64) (decimal.Decimal, error) {
	if m.err != nil {
		return decimal.Zero, m.err
	}
	return m.qty[itemID], nil
}

func (m *mockStock) ItemLabel(ctx context.Context, itemID int64) (string, string, error) {
	label, ok := m.labels[itemID]
	if !ok {
		return "", "", errors.New("no label")
	}
	return label[0], label[1], nil
}

func TestRequiredQtyIncludesWaste(t *testing.T) {
	// 100 units * 1.5 m/unit * 5% waste = 157.5 m
	required := RequiredQty(dec("100"), dec("1.5"), dec("5"))
	require.True(t, required.Equal(dec("157.5")))

	// Zero waste is a straight multiply.
	required = RequiredQty(dec("100"), dec("0.25"), decimal.Zero)
	require.True(t, required.Equal(dec("25")))
}

func TestPlanComparesRequiredAgainstStock(t *testing.T) {
	rules := &mockRules{rules: map[int64][]ConsumptionRule{
		50: {
			{FinishedGoodID: 50, MaterialID: 1, QtyPerUnit: dec("1.5"), WastePct: dec("5"), Active: true},
			{FinishedGoodID: 50, MaterialID: 2, QtyPerUnit: dec("4"), WastePct: decimal.Zero, Active: true},
		},
	}}
	stock := &mockStock{
		qty: map[int64]decimal.Decimal{
			1: dec("150"),
			2: dec("500"),
		},
		labels: map[int64][2]string{
			1: {"FAB-COT-001", "Cotton Combed 24s"},
		},
	}
	planner := NewPlanner(rules, stock)

	plan, err := planner.Plan(context.Background(), 50, dec("100"))
	require.NoError(t, err)
	require.Equal(t, int64(50), plan.FinishedGoodID)
	require.Len(t, plan.Lines, 2)
	require.True(t, plan.HasShortage())

	fabric := plan.Lines[0]
	require.True(t, fabric.RequiredQty.Equal(dec("157.5")))
	require.True(t, fabric.AvailableQty.Equal(dec("150")))
	require.True(t, fabric.ShortageQty.Equal(dec("7.5")))
	require.Equal(t, "FAB-COT-001", fabric.MaterialSKU)
	require.Equal(t, "Cotton Combed 24s", fabric.MaterialName)

	// Surplus clamps to zero, never negative.
	buttons := plan.Lines[1]
	require.True(t, buttons.RequiredQty.Equal(dec("400")))
	require.True(t, buttons.ShortageQty.IsZero())
	// A missing label leaves the line identifiers empty.
	require.Empty(t, buttons.MaterialSKU)
}

func TestPlanNoShortage(t *testing.T) {
	rules := &mockRules{rules: map[int64][]ConsumptionRule{
		50: {{FinishedGoodID: 50, MaterialID: 1, QtyPerUnit: dec("2"), WastePct: decimal.Zero, Active: true}},
	}}
	stock := &mockStock{qty: map[int64]decimal.Decimal{1: dec("200")}}
	planner := NewPlanner(rules, stock)

	plan, err := planner.Plan(context.Background(), 50, dec("100"))
	require.NoError(t, err)
	require.False(t, plan.HasShortage())
}

func TestPlanRequiresActiveBOM(t *testing.T) {
	planner := NewPlanner(&mockRules{rules: map[int64][]ConsumptionRule{}}, &mockStock{})

	_, err := planner.Plan(context.Background(), 50, dec("10"))
	require.ErrorIs(t, err, ErrNoBOM)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestPlanValidatesInput(t *testing.T) {
	planner := NewPlanner(&mockRules{}, &mockStock{})

	_, err := planner.Plan(context.Background(), 0, dec("10"))
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = planner.Plan(context.Background(), 50, decimal.Zero)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestPlanPropagatesStockErrors(t *testing.T) {
	rules := &mockRules{rules: map[int64][]ConsumptionRule{
		50: {{FinishedGoodID: 50, MaterialID: 1, QtyPerUnit: dec("1"), Active: true}},
	}}
	stockErr := errors.New("connection refused")
	planner := NewPlanner(rules, &mockStock{err: stockErr})

	_, err := planner.Plan(context.Background(), 50, dec("10"))
	require.ErrorIs(t, err, stockErr)
}
