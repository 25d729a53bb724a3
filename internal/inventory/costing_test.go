package inventory

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestReceiveWeightedAverage(t *testing.T) {
	now := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	zero := InventoryValue{ItemID: 1, QtyOnHand: decimal.Zero, AvgCost: decimal.Zero, TotalValue: decimal.Zero}

	first := receive(zero, dec("100"), dec("10"), now)
	require.True(t, first.QtyOnHand.Equal(dec("100")))
	require.True(t, first.AvgCost.Equal(dec("10")))
	require.True(t, first.TotalValue.Equal(dec("1000")))

	second := receive(first, dec("50"), dec("16"), now)
	require.True(t, second.QtyOnHand.Equal(dec("150")))
	require.True(t, second.TotalValue.Equal(dec("1800")))
	require.True(t, second.AvgCost.Equal(dec("12")))
}

func TestReceivePreservesFractionalAverage(t *testing.T) {
	now := time.Now()
	state := InventoryValue{ItemID: 1, QtyOnHand: dec("3"), AvgCost: dec("10"), TotalValue: dec("30")}

	next := receive(state, dec("1"), dec("11"), now)
	require.True(t, next.QtyOnHand.Equal(dec("4")))
	require.True(t, next.TotalValue.Equal(dec("41")))
	require.True(t, next.AvgCost.Equal(dec("10.25")))
	// Quantity and total value hold exactly even when the average divides
	// unevenly.
	require.True(t, next.QtyOnHand.Mul(next.AvgCost).Sub(next.TotalValue).Abs().LessThan(dec("0.0000001")))
}

func TestConsumeAtAverageCost(t *testing.T) {
	now := time.Now()
	state := InventoryValue{ItemID: 1, QtyOnHand: dec("150"), AvgCost: dec("12"), TotalValue: dec("1800")}

	next, outgoing, err := consume(state, dec("30"), now)
	require.NoError(t, err)
	require.True(t, outgoing.Equal(dec("360")))
	require.True(t, next.QtyOnHand.Equal(dec("120")))
	require.True(t, next.TotalValue.Equal(dec("1440")))
	require.True(t, next.AvgCost.Equal(dec("12")))
}

func TestConsumeRejectsInsufficientStock(t *testing.T) {
	state := InventoryValue{ItemID: 7, QtyOnHand: dec("5"), AvgCost: dec("10"), TotalValue: dec("50")}

	_, _, err := consume(state, dec("6"), time.Now())
	require.ErrorIs(t, err, ErrInsufficientStock)

	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, int64(7), insufficient.ItemID)
	require.True(t, insufficient.Requested.Equal(dec("6")))
	require.True(t, insufficient.Available.Equal(dec("5")))
}

func TestConsumeToZeroResetsCost(t *testing.T) {
	state := InventoryValue{ItemID: 1, QtyOnHand: dec("20"), AvgCost: dec("12.5"), TotalValue: dec("250")}

	next, outgoing, err := consume(state, dec("20"), time.Now())
	require.NoError(t, err)
	require.True(t, outgoing.Equal(dec("250")))
	require.True(t, next.QtyOnHand.IsZero())
	require.True(t, next.AvgCost.IsZero())
	require.True(t, next.TotalValue.IsZero())

	// A receipt after a reset starts fresh at the new cost.
	after := receive(next, dec("10"), dec("9"), time.Now())
	require.True(t, after.AvgCost.Equal(dec("9")))
	require.True(t, after.TotalValue.Equal(dec("90")))
}

func TestReplayReproducesState(t *testing.T) {
	movements := []StockMovement{
		{Qty: dec("100"), TotalCost: dec("1000")},
		{Qty: dec("50"), TotalCost: dec("800")},
		{Qty: dec("-30"), TotalCost: dec("-360")},
		{Qty: dec("-120"), TotalCost: dec("-1440")},
		{Qty: dec("10"), TotalCost: dec("90")},
	}

	qty, value := Replay(movements)
	require.True(t, qty.Equal(dec("10")))
	require.True(t, value.Equal(dec("90")))
}

func TestReplayAppliesZeroReset(t *testing.T) {
	// Division residue left behind by an uneven average must not survive a
	// return to zero quantity.
	movements := []StockMovement{
		{Qty: dec("3"), TotalCost: dec("10")},
		{Qty: dec("-3"), TotalCost: dec("-10.00000001")},
	}

	qty, value := Replay(movements)
	require.True(t, qty.IsZero())
	require.True(t, value.IsZero())
}
