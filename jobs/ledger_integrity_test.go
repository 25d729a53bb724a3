package jobs

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/loomline-erp/loomline-erp/internal/inventory"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type fakeLedgerSource struct {
	itemIDs   []int64
	movements map[int64][]inventory.StockMovement
	values    map[int64]inventory.InventoryValue
}

func (f *fakeLedgerSource) ListItemIDs(ctx context.Context) ([]int64, error) {
	return f.itemIDs, nil
}

func (f *fakeLedgerSource) ListMovements(ctx context.Context, itemID int64) ([]inventory.StockMovement, error) {
	return f.movements[itemID], nil
}

func (f *fakeLedgerSource) GetValue(ctx context.Context, itemID int64) (inventory.InventoryValue, error) {
	value, ok := f.values[itemID]
	if !ok {
		return inventory.InventoryValue{}, inventory.ErrValueNotFound
	}
	return value, nil
}

func integrityTask(t *testing.T) *asynq.Task {
	t.Helper()
	task, err := NewLedgerIntegrityTask(time.Now().UTC())
	require.NoError(t, err)
	return task
}

func TestLedgerIntegrityClean(t *testing.T) {
	source := &fakeLedgerSource{
		itemIDs: []int64{1, 2},
		movements: map[int64][]inventory.StockMovement{
			1: {
				{Qty: dec("100"), TotalCost: dec("1000")},
				{Qty: dec("-30"), TotalCost: dec("-300")},
			},
		},
		values: map[int64]inventory.InventoryValue{
			1: {ItemID: 1, QtyOnHand: dec("70"), TotalValue: dec("700")},
		},
	}
	job := NewLedgerIntegrityJob(source, slog.New(slog.NewTextHandler(io.Discard, nil)), nil, 2)

	err := job.Handle(context.Background(), integrityTask(t))
	require.NoError(t, err)
}

func TestLedgerIntegrityDetectsMismatch(t *testing.T) {
	source := &fakeLedgerSource{
		itemIDs: []int64{1},
		movements: map[int64][]inventory.StockMovement{
			1: {{Qty: dec("100"), TotalCost: dec("1000")}},
		},
		values: map[int64]inventory.InventoryValue{
			// Stored balance was tampered with outside the engine.
			1: {ItemID: 1, QtyOnHand: dec("100"), TotalValue: dec("900")},
		},
	}
	job := NewLedgerIntegrityJob(source, slog.New(slog.NewTextHandler(io.Discard, nil)), nil, 1)

	err := job.Handle(context.Background(), integrityTask(t))
	require.Error(t, err)
	require.Contains(t, err.Error(), "1 of 1 items out of balance")
}

func TestLedgerIntegrityMovementsWithoutBalanceRow(t *testing.T) {
	source := &fakeLedgerSource{
		itemIDs: []int64{1},
		movements: map[int64][]inventory.StockMovement{
			1: {{Qty: dec("10"), TotalCost: dec("50")}},
		},
		values: map[int64]inventory.InventoryValue{},
	}
	job := NewLedgerIntegrityJob(source, slog.New(slog.NewTextHandler(io.Discard, nil)), nil, 1)

	err := job.Handle(context.Background(), integrityTask(t))
	require.Error(t, err)
}

func TestLedgerIntegrityBadPayloadSkipsRetry(t *testing.T) {
	job := NewLedgerIntegrityJob(&fakeLedgerSource{}, slog.New(slog.NewTextHandler(io.Discard, nil)), nil, 1)

	err := job.Handle(context.Background(), asynq.NewTask(TaskLedgerIntegrity, []byte("{not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
