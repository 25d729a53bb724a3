package inventory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/loomline-erp/loomline-erp/internal/sequence"
	"github.com/loomline-erp/loomline-erp/internal/shared"
)

type mockRepository struct {
	items map[int64]Item
	store *memStore
	seq   *seqStore
	audit *mockAudit

	txErr       error
	getValueErr error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		items: make(map[int64]Item),
		store: newMemStore(),
		seq: &seqStore{configs: map[sequence.DocType]sequence.Config{
			sequence.DocTypeADJ: {DocType: sequence.DocTypeADJ, Prefix: "ADJ", Reset: sequence.ResetMonthly, PadWidth: 4},
		}},
		audit: &mockAudit{},
	}
}

type mockTx struct {
	*memStore
	seq   *seqStore
	audit *mockAudit
}

func (t mockTx) Sequences() sequence.TxStore { return t.seq }
func (t mockTx) Audit() AuditPort            { return t.audit }

type seqStore struct {
	configs map[sequence.DocType]sequence.Config
}

func (s *seqStore) GetConfigForUpdate(ctx context.Context, docType sequence.DocType) (sequence.Config, error) {
	cfg, ok := s.configs[docType]
	if !ok {
		return sequence.Config{}, sequence.ErrConfigNotFound
	}
	return cfg, nil
}

func (s *seqStore) SaveConfig(ctx context.Context, cfg sequence.Config) error {
	s.configs[cfg.DocType] = cfg
	return nil
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	if m.txErr != nil {
		return m.txErr
	}
	return fn(ctx, mockTx{memStore: m.store, seq: m.seq, audit: m.audit})
}

func (m *mockRepository) GetItem(ctx context.Context, itemID int64) (Item, error) {
	item, ok := m.items[itemID]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return item, nil
}

func (m *mockRepository) GetValue(ctx context.Context, itemID int64) (InventoryValue, error) {
	if m.getValueErr != nil {
		return InventoryValue{}, m.getValueErr
	}
	return m.store.GetValueForUpdate(ctx, itemID)
}

func (m *mockRepository) GetStockCard(ctx context.Context, filter StockCardFilter) (StockCard, error) {
	return StockCard{ItemID: filter.ItemID}, nil
}

func (m *mockRepository) ListMovements(ctx context.Context, itemID int64) ([]StockMovement, error) {
	return m.store.movements, nil
}

type mockGate struct {
	err   error
	calls []shared.StepUpAction
}

func (g *mockGate) Verify(ctx context.Context, userID int64, action shared.StepUpAction, credential string) error {
	g.calls = append(g.calls, action)
	return g.err
}

type mockAudit struct {
	records []shared.AuditLog
	err     error
}

func (a *mockAudit) Record(ctx context.Context, log shared.AuditLog) error {
	if a.err != nil {
		return a.err
	}
	a.records = append(a.records, log)
	return nil
}

func fixedClock() time.Time {
	return time.Date(2025, time.March, 10, 14, 0, 0, 0, time.UTC)
}

func newTestService(repo *mockRepository, gate *mockGate) *Service {
	return NewService(repo, NewEngine(), sequence.NewSequencer(), gate, fixedClock)
}

func TestPostAdjustmentIncrease(t *testing.T) {
	repo := newMockRepository()
	repo.items[1] = Item{ID: 1, SKU: "FAB-COT-001", Type: ItemTypeFabric}
	repo.store.values[1] = InventoryValue{ItemID: 1, QtyOnHand: dec("10"), AvgCost: dec("12"), TotalValue: dec("120")}
	gate := &mockGate{}
	svc := newTestService(repo, gate)

	result, err := svc.PostAdjustment(context.Background(), AdjustmentInput{
		ItemID:     1,
		Qty:        dec("5"),
		Reason:     "cycle count",
		ActorID:    42,
		Credential: "1234",
	})
	require.NoError(t, err)
	require.Equal(t, "ADJ/2025/03/0001", result.DocNumber)
	require.True(t, result.After.QtyOnHand.Equal(dec("15")))
	require.True(t, result.After.TotalValue.Equal(dec("180")))

	require.Equal(t, []shared.StepUpAction{shared.ActionStockAdjust}, gate.calls)
	require.Len(t, repo.audit.records, 1)
	require.Equal(t, "inventory.adjustment", repo.audit.records[0].Action)
	require.Equal(t, result.DocNumber, repo.audit.records[0].EntityID)

	require.Len(t, repo.store.movements, 1)
	require.Equal(t, "ADJ/2025/03/0001", repo.store.movements[0].Ref.DocNumber)
}

func TestPostAdjustmentGateDeniesBeforeAnyWrite(t *testing.T) {
	repo := newMockRepository()
	repo.items[1] = Item{ID: 1}
	gate := &mockGate{err: shared.ErrStepUpRequired}
	svc := newTestService(repo, gate)

	_, err := svc.PostAdjustment(context.Background(), AdjustmentInput{ItemID: 1, Qty: dec("5"), Reason: "count", ActorID: 42})
	require.ErrorIs(t, err, shared.ErrStepUpRequired)
	require.Empty(t, repo.store.movements)
	require.Equal(t, int64(0), repo.seq.configs[sequence.DocTypeADJ].LastSeq)
}

func TestPostAdjustmentValidation(t *testing.T) {
	repo := newMockRepository()
	repo.items[1] = Item{ID: 1}
	svc := newTestService(repo, &mockGate{})

	_, err := svc.PostAdjustment(context.Background(), AdjustmentInput{Qty: dec("1"), Reason: "x"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.PostAdjustment(context.Background(), AdjustmentInput{ItemID: 1, Qty: decimal.Zero, Reason: "x"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.PostAdjustment(context.Background(), AdjustmentInput{ItemID: 1, Qty: dec("1")})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.PostAdjustment(context.Background(), AdjustmentInput{ItemID: 99, Qty: dec("1"), Reason: "x"})
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestPostAdjustmentInsufficientRollsBack(t *testing.T) {
	repo := newMockRepository()
	repo.items[1] = Item{ID: 1}
	repo.store.values[1] = InventoryValue{ItemID: 1, QtyOnHand: dec("3"), AvgCost: dec("10"), TotalValue: dec("30")}
	svc := newTestService(repo, &mockGate{})

	_, err := svc.PostAdjustment(context.Background(), AdjustmentInput{ItemID: 1, Qty: dec("-4"), Reason: "damage", ActorID: 1})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.ErrorIs(t, err, shared.ErrStateConflict)
}

func TestPostAdjustmentFailsWhenAuditWriteFails(t *testing.T) {
	repo := newMockRepository()
	repo.items[1] = Item{ID: 1}
	repo.store.values[1] = InventoryValue{ItemID: 1, QtyOnHand: dec("10"), AvgCost: dec("12"), TotalValue: dec("120")}
	auditErr := errors.New("audit insert failed")
	repo.audit.err = auditErr
	svc := newTestService(repo, &mockGate{})

	_, err := svc.PostAdjustment(context.Background(), AdjustmentInput{
		ItemID:  1,
		Qty:     dec("3"),
		Reason:  "cycle count",
		ActorID: 42,
	})
	// The adjustment must not report success without its audit entry; the
	// closure error aborts the transaction before commit.
	require.ErrorIs(t, err, auditErr)
	require.Empty(t, repo.audit.records)
}

func TestGetValueDefaultsToZeroState(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockGate{})

	value, err := svc.GetValue(context.Background(), 9)
	require.NoError(t, err)
	require.Equal(t, int64(9), value.ItemID)
	require.True(t, value.QtyOnHand.IsZero())
	require.True(t, value.AvgCost.IsZero())
}

func TestGetValueDefaultsToZeroStateOnWrappedNotFound(t *testing.T) {
	repo := newMockRepository()
	repo.getValueErr = fmt.Errorf("scan value: %w", ErrValueNotFound)
	svc := newTestService(repo, &mockGate{})

	value, err := svc.GetValue(context.Background(), 9)
	require.NoError(t, err)
	require.Equal(t, int64(9), value.ItemID)
	require.True(t, value.QtyOnHand.IsZero())
}

func TestGetStockCardRequiresItem(t *testing.T) {
	svc := newTestService(newMockRepository(), &mockGate{})

	_, err := svc.GetStockCard(context.Background(), StockCardFilter{})
	require.ErrorIs(t, err, shared.ErrValidation)
}
