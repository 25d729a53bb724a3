package procurement

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/loomline-erp/loomline-erp/internal/inventory"
	"github.com/loomline-erp/loomline-erp/internal/sequence"
	"github.com/loomline-erp/loomline-erp/internal/shared"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type fakeInvStore struct {
	values    map[int64]inventory.InventoryValue
	movements []inventory.StockMovement
	nextID    int64
}

func (f *fakeInvStore) GetValueForUpdate(ctx context.Context, itemID int64) (inventory.InventoryValue, error) {
	value, ok := f.values[itemID]
	if !ok {
		return inventory.InventoryValue{}, inventory.ErrValueNotFound
	}
	return value, nil
}

func (f *fakeInvStore) UpsertValue(ctx context.Context, value inventory.InventoryValue) error {
	f.values[value.ItemID] = value
	return nil
}

func (f *fakeInvStore) InsertMovement(ctx context.Context, m inventory.StockMovement) (int64, error) {
	f.nextID++
	m.ID = f.nextID
	f.movements = append(f.movements, m)
	return f.nextID, nil
}

type fakeSeqStore struct {
	configs map[sequence.DocType]sequence.Config
}

func (f *fakeSeqStore) GetConfigForUpdate(ctx context.Context, docType sequence.DocType) (sequence.Config, error) {
	cfg, ok := f.configs[docType]
	if !ok {
		return sequence.Config{}, sequence.ErrConfigNotFound
	}
	return cfg, nil
}

func (f *fakeSeqStore) SaveConfig(ctx context.Context, cfg sequence.Config) error {
	f.configs[cfg.DocType] = cfg
	return nil
}

type mockRepository struct {
	pos      map[int64]*PurchaseOrder
	poItems  map[int64][]POItem
	grns     map[int64]*GoodsReceipt
	grnLines map[int64][]GRNLine
	receipts map[int64]int64

	inv *fakeInvStore
	seq *fakeSeqStore

	nextPOID     int64
	nextPOItemID int64
	nextGRNID    int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		pos:      make(map[int64]*PurchaseOrder),
		poItems:  make(map[int64][]POItem),
		grns:     make(map[int64]*GoodsReceipt),
		grnLines: make(map[int64][]GRNLine),
		receipts: make(map[int64]int64),
		inv:      &fakeInvStore{values: make(map[int64]inventory.InventoryValue)},
		seq: &fakeSeqStore{configs: map[sequence.DocType]sequence.Config{
			sequence.DocTypePO:  {DocType: sequence.DocTypePO, Prefix: "PO", Reset: sequence.ResetYearly, PadWidth: 4},
			sequence.DocTypeGRN: {DocType: sequence.DocTypeGRN, Prefix: "GRN", Reset: sequence.ResetMonthly, PadWidth: 4},
		}},
	}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *mockRepository) Inventory() inventory.TxStore { return m.inv }
func (m *mockRepository) Sequences() sequence.TxStore  { return m.seq }

func (m *mockRepository) CreatePO(ctx context.Context, po PurchaseOrder) (int64, error) {
	m.nextPOID++
	po.ID = m.nextPOID
	m.pos[po.ID] = &po
	return po.ID, nil
}

func (m *mockRepository) InsertPOItem(ctx context.Context, item POItem) error {
	m.nextPOItemID++
	item.ID = m.nextPOItemID
	m.poItems[item.POID] = append(m.poItems[item.POID], item)
	return nil
}

func (m *mockRepository) UpdatePOHeader(ctx context.Context, po PurchaseOrder) error {
	stored, ok := m.pos[po.ID]
	if !ok {
		return ErrPONotFound
	}
	stored.SupplierID = po.SupplierID
	stored.ExpectedAt = po.ExpectedAt
	stored.Note = po.Note
	return nil
}

func (m *mockRepository) ReplacePOItems(ctx context.Context, poID int64, items []POItem) error {
	replaced := make([]POItem, 0, len(items))
	for _, item := range items {
		m.nextPOItemID++
		item.ID = m.nextPOItemID
		item.POID = poID
		replaced = append(replaced, item)
	}
	m.poItems[poID] = replaced
	return nil
}

func (m *mockRepository) UpdatePOStatus(ctx context.Context, poID int64, status POStatus) error {
	po, ok := m.pos[poID]
	if !ok {
		return ErrPONotFound
	}
	po.Status = status
	return nil
}

func (m *mockRepository) GetPOForUpdate(ctx context.Context, poID int64) (PurchaseOrder, []POItem, error) {
	po, ok := m.pos[poID]
	if !ok {
		return PurchaseOrder{}, nil, ErrPONotFound
	}
	items := make([]POItem, len(m.poItems[poID]))
	copy(items, m.poItems[poID])
	return *po, items, nil
}

func (m *mockRepository) AddReceivedQty(ctx context.Context, poItemID int64, qty decimal.Decimal) error {
	for poID, items := range m.poItems {
		for i, item := range items {
			if item.ID == poItemID {
				m.poItems[poID][i].ReceivedQty = item.ReceivedQty.Add(qty)
				return nil
			}
		}
	}
	return ErrPONotFound
}

func (m *mockRepository) CountReceipts(ctx context.Context, poID int64) (int64, error) {
	return m.receipts[poID], nil
}

func (m *mockRepository) CreateGRN(ctx context.Context, grn GoodsReceipt) (int64, error) {
	m.nextGRNID++
	grn.ID = m.nextGRNID
	m.grns[grn.ID] = &grn
	if grn.POID != 0 {
		m.receipts[grn.POID]++
	}
	return grn.ID, nil
}

func (m *mockRepository) InsertGRNLine(ctx context.Context, line GRNLine) error {
	m.grnLines[line.GRNID] = append(m.grnLines[line.GRNID], line)
	return nil
}

func (m *mockRepository) SetGRNTotal(ctx context.Context, grnID int64, total decimal.Decimal) error {
	grn, ok := m.grns[grnID]
	if !ok {
		return ErrGRNNotFound
	}
	grn.TotalValue = total
	return nil
}

func (m *mockRepository) GetPO(ctx context.Context, poID int64) (PurchaseOrder, []POItem, error) {
	return m.GetPOForUpdate(ctx, poID)
}

func (m *mockRepository) GetGRN(ctx context.Context, grnID int64) (GoodsReceipt, []GRNLine, error) {
	grn, ok := m.grns[grnID]
	if !ok {
		return GoodsReceipt{}, nil, ErrGRNNotFound
	}
	return *grn, m.grnLines[grnID], nil
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
}

func (a *mockAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.records = append(a.records, log)
	return nil
}

func fixedClock() time.Time {
	return time.Date(2025, time.March, 12, 9, 30, 0, 0, time.UTC)
}

func newTestService(repo *mockRepository, gate *mockGate) *Service {
	return NewService(repo, inventory.NewEngine(), sequence.NewSequencer(), gate, &mockAudit{}, fixedClock)
}

func TestCreatePurchaseOrder(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockGate{})

	po, err := svc.CreatePurchaseOrder(context.Background(), CreatePOInput{
		SupplierID: 3,
		ActorID:    7,
		Lines: []POLineInput{
			{ItemID: 1, OrderedQty: dec("100"), UnitPrice: dec("10")},
			{ItemID: 2, OrderedQty: dec("40"), UnitPrice: dec("2.5")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "PO/2025/0001", po.Number)
	require.Equal(t, POStatusDraft, po.Status)
	require.Len(t, repo.poItems[po.ID], 2)
	require.True(t, repo.poItems[po.ID][0].ReceivedQty.IsZero())
}

func TestCreatePurchaseOrderValidation(t *testing.T) {
	svc := newTestService(newMockRepository(), &mockGate{})

	_, err := svc.CreatePurchaseOrder(context.Background(), CreatePOInput{SupplierID: 3})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreatePurchaseOrder(context.Background(), CreatePOInput{
		SupplierID: 3,
		Lines:      []POLineInput{{ItemID: 1, OrderedQty: dec("-1"), UnitPrice: dec("10")}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestSubmitPurchaseOrderOnlyFromDraft(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockGate{})

	po, err := svc.CreatePurchaseOrder(context.Background(), CreatePOInput{
		SupplierID: 3,
		Lines:      []POLineInput{{ItemID: 1, OrderedQty: dec("10"), UnitPrice: dec("5")}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.SubmitPurchaseOrder(context.Background(), po.ID, 7))
	require.Equal(t, POStatusSubmitted, repo.pos[po.ID].Status)

	err = svc.SubmitPurchaseOrder(context.Background(), po.ID, 7)
	require.ErrorIs(t, err, shared.ErrStateConflict)
}

func TestUpdateSubmittedPORequiresStepUp(t *testing.T) {
	repo := newMockRepository()
	gate := &mockGate{err: shared.ErrStepUpRequired}
	svc := newTestService(repo, gate)

	po, err := svc.CreatePurchaseOrder(context.Background(), CreatePOInput{
		SupplierID: 3,
		Lines:      []POLineInput{{ItemID: 1, OrderedQty: dec("10"), UnitPrice: dec("5")}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.SubmitPurchaseOrder(context.Background(), po.ID, 7))

	err = svc.UpdatePurchaseOrder(context.Background(), UpdatePOInput{POID: po.ID, SupplierID: 4, ActorID: 7})
	require.ErrorIs(t, err, shared.ErrStepUpRequired)
	require.Equal(t, []shared.StepUpAction{shared.ActionPOEditSubmitted}, gate.calls)
	require.Equal(t, int64(3), repo.pos[po.ID].SupplierID)

	// Draft edits never consult the gate.
	gate.err = nil
	gate.calls = nil
	draft, err := svc.CreatePurchaseOrder(context.Background(), CreatePOInput{
		SupplierID: 3,
		Lines:      []POLineInput{{ItemID: 1, OrderedQty: dec("10"), UnitPrice: dec("5")}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.UpdatePurchaseOrder(context.Background(), UpdatePOInput{POID: draft.ID, SupplierID: 9}))
	require.Empty(t, gate.calls)
	require.Equal(t, int64(9), repo.pos[draft.ID].SupplierID)
}

func TestUpdatePOBlockedAfterReceipt(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockGate{})

	po, err := svc.CreatePurchaseOrder(context.Background(), CreatePOInput{
		SupplierID: 3,
		Lines:      []POLineInput{{ItemID: 1, OrderedQty: dec("10"), UnitPrice: dec("5")}},
	})
	require.NoError(t, err)
	repo.receipts[po.ID] = 1

	err = svc.UpdatePurchaseOrder(context.Background(), UpdatePOInput{POID: po.ID, SupplierID: 4})
	require.ErrorIs(t, err, ErrHasReceipts)
}

func TestCancelPurchaseOrder(t *testing.T) {
	repo := newMockRepository()
	gate := &mockGate{}
	svc := newTestService(repo, gate)

	po, err := svc.CreatePurchaseOrder(context.Background(), CreatePOInput{
		SupplierID: 3,
		Lines:      []POLineInput{{ItemID: 1, OrderedQty: dec("10"), UnitPrice: dec("5")}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.CancelPurchaseOrder(context.Background(), po.ID, 7, "1234"))
	require.Equal(t, POStatusCancelled, repo.pos[po.ID].Status)
	require.Equal(t, []shared.StepUpAction{shared.ActionPOCancel}, gate.calls)

	err = svc.CancelPurchaseOrder(context.Background(), po.ID, 7, "1234")
	require.ErrorIs(t, err, shared.ErrStateConflict)
}

func TestCancelBlockedByReceipts(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockGate{})

	po, err := svc.CreatePurchaseOrder(context.Background(), CreatePOInput{
		SupplierID: 3,
		Lines:      []POLineInput{{ItemID: 1, OrderedQty: dec("10"), UnitPrice: dec("5")}},
	})
	require.NoError(t, err)
	require.NoError(t, svc.SubmitPurchaseOrder(context.Background(), po.ID, 7))
	repo.receipts[po.ID] = 1

	err = svc.CancelPurchaseOrder(context.Background(), po.ID, 7, "1234")
	require.ErrorIs(t, err, ErrHasReceipts)
	require.Equal(t, POStatusSubmitted, repo.pos[po.ID].Status)
}

func TestPostGoodsReceiptAgainstPO(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockGate{})

	po, err := svc.CreatePurchaseOrder(context.Background(), CreatePOInput{
		SupplierID: 3,
		Lines: []POLineInput{
			{ItemID: 1, OrderedQty: dec("100"), UnitPrice: dec("10")},
			{ItemID: 2, OrderedQty: dec("40"), UnitPrice: dec("2.5")},
		},
	})
	require.NoError(t, err)
	require.NoError(t, svc.SubmitPurchaseOrder(context.Background(), po.ID, 7))

	result, err := svc.PostGoodsReceipt(context.Background(), GoodsReceiptInput{
		POID:    po.ID,
		ActorID: 7,
		Lines:   []GRNLineInput{{ItemID: 1, Qty: dec("60"), UnitCost: dec("10")}},
	})
	require.NoError(t, err)
	require.Equal(t, "GRN/2025/03/0001", result.GRN.Number)
	require.True(t, result.GRN.TotalValue.Equal(dec("600")))
	require.Equal(t, POStatusPartial, result.POStatus)
	require.Equal(t, int64(3), result.GRN.SupplierID)

	require.True(t, repo.poItems[po.ID][0].ReceivedQty.Equal(dec("60")))
	require.True(t, repo.inv.values[1].QtyOnHand.Equal(dec("60")))
	require.True(t, repo.inv.values[1].AvgCost.Equal(dec("10")))
	require.Len(t, repo.inv.movements, 1)
	require.Equal(t, result.GRN.Number, repo.inv.movements[0].Ref.DocNumber)

	// Receiving the remaining quantities closes the order.
	result, err = svc.PostGoodsReceipt(context.Background(), GoodsReceiptInput{
		POID:    po.ID,
		ActorID: 7,
		Lines: []GRNLineInput{
			{ItemID: 1, Qty: dec("40"), UnitCost: dec("11")},
			{ItemID: 2, Qty: dec("40"), UnitCost: dec("2.5")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, POStatusClosed, result.POStatus)

	// Over-receipt on any line flags the order.
	result, err = svc.PostGoodsReceipt(context.Background(), GoodsReceiptInput{
		POID:    po.ID,
		ActorID: 7,
		Lines:   []GRNLineInput{{ItemID: 2, Qty: dec("1"), UnitCost: dec("2.5")}},
	})
	require.NoError(t, err)
	require.Equal(t, POStatusOver, result.POStatus)
}

func TestPostGoodsReceiptRejectsDraftPO(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockGate{})

	po, err := svc.CreatePurchaseOrder(context.Background(), CreatePOInput{
		SupplierID: 3,
		Lines:      []POLineInput{{ItemID: 1, OrderedQty: dec("10"), UnitPrice: dec("5")}},
	})
	require.NoError(t, err)

	_, err = svc.PostGoodsReceipt(context.Background(), GoodsReceiptInput{
		POID:  po.ID,
		Lines: []GRNLineInput{{ItemID: 1, Qty: dec("5"), UnitCost: dec("5")}},
	})
	require.ErrorIs(t, err, shared.ErrStateConflict)
	require.Empty(t, repo.inv.movements)
}

func TestPostStandaloneGoodsReceipt(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, &mockGate{})

	result, err := svc.PostGoodsReceipt(context.Background(), GoodsReceiptInput{
		SupplierID: 5,
		ActorID:    7,
		Lines:      []GRNLineInput{{ItemID: 4, Qty: dec("20"), UnitCost: dec("3")}},
	})
	require.NoError(t, err)
	require.Equal(t, POStatus(""), result.POStatus)
	require.True(t, result.GRN.TotalValue.Equal(dec("60")))
	require.True(t, repo.inv.values[4].QtyOnHand.Equal(dec("20")))
}

func TestPostGoodsReceiptValidation(t *testing.T) {
	svc := newTestService(newMockRepository(), &mockGate{})

	_, err := svc.PostGoodsReceipt(context.Background(), GoodsReceiptInput{SupplierID: 5})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.PostGoodsReceipt(context.Background(), GoodsReceiptInput{
		SupplierID: 5,
		Lines:      []GRNLineInput{{ItemID: 1, Qty: dec("0"), UnitCost: dec("3")}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}
