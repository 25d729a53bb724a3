package masterdata

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/loomline-erp/loomline-erp/internal/inventory"
	"github.com/loomline-erp/loomline-erp/internal/shared"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type mockRepository struct {
	items     map[int64]inventory.Item
	suppliers map[int64]Supplier
	bomLines  map[int64]BOMLine

	inUse map[int64]bool

	nextItemID     int64
	nextSupplierID int64
	nextLineID     int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		items:     make(map[int64]inventory.Item),
		suppliers: make(map[int64]Supplier),
		bomLines:  make(map[int64]BOMLine),
		inUse:     make(map[int64]bool),
	}
}

func (m *mockRepository) CreateItem(ctx context.Context, item inventory.Item) (inventory.Item, error) {
	for _, existing := range m.items {
		if existing.SKU == item.SKU {
			return inventory.Item{}, ErrDuplicateSKU
		}
	}
	m.nextItemID++
	item.ID = m.nextItemID
	m.items[item.ID] = item
	return item, nil
}

func (m *mockRepository) UpdateItem(ctx context.Context, item inventory.Item) error {
	if _, ok := m.items[item.ID]; !ok {
		return inventory.ErrItemNotFound
	}
	m.items[item.ID] = item
	return nil
}

func (m *mockRepository) GetItem(ctx context.Context, itemID int64) (inventory.Item, error) {
	item, ok := m.items[itemID]
	if !ok {
		return inventory.Item{}, inventory.ErrItemNotFound
	}
	return item, nil
}

func (m *mockRepository) ListItems(ctx context.Context, filters ListFilters) ([]inventory.Item, int, error) {
	items := make([]inventory.Item, 0, len(m.items))
	for _, item := range m.items {
		items = append(items, item)
	}
	return items, len(items), nil
}

func (m *mockRepository) CreateSupplier(ctx context.Context, s Supplier) (Supplier, error) {
	for _, existing := range m.suppliers {
		if existing.Code == s.Code {
			return Supplier{}, ErrDuplicateCode
		}
	}
	m.nextSupplierID++
	s.ID = m.nextSupplierID
	m.suppliers[s.ID] = s
	return s, nil
}

func (m *mockRepository) UpdateSupplier(ctx context.Context, s Supplier) error {
	if _, ok := m.suppliers[s.ID]; !ok {
		return ErrSupplierNotFound
	}
	m.suppliers[s.ID] = s
	return nil
}

func (m *mockRepository) GetSupplier(ctx context.Context, supplierID int64) (Supplier, error) {
	s, ok := m.suppliers[supplierID]
	if !ok {
		return Supplier{}, ErrSupplierNotFound
	}
	return s, nil
}

func (m *mockRepository) ListSuppliers(ctx context.Context, filters ListFilters) ([]Supplier, int, error) {
	suppliers := make([]Supplier, 0, len(m.suppliers))
	for _, s := range m.suppliers {
		suppliers = append(suppliers, s)
	}
	return suppliers, len(suppliers), nil
}

func (m *mockRepository) DeleteSupplier(ctx context.Context, supplierID int64) error {
	if _, ok := m.suppliers[supplierID]; !ok {
		return ErrSupplierNotFound
	}
	if m.inUse[supplierID] {
		return ErrSupplierInUse
	}
	delete(m.suppliers, supplierID)
	return nil
}

func (m *mockRepository) UpsertBOMLine(ctx context.Context, line BOMLine) (BOMLine, error) {
	for id, existing := range m.bomLines {
		if existing.FinishedGoodID == line.FinishedGoodID && existing.MaterialID == line.MaterialID {
			line.ID = id
			m.bomLines[id] = line
			return line, nil
		}
	}
	m.nextLineID++
	line.ID = m.nextLineID
	line.Active = true
	m.bomLines[line.ID] = line
	return line, nil
}

func (m *mockRepository) ListBOM(ctx context.Context, finishedGoodID int64) ([]BOMLine, error) {
	var lines []BOMLine
	for _, line := range m.bomLines {
		if line.FinishedGoodID == finishedGoodID && line.Active {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

func (m *mockRepository) DeactivateBOMLine(ctx context.Context, lineID int64) error {
	line, ok := m.bomLines[lineID]
	if !ok {
		return ErrBOMLineNotFound
	}
	line.Active = false
	m.bomLines[lineID] = line
	return nil
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

func fabricItem() inventory.Item {
	return inventory.Item{SKU: "FAB-COT-001", Name: "Cotton Combed 24s", Type: inventory.ItemTypeFabric, UOM: "m", ReorderPoint: dec("50")}
}

func supplierFixture() Supplier {
	return Supplier{
		Code:            "SUP-001",
		Name:            "PT Tekstil Nusantara",
		BankName:        "BCA",
		BankAccountNo:   "1234567890",
		BankAccountName: "PT Tekstil Nusantara",
	}
}

func TestCreateItemValidation(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, &mockGate{}, &mockAudit{})

	item, err := svc.CreateItem(context.Background(), fabricItem(), 7)
	require.NoError(t, err)
	require.NotZero(t, item.ID)

	_, err = svc.CreateItem(context.Background(), inventory.Item{Name: "no sku", Type: inventory.ItemTypeFabric, UOM: "m"}, 7)
	require.ErrorIs(t, err, shared.ErrValidation)

	bad := fabricItem()
	bad.SKU = "FAB-X"
	bad.Type = "RAW"
	_, err = svc.CreateItem(context.Background(), bad, 7)
	require.ErrorIs(t, err, shared.ErrValidation)

	bad = fabricItem()
	bad.SKU = "FAB-Y"
	bad.ReorderPoint = dec("-1")
	_, err = svc.CreateItem(context.Background(), bad, 7)
	require.ErrorIs(t, err, shared.ErrValidation)

	// Duplicate SKU surfaces as a conflict.
	_, err = svc.CreateItem(context.Background(), fabricItem(), 7)
	require.ErrorIs(t, err, ErrDuplicateSKU)
	require.ErrorIs(t, err, shared.ErrStateConflict)
}

func TestCreateSupplierMasksBankInResponse(t *testing.T) {
	repo := newMockRepository()
	audit := &mockAudit{}
	svc := NewService(repo, &mockGate{}, audit)

	created, err := svc.CreateSupplier(context.Background(), supplierFixture(), 7)
	require.NoError(t, err)
	require.Equal(t, "****7890", created.BankAccountNo)
	// The stored record keeps the full number.
	require.Equal(t, "1234567890", repo.suppliers[created.ID].BankAccountNo)
	require.Len(t, audit.records, 1)
}

func TestGetSupplierMasksBank(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, &mockGate{}, &mockAudit{})

	created, err := svc.CreateSupplier(context.Background(), supplierFixture(), 7)
	require.NoError(t, err)

	got, err := svc.GetSupplier(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, "****7890", got.BankAccountNo)
}

func TestGetSupplierBankRequiresStepUp(t *testing.T) {
	repo := newMockRepository()
	gate := &mockGate{err: shared.ErrStepUpRequired}
	audit := &mockAudit{}
	svc := NewService(repo, gate, audit)

	created, err := svc.CreateSupplier(context.Background(), supplierFixture(), 7)
	require.NoError(t, err)
	audit.records = nil

	_, err = svc.GetSupplierBank(context.Background(), created.ID, 7, "")
	require.ErrorIs(t, err, shared.ErrStepUpRequired)
	require.Equal(t, []shared.StepUpAction{shared.ActionSupplierBankView}, gate.calls)
	require.Empty(t, audit.records)

	gate.err = nil
	got, err := svc.GetSupplierBank(context.Background(), created.ID, 7, "1234")
	require.NoError(t, err)
	require.Equal(t, "1234567890", got.BankAccountNo)
	// The disclosure itself is audited.
	require.Len(t, audit.records, 1)
	require.Equal(t, "masterdata.supplier_bank_view", audit.records[0].Action)
}

func TestDeleteSupplier(t *testing.T) {
	repo := newMockRepository()
	gate := &mockGate{}
	svc := NewService(repo, gate, &mockAudit{})

	created, err := svc.CreateSupplier(context.Background(), supplierFixture(), 7)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteSupplier(context.Background(), created.ID, 7, "1234"))
	require.Equal(t, []shared.StepUpAction{shared.ActionSupplierDelete}, gate.calls)
	require.Empty(t, repo.suppliers)
}

func TestDeleteSupplierBlockedWhenReferenced(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, &mockGate{}, &mockAudit{})

	created, err := svc.CreateSupplier(context.Background(), supplierFixture(), 7)
	require.NoError(t, err)
	repo.inUse[created.ID] = true

	err = svc.DeleteSupplier(context.Background(), created.ID, 7, "1234")
	require.ErrorIs(t, err, ErrSupplierInUse)
	require.ErrorIs(t, err, shared.ErrStateConflict)
}

func TestDeleteSupplierGateDenied(t *testing.T) {
	repo := newMockRepository()
	gate := &mockGate{err: shared.ErrStepUpRateLimited}
	svc := NewService(repo, gate, &mockAudit{})

	created, err := svc.CreateSupplier(context.Background(), supplierFixture(), 7)
	require.NoError(t, err)

	err = svc.DeleteSupplier(context.Background(), created.ID, 7, "9999")
	require.ErrorIs(t, err, shared.ErrStepUpRateLimited)
	require.Len(t, repo.suppliers, 1)
}

func TestUpsertBOMLine(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, &mockGate{}, &mockAudit{})

	fabric, err := svc.CreateItem(context.Background(), fabricItem(), 7)
	require.NoError(t, err)
	fg, err := svc.CreateItem(context.Background(), inventory.Item{SKU: "FG-TSH-001", Name: "Basic Tee", Type: inventory.ItemTypeFinishedGood, UOM: "pcs"}, 7)
	require.NoError(t, err)

	line, err := svc.UpsertBOMLine(context.Background(), BOMLine{
		FinishedGoodID: fg.ID,
		MaterialID:     fabric.ID,
		QtyPerUnit:     dec("1.5"),
		WastePct:       dec("5"),
	}, 7)
	require.NoError(t, err)
	require.NotZero(t, line.ID)

	// Upserting the same pair updates in place.
	updated, err := svc.UpsertBOMLine(context.Background(), BOMLine{
		FinishedGoodID: fg.ID,
		MaterialID:     fabric.ID,
		QtyPerUnit:     dec("1.6"),
		WastePct:       dec("5"),
	}, 7)
	require.NoError(t, err)
	require.Equal(t, line.ID, updated.ID)
	require.True(t, repo.bomLines[line.ID].QtyPerUnit.Equal(dec("1.6")))
}

func TestUpsertBOMLineTypeRules(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, &mockGate{}, &mockAudit{})

	fabric, err := svc.CreateItem(context.Background(), fabricItem(), 7)
	require.NoError(t, err)
	fg, err := svc.CreateItem(context.Background(), inventory.Item{SKU: "FG-TSH-001", Name: "Basic Tee", Type: inventory.ItemTypeFinishedGood, UOM: "pcs"}, 7)
	require.NoError(t, err)
	fg2, err := svc.CreateItem(context.Background(), inventory.Item{SKU: "FG-TSH-002", Name: "Pocket Tee", Type: inventory.ItemTypeFinishedGood, UOM: "pcs"}, 7)
	require.NoError(t, err)

	// The output must be a finished good.
	_, err = svc.UpsertBOMLine(context.Background(), BOMLine{FinishedGoodID: fabric.ID, MaterialID: fabric.ID + 100, QtyPerUnit: dec("1")}, 7)
	require.ErrorIs(t, err, shared.ErrValidation)

	// A finished good cannot be consumed as a material.
	_, err = svc.UpsertBOMLine(context.Background(), BOMLine{FinishedGoodID: fg.ID, MaterialID: fg2.ID, QtyPerUnit: dec("1")}, 7)
	require.ErrorIs(t, err, shared.ErrValidation)

	// Self-consumption is rejected before any lookup.
	_, err = svc.UpsertBOMLine(context.Background(), BOMLine{FinishedGoodID: fg.ID, MaterialID: fg.ID, QtyPerUnit: dec("1")}, 7)
	require.ErrorIs(t, err, shared.ErrValidation)

	// Waste must stay within 0-100.
	_, err = svc.UpsertBOMLine(context.Background(), BOMLine{FinishedGoodID: fg.ID, MaterialID: fabric.ID, QtyPerUnit: dec("1"), WastePct: dec("101")}, 7)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.UpsertBOMLine(context.Background(), BOMLine{FinishedGoodID: fg.ID, MaterialID: fabric.ID, QtyPerUnit: dec("0")}, 7)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestDeactivateBOMLine(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, &mockGate{}, &mockAudit{})

	fabric, err := svc.CreateItem(context.Background(), fabricItem(), 7)
	require.NoError(t, err)
	fg, err := svc.CreateItem(context.Background(), inventory.Item{SKU: "FG-TSH-001", Name: "Basic Tee", Type: inventory.ItemTypeFinishedGood, UOM: "pcs"}, 7)
	require.NoError(t, err)

	line, err := svc.UpsertBOMLine(context.Background(), BOMLine{FinishedGoodID: fg.ID, MaterialID: fabric.ID, QtyPerUnit: dec("1.5")}, 7)
	require.NoError(t, err)

	require.NoError(t, svc.DeactivateBOMLine(context.Background(), line.ID, 7))
	lines, err := svc.ListBOM(context.Background(), fg.ID)
	require.NoError(t, err)
	require.Empty(t, lines)
}

func TestMaskBankShortNumbers(t *testing.T) {
	s := Supplier{BankAccountNo: "123"}
	s.MaskBank()
	// Numbers of four digits or fewer are left alone rather than fully blanked.
	require.Equal(t, "123", s.BankAccountNo)
}
