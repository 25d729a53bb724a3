package masterdata

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/loomline-erp/loomline-erp/internal/inventory"
	"github.com/loomline-erp/loomline-erp/internal/shared"
)

// RepositoryPort is the persistence surface Service depends on.
type RepositoryPort interface {
	CreateItem(ctx context.Context, item inventory.Item) (inventory.Item, error)
	UpdateItem(ctx context.Context, item inventory.Item) error
	GetItem(ctx context.Context, itemID int64) (inventory.Item, error)
	ListItems(ctx context.Context, filters ListFilters) ([]inventory.Item, int, error)

	CreateSupplier(ctx context.Context, s Supplier) (Supplier, error)
	UpdateSupplier(ctx context.Context, s Supplier) error
	GetSupplier(ctx context.Context, supplierID int64) (Supplier, error)
	ListSuppliers(ctx context.Context, filters ListFilters) ([]Supplier, int, error)
	DeleteSupplier(ctx context.Context, supplierID int64) error

	UpsertBOMLine(ctx context.Context, line BOMLine) (BOMLine, error)
	ListBOM(ctx context.Context, finishedGoodID int64) ([]BOMLine, error)
	DeactivateBOMLine(ctx context.Context, lineID int64) error
}

// AuditPort records master data mutations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service validates and routes master data operations. Supplier deletion
// and unmasked bank detail reads require step-up verification.
type Service struct {
	repo  RepositoryPort
	gate  shared.StepUpGate
	audit AuditPort
}

// NewService constructs Service.
func NewService(repo RepositoryPort, gate shared.StepUpGate, audit AuditPort) *Service {
	return &Service{repo: repo, gate: gate, audit: audit}
}

func (s *Service) CreateItem(ctx context.Context, item inventory.Item, actorID int64) (inventory.Item, error) {
	if err := validateItem(item); err != nil {
		return inventory.Item{}, err
	}
	created, err := s.repo.CreateItem(ctx, item)
	if err != nil {
		return inventory.Item{}, err
	}
	s.recordAudit(ctx, actorID, "masterdata.item_create", created.SKU, nil)
	return created, nil
}

func (s *Service) UpdateItem(ctx context.Context, item inventory.Item, actorID int64) error {
	if item.ID == 0 {
		return fmt.Errorf("%w: item id required", shared.ErrValidation)
	}
	if err := validateItem(item); err != nil {
		return err
	}
	if err := s.repo.UpdateItem(ctx, item); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "masterdata.item_update", item.SKU, nil)
	return nil
}

func (s *Service) GetItem(ctx context.Context, itemID int64) (inventory.Item, error) {
	return s.repo.GetItem(ctx, itemID)
}

func (s *Service) ListItems(ctx context.Context, filters ListFilters) ([]inventory.Item, int, error) {
	return s.repo.ListItems(ctx, filters)
}

func (s *Service) CreateSupplier(ctx context.Context, supplier Supplier, actorID int64) (Supplier, error) {
	if err := validateSupplier(supplier); err != nil {
		return Supplier{}, err
	}
	created, err := s.repo.CreateSupplier(ctx, supplier)
	if err != nil {
		return Supplier{}, err
	}
	s.recordAudit(ctx, actorID, "masterdata.supplier_create", created.Code, nil)
	created.MaskBank()
	return created, nil
}

func (s *Service) UpdateSupplier(ctx context.Context, supplier Supplier, actorID int64) error {
	if supplier.ID == 0 {
		return fmt.Errorf("%w: supplier id required", shared.ErrValidation)
	}
	if err := validateSupplier(supplier); err != nil {
		return err
	}
	if err := s.repo.UpdateSupplier(ctx, supplier); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "masterdata.supplier_update", supplier.Code, nil)
	return nil
}

// GetSupplier returns the supplier with its bank account number masked.
func (s *Service) GetSupplier(ctx context.Context, supplierID int64) (Supplier, error) {
	supplier, err := s.repo.GetSupplier(ctx, supplierID)
	if err != nil {
		return Supplier{}, err
	}
	supplier.MaskBank()
	return supplier, nil
}

// GetSupplierBank returns unmasked bank details after step-up verification.
// Every disclosure is audited.
func (s *Service) GetSupplierBank(ctx context.Context, supplierID, actorID int64, credential string) (Supplier, error) {
	if err := s.gate.Verify(ctx, actorID, shared.ActionSupplierBankView, credential); err != nil {
		return Supplier{}, err
	}
	supplier, err := s.repo.GetSupplier(ctx, supplierID)
	if err != nil {
		return Supplier{}, err
	}
	s.recordAudit(ctx, actorID, "masterdata.supplier_bank_view", supplier.Code, nil)
	return supplier, nil
}

func (s *Service) ListSuppliers(ctx context.Context, filters ListFilters) ([]Supplier, int, error) {
	return s.repo.ListSuppliers(ctx, filters)
}

// DeleteSupplier removes a supplier after step-up verification. Suppliers
// referenced by purchase or production documents cannot be removed.
func (s *Service) DeleteSupplier(ctx context.Context, supplierID, actorID int64, credential string) error {
	if err := s.gate.Verify(ctx, actorID, shared.ActionSupplierDelete, credential); err != nil {
		return err
	}
	supplier, err := s.repo.GetSupplier(ctx, supplierID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteSupplier(ctx, supplierID); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "masterdata.supplier_delete", supplier.Code, nil)
	return nil
}

// UpsertBOMLine sets the requirement of one material for one finished good.
// Both items must exist and be of the matching types.
func (s *Service) UpsertBOMLine(ctx context.Context, line BOMLine, actorID int64) (BOMLine, error) {
	if line.FinishedGoodID == 0 || line.MaterialID == 0 {
		return BOMLine{}, fmt.Errorf("%w: finished good and material required", shared.ErrValidation)
	}
	if line.FinishedGoodID == line.MaterialID {
		return BOMLine{}, fmt.Errorf("%w: an item cannot consume itself", shared.ErrValidation)
	}
	if !line.QtyPerUnit.IsPositive() {
		return BOMLine{}, fmt.Errorf("%w: qty per unit must be positive", shared.ErrValidation)
	}
	if line.WastePct.IsNegative() || line.WastePct.GreaterThan(decimal.NewFromInt(100)) {
		return BOMLine{}, fmt.Errorf("%w: waste percent must be between 0 and 100", shared.ErrValidation)
	}
	fg, err := s.repo.GetItem(ctx, line.FinishedGoodID)
	if err != nil {
		return BOMLine{}, err
	}
	if fg.Type != inventory.ItemTypeFinishedGood {
		return BOMLine{}, fmt.Errorf("%w: %s is not a finished good", shared.ErrValidation, fg.SKU)
	}
	material, err := s.repo.GetItem(ctx, line.MaterialID)
	if err != nil {
		return BOMLine{}, err
	}
	if material.Type == inventory.ItemTypeFinishedGood {
		return BOMLine{}, fmt.Errorf("%w: %s cannot be consumed as a material", shared.ErrValidation, material.SKU)
	}
	saved, err := s.repo.UpsertBOMLine(ctx, line)
	if err != nil {
		return BOMLine{}, err
	}
	s.recordAudit(ctx, actorID, "masterdata.bom_upsert", fg.SKU, map[string]any{
		"material":     material.SKU,
		"qty_per_unit": line.QtyPerUnit.String(),
		"waste_pct":    line.WastePct.String(),
	})
	return saved, nil
}

func (s *Service) ListBOM(ctx context.Context, finishedGoodID int64) ([]BOMLine, error) {
	return s.repo.ListBOM(ctx, finishedGoodID)
}

func (s *Service) DeactivateBOMLine(ctx context.Context, lineID, actorID int64) error {
	if err := s.repo.DeactivateBOMLine(ctx, lineID); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "masterdata.bom_deactivate", fmt.Sprintf("%d", lineID), nil)
	return nil
}

func validateItem(item inventory.Item) error {
	if strings.TrimSpace(item.SKU) == "" || strings.TrimSpace(item.Name) == "" {
		return fmt.Errorf("%w: sku and name required", shared.ErrValidation)
	}
	switch item.Type {
	case inventory.ItemTypeFabric, inventory.ItemTypeAccessory, inventory.ItemTypeFinishedGood:
	default:
		return fmt.Errorf("%w: unknown item type %q", shared.ErrValidation, item.Type)
	}
	if strings.TrimSpace(item.UOM) == "" {
		return fmt.Errorf("%w: unit of measure required", shared.ErrValidation)
	}
	if item.ReorderPoint.IsNegative() {
		return fmt.Errorf("%w: reorder point cannot be negative", shared.ErrValidation)
	}
	return nil
}

func validateSupplier(s Supplier) error {
	if strings.TrimSpace(s.Code) == "" || strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: code and name required", shared.ErrValidation)
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "masterdata", EntityID: entityID, Meta: meta})
}
