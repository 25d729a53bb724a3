package masterdata

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loomline-erp/loomline-erp/internal/inventory"
	"github.com/loomline-erp/loomline-erp/internal/shared"
)

// Repository persists items, suppliers and BOM lines in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// itemInsertColumns are the items columns this package writes. The read side
// lives in inventory.ItemColumns; a test keeps the two lists aligned.
const itemInsertColumns = `sku, name, type, uom, reorder_point, created_at`

// CreateItem inserts the item and seeds its zero inventory value row in one
// transaction, so costing workflows never race an item without a balance.
func (r *Repository) CreateItem(ctx context.Context, item inventory.Item) (inventory.Item, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return inventory.Item{}, shared.MapPgError(err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `INSERT INTO items (`+itemInsertColumns+`)
VALUES ($1,$2,$3,$4,$5,NOW()) RETURNING id, created_at`,
		item.SKU, item.Name, string(item.Type), item.UOM, item.ReorderPoint).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return inventory.Item{}, ErrDuplicateSKU
		}
		return inventory.Item{}, shared.MapPgError(err)
	}
	_, err = tx.Exec(ctx, `INSERT INTO inventory_values (item_id, qty_on_hand, avg_cost, total_value, updated_at)
VALUES ($1, 0, 0, 0, NOW())`, item.ID)
	if err != nil {
		return inventory.Item{}, shared.MapPgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return inventory.Item{}, shared.MapPgError(err)
	}
	return item, nil
}

// UpdateItem updates the mutable item fields.
func (r *Repository) UpdateItem(ctx context.Context, item inventory.Item) error {
	tag, err := r.pool.Exec(ctx, `UPDATE items SET name=$2, uom=$3, reorder_point=$4 WHERE id=$1`,
		item.ID, item.Name, item.UOM, item.ReorderPoint)
	if err != nil {
		return shared.MapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return inventory.ErrItemNotFound
	}
	return nil
}

// GetItem loads one item.
func (r *Repository) GetItem(ctx context.Context, itemID int64) (inventory.Item, error) {
	var item inventory.Item
	err := r.pool.QueryRow(ctx, `SELECT `+inventory.ItemColumns+` FROM items WHERE id=$1`, itemID).
		Scan(&item.ID, &item.SKU, &item.Name, &item.Type, &item.UOM, &item.ReorderPoint, &item.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.Item{}, inventory.ErrItemNotFound
	}
	return item, shared.MapPgError(err)
}

// ListItems pages items, optionally filtered by a case-insensitive search
// over SKU and name.
func (r *Repository) ListItems(ctx context.Context, filters ListFilters) ([]inventory.Item, int, error) {
	var total int
	search := "%" + filters.Search + "%"
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM items WHERE ($1 = '%%' OR sku ILIKE $1 OR name ILIKE $1)`, search).Scan(&total); err != nil {
		return nil, 0, shared.MapPgError(err)
	}
	rows, err := r.pool.Query(ctx, `SELECT `+inventory.ItemColumns+`
FROM items WHERE ($1 = '%%' OR sku ILIKE $1 OR name ILIKE $1)
ORDER BY sku LIMIT $2 OFFSET $3`, search, filters.PageLimit(), filters.Offset())
	if err != nil {
		return nil, 0, shared.MapPgError(err)
	}
	defer rows.Close()
	var items []inventory.Item
	for rows.Next() {
		var item inventory.Item
		if err := rows.Scan(&item.ID, &item.SKU, &item.Name, &item.Type, &item.UOM, &item.ReorderPoint, &item.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

// CreateSupplier inserts a supplier.
func (r *Repository) CreateSupplier(ctx context.Context, s Supplier) (Supplier, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO suppliers (code, name, address, email, phone, bank_name, bank_account_no, bank_account_name, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW()) RETURNING id, created_at, updated_at`,
		s.Code, s.Name, s.Address, s.Email, s.Phone, s.BankName, s.BankAccountNo, s.BankAccountName).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if shared.IsUniqueViolation(err) {
			return Supplier{}, ErrDuplicateCode
		}
		return Supplier{}, shared.MapPgError(err)
	}
	return s, nil
}

// UpdateSupplier updates supplier contact and bank fields.
func (r *Repository) UpdateSupplier(ctx context.Context, s Supplier) error {
	tag, err := r.pool.Exec(ctx, `UPDATE suppliers SET name=$2, address=$3, email=$4, phone=$5, bank_name=$6, bank_account_no=$7, bank_account_name=$8, updated_at=NOW()
WHERE id=$1`, s.ID, s.Name, s.Address, s.Email, s.Phone, s.BankName, s.BankAccountNo, s.BankAccountName)
	if err != nil {
		return shared.MapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSupplierNotFound
	}
	return nil
}

// GetSupplier loads one supplier with bank fields included. Masking is the
// service's concern.
func (r *Repository) GetSupplier(ctx context.Context, supplierID int64) (Supplier, error) {
	var s Supplier
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, address, email, phone, COALESCE(bank_name,''), COALESCE(bank_account_no,''), COALESCE(bank_account_name,''), created_at, updated_at
FROM suppliers WHERE id=$1`, supplierID).
		Scan(&s.ID, &s.Code, &s.Name, &s.Address, &s.Email, &s.Phone, &s.BankName, &s.BankAccountNo, &s.BankAccountName, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, ErrSupplierNotFound
	}
	return s, shared.MapPgError(err)
}

// ListSuppliers pages suppliers filtered by code or name.
func (r *Repository) ListSuppliers(ctx context.Context, filters ListFilters) ([]Supplier, int, error) {
	var total int
	search := "%" + filters.Search + "%"
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM suppliers WHERE ($1 = '%%' OR code ILIKE $1 OR name ILIKE $1)`, search).Scan(&total); err != nil {
		return nil, 0, shared.MapPgError(err)
	}
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, address, email, phone, created_at, updated_at
FROM suppliers WHERE ($1 = '%%' OR code ILIKE $1 OR name ILIKE $1)
ORDER BY code LIMIT $2 OFFSET $3`, search, filters.PageLimit(), filters.Offset())
	if err != nil {
		return nil, 0, shared.MapPgError(err)
	}
	defer rows.Close()
	var suppliers []Supplier
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.Address, &s.Email, &s.Phone, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, 0, err
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, total, rows.Err()
}

// DeleteSupplier removes a supplier unless documents reference it.
func (r *Repository) DeleteSupplier(ctx context.Context, supplierID int64) error {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT
(SELECT COUNT(*) FROM purchase_orders WHERE supplier_id=$1) +
(SELECT COUNT(*) FROM goods_receipts WHERE supplier_id=$1) +
(SELECT COUNT(*) FROM work_orders WHERE vendor_id=$1)`, supplierID).Scan(&count)
	if err != nil {
		return shared.MapPgError(err)
	}
	if count > 0 {
		return ErrSupplierInUse
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM suppliers WHERE id=$1`, supplierID)
	if err != nil {
		return shared.MapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSupplierNotFound
	}
	return nil
}

// UpsertBOMLine inserts or replaces the requirement of one material for one
// finished good.
func (r *Repository) UpsertBOMLine(ctx context.Context, line BOMLine) (BOMLine, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO consumption_rules (finished_good_id, material_id, qty_per_unit, waste_pct, active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW(),NOW())
ON CONFLICT (finished_good_id, material_id) DO UPDATE SET qty_per_unit=EXCLUDED.qty_per_unit, waste_pct=EXCLUDED.waste_pct, active=EXCLUDED.active, updated_at=NOW()
RETURNING id, created_at, updated_at`,
		line.FinishedGoodID, line.MaterialID, line.QtyPerUnit, line.WastePct, line.Active).
		Scan(&line.ID, &line.CreatedAt, &line.UpdatedAt)
	return line, shared.MapPgError(err)
}

// ListBOM returns all lines of one finished good, inactive included.
func (r *Repository) ListBOM(ctx context.Context, finishedGoodID int64) ([]BOMLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, finished_good_id, material_id, qty_per_unit, waste_pct, active, created_at, updated_at
FROM consumption_rules WHERE finished_good_id=$1 ORDER BY material_id`, finishedGoodID)
	if err != nil {
		return nil, shared.MapPgError(err)
	}
	defer rows.Close()
	var lines []BOMLine
	for rows.Next() {
		var line BOMLine
		if err := rows.Scan(&line.ID, &line.FinishedGoodID, &line.MaterialID, &line.QtyPerUnit, &line.WastePct, &line.Active, &line.CreatedAt, &line.UpdatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// DeactivateBOMLine marks a line inactive so the planner skips it without
// losing history.
func (r *Repository) DeactivateBOMLine(ctx context.Context, lineID int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE consumption_rules SET active=FALSE, updated_at=NOW() WHERE id=$1`, lineID)
	if err != nil {
		return shared.MapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBOMLineNotFound
	}
	return nil
}
