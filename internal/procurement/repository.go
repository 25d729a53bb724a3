package procurement

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/loomline-erp/loomline-erp/internal/inventory"
	"github.com/loomline-erp/loomline-erp/internal/sequence"
	"github.com/loomline-erp/loomline-erp/internal/shared"
)

// TxRepository exposes the writes a procurement workflow performs inside one
// transaction, together with the costing engine and sequencer stores bound
// to the same transaction.
type TxRepository interface {
	Inventory() inventory.TxStore
	Sequences() sequence.TxStore

	CreatePO(ctx context.Context, po PurchaseOrder) (int64, error)
	InsertPOItem(ctx context.Context, item POItem) error
	UpdatePOHeader(ctx context.Context, po PurchaseOrder) error
	ReplacePOItems(ctx context.Context, poID int64, items []POItem) error
	UpdatePOStatus(ctx context.Context, poID int64, status POStatus) error
	GetPOForUpdate(ctx context.Context, poID int64) (PurchaseOrder, []POItem, error)
	AddReceivedQty(ctx context.Context, poItemID int64, qty decimal.Decimal) error
	CountReceipts(ctx context.Context, poID int64) (int64, error)
	CreateGRN(ctx context.Context, grn GoodsReceipt) (int64, error)
	InsertGRNLine(ctx context.Context, line GRNLine) error
	SetGRNTotal(ctx context.Context, grnID int64, total decimal.Decimal) error
}

// Repository persists procurement documents in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx  pgx.Tx
	inv *inventory.PgTxStore
	seq *sequence.PgTxStore
}

func (r *txRepo) Inventory() inventory.TxStore { return r.inv }
func (r *txRepo) Sequences() sequence.TxStore  { return r.seq }

// WithTx runs fn inside one repeatable-read transaction; all writes roll
// back together on any failure.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return shared.MapPgError(err)
	}
	defer tx.Rollback(ctx)

	wrapper := &txRepo{tx: tx, inv: inventory.NewTxStore(tx), seq: sequence.NewTxStore(tx)}
	if err := fn(ctx, wrapper); err != nil {
		return err
	}
	return shared.MapPgError(tx.Commit(ctx))
}

// GetPO loads a purchase order with its lines.
func (r *Repository) GetPO(ctx context.Context, poID int64) (PurchaseOrder, []POItem, error) {
	var po PurchaseOrder
	err := r.pool.QueryRow(ctx, `SELECT id, number, supplier_id, status, ordered_at, expected_at, note, created_by, created_at
FROM purchase_orders WHERE id=$1`, poID).
		Scan(&po.ID, &po.Number, &po.SupplierID, &po.Status, &po.OrderedAt, &po.ExpectedAt, &po.Note, &po.CreatedBy, &po.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, nil, ErrPONotFound
		}
		return PurchaseOrder{}, nil, err
	}
	items, err := r.listPOItems(ctx, r.pool, poID)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	return po, items, nil
}

// GetGRN loads a goods receipt with its lines.
func (r *Repository) GetGRN(ctx context.Context, grnID int64) (GoodsReceipt, []GRNLine, error) {
	var grn GoodsReceipt
	err := r.pool.QueryRow(ctx, `SELECT id, number, po_id, supplier_id, received_at, total_value, note, created_by
FROM goods_receipts WHERE id=$1`, grnID).
		Scan(&grn.ID, &grn.Number, &grn.POID, &grn.SupplierID, &grn.ReceivedAt, &grn.TotalValue, &grn.Note, &grn.CreatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GoodsReceipt{}, nil, ErrGRNNotFound
		}
		return GoodsReceipt{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, grn_id, item_id, qty, unit_cost FROM goods_receipt_lines WHERE grn_id=$1 ORDER BY id`, grnID)
	if err != nil {
		return GoodsReceipt{}, nil, err
	}
	defer rows.Close()
	var lines []GRNLine
	for rows.Next() {
		var line GRNLine
		if err := rows.Scan(&line.ID, &line.GRNID, &line.ItemID, &line.Qty, &line.UnitCost); err != nil {
			return GoodsReceipt{}, nil, err
		}
		lines = append(lines, line)
	}
	return grn, lines, rows.Err()
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *Repository) listPOItems(ctx context.Context, q queryer, poID int64) ([]POItem, error) {
	rows, err := q.Query(ctx, `SELECT id, po_id, item_id, ordered_qty, received_qty, unit_price
FROM purchase_order_items WHERE po_id=$1 ORDER BY id`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []POItem
	for rows.Next() {
		var item POItem
		if err := rows.Scan(&item.ID, &item.POID, &item.ItemID, &item.OrderedQty, &item.ReceivedQty, &item.UnitPrice); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *txRepo) CreatePO(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_orders (number, supplier_id, status, ordered_at, expected_at, note, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW()) RETURNING id`,
		po.Number, po.SupplierID, string(po.Status), po.OrderedAt, po.ExpectedAt, po.Note, po.CreatedBy).Scan(&id)
	return id, shared.MapPgError(err)
}

func (r *txRepo) InsertPOItem(ctx context.Context, item POItem) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO purchase_order_items (po_id, item_id, ordered_qty, received_qty, unit_price)
VALUES ($1,$2,$3,$4,$5)`, item.POID, item.ItemID, item.OrderedQty, item.ReceivedQty, item.UnitPrice)
	return shared.MapPgError(err)
}

func (r *txRepo) UpdatePOHeader(ctx context.Context, po PurchaseOrder) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET supplier_id=$2, expected_at=$3, note=$4 WHERE id=$1`,
		po.ID, po.SupplierID, po.ExpectedAt, po.Note)
	return shared.MapPgError(err)
}

func (r *txRepo) ReplacePOItems(ctx context.Context, poID int64, items []POItem) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM purchase_order_items WHERE po_id=$1`, poID); err != nil {
		return shared.MapPgError(err)
	}
	for _, item := range items {
		item.POID = poID
		if err := r.InsertPOItem(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepo) UpdatePOStatus(ctx context.Context, poID int64, status POStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET status=$2 WHERE id=$1`, poID, string(status))
	return shared.MapPgError(err)
}

func (r *txRepo) GetPOForUpdate(ctx context.Context, poID int64) (PurchaseOrder, []POItem, error) {
	var po PurchaseOrder
	err := r.tx.QueryRow(ctx, `SELECT id, number, supplier_id, status, ordered_at, expected_at, note, created_by, created_at
FROM purchase_orders WHERE id=$1 FOR UPDATE`, poID).
		Scan(&po.ID, &po.Number, &po.SupplierID, &po.Status, &po.OrderedAt, &po.ExpectedAt, &po.Note, &po.CreatedBy, &po.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, nil, ErrPONotFound
		}
		return PurchaseOrder{}, nil, shared.MapPgError(err)
	}
	rows, err := r.tx.Query(ctx, `SELECT id, po_id, item_id, ordered_qty, received_qty, unit_price
FROM purchase_order_items WHERE po_id=$1 ORDER BY id FOR UPDATE`, poID)
	if err != nil {
		return PurchaseOrder{}, nil, shared.MapPgError(err)
	}
	defer rows.Close()
	var items []POItem
	for rows.Next() {
		var item POItem
		if err := rows.Scan(&item.ID, &item.POID, &item.ItemID, &item.OrderedQty, &item.ReceivedQty, &item.UnitPrice); err != nil {
			return PurchaseOrder{}, nil, err
		}
		items = append(items, item)
	}
	return po, items, rows.Err()
}

func (r *txRepo) AddReceivedQty(ctx context.Context, poItemID int64, qty decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_order_items SET received_qty = received_qty + $2 WHERE id=$1`, poItemID, qty)
	return shared.MapPgError(err)
}

func (r *txRepo) CountReceipts(ctx context.Context, poID int64) (int64, error) {
	var count int64
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM goods_receipts WHERE po_id=$1`, poID).Scan(&count)
	return count, shared.MapPgError(err)
}

func (r *txRepo) CreateGRN(ctx context.Context, grn GoodsReceipt) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO goods_receipts (number, po_id, supplier_id, received_at, total_value, note, created_by)
VALUES ($1,NULLIF($2,0),$3,$4,$5,$6,$7) RETURNING id`,
		grn.Number, grn.POID, grn.SupplierID, grn.ReceivedAt, grn.TotalValue, grn.Note, grn.CreatedBy).Scan(&id)
	return id, shared.MapPgError(err)
}

func (r *txRepo) InsertGRNLine(ctx context.Context, line GRNLine) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO goods_receipt_lines (grn_id, item_id, qty, unit_cost)
VALUES ($1,$2,$3,$4)`, line.GRNID, line.ItemID, line.Qty, line.UnitCost)
	return shared.MapPgError(err)
}

func (r *txRepo) SetGRNTotal(ctx context.Context, grnID int64, total decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE goods_receipts SET total_value=$2 WHERE id=$1`, grnID, total)
	return shared.MapPgError(err)
}
