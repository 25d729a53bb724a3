package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/loomline-erp/loomline-erp/internal/sequence"
	"github.com/loomline-erp/loomline-erp/internal/shared"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Tx is the transactional surface of the adjustment workflow: the costing
// engine store, the document number series store and the audit trail, all
// bound to the same open transaction.
type Tx interface {
	TxStore
	Sequences() sequence.TxStore
	Audit() AuditPort
}

type pgTx struct {
	*PgTxStore
	seq   *sequence.PgTxStore
	audit *shared.TxAuditLogger
}

func (t pgTx) Sequences() sequence.TxStore { return t.seq }
func (t pgTx) Audit() AuditPort            { return t.audit }

// WithTx executes the callback inside a repeatable-read transaction and maps
// lock/serialization failures onto the shared transient category.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return shared.MapPgError(err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, pgTx{PgTxStore: NewTxStore(tx), seq: sequence.NewTxStore(tx), audit: shared.NewTxAuditLogger(tx)}); err != nil {
		return err
	}
	return shared.MapPgError(tx.Commit(ctx))
}

// ItemColumns is the canonical items column list. The catalog package writes
// rows with the same columns; keeping one definition stops reads and writes
// from drifting apart.
const ItemColumns = `id, sku, name, type, uom, reorder_point, created_at`

// GetItem loads one item by id.
func (r *Repository) GetItem(ctx context.Context, itemID int64) (Item, error) {
	var item Item
	err := r.pool.QueryRow(ctx, `SELECT `+ItemColumns+` FROM items WHERE id=$1`, itemID).
		Scan(&item.ID, &item.SKU, &item.Name, &item.Type, &item.UOM, &item.ReorderPoint, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return item, nil
}

// GetValue reads the current costing state without locking.
func (r *Repository) GetValue(ctx context.Context, itemID int64) (InventoryValue, error) {
	return scanValue(r.pool.QueryRow(ctx, `SELECT item_id, qty_on_hand, avg_cost, total_value, updated_at
FROM inventory_values WHERE item_id=$1`, itemID), itemID)
}

// ListItemIDs returns every item id, used by background scans.
func (r *Repository) ListItemIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM items ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListMovements returns the full ledger for one item in creation order.
func (r *Repository) ListMovements(ctx context.Context, itemID int64) ([]StockMovement, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, item_id, movement_type, ref_type, ref_id, ref_number, qty, unit_cost, total_cost, balance_qty, balance_value, note, created_at
FROM stock_movements WHERE item_id=$1 ORDER BY created_at ASC, id ASC`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []StockMovement
	for rows.Next() {
		var m StockMovement
		if err := rows.Scan(&m.ID, &m.ItemID, &m.Type, &m.Ref.DocType, &m.Ref.DocID, &m.Ref.DocNumber, &m.Qty, &m.UnitCost, &m.TotalCost, &m.BalanceQty, &m.BalanceValue, &m.Note, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// GetStockCard builds the stock card for a date range. The opening balance
// is the snapshot of the last movement strictly before the range start.
func (r *Repository) GetStockCard(ctx context.Context, filter StockCardFilter) (StockCard, error) {
	card := StockCard{ItemID: filter.ItemID}
	if !filter.From.IsZero() {
		err := r.pool.QueryRow(ctx, `SELECT balance_qty, balance_value FROM stock_movements
WHERE item_id=$1 AND created_at < $2 ORDER BY created_at DESC, id DESC LIMIT 1`, filter.ItemID, filter.From).
			Scan(&card.OpeningQty, &card.OpeningValue)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return StockCard{}, err
		}
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT ref_number, ref_type, movement_type, qty, unit_cost, balance_qty, balance_value, note, created_at
FROM stock_movements
WHERE item_id=$1 AND created_at >= COALESCE($2, '-infinity') AND created_at <= COALESCE($3, 'infinity')
ORDER BY created_at ASC, id ASC
LIMIT $4`, filter.ItemID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return StockCard{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var entry StockCardEntry
		var signedQty decimal.Decimal
		if err := rows.Scan(&entry.DocNumber, &entry.DocType, &entry.Type, &signedQty, &entry.UnitCost, &entry.BalanceQty, &entry.BalanceValue, &entry.Note, &entry.PostedAt); err != nil {
			return StockCard{}, err
		}
		if signedQty.IsNegative() {
			entry.QtyOut = signedQty.Neg()
		} else {
			entry.QtyIn = signedQty
		}
		card.Entries = append(card.Entries, entry)
	}
	return card, rows.Err()
}

// PgTxStore implements TxStore against one open transaction.
type PgTxStore struct {
	tx pgx.Tx
}

// NewTxStore wraps an open transaction.
func NewTxStore(tx pgx.Tx) *PgTxStore {
	return &PgTxStore{tx: tx}
}

// GetValueForUpdate reads the costing row under a row lock.
func (s *PgTxStore) GetValueForUpdate(ctx context.Context, itemID int64) (InventoryValue, error) {
	return scanValue(s.tx.QueryRow(ctx, `SELECT item_id, qty_on_hand, avg_cost, total_value, updated_at
FROM inventory_values WHERE item_id=$1 FOR UPDATE`, itemID), itemID)
}

// UpsertValue persists the post-transition state.
func (s *PgTxStore) UpsertValue(ctx context.Context, value InventoryValue) error {
	_, err := s.tx.Exec(ctx, `INSERT INTO inventory_values (item_id, qty_on_hand, avg_cost, total_value, updated_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (item_id) DO UPDATE SET qty_on_hand=EXCLUDED.qty_on_hand, avg_cost=EXCLUDED.avg_cost, total_value=EXCLUDED.total_value, updated_at=EXCLUDED.updated_at`,
		value.ItemID, value.QtyOnHand, value.AvgCost, value.TotalValue, value.UpdatedAt)
	return shared.MapPgError(err)
}

// InsertMovement appends one ledger row. Rows are never updated or deleted.
func (s *PgTxStore) InsertMovement(ctx context.Context, m StockMovement) (int64, error) {
	var id int64
	err := s.tx.QueryRow(ctx, `INSERT INTO stock_movements (item_id, movement_type, ref_type, ref_id, ref_number, qty, unit_cost, total_cost, balance_qty, balance_value, note, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id`,
		m.ItemID, string(m.Type), m.Ref.DocType, m.Ref.DocID, m.Ref.DocNumber, m.Qty, m.UnitCost, m.TotalCost, m.BalanceQty, m.BalanceValue, m.Note, m.CreatedAt).Scan(&id)
	return id, shared.MapPgError(err)
}

func scanValue(row pgx.Row, itemID int64) (InventoryValue, error) {
	var v InventoryValue
	err := row.Scan(&v.ItemID, &v.QtyOnHand, &v.AvgCost, &v.TotalValue, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return InventoryValue{}, ErrValueNotFound
		}
		return InventoryValue{}, shared.MapPgError(err)
	}
	return v, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
