package mrp

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/loomline-erp/loomline-erp/internal/shared"
)

// Repository reads BOM rules and stock levels from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ActiveRules lists active consumption rules for one finished good.
func (r *Repository) ActiveRules(ctx context.Context, finishedGoodID int64) ([]ConsumptionRule, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, finished_good_id, material_id, qty_per_unit, waste_pct, active
FROM consumption_rules WHERE finished_good_id=$1 AND active ORDER BY id`, finishedGoodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rules []ConsumptionRule
	for rows.Next() {
		var rule ConsumptionRule
		if err := rows.Scan(&rule.ID, &rule.FinishedGoodID, &rule.MaterialID, &rule.QtyPerUnit, &rule.WastePct, &rule.Active); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// AvailableQty reads the current on-hand quantity, zero when the item has no
// costing row yet.
func (r *Repository) AvailableQty(ctx context.Context, itemID int64) (decimal.Decimal, error) {
	var qty decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT qty_on_hand FROM inventory_values WHERE item_id=$1`, itemID).Scan(&qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return qty, nil
}

// ItemLabel resolves display fields for a material.
func (r *Repository) ItemLabel(ctx context.Context, itemID int64) (string, string, error) {
	var sku, name string
	err := r.pool.QueryRow(ctx, `SELECT sku, name FROM items WHERE id=$1`, itemID).Scan(&sku, &name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", shared.ErrNotFound
		}
		return "", "", err
	}
	return sku, name, nil
}
