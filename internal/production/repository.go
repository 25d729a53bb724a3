package production

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/loomline-erp/loomline-erp/internal/inventory"
	"github.com/loomline-erp/loomline-erp/internal/sequence"
	"github.com/loomline-erp/loomline-erp/internal/shared"
)

// TxRepository exposes the writes a production workflow performs inside one
// transaction, plus the costing engine and sequencer stores bound to it.
type TxRepository interface {
	Inventory() inventory.TxStore
	Sequences() sequence.TxStore

	CreateWO(ctx context.Context, wo WorkOrder) (int64, error)
	InsertConsumptionLine(ctx context.Context, line ConsumptionLine) error
	GetWOForUpdate(ctx context.Context, woID int64) (WorkOrder, error)
	GetConsumptionLinesForUpdate(ctx context.Context, woID int64) ([]ConsumptionLine, error)
	UpdateWOStatus(ctx context.Context, woID int64, status WOStatus, issuedAt, completedAt time.Time) error
	AddActualQty(ctx context.Context, woID int64, qty decimal.Decimal) error
	AddIssuedQty(ctx context.Context, lineID int64, qty decimal.Decimal) error
	AddReturnedQty(ctx context.Context, lineID int64, qty decimal.Decimal) error
	CountFGReceipts(ctx context.Context, woID int64) (int64, error)
	SumIssueCost(ctx context.Context, woID int64) (decimal.Decimal, error)

	CreateIssue(ctx context.Context, issue MaterialIssue) (int64, error)
	InsertIssueLine(ctx context.Context, line MaterialIssueLine) error
	SetIssueTotal(ctx context.Context, issueID int64, total decimal.Decimal) error

	CreateFGReceipt(ctx context.Context, receipt FGReceipt) (int64, error)

	CreateReturn(ctx context.Context, ret VendorReturn) (int64, error)
	InsertReturnLine(ctx context.Context, line VendorReturnLine) error
	SetReturnTotal(ctx context.Context, returnID int64, total decimal.Decimal) error
	GetReturnForUpdate(ctx context.Context, returnID int64) (VendorReturn, []VendorReturnLine, error)
	UpdateReturnStatus(ctx context.Context, returnID int64, status ReturnStatus, processedAt time.Time) error
	SetReturnLogistics(ctx context.Context, returnID int64, tracking, proof string, completedAt time.Time) error
}

// Repository persists production documents in PostgreSQL.
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

// WithTx runs fn inside one repeatable-read transaction.
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

// GetWO loads a work order with its consumption plan.
func (r *Repository) GetWO(ctx context.Context, woID int64) (WorkOrder, []ConsumptionLine, error) {
	var wo WorkOrder
	var issuedAt, completedAt *time.Time
	err := r.pool.QueryRow(ctx, `SELECT id, number, vendor_id, finished_good_id, planned_qty, actual_qty, status, issued_at, completed_at, note, created_by, created_at
FROM work_orders WHERE id=$1`, woID).
		Scan(&wo.ID, &wo.Number, &wo.VendorID, &wo.FinishedGoodID, &wo.PlannedQty, &wo.ActualQty, &wo.Status, &issuedAt, &completedAt, &wo.Note, &wo.CreatedBy, &wo.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WorkOrder{}, nil, ErrWONotFound
		}
		return WorkOrder{}, nil, err
	}
	if issuedAt != nil {
		wo.IssuedAt = *issuedAt
	}
	if completedAt != nil {
		wo.CompletedAt = *completedAt
	}
	rows, err := r.pool.Query(ctx, `SELECT id, work_order_id, material_id, planned_qty, issued_qty, returned_qty
FROM work_order_consumption WHERE work_order_id=$1 ORDER BY id`, woID)
	if err != nil {
		return WorkOrder{}, nil, err
	}
	defer rows.Close()
	var lines []ConsumptionLine
	for rows.Next() {
		var line ConsumptionLine
		if err := rows.Scan(&line.ID, &line.WorkOrderID, &line.MaterialID, &line.PlannedQty, &line.IssuedQty, &line.ReturnedQty); err != nil {
			return WorkOrder{}, nil, err
		}
		lines = append(lines, line)
	}
	return wo, lines, rows.Err()
}

// GetReturn loads a vendor return with its lines.
func (r *Repository) GetReturn(ctx context.Context, returnID int64) (VendorReturn, []VendorReturnLine, error) {
	return scanReturn(ctx, r.pool, returnID, false)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func scanReturn(ctx context.Context, q rowQuerier, returnID int64, forUpdate bool) (VendorReturn, []VendorReturnLine, error) {
	query := `SELECT id, number, COALESCE(work_order_id, 0), vendor_id, status, total_value, COALESCE(tracking_number, ''), COALESCE(receipt_proof, ''), note, created_by, created_at, processed_at, completed_at
FROM vendor_returns WHERE id=$1`
	if forUpdate {
		query += " FOR UPDATE"
	}
	var ret VendorReturn
	var processedAt, completedAt *time.Time
	err := q.QueryRow(ctx, query, returnID).
		Scan(&ret.ID, &ret.Number, &ret.WorkOrderID, &ret.VendorID, &ret.Status, &ret.TotalValue, &ret.TrackingNumber, &ret.ReceiptProof, &ret.Note, &ret.CreatedBy, &ret.CreatedAt, &processedAt, &completedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VendorReturn{}, nil, ErrReturnNotFound
		}
		return VendorReturn{}, nil, shared.MapPgError(err)
	}
	if processedAt != nil {
		ret.ProcessedAt = *processedAt
	}
	if completedAt != nil {
		ret.CompletedAt = *completedAt
	}
	rows, err := q.Query(ctx, `SELECT id, return_id, material_id, qty, unit_cost, total_value
FROM vendor_return_lines WHERE return_id=$1 ORDER BY id`, returnID)
	if err != nil {
		return VendorReturn{}, nil, err
	}
	defer rows.Close()
	var lines []VendorReturnLine
	for rows.Next() {
		var line VendorReturnLine
		if err := rows.Scan(&line.ID, &line.ReturnID, &line.MaterialID, &line.Qty, &line.UnitCost, &line.TotalValue); err != nil {
			return VendorReturn{}, nil, err
		}
		lines = append(lines, line)
	}
	return ret, lines, rows.Err()
}

func (r *txRepo) CreateWO(ctx context.Context, wo WorkOrder) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO work_orders (number, vendor_id, finished_good_id, planned_qty, actual_qty, status, note, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW()) RETURNING id`,
		wo.Number, wo.VendorID, wo.FinishedGoodID, wo.PlannedQty, wo.ActualQty, string(wo.Status), wo.Note, wo.CreatedBy).Scan(&id)
	return id, shared.MapPgError(err)
}

func (r *txRepo) InsertConsumptionLine(ctx context.Context, line ConsumptionLine) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO work_order_consumption (work_order_id, material_id, planned_qty, issued_qty, returned_qty)
VALUES ($1,$2,$3,$4,$5)`, line.WorkOrderID, line.MaterialID, line.PlannedQty, line.IssuedQty, line.ReturnedQty)
	return shared.MapPgError(err)
}

func (r *txRepo) GetWOForUpdate(ctx context.Context, woID int64) (WorkOrder, error) {
	var wo WorkOrder
	var issuedAt, completedAt *time.Time
	err := r.tx.QueryRow(ctx, `SELECT id, number, vendor_id, finished_good_id, planned_qty, actual_qty, status, issued_at, completed_at, note, created_by, created_at
FROM work_orders WHERE id=$1 FOR UPDATE`, woID).
		Scan(&wo.ID, &wo.Number, &wo.VendorID, &wo.FinishedGoodID, &wo.PlannedQty, &wo.ActualQty, &wo.Status, &issuedAt, &completedAt, &wo.Note, &wo.CreatedBy, &wo.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WorkOrder{}, ErrWONotFound
		}
		return WorkOrder{}, shared.MapPgError(err)
	}
	if issuedAt != nil {
		wo.IssuedAt = *issuedAt
	}
	if completedAt != nil {
		wo.CompletedAt = *completedAt
	}
	return wo, nil
}

func (r *txRepo) GetConsumptionLinesForUpdate(ctx context.Context, woID int64) ([]ConsumptionLine, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, work_order_id, material_id, planned_qty, issued_qty, returned_qty
FROM work_order_consumption WHERE work_order_id=$1 ORDER BY id FOR UPDATE`, woID)
	if err != nil {
		return nil, shared.MapPgError(err)
	}
	defer rows.Close()
	var lines []ConsumptionLine
	for rows.Next() {
		var line ConsumptionLine
		if err := rows.Scan(&line.ID, &line.WorkOrderID, &line.MaterialID, &line.PlannedQty, &line.IssuedQty, &line.ReturnedQty); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *txRepo) UpdateWOStatus(ctx context.Context, woID int64, status WOStatus, issuedAt, completedAt time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE work_orders SET status=$2, issued_at=COALESCE($3, issued_at), completed_at=COALESCE($4, completed_at) WHERE id=$1`,
		woID, string(status), nullTime(issuedAt), nullTime(completedAt))
	return shared.MapPgError(err)
}

func (r *txRepo) AddActualQty(ctx context.Context, woID int64, qty decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE work_orders SET actual_qty = actual_qty + $2 WHERE id=$1`, woID, qty)
	return shared.MapPgError(err)
}

func (r *txRepo) AddIssuedQty(ctx context.Context, lineID int64, qty decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE work_order_consumption SET issued_qty = issued_qty + $2 WHERE id=$1`, lineID, qty)
	return shared.MapPgError(err)
}

func (r *txRepo) AddReturnedQty(ctx context.Context, lineID int64, qty decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE work_order_consumption SET returned_qty = returned_qty + $2 WHERE id=$1`, lineID, qty)
	return shared.MapPgError(err)
}

func (r *txRepo) CountFGReceipts(ctx context.Context, woID int64) (int64, error) {
	var count int64
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM fg_receipts WHERE work_order_id=$1`, woID).Scan(&count)
	return count, shared.MapPgError(err)
}

func (r *txRepo) SumIssueCost(ctx context.Context, woID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(total_cost), 0) FROM material_issues WHERE work_order_id=$1`, woID).Scan(&total)
	return total, shared.MapPgError(err)
}

func (r *txRepo) CreateIssue(ctx context.Context, issue MaterialIssue) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO material_issues (number, work_order_id, total_cost, issued_at, note, created_by)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		issue.Number, issue.WorkOrderID, issue.TotalCost, issue.IssuedAt, issue.Note, issue.CreatedBy).Scan(&id)
	return id, shared.MapPgError(err)
}

func (r *txRepo) InsertIssueLine(ctx context.Context, line MaterialIssueLine) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO material_issue_lines (issue_id, material_id, qty, unit_cost, total_cost)
VALUES ($1,$2,$3,$4,$5)`, line.IssueID, line.MaterialID, line.Qty, line.UnitCost, line.TotalCost)
	return shared.MapPgError(err)
}

func (r *txRepo) SetIssueTotal(ctx context.Context, issueID int64, total decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE material_issues SET total_cost=$2 WHERE id=$1`, issueID, total)
	return shared.MapPgError(err)
}

func (r *txRepo) CreateFGReceipt(ctx context.Context, receipt FGReceipt) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO fg_receipts (number, work_order_id, received_qty, rejected_qty, accepted_qty, unit_cost, received_at, note, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
		receipt.Number, receipt.WorkOrderID, receipt.ReceivedQty, receipt.RejectedQty, receipt.AcceptedQty, receipt.UnitCost, receipt.ReceivedAt, receipt.Note, receipt.CreatedBy).Scan(&id)
	return id, shared.MapPgError(err)
}

func (r *txRepo) CreateReturn(ctx context.Context, ret VendorReturn) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO vendor_returns (number, work_order_id, vendor_id, status, total_value, note, created_by, created_at)
VALUES ($1,NULLIF($2,0),$3,$4,$5,$6,$7,NOW()) RETURNING id`,
		ret.Number, ret.WorkOrderID, ret.VendorID, string(ret.Status), ret.TotalValue, ret.Note, ret.CreatedBy).Scan(&id)
	return id, shared.MapPgError(err)
}

func (r *txRepo) InsertReturnLine(ctx context.Context, line VendorReturnLine) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO vendor_return_lines (return_id, material_id, qty, unit_cost, total_value)
VALUES ($1,$2,$3,$4,$5)`, line.ReturnID, line.MaterialID, line.Qty, line.UnitCost, line.TotalValue)
	return shared.MapPgError(err)
}

func (r *txRepo) SetReturnTotal(ctx context.Context, returnID int64, total decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE vendor_returns SET total_value=$2 WHERE id=$1`, returnID, total)
	return shared.MapPgError(err)
}

func (r *txRepo) GetReturnForUpdate(ctx context.Context, returnID int64) (VendorReturn, []VendorReturnLine, error) {
	return scanReturn(ctx, r.tx, returnID, true)
}

func (r *txRepo) UpdateReturnStatus(ctx context.Context, returnID int64, status ReturnStatus, processedAt time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE vendor_returns SET status=$2, processed_at=COALESCE($3, processed_at) WHERE id=$1`,
		returnID, string(status), nullTime(processedAt))
	return shared.MapPgError(err)
}

func (r *txRepo) SetReturnLogistics(ctx context.Context, returnID int64, tracking, proof string, completedAt time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE vendor_returns SET tracking_number=$2, receipt_proof=$3, completed_at=$4, status=$5 WHERE id=$1`,
		returnID, tracking, proof, completedAt, string(ReturnStatusCompleted))
	return shared.MapPgError(err)
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
