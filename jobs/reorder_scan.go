package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	jobmetrics "github.com/loomline-erp/loomline-erp/internal/jobs"
)

// ReorderScanJob flags items whose on-hand quantity is at or below their
// reorder point so purchasing can raise orders before production stalls.
type ReorderScanJob struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
	printer *message.Printer
}

// NewReorderScanJob initialises the reorder scan handler. metrics may be nil.
func NewReorderScanJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReorderScanJob {
	return &ReorderScanJob{pool: pool, logger: logger, metrics: metrics, printer: message.NewPrinter(language.English)}
}

type reorderHit struct {
	ItemID       int64
	SKU          string
	Name         string
	QtyOnHand    decimal.Decimal
	ReorderPoint decimal.Decimal
}

// Handle executes the reorder scan.
func (j *ReorderScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("reorder scan: handler not configured")
	}
	var payload ReorderScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.metrics.Track(TaskReorderScan)
	return tracker.End(j.scan(ctx))
}

func (j *ReorderScanJob) scan(ctx context.Context) error {
	rows, err := j.pool.Query(ctx, `SELECT i.id, i.sku, i.name, v.qty_on_hand, i.reorder_point
FROM items i
JOIN inventory_values v ON v.item_id = i.id
WHERE i.reorder_point > 0 AND v.qty_on_hand <= i.reorder_point
ORDER BY i.sku`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var hits []reorderHit
	for rows.Next() {
		var hit reorderHit
		if err := rows.Scan(&hit.ItemID, &hit.SKU, &hit.Name, &hit.QtyOnHand, &hit.ReorderPoint); err != nil {
			return err
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(hits) == 0 {
		j.logger.Info("reorder scan: all items above reorder point")
		return nil
	}
	j.metrics.AddReorderAlerts(len(hits))
	for _, hit := range hits {
		j.logger.Warn("item below reorder point",
			slog.String("sku", hit.SKU),
			slog.String("summary", j.printer.Sprintf("%s has %v on hand, reorder point %v", hit.Name, hit.QtyOnHand, hit.ReorderPoint)))
	}
	j.logger.Info(j.printer.Sprintf("reorder scan flagged %d item(s)", len(hits)))
	return nil
}
