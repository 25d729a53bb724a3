package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity verifies that replaying each item's movement
	// ledger reproduces its stored balance.
	TaskLedgerIntegrity = "inventory:ledger_integrity"
	// TaskReorderScan flags items at or below their reorder point.
	TaskReorderScan = "inventory:reorder_scan"
)

// LedgerIntegrityPayload carries scheduling metadata for the integrity scan.
type LedgerIntegrityPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLedgerIntegrityTask constructs an Asynq task for the ledger scan.
func NewLedgerIntegrityTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(LedgerIntegrityPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, body, asynq.Queue(QueueDefault)), nil
}

// ReorderScanPayload carries scheduling metadata for the reorder scan.
type ReorderScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewReorderScanTask constructs an Asynq task for the reorder scan.
func NewReorderScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ReorderScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReorderScan, body, asynq.Queue(QueueDefault)), nil
}
