package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// RefID derives a stable UUID for the audited entity so repeated actions
// against the same record group together regardless of insertion order.
func (l AuditLog) RefID() uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("%s:%s", l.Entity, l.EntityID)))
}

type auditExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertAuditLog(ctx context.Context, db auditExecer, log AuditLog) error {
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	var at any
	if !log.At.IsZero() {
		at = log.At
	}
	_, err = db.Exec(ctx, `INSERT INTO audit_logs (ref_id, actor_id, action, entity, entity_id, meta, occurred_at) VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`, log.RefID(), log.ActorID, log.Action, log.Entity, log.EntityID, metaJSON, at)
	return err
}

// AuditLogger writes records into audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	return insertAuditLog(ctx, l.pool, log)
}

// TxAuditLogger writes audit rows through an already-open transaction, so the
// entry commits or rolls back together with the workflow that produced it.
type TxAuditLogger struct {
	tx pgx.Tx
}

// NewTxAuditLogger binds the recorder to an open transaction.
func NewTxAuditLogger(tx pgx.Tx) *TxAuditLogger {
	return &TxAuditLogger{tx: tx}
}

// Record persists the log entry inside the bound transaction.
func (l *TxAuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	return insertAuditLog(ctx, l.tx, log)
}
