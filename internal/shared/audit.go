package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents a record stored in warehouse_audit_logs.
type AuditLog struct {
	ID           int64          `json:"id,omitempty"`
	ActorID      int64          `json:"actor_id"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Before       map[string]any `json:"before,omitempty"`
	After        map[string]any `json:"after,omitempty"`
	At           time.Time      `json:"at"`
}

// Validate checks the mandatory audit fields.
func (l AuditLog) Validate() error {
	if l.ActorID <= 0 {
		return ErrMissingActor
	}
	if l.Action == "" || l.ResourceType == "" || l.ResourceID == "" {
		return errors.New("audit log requires action/resource_type/resource_id")
	}
	return nil
}

// AuditWriter is implemented by every transactional repository that mutates
// locations, ledger rows or workflow documents.
type AuditWriter interface {
	InsertAuditLog(ctx context.Context, log AuditLog) error
}

// Execer is satisfied by pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// WriteAuditLog inserts an audit row through the given executor, so it can
// share the caller's transaction.
func WriteAuditLog(ctx context.Context, exec Execer, log AuditLog) error {
	if err := log.Validate(); err != nil {
		return err
	}
	before, err := json.Marshal(log.Before)
	if err != nil {
		return err
	}
	after, err := json.Marshal(log.After)
	if err != nil {
		return err
	}
	var at any
	if !log.At.IsZero() {
		at = log.At
	}
	_, err = exec.Exec(ctx, `INSERT INTO warehouse_audit_logs (actor_id, action, resource_type, resource_id, before_value, after_value, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`, log.ActorID, log.Action, log.ResourceType, log.ResourceID, before, after, at)
	return err
}

// AuditLogger reads and writes warehouse audit records outside of a workflow transaction.
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
	return WriteAuditLog(ctx, l.pool, log)
}

// History lists the audit trail of a single resource, newest first.
func (l *AuditLogger) History(ctx context.Context, resourceType, resourceID string, limit int) ([]AuditLog, error) {
	if l == nil {
		return nil, errors.New("audit logger not initialised")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := l.pool.Query(ctx, `SELECT id, actor_id, action, resource_type, resource_id, before_value, after_value, occurred_at
FROM warehouse_audit_logs
WHERE resource_type = $1 AND resource_id = $2
ORDER BY occurred_at DESC, id DESC
LIMIT $3`, resourceType, resourceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	logs := []AuditLog{}
	for rows.Next() {
		var (
			entry         AuditLog
			before, after []byte
		)
		if err := rows.Scan(&entry.ID, &entry.ActorID, &entry.Action, &entry.ResourceType, &entry.ResourceID, &before, &after, &entry.At); err != nil {
			return nil, err
		}
		if len(before) > 0 {
			_ = json.Unmarshal(before, &entry.Before)
		}
		if len(after) > 0 {
			_ = json.Unmarshal(after, &entry.After)
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
