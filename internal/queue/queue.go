// Package queue provides the durable offline write queue: an ordered list
// of pending mutations that failed to reach the remote backend.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/nalvarez/comanda/internal/apperr"
	"github.com/nalvarez/comanda/internal/ident"
	"github.com/nalvarez/comanda/internal/logging"
	"github.com/nalvarez/comanda/internal/models"
)

// Queue is an append-only FIFO sequence of pending operations, persisted
// so it survives a restart. Enqueue is synchronous and never drops an
// operation silently. Dequeue happens only during reconciliation.
//
// Entries are never reordered or coalesced: two queued operations on the
// same record replay in original submission order.
type Queue struct {
	db *sql.DB
	mu sync.Mutex
}

const schema = `
CREATE TABLE IF NOT EXISTS pending_operations (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL,
	kind TEXT NOT NULL,
	table_name TEXT NOT NULL,
	record_id TEXT NOT NULL,
	payload TEXT NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	queued_at INTEGER NOT NULL
);`

// New creates a queue over the given database handle.
func New(db *sql.DB) (*Queue, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, apperr.Wrap(apperr.ErrStorageUnavailable, "create queue table", err)
	}
	return &Queue{db: db}, nil
}

// Enqueue appends a pending operation.
func (q *Queue) Enqueue(ctx context.Context, kind models.OpKind, table, recordID string, payload models.Record) (*models.PendingOp, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInvalid, "encode payload", err)
	}

	op := &models.PendingOp{
		ID:       ident.NewEnvelopeID(),
		Kind:     kind,
		Table:    table,
		RecordID: recordID,
		Payload:  data,
		QueuedAt: time.Now().Unix(),
	}

	res, err := q.db.ExecContext(ctx, `
	INSERT INTO pending_operations (id, kind, table_name, record_id, payload, attempts, last_error, queued_at)
	VALUES (?, ?, ?, ?, ?, 0, '', ?)`,
		op.ID, string(op.Kind), op.Table, op.RecordID, string(op.Payload), op.QueuedAt)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrStorageUnavailable, "enqueue", err)
	}
	op.Seq, _ = res.LastInsertId()

	logging.Debug("queued pending operation", logging.Fields{
		"kind":   op.Kind,
		"table":  op.Table,
		"record": op.RecordID,
		"seq":    op.Seq,
	})
	return op, nil
}

// List returns every pending operation in FIFO order.
func (q *Queue) List(ctx context.Context) ([]models.PendingOp, error) {
	rows, err := q.db.QueryContext(ctx, `
	SELECT seq, id, kind, table_name, record_id, payload, attempts, last_error, queued_at
	FROM pending_operations ORDER BY seq`)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrStorageUnavailable, "list queue", err)
	}
	defer rows.Close()

	var out []models.PendingOp
	for rows.Next() {
		var op models.PendingOp
		var kind, payload string
		if err := rows.Scan(&op.Seq, &op.ID, &kind, &op.Table, &op.RecordID,
			&payload, &op.Attempts, &op.LastError, &op.QueuedAt); err != nil {
			return nil, apperr.Wrap(apperr.ErrQueueCorrupt, "scan queue entry", err)
		}
		op.Kind = models.OpKind(kind)
		op.Payload = json.RawMessage(payload)
		out = append(out, op)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.ErrQueueCorrupt, "iterate queue", err)
	}
	return out, nil
}

// Remove deletes the entry once its replay succeeded. A pending operation
// never outlives a successful replay.
func (q *Queue) Remove(ctx context.Context, seq int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	res, err := q.db.ExecContext(ctx, "DELETE FROM pending_operations WHERE seq = ?", seq)
	if err != nil {
		return apperr.Wrap(apperr.ErrStorageUnavailable, "remove queue entry", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Newf(apperr.ErrNotFound, "queue entry %d not found", seq)
	}
	return nil
}

// MarkFailed records a failed replay attempt. The entry keeps its original
// sequence position, so surviving entries preserve submission order.
func (q *Queue) MarkFailed(ctx context.Context, seq int64, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := q.db.ExecContext(ctx,
		"UPDATE pending_operations SET attempts = attempts + 1, last_error = ? WHERE seq = ?",
		msg, seq)
	if err != nil {
		return apperr.Wrap(apperr.ErrStorageUnavailable, "mark queue entry failed", err)
	}
	return nil
}

// Len returns the number of queued operations.
func (q *Queue) Len(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pending_operations").Scan(&n); err != nil {
		return 0, apperr.Wrap(apperr.ErrStorageUnavailable, "count queue", err)
	}
	return n, nil
}

// Clear removes every queued operation. Test and maintenance use only.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, err := q.db.ExecContext(ctx, "DELETE FROM pending_operations"); err != nil {
		return apperr.Wrap(apperr.ErrStorageUnavailable, "clear queue", err)
	}
	return nil
}
