package models

import "encoding/json"

// OpKind is the kind of a queued mutation.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// PendingOp is a queued mutation awaiting replay against the remote
// backend. Lifecycle: appended when a network mutation fails, removed when
// replay succeeds, retained when replay fails again. The queue is strictly
// FIFO; two queued operations on the same record replay in original
// submission order.
type PendingOp struct {
	Seq       int64           `db:"seq" json:"seq"`
	ID        string          `db:"id" json:"id"`
	Kind      OpKind          `db:"kind" json:"kind"`
	Table     string          `db:"table_name" json:"table"`
	RecordID  string          `db:"record_id" json:"record_id"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	Attempts  int             `db:"attempts" json:"attempts"`
	LastError string          `db:"last_error" json:"last_error,omitempty"`
	QueuedAt  int64           `db:"queued_at" json:"queued_at"`
}

// DecodePayload unmarshals the payload into a Record.
func (p *PendingOp) DecodePayload() (Record, error) {
	if len(p.Payload) == 0 {
		return nil, nil
	}
	var rec Record
	if err := json.Unmarshal(p.Payload, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}
