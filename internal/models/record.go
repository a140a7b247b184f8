// Package models provides data model definitions for the Comanda data layer.
package models

import (
	"encoding/json"
	"time"
)

// Record is one row within a table: a mapping of field name to scalar or
// JSON value, always carrying "id", "created_at" and "updated_at".
// Tables share a schema by convention; nothing is enforced client side.
type Record map[string]any

// ID returns the record identifier, or "" when unset.
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// CreatedAt returns the creation timestamp as unix seconds.
func (r Record) CreatedAt() int64 {
	return Int64(r["created_at"])
}

// UpdatedAt returns the update timestamp as unix seconds.
func (r Record) UpdatedAt() int64 {
	return Int64(r["updated_at"])
}

// String returns the named field as a string, or "" when absent.
func (r Record) String(field string) string {
	s, _ := r[field].(string)
	return s
}

// Float returns the named field as a float64, coercing the numeric types
// JSON decoding produces.
func (r Record) Float(field string) float64 {
	return Float(r[field])
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Touch sets the update timestamp to now, and the creation timestamp too
// when it is missing.
func (r Record) Touch(now time.Time) {
	ts := now.Unix()
	if r.CreatedAt() == 0 {
		r["created_at"] = ts
	}
	r["updated_at"] = ts
}

// Merge returns a copy of r with every field from patch applied on top.
func (r Record) Merge(patch Record) Record {
	out := r.Clone()
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// Float coerces the numeric types that appear in decoded JSON payloads.
func Float(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	default:
		return 0
	}
}

// Int64 coerces the integer types that appear in decoded JSON payloads.
func Int64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}
