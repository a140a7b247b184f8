// Package local provides the on-device SQLite backend: a per-table object
// store keyed by id with one secondary index per queryable field.
package local

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nalvarez/comanda/internal/apperr"
	"github.com/nalvarez/comanda/internal/models"
	"github.com/nalvarez/comanda/internal/store"
)

// Store is the local persistent backend. It doubles as the offline read
// cache when the remote backend is primary.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database under dataDir and
// ensures the schema for every known table.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.ErrStorageUnavailable, "create data directory", err)
	}

	dbPath := filepath.Join(dataDir, "comanda.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrStorageUnavailable, "open database", err)
	}

	// SQLite supports a single writer; serialize through one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, apperr.Wrap(apperr.ErrStorageUnavailable, "enable WAL mode", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

// New wraps an already opened database handle and ensures the schema.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying handle so the queue and cache stores can share
// the same database file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ensureSchema creates every known table plus its secondary indexes.
func (s *Store) ensureSchema() error {
	for _, table := range models.KnownTables() {
		ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`, table)
		if _, err := s.db.Exec(ddl); err != nil {
			return apperr.Wrap(apperr.ErrStorageUnavailable, "create table "+table, err)
		}

		for _, field := range models.QueryableFields(table) {
			idx := fmt.Sprintf(
				"CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (json_extract(data, '$.%s'));",
				table, field, table, field)
			if _, err := s.db.Exec(idx); err != nil {
				return apperr.Wrap(apperr.ErrStorageUnavailable, "create index on "+table+"."+field, err)
			}
		}
	}
	return nil
}

// Kind reports the backend strategy.
func (s *Store) Kind() store.Kind {
	return store.KindLocal
}

// Create inserts a new record. The id must already be assigned.
func (s *Store) Create(ctx context.Context, table string, rec models.Record) (models.Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if rec.ID() == "" {
		return nil, apperr.New(apperr.ErrInvalid, "record has no id")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInvalid, "encode record", err)
	}

	query := fmt.Sprintf("INSERT INTO %s (id, data, created_at, updated_at) VALUES (?, ?, ?, ?)", table)
	if _, err := s.db.ExecContext(ctx, query, rec.ID(), string(data), rec.CreatedAt(), rec.UpdatedAt()); err != nil {
		if isConstraintErr(err) {
			return nil, apperr.Wrap(apperr.ErrBackendRejected, "duplicate id "+rec.ID(), err)
		}
		return nil, apperr.Wrap(apperr.ErrInternal, "insert into "+table, err)
	}
	return rec, nil
}

// Read returns the records matching the query.
func (s *Store) Read(ctx context.Context, table string, q store.Query) ([]models.Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	if !q.Valid() {
		return nil, apperr.New(apperr.ErrInvalid, "invalid query")
	}

	sqlStr, args := buildSelect(table, q)
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInternal, "query "+table, err)
	}
	defer rows.Close()

	var out []models.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, apperr.Wrap(apperr.ErrInternal, "scan "+table, err)
		}
		var rec models.Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, apperr.Wrap(apperr.ErrInternal, "decode record", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.ErrInternal, "iterate "+table, err)
	}
	return out, nil
}

// Get returns the record with the given id, or NOT_FOUND.
func (s *Store) Get(ctx context.Context, table, id string) (models.Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT data FROM %s WHERE id = ?", table)
	var data string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, apperr.Newf(apperr.ErrNotFound, "%s/%s not found", table, id)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInternal, "get "+table, err)
	}
	var rec models.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, apperr.Wrap(apperr.ErrInternal, "decode record", err)
	}
	return rec, nil
}

// Update merges the patch into the stored record and persists the result.
func (s *Store) Update(ctx context.Context, table, id string, patch models.Record) (models.Record, error) {
	existing, err := s.Get(ctx, table, id)
	if err != nil {
		return nil, err
	}

	merged := existing.Merge(patch)
	merged["id"] = id
	merged.Touch(time.Now())

	if err := s.Put(ctx, table, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// Delete removes the record with the given id and returns it.
func (s *Store) Delete(ctx context.Context, table, id string) (models.Record, error) {
	existing, err := s.Get(ctx, table, id)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", table)
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return nil, apperr.Wrap(apperr.ErrInternal, "delete from "+table, err)
	}
	return existing, nil
}

// Put upserts the record verbatim, preserving its id and timestamps.
// Import and the remote read-through refresh both rely on this.
func (s *Store) Put(ctx context.Context, table string, rec models.Record) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if rec.ID() == "" {
		return apperr.New(apperr.ErrInvalid, "record has no id")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return apperr.Wrap(apperr.ErrInvalid, "encode record", err)
	}
	query := fmt.Sprintf(`
	INSERT INTO %s (id, data, created_at, updated_at) VALUES (?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET data = excluded.data,
		created_at = excluded.created_at, updated_at = excluded.updated_at`, table)
	if _, err := s.db.ExecContext(ctx, query, rec.ID(), string(data), rec.CreatedAt(), rec.UpdatedAt()); err != nil {
		return apperr.Wrap(apperr.ErrInternal, "put into "+table, err)
	}
	return nil
}

// Clear removes every record from the table. Used by import.
func (s *Store) Clear(ctx context.Context, table string) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return apperr.Wrap(apperr.ErrInternal, "clear "+table, err)
	}
	return nil
}

// Count returns the number of records in the table.
func (s *Store) Count(ctx context.Context, table string) (int, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, apperr.Wrap(apperr.ErrInternal, "count "+table, err)
	}
	return n, nil
}

// buildSelect renders the query into SQL over the json payload column.
func buildSelect(table string, q store.Query) (string, []any) {
	var b strings.Builder
	var args []any

	b.WriteString("SELECT data FROM ")
	b.WriteString(table)

	if len(q.Conds) > 0 {
		b.WriteString(" WHERE ")
		for i, c := range q.Conds {
			if i > 0 {
				b.WriteString(" AND ")
			}
			col := fmt.Sprintf("json_extract(data, '$.%s')", c.Column)
			switch c.Op {
			case store.OpEq:
				b.WriteString(col + " = ?")
				args = append(args, c.Value)
			case store.OpGte:
				b.WriteString(col + " >= ?")
				args = append(args, c.Value)
			case store.OpLte:
				b.WriteString(col + " <= ?")
				args = append(args, c.Value)
			case store.OpContains:
				b.WriteString(col + " LIKE ?")
				args = append(args, fmt.Sprintf("%%%v%%", c.Value))
			}
		}
	}

	if q.OrderBy != "" {
		b.WriteString(fmt.Sprintf(" ORDER BY json_extract(data, '$.%s')", q.OrderBy))
		if q.Desc {
			b.WriteString(" DESC")
		}
	}
	if q.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	return b.String(), args
}

func checkTable(table string) error {
	if !models.IsKnownTable(table) {
		return apperr.Newf(apperr.ErrInvalid, "unknown table %q", table)
	}
	return nil
}

func isConstraintErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Compile-time check that the local store satisfies the backend contract.
var _ store.Backend = (*Store)(nil)
