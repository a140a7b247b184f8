// Package cache provides the versioned response stores and the fetch
// lifecycle in front of network calls: a static asset store populated once
// at install time and a runtime store populated opportunistically as
// requests succeed.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/nalvarez/comanda/internal/apperr"
)

// Entry is one cached response: status, headers, body and the time it was
// stored. Entries logically expire after the retention window but are only
// purged by the maintenance pass, never on read.
type Entry struct {
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt int64       `json:"stored_at"`
}

// Cache is a named, versioned key to response store. Store names carry the
// cache version; a version bump creates a new name and the old store is
// deleted wholesale on activation, never patched in place.
type Cache struct {
	db *sql.DB
}

const cacheSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	store_name TEXT NOT NULL,
	request_key TEXT NOT NULL,
	status INTEGER NOT NULL,
	headers TEXT NOT NULL,
	body BLOB NOT NULL,
	stored_at INTEGER NOT NULL,
	PRIMARY KEY (store_name, request_key)
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_stored_at ON cache_entries (store_name, stored_at);`

// NewCache creates the cache over the given database handle.
func NewCache(db *sql.DB) (*Cache, error) {
	if _, err := db.Exec(cacheSchema); err != nil {
		return nil, apperr.Wrap(apperr.ErrStorageUnavailable, "create cache table", err)
	}
	return &Cache{db: db}, nil
}

// Match returns the entry stored under the key, or nil on a miss.
func (c *Cache) Match(ctx context.Context, storeName, key string) (*Entry, error) {
	var (
		e       Entry
		headers string
	)
	err := c.db.QueryRowContext(ctx, `
	SELECT status, headers, body, stored_at FROM cache_entries
	WHERE store_name = ? AND request_key = ?`, storeName, key).
		Scan(&e.Status, &headers, &e.Body, &e.StoredAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInternal, "match cache entry", err)
	}
	if err := json.Unmarshal([]byte(headers), &e.Header); err != nil {
		return nil, apperr.Wrap(apperr.ErrInternal, "decode cached headers", err)
	}
	return &e, nil
}

// Put stores the entry under the key, replacing any previous one.
func (c *Cache) Put(ctx context.Context, storeName, key string, e *Entry) error {
	headers, err := json.Marshal(e.Header)
	if err != nil {
		return apperr.Wrap(apperr.ErrInternal, "encode headers", err)
	}
	_, err = c.db.ExecContext(ctx, `
	INSERT INTO cache_entries (store_name, request_key, status, headers, body, stored_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(store_name, request_key) DO UPDATE SET
		status = excluded.status, headers = excluded.headers,
		body = excluded.body, stored_at = excluded.stored_at`,
		storeName, key, e.Status, string(headers), e.Body, e.StoredAt)
	if err != nil {
		return apperr.Wrap(apperr.ErrStorageUnavailable, "put cache entry", err)
	}
	return nil
}

// Delete removes one entry.
func (c *Cache) Delete(ctx context.Context, storeName, key string) error {
	_, err := c.db.ExecContext(ctx,
		"DELETE FROM cache_entries WHERE store_name = ? AND request_key = ?", storeName, key)
	if err != nil {
		return apperr.Wrap(apperr.ErrStorageUnavailable, "delete cache entry", err)
	}
	return nil
}

// Keys enumerates every request key in a store.
func (c *Cache) Keys(ctx context.Context, storeName string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT request_key FROM cache_entries WHERE store_name = ? ORDER BY request_key", storeName)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInternal, "list cache keys", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, apperr.Wrap(apperr.ErrInternal, "scan cache key", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// StoreNames enumerates every existing store.
func (c *Cache) StoreNames(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT DISTINCT store_name FROM cache_entries ORDER BY store_name")
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInternal, "list cache stores", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, apperr.Wrap(apperr.ErrInternal, "scan store name", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// NewestStoredAt returns the stored-at time of the youngest entry in a
// store, or zero for an empty store.
func (c *Cache) NewestStoredAt(ctx context.Context, storeName string) (int64, error) {
	var at int64
	err := c.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(stored_at), 0) FROM cache_entries WHERE store_name = ?", storeName).
		Scan(&at)
	if err != nil {
		return 0, apperr.Wrap(apperr.ErrInternal, "newest stored_at", err)
	}
	return at, nil
}

// DeleteStore removes a whole store by name.
func (c *Cache) DeleteStore(ctx context.Context, storeName string) error {
	_, err := c.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE store_name = ?", storeName)
	if err != nil {
		return apperr.Wrap(apperr.ErrStorageUnavailable, "delete cache store", err)
	}
	return nil
}

// DeleteOlderThan removes every entry in a store stored before the cutoff
// and returns how many were removed.
func (c *Cache) DeleteOlderThan(ctx context.Context, storeName string, cutoff int64) (int, error) {
	res, err := c.db.ExecContext(ctx,
		"DELETE FROM cache_entries WHERE store_name = ? AND stored_at < ?", storeName, cutoff)
	if err != nil {
		return 0, apperr.Wrap(apperr.ErrStorageUnavailable, "purge cache entries", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
