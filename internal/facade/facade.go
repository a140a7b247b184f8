// Package facade provides the single entry point the rest of the app calls
// for data access. It is backend agnostic and decides, per call, whether an
// operation hits the network, local persistent storage, or both.
package facade

import (
	"context"
	"sync"
	"time"

	"github.com/nalvarez/comanda/internal/apperr"
	"github.com/nalvarez/comanda/internal/ident"
	"github.com/nalvarez/comanda/internal/logging"
	"github.com/nalvarez/comanda/internal/models"
	"github.com/nalvarez/comanda/internal/queue"
	"github.com/nalvarez/comanda/internal/store"
	"github.com/nalvarez/comanda/internal/store/local"
)

// SyncState tags the outcome of a mutation so the UI can render exactly
// one state per call: synced, queued for sync, or failed (error return).
type SyncState string

const (
	SyncSynced  SyncState = "synced"
	SyncPending SyncState = "pending"
)

// Facade routes operations to the configured primary backend with the
// local store as offline fallback and read cache. The primary is chosen at
// startup and never switched at runtime; only reachability changes.
type Facade struct {
	primary store.Backend
	local   *local.Store
	queue   *queue.Queue

	subs   map[int]Handler
	nextID int
	subMu  sync.Mutex

	// invMu serializes the read-then-write inventory deduction so
	// concurrent sales do not lose decrements.
	invMu sync.Mutex
}

// New creates a facade. When the local store itself is the primary
// backend, pass it for both arguments.
func New(primary store.Backend, localStore *local.Store, q *queue.Queue) *Facade {
	return &Facade{
		primary: primary,
		local:   localStore,
		queue:   q,
		subs:    make(map[int]Handler),
	}
}

// remotePrimary reports whether transient failures are queueable. Failures
// of a local primary have nothing further to sync to and stay terminal.
func (f *Facade) remotePrimary() bool {
	return f.primary.Kind() == store.KindRemote
}

// Create inserts a new record, assigning a client-side id when the caller
// did not provide one.
func (f *Facade) Create(ctx context.Context, table string, data models.Record) (models.Record, SyncState, error) {
	if !models.IsKnownTable(table) {
		return nil, "", apperr.Newf(apperr.ErrInvalid, "unknown table %q", table)
	}

	rec := data.Clone()
	if rec.ID() == "" {
		rec["id"] = ident.NewRecordID()
	}
	rec.Touch(time.Now())

	created, err := f.primary.Create(ctx, table, rec)
	if err == nil {
		f.refreshLocal(ctx, table, created)
		f.emit(Event{Table: table, Op: models.OpCreate, Record: created, State: SyncSynced})
		return created, SyncSynced, nil
	}

	if f.remotePrimary() && apperr.Transient(err) {
		if putErr := f.local.Put(ctx, table, rec); putErr != nil {
			return nil, "", putErr
		}
		if _, qErr := f.queue.Enqueue(ctx, models.OpCreate, table, rec.ID(), rec); qErr != nil {
			return nil, "", qErr
		}
		logging.Info("create queued for sync", logging.Fields{"table": table, "id": rec.ID()})
		f.emit(Event{Table: table, Op: models.OpCreate, Record: rec, State: SyncPending})
		return rec, SyncPending, nil
	}

	return nil, "", err
}

// Read returns the records matching the query. A remote read that fails
// falls back to whatever was last persisted locally for that table; it
// never blocks beyond the configured request timeout.
func (f *Facade) Read(ctx context.Context, table string, q store.Query) ([]models.Record, error) {
	if !models.IsKnownTable(table) {
		return nil, apperr.Newf(apperr.ErrInvalid, "unknown table %q", table)
	}

	recs, err := f.primary.Read(ctx, table, q)
	if err == nil {
		if f.remotePrimary() {
			for _, rec := range recs {
				f.refreshLocal(ctx, table, rec)
			}
		}
		return recs, nil
	}

	if f.remotePrimary() && apperr.Transient(err) {
		logging.Debug("read falling back to local store", logging.Fields{"table": table})
		return f.local.Read(ctx, table, q)
	}
	return nil, err
}

// Update applies the patch to the record with the given id.
func (f *Facade) Update(ctx context.Context, table, id string, patch models.Record) (models.Record, SyncState, error) {
	if !models.IsKnownTable(table) {
		return nil, "", apperr.Newf(apperr.ErrInvalid, "unknown table %q", table)
	}

	updated, err := f.primary.Update(ctx, table, id, patch)
	if err == nil {
		f.refreshLocal(ctx, table, updated)
		f.emit(Event{Table: table, Op: models.OpUpdate, Record: updated, State: SyncSynced})
		return updated, SyncSynced, nil
	}

	if f.remotePrimary() && apperr.Transient(err) {
		merged, localErr := f.local.Update(ctx, table, id, patch)
		if apperr.Is(localErr, apperr.ErrNotFound) {
			// no local copy yet; keep a best-effort record of the patch
			merged = patch.Clone()
			merged["id"] = id
			merged.Touch(time.Now())
			if putErr := f.local.Put(ctx, table, merged); putErr != nil {
				return nil, "", putErr
			}
		} else if localErr != nil {
			return nil, "", localErr
		}
		if _, qErr := f.queue.Enqueue(ctx, models.OpUpdate, table, id, patch); qErr != nil {
			return nil, "", qErr
		}
		logging.Info("update queued for sync", logging.Fields{"table": table, "id": id})
		f.emit(Event{Table: table, Op: models.OpUpdate, Record: merged, State: SyncPending})
		return merged, SyncPending, nil
	}

	return nil, "", err
}

// Delete removes the record with the given id.
func (f *Facade) Delete(ctx context.Context, table, id string) (models.Record, SyncState, error) {
	if !models.IsKnownTable(table) {
		return nil, "", apperr.Newf(apperr.ErrInvalid, "unknown table %q", table)
	}

	removed, err := f.primary.Delete(ctx, table, id)
	if err == nil {
		if f.remotePrimary() {
			if _, localErr := f.local.Delete(ctx, table, id); localErr != nil && !apperr.Is(localErr, apperr.ErrNotFound) {
				logging.Warn("local delete after remote delete failed", logging.Fields{"table": table, "id": id})
			}
		}
		f.emit(Event{Table: table, Op: models.OpDelete, Record: removed, State: SyncSynced})
		return removed, SyncSynced, nil
	}

	if f.remotePrimary() && apperr.Transient(err) {
		removed, localErr := f.local.Delete(ctx, table, id)
		if apperr.Is(localErr, apperr.ErrNotFound) {
			removed = models.Record{"id": id}
		} else if localErr != nil {
			return nil, "", localErr
		}
		if _, qErr := f.queue.Enqueue(ctx, models.OpDelete, table, id, nil); qErr != nil {
			return nil, "", qErr
		}
		logging.Info("delete queued for sync", logging.Fields{"table": table, "id": id})
		f.emit(Event{Table: table, Op: models.OpDelete, Record: removed, State: SyncPending})
		return removed, SyncPending, nil
	}

	return nil, "", err
}

// PendingCount returns the number of operations awaiting replay.
func (f *Facade) PendingCount(ctx context.Context) (int, error) {
	return f.queue.Len(ctx)
}

// refreshLocal mirrors a successful remote result into the local store so
// reads can fall back to it while unreachable.
func (f *Facade) refreshLocal(ctx context.Context, table string, rec models.Record) {
	if !f.remotePrimary() || rec == nil {
		return
	}
	if err := f.local.Put(ctx, table, rec); err != nil {
		logging.Warn("local refresh failed", logging.Fields{"table": table, "id": rec.ID()})
	}
}
