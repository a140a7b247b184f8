package facade

import (
	"context"
	"sync"
	"testing"

	"github.com/nalvarez/comanda/internal/apperr"
	"github.com/nalvarez/comanda/internal/models"
	"github.com/nalvarez/comanda/internal/queue"
	"github.com/nalvarez/comanda/internal/store"
	"github.com/nalvarez/comanda/internal/store/local"
)

// fakeRemote is an in-memory remote backend with switchable reachability.
// failAfter, when set, makes every call past that count fail as
// unreachable, for exercising mid-operation connectivity loss.
type fakeRemote struct {
	mu        sync.Mutex
	offline   bool
	reject    bool
	failAfter int
	tables    map[string]map[string]models.Record
	calls     int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{tables: make(map[string]map[string]models.Record)}
}

func (f *fakeRemote) setOffline(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = v
}

func (f *fakeRemote) fail() error {
	if f.offline || (f.failAfter > 0 && f.calls > f.failAfter) {
		return apperr.New(apperr.ErrNetworkUnavailable, "fake remote unreachable")
	}
	if f.reject {
		return apperr.New(apperr.ErrBackendRejected, "fake remote rejected")
	}
	return nil
}

func (f *fakeRemote) table(name string) map[string]models.Record {
	t, ok := f.tables[name]
	if !ok {
		t = make(map[string]models.Record)
		f.tables[name] = t
	}
	return t
}

func (f *fakeRemote) Kind() store.Kind { return store.KindRemote }

func (f *fakeRemote) Create(ctx context.Context, table string, rec models.Record) (models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.fail(); err != nil {
		return nil, err
	}
	f.table(table)[rec.ID()] = rec.Clone()
	return rec, nil
}

func (f *fakeRemote) Read(ctx context.Context, table string, q store.Query) ([]models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.fail(); err != nil {
		return nil, err
	}
	var out []models.Record
	for _, rec := range f.table(table) {
		out = append(out, rec.Clone())
	}
	return out, nil
}

func (f *fakeRemote) Update(ctx context.Context, table, id string, patch models.Record) (models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.fail(); err != nil {
		return nil, err
	}
	existing, ok := f.table(table)[id]
	if !ok {
		return nil, apperr.Newf(apperr.ErrNotFound, "%s/%s not found", table, id)
	}
	merged := existing.Merge(patch)
	f.table(table)[id] = merged
	return merged, nil
}

func (f *fakeRemote) Delete(ctx context.Context, table, id string) (models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.fail(); err != nil {
		return nil, err
	}
	existing, ok := f.table(table)[id]
	if !ok {
		return nil, apperr.Newf(apperr.ErrNotFound, "%s/%s not found", table, id)
	}
	delete(f.table(table), id)
	return existing, nil
}

var _ store.Backend = (*fakeRemote)(nil)

func setupFacade(t *testing.T) (*Facade, *fakeRemote, *local.Store, *queue.Queue) {
	t.Helper()
	localStore, err := local.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open local store: %v", err)
	}
	t.Cleanup(func() { localStore.Close() })

	q, err := queue.New(localStore.DB())
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}

	remote := newFakeRemote()
	return New(remote, localStore, q), remote, localStore, q
}

func TestCreateOnlineSyncs(t *testing.T) {
	f, remote, localStore, q := setupFacade(t)
	ctx := context.Background()

	created, state, err := f.Create(ctx, models.TableIngredients, models.Record{"name": "flour"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if state != SyncSynced {
		t.Errorf("state = %q, want synced", state)
	}
	if created.ID() == "" {
		t.Error("no id assigned")
	}
	if _, ok := remote.table(models.TableIngredients)[created.ID()]; !ok {
		t.Error("record not on remote")
	}

	// write-through mirror for offline reads
	if _, err := localStore.Get(ctx, models.TableIngredients, created.ID()); err != nil {
		t.Errorf("local mirror missing: %v", err)
	}

	if n, _ := q.Len(ctx); n != 0 {
		t.Errorf("queue len = %d, want 0", n)
	}
}

func TestCreateOfflineQueues(t *testing.T) {
	f, remote, localStore, q := setupFacade(t)
	ctx := context.Background()
	remote.setOffline(true)

	created, state, err := f.Create(ctx, models.TableIngredients, models.Record{"name": "salt"})
	if err != nil {
		t.Fatalf("create offline: %v", err)
	}
	if state != SyncPending {
		t.Errorf("state = %q, want pending", state)
	}

	// the result is immediately visible locally
	if _, err := localStore.Get(ctx, models.TableIngredients, created.ID()); err != nil {
		t.Fatalf("local copy missing: %v", err)
	}

	ops, err := q.List(ctx)
	if err != nil {
		t.Fatalf("list queue: %v", err)
	}
	if len(ops) != 1 || ops[0].Kind != models.OpCreate || ops[0].RecordID != created.ID() {
		t.Fatalf("queue = %v, want one create for %s", ops, created.ID())
	}
}

func TestOfflineOperationsKeepOrder(t *testing.T) {
	f, remote, _, q := setupFacade(t)
	ctx := context.Background()
	remote.setOffline(true)

	created, _, err := f.Create(ctx, models.TableMenuItems, models.Record{"name": "tacos", "price": 8.0})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := f.Update(ctx, models.TableMenuItems, created.ID(), models.Record{"price": 9.0}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, _, err := f.Delete(ctx, models.TableMenuItems, created.ID()); err != nil {
		t.Fatalf("delete: %v", err)
	}

	ops, _ := q.List(ctx)
	kinds := []models.OpKind{models.OpCreate, models.OpUpdate, models.OpDelete}
	if len(ops) != 3 {
		t.Fatalf("queue len = %d, want 3", len(ops))
	}
	for i, want := range kinds {
		if ops[i].Kind != want {
			t.Errorf("ops[%d].Kind = %q, want %q", i, ops[i].Kind, want)
		}
	}
}

func TestBackendRejectionIsTerminal(t *testing.T) {
	f, remote, _, q := setupFacade(t)
	ctx := context.Background()
	remote.reject = true

	_, _, err := f.Create(ctx, models.TableIngredients, models.Record{"name": "bad"})
	if !apperr.Is(err, apperr.ErrBackendRejected) {
		t.Fatalf("err = %v, want BACKEND_REJECTED", err)
	}
	if n, _ := q.Len(ctx); n != 0 {
		t.Errorf("rejection must not queue, len = %d", n)
	}
}

func TestReadFallsBackToLocal(t *testing.T) {
	f, remote, _, _ := setupFacade(t)
	ctx := context.Background()

	created, _, err := f.Create(ctx, models.TableIngredients, models.Record{"name": "sugar"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	remote.setOffline(true)
	recs, err := f.Read(ctx, models.TableIngredients, store.Query{})
	if err != nil {
		t.Fatalf("read offline: %v", err)
	}
	if len(recs) != 1 || recs[0].ID() != created.ID() {
		t.Fatalf("fallback read = %v, want the mirrored record", recs)
	}
}

func TestUpdateOfflineWithoutLocalCopy(t *testing.T) {
	f, remote, localStore, q := setupFacade(t)
	ctx := context.Background()

	// record exists only remotely
	remote.table(models.TableIngredients)["srv-1"] = models.Record{"id": "srv-1", "name": "oil", "quantity": 3.0}

	remote.setOffline(true)
	merged, state, err := f.Update(ctx, models.TableIngredients, "srv-1", models.Record{"quantity": 2.0})
	if err != nil {
		t.Fatalf("update offline: %v", err)
	}
	if state != SyncPending {
		t.Errorf("state = %q, want pending", state)
	}
	if merged.Float("quantity") != 2.0 {
		t.Errorf("quantity = %v, want 2", merged.Float("quantity"))
	}

	if _, err := localStore.Get(ctx, models.TableIngredients, "srv-1"); err != nil {
		t.Errorf("best-effort local record missing: %v", err)
	}
	if n, _ := q.Len(ctx); n != 1 {
		t.Errorf("queue len = %d, want 1", n)
	}
}

func TestUnknownTableRejected(t *testing.T) {
	f, _, _, _ := setupFacade(t)
	ctx := context.Background()

	if _, _, err := f.Create(ctx, "bogus", models.Record{}); !apperr.Is(err, apperr.ErrInvalid) {
		t.Errorf("create = %v, want INVALID_INPUT", err)
	}
	if _, err := f.Read(ctx, "bogus", store.Query{}); !apperr.Is(err, apperr.ErrInvalid) {
		t.Errorf("read = %v, want INVALID_INPUT", err)
	}
}

func TestSubscribeReceivesEvents(t *testing.T) {
	f, remote, _, _ := setupFacade(t)
	ctx := context.Background()

	var events []Event
	cancel := f.Subscribe(func(ev Event) { events = append(events, ev) })

	created, _, err := f.Create(ctx, models.TableSales, models.Record{"total": 10.0})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	remote.setOffline(true)
	if _, _, err := f.Update(ctx, models.TableSales, created.ID(), models.Record{"total": 12.0}); err != nil {
		t.Fatalf("update: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Op != models.OpCreate || events[0].State != SyncSynced {
		t.Errorf("first event = %+v, want synced create", events[0])
	}
	if events[1].Op != models.OpUpdate || events[1].State != SyncPending {
		t.Errorf("second event = %+v, want pending update", events[1])
	}

	cancel()
	if _, _, err := f.Delete(ctx, models.TableSales, created.ID()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("events after cancel = %d, want still 2", len(events))
	}
}
