package cache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nalvarez/comanda/internal/apperr"
	"github.com/nalvarez/comanda/internal/logging"
)

// RetentionWindow is how long runtime entries stay before the maintenance
// pass purges them.
const RetentionWindow = 7 * 24 * time.Hour

// Fetcher performs outgoing HTTP requests. *http.Client satisfies it.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// State of the cache subsystem.
type State string

const (
	StateNew       State = "new"
	StateInstalled State = "installed"
	StateActive    State = "active"
)

// Control message types the cache layer responds to.
const (
	MsgSkipWaiting = "skip_waiting"
	MsgVersion     = "version"
)

// Lifecycle drives the install, activate and maintenance phases over the
// two versioned stores.
type Lifecycle struct {
	cache    *Cache
	fetch    Fetcher
	manifest []string
	appShell string

	mu      sync.RWMutex
	version string
	state   State

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewLifecycle creates the lifecycle for one cache version. The manifest
// is the fixed list of immutable asset URLs fetched at install time.
func NewLifecycle(c *Cache, fetch Fetcher, version string, manifest []string, appShell string) *Lifecycle {
	return &Lifecycle{
		cache:    c,
		fetch:    fetch,
		version:  version,
		manifest: manifest,
		appShell: appShell,
		state:    StateNew,
		stopCh:   make(chan struct{}),
	}
}

const staticPrefix = "comanda-static-"

// Version returns the cache version currently in control. This is the
// configured version unless a failed install fell back to an older one.
func (l *Lifecycle) Version() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

// StaticStoreName is the versioned name of the static asset store.
func (l *Lifecycle) StaticStoreName() string {
	return staticPrefix + l.Version()
}

// RuntimeStoreName is the versioned name of the runtime response store.
func (l *Lifecycle) RuntimeStoreName() string {
	return "comanda-runtime-" + l.Version()
}

// AppShellKey is the request key of the cached app shell document.
func (l *Lifecycle) AppShellKey() string {
	return requestKey(http.MethodGet, l.appShell)
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Install populates the static asset store from the manifest. Every fetch
// must succeed; a single failure aborts the whole install and leaves any
// previous version's store active. Responses are collected first and only
// written once all of them arrived.
func (l *Lifecycle) Install(ctx context.Context) error {
	type fetched struct {
		key   string
		entry *Entry
	}
	collected := make([]fetched, 0, len(l.manifest))
	now := time.Now().Unix()

	for _, u := range l.manifest {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return apperr.Wrap(apperr.ErrCacheInstallFailed, "build request for "+u, err)
		}
		resp, err := l.fetch.Do(req)
		if err != nil {
			return apperr.Wrap(apperr.ErrCacheInstallFailed, "fetch "+u, err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return apperr.Wrap(apperr.ErrCacheInstallFailed, "read "+u, err)
		}
		if resp.StatusCode >= 400 {
			return apperr.Newf(apperr.ErrCacheInstallFailed, "fetch %s: status %d", u, resp.StatusCode)
		}
		collected = append(collected, fetched{
			key: requestKey(http.MethodGet, u),
			entry: &Entry{
				Status:   resp.StatusCode,
				Header:   resp.Header.Clone(),
				Body:     body,
				StoredAt: now,
			},
		})
	}

	staticName := l.StaticStoreName()
	for _, f := range collected {
		if err := l.cache.Put(ctx, staticName, f.key, f.entry); err != nil {
			return err
		}
	}

	l.mu.Lock()
	l.state = StateInstalled
	l.mu.Unlock()

	logging.Info("static cache installed", logging.Fields{
		"store": staticName,
		"urls":  len(l.manifest),
	})
	return nil
}

// AdoptInstalled switches control to the most recently installed static
// store still on disk, for when installing the configured version failed.
// Requests then route against the adopted version's stores until a later
// install succeeds. Returns the adopted version.
func (l *Lifecycle) AdoptInstalled(ctx context.Context) (string, error) {
	names, err := l.cache.StoreNames(ctx)
	if err != nil {
		return "", err
	}

	current := l.StaticStoreName()
	best := ""
	var bestAt int64
	for _, name := range names {
		if !strings.HasPrefix(name, staticPrefix) || name == current {
			continue
		}
		at, err := l.cache.NewestStoredAt(ctx, name)
		if err != nil {
			return "", err
		}
		if best == "" || at > bestAt {
			best, bestAt = name, at
		}
	}
	if best == "" {
		return "", apperr.New(apperr.ErrCacheInstallFailed, "no previously installed cache version")
	}

	adopted := strings.TrimPrefix(best, staticPrefix)
	l.mu.Lock()
	l.version = adopted
	l.state = StateActive
	l.mu.Unlock()

	logging.Warn("falling back to previously installed cache version", logging.Fields{
		"version": adopted,
	})
	return adopted, nil
}

// Activate deletes every store whose name is neither the current static
// nor runtime name and takes control.
func (l *Lifecycle) Activate(ctx context.Context) error {
	names, err := l.cache.StoreNames(ctx)
	if err != nil {
		return err
	}

	keep := map[string]bool{
		l.StaticStoreName():  true,
		l.RuntimeStoreName(): true,
	}
	for _, name := range names {
		if keep[name] {
			continue
		}
		if err := l.cache.DeleteStore(ctx, name); err != nil {
			return err
		}
		logging.Info("deleted stale cache store", logging.Fields{"store": name})
	}

	l.mu.Lock()
	l.state = StateActive
	l.mu.Unlock()
	return nil
}

// Cleanup purges runtime entries older than the retention window. Reads
// never purge; only this pass does.
func (l *Lifecycle) Cleanup(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-RetentionWindow).Unix()
	n, err := l.cache.DeleteOlderThan(ctx, l.RuntimeStoreName(), cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logging.Info("runtime cache purged", logging.Fields{"removed": n})
	}
	return n, nil
}

// StartMaintenance runs Cleanup on the given interval until Stop.
func (l *Lifecycle) StartMaintenance(ctx context.Context, interval time.Duration) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-l.stopCh:
				return
			case <-ticker.C:
				if _, err := l.Cleanup(ctx, time.Now()); err != nil {
					logging.Error("cache maintenance failed", err)
				}
			}
		}
	}()
}

// Stop terminates the maintenance loop.
func (l *Lifecycle) Stop() {
	close(l.stopCh)
	l.wg.Wait()
}

// HandleMessage answers the two control messages the page can send:
// activate immediately, and report the cache version.
func (l *Lifecycle) HandleMessage(ctx context.Context, msgType string) (string, error) {
	switch msgType {
	case MsgSkipWaiting:
		if err := l.Activate(ctx); err != nil {
			return "", err
		}
		return string(StateActive), nil
	case MsgVersion:
		return l.Version(), nil
	default:
		return "", apperr.Newf(apperr.ErrInvalid, "unknown control message %q", msgType)
	}
}

// requestKey builds the cache key for a request. Only GETs are cached, but
// the method stays in the key to keep it unambiguous.
func requestKey(method, url string) string {
	return fmt.Sprintf("%s %s", method, url)
}
