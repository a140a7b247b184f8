package cache

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nalvarez/comanda/internal/apperr"
	"github.com/nalvarez/comanda/internal/logging"
)

// Strategy is the fetch strategy chosen for a request.
type Strategy string

const (
	// StrategyCacheFirst consults the cache before the network. Used for
	// URLs on the static manifest.
	StrategyCacheFirst Strategy = "cache-first"

	// StrategyNetworkFirst tries the network and falls back to the
	// runtime cache. Used for the remote backend's API surface.
	StrategyNetworkFirst Strategy = "network-first"

	// StrategyPassThrough bypasses the cache entirely. Used for non-GET
	// requests and anything unclassified.
	StrategyPassThrough Strategy = "pass-through"
)

// Router classifies outgoing requests into a fetch strategy and executes
// it against the two stores.
type Router struct {
	cache     *Cache
	lifecycle *Lifecycle
	fetch     Fetcher
	apiPrefix string
	static    map[string]bool
}

// NewRouter creates a router. apiPrefix identifies the remote backend's
// API surface; the static set comes from the lifecycle's manifest.
func NewRouter(c *Cache, lc *Lifecycle, fetch Fetcher, apiPrefix string) *Router {
	static := make(map[string]bool, len(lc.manifest))
	for _, u := range lc.manifest {
		static[u] = true
	}
	return &Router{
		cache:     c,
		lifecycle: lc,
		fetch:     fetch,
		apiPrefix: apiPrefix,
		static:    static,
	}
}

// Classify picks the strategy for a request. Non-GET requests always pass
// through untouched.
func (r *Router) Classify(req *http.Request) Strategy {
	if req.Method != http.MethodGet {
		return StrategyPassThrough
	}
	if r.static[req.URL.String()] {
		return StrategyCacheFirst
	}
	if r.apiPrefix != "" && strings.HasPrefix(req.URL.String(), r.apiPrefix) {
		return StrategyNetworkFirst
	}
	return StrategyPassThrough
}

// Fetch executes the request under its strategy and returns the response
// as a cache entry.
func (r *Router) Fetch(ctx context.Context, req *http.Request) (*Entry, error) {
	switch r.Classify(req) {
	case StrategyCacheFirst:
		return r.cacheFirst(ctx, req)
	case StrategyNetworkFirst:
		return r.networkFirst(ctx, req)
	default:
		return r.passThrough(ctx, req)
	}
}

// cacheFirst returns a warm hit without touching the network. On a miss it
// fetches, stores a successful response clone in the runtime store, and
// returns it. When the network also fails and the request is for a
// top-level document, the cached app shell is served instead.
func (r *Router) cacheFirst(ctx context.Context, req *http.Request) (*Entry, error) {
	key := requestKey(req.Method, req.URL.String())

	if hit, err := r.cache.Match(ctx, r.lifecycle.StaticStoreName(), key); err != nil {
		return nil, err
	} else if hit != nil {
		return hit, nil
	}
	if hit, err := r.cache.Match(ctx, r.lifecycle.RuntimeStoreName(), key); err != nil {
		return nil, err
	} else if hit != nil {
		return hit, nil
	}

	entry, err := r.doRequest(ctx, req)
	if err != nil {
		if isDocumentRequest(req) {
			shell, shellErr := r.cache.Match(ctx, r.lifecycle.StaticStoreName(), r.lifecycle.AppShellKey())
			if shellErr == nil && shell != nil {
				logging.Debug("serving cached app shell", logging.Fields{"url": req.URL.String()})
				return shell, nil
			}
		}
		return nil, err
	}

	if entry.Status < 400 {
		if err := r.cache.Put(ctx, r.lifecycle.RuntimeStoreName(), key, entry); err != nil {
			logging.Warn("runtime cache put failed", logging.Fields{"key": key})
		}
	}
	return entry, nil
}

// networkFirst tries the network, storing a successful response clone in
// the runtime store. On network failure it falls back to the most recent
// cached response for the identical request key; if neither succeeds the
// failure propagates.
func (r *Router) networkFirst(ctx context.Context, req *http.Request) (*Entry, error) {
	key := requestKey(req.Method, req.URL.String())

	entry, err := r.doRequest(ctx, req)
	if err == nil {
		if entry.Status < 400 {
			if putErr := r.cache.Put(ctx, r.lifecycle.RuntimeStoreName(), key, entry); putErr != nil {
				logging.Warn("runtime cache put failed", logging.Fields{"key": key})
			}
		}
		return entry, nil
	}

	if hit, matchErr := r.cache.Match(ctx, r.lifecycle.RuntimeStoreName(), key); matchErr == nil && hit != nil {
		logging.Debug("network-first fallback to cache", logging.Fields{"key": key})
		return hit, nil
	}
	return nil, err
}

// passThrough performs the request without consulting or populating the
// stores.
func (r *Router) passThrough(ctx context.Context, req *http.Request) (*Entry, error) {
	return r.doRequest(ctx, req)
}

// doRequest executes one network request and converts the response into an
// entry. Transport failures map to the transient error code.
func (r *Router) doRequest(ctx context.Context, req *http.Request) (*Entry, error) {
	resp, err := r.fetch.Do(req.WithContext(ctx))
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrNetworkUnavailable, "fetch "+req.URL.String(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrNetworkUnavailable, "read "+req.URL.String(), err)
	}
	return &Entry{
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: time.Now().Unix(),
	}, nil
}

// isDocumentRequest reports whether the request is for a top-level HTML
// document, the case where the app shell fallback applies.
func isDocumentRequest(req *http.Request) bool {
	if strings.Contains(req.Header.Get("Accept"), "text/html") {
		return true
	}
	return req.Header.Get("Sec-Fetch-Mode") == "navigate"
}
