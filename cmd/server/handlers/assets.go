package handlers

import (
	"net/http"
	"strings"

	"github.com/nalvarez/comanda/internal/cache"
)

// AssetProxy serves the app shell and static assets from a configured
// origin through the cache router, so warm assets keep working while the
// origin is unreachable.
type AssetProxy struct {
	router *cache.Router
	origin string
}

// NewAssetProxy creates the proxy. origin is the base URL the asset paths
// are resolved against, without a trailing slash.
func NewAssetProxy(router *cache.Router, origin string) *AssetProxy {
	return &AssetProxy{
		router: router,
		origin: strings.TrimRight(origin, "/"),
	}
}

func (p *AssetProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	target := p.origin + r.URL.RequestURI()
	req, err := http.NewRequestWithContext(r.Context(), r.Method, target, r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	// Accept and Sec-Fetch-Mode drive the app shell fallback
	req.Header = r.Header.Clone()

	entry, err := p.router.Fetch(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	for key, values := range entry.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(entry.Status)
	w.Write(entry.Body)
}
