// Package handlers provides the REST surface over the data access facade.
// Handlers are collaborator glue; all behavior lives in the internal
// packages.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/nalvarez/comanda/internal/apperr"
	"github.com/nalvarez/comanda/internal/cache"
	"github.com/nalvarez/comanda/internal/export"
	"github.com/nalvarez/comanda/internal/facade"
	"github.com/nalvarez/comanda/internal/syncer"
)

// API bundles the services the handlers call into. Monitor and Lifecycle
// are nil when the server runs against a local primary backend; the
// corresponding endpoints then report that state instead of acting.
type API struct {
	Facade    *facade.Facade
	Export    *export.Service
	Monitor   *syncer.Monitor
	Lifecycle *cache.Lifecycle
	validate  *validator.Validate
}

// New creates the handler set.
func New(f *facade.Facade, exp *export.Service, mon *syncer.Monitor, lc *cache.Lifecycle) *API {
	return &API{
		Facade:    f,
		Export:    exp,
		Monitor:   mon,
		Lifecycle: lc,
		validate:  validator.New(),
	}
}

// Register mounts every route on the mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sales", a.recordSale)
	mux.HandleFunc("POST /api/expenses", a.recordExpense)

	mux.HandleFunc("GET /api/inventory/low-stock", a.lowStock)
	mux.HandleFunc("GET /api/analytics/daily-total", a.dailyTotal)
	mux.HandleFunc("GET /api/analytics/top-sellers", a.topSellers)
	mux.HandleFunc("GET /api/analytics/profitability", a.profitability)

	mux.HandleFunc("POST /api/day/open", a.openDay)
	mux.HandleFunc("POST /api/day/close", a.closeDay)

	mux.HandleFunc("GET /api/tables/{table}", a.listRecords)
	mux.HandleFunc("POST /api/tables/{table}", a.createRecord)
	mux.HandleFunc("PATCH /api/tables/{table}/{id}", a.updateRecord)
	mux.HandleFunc("DELETE /api/tables/{table}/{id}", a.deleteRecord)

	mux.HandleFunc("GET /api/sync/status", a.syncStatus)
	mux.HandleFunc("POST /api/sync/trigger", a.syncTrigger)

	mux.HandleFunc("GET /api/export", a.exportData)
	mux.HandleFunc("POST /api/import", a.importData)

	mux.HandleFunc("POST /api/cache/message", a.cacheMessage)
	mux.HandleFunc("GET /api/cache/status", a.cacheStatus)
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case apperr.ErrInvalid:
		status = http.StatusBadRequest
	case apperr.ErrNotFound:
		status = http.StatusNotFound
	case apperr.ErrBackendRejected:
		status = http.StatusUnprocessableEntity
	case apperr.ErrNetworkUnavailable:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"error": err.Error(),
		"code":  string(code),
	})
}

// decode decodes the request body without validation. The generic record
// endpoints use it; records are free-form maps.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Wrap(apperr.ErrInvalid, "decode request body", err)
	}
	return nil
}

// decodeAndValidate decodes the request body and runs struct validation.
func (a *API) decodeAndValidate(r *http.Request, v any) error {
	if err := decode(r, v); err != nil {
		return err
	}
	if err := a.validate.Struct(v); err != nil {
		return apperr.Wrap(apperr.ErrInvalid, "validate request", err)
	}
	return nil
}
