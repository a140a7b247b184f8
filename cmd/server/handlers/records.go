package handlers

import (
	"net/http"
	"strconv"

	"github.com/nalvarez/comanda/internal/apperr"
	"github.com/nalvarez/comanda/internal/models"
	"github.com/nalvarez/comanda/internal/store"
)

// Generic record CRUD over the known tables. Filters come in as query
// parameters: one per indexed field (equality), plus <field>_gte,
// <field>_lte and <field>_contains variants, with order, desc and limit
// controlling the result shape.

// filterValue coerces a query parameter into the type the stored field
// carries. SQLite orders every number below every string, so a numeric
// filter sent as its raw string form would compare against nothing.
func filterValue(v string) any {
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return n
	}
	return v
}

// parseQuery builds a store query from the request's URL parameters.
func parseQuery(r *http.Request, table string) (store.Query, error) {
	q := store.Query{}
	params := r.URL.Query()

	for _, field := range models.QueryableFields(table) {
		if v := params.Get(field); v != "" {
			q = q.Where(field, store.OpEq, filterValue(v))
		}
		if v := params.Get(field + "_gte"); v != "" {
			q = q.Where(field, store.OpGte, filterValue(v))
		}
		if v := params.Get(field + "_lte"); v != "" {
			q = q.Where(field, store.OpLte, filterValue(v))
		}
		if v := params.Get(field + "_contains"); v != "" {
			q = q.Where(field, store.OpContains, v)
		}
	}

	if v := params.Get("order"); v != "" {
		q = q.Order(v, params.Get("desc") == "true")
	}
	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return q, apperr.Newf(apperr.ErrInvalid, "bad limit %q", v)
		}
		q = q.Take(n)
	}
	return q, nil
}

func (a *API) listRecords(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")
	q, err := parseQuery(r, table)
	if err != nil {
		writeError(w, err)
		return
	}

	recs, err := a.Facade.Read(r.Context(), table, q)
	if err != nil {
		writeError(w, err)
		return
	}
	if recs == nil {
		recs = []models.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs})
}

func (a *API) createRecord(w http.ResponseWriter, r *http.Request) {
	var data models.Record
	if err := decode(r, &data); err != nil {
		writeError(w, err)
		return
	}

	created, state, err := a.Facade.Create(r.Context(), r.PathValue("table"), data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"record": created,
		"state":  string(state),
	})
}

func (a *API) updateRecord(w http.ResponseWriter, r *http.Request) {
	var patch models.Record
	if err := decode(r, &patch); err != nil {
		writeError(w, err)
		return
	}

	updated, state, err := a.Facade.Update(r.Context(), r.PathValue("table"), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"record": updated,
		"state":  string(state),
	})
}

func (a *API) deleteRecord(w http.ResponseWriter, r *http.Request) {
	removed, state, err := a.Facade.Delete(r.Context(), r.PathValue("table"), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"record": removed,
		"state":  string(state),
	})
}
