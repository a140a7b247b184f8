package handlers

import (
	"net/http"

	"github.com/nalvarez/comanda/internal/apperr"
	"github.com/nalvarez/comanda/internal/export"
)

func (a *API) syncStatus(w http.ResponseWriter, r *http.Request) {
	pending, err := a.Facade.PendingCount(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	status := map[string]any{
		"backend": "local",
		"pending": pending,
	}
	if a.Monitor != nil {
		status["backend"] = "remote"
		status["online"] = a.Monitor.Online()
		if pass := a.Monitor.LastPass(); pass != nil {
			status["last_pass"] = map[string]int{
				"replayed":  pass.Replayed,
				"remaining": pass.Remaining,
			}
		}
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) syncTrigger(w http.ResponseWriter, r *http.Request) {
	if a.Monitor == nil {
		writeError(w, apperr.New(apperr.ErrInvalid, "local backend has nothing to sync"))
		return
	}

	result, err := a.Monitor.TriggerNow(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"replayed":  result.Replayed,
		"remaining": result.Remaining,
	})
}

func (a *API) exportData(w http.ResponseWriter, r *http.Request) {
	doc, err := a.Export.Export(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="comanda-export.json"`)
	writeJSON(w, http.StatusOK, doc)
}

func (a *API) importData(w http.ResponseWriter, r *http.Request) {
	var doc export.Document
	if err := decode(r, &doc); err != nil {
		writeError(w, err)
		return
	}

	imported, err := a.Export.Import(r.Context(), &doc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": imported})
}

// CacheMessageRequest is a control message for the cache layer.
type CacheMessageRequest struct {
	Type string `json:"type" validate:"required"`
}

func (a *API) cacheMessage(w http.ResponseWriter, r *http.Request) {
	if a.Lifecycle == nil {
		writeError(w, apperr.New(apperr.ErrInvalid, "cache layer not enabled"))
		return
	}

	var req CacheMessageRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	reply, err := a.Lifecycle.HandleMessage(r.Context(), req.Type)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

func (a *API) cacheStatus(w http.ResponseWriter, r *http.Request) {
	if a.Lifecycle == nil {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled": true,
		"version": a.Lifecycle.Version(),
		"state":   string(a.Lifecycle.State()),
	})
}
