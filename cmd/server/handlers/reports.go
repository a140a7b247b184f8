package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nalvarez/comanda/internal/apperr"
)

func (a *API) lowStock(w http.ResponseWriter, r *http.Request) {
	items, err := a.Facade.LowStockItems(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) dailyTotal(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		writeError(w, apperr.Newf(apperr.ErrInvalid, "bad date %q", date))
		return
	}

	total, err := a.Facade.DailySalesTotal(r.Context(), date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "total": total})
}

func (a *API) topSellers(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, apperr.Newf(apperr.ErrInvalid, "bad limit %q", v))
			return
		}
		limit = n
	}

	items, err := a.Facade.TopSellingItems(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) profitability(w http.ResponseWriter, r *http.Request) {
	items, err := a.Facade.MenuProfitability(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// DayRequest is the request body for opening or closing a day.
type DayRequest struct {
	Date  string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Notes string `json:"notes"`
}

func (a *API) openDay(w http.ResponseWriter, r *http.Request) {
	var req DayRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Date == "" {
		req.Date = time.Now().Format("2006-01-02")
	}

	rec, err := a.Facade.OpenDay(r.Context(), req.Date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": rec})
}

func (a *API) closeDay(w http.ResponseWriter, r *http.Request) {
	var req DayRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Date == "" {
		req.Date = time.Now().Format("2006-01-02")
	}

	rec, err := a.Facade.CloseDay(r.Context(), req.Date, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": rec})
}
