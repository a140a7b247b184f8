package handlers

import (
	"net/http"
	"time"

	"github.com/nalvarez/comanda/internal/models"
)

// SaleLineRequest is one line of a sale.
type SaleLineRequest struct {
	MenuItemID string  `json:"menu_item_id" validate:"required"`
	Quantity   float64 `json:"quantity" validate:"required,gt=0"`
	Price      float64 `json:"price" validate:"gte=0"`
}

// SaleRequest is the request body for recording a sale.
type SaleRequest struct {
	Date          string            `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Total         float64           `json:"total" validate:"gte=0"`
	PaymentMethod string            `json:"payment_method" validate:"omitempty,oneof=cash card transfer"`
	Lines         []SaleLineRequest `json:"lines" validate:"required,min=1,dive"`
}

// ExpenseRequest is the request body for recording an expense.
type ExpenseRequest struct {
	Date        string  `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Amount      float64 `json:"amount" validate:"required,gt=0"`
	Category    string  `json:"category" validate:"required"`
	Description string  `json:"description"`
}

func (a *API) recordSale(w http.ResponseWriter, r *http.Request) {
	var req SaleRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if req.Date == "" {
		req.Date = time.Now().Format("2006-01-02")
	}
	sale := models.Record{
		"date":           req.Date,
		"total":          req.Total,
		"payment_method": req.PaymentMethod,
	}
	lines := make([]models.Record, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, models.Record{
			"menu_item_id": l.MenuItemID,
			"quantity":     l.Quantity,
			"price":        l.Price,
		})
	}

	created, state, err := a.Facade.RecordSale(r.Context(), sale, lines)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"sale":  created,
		"state": string(state),
	})
}

func (a *API) recordExpense(w http.ResponseWriter, r *http.Request) {
	var req ExpenseRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	created, state, err := a.Facade.RecordExpense(r.Context(), models.Record{
		"date":        req.Date,
		"amount":      req.Amount,
		"category":    req.Category,
		"description": req.Description,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"expense": created,
		"state":   string(state),
	})
}
