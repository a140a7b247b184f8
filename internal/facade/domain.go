package facade

import (
	"context"
	"sort"
	"time"

	"github.com/nalvarez/comanda/internal/apperr"
	"github.com/nalvarez/comanda/internal/logging"
	"github.com/nalvarez/comanda/internal/models"
	"github.com/nalvarez/comanda/internal/store"
)

// Domain helpers. Every helper is built exclusively from Create, Read,
// Update and Delete; none bypasses the facade.

// TopItem is one entry of the top sellers report.
type TopItem struct {
	MenuItemID string  `json:"menu_item_id"`
	Name       string  `json:"name"`
	Quantity   float64 `json:"quantity"`
	Revenue    float64 `json:"revenue"`
}

// MenuProfit is the per-item cost/profit breakdown.
type MenuProfit struct {
	MenuItemID     string  `json:"menu_item_id"`
	Name           string  `json:"name"`
	Price          float64 `json:"price"`
	IngredientCost float64 `json:"ingredient_cost"`
	Profit         float64 `json:"profit"`
}

// LowStockItems returns the ingredients at or below their minimum
// quantity. Ingredients without a min_quantity use the configured
// low_stock_threshold setting.
func (f *Facade) LowStockItems(ctx context.Context) ([]models.Record, error) {
	ingredients, err := f.Read(ctx, models.TableIngredients, store.Query{})
	if err != nil {
		return nil, err
	}

	fallback := 0.0
	if v, err := f.Setting(ctx, "low_stock_threshold"); err == nil {
		fallback = models.Float(v)
	}

	var low []models.Record
	for _, ing := range ingredients {
		min := ing.Float("min_quantity")
		if min == 0 {
			min = fallback
		}
		if ing.Float("quantity") <= min {
			low = append(low, ing)
		}
	}
	return low, nil
}

// DailySalesTotal sums the sales totals for one date (YYYY-MM-DD).
func (f *Facade) DailySalesTotal(ctx context.Context, date string) (float64, error) {
	sales, err := f.Read(ctx, models.TableSales, store.Eq("date", date))
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, sale := range sales {
		total += sale.Float("total")
	}
	return total, nil
}

// TopSellingItems aggregates sale items by menu item and returns the
// highest-volume entries, at most limit of them.
func (f *Facade) TopSellingItems(ctx context.Context, limit int) ([]TopItem, error) {
	lines, err := f.Read(ctx, models.TableSaleItems, store.Query{})
	if err != nil {
		return nil, err
	}

	byItem := make(map[string]*TopItem)
	for _, line := range lines {
		id := line.String("menu_item_id")
		if id == "" {
			continue
		}
		item, ok := byItem[id]
		if !ok {
			item = &TopItem{MenuItemID: id}
			byItem[id] = item
		}
		qty := line.Float("quantity")
		item.Quantity += qty
		item.Revenue += qty * line.Float("price")
	}

	out := make([]TopItem, 0, len(byItem))
	for _, item := range byItem {
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		return out[i].MenuItemID < out[j].MenuItemID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	// resolve display names; referential integrity is not guaranteed, so
	// a dangling menu item id just keeps an empty name
	for i := range out {
		items, err := f.Read(ctx, models.TableMenuItems, store.Eq("id", out[i].MenuItemID))
		if err == nil && len(items) > 0 {
			out[i].Name = items[0].String("name")
		}
	}
	return out, nil
}

// RecordSale creates the sale record, one sale item per line, and then
// deducts the recipe ingredients for each line. Later steps are not rolled
// back when an earlier one partially fails; the first error is returned
// alongside whatever was applied. The returned state covers the whole
// sale: one queued line item or inventory update marks it pending.
func (f *Facade) RecordSale(ctx context.Context, sale models.Record, lines []models.Record) (models.Record, SyncState, error) {
	created, state, err := f.Create(ctx, models.TableSales, sale)
	if err != nil {
		return nil, "", err
	}

	var firstErr error
	for _, line := range lines {
		rec := line.Clone()
		rec["sale_id"] = created.ID()
		_, lineState, err := f.Create(ctx, models.TableSaleItems, rec)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if lineState == SyncPending {
			state = SyncPending
		}
	}

	pending, err := f.deductInventory(ctx, lines)
	if err != nil && firstErr == nil {
		firstErr = err
	}
	if pending {
		state = SyncPending
	}
	return created, state, firstErr
}

// deductInventory decrements each line's recipe ingredients by
// recipe quantity times sold quantity, clamped at a floor of zero.
// The clamp is silent toward the caller; oversell only logs a warning.
// Reports whether any of the updates was queued instead of applied
// against the primary.
func (f *Facade) deductInventory(ctx context.Context, lines []models.Record) (bool, error) {
	f.invMu.Lock()
	defer f.invMu.Unlock()

	var (
		firstErr error
		pending  bool
	)
	for _, line := range lines {
		menuItemID := line.String("menu_item_id")
		sold := line.Float("quantity")
		if menuItemID == "" || sold == 0 {
			continue
		}

		links, err := f.Read(ctx, models.TableRecipes, store.Eq("menu_item_id", menuItemID))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		for _, link := range links {
			ingredientID := link.String("ingredient_id")
			need := link.Float("quantity") * sold

			matches, err := f.Read(ctx, models.TableIngredients, store.Eq("id", ingredientID))
			if err != nil || len(matches) == 0 {
				if err != nil && firstErr == nil {
					firstErr = err
				}
				continue
			}
			ing := matches[0]

			remaining := ing.Float("quantity") - need
			if remaining < 0 {
				logging.Warn("inventory oversell clamped to zero", logging.Fields{
					"ingredient": ingredientID,
					"short":      -remaining,
				})
				remaining = 0
			}
			_, upState, err := f.Update(ctx, models.TableIngredients, ingredientID,
				models.Record{"quantity": remaining})
			if err != nil && firstErr == nil {
				firstErr = err
			}
			if upState == SyncPending {
				pending = true
			}
		}
	}
	return pending, firstErr
}

// RecordExpense creates an expense record, defaulting the date to today.
func (f *Facade) RecordExpense(ctx context.Context, expense models.Record) (models.Record, SyncState, error) {
	rec := expense.Clone()
	if rec.String("date") == "" {
		rec["date"] = time.Now().Format("2006-01-02")
	}
	return f.Create(ctx, models.TableExpenses, rec)
}

// ExpensesTotal sums expense amounts within the inclusive date range.
func (f *Facade) ExpensesTotal(ctx context.Context, from, to string) (float64, error) {
	q := store.Query{}.Where("date", store.OpGte, from).Where("date", store.OpLte, to)
	expenses, err := f.Read(ctx, models.TableExpenses, q)
	if err != nil {
		return 0, err
	}
	total := 0.0
	for _, e := range expenses {
		total += e.Float("amount")
	}
	return total, nil
}

// MenuProfitability computes price minus recipe ingredient cost per menu
// item, using each ingredient's cost_per_unit.
func (f *Facade) MenuProfitability(ctx context.Context) ([]MenuProfit, error) {
	items, err := f.Read(ctx, models.TableMenuItems, store.Query{})
	if err != nil {
		return nil, err
	}

	out := make([]MenuProfit, 0, len(items))
	for _, item := range items {
		entry := MenuProfit{
			MenuItemID: item.ID(),
			Name:       item.String("name"),
			Price:      item.Float("price"),
		}

		links, err := f.Read(ctx, models.TableRecipes, store.Eq("menu_item_id", item.ID()))
		if err != nil {
			return nil, err
		}
		for _, link := range links {
			matches, err := f.Read(ctx, models.TableIngredients, store.Eq("id", link.String("ingredient_id")))
			if err != nil || len(matches) == 0 {
				continue
			}
			entry.IngredientCost += link.Float("quantity") * matches[0].Float("cost_per_unit")
		}

		entry.Profit = entry.Price - entry.IngredientCost
		out = append(out, entry)
	}
	return out, nil
}

// OpenDay opens the daily operations record for a date, or returns the
// already open one.
func (f *Facade) OpenDay(ctx context.Context, date string) (models.Record, error) {
	existing, err := f.Read(ctx, models.TableDailyOperations, store.Eq("date", date))
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing[0], nil
	}

	rec, _, err := f.Create(ctx, models.TableDailyOperations, models.Record{
		"date":      date,
		"status":    "open",
		"opened_at": time.Now().Unix(),
	})
	return rec, err
}

// CloseDay closes the daily operations record for a date.
func (f *Facade) CloseDay(ctx context.Context, date, notes string) (models.Record, error) {
	existing, err := f.Read(ctx, models.TableDailyOperations, store.Eq("date", date))
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return nil, apperr.Newf(apperr.ErrNotFound, "no operations record for %s", date)
	}

	rec, _, err := f.Update(ctx, models.TableDailyOperations, existing[0].ID(), models.Record{
		"status":    "closed",
		"closed_at": time.Now().Unix(),
		"notes":     notes,
	})
	return rec, err
}

// Setting returns the value of a settings key.
func (f *Facade) Setting(ctx context.Context, key string) (any, error) {
	matches, err := f.Read(ctx, models.TableSettings, store.Eq("key", key))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, apperr.Newf(apperr.ErrNotFound, "setting %q not found", key)
	}
	return matches[0]["value"], nil
}

// PutSetting creates or updates a settings key.
func (f *Facade) PutSetting(ctx context.Context, key string, value any) error {
	matches, err := f.Read(ctx, models.TableSettings, store.Eq("key", key))
	if err != nil {
		return err
	}
	if len(matches) > 0 {
		_, _, err := f.Update(ctx, models.TableSettings, matches[0].ID(), models.Record{"value": value})
		return err
	}
	_, _, err = f.Create(ctx, models.TableSettings, models.Record{"key": key, "value": value})
	return err
}
