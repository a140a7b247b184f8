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

// setupLocalFacade builds a facade with the local store as primary, the
// standalone deployment shape.
func setupLocalFacade(t *testing.T) *Facade {
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
	return New(localStore, localStore, q)
}

// seedMenu creates one ingredient, one menu item and the recipe link
// between them, returning both ids.
func seedMenu(t *testing.T, f *Facade, quantity, perUnit float64) (ingredientID, menuItemID string) {
	t.Helper()
	ctx := context.Background()

	ing, _, err := f.Create(ctx, models.TableIngredients, models.Record{
		"name":     "beef",
		"quantity": quantity,
	})
	if err != nil {
		t.Fatalf("create ingredient: %v", err)
	}

	item, _, err := f.Create(ctx, models.TableMenuItems, models.Record{
		"name":  "burger",
		"price": 12.0,
	})
	if err != nil {
		t.Fatalf("create menu item: %v", err)
	}

	if _, _, err := f.Create(ctx, models.TableRecipes, models.Record{
		"menu_item_id":  item.ID(),
		"ingredient_id": ing.ID(),
		"quantity":      perUnit,
	}); err != nil {
		t.Fatalf("create recipe: %v", err)
	}
	return ing.ID(), item.ID()
}

func ingredientQty(t *testing.T, f *Facade, id string) float64 {
	t.Helper()
	recs, err := f.Read(context.Background(), models.TableIngredients, store.Eq("id", id))
	if err != nil || len(recs) == 0 {
		t.Fatalf("read ingredient %s: %v", id, err)
	}
	return recs[0].Float("quantity")
}

func TestRecordSaleDeductsInventory(t *testing.T) {
	f := setupLocalFacade(t)
	ctx := context.Background()
	ingID, itemID := seedMenu(t, f, 10.0, 2.0)

	sale, state, err := f.RecordSale(ctx,
		models.Record{"date": "2026-08-25", "total": 24.0},
		[]models.Record{{"menu_item_id": itemID, "quantity": 2.0, "price": 12.0}})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if state != SyncSynced {
		t.Errorf("state = %q, want synced", state)
	}

	lines, err := f.Read(ctx, models.TableSaleItems, store.Eq("sale_id", sale.ID()))
	if err != nil || len(lines) != 1 {
		t.Fatalf("sale items = %v (%v), want 1", lines, err)
	}

	// 2 sold, recipe needs 2 per unit: 10 - 4 = 6
	if qty := ingredientQty(t, f, ingID); qty != 6.0 {
		t.Errorf("quantity = %v, want 6", qty)
	}
}

func TestRecordSaleStateCoversQueuedSteps(t *testing.T) {
	f, remote, _, q := setupFacade(t)
	ctx := context.Background()
	_, itemID := seedMenu(t, f, 10.0, 2.0)

	// the sale header lands; every later step hits an unreachable remote
	remote.failAfter = remote.calls + 1

	sale, state, err := f.RecordSale(ctx,
		models.Record{"date": "2026-08-25", "total": 24.0},
		[]models.Record{{"menu_item_id": itemID, "quantity": 2.0, "price": 12.0}})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if state != SyncPending {
		t.Errorf("state = %q, want pending: the line item and deduction queued", state)
	}

	if _, ok := remote.table(models.TableSales)[sale.ID()]; !ok {
		t.Error("sale header missing on remote")
	}
	// one queued line create plus one queued inventory update
	if n, _ := q.Len(ctx); n != 2 {
		t.Errorf("queue len = %d, want 2", n)
	}
}

func TestOversellClampsToZero(t *testing.T) {
	f := setupLocalFacade(t)
	ctx := context.Background()
	ingID, itemID := seedMenu(t, f, 3.0, 2.0)

	// needs 6, only 3 in stock
	if _, _, err := f.RecordSale(ctx,
		models.Record{"date": "2026-08-25", "total": 36.0},
		[]models.Record{{"menu_item_id": itemID, "quantity": 3.0, "price": 12.0}}); err != nil {
		t.Fatalf("record sale: %v", err)
	}

	if qty := ingredientQty(t, f, ingID); qty != 0.0 {
		t.Errorf("quantity = %v, want clamp at 0", qty)
	}
}

func TestConcurrentSalesDrainExactly(t *testing.T) {
	f := setupLocalFacade(t)
	ctx := context.Background()
	ingID, itemID := seedMenu(t, f, 5.0, 2.0)

	// three sales of one unit each need 6 total against 5 in stock; the
	// deductions must serialize so the final quantity is exactly zero
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.RecordSale(ctx,
				models.Record{"date": "2026-08-25", "total": 12.0},
				[]models.Record{{"menu_item_id": itemID, "quantity": 1.0, "price": 12.0}})
			if err != nil {
				t.Errorf("concurrent sale: %v", err)
			}
		}()
	}
	wg.Wait()

	if qty := ingredientQty(t, f, ingID); qty != 0.0 {
		t.Errorf("final quantity = %v, want 0", qty)
	}
}

func TestLowStockItems(t *testing.T) {
	f := setupLocalFacade(t)
	ctx := context.Background()

	if err := f.PutSetting(ctx, "low_stock_threshold", 5.0); err != nil {
		t.Fatalf("put setting: %v", err)
	}

	mustCreateIngredient := func(name string, qty, min float64) {
		rec := models.Record{"name": name, "quantity": qty}
		if min > 0 {
			rec["min_quantity"] = min
		}
		if _, _, err := f.Create(ctx, models.TableIngredients, rec); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	mustCreateIngredient("plenty", 100.0, 0)
	mustCreateIngredient("low-by-default", 4.0, 0)
	mustCreateIngredient("low-by-own-min", 8.0, 10.0)

	low, err := f.LowStockItems(ctx)
	if err != nil {
		t.Fatalf("low stock: %v", err)
	}
	if len(low) != 2 {
		t.Fatalf("low stock items = %d, want 2", len(low))
	}
	names := map[string]bool{}
	for _, rec := range low {
		names[rec.String("name")] = true
	}
	if !names["low-by-default"] || !names["low-by-own-min"] {
		t.Errorf("low stock names = %v", names)
	}
}

func TestDailySalesTotal(t *testing.T) {
	f := setupLocalFacade(t)
	ctx := context.Background()

	for _, sale := range []models.Record{
		{"date": "2026-08-25", "total": 10.0},
		{"date": "2026-08-25", "total": 15.5},
		{"date": "2026-08-24", "total": 99.0},
	} {
		if _, _, err := f.Create(ctx, models.TableSales, sale); err != nil {
			t.Fatalf("create sale: %v", err)
		}
	}

	total, err := f.DailySalesTotal(ctx, "2026-08-25")
	if err != nil {
		t.Fatalf("daily total: %v", err)
	}
	if total != 25.5 {
		t.Errorf("total = %v, want 25.5", total)
	}
}

func TestTopSellingItems(t *testing.T) {
	f := setupLocalFacade(t)
	ctx := context.Background()

	burger, _, _ := f.Create(ctx, models.TableMenuItems, models.Record{"name": "burger", "price": 12.0})
	salad, _, _ := f.Create(ctx, models.TableMenuItems, models.Record{"name": "salad", "price": 7.0})

	for _, line := range []models.Record{
		{"sale_id": "s1", "menu_item_id": burger.ID(), "quantity": 2.0, "price": 12.0},
		{"sale_id": "s2", "menu_item_id": burger.ID(), "quantity": 3.0, "price": 12.0},
		{"sale_id": "s2", "menu_item_id": salad.ID(), "quantity": 1.0, "price": 7.0},
	} {
		if _, _, err := f.Create(ctx, models.TableSaleItems, line); err != nil {
			t.Fatalf("create line: %v", err)
		}
	}

	top, err := f.TopSellingItems(ctx, 1)
	if err != nil {
		t.Fatalf("top sellers: %v", err)
	}
	if len(top) != 1 {
		t.Fatalf("top = %d entries, want 1", len(top))
	}
	if top[0].Name != "burger" || top[0].Quantity != 5.0 || top[0].Revenue != 60.0 {
		t.Errorf("top[0] = %+v, want burger/5/60", top[0])
	}
}

func TestExpensesTotal(t *testing.T) {
	f := setupLocalFacade(t)
	ctx := context.Background()

	for _, e := range []models.Record{
		{"date": "2026-08-01", "amount": 10.0, "category": "food"},
		{"date": "2026-08-15", "amount": 20.0, "category": "rent"},
		{"date": "2026-09-01", "amount": 40.0, "category": "food"},
	} {
		if _, _, err := f.RecordExpense(ctx, e); err != nil {
			t.Fatalf("record expense: %v", err)
		}
	}

	total, err := f.ExpensesTotal(ctx, "2026-08-01", "2026-08-31")
	if err != nil {
		t.Fatalf("expenses total: %v", err)
	}
	if total != 30.0 {
		t.Errorf("total = %v, want 30", total)
	}
}

func TestMenuProfitability(t *testing.T) {
	f := setupLocalFacade(t)
	ctx := context.Background()

	ing, _, _ := f.Create(ctx, models.TableIngredients, models.Record{
		"name": "beef", "quantity": 10.0, "cost_per_unit": 2.5,
	})
	item, _, _ := f.Create(ctx, models.TableMenuItems, models.Record{
		"name": "burger", "price": 12.0,
	})
	if _, _, err := f.Create(ctx, models.TableRecipes, models.Record{
		"menu_item_id": item.ID(), "ingredient_id": ing.ID(), "quantity": 2.0,
	}); err != nil {
		t.Fatalf("create recipe: %v", err)
	}

	report, err := f.MenuProfitability(ctx)
	if err != nil {
		t.Fatalf("profitability: %v", err)
	}
	if len(report) != 1 {
		t.Fatalf("report = %d entries, want 1", len(report))
	}
	if report[0].IngredientCost != 5.0 || report[0].Profit != 7.0 {
		t.Errorf("report[0] = %+v, want cost 5 profit 7", report[0])
	}
}

func TestOpenAndCloseDay(t *testing.T) {
	f := setupLocalFacade(t)
	ctx := context.Background()

	opened, err := f.OpenDay(ctx, "2026-08-25")
	if err != nil {
		t.Fatalf("open day: %v", err)
	}
	if opened.String("status") != "open" {
		t.Errorf("status = %q, want open", opened.String("status"))
	}

	// opening twice returns the same record
	again, err := f.OpenDay(ctx, "2026-08-25")
	if err != nil {
		t.Fatalf("reopen day: %v", err)
	}
	if again.ID() != opened.ID() {
		t.Errorf("reopen created a second record")
	}

	closed, err := f.CloseDay(ctx, "2026-08-25", "smooth shift")
	if err != nil {
		t.Fatalf("close day: %v", err)
	}
	if closed.String("status") != "closed" || closed.String("notes") != "smooth shift" {
		t.Errorf("closed = %v", closed)
	}

	if _, err := f.CloseDay(ctx, "2026-01-01", ""); !apperr.Is(err, apperr.ErrNotFound) {
		t.Errorf("closing an unopened day = %v, want NOT_FOUND", err)
	}
}

func TestSettings(t *testing.T) {
	f := setupLocalFacade(t)
	ctx := context.Background()

	if _, err := f.Setting(ctx, "missing"); !apperr.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing setting = %v, want NOT_FOUND", err)
	}

	if err := f.PutSetting(ctx, "currency", "EUR"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := f.PutSetting(ctx, "currency", "MXN"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	v, err := f.Setting(ctx, "currency")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v != "MXN" {
		t.Errorf("currency = %v, want MXN", v)
	}
}
