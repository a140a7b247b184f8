package models

// Table names. Every record belongs to exactly one table.
const (
	TableIngredients     = "ingredients"
	TableMenuItems       = "menu_items"
	TableRecipes         = "recipes"
	TableSales           = "sales"
	TableSaleItems       = "sale_items"
	TableExpenses        = "expenses"
	TableDailyOperations = "daily_operations"
	TableSettings        = "settings"
)

// KnownTables lists every table the local store manages, in export order.
func KnownTables() []string {
	return []string{
		TableIngredients,
		TableMenuItems,
		TableRecipes,
		TableSales,
		TableSaleItems,
		TableExpenses,
		TableDailyOperations,
		TableSettings,
	}
}

// QueryableFields returns the fields that get a secondary index in the
// local store, per table.
func QueryableFields(table string) []string {
	switch table {
	case TableIngredients:
		return []string{"name", "category", "quantity"}
	case TableMenuItems:
		return []string{"name", "category", "price"}
	case TableRecipes:
		return []string{"menu_item_id", "ingredient_id"}
	case TableSales:
		return []string{"date", "total"}
	case TableSaleItems:
		return []string{"sale_id", "menu_item_id"}
	case TableExpenses:
		return []string{"date", "category"}
	case TableDailyOperations:
		return []string{"date", "status"}
	case TableSettings:
		return []string{"key"}
	default:
		return nil
	}
}

// IsKnownTable reports whether the local store manages the given table.
func IsKnownTable(table string) bool {
	for _, t := range KnownTables() {
		if t == table {
			return true
		}
	}
	return false
}
