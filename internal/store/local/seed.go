package local

import (
	"context"
	"time"

	"github.com/nalvarez/comanda/internal/ident"
	"github.com/nalvarez/comanda/internal/logging"
	"github.com/nalvarez/comanda/internal/models"
)

// defaultSettings are inserted the first time the local database is opened.
var defaultSettings = []models.Record{
	{"key": "restaurant_name", "value": "Comanda"},
	{"key": "currency", "value": "USD"},
	{"key": "tax_rate", "value": 0.0},
	{"key": "low_stock_threshold", "value": 5.0},
}

// Seed inserts the default settings when the settings table is empty.
// A non-empty table skips seeding entirely, so a prior partial seed is
// never repaired here.
func (s *Store) Seed(ctx context.Context) error {
	n, err := s.Count(ctx, models.TableSettings)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	now := time.Now()
	for _, rec := range defaultSettings {
		rec = rec.Clone()
		rec["id"] = ident.NewRecordID()
		rec.Touch(now)
		if _, err := s.Create(ctx, models.TableSettings, rec); err != nil {
			return err
		}
	}

	logging.Info("seeded default settings", logging.Fields{"count": len(defaultSettings)})
	return nil
}
