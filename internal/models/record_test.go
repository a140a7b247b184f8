package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRecordAccessors(t *testing.T) {
	r := Record{
		"id":         "1700000000000-abcd1234",
		"name":       "flour",
		"quantity":   10.5,
		"created_at": int64(100),
		"updated_at": int64(200),
	}

	if r.ID() != "1700000000000-abcd1234" {
		t.Errorf("ID = %q", r.ID())
	}
	if r.String("name") != "flour" || r.String("missing") != "" {
		t.Error("String accessor wrong")
	}
	if r.Float("quantity") != 10.5 || r.Float("missing") != 0 {
		t.Error("Float accessor wrong")
	}
	if r.CreatedAt() != 100 || r.UpdatedAt() != 200 {
		t.Error("timestamp accessors wrong")
	}
}

func TestFloatCoercesDecodedJSON(t *testing.T) {
	var r Record
	if err := json.Unmarshal([]byte(`{"quantity": 3, "price": 8.5}`), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if r.Float("quantity") != 3.0 {
		t.Errorf("quantity = %v", r.Float("quantity"))
	}
	if r.Float("price") != 8.5 {
		t.Errorf("price = %v", r.Float("price"))
	}
}

func TestCloneIsIndependent(t *testing.T) {
	orig := Record{"name": "a"}
	clone := orig.Clone()
	clone["name"] = "b"
	if orig.String("name") != "a" {
		t.Error("clone mutated the original")
	}
}

func TestTouch(t *testing.T) {
	now := time.Unix(5000, 0)

	fresh := Record{}
	fresh.Touch(now)
	if fresh.CreatedAt() != 5000 || fresh.UpdatedAt() != 5000 {
		t.Errorf("fresh touch = %d/%d", fresh.CreatedAt(), fresh.UpdatedAt())
	}

	existing := Record{"created_at": int64(1000)}
	existing.Touch(now)
	if existing.CreatedAt() != 1000 {
		t.Error("touch overwrote created_at")
	}
	if existing.UpdatedAt() != 5000 {
		t.Error("touch did not update updated_at")
	}
}

func TestMerge(t *testing.T) {
	base := Record{"name": "tacos", "price": 8.0}
	merged := base.Merge(Record{"price": 9.0, "category": "mains"})

	if merged.Float("price") != 9.0 || merged.String("category") != "mains" {
		t.Errorf("merged = %v", merged)
	}
	if merged.String("name") != "tacos" {
		t.Error("merge dropped an untouched field")
	}
	if base.Float("price") != 8.0 {
		t.Error("merge mutated the base record")
	}
}

func TestQueryableFieldsCoverKnownTables(t *testing.T) {
	for _, table := range KnownTables() {
		if len(QueryableFields(table)) == 0 {
			t.Errorf("table %s has no queryable fields", table)
		}
	}
	if QueryableFields("bogus") != nil {
		t.Error("unknown table should have no fields")
	}
}

func TestIsKnownTable(t *testing.T) {
	if !IsKnownTable(TableSales) {
		t.Error("sales should be known")
	}
	if IsKnownTable("users") {
		t.Error("users should be unknown")
	}
}
