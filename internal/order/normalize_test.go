package order_test

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/komorebi-pos/engine/internal/model"
	"github.com/komorebi-pos/engine/internal/order"
)

func item(id, itemID string, qty int) model.Entry {
	return model.Entry{ID: id, ItemID: itemID, BasePrice: decimal.NewFromInt(100), Quantity: qty}
}

func marker(id string) model.Entry {
	return model.Entry{ID: id, Seated: true}
}

func TestNormalizeDropsInvalidEntries(t *testing.T) {
	in := model.EntryList{
		item("a", "latte", 1),
		{ID: "b", ItemID: "", Quantity: 2},      // no item id
		{ID: "c", ItemID: "mocha", Quantity: 0}, // no quantity
		item("d", "tea", 3),
	}

	out := order.Normalize(in)

	if len(out) != 2 {
		t.Fatalf("got %d entries, want 2", len(out))
	}
	if out[0].ID != "a" || out[1].ID != "d" {
		t.Errorf("kept ids %s, %s; want a, d", out[0].ID, out[1].ID)
	}
}

func TestNormalizeMarkerDisplacedByItems(t *testing.T) {
	in := model.EntryList{marker("m"), item("a", "latte", 1)}

	out := order.Normalize(in)

	if len(out) != 1 || out[0].ID != "a" {
		t.Fatalf("got %+v, want only the line item", out)
	}
}

func TestNormalizeKeepsSingleMarkerWhenNoItems(t *testing.T) {
	in := model.EntryList{marker("m1"), marker("m2")}

	out := order.Normalize(in)

	if len(out) != 1 || !out[0].IsMarker() {
		t.Fatalf("got %+v, want one marker", out)
	}
}

func TestNormalizeAssignsMissingIDs(t *testing.T) {
	in := model.EntryList{{ItemID: "latte", Quantity: 1}}

	out := order.Normalize(in)

	if len(out) != 1 || out[0].ID == "" {
		t.Fatalf("entry id not assigned: %+v", out)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	in := model.EntryList{
		marker("m"),
		item("a", "latte", 2),
		{ID: "x", ItemID: "", Quantity: 1},
	}

	once := order.Normalize(in)
	twice := order.Normalize(once)

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("not idempotent:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}
