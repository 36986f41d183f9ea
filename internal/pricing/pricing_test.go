package pricing_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/komorebi-pos/engine/internal/model"
	"github.com/komorebi-pos/engine/internal/pricing"
)

func sizeCatalog() []model.CustomizationGroup {
	return []model.CustomizationGroup{
		{
			Type: "size",
			Deltas: map[string]decimal.Decimal{
				"large": decimal.NewFromInt(100),
				"small": decimal.NewFromInt(-50),
			},
		},
		{
			Type: "shot",
			Deltas: map[string]decimal.Decimal{
				"extra": decimal.NewFromInt(60),
			},
		},
	}
}

func TestPriceOfAppliesCatalogDeltas(t *testing.T) {
	item := model.Entry{
		ItemID:    "latte",
		BasePrice: decimal.NewFromInt(500),
		Quantity:  2,
		Selected:  map[string]string{"size": "large", "shot": "extra"},
		Catalog:   sizeCatalog(),
	}

	q := pricing.PriceOf(item, 0)

	if want := decimal.NewFromInt(660); !q.UnitPrice.Equal(want) {
		t.Errorf("unit price = %s, want %s", q.UnitPrice, want)
	}
	if want := decimal.NewFromInt(1320); !q.Subtotal.Equal(want) {
		t.Errorf("subtotal = %s, want %s", q.Subtotal, want)
	}
	if want := decimal.NewFromInt(160); !q.Adjustment.Equal(want) {
		t.Errorf("adjustment = %s, want %s", q.Adjustment, want)
	}
	if len(q.Breakdown) != 2 {
		t.Fatalf("breakdown has %d lines, want 2", len(q.Breakdown))
	}
}

func TestPriceOfIgnoresUnmatchedSelections(t *testing.T) {
	item := model.Entry{
		ItemID:    "latte",
		BasePrice: decimal.NewFromInt(500),
		Quantity:  1,
		Selected:  map[string]string{"size": "medium", "temperature": "iced"},
		Catalog:   sizeCatalog(),
	}

	q := pricing.PriceOf(item, 0)

	if !q.UnitPrice.Equal(decimal.NewFromInt(500)) {
		t.Errorf("unit price = %s, want 500", q.UnitPrice)
	}
	if len(q.Breakdown) != 0 {
		t.Errorf("breakdown has %d lines, want 0", len(q.Breakdown))
	}
}

func TestPriceOfLegacyRenewalFallback(t *testing.T) {
	item := model.Entry{
		ItemID:    "membership",
		BasePrice: decimal.NewFromInt(300),
		Quantity:  1,
		Selected:  map[string]string{"renewal": "yes"},
	}

	q := pricing.PriceOf(item, 0)

	if want := decimal.NewFromInt(280); !q.UnitPrice.Equal(want) {
		t.Errorf("unit price = %s, want %s", q.UnitPrice, want)
	}
	if len(q.Breakdown) != 1 || q.Breakdown[0].Type != "renewal" {
		t.Fatalf("breakdown = %+v, want single renewal line", q.Breakdown)
	}
}

func TestPriceOfRenewalFallbackSuppressedByCatalogMatch(t *testing.T) {
	// A catalog that defines its own renewal delta must win over the legacy
	// fixed discount.
	item := model.Entry{
		ItemID:    "membership",
		BasePrice: decimal.NewFromInt(300),
		Quantity:  1,
		Selected:  map[string]string{"renewal": "yes"},
		Catalog: []model.CustomizationGroup{
			{
				Type: "renewal",
				Deltas: map[string]decimal.Decimal{
					"yes": decimal.NewFromInt(-100),
				},
			},
		},
	}

	q := pricing.PriceOf(item, 0)

	if want := decimal.NewFromInt(200); !q.UnitPrice.Equal(want) {
		t.Errorf("unit price = %s, want %s", q.UnitPrice, want)
	}
	if len(q.Breakdown) != 1 {
		t.Fatalf("breakdown has %d lines, want 1", len(q.Breakdown))
	}
	if !q.Breakdown[0].Delta.Equal(decimal.NewFromInt(-100)) {
		t.Errorf("delta = %s, want -100", q.Breakdown[0].Delta)
	}
}

func TestPriceOfClampsUnitPriceAtZero(t *testing.T) {
	item := model.Entry{
		ItemID:    "sample",
		BasePrice: decimal.NewFromInt(10),
		Quantity:  3,
		Selected:  map[string]string{"promo": "full"},
		Catalog: []model.CustomizationGroup{
			{
				Type: "promo",
				Deltas: map[string]decimal.Decimal{
					"full": decimal.NewFromInt(-50),
				},
			},
		},
	}

	q := pricing.PriceOf(item, 0)

	if !q.UnitPrice.IsZero() {
		t.Errorf("unit price = %s, want 0", q.UnitPrice)
	}
	if !q.Subtotal.IsZero() {
		t.Errorf("subtotal = %s, want 0", q.Subtotal)
	}
	// The adjustment stays as computed; only the unit price is floored.
	if !q.Adjustment.Equal(decimal.NewFromInt(-50)) {
		t.Errorf("adjustment = %s, want -50", q.Adjustment)
	}
}

func TestPriceOfQuantityOverride(t *testing.T) {
	item := model.Entry{
		ItemID:    "latte",
		BasePrice: decimal.NewFromInt(500),
		Quantity:  4,
	}

	q := pricing.PriceOf(item, 1)
	if want := decimal.NewFromInt(500); !q.Subtotal.Equal(want) {
		t.Errorf("subtotal with override 1 = %s, want %s", q.Subtotal, want)
	}

	q = pricing.PriceOf(item, 0)
	if want := decimal.NewFromInt(2000); !q.Subtotal.Equal(want) {
		t.Errorf("subtotal without override = %s, want %s", q.Subtotal, want)
	}
}
