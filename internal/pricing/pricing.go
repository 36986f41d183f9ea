// Package pricing computes a line item's adjusted unit price from its
// selected customizations. All functions are pure.
package pricing

import (
	"github.com/komorebi-pos/engine/internal/model"
	"github.com/shopspring/decimal"
)

// Items predating explicit delta tables carried only a renewal flag worth a
// fixed discount. The fallback applies only when the catalog matched nothing
// at all, so a catalog that defines its own renewal delta is never
// double-discounted.
const (
	legacyRenewalType  = "renewal"
	legacyRenewalValue = "yes"
)

var legacyRenewalDelta = decimal.NewFromInt(-20)

// Adjustment is one applied customization delta.
type Adjustment struct {
	Type  string          `json:"type"`
	Value string          `json:"value"`
	Delta decimal.Decimal `json:"delta"`
}

// Quote is the priced form of a line item.
type Quote struct {
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Adjustment decimal.Decimal `json:"adjustment"`
	Breakdown  []Adjustment    `json:"breakdown,omitempty"`
}

// PriceOf prices an entry. qtyOverride, when positive, replaces the entry's
// own quantity; checkout uses it to settle part of an item.
//
// unit price = max(base price + matched deltas, 0).
func PriceOf(item model.Entry, qtyOverride int) Quote {
	adjustment := decimal.Zero
	var breakdown []Adjustment

	for _, group := range item.Catalog {
		value, ok := item.Selected[group.Type]
		if !ok {
			continue
		}
		delta, ok := group.Deltas[value]
		if !ok {
			continue
		}
		adjustment = adjustment.Add(delta)
		breakdown = append(breakdown, Adjustment{
			Type:  group.Type,
			Value: value,
			Delta: delta,
		})
	}

	if len(breakdown) == 0 && item.Selected[legacyRenewalType] == legacyRenewalValue {
		adjustment = adjustment.Add(legacyRenewalDelta)
		breakdown = append(breakdown, Adjustment{
			Type:  legacyRenewalType,
			Value: legacyRenewalValue,
			Delta: legacyRenewalDelta,
		})
	}

	unitPrice := item.BasePrice.Add(adjustment)
	if unitPrice.IsNegative() {
		unitPrice = decimal.Zero
	}

	qty := item.Quantity
	if qtyOverride > 0 {
		qty = qtyOverride
	}

	return Quote{
		UnitPrice:  unitPrice,
		Subtotal:   unitPrice.Mul(decimal.NewFromInt(int64(qty))),
		Adjustment: adjustment,
		Breakdown:  breakdown,
	}
}
