// Package order holds the pure functions over a flat order list: the
// normalizer that upholds its invariants, the lifecycle derivation, and the
// display-batch projection.
package order

import (
	"github.com/google/uuid"
	"github.com/komorebi-pos/engine/internal/model"
)

// Normalize upholds the flat-list invariants and is run before every
// persistence write:
//
//   - entries that are neither a seat marker nor a valid line item are dropped
//   - at most one seat marker, and only while no line item exists
//   - every line item has a stable entry id
//
// Idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(entries model.EntryList) model.EntryList {
	hasItem := false
	for _, e := range entries {
		if !e.IsMarker() && validItem(e) {
			hasItem = true
			break
		}
	}

	out := make(model.EntryList, 0, len(entries))
	seenMarker := false
	for _, e := range entries {
		if e.IsMarker() {
			if hasItem || seenMarker {
				continue
			}
			seenMarker = true
			out = append(out, e)
			continue
		}
		if !validItem(e) {
			continue
		}
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		out = append(out, e)
	}
	return out
}

func validItem(e model.Entry) bool {
	return e.ItemID != "" && e.Quantity >= 1
}
