package order

import (
	"sort"

	"github.com/komorebi-pos/engine/internal/model"
)

// ToBatches regroups a flat order list into display rounds: line items
// sharing an identical timestamp form one batch, batches sorted oldest
// first. Seat markers are skipped. Unrelated additions that happen to share
// a timestamp merge into one batch, which is acceptable for a display-only
// projection.
func ToBatches(entries model.EntryList) []model.Batch {
	byTime := make(map[int64][]model.Entry)
	for _, e := range entries {
		if e.IsMarker() {
			continue
		}
		byTime[e.PlacedAt] = append(byTime[e.PlacedAt], e)
	}
	if len(byTime) == 0 {
		return nil
	}

	batches := make([]model.Batch, 0, len(byTime))
	for ts, items := range byTime {
		batches = append(batches, model.Batch{PlacedAt: ts, Items: items})
	}
	sort.Slice(batches, func(i, j int) bool {
		return batches[i].PlacedAt < batches[j].PlacedAt
	})
	return batches
}

// Checkoutable returns the line items eligible for checkout: unpaid, not a
// marker, and not currently under edit. Entries under edit are identified by
// their stable id, so one edit never shifts another item's position.
func Checkoutable(entries model.EntryList, editing map[string]bool) []model.Entry {
	var out []model.Entry
	for _, e := range entries {
		if e.IsMarker() || e.Paid {
			continue
		}
		if editing[e.ID] {
			continue
		}
		out = append(out, e)
	}
	return out
}
