package order

import (
	"github.com/komorebi-pos/engine/internal/enum"
	"github.com/komorebi-pos/engine/internal/model"
)

// DeriveStatus computes a table's status from its order list. First match
// wins:
//
//  1. empty list                      -> available
//  2. any seat marker                 -> seated
//  3. any unpaid line item            -> occupied
//  4. paid line items, none unpaid    -> ready-to-clean
//  5. otherwise                       -> available
//
// Pure: the persisted Status field is a cache of this function and must be
// recomputed, never trusted, whenever the list changes.
func DeriveStatus(entries model.EntryList) string {
	if len(entries) == 0 {
		return enum.TableStatusAvailable
	}
	anyPaid := false
	for _, e := range entries {
		if e.IsMarker() {
			return enum.TableStatusSeated
		}
	}
	for _, e := range entries {
		if !e.Paid {
			return enum.TableStatusOccupied
		}
		anyPaid = true
	}
	if anyPaid {
		return enum.TableStatusReadyToClean
	}
	return enum.TableStatusAvailable
}

// DeriveTakeoutStatus computes a ticket's status. A nil ticket means no
// record exists yet.
func DeriveTakeoutStatus(t *model.TakeoutOrder) string {
	switch {
	case t == nil:
		return enum.TakeoutStatusNew
	case t.Paid:
		return enum.TakeoutStatusPaid
	default:
		return enum.TakeoutStatusUnpaid
	}
}
