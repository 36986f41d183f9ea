package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lucsky/cuid"

	"github.com/komorebi-pos/engine/internal/model"
)

// History and group ids embed the settlement instant plus a random suffix:
// H20260831143059-xxxxxxxx, G20260831143059-xxxxxxxx.

func (e *Engine) newHistoryID() string { return stampedID("H", e.now()) }
func (e *Engine) newGroupID() string   { return stampedID("G", e.now()) }

func stampedID(prefix string, t time.Time) string {
	return fmt.Sprintf("%s%s-%s", prefix, t.Format("20060102150405"), cuid.Slug())
}

// nextTicketID assigns the next takeout id in the T001, T002, ... sequence.
// The sequence is monotonic over the existing tickets, so deleting old
// tickets never recycles an id still present.
func nextTicketID(existing []*model.TakeoutOrder) string {
	max := 0
	for _, t := range existing {
		n, ok := parseTicketID(t.TicketID)
		if ok && n > max {
			max = n
		}
	}
	return fmt.Sprintf("T%03d", max+1)
}

func parseTicketID(id string) (int, bool) {
	if !strings.HasPrefix(id, "T") {
		return 0, false
	}
	n, err := strconv.Atoi(id[1:])
	if err != nil {
		return 0, false
	}
	return n, true
}

// FloorOf extracts the floor prefix from a table id ("1F-3" -> "1F"). Ids
// without a floor prefix form their own group.
func FloorOf(tableID string) string {
	if i := strings.Index(tableID, "-"); i > 0 {
		return tableID[:i]
	}
	return tableID
}
