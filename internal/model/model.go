package model

import "github.com/shopspring/decimal"

// CustomizationGroup is one customization type of a catalog item together
// with the price delta attached to each choosable value. Entries carry a
// reference copy so later catalog edits never reprice past orders.
type CustomizationGroup struct {
	Type   string                     `json:"type"`
	Deltas map[string]decimal.Decimal `json:"deltas"`
}

// Entry is one element of a table's or ticket's flat order list: either a
// seat marker (Seated true, timestamp only) or a line item. Mutations address
// entries by ID, never by slice position.
type Entry struct {
	ID        string               `json:"id,omitempty"`
	Seated    bool                 `json:"seated,omitempty"`
	ItemID    string               `json:"item_id,omitempty"`
	Name      string               `json:"name,omitempty"`
	BasePrice decimal.Decimal      `json:"base_price"`
	Quantity  int                  `json:"quantity,omitempty"`
	Selected  map[string]string    `json:"selected,omitempty"`
	Catalog   []CustomizationGroup `json:"catalog,omitempty"`
	Paid      bool                 `json:"paid"`
	PlacedAt  int64                `json:"placed_at"`
	GroupID   string               `json:"settlement_group_id,omitempty"`
}

// IsMarker reports whether the entry is a seat marker rather than a line item.
func (e Entry) IsMarker() bool { return e.Seated }

// Clone returns a deep copy of the entry.
func (e Entry) Clone() Entry {
	c := e
	if e.Selected != nil {
		c.Selected = make(map[string]string, len(e.Selected))
		for k, v := range e.Selected {
			c.Selected[k] = v
		}
	}
	if e.Catalog != nil {
		c.Catalog = make([]CustomizationGroup, len(e.Catalog))
		for i, g := range e.Catalog {
			cg := CustomizationGroup{Type: g.Type}
			if g.Deltas != nil {
				cg.Deltas = make(map[string]decimal.Decimal, len(g.Deltas))
				for k, v := range g.Deltas {
					cg.Deltas[k] = v
				}
			}
			c.Catalog[i] = cg
		}
	}
	return c
}

// TableOrderState is everything the engine tracks for one occupied table.
// Status is a cache of order.DeriveStatus and is recomputed after every
// mutation; it is persisted for the floor view but never trusted on read.
type TableOrderState struct {
	TableID   string    `json:"table_id"`
	Entries   EntryList `json:"orders"`
	StartedAt int64     `json:"started_at"`
	Status    string    `json:"status"`
	GroupID   string    `json:"settlement_group_id,omitempty"`
}

// Clone returns a deep copy of the state.
func (s *TableOrderState) Clone() *TableOrderState {
	if s == nil {
		return nil
	}
	c := *s
	c.Entries = s.Entries.Clone()
	return &c
}

// TakeoutOrder is a takeout ticket. Paid is true only when no unpaid line
// item remains.
type TakeoutOrder struct {
	TicketID  string    `json:"ticket_id"`
	Entries   EntryList `json:"orders"`
	Paid      bool      `json:"paid"`
	CreatedAt int64     `json:"created_at"`
}

// Clone returns a deep copy of the ticket.
func (t *TakeoutOrder) Clone() *TakeoutOrder {
	if t == nil {
		return nil
	}
	c := *t
	c.Entries = t.Entries.Clone()
	return &c
}

// SettledItem is one line of a sales history record: the portion of an entry
// that was settled, priced at settlement time.
type SettledItem struct {
	EntryID    string            `json:"entry_id"`
	ItemID     string            `json:"item_id"`
	Name       string            `json:"name"`
	Quantity   int               `json:"quantity"`
	UnitPrice  decimal.Decimal   `json:"unit_price"`
	Adjustment decimal.Decimal   `json:"adjustment"`
	Subtotal   decimal.Decimal   `json:"subtotal"`
	Selected   map[string]string `json:"selected,omitempty"`
}

// Refund annotates a settled record. It is a financial flag only; it never
// touches table or ticket state.
type Refund struct {
	RefundedAt int64 `json:"refunded_at"`
}

// SalesHistoryRecord is immutable once written, except for the refund
// annotation. Total is the sum of item subtotals at creation time and is
// never recomputed.
type SalesHistoryRecord struct {
	ID        string          `json:"id"`
	GroupID   string          `json:"settlement_group_id"`
	Date      string          `json:"date"`
	Time      string          `json:"time"`
	Timestamp int64           `json:"timestamp"`
	Source    string          `json:"source_type"`
	Origin    string          `json:"origin"`
	Items     []SettledItem   `json:"items"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
	Method    string          `json:"payment_method"`
	Partial   bool            `json:"is_partial_payment"`
	Refund    *Refund         `json:"refund,omitempty"`
}

// Clone returns a deep copy of the record.
func (r *SalesHistoryRecord) Clone() *SalesHistoryRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.Items != nil {
		c.Items = make([]SettledItem, len(r.Items))
		copy(c.Items, r.Items)
	}
	if r.Refund != nil {
		ref := *r.Refund
		c.Refund = &ref
	}
	return &c
}

// Batch is a display-only grouping of line items sharing an identical
// creation timestamp: the oldest batch is the first order, later batches are
// additional rounds.
type Batch struct {
	PlacedAt int64   `json:"placed_at"`
	Items    []Entry `json:"items"`
}
