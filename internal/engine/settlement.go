package engine

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/komorebi-pos/engine/internal/enum"
	"github.com/komorebi-pos/engine/internal/model"
	"github.com/komorebi-pos/engine/internal/order"
	"github.com/komorebi-pos/engine/internal/pricing"
	"github.com/komorebi-pos/engine/internal/store"
)

// settlementLine pairs an unpaid entry with the quantity being settled.
// Built entirely during validation; mutation starts only once every line is
// known good.
type settlementLine struct {
	idx int // position in the live entry list
	qty int
}

// Checkout settles a table, fully when partial is nil, otherwise only the
// selected quantities. The order list is a remaining-work ledger: a split
// reduces the live quantity and the settled portion exists only in the
// history record. The history append happens before the table-state write so
// a storage failure can over-record but never under-record.
func (e *Engine) Checkout(ctx context.Context, tableID, method string, partial map[string]int) (*model.SalesHistoryRecord, error) {
	if !validMethod(method) {
		return nil, ErrInvalidMethod
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.tables[tableID]
	if !ok {
		return nil, ErrTableNotFound
	}

	lines, err := resolveSelection(st.Entries, partial)
	if err != nil {
		return nil, err
	}

	// Settlement group id: a dining session keeps one across partial
	// payments; it is minted on the first partial payment and read back by
	// the rest. A plain full settlement closes the session under whatever
	// group the session already had, or a fresh one.
	groupID := st.GroupID
	if groupID == "" {
		groupID = e.newGroupID()
	}
	if partial != nil && st.GroupID == "" {
		st.GroupID = groupID
	}

	now := e.now()
	rec := e.buildRecord(now, groupID, enum.SourceDineIn, tableID, method, partial != nil, st.Entries, lines)

	// Mutate: full selection marks the entry paid with quantity frozen;
	// a partial split only shrinks the remaining quantity.
	for _, ln := range lines {
		en := &st.Entries[ln.idx]
		if ln.qty == en.Quantity {
			en.Paid = true
			en.GroupID = groupID
		} else {
			en.Quantity -= ln.qty
		}
	}
	st.Entries = order.Normalize(st.Entries)
	st.Status = order.DeriveStatus(st.Entries)
	e.history = append(e.history, rec)

	var persistErr error
	if _, err := e.store.AppendSalesRecord(ctx, rec); err != nil {
		persistErr = err
	}
	if err := e.persistTable(ctx, st); err != nil {
		persistErr = errors.Join(persistErr, err)
	}

	e.emit(tableID, st.Status)
	e.log.Info().Str("table_id", tableID).Str("record_id", rec.ID).
		Str("total", rec.Total.String()).Bool("partial", rec.Partial).
		Msg("table settled")
	return rec.Clone(), persistErr
}

// CreateTakeout opens a takeout ticket with a monotonically assigned id.
func (e *Engine) CreateTakeout(ctx context.Context, items []NewItem) (*model.TakeoutOrder, error) {
	if err := validateItems(items); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	t := &model.TakeoutOrder{
		TicketID:  nextTicketID(e.takeouts),
		CreatedAt: now.UnixMilli(),
	}
	for _, it := range items {
		t.Entries = append(t.Entries, model.Entry{
			ID:        uuid.NewString(),
			ItemID:    it.ItemID,
			Name:      it.Name,
			BasePrice: it.BasePrice,
			Quantity:  it.Quantity,
			Selected:  it.Selected,
			Catalog:   it.Catalog,
			PlacedAt:  now.UnixMilli(),
		})
	}
	t.Entries = order.Normalize(t.Entries)
	e.takeouts = append(e.takeouts, t)

	_, err := e.store.PutTakeoutOrders(ctx, e.takeouts)
	return t.Clone(), err
}

// Takeouts returns a snapshot of all tickets.
func (e *Engine) Takeouts() []*model.TakeoutOrder {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*model.TakeoutOrder, len(e.takeouts))
	for i, t := range e.takeouts {
		out[i] = t.Clone()
	}
	return out
}

// TakeoutStatus derives a ticket's status; unknown ids are takeout-new.
func (e *Engine) TakeoutStatus(ticketID string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return order.DeriveTakeoutStatus(e.findTakeout(ticketID))
}

// CheckoutTakeout settles a ticket. Takeout has no cross-visit session, so
// every settlement mints a fresh group id; the top-level paid flag is true
// exactly when no unpaid item remains.
func (e *Engine) CheckoutTakeout(ctx context.Context, ticketID, method string, partial map[string]int) (*model.SalesHistoryRecord, error) {
	if !validMethod(method) {
		return nil, ErrInvalidMethod
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.findTakeout(ticketID)
	if t == nil {
		return nil, ErrTicketNotFound
	}

	lines, err := resolveSelection(t.Entries, partial)
	if err != nil {
		return nil, err
	}

	groupID := e.newGroupID()
	now := e.now()
	rec := e.buildRecord(now, groupID, enum.SourceTakeout, ticketID, method, partial != nil, t.Entries, lines)

	for _, ln := range lines {
		en := &t.Entries[ln.idx]
		if ln.qty == en.Quantity {
			en.Paid = true
			en.GroupID = groupID
		} else {
			en.Quantity -= ln.qty
		}
	}
	t.Entries = order.Normalize(t.Entries)
	t.Paid = !anyUnpaid(t.Entries)
	e.history = append(e.history, rec)

	var persistErr error
	if _, err := e.store.AppendSalesRecord(ctx, rec); err != nil {
		persistErr = err
	}
	if _, err := e.store.PutTakeoutOrders(ctx, e.takeouts); err != nil {
		persistErr = errors.Join(persistErr, err)
	}

	e.log.Info().Str("ticket_id", ticketID).Str("record_id", rec.ID).
		Str("total", rec.Total.String()).Bool("partial", rec.Partial).
		Msg("takeout settled")
	return rec.Clone(), persistErr
}

// --- History ---

// History returns a snapshot of all sales records, oldest first.
func (e *Engine) History() []*model.SalesHistoryRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*model.SalesHistoryRecord, len(e.history))
	for i, r := range e.history {
		out[i] = r.Clone()
	}
	return out
}

// Record returns one sales record.
func (e *Engine) Record(recordID string) (*model.SalesHistoryRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.findRecord(recordID)
	if r == nil {
		return nil, ErrRecordNotFound
	}
	return r.Clone(), nil
}

// Refund annotates a record as refunded. A financial flag only: table and
// ticket state are untouched, the record total is never recomputed, and a
// second refund is rejected.
func (e *Engine) Refund(ctx context.Context, recordID string) (*model.SalesHistoryRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec := e.findRecord(recordID)
	if rec == nil {
		return nil, ErrRecordNotFound
	}
	if rec.Refund != nil {
		return nil, ErrAlreadyRefunded
	}

	rec.Refund = &model.Refund{RefundedAt: e.now().UnixMilli()}
	_, err := e.store.UpdateSalesRecord(ctx, recordID, store.RecordPatch{Refund: rec.Refund})
	e.log.Info().Str("record_id", recordID).Msg("record refunded")
	return rec.Clone(), err
}

// --- Settlement internals ---

// resolveSelection validates the checkout selection against the unpaid
// entries and resolves it into settlement lines. No mutation happens here:
// any failure leaves the order list untouched.
func resolveSelection(entries model.EntryList, partial map[string]int) ([]settlementLine, error) {
	if partial == nil {
		var lines []settlementLine
		for i, en := range entries {
			if en.IsMarker() || en.Paid {
				continue
			}
			lines = append(lines, settlementLine{idx: i, qty: en.Quantity})
		}
		if len(lines) == 0 {
			return nil, ErrEmptyCheckout
		}
		return lines, nil
	}

	if len(partial) == 0 {
		return nil, ErrEmptyCheckout
	}
	lines := make([]settlementLine, 0, len(partial))
	for id, qty := range partial {
		if qty < 1 {
			return nil, ErrInvalidQuantity
		}
		idx := findEntry(entries, id)
		if idx < 0 {
			return nil, ErrUnknownEntry
		}
		en := entries[idx]
		if en.Paid {
			return nil, ErrEntryPaid
		}
		if qty > en.Quantity {
			return nil, ErrExceedsQuantity
		}
		lines = append(lines, settlementLine{idx: idx, qty: qty})
	}
	// Map iteration order is random; records should list items in ledger order.
	sort.Slice(lines, func(i, j int) bool { return lines[i].idx < lines[j].idx })
	return lines, nil
}

// buildRecord prices the settlement lines and assembles the history record.
// Item count is the total settled quantity.
func (e *Engine) buildRecord(now time.Time, groupID, source, origin, method string, isPartial bool, entries model.EntryList, lines []settlementLine) *model.SalesHistoryRecord {
	total := decimal.Zero
	count := 0
	items := make([]model.SettledItem, 0, len(lines))
	for _, ln := range lines {
		en := entries[ln.idx]
		q := pricing.PriceOf(en, ln.qty)
		total = total.Add(q.Subtotal)
		count += ln.qty
		items = append(items, model.SettledItem{
			EntryID:    en.ID,
			ItemID:     en.ItemID,
			Name:       en.Name,
			Quantity:   ln.qty,
			UnitPrice:  q.UnitPrice,
			Adjustment: q.Adjustment,
			Subtotal:   q.Subtotal,
			Selected:   en.Selected,
		})
	}
	return &model.SalesHistoryRecord{
		ID:        e.newHistoryID(),
		GroupID:   groupID,
		Date:      now.Format("2006-01-02"),
		Time:      now.Format("15:04:05"),
		Timestamp: now.UnixMilli(),
		Source:    source,
		Origin:    origin,
		Items:     items,
		Total:     total,
		ItemCount: count,
		Method:    method,
		Partial:   isPartial,
	}
}

func (e *Engine) findTakeout(ticketID string) *model.TakeoutOrder {
	for _, t := range e.takeouts {
		if t.TicketID == ticketID {
			return t
		}
	}
	return nil
}

func (e *Engine) findRecord(recordID string) *model.SalesHistoryRecord {
	for _, r := range e.history {
		if r.ID == recordID {
			return r
		}
	}
	return nil
}

func anyUnpaid(entries model.EntryList) bool {
	for _, en := range entries {
		if !en.IsMarker() && !en.Paid {
			return true
		}
	}
	return false
}

func validMethod(m string) bool {
	switch m {
	case enum.PaymentMethodCash, enum.PaymentMethodCard, enum.PaymentMethodTransfer:
		return true
	}
	return false
}
