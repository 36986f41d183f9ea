// Package engine implements the order and table settlement engine: table
// lifecycle mutations, checkout with full and partial settlement, refunds,
// and takeout tickets. All state-changing operations validate first and
// mutate only after validation passes.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/komorebi-pos/engine/internal/enum"
	"github.com/komorebi-pos/engine/internal/model"
	"github.com/komorebi-pos/engine/internal/order"
	"github.com/komorebi-pos/engine/internal/store"
)

// Errors surfaced to callers. Validation errors reject before any mutation.
var (
	ErrTableNotFound   = errors.New("table not found")
	ErrTicketNotFound  = errors.New("takeout ticket not found")
	ErrRecordNotFound  = errors.New("history record not found")
	ErrAlreadySeated   = errors.New("table already has a party")
	ErrEmptyOrder      = errors.New("order items are required")
	ErrInvalidItem     = errors.New("item_id is required")
	ErrInvalidQuantity = errors.New("quantity must be > 0")
	ErrEmptyCheckout   = errors.New("nothing to check out")
	ErrUnknownEntry    = errors.New("entry not found")
	ErrEntryPaid       = errors.New("entry already settled")
	ErrExceedsQuantity = errors.New("selected quantity exceeds remaining quantity")
	ErrInvalidMethod   = errors.New("invalid payment_method")
	ErrNotReadyToClean = errors.New("table is not ready to clean")
	ErrAlreadyRefunded = errors.New("record already refunded")
)

// Store is what the engine needs from the persistence adapter.
type Store interface {
	TableStates(ctx context.Context) (map[string]*model.TableOrderState, error)
	TakeoutOrders(ctx context.Context) ([]*model.TakeoutOrder, error)
	SalesHistory(ctx context.Context) ([]*model.SalesHistoryRecord, error)
	PutTableState(ctx context.Context, id string, st *model.TableOrderState) (store.Receipt, error)
	DeleteTableState(ctx context.Context, id string) (store.Receipt, error)
	PutTakeoutOrders(ctx context.Context, all []*model.TakeoutOrder) (store.Receipt, error)
	AppendSalesRecord(ctx context.Context, rec *model.SalesHistoryRecord) (store.Receipt, error)
	UpdateSalesRecord(ctx context.Context, id string, patch store.RecordPatch) (store.Receipt, error)
}

// NewItem is a line item as submitted from the menu.
type NewItem struct {
	ItemID    string                     `json:"item_id"`
	Name      string                     `json:"name"`
	BasePrice decimal.Decimal            `json:"base_price"`
	Quantity  int                        `json:"quantity"`
	Selected  map[string]string          `json:"selected,omitempty"`
	Catalog   []model.CustomizationGroup `json:"catalog,omitempty"`
}

// Event describes a table status change, consumed by the WebSocket hub.
type Event struct {
	Floor   string `json:"floor"`
	TableID string `json:"table_id"`
	Status  string `json:"status"`
}

// Engine owns the in-memory state and serializes all operations: one active
// writer per table is the concurrency model, so a single mutex is the whole
// locking story. In-memory state is updated before the persistence write
// resolves, so a second action on the same table observes the new status.
type Engine struct {
	mu       sync.Mutex
	store    Store
	log      zerolog.Logger
	now      func() time.Time
	notify   func(Event)
	tables   map[string]*model.TableOrderState
	takeouts []*model.TakeoutOrder
	history  []*model.SalesHistoryRecord
}

// New creates an engine. Call Hydrate before serving.
func New(st Store, log zerolog.Logger) *Engine {
	return &Engine{
		store:  st,
		log:    log,
		now:    time.Now,
		tables: make(map[string]*model.TableOrderState),
	}
}

// SetClock injects the time source, for tests and deterministic ids.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// OnStatusChange registers the sink receiving table status events.
func (e *Engine) OnStatusChange(fn func(Event)) { e.notify = fn }

// Hydrate loads tables, takeout tickets, and sales history from the store.
func (e *Engine) Hydrate(ctx context.Context) error {
	tables, err := e.store.TableStates(ctx)
	if err != nil {
		return err
	}
	takeouts, err := e.store.TakeoutOrders(ctx)
	if err != nil {
		return err
	}
	history, err := e.store.SalesHistory(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.tables = make(map[string]*model.TableOrderState, len(tables))
	for id, st := range tables {
		st.Entries = order.Normalize(st.Entries)
		st.Status = order.DeriveStatus(st.Entries)
		e.tables[id] = st
	}
	e.takeouts = takeouts
	e.history = history
	e.log.Info().Int("tables", len(tables)).Int("takeouts", len(takeouts)).
		Int("history", len(history)).Msg("engine hydrated")
	return nil
}

// --- Table mutations ---

// Seat marks a table as holding a party that has not ordered yet.
func (e *Engine) Seat(ctx context.Context, tableID string) (*model.TableOrderState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.tables[tableID]; ok {
		return nil, ErrAlreadySeated
	}

	now := e.now()
	st := &model.TableOrderState{
		TableID:   tableID,
		Entries:   model.EntryList{{ID: uuid.NewString(), Seated: true, PlacedAt: now.UnixMilli()}},
		StartedAt: now.UnixMilli(),
	}
	st.Status = order.DeriveStatus(st.Entries)
	e.tables[tableID] = st

	err := e.persistTable(ctx, st)
	e.emit(tableID, st.Status)
	return st.Clone(), err
}

// SubmitOrder appends a round of items to a table, creating the table state
// if needed and displacing any seat marker. All items of one submission
// share a timestamp, which is what groups them into a display batch.
func (e *Engine) SubmitOrder(ctx context.Context, tableID string, items []NewItem) (*model.TableOrderState, error) {
	if err := validateItems(items); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	st, ok := e.tables[tableID]
	if !ok {
		st = &model.TableOrderState{TableID: tableID, StartedAt: now.UnixMilli()}
		e.tables[tableID] = st
	}

	placedAt := now.UnixMilli()
	for _, it := range items {
		st.Entries = append(st.Entries, model.Entry{
			ID:        uuid.NewString(),
			ItemID:    it.ItemID,
			Name:      it.Name,
			BasePrice: it.BasePrice,
			Quantity:  it.Quantity,
			Selected:  it.Selected,
			Catalog:   it.Catalog,
			PlacedAt:  placedAt,
		})
	}
	st.Entries = order.Normalize(st.Entries)
	st.Status = order.DeriveStatus(st.Entries)

	err := e.persistTable(ctx, st)
	e.emit(tableID, st.Status)
	return st.Clone(), err
}

// UpdateEntry changes quantity and customizations of an unpaid entry.
func (e *Engine) UpdateEntry(ctx context.Context, tableID, entryID string, quantity int, selected map[string]string) (*model.TableOrderState, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.tables[tableID]
	if !ok {
		return nil, ErrTableNotFound
	}
	idx := findEntry(st.Entries, entryID)
	if idx < 0 {
		return nil, ErrUnknownEntry
	}
	if st.Entries[idx].Paid {
		return nil, ErrEntryPaid
	}

	st.Entries[idx].Quantity = quantity
	if selected != nil {
		st.Entries[idx].Selected = selected
	}
	st.Entries = order.Normalize(st.Entries)
	st.Status = order.DeriveStatus(st.Entries)

	err := e.persistTable(ctx, st)
	return st.Clone(), err
}

// RemoveEntry deletes an unpaid entry. Removing the last entry releases the
// table entirely.
func (e *Engine) RemoveEntry(ctx context.Context, tableID, entryID string) (*model.TableOrderState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.tables[tableID]
	if !ok {
		return nil, ErrTableNotFound
	}
	idx := findEntry(st.Entries, entryID)
	if idx < 0 {
		return nil, ErrUnknownEntry
	}
	if st.Entries[idx].Paid {
		return nil, ErrEntryPaid
	}

	st.Entries = append(st.Entries[:idx], st.Entries[idx+1:]...)
	st.Entries = order.Normalize(st.Entries)

	if len(st.Entries) == 0 {
		delete(e.tables, tableID)
		_, err := e.store.DeleteTableState(ctx, tableID)
		e.emit(tableID, enum.TableStatusAvailable)
		return nil, err
	}

	st.Status = order.DeriveStatus(st.Entries)
	err := e.persistTable(ctx, st)
	e.emit(tableID, st.Status)
	return st.Clone(), err
}

// Clean deletes a settled table's state, returning it to available. Only a
// ready-to-clean table can be cleaned; use Release to force.
func (e *Engine) Clean(ctx context.Context, tableID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.tables[tableID]
	if !ok {
		return ErrTableNotFound
	}
	if order.DeriveStatus(st.Entries) != enum.TableStatusReadyToClean {
		return ErrNotReadyToClean
	}
	return e.dropTable(ctx, tableID)
}

// Release deletes a table's state unconditionally (party left without
// settling, mis-seated, and similar).
func (e *Engine) Release(ctx context.Context, tableID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.tables[tableID]; !ok {
		return ErrTableNotFound
	}
	return e.dropTable(ctx, tableID)
}

func (e *Engine) dropTable(ctx context.Context, tableID string) error {
	delete(e.tables, tableID)
	_, err := e.store.DeleteTableState(ctx, tableID)
	e.emit(tableID, enum.TableStatusAvailable)
	return err
}

// --- Queries ---

// Status derives the table's current status; unknown tables are available.
func (e *Engine) Status(tableID string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.tables[tableID]
	if !ok {
		return enum.TableStatusAvailable
	}
	return order.DeriveStatus(st.Entries)
}

// Table returns a snapshot of a table's state.
func (e *Engine) Table(tableID string) (*model.TableOrderState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.tables[tableID]
	if !ok {
		return nil, ErrTableNotFound
	}
	return st.Clone(), nil
}

// Tables returns a snapshot of every occupied table.
func (e *Engine) Tables() map[string]*model.TableOrderState {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]*model.TableOrderState, len(e.tables))
	for id, st := range e.tables {
		out[id] = st.Clone()
	}
	return out
}

// Batches returns the table's order list regrouped into display rounds.
func (e *Engine) Batches(tableID string) ([]model.Batch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.tables[tableID]
	if !ok {
		return nil, ErrTableNotFound
	}
	return order.ToBatches(st.Entries.Clone()), nil
}

// Checkoutable returns the entries eligible for checkout, excluding any
// whose ids the caller has under edit.
func (e *Engine) Checkoutable(tableID string, editing []string) ([]model.Entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.tables[tableID]
	if !ok {
		return nil, ErrTableNotFound
	}
	editSet := make(map[string]bool, len(editing))
	for _, id := range editing {
		editSet[id] = true
	}
	return order.Checkoutable(st.Entries.Clone(), editSet), nil
}

// Elapsed reports how long the table has been occupied.
func (e *Engine) Elapsed(tableID string) (time.Duration, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.tables[tableID]
	if !ok {
		return 0, ErrTableNotFound
	}
	return e.now().Sub(time.UnixMilli(st.StartedAt)), nil
}

// --- Internals ---

func (e *Engine) persistTable(ctx context.Context, st *model.TableOrderState) error {
	_, err := e.store.PutTableState(ctx, st.TableID, st)
	return err
}

func (e *Engine) emit(tableID, status string) {
	if e.notify == nil {
		return
	}
	e.notify(Event{Floor: FloorOf(tableID), TableID: tableID, Status: status})
}

func validateItems(items []NewItem) error {
	if len(items) == 0 {
		return ErrEmptyOrder
	}
	for _, it := range items {
		if it.ItemID == "" {
			return ErrInvalidItem
		}
		if it.Quantity < 1 {
			return ErrInvalidQuantity
		}
	}
	return nil
}

func findEntry(entries model.EntryList, id string) int {
	for i, en := range entries {
		if !en.IsMarker() && en.ID == id {
			return i
		}
	}
	return -1
}
