package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/komorebi-pos/engine/internal/engine"
	"github.com/komorebi-pos/engine/internal/enum"
	"github.com/komorebi-pos/engine/internal/handler"
	"github.com/komorebi-pos/engine/internal/model"
	"github.com/komorebi-pos/engine/internal/store"
)

// --- Mock store ---

type mockStore struct {
	tables      map[string]*model.TableOrderState
	takeouts    []*model.TakeoutOrder
	history     []*model.SalesHistoryRecord
	failPuts    bool
	failAppends bool
}

func newMockStore() *mockStore {
	return &mockStore{tables: make(map[string]*model.TableOrderState)}
}

func (m *mockStore) TableStates(_ context.Context) (map[string]*model.TableOrderState, error) {
	return m.tables, nil
}

func (m *mockStore) TakeoutOrders(_ context.Context) ([]*model.TakeoutOrder, error) {
	return m.takeouts, nil
}

func (m *mockStore) SalesHistory(_ context.Context) ([]*model.SalesHistoryRecord, error) {
	return m.history, nil
}

func (m *mockStore) PutTableState(_ context.Context, id string, st *model.TableOrderState) (store.Receipt, error) {
	if m.failPuts {
		return store.Receipt{}, errors.New("remote down")
	}
	m.tables[id] = st.Clone()
	return store.Receipt{Remote: true, Local: true}, nil
}

func (m *mockStore) DeleteTableState(_ context.Context, id string) (store.Receipt, error) {
	if m.failPuts {
		return store.Receipt{}, errors.New("remote down")
	}
	delete(m.tables, id)
	return store.Receipt{Remote: true, Local: true}, nil
}

func (m *mockStore) PutTakeoutOrders(_ context.Context, all []*model.TakeoutOrder) (store.Receipt, error) {
	m.takeouts = all
	return store.Receipt{Remote: true, Local: true}, nil
}

func (m *mockStore) AppendSalesRecord(_ context.Context, rec *model.SalesHistoryRecord) (store.Receipt, error) {
	if m.failAppends {
		return store.Receipt{}, errors.New("remote down")
	}
	m.history = append(m.history, rec)
	return store.Receipt{Remote: true, Local: true}, nil
}

func (m *mockStore) UpdateSalesRecord(_ context.Context, id string, patch store.RecordPatch) (store.Receipt, error) {
	for _, r := range m.history {
		if r.ID == id {
			r.Refund = patch.Refund
		}
	}
	return store.Receipt{Remote: true, Local: true}, nil
}

// --- Helpers ---

func setup(t *testing.T) (*engine.Engine, *mockStore, chi.Router) {
	t.Helper()
	st := newMockStore()
	eng := engine.New(st, zerolog.Nop())
	if err := eng.Hydrate(context.Background()); err != nil {
		t.Fatal(err)
	}

	r := chi.NewRouter()
	r.Route("/tables", handler.NewTableHandler(eng, zerolog.Nop()).RegisterRoutes)
	r.Route("/takeout", handler.NewTakeoutHandler(eng, zerolog.Nop()).RegisterRoutes)
	r.Route("/history", handler.NewHistoryHandler(eng, zerolog.Nop()).RegisterRoutes)
	return eng, st, r
}

func do(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response: %v\nbody: %s", err, rr.Body.String())
	}
}

func submitBody(qty int) map[string]interface{} {
	return map[string]interface{}{
		"items": []map[string]interface{}{
			{"item_id": "latte", "name": "Latte", "base_price": "500", "quantity": qty},
		},
	}
}

// --- Tables ---

func TestStatusEndpointNeverNotFound(t *testing.T) {
	_, _, r := setup(t)

	rr := do(t, r, http.MethodGet, "/tables/1F-3/status", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	var resp map[string]interface{}
	decode(t, rr, &resp)
	if resp["status"] != enum.TableStatusAvailable {
		t.Errorf("status = %v, want available", resp["status"])
	}
	if resp["floor"] != "1F" {
		t.Errorf("floor = %v, want 1F", resp["floor"])
	}
	if _, ok := resp["elapsed_seconds"]; ok {
		t.Error("available table must not report elapsed time")
	}
}

func TestSeatEndpoint(t *testing.T) {
	_, _, r := setup(t)

	rr := do(t, r, http.MethodPost, "/tables/1F-3/seat", nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rr.Code, rr.Body.String())
	}

	rr = do(t, r, http.MethodPost, "/tables/1F-3/seat", nil)
	if rr.Code != http.StatusConflict {
		t.Errorf("double seat status = %d, want 409", rr.Code)
	}
}

func TestSubmitAndGetTable(t *testing.T) {
	_, st, r := setup(t)

	rr := do(t, r, http.MethodPost, "/tables/1F-3/orders", submitBody(2))
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rr.Code, rr.Body.String())
	}
	if st.tables["1F-3"] == nil {
		t.Error("table state not persisted")
	}

	rr = do(t, r, http.MethodGet, "/tables/1F-3", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var tbl model.TableOrderState
	decode(t, rr, &tbl)
	if len(tbl.Entries) != 1 || tbl.Entries[0].Quantity != 2 {
		t.Errorf("entries = %+v", tbl.Entries)
	}

	rr = do(t, r, http.MethodGet, "/tables/9F-9", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown table status = %d, want 404", rr.Code)
	}
}

func TestSubmitOrderRejectsBadBody(t *testing.T) {
	_, _, r := setup(t)

	req := httptest.NewRequest(http.MethodPost, "/tables/1F-3/orders", bytes.NewBufferString("{"))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestCheckoutEndpoint(t *testing.T) {
	_, _, r := setup(t)

	do(t, r, http.MethodPost, "/tables/1F-3/orders", submitBody(2))

	rr := do(t, r, http.MethodPost, "/tables/1F-3/checkout", map[string]interface{}{"payment_method": "cash"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Record       *model.SalesHistoryRecord `json:"record"`
		PersistError string                    `json:"persist_error"`
	}
	decode(t, rr, &resp)
	if resp.Record == nil {
		t.Fatal("no record in response")
	}
	if !resp.Record.Total.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("total = %s, want 1000", resp.Record.Total)
	}
	if resp.PersistError != "" {
		t.Errorf("unexpected persist_error: %s", resp.PersistError)
	}

	rr = do(t, r, http.MethodGet, "/tables/1F-3/status", nil)
	var status map[string]interface{}
	decode(t, rr, &status)
	if status["status"] != enum.TableStatusReadyToClean {
		t.Errorf("status = %v, want ready-to-clean", status["status"])
	}
}

func TestCheckoutReportsPersistError(t *testing.T) {
	_, st, r := setup(t)

	do(t, r, http.MethodPost, "/tables/1F-3/orders", submitBody(1))
	st.failAppends = true

	rr := do(t, r, http.MethodPost, "/tables/1F-3/checkout", map[string]interface{}{"payment_method": "cash"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Record       *model.SalesHistoryRecord `json:"record"`
		PersistError string                    `json:"persist_error"`
	}
	decode(t, rr, &resp)
	if resp.Record == nil {
		t.Fatal("settlement record missing despite persistence failure")
	}
	if resp.PersistError == "" {
		t.Error("persist_error missing")
	}
}

func TestMutationsReportPersistError(t *testing.T) {
	_, st, r := setup(t)

	rr := do(t, r, http.MethodPost, "/tables/1F-3/orders", submitBody(2))
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rr.Code, rr.Body.String())
	}
	var created struct {
		Table *model.TableOrderState `json:"table"`
	}
	decode(t, rr, &created)
	if created.Table == nil || len(created.Table.Entries) != 1 {
		t.Fatalf("table = %+v", created.Table)
	}
	entryID := created.Table.Entries[0].ID

	st.failPuts = true

	type mutationResponse struct {
		Table        *model.TableOrderState `json:"table"`
		PersistError string                 `json:"persist_error"`
	}

	rr = do(t, r, http.MethodPost, "/tables/2F-1/seat", nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("seat status = %d, want 201: %s", rr.Code, rr.Body.String())
	}
	var seated mutationResponse
	decode(t, rr, &seated)
	if seated.PersistError == "" {
		t.Error("seat: persist_error missing")
	}
	if seated.Table == nil || seated.Table.Status != enum.TableStatusSeated {
		t.Errorf("seat: table = %+v", seated.Table)
	}

	rr = do(t, r, http.MethodPatch, "/tables/1F-3/orders/"+entryID, map[string]interface{}{"quantity": 3})
	if rr.Code != http.StatusOK {
		t.Fatalf("update status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	var updated mutationResponse
	decode(t, rr, &updated)
	if updated.PersistError == "" {
		t.Error("update: persist_error missing")
	}
	if updated.Table == nil || updated.Table.Entries[0].Quantity != 3 {
		t.Errorf("update: table = %+v", updated.Table)
	}

	rr = do(t, r, http.MethodPost, "/tables/1F-3/orders", submitBody(1))
	if rr.Code != http.StatusCreated {
		t.Fatalf("submit status = %d, want 201: %s", rr.Code, rr.Body.String())
	}
	var submitted mutationResponse
	decode(t, rr, &submitted)
	if submitted.PersistError == "" {
		t.Error("submit: persist_error missing")
	}

	// Validation failures still reject outright, persistence aside.
	rr = do(t, r, http.MethodDelete, "/tables/2F-1/orders/none", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("remove unknown entry status = %d, want 404", rr.Code)
	}
}

func TestRemoveEntryReportsPersistError(t *testing.T) {
	_, st, r := setup(t)

	rr := do(t, r, http.MethodPost, "/tables/1F-3/orders", submitBody(1))
	var created struct {
		Table *model.TableOrderState `json:"table"`
	}
	decode(t, rr, &created)
	entryID := created.Table.Entries[0].ID

	st.failPuts = true

	rr = do(t, r, http.MethodDelete, "/tables/1F-3/orders/"+entryID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Status       string `json:"status"`
		PersistError string `json:"persist_error"`
	}
	decode(t, rr, &resp)
	if resp.Status != enum.TableStatusAvailable {
		t.Errorf("status = %q, want available", resp.Status)
	}
	if resp.PersistError == "" {
		t.Error("persist_error missing")
	}
}

func TestCheckoutValidationStatuses(t *testing.T) {
	_, _, r := setup(t)

	rr := do(t, r, http.MethodPost, "/tables/1F-3/checkout", map[string]interface{}{"payment_method": "cash"})
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown table status = %d, want 404", rr.Code)
	}

	do(t, r, http.MethodPost, "/tables/1F-3/orders", submitBody(1))
	rr = do(t, r, http.MethodPost, "/tables/1F-3/checkout", map[string]interface{}{"payment_method": "barter"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad method status = %d, want 400", rr.Code)
	}
}

func TestCleanEndpoint(t *testing.T) {
	_, _, r := setup(t)

	do(t, r, http.MethodPost, "/tables/1F-3/orders", submitBody(1))

	rr := do(t, r, http.MethodPost, "/tables/1F-3/clean", nil)
	if rr.Code != http.StatusConflict {
		t.Errorf("clean occupied table status = %d, want 409", rr.Code)
	}

	do(t, r, http.MethodPost, "/tables/1F-3/checkout", map[string]interface{}{"payment_method": "cash"})
	rr = do(t, r, http.MethodPost, "/tables/1F-3/clean", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("clean status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
}

// --- Takeout ---

func TestTakeoutEndpoints(t *testing.T) {
	_, _, r := setup(t)

	rr := do(t, r, http.MethodPost, "/takeout", submitBody(1))
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rr.Code, rr.Body.String())
	}
	var created struct {
		Ticket *model.TakeoutOrder `json:"ticket"`
	}
	decode(t, rr, &created)
	if created.Ticket == nil || created.Ticket.TicketID != "T001" {
		t.Errorf("ticket = %+v, want T001", created.Ticket)
	}

	rr = do(t, r, http.MethodGet, "/takeout/T001/status", nil)
	var status map[string]string
	decode(t, rr, &status)
	if status["status"] != enum.TakeoutStatusUnpaid {
		t.Errorf("status = %q, want unpaid", status["status"])
	}

	rr = do(t, r, http.MethodPost, "/takeout/T001/checkout", map[string]interface{}{"payment_method": "card"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("checkout status = %d, want 201: %s", rr.Code, rr.Body.String())
	}

	rr = do(t, r, http.MethodGet, "/takeout/T001/status", nil)
	decode(t, rr, &status)
	if status["status"] != enum.TakeoutStatusPaid {
		t.Errorf("status = %q, want paid", status["status"])
	}

	rr = do(t, r, http.MethodPost, "/takeout/T999/checkout", map[string]interface{}{"payment_method": "cash"})
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown ticket status = %d, want 404", rr.Code)
	}
}

// --- History ---

func TestHistoryAndRefundEndpoints(t *testing.T) {
	_, _, r := setup(t)

	do(t, r, http.MethodPost, "/tables/1F-3/orders", submitBody(1))
	rr := do(t, r, http.MethodPost, "/tables/1F-3/checkout", map[string]interface{}{"payment_method": "cash"})
	var created struct {
		Record *model.SalesHistoryRecord `json:"record"`
	}
	decode(t, rr, &created)

	rr = do(t, r, http.MethodGet, "/history", nil)
	var list []*model.SalesHistoryRecord
	decode(t, rr, &list)
	if len(list) != 1 {
		t.Fatalf("history has %d records, want 1", len(list))
	}

	rr = do(t, r, http.MethodPost, "/history/"+created.Record.ID+"/refund", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("refund status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	var refunded struct {
		Record *model.SalesHistoryRecord `json:"record"`
	}
	decode(t, rr, &refunded)
	if refunded.Record.Refund == nil {
		t.Error("refund annotation missing")
	}
	if !refunded.Record.Total.Equal(created.Record.Total) {
		t.Error("refund changed the record total")
	}

	rr = do(t, r, http.MethodPost, "/history/"+created.Record.ID+"/refund", nil)
	if rr.Code != http.StatusConflict {
		t.Errorf("double refund status = %d, want 409", rr.Code)
	}

	rr = do(t, r, http.MethodGet, "/history/H-missing", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown record status = %d, want 404", rr.Code)
	}
}
