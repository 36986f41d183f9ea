package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/komorebi-pos/engine/internal/engine"
	"github.com/komorebi-pos/engine/internal/enum"
	"github.com/komorebi-pos/engine/internal/model"
)

// TableHandler exposes table lifecycle, order entry, and checkout.
type TableHandler struct {
	eng *engine.Engine
	log zerolog.Logger
}

// NewTableHandler creates a TableHandler.
func NewTableHandler(eng *engine.Engine, log zerolog.Logger) *TableHandler {
	return &TableHandler{eng: eng, log: log}
}

// RegisterRoutes registers table endpoints. Expected mount point: /tables
func (h *TableHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Get("/status", h.Status)
		r.Get("/batches", h.Batches)
		r.Get("/checkoutable", h.Checkoutable)
		r.Post("/seat", h.Seat)
		r.Post("/orders", h.SubmitOrder)
		r.Patch("/orders/{eid}", h.UpdateEntry)
		r.Delete("/orders/{eid}", h.RemoveEntry)
		r.Post("/checkout", h.Checkout)
		r.Post("/clean", h.Clean)
		r.Post("/release", h.Release)
	})
}

// --- Request types ---

type submitOrderRequest struct {
	Items []engine.NewItem `json:"items"`
}

type updateEntryRequest struct {
	Quantity int               `json:"quantity"`
	Selected map[string]string `json:"selected"`
}

type checkoutRequest struct {
	PaymentMethod string         `json:"payment_method"`
	Partial       map[string]int `json:"partial,omitempty"`
}

// --- Handlers ---

// List handles GET /tables.
func (h *TableHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.eng.Tables())
}

// Get handles GET /tables/{id}.
func (h *TableHandler) Get(w http.ResponseWriter, r *http.Request) {
	st, err := h.eng.Table(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Status handles GET /tables/{id}/status. Unknown tables are available, so
// this endpoint never 404s.
func (h *TableHandler) Status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status := h.eng.Status(id)

	resp := map[string]interface{}{
		"table_id": id,
		"floor":    engine.FloorOf(id),
		"status":   status,
	}
	if status != enum.TableStatusAvailable {
		if elapsed, err := h.eng.Elapsed(id); err == nil {
			resp["elapsed_seconds"] = int64(elapsed / time.Second)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Batches handles GET /tables/{id}/batches.
func (h *TableHandler) Batches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.eng.Batches(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batches)
}

// Checkoutable handles GET /tables/{id}/checkoutable?editing=id1,id2.
func (h *TableHandler) Checkoutable(w http.ResponseWriter, r *http.Request) {
	var editing []string
	if raw := r.URL.Query().Get("editing"); raw != "" {
		editing = strings.Split(raw, ",")
	}
	items, err := h.eng.Checkoutable(chi.URLParam(r, "id"), editing)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// respondTable reports an applied table mutation. A persistence failure
// after the mutation is applied rides alongside the state, not as a bare
// error: the in-memory state already moved.
func (h *TableHandler) respondTable(w http.ResponseWriter, status int, st *model.TableOrderState, err error) {
	resp := map[string]interface{}{}
	if st != nil {
		resp["table"] = st
	} else {
		resp["status"] = enum.TableStatusAvailable
	}
	if err != nil {
		h.log.Error().Err(err).Msg("table mutation persisted incompletely")
		resp["persist_error"] = err.Error()
	}
	writeJSON(w, status, resp)
}

// Seat handles POST /tables/{id}/seat.
func (h *TableHandler) Seat(w http.ResponseWriter, r *http.Request) {
	st, err := h.eng.Seat(r.Context(), chi.URLParam(r, "id"))
	if err != nil && !isPersistErr(err) {
		writeError(w, err)
		return
	}
	h.respondTable(w, http.StatusCreated, st, err)
}

// SubmitOrder handles POST /tables/{id}/orders.
func (h *TableHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req submitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	st, err := h.eng.SubmitOrder(r.Context(), chi.URLParam(r, "id"), req.Items)
	if err != nil && !isPersistErr(err) {
		writeError(w, err)
		return
	}
	h.respondTable(w, http.StatusCreated, st, err)
}

// UpdateEntry handles PATCH /tables/{id}/orders/{eid}.
func (h *TableHandler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	var req updateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	st, err := h.eng.UpdateEntry(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "eid"), req.Quantity, req.Selected)
	if err != nil && !isPersistErr(err) {
		writeError(w, err)
		return
	}
	h.respondTable(w, http.StatusOK, st, err)
}

// RemoveEntry handles DELETE /tables/{id}/orders/{eid}. Removing the last
// entry releases the table; the response then carries the available status
// instead of a state.
func (h *TableHandler) RemoveEntry(w http.ResponseWriter, r *http.Request) {
	st, err := h.eng.RemoveEntry(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "eid"))
	if err != nil && !isPersistErr(err) {
		writeError(w, err)
		return
	}
	h.respondTable(w, http.StatusOK, st, err)
}

// Checkout handles POST /tables/{id}/checkout. A persistence failure after
// the settlement is applied is reported alongside the record, not as a bare
// error: the settlement itself stands.
func (h *TableHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	rec, err := h.eng.Checkout(r.Context(), chi.URLParam(r, "id"), req.PaymentMethod, req.Partial)
	if err != nil && rec == nil {
		writeError(w, err)
		return
	}
	resp := map[string]interface{}{"record": rec}
	if err != nil {
		h.log.Error().Err(err).Str("record_id", rec.ID).Msg("checkout persisted incompletely")
		resp["persist_error"] = err.Error()
	}
	writeJSON(w, http.StatusCreated, resp)
}

// Clean handles POST /tables/{id}/clean.
func (h *TableHandler) Clean(w http.ResponseWriter, r *http.Request) {
	if err := h.eng.Clean(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": enum.TableStatusAvailable})
}

// Release handles POST /tables/{id}/release.
func (h *TableHandler) Release(w http.ResponseWriter, r *http.Request) {
	if err := h.eng.Release(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": enum.TableStatusAvailable})
}
