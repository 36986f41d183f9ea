package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/komorebi-pos/engine/internal/engine"
)

// TakeoutHandler exposes takeout ticket creation and settlement.
type TakeoutHandler struct {
	eng *engine.Engine
	log zerolog.Logger
}

// NewTakeoutHandler creates a TakeoutHandler.
func NewTakeoutHandler(eng *engine.Engine, log zerolog.Logger) *TakeoutHandler {
	return &TakeoutHandler{eng: eng, log: log}
}

// RegisterRoutes registers takeout endpoints. Expected mount point: /takeout
func (h *TakeoutHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{tid}/status", h.Status)
	r.Post("/{tid}/checkout", h.Checkout)
}

type createTakeoutRequest struct {
	Items []engine.NewItem `json:"items"`
}

// List handles GET /takeout.
func (h *TakeoutHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.eng.Takeouts())
}

// Create handles POST /takeout.
func (h *TakeoutHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTakeoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	t, err := h.eng.CreateTakeout(r.Context(), req.Items)
	if err != nil && !isPersistErr(err) {
		writeError(w, err)
		return
	}
	resp := map[string]interface{}{"ticket": t}
	if err != nil {
		h.log.Error().Err(err).Str("ticket_id", t.TicketID).Msg("takeout created but persisted incompletely")
		resp["persist_error"] = err.Error()
	}
	writeJSON(w, http.StatusCreated, resp)
}

// Status handles GET /takeout/{tid}/status.
func (h *TakeoutHandler) Status(w http.ResponseWriter, r *http.Request) {
	tid := chi.URLParam(r, "tid")
	writeJSON(w, http.StatusOK, map[string]string{
		"ticket_id": tid,
		"status":    h.eng.TakeoutStatus(tid),
	})
}

// Checkout handles POST /takeout/{tid}/checkout.
func (h *TakeoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	rec, err := h.eng.CheckoutTakeout(r.Context(), chi.URLParam(r, "tid"), req.PaymentMethod, req.Partial)
	if err != nil && rec == nil {
		writeError(w, err)
		return
	}
	resp := map[string]interface{}{"record": rec}
	if err != nil {
		h.log.Error().Err(err).Str("record_id", rec.ID).Msg("takeout checkout persisted incompletely")
		resp["persist_error"] = err.Error()
	}
	writeJSON(w, http.StatusCreated, resp)
}
