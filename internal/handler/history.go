package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/komorebi-pos/engine/internal/engine"
)

// HistoryHandler exposes the sales history stream and refunds.
type HistoryHandler struct {
	eng *engine.Engine
	log zerolog.Logger
}

// NewHistoryHandler creates a HistoryHandler.
func NewHistoryHandler(eng *engine.Engine, log zerolog.Logger) *HistoryHandler {
	return &HistoryHandler{eng: eng, log: log}
}

// RegisterRoutes registers history endpoints. Expected mount point: /history
func (h *HistoryHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{rid}", h.Get)
	r.Post("/{rid}/refund", h.Refund)
}

// List handles GET /history.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.eng.History())
}

// Get handles GET /history/{rid}.
func (h *HistoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.eng.Record(chi.URLParam(r, "rid"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Refund handles POST /history/{rid}/refund. Refund is an annotation: the
// record total stays as written and a second refund is rejected.
func (h *HistoryHandler) Refund(w http.ResponseWriter, r *http.Request) {
	rec, err := h.eng.Refund(r.Context(), chi.URLParam(r, "rid"))
	if err != nil && rec == nil {
		writeError(w, err)
		return
	}
	resp := map[string]interface{}{"record": rec}
	if err != nil {
		h.log.Error().Err(err).Str("record_id", rec.ID).Msg("refund persisted incompletely")
		resp["persist_error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
