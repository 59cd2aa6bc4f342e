package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jeenglish/speaking-backend/internal/usage"
)

type UsageHandler struct {
	usage *usage.Service
}

func NewUsageHandler(svc *usage.Service) *UsageHandler {
	return &UsageHandler{usage: svc}
}

// Get reports the current month's record for a user without consuming
// quota. Storage failures degrade to a zero record, so this never 5xxs.
func (h *UsageHandler) Get(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	if email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email required"})
		return
	}

	rec := h.usage.GetUsage(r.Context(), email)
	writeJSON(w, http.StatusOK, rec)
}
