package handlers

import (
	"net/http"

	"github.com/legacore/legacore/control-plane/internal/api/middleware"
	"github.com/legacore/legacore/control-plane/pkg/models"
)

const defaultActivityLimit = 50

// ListActivity returns the acting user's recent activity.
func (h *Handlers) ListActivity(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Store.ListActivity(r.Context(), middleware.GetUserID(r.Context()), queryLimit(r, defaultActivityLimit))
	if err != nil {
		respondErr(w, err)
		return
	}
	if entries == nil {
		entries = []models.ActivityLog{}
	}
	respondData(w, http.StatusOK, entries)
}
