package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/onnwee/feedrank/internal/middleware"
)

// ItemSignals records engagement on items.
type ItemSignals interface {
	Like(ctx context.Context, userID, itemID string) (bool, error)
	Unlike(ctx context.Context, userID, itemID string) (bool, error)
	RecordView(ctx context.Context, itemID string) error
}

// ItemHandlers holds dependencies for item engagement handlers.
type ItemHandlers struct {
	signals ItemSignals
}

// NewItemHandlers creates a new ItemHandlers instance.
func NewItemHandlers(signals ItemSignals) *ItemHandlers {
	return &ItemHandlers{signals: signals}
}

// LikeResponse is returned by the like endpoints. Changed is false when the
// request was a repeat (liking twice, unliking an item never liked).
type LikeResponse struct {
	ItemID  string `json:"item_id"`
	Liked   bool   `json:"liked"`
	Changed bool   `json:"changed"`
}

// Like handles POST /items/{id}/like.
func (h *ItemHandlers) Like(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")
	changed, err := h.signals.Like(r.Context(), middleware.GetUserID(r.Context()), itemID)
	if err != nil {
		writeErrorFor(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, LikeResponse{ItemID: itemID, Liked: true, Changed: changed})
}

// Unlike handles DELETE /items/{id}/like.
func (h *ItemHandlers) Unlike(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")
	changed, err := h.signals.Unlike(r.Context(), middleware.GetUserID(r.Context()), itemID)
	if err != nil {
		writeErrorFor(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, LikeResponse{ItemID: itemID, Liked: false, Changed: changed})
}

// RecordView handles POST /items/{id}/view.
func (h *ItemHandlers) RecordView(w http.ResponseWriter, r *http.Request) {
	if err := h.signals.RecordView(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeErrorFor(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
