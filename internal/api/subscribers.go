package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *AdminHandler) ListSubscribers(w http.ResponseWriter, r *http.Request) {
	subs, err := h.store.ListSubscribers(r.Context(), true)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list subscribers")
		return
	}
	respondJSON(w, http.StatusOK, subs)
}

func (h *AdminHandler) GetSubscriber(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	sub, err := h.store.GetSubscriberByAddress(r.Context(), address)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get subscriber")
		return
	}
	if sub == nil {
		respondError(w, http.StatusNotFound, "subscriber not found")
		return
	}
	respondJSON(w, http.StatusOK, sub)
}

func (h *AdminHandler) RemoveSubscriber(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	removed, err := h.store.RemoveSubscriber(r.Context(), address)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to remove subscriber")
		return
	}
	if !removed {
		respondError(w, http.StatusNotFound, "subscriber not found")
		return
	}
	h.logger.Info("subscriber removed", "address", address)
	w.WriteHeader(http.StatusNoContent)
}
