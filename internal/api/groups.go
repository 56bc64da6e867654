package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Priya8975/keyword-alerts/internal/store"
	"github.com/Priya8975/keyword-alerts/internal/worker"
	"github.com/go-chi/chi/v5"
)

type createGroupRequest struct {
	GroupID    string `json:"group_id"`
	Name       string `json:"group_name"`
	InviteLink string `json:"invite_link"`
}

func (h *AdminHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.store.ListGroups(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list groups")
		return
	}
	respondJSON(w, http.StatusOK, groups)
}

// CreateGroup registers a group. An incomplete group is picked up by the
// next reconciliation cycle.
func (h *AdminHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.GroupID = strings.TrimSpace(req.GroupID)
	if req.GroupID == "" {
		respondError(w, http.StatusBadRequest, "group_id is required")
		return
	}

	_, err := h.store.AddGroup(r.Context(), req.GroupID, req.Name, req.InviteLink)
	if errors.Is(err, store.ErrDuplicate) {
		respondError(w, http.StatusConflict, "group already exists")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create group")
		return
	}

	g, err := h.store.GetGroup(r.Context(), req.GroupID)
	if err != nil || g == nil {
		respondError(w, http.StatusInternalServerError, "failed to load group")
		return
	}
	respondJSON(w, http.StatusCreated, g)
}

// ProcessGroup registers an unknown group or refreshes a missing invite
// link; ?force=true refreshes the link even when one exists.
func (h *AdminHandler) ProcessGroup(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	force := r.URL.Query().Get("force") == "true"

	if err := h.groups.ProcessGroup(r.Context(), groupID, force); err != nil {
		h.logger.Error("manual group processing failed", "group_id", groupID, "error", err)
		if errors.Is(err, worker.ErrInviteUnavailable) {
			respondError(w, http.StatusBadGateway, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to process group")
		return
	}

	g, err := h.store.GetGroup(r.Context(), groupID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load group")
		return
	}
	if g == nil {
		respondError(w, http.StatusNotFound, "group not found")
		return
	}
	respondJSON(w, http.StatusOK, g)
}

func (h *AdminHandler) OrphanedGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.store.ListOrphanedGroups(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list orphaned groups")
		return
	}
	respondJSON(w, http.StatusOK, groups)
}
