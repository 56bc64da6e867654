package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Priya8975/keyword-alerts/internal/metrics"
	"github.com/Priya8975/keyword-alerts/internal/store"
	"github.com/Priya8975/keyword-alerts/internal/worker"
	"github.com/go-chi/chi/v5"
)

// AdminHandler serves /api/v1/admin.
type AdminHandler struct {
	store            Store
	groups           GroupProcessor
	announcer        worker.AnnouncementSender
	metrics          *metrics.Metrics
	logger           *slog.Logger
	broadcastWorkers int
}

func NewAdminHandler(s Store, groups GroupProcessor, announcer worker.AnnouncementSender, m *metrics.Metrics, logger *slog.Logger, broadcastWorkers int) *AdminHandler {
	return &AdminHandler{
		store:            s,
		groups:           groups,
		announcer:        announcer,
		metrics:          m,
		logger:           logger,
		broadcastWorkers: broadcastWorkers,
	}
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to load stats", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (h *AdminHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}

	posts, err := h.store.ListProcessedPosts(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list posts")
		return
	}
	respondJSON(w, http.StatusOK, posts)
}

func (h *AdminHandler) ListBackups(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.store.ListSnapshots()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list backups")
		return
	}
	respondJSON(w, http.StatusOK, snaps)
}

func (h *AdminHandler) CreateBackup(w http.ResponseWriter, r *http.Request) {
	path, err := h.store.SnapshotBackup(r.Context())
	if err != nil {
		h.countBackup("failed")
		h.logger.Error("backup failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to create backup")
		return
	}
	h.countBackup("success")
	h.logger.Info("backup created", "path", path)
	respondJSON(w, http.StatusCreated, map[string]string{"name": filepath.Base(path), "path": path})
}

func (h *AdminHandler) RestoreBackup(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	path := h.store.SnapshotPath(name)

	err := h.store.RestoreFromSnapshot(r.Context(), path)
	switch {
	case errors.Is(err, store.ErrSnapshotNotFound):
		respondError(w, http.StatusNotFound, "backup not found")
		return
	case err != nil:
		h.logger.Error("restore failed", "name", name, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to restore backup")
		return
	}
	h.logger.Warn("database restored from backup", "name", filepath.Base(path))
	respondJSON(w, http.StatusOK, map[string]string{"restored": filepath.Base(path)})
}

type broadcastRequest struct {
	Text string `json:"text"`
}

// Broadcast sends an announcement to every subscriber and reports the counts.
func (h *AdminHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	if h.announcer == nil {
		respondError(w, http.StatusServiceUnavailable, "broadcast is not configured")
		return
	}

	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		respondError(w, http.StatusBadRequest, "text is required")
		return
	}

	subs, err := h.store.ListSubscribers(r.Context(), false)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list subscribers")
		return
	}
	addresses := make([]string, 0, len(subs))
	for _, sub := range subs {
		addresses = append(addresses, sub.Address)
	}

	report := worker.Broadcast(r.Context(), h.announcer, addresses, req.Text, h.broadcastWorkers, h.logger, h.metrics)
	respondJSON(w, http.StatusOK, report)
}

func (h *AdminHandler) countBackup(result string) {
	if h.metrics != nil {
		h.metrics.BackupsTotal.WithLabelValues(result).Inc()
	}
}
