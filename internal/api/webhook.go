package api

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/Priya8975/keyword-alerts/internal/domain"
	"github.com/Priya8975/keyword-alerts/internal/metrics"
	"github.com/Priya8975/keyword-alerts/internal/telegram"
)

const (
	maxWebhookBody    = 1 << 20
	secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"
)

// WebhookHandler serves the single ingress path shared by Telegram updates
// and post notifications.
type WebhookHandler struct {
	posts   PostProcessor
	updates UpdateHandler
	metrics *metrics.Metrics
	logger  *slog.Logger
	secret  string
}

func NewWebhookHandler(posts PostProcessor, updates UpdateHandler, m *metrics.Metrics, logger *slog.Logger, secret string) *WebhookHandler {
	return &WebhookHandler{posts: posts, updates: updates, metrics: m, logger: logger, secret: secret}
}

type postResponse struct {
	Message       string `json:"message"`
	DeliveryCount int    `json:"delivery_count"`
	MatchingUsers int    `json:"matching_users"`
	UniqueGroups  int    `json:"unique_groups"`
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if update, ok := decodeUpdate(body); ok {
		h.handleUpdate(w, r, update)
		return
	}

	post, err := decodePost(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.handlePost(w, r, post)
}

func (h *WebhookHandler) handleUpdate(w http.ResponseWriter, r *http.Request, u telegram.Update) {
	if h.secret != "" {
		got := r.Header.Get(secretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			respondError(w, http.StatusUnauthorized, "invalid secret token")
			return
		}
	}

	if err := h.updates.HandleUpdate(r.Context(), u); err != nil {
		h.logger.Error("failed to handle telegram update", "update_id", u.UpdateID, "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "OK")
}

func (h *WebhookHandler) handlePost(w http.ResponseWriter, r *http.Request, post domain.Post) {
	if strings.TrimSpace(post.Link) == "" || post.Text == "" {
		h.logger.Warn("post notification missing required fields")
		h.count("invalid")
		respondError(w, http.StatusBadRequest, "Fields 'link' and 'text' are required")
		return
	}

	result, err := h.posts.Process(r.Context(), post)
	if err != nil {
		h.logger.Error("failed to process post", "error", err)
		h.count("error")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if result.Duplicate {
		h.count("duplicate")
		respondJSON(w, http.StatusOK, map[string]string{"message": "Tweet already processed"})
		return
	}

	h.count("processed")
	respondJSON(w, http.StatusOK, postResponse{
		Message:       "Tweet processed successfully",
		DeliveryCount: result.Delivered,
		MatchingUsers: result.MatchedSubscribers,
		UniqueGroups:  result.UniqueGroups,
	})
}

func (h *WebhookHandler) count(outcome string) {
	if h.metrics != nil {
		h.metrics.PostsReceivedTotal.WithLabelValues(outcome).Inc()
	}
}

// decodeUpdate recognises a Telegram update by its update_id field.
func decodeUpdate(body []byte) (telegram.Update, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return telegram.Update{}, false
	}
	if _, ok := fields["update_id"]; !ok {
		return telegram.Update{}, false
	}
	var u telegram.Update
	if err := json.Unmarshal(body, &u); err != nil {
		return telegram.Update{}, false
	}
	return u, true
}

// decodePost accepts a JSON object or a form-encoded body with link, text
// and an optional id. Link and text are kept verbatim since the derived post
// id hashes them.
func decodePost(body []byte) (domain.Post, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var p domain.Post
		if err := json.Unmarshal(trimmed, &p); err != nil {
			return domain.Post{}, err
		}
		p.ID = strings.TrimSpace(p.ID)
		return p, nil
	}

	form := parseFormLenient(string(body))
	return domain.Post{
		ID:   strings.TrimSpace(form.Get("id")),
		Link: form.Get("link"),
		Text: form.Get("text"),
	}, nil
}

// parseFormLenient decodes a urlencoded body like url.ParseQuery, except that
// a value with a malformed escape or a semicolon is kept rather than dropped.
// Notification sources send raw post text, where a stray '%' is common.
func parseFormLenient(body string) url.Values {
	form := url.Values{}
	for _, pair := range strings.Split(body, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		form.Add(unescapeLenient(key), unescapeLenient(value))
	}
	return form
}

func unescapeLenient(s string) string {
	if v, err := url.QueryUnescape(s); err == nil {
		return v
	}
	return strings.ReplaceAll(s, "+", " ")
}
