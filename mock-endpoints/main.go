// Command mock-endpoints is a stand-in Telegram Bot API for local runs.
// Point TELEGRAM_API_URL at it. Chat ids starting with "fail" get an error
// back, which exercises the delivery guard and invite failure paths.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

var (
	requestCount atomic.Int64
	messageID    atomic.Int64
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	port := "9090"
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int64{"total_requests": requestCount.Load()})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		handleMethod(logger, w, r)
	})

	logger.Info("mock telegram api starting", "port", port,
		"methods", []string{"sendMessage", "createChatInviteLink", "setWebhook", "deleteWebhook"})

	if err := http.ListenAndServe(":"+port, mux); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// handleMethod answers POST /bot<token>/<method>.
func handleMethod(logger *slog.Logger, w http.ResponseWriter, r *http.Request) {
	count := requestCount.Add(1)
	method := path.Base(r.URL.Path)

	if r.Method != http.MethodPost || !strings.HasPrefix(r.URL.Path, "/bot") {
		fail(w, http.StatusNotFound, "Not Found")
		return
	}

	// The Bot API SDK posts form-encoded parameters.
	if err := r.ParseForm(); err != nil {
		fail(w, http.StatusBadRequest, "Bad Request: can't parse parameters")
		return
	}
	chatID := r.PostForm.Get("chat_id")
	logger.Info("request", "n", count, "method", method, "chat_id", chatID)

	if strings.HasPrefix(chatID, "fail") {
		fail(w, http.StatusBadRequest, "Bad Request: chat not found")
		return
	}

	switch method {
	case "sendMessage":
		ok(w, map[string]any{
			"message_id": messageID.Add(1),
			"date":       time.Now().Unix(),
			"chat":       map[string]any{"id": numericID(chatID), "type": "private"},
			"text":       r.PostForm.Get("text"),
		})
	case "createChatInviteLink":
		ok(w, map[string]any{
			"invite_link":          fmt.Sprintf("https://t.me/+mock%s%d", strings.TrimPrefix(chatID, "-"), count),
			"creates_join_request": false,
		})
	case "setWebhook", "deleteWebhook":
		ok(w, true)
	default:
		fail(w, http.StatusNotFound, "Not Found: method not found")
	}
}

// numericID mirrors Telegram returning chat ids as numbers; @usernames map to 0.
func numericID(chatID string) int64 {
	id, _ := strconv.ParseInt(chatID, 10, 64)
	return id
}

func ok(w http.ResponseWriter, result any) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "result": result})
}

func fail(w http.ResponseWriter, status int, description string) {
	writeJSON(w, status, map[string]any{"ok": false, "error_code": status, "description": description})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
