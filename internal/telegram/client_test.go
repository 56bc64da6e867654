package telegram

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/Priya8975/keyword-alerts/internal/domain"
)

type fakeAPI struct {
	mu       sync.Mutex
	requests []fakeRequest
	handler  func(method string, params url.Values) (int, string)
}

type fakeRequest struct {
	Method string
	Params url.Values
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	method := parts[len(parts)-1]

	r.ParseForm()
	params := r.PostForm

	f.mu.Lock()
	f.requests = append(f.requests, fakeRequest{Method: method, Params: params})
	f.mu.Unlock()

	status, body := http.StatusOK, `{"ok":true,"result":true}`
	if f.handler != nil {
		status, body = f.handler(method, params)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func (f *fakeAPI) last() fakeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func setupTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewClient(server.URL, "123:secret", logger)
}

func TestClient_SendMessage(t *testing.T) {
	var gotPath string
	api := &fakeAPI{handler: func(method string, params url.Values) (int, string) {
		return http.StatusOK, `{"ok":true,"result":{"message_id":7,"chat":{"id":-1001,"type":"supergroup"},"text":"hi"}}`
	}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		api.ServeHTTP(w, r)
	}))
	defer server.Close()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	c := NewClient(server.URL+"/", "123:secret", logger)

	msg, err := c.SendMessage(context.Background(), "-1001", "hi", SendOptions{ParseMode: "Markdown"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotPath != "/bot123:secret/sendMessage" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if msg.MessageID != 7 || msg.Chat.ID != -1001 {
		t.Errorf("unexpected message: %+v", msg)
	}

	req := api.last()
	if req.Params.Get("chat_id") != "-1001" || req.Params.Get("parse_mode") != "Markdown" || req.Params.Get("text") != "hi" {
		t.Errorf("unexpected params: %v", req.Params)
	}
}

func TestClient_APIError(t *testing.T) {
	api := &fakeAPI{handler: func(string, url.Values) (int, string) {
		return http.StatusBadRequest, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`
	}}
	c := setupTestClient(t, api)

	_, err := c.SendMessage(context.Background(), "42", "hi", SendOptions{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Code != 400 || apiErr.Method != "sendMessage" || !strings.Contains(apiErr.Description, "chat not found") {
		t.Errorf("unexpected error: %+v", apiErr)
	}
}

func TestClient_NonJSONResponse(t *testing.T) {
	api := &fakeAPI{handler: func(string, url.Values) (int, string) {
		return http.StatusBadGateway, "<html>bad gateway</html>"
	}}
	c := setupTestClient(t, api)

	err := c.DeleteWebhook(context.Background())
	if err == nil {
		t.Fatal("expected decode error")
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		t.Errorf("a non-JSON body is not an API error: %v", err)
	}
	if !strings.Contains(err.Error(), "deleteWebhook") || strings.Contains(err.Error(), "secret") {
		t.Errorf("unexpected error text: %v", err)
	}
}

func TestClient_ContextCancelled(t *testing.T) {
	api := &fakeAPI{}
	c := setupTestClient(t, api)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.SendMessage(ctx, "42", "hi", SendOptions{}); err == nil || !strings.Contains(err.Error(), "context canceled") {
		t.Errorf("expected cancellation, got %v", err)
	}
}

func TestClient_TransportErrorHidesToken(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	c := NewClient("http://127.0.0.1:1", "123:supersecret", logger)

	err := c.DeleteWebhook(context.Background())
	if err == nil {
		t.Fatal("expected connection error")
	}
	if strings.Contains(err.Error(), "supersecret") {
		t.Errorf("error leaks the bot token: %v", err)
	}
}

func TestClient_CreateInviteLink(t *testing.T) {
	api := &fakeAPI{handler: func(string, url.Values) (int, string) {
		return http.StatusOK, `{"ok":true,"result":{"invite_link":"https://t.me/+abc"}}`
	}}
	c := setupTestClient(t, api)

	link, err := c.CreateInviteLink(context.Background(), "-1001")
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if link != "https://t.me/+abc" {
		t.Errorf("unexpected link %q", link)
	}
	if req := api.last(); req.Method != "createChatInviteLink" || req.Params.Get("chat_id") != "-1001" {
		t.Errorf("unexpected request: %+v", req)
	}
}

func TestClient_CreateInviteLink_Empty(t *testing.T) {
	api := &fakeAPI{handler: func(string, url.Values) (int, string) {
		return http.StatusOK, `{"ok":true,"result":{}}`
	}}
	c := setupTestClient(t, api)

	if _, err := c.CreateInviteLink(context.Background(), "-1001"); err == nil {
		t.Error("empty invite link should be an error")
	}
}

func TestClient_SetWebhook(t *testing.T) {
	api := &fakeAPI{}
	c := setupTestClient(t, api)

	if err := c.SetWebhook(context.Background(), "https://example.com/webhook", "s3cret"); err != nil {
		t.Fatalf("set webhook: %v", err)
	}
	req := api.last()
	if req.Method != "setWebhook" || req.Params.Get("url") != "https://example.com/webhook" || req.Params.Get("secret_token") != "s3cret" {
		t.Errorf("unexpected request: %+v", req)
	}
	if got := req.Params.Get("allowed_updates"); got != `["message","my_chat_member"]` {
		t.Errorf("unexpected allowed_updates %q", got)
	}
}

func TestClient_SendPostAndInvite(t *testing.T) {
	api := &fakeAPI{handler: func(string, url.Values) (int, string) {
		return http.StatusOK, `{"ok":true,"result":{"message_id":1,"chat":{"id":1,"type":"private"}}}`
	}}
	c := setupTestClient(t, api)
	ctx := context.Background()

	if err := c.SendPost(ctx, "-1001", domain.Post{Text: "rust_lang 2.0", Link: "https://x.com/p/1"}); err != nil {
		t.Fatalf("send post: %v", err)
	}
	req := api.last()
	text := req.Params.Get("text")
	if !strings.Contains(text, "Nova Notificação Encontrada") || !strings.Contains(text, `rust\_lang 2.0`) || !strings.Contains(text, "(https://x.com/p/1)") {
		t.Errorf("unexpected post text: %q", text)
	}
	if req.Params.Get("parse_mode") != "Markdown" {
		t.Errorf("post should use Markdown, got %q", req.Params.Get("parse_mode"))
	}

	if err := c.SendInvite(ctx, "555", "https://t.me/+abc"); err != nil {
		t.Fatalf("send invite: %v", err)
	}
	req = api.last()
	if req.Params.Get("chat_id") != "555" || !strings.Contains(req.Params.Get("text"), "https://t.me/+abc") {
		t.Errorf("unexpected invite request: %+v", req)
	}
	if req.Params.Has("parse_mode") {
		t.Error("invite should be plain text")
	}
}

func TestClient_UsernameTarget(t *testing.T) {
	api := &fakeAPI{handler: func(string, url.Values) (int, string) {
		return http.StatusOK, `{"ok":true,"result":{"message_id":2,"chat":{"id":-100,"type":"channel"}}}`
	}}
	c := setupTestClient(t, api)

	if _, err := c.SendMessage(context.Background(), "@alerts", "hi", SendOptions{}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := api.last().Params.Get("chat_id"); got != "@alerts" {
		t.Errorf("unexpected chat_id %q", got)
	}
}
