// Package telegram wraps the Bot API SDK with the calls the alert service
// makes: messages, invite links and webhook registration.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const DefaultAPIURL = "https://api.telegram.org"

// APIError is a Bot API response with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// Client calls the Bot API through the SDK. The SDK's requests carry no
// context, so each call binds ctx through its HTTP client.
type Client struct {
	httpClient *http.Client
	endpoint   string
	token      string
	logger     *slog.Logger
}

func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		endpoint:   strings.TrimRight(baseURL, "/") + "/bot%s/%s",
		token:      token,
		logger:     logger,
	}
}

// contextClient attaches ctx to every request the SDK issues.
type contextClient struct {
	ctx    context.Context
	client *http.Client
}

func (c contextClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req.WithContext(c.ctx))
}

// bot builds an SDK handle for one call. NewBotAPI is avoided because it
// issues getMe on construction.
func (c *Client) bot(ctx context.Context) *tgbotapi.BotAPI {
	bot := &tgbotapi.BotAPI{
		Token:  c.token,
		Client: contextClient{ctx: ctx, client: c.httpClient},
		Buffer: 100,
	}
	bot.SetAPIEndpoint(c.endpoint)
	return bot
}

// wrap maps SDK failures onto APIError and keeps the token out of transport
// errors, whose URL embeds it.
func (c *Client) wrap(method string, start time.Time, err error) error {
	c.logger.Debug("telegram call",
		"method", method,
		"ok", err == nil,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return &APIError{Method: method, Code: apiErr.Code, Description: apiErr.Message}
	}
	return fmt.Errorf("telegram %s: %s", method, strings.ReplaceAll(err.Error(), c.token, "<token>"))
}

// SendOptions tweaks sendMessage.
type SendOptions struct {
	ParseMode             string
	DisableWebPagePreview bool
}

func chatTarget(chatID string) tgbotapi.BaseChat {
	if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		return tgbotapi.BaseChat{ChatID: id}
	}
	return tgbotapi.BaseChat{ChannelUsername: chatID}
}

// SendMessage sends text to a chat. chatID may be numeric or an @username.
func (c *Client) SendMessage(ctx context.Context, chatID, text string, opts SendOptions) (*Message, error) {
	cfg := tgbotapi.MessageConfig{
		BaseChat:              chatTarget(chatID),
		Text:                  text,
		ParseMode:             opts.ParseMode,
		DisableWebPagePreview: opts.DisableWebPagePreview,
	}
	start := time.Now()
	msg, err := c.bot(ctx).Send(cfg)
	if err := c.wrap("sendMessage", start, err); err != nil {
		return nil, err
	}
	return &msg, nil
}

// CreateInviteLink creates a permanent invite link with no member limit.
func (c *Client) CreateInviteLink(ctx context.Context, chatID string) (string, error) {
	cfg := tgbotapi.CreateChatInviteLinkConfig{}
	if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		cfg.ChatID = id
	} else {
		cfg.SuperGroupUsername = chatID
	}

	start := time.Now()
	resp, err := c.bot(ctx).Request(cfg)
	if err := c.wrap("createChatInviteLink", start, err); err != nil {
		return "", err
	}

	var link tgbotapi.ChatInviteLink
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return "", fmt.Errorf("decoding createChatInviteLink result: %w", err)
	}
	if link.InviteLink == "" {
		return "", &APIError{Method: "createChatInviteLink", Description: "empty invite link"}
	}
	c.logger.Info("generated invite link", "group_id", chatID)
	return link.InviteLink, nil
}

// SetWebhook points the bot at url. Telegram echoes secret back in the
// X-Telegram-Bot-Api-Secret-Token header of every update. The SDK's
// WebhookConfig predates secret_token, so the call is made with raw params.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	params := tgbotapi.Params{"url": url}
	params.AddNonEmpty("secret_token", secret)
	if err := params.AddInterface("allowed_updates", []string{"message", "my_chat_member"}); err != nil {
		return fmt.Errorf("encoding allowed_updates: %w", err)
	}

	start := time.Now()
	_, err := c.bot(ctx).MakeRequest("setWebhook", params)
	return c.wrap("setWebhook", start, err)
}

// DeleteWebhook removes the webhook registration.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	start := time.Now()
	_, err := c.bot(ctx).Request(tgbotapi.DeleteWebhookConfig{})
	return c.wrap("deleteWebhook", start, err)
}
