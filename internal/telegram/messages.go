package telegram

import (
	"context"
	"fmt"
	"strings"

	"github.com/Priya8975/keyword-alerts/internal/domain"
)

const (
	postTemplate   = "🔔 *Nova Notificação Encontrada!*\n\n%s\n\n🔗 [Ver no Twitter/X](%s)"
	inviteTemplate = "🚀 Seu grupo foi criado!\n\nClique no link abaixo para entrar no seu grupo personalizado de notificações:\n\n%s\n\nLá você receberá apenas notificações relacionadas aos seus interesses."
)

var (
	markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")
	// Legacy Markdown has no escape inside a link target; ')' would end it.
	linkEscaper = strings.NewReplacer(")", "%29", " ", "%20", "\n", "%0A")
)

// EscapeMarkdown escapes the legacy Markdown entities so arbitrary post
// text cannot break message parsing.
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// FormatPost renders the group notification for a post.
func FormatPost(post domain.Post) string {
	return fmt.Sprintf(postTemplate, EscapeMarkdown(post.Text), linkTarget(post.Link))
}

func linkTarget(link string) string {
	return linkEscaper.Replace(strings.TrimSpace(link))
}

// FormatInvite renders the invitation sent to a newly bound subscriber.
func FormatInvite(inviteLink string) string {
	return fmt.Sprintf(inviteTemplate, inviteLink)
}

// SendPost delivers a post notification to a destination group.
func (c *Client) SendPost(ctx context.Context, groupID string, post domain.Post) error {
	_, err := c.SendMessage(ctx, groupID, FormatPost(post), SendOptions{ParseMode: "Markdown"})
	return err
}

// SendInvite sends the group invite link to a subscriber's private chat.
func (c *Client) SendInvite(ctx context.Context, address, inviteLink string) error {
	_, err := c.SendMessage(ctx, address, FormatInvite(inviteLink), SendOptions{})
	return err
}

const announcementTemplate = "📢 *Anúncio do Administrador*\n\n%s"

// SendAnnouncement sends an admin broadcast to one subscriber.
func (c *Client) SendAnnouncement(ctx context.Context, address, text string) error {
	_, err := c.SendMessage(ctx, address, fmt.Sprintf(announcementTemplate, EscapeMarkdown(text)), SendOptions{ParseMode: "Markdown"})
	return err
}
