package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// The update types are the SDK's own, so webhook payloads decode with the
// same field set the Bot API documents.
type (
	Update            = tgbotapi.Update
	Message           = tgbotapi.Message
	MessageEntity     = tgbotapi.MessageEntity
	Chat              = tgbotapi.Chat
	User              = tgbotapi.User
	ChatMember        = tgbotapi.ChatMember
	ChatMemberUpdated = tgbotapi.ChatMemberUpdated
)

// IsGroupChat reports whether the chat is a group or supergroup.
func IsGroupChat(c Chat) bool {
	return c.IsGroup() || c.IsSuperGroup()
}

func isMember(status string) bool {
	return status == "member" || status == "administrator" || status == "creator"
}

// BotJoined reports whether the update moved the bot into the chat.
func BotJoined(u *ChatMemberUpdated) bool {
	return isMember(u.NewChatMember.Status) && !isMember(u.OldChatMember.Status)
}

// ParseCommand splits "/cmd@bot args" into "cmd" and "args". It reads the
// leading bot_command entity when there is one and falls back to the text for
// messages relayed without entities. ok is false for plain text.
func ParseCommand(m *Message) (cmd, args string, ok bool) {
	if m.IsCommand() {
		cmd = strings.ToLower(m.Command())
		return cmd, strings.TrimSpace(m.CommandArguments()), cmd != ""
	}
	if len(m.Entities) > 0 || !strings.HasPrefix(m.Text, "/") {
		return "", "", false
	}
	head, rest, _ := strings.Cut(m.Text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	return strings.ToLower(head), strings.TrimSpace(rest), head != ""
}
