// Package bot handles Telegram updates: the registration dialogue, user
// commands, admin commands and the bot joining groups.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Priya8975/keyword-alerts/internal/domain"
	"github.com/Priya8975/keyword-alerts/internal/store"
	"github.com/Priya8975/keyword-alerts/internal/telegram"
)

// Store is the persistence the bot needs.
type Store interface {
	AddSubscriber(ctx context.Context, req domain.NewSubscriber) (int64, error)
	GetSubscriberByAddress(ctx context.Context, address string) (*domain.Subscriber, error)
	ListSubscribers(ctx context.Context, includeKeywords bool) ([]domain.Subscriber, error)
	RemoveSubscriber(ctx context.Context, address string) (bool, error)
	ReplaceKeywords(ctx context.Context, address, keywordsText string) (bool, error)
	IsAdmin(ctx context.Context, userID string) (bool, error)
	Stats(ctx context.Context) (*store.Stats, error)
	SnapshotBackup(ctx context.Context) (string, error)
}

// Messenger sends chat messages.
type Messenger interface {
	SendMessage(ctx context.Context, chatID, text string, opts telegram.SendOptions) (*telegram.Message, error)
}

// GroupProcessor reconciles one group on demand.
type GroupProcessor interface {
	ProcessGroup(ctx context.Context, groupID string, force bool) error
}

// Handler routes updates. Storage failures are returned; failures to send a
// reply are only logged.
type Handler struct {
	store         Store
	messenger     Messenger
	groups        GroupProcessor
	conversations *Conversations
	logger        *slog.Logger
}

func NewHandler(s Store, messenger Messenger, groups GroupProcessor, conversations *Conversations, logger *slog.Logger) *Handler {
	if conversations == nil {
		conversations = NewConversations()
	}
	return &Handler{
		store:         s,
		messenger:     messenger,
		groups:        groups,
		conversations: conversations,
		logger:        logger,
	}
}

// HandleUpdate processes one update.
func (h *Handler) HandleUpdate(ctx context.Context, u telegram.Update) error {
	switch {
	case u.MyChatMember != nil:
		return h.handleMembership(ctx, u.MyChatMember)
	case u.Message != nil:
		if u.Message.Chat == nil || !u.Message.Chat.IsPrivate() {
			return nil
		}
		return h.handleMessage(ctx, u.Message)
	}
	h.logger.Debug("ignoring update", "update_id", u.UpdateID)
	return nil
}

func (h *Handler) handleMembership(ctx context.Context, m *telegram.ChatMemberUpdated) error {
	if !telegram.IsGroupChat(m.Chat) || !telegram.BotJoined(m) {
		return nil
	}
	groupID := strconv.FormatInt(m.Chat.ID, 10)
	h.logger.Info("bot added to group", "group_id", groupID, "title", m.Chat.Title)
	return h.groups.ProcessGroup(ctx, groupID, false)
}

func (h *Handler) handleMessage(ctx context.Context, msg *telegram.Message) error {
	if cmd, args, ok := telegram.ParseCommand(msg); ok {
		return h.handleCommand(ctx, msg, cmd, args)
	}
	if conv, ok := h.conversations.Get(msg.Chat.ID); ok {
		return h.advance(ctx, msg, conv)
	}
	h.reply(ctx, msg.Chat.ID, msgCommandNotFound)
	h.replyMarkdown(ctx, msg.Chat.ID, msgHelp)
	return nil
}

func (h *Handler) handleCommand(ctx context.Context, msg *telegram.Message, cmd, args string) error {
	chatID := msg.Chat.ID
	address := strconv.FormatInt(chatID, 10)

	switch cmd {
	case "start":
		return h.start(ctx, chatID, address)
	case "help":
		h.replyMarkdown(ctx, chatID, msgHelp)
		return nil
	case "status":
		return h.status(ctx, chatID, address)
	case "myid":
		h.reply(ctx, chatID, fmt.Sprintf(msgMyID, chatID))
		return nil
	case "update":
		sub, err := h.store.GetSubscriberByAddress(ctx, address)
		if err != nil {
			return h.fail(ctx, chatID, fmt.Errorf("loading subscriber: %w", err))
		}
		if sub == nil {
			h.reply(ctx, chatID, msgNotRegistered)
			return nil
		}
		h.conversations.Set(chatID, Conversation{State: UpdatingInterests})
		h.reply(ctx, chatID, msgAskUpdate)
		return nil
	case "cancel":
		if h.conversations.Delete(chatID) {
			h.reply(ctx, chatID, msgCancelled)
		} else {
			h.reply(ctx, chatID, msgNothingToCancel)
		}
		return nil
	case "stats", "backup", "addgroup", "removeuser", "finduser":
		return h.admin(ctx, msg, cmd, args)
	}

	h.reply(ctx, chatID, msgCommandNotFound)
	return nil
}

func (h *Handler) start(ctx context.Context, chatID int64, address string) error {
	sub, err := h.store.GetSubscriberByAddress(ctx, address)
	if err != nil {
		return h.fail(ctx, chatID, fmt.Errorf("loading subscriber: %w", err))
	}
	if sub != nil {
		h.conversations.Delete(chatID)
		h.reply(ctx, chatID, fmt.Sprintf(msgWelcomeBack, sub.Name))
		return nil
	}

	h.conversations.Set(chatID, Conversation{State: AwaitingName})
	h.reply(ctx, chatID, msgWelcome)
	h.reply(ctx, chatID, msgAskName)
	return nil
}

func (h *Handler) status(ctx context.Context, chatID int64, address string) error {
	sub, err := h.store.GetSubscriberByAddress(ctx, address)
	if err != nil {
		return h.fail(ctx, chatID, fmt.Errorf("loading subscriber: %w", err))
	}
	if sub == nil {
		h.reply(ctx, chatID, msgNotRegistered)
		return nil
	}

	var b strings.Builder
	b.WriteString("📊 *Seu Perfil*\n\n")
	fmt.Fprintf(&b, "👤 *Nome:* %s\n", telegram.EscapeMarkdown(sub.Name))
	fmt.Fprintf(&b, "📧 *Email:* %s\n", telegram.EscapeMarkdown(sub.Email))
	fmt.Fprintf(&b, "🎯 *Intenção:* %s\n", telegram.EscapeMarkdown(sub.Intention))
	fmt.Fprintf(&b, "🔑 *Interesses:* %s\n\n", telegram.EscapeMarkdown(keywordList(sub.Keywords, "Nenhuma")))
	if sub.HasGroup() {
		fmt.Fprintf(&b, "🔗 *Link do Grupo:* %s\n", sub.InviteLink)
	} else {
		b.WriteString("⏳ *Status do Grupo:* Aguardando criação\n")
	}
	h.replyMarkdown(ctx, chatID, b.String())
	return nil
}

// advance feeds a plain-text answer into the chat's dialogue.
func (h *Handler) advance(ctx context.Context, msg *telegram.Message, conv Conversation) error {
	chatID := msg.Chat.ID
	answer := strings.TrimSpace(msg.Text)
	if answer == "" {
		h.reply(ctx, chatID, msgEmptyAnswer)
		return nil
	}

	switch conv.State {
	case AwaitingName:
		conv.Name = answer
		conv.State = AwaitingEmail
		h.conversations.Set(chatID, conv)
		h.reply(ctx, chatID, fmt.Sprintf(msgAskEmail, answer))
	case AwaitingEmail:
		conv.Email = answer
		conv.State = AwaitingIntention
		h.conversations.Set(chatID, conv)
		h.reply(ctx, chatID, msgAskIntention)
	case AwaitingIntention:
		conv.Intention = answer
		conv.State = AwaitingInterests
		h.conversations.Set(chatID, conv)
		h.reply(ctx, chatID, msgAskInterests)
	case AwaitingInterests:
		return h.register(ctx, chatID, conv, answer)
	case UpdatingInterests:
		return h.updateInterests(ctx, chatID, answer)
	default:
		h.conversations.Delete(chatID)
	}
	return nil
}

func (h *Handler) register(ctx context.Context, chatID int64, conv Conversation, keywordsText string) error {
	h.conversations.Delete(chatID)
	address := strconv.FormatInt(chatID, 10)

	_, err := h.store.AddSubscriber(ctx, domain.NewSubscriber{
		Address:   address,
		Name:      conv.Name,
		Email:     conv.Email,
		Intention: conv.Intention,
		Keywords:  keywordsText,
	})
	if errors.Is(err, store.ErrDuplicate) {
		h.reply(ctx, chatID, msgAlreadyRegistered)
		return nil
	}
	if err != nil {
		h.reply(ctx, chatID, msgRegistrationFailed)
		return fmt.Errorf("registering subscriber: %w", err)
	}

	h.logger.Info("subscriber registered", "address", address)
	keywords := keywordList(domain.ParseKeywords(keywordsText), "Nenhuma")
	h.reply(ctx, chatID, fmt.Sprintf(msgRegistrationComplete, conv.Name, conv.Email, conv.Intention, keywords))
	return nil
}

func (h *Handler) updateInterests(ctx context.Context, chatID int64, keywordsText string) error {
	h.conversations.Delete(chatID)
	address := strconv.FormatInt(chatID, 10)

	ok, err := h.store.ReplaceKeywords(ctx, address, keywordsText)
	if err != nil {
		return h.fail(ctx, chatID, fmt.Errorf("replacing keywords: %w", err))
	}
	if !ok {
		h.reply(ctx, chatID, msgNotRegistered)
		return nil
	}
	h.reply(ctx, chatID, fmt.Sprintf(msgInterestsUpdated, keywordList(domain.ParseKeywords(keywordsText), "Nenhuma")))
	return nil
}

func (h *Handler) admin(ctx context.Context, msg *telegram.Message, cmd, args string) error {
	chatID := msg.Chat.ID
	userID := chatID
	if msg.From != nil {
		userID = msg.From.ID
	}

	isAdmin, err := h.store.IsAdmin(ctx, strconv.FormatInt(userID, 10))
	if err != nil {
		return h.fail(ctx, chatID, fmt.Errorf("checking admin: %w", err))
	}
	if !isAdmin {
		h.reply(ctx, chatID, msgAdminOnly)
		return nil
	}

	switch cmd {
	case "stats":
		st, err := h.store.Stats(ctx)
		if err != nil {
			h.reply(ctx, chatID, msgStatsFailed)
			return fmt.Errorf("loading stats: %w", err)
		}
		h.replyMarkdown(ctx, chatID, formatStats(st))

	case "backup":
		path, err := h.store.SnapshotBackup(ctx)
		if err != nil {
			h.reply(ctx, chatID, msgBackupFailed)
			return fmt.Errorf("creating backup: %w", err)
		}
		h.reply(ctx, chatID, fmt.Sprintf(msgBackupSuccess, filepath.Base(path)))

	case "addgroup":
		if args == "" {
			h.reply(ctx, chatID, msgUsageAddGroup)
			return nil
		}
		groupID := strings.Fields(args)[0]
		if err := h.groups.ProcessGroup(ctx, groupID, false); err != nil {
			h.logger.Error("failed to add group", "group_id", groupID, "error", err)
			h.reply(ctx, chatID, msgGroupAddFailed)
			return nil
		}
		h.reply(ctx, chatID, fmt.Sprintf(msgGroupAdded, groupID))

	case "removeuser":
		if args == "" {
			h.reply(ctx, chatID, msgUsageRemoveUser)
			return nil
		}
		removed, err := h.store.RemoveSubscriber(ctx, strings.Fields(args)[0])
		if err != nil {
			return h.fail(ctx, chatID, fmt.Errorf("removing subscriber: %w", err))
		}
		if removed {
			h.reply(ctx, chatID, msgUserRemoved)
		} else {
			h.reply(ctx, chatID, msgUserNotFound)
		}

	case "finduser":
		if args == "" {
			h.reply(ctx, chatID, msgUsageFindUser)
			return nil
		}
		subs, err := h.store.ListSubscribers(ctx, true)
		if err != nil {
			return h.fail(ctx, chatID, fmt.Errorf("listing subscribers: %w", err))
		}
		found := FindSubscribers(subs, args)
		if len(found) == 0 {
			h.reply(ctx, chatID, msgNoUsersFound)
			return nil
		}
		h.replyMarkdown(ctx, chatID, formatSubscribers(found))
	}
	return nil
}

// FindSubscribers matches term against name and email (case-insensitive
// substring) or the exact address.
func FindSubscribers(subs []domain.Subscriber, term string) []domain.Subscriber {
	term = strings.ToLower(strings.TrimSpace(term))
	var found []domain.Subscriber
	for _, sub := range subs {
		if strings.Contains(strings.ToLower(sub.Name), term) ||
			strings.Contains(strings.ToLower(sub.Email), term) ||
			sub.Address == term {
			found = append(found, sub)
		}
	}
	return found
}

func formatStats(st *store.Stats) string {
	var b strings.Builder
	b.WriteString("📊 *Estatísticas do Bot*\n\n")
	fmt.Fprintf(&b, "👥 *Usuários:* %d\n", st.Subscribers)
	fmt.Fprintf(&b, "👥 *Usuários Ativos:* %d\n", st.AssignedSubscribers)
	fmt.Fprintf(&b, "👥 *Grupos:* %d\n", st.Groups)
	fmt.Fprintf(&b, "⏳ *Grupos Incompletos:* %d\n", st.IncompleteGroups)
	fmt.Fprintf(&b, "🔑 *Palavras-chave:* %d\n", st.Keywords)
	fmt.Fprintf(&b, "🔑 *Palavras-chave Únicas:* %d\n", st.UniqueKeywords)
	fmt.Fprintf(&b, "🐦 *Tweets Processados:* %d\n", st.ProcessedPosts)
	fmt.Fprintf(&b, "💾 *Tamanho do Banco de Dados:* %.2f MB\n", float64(st.DatabaseBytes)/(1024*1024))
	return b.String()
}

func formatSubscribers(subs []domain.Subscriber) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔍 *Usuários Encontrados (%d)*\n\n", len(subs))
	for i, sub := range subs {
		group := sub.GroupID
		if group == "" {
			group = "Não atribuído"
		}
		fmt.Fprintf(&b, "%d. *%s*\n", i+1, telegram.EscapeMarkdown(sub.Name))
		fmt.Fprintf(&b, "   ID: `%s`\n", sub.Address)
		fmt.Fprintf(&b, "   Email: %s\n", telegram.EscapeMarkdown(sub.Email))
		fmt.Fprintf(&b, "   Interesses: %s\n", telegram.EscapeMarkdown(keywordList(sub.Keywords, "Nenhum")))
		fmt.Fprintf(&b, "   Grupo: %s\n\n", group)
	}
	return b.String()
}

func keywordList(keywords []string, empty string) string {
	if len(keywords) == 0 {
		return empty
	}
	return strings.Join(keywords, ", ")
}

// fail tells the user something went wrong and returns err.
func (h *Handler) fail(ctx context.Context, chatID int64, err error) error {
	h.reply(ctx, chatID, msgError)
	return err
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string) {
	h.send(ctx, chatID, text, telegram.SendOptions{})
}

func (h *Handler) replyMarkdown(ctx context.Context, chatID int64, text string) {
	h.send(ctx, chatID, text, telegram.SendOptions{ParseMode: "Markdown"})
}

func (h *Handler) send(ctx context.Context, chatID int64, text string, opts telegram.SendOptions) {
	if _, err := h.messenger.SendMessage(ctx, strconv.FormatInt(chatID, 10), text, opts); err != nil {
		h.logger.Error("failed to send reply", "chat_id", chatID, "error", err)
	}
}
