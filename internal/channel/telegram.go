package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"relaybot/internal/audit"
	"relaybot/internal/domain"
	"relaybot/internal/relay"
	"relaybot/internal/store"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const telegramMaxMsgLen = 4000

// Telegram is the secondary trigger surface. Private chats answer every
// message; group chats only answer @mentions of the bot and replies to
// the bot's own messages.
type Telegram struct {
	token   string
	adminID int64

	bot    *tgbotapi.BotAPI
	store  *store.Store
	orch   *relay.Orchestrator
	audit  *audit.Log
	logger *slog.Logger

	ctx context.Context
}

type TelegramConfig struct {
	Token        string
	AdminUserID  string
	Store        *store.Store
	Orchestrator *relay.Orchestrator
	Audit        *audit.Log
	Logger       *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	adminID, _ := strconv.ParseInt(strings.TrimSpace(cfg.AdminUserID), 10, 64)
	return &Telegram{
		token:   cfg.Token,
		adminID: adminID,
		store:   cfg.Store,
		orch:    cfg.Orchestrator,
		audit:   cfg.Audit,
		logger:  cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Start connects to Telegram and polls for updates until ctx is
// cancelled.
func (t *Telegram) Start(ctx context.Context) error {
	t.ctx = ctx

	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(update)
		}
	}
}

func (t *Telegram) handleUpdate(update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil || msg.From.IsBot {
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if msg.IsCommand() {
		t.handleCommand(msg)
		return
	}

	if !t.addressed(msg) {
		return
	}

	t.logger.Info("telegram message received",
		"user_id", msg.From.ID,
		"chat_id", msg.Chat.ID,
		"text_len", len(text),
	)

	req := domain.Request{
		MessageID: telegramMessageID(msg.Chat.ID, msg.MessageID),
		Content:   t.stripBotMention(text),
		SenderID:  strconv.FormatInt(msg.From.ID, 10),
		Channel:   "telegram",
		Timestamp: time.Unix(int64(msg.Date), 0),
	}
	if msg.ReplyToMessage != nil {
		req.ReplyToID = telegramMessageID(msg.Chat.ID, msg.ReplyToMessage.MessageID)
	}

	typingCtx, cancelTyping := context.WithCancel(t.ctx)
	go t.keepTyping(typingCtx, msg.Chat.ID)

	start := time.Now()
	res, err := t.orch.Respond(t.ctx, req)
	latency := time.Since(start).Milliseconds()
	cancelTyping()

	if err != nil {
		t.logger.Error("response generation failed", "message", req.MessageID, "err", err)
		t.reply(msg.Chat.ID, msg.MessageID, textGenerationErrorString)
		return
	}
	if res == nil {
		t.logger.Warn("no response generated", "message", req.MessageID)
		t.reply(msg.Chat.ID, msg.MessageID, textGenerationErrorString)
		return
	}

	sentID, ok := t.replyChunked(msg.Chat.ID, msg.MessageID, res.Text)
	if !ok {
		return
	}

	user := domain.StoredMessage{ID: req.MessageID, Content: req.Content, Role: domain.RoleUser}
	assistant := domain.StoredMessage{
		ID:      telegramMessageID(msg.Chat.ID, sentID),
		Content: res.Text,
		Role:    domain.RoleAssistant,
	}
	t.store.AppendExchange(req.ReplyToID, user, assistant, res.Platform)
	if err := t.store.Flush(); err != nil {
		t.logger.Error("store flush failed, exchange not persisted", "err", err)
	}

	t.audit.Record(t.ctx, audit.Entry{
		Channel:            req.Channel,
		UserMessageID:      user.ID,
		AssistantMessageID: assistant.ID,
		Platform:           string(res.Platform),
		LatencyMs:          latency,
		ReceivedAt:         req.Timestamp,
	})

	t.logger.Info("replied to telegram message",
		"message", req.MessageID,
		"platform", string(res.Platform),
		"continued", res.Continued,
	)
}

// addressed reports whether the bot should answer this message.
func (t *Telegram) addressed(msg *tgbotapi.Message) bool {
	if msg.Chat.IsPrivate() {
		return true
	}
	if strings.Contains(msg.Text, "@"+t.bot.Self.UserName) {
		return true
	}
	return msg.ReplyToMessage != nil &&
		msg.ReplyToMessage.From != nil &&
		msg.ReplyToMessage.From.ID == t.bot.Self.ID
}

func (t *Telegram) stripBotMention(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "@"+t.bot.Self.UserName, ""))
}

func (t *Telegram) handleCommand(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start", "help":
		t.send(chatID, "Hi! Mention me or reply to one of my messages and I'll answer.\n\nCommands:\n/status - bot status\n/model <openai|google> - set the default model (admin)")
	case "status":
		t.send(chatID, fmt.Sprintf("Online as @%s. Default model: %s. Conversations: %d.",
			t.bot.Self.UserName, t.store.DefaultPlatform(), t.store.ConversationCount()))
	case "model":
		t.handleModelCommand(msg)
	}
}

func (t *Telegram) handleModelCommand(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if t.adminID == 0 || msg.From.ID != t.adminID {
		t.send(chatID, permissionErrorString)
		return
	}

	arg := strings.TrimSpace(msg.CommandArguments())
	previous, err := t.store.SetDefaultPlatform(domain.Platform(arg))
	if err != nil {
		t.send(chatID, fmt.Sprintf("Unknown model %q. Valid models: %s.", arg,
			strings.Join(platformNames(), ", ")))
		return
	}
	if err := t.store.Flush(); err != nil {
		t.logger.Error("store flush failed after default-model change", "err", err)
	}
	t.logger.Info("default model changed",
		"from", string(previous),
		"to", arg,
		"by", msg.From.ID,
	)
	t.send(chatID, fmt.Sprintf("Gotcha, the default model's set to %s from %s.", arg, previous))
}

func (t *Telegram) keepTyping(ctx context.Context, chatID int64) {
	t.sendTyping(chatID)
	ticker := time.NewTicker(4 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sendTyping(chatID)
		}
	}
}

func (t *Telegram) sendTyping(chatID int64) {
	if _, err := t.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		t.logger.Debug("typing indicator failed", "err", err)
	}
}

// replyChunked sends content as one or more reply messages, splitting
// on the Telegram length limit. The returned ID is the first chunk's
// message ID, which is the one follow-up replies will reference.
func (t *Telegram) replyChunked(chatID int64, replyTo int, content string) (int, bool) {
	firstID := 0
	for _, chunk := range splitMessage(content, telegramMaxMsgLen) {
		out := tgbotapi.NewMessage(chatID, chunk)
		if firstID == 0 {
			out.ReplyToMessageID = replyTo
		}
		sent, err := t.bot.Send(out)
		if err != nil {
			t.logger.Error("failed to send telegram reply", "err", err)
			return 0, false
		}
		if firstID == 0 {
			firstID = sent.MessageID
		}
	}
	return firstID, firstID != 0
}

func (t *Telegram) reply(chatID int64, replyTo int, content string) {
	out := tgbotapi.NewMessage(chatID, content)
	out.ReplyToMessageID = replyTo
	if _, err := t.bot.Send(out); err != nil {
		t.logger.Error("failed to send telegram reply", "err", err)
	}
}

func (t *Telegram) send(chatID int64, content string) {
	if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, content)); err != nil {
		t.logger.Error("failed to send telegram message", "err", err)
	}
}

// telegramMessageID builds a store ID that is unique across chats.
// Telegram message IDs are only unique within a single chat.
func telegramMessageID(chatID int64, messageID int) string {
	return fmt.Sprintf("%d:%d", chatID, messageID)
}

func platformNames() []string {
	names := make([]string, 0, len(domain.Platforms()))
	for _, p := range domain.Platforms() {
		names = append(names, string(p))
	}
	return names
}
