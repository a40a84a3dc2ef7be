package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"relaybot/internal/audit"
	"relaybot/internal/domain"
	"relaybot/internal/relay"
	"relaybot/internal/store"

	"github.com/bwmarrin/discordgo"
)

const (
	discordMaxMsgLen = 2000

	statusReady    = "👀 Watching for pings"
	statusThinking = "🤔 Thinking..."

	// Discord drops the typing indicator after ~10 seconds, so the
	// repeating task refreshes it a little faster than that.
	typingInterval = 8 * time.Second
)

// Discord is the primary trigger surface: mentions answered as threaded
// replies, plus the ask / default-model / sync slash commands.
type Discord struct {
	token      string
	production bool
	devGuildID string
	adminID    string

	session *discordgo.Session
	store   *store.Store
	orch    *relay.Orchestrator
	audit   *audit.Log
	logger  *slog.Logger

	ctx context.Context
}

type DiscordConfig struct {
	Token              string
	Production         bool
	DevelopmentGuildID string
	AdminUserID        string
	Store              *store.Store
	Orchestrator       *relay.Orchestrator
	Audit              *audit.Log
	Logger             *slog.Logger
}

func NewDiscord(cfg DiscordConfig) *Discord {
	return &Discord{
		token:      cfg.Token,
		production: cfg.Production,
		devGuildID: cfg.DevelopmentGuildID,
		adminID:    cfg.AdminUserID,
		store:      cfg.Store,
		orch:       cfg.Orchestrator,
		audit:      cfg.Audit,
		logger:     cfg.Logger,
	}
}

func (d *Discord) Name() string { return "discord" }

// Start connects to Discord and blocks until ctx is cancelled.
func (d *Discord) Start(ctx context.Context) error {
	d.ctx = ctx

	session, err := discordgo.New("Bot " + d.token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent

	session.AddHandler(d.onReady)
	session.AddHandler(d.onMessageCreate)
	session.AddHandler(d.onInteractionCreate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	d.session = session

	d.registerSlashCommands()

	if !d.production {
		d.logger.Warn("not running in production mode; only the development guild will be answered",
			"guild", d.devGuildID)
	}

	<-ctx.Done()
	d.logger.Info("discord bot disconnecting")
	return session.Close()
}

func (d *Discord) onReady(s *discordgo.Session, _ *discordgo.Ready) {
	d.setStatus(statusReady)
	d.logger.Info("discord bot connected, listening for events",
		"user", s.State.User.Username)
}

func (d *Discord) setStatus(status string) {
	if err := d.session.UpdateCustomStatus(status); err != nil {
		d.logger.Warn("failed to update activity status", "err", err)
	}
}

func (d *Discord) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.Bot {
		return
	}
	if !mentionsUser(m.Mentions, s.State.User.ID) {
		return
	}

	d.logger.Info("discord mention received",
		"message", m.ID,
		"author", m.Author.Username,
		"content_len", len(m.Content),
	)

	if !d.allowedGuild(m.GuildID) {
		d.react(m.ChannelID, m.ID, errorReaction)
		if _, err := s.ChannelMessageSendReply(m.ChannelID, inDevelopmentString, m.Reference()); err != nil {
			d.logger.Error("failed to send in-development reply", "err", err)
		}
		return
	}

	placeholder, err := s.ChannelMessageSendReply(m.ChannelID, randomThinkingPrompt(), m.Reference())
	if err != nil {
		d.logger.Error("failed to send thinking placeholder", "message", m.ID, "err", err)
		return
	}

	req := domain.Request{
		MessageID: m.ID,
		Content:   stripMention(m.Content, s.State.User.ID),
		SenderID:  m.Author.ID,
		Channel:   "discord",
		Timestamp: time.Now(),
	}
	if m.Type == discordgo.MessageTypeReply && m.MessageReference != nil {
		req.ReplyToID = m.MessageReference.MessageID
	}

	res, latency := d.generate(m.ChannelID, req)
	if res == nil {
		d.editTo(m.ChannelID, placeholder.ID, textGenerationErrorString)
		d.react(m.ChannelID, m.ID, errorReaction)
		return
	}

	text := relay.Truncate(res.Text, discordMaxMsgLen)
	if _, err := s.ChannelMessageEdit(m.ChannelID, placeholder.ID, text); err != nil {
		d.logger.Error("failed to edit placeholder with reply", "err", err)
		d.editTo(m.ChannelID, placeholder.ID, textGenerationErrorString)
		d.react(m.ChannelID, m.ID, errorReaction)
		return
	}
	d.react(m.ChannelID, m.ID, successReaction)

	d.persistExchange(req, placeholder.ID, text, res, latency)

	d.logger.Info("replied to mention",
		"message", m.ID,
		"platform", string(res.Platform),
		"continued", res.Continued,
	)
}

// generate runs the orchestrator with the thinking status and a
// repeating typing indicator active for the duration of the call. The
// indicator task is cancelled in all outcomes so no timer leaks past
// the call. A nil result means either "no provider / no text" or a
// propagated transport error; both degrade the same way for the user.
func (d *Discord) generate(channelID string, req domain.Request) (*relay.Result, int64) {
	d.setStatus(statusThinking)
	defer d.setStatus(statusReady)

	typingCtx, cancelTyping := context.WithCancel(d.ctx)
	defer cancelTyping()
	go d.keepTyping(typingCtx, channelID)

	start := time.Now()
	res, err := d.orch.Respond(d.ctx, req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		d.logger.Error("response generation failed", "message", req.MessageID, "err", err)
		return nil, latency
	}
	if res == nil {
		d.logger.Warn("no response generated", "message", req.MessageID)
		return nil, latency
	}
	return res, latency
}

func (d *Discord) keepTyping(ctx context.Context, channelID string) {
	if err := d.session.ChannelTyping(channelID); err != nil {
		d.logger.Debug("typing indicator failed", "err", err)
	}
	ticker := time.NewTicker(typingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.session.ChannelTyping(channelID); err != nil {
				d.logger.Debug("typing indicator failed", "err", err)
			}
		}
	}
}

// persistExchange writes the completed round into the conversation
// store and flushes. Persistence happens only after the reply was
// delivered, so a failed reply never mutates state.
func (d *Discord) persistExchange(req domain.Request, assistantID, text string, res *relay.Result, latencyMs int64) {
	user := domain.StoredMessage{ID: req.MessageID, Content: req.Content, Role: domain.RoleUser}
	assistant := domain.StoredMessage{ID: assistantID, Content: text, Role: domain.RoleAssistant}
	d.store.AppendExchange(req.ReplyToID, user, assistant, res.Platform)
	if err := d.store.Flush(); err != nil {
		d.logger.Error("store flush failed, exchange not persisted", "err", err)
	}

	d.audit.Record(d.ctx, audit.Entry{
		Channel:            req.Channel,
		UserMessageID:      req.MessageID,
		AssistantMessageID: assistantID,
		Platform:           string(res.Platform),
		LatencyMs:          latencyMs,
		ReceivedAt:         req.Timestamp,
	})
}

func (d *Discord) allowedGuild(guildID string) bool {
	if d.production {
		return true
	}
	return guildID == "" || guildID == d.devGuildID
}

func (d *Discord) react(channelID, messageID, emoji string) {
	if err := d.session.MessageReactionAdd(channelID, messageID, emoji); err != nil {
		d.logger.Debug("reaction failed", "emoji", emoji, "err", err)
	}
}

func (d *Discord) editTo(channelID, messageID, content string) {
	if _, err := d.session.ChannelMessageEdit(channelID, messageID, content); err != nil {
		d.logger.Error("failed to edit message", "message", messageID, "err", err)
	}
}

func mentionsUser(mentions []*discordgo.User, userID string) bool {
	for _, u := range mentions {
		if u.ID == userID {
			return true
		}
	}
	return false
}

// stripMention removes the bot's own mention tokens (<@id> and <@!id>)
// from the message body so the provider sees only the prompt.
func stripMention(content, userID string) string {
	content = strings.ReplaceAll(content, "<@"+userID+">", "")
	content = strings.ReplaceAll(content, "<@!"+userID+">", "")
	return strings.TrimSpace(content)
}
