// Package relay contains the response orchestrator: it resolves which
// conversation an inbound request continues, which provider answers it,
// builds the provider request, and returns the generated text. It never
// writes conversation state; persisting a successful exchange is the
// caller's job, which keeps "generate" and "persist" separately
// retriable.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"unicode/utf8"

	"relaybot/internal/domain"
)

// MaxReplyLen is the transport hard limit callers truncate to.
const MaxReplyLen = 2000

// DefaultSystemPrompt is the base instruction sent with every request.
const DefaultSystemPrompt = "Your main goal is to help a group of students in a chat server to better understand content they're learning in school. When asked about something, give a concise yet specific answer to the prompt. Approach the problem with a personable and friendly tone, encouraging learning at every step of the way. Try to sound like how a teenager would interact, being informal, but do not overdo it. Because the medium you are communicating with them through is text, keep the content succinct and short for text. You may see pings in messages (a set of integers surrounded by <>) - these are mentions to other users in the server. You can ignore these. You may reply with pings where appropriate."

// ConversationReader is the read-only view of the conversation store
// the orchestrator needs.
type ConversationReader interface {
	Reload() error
	FindConversation(messageID string) (domain.Conversation, bool)
	DefaultPlatform() domain.Platform
}

// ProviderResolver resolves a platform to a callable adapter.
type ProviderResolver interface {
	Get(p domain.Platform) (domain.Provider, bool)
}

// PersonaSource supplies per-user system-prompt additions.
type PersonaSource interface {
	For(userID string) string
}

// Result is a successful orchestration outcome: the generated text and
// the platform that served it, so the caller can persist the exchange.
type Result struct {
	Text      string
	Platform  domain.Platform
	Continued bool   // an existing conversation was found for the reply
	ReplyToID string // the id that resolved the conversation, if any
}

// Orchestrator glues store, providers, and personas together.
type Orchestrator struct {
	store     ConversationReader
	providers ProviderResolver
	personas  PersonaSource
	prompt    string
	logger    *slog.Logger
}

// Config holds the orchestrator's dependencies, all constructed once
// at process start and injected by reference.
type Config struct {
	Store        ConversationReader
	Providers    ProviderResolver
	Personas     PersonaSource
	SystemPrompt string
	Logger       *slog.Logger
}

func New(cfg Config) *Orchestrator {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	return &Orchestrator{
		store:     cfg.Store,
		providers: cfg.Providers,
		personas:  cfg.Personas,
		prompt:    cfg.SystemPrompt,
		logger:    cfg.Logger,
	}
}

// Respond generates a reply for req.
//
// A nil Result with a nil error means no usable reply could be made
// without anything going wrong at the transport level: either no
// configured provider matched the resolution order, or the resolved
// provider returned no text. Transport errors propagate unmodified.
func (o *Orchestrator) Respond(ctx context.Context, req domain.Request) (*Result, error) {
	if err := o.store.Reload(); err != nil {
		o.logger.Warn("store reload failed, answering from in-memory state", "err", err)
	}

	var conv *domain.Conversation
	if req.IsReply() {
		if found, ok := o.store.FindConversation(req.ReplyToID); ok {
			conv = &found
		}
	}

	prov, ok := o.resolveProvider(conv, req.Platform)
	if !ok {
		o.logger.Warn("no available provider for request",
			"override", string(req.Platform),
			"default", string(o.store.DefaultPlatform()),
		)
		return nil, nil
	}

	var history []domain.Turn
	if conv != nil {
		history = conv.History()
	}

	system := o.prompt
	if o.personas != nil {
		if extra := o.personas.For(req.SenderID); extra != "" {
			system = system + "\n\n" + extra
		}
	}

	text, err := prov.Generate(ctx, domain.GenerateRequest{
		System:  system,
		History: history,
		Prompt:  req.Content,
	})
	if errors.Is(err, domain.ErrEmptyCompletion) {
		o.logger.Warn("provider produced no text",
			"platform", string(prov.Platform()),
			"message", req.MessageID,
		)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	res := &Result{Text: text, Platform: prov.Platform()}
	if conv != nil {
		res.Continued = true
		res.ReplyToID = req.ReplyToID
	}
	return res, nil
}

// resolveProvider applies the resolution order: the conversation's
// sticky platform, then the caller override, then the store default.
// A candidate whose adapter is unconfigured falls through to the next.
func (o *Orchestrator) resolveProvider(conv *domain.Conversation, override domain.Platform) (domain.Provider, bool) {
	candidates := make([]domain.Platform, 0, 3)
	if conv != nil && conv.Platform != "" {
		candidates = append(candidates, conv.Platform)
	}
	if override != "" {
		candidates = append(candidates, override)
	}
	candidates = append(candidates, o.store.DefaultPlatform())

	for _, c := range candidates {
		if prov, ok := o.providers.Get(c); ok {
			return prov, true
		}
	}
	return nil, false
}

// Truncate caps s at limit bytes without splitting a UTF-8 sequence.
// Callers apply it to every outbound reply as the hard safety net under
// the providers' approximate token budget.
func Truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
