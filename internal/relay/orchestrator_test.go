package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"relaybot/internal/domain"
)

type fakeStore struct {
	conversations []domain.Conversation
	defaultP      domain.Platform
	reloads       int
}

func (f *fakeStore) Reload() error { f.reloads++; return nil }

func (f *fakeStore) FindConversation(id string) (domain.Conversation, bool) {
	for _, c := range f.conversations {
		if c.Contains(id) {
			return c, true
		}
	}
	return domain.Conversation{}, false
}

func (f *fakeStore) DefaultPlatform() domain.Platform { return f.defaultP }

type fakeProvider struct {
	platform  domain.Platform
	available bool
	reply     string
	err       error
	lastReq   domain.GenerateRequest
	calls     int
}

func (f *fakeProvider) Platform() domain.Platform { return f.platform }
func (f *fakeProvider) Available() bool           { return f.available }

func (f *fakeProvider) Generate(_ context.Context, req domain.GenerateRequest) (string, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeResolver map[domain.Platform]*fakeProvider

func (f fakeResolver) Get(p domain.Platform) (domain.Provider, bool) {
	prov, ok := f[p]
	if !ok || !prov.available {
		return nil, false
	}
	return prov, true
}

type fakePersonas map[string]string

func (f fakePersonas) For(userID string) string { return f[userID] }

func newOrchestrator(store *fakeStore, providers fakeResolver, personas PersonaSource) *Orchestrator {
	return New(Config{
		Store:     store,
		Providers: providers,
		Personas:  personas,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestRespond_NewConversation(t *testing.T) {
	store := &fakeStore{defaultP: domain.PlatformOpenAI}
	openai := &fakeProvider{platform: domain.PlatformOpenAI, available: true, reply: "4"}
	o := newOrchestrator(store, fakeResolver{domain.PlatformOpenAI: openai}, nil)

	res, err := o.Respond(context.Background(), domain.Request{
		MessageID: "m1",
		Content:   "What is 2+2?",
		SenderID:  "u1",
	})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if res == nil || res.Text != "4" || res.Platform != domain.PlatformOpenAI {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Continued {
		t.Fatal("non-reply must not continue a conversation")
	}
	if len(openai.lastReq.History) != 0 {
		t.Fatalf("non-reply must carry no history, got %d turns", len(openai.lastReq.History))
	}
	if openai.lastReq.Prompt != "What is 2+2?" {
		t.Fatalf("wrong prompt: %q", openai.lastReq.Prompt)
	}
	if store.reloads != 1 {
		t.Fatalf("store must be reloaded before handling, reloads=%d", store.reloads)
	}
}

func TestRespond_ReplyContinuesConversation(t *testing.T) {
	store := &fakeStore{
		defaultP: domain.PlatformOpenAI,
		conversations: []domain.Conversation{{
			Messages: []domain.StoredMessage{
				{ID: "m1", Content: "What is 2+2?", Role: domain.RoleUser},
				{ID: "a1", Content: "4", Role: domain.RoleAssistant},
			},
		}},
	}
	openai := &fakeProvider{platform: domain.PlatformOpenAI, available: true, reply: "7"}
	o := newOrchestrator(store, fakeResolver{domain.PlatformOpenAI: openai}, nil)

	res, err := o.Respond(context.Background(), domain.Request{
		MessageID: "m2",
		Content:   "And 3 more?",
		ReplyToID: "a1",
		SenderID:  "u1",
	})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if res == nil || !res.Continued || res.ReplyToID != "a1" {
		t.Fatalf("expected continuation of existing thread, got %+v", res)
	}

	history := openai.lastReq.History
	if len(history) != 2 {
		t.Fatalf("expected full prior history, got %d turns", len(history))
	}
	if history[0].Content != "What is 2+2?" || history[1].Content != "4" {
		t.Fatalf("history out of order: %+v", history)
	}
	if history[0].Role != domain.RoleUser || history[1].Role != domain.RoleAssistant {
		t.Fatalf("history roles wrong: %+v", history)
	}
}

func TestRespond_ReplyToUnknownMessage(t *testing.T) {
	store := &fakeStore{defaultP: domain.PlatformOpenAI}
	openai := &fakeProvider{platform: domain.PlatformOpenAI, available: true, reply: "hi"}
	o := newOrchestrator(store, fakeResolver{domain.PlatformOpenAI: openai}, nil)

	res, err := o.Respond(context.Background(), domain.Request{
		MessageID: "m2", Content: "hello?", ReplyToID: "ghost",
	})
	if err != nil || res == nil {
		t.Fatalf("respond: res=%v err=%v", res, err)
	}
	if res.Continued {
		t.Fatal("reply to an unknown message must behave like a fresh conversation")
	}
	if len(openai.lastReq.History) != 0 {
		t.Fatal("no history should be attached for an unknown parent")
	}
}

func TestResolveProvider_Order(t *testing.T) {
	sticky := domain.Conversation{
		Messages: []domain.StoredMessage{{ID: "a1", Role: domain.RoleAssistant, Content: "x"}},
		Platform: domain.PlatformGoogle,
	}

	cases := []struct {
		name     string
		conv     []domain.Conversation
		replyTo  string
		override domain.Platform
		openaiOK bool
		googleOK bool
		want     domain.Platform
		wantNone bool
	}{
		{name: "sticky wins over override and default", conv: []domain.Conversation{sticky}, replyTo: "a1", override: domain.PlatformOpenAI, openaiOK: true, googleOK: true, want: domain.PlatformGoogle},
		{name: "override wins over default", override: domain.PlatformGoogle, openaiOK: true, googleOK: true, want: domain.PlatformGoogle},
		{name: "default when nothing else", openaiOK: true, googleOK: true, want: domain.PlatformOpenAI},
		{name: "unavailable sticky falls through to override", conv: []domain.Conversation{sticky}, replyTo: "a1", override: domain.PlatformOpenAI, openaiOK: true, want: domain.PlatformOpenAI},
		{name: "unavailable override falls through to default", override: domain.PlatformGoogle, openaiOK: true, want: domain.PlatformOpenAI},
		{name: "nothing available", override: domain.PlatformGoogle, wantNone: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeStore{defaultP: domain.PlatformOpenAI, conversations: tc.conv}
			openai := &fakeProvider{platform: domain.PlatformOpenAI, available: tc.openaiOK, reply: "a"}
			google := &fakeProvider{platform: domain.PlatformGoogle, available: tc.googleOK, reply: "b"}
			o := newOrchestrator(store, fakeResolver{
				domain.PlatformOpenAI: openai,
				domain.PlatformGoogle: google,
			}, nil)

			res, err := o.Respond(context.Background(), domain.Request{
				MessageID: "m", Content: "q", ReplyToID: tc.replyTo, Platform: tc.override,
			})
			if err != nil {
				t.Fatalf("respond: %v", err)
			}
			if tc.wantNone {
				if res != nil {
					t.Fatalf("expected empty result with no provider, got %+v", res)
				}
				return
			}
			if res == nil {
				t.Fatal("expected a result")
			}
			if res.Platform != tc.want {
				t.Fatalf("expected platform %q, got %q", tc.want, res.Platform)
			}
		})
	}
}

func TestRespond_EmptyCompletion(t *testing.T) {
	store := &fakeStore{defaultP: domain.PlatformOpenAI}
	openai := &fakeProvider{platform: domain.PlatformOpenAI, available: true, err: domain.ErrEmptyCompletion}
	o := newOrchestrator(store, fakeResolver{domain.PlatformOpenAI: openai}, nil)

	res, err := o.Respond(context.Background(), domain.Request{MessageID: "m", Content: "q"})
	if err != nil {
		t.Fatalf("empty completion must not surface as an error: %v", err)
	}
	if res != nil {
		t.Fatalf("empty completion must yield a nil result, got %+v", res)
	}
}

func TestRespond_TransportErrorPropagates(t *testing.T) {
	boom := errors.New("connection reset")
	store := &fakeStore{defaultP: domain.PlatformOpenAI}
	openai := &fakeProvider{platform: domain.PlatformOpenAI, available: true, err: boom}
	o := newOrchestrator(store, fakeResolver{domain.PlatformOpenAI: openai}, nil)

	_, err := o.Respond(context.Background(), domain.Request{MessageID: "m", Content: "q"})
	if !errors.Is(err, boom) {
		t.Fatalf("transport error must propagate unmodified, got %v", err)
	}
}

func TestRespond_PersonaAugmentsSystemPrompt(t *testing.T) {
	store := &fakeStore{defaultP: domain.PlatformOpenAI}
	openai := &fakeProvider{platform: domain.PlatformOpenAI, available: true, reply: "ok"}
	personas := fakePersonas{"u42": "This student prefers worked examples."}
	o := newOrchestrator(store, fakeResolver{domain.PlatformOpenAI: openai}, personas)

	if _, err := o.Respond(context.Background(), domain.Request{MessageID: "m", Content: "q", SenderID: "u42"}); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(openai.lastReq.System, "This student prefers worked examples.") {
		t.Fatalf("persona addition missing from system prompt: %q", openai.lastReq.System)
	}
	if !strings.HasPrefix(openai.lastReq.System, DefaultSystemPrompt) {
		t.Fatal("base prompt must lead the system instruction")
	}

	if _, err := o.Respond(context.Background(), domain.Request{MessageID: "m2", Content: "q", SenderID: "unknown"}); err != nil {
		t.Fatal(err)
	}
	if openai.lastReq.System != DefaultSystemPrompt {
		t.Fatalf("unknown sender must get the bare base prompt, got %q", openai.lastReq.System)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", MaxReplyLen); got != "short" {
		t.Fatalf("short text must pass through, got %q", got)
	}

	long := strings.Repeat("x", MaxReplyLen+500)
	if got := Truncate(long, MaxReplyLen); len(got) != MaxReplyLen {
		t.Fatalf("expected %d bytes, got %d", MaxReplyLen, len(got))
	}

	// A multibyte rune straddling the limit must not be split.
	runes := strings.Repeat("é", 1200) // 2 bytes each, 2400 total
	got := Truncate(runes, MaxReplyLen)
	if len(got) > MaxReplyLen {
		t.Fatalf("truncated text exceeds limit: %d", len(got))
	}
	if !strings.HasSuffix(got, "é") {
		t.Fatal("truncation split a UTF-8 sequence")
	}
}
