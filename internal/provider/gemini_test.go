package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"relaybot/internal/domain"
)

func TestGemini_Generate_SeededSession(t *testing.T) {
	var captured geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-2.5-pro:generateContent" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "g-key" {
			t.Errorf("unexpected key header: %q", got)
		}
		if r.URL.RawQuery != "" {
			t.Errorf("credential must not ride in the URL, got query %q", r.URL.RawQuery)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(geminiResponse{
			Candidates: []geminiCandidate{{Content: geminiContent{
				Role:  "model",
				Parts: []geminiPart{{Text: "the answer "}, {Text: "is 7"}},
			}}},
		})
	}))
	defer srv.Close()

	p := NewGemini(GeminiConfig{APIKey: "g-key", APIBase: srv.URL, Logger: testLogger()})
	text, err := p.Generate(context.Background(), domain.GenerateRequest{
		System: "be helpful",
		History: []domain.Turn{
			{Role: domain.RoleUser, Content: "What is 2+2?"},
			{Role: domain.RoleAssistant, Content: "4"},
		},
		Prompt: "And 3 more?",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != "the answer is 7" {
		t.Fatalf("parts must be joined, got %q", text)
	}

	// System instruction seeded as a user/model pair, then history with
	// assistant mapped to "model", then the new turn.
	wantRoles := []string{"user", "model", "user", "model", "user"}
	if len(captured.Contents) != len(wantRoles) {
		t.Fatalf("expected %d contents, got %d", len(wantRoles), len(captured.Contents))
	}
	for i, role := range wantRoles {
		if captured.Contents[i].Role != role {
			t.Fatalf("content %d: expected role %q, got %q", i, role, captured.Contents[i].Role)
		}
	}
	if captured.Contents[0].Parts[0].Text != "be helpful" {
		t.Fatalf("system instruction must lead the session, got %q", captured.Contents[0].Parts[0].Text)
	}
	if captured.Contents[4].Parts[0].Text != "And 3 more?" {
		t.Fatalf("new turn must come last, got %q", captured.Contents[4].Parts[0].Text)
	}
	if captured.GenerationConfig.MaxOutputTokens != DefaultMaxTokens {
		t.Fatalf("expected token budget %d, got %d", DefaultMaxTokens, captured.GenerationConfig.MaxOutputTokens)
	}
}

func TestGemini_Generate_NoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(geminiResponse{})
	}))
	defer srv.Close()

	p := NewGemini(GeminiConfig{APIKey: "k", APIBase: srv.URL, Logger: testLogger()})
	_, err := p.Generate(context.Background(), domain.GenerateRequest{Prompt: "hi"})
	if !errors.Is(err, domain.ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}
}

func TestMapGeminiRole(t *testing.T) {
	if got := mapGeminiRole(domain.RoleAssistant); got != "model" {
		t.Fatalf("assistant must map to model, got %q", got)
	}
	if got := mapGeminiRole(domain.RoleUser); got != "user" {
		t.Fatalf("user must map to user, got %q", got)
	}
}

func TestRegistry_SkipsUnavailable(t *testing.T) {
	r := NewRegistry(RegistryConfig{OpenAIKey: "k", Logger: testLogger()})

	if _, ok := r.Get(domain.PlatformOpenAI); !ok {
		t.Fatal("configured openai adapter must resolve")
	}
	if _, ok := r.Get(domain.PlatformGoogle); ok {
		t.Fatal("unconfigured google adapter must not resolve")
	}

	avail := r.Available()
	if len(avail) != 1 || avail[0] != domain.PlatformOpenAI {
		t.Fatalf("expected only openai available, got %v", avail)
	}
}
