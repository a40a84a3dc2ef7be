package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"relaybot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenAI_Generate_RequestShape(t *testing.T) {
	var captured oaiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header: %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(oaiResponse{
			Choices: []oaiChoice{{Message: oaiMessage{Role: "assistant", Content: "4"}}},
		})
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIConfig{APIKey: "test-key", APIBase: srv.URL, Logger: testLogger()})
	text, err := p.Generate(context.Background(), domain.GenerateRequest{
		System: "be helpful",
		History: []domain.Turn{
			{Role: domain.RoleUser, Content: "hi"},
			{Role: domain.RoleAssistant, Content: "hello"},
		},
		Prompt: "What is 2+2?",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != "4" {
		t.Fatalf("expected %q, got %q", "4", text)
	}

	wantRoles := []string{"system", "user", "assistant", "user"}
	if len(captured.Messages) != len(wantRoles) {
		t.Fatalf("expected %d messages, got %d", len(wantRoles), len(captured.Messages))
	}
	for i, role := range wantRoles {
		if captured.Messages[i].Role != role {
			t.Fatalf("message %d: expected role %q, got %q", i, role, captured.Messages[i].Role)
		}
	}
	if captured.Messages[3].Content != "What is 2+2?" {
		t.Fatalf("new turn must come last, got %q", captured.Messages[3].Content)
	}
	if captured.MaxTokens != DefaultMaxTokens {
		t.Fatalf("expected default token budget %d, got %d", DefaultMaxTokens, captured.MaxTokens)
	}
}

func TestOpenAI_Generate_EmptyCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(oaiResponse{Choices: []oaiChoice{{Message: oaiMessage{Content: ""}}}})
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIConfig{APIKey: "k", APIBase: srv.URL, Logger: testLogger()})
	_, err := p.Generate(context.Background(), domain.GenerateRequest{Prompt: "hi"})
	if !errors.Is(err, domain.ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}
}

func TestOpenAI_Generate_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIConfig{APIKey: "k", APIBase: srv.URL, Logger: testLogger()})
	_, err := p.Generate(context.Background(), domain.GenerateRequest{Prompt: "hi"})
	if err == nil {
		t.Fatal("expected error for non-200 response")
	}
	if errors.Is(err, domain.ErrEmptyCompletion) {
		t.Fatal("transport errors must be distinct from empty completions")
	}
}

func TestOpenAI_Unconfigured(t *testing.T) {
	p := NewOpenAI(OpenAIConfig{Logger: testLogger()})
	if p.Available() {
		t.Fatal("adapter without a key must not report available")
	}
	if _, err := p.Generate(context.Background(), domain.GenerateRequest{Prompt: "hi"}); err == nil {
		t.Fatal("generate on an unconfigured adapter must fail")
	}
}
