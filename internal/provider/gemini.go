package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"relaybot/internal/domain"
)

const (
	geminiDefaultAPIBase = "https://generativelanguage.googleapis.com/v1beta"
	geminiDefaultModel   = "gemini-2.5-pro"

	// The model acknowledges the seeded system instruction with this
	// turn, mirroring the chat-session shape the backend expects.
	geminiAckText = "Understood. I will abide by the prompt given to me."
)

// Gemini implements domain.Provider against the generateContent API.
// Unlike the turn-list shape, the system instruction is seeded as a
// leading user/model exchange pair, followed by history, followed by
// the new user turn.
type Gemini struct {
	apiKey  string
	apiBase string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

type GeminiConfig struct {
	APIKey  string
	APIBase string
	Model   string
	Logger  *slog.Logger
}

func NewGemini(cfg GeminiConfig) *Gemini {
	if cfg.APIBase == "" {
		cfg.APIBase = geminiDefaultAPIBase
	}
	if cfg.Model == "" {
		cfg.Model = geminiDefaultModel
	}
	return &Gemini{
		apiKey:  cfg.APIKey,
		apiBase: cfg.APIBase,
		model:   cfg.Model,
		client:  &http.Client{Timeout: defaultHTTPTimeout},
		logger:  cfg.Logger,
	}
}

func (g *Gemini) Platform() domain.Platform { return domain.PlatformGoogle }
func (g *Gemini) Available() bool           { return g.apiKey != "" }

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig geminiGenConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

// mapGeminiRole translates the generic vocabulary to Gemini's, which
// uses "model" for assistant turns.
func mapGeminiRole(r domain.Role) string {
	switch r {
	case domain.RoleAssistant:
		return "model"
	default:
		return "user"
	}
}

func (g *Gemini) Generate(ctx context.Context, req domain.GenerateRequest) (string, error) {
	if !g.Available() {
		return "", fmt.Errorf("gemini: no API key configured")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	contents := make([]geminiContent, 0, len(req.History)+3)
	contents = append(contents,
		geminiContent{Role: "user", Parts: []geminiPart{{Text: req.System}}},
		geminiContent{Role: "model", Parts: []geminiPart{{Text: geminiAckText}}},
	)
	for _, t := range req.History {
		contents = append(contents, geminiContent{
			Role:  mapGeminiRole(t.Role),
			Parts: []geminiPart{{Text: t.Content}},
		})
	}
	contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}})

	body := geminiRequest{
		Contents:         contents,
		GenerationConfig: geminiGenConfig{MaxOutputTokens: maxTokens},
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	// The key travels in a header, never the URL: a wrapped url.Error
	// reproduces the full request URL in logs.
	url := fmt.Sprintf("%s/models/%s:generateContent", g.apiBase, g.model)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("gemini %d: %s", resp.StatusCode, string(respBody))
	}

	var geminiResp geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&geminiResp); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}

	if len(geminiResp.Candidates) == 0 {
		return "", domain.ErrEmptyCompletion
	}

	var textParts []string
	for _, part := range geminiResp.Candidates[0].Content.Parts {
		if part.Text != "" {
			textParts = append(textParts, part.Text)
		}
	}
	if len(textParts) == 0 {
		return "", domain.ErrEmptyCompletion
	}
	return strings.Join(textParts, ""), nil
}
