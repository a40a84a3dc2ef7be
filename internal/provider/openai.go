package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"relaybot/internal/domain"
)

const (
	openaiDefaultAPIBase = "https://api.openai.com/v1"
	openaiDefaultModel   = "gpt-4.1"

	// 410 output tokens render to a bit under 2000 characters at the
	// usual token/char ratio. Soft bound; callers still truncate.
	DefaultMaxTokens = 410

	defaultHTTPTimeout = 120 * time.Second
)

// OpenAI implements domain.Provider against the chat-completions API.
// The request carries a flat ordered turn list: system instruction,
// prior history, then the new user turn.
type OpenAI struct {
	apiKey  string
	apiBase string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

type OpenAIConfig struct {
	APIKey  string
	APIBase string
	Model   string
	Logger  *slog.Logger
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.APIBase == "" {
		cfg.APIBase = openaiDefaultAPIBase
	}
	if cfg.Model == "" {
		cfg.Model = openaiDefaultModel
	}
	return &OpenAI{
		apiKey:  cfg.APIKey,
		apiBase: cfg.APIBase,
		model:   cfg.Model,
		client:  &http.Client{Timeout: defaultHTTPTimeout},
		logger:  cfg.Logger,
	}
}

func (o *OpenAI) Platform() domain.Platform { return domain.PlatformOpenAI }
func (o *OpenAI) Available() bool           { return o.apiKey != "" }

type oaiRequest struct {
	Model     string       `json:"model"`
	Messages  []oaiMessage `json:"messages"`
	MaxTokens int          `json:"max_tokens,omitempty"`
}

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiResponse struct {
	Choices []oaiChoice `json:"choices"`
}

type oaiChoice struct {
	Message      oaiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

// mapRole translates the generic role vocabulary to OpenAI's. The two
// vocabularies happen to coincide; keeping the mapping explicit stops a
// raw string from crossing the provider boundary.
func mapRole(r domain.Role) string {
	switch r {
	case domain.RoleAssistant:
		return "assistant"
	default:
		return "user"
	}
}

func (o *OpenAI) Generate(ctx context.Context, req domain.GenerateRequest) (string, error) {
	if !o.Available() {
		return "", fmt.Errorf("openai: no API key configured")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	msgs := make([]oaiMessage, 0, len(req.History)+2)
	msgs = append(msgs, oaiMessage{Role: "system", Content: req.System})
	for _, t := range req.History {
		msgs = append(msgs, oaiMessage{Role: mapRole(t.Role), Content: t.Content})
	}
	msgs = append(msgs, oaiMessage{Role: "user", Content: req.Prompt})

	body := oaiRequest{
		Model:     o.model,
		Messages:  msgs,
		MaxTokens: maxTokens,
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.apiBase+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("openai %d: %s", resp.StatusCode, string(respBody))
	}

	var oaiResp oaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaiResp); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}

	if len(oaiResp.Choices) == 0 || oaiResp.Choices[0].Message.Content == "" {
		return "", domain.ErrEmptyCompletion
	}
	return oaiResp.Choices[0].Message.Content, nil
}
