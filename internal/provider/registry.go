package provider

import (
	"log/slog"

	"relaybot/internal/domain"
)

// Registry holds the adapter instances, constructed once at process
// start. Adapters without a credential are still registered so status
// reporting can see them, but Get skips them.
type Registry struct {
	providers map[domain.Platform]domain.Provider
	logger    *slog.Logger
}

// RegistryConfig carries the per-provider credentials and overrides.
type RegistryConfig struct {
	OpenAIKey     string
	OpenAIAPIBase string
	OpenAIModel   string
	GoogleKey     string
	GoogleAPIBase string
	GoogleModel   string
	Logger        *slog.Logger
}

// NewRegistry builds both adapters from config. A missing credential
// disables the adapter with a warning rather than failing startup.
func NewRegistry(cfg RegistryConfig) *Registry {
	r := &Registry{
		providers: make(map[domain.Platform]domain.Provider, 2),
		logger:    cfg.Logger,
	}

	openai := NewOpenAI(OpenAIConfig{
		APIKey:  cfg.OpenAIKey,
		APIBase: cfg.OpenAIAPIBase,
		Model:   cfg.OpenAIModel,
		Logger:  cfg.Logger,
	})
	if !openai.Available() {
		cfg.Logger.Warn("OPENAI_API_KEY is not set; openai completions are disabled")
	}
	r.providers[domain.PlatformOpenAI] = openai

	gemini := NewGemini(GeminiConfig{
		APIKey:  cfg.GoogleKey,
		APIBase: cfg.GoogleAPIBase,
		Model:   cfg.GoogleModel,
		Logger:  cfg.Logger,
	})
	if !gemini.Available() {
		cfg.Logger.Warn("GOOGLE_API_KEY is not set; gemini completions are disabled")
	}
	r.providers[domain.PlatformGoogle] = gemini

	return r
}

// Get returns the configured adapter for p, or false when the platform
// is unknown or its adapter holds no credential.
func (r *Registry) Get(p domain.Platform) (domain.Provider, bool) {
	prov, ok := r.providers[p]
	if !ok || !prov.Available() {
		return nil, false
	}
	return prov, true
}

// Available lists the platforms whose adapters can currently be called.
func (r *Registry) Available() []domain.Platform {
	var out []domain.Platform
	for _, p := range domain.Platforms() {
		if prov, ok := r.providers[p]; ok && prov.Available() {
			out = append(out, p)
		}
	}
	return out
}
