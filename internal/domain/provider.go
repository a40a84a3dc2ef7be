package domain

import (
	"context"
	"errors"
)

// Platform identifies one of the supported LLM backends.
type Platform string

const (
	PlatformOpenAI Platform = "openai"
	PlatformGoogle Platform = "google"
)

// Platforms lists every supported platform, in resolution-fallback order.
func Platforms() []Platform {
	return []Platform{PlatformOpenAI, PlatformGoogle}
}

// ValidPlatform reports whether p names a supported backend.
func ValidPlatform(p Platform) bool {
	switch p {
	case PlatformOpenAI, PlatformGoogle:
		return true
	}
	return false
}

// Role is the provider-agnostic vocabulary for conversation turns.
// Each adapter maps it to its own wire vocabulary at call time.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single prior exchange entry handed to a provider.
type Turn struct {
	Role    Role
	Content string
}

// GenerateRequest carries everything an adapter needs to produce a reply.
type GenerateRequest struct {
	System    string // system instruction, already personalized
	History   []Turn // prior turns in chronological order
	Prompt    string // the new user turn
	MaxTokens int    // output token budget; 0 = adapter default
}

// ErrEmptyCompletion is returned when a provider call succeeded but
// yielded no usable text. It is distinct from transport errors, which
// are returned as-is.
var ErrEmptyCompletion = errors.New("provider returned no text")

// Provider is the interface both LLM adapters implement.
type Provider interface {
	// Platform returns the backend this adapter speaks to.
	Platform() Platform
	// Available reports whether the adapter holds a credential and can
	// be called. Unconfigured adapters exist but are skipped during
	// provider resolution.
	Available() bool
	// Generate produces a reply for the given request. A successful call
	// with no usable text returns ErrEmptyCompletion.
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}
