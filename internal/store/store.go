// Package store persists conversation state as a single JSON document.
//
// All mutation is in-memory until Flush; a crash between a mutation and
// its flush loses that mutation. The mutex below keeps the in-memory
// structures safe to touch from concurrent handlers, but a
// read-modify-append spanning several calls can still interleave with
// another request and lose an update. That matches the durability the
// rest of the system expects from this layer.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"relaybot/internal/domain"
)

// Store is the process-wide conversation database backed by one JSON file.
type Store struct {
	path   string
	logger *slog.Logger

	mu    sync.Mutex
	state domain.State
}

// Open loads the store at path. A missing file is not an error: the
// store starts from the empty default state and the file is created on
// the first Flush. A corrupt file is also degraded to the default state
// with a warning, so a bad flush never wedges startup.
func Open(path string, logger *slog.Logger) (*Store, error) {
	s := &Store{
		path:   path,
		logger: logger,
		state:  defaultState(),
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func defaultState() domain.State {
	return domain.State{
		Conversations:   []domain.Conversation{},
		DefaultPlatform: domain.PlatformOpenAI,
	}
}

// Reload re-reads the persisted document into memory. Called once at
// Open and again before each handling cycle so concurrently flushed
// state is picked up.
func (s *Store) Reload() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read store %s: %w", s.path, err)
	}

	var loaded domain.State
	if err := json.Unmarshal(data, &loaded); err != nil {
		s.logger.Warn("store file is corrupt, starting from empty state",
			"path", s.path, "err", err)
		return nil
	}
	if loaded.Conversations == nil {
		loaded.Conversations = []domain.Conversation{}
	}
	if !domain.ValidPlatform(loaded.DefaultPlatform) {
		loaded.DefaultPlatform = domain.PlatformOpenAI
	}

	s.mu.Lock()
	s.state = loaded
	s.mu.Unlock()
	return nil
}

// FindConversation returns a copy of the conversation whose message
// list contains messageID, or false when no conversation holds it.
func (s *Store) FindConversation(messageID string) (domain.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.state.Conversations {
		if s.state.Conversations[i].Contains(messageID) {
			return copyConversation(s.state.Conversations[i]), true
		}
	}
	return domain.Conversation{}, false
}

// AppendExchange records one completed round: the user turn and the
// assistant turn it produced. When replyToID names a message inside an
// existing conversation the pair is appended there and the sticky
// platform updated; otherwise a new conversation is created holding
// exactly these two messages. Returns true when an existing thread was
// continued. The caller must Flush afterwards to retain the mutation.
func (s *Store) AppendExchange(replyToID string, user, assistant domain.StoredMessage, platform domain.Platform) bool {
	now := time.Now().UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.LastUpdated = now

	if replyToID != "" {
		for i := range s.state.Conversations {
			if s.state.Conversations[i].Contains(replyToID) {
				conv := &s.state.Conversations[i]
				conv.Messages = append(conv.Messages, user, assistant)
				conv.LastUpdated = now
				conv.Platform = platform
				return true
			}
		}
	}

	s.state.Conversations = append(s.state.Conversations, domain.Conversation{
		Messages:    []domain.StoredMessage{user, assistant},
		LastUpdated: now,
		Platform:    platform,
	})
	return false
}

// DefaultPlatform returns the global fallback provider.
func (s *Store) DefaultPlatform() domain.Platform {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.DefaultPlatform
}

// SetDefaultPlatform replaces the global fallback provider and returns
// the previous value. Invalid platforms are rejected so the store-level
// invariant (always one of the supported providers) holds.
func (s *Store) SetDefaultPlatform(p domain.Platform) (domain.Platform, error) {
	if !domain.ValidPlatform(p) {
		return "", fmt.Errorf("unknown platform: %s", p)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state.DefaultPlatform
	s.state.DefaultPlatform = p
	s.state.LastUpdated = time.Now().UnixMilli()
	return prev, nil
}

// Flush writes the in-memory state to the backing file.
func (s *Store) Flush() error {
	s.mu.Lock()
	data, err := json.MarshalIndent(s.state, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory %s: %w", dir, err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write store %s: %w", s.path, err)
	}
	return nil
}

// ConversationCount reports how many conversations are held. Used by
// the status command.
func (s *Store) ConversationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.Conversations)
}

func copyConversation(c domain.Conversation) domain.Conversation {
	out := c
	out.Messages = make([]domain.StoredMessage, len(c.Messages))
	copy(out.Messages, c.Messages)
	return out
}
