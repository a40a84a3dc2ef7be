package domain

// StoredMessage is one persisted turn of a conversation. Immutable
// once appended; the id is the transport message id and is unique
// across the whole store.
type StoredMessage struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Role    Role   `json:"role"`
}

// Conversation is an ordered thread of alternating user/assistant
// turns. It has no explicit primary key; it is identified by the
// message ids it contains. Platform, when set, is the sticky provider
// choice subsequent turns in the thread prefer over the global default.
type Conversation struct {
	Messages    []StoredMessage `json:"messages"`
	LastUpdated int64           `json:"lastUpdated"`
	Platform    Platform        `json:"platform,omitempty"`
}

// Contains reports whether the conversation holds a message with the
// given id.
func (c *Conversation) Contains(messageID string) bool {
	for _, m := range c.Messages {
		if m.ID == messageID {
			return true
		}
	}
	return false
}

// History maps the message list to provider-agnostic turns, preserving
// insertion order.
func (c *Conversation) History() []Turn {
	turns := make([]Turn, 0, len(c.Messages))
	for _, m := range c.Messages {
		turns = append(turns, Turn{Role: m.Role, Content: m.Content})
	}
	return turns
}

// State is the persisted store root: every conversation, the global
// last-mutation timestamp, and the fallback provider used when neither
// a sticky platform nor a call-level override applies.
type State struct {
	Conversations   []Conversation `json:"conversations"`
	LastUpdated     int64          `json:"lastUpdated"`
	DefaultPlatform Platform       `json:"defaultPlatform"`
}
