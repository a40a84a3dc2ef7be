package domain

import "time"

// Request is the normalized inbound event the orchestrator works
// against. Both a plain chat message and a slash-command interaction
// are reduced to this shape by the channel layer, so the core is
// written once against a single capability set.
type Request struct {
	// MessageID is the transport identifier of the triggering message
	// or interaction. It becomes the stored user-turn id.
	MessageID string
	// Content is the plain-text prompt, with any self-mention token
	// already stripped.
	Content string
	// ReplyToID is the parent message id when the event is a reply,
	// empty otherwise. A non-empty value asks the orchestrator to
	// continue the conversation containing that id.
	ReplyToID string
	// SenderID identifies the originating user, for persona lookup.
	SenderID string
	// Platform is an explicit caller-supplied provider override
	// (e.g. a command's model choice). Empty when unset.
	Platform Platform
	// Channel names the trigger surface ("discord", "telegram").
	Channel string
	// Timestamp is when the event arrived.
	Timestamp time.Time
}

// IsReply reports whether this request continues an earlier exchange.
func (r Request) IsReply() bool { return r.ReplyToID != "" }
