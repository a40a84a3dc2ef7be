package channel

import "math/rand"

// Fixed user-visible strings. Every recoverable failure degrades to
// textGenerationErrorString; state is never mutated on that path.
const (
	inDevelopmentString = "Sorry! I'm currently being developed as we're speaking, so I won't be able to respond to your message. Please try again later."

	textGenerationErrorString = "Sorry, something went wrong when trying to think of a response. Please try again! 🙏"

	permissionErrorString = "Sorry! Looks like you don't have the perms to do that."

	errorReaction   = "❌"
	successReaction = "👍"
)

var thinkingPrompts = []string{
	"Hmm, lemme think for a moment...",
	"Gimme a sec, I'm thinking...",
	"Lemme wrap my head around that...",
	"Hollon, I'm processing...",
	"Just a moment, I'm brainstorming...",
	"Coming up with an answer...",
}

func randomThinkingPrompt() string {
	return thinkingPrompts[rand.Intn(len(thinkingPrompts))]
}
