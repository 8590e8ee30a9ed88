package ai

import (
	"fmt"
	"strings"

	"github.com/rmarques/fanvuebot/internal/fanvue"
)

// DefaultPersona is used when an account has no system prompt configured.
const DefaultPersona = `You are responding to messages from subscribers on Fanvue (a creator platform).

Generate friendly, engaging, and personalized responses that:
- Acknowledge their message
- Show genuine interest in them
- Keep the conversation going
- Maintain a warm but professional tone
- Are concise (1-3 sentences)

Be authentic, flirty when appropriate, and make each subscriber feel special.`

// historyWindow caps how many recent turns are replayed to the generator,
// keeping the prompt inside sane token limits.
const historyWindow = 20

// systemInstruction returns the persona to use as system context, falling
// back to DefaultPersona when the account has none.
func systemInstruction(persona string) string {
	if strings.TrimSpace(persona) == "" {
		return DefaultPersona
	}
	return persona
}

// conversationContext renders the conversation's recent turns oldest first,
// own messages prefixed "You:" and subscriber messages prefixed with their
// handle. Returns "" when no usable history exists.
func conversationContext(senderHandle string, history []fanvue.Turn) string {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	lines := make([]string, 0, len(history))
	for _, turn := range history {
		text := strings.TrimSpace(turn.Text)
		if text == "" {
			continue
		}
		if turn.FromSelf {
			lines = append(lines, "You: "+text)
		} else {
			lines = append(lines, senderHandle+": "+text)
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "Conversation history:\n" + strings.Join(lines, "\n")
}

// userPrompt frames the message being answered inside its conversation's
// recent history so the reply continues the exchange instead of restarting it.
func userPrompt(msg fanvue.Message) string {
	context := conversationContext(msg.SenderHandle, msg.History)
	if context == "" {
		return fmt.Sprintf("This is the start of your conversation with %s.\n\n%s just sent: %q\n\nPlease respond in a friendly, engaging way:",
			msg.SenderHandle, msg.SenderHandle, msg.Text)
	}
	return fmt.Sprintf("%s\n\n%s's latest message: %q\n\nPlease respond naturally as if continuing this conversation:",
		context, msg.SenderHandle, msg.Text)
}
