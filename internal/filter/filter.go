// Package filter decides which inbound events warrant a reply and extracts
// the effective user prompt from them. It is pure: no sends, no backend
// calls, no state between events.
package filter

import (
	"strings"

	"gembot/internal/domain"
)

// Decision is the filter's verdict on one event. Respond == false means
// skip the event entirely. Respond == true with an empty Prompt means the
// user asked for nothing ("mention only"), which the dispatcher answers
// with help text instead of a generation call.
type Decision struct {
	Respond bool
	Prompt  string
}

// Decide applies the eligibility rules in order:
//
//  1. The bot never processes its own messages.
//  2. Group messages that don't mention the bot are ignored.
//  3. Mentioned: the prompt is the message with the first occurrence of
//     each self-mention token form removed, trimmed.
//  4. Direct message: the prompt is the message, trimmed.
func Decide(ev domain.InboundEvent, self domain.Self) Decision {
	if ev.AuthorID == self.ID {
		return Decision{}
	}
	if !ev.IsDirect && !ev.MentionsSelf {
		return Decision{}
	}

	prompt := ev.Content
	if ev.MentionsSelf {
		for _, tok := range self.MentionTokens {
			prompt = strings.Replace(prompt, tok, "", 1)
		}
	}
	return Decision{Respond: true, Prompt: strings.TrimSpace(prompt)}
}
