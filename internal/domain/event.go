package domain

import "time"

// InboundEvent is a single message received from a chat platform.
// Events are immutable and fully self-contained: everything the pipeline
// needs to decide on and answer a message travels with the event.
type InboundEvent struct {
	Channel      string // connector name, e.g. "discord"
	ChatID       string
	AuthorID     string
	Content      string
	IsDirect     bool // one-to-one private conversation with the bot
	MentionsSelf bool
	Timestamp    time.Time
}

// Self is the bot's own identity on a platform. MentionTokens holds the
// textual encodings of a self-mention on that platform (Discord has two:
// the with-nickname form "<@!id>" and the plain form "<@id>").
type Self struct {
	ID            string
	MentionTokens []string
}

// EventRecord is the observability record written after an event has been
// fully handled. It is never read back into generation.
type EventRecord struct {
	Channel   string
	ChatID    string
	Outcome   string
	Reason    string
	Chunks    int
	LatencyMs int64
	CreatedAt time.Time
}
