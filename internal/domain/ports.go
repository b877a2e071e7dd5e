package domain

import "context"

// Generator is the generative-text backend. Implementations make exactly
// one attempt per call; retry policy is not part of this contract.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*GenerationResult, error)
}

// Connector is a chat platform integration. It produces InboundEvents on
// the bus and delivers outbound messages.
type Connector interface {
	Name() string

	// Self returns the bot's identity on this platform. Only valid after
	// Start has connected.
	Self() Self

	// Start connects to the platform and publishes every received message
	// to the bus until ctx is cancelled. Eligibility is not this layer's
	// concern: the filter decides, the connector just reports.
	Start(ctx context.Context, bus EventBus) error

	// Send delivers a single message. Sends rejected for lack of permission
	// wrap ErrSendPermission.
	Send(ctx context.Context, chatID, text string) error

	// Typing signals a typing/working indicator on the chat until the
	// returned stop func is called. Best-effort: signalling failures are
	// swallowed. stop is safe to call more than once.
	Typing(chatID string) (stop func())

	// Mention returns a textual form that addresses the given user, or a
	// neutral salutation on platforms without an inline mention encoding.
	Mention(userID string) string

	// SetPresence updates the bot's visible activity text, where the
	// platform supports it.
	SetPresence(activity string) error
}

// EventBus carries inbound events from connectors to the relay loop.
type EventBus interface {
	Publish(ev InboundEvent)
	Subscribe() <-chan InboundEvent
	Close()
}

// EventStore records handled events for observability.
type EventStore interface {
	Record(ctx context.Context, rec EventRecord) error
	Close() error
}
