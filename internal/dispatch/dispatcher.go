// Package dispatch turns an extracted prompt into one or more outbound
// messages: it invokes the generation backend, classifies the result, and
// delivers the reply back to the originating chat.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gembot/internal/domain"
	"gembot/internal/metrics"
	"gembot/internal/reply"
)

// Dispatcher handles one eligible event at a time. It holds no per-event
// state; concurrent Dispatch calls are independent.
type Dispatcher struct {
	generator domain.Generator
	templates *reply.Templates
	store     domain.EventStore
	logger    *slog.Logger
}

// Config holds the dispatcher's collaborators. Store is optional.
type Config struct {
	Generator domain.Generator
	Templates *reply.Templates
	Store     domain.EventStore
	Logger    *slog.Logger
}

func New(cfg Config) *Dispatcher {
	if cfg.Templates == nil {
		cfg.Templates = reply.Defaults()
	}
	return &Dispatcher{
		generator: cfg.Generator,
		templates: cfg.Templates,
		store:     cfg.Store,
		logger:    cfg.Logger,
	}
}

// Dispatch answers one eligible event. An empty prompt means the user asked
// for nothing: the help text is sent and the backend is never called.
// Errors never escape this method; every failure ends in a logged,
// user-visible message (or a logged send failure).
func (d *Dispatcher) Dispatch(ctx context.Context, conn domain.Connector, ev domain.InboundEvent, prompt string) {
	if prompt == "" {
		sent := d.send(ctx, conn, ev.ChatID, d.templates.RenderHelp(conn.Mention(ev.AuthorID)))
		d.record(ctx, ev, "help", "", boolToInt(sent), 0)
		return
	}

	d.logger.Info("generating", "channel", ev.Channel, "chat", ev.ChatID, "prompt_len", len(prompt))

	start := time.Now()
	res, err := d.generate(ctx, conn, ev.ChatID, prompt)
	latency := time.Since(start)
	metrics.GenerationLatency.Observe(latency.Seconds())

	out := Classify(res, err)
	d.deliver(ctx, conn, ev, out, latency)
}

// generate runs the backend call under a typing indicator. The stop func is
// deferred so the indicator is released even when the generator panics and
// the panic is recovered further up.
func (d *Dispatcher) generate(ctx context.Context, conn domain.Connector, chatID, prompt string) (*domain.GenerationResult, error) {
	stopTyping := conn.Typing(chatID)
	defer stopTyping()
	return d.generator.Generate(ctx, prompt)
}

// Classify resolves the raw backend result into exactly one Outcome. The
// raw result is not inspected again after this point.
func Classify(res *domain.GenerationResult, err error) domain.Outcome {
	if err != nil {
		return domain.Outcome{Kind: domain.OutcomeFailure, Err: err}
	}
	if res != nil && res.Text != "" {
		return domain.Outcome{Kind: domain.OutcomeSuccess, Text: res.Text}
	}
	if res != nil && res.Feedback != nil {
		reason := res.Feedback.BlockReason
		if reason == "" {
			reason = "unknown"
		}
		return domain.Outcome{Kind: domain.OutcomeBlocked, Reason: reason}
	}
	return domain.Outcome{Kind: domain.OutcomeEmpty}
}

func (d *Dispatcher) deliver(ctx context.Context, conn domain.Connector, ev domain.InboundEvent, out domain.Outcome, latency time.Duration) {
	chunks := 0

	switch out.Kind {
	case domain.OutcomeSuccess:
		parts := splitChunks(out.Text, maxMessageLen)
		for _, chunk := range parts {
			if !d.send(ctx, conn, ev.ChatID, chunk) {
				// Whatever broke this send will break the next one too;
				// remaining chunks are not attempted.
				break
			}
			chunks++
		}
		if chunks == len(parts) {
			d.logger.Info("reply delivered", "channel", ev.Channel, "chat", ev.ChatID, "chunks", chunks, "latency", latency)
		} else {
			d.logger.Warn("reply delivery incomplete", "channel", ev.Channel, "chat", ev.ChatID, "sent", chunks, "total", len(parts), "latency", latency)
		}

	case domain.OutcomeBlocked:
		metrics.BlockedTotal.Inc()
		d.logger.Warn("generation blocked", "channel", ev.Channel, "chat", ev.ChatID, "reason", out.Reason)
		if d.send(ctx, conn, ev.ChatID, d.templates.RenderBlocked(out.Reason)) {
			chunks = 1
		}

	case domain.OutcomeEmpty:
		d.logger.Warn("generation returned no text and no safety feedback", "channel", ev.Channel, "chat", ev.ChatID)
		if d.send(ctx, conn, ev.ChatID, d.templates.Empty) {
			chunks = 1
		}

	case domain.OutcomeFailure:
		metrics.FailuresTotal.Inc()
		// The underlying error stays in the logs; users get the apology.
		d.logger.Error("generation failed", "channel", ev.Channel, "chat", ev.ChatID, "err", out.Err)
		if d.send(ctx, conn, ev.ChatID, d.templates.Failure) {
			chunks = 1
		}
	}

	d.record(ctx, ev, out.Kind.String(), out.Reason, chunks, latency.Milliseconds())
}

// send delivers a single message and reports whether it succeeded. Send
// failures are logged, counted, and absorbed here.
func (d *Dispatcher) send(ctx context.Context, conn domain.Connector, chatID, text string) bool {
	if err := conn.Send(ctx, chatID, text); err != nil {
		metrics.SendFailures.Inc()
		if errors.Is(err, domain.ErrSendPermission) {
			d.logger.Error("send denied, permission missing or revoked", "chat", chatID, "err", err)
		} else {
			d.logger.Error("send failed", "chat", chatID, "err", err)
		}
		return false
	}
	metrics.RepliesTotal.Inc()
	return true
}

func (d *Dispatcher) record(ctx context.Context, ev domain.InboundEvent, outcome, reason string, chunks int, latencyMs int64) {
	if d.store == nil {
		return
	}
	rec := domain.EventRecord{
		Channel:   ev.Channel,
		ChatID:    ev.ChatID,
		Outcome:   outcome,
		Reason:    reason,
		Chunks:    chunks,
		LatencyMs: latencyMs,
		CreatedAt: time.Now(),
	}
	if err := d.store.Record(ctx, rec); err != nil {
		d.logger.Warn("event record failed", "err", err)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
