// Package relay wires the pipeline together: it consumes inbound events
// and runs Filter → Dispatcher for each one.
package relay

import (
	"context"
	"log/slog"

	"gembot/internal/dispatch"
	"gembot/internal/domain"
	"gembot/internal/filter"
	"gembot/internal/metrics"
)

const defaultConcurrency = 4

// Loop processes events with bounded concurrency. Events share no state;
// no ordering is imposed between them.
type Loop struct {
	bus         domain.EventBus
	connectors  map[string]domain.Connector
	dispatcher  *dispatch.Dispatcher
	logger      *slog.Logger
	concurrency int
}

type LoopConfig struct {
	Bus         domain.EventBus
	Connectors  []domain.Connector
	Dispatcher  *dispatch.Dispatcher
	Logger      *slog.Logger
	Concurrency int // max events processed in parallel
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	conns := make(map[string]domain.Connector, len(cfg.Connectors))
	for _, c := range cfg.Connectors {
		conns[c.Name()] = c
	}
	return &Loop{
		bus:         cfg.Bus,
		connectors:  conns,
		dispatcher:  cfg.Dispatcher,
		logger:      cfg.Logger,
		concurrency: cfg.Concurrency,
	}
}

// Run blocks until ctx is cancelled or the bus closes. Each event runs in
// its own goroutine under a semaphore bounding in-flight generation calls.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("relay loop started", "concurrency", l.concurrency)

	sem := make(chan struct{}, l.concurrency)
	inbound := l.bus.Subscribe()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("relay loop stopping")
			return
		case ev, ok := <-inbound:
			if !ok {
				l.logger.Info("event bus closed, relay loop stopping")
				return
			}
			// Acquiring a worker slot must not delay shutdown when every
			// slot is held by a slow generation call.
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				l.logger.Info("relay loop stopping")
				return
			}
			go func(ev domain.InboundEvent) {
				defer func() { <-sem }()
				l.process(ctx, ev)
			}(ev)
		}
	}
}

// process handles a single event. A panic in the pipeline is confined to
// this event; other in-flight events and the loop itself are unaffected.
func (l *Loop) process(ctx context.Context, ev domain.InboundEvent) {
	metrics.InflightEvents.Inc()
	defer metrics.InflightEvents.Dec()
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("event handler panic", "channel", ev.Channel, "chat", ev.ChatID, "panic", r)
		}
	}()

	conn, ok := l.connectors[ev.Channel]
	if !ok {
		l.logger.Warn("no connector for channel", "channel", ev.Channel)
		return
	}

	metrics.EventsTotal.Inc()

	decision := filter.Decide(ev, conn.Self())
	if !decision.Respond {
		l.logger.Debug("event skipped", "channel", ev.Channel, "chat", ev.ChatID)
		return
	}

	l.dispatcher.Dispatch(ctx, conn, ev, decision.Prompt)
}
