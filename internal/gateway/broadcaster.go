package gateway

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Record remembers one broadcast for the history endpoint.
type Record struct {
	Envelope *Envelope `json:"envelope"`
	SentAt   time.Time `json:"sent_at"`
	Targets  []string  `json:"targets"`
}

const historyCap = 200

// Broadcaster fans envelopes out to the websocket registry and every
// configured platform sink. Sink failures are logged, never propagated.
type Broadcaster struct {
	registry *Registry
	sinks    []Sink
	logger   *zap.Logger

	mu      sync.Mutex
	history []Record
}

// NewBroadcaster wires the registry and sinks together.
func NewBroadcaster(registry *Registry, sinks []Sink, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{registry: registry, sinks: sinks, logger: logger}
}

// Publish pushes the envelope everywhere and records it.
func (b *Broadcaster) Publish(ctx context.Context, env *Envelope) {
	b.registry.Broadcast(env)

	targets := []string{"websocket"}
	for _, sink := range b.sinks {
		if err := sink.Deliver(ctx, env); err != nil {
			b.logger.Warn("sink delivery failed",
				zap.String("sink", sink.Name()),
				zap.String("kind", env.Kind),
				zap.Error(err))
			continue
		}
		targets = append(targets, sink.Name())
	}

	b.mu.Lock()
	b.history = append(b.history, Record{Envelope: env, SentAt: time.Now(), Targets: targets})
	if len(b.history) > historyCap {
		b.history = b.history[len(b.history)-historyCap:]
	}
	b.mu.Unlock()
}

// History returns up to limit most recent records, newest last.
func (b *Broadcaster) History(limit int) []Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit <= 0 || limit > len(b.history) {
		limit = len(b.history)
	}
	out := make([]Record, limit)
	copy(out, b.history[len(b.history)-limit:])
	return out
}

// Close shuts every sink down.
func (b *Broadcaster) Close() {
	for _, sink := range b.sinks {
		if err := sink.Close(); err != nil {
			b.logger.Warn("sink close failed", zap.String("sink", sink.Name()), zap.Error(err))
		}
	}
}
