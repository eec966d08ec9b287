package hooks

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event names fired by the chat pipeline.
const (
	EventBeforeChat       = "before_chat"
	EventAfterChat        = "after_chat"
	EventAffinityChange   = "on_affinity_change"
	EventAmbientRefreshed = "ambient_refreshed"
)

// Mode tags how a callback runs relative to the trigger.
type Mode int

const (
	// Inline callbacks run on a bounded worker pool and Trigger waits
	// for them before returning.
	Inline Mode = iota
	// Background callbacks are dispatched without blocking Trigger.
	Background
)

// Callback handles one event occurrence. Payload types are per-event.
type Callback interface {
	Name() string
	Mode() Mode
	Handle(ctx context.Context, event string, payload any)
}

// Func adapts a function to Callback.
type Func struct {
	ID   string
	Tag  Mode
	Body func(ctx context.Context, event string, payload any)
}

func (f Func) Name() string { return f.ID }
func (f Func) Mode() Mode   { return f.Tag }
func (f Func) Handle(ctx context.Context, event string, payload any) {
	f.Body(ctx, event, payload)
}

const inlineWorkers = 8

// Bus dispatches named events to registered callbacks in registration
// order per event. A panicking callback is logged and never takes down
// the trigger or its siblings.
type Bus struct {
	mu        sync.RWMutex
	callbacks map[string][]Callback
	enabled   bool
	logger    *zap.Logger

	sem sync.WaitGroup // tracks in-flight background callbacks
	gen chan struct{}  // bounds concurrent inline handlers
}

// NewBus creates an enabled Bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		callbacks: make(map[string][]Callback),
		enabled:   true,
		logger:    logger,
		gen:       make(chan struct{}, inlineWorkers),
	}
}

// SetEnabled flips dispatch on or off. Registrations survive a disable.
func (b *Bus) SetEnabled(on bool) {
	b.mu.Lock()
	b.enabled = on
	b.mu.Unlock()
}

// Register appends cb to the event's callback list.
func (b *Bus) Register(event string, cb Callback) {
	b.mu.Lock()
	b.callbacks[event] = append(b.callbacks[event], cb)
	b.mu.Unlock()
	b.logger.Debug("hook registered",
		zap.String("event", event), zap.String("callback", cb.Name()))
}

// Unregister removes the callback with the given name from the event.
func (b *Bus) Unregister(event, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.callbacks[event]
	for i, cb := range list {
		if cb.Name() == name {
			b.callbacks[event] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Trigger dispatches the event. Inline callbacks complete before Trigger
// returns; Background callbacks only start before it returns. Callbacks
// are started in registration order but run on the worker pool, so only
// dispatch order is guaranteed: two callbacks for one event may execute
// concurrently and must not depend on each other's effects.
func (b *Bus) Trigger(ctx context.Context, event string, payload any) {
	b.mu.RLock()
	if !b.enabled {
		b.mu.RUnlock()
		return
	}
	list := make([]Callback, len(b.callbacks[event]))
	copy(list, b.callbacks[event])
	b.mu.RUnlock()

	var inline sync.WaitGroup
	for _, cb := range list {
		cb := cb
		switch cb.Mode() {
		case Inline:
			inline.Add(1)
			b.gen <- struct{}{}
			go func() {
				defer inline.Done()
				defer func() { <-b.gen }()
				b.run(ctx, event, payload, cb)
			}()
		case Background:
			b.sem.Add(1)
			go func() {
				defer b.sem.Done()
				b.run(ctx, event, payload, cb)
			}()
		}
	}
	inline.Wait()
}

func (b *Bus) run(ctx context.Context, event string, payload any, cb Callback) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("hook callback panicked",
				zap.String("event", event),
				zap.String("callback", cb.Name()),
				zap.Any("panic", r))
		}
	}()
	start := time.Now()
	cb.Handle(ctx, event, payload)
	b.logger.Debug("hook callback done",
		zap.String("event", event),
		zap.String("callback", cb.Name()),
		zap.Duration("took", time.Since(start)))
}

// Drain blocks until all background callbacks started so far finish.
func (b *Bus) Drain() {
	b.sem.Wait()
}
