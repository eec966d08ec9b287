package gateway

import "context"

// Sink delivers envelopes to an external chat platform. Sinks are
// best-effort mirrors of the websocket stream.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, env *Envelope) error
	Close() error
}
