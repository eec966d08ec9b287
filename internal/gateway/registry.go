package gateway

import (
	"sync"

	"go.uber.org/zap"
)

// conn is the slice of a websocket connection the registry needs. Tests
// substitute fakes.
type conn interface {
	WriteText(data []byte) error
	Close() error
}

// Registry tracks live websocket listeners and fans envelopes out to
// them. Sends that fail drop the connection; the rest of the pass is
// unaffected.
type Registry struct {
	mu     sync.Mutex
	conns  map[string]conn
	logger *zap.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{conns: make(map[string]conn), logger: logger}
}

// AddConn registers a connection under its id.
func (r *Registry) AddConn(id string, c conn) {
	r.mu.Lock()
	r.conns[id] = c
	n := len(r.conns)
	r.mu.Unlock()
	r.logger.Info("dialogue listener connected",
		zap.String("conn", id), zap.Int("total", n))
}

// RemoveConn drops the connection without closing it; the read loop
// owns the close.
func (r *Registry) RemoveConn(id string) {
	r.mu.Lock()
	delete(r.conns, id)
	n := len(r.conns)
	r.mu.Unlock()
	r.logger.Info("dialogue listener disconnected",
		zap.String("conn", id), zap.Int("total", n))
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Broadcast serializes the envelope once and writes it to a point-in-time
// copy of the connection set. Connections whose send fails are removed
// and closed after the pass.
func (r *Registry) Broadcast(env *Envelope) {
	data, err := env.Marshal()
	if err != nil {
		r.logger.Error("envelope marshal failed", zap.String("kind", env.Kind), zap.Error(err))
		return
	}

	r.mu.Lock()
	snapshot := make(map[string]conn, len(r.conns))
	for id, c := range r.conns {
		snapshot[id] = c
	}
	r.mu.Unlock()

	var failed []string
	for id, c := range snapshot {
		if err := c.WriteText(data); err != nil {
			r.logger.Warn("dialogue push failed, dropping listener",
				zap.String("conn", id), zap.Error(err))
			failed = append(failed, id)
		}
	}

	if len(failed) == 0 {
		return
	}
	r.mu.Lock()
	for _, id := range failed {
		if c, ok := r.conns[id]; ok {
			delete(r.conns, id)
			c.Close()
		}
	}
	r.mu.Unlock()
}

// CloseAll drops and closes every connection, used at shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]conn)
	r.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}
