package websocket

import (
	"sync"

	"go.uber.org/zap"

	"quizrelay/internal/metrics"
	"quizrelay/pkg/interfaces"
)

type registryKey struct {
	role string
	id   string
}

// Registry maps (role, id) pairs to live sockets. At most one socket is
// reachable per pair; a reconnect with the same identity silently replaces
// the previous mapping and the stale socket is closed in the background.
// Ids are never authenticated; any socket may claim any id.
type Registry struct {
	mu    sync.RWMutex
	conns map[registryKey]interfaces.Conn

	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewRegistry creates an empty registry.
func NewRegistry(log *zap.Logger, m *metrics.Metrics) *Registry {
	return &Registry{
		conns:   make(map[registryKey]interfaces.Conn),
		log:     log,
		metrics: m,
	}
}

// Register stores conn under its claimed identity, replacing any previous
// socket for the same (role, id). Duplicate registration is not an error.
func (r *Registry) Register(conn interfaces.Conn) error {
	if conn == nil {
		return ErrNilConnection
	}
	if !conn.Identified() {
		return ErrNotIdentified
	}

	key := registryKey{role: conn.Role(), id: conn.ClientID()}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.conns[key]; ok && existing != conn {
		// Close asynchronously; Close can block on the transport and this
		// lock is on the message path.
		go func() {
			if err := existing.Close(); err != nil {
				r.log.Debug("closing replaced socket",
					zap.String("role", key.role),
					zap.String("id", key.id),
					zap.Error(err))
			}
		}()
		r.log.Info("socket replaced",
			zap.String("role", key.role),
			zap.String("id", key.id))
	} else {
		r.metrics.ConnectionsActive.WithLabelValues(key.role).Inc()
	}

	r.conns[key] = conn
	return nil
}

// Unregister removes conn's mapping. The mapping is dropped only if it still
// points at this exact socket, so a stale socket's close cannot evict its
// replacement.
func (r *Registry) Unregister(conn interfaces.Conn) {
	if conn == nil || !conn.Identified() {
		return
	}

	key := registryKey{role: conn.Role(), id: conn.ClientID()}

	r.mu.Lock()
	defer r.mu.Unlock()

	registered, ok := r.conns[key]
	if !ok || registered != conn {
		return
	}

	delete(r.conns, key)
	r.metrics.ConnectionsActive.WithLabelValues(key.role).Dec()
}

// Lookup returns the live socket for (role, id), if any.
func (r *Registry) Lookup(role, id string) (interfaces.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[registryKey{role: role, id: id}]
	return conn, ok
}

// Role returns every registered socket carrying the given role.
func (r *Registry) Role(role string) []interfaces.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conns []interfaces.Conn
	for key, conn := range r.conns {
		if key.role == role {
			conns = append(conns, conn)
		}
	}
	return conns
}

// All returns every registered socket.
func (r *Registry) All() []interfaces.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]interfaces.Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	return conns
}

// Stats returns registered socket counts by role.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]int)
	for key := range r.conns {
		stats[key.role]++
	}
	return stats
}
