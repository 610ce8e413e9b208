package relay

import "sync"

// Registry is the authoritative, thread-safe mapping from user ID to
// its single live connection handle. It is the only shared mutable
// structure of the relay; every session receives it explicitly so tests
// can run isolated instances. No lock is ever held across I/O.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Conn)}
}

// Register inserts or replaces the handle for a user and returns the
// previous one, if any, so the caller can close it. Last-connection-wins:
// a reconnecting user atomically supersedes the old entry.
func (r *Registry) Register(userID string, c *Conn) *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.conns[userID]
	r.conns[userID] = c
	return old
}

// Unregister removes the entry only if the stored handle is identical
// to c. A stale disconnect from a superseded connection must not evict
// the newer one a quick reconnect registered in the meantime.
func (r *Registry) Unregister(userID string, c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.conns[userID]; ok && current == c {
		delete(r.conns, userID)
		return true
	}
	return false
}

// Lookup is the point read used by dispatch. The result may be stale by
// the time the caller uses it; delivery stays best-effort.
func (r *Registry) Lookup(userID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[userID]
	return c, ok
}

// Len returns the number of live connections, for telemetry.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
