package chat

import (
	"sync"

	"github.com/alliance74/african-farm-route/pkg/ws"
)

// Presence maps an identity to its currently live connection. It holds at most
// one connection per identity; a new connection for the same identity
// supersedes the previous one. Entirely volatile: live connections cannot
// survive a restart, so neither does the registry.
type Presence struct {
	mu    sync.RWMutex
	conns map[string]ws.Conn
}

func NewPresence() *Presence {
	return &Presence{conns: make(map[string]ws.Conn)}
}

// Register records c as the live connection for identityID, overwriting any
// prior entry (last connect wins).
func (p *Presence) Register(identityID string, c ws.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conns[identityID] = c
}

// Lookup returns the live connection for identityID, if any.
func (p *Presence) Lookup(identityID string) (ws.Conn, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.conns[identityID]
	return c, ok
}

// Remove deletes the entry for identityID, but only if it still points at c:
// a newer connection that superseded c must not be evicted by c's late
// disconnect. Removing an absent identity is a no-op. It reports whether an
// entry was removed.
func (p *Presence) Remove(identityID string, c ws.Conn) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	current, ok := p.conns[identityID]
	if !ok || current != c {
		return false
	}
	delete(p.conns, identityID)
	return true
}
