package plot

import (
	"context"
	"sync"

	"github.com/aretw0/plotlink/pkg/domain"
	"github.com/aretw0/plotlink/pkg/ports"
)

// Connection holds the binding to one remote drawing client.
// Identity, pid and name always change together; an unbound connection
// carries no metadata.
type Connection struct {
	mu       sync.Mutex
	identity ports.Responder
	info     domain.ClientInfo
}

// Bind replaces any existing binding unconditionally (last writer wins).
// The previous identity is dropped by the connection.
func (c *Connection) Bind(identity ports.Responder, pid int, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if identity == nil {
		c.identity = nil
		c.info = domain.ClientInfo{}
		return
	}
	c.identity = identity
	c.info = domain.ClientInfo{PID: pid, Name: name}
}

// describe updates pid and name of the current binding, keeping its identity.
// It reports false, changing nothing, when no client is bound.
func (c *Connection) describe(pid int, name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.identity == nil {
		return false
	}
	c.info = domain.ClientInfo{PID: pid, Name: name}
	return true
}

// IsValidAndResponding probes the bound identity on every call.
// It returns false immediately when unbound. The probe runs without holding
// the connection lock, so a slow client does not block rebinding.
func (c *Connection) IsValidAndResponding(ctx context.Context) bool {
	c.mu.Lock()
	identity := c.identity
	c.mu.Unlock()

	if identity == nil {
		return false
	}
	return identity.IsResponding(ctx)
}

// Invalidate clears the binding. It returns true if a binding existed.
func (c *Connection) Invalidate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.identity == nil {
		return false
	}
	c.identity = nil
	c.info = domain.ClientInfo{}
	return true
}

// Info returns the metadata of the bound client and whether one is bound.
func (c *Connection) Info() (domain.ClientInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info, c.identity != nil
}
