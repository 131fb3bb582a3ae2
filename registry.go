package authsession

import (
	"fmt"
	"sync"
)

// The registry is an opt-in convenience for code bases that cannot thread
// a *Client through every call site. Explicit dependency injection
// remains the default path; nothing in this SDK consults the registry.

var registry = struct {
	mu      sync.RWMutex
	clients map[string]*Client
}{clients: make(map[string]*Client)}

// Register stores a named client. Registering a name twice is an error so
// accidental replacement of a live session manager is caught early.
func Register(name string, c *Client) error {
	if c == nil {
		return fmt.Errorf("authsession: cannot register nil client %q", name)
	}
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if _, exists := registry.clients[name]; exists {
		return fmt.Errorf("authsession: client %q already registered", name)
	}
	registry.clients[name] = c
	return nil
}

// Lookup returns the named client, if registered.
func Lookup(name string) (*Client, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	c, ok := registry.clients[name]
	return c, ok
}

// Deregister removes a named client. Removing an absent name is a no-op.
func Deregister(name string) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	delete(registry.clients, name)
}
