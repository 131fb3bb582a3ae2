// Package broadcast carries SyncMessages between execution contexts that
// share a channel name.
//
// The browser original leans on a same-origin broadcast primitive; here
// the transport is an explicit interface so the environment chooses the
// mechanism. Noop is the default — single-instance operation with no
// sibling contexts — and Hub provides in-process delivery for tests and
// for several client instances living in one process. A sender never
// receives its own messages.
package broadcast

import (
	"sync"

	authsession "github.com/chimerakang/authsession-go"
)

// Noop is the default transport: no sibling contexts exist, every
// publish disappears.
type Noop struct{}

var _ authsession.SyncTransport = (*Noop)(nil)

func (Noop) Publish(authsession.SyncMessage) error      { return nil }
func (Noop) Subscribe(func(authsession.SyncMessage)) func() { return func() {} }
func (Noop) Close() error                               { return nil }

// Hub routes messages between in-process endpoints grouped by channel
// name. Delivery is synchronous and in join order.
type Hub struct {
	mu       sync.RWMutex
	channels map[string][]*Endpoint
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{channels: make(map[string][]*Endpoint)}
}

// Join attaches a new endpoint to the named channel.
func (h *Hub) Join(channel string) *Endpoint {
	ep := &Endpoint{hub: h, channel: channel}
	h.mu.Lock()
	h.channels[channel] = append(h.channels[channel], ep)
	h.mu.Unlock()
	return ep
}

// broadcast delivers msg to every endpoint on channel except the sender.
func (h *Hub) broadcast(channel string, sender *Endpoint, msg authsession.SyncMessage) {
	h.mu.RLock()
	endpoints := make([]*Endpoint, len(h.channels[channel]))
	copy(endpoints, h.channels[channel])
	h.mu.RUnlock()

	for _, ep := range endpoints {
		if ep == sender {
			continue
		}
		ep.deliver(msg)
	}
}

func (h *Hub) leave(ep *Endpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.channels[ep.channel]
	for i, other := range list {
		if other == ep {
			h.channels[ep.channel] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Endpoint is one execution context's attachment to a hub channel.
type Endpoint struct {
	hub     *Hub
	channel string

	mu       sync.Mutex
	handlers []*handlerRef
	closed   bool
}

type handlerRef struct {
	fn func(authsession.SyncMessage)
}

var _ authsession.SyncTransport = (*Endpoint)(nil)

// Publish sends msg to every other endpoint on the channel.
func (e *Endpoint) Publish(msg authsession.SyncMessage) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil
	}
	e.hub.broadcast(e.channel, e, msg)
	return nil
}

// Subscribe registers fn for incoming messages.
func (e *Endpoint) Subscribe(fn func(authsession.SyncMessage)) func() {
	ref := &handlerRef{fn: fn}
	e.mu.Lock()
	e.handlers = append(e.handlers, ref)
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, other := range e.handlers {
			if other == ref {
				e.handlers = append(e.handlers[:i], e.handlers[i+1:]...)
				return
			}
		}
	}
}

// Close detaches the endpoint from its channel.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.handlers = nil
	e.mu.Unlock()

	e.hub.leave(e)
	return nil
}

func (e *Endpoint) deliver(msg authsession.SyncMessage) {
	e.mu.Lock()
	handlers := make([]*handlerRef, len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.Unlock()

	for _, ref := range handlers {
		ref.fn(msg)
	}
}
