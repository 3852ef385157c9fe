package session

import (
	"sync"
)

// Inbound is a message received from the embedded surface, tagged with the
// origin the transport observed it from. Origin is transport-derived; the
// content cannot choose it.
type Inbound struct {
	Origin   string
	Envelope Envelope
}

// Channel is the typed message link between the host page and the embedded
// surface. Implementations adapt whatever transport the rendering surface
// provides.
type Channel interface {
	// Send delivers an envelope to the embedded surface.
	Send(env Envelope) error

	// Subscribe registers a handler for inbound messages and returns its
	// unsubscribe function. Handlers run on the delivering goroutine.
	Subscribe(fn func(msg Inbound)) (unsubscribe func())
}

// MemoryChannel is an in-process Channel for tests and local rendering. The
// Deliver side plays the role of the embedded surface.
type MemoryChannel struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(Inbound)
	sent   []Envelope
}

var _ Channel = (*MemoryChannel)(nil)

func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{subs: make(map[int]func(Inbound))}
}

func (c *MemoryChannel) Send(env Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, env)
	return nil
}

func (c *MemoryChannel) Subscribe(fn func(msg Inbound)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// Deliver dispatches an inbound message to all subscribers.
func (c *MemoryChannel) Deliver(origin string, env Envelope) {
	c.mu.Lock()
	handlers := make([]func(Inbound), 0, len(c.subs))
	for _, fn := range c.subs {
		handlers = append(handlers, fn)
	}
	c.mu.Unlock()

	msg := Inbound{Origin: origin, Envelope: env}
	for _, fn := range handlers {
		fn(msg)
	}
}

// Sent returns the envelopes sent to the embedded surface so far.
func (c *MemoryChannel) Sent() []Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Envelope, len(c.sent))
	copy(out, c.sent)
	return out
}
