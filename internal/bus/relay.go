// Package bus provides the publish side of Ops Actionable Intake's relay
// hop. This is a narrower bus than a chat gateway needs — no
// inbound/outbound chat-channel message routing
// (InboundMessage/OutboundMessage/MessageRouter) — since ClawControl has
// no chat channel adapters.
package bus

import (
	"context"
	"encoding/json"
	"sync"
)

// Event is one relay publication: a subject (derived from the actionable
// event's relayKey) and its JSON-encoded payload.
type Event struct {
	Subject string
	Payload json.RawMessage
}

// EventPublisher abstracts subject-based broadcast (Subscribe/Unsubscribe/
// Publish), generalized from a single fixed WebSocket fan-out channel to
// multiple named subjects.
type EventPublisher interface {
	Subscribe(subject, id string, handler func(Event))
	Unsubscribe(subject, id string)
	Publish(ctx context.Context, e Event) error
}

// InProcess is the zero-configuration EventPublisher: handlers registered
// in this process receive events synchronously. It is the fallback used
// when no NATS address is configured (domain-stack nats.go entry).
type InProcess struct {
	mu sync.RWMutex
	handlers map[string]map[string]func(Event)
}

// NewInProcess builds an InProcess publisher.
func NewInProcess() *InProcess {
	return &InProcess{handlers: make(map[string]map[string]func(Event))}
}

func (p *InProcess) Subscribe(subject, id string, handler func(Event)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handlers[subject] == nil {
		p.handlers[subject] = make(map[string]func(Event))
	}
	p.handlers[subject][id] = handler
}

func (p *InProcess) Unsubscribe(subject, id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.handlers[subject], id)
}

func (p *InProcess) Publish(ctx context.Context, e Event) error {
	p.mu.RLock()
	handlers := make([]func(Event), 0, len(p.handlers[e.Subject]))
	for _, h := range p.handlers[e.Subject] {
		handlers = append(handlers, h)
	}
	p.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
	return nil
}
