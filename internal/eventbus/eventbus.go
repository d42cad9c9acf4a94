// Package eventbus provides the in-process publish/subscribe channel that
// decouples the coordination core from its renderer, notifier, and network
// collaborators. Delivery is synchronous: Publish invokes every handler
// before returning, so state observed by handlers is the state that
// produced the event.
package eventbus

import "sync"

// Type identifies an event. The set is closed: components publish only
// these names, and the WebSocket layer reuses them as wire event types.
type Type string

const (
	TypePhaseChanged    Type = "phase_changed"
	TypeTurnChanged     Type = "turn_changed"
	TypeClockUpdated    Type = "clock_updated"
	TypeAllPlayersReady Type = "all_players_ready"
	TypeUnitDeployed    Type = "unit_deployed"
	TypeOrderAdded      Type = "order_added"
	TypeOrderCancelled  Type = "order_cancelled"
	TypeOrderReordered  Type = "order_reordered"
	TypeOrdersValidated Type = "orders_validated"
	TypeActionRejected  Type = "action_rejected"
	TypeSessionEnded    Type = "session_ended"
)

// Event is implemented by every payload struct in the game package.
type Event interface {
	EventType() Type
}

// Handler receives published events.
type Handler func(Event)

// Bus is a synchronous publish/subscribe bus. One instance is shared by
// all components of a session; it is safe for concurrent use, though the
// coordination core itself is single-writer.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
	all      []Handler
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{handlers: make(map[Type][]Handler)}
}

// Subscribe registers a handler for one event type. Handlers run in
// subscription order.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// SubscribeAll registers a handler for every event type. Used by the
// server layer to relay all session events to connected clients.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Publish delivers an event synchronously to all matching handlers.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	specific := b.handlers[e.EventType()]
	catchAll := b.all
	b.mu.RUnlock()

	for _, h := range specific {
		h(e)
	}
	for _, h := range catchAll {
		h(e)
	}
}
