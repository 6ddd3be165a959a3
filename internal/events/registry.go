// Package events provides the observer registry used to fan out brokerage
// lifecycle events: handlers attach and detach dynamically, and every
// published event is dispatched synchronously to all currently registered
// handlers in registration order.
package events

import (
	"sync"
	"time"
)

// Type is the category of a brokerage event.
type Type uint8

const (
	TypeUnknown Type = iota
	TypeOrderStatus
	TypeOrderIDChanged
	TypeOrderUpdated
	TypeOptionAssigned
	TypeOptionNotice
	TypeBrokerOrder
	TypeDelisting
	TypeAccountChanged
	TypeMessage
)

func (t Type) String() string {
	switch t {
	case TypeOrderStatus:
		return "orderStatus"
	case TypeOrderIDChanged:
		return "orderIdChanged"
	case TypeOrderUpdated:
		return "orderUpdated"
	case TypeOptionAssigned:
		return "optionAssigned"
	case TypeOptionNotice:
		return "optionNotice"
	case TypeBrokerOrder:
		return "brokerOrder"
	case TypeDelisting:
		return "delisting"
	case TypeAccountChanged:
		return "accountChanged"
	case TypeMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Event is the envelope delivered to handlers. Payload holds the concrete
// notification struct for the event type.
type Event struct {
	Type    Type
	At      time.Time
	Payload any
}

// Handler processes one event on the publisher's goroutine.
type Handler func(Event)

type registration struct {
	id uint64
	fn Handler
}

// Registry dispatches events to attached handlers in registration order.
type Registry struct {
	mu       sync.Mutex
	seq      uint64
	handlers []registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Attach registers a handler and returns its detach function. Detaching
// twice is a no-op.
func (r *Registry) Attach(h Handler) (detach func()) {
	r.mu.Lock()
	r.seq++
	id := r.seq
	r.handlers = append(r.handlers, registration{id: id, fn: h})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, reg := range r.handlers {
			if reg.id == id {
				r.handlers = append(r.handlers[:i:i], r.handlers[i+1:]...)
				return
			}
		}
	}
}

// Publish invokes every currently registered handler once, in registration
// order, on the caller's goroutine. The handler list is snapshotted first,
// so handlers may attach or detach re-entrantly.
func (r *Registry) Publish(e Event) {
	r.mu.Lock()
	snapshot := make([]registration, len(r.handlers))
	copy(snapshot, r.handlers)
	r.mu.Unlock()

	for _, reg := range snapshot {
		reg.fn(e)
	}
}

// Len returns the number of attached handlers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}
