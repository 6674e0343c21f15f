package event

import (
	"sync"
)

// EventHandler handles notifications
type EventHandler interface {
	// Handle processes the event
	Handle(event DomainEvent) error
	// HandledEvents returns the event names this handler handles
	HandledEvents() []string
}

// EventDispatcher dispatches notifications to registered handlers
type EventDispatcher interface {
	// Dispatch sends an event to all registered handlers
	Dispatch(event DomainEvent)
	// DispatchAll dispatches multiple events
	DispatchAll(events []DomainEvent)
	// Subscribe registers a handler for events
	Subscribe(handler EventHandler)
	// Unsubscribe removes a handler
	Unsubscribe(handler EventHandler)
}

// HandlerFunc adapts a function to EventHandler
type HandlerFunc struct {
	fn     func(DomainEvent) error
	events []string
}

// NewHandlerFunc creates a handler calling fn for the named events, or all events if none are named
func NewHandlerFunc(fn func(DomainEvent) error, events ...string) *HandlerFunc {
	if len(events) == 0 {
		events = []string{AllEvents}
	}
	return &HandlerFunc{fn: fn, events: events}
}

// Handle calls the wrapped function
func (h *HandlerFunc) Handle(event DomainEvent) error {
	return h.fn(event)
}

// HandledEvents returns the subscribed event names
func (h *HandlerFunc) HandledEvents() []string {
	return h.events
}

// InMemoryDispatcher is an in-memory implementation of EventDispatcher.
// In synchronous mode handlers run on the dispatching goroutine in subscription order.
type InMemoryDispatcher struct {
	handlers map[string][]EventHandler
	mu       sync.RWMutex
	async    bool
	onError  func(DomainEvent, error)
}

// NewInMemoryDispatcher creates a new InMemoryDispatcher
func NewInMemoryDispatcher(async bool) *InMemoryDispatcher {
	return &InMemoryDispatcher{
		handlers: make(map[string][]EventHandler),
		async:    async,
	}
}

// SetErrorHandler sets a callback for handler errors
func (d *InMemoryDispatcher) SetErrorHandler(fn func(DomainEvent, error)) {
	d.mu.Lock()
	d.onError = fn
	d.mu.Unlock()
}

// Dispatch sends an event to all registered handlers
func (d *InMemoryDispatcher) Dispatch(event DomainEvent) {
	d.mu.RLock()
	named := d.handlers[event.EventName()]
	all := d.handlers[AllEvents]
	combined := make([]EventHandler, 0, len(named)+len(all))
	combined = append(combined, named...)
	combined = append(combined, all...)
	onError := d.onError
	d.mu.RUnlock()

	for _, handler := range combined {
		if d.async {
			go func(h EventHandler) {
				d.handle(h, event, onError)
			}(handler)
		} else {
			d.handle(handler, event, onError)
		}
	}
}

func (d *InMemoryDispatcher) handle(h EventHandler, event DomainEvent, onError func(DomainEvent, error)) {
	if err := h.Handle(event); err != nil && onError != nil {
		onError(event, err)
	}
}

// DispatchAll dispatches multiple events
func (d *InMemoryDispatcher) DispatchAll(events []DomainEvent) {
	for _, event := range events {
		d.Dispatch(event)
	}
}

// Subscribe registers a handler for events
func (d *InMemoryDispatcher) Subscribe(handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, eventName := range handler.HandledEvents() {
		d.handlers[eventName] = append(d.handlers[eventName], handler)
	}
}

// Unsubscribe removes a handler
func (d *InMemoryDispatcher) Unsubscribe(handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, eventName := range handler.HandledEvents() {
		handlers := d.handlers[eventName]
		for i, h := range handlers {
			if h == handler {
				kept := make([]EventHandler, 0, len(handlers)-1)
				kept = append(kept, handlers[:i]...)
				d.handlers[eventName] = append(kept, handlers[i+1:]...)
				break
			}
		}
	}
}

// NullDispatcher is a no-op dispatcher for when events are not needed
type NullDispatcher struct{}

// NewNullDispatcher creates a new NullDispatcher
func NewNullDispatcher() *NullDispatcher {
	return &NullDispatcher{}
}

// Dispatch does nothing
func (d *NullDispatcher) Dispatch(event DomainEvent) {}

// DispatchAll does nothing
func (d *NullDispatcher) DispatchAll(events []DomainEvent) {}

// Subscribe does nothing
func (d *NullDispatcher) Subscribe(handler EventHandler) {}

// Unsubscribe does nothing
func (d *NullDispatcher) Unsubscribe(handler EventHandler) {}
