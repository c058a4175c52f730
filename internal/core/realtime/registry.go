package realtime

import (
	"log/slog"
	"sync"

	"github.com/chatforge/realtime-console/internal/core/domain"
)

// Handler consumes one inbound envelope.
type Handler func(env domain.Envelope)

type registration struct {
	id uint64
	fn Handler
}

// Registry routes inbound envelopes to subscribers by event type. Handlers
// for one type run in registration order. A catch-all handler, when set,
// sees every envelope including unknown types. Dispatch snapshots the
// handler list first, so handlers may subscribe or unsubscribe (including
// themselves) mid-delivery without corrupting iteration.
type Registry struct {
	mu       sync.RWMutex
	handlers map[domain.EventType][]registration
	catchAll Handler
	nextID   uint64
	logger   *slog.Logger
}

// NewRegistry creates an empty dispatch registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		handlers: make(map[domain.EventType][]registration),
		logger:   logger.With("component", "dispatch_registry"),
	}
}

// Subscribe registers a handler for one event type and returns an
// unsubscribe function that removes exactly that handler. Calling the
// returned function more than once is safe.
func (r *Registry) Subscribe(eventType domain.EventType, fn Handler) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.handlers[eventType] = append(r.handlers[eventType], registration{id: id, fn: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.remove(eventType, id)
		})
	}
}

// Unsubscribe removes every handler registered for the given type.
func (r *Registry) Unsubscribe(eventType domain.EventType) {
	r.mu.Lock()
	delete(r.handlers, eventType)
	r.mu.Unlock()
}

// SetCatchAll installs the single global handler invoked for every envelope
// before type-specific delivery. Passing nil clears it.
func (r *Registry) SetCatchAll(fn Handler) {
	r.mu.Lock()
	r.catchAll = fn
	r.mu.Unlock()
}

// HandlerCount returns the number of handlers registered for a type.
func (r *Registry) HandlerCount(eventType domain.EventType) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[eventType])
}

// Dispatch delivers an envelope to the catch-all handler and then to each
// type-specific handler in registration order. A panicking handler is logged
// and skipped; it never blocks delivery to the rest.
func (r *Registry) Dispatch(env domain.Envelope) {
	r.mu.RLock()
	catchAll := r.catchAll
	regs := r.handlers[env.Type]
	snapshot := make([]registration, len(regs))
	copy(snapshot, regs)
	r.mu.RUnlock()

	if catchAll != nil {
		r.invoke(catchAll, env)
	}
	for _, reg := range snapshot {
		r.invoke(reg.fn, env)
	}
}

func (r *Registry) invoke(fn Handler, env domain.Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("event handler panicked",
				"event_type", env.Type,
				"panic", rec,
			)
		}
	}()
	fn(env)
}

func (r *Registry) remove(eventType domain.EventType, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	regs := r.handlers[eventType]
	for i, reg := range regs {
		if reg.id == id {
			r.handlers[eventType] = append(regs[:i:i], regs[i+1:]...)
			break
		}
	}
	if len(r.handlers[eventType]) == 0 {
		delete(r.handlers, eventType)
	}
}
