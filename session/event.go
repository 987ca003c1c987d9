package session

import (
	"sync"
	"time"
)

// EventKind names a session lifecycle event.
type EventKind string

const (
	EventConnect         EventKind = "connect"
	EventDisconnect      EventKind = "disconnect"
	EventReconnecting    EventKind = "reconnecting"
	EventReconnect       EventKind = "reconnect"
	EventError           EventKind = "error"
	EventClose           EventKind = "close"
	EventPermissionError EventKind = "permission_error"
)

// Event is one lifecycle notification. Err is set for disconnect, error and
// permission_error when the transport reports a cause.
type Event struct {
	Kind EventKind
	Err  error
	At   time.Time
}

// Handler receives events synchronously on the transport's callback goroutine.
type Handler func(Event)

// Emitter is the handler registry transports embed. The first connect and the
// close event are sticky: a handler registered after either fired is called once
// immediately, so a caller subscribing right after Dial cannot miss readiness.
type Emitter struct {
	mu        sync.Mutex
	nextID    int
	handlers  map[EventKind]map[int]Handler
	connected *Event
	closed    *Event
}

// NewEmitter creates an empty registry.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[EventKind]map[int]Handler)}
}

// On registers handler for kind and returns its removal func.
func (e *Emitter) On(kind EventKind, handler Handler) func() {
	e.mu.Lock()
	if e.handlers == nil {
		e.handlers = make(map[EventKind]map[int]Handler)
	}
	id := e.nextID
	e.nextID++
	if e.handlers[kind] == nil {
		e.handlers[kind] = make(map[int]Handler)
	}
	e.handlers[kind][id] = handler

	var replay *Event
	switch {
	case kind == EventConnect && e.connected != nil:
		replay = e.connected
	case kind == EventClose && e.closed != nil:
		replay = e.closed
	}
	e.mu.Unlock()

	if replay != nil {
		handler(*replay)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.handlers[kind], id)
			e.mu.Unlock()
		})
	}
}

// Emit delivers an event to the handlers registered for its kind. A connect after
// the first one is dropped; transports report later connections as EventReconnect.
// Only the first close is delivered.
func (e *Emitter) Emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	e.mu.Lock()
	switch ev.Kind {
	case EventConnect:
		if e.connected != nil {
			e.mu.Unlock()
			return
		}
		stored := ev
		e.connected = &stored
	case EventClose:
		if e.closed != nil {
			e.mu.Unlock()
			return
		}
		stored := ev
		e.closed = &stored
	}

	handlers := make([]Handler, 0, len(e.handlers[ev.Kind]))
	for _, h := range e.handlers[ev.Kind] {
		handlers = append(handlers, h)
	}
	e.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

// Ready reports whether the first connect has been emitted.
func (e *Emitter) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected != nil
}

// Closed reports whether close has been emitted.
func (e *Emitter) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed != nil
}
