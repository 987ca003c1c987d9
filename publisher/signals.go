package publisher

import (
	"sync"
	"time"
)

// Signal names a lifecycle or delivery notification raised by the client.
type Signal string

const (
	SignalConnected          Signal = "connected"
	SignalDisconnected       Signal = "disconnected"
	SignalReconnecting       Signal = "reconnecting"
	SignalReconnected        Signal = "reconnected"
	SignalConnectionError    Signal = "connection_error"
	SignalForcedReconnecting Signal = "forced_reconnecting"
	SignalForcedDisconnected Signal = "forced_disconnected"
	SignalForcedReconnected  Signal = "forced_reconnected"
	SignalOverflowDrop       Signal = "overflow_drop"
	SignalDelivered          Signal = "delivered"
	SignalPublishFailed      Signal = "publish_failed"
)

// Notification is one signal with its payload. Item is set for overflow_drop,
// delivered and publish_failed; Kind and Attempt for publish_failed.
type Notification struct {
	Signal  Signal
	Err     error
	Item    *Item
	Kind    FailureKind
	Attempt int64
	At      time.Time
}

// Observer receives notifications synchronously. It must not call Connect,
// Disconnect, Reconnect or Teardown inline; start a goroutine for that.
type Observer func(Notification)

type signalHub struct {
	mu        sync.RWMutex
	nextID    int
	observers map[int]Observer
}

func newSignalHub() *signalHub {
	return &signalHub{observers: make(map[int]Observer)}
}

func (h *signalHub) observe(fn Observer) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.observers[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.observers, id)
		h.mu.Unlock()
	}
}

func (h *signalHub) emit(n Notification) {
	h.mu.RLock()
	observers := make([]Observer, 0, len(h.observers))
	for _, fn := range h.observers {
		observers = append(observers, fn)
	}
	h.mu.RUnlock()

	for _, fn := range observers {
		fn(n)
	}
}
