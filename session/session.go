// Package session defines the messaging session capability a publish client drives:
// dialing a backend, publishing with a per-message acknowledgment, and lifecycle
// events. Transports implement Dialer and Session; natsclient and mqttclient are the
// shipped implementations.
package session

import (
	"context"
	"time"
)

// Dialer opens sessions against an endpoint group.
type Dialer interface {
	// Dial opens a new session. endpoints is transport specific, typically a comma
	// separated list of server URLs, and identity names this client to the backend.
	// Dial may return before the session is ready; readiness is signalled with an
	// EventConnect, which the returned session replays to late subscribers.
	Dial(ctx context.Context, endpoints, identity string, opts Options) (Session, error)
}

// Session is one connection to the backend. Sessions are never reused after Close;
// reconnecting means dialing a new one.
type Session interface {
	// Publish sends one message and blocks until the backend acknowledges it, the
	// backend reports an error, or ctx is done. It never drops silently.
	Publish(ctx context.Context, subject string, payload []byte) error

	// On registers a handler for an event kind. The returned func removes it.
	On(kind EventKind, handler Handler) (off func())

	// Close closes the session and waits for the transport to confirm.
	// Calling it on a closed session returns nil.
	Close(ctx context.Context) error
}

// Options tune how a transport connects and recovers by itself.
type Options struct {
	ReconnectEnabled     bool
	MaxReconnectAttempts int // negative means unlimited
	WaitForFirstConnect  bool
	ReconnectWait        time.Duration
	ConnectTimeout       time.Duration

	// Override keeps the fields above exactly as given. Without it Permissive
	// replaces the reconnect settings with reconnect-forever defaults.
	Override bool
}

const (
	DefaultReconnectWait  = 2 * time.Second
	DefaultConnectTimeout = 5 * time.Second
)

// DefaultOptions returns reconnect-forever options.
func DefaultOptions() Options {
	return Options{
		ReconnectEnabled:     true,
		MaxReconnectAttempts: -1,
		WaitForFirstConnect:  true,
		ReconnectWait:        DefaultReconnectWait,
		ConnectTimeout:       DefaultConnectTimeout,
	}
}

// Permissive returns o with unlimited transport reconnects and wait-on-first-connect
// forced, unless Override is set. Zero durations are filled with defaults either way.
func (o Options) Permissive() Options {
	if !o.Override {
		o.ReconnectEnabled = true
		o.MaxReconnectAttempts = -1
		o.WaitForFirstConnect = true
	}
	if o.ReconnectWait <= 0 {
		o.ReconnectWait = DefaultReconnectWait
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	return o
}
