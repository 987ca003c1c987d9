package testutil

import (
	"context"
	"sync"

	"github.com/c360/edgepub/session"
)

// Message is one payload a FakeSession acknowledged.
type Message struct {
	Subject string
	Payload []byte
}

// PublishFunc scripts the outcome of a publish attempt. attempt counts every
// Publish call on the session, starting at 1.
type PublishFunc func(ctx context.Context, attempt int, subject string, payload []byte) error

// FakeDialer is an in-memory session.Dialer. By default every dial succeeds and
// the session reports connect immediately.
type FakeDialer struct {
	mu          sync.Mutex
	sessions    []*FakeSession
	dialErrs    []error
	dialCalls   int
	autoConnect bool
	publishFn   PublishFunc
	onDial      func(*FakeSession)
	dialed      chan *FakeSession
}

// NewFakeDialer creates a dialer whose sessions connect immediately.
func NewFakeDialer() *FakeDialer {
	return &FakeDialer{
		autoConnect: true,
		dialed:      make(chan *FakeSession, 64),
	}
}

// Dial implements session.Dialer.
func (d *FakeDialer) Dial(ctx context.Context, endpoints, identity string, opts session.Options) (session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.dialCalls++
	if len(d.dialErrs) > 0 {
		err := d.dialErrs[0]
		d.dialErrs = d.dialErrs[1:]
		d.mu.Unlock()
		return nil, err
	}

	s := &FakeSession{
		Emitter:   session.NewEmitter(),
		Endpoints: endpoints,
		Identity:  identity,
		Options:   opts,
		publishFn: d.publishFn,
	}
	d.sessions = append(d.sessions, s)
	autoConnect := d.autoConnect
	onDial := d.onDial
	d.mu.Unlock()

	if onDial != nil {
		onDial(s)
	}
	if autoConnect {
		s.Connect()
	}

	select {
	case d.dialed <- s:
	default:
	}
	return s, nil
}

// FailNextDials makes the next len(errs) Dial calls fail with errs in order.
func (d *FakeDialer) FailNextDials(errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialErrs = append(d.dialErrs, errs...)
}

// SetAutoConnect controls whether new sessions emit connect on Dial.
func (d *FakeDialer) SetAutoConnect(auto bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.autoConnect = auto
}

// SetPublishFunc scripts publishing for sessions dialed from now on.
func (d *FakeDialer) SetPublishFunc(fn PublishFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.publishFn = fn
}

// OnDial runs fn for every new session before it connects.
func (d *FakeDialer) OnDial(fn func(*FakeSession)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onDial = fn
}

// Dialed delivers sessions as they are created.
func (d *FakeDialer) Dialed() <-chan *FakeSession {
	return d.dialed
}

// Sessions returns every session dialed so far.
func (d *FakeDialer) Sessions() []*FakeSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*FakeSession(nil), d.sessions...)
}

// DialCount returns the number of successful dials.
func (d *FakeDialer) DialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sessions)
}

// DialAttempts returns the number of Dial calls, failed ones included.
func (d *FakeDialer) DialAttempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dialCalls
}

// Last returns the most recent session or nil.
func (d *FakeDialer) Last() *FakeSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sessions) == 0 {
		return nil
	}
	return d.sessions[len(d.sessions)-1]
}

// Delivered returns every message acknowledged by any session, in order of dial.
func (d *FakeDialer) Delivered() []Message {
	var out []Message
	for _, s := range d.Sessions() {
		out = append(out, s.Delivered()...)
	}
	return out
}

// FakeSession is an in-memory session.Session driven by the test. Lifecycle
// helpers emit events the way a transport would.
type FakeSession struct {
	*session.Emitter

	Endpoints string
	Identity  string
	Options   session.Options

	mu         sync.Mutex
	attempts   int
	failures   []error
	publishFn  PublishFunc
	delivered  []Message
	closed     bool
	closeCalls int
}

// Publish implements session.Session. Queued failures are returned first, then the
// scripted PublishFunc decides, otherwise the message is acknowledged.
func (s *FakeSession) Publish(ctx context.Context, subject string, payload []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return session.ErrSessionClosed
	}
	s.attempts++
	attempt := s.attempts
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		s.mu.Unlock()
		return err
	}
	fn := s.publishFn
	s.mu.Unlock()

	if fn != nil {
		if err := fn(ctx, attempt, subject, payload); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.delivered = append(s.delivered, Message{Subject: subject, Payload: append([]byte(nil), payload...)})
	s.mu.Unlock()
	return nil
}

// Close implements session.Session and emits close on the first call.
func (s *FakeSession) Close(context.Context) error {
	s.mu.Lock()
	s.closeCalls++
	already := s.closed
	s.closed = true
	s.mu.Unlock()

	if !already {
		s.Emit(session.Event{Kind: session.EventClose})
	}
	return nil
}

// FailNext queues errors returned by the next Publish calls.
func (s *FakeSession) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, errs...)
}

// SetPublishFunc scripts publishing on this session.
func (s *FakeSession) SetPublishFunc(fn PublishFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishFn = fn
}

// Attempts returns the number of Publish calls on an open session.
func (s *FakeSession) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Delivered returns the acknowledged messages.
func (s *FakeSession) Delivered() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.delivered...)
}

// IsClosed reports whether Close was called.
func (s *FakeSession) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// CloseCalls returns how many times Close was called.
func (s *FakeSession) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

// Connect emits the first connect.
func (s *FakeSession) Connect() { s.Emit(session.Event{Kind: session.EventConnect}) }

// Disconnect emits a transport disconnect.
func (s *FakeSession) Disconnect(err error) {
	s.Emit(session.Event{Kind: session.EventDisconnect, Err: err})
}

// Reconnecting emits a transport reconnect attempt.
func (s *FakeSession) Reconnecting() { s.Emit(session.Event{Kind: session.EventReconnecting}) }

// Reconnect emits a transport level reconnection.
func (s *FakeSession) Reconnect() { s.Emit(session.Event{Kind: session.EventReconnect}) }

// Fail emits an asynchronous transport error.
func (s *FakeSession) Fail(err error) { s.Emit(session.Event{Kind: session.EventError, Err: err}) }

// Deny emits a permission error.
func (s *FakeSession) Deny(err error) {
	s.Emit(session.Event{Kind: session.EventPermissionError, Err: err})
}

// Drop closes the session from the transport side, as when it gives up reconnecting.
func (s *FakeSession) Drop() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Emit(session.Event{Kind: session.EventClose})
}
