package publisher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/c360/edgepub/errors"
	"github.com/c360/edgepub/pkg/retry"
	"github.com/c360/edgepub/session"
)

// connectAttempt resolves one connect call: ready once the session first
// connects, failed if it errors or closes before that.
type connectAttempt struct {
	once   sync.Once
	ready  chan struct{}
	failed chan error
}

func newConnectAttempt() *connectAttempt {
	return &connectAttempt{ready: make(chan struct{}), failed: make(chan error, 1)}
}

func (a *connectAttempt) markReady() {
	a.once.Do(func() { close(a.ready) })
}

func (a *connectAttempt) fail(err error) {
	if err == nil {
		err = session.ErrSessionClosed
	}
	select {
	case a.failed <- err:
	default:
	}
}

// Connect opens a session to the endpoint group clusterID under identity
// clientID and waits until it is ready. Any previous session is closed first and
// any running reconnect loop is stopped. The parameters are kept for Reconnect.
// Unless opts.Override is set, the transport is told to reconnect forever.
func (c *Client) Connect(ctx context.Context, clusterID, clientID string, opts session.Options) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return errors.WrapInvalid(errors.ErrInvalidState, "publisher", "Connect", "client torn down")
	}

	c.stopReconnect()
	return c.connect(ctx, &connectParams{
		clusterID: clusterID,
		clientID:  clientID,
		opts:      opts.Permissive(),
	})
}

func (c *Client) connect(ctx context.Context, p *connectParams) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if err := c.disconnectLocked(ctx); err != nil {
		c.log().Warn("closing previous session failed", "error", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.WrapInvalid(errors.ErrInvalidState, "publisher", "connect", "client torn down")
	}
	c.params = p
	c.pendingCancel = cancel
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.pendingCancel = nil
		c.mu.Unlock()
	}()

	logger := c.log()
	logger.Info("connecting")

	sess, err := c.dialer.Dial(ctx, p.clusterID, p.clientID, p.opts)
	if err != nil {
		c.mu.Lock()
		c.lastErr = err
		c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		c.emit(SignalConnectionError, err)
		return errors.WrapTransient(err, "publisher", "Connect", "dial session")
	}

	att := newConnectAttempt()

	c.mu.Lock()
	c.sess = sess
	c.sessReady = false
	c.mu.Unlock()

	// connect last so a close that already happened is seen as failure first
	kinds := []session.EventKind{
		session.EventDisconnect,
		session.EventReconnecting,
		session.EventReconnect,
		session.EventError,
		session.EventPermissionError,
		session.EventClose,
		session.EventConnect,
	}
	detach := make([]func(), 0, len(kinds))
	for _, kind := range kinds {
		detach = append(detach, sess.On(kind, func(ev session.Event) {
			c.handleEvent(sess, att, ev)
		}))
	}

	c.mu.Lock()
	if c.sess == sess {
		c.detach = detach
	}
	c.mu.Unlock()

	var failure error
	select {
	case failure = <-att.failed:
	case <-att.ready:
		select {
		case failure = <-att.failed:
		default:
		}
	case <-ctx.Done():
		failure = ctx.Err()
	}

	if failure == nil {
		return nil
	}

	c.abandon(ctx, sess, detach, failure)
	return errors.WrapTransient(failure, "publisher", "Connect", "wait for session ready")
}

// abandon discards a session that never became ready.
func (c *Client) abandon(ctx context.Context, sess session.Session, detach []func(), cause error) {
	c.mu.Lock()
	if c.sess == sess {
		c.sess = nil
		c.detach = nil
		c.sessReady = false
		c.cancelDrainLocked()
		c.setStateLocked(StateDisconnected)
	}
	c.lastErr = cause
	c.mu.Unlock()

	for _, off := range detach {
		off()
	}
	if err := sess.Close(context.WithoutCancel(ctx)); err != nil {
		c.log().Warn("closing failed session", "error", err)
	}
}

// handleEvent reacts to lifecycle events of sess. Events from a session that is no
// longer current are ignored.
func (c *Client) handleEvent(sess session.Session, att *connectAttempt, ev session.Event) {
	c.mu.Lock()
	if c.sess != sess {
		c.mu.Unlock()
		return
	}
	ready := c.sessReady
	logger := c.logger

	switch ev.Kind {
	case session.EventConnect:
		if ready {
			c.mu.Unlock()
			return
		}
		c.becomeConnectedLocked()
		c.mu.Unlock()

		att.markReady()
		logger.Info("connected")
		c.emit(SignalConnected, nil)

	case session.EventDisconnect:
		if !ready {
			c.mu.Unlock()
			return
		}
		c.lastErr = ev.Err
		c.cancelDrainLocked()
		c.setStateLocked(StateDisconnected)
		c.mu.Unlock()

		logger.Warn("disconnected", "error", ev.Err, "buffered", c.buf.Len())
		c.emit(SignalDisconnected, ev.Err)

	case session.EventReconnecting:
		c.setStateLocked(StateConnecting)
		c.mu.Unlock()

		logger.Info("transport reconnecting")
		c.emit(SignalReconnecting, nil)

	case session.EventReconnect:
		c.becomeConnectedLocked()
		c.mu.Unlock()

		att.markReady()
		if c.metrics != nil {
			c.metrics.RecordReconnect(c.name, "transport")
		}
		logger.Info("transport reconnected", "buffered", c.buf.Len())
		c.emit(SignalReconnected, nil)

	case session.EventError, session.EventPermissionError:
		c.lastErr = ev.Err
		c.mu.Unlock()

		if !ready {
			att.fail(ev.Err)
		}
		if ev.Kind == session.EventPermissionError {
			logger.Error("permission error", "error", ev.Err)
		} else {
			logger.Error("connection error", "error", ev.Err)
		}
		c.emit(SignalConnectionError, ev.Err)

	case session.EventClose:
		if !ready {
			c.mu.Unlock()
			att.fail(ev.Err)
			return
		}
		c.cancelDrainLocked()
		c.setStateLocked(StateDisconnected)
		gen := c.generation
		c.mu.Unlock()

		logger.Warn("session closed by transport, reconnecting", "buffered", c.buf.Len())
		c.emit(SignalDisconnected, ev.Err)
		go func() {
			if err := c.reconnect(context.Background(), gen); err != nil {
				logger.Debug("automatic reconnect ended", "error", err)
			}
		}()

	default:
		c.mu.Unlock()
	}
}

// becomeConnectedLocked marks the current session connected and restarts
// delivery. Caller holds c.mu.
func (c *Client) becomeConnectedLocked() {
	c.sessReady = true
	c.everConnected = true
	c.connectedSince = c.clock.Now()
	c.lastErr = nil
	c.retries.Store(0)
	c.setStateLocked(StateConnected)
	c.newDrainCtxLocked()
	c.maybeStartDrainLocked()
}

// Disconnect closes the current session and waits for it to close. It stops any
// reconnect loop and interrupts a pending Connect. Without a session it returns
// nil immediately.
func (c *Client) Disconnect(ctx context.Context) error {
	c.stopReconnect()
	c.cancelPending()

	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	return c.disconnectLocked(ctx)
}

// disconnectLocked closes the current session. Caller holds c.lifecycleMu.
func (c *Client) disconnectLocked(ctx context.Context) error {
	c.mu.Lock()
	sess, detach := c.sess, c.detach
	c.sess = nil
	c.detach = nil
	c.sessReady = false
	c.cancelDrainLocked()
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	// the drain goroutine sees its context cancelled and requeues its item
	c.drainWG.Wait()

	if sess == nil {
		return nil
	}

	for _, off := range detach {
		off()
	}

	err := sess.Close(ctx)
	c.log().Info("disconnected", "buffered", c.buf.Len())
	c.emit(SignalDisconnected, nil)
	if err != nil {
		return errors.WrapTransient(err, "publisher", "Disconnect", "close session")
	}
	return nil
}

// Reconnect closes the current session and connects again with the parameters of
// the last Connect, retrying every ReconnectDelay until it succeeds. Concurrent
// calls share one attempt. The attempt runs until success, Disconnect or Teardown;
// ctx only bounds how long this caller waits for it.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	closed, params, gen := c.closed, c.params, c.generation
	c.mu.Unlock()

	if closed {
		return errors.WrapInvalid(errors.ErrInvalidState, "publisher", "Reconnect", "client torn down")
	}
	if params == nil {
		return errors.WrapInvalid(errors.ErrNotConfigured, "publisher", "Reconnect", "no previous connect")
	}
	return c.reconnect(ctx, gen)
}

// reconnect runs or joins the reconnect loop for generation gen. A Disconnect,
// Connect or Teardown since gen was read makes the loop exit without dialing.
func (c *Client) reconnect(ctx context.Context, gen uint64) error {
	ch := c.group.DoChan(fmt.Sprintf("reconnect/%d", gen), func() (any, error) {
		return nil, c.runReconnect(gen)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) runReconnect(gen uint64) error {
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return errors.WrapInvalid(errors.ErrInvalidState, "publisher", "Reconnect", "client torn down")
	}
	if c.generation != gen {
		c.mu.Unlock()
		cancel()
		return errors.WrapTransient(context.Canceled, "publisher", "Reconnect", "superseded by disconnect")
	}
	params := c.params
	c.reconnectCancel = cancel
	c.reconnectDone = done
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.reconnectDone == done {
			c.reconnectCancel = nil
			c.reconnectDone = nil
		}
		c.mu.Unlock()
		cancel()
		close(done)
	}()

	logger := c.log()
	logger.Info("forced reconnect", "buffered", c.buf.Len())
	c.emit(SignalForcedReconnecting, nil)

	c.lifecycleMu.Lock()
	err := c.disconnectLocked(loopCtx)
	c.lifecycleMu.Unlock()
	if err != nil {
		logger.Warn("closing session before reconnect failed", "error", err)
	}
	c.emit(SignalForcedDisconnected, nil)

	err = retry.Forever(loopCtx, c.clock, c.cfg.ReconnectDelay,
		func(ctx context.Context) error {
			attemptCtx, stop := context.WithTimeout(ctx, params.opts.ConnectTimeout)
			defer stop()
			return c.connect(attemptCtx, params)
		},
		func(attempt int, err error) {
			logger.Warn("reconnect attempt failed", "attempt", attempt, "error", err,
				"retry_in", c.cfg.ReconnectDelay)
		})
	if err != nil {
		return errors.WrapTransient(err, "publisher", "Reconnect", "reconnect loop")
	}

	c.retries.Store(0)
	if c.metrics != nil {
		c.metrics.RecordReconnect(c.name, "forced")
	}
	logger.Info("forced reconnect complete")
	c.emit(SignalForcedReconnected, nil)
	return nil
}

// stopReconnect cancels a running reconnect loop and waits for it to exit.
// Reconnects requested before this call and not yet running never start.
func (c *Client) stopReconnect() {
	c.mu.Lock()
	c.generation++
	cancel, done := c.reconnectCancel, c.reconnectDone
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *Client) cancelPending() {
	c.mu.Lock()
	cancel := c.pendingCancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Teardown permanently stops the client: later Publish, Connect and Reconnect
// calls fail with ErrInvalidState. Pending timers are cancelled and the session is
// closed. Undelivered messages are discarded.
func (c *Client) Teardown(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.stopReconnect()
	c.cancelPending()

	c.lifecycleMu.Lock()
	err := c.disconnectLocked(ctx)
	c.lifecycleMu.Unlock()

	if n := c.buf.Len(); n > 0 {
		c.log().Warn("discarding undelivered messages on teardown", "count", n)
	}

	err = multierr.Append(err, ctx.Err())
	if err != nil {
		return fmt.Errorf("publisher teardown: %w", err)
	}
	return nil
}
