package publisher

import (
	"context"
	"time"

	"github.com/c360/edgepub/pkg/retry"
	"github.com/c360/edgepub/session"
)

// newDrainCtxLocked gives the current session a fresh delivery context. Caller
// holds c.mu.
func (c *Client) newDrainCtxLocked() {
	c.cancelDrainLocked()
	c.drainCtx, c.drainCancel = context.WithCancel(context.Background())
}

// cancelDrainLocked stops delivery on the current session. Caller holds c.mu.
func (c *Client) cancelDrainLocked() {
	if c.drainCancel != nil {
		c.drainCancel()
	}
	c.drainCtx = nil
	c.drainCancel = nil
}

// maybeStartDrainLocked starts the drain goroutine if connected, idle and there is
// work. At most one drain runs at a time. Caller holds c.mu.
func (c *Client) maybeStartDrainLocked() {
	if c.draining || c.closed || c.state != StateConnected || c.drainCtx == nil || c.sess == nil {
		return
	}
	if c.buf.IsEmpty() {
		return
	}

	c.draining = true
	c.drainWG.Add(1)
	go c.drain(c.drainCtx, c.sess)
}

func (c *Client) wake() {
	c.mu.Lock()
	c.maybeStartDrainLocked()
	c.mu.Unlock()
}

// endDrain marks the loop idle and hands over to a newer session if one is
// connected with work pending.
func (c *Client) endDrain() {
	c.mu.Lock()
	c.draining = false
	c.maybeStartDrainLocked()
	c.mu.Unlock()
}

// endDrainIfEmpty goes idle only if nothing was queued since the last pop.
func (c *Client) endDrainIfEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.buf.IsEmpty() {
		return false
	}
	c.draining = false
	return true
}

// drain delivers buffered items in order through sess until the buffer is empty,
// ctx is cancelled, or failures escalate to a reconnect.
func (c *Client) drain(ctx context.Context, sess session.Session) {
	defer c.drainWG.Done()

	for {
		if ctx.Err() != nil {
			c.endDrain()
			return
		}

		item, ok := c.buf.PopFront()
		if !ok {
			if c.endDrainIfEmpty() {
				return
			}
			continue
		}

		pubCtx, cancel := context.WithTimeout(ctx, c.cfg.PublishTimeout)
		started := c.clock.Now()
		err := sess.Publish(pubCtx, item.Subject, item.Payload)
		cancel()

		if err == nil {
			c.onDelivered(item, started)
			continue
		}

		// failed items go back to the head so nothing newer overtakes them
		c.buf.PushFront(item)

		if ctx.Err() != nil {
			c.endDrain()
			return
		}

		kind := Classify(err)
		attempt := c.retries.Add(1)
		c.onFailed(item, kind, attempt, err)

		if kind == FailureSessionInvalid ||
			attempt >= int64(c.cfg.RetryThreshold) ||
			(kind == FailureAckTimeout && c.cfg.EscalateOnAckTimeout) {
			c.escalate(ctx, kind, attempt)
			return
		}

		if err := retry.Wait(ctx, c.clock, c.backoff.Delay(int(attempt))); err != nil {
			c.endDrain()
			return
		}
	}
}

func (c *Client) onDelivered(item Item, started time.Time) {
	c.retries.Store(0)
	c.delivered.Add(1)
	now := c.clock.Now()

	c.mu.Lock()
	c.lastActivity = now
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordDelivered(c.name, now.Sub(started), c.buf.Len())
	}
	c.logger.Debug("delivered", "subject", item.Subject, "bytes", len(item.Payload))
	c.signals.emit(Notification{Signal: SignalDelivered, Item: &item, At: now})
}

func (c *Client) onFailed(item Item, kind FailureKind, attempt int64, err error) {
	if c.metrics != nil {
		c.metrics.RecordPublishFailure(c.name, string(kind), attempt)
	}
	c.logger.Warn("publish attempt failed",
		"subject", item.Subject, "failure", string(kind), "attempt", attempt, "error", err)
	c.signals.emit(Notification{
		Signal:  SignalPublishFailed,
		Err:     err,
		Item:    &item,
		Kind:    kind,
		Attempt: attempt,
		At:      c.clock.Now(),
	})
}

// escalate abandons local retries on the session owning ctx and starts a
// reconnect. The drain goroutine exits right after.
func (c *Client) escalate(ctx context.Context, kind FailureKind, attempt int64) {
	c.mu.Lock()
	c.draining = false
	if ctx.Err() != nil || c.closed {
		// session already replaced or closing
		c.maybeStartDrainLocked()
		c.mu.Unlock()
		return
	}
	c.cancelDrainLocked()
	c.setStateLocked(StateConnecting)
	gen := c.generation
	c.mu.Unlock()

	c.logger.Warn("escalating to reconnect", "failure", string(kind), "consecutive_failures", attempt)
	go func() {
		if err := c.reconnect(context.Background(), gen); err != nil {
			c.logger.Debug("escalated reconnect ended", "error", err)
		}
	}()
}
