package mqttclient

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/c360/edgepub/errors"
	"github.com/c360/edgepub/session"
)

// mqttSession is one paho client seen as a session.Session.
type mqttSession struct {
	*session.Emitter

	dialer *Dialer
	client mqtt.Client
	logger *slog.Logger

	maxReconnects int
	everConnected atomic.Bool
	reconnects    atomic.Int64

	closeOnce sync.Once
	closed    atomic.Bool
}

func newSession(d *Dialer, identity string, opts session.Options) *mqttSession {
	maxReconnects := opts.MaxReconnectAttempts
	if !opts.ReconnectEnabled {
		maxReconnects = 0
	}
	return &mqttSession{
		Emitter:       session.NewEmitter(),
		dialer:        d,
		logger:        d.logger.With("client_id", identity),
		maxReconnects: maxReconnects,
	}
}

// Publish sends one message at the configured QoS and waits for the broker's
// acknowledgment, or for the write at QoS 0.
func (s *mqttSession) Publish(ctx context.Context, subject string, payload []byte) error {
	if s.closed.Load() {
		return session.ErrSessionClosed
	}
	if !s.client.IsConnectionOpen() {
		return errors.WrapTransient(errors.ErrNotConnected, "mqttclient", "Publish", "publish")
	}

	cfg := s.dialer.cfg
	token := s.client.Publish(s.dialer.topic(subject), cfg.QoS, cfg.Retained, payload)

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			if s.closed.Load() {
				return session.ErrSessionClosed
			}
			return errors.WrapTransient(err, "mqttclient", "Publish", "publish")
		}
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errors.WrapTransient(session.ErrAckTimeout, "mqttclient", "Publish", "wait for puback")
		}
		return errors.WrapTransient(ctx.Err(), "mqttclient", "Publish", "wait for puback")
	}
}

// Close disconnects, letting in-flight work finish for the quiesce timeout, and
// emits close. paho has no close callback of its own.
func (s *mqttSession) Close(context.Context) error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		quiesce := uint(s.dialer.cfg.QuiesceTimeout / time.Millisecond)
		s.client.Disconnect(quiesce)
		s.logger.Info("mqtt session closed")
		s.Emit(session.Event{Kind: session.EventClose, At: time.Now()})
	})
	return nil
}

// handleConnect fires for the first connection and for every automatic
// reconnection after it.
func (s *mqttSession) handleConnect(mqtt.Client) {
	s.reconnects.Store(0)
	if s.everConnected.Swap(true) {
		s.logger.Info("mqtt reconnected")
		s.Emit(session.Event{Kind: session.EventReconnect, At: time.Now()})
		return
	}
	s.logger.Info("mqtt connected")
	s.Emit(session.Event{Kind: session.EventConnect, At: time.Now()})
}

func (s *mqttSession) handleConnectionLost(_ mqtt.Client, err error) {
	s.logger.Warn("mqtt connection lost", "error", err)
	s.Emit(session.Event{Kind: session.EventDisconnect, Err: err, At: time.Now()})
	if s.maxReconnects == 0 {
		// no automatic reconnect, the session is over
		go s.Close(context.Background())
	}
}

// handleReconnecting fires before each automatic reconnect attempt. paho retries
// forever, so a positive attempt limit is enforced here.
func (s *mqttSession) handleReconnecting(mqtt.Client, *mqtt.ClientOptions) {
	n := s.reconnects.Add(1)
	if s.maxReconnects > 0 && n > int64(s.maxReconnects) {
		s.logger.Warn("mqtt reconnect attempts exhausted", "attempts", n-1)
		go s.Close(context.Background())
		return
	}
	s.Emit(session.Event{Kind: session.EventReconnecting, At: time.Now()})
}
