package natsclient

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/multierr"

	"github.com/c360/edgepub/errors"
	"github.com/c360/edgepub/pkg/retry"
	"github.com/c360/edgepub/session"
)

// natsSession is one NATS connection seen as a session.Session.
type natsSession struct {
	*session.Emitter

	cfg     Config
	logger  *slog.Logger
	metrics *streamMetrics

	mu   sync.RWMutex
	conn *nats.Conn
	js   jetstream.JetStream

	provisionMu sync.Mutex
	provisioned atomic.Bool

	statsCancel context.CancelFunc
	closeOnce   sync.Once
	closeErr    error
	doneOnce    sync.Once
	done        chan struct{} // closed by the closed callback
}

func newSession(d *Dialer, identity string) *natsSession {
	return &natsSession{
		Emitter: session.NewEmitter(),
		cfg:     d.cfg,
		logger:  d.logger.With("client_id", identity),
		metrics: d.metrics,
		done:    make(chan struct{}),
	}
}

func (s *natsSession) attach(conn *nats.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
	if s.cfg.JetStream.Enabled {
		if js, err := jetstream.New(conn); err == nil {
			s.js = js
		} else {
			s.logger.Error("jetstream unavailable", "error", err)
		}
	}
}

func (s *natsSession) connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn != nil && s.conn.IsConnected()
}

// Publish sends one message. Plain NATS publishes are confirmed with a flush; with
// JetStream the stream's acknowledgment is awaited.
func (s *natsSession) Publish(ctx context.Context, subject string, payload []byte) error {
	s.mu.RLock()
	conn, js := s.conn, s.js
	s.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return session.ErrSessionClosed
	}

	if s.cfg.JetStream.Enabled {
		if js == nil {
			return errors.WrapTransient(errors.ErrNotConfigured, "natsclient", "Publish", "jetstream context")
		}
		if err := s.ensureStream(ctx, js); err != nil {
			return err
		}
		if _, err := js.Publish(ctx, subject, payload); err != nil {
			s.metrics.recordError("publish")
			return mapPublishError(err)
		}
		return nil
	}

	if err := conn.Publish(subject, payload); err != nil {
		return mapPublishError(err)
	}
	if err := conn.FlushWithContext(ctx); err != nil {
		return mapPublishError(err)
	}
	return nil
}

// ensureStream creates or updates the configured stream once per session.
func (s *natsSession) ensureStream(ctx context.Context, js jetstream.JetStream) error {
	if !s.cfg.JetStream.Provision || s.provisioned.Load() {
		return nil
	}

	s.provisionMu.Lock()
	defer s.provisionMu.Unlock()
	if s.provisioned.Load() {
		return nil
	}

	streamCfg := s.cfg.JetStream.streamConfig()
	stream, err := retry.DoWithResult(ctx, retry.Quick(), func() (jetstream.Stream, error) {
		return js.CreateOrUpdateStream(ctx, streamCfg)
	})
	if err != nil {
		s.metrics.recordError("provision_stream")
		return errors.WrapTransient(err, "natsclient", "Publish", "provision stream "+streamCfg.Name)
	}

	s.provisioned.Store(true)
	s.metrics.trackStream(streamCfg.Name, stream)
	if s.metrics != nil && s.cfg.StatsInterval > 0 {
		s.mu.Lock()
		if s.statsCancel == nil {
			s.statsCancel = s.metrics.startPoller(context.Background(), s.cfg.StatsInterval)
		}
		s.mu.Unlock()
	}
	s.logger.Info("stream ready", "stream", streamCfg.Name, "subjects", streamCfg.Subjects)
	return nil
}

// Close drains the connection, bounded by ctx and the drain timeout, then closes it.
func (s *natsSession) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closeErr = s.drainAndClose(ctx)
	})
	return s.closeErr
}

func (s *natsSession) drainAndClose(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	if s.statsCancel != nil {
		s.statsCancel()
		s.statsCancel = nil
	}
	s.mu.Unlock()

	if conn == nil {
		s.Emit(session.Event{Kind: session.EventClose, At: time.Now()})
		return nil
	}
	if conn.IsClosed() {
		return nil
	}

	var errs error
	if conn.IsConnected() {
		drainTimeout := s.cfg.DrainTimeout
		if drainTimeout <= 0 {
			drainTimeout = 10 * time.Second
		}
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining > 0 && remaining < drainTimeout {
				drainTimeout = remaining
			}
		}

		if err := conn.Drain(); err != nil {
			errs = multierr.Append(errs, errors.Wrap(err, "natsclient", "Close", "drain connection"))
		} else {
			select {
			case <-s.done:
			case <-time.After(drainTimeout):
				errs = multierr.Append(errs, errors.WrapTransient(
					errors.ErrConnectionTimeout, "natsclient", "Close", "drain timeout"))
			case <-ctx.Done():
				errs = multierr.Append(errs, errors.Wrap(ctx.Err(), "natsclient", "Close", "context cancelled during drain"))
			}
		}
	}

	conn.Close()
	return errs
}

// closeConn closes a connection nobody will use.
func (s *natsSession) closeConn() {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn != nil {
		conn.Close()
	}
}

func (s *natsSession) handleConnect(conn *nats.Conn) {
	s.logger.Info("nats connected", "server", conn.ConnectedUrlRedacted())
	s.Emit(session.Event{Kind: session.EventConnect, At: time.Now()})
}

func (s *natsSession) handleDisconnect(conn *nats.Conn, err error) {
	s.logger.Warn("nats disconnected", "error", err)
	now := time.Now()
	s.Emit(session.Event{Kind: session.EventDisconnect, Err: err, At: now})
	if conn.IsReconnecting() {
		s.Emit(session.Event{Kind: session.EventReconnecting, At: now})
	}
}

func (s *natsSession) handleReconnect(conn *nats.Conn) {
	s.logger.Info("nats reconnected", "server", conn.ConnectedUrlRedacted())
	s.Emit(session.Event{Kind: session.EventReconnect, At: time.Now()})
}

func (s *natsSession) handleClosed(conn *nats.Conn) {
	err := conn.LastError()
	s.logger.Info("nats connection closed", "error", err)
	s.doneOnce.Do(func() { close(s.done) })
	s.Emit(session.Event{Kind: session.EventClose, Err: err, At: time.Now()})
}

func (s *natsSession) handleError(_ *nats.Conn, sub *nats.Subscription, err error) {
	kind := session.EventError
	if errors.Is(err, nats.ErrPermissionViolation) {
		kind = session.EventPermissionError
	}
	attrs := []any{"error", err}
	if sub != nil {
		attrs = append(attrs, "subject", sub.Subject)
	}
	s.logger.Error("nats async error", attrs...)
	s.Emit(session.Event{Kind: kind, Err: err, At: time.Now()})
}
