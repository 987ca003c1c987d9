package natsclient

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/edgepub/errors"
	"github.com/c360/edgepub/pkg/tlsutil"
	"github.com/c360/edgepub/session"
)

// Dialer opens NATS sessions. It is safe for concurrent use.
type Dialer struct {
	cfg     Config
	logger  *slog.Logger
	metrics *streamMetrics
	extra   []nats.Option
}

// NewDialer validates cfg and applies opts.
func NewDialer(cfg Config, opts ...Option) (*Dialer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Dialer{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, errors.WrapInvalid(err, "natsclient", "NewDialer", "apply option")
		}
	}
	return d, nil
}

// Dial connects to endpoints, a comma separated list of server URLs, announcing
// identity as the connection name. With opts.WaitForFirstConnect the connection
// is returned before the server is reachable and the connect event follows once
// it is; otherwise an unreachable server fails the dial.
func (d *Dialer) Dial(ctx context.Context, endpoints, identity string, opts session.Options) (session.Session, error) {
	s := newSession(d, identity)

	natsOpts, err := d.buildConnectionOptions(identity, opts, s)
	if err != nil {
		return nil, err
	}

	logger := d.logger.With("endpoints", endpoints, "client_id", identity)
	logger.Debug("dialing nats")

	connectDone := make(chan error, 1)
	go func() {
		conn, err := nats.Connect(endpoints, natsOpts...)
		if err != nil {
			connectDone <- err
			return
		}
		s.attach(conn)
		connectDone <- nil
	}()

	select {
	case err := <-connectDone:
		if err != nil {
			return nil, errors.WrapTransient(err, "natsclient", "Dial", "establish connection")
		}
	case <-ctx.Done():
		// close the connection if it shows up after all
		go func() {
			if <-connectDone == nil {
				s.closeConn()
			}
		}()
		return nil, errors.WrapTransient(ctx.Err(), "natsclient", "Dial", "connection cancelled")
	}

	// the connect callback only fires for connections established after a retry
	if s.connected() {
		s.Emit(session.Event{Kind: session.EventConnect, At: time.Now()})
	}
	return s, nil
}

// ConnectionOptions returns the nats.go options a Dial with these arguments would
// use. Event callbacks are bound to a detached session.
func (d *Dialer) ConnectionOptions(identity string, opts session.Options) ([]nats.Option, error) {
	return d.buildConnectionOptions(identity, opts, newSession(d, identity))
}

func (d *Dialer) buildConnectionOptions(identity string, opts session.Options, s *natsSession) ([]nats.Option, error) {
	opts = opts.Permissive()

	natsOpts := []nats.Option{
		nats.Name(identity),
		nats.Timeout(opts.ConnectTimeout),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.RetryOnFailedConnect(opts.WaitForFirstConnect),
		// the publisher buffers; nats.go must not hold messages of its own
		nats.ReconnectBufSize(-1),
		nats.ConnectHandler(s.handleConnect),
		nats.DisconnectErrHandler(s.handleDisconnect),
		nats.ReconnectHandler(s.handleReconnect),
		nats.ClosedHandler(s.handleClosed),
		nats.ErrorHandler(s.handleError),
	}

	if opts.ReconnectEnabled {
		natsOpts = append(natsOpts, nats.MaxReconnects(opts.MaxReconnectAttempts))
	} else {
		natsOpts = append(natsOpts, nats.NoReconnect())
	}

	if d.cfg.PingInterval > 0 {
		natsOpts = append(natsOpts, nats.PingInterval(d.cfg.PingInterval))
	}
	if d.cfg.DrainTimeout > 0 {
		natsOpts = append(natsOpts, nats.DrainTimeout(d.cfg.DrainTimeout))
	}

	switch {
	case d.cfg.CredsFile != "":
		natsOpts = append(natsOpts, nats.UserCredentials(d.cfg.CredsFile))
	case d.cfg.Username != "":
		natsOpts = append(natsOpts, nats.UserInfo(d.cfg.Username, d.cfg.Password))
	case d.cfg.Token != "":
		natsOpts = append(natsOpts, nats.Token(d.cfg.Token))
	}

	tlsConfig, err := tlsutil.LoadClientTLSConfig(d.cfg.TLS)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		natsOpts = append(natsOpts, nats.Secure(tlsConfig))
	}

	if d.cfg.Compression {
		natsOpts = append(natsOpts, nats.Compression(true))
	}

	return append(natsOpts, d.extra...), nil
}
