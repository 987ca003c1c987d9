package mqttclient

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/c360/edgepub/errors"
	"github.com/c360/edgepub/pkg/tlsutil"
	"github.com/c360/edgepub/session"
)

// Dialer opens MQTT sessions. It is safe for concurrent use.
type Dialer struct {
	cfg       Config
	logger    *slog.Logger
	newClient func(*mqtt.ClientOptions) mqtt.Client
}

// Option configures a Dialer.
type Option func(*Dialer)

// WithLogger sets the logger for connection events. Paho's own error log is
// routed to it as well.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dialer) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithClientFactory replaces mqtt.NewClient, for tests.
func WithClientFactory(fn func(*mqtt.ClientOptions) mqtt.Client) Option {
	return func(d *Dialer) {
		d.newClient = fn
	}
}

// NewDialer validates cfg and applies opts.
func NewDialer(cfg Config, opts ...Option) (*Dialer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Dialer{
		cfg:       cfg,
		logger:    slog.Default(),
		newClient: mqtt.NewClient,
	}
	for _, opt := range opts {
		opt(d)
	}

	pahoLog := d.logger.With("component", "paho")
	mqtt.CRITICAL = pahoLogger{logger: pahoLog, level: slog.LevelError}
	mqtt.ERROR = pahoLogger{logger: pahoLog, level: slog.LevelError}
	if cfg.LogDebug {
		mqtt.DEBUG = pahoLogger{logger: pahoLog, level: slog.LevelDebug}
	}
	return d, nil
}

// Dial connects to endpoints, a comma separated list of broker URLs, with
// identity as the MQTT client id. With opts.WaitForFirstConnect the session is
// returned at once and paho keeps retrying until the broker answers; otherwise
// Dial waits for the first connection and fails if it cannot be made.
func (d *Dialer) Dial(ctx context.Context, endpoints, identity string, opts session.Options) (session.Session, error) {
	opts = opts.Permissive()

	s := newSession(d, identity, opts)
	mopt, err := d.clientOptions(endpoints, identity, opts, s)
	if err != nil {
		return nil, err
	}
	s.client = d.newClient(mopt)

	token := s.client.Connect()
	if opts.WaitForFirstConnect {
		go func() {
			<-token.Done()
			if err := token.Error(); err != nil {
				s.logger.Warn("mqtt connect gave up", "error", err)
			}
		}()
		return s, nil
	}

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return nil, errors.WrapTransient(err, "mqttclient", "Dial", "establish connection")
		}
	case <-ctx.Done():
		s.client.Disconnect(0)
		return nil, errors.WrapTransient(ctx.Err(), "mqttclient", "Dial", "connection cancelled")
	}
	return s, nil
}

func (d *Dialer) clientOptions(endpoints, identity string, opts session.Options, s *mqttSession) (*mqtt.ClientOptions, error) {
	mopt := mqtt.NewClientOptions()
	for _, broker := range strings.Split(endpoints, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			mopt.AddBroker(broker)
		}
	}
	if len(mopt.Servers) == 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: no broker in %q", errors.ErrInvalidConfig, endpoints), "mqttclient", "Dial", "parse endpoints")
	}

	mopt.SetClientID(identity).
		SetCleanSession(d.cfg.CleanSession).
		SetOrderMatters(true).
		SetConnectTimeout(opts.ConnectTimeout).
		SetAutoReconnect(opts.ReconnectEnabled).
		SetConnectRetry(opts.WaitForFirstConnect).
		SetConnectRetryInterval(opts.ReconnectWait).
		SetOnConnectHandler(s.handleConnect).
		SetConnectionLostHandler(s.handleConnectionLost).
		SetReconnectingHandler(s.handleReconnecting)

	if d.cfg.KeepAlive > 0 {
		mopt.SetKeepAlive(d.cfg.KeepAlive)
	}
	if d.cfg.WriteTimeout > 0 {
		mopt.SetWriteTimeout(d.cfg.WriteTimeout)
	}
	if d.cfg.MaxReconnectInterval > 0 {
		mopt.SetMaxReconnectInterval(d.cfg.MaxReconnectInterval)
	}
	if d.cfg.Username != "" {
		mopt.SetUsername(d.cfg.Username)
		mopt.SetPassword(d.cfg.Password)
	}

	tlsConfig, err := tlsutil.LoadClientTLSConfig(d.cfg.TLS)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		mopt.SetTLSConfig(tlsConfig)
	}
	return mopt, nil
}

// topic maps a publisher subject onto an MQTT topic.
func (d *Dialer) topic(subject string) string {
	if d.cfg.TranslateSubjects {
		subject = strings.ReplaceAll(subject, ".", "/")
	}
	if d.cfg.TopicPrefix != "" {
		return strings.TrimSuffix(d.cfg.TopicPrefix, "/") + "/" + subject
	}
	return subject
}

// pahoLogger adapts slog to paho's package level loggers.
type pahoLogger struct {
	logger *slog.Logger
	level  slog.Level
}

func (l pahoLogger) Println(v ...any) {
	l.logger.Log(context.Background(), l.level, strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l pahoLogger) Printf(format string, v ...any) {
	l.logger.Log(context.Background(), l.level, fmt.Sprintf(format, v...))
}
