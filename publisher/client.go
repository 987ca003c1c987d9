package publisher

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/c360/edgepub/errors"
	"github.com/c360/edgepub/health"
	"github.com/c360/edgepub/metric"
	"github.com/c360/edgepub/pkg/buffer"
	"github.com/c360/edgepub/pkg/retry"
	"github.com/c360/edgepub/session"
)

// State is the connection state of a Client.
type State int32

const (
	// StateDisconnected means no session is open; Publish still buffers.
	StateDisconnected State = iota
	// StateConnecting means a connect or reconnect is in progress.
	StateConnecting
	// StateConnected means a session is ready and the buffer is draining.
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Item is one buffered message. Payload is owned by the client.
type Item struct {
	Subject string
	Payload []byte
}

type connectParams struct {
	clusterID string
	clientID  string
	opts      session.Options
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock replaces the wall clock used for retry and reconnect delays.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithMetrics exports client and buffer metrics to registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(c *Client) {
		c.registry = registry
	}
}

// WithName labels logs and metrics for this client. Defaults to "publisher".
func WithName(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.name = name
		}
	}
}

// WithOverflowLogRate limits overflow warnings to burst lines, refilled one per
// interval. Drops beyond that are counted and reported with the next warning.
// Defaults to 5 lines, one more per second.
func WithOverflowLogRate(interval time.Duration, burst int) Option {
	return func(c *Client) {
		if interval > 0 && burst > 0 {
			c.dropLog = rate.NewLimiter(rate.Every(interval), burst)
		}
	}
}

// Client buffers published messages and drains them to the backend whenever a
// session is connected, reconnecting as needed to outlast outages.
type Client struct {
	cfg      Config
	dialer   session.Dialer
	buf      buffer.Buffer[Item]
	backoff  retry.Linear
	clock    clock.Clock
	logger   *slog.Logger
	name     string
	registry *metric.MetricsRegistry
	metrics  *metric.Metrics
	signals  *signalHub
	group    singleflight.Group
	dropLog  *rate.Limiter

	// lifecycleMu serializes connect and disconnect sequences
	lifecycleMu sync.Mutex

	mu              sync.Mutex
	state           State
	sess            session.Session
	sessReady       bool
	detach          []func()
	params          *connectParams
	everConnected   bool
	closed          bool
	draining        bool
	drainCtx        context.Context
	drainCancel     context.CancelFunc
	pendingCancel   context.CancelFunc
	reconnectCancel context.CancelFunc
	reconnectDone   chan struct{}
	connectedSince  time.Time
	lastActivity    time.Time
	lastErr         error

	drainWG   sync.WaitGroup
	retries   atomic.Int64
	delivered atomic.Int64
	dropped   atomic.Int64

	// overflow warnings held back by dropLog
	dropsSuppressed atomic.Int64

	// bumped by every explicit Disconnect, Connect and Teardown; a reconnect
	// started under an older value must not run
	generation uint64
}

// New creates a disconnected client. Nothing is dialed until Connect.
func New(dialer session.Dialer, cfg Config, opts ...Option) (*Client, error) {
	if dialer == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "publisher", "New", "dialer required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:     cfg,
		dialer:  dialer,
		backoff: retry.Linear{Base: cfg.BaseRetryDelay, Max: cfg.MaxRetryDelay},
		clock:   clock.New(),
		logger:  slog.Default(),
		name:    "publisher",
		signals: newSignalHub(),
		dropLog: rate.NewLimiter(rate.Every(time.Second), 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "publisher", "client", c.name)

	bufOpts := []buffer.Option[Item]{
		buffer.WithOverflowPolicy[Item](buffer.DropOldest),
		buffer.WithDropCallback[Item](c.onOverflow),
	}
	if c.registry != nil {
		c.metrics = c.registry.CoreMetrics()
		bufOpts = append(bufOpts, buffer.WithMetrics[Item](c.registry, c.name))
	}

	buf, err := buffer.NewRingBuffer[Item](cfg.BufferCapacity, bufOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "publisher", "New", "create buffer")
	}
	c.buf = buf
	c.recordState(StateDisconnected)

	return c, nil
}

// Publish queues a message and returns the buffer length after insertion. It
// never waits on the network. It fails with ErrInvalidState after Teardown, or
// before the first connection when WaitForInitialConnection is set.
func (c *Client) Publish(subject string, payload []byte) (int, error) {
	if subject == "" {
		return c.buf.Len(), errors.WrapInvalid(errors.ErrInvalidData, "publisher", "Publish", "empty subject")
	}

	c.mu.Lock()
	closed, ever := c.closed, c.everConnected
	c.mu.Unlock()

	if closed {
		return c.buf.Len(), errors.WrapInvalid(errors.ErrInvalidState, "publisher", "Publish", "client torn down")
	}
	if c.cfg.WaitForInitialConnection && !ever {
		return c.buf.Len(), errors.WrapInvalid(errors.ErrInvalidState, "publisher", "Publish",
			"publish before initial connection")
	}

	n := c.buf.Push(Item{Subject: subject, Payload: bytes.Clone(payload)})
	if c.metrics != nil {
		c.metrics.RecordPublished(c.name, n)
	}

	c.wake()
	return n, nil
}

// Observe registers fn for every signal. The returned func unregisters it.
func (c *Client) Observe(fn Observer) (cancel func()) {
	return c.signals.observe(fn)
}

// Count returns the number of undelivered messages.
func (c *Client) Count() int {
	return c.buf.Len()
}

// Utilisation returns the percentage of buffer capacity in use.
func (c *Client) Utilisation() float64 {
	return c.buf.Utilisation()
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status is a point-in-time snapshot of a Client.
type Status struct {
	State               State
	ClusterID           string
	ClientID            string
	Buffered            int
	Capacity            int
	Utilisation         float64
	ConsecutiveFailures int64
	EverConnected       bool
	Delivered           int64
	Dropped             int64
	ConnectedSince      time.Time
	LastActivity        time.Time
	LastError           error
}

// Status returns a snapshot of the client.
func (c *Client) Status() Status {
	c.mu.Lock()
	st := Status{
		State:          c.state,
		EverConnected:  c.everConnected,
		ConnectedSince: c.connectedSince,
		LastActivity:   c.lastActivity,
		LastError:      c.lastErr,
	}
	if c.params != nil {
		st.ClusterID = c.params.clusterID
		st.ClientID = c.params.clientID
	}
	c.mu.Unlock()

	st.Buffered = c.buf.Len()
	st.Capacity = c.buf.Capacity()
	st.Utilisation = c.buf.Utilisation()
	st.ConsecutiveFailures = c.retries.Load()
	st.Delivered = c.delivered.Load()
	st.Dropped = c.dropped.Load()
	return st
}

// Health judges the client for probes.
func (c *Client) Health() health.Status {
	st := c.Status()
	snap := health.ConnectionSnapshot{
		State:               st.State.String(),
		Connected:           st.State == StateConnected,
		QueueDepth:          st.Buffered,
		Utilisation:         st.Utilisation,
		ConsecutiveFailures: st.ConsecutiveFailures,
		MessagesDelivered:   st.Delivered,
		Since:               st.ConnectedSince,
		LastActivity:        st.LastActivity,
	}
	if st.LastError != nil {
		snap.LastError = st.LastError.Error()
	}
	return health.FromConnection(c.name, snap)
}

func (c *Client) onOverflow(item Item) {
	c.dropped.Add(1)
	if c.metrics != nil {
		c.metrics.RecordOverflowDrop(c.name)
	}
	if !c.dropLog.AllowN(c.clock.Now(), 1) {
		c.dropsSuppressed.Add(1)
	} else {
		c.logger.Warn("buffer full, dropped oldest message",
			"subject", item.Subject, "capacity", c.buf.Capacity(),
			"suppressed", c.dropsSuppressed.Swap(0))
	}
	c.signals.emit(Notification{Signal: SignalOverflowDrop, Item: &item, At: c.clock.Now()})
}

func (c *Client) emit(sig Signal, err error) {
	if c.metrics != nil {
		c.metrics.RecordSessionEvent(c.name, string(sig))
	}
	c.signals.emit(Notification{Signal: sig, Err: err, At: c.clock.Now()})
}

// setStateLocked changes the state. Caller holds c.mu.
func (c *Client) setStateLocked(s State) {
	c.state = s
	c.recordState(s)
}

func (c *Client) recordState(s State) {
	if c.metrics != nil {
		c.metrics.RecordConnectionState(c.name, int(s))
	}
}

// log returns the logger enriched with the connection identity once known.
func (c *Client) log() *slog.Logger {
	c.mu.Lock()
	p := c.params
	c.mu.Unlock()
	if p == nil {
		return c.logger
	}
	return c.logger.With("cluster_id", p.clusterID, "client_id", p.clientID)
}
