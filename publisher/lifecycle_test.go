package publisher

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	prom "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/edgepub/errors"
	"github.com/c360/edgepub/metric"
	"github.com/c360/edgepub/session"
	"github.com/c360/edgepub/testutil"
)

var errRefused = errors.New("connection refused")

func TestConnect_PassesIdentityAndPermissiveOptions(t *testing.T) {
	c, dialer := newTestClient(t, testConfig())
	rec := record(c)
	connect(t, c)

	sess := dialer.Last()
	require.NotNil(t, sess)
	assert.Equal(t, testCluster, sess.Endpoints)
	assert.Equal(t, testClient, sess.Identity)
	assert.True(t, sess.Options.ReconnectEnabled)
	assert.Equal(t, -1, sess.Options.MaxReconnectAttempts)
	assert.True(t, sess.Options.WaitForFirstConnect)

	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, 1, rec.count(SignalConnected))

	st := c.Status()
	assert.Equal(t, testCluster, st.ClusterID)
	assert.Equal(t, testClient, st.ClientID)
	assert.True(t, st.EverConnected)
}

func TestConnect_OverrideKeepsOptions(t *testing.T) {
	c, dialer := newTestClient(t, testConfig())
	opts := session.Options{MaxReconnectAttempts: 3, ReconnectWait: time.Second, Override: true}
	require.NoError(t, c.Connect(context.Background(), testCluster, testClient, opts))

	got := dialer.Last().Options
	assert.False(t, got.ReconnectEnabled)
	assert.Equal(t, 3, got.MaxReconnectAttempts)
	assert.Equal(t, time.Second, got.ReconnectWait)
	assert.Equal(t, session.DefaultConnectTimeout, got.ConnectTimeout)
}

func TestConnect_DialError(t *testing.T) {
	c, dialer := newTestClient(t, testConfig())
	rec := record(c)
	dialer.FailNextDials(errRefused)

	err := c.Connect(context.Background(), testCluster, testClient, session.Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errRefused)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, 1, rec.count(SignalConnectionError))

	// buffered while never connected
	n, err := c.Publish("s", []byte("p"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestConnect_ClosedBeforeReady(t *testing.T) {
	c, dialer := newTestClient(t, testConfig())
	dialer.SetAutoConnect(false)
	dialer.OnDial(func(s *testutil.FakeSession) { s.Drop() })

	err := c.Connect(context.Background(), testCluster, testClient, session.Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrSessionClosed)
	assert.Equal(t, StateDisconnected, c.State())
	assert.False(t, c.Status().EverConnected)
}

func TestConnect_ErrorBeforeReady(t *testing.T) {
	c, dialer := newTestClient(t, testConfig())
	dialer.SetAutoConnect(false)
	denied := errors.New("permissions violation for publish")
	dialer.OnDial(func(s *testutil.FakeSession) {
		// permission errors are not replayed, so raise it once handlers are attached
		go func() {
			time.Sleep(10 * time.Millisecond)
			s.Deny(denied)
		}()
	})

	err := c.Connect(context.Background(), testCluster, testClient, session.Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, denied)

	sess := dialer.Last()
	assert.True(t, sess.IsClosed())
	assert.Equal(t, denied, c.Status().LastError)
}

func TestConnect_ContextTimeout(t *testing.T) {
	c, dialer := newTestClient(t, testConfig())
	dialer.SetAutoConnect(false)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Connect(ctx, testCluster, testClient, session.Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, dialer.Last().IsClosed())
	assert.Equal(t, StateDisconnected, c.State())
}

func TestConnect_ReplacesPreviousSession(t *testing.T) {
	c, dialer := newTestClient(t, testConfig())
	connect(t, c)
	first := dialer.Last()

	connect(t, c)
	second := dialer.Last()

	assert.NotSame(t, first, second)
	assert.True(t, first.IsClosed())
	assert.False(t, second.IsClosed())

	_, err := c.Publish("s", []byte("p"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(second.Delivered()) == 1 }, waitFor, tick)
	assert.Empty(t, first.Delivered())
}

func TestConnect_DrainsMessagesBufferedBeforehand(t *testing.T) {
	c, dialer := newTestClient(t, testConfig())
	for _, p := range []string{"1", "2", "3"} {
		_, err := c.Publish("s", []byte(p))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, c.Count())

	connect(t, c)
	require.Eventually(t, func() bool { return len(dialer.Delivered()) == 3 }, waitFor, tick)
	assert.Equal(t, []string{"1", "2", "3"}, payloads(dialer.Delivered()))
}

func TestDisconnect_Idempotent(t *testing.T) {
	c, dialer := newTestClient(t, testConfig())
	rec := record(c)
	connect(t, c)
	sess := dialer.Last()

	require.NoError(t, c.Disconnect(context.Background()))
	require.NoError(t, c.Disconnect(context.Background()))

	assert.Equal(t, 1, sess.CloseCalls())
	assert.Equal(t, 1, rec.count(SignalDisconnected))
	assert.Equal(t, StateDisconnected, c.State())
}

func TestDisconnect_WithoutSession(t *testing.T) {
	c, _ := newTestClient(t, testConfig())
	require.NoError(t, c.Disconnect(context.Background()))
}

func TestDisconnect_KeepsBufferedMessages(t *testing.T) {
	c, dialer := newTestClient(t, testConfig())
	connect(t, c)
	require.NoError(t, c.Disconnect(context.Background()))

	_, err := c.Publish("s", []byte("later"))
	require.NoError(t, err)
	assert.Equal(t, 1, c.Count())
	assert.Empty(t, dialer.Delivered())

	require.NoError(t, c.Reconnect(context.Background()))
	require.Eventually(t, func() bool { return len(dialer.Delivered()) == 1 }, waitFor, tick)
}

func TestTransport_DisconnectBuffersThenReconnectDrains(t *testing.T) {
	c, dialer := newTestClient(t, testConfig())
	rec := record(c)
	connect(t, c)
	sess := dialer.Last()

	sess.Disconnect(errors.New("read: connection reset"))
	require.Eventually(t, func() bool { return c.State() == StateDisconnected }, waitFor, tick)
	assert.Equal(t, 1, rec.count(SignalDisconnected))

	_, err := c.Publish("s", []byte("held"))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, sess.Delivered())

	sess.Reconnecting()
	assert.Equal(t, StateConnecting, c.State())
	sess.Reconnect()

	require.Eventually(t, func() bool { return len(sess.Delivered()) == 1 }, waitFor, tick)
	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, 1, rec.count(SignalReconnecting))
	assert.Equal(t, 1, rec.count(SignalReconnected))
	assert.Equal(t, 1, dialer.DialCount(), "transport reconnects reuse the session")
}

func TestTransport_CloseTriggersReconnect(t *testing.T) {
	c, dialer := newTestClient(t, testConfig())
	rec := record(c)
	connect(t, c)

	dialer.Last().Drop()

	require.Eventually(t, func() bool { return rec.count(SignalForcedReconnected) == 1 }, waitFor, tick)
	assert.Equal(t, 2, dialer.DialCount())
	assert.Equal(t, StateConnected, c.State())
}

func TestTransport_ErrorIsReported(t *testing.T) {
	c, dialer := newTestClient(t, testConfig())
	rec := record(c)
	connect(t, c)

	slow := errors.New("slow consumer")
	dialer.Last().Fail(slow)

	errs := rec.of(SignalConnectionError)
	require.Len(t, errs, 1)
	assert.Equal(t, slow, errs[0].Err)
	assert.Equal(t, StateConnected, c.State())
}

func TestReconnect_RequiresPreviousConnect(t *testing.T) {
	c, _ := newTestClient(t, testConfig())
	err := c.Reconnect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotConfigured)
}

func TestReconnect_RetriesUntilDialSucceeds(t *testing.T) {
	c, dialer := newTestClient(t, testConfig())
	rec := record(c)
	connect(t, c)

	dialer.FailNextDials(errRefused, errRefused)
	require.NoError(t, c.Reconnect(context.Background()))

	assert.Equal(t, 4, dialer.DialAttempts())
	assert.Equal(t, 2, dialer.DialCount())
	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, 1, rec.count(SignalForcedReconnecting))
	assert.Equal(t, 1, rec.count(SignalForcedReconnected))
	assert.Equal(t, 2, rec.count(SignalConnectionError))
}

func TestReconnect_SingleFlight(t *testing.T) {
	mock := clock.NewMock()
	cfg := testConfig()
	cfg.ReconnectDelay = time.Second
	c, dialer := newTestClient(t, cfg, WithClock(mock))
	connect(t, c)

	dialer.FailNextDials(errRefused)

	results := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() { results <- c.Reconnect(context.Background()) }()
	}

	// one loop is waiting out its delay after the failed dial
	require.Eventually(t, func() bool { return dialer.DialAttempts() == 2 }, waitFor, tick)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, dialer.DialAttempts())

	mock.Add(time.Second)
	for i := 0; i < 3; i++ {
		select {
		case err := <-results:
			assert.NoError(t, err)
		case <-time.After(waitFor):
			t.Fatal("reconnect did not finish")
		}
	}
	assert.Equal(t, 3, dialer.DialAttempts())
	assert.Equal(t, 2, dialer.DialCount())
}

func TestReconnect_CallerContextOnlyBoundsWaiting(t *testing.T) {
	mock := clock.NewMock()
	cfg := testConfig()
	cfg.ReconnectDelay = time.Second
	c, dialer := newTestClient(t, cfg, WithClock(mock))
	connect(t, c)
	dialer.FailNextDials(errRefused)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Reconnect(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// the loop keeps going
	require.Eventually(t, func() bool { return dialer.DialAttempts() == 2 }, waitFor, tick)
	time.Sleep(20 * time.Millisecond)
	mock.Add(time.Second)
	require.Eventually(t, func() bool { return c.State() == StateConnected }, waitFor, tick)
	assert.Equal(t, 2, dialer.DialCount())
}

func TestDisconnect_StopsReconnectLoop(t *testing.T) {
	mock := clock.NewMock()
	cfg := testConfig()
	cfg.ReconnectDelay = time.Second
	c, dialer := newTestClient(t, cfg, WithClock(mock))
	connect(t, c)
	dialer.FailNextDials(errRefused, errRefused, errRefused)

	result := make(chan error, 1)
	go func() { result <- c.Reconnect(context.Background()) }()
	require.Eventually(t, func() bool { return dialer.DialAttempts() == 2 }, waitFor, tick)

	require.NoError(t, c.Disconnect(context.Background()))

	select {
	case err := <-result:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(waitFor):
		t.Fatal("reconnect loop still running")
	}

	mock.Add(10 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, dialer.DialAttempts())
	assert.Equal(t, StateDisconnected, c.State())
}

func TestDisconnect_WinsOverReconnectNotYetRunning(t *testing.T) {
	c, dialer := newTestClient(t, testConfig())

	for i := 0; i < 200; i++ {
		connect(t, c)

		// a reconnect decided before Disconnect, as escalation and transport
		// close do, must not reopen the session afterwards
		c.mu.Lock()
		gen := c.generation
		c.mu.Unlock()

		result := make(chan error, 1)
		go func() { result <- c.reconnect(context.Background(), gen) }()

		require.NoError(t, c.Disconnect(context.Background()))

		select {
		case err := <-result:
			if err != nil {
				assert.ErrorIs(t, err, context.Canceled)
			}
		case <-time.After(waitFor):
			t.Fatal("reconnect did not return")
		}
		require.Equal(t, StateDisconnected, c.State(), "iteration %d", i)
	}

	for _, sess := range dialer.Sessions() {
		assert.True(t, sess.IsClosed())
	}
}

func TestDisconnect_CancelsRetryBackoff(t *testing.T) {
	mock := clock.NewMock()
	cfg := testConfig()
	cfg.BaseRetryDelay = time.Second
	cfg.MaxRetryDelay = 10 * time.Second
	cfg.RetryThreshold = 5
	c, dialer := newTestClient(t, cfg, WithClock(mock))
	connect(t, c)

	first := dialer.Last()
	first.FailNext(errBrokenPipe)
	_, err := c.Publish("x", []byte("X"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return first.Attempts() == 1 }, waitFor, tick)

	require.NoError(t, c.Disconnect(context.Background()))
	mock.Add(time.Minute)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 1, first.Attempts(), "retry timer fired after disconnect")
	assert.Equal(t, 1, c.Count(), "failed message stays buffered")

	require.NoError(t, c.Reconnect(context.Background()))
	second := dialer.Last()
	require.NotSame(t, first, second)
	require.Eventually(t, func() bool { return len(second.Delivered()) == 1 }, waitFor, tick)
	assert.Equal(t, "X", string(second.Delivered()[0].Payload))
	assert.Equal(t, 1, first.Attempts())
}

func TestTeardown(t *testing.T) {
	c, dialer := newTestClient(t, testConfig())
	connect(t, c)
	sess := dialer.Last()
	dialer.Last().SetPublishFunc(func(ctx context.Context, _ int, _ string, _ []byte) error {
		<-ctx.Done()
		return ctx.Err()
	})
	_, err := c.Publish("s", []byte("stuck"))
	require.NoError(t, err)

	require.NoError(t, c.Teardown(context.Background()))
	require.NoError(t, c.Teardown(context.Background()))
	assert.True(t, sess.IsClosed())

	_, err = c.Publish("s", []byte("late"))
	assert.ErrorIs(t, err, errors.ErrInvalidState)
	assert.ErrorIs(t, c.Connect(context.Background(), testCluster, testClient, session.Options{}), errors.ErrInvalidState)
	assert.ErrorIs(t, c.Reconnect(context.Background()), errors.ErrInvalidState)
}

func TestTeardown_CancelsReconnectLoop(t *testing.T) {
	mock := clock.NewMock()
	cfg := testConfig()
	cfg.ReconnectDelay = time.Second
	c, dialer := newTestClient(t, cfg, WithClock(mock))
	connect(t, c)
	dialer.FailNextDials(errRefused, errRefused)

	go func() { _ = c.Reconnect(context.Background()) }()
	require.Eventually(t, func() bool { return dialer.DialAttempts() == 2 }, waitFor, tick)

	require.NoError(t, c.Teardown(context.Background()))
	mock.Add(10 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, dialer.DialAttempts())
}

func TestObserve_Cancel(t *testing.T) {
	c, _ := newTestClient(t, testConfig())
	var n atomic.Int32
	cancel := c.Observe(func(Notification) { n.Add(1) })

	connect(t, c)
	seen := n.Load()
	assert.Positive(t, seen)

	cancel()
	require.NoError(t, c.Disconnect(context.Background()))
	assert.Equal(t, seen, n.Load())
}

func TestHealth(t *testing.T) {
	cfg := testConfig()
	cfg.BufferCapacity = 10
	c, _ := newTestClient(t, cfg)

	h := c.Health()
	assert.Equal(t, "degraded", h.Status)
	assert.Equal(t, "publisher", h.Component)

	connect(t, c)
	require.Eventually(t, func() bool { return c.Health().Healthy }, waitFor, tick)
	assert.Equal(t, "healthy", c.Health().Status)

	require.NoError(t, c.Disconnect(context.Background()))
	for i := 0; i < 10; i++ {
		_, err := c.Publish("s", []byte("x"))
		require.NoError(t, err)
	}
	h = c.Health()
	assert.Equal(t, "unhealthy", h.Status)
	assert.Contains(t, h.Message, "buffer at 100%")
}

func TestMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	cfg := testConfig()
	cfg.BufferCapacity = 2
	c, dialer := newTestClient(t, cfg, WithMetrics(registry), WithName("edge"))
	m := registry.CoreMetrics()

	for _, p := range []string{"a", "b", "c"} {
		_, err := c.Publish("s", []byte(p))
		require.NoError(t, err)
	}
	assert.Equal(t, 3.0, prom.ToFloat64(m.Published.WithLabelValues("edge")))
	assert.Equal(t, 1.0, prom.ToFloat64(m.OverflowDrops.WithLabelValues("edge")))

	dialer.OnDial(func(s *testutil.FakeSession) { s.FailNext(errBrokenPipe) })
	connect(t, c)
	require.Eventually(t, func() bool { return len(dialer.Delivered()) == 2 }, waitFor, tick)

	require.Eventually(t, func() bool {
		return prom.ToFloat64(m.Delivered.WithLabelValues("edge")) == 2
	}, waitFor, tick)
	assert.Equal(t, 1.0, prom.ToFloat64(m.PublishFailures.WithLabelValues("edge", "transient")))
	assert.Equal(t, float64(StateConnected), prom.ToFloat64(m.ConnectionState.WithLabelValues("edge")))
	assert.Equal(t, 0.0, prom.ToFloat64(m.QueueDepth.WithLabelValues("edge")))
}
