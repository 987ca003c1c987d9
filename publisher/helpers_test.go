package publisher

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/c360/edgepub/session"
	"github.com/c360/edgepub/testutil"
)

const (
	testCluster = "nats://edge-a:4222,nats://edge-b:4222"
	testClient  = "edge-1"
	waitFor     = 2 * time.Second
	tick        = 2 * time.Millisecond
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BufferCapacity = 100
	cfg.RetryThreshold = 3
	cfg.BaseRetryDelay = time.Millisecond
	cfg.MaxRetryDelay = 5 * time.Millisecond
	cfg.ReconnectDelay = 5 * time.Millisecond
	cfg.PublishTimeout = time.Second
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, cfg Config, opts ...Option) (*Client, *testutil.FakeDialer) {
	t.Helper()
	dialer := testutil.NewFakeDialer()
	c, err := New(dialer, cfg, append([]Option{WithLogger(discardLogger())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = c.Teardown(ctx)
	})
	return c, dialer
}

func connect(t *testing.T, c *Client) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, c.Connect(ctx, testCluster, testClient, session.Options{}))
}

// recorder collects notifications for assertions.
type recorder struct {
	mu    sync.Mutex
	notes []Notification
}

func record(c *Client) *recorder {
	r := &recorder{}
	c.Observe(func(n Notification) {
		r.mu.Lock()
		r.notes = append(r.notes, n)
		r.mu.Unlock()
	})
	return r
}

func (r *recorder) count(sig Signal) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, note := range r.notes {
		if note.Signal == sig {
			n++
		}
	}
	return n
}

func (r *recorder) of(sig Signal) []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Notification
	for _, note := range r.notes {
		if note.Signal == sig {
			out = append(out, note)
		}
	}
	return out
}

func subjects(msgs []testutil.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Subject)
	}
	return out
}

func payloads(msgs []testutil.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, string(m.Payload))
	}
	return out
}
