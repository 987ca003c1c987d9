package natsclient

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestServer is a NATS server in a container for integration tests.
type TestServer struct {
	container testcontainers.Container
	URL       string
}

type testServerConfig struct {
	jetstream    bool
	natsVersion  string
	startTimeout time.Duration
}

// TestServerOption configures a TestServer.
type TestServerOption func(*testServerConfig)

// WithJetStream starts the server with JetStream enabled.
func WithJetStream() TestServerOption {
	return func(cfg *testServerConfig) {
		cfg.jetstream = true
	}
}

// WithNATSVersion selects the nats image tag.
func WithNATSVersion(version string) TestServerOption {
	return func(cfg *testServerConfig) {
		cfg.natsVersion = version
	}
}

// WithStartTimeout bounds container startup.
func WithStartTimeout(timeout time.Duration) TestServerOption {
	return func(cfg *testServerConfig) {
		cfg.startTimeout = timeout
	}
}

// StartTestServer starts a container without a testing.T, for TestMain.
func StartTestServer(ctx context.Context, opts ...TestServerOption) (*TestServer, error) {
	cfg := &testServerConfig{
		natsVersion:  "2.11.7-alpine",
		startTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	args := []string{
		"--port", "4222",
		"--http_port", "8222",
	}
	if cfg.jetstream {
		args = append(args, "--js")
	}

	req := testcontainers.ContainerRequest{
		Image:        "nats:" + cfg.natsVersion,
		ExposedPorts: []string{"4222/tcp", "8222/tcp"},
		Cmd:          args,
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("4222/tcp"),
			wait.ForHTTP("/").WithPort("8222/tcp").WithStartupTimeout(cfg.startTimeout),
		),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start NATS container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "4222")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get mapped port: %w", err)
	}

	return &TestServer{
		container: container,
		URL:       fmt.Sprintf("nats://%s:%s", host, port.Port()),
	}, nil
}

// NewTestServer starts a container and terminates it when the test ends.
func NewTestServer(t testing.TB, opts ...TestServerOption) *TestServer {
	t.Helper()

	srv, err := StartTestServer(context.Background(), opts...)
	if err != nil {
		t.Fatalf("NATS test server: %v", err)
	}
	t.Cleanup(func() { _ = srv.Terminate(context.Background()) })
	return srv
}

// Stop pauses the server so clients see it disappear. Start brings it back.
func (s *TestServer) Stop(ctx context.Context) error {
	timeout := 10 * time.Second
	return s.container.Stop(ctx, &timeout)
}

// Start restarts a stopped server. The mapped port may change.
func (s *TestServer) Start(ctx context.Context) error {
	if err := s.container.Start(ctx); err != nil {
		return err
	}
	host, err := s.container.Host(ctx)
	if err != nil {
		return err
	}
	port, err := s.container.MappedPort(ctx, "4222")
	if err != nil {
		return err
	}
	s.URL = fmt.Sprintf("nats://%s:%s", host, port.Port())
	return nil
}

// Terminate removes the container.
func (s *TestServer) Terminate(ctx context.Context) error {
	if s.container == nil {
		return nil
	}
	err := s.container.Terminate(ctx)
	s.container = nil
	return err
}
