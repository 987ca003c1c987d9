package natsclient

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/edgepub/errors"
	"github.com/c360/edgepub/pkg/security"
)

// Config holds connection settings that the session options do not cover.
type Config struct {
	// Authentication; credentials file takes precedence over user/password and token.
	Username  string `json:"username,omitempty" yaml:"username,omitempty"`
	Password  string `json:"password,omitempty" yaml:"password,omitempty"`
	Token     string `json:"token,omitempty"    yaml:"token,omitempty"`
	CredsFile string `json:"creds_file,omitempty" yaml:"creds_file,omitempty"`

	TLS security.ClientTLSConfig `json:"tls" yaml:"tls"`

	PingInterval time.Duration `json:"ping_interval" yaml:"ping_interval"`
	DrainTimeout time.Duration `json:"drain_timeout" yaml:"drain_timeout"`
	Compression  bool          `json:"compression"   yaml:"compression"`

	JetStream JetStreamConfig `json:"jetstream" yaml:"jetstream"`

	// StatsInterval is how often stream statistics are polled when metrics are on.
	// Zero disables polling.
	StatsInterval time.Duration `json:"stats_interval" yaml:"stats_interval"`
}

// JetStreamConfig switches publishing to JetStream, where every message is
// acknowledged by the stream that stores it.
type JetStreamConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Provision creates or updates Stream before the first publish.
	Provision bool          `json:"provision" yaml:"provision"`
	Stream    string        `json:"stream"    yaml:"stream"`
	Subjects  []string      `json:"subjects"  yaml:"subjects"`
	Storage   string        `json:"storage"   yaml:"storage"` // "file" or "memory"
	MaxAge    time.Duration `json:"max_age"   yaml:"max_age"`
	Replicas  int           `json:"replicas"  yaml:"replicas"`
}

// DefaultConfig returns plain NATS publishing with the client library's ping defaults.
func DefaultConfig() Config {
	return Config{
		PingInterval:  30 * time.Second,
		DrainTimeout:  10 * time.Second,
		StatsInterval: 30 * time.Second,
		JetStream: JetStreamConfig{
			Storage:  "file",
			Replicas: 1,
		},
	}
}

// Validate checks for settings the dialer cannot work with.
func (c Config) Validate() error {
	var problem string
	switch {
	case c.PingInterval < 0 || c.DrainTimeout < 0 || c.StatsInterval < 0:
		problem = "intervals cannot be negative"
	case (c.Username == "") != (c.Password == ""):
		problem = "username and password must be set together"
	case c.JetStream.Provision && !c.JetStream.Enabled:
		problem = "jetstream provisioning requires jetstream to be enabled"
	case c.JetStream.Provision && c.JetStream.Stream == "":
		problem = "jetstream provisioning requires a stream name"
	case c.JetStream.Provision && len(c.JetStream.Subjects) == 0:
		problem = "jetstream provisioning requires at least one subject"
	case c.JetStream.Storage != "" && c.JetStream.Storage != "file" && c.JetStream.Storage != "memory":
		problem = fmt.Sprintf("unknown jetstream storage %q", c.JetStream.Storage)
	case c.JetStream.Replicas < 0:
		problem = "jetstream replicas cannot be negative"
	default:
		return nil
	}
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidConfig, problem), "natsclient", "Validate", "config check")
}

func (j JetStreamConfig) streamConfig() jetstream.StreamConfig {
	storage := jetstream.FileStorage
	if j.Storage == "memory" {
		storage = jetstream.MemoryStorage
	}
	replicas := j.Replicas
	if replicas == 0 {
		replicas = 1
	}
	return jetstream.StreamConfig{
		Name:     j.Stream,
		Subjects: j.Subjects,
		Storage:  storage,
		MaxAge:   j.MaxAge,
		Replicas: replicas,
	}
}
