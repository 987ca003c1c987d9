package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/edgepub/errors"
)

// writeFile creates a config file inside a temp dir under the working directory,
// since config paths must not leave it.
func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	dir, err := os.MkdirTemp(".", "testdata-")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func fixedLoader() *Loader {
	l := NewLoader()
	l.newID = func() string { return "0000" }
	return l
}

func TestLoader_Defaults(t *testing.T) {
	cfg, err := fixedLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", cfg.Client.ClusterID)
	assert.Equal(t, "edgepub-0000", cfg.Client.ClientID)
	assert.Equal(t, TransportNATS, cfg.Client.Transport)
	assert.Equal(t, 10000, cfg.Publisher.BufferCapacity)
	assert.Equal(t, 5, cfg.Publisher.RetryThreshold)
	assert.Equal(t, 500*time.Millisecond, cfg.Publisher.BaseRetryDelay)
	assert.Equal(t, -1, cfg.Session.MaxReconnectAttempts)
	assert.Equal(t, 9090, cfg.Metrics.Port)
}

func TestLoader_GeneratesUniqueClientIDs(t *testing.T) {
	a, err := NewLoader().Load()
	require.NoError(t, err)
	b, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Regexp(t, `^edgepub-[0-9a-f-]{36}$`, a.Client.ClientID)
	assert.NotEqual(t, a.Client.ClientID, b.Client.ClientID)
}

func TestLoader_JSONLayer(t *testing.T) {
	path := writeFile(t, "edgepub.json", `{
		"client": {"cluster_id": "nats://a:4222,nats://b:4222", "client_id": "edge-7"},
		"publisher": {"buffer_capacity": 250, "base_retry_delay": "2s", "max_retry_delay": "1m"},
		"nats": {"jetstream": {"enabled": true, "max_age": "14d"}}
	}`)

	l := fixedLoader()
	l.AddLayer(path)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "nats://a:4222,nats://b:4222", cfg.Client.ClusterID)
	assert.Equal(t, "edge-7", cfg.Client.ClientID)
	assert.Equal(t, 250, cfg.Publisher.BufferCapacity)
	assert.Equal(t, 2*time.Second, cfg.Publisher.BaseRetryDelay)
	assert.Equal(t, time.Minute, cfg.Publisher.MaxRetryDelay)
	assert.True(t, cfg.NATS.JetStream.Enabled)
	assert.Equal(t, 14*24*time.Hour, cfg.NATS.JetStream.MaxAge)

	// untouched fields keep their defaults
	assert.Equal(t, 5, cfg.Publisher.RetryThreshold)
	assert.Equal(t, "file", cfg.NATS.JetStream.Storage)
}

func TestLoader_YAMLLayerOverridesJSON(t *testing.T) {
	base := writeFile(t, "base.json", `{"publisher": {"buffer_capacity": 250, "retry_threshold": 4}}`)
	site := writeFile(t, "site.yaml", `
client:
  transport: mqtt
  cluster_id: tcp://broker:1883
publisher:
  buffer_capacity: 50
  reconnect_delay: 3s
mqtt:
  qos: 2
  topic_prefix: plant-7
`)

	l := fixedLoader()
	l.AddLayer(base)
	l.AddLayer(site)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, TransportMQTT, cfg.Client.Transport)
	assert.Equal(t, 50, cfg.Publisher.BufferCapacity)
	assert.Equal(t, 4, cfg.Publisher.RetryThreshold)
	assert.Equal(t, 3*time.Second, cfg.Publisher.ReconnectDelay)
	assert.Equal(t, byte(2), cfg.MQTT.QoS)
	assert.Equal(t, "plant-7", cfg.MQTT.TopicPrefix)
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("EDGEPUB_CLUSTER_ID", "nats://env:4222")
	t.Setenv("EDGEPUB_CLIENT_ID", "edge-env")
	t.Setenv("EDGEPUB_BUFFER_CAPACITY", "42")
	t.Setenv("EDGEPUB_LOG_LEVEL", "debug")

	cfg, err := fixedLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "nats://env:4222", cfg.Client.ClusterID)
	assert.Equal(t, "edge-env", cfg.Client.ClientID)
	assert.Equal(t, 42, cfg.Publisher.BufferCapacity)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoader_BadEnvInt(t *testing.T) {
	t.Setenv("EDGEPUB_METRICS_PORT", "ninety")
	_, err := fixedLoader().Load()
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestLoader_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		l := fixedLoader()
		l.AddLayer("does-not-exist.json")
		_, err := l.Load()
		assert.True(t, errors.IsInvalid(err))
	})

	t.Run("unsupported extension", func(t *testing.T) {
		l := fixedLoader()
		l.AddLayer(writeFile(t, "edgepub.toml", "x = 1"))
		_, err := l.Load()
		assert.Error(t, err)
	})

	t.Run("bad duration", func(t *testing.T) {
		l := fixedLoader()
		l.AddLayer(writeFile(t, "bad.json", `{"publisher": {"publish_timeout": "soon"}}`))
		_, err := l.Load()
		assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	})

	t.Run("malformed json", func(t *testing.T) {
		l := fixedLoader()
		l.AddLayer(writeFile(t, "bad.json", `{"publisher": {`))
		_, err := l.Load()
		assert.Error(t, err)
	})

	t.Run("validation failure", func(t *testing.T) {
		l := fixedLoader()
		l.AddLayer(writeFile(t, "bad.json", `{"publisher": {"buffer_capacity": 0}}`))
		_, err := l.Load()
		assert.ErrorIs(t, err, errors.ErrInvalidConfig)

		l.EnableValidation(false)
		cfg, err := l.Load()
		require.NoError(t, err)
		assert.Equal(t, 0, cfg.Publisher.BufferCapacity)
	})
}

func TestConfig_ValidateReportsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Client.ClusterID = ""
	cfg.Client.Transport = "carrier-pigeon"
	cfg.Log.Format = "xml"
	cfg.Metrics.Port = 0

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"cluster_id", "carrier-pigeon", "xml", "metrics.port"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestConfig_ValidateSecurity(t *testing.T) {
	cfg := Defaults()
	cfg.Security.TLS.Server.Enabled = true
	assert.ErrorIs(t, cfg.Validate(), errors.ErrInvalidConfig)

	cfg.Security.TLS.Server.CertFile = "server.crt"
	cfg.Security.TLS.Server.KeyFile = "server.key"
	assert.NoError(t, cfg.Validate())

	cfg.Security.TLS.Server.MinVersion = "1.0"
	assert.Error(t, cfg.Validate())
}

func TestConfig_SessionOptions(t *testing.T) {
	opts := Defaults().Session.Options()
	assert.True(t, opts.ReconnectEnabled)
	assert.Equal(t, -1, opts.MaxReconnectAttempts)
	assert.True(t, opts.WaitForFirstConnect)
	assert.False(t, opts.Override)
}

func TestConfig_SaveAndReload(t *testing.T) {
	cfg := Defaults()
	cfg.Client.ClientID = "edge-9"
	cfg.Publisher.BaseRetryDelay = 750 * time.Millisecond

	path := writeFile(t, "saved.json", "{}")
	require.NoError(t, cfg.SaveToFile(path))

	l := fixedLoader()
	l.AddLayer(path)
	loaded, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "edge-9", loaded.Client.ClientID)
	assert.Equal(t, 750*time.Millisecond, loaded.Publisher.BaseRetryDelay)
}

func TestConfig_StringMasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.NATS.Username = "edge"
	cfg.NATS.Password = "hunter2"
	out := cfg.String()
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "***")
	assert.Equal(t, "hunter2", cfg.NATS.Password)
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, "WARN", lvl.String())

	_, err = ParseLevel("loud")
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestCheckPath(t *testing.T) {
	assert.NoError(t, checkPath("configs/edgepub.yaml"))
	assert.NoError(t, checkPath("/etc/edgepub/edgepub.yml"))

	for _, bad := range []string{"", "../edgepub.json", "configs/../../edgepub.json", "/etc/../root/x.json", "edgepub.toml"} {
		assert.ErrorIs(t, checkPath(bad), errors.ErrInvalidConfig, bad)
	}
}

func TestValidateJSONDepth(t *testing.T) {
	assert.NoError(t, validateJSONDepth([]byte(`{"a": [1, {"b": "[[[["}]}`)))

	deep := strings.Repeat("[", maxJSONDepth+1) + strings.Repeat("]", maxJSONDepth+1)
	assert.ErrorIs(t, validateJSONDepth([]byte(deep)), errors.ErrInvalidConfig)
}
