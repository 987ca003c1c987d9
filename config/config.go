package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/c360/edgepub/errors"
	"github.com/c360/edgepub/mqttclient"
	"github.com/c360/edgepub/natsclient"
	"github.com/c360/edgepub/pkg/security"
	"github.com/c360/edgepub/publisher"
	"github.com/c360/edgepub/session"
)

// Transports the command can publish over.
const (
	TransportNATS = "nats"
	TransportMQTT = "mqtt"
)

// Config represents the complete application configuration
type Config struct {
	Version   string            `json:"version" yaml:"version"`
	Client    ClientConfig      `json:"client" yaml:"client"`
	Publisher publisher.Config  `json:"publisher" yaml:"publisher"`
	Session   SessionConfig     `json:"session" yaml:"session"`
	NATS      natsclient.Config `json:"nats" yaml:"nats"`
	MQTT      mqttclient.Config `json:"mqtt" yaml:"mqtt"`
	Metrics   MetricsConfig     `json:"metrics" yaml:"metrics"`
	Security  security.Config   `json:"security,omitempty" yaml:"security,omitempty"` // TLS for the metrics endpoint
	Log       LogConfig         `json:"log" yaml:"log"`
}

// ClientConfig names the endpoint group and this client.
type ClientConfig struct {
	// ClusterID is the endpoint group, a comma separated list of server URLs.
	ClusterID string `json:"cluster_id" yaml:"cluster_id"`
	// ClientID identifies this client to the backend. Generated when empty.
	ClientID  string `json:"client_id" yaml:"client_id"`
	Transport string `json:"transport" yaml:"transport"`
}

// SessionConfig mirrors session.Options.
type SessionConfig struct {
	ReconnectEnabled     bool          `json:"reconnect_enabled" yaml:"reconnect_enabled"`
	MaxReconnectAttempts int           `json:"max_reconnect_attempts" yaml:"max_reconnect_attempts"`
	WaitForFirstConnect  bool          `json:"wait_for_first_connect" yaml:"wait_for_first_connect"`
	ReconnectWait        time.Duration `json:"reconnect_wait" yaml:"reconnect_wait"`
	ConnectTimeout       time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
	Override             bool          `json:"override" yaml:"override"`
}

// MetricsConfig controls the Prometheus and health endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Port    int    `json:"port" yaml:"port"`
	Path    string `json:"path" yaml:"path"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // text or json
}

// Options converts the session section.
func (s SessionConfig) Options() session.Options {
	return session.Options{
		ReconnectEnabled:     s.ReconnectEnabled,
		MaxReconnectAttempts: s.MaxReconnectAttempts,
		WaitForFirstConnect:  s.WaitForFirstConnect,
		ReconnectWait:        s.ReconnectWait,
		ConnectTimeout:       s.ConnectTimeout,
		Override:             s.Override,
	}
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs error

	if strings.TrimSpace(c.Client.ClusterID) == "" {
		errs = multierr.Append(errs, invalid("client.cluster_id is required"))
	}
	switch c.Client.Transport {
	case TransportNATS:
		errs = multierr.Append(errs, c.NATS.Validate())
	case TransportMQTT:
		errs = multierr.Append(errs, c.MQTT.Validate())
	default:
		errs = multierr.Append(errs, invalid(fmt.Sprintf("unknown transport %q", c.Client.Transport)))
	}

	errs = multierr.Append(errs, c.Publisher.Validate())

	if c.Session.ReconnectWait < 0 || c.Session.ConnectTimeout < 0 {
		errs = multierr.Append(errs, invalid("session durations cannot be negative"))
	}
	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		errs = multierr.Append(errs, invalid(fmt.Sprintf("metrics.port %d out of range", c.Metrics.Port)))
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = multierr.Append(errs, invalid("metrics.path must start with /"))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = multierr.Append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = multierr.Append(errs, invalid(fmt.Sprintf("unknown log format %q", c.Log.Format)))
	}
	errs = multierr.Append(errs, c.validateSecurity())

	return errs
}

func (c *Config) validateSecurity() error {
	tlsCfg := c.Security.TLS.Server
	if !tlsCfg.Enabled {
		return nil
	}
	if tlsCfg.CertFile == "" || tlsCfg.KeyFile == "" {
		return invalid("security.tls.server requires cert_file and key_file")
	}
	if err := validateTLSVersion(tlsCfg.MinVersion); err != nil {
		return err
	}
	if tlsCfg.MTLS.Enabled && len(tlsCfg.MTLS.ClientCAFiles) == 0 {
		return invalid("security.tls.server.mtls requires client_ca_files")
	}
	return nil
}

func validateTLSVersion(version string) error {
	switch version {
	case "", "1.2", "1.3":
		return nil
	default:
		return invalid(fmt.Sprintf("unsupported TLS version %q", version))
	}
}

func invalid(problem string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidConfig, problem), "config", "Validate", "config check")
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	newID      func() string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		validation: true,
		envPrefix:  "EDGEPUB",
		newID:      uuid.NewString,
	}
}

// AddLayer adds a configuration file layer. Later layers override earlier ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// Load merges defaults, every layer in order, then environment overrides. A
// missing client id is generated last so files and environment can set one.
func (l *Loader) Load() (*Config, error) {
	cfg := Defaults()

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "load "+path)
		}
		merged, err := mergeFromMap(cfg, raw)
		if err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "merge "+path)
		}
		cfg = merged
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if cfg.Client.ClientID == "" {
		cfg.Client.ClientID = "edgepub-" + l.newID()
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Version: "1.0.0",
		Client: ClientConfig{
			ClusterID: "nats://localhost:4222",
			Transport: TransportNATS,
		},
		Publisher: publisher.DefaultConfig(),
		Session: SessionConfig{
			ReconnectEnabled:     true,
			MaxReconnectAttempts: -1,
			WaitForFirstConnect:  true,
			ReconnectWait:        session.DefaultReconnectWait,
			ConnectTimeout:       session.DefaultConnectTimeout,
		},
		NATS: natsclient.DefaultConfig(),
		MQTT: mqttclient.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// loadRaw reads a JSON or YAML layer into a generic map with durations converted.
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)
		}
	default:
		if err := validateJSONDepth(data); err != nil {
			return nil, fmt.Errorf("invalid JSON structure: %w", err)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)
		}
	}

	if err := parseDurations(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// mergeFromMap overlays the fields present in override onto base.
func mergeFromMap(base *Config, override map[string]any) (*Config, error) {
	if override == nil {
		return base, nil
	}

	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return nil, err
	}

	mergedJSON, err := json.Marshal(deepMergeMaps(baseMap, override))
	if err != nil {
		return nil, err
	}

	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)
	}
	return &merged, nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// durationKeys are the fields written as duration strings in config files.
var durationKeys = map[string]bool{
	"base_retry_delay":       true,
	"max_retry_delay":        true,
	"reconnect_delay":        true,
	"publish_timeout":        true,
	"reconnect_wait":         true,
	"connect_timeout":        true,
	"ping_interval":          true,
	"drain_timeout":          true,
	"stats_interval":         true,
	"max_age":                true,
	"keep_alive":             true,
	"write_timeout":          true,
	"max_reconnect_interval": true,
	"quiesce_timeout":        true,
}

// parseDurations converts duration strings to nanoseconds for json unmarshaling,
// at any depth.
func parseDurations(data map[string]any) error {
	for k, v := range data {
		switch val := v.(type) {
		case map[string]any:
			if err := parseDurations(val); err != nil {
				return err
			}
		case string:
			if !durationKeys[k] {
				continue
			}
			d, err := parseDurationWithDays(val)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", errors.ErrInvalidConfig, k, err)
			}
			data[k] = d.Nanoseconds()
		}
	}
	return nil
}

// parseDurationWithDays parses durations that may include days (e.g., "14d")
func parseDurationWithDays(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// applyEnvOverrides applies EDGEPUB_* environment variables.
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"CLUSTER_ID":    &cfg.Client.ClusterID,
		"CLIENT_ID":     &cfg.Client.ClientID,
		"TRANSPORT":     &cfg.Client.Transport,
		"NATS_USERNAME": &cfg.NATS.Username,
		"NATS_PASSWORD": &cfg.NATS.Password,
		"NATS_TOKEN":    &cfg.NATS.Token,
		"NATS_CREDS":    &cfg.NATS.CredsFile,
		"MQTT_USERNAME": &cfg.MQTT.Username,
		"MQTT_PASSWORD": &cfg.MQTT.Password,
		"LOG_LEVEL":     &cfg.Log.Level,
		"LOG_FORMAT":    &cfg.Log.Format,
		"METRICS_PATH":  &cfg.Metrics.Path,
	}
	ints := map[string]*int{
		"BUFFER_CAPACITY": &cfg.Publisher.BufferCapacity,
		"RETRY_THRESHOLD": &cfg.Publisher.RetryThreshold,
		"METRICS_PORT":    &cfg.Metrics.Port,
	}

	for suffix, dst := range strs {
		key := l.envPrefix + "_" + suffix
		val := os.Getenv(key)
		if err := validateEnvVar(key, val); err != nil {
			return errors.WrapInvalid(err, "config", "Load", "environment override")
		}
		if val != "" {
			*dst = val
		}
	}

	for suffix, dst := range ints {
		key := l.envPrefix + "_" + suffix
		val := os.Getenv(key)
		if val == "" {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return errors.WrapInvalid(fmt.Errorf("%w: %s=%q", errors.ErrInvalidConfig, key, val),
				"config", "Load", "environment override")
		}
		*dst = n
	}
	return nil
}

// SaveToFile saves the configuration to a JSON file
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return safeWriteFile(path, data)
}

// String returns a JSON representation of the config with secrets masked.
func (c *Config) String() string {
	masked := *c
	for _, s := range []*string{&masked.NATS.Password, &masked.NATS.Token, &masked.MQTT.Password} {
		if *s != "" {
			*s = "***"
		}
	}
	data, _ := json.MarshalIndent(&masked, "", "  ")
	return string(data)
}

// ParseLevel maps a log level name onto slog.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, invalid(fmt.Sprintf("unknown log level %q", level))
	}
}
