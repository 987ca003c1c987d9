package mqttclient

import (
	"fmt"
	"time"

	"github.com/c360/edgepub/errors"
	"github.com/c360/edgepub/pkg/security"
)

// Config holds MQTT settings that the session options do not cover.
type Config struct {
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`

	TLS security.ClientTLSConfig `json:"tls" yaml:"tls"`

	// QoS for every publish. 0 completes as soon as the packet is written.
	QoS      byte `json:"qos"      yaml:"qos"`
	Retained bool `json:"retained" yaml:"retained"`

	// TopicPrefix is prepended to every topic, joined with "/".
	TopicPrefix string `json:"topic_prefix" yaml:"topic_prefix"`
	// TranslateSubjects turns dotted subjects such as "site.temp" into "site/temp".
	TranslateSubjects bool `json:"translate_subjects" yaml:"translate_subjects"`

	CleanSession         bool          `json:"clean_session"          yaml:"clean_session"`
	KeepAlive            time.Duration `json:"keep_alive"             yaml:"keep_alive"`
	WriteTimeout         time.Duration `json:"write_timeout"          yaml:"write_timeout"`
	MaxReconnectInterval time.Duration `json:"max_reconnect_interval" yaml:"max_reconnect_interval"`
	// QuiesceTimeout is how long Close lets in-flight work finish.
	QuiesceTimeout time.Duration `json:"quiesce_timeout" yaml:"quiesce_timeout"`

	// LogDebug routes the paho debug log to the dialer's logger.
	LogDebug bool `json:"log_debug" yaml:"log_debug"`
}

// DefaultConfig returns QoS 1 publishing with translated subjects.
func DefaultConfig() Config {
	return Config{
		QoS:                  1,
		TranslateSubjects:    true,
		CleanSession:         true,
		KeepAlive:            30 * time.Second,
		WriteTimeout:         10 * time.Second,
		MaxReconnectInterval: time.Minute,
		QuiesceTimeout:       250 * time.Millisecond,
	}
}

// Validate checks for settings the dialer cannot work with.
func (c Config) Validate() error {
	var problem string
	switch {
	case c.QoS > 2:
		problem = fmt.Sprintf("qos must be 0, 1 or 2, got %d", c.QoS)
	case c.KeepAlive < 0 || c.WriteTimeout < 0 || c.MaxReconnectInterval < 0 || c.QuiesceTimeout < 0:
		problem = "timeouts cannot be negative"
	case c.Password != "" && c.Username == "":
		problem = "password requires a username"
	default:
		return nil
	}
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidConfig, problem), "mqttclient", "Validate", "config check")
}
