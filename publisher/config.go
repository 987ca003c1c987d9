package publisher

import (
	"fmt"
	"time"

	"github.com/c360/edgepub/errors"
)

// Config is fixed for the lifetime of a Client.
type Config struct {
	// BufferCapacity bounds the number of undelivered messages. Beyond it the
	// oldest message is evicted.
	BufferCapacity int `json:"buffer_capacity" yaml:"buffer_capacity"`

	// WaitForInitialConnection makes Publish fail with ErrInvalidState until the
	// first connection succeeds, instead of buffering.
	WaitForInitialConnection bool `json:"wait_for_initial_connection" yaml:"wait_for_initial_connection"`

	// RetryThreshold is the number of consecutive delivery failures after which
	// the client stops retrying locally and reconnects.
	RetryThreshold int `json:"retry_threshold" yaml:"retry_threshold"`

	// BaseRetryDelay and MaxRetryDelay shape the linear backoff between retries:
	// base times consecutive failures, capped at max.
	BaseRetryDelay time.Duration `json:"base_retry_delay" yaml:"base_retry_delay"`
	MaxRetryDelay  time.Duration `json:"max_retry_delay" yaml:"max_retry_delay"`

	// ReconnectDelay is the fixed pause between failed reconnect attempts.
	ReconnectDelay time.Duration `json:"reconnect_delay" yaml:"reconnect_delay"`

	// PublishTimeout bounds one delivery attempt. Expiry counts as an ack timeout.
	PublishTimeout time.Duration `json:"publish_timeout" yaml:"publish_timeout"`

	// EscalateOnAckTimeout reconnects on the first ack timeout instead of
	// retrying with backoff.
	EscalateOnAckTimeout bool `json:"escalate_on_ack_timeout" yaml:"escalate_on_ack_timeout"`
}

// DefaultConfig returns the defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		BufferCapacity: 10000,
		RetryThreshold: 5,
		BaseRetryDelay: 500 * time.Millisecond,
		MaxRetryDelay:  10 * time.Second,
		ReconnectDelay: 5 * time.Second,
		PublishTimeout: 30 * time.Second,
	}
}

// Validate checks the configuration for values the client cannot run with.
func (c Config) Validate() error {
	var problem string
	switch {
	case c.BufferCapacity < 1:
		problem = fmt.Sprintf("buffer capacity must be at least 1, got %d", c.BufferCapacity)
	case c.RetryThreshold < 1:
		problem = fmt.Sprintf("retry threshold must be at least 1, got %d", c.RetryThreshold)
	case c.BaseRetryDelay < 0 || c.MaxRetryDelay < 0 || c.ReconnectDelay < 0:
		problem = "retry and reconnect delays cannot be negative"
	case c.MaxRetryDelay > 0 && c.MaxRetryDelay < c.BaseRetryDelay:
		problem = "max retry delay must be >= base retry delay"
	case c.PublishTimeout <= 0:
		problem = "publish timeout must be positive"
	default:
		return nil
	}
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidConfig, problem), "publisher", "Validate", "config check")
}
