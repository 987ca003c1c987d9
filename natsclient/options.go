package natsclient

import (
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/c360/edgepub/metric"
)

// Option configures a Dialer.
type Option func(*Dialer) error

// WithLogger sets the logger for connection events.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dialer) error {
		if logger != nil {
			d.logger = logger
		}
		return nil
	}
}

// WithMetrics enables stream metrics using the provided registry. Statistics are
// polled for the provisioned stream only.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(d *Dialer) error {
		if registry == nil {
			return nil
		}

		metrics, err := newStreamMetrics(registry)
		if err != nil {
			return err
		}

		d.metrics = metrics
		return nil
	}
}

// WithExtraOptions appends raw nats.go options after the ones the dialer builds.
func WithExtraOptions(opts ...nats.Option) Option {
	return func(d *Dialer) error {
		d.extra = append(d.extra, opts...)
		return nil
	}
}
