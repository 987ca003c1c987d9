package buffer

import (
	"github.com/c360/edgepub/metric"
)

// Option configures a RingBuffer.
type Option[T any] func(*settings[T])

type settings[T any] struct {
	policy   OverflowPolicy
	onDrop   DropCallback[T]
	registry *metric.MetricsRegistry
	name     string // "component" label on exported metrics
}

// WithOverflowPolicy picks which item goes when the buffer is full. DropOldest
// unless set.
func WithOverflowPolicy[T any](policy OverflowPolicy) Option[T] {
	return func(s *settings[T]) { s.policy = policy }
}

// WithDropCallback is called, outside the buffer lock, with every evicted item.
func WithDropCallback[T any](fn DropCallback[T]) Option[T] {
	return func(s *settings[T]) { s.onDrop = fn }
}

// WithMetrics exports the statistics to registry under the component label name.
// Ignored when registry is nil or name is empty.
func WithMetrics[T any](registry *metric.MetricsRegistry, name string) Option[T] {
	return func(s *settings[T]) {
		if registry == nil || name == "" {
			return
		}
		s.registry = registry
		s.name = name
	}
}

func newSettings[T any](opts []Option[T]) *settings[T] {
	s := &settings[T]{policy: DropOldest}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}
