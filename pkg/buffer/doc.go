// Package buffer provides a thread-safe ring buffer with eviction-based overflow
// handling, built-in statistics tracking, and optional Prometheus metrics integration.
//
// # Overview
//
// The ring buffer holds pending items between producers and a single consumer. Its
// memory footprint is fixed at construction and every operation is O(1). Capacity is
// enforced by eviction, never by rejection, so producers never block.
//
// # Quick Start
//
//	buf, err := buffer.NewRingBuffer[string](3,
//		buffer.WithDropCallback[string](func(s string) {
//			slog.Warn("dropped", "item", s)
//		}),
//	)
//	if err != nil {
//		return err
//	}
//
//	buf.Push("A")
//	buf.Push("B")
//	buf.Push("C")
//	buf.Push("D") // evicts "A", callback invoked once
//
//	item, ok := buf.PopFront() // "B", true
//	buf.PushFront(item)        // back at the head, ahead of "C" and "D"
//
// # Overflow Policies
//
// DropOldest (default): a Push at capacity evicts the head. A PushFront at capacity
// evicts the current head before the re-inserted item takes its place, so the
// re-inserted item always survives.
//
// DropNewest: a Push at capacity drops the pushed item; a PushFront at capacity
// evicts the tail.
//
// # Statistics and Metrics
//
// Statistics are always on (writes, reads, requeues, overflows, drops, size, max
// size). WithMetrics additionally exports them through a metric.MetricsRegistry:
//
//	buf, err := buffer.NewRingBuffer[Item](10000,
//		buffer.WithMetrics[Item](registry, "publisher"),
//	)
//
// # Thread Safety
//
// All methods are safe for concurrent use. The drop callback runs after the internal
// lock is released, so it may call back into the buffer.
package buffer
