// Package buffer provides a generic, thread-safe, fixed-capacity ring buffer.
//
// The ring buffer never rejects an insertion for lack of space: when it is full, an
// existing item is evicted according to the configured OverflowPolicy and reported
// through the optional DropCallback. Statistics are always collected; Prometheus
// metrics are optional via WithMetrics().
package buffer

// Buffer represents a bounded FIFO queue parameterized by item type T.
type Buffer[T any] interface {
	// Push inserts item at the tail and returns the new length.
	// When full, an item is evicted first according to the overflow policy.
	Push(item T) int

	// PushFront re-inserts item at the head and returns the new length.
	// Used to restore a failed delivery ahead of newer items. Never exceeds capacity.
	// When full, the restored item is kept: DropOldest evicts the current head
	// (the oldest queued item behind it), DropNewest evicts the tail.
	PushFront(item T) int

	// PopFront removes and returns the head item.
	// Returns the zero value and false if the buffer is empty.
	PopFront() (T, bool)

	// Peek returns the head item without removing it.
	Peek() (T, bool)

	// Len returns the current number of items in the buffer.
	Len() int

	// Capacity returns the maximum number of items the buffer can hold.
	Capacity() int

	// IsFull returns true if the buffer is at maximum capacity.
	IsFull() bool

	// IsEmpty returns true if the buffer contains no items.
	IsEmpty() bool

	// Utilisation returns the percentage of capacity in use (0 to 100).
	Utilisation() float64

	// Items returns a copy of the held items in head to tail order.
	Items() []T

	// Clear removes all items, reporting each through the drop callback.
	Clear()

	// Stats returns buffer statistics (always available for observability).
	Stats() *Statistics
}

// OverflowPolicy defines which item is evicted when the buffer is at capacity.
type OverflowPolicy int

const (
	// DropOldest evicts the head (oldest) item to make room.
	DropOldest OverflowPolicy = iota

	// DropNewest evicts the tail (newest) item. A Push at capacity drops the pushed item.
	DropNewest
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "DropOldest"
	case DropNewest:
		return "DropNewest"
	default:
		return "Unknown"
	}
}

// DropCallback is called when an item is evicted due to overflow or Clear.
// It is invoked synchronously, after the buffer lock is released.
type DropCallback[T any] func(item T)

// NewRingBuffer creates a new ring buffer with the specified capacity and options.
// Returns an error if metrics registration fails when metrics are requested.
func NewRingBuffer[T any](capacity int, options ...Option[T]) (Buffer[T], error) {
	opts := newSettings(options)
	return newRingBuffer(capacity, opts)
}
