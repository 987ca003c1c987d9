package buffer

import (
	"sync"

	"github.com/c360/edgepub/errors"
)

// ringBuffer is a thread-safe circular buffer with eviction on overflow.
type ringBuffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
	size     int
	head     int            // index of the oldest item
	stats    *Statistics
	metrics  *bufferMetrics // optional Prometheus metrics
	opts     *settings[T]
}

func newRingBuffer[T any](capacity int, opts *settings[T]) (*ringBuffer[T], error) {
	if capacity <= 0 {
		capacity = 1
	}

	var metrics *bufferMetrics
	if opts.registry != nil {
		var err error
		metrics, err = newBufferMetrics(opts.registry, opts.name)
		if err != nil {
			return nil, errors.WrapTransient(err, "buffer", "newRingBuffer", "metrics registration")
		}
	}

	return &ringBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		stats:    newStatistics(),
		metrics:  metrics,
		opts:     opts,
	}, nil
}

// index maps a logical position (0 = head) to a slot.
func (rb *ringBuffer[T]) index(pos int) int {
	return (rb.head + pos) % rb.capacity
}

// evictHeadLocked removes the oldest item. Caller must hold rb.mu and size > 0.
func (rb *ringBuffer[T]) evictHeadLocked() T {
	var zero T
	item := rb.items[rb.head]
	rb.items[rb.head] = zero
	rb.head = (rb.head + 1) % rb.capacity
	rb.size--
	return item
}

// evictTailLocked removes the newest item. Caller must hold rb.mu and size > 0.
func (rb *ringBuffer[T]) evictTailLocked() T {
	var zero T
	idx := rb.index(rb.size - 1)
	item := rb.items[idx]
	rb.items[idx] = zero
	rb.size--
	return item
}

func (rb *ringBuffer[T]) recordDropLocked() {
	rb.stats.overflows.Add(1)
	rb.stats.drops.Add(1)
	if rb.metrics != nil {
		rb.metrics.recordOverflow()
		rb.metrics.recordDrop()
	}
}

func (rb *ringBuffer[T]) notifyDropped(dropped []T) {
	if rb.opts.onDrop == nil {
		return
	}
	for _, item := range dropped {
		rb.opts.onDrop(item)
	}
}

// Push adds an item at the tail according to the overflow policy.
func (rb *ringBuffer[T]) Push(item T) int {
	rb.mu.Lock()

	var dropped []T
	if rb.size == rb.capacity {
		rb.recordDropLocked()
		switch rb.opts.policy {
		case DropNewest:
			// the incoming item is the newest one
			dropped = append(dropped, item)
			size := rb.size
			rb.mu.Unlock()
			rb.notifyDropped(dropped)
			return size
		default:
			dropped = append(dropped, rb.evictHeadLocked())
		}
	}

	rb.items[rb.index(rb.size)] = item
	rb.size++

	rb.stats.writes.Add(1)
	rb.stats.setSize(rb.size)
	if rb.metrics != nil {
		rb.metrics.recordWrite(rb.size, rb.capacity)
	}

	size := rb.size
	rb.mu.Unlock()

	rb.notifyDropped(dropped)
	return size
}

// PushFront re-inserts an item at the head. At capacity the policy still applies:
// DropOldest evicts the current head, DropNewest evicts the tail.
func (rb *ringBuffer[T]) PushFront(item T) int {
	rb.mu.Lock()

	var dropped []T
	if rb.size == rb.capacity {
		rb.recordDropLocked()
		switch rb.opts.policy {
		case DropNewest:
			dropped = append(dropped, rb.evictTailLocked())
		default:
			dropped = append(dropped, rb.evictHeadLocked())
		}
	}

	rb.head = (rb.head - 1 + rb.capacity) % rb.capacity
	rb.items[rb.head] = item
	rb.size++

	rb.stats.requeues.Add(1)
	rb.stats.setSize(rb.size)
	if rb.metrics != nil {
		rb.metrics.recordRequeue(rb.size, rb.capacity)
	}

	size := rb.size
	rb.mu.Unlock()

	rb.notifyDropped(dropped)
	return size
}

// PopFront retrieves and removes the head item.
func (rb *ringBuffer[T]) PopFront() (T, bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.size == 0 {
		var zero T
		return zero, false
	}

	item := rb.evictHeadLocked()

	rb.stats.reads.Add(1)
	rb.stats.setSize(rb.size)
	if rb.metrics != nil {
		rb.metrics.recordRead(rb.size, rb.capacity)
	}

	return item, true
}

// Peek retrieves the head item without removing it.
func (rb *ringBuffer[T]) Peek() (T, bool) {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.size == 0 {
		var zero T
		return zero, false
	}

	rb.stats.peeks.Add(1)
	return rb.items[rb.head], true
}

// Len returns the current number of items in the buffer.
func (rb *ringBuffer[T]) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size
}

// Capacity is immutable, so no lock is needed.
func (rb *ringBuffer[T]) Capacity() int {
	return rb.capacity
}

func (rb *ringBuffer[T]) IsFull() bool {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size == rb.capacity
}

func (rb *ringBuffer[T]) IsEmpty() bool {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size == 0
}

func (rb *ringBuffer[T]) Utilisation() float64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return float64(rb.size) * 100 / float64(rb.capacity)
}

func (rb *ringBuffer[T]) Items() []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	out := make([]T, rb.size)
	for i := 0; i < rb.size; i++ {
		out[i] = rb.items[rb.index(i)]
	}
	return out
}

// Clear removes all items from the buffer.
func (rb *ringBuffer[T]) Clear() {
	rb.mu.Lock()

	dropped := make([]T, 0, rb.size)
	for rb.size > 0 {
		dropped = append(dropped, rb.evictHeadLocked())
	}
	rb.head = 0

	rb.stats.setSize(0)
	if rb.metrics != nil {
		rb.metrics.updateSize(0, rb.capacity)
	}
	rb.mu.Unlock()

	rb.notifyDropped(dropped)
}

// Stats returns buffer statistics.
func (rb *ringBuffer[T]) Stats() *Statistics {
	return rb.stats
}
