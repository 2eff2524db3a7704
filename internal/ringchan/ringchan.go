// Package ringchan provides a bounded, channel-backed queue whose producers
// never block: when the queue is full the oldest element is discarded.
package ringchan

import (
	"context"
	"sync"
	"sync/atomic"
)

// RingChannel is a bounded channel-like buffer with overwrite-oldest semantics.
//
// Producers call Push from any goroutine; it always returns immediately.
// A single consumer reads with Pop, Receive or by ranging over C.
//
//	rc := ringchan.New[int](3)
//	for i := 0; i < 10; i++ {
//	    rc.Push(i)
//	}
//	rc.Close()
//	for v := range rc.C() {
//	    fmt.Println(v) // 7, 8, 9
//	}
type RingChannel[T any] struct {
	mu      sync.Mutex // serializes producers and Close
	ch      chan T
	closed  bool
	metrics Metrics
}

// New creates a RingChannel with the given capacity.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel. Reads through C are not
// counted in the Processed metric.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Push enqueues v, discarding the oldest element if the buffer is full.
// It reports whether an element was dropped. Pushing to a closed
// RingChannel is a no-op counted as an error.
func (rc *RingChannel[T]) Push(v T) (dropped bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.closed {
		rc.metrics.Errors.Add(1)
		return false
	}

	for {
		select {
		case rc.ch <- v:
			rc.metrics.Written.Add(1)
			return dropped
		default:
		}

		select {
		case <-rc.ch:
			rc.metrics.Overwritten.Add(1)
			dropped = true
		default:
			// the consumer made room in the meantime
		}
	}
}

// TryPush enqueues v only if there is room.
func (rc *RingChannel[T]) TryPush(v T) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.closed {
		rc.metrics.Errors.Add(1)
		return false
	}
	select {
	case rc.ch <- v:
		rc.metrics.Written.Add(1)
		return true
	default:
		return false
	}
}

// Pop blocks until a value is available, the channel is closed or ctx is done.
// ok is false in the latter two cases.
func (rc *RingChannel[T]) Pop(ctx context.Context) (v T, ok bool) {
	select {
	case v, ok = <-rc.ch:
		if ok {
			rc.metrics.Processed.Add(1)
		}
		return v, ok
	case <-ctx.Done():
		var zero T
		return zero, false
	}
}

// TryPop attempts a non-blocking receive.
func (rc *RingChannel[T]) TryPop() (v T, ok bool) {
	select {
	case v, ok = <-rc.ch:
		if ok {
			rc.metrics.Processed.Add(1)
		}
		return v, ok
	default:
		var zero T
		return zero, false
	}
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int { return len(rc.ch) }

// Cap returns the buffer capacity.
func (rc *RingChannel[T]) Cap() int { return cap(rc.ch) }

// Close closes the underlying channel. Buffered elements remain readable.
// Close is idempotent.
func (rc *RingChannel[T]) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if !rc.closed {
		rc.closed = true
		close(rc.ch)
	}
}

// Snapshot returns a copy of the current counters.
func (rc *RingChannel[T]) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Processed:   rc.metrics.Processed.Load(),
		Written:     rc.metrics.Written.Load(),
		Overwritten: rc.metrics.Overwritten.Load(),
		Errors:      rc.metrics.Errors.Load(),
	}
}

// Metrics holds lock-free counters.
type Metrics struct {
	Processed   atomic.Int64
	Written     atomic.Int64
	Overwritten atomic.Int64
	Errors      atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Processed   int64
	Written     int64
	Overwritten int64
	Errors      int64
}
