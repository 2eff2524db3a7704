// Package output turns subscription notifications into terminal output.
//
// Callbacks are invoked by the dispatch engine under its subscription lock,
// so a Collector only enqueues into a lock-free ring buffer. A Printer drains
// the buffer on its own goroutine and renders through a Formatter.
package output

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/srg/blescan/internal/clock"
	"github.com/srg/blescan/scanner"
)

// Kind tells which callback produced a notification.
type Kind string

const (
	KindDiscovered Kind = "discovered"
	KindBatch      Kind = "batch"
	KindFailed     Kind = "failed"
)

// Notification is one callback invocation as seen by a subscription.
type Notification struct {
	Time         time.Time
	Subscription string
	Kind         Kind
	CallbackType scanner.CallbackType // KindDiscovered only
	Events       []scanner.DiscoveryEvent
	ErrorCode    scanner.ErrorCode // KindFailed only
}

// CollectorMetrics provides lock-free metrics tracking for Collector.
// All fields use atomic operations for thread-safe access.
type CollectorMetrics struct {
	Collected   int64 // notifications accepted into the buffer
	Overwritten int64 // notifications lost because the buffer was full
	Errors      int64
}

func (m *CollectorMetrics) incCollected()               { atomic.AddInt64(&m.Collected, 1) }
func (m *CollectorMetrics) incErrors()                  { atomic.AddInt64(&m.Errors, 1) }
func (m *CollectorMetrics) addOverwritten(count uint32) { atomic.AddInt64(&m.Overwritten, int64(count)) }

func (m *CollectorMetrics) snapshot() CollectorMetrics {
	return CollectorMetrics{
		Collected:   atomic.LoadInt64(&m.Collected),
		Overwritten: atomic.LoadInt64(&m.Overwritten),
		Errors:      atomic.LoadInt64(&m.Errors),
	}
}

const (
	// DefaultBufferSize is the ring size used by the CLI.
	DefaultBufferSize uint32 = 4096

	// MaxBufferSize guards against accidental misconfiguration.
	MaxBufferSize uint32 = 1024 * 1024
)

// Collector buffers notifications from any number of subscriptions. When the
// buffer is full the oldest notification is overwritten.
//
// All methods are thread-safe.
type Collector struct {
	buffer  mpmc.RichOverlappedRingBuffer[Notification]
	clock   clock.Clock
	metrics CollectorMetrics
	ready   chan struct{} // has a pending wakeup when the buffer is non-empty
}

// NewCollector creates a collector holding up to bufferSize notifications.
func NewCollector(bufferSize uint32, clk clock.Clock) (*Collector, error) {
	if bufferSize == 0 {
		return nil, fmt.Errorf("buffer size must be > 0")
	}
	if bufferSize > MaxBufferSize {
		return nil, fmt.Errorf("buffer size %d exceeds maximum %d", bufferSize, MaxBufferSize)
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Collector{
		buffer: mpmc.NewOverlappedRingBuffer[Notification](bufferSize),
		clock:  clk,
		ready:  make(chan struct{}, 1),
	}, nil
}

// Callback returns the scanner.Callback for the subscription called name.
// Every call returns a distinct callback identity.
func (c *Collector) Callback(name string) scanner.Callback {
	return &tap{name: name, collector: c}
}

func (c *Collector) collect(n Notification) {
	n.Time = c.clock.Now()
	overwrites, err := c.buffer.EnqueueM(n)
	if err != nil {
		c.metrics.incErrors()
		return
	}
	c.metrics.addOverwritten(overwrites)
	c.metrics.incCollected()

	select {
	case c.ready <- struct{}{}:
	default:
	}
}

// Ready signals that notifications may be waiting. It never blocks the
// producer: multiple enqueues between drains produce a single signal.
func (c *Collector) Ready() <-chan struct{} {
	return c.ready
}

// Drain passes every buffered notification to fn, oldest first, and returns
// how many were consumed. It stops at the first error fn returns.
func (c *Collector) Drain(fn func(Notification) error) (int, error) {
	n := 0
	for !c.buffer.IsEmpty() {
		item, err := c.buffer.Dequeue()
		if err != nil {
			c.metrics.incErrors()
			return n, fmt.Errorf("buffer dequeue error: %w", err)
		}
		n++
		if err := fn(item); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Metrics returns a copy of the current metrics.
func (c *Collector) Metrics() CollectorMetrics {
	return c.metrics.snapshot()
}

// tap is the per-subscription callback. It is used by pointer so each
// subscription has its own identity in the registry.
type tap struct {
	name      string
	collector *Collector
}

func (t *tap) OnDiscovered(ct scanner.CallbackType, ev scanner.DiscoveryEvent) {
	t.collector.collect(Notification{
		Subscription: t.name,
		Kind:         KindDiscovered,
		CallbackType: ct,
		Events:       []scanner.DiscoveryEvent{ev},
	})
}

func (t *tap) OnBatch(events []scanner.DiscoveryEvent) {
	t.collector.collect(Notification{
		Subscription: t.name,
		Kind:         KindBatch,
		Events:       events,
	})
}

func (t *tap) OnFailed(code scanner.ErrorCode) {
	t.collector.collect(Notification{
		Subscription: t.name,
		Kind:         KindFailed,
		ErrorCode:    code,
	})
}
