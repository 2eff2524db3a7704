// Package scanner turns a stream of BLE discovery events into per-subscriber
// notifications.
//
// A Registry owns the active subscriptions. Each subscription matches events
// against its Filters and applies its Settings: immediate delivery, batched
// delivery, or first-match/match-lost reporting. Whatever the radio cannot do
// natively (see Capabilities) is emulated in software.
package scanner

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blescan/internal/clock"
	"github.com/srg/blescan/internal/groutine"
	"github.com/srg/blescan/internal/ringchan"
)

// DefaultIntakeCapacity bounds the queue between the radio and the dispatcher.
const DefaultIntakeCapacity = 1024

type intakeItem struct {
	event   *DiscoveryEvent
	batch   []DiscoveryEvent
	failure ErrorCode
	synced  chan struct{}
}

// Registry holds the active subscriptions and fans radio input out to them.
//
// Radio input arrives through the Sink methods, which never block: items are
// queued and dispatched by a single pump goroutine. When the queue is full
// the oldest item is dropped.
type Registry struct {
	caps   CapabilityProvider
	radio  RadioController
	clock  clock.Clock
	logger *logrus.Logger

	mu      sync.RWMutex
	subs    map[Callback]*subscription
	nextID  uint64
	closed  bool
	running bool // radio started

	intakeCapacity int
	intake         *ringchan.RingChannel[intakeItem]
	cancel         context.CancelFunc
	done           chan struct{}
	closeOnce      sync.Once
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger. Defaults to logrus.New().
func WithLogger(logger *logrus.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

// WithClock replaces the wall clock used by sweep and flush tasks.
func WithClock(c clock.Clock) RegistryOption {
	return func(r *Registry) { r.clock = c }
}

// WithIntakeCapacity sets the size of the radio input queue.
func WithIntakeCapacity(n int) RegistryOption {
	return func(r *Registry) { r.intakeCapacity = n }
}

// WithRadioController lets the registry start and stop the radio with the
// subscription count.
func WithRadioController(rc RadioController) RegistryOption {
	return func(r *Registry) { r.radio = rc }
}

// NewRegistry creates a Registry and starts its dispatch goroutine.
// Call Close to release it.
func NewRegistry(caps CapabilityProvider, opts ...RegistryOption) *Registry {
	r := &Registry{
		caps:           caps,
		subs:           make(map[Callback]*subscription),
		intakeCapacity: DefaultIntakeCapacity,
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.caps == nil {
		r.caps = Capabilities{}
	}
	if r.clock == nil {
		r.clock = clock.New()
	}
	if r.logger == nil {
		r.logger = logrus.New()
	}
	r.intake = ringchan.New[intakeItem](r.intakeCapacity)

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	groutine.Go(ctx, "registry-pump", r.pump)

	return r
}

// Start registers cb and begins delivering notifications for events that
// match filters under settings. A nil settings means DefaultSettings.
func (r *Registry) Start(cb Callback, filters []*Filter, settings *Settings) error {
	if cb == nil || !reflect.TypeOf(cb).Comparable() {
		return ErrInvalidCallback
	}
	if settings == nil {
		settings = DefaultSettings()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}
	if _, exists := r.subs[cb]; exists {
		return ErrAlreadyStarted
	}

	sub := r.newSubscriptionLocked(cb, Filters(filters), settings)

	if !r.running && r.radio != nil {
		if err := r.radio.StartScan(); err != nil {
			r.logger.WithError(err).Error("Failed to start radio")
			return fmt.Errorf("failed to start radio: %w", err)
		}
		r.logger.Info("Radio started")
	}
	r.running = true

	r.subs[cb] = sub
	sub.start()

	r.logger.WithFields(sub.fields()).Info("Subscription started")
	return nil
}

// Stop unregisters cb. After Stop returns, cb receives no further
// notifications. Stopping an unknown callback is a no-op.
func (r *Registry) Stop(cb Callback) {
	if cb == nil || !reflect.TypeOf(cb).Comparable() {
		return
	}

	r.mu.Lock()
	sub, ok := r.subs[cb]
	if ok {
		delete(r.subs, cb)
		if len(r.subs) == 0 {
			r.stopRadioLocked()
		}
	}
	r.mu.Unlock()

	if ok && sub.stop() {
		r.logger.WithField("subscription", sub.id).Info("Subscription stopped")
	}
}

// FlushPending delivers the pending batch of cb right away.
func (r *Registry) FlushPending(cb Callback) error {
	sub := r.lookup(cb)
	if sub == nil {
		return ErrNotRegistered
	}

	if sub.usesHardwareBatching() {
		if r.radio == nil {
			return nil
		}
		if err := r.radio.FlushPending(); err != nil {
			return fmt.Errorf("failed to flush radio: %w", err)
		}
		return nil
	}

	sub.flushNow()
	return nil
}

// PowerSave returns the shortest scan and rest intervals requested by any
// subscription. ok is false when no subscription asked for duty cycling.
func (r *Registry) PowerSave() (scan, rest time.Duration, ok bool) {
	for _, sub := range r.snapshot() {
		s, rst, set := sub.powerSave()
		if !set {
			continue
		}
		if !ok || s < scan {
			scan = s
		}
		if !ok || rst < rest {
			rest = rst
		}
		ok = true
	}
	return scan, rest, ok
}

// Len returns the number of active subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Close stops every subscription, the radio and the dispatch goroutine.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		subs := make([]*subscription, 0, len(r.subs))
		for _, sub := range r.subs {
			subs = append(subs, sub)
		}
		clear(r.subs)
		r.stopRadioLocked()
		r.mu.Unlock()

		for _, sub := range subs {
			sub.stop()
		}

		r.cancel()
		<-r.done
		r.intake.Close()

		m := r.intake.Snapshot()
		r.logger.WithFields(logrus.Fields{
			"dispatched": m.Processed,
			"dropped":    m.Overwritten,
		}).Info("Registry closed")
	})
}

// ---------------------------------------------------------------------------
// Sink
// ---------------------------------------------------------------------------

// HandleEvent queues a single sighting.
func (r *Registry) HandleEvent(ev DiscoveryEvent) {
	r.enqueue(intakeItem{event: &ev})
}

// HandleBatch queues results the radio delivered together.
func (r *Registry) HandleBatch(events []DiscoveryEvent) {
	r.enqueue(intakeItem{batch: events})
}

// HandleFailure queues a radio failure.
func (r *Registry) HandleFailure(code ErrorCode) {
	r.enqueue(intakeItem{failure: code})
}

// Sync blocks until everything queued before the call has been dispatched,
// or ctx ends. A full queue may drop the marker, so callers should bound ctx.
func (r *Registry) Sync(ctx context.Context) error {
	synced := make(chan struct{})
	r.enqueue(intakeItem{synced: synced})
	select {
	case <-synced:
		return nil
	case <-r.done:
		return ErrRegistryClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) enqueue(item intakeItem) {
	if r.intake.Push(item) {
		r.logger.WithField("dropped", r.intake.Snapshot().Overwritten).Warn("Intake queue full, dropped oldest item")
	}
}

func (r *Registry) pump(ctx context.Context) {
	defer close(r.done)

	for {
		item, ok := r.intake.Pop(ctx)
		if !ok {
			return
		}
		switch {
		case item.synced != nil:
			close(item.synced)
		case item.event != nil:
			r.Dispatch(*item.event)
		case item.batch != nil:
			r.DispatchBatch(item.batch)
		case item.failure != 0:
			r.DispatchFailure(item.failure)
		}
	}
}

// Dispatch delivers ev to every active subscription synchronously.
func (r *Registry) Dispatch(ev DiscoveryEvent) {
	for _, sub := range r.snapshot() {
		sub.handleEvent(ev)
	}
}

// DispatchBatch delivers a radio batch to every active subscription synchronously.
func (r *Registry) DispatchBatch(events []DiscoveryEvent) {
	for _, sub := range r.snapshot() {
		sub.handleBatch(events)
	}
}

// DispatchFailure reacts to a radio failure. Subscriptions that relied on
// native first-match/match-lost are restarted with emulation instead of
// seeing the failure; all others receive it verbatim.
func (r *Registry) DispatchFailure(code ErrorCode) {
	for _, sub := range r.snapshot() {
		if sub.reliesOnHardwareCallbackTypes() {
			r.downgrade(sub, code)
			continue
		}
		sub.fail(code)
	}
}

func (r *Registry) downgrade(old *subscription, code ErrorCode) {
	settings := old.settings.WithoutHardwareCallbackTypes()

	r.mu.Lock()
	if current, ok := r.subs[old.callback]; !ok || current != old {
		r.mu.Unlock()
		return
	}
	replacement := r.newSubscriptionLocked(old.callback, old.filters, settings)
	r.subs[old.callback] = replacement
	r.mu.Unlock()

	old.stop()
	replacement.start()

	r.logger.WithFields(logrus.Fields{
		"subscription": old.id,
		"replacement":  replacement.id,
		"error_code":   code.String(),
	}).Warn("Hardware callback types failed, falling back to emulation")
}

func (r *Registry) newSubscriptionLocked(cb Callback, filters Filters, settings *Settings) *subscription {
	r.nextID++
	return newSubscription(r.nextID, cb, filters, settings, r.caps.Capabilities(), r.clock, r.logger)
}

func (r *Registry) stopRadioLocked() {
	if !r.running {
		return
	}
	r.running = false
	if r.radio == nil {
		return
	}
	if err := r.radio.StopScan(); err != nil {
		r.logger.WithError(err).Warn("Failed to stop radio")
		return
	}
	r.logger.Info("Radio stopped")
}

func (r *Registry) lookup(cb Callback) *subscription {
	if cb == nil || !reflect.TypeOf(cb).Comparable() {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.subs[cb]
}

func (r *Registry) snapshot() []*subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := make([]*subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		subs = append(subs, sub)
	}
	return subs
}
