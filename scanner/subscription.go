package scanner

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blescan/internal/clock"
	"github.com/srg/blescan/internal/groutine"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// minFlushSpacing absorbs timers that deliver the same flush twice.
const minFlushSpacing = 5 * time.Millisecond

// subscription is the dispatch engine of one registered callback. It turns
// raw sightings into the notifications its Settings ask for, emulating
// whatever the radio cannot do natively.
type subscription struct {
	id       uint64
	callback Callback
	filters  Filters
	settings *Settings
	caps     Capabilities
	clock    clock.Clock
	logger   *logrus.Logger

	emulateFoundLost bool
	emulateBatching  bool
	emulateFiltering bool

	mu        sync.Mutex
	stopped   bool
	inRange   map[string]DiscoveryEvent
	pending   *orderedmap.OrderedMap[string, DiscoveryEvent]
	lastFlush time.Time

	sweepTimer clock.Timer
	sweepGen   uint64
	flushTimer clock.Timer
	flushGen   uint64
}

func newSubscription(id uint64, cb Callback, filters Filters, settings *Settings, caps Capabilities, clk clock.Clock, logger *logrus.Logger) *subscription {
	callbackType := settings.CallbackType()

	s := &subscription{
		id:       id,
		callback: cb,
		filters:  filters,
		settings: settings,
		caps:     caps,
		clock:    clk,
		logger:   logger,

		emulateFoundLost: callbackType != CallbackAllMatches &&
			!(settings.UseHardwareCallbackTypesIfSupported() && caps.HardwareCallbackTypes),
		emulateBatching: settings.ReportDelay() > 0 &&
			!(settings.UseHardwareBatchingIfSupported() && caps.OffloadedBatching),
		emulateFiltering: !(settings.UseHardwareFilteringIfSupported() && caps.OffloadedFiltering),

		inRange: make(map[string]DiscoveryEvent),
		pending: orderedmap.New[string, DiscoveryEvent](),
	}
	return s
}

// start arms the flush task when batching is emulated.
func (s *subscription) start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if s.emulateBatching {
		s.scheduleFlushLocked()
	}
}

// stop silences the subscription. It returns false if it was already stopped.
// Once stop returns no callback of this subscription runs again.
func (s *subscription) stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}
	s.stopped = true

	s.cancelSweepLocked()
	s.cancelFlushLocked()
	clear(s.inRange)
	s.pending = orderedmap.New[string, DiscoveryEvent]()
	return true
}

func (s *subscription) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// usesHardwareBatching reports whether batches come from the radio rather
// than from the emulated flush task.
func (s *subscription) usesHardwareBatching() bool {
	return s.settings.ReportDelay() > 0 && !s.emulateBatching
}

// usesHardwareCallbackTypes reports whether first-match/match-lost are left
// to the radio.
func (s *subscription) usesHardwareCallbackTypes() bool {
	return s.settings.CallbackType() != CallbackAllMatches && !s.emulateFoundLost
}

// reliesOnHardwareCallbackTypes reports whether a radio failure should be
// answered by downgrading to emulated first-match/match-lost. Subscriptions
// already emulating have nothing to downgrade.
func (s *subscription) reliesOnHardwareCallbackTypes() bool {
	return s.usesHardwareCallbackTypes()
}

// handleEvent runs one sighting through the filters and the callback policy.
func (s *subscription) handleEvent(ev DiscoveryEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handleEventLocked(ev)
}

func (s *subscription) handleEventLocked(ev DiscoveryEvent) {
	if s.stopped {
		return
	}
	if !s.filters.Match(ev) {
		return
	}

	callbackType := s.settings.CallbackType()

	if ev.native() {
		// radio-reported first-match/match-lost only concern subscriptions
		// that left those callback types to the radio
		if s.usesHardwareCallbackTypes() && callbackType.Has(ev.CallbackType) {
			s.emitDiscoveredLocked(ev.CallbackType, ev)
		}
		return
	}

	switch {
	case s.emulateFoundLost:
		_, seen := s.inRange[ev.Address]
		wasEmpty := len(s.inRange) == 0
		s.inRange[ev.Address] = ev

		if !seen && callbackType.Has(CallbackFirstMatch) {
			s.emitDiscoveredLocked(CallbackFirstMatch, ev)
		}
		if wasEmpty && callbackType.Has(CallbackMatchLost) {
			s.scheduleSweepLocked()
		}

	case s.usesHardwareCallbackTypes():
		// the radio reports first-match/match-lost itself

	case s.emulateBatching:
		if _, present := s.pending.Get(ev.Address); !present {
			s.pending.Set(ev.Address, ev)
		}

	default:
		s.emitDiscoveredLocked(CallbackAllMatches, ev)
	}
}

// handleBatch handles results the radio delivered together. Subscriptions
// that batch in hardware get them as one batch; everyone else sees the
// individual sightings.
func (s *subscription) handleBatch(events []DiscoveryEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	if !s.usesHardwareBatching() {
		for _, ev := range events {
			s.handleEventLocked(ev)
		}
		return
	}

	now := s.clock.Now()
	if !s.lastFlush.IsZero() && now.Sub(s.lastFlush) < minFlushSpacing {
		s.logger.WithField("subscription", s.id).Debug("Dropping duplicate hardware batch")
		return
	}
	s.lastFlush = now

	batch := events
	if s.emulateFiltering && len(s.filters) > 0 {
		batch = make([]DiscoveryEvent, 0, len(events))
		for _, ev := range events {
			if s.filters.Match(ev) {
				batch = append(batch, ev)
			}
		}
	}
	if len(batch) == 0 {
		return
	}
	s.emitBatchLocked(batch)
}

// flushNow delivers the pending batch immediately, bypassing the spacing guard.
func (s *subscription) flushNow() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || !s.emulateBatching {
		return
	}
	s.lastFlush = s.clock.Now()
	if batch := s.takePendingLocked(); len(batch) > 0 {
		s.emitBatchLocked(batch)
	}
}

// fail forwards a radio failure.
func (s *subscription) fail(code ErrorCode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.emit("failed", func() { s.callback.OnFailed(code) })
}

// ---------------------------------------------------------------------------
// Match-lost sweep
// ---------------------------------------------------------------------------

func (s *subscription) scheduleSweepLocked() {
	s.cancelSweepLocked()
	gen := s.sweepGen
	s.sweepTimer = s.clock.AfterFunc(s.settings.MatchLostTaskInterval(), func() { s.sweep(gen) })
}

func (s *subscription) cancelSweepLocked() {
	if s.sweepTimer != nil {
		s.sweepTimer.Stop()
		s.sweepTimer = nil
	}
	s.sweepGen++
}

func (s *subscription) sweep(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || gen != s.sweepGen {
		return
	}
	s.sweepTimer = nil

	now := s.clock.Now()
	timeout := s.settings.MatchLostDeviceTimeout()

	var lost []DiscoveryEvent
	for addr, ev := range s.inRange {
		if now.Sub(ev.Timestamp) > timeout {
			delete(s.inRange, addr)
			lost = append(lost, ev)
		}
	}
	sort.Slice(lost, func(i, j int) bool {
		if lost[i].Timestamp.Equal(lost[j].Timestamp) {
			return lost[i].Address < lost[j].Address
		}
		return lost[i].Timestamp.Before(lost[j].Timestamp)
	})

	if len(s.inRange) > 0 {
		s.scheduleSweepLocked()
	}

	if len(lost) > 0 {
		s.logger.WithFields(logrus.Fields{
			"subscription": s.id,
			"lost":         len(lost),
			"in_range":     len(s.inRange),
		}).Debug("Match-lost sweep")
	}
	for _, ev := range lost {
		s.emitDiscoveredLocked(CallbackMatchLost, ev)
	}
}

// ---------------------------------------------------------------------------
// Batch flush
// ---------------------------------------------------------------------------

func (s *subscription) scheduleFlushLocked() {
	s.cancelFlushLocked()
	gen := s.flushGen
	s.flushTimer = s.clock.AfterFunc(s.settings.ReportDelay(), func() { s.flush(gen) })
}

func (s *subscription) cancelFlushLocked() {
	if s.flushTimer != nil {
		s.flushTimer.Stop()
		s.flushTimer = nil
	}
	s.flushGen++
}

func (s *subscription) flush(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || gen != s.flushGen {
		return
	}
	s.scheduleFlushLocked()

	now := s.clock.Now()
	if !s.lastFlush.IsZero() && now.Sub(s.lastFlush) < minFlushSpacing {
		s.logger.WithField("subscription", s.id).Debug("Skipping flush fired too close to the previous one")
		return
	}
	s.lastFlush = now

	if batch := s.takePendingLocked(); len(batch) > 0 {
		s.emitBatchLocked(batch)
	}
}

func (s *subscription) takePendingLocked() []DiscoveryEvent {
	if s.pending.Len() == 0 {
		return nil
	}
	batch := make([]DiscoveryEvent, 0, s.pending.Len())
	for p := s.pending.Oldest(); p != nil; p = p.Next() {
		batch = append(batch, p.Value)
	}
	s.pending = orderedmap.New[string, DiscoveryEvent]()
	return batch
}

// ---------------------------------------------------------------------------
// Emission
// ---------------------------------------------------------------------------

func (s *subscription) emitDiscoveredLocked(t CallbackType, ev DiscoveryEvent) {
	s.emit("discovered", func() { s.callback.OnDiscovered(t, ev) })
}

func (s *subscription) emitBatchLocked(batch []DiscoveryEvent) {
	s.emit("batch", func() { s.callback.OnBatch(batch) })
}

func (s *subscription) emit(kind string, fn func()) {
	_ = groutine.Safe(s.logger, logrus.Fields{
		"subscription": s.id,
		"notification": kind,
	}, fn)
}

// powerSave exposes the subscription's duty cycle to the registry.
func (s *subscription) powerSave() (scan, rest time.Duration, ok bool) {
	return s.settings.PowerSave()
}

func (s *subscription) fields() logrus.Fields {
	return logrus.Fields{
		"subscription":       s.id,
		"callback_type":      s.settings.CallbackType().String(),
		"report_delay":       s.settings.ReportDelay(),
		"filters":            len(s.filters),
		"emulate_found_lost": s.emulateFoundLost,
		"emulate_batching":   s.emulateBatching,
		"emulate_filtering":  s.emulateFiltering,
	}
}
