package radio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blescan/internal/clock"
	"github.com/srg/blescan/internal/groutine"
	"github.com/srg/blescan/scanner"
)

// ReadFrames decodes every frame in r.
func ReadFrames(r io.Reader) ([]Frame, error) {
	dec := NewDecoder(r)

	var frames []Frame
	for {
		var f Frame
		if err := dec.Decode(&f); err != nil {
			if errors.Is(err, io.EOF) {
				return frames, nil
			}
			return frames, fmt.Errorf("failed to decode frame %d: %w", len(frames), err)
		}
		frames = append(frames, f)
	}
}

// Replay plays recorded frames into a sink, keeping their original spacing
// scaled by a speed factor. Sightings are re-stamped with the current time
// so match-lost timeouts behave as they did live.
type Replay struct {
	frames []Frame
	caps   scanner.Capabilities
	speed  float64
	clock  clock.Clock
	logger *logrus.Logger

	mu       sync.Mutex
	sink     scanner.Sink
	cancel   context.CancelFunc
	done     chan struct{}
	finished chan struct{}
}

type ReplayOption func(*Replay)

// WithSpeed scales playback: 2 plays twice as fast, 0 plays without pauses.
func WithSpeed(speed float64) ReplayOption {
	return func(r *Replay) { r.speed = speed }
}

// WithCapabilities makes the replay claim offload support, which lets
// recordings of native batches and callback types be replayed faithfully.
func WithCapabilities(caps scanner.Capabilities) ReplayOption {
	return func(r *Replay) { r.caps = caps }
}

func WithReplayClock(c clock.Clock) ReplayOption {
	return func(r *Replay) { r.clock = c }
}

func WithReplayLogger(logger *logrus.Logger) ReplayOption {
	return func(r *Replay) { r.logger = logger }
}

func NewReplay(frames []Frame, opts ...ReplayOption) *Replay {
	r := &Replay{
		frames:   frames,
		speed:    1,
		finished: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.clock == nil {
		r.clock = clock.New()
	}
	if r.logger == nil {
		r.logger = logrus.New()
	}
	return r
}

// OpenReplay reads a recording file.
func OpenReplay(path string, opts ...ReplayOption) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	frames, err := ReadFrames(f)
	if err != nil {
		return nil, err
	}
	return NewReplay(frames, opts...), nil
}

func (r *Replay) Attach(sink scanner.Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = sink
}

func (r *Replay) Capabilities() scanner.Capabilities {
	return r.caps
}

// Len returns the number of frames.
func (r *Replay) Len() int {
	return len(r.frames)
}

// Finished is closed once the first playback delivered every frame.
func (r *Replay) Finished() <-chan struct{} {
	return r.finished
}

// StartScan starts playback from the first frame.
func (r *Replay) StartScan() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sink == nil {
		return fmt.Errorf("replay has no sink attached")
	}
	if r.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.cancel, r.done = cancel, done
	sink := r.sink

	groutine.Go(ctx, "replay", func(ctx context.Context) {
		defer close(done)
		if r.play(ctx, sink) {
			r.markFinished()
		}
	})
	return nil
}

func (r *Replay) play(ctx context.Context, sink scanner.Sink) bool {
	var prev time.Time
	for i, f := range r.frames {
		if i > 0 && r.speed > 0 {
			gap := time.Duration(float64(f.Timestamp.Sub(prev)) / r.speed)
			if gap > 0 {
				t := time.NewTimer(gap)
				select {
				case <-ctx.Done():
					t.Stop()
					return false
				case <-t.C:
				}
			}
		}
		if ctx.Err() != nil {
			return false
		}
		prev = f.Timestamp
		r.deliver(sink, f)
	}

	r.logger.WithField("frames", len(r.frames)).Debug("Replay finished")
	return true
}

func (r *Replay) deliver(sink scanner.Sink, f Frame) {
	now := r.clock.Now()
	switch f.Kind {
	case FrameEvent:
		for _, s := range f.Sightings {
			sink.HandleEvent(s.Event(now))
		}
	case FrameBatch:
		events := make([]scanner.DiscoveryEvent, len(f.Sightings))
		for i, s := range f.Sightings {
			events[i] = s.Event(now)
		}
		sink.HandleBatch(events)
	case FrameFailure:
		sink.HandleFailure(scanner.ErrorCode(f.ErrorCode))
	default:
		r.logger.WithField("kind", f.Kind.String()).Warn("Skipping unknown frame")
	}
}

func (r *Replay) markFinished() {
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-r.finished:
	default:
		close(r.finished)
	}
}

// StopScan cancels playback and waits until no further frame can reach
// the sink.
func (r *Replay) StopScan() error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		return fmt.Errorf("replay did not stop within 5s")
	}
	return nil
}

// FlushPending is a no-op: recorded batches are delivered as they were recorded.
func (r *Replay) FlushPending() error {
	return nil
}

var (
	_ scanner.CapabilityProvider = (*Replay)(nil)
	_ scanner.RadioController    = (*Replay)(nil)
)
