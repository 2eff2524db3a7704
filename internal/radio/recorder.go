package radio

import (
	"errors"
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/srg/blescan/internal/clock"
	"github.com/srg/blescan/scanner"
)

// Recorder is a scanner.Sink that writes every frame to a CBOR stream and
// then forwards it to the next sink. It is safe for concurrent use.
type Recorder struct {
	next  scanner.Sink
	clock clock.Clock

	mu      sync.Mutex
	closer  io.Closer
	encoder *cbor.Encoder
	closed  bool
	frames  int
	err     error
}

// NewRecorder records into w. If w is an io.Closer, Close closes it.
func NewRecorder(w io.Writer, next scanner.Sink, clk clock.Clock) *Recorder {
	if clk == nil {
		clk = clock.New()
	}
	r := &Recorder{
		next:    next,
		clock:   clk,
		encoder: NewEncoder(w),
	}
	if c, ok := w.(io.Closer); ok {
		r.closer = c
	}
	return r
}

// CreateRecording truncates path and records into it.
func CreateRecording(path string, next scanner.Sink, clk clock.Clock) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return NewRecorder(f, next, clk), nil
}

func (r *Recorder) HandleEvent(ev scanner.DiscoveryEvent) {
	r.write(Frame{Kind: FrameEvent, Sightings: []Sighting{newSighting(ev)}})
	if r.next != nil {
		r.next.HandleEvent(ev)
	}
}

func (r *Recorder) HandleBatch(events []scanner.DiscoveryEvent) {
	sightings := make([]Sighting, len(events))
	for i, ev := range events {
		sightings[i] = newSighting(ev)
	}
	r.write(Frame{Kind: FrameBatch, Sightings: sightings})
	if r.next != nil {
		r.next.HandleBatch(events)
	}
}

func (r *Recorder) HandleFailure(code scanner.ErrorCode) {
	r.write(Frame{Kind: FrameFailure, ErrorCode: int(code)})
	if r.next != nil {
		r.next.HandleFailure(code)
	}
}

func (r *Recorder) write(f Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.err != nil {
		return
	}
	f.Timestamp = r.clock.Now()
	if err := r.encoder.Encode(f); err != nil {
		// keep forwarding, report on Close
		r.err = err
		return
	}
	r.frames++
}

// Frames returns the number of frames written so far.
func (r *Recorder) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Close stops recording. It returns the first write error, if any.
// It is safe to call Close multiple times.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var closeErr error
	if r.closer != nil {
		closeErr = r.closer.Close()
	}
	return errors.Join(r.err, closeErr)
}

var _ scanner.Sink = (*Recorder)(nil)
