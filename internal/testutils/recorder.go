package testutils

import (
	"sync"
	"time"

	"github.com/srg/blescan/scanner"
)

// Notification is one callback invocation captured by a Recorder.
type Notification struct {
	Kind         string // "discovered", "batch" or "failed"
	CallbackType scanner.CallbackType
	Events       []scanner.DiscoveryEvent
	ErrorCode    scanner.ErrorCode
}

// Addresses lists the addresses of the events in n.
func (n Notification) Addresses() []string {
	addrs := make([]string, len(n.Events))
	for i, ev := range n.Events {
		addrs[i] = ev.Address
	}
	return addrs
}

// Recorder is a scanner.Callback that keeps every notification it gets.
// OnPanic, when set, runs inside OnDiscovered before recording.
type Recorder struct {
	mu            sync.Mutex
	notifications []Notification
	changed       chan struct{}

	OnPanic func()
}

func NewRecorder() *Recorder {
	return &Recorder{changed: make(chan struct{}, 1)}
}

func (r *Recorder) OnDiscovered(t scanner.CallbackType, ev scanner.DiscoveryEvent) {
	if r.OnPanic != nil {
		r.OnPanic()
	}
	r.add(Notification{Kind: "discovered", CallbackType: t, Events: []scanner.DiscoveryEvent{ev}})
}

func (r *Recorder) OnBatch(events []scanner.DiscoveryEvent) {
	cp := append([]scanner.DiscoveryEvent(nil), events...)
	r.add(Notification{Kind: "batch", Events: cp})
}

func (r *Recorder) OnFailed(code scanner.ErrorCode) {
	r.add(Notification{Kind: "failed", ErrorCode: code})
}

func (r *Recorder) add(n Notification) {
	r.mu.Lock()
	r.notifications = append(r.notifications, n)
	r.mu.Unlock()

	select {
	case r.changed <- struct{}{}:
	default:
	}
}

// Notifications returns a copy of everything recorded so far.
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notifications...)
}

// Len returns the number of recorded notifications.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notifications)
}

// Of returns the notifications of the given kind.
func (r *Recorder) Of(kind string) []Notification {
	var out []Notification
	for _, n := range r.Notifications() {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// Discovered returns the single-event notifications with callback type t.
func (r *Recorder) Discovered(t scanner.CallbackType) []scanner.DiscoveryEvent {
	var out []scanner.DiscoveryEvent
	for _, n := range r.Of("discovered") {
		if n.CallbackType == t {
			out = append(out, n.Events...)
		}
	}
	return out
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.notifications = nil
	r.mu.Unlock()
}

// WaitFor blocks until at least n notifications arrived or timeout elapses.
func (r *Recorder) WaitFor(n int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		if r.Len() >= n {
			return true
		}
		select {
		case <-r.changed:
		case <-deadline.C:
			return r.Len() >= n
		}
	}
}

var _ scanner.Callback = (*Recorder)(nil)
