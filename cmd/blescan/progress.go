package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/srg/blescan/internal/groutine"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// countdown keeps a "Scanning (Ns left)" status on one terminal line.
//
// Usage:
//
//	c := newCountdown(os.Stderr, "Scanning", 10*time.Second)
//	c.Start(ctx)
//	defer c.Stop()
//
// The line is cleared on Stop or when ctx ends. A countdown is single-use.
type countdown struct {
	w        io.Writer
	prefix   string
	duration time.Duration
	interval time.Duration

	mu       sync.Mutex
	started  time.Time
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func newCountdown(w io.Writer, prefix string, duration time.Duration) *countdown {
	return &countdown{
		w:        w,
		prefix:   prefix,
		duration: duration,
		interval: progressUpdateInterval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start draws the first line and refreshes it in the background.
func (c *countdown) Start(ctx context.Context) {
	c.mu.Lock()
	c.started = time.Now()
	c.mu.Unlock()
	c.draw(c.duration)

	groutine.Go(ctx, "scan-countdown", func(ctx context.Context) {
		defer close(c.done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-c.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.mu.Lock()
				left := c.duration - time.Since(c.started)
				c.mu.Unlock()
				c.draw(left)
			}
		}
	})
}

func (c *countdown) draw(left time.Duration) {
	fmt.Fprintf(c.w, "\r%s (%ds left)   ", c.prefix, remainingSeconds(left))
}

// Stop ends the refresh loop and clears the line. Safe to call repeatedly.
func (c *countdown) Stop() {
	c.mu.Lock()
	started := !c.started.IsZero()
	c.mu.Unlock()
	if !started {
		return
	}
	c.stopOnce.Do(func() {
		close(c.stop)
		<-c.done
		fmt.Fprint(c.w, clearLineSequence)
	})
}

// remainingSeconds rounds to the nearest second, never below zero.
func remainingSeconds(left time.Duration) int {
	if left <= 0 {
		return 0
	}
	return int(left.Seconds() + 0.5)
}
