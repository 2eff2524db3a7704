package output

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blescan/internal/groutine"
)

// Printer continuously drains a Collector to a writer and keeps a
// DeviceTable up to date. It runs in a background goroutine and provides
// graceful shutdown via Cancel() and Wait().
type Printer struct {
	collector *Collector
	formatter Formatter
	devices   *DeviceTable
	out       io.Writer
	logger    *logrus.Logger

	cancelOnce sync.Once
	stop       chan struct{}
	wg         sync.WaitGroup

	mu      sync.Mutex
	printed int
	err     error
}

// NewPrinter creates a printer. A nil writer only updates the device table.
func NewPrinter(c *Collector, f Formatter, out io.Writer, logger *logrus.Logger) *Printer {
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Printer{
		collector: c,
		formatter: f,
		devices:   NewDeviceTable(),
		out:       out,
		logger:    logger,
		stop:      make(chan struct{}),
	}
}

// Start launches the drain loop. It stops on Cancel or when ctx is done,
// draining whatever is still buffered before exiting.
func (p *Printer) Start(ctx context.Context) {
	p.wg.Add(1)
	groutine.Go(ctx, "output-printer", func(ctx context.Context) {
		defer p.wg.Done()
		for {
			select {
			case <-p.collector.Ready():
				p.drain()
			case <-p.stop:
				p.drain()
				return
			case <-ctx.Done():
				p.drain()
				return
			}
		}
	})
}

func (p *Printer) drain() {
	n, err := p.collector.Drain(func(n Notification) error {
		p.devices.Observe(n)
		text, err := p.formatter.Format(n)
		if err != nil {
			return err
		}
		_, err = io.WriteString(p.out, text)
		return err
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	p.printed += n
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("failed to print notification: %w", err)
		p.logger.WithError(err).Error("Output printer failed")
	}
}

// Cancel signals the printer to stop after a final drain.
func (p *Printer) Cancel() {
	p.cancelOnce.Do(func() {
		close(p.stop)
	})
}

// Wait blocks until the printer goroutine has fully exited.
func (p *Printer) Wait() {
	p.wg.Wait()
}

// Devices returns the table fed by this printer.
func (p *Printer) Devices() *DeviceTable {
	return p.devices
}

// Printed returns the number of notifications drained so far.
func (p *Printer) Printed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.printed
}

// Err returns the first write or formatting error.
func (p *Printer) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
