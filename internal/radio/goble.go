// Package radio connects scanner registries to advertisement sources: a live
// go-ble adapter, or a recording replayed from disk.
package radio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blescan/internal/advertisement"
	"github.com/srg/blescan/internal/clock"
	"github.com/srg/blescan/internal/groutine"
	"github.com/srg/blescan/scanner"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = func() (ble.Device, error) {
	return defaultDevice()
}

// go-ble reports this Tx Power Level when the field is absent.
const txPowerUnknown = 127

// GoBLE scans with a go-ble device and pushes every advertisement into a
// scanner.Sink. go-ble offloads neither filtering, batching nor
// first-match/match-lost, so everything is emulated by the registry.
type GoBLE struct {
	logger *logrus.Logger
	clock  clock.Clock

	mu     sync.Mutex
	sink   scanner.Sink
	dev    ble.Device
	cancel context.CancelFunc
	done   chan struct{}
}

// GoBLEOption configures a GoBLE radio.
type GoBLEOption func(*GoBLE)

func WithLogger(logger *logrus.Logger) GoBLEOption {
	return func(g *GoBLE) { g.logger = logger }
}

// WithClock sets the clock that timestamps sightings.
func WithClock(c clock.Clock) GoBLEOption {
	return func(g *GoBLE) { g.clock = c }
}

func NewGoBLE(opts ...GoBLEOption) *GoBLE {
	g := &GoBLE{}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = logrus.New()
	}
	if g.clock == nil {
		g.clock = clock.New()
	}
	return g
}

// Attach sets the sink sightings are delivered to. It must be called before
// the first StartScan.
func (g *GoBLE) Attach(sink scanner.Sink) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sink = sink
}

func (g *GoBLE) Capabilities() scanner.Capabilities {
	return scanner.Capabilities{}
}

// StartScan opens the device on first use and starts a background scan.
func (g *GoBLE) StartScan() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.sink == nil {
		return fmt.Errorf("radio has no sink attached")
	}
	if g.cancel != nil {
		return nil
	}

	if g.dev == nil {
		dev, err := DeviceFactory()
		if err != nil {
			return fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
		}
		g.dev = dev
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	g.cancel = cancel
	g.done = done

	dev, sink := g.dev, g.sink
	groutine.Go(ctx, "goble-scan", func(ctx context.Context) {
		defer close(done)
		g.scan(ctx, dev, sink)
	})

	g.logger.Debug("BLE scan started")
	return nil
}

func (g *GoBLE) scan(ctx context.Context, dev ble.Device, sink scanner.Sink) {
	err := dev.Scan(ctx, true, func(adv ble.Advertisement) {
		sink.HandleEvent(EventFromAdvertisement(adv, g.clock.Now()))
	})
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}

	err = NormalizeError(err)
	code := FailureCode(err)
	g.logger.WithError(err).WithField("error_code", code.String()).Error("BLE scan failed")
	sink.HandleFailure(code)
}

// StopScan cancels the running scan and waits for it to wind down.
func (g *GoBLE) StopScan() error {
	g.mu.Lock()
	cancel, done := g.cancel, g.done
	g.cancel, g.done = nil, nil
	g.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		return fmt.Errorf("BLE scan did not stop within 5s")
	}
	g.logger.Debug("BLE scan stopped")
	return nil
}

// FlushPending is a no-op: go-ble never batches results.
func (g *GoBLE) FlushPending() error {
	return nil
}

// rawAdvertisement is implemented by go-ble backends that keep the
// advertising and scan response payloads as received (linux/hci).
type rawAdvertisement interface {
	Data() []byte
	ScanResponse() []byte
}

// EventFromAdvertisement wraps adv into a discovery event. The payload is
// taken verbatim from the backend when it exposes it, otherwise it is
// rebuilt from the fields go-ble parsed. Addresses are upper cased so they
// compare equal to filter addresses.
func EventFromAdvertisement(adv ble.Advertisement, ts time.Time) scanner.DiscoveryEvent {
	addr := strings.ToUpper(adv.Addr().String())
	if raw, ok := adv.(rawAdvertisement); ok {
		if data := rawPayload(raw); len(data) > 0 {
			return scanner.NewDiscoveryEvent(addr, data, adv.RSSI(), ts)
		}
	}
	return scanner.NewDiscoveryEvent(addr, rebuildPayload(adv), adv.RSSI(), ts)
}

// rawPayload joins the advertising data and the scan response.
func rawPayload(raw rawAdvertisement) []byte {
	data, rsp := raw.Data(), raw.ScanResponse()
	out := make([]byte, 0, len(data)+len(rsp))
	out = append(out, data...)
	return append(out, rsp...)
}

func rebuildPayload(adv ble.Advertisement) []byte {
	var p advertisement.Packet

	if name := adv.LocalName(); name != "" {
		p = p.AppendCompleteName(name)
	}
	if tx := adv.TxPowerLevel(); tx != txPowerUnknown {
		p = p.AppendTxPower(tx)
	}

	byWidth := map[int][]byte{}
	var widths []int
	uuids := append([]ble.UUID(nil), adv.Services()...)
	for _, u := range append(uuids, adv.OverflowService()...) {
		if _, seen := byWidth[len(u)]; !seen {
			widths = append(widths, len(u))
		}
		byWidth[len(u)] = append(byWidth[len(u)], u...)
	}
	for _, w := range widths {
		p = p.AppendRawUUIDs(w, byWidth[w])
	}

	for _, sd := range adv.ServiceData() {
		p = p.AppendRawServiceData(sd.UUID, sd.Data)
	}
	if md := adv.ManufacturerData(); len(md) >= 2 {
		p = p.AppendField(advertisement.TypeManufacturerData, md)
	}

	return p.Bytes()
}

var (
	_ scanner.CapabilityProvider = (*GoBLE)(nil)
	_ scanner.RadioController    = (*GoBLE)(nil)
)
