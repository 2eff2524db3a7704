package testutils

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/srg/blescan/scanner"
	"github.com/stretchr/testify/mock"
)

// MockAdvertisement implements ble.Advertisement for radio adapter tests.
type MockAdvertisement struct {
	mock.Mock
}

func (m *MockAdvertisement) LocalName() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockAdvertisement) ManufacturerData() []byte {
	args := m.Called()
	if b, ok := args.Get(0).([]byte); ok {
		return b
	}
	return nil
}

func (m *MockAdvertisement) ServiceData() []ble.ServiceData {
	args := m.Called()
	if sd, ok := args.Get(0).([]ble.ServiceData); ok {
		return sd
	}
	return nil
}

func (m *MockAdvertisement) Services() []ble.UUID {
	args := m.Called()
	if u, ok := args.Get(0).([]ble.UUID); ok {
		return u
	}
	return nil
}

func (m *MockAdvertisement) OverflowService() []ble.UUID {
	args := m.Called()
	if u, ok := args.Get(0).([]ble.UUID); ok {
		return u
	}
	return nil
}

func (m *MockAdvertisement) TxPowerLevel() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockAdvertisement) Connectable() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockAdvertisement) SolicitedService() []ble.UUID {
	args := m.Called()
	if u, ok := args.Get(0).([]ble.UUID); ok {
		return u
	}
	return nil
}

func (m *MockAdvertisement) RSSI() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockAdvertisement) Addr() ble.Addr {
	args := m.Called()
	return args.Get(0).(ble.Addr)
}

// MockAddr implements ble.Addr.
type MockAddr struct {
	mock.Mock
}

func (m *MockAddr) String() string {
	args := m.Called()
	return args.String(0)
}

// MockDevice implements ble.Device. Only Scan and Stop are mocked; any
// other method panics through the nil embedded interface.
type MockDevice struct {
	mock.Mock
	ble.Device
}

func (m *MockDevice) Stop() error {
	return m.Called().Error(0)
}

func (m *MockDevice) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	return m.Called(ctx, allowDup, h).Error(0)
}

// NewScanningDevice returns a MockDevice whose Scan delivers advs and then
// blocks until the scan context is cancelled.
func NewScanningDevice(advs ...ble.Advertisement) *MockDevice {
	dev := &MockDevice{}
	dev.On("Stop").Return(nil).Maybe()
	dev.On("Scan", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		h := args.Get(2).(ble.AdvHandler)
		for _, adv := range advs {
			h(adv)
		}
		<-ctx.Done()
	}).Return(context.Canceled)
	return dev
}

// MockRadioController records the registry's radio lifecycle calls.
type MockRadioController struct {
	mock.Mock
}

func (m *MockRadioController) StartScan() error {
	return m.Called().Error(0)
}

func (m *MockRadioController) StopScan() error {
	return m.Called().Error(0)
}

func (m *MockRadioController) FlushPending() error {
	return m.Called().Error(0)
}

// MockCapabilityProvider counts capability queries.
type MockCapabilityProvider struct {
	mock.Mock
}

func (m *MockCapabilityProvider) Capabilities() scanner.Capabilities {
	return m.Called().Get(0).(scanner.Capabilities)
}

var (
	_ ble.Device                 = (*MockDevice)(nil)
	_ ble.Advertisement          = (*MockAdvertisement)(nil)
	_ scanner.RadioController    = (*MockRadioController)(nil)
	_ scanner.CapabilityProvider = (*MockCapabilityProvider)(nil)
)
