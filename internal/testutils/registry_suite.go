package testutils

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blescan/internal/clock"
	"github.com/srg/blescan/scanner"
	"github.com/stretchr/testify/suite"
)

// RegistrySuite is a reusable suite around a scanner.Registry driven by a
// manual clock and a mocked radio.
//
// Embedding suites may set Caps before calling RegistrySuite.SetupTest:
//
//	type BatchingSuite struct {
//	    testutils.RegistrySuite
//	}
//
//	func (s *BatchingSuite) SetupTest() {
//	    s.Caps = scanner.Capabilities{OffloadedBatching: true}
//	    s.RegistrySuite.SetupTest()
//	}
//
// Events are usually fed through Registry.Dispatch, which delivers
// synchronously, so no waiting is needed before asserting.
type RegistrySuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	Caps     scanner.Capabilities
	Clock    *clock.Manual
	Radio    *MockRadioController
	Registry *scanner.Registry
	Recorder *Recorder
}

func (s *RegistrySuite) SetupTest() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger

	s.Clock = clock.NewManual(DefaultTestTime)
	s.Radio = &MockRadioController{}
	s.Radio.On("StartScan").Return(nil).Maybe()
	s.Radio.On("StopScan").Return(nil).Maybe()
	s.Radio.On("FlushPending").Return(nil).Maybe()

	s.Registry = scanner.NewRegistry(s.Caps,
		scanner.WithLogger(s.Logger),
		scanner.WithClock(s.Clock),
		scanner.WithRadioController(s.Radio),
	)
	s.Recorder = NewRecorder()
}

func (s *RegistrySuite) TearDownTest() {
	if s.Registry != nil {
		s.Registry.Close()
	}
	s.Caps = scanner.Capabilities{}
}

// Start registers the suite recorder and fails the test on error.
func (s *RegistrySuite) Start(filters []*scanner.Filter, opts ...scanner.SettingsOption) {
	settings, err := scanner.NewSettings(opts...)
	s.Require().NoError(err)
	s.Require().NoError(s.Registry.Start(s.Recorder, filters, settings))
}

// Sighting dispatches an advertisement seen at the current clock time.
func (s *RegistrySuite) Sighting(b *AdvertisementBuilder) scanner.DiscoveryEvent {
	ev := b.At(s.Clock.Now()).Event()
	s.Registry.Dispatch(ev)
	return ev
}

// Advance moves the manual clock forward, firing due tasks.
func (s *RegistrySuite) Advance(d time.Duration) {
	s.Clock.Advance(d)
}

// AssertRadioCalls checks how often the radio lifecycle method was invoked.
func (s *RegistrySuite) AssertRadioCalls(method string, n int) {
	s.Radio.AssertNumberOfCalls(s.T(), method, n)
}
