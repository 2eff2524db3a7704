package scanner

import (
	"fmt"
	"strings"
	"time"
)

// CallbackType selects which notifications a subscription receives.
// Valid values are CallbackAllMatches, CallbackFirstMatch, CallbackMatchLost
// and CallbackFirstMatch|CallbackMatchLost.
type CallbackType int

const (
	CallbackAllMatches CallbackType = 1
	CallbackFirstMatch CallbackType = 2
	CallbackMatchLost  CallbackType = 4
)

// Has reports whether every bit of t is requested.
func (c CallbackType) Has(t CallbackType) bool {
	return c&t == t
}

// Valid reports whether c is one of the four legal combinations.
func (c CallbackType) Valid() bool {
	switch c {
	case CallbackAllMatches, CallbackFirstMatch, CallbackMatchLost, CallbackFirstMatch | CallbackMatchLost:
		return true
	}
	return false
}

func (c CallbackType) String() string {
	var parts []string
	if c.Has(CallbackAllMatches) {
		parts = append(parts, "ALL_MATCHES")
	}
	if c.Has(CallbackFirstMatch) {
		parts = append(parts, "FIRST_MATCH")
	}
	if c.Has(CallbackMatchLost) {
		parts = append(parts, "MATCH_LOST")
	}
	if len(parts) == 0 || c&^(CallbackAllMatches|CallbackFirstMatch|CallbackMatchLost) != 0 {
		return fmt.Sprintf("CallbackType(%d)", int(c))
	}
	return strings.Join(parts, "|")
}

// ParseCallbackType accepts names such as "all", "all_matches", "first_match",
// "lost" or combinations separated by ',' or '|'.
func ParseCallbackType(s string) (CallbackType, error) {
	var c CallbackType
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '|' || r == ' ' }) {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "all", "all_matches":
			c |= CallbackAllMatches
		case "first", "first_match":
			c |= CallbackFirstMatch
		case "lost", "match_lost":
			c |= CallbackMatchLost
		default:
			return 0, &SettingsError{Field: "callback type", Value: part, Msg: "unknown name"}
		}
	}
	if !c.Valid() {
		return 0, &SettingsError{Field: "callback type", Value: s}
	}
	return c, nil
}

// ScanMode is the requested radio duty cycle.
type ScanMode int

const (
	ScanModeOpportunistic ScanMode = -1
	ScanModeLowPower      ScanMode = 0
	ScanModeBalanced      ScanMode = 1
	ScanModeLowLatency    ScanMode = 2
)

func (m ScanMode) String() string {
	switch m {
	case ScanModeOpportunistic:
		return "opportunistic"
	case ScanModeLowPower:
		return "low_power"
	case ScanModeBalanced:
		return "balanced"
	case ScanModeLowLatency:
		return "low_latency"
	default:
		return fmt.Sprintf("ScanMode(%d)", int(m))
	}
}

// ParseScanMode parses the String form of a ScanMode.
func ParseScanMode(s string) (ScanMode, error) {
	for m := ScanModeOpportunistic; m <= ScanModeLowLatency; m++ {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return 0, &SettingsError{Field: "scan mode", Value: s, Msg: "unknown name"}
}

// MatchMode controls how aggressively hardware filters report matches.
type MatchMode int

const (
	MatchModeAggressive MatchMode = 1
	MatchModeSticky     MatchMode = 2
)

// MatchNum is the number of advertisements a hardware filter waits for.
type MatchNum int

const (
	MatchNumOneAdvertisement MatchNum = 1
	MatchNumFewAdvertisement MatchNum = 2
	MatchNumMaxAdvertisement MatchNum = 3
)

// Defaults for match-lost emulation.
const (
	DefaultMatchLostDeviceTimeout = 10 * time.Second
	DefaultMatchLostTaskInterval  = 10 * time.Second
)

// Settings is an immutable set of scan parameters for one subscription.
type Settings struct {
	scanMode               ScanMode
	callbackType           CallbackType
	reportDelay            time.Duration
	matchMode              MatchMode
	numOfMatches           MatchNum
	matchLostDeviceTimeout time.Duration
	matchLostTaskInterval  time.Duration
	powerSaveScan          time.Duration
	powerSaveRest          time.Duration

	useHardwareFiltering     bool
	useHardwareBatching      bool
	useHardwareCallbackTypes bool
}

// SettingsOption configures Settings in NewSettings.
type SettingsOption func(*Settings) error

// DefaultSettings returns low-power, all-matches, immediate-delivery settings.
func DefaultSettings() *Settings {
	return &Settings{
		scanMode:                 ScanModeLowPower,
		callbackType:             CallbackAllMatches,
		matchMode:                MatchModeAggressive,
		numOfMatches:             MatchNumMaxAdvertisement,
		matchLostDeviceTimeout:   DefaultMatchLostDeviceTimeout,
		matchLostTaskInterval:    DefaultMatchLostTaskInterval,
		useHardwareFiltering:     true,
		useHardwareBatching:      true,
		useHardwareCallbackTypes: true,
	}
}

// NewSettings applies opts over DefaultSettings and returns the first
// validation error encountered.
func NewSettings(opts ...SettingsOption) (*Settings, error) {
	s := DefaultSettings()
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// WithScanMode sets the scan mode.
func WithScanMode(m ScanMode) SettingsOption {
	return func(s *Settings) error {
		if m < ScanModeOpportunistic || m > ScanModeLowLatency {
			return &SettingsError{Field: "scan mode", Value: int(m)}
		}
		s.scanMode = m
		return nil
	}
}

// WithCallbackType sets the requested notification kinds.
func WithCallbackType(c CallbackType) SettingsOption {
	return func(s *Settings) error {
		if !c.Valid() {
			return &SettingsError{Field: "callback type", Value: int(c)}
		}
		s.callbackType = c
		return nil
	}
}

// WithReportDelay sets the batching window. Zero delivers every result immediately.
func WithReportDelay(d time.Duration) SettingsOption {
	return func(s *Settings) error {
		if d < 0 {
			return &SettingsError{Field: "report delay", Value: d, Msg: "must be >= 0"}
		}
		s.reportDelay = d
		return nil
	}
}

// WithMatchOptions sets how long a device may stay silent before it is
// reported lost, and how often the in-range table is swept.
func WithMatchOptions(deviceTimeout, taskInterval time.Duration) SettingsOption {
	return func(s *Settings) error {
		if deviceTimeout <= 0 || taskInterval <= 0 {
			return &SettingsError{
				Field: "match options",
				Value: fmt.Sprintf("%s/%s", deviceTimeout, taskInterval),
				Msg:   "device timeout and task interval must be > 0",
			}
		}
		s.matchLostDeviceTimeout = deviceTimeout
		s.matchLostTaskInterval = taskInterval
		return nil
	}
}

// WithMatchMode sets the hardware match mode.
func WithMatchMode(m MatchMode) SettingsOption {
	return func(s *Settings) error {
		if m < MatchModeAggressive || m > MatchModeSticky {
			return &SettingsError{Field: "match mode", Value: int(m)}
		}
		s.matchMode = m
		return nil
	}
}

// WithNumOfMatches sets the hardware match count per filter.
func WithNumOfMatches(n MatchNum) SettingsOption {
	return func(s *Settings) error {
		if n < MatchNumOneAdvertisement || n > MatchNumMaxAdvertisement {
			return &SettingsError{Field: "num of matches", Value: int(n)}
		}
		s.numOfMatches = n
		return nil
	}
}

// WithPowerSave sets the scan and rest intervals of a duty-cycled scan.
func WithPowerSave(scan, rest time.Duration) SettingsOption {
	return func(s *Settings) error {
		if scan <= 0 || rest <= 0 {
			return &SettingsError{
				Field: "power save",
				Value: fmt.Sprintf("%s/%s", scan, rest),
				Msg:   "scan and rest intervals must be > 0",
			}
		}
		s.powerSaveScan = scan
		s.powerSaveRest = rest
		return nil
	}
}

// WithHardwareFiltering enables offloaded filtering when the radio supports it.
func WithHardwareFiltering(use bool) SettingsOption {
	return func(s *Settings) error {
		s.useHardwareFiltering = use
		return nil
	}
}

// WithHardwareBatching enables offloaded batching when the radio supports it.
func WithHardwareBatching(use bool) SettingsOption {
	return func(s *Settings) error {
		s.useHardwareBatching = use
		return nil
	}
}

// WithHardwareCallbackTypes enables native first-match/match-lost reporting
// when the radio supports it.
func WithHardwareCallbackTypes(use bool) SettingsOption {
	return func(s *Settings) error {
		s.useHardwareCallbackTypes = use
		return nil
	}
}

// Accessors for the values set by the SettingsOption functions. The
// UseHardware*IfSupported flags only state a preference; whether the radio
// actually offloads depends on its Capabilities.

func (s *Settings) ScanMode() ScanMode                      { return s.scanMode }
func (s *Settings) CallbackType() CallbackType              { return s.callbackType }
func (s *Settings) ReportDelay() time.Duration              { return s.reportDelay }
func (s *Settings) MatchMode() MatchMode                    { return s.matchMode }
func (s *Settings) NumOfMatches() MatchNum                  { return s.numOfMatches }
func (s *Settings) MatchLostDeviceTimeout() time.Duration   { return s.matchLostDeviceTimeout }
func (s *Settings) MatchLostTaskInterval() time.Duration    { return s.matchLostTaskInterval }
func (s *Settings) UseHardwareFilteringIfSupported() bool   { return s.useHardwareFiltering }
func (s *Settings) UseHardwareBatchingIfSupported() bool    { return s.useHardwareBatching }
func (s *Settings) UseHardwareCallbackTypesIfSupported() bool { return s.useHardwareCallbackTypes }

// PowerSave returns the duty-cycle intervals; ok is false when none were set.
func (s *Settings) PowerSave() (scan, rest time.Duration, ok bool) {
	return s.powerSaveScan, s.powerSaveRest, s.powerSaveScan > 0 && s.powerSaveRest > 0
}

// WithoutHardwareCallbackTypes returns a copy of s that no longer asks the
// radio for native first-match/match-lost reporting. s is not modified.
func (s *Settings) WithoutHardwareCallbackTypes() *Settings {
	c := *s
	c.useHardwareCallbackTypes = false
	return &c
}

func (s *Settings) String() string {
	return fmt.Sprintf("Settings{mode=%s callback=%s delay=%s lost=%s/%s hw=%t/%t/%t}",
		s.scanMode, s.callbackType, s.reportDelay,
		s.matchLostDeviceTimeout, s.matchLostTaskInterval,
		s.useHardwareFiltering, s.useHardwareBatching, s.useHardwareCallbackTypes)
}
