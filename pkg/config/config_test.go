package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blescan/internal/testutils"
	"github.com/srg/blescan/scanner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.OutputFormat)
	assert.Equal(t, 10*time.Second, cfg.ScanDuration)
	assert.Equal(t, uint32(4096), cfg.BufferSize)
	assert.False(t, cfg.Watch)
	assert.Empty(t, cfg.Subscriptions)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		expected logrus.Level
	}{
		{name: "creates logger with debug level", logLevel: "debug", expected: logrus.DebugLevel},
		{name: "creates logger with info level", logLevel: "info", expected: logrus.InfoLevel},
		{name: "creates logger with warn level", logLevel: "warn", expected: logrus.WarnLevel},
		{name: "creates logger with error level", logLevel: "error", expected: logrus.ErrorLevel},
		{name: "falls back to info on garbage", logLevel: "loud", expected: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.expected, logger.GetLevel())

			// Verify formatter is set correctly
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

const fullConfig = `
log_level: debug
output_format: json
scan_duration: 30s
record: /tmp/session.cbor
subscriptions:
  - name: heart-rate
    settings:
      callback_type: first_match|match_lost
      scan_mode: low_latency
      match_lost_timeout: 3s
      match_lost_interval: 1s
      use_hardware_callback_types: false
    filters:
      - service_uuid: 180d
      - name: Polar H10
  - name: beacons
    settings:
      report_delay: 500ms
      match_mode: sticky
      num_of_matches: few
      power_save_scan: 500ms
      power_save_rest: 4500ms
    filters:
      - manufacturer_id: 0x004C
        manufacturer_data: "02:15"
        manufacturer_data_mask: "ff ff"
      - address: aa:bb:cc:dd:ee:ff
        service_data_uuid: feaa
        service_data: "0x10"
`

func TestParse_Full(t *testing.T) {
	cfg, err := Parse([]byte(fullConfig))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.OutputFormat)
	assert.Equal(t, 30*time.Second, cfg.ScanDuration)
	assert.Equal(t, "/tmp/session.cbor", cfg.RecordPath)
	assert.Equal(t, uint32(4096), cfg.BufferSize, "absent fields keep their default")
	require.Len(t, cfg.Subscriptions, 2)

	hr := cfg.Subscriptions[0]
	assert.Equal(t, "max", hr.Settings.NumOfMatches, "subscription defaults are filled")
	assert.True(t, hr.Settings.UseHardwareBatching)
	assert.False(t, hr.Settings.UseHardwareCallbackTypes, "explicit false survives defaults")

	settings, filters, err := hr.Build()
	require.NoError(t, err)
	assert.Equal(t, scanner.CallbackFirstMatch|scanner.CallbackMatchLost, settings.CallbackType())
	assert.Equal(t, scanner.ScanModeLowLatency, settings.ScanMode())
	assert.Equal(t, 3*time.Second, settings.MatchLostDeviceTimeout())
	assert.Equal(t, time.Second, settings.MatchLostTaskInterval())
	assert.False(t, settings.UseHardwareCallbackTypesIfSupported())
	require.Len(t, filters, 2)
	assert.True(t, filters[0].Matches(testutils.NewAdvertisementBuilder().WithServices("180d").Event()))
	assert.True(t, filters[1].Matches(testutils.CreateAdvertisement("Polar H10", "00:00:00:00:00:01", -50).Event()))

	settings, filters, err = cfg.Subscriptions[1].Build()
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, settings.ReportDelay())
	assert.Equal(t, scanner.MatchModeSticky, settings.MatchMode())
	assert.Equal(t, scanner.MatchNumFewAdvertisement, settings.NumOfMatches())
	scan, rest, ok := settings.PowerSave()
	assert.True(t, ok)
	assert.Equal(t, 500*time.Millisecond, scan)
	assert.Equal(t, 4500*time.Millisecond, rest)

	require.Len(t, filters, 2)
	beacon := testutils.NewAdvertisementBuilder().WithManufacturerData(0x004C, []byte{0x02, 0x15, 0x01}).Event()
	assert.True(t, filters[0].Matches(beacon))

	eddystone := testutils.NewAdvertisementBuilder().
		WithAddress("AA:BB:CC:DD:EE:FF").
		WithServiceData("feaa", []byte{0x10, 0x00}).
		Event()
	assert.True(t, filters[1].Matches(eddystone), "addresses are upper-cased")
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
		is      error
	}{
		{name: "not yaml", yaml: "log_level: [", wantErr: "invalid config"},
		{name: "log level", yaml: "log_level: loud", wantErr: "invalid log level"},
		{name: "format", yaml: "output_format: table", wantErr: "invalid output format"},
		{name: "negative duration", yaml: "scan_duration: -1s", wantErr: "scan duration"},
		{name: "unnamed subscription", yaml: "subscriptions: [{settings: {}}]", wantErr: "has no name"},
		{name: "duplicate names", yaml: "subscriptions: [{name: a}, {name: a}]", wantErr: "duplicate subscription"},
		{
			name:    "callback type",
			yaml:    "subscriptions: [{name: a, settings: {callback_type: all|first}}]",
			wantErr: "callback type",
			is:      scanner.ErrInvalidSettings,
		},
		{
			name:    "scan mode",
			yaml:    "subscriptions: [{name: a, settings: {scan_mode: turbo}}]",
			is:      scanner.ErrInvalidSettings,
			wantErr: "scan mode",
		},
		{
			name:    "match mode",
			yaml:    "subscriptions: [{name: a, settings: {match_mode: loose}}]",
			is:      scanner.ErrInvalidSettings,
			wantErr: "match mode",
		},
		{
			name:    "num of matches",
			yaml:    "subscriptions: [{name: a, settings: {num_of_matches: all}}]",
			is:      scanner.ErrInvalidSettings,
			wantErr: "num of matches",
		},
		{
			name:    "explicit zero timeout is not replaced by the default",
			yaml:    "subscriptions: [{name: a, settings: {match_lost_timeout: 0s}}]",
			is:      scanner.ErrInvalidSettings,
			wantErr: "subscription \"a\"",
		},
		{
			name:    "mask without data",
			yaml:    "subscriptions: [{name: a, filters: [{manufacturer_id: 76, manufacturer_data_mask: ff}]}]",
			is:      scanner.ErrInvalidFilter,
			wantErr: "filter #1",
		},
		{
			name:    "data without manufacturer",
			yaml:    "subscriptions: [{name: a, filters: [{manufacturer_data: ff}]}]",
			wantErr: "requires manufacturer_id",
		},
		{
			name:    "uuid mask without uuid",
			yaml:    "subscriptions: [{name: a, filters: [{service_uuid_mask: ffff}]}]",
			wantErr: "requires service_uuid",
		},
		{
			name:    "service data without uuid",
			yaml:    "subscriptions: [{name: a, filters: [{service_data: ff}]}]",
			wantErr: "requires service_data_uuid",
		},
		{
			name:    "bad hex",
			yaml:    "subscriptions: [{name: a, filters: [{manufacturer_id: 1, manufacturer_data: zz}]}]",
			wantErr: "invalid manufacturer_data",
		},
		{
			name:    "bad address",
			yaml:    "subscriptions: [{name: a, filters: [{address: nope}]}]",
			is:      scanner.ErrInvalidFilter,
			wantErr: "device address",
		},
		{
			name:    "bad uuid",
			yaml:    "subscriptions: [{name: a, filters: [{service_uuid: xyz}]}]",
			wantErr: "invalid uuid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.wantErr)
			if tt.is != nil {
				assert.True(t, errors.Is(err, tt.is), "expected %v in chain of %v", tt.is, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blescan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullConfig), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Subscriptions, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config")
}

func TestLoad_ReportsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output_format: xml"), 0o600))

	_, err := Load(path)
	assert.ErrorContains(t, err, path)
}

func TestNewSubscription(t *testing.T) {
	sub := NewSubscription("cli")
	assert.Equal(t, "cli", sub.Name)
	assert.Equal(t, "all_matches", sub.Settings.CallbackType)
	assert.True(t, sub.Settings.UseHardwareFiltering)

	settings, filters, err := sub.Build()
	require.NoError(t, err)
	assert.Empty(t, filters)
	assert.Equal(t, scanner.DefaultSettings(), settings)
}
