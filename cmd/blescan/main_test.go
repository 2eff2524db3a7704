package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blescan/internal/advertisement"
	"github.com/srg/blescan/internal/bleuuid"
	"github.com/srg/blescan/internal/radio"
	"github.com/srg/blescan/internal/testutils"
	"github.com/srg/blescan/pkg/config"
	"github.com/srg/blescan/scanner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const (
	TestDeviceAddress1 = "00:00:00:00:00:01"
	TestDeviceAddress2 = "00:00:00:00:00:02"
)

// executeCommand runs a fresh command tree with args, returns output and error.
func executeCommand(args ...string) (string, string, error) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd := newRootCmd()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// jsonLines decodes one JSON object per non-empty line.
func jsonLines(t *testing.T, out string) []map[string]any {
	t.Helper()
	var objs []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		var obj map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &obj), "line: %s", line)
		objs = append(objs, obj)
	}
	return objs
}

func eventAddresses(objs []map[string]any) []string {
	var addrs []string
	for _, obj := range objs {
		events, _ := obj["events"].([]any)
		for _, ev := range events {
			addrs = append(addrs, ev.(map[string]any)["address"].(string))
		}
	}
	return addrs
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.3", formatVersion("1.2.3"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}

func TestDecode_Text(t *testing.T) {
	payload := advertisement.Packet{}.
		AppendFlags(0x06).
		AppendCompleteName("Polar H10").
		AppendTxPower(-4).
		AppendUUIDs(bleuuid.MustParse("180d")).
		AppendServiceData(bleuuid.MustParse("feaa"), []byte{0x10, 0x00}).
		Bytes()
	raw := hex.EncodeToString(payload)

	out, _, err := executeCommand("decode", raw)
	require.NoError(t, err)

	expected := fmt.Sprintf(`Payload 1: %s
  Flags:        0x06
  Name:         "Polar H10"
  TX power:     -4 dBm
  Service:      180d (Heart Rate)
  Service data: feaa (Eddystone) = 1000
`, raw)
	assert.Equal(t, expected, out)
}

func TestDecode_IBeaconJSON(t *testing.T) {
	beacon := append([]byte{0x02, 0x15},
		0xe2, 0xc5, 0x6d, 0xb5, 0xdf, 0xfb, 0x48, 0xd2, 0xb0, 0x60, 0xd0, 0xf5, 0xa7, 0x10, 0x96, 0xe0,
		0x00, 0x01, 0x00, 0x02, 0xc5)
	payload := advertisement.Packet{}.
		AppendFlags(0x06).
		AppendManufacturerData(advertisement.CompanyApple, beacon).
		Bytes()

	out, _, err := executeCommand("decode", "--format", "json", hex.EncodeToString(payload))
	require.NoError(t, err)

	objs := jsonLines(t, out)
	require.Len(t, objs, 1)
	assert.EqualValues(t, 6, objs[0]["flags"])
	mfr := objs[0]["manufacturer_data"].([]any)
	require.Len(t, mfr, 1)
	entry := mfr[0].(map[string]any)
	assert.Equal(t, "0x004C", entry["company_id"])
	assert.Equal(t, "Apple, Inc.", entry["vendor"])
	assert.Equal(t, "iBeacon e2c56db5-dffb-48d2-b060-d0f5a71096e0 major=1 minor=2 power=-59dBm", entry["parsed"])
}

func TestDecode_Malformed(t *testing.T) {
	out, _, err := executeCommand("decode", "05ff")
	require.NoError(t, err)
	assert.Contains(t, out, "warning: malformed advertisement at offset 0")
	assert.Contains(t, out, "(no fields)")

	_, _, err = executeCommand("decode", "--strict", "05ff")
	require.Error(t, err)
	var decodeErr *advertisement.DecodeError
	assert.True(t, errors.As(err, &decodeErr))
	assert.ErrorContains(t, err, "payload #1")
}

func TestDecode_InvalidArguments(t *testing.T) {
	_, _, err := executeCommand("decode", "zz")
	assert.ErrorContains(t, err, "payload #1 is not hex")

	_, _, err = executeCommand("decode", "--format", "yaml", "0201")
	assert.ErrorContains(t, err, "invalid format 'yaml'")

	_, _, err = executeCommand("decode")
	assert.Error(t, err)
}

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{name: "bluetooth off", err: fmt.Errorf("start: %w", radio.ErrBluetoothOff), contains: "turned off"},
		{name: "permission", err: radio.ErrPermissionDenied, contains: "Bluetooth access was denied"},
		{name: "busy", err: radio.ErrAdapterBusy, contains: "busy or unavailable"},
		{name: "platform", err: radio.ErrUnsupportedPlatform, contains: "decode and replay commands still work"},
		{name: "filter", err: &scanner.FilterError{Field: "device address", Msg: "bad"}, contains: "see --help"},
		{name: "other", err: errors.New("boom"), contains: "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, FormatUserError(tt.err), tt.contains)
		})
	}
}

func TestConfigureLogger(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("log-level", "", "")
	cmd.Flags().Bool("verbose", false, "")

	logger, err := configureLogger(cmd, nil, false)
	require.NoError(t, err)
	assert.Equal(t, logrus.PanicLevel, logger.GetLevel(), "silent without flags")

	require.NoError(t, cmd.Flags().Set("verbose", "true"))
	logger, err = configureLogger(cmd, nil, false)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	require.NoError(t, cmd.Flags().Set("log-level", "warn"))
	logger, err = configureLogger(cmd, nil, false)
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel(), "--log-level wins over --verbose")

	require.NoError(t, cmd.Flags().Set("log-level", "loud"))
	_, err = configureLogger(cmd, nil, false)
	assert.ErrorContains(t, err, "invalid log level")
}

func TestConfigureLogger_FromFile(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("log-level", "", "")
	cmd.Flags().Bool("verbose", false, "")

	cfg := config.DefaultConfig()
	cfg.LogLevel = "error"
	logger, err := configureLogger(cmd, cfg, true)
	require.NoError(t, err)
	assert.Equal(t, logrus.ErrorLevel, logger.GetLevel())
}

// ScanCommandSuite runs the scan and replay commands against a mocked radio.
type ScanCommandSuite struct {
	suite.Suite
	originalFactory func() (ble.Device, error)
}

func (s *ScanCommandSuite) SetupSuite() {
	s.originalFactory = radio.DeviceFactory
}

func (s *ScanCommandSuite) TearDownSuite() {
	radio.DeviceFactory = s.originalFactory
}

func (s *ScanCommandSuite) SetupTest() {
	heartRate := testutils.CreateAdvertisement("Polar H10", TestDeviceAddress1, -50).WithServices("180d")
	other := testutils.CreateAdvertisement("Thermo", TestDeviceAddress2, -70).WithServices("1809")
	radio.DeviceFactory = func() (ble.Device, error) {
		return testutils.NewScanningDevice(heartRate.BuildBLE(), other.BuildBLE()), nil
	}
}

func (s *ScanCommandSuite) TestScanWithServiceFilter() {
	out, _, err := executeCommand("scan", "--duration", "200ms", "--format", "json", "-s", "180d")
	s.Require().NoError(err)

	objs := jsonLines(s.T(), out)
	s.Require().NotEmpty(objs)
	for _, obj := range objs {
		s.Equal("scan", obj["subscription"])
		s.Equal("discovered", obj["kind"])
	}
	addrs := eventAddresses(objs)
	s.Contains(addrs, TestDeviceAddress1)
	s.NotContains(addrs, TestDeviceAddress2, "filtered out by service UUID")
}

func (s *ScanCommandSuite) TestScanSummary() {
	out, _, err := executeCommand("scan", "--duration", "200ms", "--summary", "--no-color")
	s.Require().NoError(err)

	s.Contains(out, "ADDRESS")
	s.Contains(out, TestDeviceAddress1)
	s.Contains(out, TestDeviceAddress2)
	s.Contains(out, "180d (Heart Rate)")
}

func (s *ScanCommandSuite) TestScanFromConfig() {
	path := filepath.Join(s.T().TempDir(), "blescan.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(`
output_format: json
subscriptions:
  - name: thermo
    filters:
      - service_uuid: "1809"
  - name: everything
`), 0o600))

	out, _, err := executeCommand("scan", "-c", path, "--duration", "200ms")
	s.Require().NoError(err)

	bySub := map[string][]string{}
	for _, obj := range jsonLines(s.T(), out) {
		sub := obj["subscription"].(string)
		bySub[sub] = append(bySub[sub], eventAddresses([]map[string]any{obj})...)
	}
	s.Contains(bySub["thermo"], TestDeviceAddress2)
	s.NotContains(bySub["thermo"], TestDeviceAddress1)
	s.Contains(bySub["everything"], TestDeviceAddress1)
	s.Contains(bySub["everything"], TestDeviceAddress2)
}

func (s *ScanCommandSuite) TestScanInvalidFlags() {
	_, _, err := executeCommand("scan", "--callback-type", "sometimes")
	s.ErrorIs(err, scanner.ErrInvalidSettings)

	_, _, err = executeCommand("scan", "--address", "not-an-address")
	s.ErrorIs(err, scanner.ErrInvalidFilter)

	_, _, err = executeCommand("scan", "--manufacturer", "70000")
	s.ErrorContains(err, "16 bits")

	_, _, err = executeCommand("scan", "--format", "xml")
	s.ErrorContains(err, "invalid output format")
}

func (s *ScanCommandSuite) TestScanDeviceUnavailable() {
	radio.DeviceFactory = func() (ble.Device, error) {
		return nil, errors.New("bluetooth is powered off")
	}

	_, _, err := executeCommand("scan", "--duration", "100ms")
	s.Require().Error(err)
	s.Contains(FormatUserError(err), "turned off")
}

func (s *ScanCommandSuite) TestRecordAndReplay() {
	path := filepath.Join(s.T().TempDir(), "session.cbor")

	_, _, err := executeCommand("scan", "--duration", "200ms", "--record", path)
	s.Require().NoError(err)

	frames, err := func() ([]radio.Frame, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return radio.ReadFrames(f)
	}()
	s.Require().NoError(err)
	s.Len(frames, 2, "one frame per sighting")

	_, _, err = executeCommand("replay", path, "--speed", "0", "-s", "180d")
	s.Error(err, "replay has no filter flags")

	out, _, err := executeCommand("replay", path, "--speed", "0", "--format", "json")
	s.Require().NoError(err)
	objs := jsonLines(s.T(), out)
	s.Equal("replay", objs[0]["subscription"])
	s.ElementsMatch([]string{TestDeviceAddress1, TestDeviceAddress2}, eventAddresses(objs))
}

func (s *ScanCommandSuite) TestReplayMissingFile() {
	_, _, err := executeCommand("replay", filepath.Join(s.T().TempDir(), "missing.cbor"))
	s.ErrorIs(err, os.ErrNotExist)
}

func TestScanCommandSuite(t *testing.T) {
	suite.Run(t, new(ScanCommandSuite))
}
