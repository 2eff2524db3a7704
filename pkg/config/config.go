package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blescan/internal/bleuuid"
	"github.com/srg/blescan/scanner"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel     string        `yaml:"log_level" default:"info"`
	OutputFormat string        `yaml:"output_format" default:"text"` // text, json
	ScanDuration time.Duration `yaml:"scan_duration" default:"10s"`
	Watch        bool          `yaml:"watch"` // scan until interrupted, ignoring ScanDuration
	RecordPath   string        `yaml:"record,omitempty"`
	BufferSize   uint32        `yaml:"buffer_size" default:"4096"`

	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
}

// SubscriptionConfig describes one registry subscription.
type SubscriptionConfig struct {
	Name     string         `yaml:"name"`
	Settings SettingsConfig `yaml:"settings"`
	Filters  []FilterConfig `yaml:"filters,omitempty"`
}

// SettingsConfig is the textual form of scanner.Settings.
type SettingsConfig struct {
	ScanMode          string        `yaml:"scan_mode" default:"low_power"`
	CallbackType      string        `yaml:"callback_type" default:"all_matches"`
	ReportDelay       time.Duration `yaml:"report_delay"`
	MatchLostTimeout  time.Duration `yaml:"match_lost_timeout" default:"10s"`
	MatchLostInterval time.Duration `yaml:"match_lost_interval" default:"10s"`
	MatchMode         string        `yaml:"match_mode" default:"aggressive"`
	NumOfMatches      string        `yaml:"num_of_matches" default:"max"`
	PowerSaveScan     time.Duration `yaml:"power_save_scan,omitempty"`
	PowerSaveRest     time.Duration `yaml:"power_save_rest,omitempty"`

	UseHardwareFiltering     bool `yaml:"use_hardware_filtering" default:"true"`
	UseHardwareBatching      bool `yaml:"use_hardware_batching" default:"true"`
	UseHardwareCallbackTypes bool `yaml:"use_hardware_callback_types" default:"true"`
}

// FilterConfig is the textual form of scanner.Filter. Byte strings are hex;
// masks must be as long as their data.
type FilterConfig struct {
	Address string `yaml:"address,omitempty"`
	Name    string `yaml:"name,omitempty"`

	ServiceUUID     string `yaml:"service_uuid,omitempty"`
	ServiceUUIDMask string `yaml:"service_uuid_mask,omitempty"`

	ServiceDataUUID     string `yaml:"service_data_uuid,omitempty"`
	ServiceDataUUIDMask string `yaml:"service_data_uuid_mask,omitempty"`
	ServiceData         string `yaml:"service_data,omitempty"`
	ServiceDataMask     string `yaml:"service_data_mask,omitempty"`

	ManufacturerID       *int   `yaml:"manufacturer_id,omitempty"`
	ManufacturerData     string `yaml:"manufacturer_data,omitempty"`
	ManufacturerDataMask string `yaml:"manufacturer_data_mask,omitempty"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result. Fields
// absent from the document keep their default; explicit zero values win.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field that can be checked without a radio.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}
	switch c.OutputFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid output format '%s': must be one of [text json]", c.OutputFormat)
	}
	if c.ScanDuration < 0 {
		return fmt.Errorf("scan duration must be >= 0, got %s", c.ScanDuration)
	}

	names := make(map[string]struct{}, len(c.Subscriptions))
	for i, sub := range c.Subscriptions {
		if sub.Name == "" {
			return fmt.Errorf("subscription #%d has no name", i+1)
		}
		if _, dup := names[sub.Name]; dup {
			return fmt.Errorf("duplicate subscription name %q", sub.Name)
		}
		names[sub.Name] = struct{}{}
		if _, _, err := sub.Build(); err != nil {
			return fmt.Errorf("subscription %q: %w", sub.Name, err)
		}
	}
	return nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// UnmarshalYAML decodes a subscription over its defaults.
func (s *SubscriptionConfig) UnmarshalYAML(node *yaml.Node) error {
	type plain SubscriptionConfig
	p := plain{}
	defaults.SetDefaults(&p)
	if err := node.Decode(&p); err != nil {
		return err
	}
	*s = SubscriptionConfig(p)
	return nil
}

// NewSubscription returns a named subscription with default settings and
// no filters.
func NewSubscription(name string) SubscriptionConfig {
	s := SubscriptionConfig{Name: name}
	defaults.SetDefaults(&s)
	return s
}

// Build converts the subscription into registry arguments.
func (s SubscriptionConfig) Build() (*scanner.Settings, []*scanner.Filter, error) {
	settings, err := s.Settings.Build()
	if err != nil {
		return nil, nil, err
	}

	filters := make([]*scanner.Filter, 0, len(s.Filters))
	for i, fc := range s.Filters {
		f, err := fc.Build()
		if err != nil {
			return nil, nil, fmt.Errorf("filter #%d: %w", i+1, err)
		}
		filters = append(filters, f)
	}
	return settings, filters, nil
}

// Build converts the textual settings into scanner.Settings.
func (s SettingsConfig) Build() (*scanner.Settings, error) {
	scanMode, err := scanner.ParseScanMode(s.ScanMode)
	if err != nil {
		return nil, err
	}
	callbackType, err := scanner.ParseCallbackType(s.CallbackType)
	if err != nil {
		return nil, err
	}
	matchMode, err := parseMatchMode(s.MatchMode)
	if err != nil {
		return nil, err
	}
	numOfMatches, err := parseMatchNum(s.NumOfMatches)
	if err != nil {
		return nil, err
	}

	opts := []scanner.SettingsOption{
		scanner.WithScanMode(scanMode),
		scanner.WithCallbackType(callbackType),
		scanner.WithReportDelay(s.ReportDelay),
		scanner.WithMatchOptions(s.MatchLostTimeout, s.MatchLostInterval),
		scanner.WithMatchMode(matchMode),
		scanner.WithNumOfMatches(numOfMatches),
		scanner.WithHardwareFiltering(s.UseHardwareFiltering),
		scanner.WithHardwareBatching(s.UseHardwareBatching),
		scanner.WithHardwareCallbackTypes(s.UseHardwareCallbackTypes),
	}
	if s.PowerSaveScan != 0 || s.PowerSaveRest != 0 {
		opts = append(opts, scanner.WithPowerSave(s.PowerSaveScan, s.PowerSaveRest))
	}
	return scanner.NewSettings(opts...)
}

// Build converts the textual filter into a scanner.Filter.
func (f FilterConfig) Build() (*scanner.Filter, error) {
	var opts []scanner.FilterOption

	if f.Address != "" {
		opts = append(opts, scanner.WithDeviceAddress(strings.ToUpper(f.Address)))
	}
	if f.Name != "" {
		opts = append(opts, scanner.WithDeviceName(f.Name))
	}

	if f.ServiceUUID != "" {
		u, err := bleuuid.Parse(f.ServiceUUID)
		if err != nil {
			return nil, err
		}
		if f.ServiceUUIDMask != "" {
			mask, err := bleuuid.Parse(f.ServiceUUIDMask)
			if err != nil {
				return nil, err
			}
			opts = append(opts, scanner.WithServiceUUIDMask(u, mask))
		} else {
			opts = append(opts, scanner.WithServiceUUID(u))
		}
	} else if f.ServiceUUIDMask != "" {
		return nil, fmt.Errorf("service_uuid_mask requires service_uuid")
	}

	if f.ServiceDataUUID != "" {
		u, err := bleuuid.Parse(f.ServiceDataUUID)
		if err != nil {
			return nil, err
		}
		data, mask, err := decodeHexPair("service_data", f.ServiceData, f.ServiceDataMask)
		if err != nil {
			return nil, err
		}
		if f.ServiceDataUUIDMask != "" {
			uuidMask, err := bleuuid.Parse(f.ServiceDataUUIDMask)
			if err != nil {
				return nil, err
			}
			opts = append(opts, scanner.WithServiceDataUUIDMask(u, uuidMask, data, mask...))
		} else {
			opts = append(opts, scanner.WithServiceData(u, data, mask...))
		}
	} else if f.ServiceData != "" || f.ServiceDataMask != "" || f.ServiceDataUUIDMask != "" {
		return nil, fmt.Errorf("service data requires service_data_uuid")
	}

	if f.ManufacturerID != nil {
		data, mask, err := decodeHexPair("manufacturer_data", f.ManufacturerData, f.ManufacturerDataMask)
		if err != nil {
			return nil, err
		}
		opts = append(opts, scanner.WithManufacturerData(*f.ManufacturerID, data, mask...))
	} else if f.ManufacturerData != "" || f.ManufacturerDataMask != "" {
		return nil, fmt.Errorf("manufacturer data requires manufacturer_id")
	}

	return scanner.NewFilter(opts...)
}

func decodeHexPair(field, data, mask string) ([]byte, []byte, error) {
	var d, m []byte
	var err error
	if data != "" {
		if d, err = DecodeHex(data); err != nil {
			return nil, nil, fmt.Errorf("invalid %s: %w", field, err)
		}
	}
	if mask != "" {
		if m, err = DecodeHex(mask); err != nil {
			return nil, nil, fmt.Errorf("invalid %s_mask: %w", field, err)
		}
	}
	return d, m, nil
}

// DecodeHex accepts "0x" prefixes and ":", " " or "-" separators.
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	s = strings.NewReplacer(":", "", " ", "", "-", "").Replace(s)
	return hex.DecodeString(s)
}

func parseMatchMode(s string) (scanner.MatchMode, error) {
	switch strings.ToLower(s) {
	case "aggressive":
		return scanner.MatchModeAggressive, nil
	case "sticky":
		return scanner.MatchModeSticky, nil
	default:
		return 0, &scanner.SettingsError{Field: "match mode", Value: s, Msg: "unknown name"}
	}
}

func parseMatchNum(s string) (scanner.MatchNum, error) {
	switch strings.ToLower(s) {
	case "one":
		return scanner.MatchNumOneAdvertisement, nil
	case "few":
		return scanner.MatchNumFewAdvertisement, nil
	case "max":
		return scanner.MatchNumMaxAdvertisement, nil
	default:
		return 0, &scanner.SettingsError{Field: "num of matches", Value: s, Msg: "unknown name"}
	}
}
