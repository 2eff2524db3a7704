package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/blescan/internal/radio"
	"github.com/srg/blescan/pkg/config"
)

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for BLE advertisements",
		Long: `Scan for Bluetooth Low Energy advertisements and print every notification
the registry delivers.

Subscriptions come from the --config file. Without one, the filter flags
below describe a single subscription named "scan". Flags given explicitly
override the matching values of a loaded configuration.`,
		Example: `  blescan scan -s 180d --callback-type first_match,match_lost
  blescan scan --manufacturer 0x004c --manufacturer-data 0215 --format json
  blescan scan -c beacons.yaml --watch --record session.cbor`,
		Args: cobra.NoArgs,
		RunE: runScan,
	}

	f := cmd.Flags()
	f.DurationP("duration", "d", 10*time.Second, "Scan duration")
	f.BoolP("watch", "w", false, "Scan until interrupted")
	f.StringP("format", "f", "text", "Output format (text, json)")
	f.Bool("summary", false, "Print a device table when the scan ends")
	f.Bool("no-color", false, "Disable colored output")
	f.String("record", "", "Record every sighting to this file for later replay")

	f.StringSliceP("services", "s", nil, "Match any of these service UUIDs")
	f.String("name", "", "Match this exact local name")
	f.String("address", "", "Match this device address")
	f.Int("manufacturer", -1, "Match manufacturer data from this company ID")
	f.String("manufacturer-data", "", "Manufacturer data prefix in hex (requires --manufacturer)")

	f.String("scan-mode", "low_power", "Scan mode (opportunistic, low_power, balanced, low_latency)")
	f.String("callback-type", "all_matches", "Callback types (all_matches, first_match, match_lost; comma or | separated)")
	f.Duration("report-delay", 0, "Batch results for this long before reporting")
	f.Duration("lost-timeout", 10*time.Second, "Silence after which a device is reported lost")
	f.Duration("lost-interval", 10*time.Second, "How often lost devices are checked")
	return cmd
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, fromFile, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg, fromFile)
	if err != nil {
		return err
	}
	if err := applyScanFlags(cmd, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	noColor, _ := cmd.Flags().GetBool("no-color")
	summary, _ := cmd.Flags().GetBool("summary")
	s := &session{
		cfg:     cfg,
		logger:  logger,
		out:     cmd.OutOrStdout(),
		color:   useColor(cmd.OutOrStdout(), noColor),
		summary: summary,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if !cfg.Watch && cfg.ScanDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ScanDuration)
		defer cancel()
	}

	if !cfg.Watch && cfg.ScanDuration > 0 && isTerminal(cmd.ErrOrStderr()) {
		progress := newCountdown(cmd.ErrOrStderr(), "Scanning", cfg.ScanDuration)
		progress.Start(ctx)
		defer progress.Stop()
	}

	logger.WithField("subscriptions", len(cfg.Subscriptions)).Info("Scanning")
	return s.run(ctx, radio.NewGoBLE(radio.WithLogger(logger)), nil)
}

// applyScanFlags merges explicitly set flags into cfg. Without subscriptions
// in cfg the filter flags build one.
func applyScanFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("duration") {
		cfg.ScanDuration, _ = f.GetDuration("duration")
	}
	if f.Changed("watch") {
		cfg.Watch, _ = f.GetBool("watch")
	}
	if f.Changed("format") {
		cfg.OutputFormat, _ = f.GetString("format")
	}
	if f.Changed("record") {
		cfg.RecordPath, _ = f.GetString("record")
	}

	if len(cfg.Subscriptions) == 0 {
		cfg.Subscriptions = []config.SubscriptionConfig{config.NewSubscription("scan")}
	}

	filters, err := filtersFromFlags(cmd)
	if err != nil {
		return err
	}
	for i := range cfg.Subscriptions {
		sub := &cfg.Subscriptions[i]
		if len(filters) > 0 {
			sub.Filters = filters
		}
		applySettingsFlags(cmd, &sub.Settings)
	}
	return nil
}

func applySettingsFlags(cmd *cobra.Command, s *config.SettingsConfig) {
	f := cmd.Flags()
	if f.Changed("scan-mode") {
		s.ScanMode, _ = f.GetString("scan-mode")
	}
	if f.Changed("callback-type") {
		s.CallbackType, _ = f.GetString("callback-type")
	}
	if f.Changed("report-delay") {
		s.ReportDelay, _ = f.GetDuration("report-delay")
	}
	if f.Changed("lost-timeout") {
		s.MatchLostTimeout, _ = f.GetDuration("lost-timeout")
	}
	if f.Changed("lost-interval") {
		s.MatchLostInterval, _ = f.GetDuration("lost-interval")
	}
}

// filtersFromFlags returns one filter per --services UUID, each carrying the
// other filter flags, or a single filter when no services were given.
func filtersFromFlags(cmd *cobra.Command) ([]config.FilterConfig, error) {
	f := cmd.Flags()
	services, _ := f.GetStringSlice("services")
	name, _ := f.GetString("name")
	address, _ := f.GetString("address")
	manufacturer, _ := f.GetInt("manufacturer")
	mfrData, _ := f.GetString("manufacturer-data")

	base := config.FilterConfig{
		Name:             name,
		Address:          address,
		ManufacturerData: mfrData,
	}
	if manufacturer >= 0 {
		if manufacturer > 0xFFFF {
			return nil, fmt.Errorf("invalid manufacturer id %d: must fit in 16 bits", manufacturer)
		}
		base.ManufacturerID = &manufacturer
	}

	if len(services) == 0 {
		if base == (config.FilterConfig{}) {
			return nil, nil
		}
		return []config.FilterConfig{base}, nil
	}

	filters := make([]config.FilterConfig, len(services))
	for i, svc := range services {
		fc := base
		fc.ServiceUUID = svc
		filters[i] = fc
	}
	return filters, nil
}
