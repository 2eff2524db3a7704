package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blescan/internal/groutine"
	"github.com/srg/blescan/internal/radio"
	"github.com/srg/blescan/pkg/config"
	"github.com/srg/blescan/scanner"
)

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <recording>",
		Short: "Replay a recorded scan through the subscriptions",
		Long: `Replay a file written by "scan --record" through the configured subscriptions.

Recorded sightings keep their original spacing, scaled by --speed. The
capability flags make the replayed radio claim offload support, so the
same recording can exercise both the native and the emulated paths.`,
		Example: `  blescan replay session.cbor --speed 0
  blescan replay session.cbor -c beacons.yaml --linger 15s --summary`,
		Args: cobra.ExactArgs(1),
		RunE: runReplay,
	}

	f := cmd.Flags()
	f.Float64("speed", 1, "Playback speed factor (0 plays without pauses)")
	f.Duration("linger", 0, "Keep dispatching this long after the last frame so match-lost can fire")
	f.StringP("format", "f", "text", "Output format (text, json)")
	f.Bool("summary", false, "Print a device table when the replay ends")
	f.Bool("no-color", false, "Disable colored output")
	f.Bool("offloaded-filtering", false, "Claim hardware filtering support")
	f.Bool("offloaded-batching", false, "Claim hardware batching support")
	f.Bool("hardware-callback-types", false, "Claim hardware first-match/match-lost support")
	return cmd
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, fromFile, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg, fromFile)
	if err != nil {
		return err
	}

	f := cmd.Flags()
	if f.Changed("format") {
		cfg.OutputFormat, _ = f.GetString("format")
	}
	if len(cfg.Subscriptions) == 0 {
		cfg.Subscriptions = []config.SubscriptionConfig{config.NewSubscription("replay")}
	}
	// A replay never records.
	cfg.RecordPath = ""
	if err := cfg.Validate(); err != nil {
		return err
	}

	speed, _ := f.GetFloat64("speed")
	linger, _ := f.GetDuration("linger")
	var caps scanner.Capabilities
	caps.OffloadedFiltering, _ = f.GetBool("offloaded-filtering")
	caps.OffloadedBatching, _ = f.GetBool("offloaded-batching")
	caps.HardwareCallbackTypes, _ = f.GetBool("hardware-callback-types")

	cmd.SilenceUsage = true

	replay, err := radio.OpenReplay(args[0],
		radio.WithSpeed(speed),
		radio.WithCapabilities(caps),
		radio.WithReplayLogger(logger),
	)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"path":   args[0],
		"frames": replay.Len(),
		"speed":  speed,
	}).Info("Replaying recording")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	groutine.Go(ctx, "replay-linger", func(ctx context.Context) {
		defer close(done)
		select {
		case <-replay.Finished():
		case <-ctx.Done():
			return
		}
		if linger <= 0 {
			return
		}
		t := time.NewTimer(linger)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
		}
	})

	noColor, _ := f.GetBool("no-color")
	summary, _ := f.GetBool("summary")
	s := &session{
		cfg:     cfg,
		logger:  logger,
		out:     cmd.OutOrStdout(),
		color:   useColor(cmd.OutOrStdout(), noColor),
		summary: summary,
	}
	return s.run(ctx, replay, done)
}
