package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blescan/internal/clock"
	"github.com/srg/blescan/internal/output"
	"github.com/srg/blescan/internal/radio"
	"github.com/srg/blescan/pkg/config"
	"github.com/srg/blescan/scanner"
	"golang.org/x/term"
)

// syncTimeout bounds the wait for queued radio input at shutdown.
const syncTimeout = time.Second

// source is an advertisement source the registry can drive: the live go-ble
// radio or a replayed recording.
type source interface {
	scanner.CapabilityProvider
	scanner.RadioController
	Attach(sink scanner.Sink)
}

// session wires a source, a registry and the output printer together for
// the lifetime of one command.
type session struct {
	cfg     *config.Config
	logger  *logrus.Logger
	out     io.Writer
	color   bool
	summary bool
}

type subscriber struct {
	name     string
	callback scanner.Callback
}

// run starts every configured subscription and blocks until done is closed
// or ctx ends. Pending batches are flushed before the registry closes.
func (s *session) run(ctx context.Context, src source, done <-chan struct{}) (err error) {
	if len(s.cfg.Subscriptions) == 0 {
		return ErrNoSubscriptions
	}

	formatter, err := output.NewFormatter(s.cfg.OutputFormat, s.color)
	if err != nil {
		return err
	}
	collector, err := output.NewCollector(s.cfg.BufferSize, clock.New())
	if err != nil {
		return err
	}
	printer := output.NewPrinter(collector, formatter, s.out, s.logger)
	printer.Start(context.WithoutCancel(ctx))

	registry := scanner.NewRegistry(src, scanner.WithLogger(s.logger), scanner.WithRadioController(src))

	var recorder *radio.Recorder
	if s.cfg.RecordPath != "" {
		recorder, err = radio.CreateRecording(s.cfg.RecordPath, registry, nil)
		if err != nil {
			registry.Close()
			printer.Cancel()
			printer.Wait()
			return fmt.Errorf("failed to create recording: %w", err)
		}
		src.Attach(recorder)
	} else {
		src.Attach(registry)
	}

	defer func() {
		registry.Close()
		if recorder != nil {
			if cerr := recorder.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("failed to write recording: %w", cerr)
			}
			s.logger.WithFields(logrus.Fields{
				"path":   s.cfg.RecordPath,
				"frames": recorder.Frames(),
			}).Info("Recording closed")
		}
		printer.Cancel()
		printer.Wait()
		if perr := printer.Err(); perr != nil && err == nil {
			err = perr
		}
		if s.summary && err == nil {
			fmt.Fprintln(s.out)
			err = printer.Devices().WriteTable(s.out, time.Now())
		}
		if metrics := collector.Metrics(); metrics.Overwritten > 0 {
			s.logger.WithField("overwritten", metrics.Overwritten).Warn("Output could not keep up, notifications were dropped")
		}
	}()

	subs := make([]subscriber, 0, len(s.cfg.Subscriptions))
	for _, sc := range s.cfg.Subscriptions {
		settings, filters, err := sc.Build()
		if err != nil {
			return fmt.Errorf("subscription %q: %w", sc.Name, err)
		}
		cb := collector.Callback(sc.Name)
		if err := registry.Start(cb, filters, settings); err != nil {
			return fmt.Errorf("failed to start subscription %q: %w", sc.Name, err)
		}
		subs = append(subs, subscriber{name: sc.Name, callback: cb})

		s.logger.WithFields(logrus.Fields{
			"subscription": sc.Name,
			"filters":      len(filters),
			"settings":     settings.String(),
		}).Debug("Subscription registered")
	}

	if scan, rest, ok := registry.PowerSave(); ok {
		s.logger.WithFields(logrus.Fields{
			"scan": scan,
			"rest": rest,
		}).Info("Power-save duty cycle requested")
	}

	select {
	case <-ctx.Done():
	case <-done:
	}

	syncCtx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()
	if serr := registry.Sync(syncCtx); serr != nil {
		s.logger.WithError(serr).Warn("Radio input still queued at shutdown")
	}

	for _, sub := range subs {
		if ferr := registry.FlushPending(sub.callback); ferr != nil && !errors.Is(ferr, scanner.ErrNotRegistered) {
			s.logger.WithError(ferr).WithField("subscription", sub.name).Warn("Failed to flush pending results")
		}
	}
	return nil
}

// loadConfig returns the configuration named by --config, or the defaults.
// The second value reports whether a file was loaded.
func loadConfig(cmd *cobra.Command) (*config.Config, bool, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.DefaultConfig(), false, nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

// useColor enables color only when w is a terminal.
func useColor(w io.Writer, disabled bool) bool {
	return !disabled && isTerminal(w)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
