package main

import (
	"errors"

	"github.com/srg/blescan/internal/radio"
	"github.com/srg/blescan/scanner"
)

// Command-level errors
var (
	// ErrNoSubscriptions indicates neither flags nor the configuration file
	// produced anything to scan for.
	ErrNoSubscriptions = errors.New("no subscriptions configured")
)

// FormatUserError turns well-known errors into a hint the user can act on.
// Unknown errors are printed as they are.
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, radio.ErrBluetoothOff):
		return "Bluetooth is turned off. Turn it on and try again."
	case errors.Is(err, radio.ErrPermissionDenied):
		return "Bluetooth access was denied. Grant Bluetooth permission to the terminal (macOS) or run with CAP_NET_ADMIN (Linux)."
	case errors.Is(err, radio.ErrAdapterBusy):
		return "The Bluetooth adapter is busy or unavailable: " + err.Error()
	case errors.Is(err, radio.ErrUnsupportedPlatform):
		return "Scanning is not supported on this platform. The decode and replay commands still work."
	case errors.Is(err, scanner.ErrInvalidFilter), errors.Is(err, scanner.ErrInvalidSettings):
		return err.Error() + " (see --help for accepted values)"
	default:
		return err.Error()
	}
}
