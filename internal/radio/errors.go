package radio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/srg/blescan/scanner"
)

var (
	ErrBluetoothOff        = errors.New("bluetooth is turned off")
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrPermissionDenied    = errors.New("bluetooth permission denied")
	ErrAdapterBusy         = errors.New("bluetooth adapter busy")
)

// NormalizeError maps known go-ble error strings to the sentinel errors above.
// The original error stays wrapped for context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case errors.Is(err, ErrBluetoothOff), errors.Is(err, ErrUnsupportedPlatform),
		errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrAdapterBusy):
		return err
	case msg == "central manager has invalid state: have=4 want=5: is Bluetooth turned on?":
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"), containsIgnoreCase(msg, "powered off"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "operation not permitted"), containsIgnoreCase(msg, "permission denied"):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case containsIgnoreCase(msg, "device or resource busy"), containsIgnoreCase(msg, "can't init hci"):
		return fmt.Errorf("%w: %v", ErrAdapterBusy, err)
	default:
		return err
	}
}

// FailureCode translates a radio error into the code subscribers receive.
func FailureCode(err error) scanner.ErrorCode {
	err = NormalizeError(err)
	switch {
	case errors.Is(err, ErrUnsupportedPlatform), containsIgnoreCase(err.Error(), "not supported"):
		return scanner.ErrorFeatureUnsupported
	case errors.Is(err, ErrBluetoothOff), errors.Is(err, ErrPermissionDenied):
		return scanner.ErrorApplicationRegistrationFailed
	case errors.Is(err, ErrAdapterBusy):
		return scanner.ErrorOutOfHardwareResources
	case containsIgnoreCase(err.Error(), "already"):
		return scanner.ErrorAlreadyStarted
	default:
		return scanner.ErrorInternal
	}
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
