//go:build !linux && !darwin

package radio

import (
	"fmt"
	"runtime"

	"github.com/go-ble/ble"
)

func defaultDevice() (ble.Device, error) {
	return nil, fmt.Errorf("%w: no BLE backend for %s", ErrUnsupportedPlatform, runtime.GOOS)
}
