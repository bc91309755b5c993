package goble

import (
	"errors"
	"fmt"

	"github.com/srg/blxfer/internal/device"
)

// NormalizeError maps known go-ble error strings to the device error taxonomy.
// The original error is kept in the chain so callers still see the upstream message.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	// Already normalized
	var cerr *device.ConnectionError
	if errors.As(err, &cerr) || errors.Is(err, device.ErrBluetoothOff) {
		return err
	}

	msg := err.Error()
	switch {
	case msg == "central manager has invalid state: have=4 want=5: is Bluetooth turned on?":
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	case device.ContainsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	case device.ContainsIgnoreCase(msg, "device not connected"):
		return fmt.Errorf("%w: %v", device.ErrNotConnected, err)
	case device.ContainsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", device.ErrNotConnected, err)
	case device.ContainsIgnoreCase(msg, "device already connected"):
		return fmt.Errorf("%w: %v", device.ErrAlreadyConnected, err)
	case device.ContainsIgnoreCase(msg, "connection is not initialized"):
		return fmt.Errorf("%w: %v", device.ErrNotInitialized, err)
	default:
		return err
	}
}
