package main

import (
	"errors"
	"fmt"

	"github.com/srg/blxfer/internal/device"
	"github.com/srg/blxfer/internal/filetransfer"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the link dropped before the session finished.
	// It is only returned when no transfer result was produced.
	ErrConnectionLost = errors.New("connection lost")
)

// FormatUserError turns an error chain into a one-line message for the terminal
func FormatUserError(err error) string {
	var connectErr *device.ConnectError
	var discoverErr *device.DiscoverError
	var unresolved *filetransfer.UnresolvedError
	var timeoutErr *device.TimeoutError

	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off. Turn it on and try again."
	case errors.As(err, &timeoutErr) && timeoutErr.Op == device.OpConnect:
		return fmt.Sprintf("no connection within %v. Is the device powered and advertising?", timeoutErr.Timeout)
	case errors.As(err, &connectErr):
		return fmt.Sprintf("failed to connect to %s: %v", connectErr.Address, connectErr.Err)
	case errors.As(err, &discoverErr):
		return fmt.Sprintf("service discovery failed on %s: %v", discoverErr.Address, discoverErr.Err)
	case errors.As(err, &unresolved):
		return unresolved.Error()
	case errors.Is(err, ErrConnectionLost):
		return "connection lost before the transfer finished"
	default:
		return err.Error()
	}
}
