package main

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/srg/blxfer/internal/device"
	"github.com/srg/blxfer/internal/filetransfer"
	"github.com/stretchr/testify/assert"
)

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "bluetooth off",
			err:  &device.ConnectError{Address: "AA", Err: device.ErrBluetoothOff},
			want: "Bluetooth is turned off. Turn it on and try again.",
		},
		{
			name: "connect timeout",
			err:  &device.ConnectError{Address: "AA", Err: &device.TimeoutError{Op: device.OpConnect, Timeout: 30 * time.Second}},
			want: "no connection within 30s. Is the device powered and advertising?",
		},
		{
			name: "connect error",
			err:  fmt.Errorf("session: %w", &device.ConnectError{Address: "AA", Err: errors.New("refused")}),
			want: "failed to connect to AA: refused",
		},
		{
			name: "discover error",
			err:  &device.DiscoverError{Address: "AA", Err: errors.New("att error")},
			want: "service discovery failed on AA: att error",
		},
		{
			name: "unresolved roles",
			err:  &filetransfer.UnresolvedError{Missing: []filetransfer.Role{filetransfer.RoleData, filetransfer.RoleStatus}},
			want: "file transfer service unresolved, missing: data, status",
		},
		{
			name: "connection lost",
			err:  ErrConnectionLost,
			want: "connection lost before the transfer finished",
		},
		{
			name: "other",
			err:  errors.New("boom"),
			want: "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatUserError(tt.err))
		})
	}
}
