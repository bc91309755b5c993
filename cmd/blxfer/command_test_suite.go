//go:build test

package main

import (
	"bytes"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/srg/blxfer/internal/filetransfer"
	"github.com/srg/blxfer/internal/testutils"
)

// Test device addresses for consistent mock device identification
const (
	TestDeviceAddress1 = "00:00:00:00:00:01"
)

// CommandTestSuite extends MockBLEPeripheralSuite with command testing utilities.
// All cmd/blxfer test suites should embed this instead of MockBLEPeripheralSuite.
type CommandTestSuite struct {
	testutils.MockBLEPeripheralSuite
}

// SetupTest resets flags left over by a previous command run and disables colors
// so expected output can be compared as plain text
func (s *CommandTestSuite) SetupTest() {
	color.NoColor = true
	resetFlags(rootCmd)
	s.MockBLEPeripheralSuite.SetupTest()
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// WithFileTransferPeripheral configures a profile carrying the battery and file-transfer services.
// statusOpts tune the status characteristic.
func (s *CommandTestSuite) WithFileTransferPeripheral(statusOpts ...testutils.CharOption) *testutils.PeripheralDeviceBuilder {
	s.PeripheralBuilder = testutils.NewPeripheralDeviceBuilder()
	return s.PeripheralBuilder.
		WithService("180F").
		WithCharacteristic("2A19", "read,notify", []byte{50}).
		WithService(filetransfer.ServiceUUID).
		WithCharacteristic(filetransfer.CommandUUID, "write", nil).
		WithCharacteristic(filetransfer.DataUUID, "write,write-without-response", nil).
		WithCharacteristic(filetransfer.SizeUUID, "write", nil).
		WithCharacteristic(filetransfer.StatusUUID, "read", []byte{byte(filetransfer.StateIdle)}, statusOpts...)
}

// ExecuteCommand runs the root command with args, returns output and error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}
