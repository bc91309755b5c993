package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send <device-address>",
	Short: "Run the file-transfer script against a device",
	Long: fmt.Sprintf(`Connects to a BLE device, prints its services and runs the file-transfer
script over the file-transfer service:

  1. read status       (read timeout)
  2. write size        (write timeout)
  3. write command     (write timeout)
  4. read status       (read timeout)
  5. write data        (write timeout, 51300 random bytes)

Every step is submitted without waiting for the previous one to be acknowledged
and runs against its own timeout. A timed out step is logged; the remaining
steps still run.

Examples:
  # Run the transfer with default timeouts (read 2s, write 60s)
  blxfer send %s

  # Shorter write timeout and debug logging
  blxfer send %s --write-timeout 10s --log-level debug

  # Take timeouts and chunking from a config file
  blxfer send %s --config blxfer.yaml

%s`, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().Duration("read-timeout", 0, "Timeout of each status read (default 2s)")
	sendCmd.Flags().Duration("write-timeout", 0, "Timeout of each write (default 60s)")
}

func runSend(cmd *cobra.Command, args []string) error {
	return runSession(cmd, args[0], false)
}
