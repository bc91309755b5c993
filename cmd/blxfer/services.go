package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// servicesCmd represents the services command
var servicesCmd = &cobra.Command{
	Use:   "services <device-address>",
	Short: "List the GATT services of a device",
	Long: fmt.Sprintf(`Connects to a BLE device, discovers its services and characteristics and
prints them as a table. No characteristic is read or written.

Examples:
  blxfer services %s

%s`, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(1),
	RunE: runServices,
}

func runServices(cmd *cobra.Command, args []string) error {
	return runSession(cmd, args[0], true)
}
