//go:build !darwin

package main

const (
	exampleDeviceAddress = "AA:BB:CC:DD:EE:FF"
	deviceAddressNote    = "Device address format: MAC address, colon separated\n  Example: AA:BB:CC:DD:EE:FF"
)
