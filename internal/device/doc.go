// Package device defines the BLE central abstractions the rest of blxfer is written
// against: a Central that connects by address, and a connected Peripheral exposing
// service discovery, characteristic reads and writes, and a disconnection signal.
//
// The package also owns the error taxonomy shared by the transport adapters and the
// session layer:
//   - ConnectError and DiscoverError for failed connect and discovery requests
//   - TimeoutError for a read or write abandoned at its deadline
//   - ConnectionError sentinels for connection-state misuse
//
// Concrete transports live in sub-packages (see go-ble).
package device
