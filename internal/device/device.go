package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// NotFoundError represents an error when a GATT resource is not found
type NotFoundError struct {
	Resource string   // "service", "characteristic"
	UUIDs    []string // One or more UUIDs (e.g., [serviceUUID] or [serviceUUID, charUUID])
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	NotInitialized   ConnectionState = "not_initialized"
)

// ConnectionError represents any connection-state problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrNotInitialized   = &ConnectionError{State: NotInitialized}
)

// Operation errors
var (
	ErrTimeout      = errors.New("timeout")
	ErrUnsupported  = errors.New("unsupported")
	ErrBluetoothOff = errors.New("bluetooth is turned off")
)

// OpKind names the kind of GATT operation an error or result belongs to.
type OpKind string

const (
	OpConnect  OpKind = "connect"
	OpDiscover OpKind = "discover"
	OpRead     OpKind = "read"
	OpWrite    OpKind = "write"
)

// TimeoutError reports an operation that did not complete within its deadline.
// errors.Is(err, ErrTimeout) holds for every TimeoutError.
type TimeoutError struct {
	UUID    string
	Op      OpKind
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	if e.UUID == "" {
		return fmt.Sprintf("%s timeout after %v", e.Op, e.Timeout)
	}
	return fmt.Sprintf("%s timeout on %s after %v", e.Op, e.UUID, e.Timeout)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// ConnectError wraps a failed connect request. It is terminal for the session.
type ConnectError struct {
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to device with address %q: %v", e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// DiscoverError wraps a failed service discovery.
type DiscoverError struct {
	Address string
	Err     error
}

func (e *DiscoverError) Error() string {
	return fmt.Sprintf("failed to discover services on %q: %v", e.Address, e.Err)
}

func (e *DiscoverError) Unwrap() error { return e.Err }

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// ContainsIgnoreCase checks substring case-insensitively
func ContainsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// WriteMode selects between acknowledged and unacknowledged characteristic writes.
type WriteMode int

const (
	WriteWithResponse WriteMode = iota
	WriteWithoutResponse
)

func (m WriteMode) String() string {
	if m == WriteWithoutResponse {
		return "without-response"
	}
	return "with-response"
}

// Central opens connections to peripherals by address.
type Central interface {
	Connect(ctx context.Context, address string) (Peripheral, error)
}

// Peripheral is a connected remote device. Every blocking call honours ctx:
// when ctx is done the call returns ctx.Err() and its transport result is abandoned.
type Peripheral interface {
	Address() string

	// DiscoverServices discovers services (restricted to filter when non-empty)
	// together with their characteristics, and caches them for Services.
	DiscoverServices(ctx context.Context, filter []string) ([]Service, error)
	// Services returns the services cached by the last successful discovery.
	Services() []Service

	ReadCharacteristic(ctx context.Context, char Characteristic) ([]byte, error)
	WriteCharacteristic(ctx context.Context, char Characteristic, data []byte, mode WriteMode) error

	// Disconnected is closed when the link drops, whatever the cause.
	Disconnected() <-chan struct{}
	Disconnect() error
}

// Service represents a discovered GATT service
type Service interface {
	UUID() string
	IsPrimary() bool
	Characteristics() []Characteristic
}

// Characteristic represents a discovered GATT characteristic
type Characteristic interface {
	UUID() string
	Properties() Properties
}

// Properties is the characteristic property bit set, using the Bluetooth core values.
type Properties uint8

const (
	PropBroadcast     Properties = 0x01
	PropRead          Properties = 0x02
	PropWriteNoResp   Properties = 0x04
	PropWrite         Properties = 0x08
	PropNotify        Properties = 0x10
	PropIndicate      Properties = 0x20
	PropSignedWrite   Properties = 0x40
	PropExtendedProps Properties = 0x80
)

var propertyNames = []struct {
	prop Properties
	name string
}{
	{PropBroadcast, "broadcast"},
	{PropRead, "read"},
	{PropWriteNoResp, "write-without-response"},
	{PropWrite, "write"},
	{PropNotify, "notify"},
	{PropIndicate, "indicate"},
	{PropSignedWrite, "signed-write"},
	{PropExtendedProps, "extended"},
}

// Has reports whether all bits of p are set.
func (props Properties) Has(p Properties) bool {
	return props&p == p
}

// String renders the set as a comma-separated list, e.g. "read,write".
func (props Properties) String() string {
	var parts []string
	for _, pn := range propertyNames {
		if props.Has(pn.prop) {
			parts = append(parts, pn.name)
		}
	}
	return strings.Join(parts, ",")
}

// FindService returns the service with the given UUID from services, comparing normalized UUIDs.
func FindService(services []Service, uuid string) (Service, error) {
	want := NormalizeUUID(uuid)
	for _, svc := range services {
		if NormalizeUUID(svc.UUID()) == want {
			return svc, nil
		}
	}
	return nil, &NotFoundError{Resource: "service", UUIDs: []string{uuid}}
}

// FindCharacteristic returns the characteristic with the given UUID inside svc.
func FindCharacteristic(svc Service, uuid string) (Characteristic, error) {
	want := NormalizeUUID(uuid)
	for _, char := range svc.Characteristics() {
		if NormalizeUUID(char.UUID()) == want {
			return char, nil
		}
	}
	return nil, &NotFoundError{Resource: "characteristic", UUIDs: []string{svc.UUID(), uuid}}
}
