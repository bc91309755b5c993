package testutils

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	blelib "github.com/go-ble/ble"
	"github.com/srg/blxfer/internal/device"
	"github.com/srg/blxfer/internal/testutils/mocks"
	"github.com/stretchr/testify/mock"
)

// CharacteristicConfig represents a GATT characteristic configuration for mocking
type CharacteristicConfig struct {
	UUID       string `json:"uuid"`
	Properties string `json:"properties,omitempty"` // e.g., "read,write,notify"
	Value      []byte `json:"value,omitempty"`

	behavior charBehavior
}

// ServiceConfig represents a GATT service configuration for mocking
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// DeviceProfileConfig represents the complete device profile for mocking
type DeviceProfileConfig struct {
	Services []ServiceConfig `json:"services"`
}

// CharOption tunes how a mocked characteristic behaves
type CharOption func(*charBehavior)

// WithHang makes reads and writes block until the caller's context is done
func WithHang() CharOption {
	return func(b *charBehavior) { b.hang = true }
}

// WithDelay delays reads and writes by d
func WithDelay(d time.Duration) CharOption {
	return func(b *charBehavior) { b.delay = d }
}

// WithReadError makes reads fail with err
func WithReadError(err error) CharOption {
	return func(b *charBehavior) { b.readErr = err }
}

// WithWriteError makes writes fail with err
func WithWriteError(err error) CharOption {
	return func(b *charBehavior) { b.writeErr = err }
}

// PeripheralDeviceBuilder builds fake peripherals and mocked go-ble clients from one profile
type PeripheralDeviceBuilder struct {
	address     string
	profile     DeviceProfileConfig
	discoverErr error
}

// NewPeripheralDeviceBuilder creates a new peripheral device builder
func NewPeripheralDeviceBuilder() *PeripheralDeviceBuilder {
	return &PeripheralDeviceBuilder{
		address: "AA:BB:CC:DD:EE:FF",
		profile: DeviceProfileConfig{
			Services: []ServiceConfig{},
		},
	}
}

// WithAddress sets the peripheral address
func (b *PeripheralDeviceBuilder) WithAddress(address string) *PeripheralDeviceBuilder {
	b.address = address
	return b
}

// WithService adds a service to the device profile
func (b *PeripheralDeviceBuilder) WithService(uuid string) *PeripheralDeviceBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{
		UUID:            uuid,
		Characteristics: []CharacteristicConfig{},
	})
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *PeripheralDeviceBuilder) WithCharacteristic(uuid, properties string, value []byte, opts ...CharOption) *PeripheralDeviceBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}

	char := CharacteristicConfig{
		UUID:       uuid,
		Properties: properties,
		Value:      value,
	}
	for _, opt := range opts {
		opt(&char.behavior)
	}

	last := len(b.profile.Services) - 1
	b.profile.Services[last].Characteristics = append(b.profile.Services[last].Characteristics, char)
	return b
}

// WithDiscoverError makes service discovery fail with err
func (b *PeripheralDeviceBuilder) WithDiscoverError(err error) *PeripheralDeviceBuilder {
	b.discoverErr = err
	return b
}

// FromJSON fills the device profile from JSON
func (b *PeripheralDeviceBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralDeviceBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	var config DeviceProfileConfig
	if err := json.Unmarshal([]byte(jsonStr), &config); err != nil {
		panic(fmt.Sprintf("PeripheralDeviceBuilder.FromJSON: failed to unmarshal: %v", err))
	}

	b.profile = config
	return b
}

// parseCharacteristicProperties converts a property list such as "read,write" to property bits
func parseCharacteristicProperties(props string) device.Properties {
	if props == "" {
		return device.PropRead | device.PropWrite | device.PropNotify
	}

	var result device.Properties
	for _, p := range strings.Split(props, ",") {
		switch strings.TrimSpace(p) {
		case "read":
			result |= device.PropRead
		case "write":
			result |= device.PropWrite
		case "write-without-response":
			result |= device.PropWriteNoResp
		case "notify":
			result |= device.PropNotify
		case "indicate":
			result |= device.PropIndicate
		}
	}
	return result
}

// Build creates an in-memory device.Peripheral with the configured profile
func (b *PeripheralDeviceBuilder) Build() *FakePeripheral {
	p := &FakePeripheral{
		address:      b.address,
		discoverErr:  b.discoverErr,
		behaviors:    make(map[string]*charBehavior),
		disconnected: make(chan struct{}),
	}

	for _, svcConfig := range b.profile.Services {
		svc := &FakeService{uuid: device.NormalizeUUID(svcConfig.UUID), primary: true}
		for _, charConfig := range svcConfig.Characteristics {
			uuid := device.NormalizeUUID(charConfig.UUID)
			svc.chars = append(svc.chars, &FakeCharacteristic{
				uuid:  uuid,
				props: parseCharacteristicProperties(charConfig.Properties),
			})
			behavior := charConfig.behavior
			behavior.value = charConfig.Value
			p.behaviors[uuid] = &behavior
		}
		p.services = append(p.services, svc)
	}
	return p
}

// BuildGATTClient creates a mocked go-ble client serving the configured profile.
// Reads return the configured value and writes succeed unless a CharOption says otherwise.
// WithHang is not supported by the mock: go-ble calls take no context.
func (b *PeripheralDeviceBuilder) BuildGATTClient() *mocks.GATTClient {
	client := mocks.NewGATTClient()

	var bleServices []*blelib.Service
	for _, svcConfig := range b.profile.Services {
		bleService := &blelib.Service{UUID: blelib.MustParse(svcConfig.UUID)}

		var bleChars []*blelib.Characteristic
		for _, charConfig := range svcConfig.Characteristics {
			bleChar := &blelib.Characteristic{
				UUID:     blelib.MustParse(charConfig.UUID),
				Property: blelib.Property(parseCharacteristicProperties(charConfig.Properties)),
				Value:    charConfig.Value,
			}
			bleChars = append(bleChars, bleChar)

			behavior := charConfig.behavior
			var read *mock.Call
			switch {
			case bleChar.Property&blelib.CharRead == 0:
				read = client.On("ReadCharacteristic", bleChar).Return(nil, fmt.Errorf("characteristic does not support read"))
			case behavior.readErr != nil:
				read = client.On("ReadCharacteristic", bleChar).Return(nil, behavior.readErr)
			default:
				read = client.On("ReadCharacteristic", bleChar).Return(charConfig.Value, nil)
			}
			write := client.On("WriteCharacteristic", bleChar, mock.Anything, mock.Anything).Return(behavior.writeErr)
			if behavior.delay > 0 {
				read.After(behavior.delay)
				write.After(behavior.delay)
			}
		}
		bleService.Characteristics = bleChars
		bleServices = append(bleServices, bleService)

		client.On("DiscoverCharacteristics", mock.Anything, bleService).Return(bleChars, nil)
	}

	if b.discoverErr != nil {
		client.On("DiscoverServices", mock.Anything).Return(nil, b.discoverErr)
	} else {
		client.On("DiscoverServices", mock.Anything).Return(bleServices, nil)
	}
	client.On("CancelConnection").Return(nil)

	return client
}
