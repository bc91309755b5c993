package mocks

import (
	"sync"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
)

// GATTClient is a testify mock of the go-ble client subset driven by goble.BLEPeripheral.
// It also reports link loss through Disconnected, like the real darwin and linux clients.
type GATTClient struct {
	mock.Mock

	disconnected chan struct{}
	once         sync.Once
}

// NewGATTClient creates a mock client whose Disconnected channel is open.
func NewGATTClient() *GATTClient {
	return &GATTClient{disconnected: make(chan struct{})}
}

func (m *GATTClient) DiscoverServices(filter []ble.UUID) ([]*ble.Service, error) {
	args := m.Called(filter)
	var services []*ble.Service
	if v := args.Get(0); v != nil {
		services = v.([]*ble.Service)
	}
	return services, args.Error(1)
}

func (m *GATTClient) DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error) {
	args := m.Called(filter, s)
	var chars []*ble.Characteristic
	if v := args.Get(0); v != nil {
		chars = v.([]*ble.Characteristic)
	}
	return chars, args.Error(1)
}

func (m *GATTClient) ReadCharacteristic(c *ble.Characteristic) ([]byte, error) {
	args := m.Called(c)
	var data []byte
	if v := args.Get(0); v != nil {
		data = v.([]byte)
	}
	return data, args.Error(1)
}

func (m *GATTClient) WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error {
	args := m.Called(c, value, noRsp)
	return args.Error(0)
}

func (m *GATTClient) CancelConnection() error {
	args := m.Called()
	return args.Error(0)
}

// Disconnected is closed by SimulateDisconnect.
func (m *GATTClient) Disconnected() <-chan struct{} {
	return m.disconnected
}

// SimulateDisconnect closes the Disconnected channel as if the link dropped.
func (m *GATTClient) SimulateDisconnect() {
	m.once.Do(func() { close(m.disconnected) })
}
