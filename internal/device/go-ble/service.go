package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/blxfer/internal/device"
)

// ----------------------------
// BLE Service
// ----------------------------

// BLEService represents a discovered GATT service and its characteristics
type BLEService struct {
	uuid            string
	primary         bool
	BLEService      *ble.Service
	characteristics []*BLECharacteristic
}

func newService(s *ble.Service, chars []*ble.Characteristic) *BLEService {
	svc := &BLEService{
		uuid:       device.NormalizeUUID(s.UUID.String()),
		primary:    true, // go-ble only discovers primary services
		BLEService: s,
	}
	for _, c := range chars {
		svc.characteristics = append(svc.characteristics, newCharacteristic(c))
	}
	return svc
}

func (s *BLEService) UUID() string {
	return s.uuid
}

func (s *BLEService) IsPrimary() bool {
	return s.primary
}

// Characteristics returns characteristics in discovery order
func (s *BLEService) Characteristics() []device.Characteristic {
	result := make([]device.Characteristic, 0, len(s.characteristics))
	for _, c := range s.characteristics {
		result = append(result, c)
	}
	return result
}

// ----------------------------
// BLE Characteristic
// ----------------------------

// BLECharacteristic holds the live go-ble handle of a discovered characteristic
type BLECharacteristic struct {
	uuid    string
	props   device.Properties
	BLEChar *ble.Characteristic
}

func newCharacteristic(c *ble.Characteristic) *BLECharacteristic {
	return &BLECharacteristic{
		uuid: device.NormalizeUUID(c.UUID.String()),
		// go-ble property bits use the Bluetooth core values
		props:   device.Properties(c.Property),
		BLEChar: c,
	}
}

func (c *BLECharacteristic) UUID() string {
	return c.uuid
}

func (c *BLECharacteristic) Properties() device.Properties {
	return c.props
}
