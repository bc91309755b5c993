package goble

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blxfer/internal/device"
)

// Dial connects to the peripheral at address on the default host device.
// This is a variable so that it can be overridden in tests.
var Dial = func(ctx context.Context, address string) (GATTClient, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	ble.SetDefaultDevice(dev)

	client, err := ble.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Central implements device.Central using go-ble
type Central struct {
	logger *logrus.Logger
	opts   *PeripheralOptions
}

// NewCentral creates a go-ble backed central. opts may be nil for defaults.
func NewCentral(opts *PeripheralOptions, logger *logrus.Logger) *Central {
	if logger == nil {
		logger = logrus.New()
	}
	return &Central{logger: logger, opts: opts}
}

// Connect dials the peripheral. The dial is bounded by ctx only; callers apply the connect timeout.
func (c *Central) Connect(ctx context.Context, address string) (device.Peripheral, error) {
	if strings.TrimSpace(address) == "" {
		c.logger.Error("Connection attempt with empty address")
		return nil, fmt.Errorf("device address is empty")
	}

	c.logger.WithField("address", address).Info("Connecting to BLE device...")

	client, err := Dial(ctx, address)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		return nil, NormalizeError(err)
	}

	c.logger.WithField("address", address).Info("BLE device connected successfully")
	return NewBLEPeripheral(address, client, c.opts, c.logger), nil
}
