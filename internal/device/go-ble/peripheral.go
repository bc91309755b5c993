package goble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blxfer/internal/device"
	"github.com/srg/blxfer/internal/groutine"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const (
	// DefaultWriteChunkSize is the maximum number of bytes written in a single ATT request.
	// BLE 4.0/4.1 defines an ATT_MTU of 23 bytes (20 bytes payload after the ATT header).
	DefaultWriteChunkSize = 20

	// DefaultWriteChunkDelay paces unacknowledged chunks so the peripheral's receive
	// buffer is not overrun. Acknowledged writes are paced by the ACK itself.
	DefaultWriteChunkDelay = 10 * time.Millisecond
)

// GATTClient is the subset of ble.Client the peripheral drives.
// Any ble.Client satisfies it; tests substitute a mock.
type GATTClient interface {
	DiscoverServices(filter []ble.UUID) ([]*ble.Service, error)
	DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error)
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	CancelConnection() error
}

// disconnectNotifier is implemented by go-ble clients that report link loss
type disconnectNotifier interface {
	Disconnected() <-chan struct{}
}

// PeripheralOptions tunes how writes are split on the wire
type PeripheralOptions struct {
	WriteChunkSize  int
	WriteChunkDelay time.Duration
}

// BLEPeripheral implements device.Peripheral on top of a connected go-ble client
type BLEPeripheral struct {
	address string
	client  GATTClient
	logger  *logrus.Logger
	opts    PeripheralOptions

	mu       sync.RWMutex
	services *orderedmap.OrderedMap[string, *BLEService]

	disconnected     chan struct{}
	disconnectedOnce sync.Once
	done             chan struct{}
	disconnectOnce   sync.Once
	disconnectErr    error
}

// NewBLEPeripheral wraps a connected client. If the client reports link loss, a monitor
// goroutine closes Disconnected() when that happens.
func NewBLEPeripheral(address string, client GATTClient, opts *PeripheralOptions, logger *logrus.Logger) *BLEPeripheral {
	if logger == nil {
		logger = logrus.New()
	}
	p := &BLEPeripheral{
		address:      address,
		client:       client,
		logger:       logger,
		opts:         PeripheralOptions{WriteChunkSize: DefaultWriteChunkSize, WriteChunkDelay: DefaultWriteChunkDelay},
		services:     orderedmap.New[string, *BLEService](),
		disconnected: make(chan struct{}),
		done:         make(chan struct{}),
	}
	if opts != nil {
		if opts.WriteChunkSize > 0 {
			p.opts.WriteChunkSize = opts.WriteChunkSize
		}
		if opts.WriteChunkDelay >= 0 {
			p.opts.WriteChunkDelay = opts.WriteChunkDelay
		}
	}

	if notifier, ok := client.(disconnectNotifier); ok {
		groutine.Go(context.Background(), "ble-disconnect-monitor", func(ctx context.Context) {
			select {
			case <-notifier.Disconnected():
				p.logger.WithField("address", p.address).Warn("BLE stack reported disconnection")
				p.markDisconnected()
			case <-p.done:
			}
		})
	} else {
		p.logger.Debug("Client does not support Disconnected() channel")
	}

	return p
}

func (p *BLEPeripheral) Address() string {
	return p.address
}

// Disconnected is closed when the link drops or Disconnect is called
func (p *BLEPeripheral) Disconnected() <-chan struct{} {
	return p.disconnected
}

func (p *BLEPeripheral) markDisconnected() {
	p.disconnectedOnce.Do(func() { close(p.disconnected) })
}

func (p *BLEPeripheral) isDisconnected() bool {
	select {
	case <-p.disconnected:
		return true
	default:
		return false
	}
}

// Disconnect cancels the connection. Safe to call more than once; later calls return the first result.
func (p *BLEPeripheral) Disconnect() error {
	p.disconnectOnce.Do(func() {
		close(p.done)
		p.logger.WithField("address", p.address).Info("Disconnecting BLE device...")
		p.disconnectErr = NormalizeError(p.client.CancelConnection())
		p.markDisconnected()
		if p.disconnectErr != nil {
			p.logger.WithError(p.disconnectErr).Warn("BLE device disconnected with errors")
		} else {
			p.logger.Info("BLE device disconnected successfully")
		}
	})
	return p.disconnectErr
}

// DiscoverServices discovers services and their characteristics, replacing the cached set.
func (p *BLEPeripheral) DiscoverServices(ctx context.Context, filter []string) ([]device.Service, error) {
	if p.isDisconnected() {
		return nil, device.ErrNotConnected
	}

	bleFilter := make([]ble.UUID, 0, len(filter))
	for _, f := range filter {
		u, err := ble.Parse(f)
		if err != nil {
			return nil, fmt.Errorf("invalid service filter %q: %w", f, err)
		}
		bleFilter = append(bleFilter, u)
	}

	p.logger.WithFields(logrus.Fields{
		"address": p.address,
		"filter":  filter,
	}).Debug("Discovering services and characteristics...")

	discovered, err := callWithContext(ctx, "ble-discover", func() ([]*BLEService, error) {
		bleServices, err := p.client.DiscoverServices(bleFilter)
		if err != nil {
			return nil, err
		}
		result := make([]*BLEService, 0, len(bleServices))
		for _, s := range bleServices {
			chars, err := p.client.DiscoverCharacteristics(nil, s)
			if err != nil {
				return nil, fmt.Errorf("characteristics of service %s: %w", s.UUID.String(), err)
			}
			result = append(result, newService(s, chars))
		}
		return result, nil
	})
	if err != nil {
		return nil, NormalizeError(err)
	}

	services := orderedmap.New[string, *BLEService]()
	totalChars := 0
	for _, svc := range discovered {
		p.logger.WithField("service_uuid", svc.UUID()).Debug("Found service UUID")
		services.Set(svc.UUID(), svc)
		totalChars += len(svc.characteristics)
	}

	p.mu.Lock()
	p.services = services
	p.mu.Unlock()

	p.logger.WithFields(logrus.Fields{
		"address":         p.address,
		"services":        services.Len(),
		"characteristics": totalChars,
	}).Info("Services discovered")

	return p.Services(), nil
}

// Services returns the cached services in discovery order. Thread-safe.
func (p *BLEPeripheral) Services() []device.Service {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]device.Service, 0, p.services.Len())
	for pair := p.services.Oldest(); pair != nil; pair = pair.Next() {
		result = append(result, pair.Value)
	}
	return result
}

func (p *BLEPeripheral) liveHandle(char device.Characteristic) (*ble.Characteristic, error) {
	bc, ok := char.(*BLECharacteristic)
	if !ok || bc == nil {
		return nil, fmt.Errorf("characteristic %v was not discovered by this connection", char)
	}
	if bc.BLEChar == nil {
		return nil, fmt.Errorf("characteristic %s not initialized", bc.uuid)
	}
	return bc.BLEChar, nil
}

// ReadCharacteristic reads the characteristic value, abandoning the request when ctx is done.
func (p *BLEPeripheral) ReadCharacteristic(ctx context.Context, char device.Characteristic) ([]byte, error) {
	if p.isDisconnected() {
		return nil, device.ErrNotConnected
	}
	handle, err := p.liveHandle(char)
	if err != nil {
		return nil, err
	}

	data, err := callWithContext(ctx, "ble-read", func() ([]byte, error) {
		return p.client.ReadCharacteristic(handle)
	})
	if err != nil {
		return nil, NormalizeError(err)
	}
	return data, nil
}

// WriteCharacteristic writes data, split into WriteChunkSize requests when it does not fit
// a single one. Remaining chunks are dropped once ctx is done.
func (p *BLEPeripheral) WriteCharacteristic(ctx context.Context, char device.Characteristic, data []byte, mode device.WriteMode) error {
	if p.isDisconnected() {
		return device.ErrNotConnected
	}
	handle, err := p.liveHandle(char)
	if err != nil {
		return err
	}

	noRsp := mode == device.WriteWithoutResponse
	chunkSize := p.opts.WriteChunkSize

	_, err = callWithContext(ctx, "ble-write", func() (int, error) {
		written := 0
		for len(data) > 0 {
			if err := ctx.Err(); err != nil {
				return written, err
			}
			n := len(data)
			if n > chunkSize {
				n = chunkSize
			}
			if err := p.client.WriteCharacteristic(handle, data[:n], noRsp); err != nil {
				return written, fmt.Errorf("failed to write characteristic %s at offset %d: %w", char.UUID(), written, err)
			}
			written += n
			data = data[n:]
			if noRsp && len(data) > 0 && p.opts.WriteChunkDelay > 0 {
				time.Sleep(p.opts.WriteChunkDelay)
			}
		}
		return written, nil
	})
	return NormalizeError(err)
}

// callWithContext runs fn on its own goroutine and returns early when ctx is done.
// A late result is discarded.
func callWithContext[T any](ctx context.Context, name string, fn func() (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}
	resultCh := make(chan result, 1)

	groutine.Go(ctx, name, func(context.Context) {
		v, err := fn()
		resultCh <- result{value: v, err: err}
	})

	select {
	case r := <-resultCh:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
