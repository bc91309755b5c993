package testutils

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/srg/blxfer/internal/device"
)

// RecordedOp is one read or write observed by a FakePeripheral, in issuance order.
type RecordedOp struct {
	Kind device.OpKind
	UUID string // normalized
	Data []byte
	Mode device.WriteMode
}

// charBehavior controls how a fake characteristic answers reads and writes
type charBehavior struct {
	value    []byte
	readErr  error
	writeErr error
	delay    time.Duration
	hang     bool
}

// FakeService implements device.Service for tests
type FakeService struct {
	uuid    string
	primary bool
	chars   []device.Characteristic
}

func (s *FakeService) UUID() string                             { return s.uuid }
func (s *FakeService) IsPrimary() bool                          { return s.primary }
func (s *FakeService) Characteristics() []device.Characteristic { return s.chars }

// FakeCharacteristic implements device.Characteristic for tests
type FakeCharacteristic struct {
	uuid  string
	props device.Properties
}

func (c *FakeCharacteristic) UUID() string                  { return c.uuid }
func (c *FakeCharacteristic) Properties() device.Properties { return c.props }

// FakePeripheral implements device.Peripheral in memory. Reads and writes are recorded
// when they reach the peripheral; behaviour per characteristic comes from the builder.
type FakePeripheral struct {
	address     string
	services    []device.Service
	discoverErr error
	behaviors   map[string]*charBehavior

	mu         sync.Mutex
	discovered []device.Service
	ops        []RecordedOp
	started    chan RecordedOp

	disconnected chan struct{}
	once         sync.Once
	disconnects  int
}

func (p *FakePeripheral) Address() string { return p.address }

func (p *FakePeripheral) DiscoverServices(ctx context.Context, filter []string) ([]device.Service, error) {
	if p.discoverErr != nil {
		return nil, p.discoverErr
	}
	want := make(map[string]bool, len(filter))
	for _, f := range filter {
		want[device.NormalizeUUID(f)] = true
	}

	var result []device.Service
	for _, svc := range p.services {
		if len(want) == 0 || want[svc.UUID()] {
			result = append(result, svc)
		}
	}

	p.mu.Lock()
	p.discovered = result
	p.mu.Unlock()
	return result, nil
}

func (p *FakePeripheral) Services() []device.Service {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.discovered
}

func (p *FakePeripheral) record(op RecordedOp) {
	p.mu.Lock()
	p.ops = append(p.ops, op)
	started := p.started
	p.mu.Unlock()

	if started != nil {
		select {
		case started <- op:
		default:
		}
	}
}

func (p *FakePeripheral) behave(ctx context.Context, uuid string) (*charBehavior, error) {
	b, ok := p.behaviors[uuid]
	if !ok {
		return &charBehavior{}, nil
	}
	if b.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return b, nil
}

func (p *FakePeripheral) ReadCharacteristic(ctx context.Context, char device.Characteristic) ([]byte, error) {
	uuid := device.NormalizeUUID(char.UUID())
	p.record(RecordedOp{Kind: device.OpRead, UUID: uuid})

	b, err := p.behave(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if b.readErr != nil {
		return nil, b.readErr
	}
	return b.value, nil
}

func (p *FakePeripheral) WriteCharacteristic(ctx context.Context, char device.Characteristic, data []byte, mode device.WriteMode) error {
	uuid := device.NormalizeUUID(char.UUID())
	p.record(RecordedOp{Kind: device.OpWrite, UUID: uuid, Data: append([]byte(nil), data...), Mode: mode})

	b, err := p.behave(ctx, uuid)
	if err != nil {
		return err
	}
	return b.writeErr
}

func (p *FakePeripheral) Disconnected() <-chan struct{} { return p.disconnected }

// SimulateDisconnect closes Disconnected as if the link dropped
func (p *FakePeripheral) SimulateDisconnect() {
	p.once.Do(func() { close(p.disconnected) })
}

func (p *FakePeripheral) Disconnect() error {
	p.mu.Lock()
	p.disconnects++
	p.mu.Unlock()
	p.SimulateDisconnect()
	return nil
}

// Ops returns a snapshot of recorded operations in the order they reached the peripheral
func (p *FakePeripheral) Ops() []RecordedOp {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]RecordedOp(nil), p.ops...)
}

// DisconnectCalls returns how many times Disconnect was called
func (p *FakePeripheral) DisconnectCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disconnects
}

// OpStarted returns a channel receiving each operation as it reaches the peripheral.
// Must be called before the operations are issued.
func (p *FakePeripheral) OpStarted() <-chan RecordedOp {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started == nil {
		p.started = make(chan RecordedOp, 16)
	}
	return p.started
}

// FakeCentral implements device.Central returning a prepared peripheral
type FakeCentral struct {
	Peripheral device.Peripheral
	Err        error
	Hang       bool

	mu    sync.Mutex
	calls []string
}

func (c *FakeCentral) Connect(ctx context.Context, address string) (device.Peripheral, error) {
	c.mu.Lock()
	c.calls = append(c.calls, address)
	c.mu.Unlock()

	if c.Hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if c.Err != nil {
		return nil, c.Err
	}
	if c.Peripheral == nil {
		return nil, errors.New("no peripheral configured")
	}
	return c.Peripheral, nil
}

// Calls returns the addresses Connect was called with
func (c *FakeCentral) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}
