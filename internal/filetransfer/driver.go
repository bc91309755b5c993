package filetransfer

import (
	"context"
	"math/rand/v2"

	"github.com/sirupsen/logrus"
	"github.com/srg/blxfer/internal/device"
	"github.com/srg/blxfer/internal/gateway"
)

// Submitter queues an operation without waiting for it. *gateway.Gateway satisfies it.
type Submitter interface {
	Submit(ctx context.Context, req gateway.Request) *gateway.Operation
}

// Step labels one entry of the transfer script
type Step struct {
	Name string
	Role Role
	Kind device.OpKind
}

// Script is the fixed order of operations of one transfer
var Script = []Step{
	{Name: "read status", Role: RoleStatus, Kind: device.OpRead},
	{Name: "write size", Role: RoleSize, Kind: device.OpWrite},
	{Name: "write command", Role: RoleCommand, Kind: device.OpWrite},
	{Name: "read status", Role: RoleStatus, Kind: device.OpRead},
	{Name: "write data", Role: RoleData, Kind: device.OpWrite},
}

// Driver runs the transfer script through a gateway.
//
// All five operations are submitted back to back; the driver never waits for an
// acknowledgement before submitting the next one and never aborts the script
// when a step fails or times out. Liveness relies on each operation's own timeout.
type Driver struct {
	logger    *logrus.Logger
	gateway   Submitter
	writeMode device.WriteMode
	rng       *rand.Rand
}

// DriverOption customizes a Driver
type DriverOption func(*Driver)

// WithWriteMode selects the write mode used for every write step
func WithWriteMode(mode device.WriteMode) DriverOption {
	return func(d *Driver) { d.writeMode = mode }
}

// WithRand fixes the random source of the data payload
func WithRand(rng *rand.Rand) DriverOption {
	return func(d *Driver) { d.rng = rng }
}

// NewDriver creates a driver submitting through gw
func NewDriver(gw Submitter, logger *logrus.Logger, opts ...DriverOption) *Driver {
	if logger == nil {
		logger = logrus.New()
	}
	d := &Driver{
		logger:    logger,
		gateway:   gw,
		writeMode: device.WriteWithResponse,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Transfer is one run of the script
type Transfer struct {
	Ops []*gateway.Operation
}

// Wait blocks until every operation completed or ctx is done, and returns their results in script order
func (t *Transfer) Wait(ctx context.Context) ([]gateway.Result, error) {
	results := make([]gateway.Result, len(t.Ops))
	for i, op := range t.Ops {
		select {
		case <-op.Done():
			results[i] = op.Result()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return results, nil
}

// Run resolves the file-transfer roles on p and submits the script.
// If any role is unresolved nothing is submitted and an *UnresolvedError is returned.
func (d *Driver) Run(ctx context.Context, p device.Peripheral) (*Transfer, error) {
	roles, err := ResolveRoles(p)
	if err != nil {
		d.logger.WithError(err).Warn("File transfer not started")
		return nil, err
	}
	return d.Start(ctx, p, roles), nil
}

// Start submits the script against already resolved roles
func (d *Driver) Start(ctx context.Context, p device.Peripheral, roles *Roles) *Transfer {
	payloads := map[Role][]byte{
		RoleSize:    SizePayload(),
		RoleCommand: CommandBegin(),
		RoleData:    NewDataPayload(d.rng),
	}
	chars := map[Role]device.Characteristic{
		RoleCommand: roles.Command,
		RoleData:    roles.Data,
		RoleSize:    roles.Size,
		RoleStatus:  roles.Status,
	}

	t := &Transfer{}
	for _, step := range Script {
		req := gateway.Request{
			Kind:           step.Kind,
			Peripheral:     p,
			Characteristic: chars[step.Role],
		}
		if step.Kind == device.OpWrite {
			req.Payload = payloads[step.Role]
			req.Mode = d.writeMode
		}
		t.Ops = append(t.Ops, d.gateway.Submit(ctx, req))
	}

	d.logger.WithFields(logrus.Fields{
		"address":    p.Address(),
		"operations": len(t.Ops),
		"data_bytes": DataPayloadLen,
	}).Info("File transfer script submitted")
	return t
}
