package gateway_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blxfer/internal/device"
	"github.com/srg/blxfer/internal/gateway"
	"github.com/srg/blxfer/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	svcUUID    = "00020000-2ff1-4355-ae68-bd2f575b2249"
	statusUUID = "00020004-2ff1-4355-ae68-bd2f575b2249"
	sizeUUID   = "00020003-2ff1-4355-ae68-bd2f575b2249"
	cmdUUID    = "00020001-2ff1-4355-ae68-bd2f575b2249"
)

type resultCollector struct {
	mu      sync.Mutex
	results []gateway.Result
}

func (c *resultCollector) add(r gateway.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r)
}

func (c *resultCollector) all() []gateway.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]gateway.Result(nil), c.results...)
}

type fixture struct {
	peripheral *testutils.FakePeripheral
	events     *testutils.EventRecorder
	results    *resultCollector
	gw         *gateway.Gateway
}

func newFixture(t *testing.T, builder *testutils.PeripheralDeviceBuilder, opts gateway.Options) *fixture {
	t.Helper()
	helper := testutils.NewTestHelper(t)

	f := &fixture{
		peripheral: builder.Build(),
		events:     &testutils.EventRecorder{},
		results:    &resultCollector{},
	}
	opts.OnResult = f.results.add
	f.gw = gateway.New(opts, f.events, helper.Logger)
	t.Cleanup(f.gw.Close)

	_, err := f.peripheral.DiscoverServices(context.Background(), nil)
	require.NoError(t, err)
	return f
}

func (f *fixture) char(t *testing.T, uuid string) device.Characteristic {
	t.Helper()
	svc, err := device.FindService(f.peripheral.Services(), svcUUID)
	require.NoError(t, err)
	c, err := device.FindCharacteristic(svc, uuid)
	require.NoError(t, err)
	return c
}

func countContaining(events []string, substr string) int {
	n := 0
	for _, e := range events {
		if strings.Contains(e, substr) {
			n++
		}
	}
	return n
}

func TestGateway_ReadSuccess(t *testing.T) {
	f := newFixture(t, testutils.NewPeripheralDeviceBuilder().
		WithService(svcUUID).
		WithCharacteristic(statusUUID, "read", []byte{0x02, 0xab}), gateway.Options{})

	res, err := f.gw.Read(context.Background(), f.peripheral, f.char(t, statusUUID), 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0xab}, res.Value)
	assert.Equal(t, device.OpRead, res.Kind)
	assert.Equal(t, device.NormalizeUUID(statusUUID), res.UUID)

	assert.Equal(t, []string{
		"Start read " + statusUUID + " ...",
		"Read " + statusUUID + " value: 02ab",
	}, f.events.Events())
	assert.Len(t, f.results.all(), 1)
	assert.Equal(t, 0, f.gw.Pending())
}

func TestGateway_ReadEmptyValue(t *testing.T) {
	f := newFixture(t, testutils.NewPeripheralDeviceBuilder().
		WithService(svcUUID).
		WithCharacteristic(statusUUID, "read", nil), gateway.Options{})

	_, err := f.gw.Read(context.Background(), f.peripheral, f.char(t, statusUUID), 0)
	require.NoError(t, err)
	assert.Contains(t, f.events.Events(), "Read "+statusUUID+" value: empty")
}

func TestGateway_WriteSuccess(t *testing.T) {
	f := newFixture(t, testutils.NewPeripheralDeviceBuilder().
		WithService(svcUUID).
		WithCharacteristic(sizeUUID, "write", nil), gateway.Options{})

	res, err := f.gw.Write(context.Background(), f.peripheral, f.char(t, sizeUUID), []byte{100, 200, 0, 0}, device.WriteWithResponse, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Written)

	ops := f.peripheral.Ops()
	require.Len(t, ops, 1)
	assert.Equal(t, []byte{100, 200, 0, 0}, ops[0].Data)
	assert.Equal(t, device.WriteWithResponse, ops[0].Mode)
	assert.Equal(t, []string{
		"Start write " + sizeUUID + " (4 bytes) ...",
		"Wrote on " + sizeUUID,
	}, f.events.Events())
}

func TestGateway_WriteFailure(t *testing.T) {
	f := newFixture(t, testutils.NewPeripheralDeviceBuilder().
		WithService(svcUUID).
		WithCharacteristic(sizeUUID, "write", nil, testutils.WithWriteError(errors.New("att error 0x03"))), gateway.Options{})

	res, err := f.gw.Write(context.Background(), f.peripheral, f.char(t, sizeUUID), []byte{1}, device.WriteWithResponse, 0)
	require.Error(t, err)
	assert.False(t, res.TimedOut())
	assert.Contains(t, f.events.Events(), "Write failed on "+sizeUUID+": att error 0x03")
}

func TestGateway_TimeoutReportedExactlyOnce(t *testing.T) {
	for _, timeout := range []time.Duration{10 * time.Millisecond, 30 * time.Millisecond, 80 * time.Millisecond} {
		t.Run(timeout.String(), func(t *testing.T) {
			f := newFixture(t, testutils.NewPeripheralDeviceBuilder().
				WithService(svcUUID).
				WithCharacteristic(statusUUID, "read", []byte{1}, testutils.WithHang()), gateway.Options{ReadTimeout: timeout})

			res, err := f.gw.Read(context.Background(), f.peripheral, f.char(t, statusUUID), 0)
			require.Error(t, err)
			assert.True(t, errors.Is(err, device.ErrTimeout))

			var timeoutErr *device.TimeoutError
			require.ErrorAs(t, err, &timeoutErr)
			assert.Equal(t, device.NormalizeUUID(statusUUID), timeoutErr.UUID)
			assert.Equal(t, device.OpRead, timeoutErr.Op)
			assert.Equal(t, timeout, timeoutErr.Timeout)
			assert.Nil(t, res.Value)

			results := f.results.all()
			require.Len(t, results, 1)
			assert.True(t, results[0].TimedOut())

			events := f.events.Events()
			assert.Equal(t, 1, countContaining(events, "Read timeout on "+statusUUID))
			assert.Equal(t, 0, countContaining(events, "value:"))
		})
	}
}

func TestGateway_LateResultDiscarded(t *testing.T) {
	f := newFixture(t, testutils.NewPeripheralDeviceBuilder().
		WithService(svcUUID).
		WithCharacteristic(statusUUID, "read", []byte{7}, testutils.WithDelay(60*time.Millisecond)), gateway.Options{})

	// The fake honours ctx, so issue against a transport that ignores it
	slow := &ignoringCtx{FakePeripheral: f.peripheral, delay: 60 * time.Millisecond}
	_, err := f.gw.Read(context.Background(), slow, f.char(t, statusUUID), 15*time.Millisecond)
	require.ErrorIs(t, err, device.ErrTimeout)

	time.Sleep(120 * time.Millisecond)
	require.Len(t, f.results.all(), 1)
	assert.Equal(t, 0, countContaining(f.events.Events(), "value:"))
}

type ignoringCtx struct {
	*testutils.FakePeripheral
	delay time.Duration
}

func (p *ignoringCtx) ReadCharacteristic(_ context.Context, _ device.Characteristic) ([]byte, error) {
	time.Sleep(p.delay)
	return []byte{7}, nil
}

func TestGateway_ExecutesInSubmissionOrder(t *testing.T) {
	f := newFixture(t, testutils.NewPeripheralDeviceBuilder().
		WithService(svcUUID).
		WithCharacteristic(statusUUID, "read", []byte{2}, testutils.WithDelay(5*time.Millisecond)).
		WithCharacteristic(sizeUUID, "write", nil).
		WithCharacteristic(cmdUUID, "write", nil, testutils.WithDelay(5*time.Millisecond)), gateway.Options{})

	ctx := context.Background()
	ops := []*gateway.Operation{
		f.gw.Submit(ctx, gateway.Request{Kind: device.OpRead, Peripheral: f.peripheral, Characteristic: f.char(t, statusUUID)}),
		f.gw.Submit(ctx, gateway.Request{Kind: device.OpWrite, Peripheral: f.peripheral, Characteristic: f.char(t, sizeUUID), Payload: []byte{1}}),
		f.gw.Submit(ctx, gateway.Request{Kind: device.OpWrite, Peripheral: f.peripheral, Characteristic: f.char(t, cmdUUID), Payload: []byte{2}}),
		f.gw.Submit(ctx, gateway.Request{Kind: device.OpRead, Peripheral: f.peripheral, Characteristic: f.char(t, statusUUID)}),
	}
	for _, op := range ops {
		_, err := op.Wait(ctx)
		require.NoError(t, err)
	}

	var got []string
	for _, op := range f.peripheral.Ops() {
		got = append(got, string(op.Kind)+":"+op.UUID)
	}
	assert.Equal(t, []string{
		"read:" + device.NormalizeUUID(statusUUID),
		"write:" + device.NormalizeUUID(sizeUUID),
		"write:" + device.NormalizeUUID(cmdUUID),
		"read:" + device.NormalizeUUID(statusUUID),
	}, got)

	var seqs []uint64
	for _, r := range f.results.all() {
		seqs = append(seqs, r.Seq)
	}
	assert.Equal(t, []uint64{ops[0].Seq, ops[1].Seq, ops[2].Seq, ops[3].Seq}, seqs)
}

func TestGateway_TimeoutDoesNotBlockNextOperation(t *testing.T) {
	f := newFixture(t, testutils.NewPeripheralDeviceBuilder().
		WithService(svcUUID).
		WithCharacteristic(sizeUUID, "write", nil, testutils.WithHang()).
		WithCharacteristic(cmdUUID, "write", nil), gateway.Options{WriteTimeout: 20 * time.Millisecond})

	ctx := context.Background()
	first := f.gw.Submit(ctx, gateway.Request{Kind: device.OpWrite, Peripheral: f.peripheral, Characteristic: f.char(t, sizeUUID), Payload: []byte{100, 200, 0, 0}})
	second := f.gw.Submit(ctx, gateway.Request{Kind: device.OpWrite, Peripheral: f.peripheral, Characteristic: f.char(t, cmdUUID), Payload: []byte{1}})

	_, err := first.Wait(ctx)
	assert.ErrorIs(t, err, device.ErrTimeout)
	res, err := second.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Written)
}

func TestGateway_CallerContextCancelsOnlyItsOperation(t *testing.T) {
	f := newFixture(t, testutils.NewPeripheralDeviceBuilder().
		WithService(svcUUID).
		WithCharacteristic(statusUUID, "read", []byte{1}, testutils.WithHang()).
		WithCharacteristic(cmdUUID, "write", nil), gateway.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	first := f.gw.Submit(ctx, gateway.Request{Kind: device.OpRead, Peripheral: f.peripheral, Characteristic: f.char(t, statusUUID)})
	second := f.gw.Submit(context.Background(), gateway.Request{Kind: device.OpWrite, Peripheral: f.peripheral, Characteristic: f.char(t, cmdUUID), Payload: []byte{1}})
	cancel()

	<-first.Done()
	assert.ErrorIs(t, first.Result().Err, context.Canceled)
	assert.False(t, first.Result().TimedOut())

	_, err := second.Wait(context.Background())
	assert.NoError(t, err)
}

func TestGateway_CloseCancelsQueuedOperations(t *testing.T) {
	f := newFixture(t, testutils.NewPeripheralDeviceBuilder().
		WithService(svcUUID).
		WithCharacteristic(statusUUID, "read", []byte{1}, testutils.WithHang()).
		WithCharacteristic(cmdUUID, "write", nil), gateway.Options{ReadTimeout: time.Minute})

	started := f.peripheral.OpStarted()
	ctx := context.Background()
	inFlight := f.gw.Submit(ctx, gateway.Request{Kind: device.OpRead, Peripheral: f.peripheral, Characteristic: f.char(t, statusUUID)})
	queued := f.gw.Submit(ctx, gateway.Request{Kind: device.OpWrite, Peripheral: f.peripheral, Characteristic: f.char(t, cmdUUID), Payload: []byte{1}})

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("read never reached the peripheral")
	}

	f.gw.Close()
	f.gw.Close()

	for _, op := range []*gateway.Operation{inFlight, queued} {
		<-op.Done()
		assert.ErrorIs(t, op.Result().Err, gateway.ErrClosed)
		assert.ErrorIs(t, op.Result().Err, context.Canceled)
		assert.False(t, op.Result().TimedOut())
	}
	assert.Len(t, f.peripheral.Ops(), 1, "queued write must never reach the peripheral")
	assert.Equal(t, 0, f.gw.Pending())

	late := f.gw.Submit(ctx, gateway.Request{Kind: device.OpRead, Peripheral: f.peripheral, Characteristic: f.char(t, statusUUID)})
	<-late.Done()
	assert.ErrorIs(t, late.Result().Err, gateway.ErrClosed)
}

func TestGateway_Defaults(t *testing.T) {
	f := newFixture(t, testutils.NewPeripheralDeviceBuilder().
		WithService(svcUUID).
		WithCharacteristic(statusUUID, "read", []byte{1}).
		WithCharacteristic(sizeUUID, "write", nil), gateway.Options{})

	ctx := context.Background()
	read := f.gw.Submit(ctx, gateway.Request{Kind: device.OpRead, Peripheral: f.peripheral, Characteristic: f.char(t, statusUUID)})
	write := f.gw.Submit(ctx, gateway.Request{Kind: device.OpWrite, Peripheral: f.peripheral, Characteristic: f.char(t, sizeUUID)})
	assert.Equal(t, 2*time.Second, read.Request.Timeout)
	assert.Equal(t, 60*time.Second, write.Request.Timeout)
}

func TestEventLog_Format(t *testing.T) {
	var buf testutils.SyncBuffer
	log := gateway.NewEventLog(&buf, "")
	log.Log("Start read x ...")

	assert.Regexp(t, `^\[\d{2}:\d{2}:\d{2}\.\d{3}\] Start read x \.\.\.\n$`, buf.String())
}

func TestEventFormatter(t *testing.T) {
	entry := &logrus.Entry{
		Time:    time.Date(2024, 1, 2, 10, 11, 12, 345_000_000, time.UTC),
		Message: "Wrote on 00020003",
		Data:    logrus.Fields{"ignored": true},
	}
	out, err := (&gateway.EventFormatter{}).Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "[10:11:12.345] Wrote on 00020003\n", string(out))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "empty", gateway.FormatValue(nil))
	assert.Equal(t, "empty", gateway.FormatValue([]byte{}))
	assert.Equal(t, "0102ff", gateway.FormatValue([]byte{1, 2, 255}))
}
