// Package gateway executes timed GATT reads and writes against a connected peripheral.
//
// Operations are submitted without blocking and executed one at a time by a
// single dispatcher goroutine, in the order they were submitted. Each operation
// gets its own deadline, armed when it is handed to the transport. An operation
// that misses its deadline is abandoned: its late transport result is discarded
// and exactly one TimeoutError is reported for it. Completion of every operation
// is delivered from the dispatcher goroutine only.
package gateway

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blxfer/internal/device"
	"github.com/srg/blxfer/internal/groutine"
)

// ErrClosed is reported by operations that were still queued or in flight when the gateway closed.
var ErrClosed = fmt.Errorf("gateway closed: %w", context.Canceled)

// Options configure a Gateway
type Options struct {
	ReadTimeout  time.Duration `default:"2s"`
	WriteTimeout time.Duration `default:"60s"`
	// OnResult, when set, is called once per completed operation from the dispatcher goroutine
	OnResult func(Result)
}

// Request describes one read or write
type Request struct {
	Kind           device.OpKind
	Peripheral     device.Peripheral
	Characteristic device.Characteristic
	Payload        []byte
	Mode           device.WriteMode
	// Timeout overrides the gateway default for this kind of operation when > 0
	Timeout time.Duration
}

// Result is the outcome of one operation
type Result struct {
	Seq     uint64
	Kind    device.OpKind
	UUID    string
	Value   []byte // read value
	Written int    // bytes acknowledged by a write
	Err     error
	Elapsed time.Duration
}

// TimedOut reports whether the operation missed its deadline
func (r Result) TimedOut() bool {
	return errors.Is(r.Err, device.ErrTimeout)
}

// Operation is a submitted request. Its result is available once Done is closed.
type Operation struct {
	Seq     uint64
	Request Request

	ctx    context.Context
	done   chan struct{}
	once   sync.Once
	result Result
}

// Done is closed when the operation completes, whatever the outcome
func (o *Operation) Done() <-chan struct{} {
	return o.done
}

// Result returns the outcome. Only meaningful after Done is closed.
func (o *Operation) Result() Result {
	return o.result
}

// Wait blocks until the operation completes or ctx is done.
// Abandoning the wait does not cancel the operation.
func (o *Operation) Wait(ctx context.Context) (Result, error) {
	select {
	case <-o.done:
		return o.result, o.result.Err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// complete records r and runs notify before Done is closed, exactly once
func (o *Operation) complete(r Result, notify func(Result)) bool {
	completed := false
	o.once.Do(func() {
		o.result = r
		if notify != nil {
			notify(r)
		}
		close(o.done)
		completed = true
	})
	return completed
}

// Gateway serializes timed characteristic operations
type Gateway struct {
	logger *logrus.Logger
	events EventLogger
	opts   Options

	seq     atomic.Uint64
	pending *hashmap.Map[uint64, *Operation]

	mu     sync.Mutex
	queue  []*Operation
	closed bool
	wake   chan struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	stopped   chan struct{}
}

// New creates a Gateway and starts its dispatcher. Zero option values take their defaults.
func New(opts Options, events EventLogger, logger *logrus.Logger) *Gateway {
	if logger == nil {
		logger = logrus.New()
	}
	if events == nil {
		events = nopEventLogger{}
	}

	d := Options{}
	defaults.SetDefaults(&d)
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = d.ReadTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = d.WriteTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		logger:  logger,
		events:  events,
		opts:    opts,
		pending: hashmap.New[uint64, *Operation](),
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}

	groutine.Go(ctx, "gateway-dispatcher", g.dispatch)
	return g
}

// Submit queues req and returns immediately. Operations execute in submission order.
// ctx bounds the operation in addition to its own timeout.
func (g *Gateway) Submit(ctx context.Context, req Request) *Operation {
	op := &Operation{
		Seq:     g.seq.Add(1),
		Request: req,
		ctx:     ctx,
		done:    make(chan struct{}),
	}
	if op.Request.Timeout <= 0 {
		op.Request.Timeout = g.defaultTimeout(req.Kind)
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		op.complete(Result{Seq: op.Seq, Kind: req.Kind, UUID: charUUID(req.Characteristic), Err: ErrClosed}, nil)
		return op
	}
	g.pending.Set(op.Seq, op)
	g.queue = append(g.queue, op)
	g.mu.Unlock()

	g.logger.WithFields(logrus.Fields{
		"op":   req.Kind,
		"uuid": charUUID(req.Characteristic),
		"seq":  op.Seq,
	}).Debug("Operation queued")

	select {
	case g.wake <- struct{}{}:
	default:
	}
	return op
}

// Read reads char and waits for the outcome. A timeout <= 0 selects the configured read timeout.
func (g *Gateway) Read(ctx context.Context, p device.Peripheral, char device.Characteristic, timeout time.Duration) (Result, error) {
	return g.Submit(ctx, Request{
		Kind:           device.OpRead,
		Peripheral:     p,
		Characteristic: char,
		Timeout:        timeout,
	}).Wait(ctx)
}

// Write writes payload to char and waits for the acknowledgement. A timeout <= 0 selects the configured write timeout.
func (g *Gateway) Write(ctx context.Context, p device.Peripheral, char device.Characteristic, payload []byte, mode device.WriteMode, timeout time.Duration) (Result, error) {
	return g.Submit(ctx, Request{
		Kind:           device.OpWrite,
		Peripheral:     p,
		Characteristic: char,
		Payload:        payload,
		Mode:           mode,
		Timeout:        timeout,
	}).Wait(ctx)
}

// Pending returns the number of queued and in-flight operations
func (g *Gateway) Pending() int {
	return g.pending.Len()
}

// Close stops the dispatcher. The in-flight operation and every queued one complete with ErrClosed.
// Safe to call more than once; blocks until the dispatcher has exited.
func (g *Gateway) Close() {
	g.closeOnce.Do(func() {
		g.mu.Lock()
		g.closed = true
		g.mu.Unlock()
		g.cancel()
	})
	<-g.stopped
}

func (g *Gateway) defaultTimeout(kind device.OpKind) time.Duration {
	if kind == device.OpWrite {
		return g.opts.WriteTimeout
	}
	return g.opts.ReadTimeout
}

func (g *Gateway) next() *Operation {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.queue) == 0 {
		return nil
	}
	op := g.queue[0]
	g.queue[0] = nil
	g.queue = g.queue[1:]
	return op
}

func (g *Gateway) dispatch(ctx context.Context) {
	defer close(g.stopped)

	for {
		op := g.next()
		if op == nil {
			select {
			case <-g.wake:
				continue
			case <-ctx.Done():
				g.drain()
				return
			}
		}

		if ctx.Err() != nil {
			g.finish(op, Result{Err: ErrClosed})
			g.drain()
			return
		}
		g.execute(ctx, op)
	}
}

// drain completes everything still queued after Close
func (g *Gateway) drain() {
	for op := g.next(); op != nil; op = g.next() {
		g.finish(op, Result{Err: ErrClosed})
	}
}

type outcome struct {
	value []byte
	err   error
}

func (g *Gateway) execute(parent context.Context, op *Operation) {
	req := op.Request
	uuid := charUUID(req.Characteristic)

	if op.ctx != nil && op.ctx.Err() != nil {
		g.finish(op, Result{Err: op.ctx.Err()})
		return
	}
	if req.Peripheral == nil || req.Characteristic == nil {
		g.finish(op, Result{Err: fmt.Errorf("%s request without peripheral or characteristic", req.Kind)})
		return
	}

	ctx, cancel := context.WithTimeout(parent, req.Timeout)
	defer cancel()
	if op.ctx != nil {
		stop := context.AfterFunc(op.ctx, cancel)
		defer stop()
	}

	g.logStart(req, uuid)
	started := time.Now()

	results := make(chan outcome, 1)
	groutine.Go(ctx, fmt.Sprintf("gateway-%s-%d", req.Kind, op.Seq), func(ctx context.Context) {
		var out outcome
		switch req.Kind {
		case device.OpRead:
			out.value, out.err = req.Peripheral.ReadCharacteristic(ctx, req.Characteristic)
		case device.OpWrite:
			out.err = req.Peripheral.WriteCharacteristic(ctx, req.Characteristic, req.Payload, req.Mode)
		default:
			out.err = fmt.Errorf("unsupported operation %q: %w", req.Kind, device.ErrUnsupported)
		}
		results <- out
	})

	var out outcome
	select {
	case out = <-results:
	case <-ctx.Done():
		out.err = ctx.Err()
	}

	res := Result{Value: out.value, Err: out.err, Elapsed: time.Since(started)}
	switch {
	case parent.Err() != nil:
		res = Result{Err: ErrClosed, Elapsed: res.Elapsed}
	case out.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		res = Result{Err: &device.TimeoutError{UUID: uuid, Op: req.Kind, Timeout: req.Timeout}, Elapsed: res.Elapsed}
	case out.err == nil && req.Kind == device.OpWrite:
		res.Written = len(req.Payload)
	}
	g.finish(op, res)
}

// finish completes op exactly once; the outcome is logged and passed to OnResult before Done closes
func (g *Gateway) finish(op *Operation, res Result) {
	res.Seq = op.Seq
	res.Kind = op.Request.Kind
	res.UUID = charUUID(op.Request.Characteristic)

	op.complete(res, func(res Result) {
		g.pending.Del(op.Seq)
		g.logOutcome(op.Request, res)
		if g.opts.OnResult != nil {
			g.opts.OnResult(res)
		}
	})
}

func (g *Gateway) logStart(req Request, uuid string) {
	display := device.FormatUUID(uuid)
	switch req.Kind {
	case device.OpRead:
		g.events.Log(fmt.Sprintf("Start read %s ...", display))
	case device.OpWrite:
		g.events.Log(fmt.Sprintf("Start write %s (%d bytes) ...", display, len(req.Payload)))
	}
}

func (g *Gateway) logOutcome(req Request, res Result) {
	display := device.FormatUUID(res.UUID)
	fields := logrus.Fields{
		"op":      res.Kind,
		"uuid":    res.UUID,
		"seq":     res.Seq,
		"elapsed": res.Elapsed,
	}

	switch {
	case res.Err == nil && res.Kind == device.OpRead:
		fields["bytes"] = len(res.Value)
		g.logger.WithFields(fields).Debug("Read completed")
		g.events.Log(fmt.Sprintf("Read %s value: %s", display, FormatValue(res.Value)))
	case res.Err == nil:
		fields["bytes"] = res.Written
		g.logger.WithFields(fields).Debug("Write completed")
		g.events.Log(fmt.Sprintf("Wrote on %s", display))
	case res.TimedOut():
		fields["timeout"] = req.Timeout
		g.logger.WithFields(fields).Warn("Operation timed out")
		g.events.Log(fmt.Sprintf("%s timeout on %s", capitalize(res.Kind), display))
	case errors.Is(res.Err, context.Canceled):
		g.logger.WithFields(fields).WithError(res.Err).Debug("Operation cancelled")
		g.events.Log(fmt.Sprintf("%s cancelled on %s", capitalize(res.Kind), display))
	default:
		g.logger.WithFields(fields).WithError(res.Err).Warn("Operation failed")
		g.events.Log(fmt.Sprintf("%s failed on %s: %v", capitalize(res.Kind), display, res.Err))
	}
}

// FormatValue renders a read value as lowercase hex, or "empty"
func FormatValue(v []byte) string {
	if len(v) == 0 {
		return "empty"
	}
	return hex.EncodeToString(v)
}

func capitalize(kind device.OpKind) string {
	switch kind {
	case device.OpRead:
		return "Read"
	case device.OpWrite:
		return "Write"
	}
	return string(kind)
}

func charUUID(c device.Characteristic) string {
	if c == nil {
		return ""
	}
	return device.NormalizeUUID(c.UUID())
}
