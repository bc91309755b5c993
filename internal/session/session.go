// Package session owns the lifecycle of one peripheral connection: connect, watch for
// disconnection, discover services and run the file transfer, reporting everything as events.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blxfer/internal/device"
	"github.com/srg/blxfer/internal/filetransfer"
	"github.com/srg/blxfer/internal/gateway"
	"github.com/srg/blxfer/internal/groutine"
	"github.com/srg/blxfer/internal/ringchan"
)

var (
	ErrAlreadyStarted = errors.New("session already started")
	ErrClosed         = errors.New("session closed")
)

// Options configure a Session. Zero values take the defaults from the struct tags.
type Options struct {
	ConnectTimeout time.Duration `default:"30s"`
	ReadTimeout    time.Duration `default:"2s"`
	WriteTimeout   time.Duration `default:"60s"`
	EventBuffer    int           `default:"64"`
	WriteMode      device.WriteMode
	// SkipTransfer stops after service discovery
	SkipTransfer bool
}

// Session drives one connection to one peripheral
type Session struct {
	id      string
	address string
	central device.Central
	opts    Options
	logger  *logrus.Logger
	fields  logrus.Fields

	events *ringchan.RingChannel[Event]
	gw     *gateway.Gateway
	driver *filetransfer.Driver

	mu         sync.Mutex
	state      State
	peripheral device.Peripheral
	services   []device.Service

	ctx       context.Context
	cancel    context.CancelFunc
	group     groutine.Group
	startOnce sync.Once
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// New creates an idle session for address. Per-operation log lines are sent as EventLogged
// events and, when eventLog is not nil, passed to it as well.
func New(address string, central device.Central, opts Options, eventLog gateway.EventLogger, logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.New()
	}
	applyDefaults(&opts)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:      uuid.NewString(),
		address: address,
		central: central,
		opts:    opts,
		logger:  logger,
		events:  ringchan.New[Event](opts.EventBuffer),
		state:   StateIdle,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	s.fields = logrus.Fields{"session": s.id, "address": address}

	s.gw = gateway.New(gateway.Options{
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		OnResult:     s.onResult,
	}, gateway.EventLoggerFunc(func(line string) {
		if eventLog != nil {
			eventLog.Log(line)
		}
		s.emit(Event{Kind: EventLogged, Message: line})
	}), logger)
	s.driver = filetransfer.NewDriver(s.gw, logger, filetransfer.WithWriteMode(opts.WriteMode))
	return s
}

func applyDefaults(opts *Options) {
	d := Options{}
	defaults.SetDefaults(&d)
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = d.ConnectTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = d.ReadTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = d.WriteTimeout
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = d.EventBuffer
	}
}

// ID is the correlation ID carried in every log entry of this session
func (s *Session) ID() string { return s.id }

// Address of the peripheral
func (s *Session) Address() string { return s.address }

// Events streams session events. The channel is closed by Close.
// When the consumer falls behind, the oldest events are dropped.
func (s *Session) Events() <-chan Event { return s.events.C() }

// Done is closed once the session has nothing more to do: the transfer finished or
// was skipped, or connecting or discovery failed.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Services returns the services found by discovery
func (s *Session) Services() []device.Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.services
}

// Start begins connecting. It returns immediately; progress is reported through Events.
// ctx bounds the whole session run.
func (s *Session) Start(ctx context.Context) error {
	if s.ctx.Err() != nil {
		return ErrClosed
	}

	err := ErrAlreadyStarted
	s.startOnce.Do(func() {
		if !s.transition(StateConnecting, nil) {
			return
		}
		err = nil

		runCtx, cancel := context.WithCancel(s.ctx)
		stop := context.AfterFunc(ctx, cancel)
		s.group.Go(runCtx, "session-run", func(ctx context.Context) {
			defer stop()
			defer cancel()
			defer close(s.done)
			s.run(ctx)
		})
	})
	return err
}

func (s *Session) run(ctx context.Context) {
	s.logger.WithFields(s.fields).WithField("timeout", s.opts.ConnectTimeout).Info("Connecting")

	connectCtx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	p, err := s.central.Connect(connectCtx, s.address)
	timedOut := errors.Is(connectCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	cancel()
	if err != nil {
		if timedOut {
			err = &device.TimeoutError{Op: device.OpConnect, Timeout: s.opts.ConnectTimeout}
		}
		var connectErr *device.ConnectError
		if !errors.As(err, &connectErr) {
			err = &device.ConnectError{Address: s.address, Err: err}
		}
		s.logger.WithFields(s.fields).WithError(err).Error("Connection failed")
		s.transition(StateFailed, err)
		return
	}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		_ = p.Disconnect()
		return
	}
	s.peripheral = p
	s.mu.Unlock()

	s.logger.WithFields(s.fields).Info("Connected")
	s.transition(StateConnected, nil)
	s.group.Go(s.ctx, "session-disconnect-monitor", func(ctx context.Context) {
		s.monitor(ctx, p)
	})

	services, err := p.DiscoverServices(ctx, nil)
	if err != nil {
		var discoverErr *device.DiscoverError
		if !errors.As(err, &discoverErr) {
			err = &device.DiscoverError{Address: s.address, Err: err}
		}
		s.logger.WithFields(s.fields).WithError(err).Error("Service discovery failed")
		s.emit(Event{Kind: EventDiscoverFailed, Err: err})
		return
	}

	s.mu.Lock()
	s.services = services
	s.mu.Unlock()
	s.logger.WithFields(s.fields).WithField("services", len(services)).Info("Services discovered")
	s.emit(Event{Kind: EventServicesDiscovered, Services: services})

	if s.opts.SkipTransfer {
		s.emit(Event{Kind: EventTransferSkipped})
		return
	}

	transfer, err := s.driver.Run(ctx, p)
	if err != nil {
		s.emit(Event{Kind: EventTransferSkipped, Err: err})
		return
	}

	results, err := transfer.Wait(ctx)
	if err != nil {
		s.logger.WithFields(s.fields).WithError(err).Debug("Stopped waiting for transfer")
		return
	}
	s.logger.WithFields(s.fields).Info("File transfer script completed")
	s.emit(Event{Kind: EventTransferFinished, Results: results})
}

// monitor reports a link loss. Pending operations keep running against their own timeouts.
func (s *Session) monitor(ctx context.Context, p device.Peripheral) {
	select {
	case <-p.Disconnected():
		if ctx.Err() != nil {
			return
		}
		s.logger.WithFields(s.fields).WithField("pending", s.gw.Pending()).Warn("Peripheral disconnected")
		s.transition(StateDisconnected, nil)
	case <-ctx.Done():
	}
}

func (s *Session) onResult(r gateway.Result) {
	s.emit(Event{Kind: EventOperationCompleted, Result: r})
}

func (s *Session) transition(next State, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.CanTransitionTo(next) {
		s.logger.WithFields(s.fields).WithFields(logrus.Fields{
			"from": s.state,
			"to":   next,
		}).Debug("Ignoring state transition")
		return false
	}
	s.state = next
	s.events.Send(Event{Kind: EventStateChanged, Time: time.Now(), State: next, Err: err})
	return true
}

func (s *Session) emit(ev Event) {
	ev.Time = time.Now()
	if ev.Kind != EventStateChanged {
		ev.State = s.State()
	}
	if dropped := s.events.Send(ev); dropped {
		s.logger.WithFields(s.fields).WithField("kind", ev.Kind).Debug("Event buffer full, dropped oldest")
	}
}

// Close tears the session down: it stops the gateway, disconnects the peripheral and
// joins every goroutine. Safe to call more than once and from any state.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.startOnce.Do(func() { close(s.done) })
		s.gw.Close()

		s.mu.Lock()
		p := s.peripheral
		s.mu.Unlock()
		if p != nil {
			if err := p.Disconnect(); err != nil {
				s.closeErr = fmt.Errorf("disconnect %s: %w", s.address, err)
			}
		}

		s.group.Wait()

		s.mu.Lock()
		if s.state == StateConnected {
			s.state = StateDisconnected
		}
		s.mu.Unlock()

		s.events.Close()
		s.logger.WithFields(s.fields).Debug("Session closed")
	})
	return s.closeErr
}
