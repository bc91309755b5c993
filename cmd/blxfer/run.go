package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blxfer/internal/device"
	goble "github.com/srg/blxfer/internal/device/go-ble"
	"github.com/srg/blxfer/internal/filetransfer"
	"github.com/srg/blxfer/internal/gateway"
	"github.com/srg/blxfer/internal/session"
	"github.com/srg/blxfer/pkg/config"
)

var (
	disconnectedColor = color.New(color.FgRed, color.Bold)
	connectedColor    = color.New(color.FgGreen)
)

// loadConfig reads --config and applies flag overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	for name, dst := range map[string]*time.Duration{
		"connect-timeout": &cfg.ConnectTimeout,
		"read-timeout":    &cfg.ReadTimeout,
		"write-timeout":   &cfg.WriteTimeout,
	} {
		flag := cmd.Flags().Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		d, err := cmd.Flags().GetDuration(name)
		if err != nil {
			return nil, err
		}
		if d <= 0 {
			return nil, fmt.Errorf("--%s must be positive, got %v", name, d)
		}
		*dst = d
	}
	return cfg, nil
}

// runSession connects to address and renders session events until the session is done.
// Timed out or failed operations are reported in the event log and do not fail the command.
func runSession(cmd *cobra.Command, address string, skipTransfer bool) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := ctx.Err(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	popts := cfg.PeripheralOptions()
	central := goble.NewCentral(&popts, logger)

	opts := cfg.SessionOptions()
	opts.SkipTransfer = skipTransfer
	s := session.New(address, central, opts, nil, logger)
	defer func() {
		if err := s.Close(); err != nil {
			logger.WithError(err).Warn("Session closed with errors")
		}
	}()

	progress := newConnectProgress(out, fmt.Sprintf("Connecting to %s", address))
	progress.Start()
	defer progress.Stop()

	if err := s.Start(ctx); err != nil {
		return err
	}
	eventLog := gateway.NewEventLog(out, cfg.EventTimestampFormat)
	return renderEvents(ctx, s, out, eventLog, logger, progress.Stop)
}

// eventRenderer prints session events to the terminal
type eventRenderer struct {
	s            *session.Session
	out          io.Writer
	eventLog     *gateway.EventLog
	logger       *logrus.Logger
	stopProgress func()
	lost         bool
}

// renderEvents prints events until a terminal one arrives or the session is done. It returns
// a non-nil error only when connecting failed, the link dropped before any outcome, or ctx
// was cancelled.
func renderEvents(ctx context.Context, s *session.Session, out io.Writer, eventLog *gateway.EventLog, logger *logrus.Logger, stopProgress func()) error {
	r := &eventRenderer{s: s, out: out, eventLog: eventLog, logger: logger, stopProgress: stopProgress}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-s.Events():
			if !ok {
				return r.finish()
			}
			if done, err := r.render(ev); done {
				return err
			}

		case <-s.Done():
			// the terminal event may still be buffered
			for {
				select {
				case ev, ok := <-s.Events():
					if !ok {
						return r.finish()
					}
					if done, err := r.render(ev); done {
						return err
					}
				default:
					return r.finish()
				}
			}
		}
	}
}

func (r *eventRenderer) finish() error {
	if r.lost {
		return ErrConnectionLost
	}
	return nil
}

// render prints ev and reports whether it ends the session output
func (r *eventRenderer) render(ev session.Event) (bool, error) {
	switch ev.Kind {
	case session.EventStateChanged:
		switch ev.State {
		case session.StateConnected:
			r.stopProgress()
			connectedColor.Fprintf(r.out, "Connected to %s\n", r.s.Address())
		case session.StateFailed:
			r.stopProgress()
			return true, ev.Err
		case session.StateDisconnected:
			r.lost = true
			disconnectedColor.Fprintln(r.out, "Disconnected!")
		}

	case session.EventServicesDiscovered:
		if err := displayServicesTable(r.out, ev.Services); err != nil {
			return true, err
		}

	case session.EventDiscoverFailed:
		fmt.Fprintf(r.out, "Service discovery failed: %s\n", FormatUserError(ev.Err))
		return true, nil

	case session.EventLogged:
		r.eventLog.LogAt(ev.Time, ev.Message)

	case session.EventOperationCompleted:
		renderStatus(r.out, ev.Result)

	case session.EventTransferSkipped:
		if ev.Err != nil {
			fmt.Fprintf(r.out, "File transfer skipped: %s\n", FormatUserError(ev.Err))
		}
		return true, nil

	case session.EventTransferFinished:
		renderSummary(r.out, ev.Results)
		return true, nil

	default:
		r.logger.WithField("kind", ev.Kind).Debug("Unhandled session event")
	}
	return false, nil
}

// renderStatus decodes successful status reads into the device transfer state
func renderStatus(out io.Writer, r gateway.Result) {
	if r.Err != nil || r.Kind != device.OpRead || r.UUID != device.NormalizeUUID(filetransfer.StatusUUID) {
		return
	}
	state, err := filetransfer.ParseTransferState(r.Value)
	if err != nil {
		fmt.Fprintf(out, "Device state: %v\n", err)
		return
	}
	fmt.Fprintf(out, "Device state: %s\n", state)
}

func renderSummary(out io.Writer, results []gateway.Result) {
	var timedOut, failed int
	for _, r := range results {
		switch {
		case r.Err == nil:
		case r.TimedOut():
			timedOut++
		default:
			failed++
		}
	}
	fmt.Fprintf(out, "Transfer script finished: %d operations, %d timed out, %d failed\n", len(results), timedOut, failed)
}
