package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/srg/blxfer/internal/groutine"
	"golang.org/x/term"
)

const (
	progressTick      = 100 * time.Millisecond
	clearLineSequence = "\r\033[K"
)

// connectProgress draws "Connecting to X (Ns)" on a terminal until the session leaves
// the connecting phase. On anything that is not a terminal it draws nothing.
type connectProgress struct {
	out   io.Writer
	label string

	mu      sync.Mutex
	stop    chan struct{}
	stopped chan struct{}
}

func newConnectProgress(out io.Writer, label string) *connectProgress {
	return &connectProgress{out: out, label: label}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Start draws the first frame and refreshes the elapsed time until Stop
func (p *connectProgress) Start() {
	if !isTerminal(p.out) {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		return
	}
	p.stop = make(chan struct{})
	p.stopped = make(chan struct{})
	fmt.Fprintf(p.out, "\r%s ...", p.label)

	started := time.Now()
	groutine.Go(context.Background(), "cli-connect-progress", func(context.Context) {
		defer close(p.stopped)
		ticker := time.NewTicker(progressTick)
		defer ticker.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				p.mu.Lock()
				fmt.Fprintf(p.out, "\r%s (%ds)   ", p.label, int(time.Since(started).Seconds()))
				p.mu.Unlock()
			}
		}
	})
}

// Stop clears the line. Safe to call more than once and without Start.
func (p *connectProgress) Stop() {
	p.mu.Lock()
	stop, stopped := p.stop, p.stopped
	p.stop = nil
	p.mu.Unlock()
	if stop == nil {
		return
	}

	close(stop)
	<-stopped
	fmt.Fprint(p.out, clearLineSequence)
}
