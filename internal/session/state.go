package session

import (
	"fmt"
	"time"

	"github.com/srg/blxfer/internal/device"
	"github.com/srg/blxfer/internal/gateway"
)

// State of a session's connection
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var transitions = map[State][]State{
	StateIdle:       {StateConnecting},
	StateConnecting: {StateConnected, StateFailed},
	StateConnected:  {StateDisconnected},
}

// CanTransitionTo reports whether next is reachable from s in one step
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// EventKind identifies what an Event carries
type EventKind int

const (
	// EventStateChanged carries State, and Err for StateFailed
	EventStateChanged EventKind = iota
	// EventServicesDiscovered carries Services
	EventServicesDiscovered
	// EventDiscoverFailed carries a *device.DiscoverError in Err
	EventDiscoverFailed
	// EventOperationCompleted carries one gateway Result
	EventOperationCompleted
	// EventTransferFinished carries every Result of the script in order
	EventTransferFinished
	// EventTransferSkipped is sent when the script is not run; Err is set when roles did not resolve
	EventTransferSkipped
	// EventLogged carries one operation log line in Message
	EventLogged
)

func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state-changed"
	case EventServicesDiscovered:
		return "services-discovered"
	case EventDiscoverFailed:
		return "discover-failed"
	case EventOperationCompleted:
		return "operation-completed"
	case EventTransferFinished:
		return "transfer-finished"
	case EventTransferSkipped:
		return "transfer-skipped"
	case EventLogged:
		return "logged"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one notification for the UI
type Event struct {
	Kind     EventKind
	Time     time.Time
	State    State
	Services []device.Service
	Result   gateway.Result
	Results  []gateway.Result
	Message  string
	Err      error
}
