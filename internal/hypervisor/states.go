package hypervisor

import "fmt"

// RunState is a libvirt domain run state (VIR_DOMAIN_* values).
type RunState int32

const (
	StateNoState     RunState = 0
	StateRunning     RunState = 1
	StateBlocked     RunState = 2
	StatePaused      RunState = 3
	StateShutdown    RunState = 4
	StateShutoff     RunState = 5
	StateCrashed     RunState = 6
	StatePMSuspended RunState = 7
)

func (s RunState) String() string {
	switch s {
	case StateNoState:
		return "no state"
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	case StatePaused:
		return "paused"
	case StateShutdown:
		return "shutdown"
	case StateShutoff:
		return "shutoff"
	case StateCrashed:
		return "crashed"
	case StatePMSuspended:
		return "pmsuspended"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Active reports whether the domain consumes host CPU/memory in this
// state.
func (s RunState) Active() bool {
	return s == StateRunning || s == StateBlocked || s == StatePaused
}
