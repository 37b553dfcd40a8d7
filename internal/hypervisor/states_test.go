package hypervisor

import "testing"

func TestRunStateString(t *testing.T) {
	tests := []struct {
		state RunState
		want  string
	}{
		{StateRunning, "running"},
		{StatePaused, "paused"},
		{StateShutoff, "shutoff"},
		{StateCrashed, "crashed"},
		{RunState(42), "unknown(42)"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("RunState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestRunStateActive(t *testing.T) {
	for _, s := range []RunState{StateRunning, StateBlocked, StatePaused} {
		if !s.Active() {
			t.Errorf("%v.Active() = false, want true", s)
		}
	}
	for _, s := range []RunState{StateNoState, StateShutdown, StateShutoff, StateCrashed} {
		if s.Active() {
			t.Errorf("%v.Active() = true, want false", s)
		}
	}
}
