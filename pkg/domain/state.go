package domain

// SessionState defines the lifecycle stage of an editor session.
type SessionState string

const (
	StateUninitialized SessionState = "uninitialized"
	StateInitializing  SessionState = "initializing"
	StateReady         SessionState = "ready"
	StateError         SessionState = "error"
	StateDisposed      SessionState = "disposed"
)

// transitions lists, for each state, the states it may move to.
// Dispose is allowed from every non-terminal state so unmounting mid-initialization is legal.
var transitions = map[SessionState][]SessionState{
	StateUninitialized: {StateInitializing, StateDisposed},
	StateInitializing:  {StateReady, StateError, StateDisposed},
	StateReady:         {StateDisposed},
	StateError:         {StateDisposed},
}

// CanTransition reports whether the session state machine allows from → to.
func CanTransition(from, to SessionState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s SessionState) Terminal() bool {
	return s == StateDisposed
}

func (s SessionState) String() string {
	return string(s)
}

// States lists every session state in lifecycle order.
var States = []SessionState{StateUninitialized, StateInitializing, StateReady, StateError, StateDisposed}

// Next returns the states s may move to.
func (s SessionState) Next() []SessionState {
	return append([]SessionState(nil), transitions[s]...)
}
