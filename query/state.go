package query

type State int

const (
	StateIdle State = iota
	StateValidating
	StateExecuting
	StateSucceeded
	StateFailed
)

var stateNames = [...]string{"idle", "validating", "executing", "succeeded", "failed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether no further transition follows.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// StateHook observes the transitions of one invocation.
type StateHook func(statement string, from, to State)

// invocation tracks the state of one Execute or Call. It has no retry
// transition: a failed invocation stays failed.
type invocation struct {
	statement string
	state     State
	hook      StateHook
}

func (inv *invocation) to(next State) {
	if inv.state.Terminal() {
		return
	}
	prev := inv.state
	inv.state = next
	if inv.hook != nil {
		inv.hook(inv.statement, prev, next)
	}
}
