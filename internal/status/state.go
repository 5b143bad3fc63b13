package status

import "errors"

// State is the lifecycle state of a payment transaction.
type State string

const (
	StateOpen              State = "open"
	StateAuthorized        State = "authorized"
	StatePaid              State = "paid"
	StatePartiallyPaid     State = "partially_paid"
	StateRefunded          State = "refunded"
	StatePartiallyRefunded State = "partially_refunded"
	StateCancelled         State = "cancelled"
	StateFailed            State = "failed"
)

// Transition names a state change triggered by a processor notification or an
// operator action.
type Transition string

const (
	TransitionAuthorize       Transition = "authorize"
	TransitionPay             Transition = "pay"
	TransitionPayPartially    Transition = "pay_partially"
	TransitionRefund          Transition = "refund"
	TransitionRefundPartially Transition = "refund_partially"
	TransitionCancel          Transition = "cancel"
	TransitionFail            Transition = "fail"
	TransitionReopen          Transition = "reopen"
)

var (
	// ErrTransitionRejected is returned when the requested transition is not
	// legal from the transaction's current state.
	ErrTransitionRejected = errors.New("status: transition rejected")
	// ErrUnknownTransition is returned when a transition name is not part of
	// the state machine.
	ErrUnknownTransition = errors.New("status: unknown transition")
)

type rule struct {
	target State
	from   map[State]bool
}

// transitionRules defines, per transition, the legal source states and the
// resulting state. A transition whose target equals the current state is
// still rejected, so repeated notifications do not silently re-apply.
var transitionRules = map[Transition]rule{
	TransitionAuthorize: {
		target: StateAuthorized,
		from:   states(StateOpen),
	},
	TransitionPay: {
		target: StatePaid,
		from:   states(StateOpen, StateAuthorized, StatePartiallyPaid),
	},
	TransitionPayPartially: {
		target: StatePartiallyPaid,
		from:   states(StateOpen, StateAuthorized, StatePartiallyPaid),
	},
	TransitionRefund: {
		target: StateRefunded,
		from:   states(StatePaid, StatePartiallyPaid, StatePartiallyRefunded),
	},
	TransitionRefundPartially: {
		target: StatePartiallyRefunded,
		from:   states(StatePaid, StatePartiallyPaid, StatePartiallyRefunded),
	},
	TransitionCancel: {
		target: StateCancelled,
		from:   states(StateOpen, StateAuthorized),
	},
	TransitionFail: {
		target: StateFailed,
		from:   states(StateOpen, StateAuthorized),
	},
	TransitionReopen: {
		target: StateOpen,
		from:   states(StateCancelled, StateFailed),
	},
}

func states(list ...State) map[State]bool {
	set := make(map[State]bool, len(list))
	for _, s := range list {
		set[s] = true
	}
	return set
}

// CanTransition reports whether applying t from current is legal.
func CanTransition(current State, t Transition) bool {
	r, ok := transitionRules[t]
	if !ok {
		return false
	}
	return r.from[current]
}

// TargetState returns the state t leads to.
func TargetState(t Transition) (State, bool) {
	r, ok := transitionRules[t]
	if !ok {
		return "", false
	}
	return r.target, true
}

// Transitions lists all transitions known to the state machine.
func Transitions() []Transition {
	out := make([]Transition, 0, len(transitionRules))
	for t := range transitionRules {
		out = append(out, t)
	}
	return out
}
