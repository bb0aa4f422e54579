package override

import "fmt"

// Action is an operation that may move an override between states.
type Action string

const (
	ActionCreate   Action = "create"
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionActivate Action = "activate"
	ActionRevoke   Action = "revoke"
	ActionComplete Action = "complete"
	ActionExpire   Action = "expire"
	ActionMonitor  Action = "monitor"
	ActionDelete   Action = "delete"
)

// TransitionRule defines an allowed lifecycle transition.
type TransitionRule struct {
	From   Status
	Action Action
	To     Status
}

// DefaultTransitions is the override lifecycle. Anything not listed is an
// invalid transition. Monitoring updates do not change state and are
// allowed from every status, so they are not listed.
var DefaultTransitions = []TransitionRule{
	{From: StatusPending, Action: ActionApprove, To: StatusApproved},
	{From: StatusPending, Action: ActionReject, To: StatusRejected},
	{From: StatusApproved, Action: ActionActivate, To: StatusActive},
	{From: StatusApproved, Action: ActionRevoke, To: StatusRevoked},
	{From: StatusActive, Action: ActionRevoke, To: StatusRevoked},
	{From: StatusActive, Action: ActionComplete, To: StatusCompleted},
	{From: StatusActive, Action: ActionExpire, To: StatusExpired},
}

// undeletable states refuse ActionDelete.
var undeletable = map[Status]bool{
	StatusActive:    true,
	StatusCompleted: true,
}

// terminal states have no outgoing transitions.
var terminal = map[Status]bool{
	StatusRejected:  true,
	StatusExpired:   true,
	StatusRevoked:   true,
	StatusCompleted: true,
}

// Machine validates lifecycle transitions.
type Machine struct {
	transitions []TransitionRule
}

// NewMachine creates a machine with the default rules.
func NewMachine() *Machine {
	return &Machine{transitions: DefaultTransitions}
}

// Next returns the state reached by applying action in from, or a
// TransitionError if the action is not allowed there.
func (m *Machine) Next(from Status, action Action) (Status, error) {
	switch action {
	case ActionMonitor:
		return from, nil
	case ActionDelete:
		if undeletable[from] {
			return from, &TransitionError{
				Code:    CodeDeleteDenied,
				From:    from,
				Action:  action,
				Message: fmt.Sprintf("cannot delete an override in status %s", from),
			}
		}
		return from, nil
	}

	for _, t := range m.transitions {
		if t.From == from && t.Action == action {
			return t.To, nil
		}
	}

	return from, &TransitionError{
		Code:    CodeInvalidTransition,
		From:    from,
		Action:  action,
		Message: fmt.Sprintf("cannot %s an override in status %s", action, from),
	}
}

// AllowedActions returns the state-changing actions valid from the given state.
func (m *Machine) AllowedActions(from Status) []Action {
	var allowed []Action
	for _, t := range m.transitions {
		if t.From == from {
			allowed = append(allowed, t.Action)
		}
	}
	return allowed
}

// IsTerminal reports whether s has no outgoing transitions.
func IsTerminal(s Status) bool { return terminal[s] }
