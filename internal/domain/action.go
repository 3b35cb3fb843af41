// Package domain action.go models the closed set of vault operations so
// dispatch is exhaustive rather than open string matching.
package domain

import "net/http"

// Action enumerates the operations the vault endpoint accepts.
type Action uint8

const (
	ActionSave Action = iota + 1
	ActionStatus
	ActionTest
	ActionRevoke
)

// ParseAction maps the wire-level action parameter onto the closed Action
// set. An empty value returns ErrMissingAction; an unknown value returns
// ErrInvalidAction.
func ParseAction(s string) (Action, error) {
	switch s {
	case "":
		return 0, ErrMissingAction
	case "save":
		return ActionSave, nil
	case "status":
		return ActionStatus, nil
	case "test":
		return ActionTest, nil
	case "revoke":
		return ActionRevoke, nil
	default:
		return 0, ErrInvalidAction
	}
}

// String returns the wire form of the action.
func (a Action) String() string {
	switch a {
	case ActionSave:
		return "save"
	case ActionStatus:
		return "status"
	case ActionTest:
		return "test"
	case ActionRevoke:
		return "revoke"
	default:
		return "unknown"
	}
}

// Method returns the HTTP method the action must be invoked with.
func (a Action) Method() string {
	switch a {
	case ActionStatus:
		return http.MethodGet
	case ActionRevoke:
		return http.MethodDelete
	default: // save, test
		return http.MethodPost
	}
}
