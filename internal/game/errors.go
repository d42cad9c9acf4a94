package game

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration       = errors.New("invalid session configuration")
	ErrInvalidTransition   = errors.New("invalid phase transition")
	ErrRoleAlreadyAssigned = errors.New("role already assigned")
	ErrEmptyRoster         = errors.New("roster is empty")
	ErrTurnsNotStarted     = errors.New("turn sequence not started")
	ErrUnknownUnit         = errors.New("unknown unit")
	ErrUnknownOrder        = errors.New("unknown order")

	// ErrActionRejected is the sentinel wrapped by every ActionRejectedError,
	// so callers can match with errors.Is without caring about the reason.
	ErrActionRejected = errors.New("action rejected")
)

// ActionRejectedError reports a player action that failed validation.
// Rejections are recoverable: state is unchanged and the player may retry.
type ActionRejectedError struct {
	Action ActionType
	Reason string
}

func (e *ActionRejectedError) Error() string {
	return fmt.Sprintf("action %s rejected: %s", e.Action, e.Reason)
}

func (e *ActionRejectedError) Unwrap() error { return ErrActionRejected }

func rejected(action ActionType, format string, args ...any) error {
	return &ActionRejectedError{Action: action, Reason: fmt.Sprintf(format, args...)}
}
