package game

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("game state not found")
	ErrInvalidAction = errors.New("invalid action")
	// ErrWaitingForOpponent is the invalid-action case clients special-case.
	ErrWaitingForOpponent = fmt.Errorf("%w: waiting for opponent", ErrInvalidAction)
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidAction}, args...)...)
}
