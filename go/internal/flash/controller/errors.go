package controller

import (
	"errors"

	"github.com/mcdev12/flashsum/go/internal/flash/fullscreen"
)

var (
	ErrNoActiveSession       = errors.New("no active session")
	ErrRoundNotComplete      = errors.New("round not complete")
	ErrCommandFailed         = errors.New("command failed")
	ErrStartCancelled        = errors.New("start cancelled")
	ErrNotRunning            = errors.New("controller not running")
	ErrFullscreenUnavailable = fullscreen.ErrFullscreenUnavailable
)

// CommandError is a rejected backend command or a transport failure. Its text
// is the backend's message so it can be shown to the user as is.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return e.Err.Error()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func (e *CommandError) Is(target error) bool {
	return target == ErrCommandFailed
}
