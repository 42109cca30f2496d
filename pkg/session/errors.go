package session

import (
	"fmt"

	"github.com/pkg/errors"
)

// AlreadyRunningError is returned by Start when a session is already active.
type AlreadyRunningError struct {
	State State
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("a debug session is already active (state: %v)", e.State)
}

// NoStepTargetError is returned by the step commands when there is no paused
// frame to step from.
type NoStepTargetError struct {
	Op string
}

func (e *NoStepTargetError) Error() string {
	return fmt.Sprintf("%s: you can not step because there is no function selected to be stepped", e.Op)
}

func IsAlreadyRunning(err error) bool {
	_, ok := errors.Cause(err).(*AlreadyRunningError)
	return ok
}

func IsNoStepTarget(err error) bool {
	_, ok := errors.Cause(err).(*NoStepTargetError)
	return ok
}
