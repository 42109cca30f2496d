package session

import (
	"fmt"
	"strings"

	"github.com/solo-io/squash-session/pkg/debuggers"
)

// ExceptionDecision is what to do after the debuggee stopped on an unhandled exception.
type ExceptionDecision int

const (
	// DecisionBreak leaves the session paused on the exception.
	DecisionBreak ExceptionDecision = iota
	// DecisionContinue resumes the debuggee.
	DecisionContinue
	// DecisionIgnore intercepts the exception and stays paused.
	DecisionIgnore
)

func (d ExceptionDecision) String() string {
	switch d {
	case DecisionBreak:
		return "break"
	case DecisionContinue:
		return "continue"
	case DecisionIgnore:
		return "ignore"
	default:
		return fmt.Sprintf("ExceptionDecision(%d)", int(d))
	}
}

func ParseDecision(s string) (ExceptionDecision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "break":
		return DecisionBreak, nil
	case "continue":
		return DecisionContinue, nil
	case "ignore":
		return DecisionIgnore, nil
	}
	return DecisionBreak, fmt.Errorf("unknown exception decision %q (expected break, continue or ignore)", s)
}

// ExceptionPolicy decides how an unhandled exception pause is handled. Decide
// may block, e.g. to ask the user; the controller does not hold its lock meanwhile.
type ExceptionPolicy interface {
	Decide(exception debuggers.ExceptionInfo) ExceptionDecision
}

type PolicyFunc func(exception debuggers.ExceptionInfo) ExceptionDecision

func (f PolicyFunc) Decide(exception debuggers.ExceptionInfo) ExceptionDecision {
	return f(exception)
}

// FixedPolicy always returns d.
func FixedPolicy(d ExceptionDecision) ExceptionPolicy {
	return PolicyFunc(func(debuggers.ExceptionInfo) ExceptionDecision { return d })
}
