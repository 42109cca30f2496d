package dlv

import (
	"strings"

	"github.com/go-delve/delve/service/api"
	"github.com/solo-io/squash-session/pkg/debuggers"
)

// Names delve gives the breakpoints it installs on crashes.
const (
	unrecoveredPanic = "unrecovered-panic"
	fatalThrow       = "runtime-fatal-throw"
)

// exitedState reports whether a command result means the debuggee is gone.
func exitedState(state *api.DebuggerState, err error) bool {
	if state != nil && state.Exited {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "has exited with status")
}

func currentBreakpoint(state *api.DebuggerState) *api.Breakpoint {
	if state == nil || state.CurrentThread == nil {
		return nil
	}
	return state.CurrentThread.Breakpoint
}

func isCrashBreakpoint(bp *api.Breakpoint) bool {
	return bp != nil && (bp.Name == unrecoveredPanic || bp.Name == fatalThrow)
}

// exceptionType names the crash for users.
func exceptionType(bp *api.Breakpoint) string {
	if bp.Name == fatalThrow {
		return "fatal error"
	}
	return "panic"
}

// crashMessageExpr is the expression that holds the crash message in the
// frame delve stops in.
func crashMessageExpr(bp *api.Breakpoint) string {
	if bp.Name == fatalThrow {
		return "s"
	}
	return "msgs.arg"
}

// pauseReason classifies a stop. stepping is true for a stop that ends a step command.
func pauseReason(state *api.DebuggerState, stepping bool) debuggers.PauseReason {
	bp := currentBreakpoint(state)
	switch {
	case isCrashBreakpoint(bp):
		return debuggers.PausedException
	case bp != nil && bp.ID > 0:
		return debuggers.PausedBreakpoint
	case stepping:
		return debuggers.PausedStep
	}
	return debuggers.PausedOther
}

func threadLocation(state *api.DebuggerState) *debuggers.Location {
	if state == nil || state.CurrentThread == nil || state.CurrentThread.File == "" {
		return nil
	}
	return &debuggers.Location{File: state.CurrentThread.File, Line: state.CurrentThread.Line}
}

func functionName(state *api.DebuggerState) string {
	if state == nil || state.CurrentThread == nil || state.CurrentThread.Function == nil {
		return ""
	}
	return state.CurrentThread.Function.Name()
}
