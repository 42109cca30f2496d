package debuggers

import "fmt"

/// Location of a statement in the debuggee's source. Lines are 1-based at the engine boundary.
type Location struct {
	File   string
	Line   int
	Column int
}

func (l Location) String() string {
	if l.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

/// Segment is a source range, as reported for the next statement to execute.
type Segment struct {
	Start Location
	End   Location
}

type PauseReason int

const (
	PausedOther PauseReason = iota
	PausedBreakpoint
	PausedStep
	PausedException
)

func (r PauseReason) String() string {
	switch r {
	case PausedBreakpoint:
		return "breakpoint"
	case PausedStep:
		return "step"
	case PausedException:
		return "exception"
	default:
		return "other"
	}
}

/// ExceptionInfo describes the exception the selected thread stopped on.
type ExceptionInfo struct {
	Type      string
	Message   string
	Unhandled bool
	Location  *Location
}

type EventKind int

const (
	EventLogMessage EventKind = iota
	EventTraceMessage
	EventProcessStarted
	EventProcessExited
	EventDebuggingPaused
	EventDebuggeeStateChanged
	EventDebuggingResumed
	EventBreakpointChanged
)

func (k EventKind) String() string {
	switch k {
	case EventLogMessage:
		return "LogMessage"
	case EventTraceMessage:
		return "TraceMessage"
	case EventProcessStarted:
		return "ProcessStarted"
	case EventProcessExited:
		return "ProcessExited"
	case EventDebuggingPaused:
		return "DebuggingPaused"
	case EventDebuggeeStateChanged:
		return "DebuggeeStateChanged"
	case EventDebuggingResumed:
		return "DebuggingResumed"
	case EventBreakpointChanged:
		return "BreakpointChanged"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

/// Event from the debug engine. Only the fields relevant to Kind are set.
/// ProcessStarted always precedes any pause or resume for that process, and
/// ProcessExited is terminal for it.
type Event struct {
	Kind EventKind

	// LogMessage / TraceMessage
	Message string

	// ProcessStarted / ProcessExited
	Pid      int
	ExitCode int

	// DebuggingPaused
	Reason    PauseReason
	Exception *ExceptionInfo

	// BreakpointChanged
	Breakpoint Breakpoint
}

/// EventHandler receives engine events. An engine delivers events for one
/// instance sequentially, never re-entering the handler.
type EventHandler func(Event)

/// Breakpoint is the engine side of a user breakpoint.
type Breakpoint interface {
	ID() int
	Location() Location
	/// HadBeenSet is true once the engine managed to install the breakpoint in the live debuggee.
	HadBeenSet() bool
	Enabled() bool
}

/// Function is the stack frame currently selected in the debuggee.
type Function interface {
	Name() string
	/// CanSetIP reports where execution would continue if the instruction pointer moved to file:line:column.
	CanSetIP(file string, line, column int) (Segment, bool)
	SetIP(file string, line, column int) (Segment, bool)
}

/// Variable as read from the debuggee.
type Variable struct {
	Name  string
	Type  string
	Value string
}

/// Variables is the local variable collection of the selected frame.
type Variables interface {
	Get(name string) (*Variable, error)
}

/// Engine controls a single debuggee. Implement this to add a new debugger backend.
/// Commands are requests: their outcome (pause, exit) arrives later as an Event.
/// Implementations must not deliver events synchronously from inside a command call.
type Engine interface {
	/// Subscribe registers the handler that receives every event of this engine.
	Subscribe(handler EventHandler)

	Start(path, workingDir string, args []string) error
	Terminate() error
	Break() error
	Continue() error
	StepInto() error
	StepOver() error
	StepOut() error

	AddBreakpoint(location Location, enabled bool) (Breakpoint, error)
	RemoveBreakpoint(bp Breakpoint) error
	SetBreakpointEnabled(bp Breakpoint, enabled bool) error
	/// RelocateBreakpoint moves the breakpoint's tracked line, used when source edits shifted it.
	RelocateBreakpoint(bp Breakpoint, line int) error

	/// InterceptCurrentException suppresses the exception the selected thread stopped on.
	InterceptCurrentException() error

	IsRunning() bool
	IsPaused() bool
	IsEvaluating() bool
	ProcessCount() int

	/// SelectedFunction returns nil when no frame is selected.
	SelectedFunction() Function
	/// CurrentException returns nil unless the selected thread stopped on an exception.
	CurrentException() *ExceptionInfo
	/// NextStatement returns nil when there is no current statement.
	NextStatement() *Segment
	/// LocalVariables returns nil when there is no selected frame.
	LocalVariables() (Variables, error)
}

/// Factory creates a fresh engine for each debug session.
type Factory func() (Engine, error)
