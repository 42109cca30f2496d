package testutils

import (
	"fmt"
	"sync"

	"github.com/solo-io/squash-session/pkg/debuggers"
)

// Call is one command the fake engine received.
type Call struct {
	Name string
	Args []interface{}
}

func (c Call) String() string {
	return fmt.Sprintf("%s%v", c.Name, c.Args)
}

type FakeBreakpoint struct {
	id int

	mu         sync.Mutex
	location   debuggers.Location
	hadBeenSet bool
	enabled    bool
}

func (b *FakeBreakpoint) ID() int { return b.id }

func (b *FakeBreakpoint) Location() debuggers.Location {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.location
}

func (b *FakeBreakpoint) HadBeenSet() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hadBeenSet
}

func (b *FakeBreakpoint) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled
}

func (b *FakeBreakpoint) SetHadBeenSet(v bool) {
	b.mu.Lock()
	b.hadBeenSet = v
	b.mu.Unlock()
}

type FakeFunction struct {
	FuncName string
	// Targets lists the locations the instruction pointer may move to.
	Targets []debuggers.Location
	Moves   []debuggers.Location
}

func (f *FakeFunction) Name() string { return f.FuncName }

func (f *FakeFunction) CanSetIP(file string, line, column int) (debuggers.Segment, bool) {
	for _, t := range f.Targets {
		if t.File == file && t.Line == line {
			return debuggers.Segment{Start: t, End: t}, true
		}
	}
	return debuggers.Segment{}, false
}

func (f *FakeFunction) SetIP(file string, line, column int) (debuggers.Segment, bool) {
	seg, ok := f.CanSetIP(file, line, column)
	if ok {
		f.Moves = append(f.Moves, seg.Start)
	}
	return seg, ok
}

// FakeVariables maps names to values. Names present in Errors fail the lookup.
type FakeVariables struct {
	Values map[string]string
	Errors map[string]error
}

func (v *FakeVariables) Get(name string) (*debuggers.Variable, error) {
	if err, ok := v.Errors[name]; ok {
		return nil, err
	}
	val, ok := v.Values[name]
	if !ok {
		return nil, fmt.Errorf("could not find symbol value for %s", name)
	}
	return &debuggers.Variable{Name: name, Value: val}, nil
}

// FakeEngine records every command and lets a test drive events. Commands
// never emit events; tests call the Emit helpers the way an engine's
// dispatcher would.
type FakeEngine struct {
	mu      sync.Mutex
	handler debuggers.EventHandler
	calls   []Call
	nextBP  int
	bps     map[int]*FakeBreakpoint

	running    bool
	paused     bool
	evaluating bool
	processes  int

	Function  debuggers.Function
	Exception *debuggers.ExceptionInfo
	Next      *debuggers.Segment
	Locals    debuggers.Variables
	LocalsErr error

	// Fail makes the named command return the error.
	Fail map[string]error
}

func NewFakeEngine() *FakeEngine {
	return &FakeEngine{
		bps:  make(map[int]*FakeBreakpoint),
		Fail: make(map[string]error),
	}
}

// FakeEngineFactory returns a factory that hands out the given engines in order
// and records them in created.
func FakeEngineFactory(engines ...*FakeEngine) (debuggers.Factory, *[]*FakeEngine) {
	var created []*FakeEngine
	var mu sync.Mutex
	return func() (debuggers.Engine, error) {
		mu.Lock()
		defer mu.Unlock()
		var e *FakeEngine
		if len(created) < len(engines) {
			e = engines[len(created)]
		} else {
			e = NewFakeEngine()
		}
		created = append(created, e)
		return e, nil
	}, &created
}

func (e *FakeEngine) record(name string, args ...interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, Call{Name: name, Args: args})
	return e.Fail[name]
}

// Calls returns the commands received so far.
func (e *FakeEngine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Call, len(e.calls))
	copy(out, e.calls)
	return out
}

// CallNames returns just the names of the commands received so far.
func (e *FakeEngine) CallNames() []string {
	var names []string
	for _, c := range e.Calls() {
		names = append(names, c.Name)
	}
	return names
}

// CountCalls returns how many times the named command was received.
func (e *FakeEngine) CountCalls(name string) int {
	n := 0
	for _, c := range e.Calls() {
		if c.Name == name {
			n++
		}
	}
	return n
}

func (e *FakeEngine) ResetCalls() {
	e.mu.Lock()
	e.calls = nil
	e.mu.Unlock()
}

// Breakpoints returns the live engine breakpoints.
func (e *FakeEngine) Breakpoints() []*FakeBreakpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*FakeBreakpoint
	for i := 1; i <= e.nextBP; i++ {
		if bp, ok := e.bps[i]; ok {
			out = append(out, bp)
		}
	}
	return out
}

func (e *FakeEngine) Subscribe(handler debuggers.EventHandler) {
	e.mu.Lock()
	e.handler = handler
	e.mu.Unlock()
}

func (e *FakeEngine) Start(path, workingDir string, args []string) error {
	return e.record("Start", path, workingDir, args)
}

func (e *FakeEngine) Terminate() error   { return e.record("Terminate") }
func (e *FakeEngine) Break() error       { return e.record("Break") }
func (e *FakeEngine) Continue() error    { return e.record("Continue") }
func (e *FakeEngine) StepInto() error    { return e.record("StepInto") }
func (e *FakeEngine) StepOver() error    { return e.record("StepOver") }
func (e *FakeEngine) StepOut() error     { return e.record("StepOut") }
func (e *FakeEngine) IsEvaluating() bool { e.mu.Lock(); defer e.mu.Unlock(); return e.evaluating }

func (e *FakeEngine) InterceptCurrentException() error {
	return e.record("InterceptCurrentException")
}

func (e *FakeEngine) AddBreakpoint(location debuggers.Location, enabled bool) (debuggers.Breakpoint, error) {
	if err := e.record("AddBreakpoint", location, enabled); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextBP++
	bp := &FakeBreakpoint{id: e.nextBP, location: location, enabled: enabled}
	e.bps[bp.id] = bp
	return bp, nil
}

func (e *FakeEngine) RemoveBreakpoint(bp debuggers.Breakpoint) error {
	if err := e.record("RemoveBreakpoint", bp.ID()); err != nil {
		return err
	}
	e.mu.Lock()
	delete(e.bps, bp.ID())
	e.mu.Unlock()
	return nil
}

func (e *FakeEngine) SetBreakpointEnabled(bp debuggers.Breakpoint, enabled bool) error {
	if err := e.record("SetBreakpointEnabled", bp.ID(), enabled); err != nil {
		return err
	}
	fb := bp.(*FakeBreakpoint)
	fb.mu.Lock()
	fb.enabled = enabled
	fb.mu.Unlock()
	return nil
}

func (e *FakeEngine) RelocateBreakpoint(bp debuggers.Breakpoint, line int) error {
	if err := e.record("RelocateBreakpoint", bp.ID(), line); err != nil {
		return err
	}
	fb := bp.(*FakeBreakpoint)
	fb.mu.Lock()
	fb.location.Line = line
	fb.mu.Unlock()
	return nil
}

func (e *FakeEngine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *FakeEngine) IsPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

func (e *FakeEngine) ProcessCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.processes
}

func (e *FakeEngine) SelectedFunction() debuggers.Function {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Function
}

func (e *FakeEngine) CurrentException() *debuggers.ExceptionInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Exception
}

func (e *FakeEngine) NextStatement() *debuggers.Segment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Next
}

func (e *FakeEngine) LocalVariables() (debuggers.Variables, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Locals, e.LocalsErr
}

func (e *FakeEngine) SetEvaluating(v bool) {
	e.mu.Lock()
	e.evaluating = v
	e.mu.Unlock()
}

// Emit delivers ev to the subscribed handler on the calling goroutine.
func (e *FakeEngine) Emit(ev debuggers.Event) {
	e.mu.Lock()
	h := e.handler
	e.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

func (e *FakeEngine) EmitProcessStarted(pid int) {
	e.mu.Lock()
	e.processes++
	e.running = true
	e.paused = false
	e.mu.Unlock()
	e.Emit(debuggers.Event{Kind: debuggers.EventProcessStarted, Pid: pid})
}

func (e *FakeEngine) EmitProcessExited(pid int) {
	e.mu.Lock()
	if e.processes > 0 {
		e.processes--
	}
	if e.processes == 0 {
		e.running = false
		e.paused = false
		e.Function = nil
	}
	e.mu.Unlock()
	e.Emit(debuggers.Event{Kind: debuggers.EventProcessExited, Pid: pid})
}

// EmitPaused marks the engine paused in fn and delivers DebuggingPaused.
func (e *FakeEngine) EmitPaused(reason debuggers.PauseReason, fn debuggers.Function, exc *debuggers.ExceptionInfo) {
	e.mu.Lock()
	e.running = false
	e.paused = true
	e.Function = fn
	e.Exception = exc
	e.mu.Unlock()
	e.Emit(debuggers.Event{Kind: debuggers.EventDebuggingPaused, Reason: reason, Exception: exc})
}

func (e *FakeEngine) EmitResumed() {
	e.mu.Lock()
	e.running = true
	e.paused = false
	e.Exception = nil
	e.mu.Unlock()
	e.Emit(debuggers.Event{Kind: debuggers.EventDebuggingResumed})
}

// EmitBreakpointResolved sets HadBeenSet on bp and delivers BreakpointChanged.
func (e *FakeEngine) EmitBreakpointResolved(bp *FakeBreakpoint, set bool) {
	bp.SetHadBeenSet(set)
	e.Emit(debuggers.Event{Kind: debuggers.EventBreakpointChanged, Breakpoint: bp})
}
