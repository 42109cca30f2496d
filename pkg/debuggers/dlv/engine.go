// Package dlv drives a headless delve server through its rpc2 api and reports
// what happens as engine events.
package dlv

import (
	"context"
	"sync"
	"time"

	"github.com/go-delve/delve/service/api"
	"github.com/go-delve/delve/service/rpc2"
	"github.com/pkg/errors"
	"github.com/solo-io/go-utils/contextutils"
	"github.com/solo-io/squash-session/pkg/debuggers"
)

var ErrInterceptUnsupported = errors.New("delve can not intercept exceptions")

// outputDrainTimeout is how long dlv gets to exit on its own after the debuggee did.
const outputDrainTimeout = 5 * time.Second

type Options struct {
	// DlvPath is the dlv binary. Defaults to "dlv" on the PATH.
	DlvPath string
	// StartTimeout bounds how long to wait for the headless server. Defaults to 10s.
	StartTimeout time.Duration
	// LoadConfig controls how much of a variable is read. Defaults to DefaultLoadConfig.
	LoadConfig *api.LoadConfig
}

var DefaultLoadConfig = api.LoadConfig{
	FollowPointers:     true,
	MaxVariableRecurse: 1,
	MaxStringLen:       64,
	MaxArrayValues:     64,
	MaxStructFields:    -1,
}

// Engine implements debuggers.Engine on top of delve. Commands return as soon
// as delve accepted them; the outcome arrives as events.
type Engine struct {
	ctx    context.Context
	opts   Options
	events *dispatcher

	mu         sync.Mutex
	server     *headlessServer
	client     *rpc2.RPCClient
	state      *api.DebuggerState
	pid        int
	processes  int
	running    bool
	evaluating bool
	exception  *debuggers.ExceptionInfo

	nextBreakpoint int
	breakpoints    map[int]*breakpoint
}

func NewEngine(ctx context.Context, opts Options) *Engine {
	if opts.DlvPath == "" {
		opts.DlvPath = "dlv"
	}
	if opts.StartTimeout == 0 {
		opts.StartTimeout = 10 * time.Second
	}
	if opts.LoadConfig == nil {
		cfg := DefaultLoadConfig
		opts.LoadConfig = &cfg
	}
	return &Engine{
		ctx:         ctx,
		opts:        opts,
		events:      newDispatcher(),
		breakpoints: make(map[int]*breakpoint),
	}
}

// Factory returns a debuggers.Factory making a new Engine per session.
func Factory(ctx context.Context, opts Options) debuggers.Factory {
	return func() (debuggers.Engine, error) {
		return NewEngine(ctx, opts), nil
	}
}

func (e *Engine) Subscribe(handler debuggers.EventHandler) {
	e.events.subscribe(handler)
}

func (e *Engine) Start(path, workingDir string, args []string) error {
	logger := contextutils.LoggerFrom(e.ctx)

	e.mu.Lock()
	if e.server != nil {
		e.mu.Unlock()
		return errors.New("engine already started")
	}
	e.mu.Unlock()

	server, err := startServer(e.ctx, e.opts.DlvPath, path, workingDir, args, e.opts.StartTimeout, e.forwardOutput)
	if err != nil {
		e.events.close()
		return err
	}
	client := rpc2.NewClient(server.addr)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.server = server
	e.client = client
	e.pid = client.ProcessPid()
	e.processes = 1
	logger.Infow("debuggee started", "path", path, "pid", e.pid)

	e.syncBreakpointsLocked()
	e.events.push(debuggers.Event{Kind: debuggers.EventProcessStarted, Pid: e.pid})
	e.continueLocked()
	return nil
}

func (e *Engine) forwardOutput(stderr bool, line string) {
	kind := debuggers.EventLogMessage
	if stderr {
		kind = debuggers.EventTraceMessage
	}
	e.events.push(debuggers.Event{Kind: kind, Message: line})
}

func (e *Engine) Terminate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	if e.running {
		if _, err := e.client.Halt(); err != nil {
			contextutils.LoggerFrom(e.ctx).Debugw("halt before detach failed", "err", err)
		}
	}
	if err := e.client.Detach(true); err != nil {
		contextutils.LoggerFrom(e.ctx).Warnw("detach failed, killing dlv", "err", err)
		if e.server != nil {
			e.server.kill()
		}
	}
	e.exitedLocked(0)
	return nil
}

func (e *Engine) Break() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil || !e.running {
		return nil
	}
	// the pending continue reports the stop
	_, err := e.client.Halt()
	return errors.Wrap(err, "halting debuggee")
}

func (e *Engine) Continue() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil || e.running {
		return nil
	}
	e.continueLocked()
	return nil
}

func (e *Engine) continueLocked() {
	e.resumedLocked()
	ch := e.client.Continue()
	go func() {
		var last *api.DebuggerState
		for state := range ch {
			last = state
		}
		var err error
		if last != nil {
			err = last.Err
		}
		e.stopped(last, err, false)
	}()
}

func (e *Engine) StepInto() error {
	return e.step("step into", (*rpc2.RPCClient).Step)
}

func (e *Engine) StepOver() error {
	return e.step("step over", (*rpc2.RPCClient).Next)
}

func (e *Engine) StepOut() error {
	return e.step("step out", (*rpc2.RPCClient).StepOut)
}

func (e *Engine) step(op string, do func(*rpc2.RPCClient) (*api.DebuggerState, error)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil || e.running {
		return errors.Errorf("%s: debuggee is not stopped", op)
	}
	client := e.client
	e.resumedLocked()
	go func() {
		state, err := do(client)
		e.stopped(state, err, true)
	}()
	return nil
}

func (e *Engine) resumedLocked() {
	e.running = true
	e.exception = nil
	e.events.push(debuggers.Event{Kind: debuggers.EventDebuggingResumed})
}

// stopped handles the end of a continue or a step.
func (e *Engine) stopped(state *api.DebuggerState, err error, stepping bool) {
	logger := contextutils.LoggerFrom(e.ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return
	}
	if exitedState(state, err) || state == nil {
		code := 0
		if state != nil {
			code = state.ExitStatus
		}
		logger.Infow("debuggee exited", "pid", e.pid, "status", code)
		if err := e.client.Detach(true); err != nil {
			logger.Debugw("detach after exit failed", "err", err)
		}
		e.exitedLocked(code)
		return
	}
	if err != nil {
		logger.Warnw("command failed", "err", err)
		if fresh, stateErr := e.client.GetState(); stateErr == nil {
			state = fresh
		}
	}

	e.running = false
	e.state = state
	reason := pauseReason(state, stepping)
	if reason == debuggers.PausedException {
		e.exception = e.exceptionLocked(state)
	}
	e.syncBreakpointsLocked()
	e.events.push(debuggers.Event{Kind: debuggers.EventDebuggingPaused, Reason: reason, Exception: e.exception})
	e.events.push(debuggers.Event{Kind: debuggers.EventDebuggeeStateChanged})
}

func (e *Engine) exitedLocked(code int) {
	if e.processes == 0 {
		return
	}
	e.processes = 0
	e.running = false
	e.state = nil
	e.exception = nil
	e.client = nil
	server := e.server
	for _, bp := range e.breakpoints {
		bp.mu.Lock()
		bp.dlvID = 0
		bp.hadBeenSet = false
		bp.mu.Unlock()
	}
	e.events.push(debuggers.Event{Kind: debuggers.EventProcessExited, Pid: e.pid, ExitCode: code})
	if server == nil {
		e.events.close()
		return
	}
	// keep delivering the debuggee's last output lines until dlv is gone
	go func() {
		select {
		case <-server.done:
		case <-time.After(outputDrainTimeout):
			contextutils.LoggerFrom(e.ctx).Warnw("dlv did not exit, killing it", "addr", server.addr)
			server.kill()
			select {
			case <-server.done:
			case <-time.After(outputDrainTimeout):
			}
		}
		e.events.close()
	}()
}

func (e *Engine) exceptionLocked(state *api.DebuggerState) *debuggers.ExceptionInfo {
	bp := currentBreakpoint(state)
	exc := &debuggers.ExceptionInfo{
		Type:      exceptionType(bp),
		Unhandled: true,
		Location:  threadLocation(state),
	}
	cfg := *e.opts.LoadConfig
	v, err := e.client.EvalVariable(api.EvalScope{GoroutineID: -1}, crashMessageExpr(bp), cfg)
	if err != nil {
		contextutils.LoggerFrom(e.ctx).Debugw("could not read crash message", "err", err)
		return exc
	}
	exc.Message = v.SinglelineString()
	return exc
}

// InterceptCurrentException is not possible with delve: a crash can not be recovered from the outside.
func (e *Engine) InterceptCurrentException() error {
	return ErrInterceptUnsupported
}

func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) IsPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client != nil && !e.running
}

func (e *Engine) IsEvaluating() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.evaluating
}

func (e *Engine) ProcessCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.processes
}

func (e *Engine) SelectedFunction() debuggers.Function {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil || e.running {
		return nil
	}
	name := functionName(e.state)
	if name == "" {
		return nil
	}
	return function(name)
}

func (e *Engine) CurrentException() *debuggers.ExceptionInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exception
}

func (e *Engine) NextStatement() *debuggers.Segment {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}
	loc := threadLocation(e.state)
	if loc == nil {
		return nil
	}
	return &debuggers.Segment{Start: *loc, End: *loc}
}

// function is the frame delve is stopped in. delve can not move the
// instruction pointer, so every target is refused.
type function string

func (f function) Name() string { return string(f) }

func (f function) CanSetIP(file string, line, column int) (debuggers.Segment, bool) {
	return debuggers.Segment{}, false
}

func (f function) SetIP(file string, line, column int) (debuggers.Segment, bool) {
	return debuggers.Segment{}, false
}
