// Package session controls one debug session at a time: it owns the debug
// engine for the lifetime of a run, forwards commands to it, and turns the
// engine's events into session state, breakpoint state and notifications.
package session

import (
	"os/exec"
	"sync"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/solo-io/squash-session/pkg/breakpoints"
	"github.com/solo-io/squash-session/pkg/debuggers"
	"github.com/solo-io/squash-session/pkg/events"
)

type State int

const (
	Idle State = iota
	Running
	Paused
	Terminating
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Terminating:
		return "terminating"
	default:
		return "unknown"
	}
}

// PauseInfo describes why the debuggee is paused.
type PauseInfo struct {
	Reason    debuggers.PauseReason
	Exception *debuggers.ExceptionInfo
}

// SourceLocator shows where the debuggee is stopped.
type SourceLocator interface {
	JumpToCurrentLine(statement debuggers.Segment)
	RemoveCurrentLineMarker()
}

type nopLocator struct{}

func (nopLocator) JumpToCurrentLine(debuggers.Segment) {}
func (nopLocator) RemoveCurrentLineMarker()            {}

type Options struct {
	// NewEngine creates the engine for each session. Required.
	NewEngine debuggers.Factory
	// Registry holds the user's breakpoints. A new one is created when nil.
	Registry *breakpoints.Registry
	// ExceptionPolicy handles unhandled exceptions. Defaults to always break.
	ExceptionPolicy ExceptionPolicy
	Locator         SourceLocator
	// Output receives the debuggee's log messages. Defaults to logrus at info level.
	Output func(message string)
	// Initialize is called once a new session's engine is wired, before launch.
	Initialize func(engine debuggers.Engine)
}

type Controller struct {
	registry   *breakpoints.Registry
	binder     *breakpoints.Binder
	fanout     *events.FanOut
	newEngine  debuggers.Factory
	policy     ExceptionPolicy
	locator    SourceLocator
	output     func(string)
	initialize func(debuggers.Engine)

	mu      sync.Mutex
	state   State
	engine  debuggers.Engine
	started bool
	pause   *PauseInfo
}

func NewController(opts Options) *Controller {
	c := &Controller{
		registry:   opts.Registry,
		fanout:     events.NewFanOut(),
		newEngine:  opts.NewEngine,
		policy:     opts.ExceptionPolicy,
		locator:    opts.Locator,
		output:     opts.Output,
		initialize: opts.Initialize,
	}
	if c.registry == nil {
		c.registry = breakpoints.NewRegistry()
	}
	if c.policy == nil {
		c.policy = FixedPolicy(DecisionBreak)
	}
	if c.locator == nil {
		c.locator = nopLocator{}
	}
	if c.output == nil {
		c.output = func(msg string) { log.WithField("source", "debuggee").Info(msg) }
	}
	c.binder = breakpoints.NewBinder(c.registry)
	return c
}

func (c *Controller) Registry() *breakpoints.Registry {
	return c.registry
}

// Binder exposes the breakpoint bindings of the current session.
func (c *Controller) Binder() *breakpoints.Binder {
	return c.binder
}

// Subscribe attaches h to session notifications and returns a func that detaches it.
func (c *Controller) Subscribe(h events.Handler) func() {
	return c.fanout.Subscribe(h)
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PauseInfo returns why the debuggee is paused, if it is.
func (c *Controller) PauseInfo() (PauseInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pause == nil {
		return PauseInfo{}, false
	}
	return *c.pause, true
}

// IsDebugging reports whether a session has at least one live process.
func (c *Controller) IsDebugging() bool {
	engine := c.currentEngine()
	return engine != nil && engine.ProcessCount() > 0
}

func (c *Controller) IsProcessRunning() bool {
	engine := c.currentEngine()
	return engine != nil && engine.ProcessCount() > 0 && engine.IsRunning()
}

func (c *Controller) currentEngine() debuggers.Engine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine
}

// Start creates a fresh engine, binds the enabled breakpoints and launches command.
func (c *Controller) Start(command, workingDir string, args []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return &AlreadyRunningError{State: c.state}
	}

	engine, err := c.newEngine()
	if err != nil {
		return errors.Wrap(err, "creating debug engine")
	}
	engine.Subscribe(func(ev debuggers.Event) {
		c.handleEvent(engine, ev)
	})
	c.engine = engine
	if c.initialize != nil {
		c.initialize(engine)
	}

	if err := c.binder.Attach(engine); err != nil {
		log.WithField("err", err).Warn("some breakpoints could not be bound")
	}

	log.WithFields(log.Fields{"command": command, "workingDir": workingDir, "args": args}).Info("starting debug session")
	if err := engine.Start(command, workingDir, args); err != nil {
		c.binder.Detach()
		c.engine = nil
		return errors.Wrapf(err, "starting %v", command)
	}
	c.state = Running
	c.pause = nil
	return nil
}

// StartWithoutDebugging launches command as a plain child process.
func (c *Controller) StartWithoutDebugging(command, workingDir string, args []string) error {
	cmd := exec.Command(command, args...)
	cmd.Dir = workingDir
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "starting %v", command)
	}
	log.WithFields(log.Fields{"command": command, "pid": cmd.Process.Pid}).Info("started without debugging")
	// be polite and wait
	go cmd.Wait()
	return nil
}

// Stop asks the engine to terminate the debuggee. The session ends when the
// engine reports the last process exited.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine == nil || c.state == Idle || c.state == Terminating {
		return nil
	}
	prev := c.state
	c.state = Terminating
	if err := c.engine.Terminate(); err != nil {
		c.state = prev
		return errors.Wrap(err, "terminating debuggee")
	}
	return nil
}

// Close stops the session and stops tracking the registry.
func (c *Controller) Close() error {
	err := c.Stop()
	c.binder.Close()
	return err
}

// Break pauses a running debuggee. It does nothing unless the session is running.
func (c *Controller) Break() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Running {
		return nil
	}
	return errors.Wrap(c.engine.Break(), "break")
}

// Continue resumes a paused debuggee. It does nothing unless the session is paused.
func (c *Controller) Continue() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Paused {
		return nil
	}
	return errors.Wrap(c.engine.Continue(), "continue")
}

func (c *Controller) StepInto() error {
	return c.step("step into", debuggers.Engine.StepInto)
}

func (c *Controller) StepOver() error {
	return c.step("step over", debuggers.Engine.StepOver)
}

func (c *Controller) StepOut() error {
	return c.step("step out", debuggers.Engine.StepOut)
}

func (c *Controller) step(op string, do func(debuggers.Engine) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine == nil || c.engine.SelectedFunction() == nil || c.engine.IsRunning() {
		return &NoStepTargetError{Op: op}
	}
	return errors.Wrap(do(c.engine), op)
}

// JumpToCurrentLine points the locator at the next statement, or clears it.
func (c *Controller) JumpToCurrentLine() {
	if engine := c.currentEngine(); engine != nil {
		c.jumpToCurrentLine(engine)
		return
	}
	c.locator.RemoveCurrentLineMarker()
}

func (c *Controller) jumpToCurrentLine(engine debuggers.Engine) {
	next := engine.NextStatement()
	if next == nil {
		c.locator.RemoveCurrentLineMarker()
		return
	}
	c.locator.JumpToCurrentLine(*next)
}

// Engine events.

func (c *Controller) handleEvent(engine debuggers.Engine, ev debuggers.Event) {
	switch ev.Kind {
	case debuggers.EventLogMessage:
		c.output(ev.Message)
		return
	case debuggers.EventTraceMessage:
		log.Debug("Debugger: " + ev.Message)
		return
	}

	c.mu.Lock()
	if engine != c.engine {
		c.mu.Unlock()
		log.WithField("event", ev.Kind).Debug("ignoring event from a finished session")
		return
	}
	if log.IsLevelEnabled(log.TraceLevel) {
		log.Trace(spew.Sdump(ev))
	}

	var after []func()
	switch ev.Kind {
	case debuggers.EventProcessStarted:
		after = c.onProcessStarted(ev)
	case debuggers.EventProcessExited:
		after = c.onProcessExited(ev)
	case debuggers.EventDebuggingPaused:
		after = c.onPaused(ev)
	case debuggers.EventDebuggeeStateChanged:
		after = []func(){func() { c.jumpToCurrentLine(engine) }}
	case debuggers.EventDebuggingResumed:
		after = c.onResumed()
	case debuggers.EventBreakpointChanged:
		c.binder.BreakpointChanged(ev.Breakpoint)
	}
	c.mu.Unlock()

	// notifications and policy decisions run without the lock so they can call back in
	for _, f := range after {
		f()
	}
}

func (c *Controller) onProcessStarted(ev debuggers.Event) []func() {
	log.WithField("pid", ev.Pid).Debug("process started")
	c.binder.ProcessStarted()
	if c.started {
		return nil
	}
	c.started = true
	recordSessionStarted()
	return []func(){c.fanout.SessionStarted}
}

func (c *Controller) onProcessExited(ev debuggers.Event) []func() {
	log.WithFields(log.Fields{"pid": ev.Pid, "exitCode": ev.ExitCode}).Debug("process exited")
	c.binder.ProcessExited()
	if c.engine.ProcessCount() > 0 {
		return nil
	}
	log.Info("debug session ended")
	c.binder.Detach()
	c.engine = nil
	c.state = Idle
	c.started = false
	c.pause = nil
	return []func(){c.fanout.SessionStopped}
}

func (c *Controller) onPaused(ev debuggers.Event) []func() {
	engine := c.engine
	if c.state == Running || c.state == Paused {
		c.state = Paused
	}
	c.pause = &PauseInfo{Reason: ev.Reason, Exception: ev.Exception}
	recordPause(ev.Reason)
	log.WithField("reason", ev.Reason).Debug("debugging paused")

	after := []func(){func() { c.fanout.RunningStateChanged(false) }}
	if ev.Reason != debuggers.PausedException {
		return after
	}

	exc := ev.Exception
	if exc == nil {
		exc = engine.CurrentException()
		c.pause.Exception = exc
	}
	if exc == nil {
		log.Debug("paused on an exception the engine did not describe, resuming as handled")
		return append(after, func() { c.resume(engine, "exception without info") })
	}
	if !exc.Unhandled {
		return append(after, func() { c.resume(engine, "handled exception") })
	}
	return append(after, func() { c.handleUnhandledException(engine, *exc) })
}

func (c *Controller) handleUnhandledException(engine debuggers.Engine, exc debuggers.ExceptionInfo) {
	c.jumpToCurrentLine(engine)
	decision := c.policy.Decide(exc)
	log.WithFields(log.Fields{"exception": exc.Type, "decision": decision}).Info("unhandled exception")

	switch decision {
	case DecisionContinue:
		c.resume(engine, "exception policy")
	case DecisionIgnore:
		c.mu.Lock()
		defer c.mu.Unlock()
		if engine != c.engine {
			return
		}
		if err := engine.InterceptCurrentException(); err != nil {
			log.WithField("err", err).Warn("failed to intercept exception")
		}
	}
}

// resume continues engine if it still belongs to the current session.
func (c *Controller) resume(engine debuggers.Engine, why string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if engine != c.engine {
		return
	}
	if err := engine.Continue(); err != nil {
		log.WithFields(log.Fields{"err": err, "why": why}).Warn("failed to resume debuggee")
	}
}

func (c *Controller) onResumed() []func() {
	engine := c.engine
	if c.state == Paused {
		c.state = Running
	}
	c.pause = nil
	after := []func(){func() { c.fanout.RunningStateChanged(true) }}
	if !engine.IsEvaluating() {
		after = append(after, c.locator.RemoveCurrentLineMarker)
	}
	return after
}
