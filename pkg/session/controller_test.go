package session_test

import (
	"errors"
	"os"
	"sync"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gbytes"
	log "github.com/sirupsen/logrus"
	"github.com/solo-io/squash-session/pkg/breakpoints"
	"github.com/solo-io/squash-session/pkg/debuggers"
	"github.com/solo-io/squash-session/pkg/events"
	"github.com/solo-io/squash-session/pkg/session"
	"github.com/solo-io/squash-session/test/testutils"
)

type recordingLocator struct {
	mu      sync.Mutex
	jumps   []debuggers.Segment
	removes int
}

func (l *recordingLocator) JumpToCurrentLine(s debuggers.Segment) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.jumps = append(l.jumps, s)
}

func (l *recordingLocator) RemoveCurrentLineMarker() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removes++
}

type recordingPolicy struct {
	decision session.ExceptionDecision
	seen     []debuggers.ExceptionInfo
}

func (p *recordingPolicy) Decide(exc debuggers.ExceptionInfo) session.ExceptionDecision {
	p.seen = append(p.seen, exc)
	return p.decision
}

func indexOf(calls []string, name string) int {
	for i, c := range calls {
		if c == name {
			return i
		}
	}
	return -1
}

var _ = Describe("Controller", func() {
	var (
		engine        *testutils.FakeEngine
		created       *[]*testutils.FakeEngine
		registry      *breakpoints.Registry
		locator       *recordingLocator
		policy        *recordingPolicy
		output        []string
		controller    *session.Controller
		notifications []events.Notification
		mainFn        *testutils.FakeFunction
	)

	count := func(kind events.Kind) int {
		n := 0
		for _, note := range notifications {
			if note.Kind == kind {
				n++
			}
		}
		return n
	}

	BeforeEach(func() {
		engine = testutils.NewFakeEngine()
		var factory debuggers.Factory
		factory, created = testutils.FakeEngineFactory(engine)
		registry = breakpoints.NewRegistry()
		locator = &recordingLocator{}
		policy = &recordingPolicy{decision: session.DecisionBreak}
		output = nil
		notifications = nil
		mainFn = &testutils.FakeFunction{FuncName: "main.main"}
		controller = session.NewController(session.Options{
			NewEngine:       factory,
			Registry:        registry,
			ExceptionPolicy: policy,
			Locator:         locator,
			Output:          func(msg string) { output = append(output, msg) },
		})
		controller.Subscribe(func(n events.Notification) {
			notifications = append(notifications, n)
		})
	})

	AfterEach(func() {
		controller.Close()
	})

	Context("starting", func() {
		It("creates an engine, launches and moves to running", func() {
			err := controller.Start("/bin/app", "/work", []string{"-v"})
			Expect(err).NotTo(HaveOccurred())
			Expect(controller.State()).To(Equal(session.Running))
			Expect(*created).To(HaveLen(1))
			Expect(engine.Calls()).To(ContainElement(testutils.Call{Name: "Start", Args: []interface{}{"/bin/app", "/work", []string{"-v"}}}))
		})

		It("binds enabled breakpoints with a 1-based engine line before launching", func() {
			_, err := registry.Add("a.src", 10, true)
			Expect(err).NotTo(HaveOccurred())
			_, err = registry.Add("a.src", 20, false)
			Expect(err).NotTo(HaveOccurred())

			Expect(controller.Start("/bin/app", "", nil)).To(Succeed())

			names := engine.CallNames()
			Expect(indexOf(names, "AddBreakpoint")).To(BeNumerically("<", indexOf(names, "Start")))
			Expect(engine.CountCalls("AddBreakpoint")).To(Equal(1))
			Expect(engine.Breakpoints()[0].Location()).To(Equal(debuggers.Location{File: "a.src", Line: 11}))
			Expect(engine.Breakpoints()[0].Enabled()).To(BeTrue())
		})

		It("fails with AlreadyRunningError and leaves bindings alone", func() {
			registry.Add("a.src", 1, true)
			Expect(controller.Start("/bin/app", "", nil)).To(Succeed())
			Expect(controller.Binder().Len()).To(Equal(1))
			engine.ResetCalls()

			err := controller.Start("/bin/app", "", nil)
			Expect(err).To(BeAssignableToTypeOf(&session.AlreadyRunningError{}))
			Expect(session.IsAlreadyRunning(err)).To(BeTrue())
			Expect(controller.Binder().Len()).To(Equal(1))
			Expect(engine.Calls()).To(BeEmpty())
			Expect(*created).To(HaveLen(1))
		})

		It("stays idle and unbinds when launching fails", func() {
			registry.Add("a.src", 1, true)
			engine.Fail["Start"] = errors.New("no such file")

			err := controller.Start("/bin/missing", "", nil)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("no such file"))
			Expect(controller.State()).To(Equal(session.Idle))
			Expect(controller.Binder().Len()).To(Equal(0))
		})

		It("calls the initialize hook with the new engine before launch", func() {
			var got debuggers.Engine
			factory, _ := testutils.FakeEngineFactory(engine)
			c := session.NewController(session.Options{
				NewEngine:  factory,
				Initialize: func(e debuggers.Engine) { got = e },
			})
			defer c.Close()
			Expect(c.Start("/bin/app", "", nil)).To(Succeed())
			Expect(got).To(BeIdenticalTo(engine))
		})

		It("uses a fresh engine for every session", func() {
			second := testutils.NewFakeEngine()
			factory, made := testutils.FakeEngineFactory(engine, second)
			c := session.NewController(session.Options{NewEngine: factory, Registry: registry})
			defer c.Close()

			Expect(c.Start("/bin/app", "", nil)).To(Succeed())
			engine.EmitProcessStarted(1)
			engine.EmitProcessExited(1)
			Expect(c.State()).To(Equal(session.Idle))

			Expect(c.Start("/bin/app", "", nil)).To(Succeed())
			Expect(*made).To(HaveLen(2))
			Expect(second.CountCalls("Start")).To(Equal(1))
		})
	})

	Context("session lifecycle notifications", func() {
		It("follows a breakpoint from declaration to process exit", func() {
			bp, err := registry.Add("a.src", 10, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(bp.WillBeHit()).To(BeTrue())

			Expect(controller.Start("/bin/app", "", nil)).To(Succeed())
			engine.EmitProcessStarted(100)
			Expect(bp.WillBeHit()).To(BeFalse())

			engine.EmitBreakpointResolved(engine.Breakpoints()[0], true)
			Expect(bp.WillBeHit()).To(BeTrue())
			Expect(count(events.SessionStarted)).To(Equal(1))

			engine.EmitProcessExited(100)
			Expect(count(events.SessionStopped)).To(Equal(1))
			Expect(bp.WillBeHit()).To(BeTrue())
			Expect(controller.State()).To(Equal(session.Idle))
		})

		It("fires SessionStarted once for a multi-process launch", func() {
			Expect(controller.Start("/bin/app", "", nil)).To(Succeed())
			engine.EmitProcessStarted(1)
			engine.EmitProcessStarted(2)
			Expect(count(events.SessionStarted)).To(Equal(1))

			engine.EmitProcessExited(1)
			Expect(count(events.SessionStopped)).To(Equal(0))
			Expect(controller.State()).To(Equal(session.Running))

			engine.EmitProcessExited(2)
			Expect(count(events.SessionStopped)).To(Equal(1))
			Expect(controller.State()).To(Equal(session.Idle))
		})

		It("marks every surviving enabled breakpoint as will-be-hit after exit", func() {
			a, _ := registry.Add("a.src", 1, true)
			b, _ := registry.Add("b.src", 2, true)
			Expect(controller.Start("/bin/app", "", nil)).To(Succeed())
			engine.EmitProcessStarted(1)
			Expect(a.WillBeHit()).To(BeFalse())
			Expect(b.WillBeHit()).To(BeFalse())

			engine.EmitProcessExited(1)
			Expect(a.WillBeHit()).To(BeTrue())
			Expect(b.WillBeHit()).To(BeTrue())
			Expect(controller.Binder().Len()).To(Equal(0))
		})

		It("reports running state changes on pause and resume", func() {
			Expect(controller.Start("/bin/app", "", nil)).To(Succeed())
			engine.EmitProcessStarted(1)
			engine.EmitPaused(debuggers.PausedBreakpoint, mainFn, nil)
			Expect(controller.State()).To(Equal(session.Paused))
			engine.EmitResumed()
			Expect(controller.State()).To(Equal(session.Running))

			Expect(notifications).To(Equal([]events.Notification{
				{Kind: events.SessionStarted},
				{Kind: events.RunningStateChanged, Running: false},
				{Kind: events.RunningStateChanged, Running: true},
			}))
		})

		It("ignores events from an engine whose session already ended", func() {
			second := testutils.NewFakeEngine()
			factory, _ := testutils.FakeEngineFactory(engine, second)
			c := session.NewController(session.Options{NewEngine: factory})
			defer c.Close()

			Expect(c.Start("/bin/app", "", nil)).To(Succeed())
			engine.EmitProcessStarted(1)
			engine.EmitProcessExited(1)
			Expect(c.Start("/bin/app", "", nil)).To(Succeed())
			second.EmitProcessStarted(2)

			engine.EmitPaused(debuggers.PausedBreakpoint, mainFn, nil)
			Expect(c.State()).To(Equal(session.Running))
		})
	})

	Context("stopping", func() {
		It("is a no-op when idle", func() {
			Expect(controller.Stop()).To(Succeed())
			Expect(controller.State()).To(Equal(session.Idle))
		})

		It("terminates once and goes idle when the process exits", func() {
			Expect(controller.Start("/bin/app", "", nil)).To(Succeed())
			engine.EmitProcessStarted(1)

			Expect(controller.Stop()).To(Succeed())
			Expect(controller.Stop()).To(Succeed())
			Expect(engine.CountCalls("Terminate")).To(Equal(1))
			Expect(controller.State()).To(Equal(session.Terminating))

			engine.EmitProcessExited(1)
			Expect(controller.State()).To(Equal(session.Idle))
			Expect(controller.Stop()).To(Succeed())
			Expect(engine.CountCalls("Terminate")).To(Equal(1))
		})

		It("keeps the previous state if termination fails", func() {
			Expect(controller.Start("/bin/app", "", nil)).To(Succeed())
			engine.Fail["Terminate"] = errors.New("boom")
			Expect(controller.Stop()).NotTo(Succeed())
			Expect(controller.State()).To(Equal(session.Running))
		})
	})

	Context("execution control", func() {
		BeforeEach(func() {
			Expect(controller.Start("/bin/app", "", nil)).To(Succeed())
			engine.EmitProcessStarted(1)
			engine.ResetCalls()
		})

		It("breaks only while running", func() {
			Expect(controller.Break()).To(Succeed())
			Expect(engine.CountCalls("Break")).To(Equal(1))

			engine.EmitPaused(debuggers.PausedOther, mainFn, nil)
			Expect(controller.Break()).To(Succeed())
			Expect(engine.CountCalls("Break")).To(Equal(1))
		})

		It("continues only while paused", func() {
			Expect(controller.Continue()).To(Succeed())
			Expect(engine.CountCalls("Continue")).To(Equal(0))

			engine.EmitPaused(debuggers.PausedBreakpoint, mainFn, nil)
			Expect(controller.Continue()).To(Succeed())
			Expect(engine.CountCalls("Continue")).To(Equal(1))
		})

		It("propagates a disable made while paused before continuing", func() {
			bp, err := registry.Add("a.src", 5, true)
			Expect(err).NotTo(HaveOccurred())
			engine.EmitPaused(debuggers.PausedBreakpoint, mainFn, nil)

			Expect(registry.SetEnabled(bp, false)).To(Succeed())
			Expect(controller.Continue()).To(Succeed())

			names := engine.CallNames()
			Expect(indexOf(names, "SetBreakpointEnabled")).To(BeNumerically(">=", 0))
			Expect(indexOf(names, "SetBreakpointEnabled")).To(BeNumerically("<", indexOf(names, "Continue")))
			Expect(engine.Breakpoints()[0].Enabled()).To(BeFalse())
		})

		DescribeTable("stepping",
			func(step func(*session.Controller) error, engineCall string) {
				By("refusing while running")
				err := step(controller)
				Expect(session.IsNoStepTarget(err)).To(BeTrue())

				By("refusing when no function is selected")
				engine.EmitPaused(debuggers.PausedOther, nil, nil)
				err = step(controller)
				Expect(err).To(BeAssignableToTypeOf(&session.NoStepTargetError{}))
				Expect(engine.CountCalls(engineCall)).To(Equal(0))

				By("delegating once when paused in a function")
				engine.EmitPaused(debuggers.PausedBreakpoint, mainFn, nil)
				Expect(step(controller)).To(Succeed())
				Expect(engine.CountCalls(engineCall)).To(Equal(1))
			},
			Entry("into", (*session.Controller).StepInto, "StepInto"),
			Entry("over", (*session.Controller).StepOver, "StepOver"),
			Entry("out", (*session.Controller).StepOut, "StepOut"),
		)

		It("refuses to step with no session", func() {
			c := session.NewController(session.Options{NewEngine: func() (debuggers.Engine, error) { return testutils.NewFakeEngine(), nil }})
			defer c.Close()
			Expect(session.IsNoStepTarget(c.StepOver())).To(BeTrue())
		})
	})

	Context("exceptions", func() {
		BeforeEach(func() {
			Expect(controller.Start("/bin/app", "", nil)).To(Succeed())
			engine.EmitProcessStarted(1)
			engine.ResetCalls()
		})

		It("resumes straight away on a handled exception", func() {
			engine.EmitPaused(debuggers.PausedException, mainFn, &debuggers.ExceptionInfo{Type: "io.EOF", Unhandled: false})
			Expect(engine.CountCalls("Continue")).To(Equal(1))
			Expect(policy.seen).To(BeEmpty())
			Expect(count(events.RunningStateChanged)).To(Equal(1))
		})

		It("stays paused on the exception when the policy says break", func() {
			exc := &debuggers.ExceptionInfo{Type: "panic", Message: "nil map", Unhandled: true}
			engine.EmitPaused(debuggers.PausedException, mainFn, exc)

			Expect(policy.seen).To(Equal([]debuggers.ExceptionInfo{*exc}))
			Expect(controller.State()).To(Equal(session.Paused))
			info, ok := controller.PauseInfo()
			Expect(ok).To(BeTrue())
			Expect(info.Reason).To(Equal(debuggers.PausedException))
			Expect(engine.CountCalls("Continue")).To(Equal(0))
		})

		It("resumes when the policy says continue", func() {
			policy.decision = session.DecisionContinue
			engine.EmitPaused(debuggers.PausedException, mainFn, &debuggers.ExceptionInfo{Type: "panic", Unhandled: true})
			Expect(engine.CountCalls("Continue")).To(Equal(1))
			Expect(engine.CountCalls("InterceptCurrentException")).To(Equal(0))
		})

		It("intercepts once and stays paused when the policy says ignore", func() {
			policy.decision = session.DecisionIgnore
			engine.EmitPaused(debuggers.PausedException, mainFn, &debuggers.ExceptionInfo{Type: "panic", Unhandled: true})
			Expect(engine.CountCalls("InterceptCurrentException")).To(Equal(1))
			Expect(engine.CountCalls("Continue")).To(Equal(0))
			Expect(controller.State()).To(Equal(session.Paused))
		})

		It("asks the engine for the exception when the event carries none", func() {
			engine.Exception = &debuggers.ExceptionInfo{Type: "fatal", Unhandled: true}
			engine.Emit(debuggers.Event{Kind: debuggers.EventDebuggingPaused, Reason: debuggers.PausedException})
			Expect(policy.seen).To(HaveLen(1))
			Expect(policy.seen[0].Type).To(Equal("fatal"))
		})

		It("resumes and says so when no exception info is available at all", func() {
			buf := gbytes.NewBuffer()
			log.SetOutput(buf)
			log.SetLevel(log.DebugLevel)
			defer func() {
				log.SetOutput(os.Stderr)
				log.SetLevel(log.InfoLevel)
			}()

			engine.Emit(debuggers.Event{Kind: debuggers.EventDebuggingPaused, Reason: debuggers.PausedException})
			Expect(policy.seen).To(BeEmpty())
			Expect(engine.CountCalls("Continue")).To(Equal(1))
			Expect(buf).To(gbytes.Say("did not describe"))
		})

		It("jumps to the current line before asking the policy", func() {
			engine.Next = &debuggers.Segment{Start: debuggers.Location{File: "main.go", Line: 7}}
			engine.EmitPaused(debuggers.PausedException, mainFn, &debuggers.ExceptionInfo{Type: "panic", Unhandled: true})
			Expect(locator.jumps).To(HaveLen(1))
			Expect(locator.jumps[0].Start.Line).To(Equal(7))
		})
	})

	Context("source location", func() {
		BeforeEach(func() {
			Expect(controller.Start("/bin/app", "", nil)).To(Succeed())
			engine.EmitProcessStarted(1)
		})

		It("jumps to the next statement on a state change", func() {
			engine.Next = &debuggers.Segment{Start: debuggers.Location{File: "main.go", Line: 12}}
			engine.Emit(debuggers.Event{Kind: debuggers.EventDebuggeeStateChanged})
			Expect(locator.jumps).To(HaveLen(1))
		})

		It("clears the marker when there is no current statement", func() {
			engine.Emit(debuggers.Event{Kind: debuggers.EventDebuggeeStateChanged})
			Expect(locator.removes).To(Equal(1))
		})

		It("clears the marker on resume unless evaluating", func() {
			engine.EmitPaused(debuggers.PausedStep, mainFn, nil)
			engine.SetEvaluating(true)
			engine.EmitResumed()
			Expect(locator.removes).To(Equal(0))

			engine.EmitPaused(debuggers.PausedStep, mainFn, nil)
			engine.SetEvaluating(false)
			engine.EmitResumed()
			Expect(locator.removes).To(Equal(1))
		})
	})

	Context("engine messages", func() {
		It("routes log messages to the output", func() {
			Expect(controller.Start("/bin/app", "", nil)).To(Succeed())
			engine.Emit(debuggers.Event{Kind: debuggers.EventLogMessage, Message: "hello"})
			engine.Emit(debuggers.Event{Kind: debuggers.EventTraceMessage, Message: "internal"})
			Expect(output).To(Equal([]string{"hello"}))
		})
	})

	Context("breakpoints edited during a session", func() {
		BeforeEach(func() {
			Expect(controller.Start("/bin/app", "", nil)).To(Succeed())
			engine.EmitProcessStarted(1)
		})

		It("binds new breakpoints immediately and unbinds removed ones", func() {
			bp, err := registry.Add("c.src", 3, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(controller.Binder().Len()).To(Equal(1))
			Expect(engine.Breakpoints()[0].Location().Line).To(Equal(4))

			Expect(registry.Remove(bp)).To(Succeed())
			Expect(controller.Binder().Len()).To(Equal(0))
			Expect(engine.CountCalls("RemoveBreakpoint")).To(Equal(1))
		})

		It("binds a disabled breakpoint once it is enabled", func() {
			bp, _ := registry.Add("c.src", 3, false)
			Expect(controller.Binder().Len()).To(Equal(0))
			Expect(registry.SetEnabled(bp, true)).To(Succeed())
			Expect(controller.Binder().Len()).To(Equal(1))
		})
	})

	Context("lookups", func() {
		BeforeEach(func() {
			Expect(controller.Start("/bin/app", "", nil)).To(Succeed())
			engine.EmitProcessStarted(1)
			engine.Locals = &testutils.FakeVariables{
				Values: map[string]string{"count": "3"},
				Errors: map[string]error{"broken": errors.New("could not read memory")},
			}
		})

		It("finds variables while paused", func() {
			engine.EmitPaused(debuggers.PausedBreakpoint, mainFn, nil)
			v, ok := controller.GetVariableFromName("count")
			Expect(ok).To(BeTrue())
			Expect(v.Value).To(Equal("3"))
			s, ok := controller.GetValueAsString("count")
			Expect(ok).To(BeTrue())
			Expect(s).To(Equal("3"))
		})

		It("reports not found while running", func() {
			_, ok := controller.GetVariableFromName("count")
			Expect(ok).To(BeFalse())
		})

		It("reports not found for missing and failing lookups", func() {
			engine.EmitPaused(debuggers.PausedBreakpoint, mainFn, nil)
			_, ok := controller.GetVariableFromName("missing")
			Expect(ok).To(BeFalse())
			_, ok = controller.GetValueAsString("broken")
			Expect(ok).To(BeFalse())

			engine.LocalsErr = errors.New("no frame")
			_, ok = controller.GetVariableFromName("count")
			Expect(ok).To(BeFalse())
		})

		It("moves the instruction pointer only where the function allows", func() {
			mainFn.Targets = []debuggers.Location{{File: "main.go", Line: 20}}
			engine.EmitPaused(debuggers.PausedBreakpoint, mainFn, nil)

			Expect(controller.CanSetInstructionPointer("main.go", 20, 0)).To(BeTrue())
			Expect(controller.SetInstructionPointer("main.go", 30, 0)).To(BeFalse())
			Expect(mainFn.Moves).To(BeEmpty())
			Expect(controller.SetInstructionPointer("main.go", 20, 0)).To(BeTrue())
			Expect(mainFn.Moves).To(HaveLen(1))
		})

		It("refuses instruction pointer moves while running", func() {
			mainFn.Targets = []debuggers.Location{{File: "main.go", Line: 20}}
			Expect(controller.CanSetInstructionPointer("main.go", 20, 0)).To(BeFalse())
			Expect(controller.SetInstructionPointer("main.go", 20, 0)).To(BeFalse())
		})
	})

	Context("status queries", func() {
		It("tracks whether a process is being debugged and running", func() {
			Expect(controller.IsDebugging()).To(BeFalse())
			Expect(controller.Start("/bin/app", "", nil)).To(Succeed())
			engine.EmitProcessStarted(1)
			Expect(controller.IsDebugging()).To(BeTrue())
			Expect(controller.IsProcessRunning()).To(BeTrue())
			engine.EmitPaused(debuggers.PausedBreakpoint, mainFn, nil)
			Expect(controller.IsProcessRunning()).To(BeFalse())
		})
	})
})
