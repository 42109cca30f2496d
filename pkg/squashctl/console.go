package squashctl

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/solo-io/squash-session/pkg/breakpoints"
	"github.com/solo-io/squash-session/pkg/config"
	"github.com/solo-io/squash-session/pkg/debuggers"
	"github.com/solo-io/squash-session/pkg/events"
	"github.com/solo-io/squash-session/pkg/session"
)

const consoleHelp = `commands:
  c                 continue
  n                 step over
  s                 step into
  o                 step out
  p                 pause
  print <var>       show a local variable
  b <file:line>     add a breakpoint
  d <file:line>     remove a breakpoint
  t <file:line>     toggle a breakpoint
  bl                list breakpoints
  save <file>       write the breakpoints to a yaml file
  q                 stop the debuggee and quit
`

// question is an unhandled exception waiting for the user's decision.
type question struct {
	exception debuggers.ExceptionInfo
	answer    chan session.ExceptionDecision
}

// console reads commands line by line and drives a controller with them. It
// owns the input, so exception prompts are answered through it too.
type console struct {
	ctrl      *session.Controller
	out       io.Writer
	prompt    bool
	questions chan question
	stopped   chan struct{}
	stopOnce  sync.Once
}

func newConsole(out io.Writer, prompt bool) *console {
	return &console{
		out:       out,
		prompt:    prompt,
		questions: make(chan question),
		stopped:   make(chan struct{}),
	}
}

// attach wires the console to ctrl. The console returns once the session stops.
func (c *console) attach(ctrl *session.Controller) {
	c.ctrl = ctrl
	ctrl.Subscribe(func(n events.Notification) {
		switch n.Kind {
		case events.SessionStopped:
			fmt.Fprintln(c.out, "process exited")
			c.stopOnce.Do(func() { close(c.stopped) })
		case events.RunningStateChanged:
			if n.Running {
				return
			}
			if info, ok := ctrl.PauseInfo(); ok && info.Reason != debuggers.PausedException {
				fmt.Fprintf(c.out, "paused (%v)\n", info.Reason)
			}
		}
	})
}

// Decide asks the user through the console. It is the "ask" exception policy.
func (c *console) Decide(exc debuggers.ExceptionInfo) session.ExceptionDecision {
	q := question{exception: exc, answer: make(chan session.ExceptionDecision, 1)}
	select {
	case c.questions <- q:
	case <-c.stopped:
		return session.DecisionBreak
	}
	select {
	case d := <-q.answer:
		return d
	case <-c.stopped:
		return session.DecisionBreak
	}
}

func readLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

func (c *console) showPrompt() {
	if c.prompt {
		fmt.Fprint(c.out, "(squash) ")
	}
}

// run serves commands until quit, end of input or the end of the session.
func (c *console) run(in io.Reader) error {
	lines := readLines(in)
	var pending *question
	c.showPrompt()
	for {
		select {
		case <-c.stopped:
			return nil
		case q := <-c.questions:
			pending = &q
			where := ""
			if q.exception.Location != nil {
				where = " at " + q.exception.Location.String()
			}
			fmt.Fprintf(c.out, "\nunhandled %s%s: %s\nbreak, continue or ignore? ", q.exception.Type, where, q.exception.Message)
		case line, ok := <-lines:
			if !ok {
				return c.ctrl.Stop()
			}
			if pending != nil {
				d, err := session.ParseDecision(line)
				if err != nil {
					fmt.Fprintf(c.out, "%v\nbreak, continue or ignore? ", err)
					continue
				}
				pending.answer <- d
				pending = nil
				c.showPrompt()
				continue
			}
			quit, err := c.execute(line)
			if err != nil {
				fmt.Fprintln(c.out, err)
			}
			if quit {
				return c.ctrl.Stop()
			}
			c.showPrompt()
		}
	}
}

func (c *console) execute(line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := fields[0], fields[1:]
	log.WithFields(log.Fields{"cmd": cmd, "args": args}).Debug("console command")

	switch cmd {
	case "q", "quit":
		return true, nil
	case "h", "help":
		fmt.Fprint(c.out, consoleHelp)
	case "c", "continue":
		return false, c.ctrl.Continue()
	case "n", "next":
		return false, c.ctrl.StepOver()
	case "s", "step":
		return false, c.ctrl.StepInto()
	case "o", "out":
		return false, c.ctrl.StepOut()
	case "p", "pause":
		return false, c.ctrl.Break()
	case "print":
		if len(args) != 1 {
			return false, errors.New("usage: print <var>")
		}
		value, ok := c.ctrl.GetValueAsString(args[0])
		if !ok {
			return false, errors.Errorf("%s not found", args[0])
		}
		fmt.Fprintf(c.out, "%s = %s\n", args[0], value)
	case "b", "d", "t":
		if len(args) != 1 {
			return false, errors.Errorf("usage: %s <file:line>", cmd)
		}
		return false, c.editBreakpoint(cmd, args[0])
	case "bl":
		c.listBreakpoints()
	case "save":
		if len(args) != 1 {
			return false, errors.New("usage: save <file>")
		}
		return false, config.SaveBreakpoints(args[0], c.ctrl.Registry())
	default:
		return false, errors.Errorf("unknown command %q, try help", cmd)
	}
	return false, nil
}

func (c *console) editBreakpoint(cmd, location string) error {
	spec, err := config.ParseBreakpoint(location)
	if err != nil {
		return err
	}
	registry := c.ctrl.Registry()
	line := spec.Line - 1
	if cmd == "b" {
		_, err := registry.Add(spec.File, line, true)
		return err
	}
	bp, ok := registry.Find(spec.File, line)
	if !ok {
		return errors.Wrap(breakpoints.ErrBreakpointNotFound, location)
	}
	if cmd == "d" {
		return registry.Remove(bp)
	}
	return registry.SetEnabled(bp, !bp.Enabled())
}

func (c *console) listBreakpoints() {
	all := c.ctrl.Registry().All()
	if len(all) == 0 {
		fmt.Fprintln(c.out, "no breakpoints")
		return
	}
	for i, bp := range all {
		state := "enabled"
		if !bp.Enabled() {
			state = "disabled"
		}
		hit := ""
		if bp.Enabled() && !bp.WillBeHit() {
			hit = " (will not be hit)"
		}
		fmt.Fprintf(c.out, "%d: %s:%d %s%s\n", i+1, bp.File(), bp.Line()+1, state, hit)
	}
}

// locator prints where the debuggee stopped.
type locator struct {
	out io.Writer
}

func (l locator) JumpToCurrentLine(statement debuggers.Segment) {
	fmt.Fprintf(l.out, "> %v\n", statement.Start)
}

func (l locator) RemoveCurrentLineMarker() {}
