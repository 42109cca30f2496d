package dlv

import (
	"sync"

	"github.com/go-delve/delve/service/api"
	"github.com/pkg/errors"
	"github.com/solo-io/go-utils/contextutils"
	"github.com/solo-io/squash-session/pkg/debuggers"
)

// breakpoint is the stable handle handed out by AddBreakpoint. delve has no
// disabled breakpoints, so disabling clears the delve breakpoint and enabling
// creates a new one; the handle keeps its id throughout.
type breakpoint struct {
	id int

	mu         sync.Mutex
	location   debuggers.Location
	enabled    bool
	removed    bool
	hadBeenSet bool
	// moved is set when location changed after delve installed it.
	moved bool
	// dlvID is 0 while nothing is installed in delve.
	dlvID int
}

func (b *breakpoint) ID() int { return b.id }

func (b *breakpoint) Location() debuggers.Location {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.location
}

func (b *breakpoint) HadBeenSet() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hadBeenSet
}

func (b *breakpoint) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled
}

// breakpointClient is the part of the rpc2 client breakpoints need.
type breakpointClient interface {
	CreateBreakpoint(*api.Breakpoint) (*api.Breakpoint, error)
	ClearBreakpoint(id int) (*api.Breakpoint, error)
}

// sync brings delve in line with the handle. It reports whether HadBeenSet changed.
func (b *breakpoint) sync(client breakpointClient) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	want := b.enabled && !b.removed
	before := b.hadBeenSet

	if b.dlvID != 0 && (!want || b.moved) {
		if _, err := client.ClearBreakpoint(b.dlvID); err != nil {
			return false, errors.Wrapf(err, "clearing breakpoint %v", b.location)
		}
		b.dlvID = 0
		b.hadBeenSet = false
	}
	b.moved = false
	if b.dlvID == 0 && want {
		created, err := client.CreateBreakpoint(&api.Breakpoint{File: b.location.File, Line: b.location.Line})
		if err != nil {
			b.hadBeenSet = false
			return before != b.hadBeenSet, errors.Wrapf(err, "creating breakpoint %v", b.location)
		}
		b.dlvID = created.ID
		b.hadBeenSet = true
		b.location.Line = created.Line
	}
	return before != b.hadBeenSet, nil
}

// relocate moves the handle. The next sync reinstalls it at the new line.
func (b *breakpoint) relocate(line int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.location.Line == line {
		return
	}
	b.location.Line = line
	b.moved = b.dlvID != 0
}

// syncBreakpointsLocked pushes every handle to delve. Must hold e.mu and the
// debuggee must be stopped.
func (e *Engine) syncBreakpointsLocked() {
	if e.client == nil || e.running {
		return
	}
	logger := contextutils.LoggerFrom(e.ctx)
	for _, id := range e.breakpointIDsLocked() {
		bp := e.breakpoints[id]
		changed, err := bp.sync(e.client)
		if err != nil {
			logger.Warnw("failed to sync breakpoint", "id", id, "err", err)
		}
		bp.mu.Lock()
		removed := bp.removed
		bp.mu.Unlock()
		if removed && err == nil {
			delete(e.breakpoints, id)
			continue
		}
		if changed {
			e.events.push(debuggers.Event{Kind: debuggers.EventBreakpointChanged, Breakpoint: bp})
		}
	}
}

func (e *Engine) breakpointIDsLocked() []int {
	ids := make([]int, 0, len(e.breakpoints))
	for i := 1; i <= e.nextBreakpoint; i++ {
		if _, ok := e.breakpoints[i]; ok {
			ids = append(ids, i)
		}
	}
	return ids
}

func (e *Engine) AddBreakpoint(location debuggers.Location, enabled bool) (debuggers.Breakpoint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextBreakpoint++
	bp := &breakpoint{id: e.nextBreakpoint, location: location, enabled: enabled}
	e.breakpoints[bp.id] = bp
	e.syncBreakpointsLocked()
	return bp, nil
}

func (e *Engine) handle(bp debuggers.Breakpoint) (*breakpoint, error) {
	if bp == nil {
		return nil, errors.New("nil breakpoint")
	}
	b, ok := e.breakpoints[bp.ID()]
	if !ok {
		return nil, errors.Errorf("unknown breakpoint %d", bp.ID())
	}
	return b, nil
}

func (e *Engine) RemoveBreakpoint(bp debuggers.Breakpoint) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, err := e.handle(bp)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.removed = true
	installed := b.dlvID != 0
	b.mu.Unlock()
	if !installed {
		delete(e.breakpoints, b.id)
		return nil
	}
	e.syncBreakpointsLocked()
	return nil
}

func (e *Engine) SetBreakpointEnabled(bp debuggers.Breakpoint, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, err := e.handle(bp)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.enabled = enabled
	b.mu.Unlock()
	e.syncBreakpointsLocked()
	return nil
}

func (e *Engine) RelocateBreakpoint(bp debuggers.Breakpoint, line int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, err := e.handle(bp)
	if err != nil {
		return err
	}
	b.relocate(line)
	e.syncBreakpointsLocked()
	return nil
}
