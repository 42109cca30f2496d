package breakpoints

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var ErrBreakpointExists = errors.New("breakpoint already exists")
var ErrBreakpointNotFound = errors.New("breakpoint not found")

// UserBreakpoint is a breakpoint as the user declared it. Line is 0-based.
type UserBreakpoint struct {
	file string

	mu        sync.RWMutex
	line      int
	enabled   bool
	willBeHit bool
}

func (b *UserBreakpoint) File() string {
	return b.file
}

func (b *UserBreakpoint) Line() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.line
}

func (b *UserBreakpoint) Enabled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.enabled
}

// WillBeHit reports whether the breakpoint is expected to stop execution.
func (b *UserBreakpoint) WillBeHit() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.willBeHit
}

func (b *UserBreakpoint) setWillBeHit(v bool) {
	b.mu.Lock()
	b.willBeHit = v
	b.mu.Unlock()
}

func (b *UserBreakpoint) String() string {
	return fmt.Sprintf("%s:%d", b.file, b.Line())
}

// Listener is notified of registry edits. Callbacks run on the goroutine that made the edit,
// after the edit is applied and outside the registry lock.
type Listener interface {
	BreakpointAdded(bp *UserBreakpoint)
	BreakpointRemoved(bp *UserBreakpoint)
	BreakpointEnabledChanged(bp *UserBreakpoint)
}

// Registry holds the user's breakpoints. It outlives debug sessions.
type Registry struct {
	mu          sync.RWMutex
	breakpoints []*UserBreakpoint

	listenersMu sync.RWMutex
	nextID      int
	listeners   map[int]Listener
}

func NewRegistry() *Registry {
	return &Registry{
		listeners: make(map[int]Listener),
	}
}

// Watch registers l and returns a func that unregisters it.
func (r *Registry) Watch(l Listener) func() {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	r.nextID++
	id := r.nextID
	r.listeners[id] = l
	return func() {
		r.listenersMu.Lock()
		delete(r.listeners, id)
		r.listenersMu.Unlock()
	}
}

func (r *Registry) snapshotListeners() []Listener {
	r.listenersMu.RLock()
	defer r.listenersMu.RUnlock()
	ids := make([]int, 0, len(r.listeners))
	for id := range r.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	ls := make([]Listener, 0, len(ids))
	for _, id := range ids {
		ls = append(ls, r.listeners[id])
	}
	return ls
}

// Add declares a breakpoint at file:line (0-based line).
func (r *Registry) Add(file string, line int, enabled bool) (*UserBreakpoint, error) {
	r.mu.Lock()
	if r.findLocked(file, line) != nil {
		r.mu.Unlock()
		return nil, errors.Wrapf(ErrBreakpointExists, "%s:%d", file, line)
	}
	bp := &UserBreakpoint{
		file:      file,
		line:      line,
		enabled:   enabled,
		willBeHit: true,
	}
	r.breakpoints = append(r.breakpoints, bp)
	r.mu.Unlock()

	log.WithFields(log.Fields{"file": file, "line": line, "enabled": enabled}).Debug("breakpoint added")
	for _, l := range r.snapshotListeners() {
		l.BreakpointAdded(bp)
	}
	return bp, nil
}

func (r *Registry) Remove(bp *UserBreakpoint) error {
	r.mu.Lock()
	idx := r.indexLocked(bp)
	if idx < 0 {
		r.mu.Unlock()
		return ErrBreakpointNotFound
	}
	r.breakpoints = append(r.breakpoints[:idx], r.breakpoints[idx+1:]...)
	r.mu.Unlock()

	log.WithField("breakpoint", bp.String()).Debug("breakpoint removed")
	for _, l := range r.snapshotListeners() {
		l.BreakpointRemoved(bp)
	}
	return nil
}

func (r *Registry) SetEnabled(bp *UserBreakpoint, enabled bool) error {
	if !r.Contains(bp) {
		return ErrBreakpointNotFound
	}
	bp.mu.Lock()
	changed := bp.enabled != enabled
	bp.enabled = enabled
	bp.mu.Unlock()
	if !changed {
		return nil
	}

	log.WithFields(log.Fields{"breakpoint": bp.String(), "enabled": enabled}).Debug("breakpoint toggled")
	for _, l := range r.snapshotListeners() {
		l.BreakpointEnabledChanged(bp)
	}
	return nil
}

// Move changes the breakpoint's line, as happens when lines are inserted or deleted above it.
// A running engine picks the new line up on the next process start.
// Moving onto a line that already holds a breakpoint fails with ErrBreakpointExists.
func (r *Registry) Move(bp *UserBreakpoint, line int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexLocked(bp) < 0 {
		return ErrBreakpointNotFound
	}
	if other := r.findLocked(bp.file, line); other != nil && other != bp {
		return errors.Wrapf(ErrBreakpointExists, "%s:%d", bp.file, line)
	}
	bp.mu.Lock()
	bp.line = line
	bp.mu.Unlock()
	return nil
}

// Find returns the first breakpoint at file:line (0-based line).
func (r *Registry) Find(file string, line int) (*UserBreakpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bp := r.findLocked(file, line)
	return bp, bp != nil
}

// All returns the breakpoints in declaration order.
func (r *Registry) All() []*UserBreakpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*UserBreakpoint, len(r.breakpoints))
	copy(out, r.breakpoints)
	return out
}

// Contains reports whether bp is still declared.
func (r *Registry) Contains(bp *UserBreakpoint) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.indexLocked(bp) >= 0
}

func (r *Registry) indexLocked(bp *UserBreakpoint) int {
	for i, b := range r.breakpoints {
		if b == bp {
			return i
		}
	}
	return -1
}

func (r *Registry) findLocked(file string, line int) *UserBreakpoint {
	for _, b := range r.breakpoints {
		if b.file == file && b.Line() == line {
			return b
		}
	}
	return nil
}
