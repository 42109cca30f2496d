package breakpoints

import (
	"sync"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/solo-io/squash-session/pkg/debuggers"
)

// EngineLine converts a 0-based user line to the engine's 1-based line.
func EngineLine(userLine int) int {
	return userLine + 1
}

type binding struct {
	user   *UserBreakpoint
	engine debuggers.Breakpoint
}

// Binder keeps user breakpoints and the breakpoints installed in the current
// engine in sync. Bindings only live as long as the session they were made in.
//
// Callers holding their own lock may call into the Binder, but the Binder never
// calls back out, so its lock is always taken last. Only the registry's own
// read lock is taken under it.
type Binder struct {
	registry *Registry
	unwatch  func()

	mu       sync.Mutex
	engine   debuggers.Engine
	bindings map[*UserBreakpoint]*binding
	byEngine map[int]*binding
}

// NewBinder starts watching registry for edits. Nothing is bound until Attach.
func NewBinder(registry *Registry) *Binder {
	b := &Binder{
		registry: registry,
		bindings: make(map[*UserBreakpoint]*binding),
		byEngine: make(map[int]*binding),
	}
	b.unwatch = registry.Watch(b)
	return b
}

// Close stops watching the registry and drops any bindings.
func (b *Binder) Close() {
	b.unwatch()
	b.Detach()
}

// Attach binds every enabled user breakpoint to engine. It binds as many as it
// can and returns the failures.
func (b *Binder) Attach(engine debuggers.Engine) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.engine = engine

	var result *multierror.Error
	for _, ub := range b.registry.All() {
		if !ub.Enabled() {
			continue
		}
		if err := b.bindLocked(ub); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Detach discards all bindings of the ending session. The user breakpoints stay
// in the registry and will be bound again by the next Attach.
func (b *Binder) Detach() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ub := range b.bindings {
		ub.setWillBeHit(true)
	}
	b.engine = nil
	b.bindings = make(map[*UserBreakpoint]*binding)
	b.byEngine = make(map[int]*binding)
}

// Bind installs ub in the attached engine.
func (b *Binder) Bind(ub *UserBreakpoint) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bindLocked(ub)
}

func (b *Binder) bindLocked(ub *UserBreakpoint) error {
	if b.engine == nil {
		return nil
	}
	if _, ok := b.bindings[ub]; ok {
		return nil
	}
	// an edit notification can arrive after the breakpoint was removed on another goroutine
	if !b.registry.Contains(ub) {
		log.WithField("breakpoint", ub.String()).Debug("not binding removed breakpoint")
		return nil
	}
	loc := debuggers.Location{File: ub.File(), Line: EngineLine(ub.Line())}
	eb, err := b.engine.AddBreakpoint(loc, ub.Enabled())
	if err != nil {
		return errors.Wrapf(err, "binding breakpoint %v", loc)
	}
	bd := &binding{user: ub, engine: eb}
	b.bindings[ub] = bd
	b.byEngine[eb.ID()] = bd
	b.refreshLocked(bd)

	log.WithFields(log.Fields{"breakpoint": ub.String(), "engineID": eb.ID(), "location": loc.String()}).Debug("breakpoint bound")
	return nil
}

// Unbind removes ub's engine breakpoint, if it has one.
func (b *Binder) Unbind(ub *UserBreakpoint) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unbindLocked(ub)
}

func (b *Binder) unbindLocked(ub *UserBreakpoint) error {
	bd, ok := b.bindings[ub]
	if !ok {
		return nil
	}
	delete(b.bindings, ub)
	delete(b.byEngine, bd.engine.ID())
	if err := b.engine.RemoveBreakpoint(bd.engine); err != nil {
		return errors.Wrapf(err, "removing breakpoint %v", bd.engine.Location())
	}
	log.WithField("breakpoint", ub.String()).Debug("breakpoint unbound")
	return nil
}

// EngineBreakpoint returns the engine breakpoint bound to ub.
func (b *Binder) EngineBreakpoint(ub *UserBreakpoint) (debuggers.Breakpoint, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bd, ok := b.bindings[ub]
	if !ok {
		return nil, false
	}
	return bd.engine, true
}

// Len returns the number of live bindings.
func (b *Binder) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.bindings)
}

// BreakpointChanged handles the engine reporting a resolution change for eb.
func (b *Binder) BreakpointChanged(eb debuggers.Breakpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if eb == nil {
		return
	}
	if bd, ok := b.byEngine[eb.ID()]; ok {
		b.refreshLocked(bd)
	}
}

// ProcessStarted recomputes will-be-hit and snaps every engine breakpoint back
// to its user breakpoint's line, which may have moved while nothing ran.
func (b *Binder) ProcessStarted() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ub, bd := range b.bindings {
		b.refreshLocked(bd)
		want := EngineLine(ub.Line())
		if bd.engine.Location().Line == want {
			continue
		}
		if err := b.engine.RelocateBreakpoint(bd.engine, want); err != nil {
			log.WithFields(log.Fields{"breakpoint": ub.String(), "err": err}).Warn("failed to relocate breakpoint")
		}
	}
}

// ProcessExited recomputes will-be-hit for every binding.
func (b *Binder) ProcessExited() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, bd := range b.bindings {
		b.refreshLocked(bd)
	}
}

// willBeHit is optimistic when there is no process to verify against.
func (b *Binder) refreshLocked(bd *binding) {
	noProcess := b.engine == nil || b.engine.ProcessCount() == 0
	bd.user.setWillBeHit(bd.engine.HadBeenSet() || noProcess)
}

// Registry callbacks.

func (b *Binder) BreakpointAdded(ub *UserBreakpoint) {
	if !ub.Enabled() {
		return
	}
	if err := b.Bind(ub); err != nil {
		log.WithFields(log.Fields{"breakpoint": ub.String(), "err": err}).Warn("failed to bind new breakpoint")
	}
}

func (b *Binder) BreakpointRemoved(ub *UserBreakpoint) {
	if err := b.Unbind(ub); err != nil {
		log.WithFields(log.Fields{"breakpoint": ub.String(), "err": err}).Warn("failed to unbind removed breakpoint")
	}
}

func (b *Binder) BreakpointEnabledChanged(ub *UserBreakpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.engine == nil {
		return
	}
	bd, ok := b.bindings[ub]
	if !ok {
		if ub.Enabled() {
			if err := b.bindLocked(ub); err != nil {
				log.WithFields(log.Fields{"breakpoint": ub.String(), "err": err}).Warn("failed to bind enabled breakpoint")
			}
		}
		return
	}
	if err := b.engine.SetBreakpointEnabled(bd.engine, ub.Enabled()); err != nil {
		log.WithFields(log.Fields{"breakpoint": ub.String(), "err": err}).Warn("failed to propagate enabled state")
	}
}
