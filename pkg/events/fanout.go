package events

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

type Kind int

const (
	SessionStarted Kind = iota
	SessionStopped
	RunningStateChanged
)

func (k Kind) String() string {
	switch k {
	case SessionStarted:
		return "SessionStarted"
	case SessionStopped:
		return "SessionStopped"
	case RunningStateChanged:
		return "RunningStateChanged"
	default:
		return "unknown"
	}
}

// Notification is what subscribers receive. Running is only meaningful for RunningStateChanged.
type Notification struct {
	Kind    Kind
	Running bool
}

type Handler func(Notification)

type subscription struct {
	id      uint64
	handler Handler
}

// FanOut delivers session notifications to subscribers in subscription order.
// Repeated notifications for the same transition are dropped, and nothing is
// buffered for subscribers that attach later.
type FanOut struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscription

	started bool
	// running is nil until the first RunningStateChanged of a session
	running *bool
}

func NewFanOut() *FanOut {
	return &FanOut{}
}

// Subscribe attaches h and returns a func that detaches it. Calling the func twice is harmless.
func (f *FanOut) Subscribe(h Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.subs = append(f.subs, subscription{id: id, handler: h})
	return func() { f.unsubscribe(id) }
}

func (f *FanOut) unsubscribe(id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.subs {
		if s.id == id {
			f.subs = append(f.subs[:i:i], f.subs[i+1:]...)
			return
		}
	}
}

func (f *FanOut) SessionStarted() {
	f.publish(Notification{Kind: SessionStarted})
}

func (f *FanOut) SessionStopped() {
	f.publish(Notification{Kind: SessionStopped})
}

func (f *FanOut) RunningStateChanged(running bool) {
	f.publish(Notification{Kind: RunningStateChanged, Running: running})
}

func (f *FanOut) publish(n Notification) {
	f.mu.Lock()
	if !f.transition(n) {
		f.mu.Unlock()
		log.WithFields(log.Fields{"kind": n.Kind, "running": n.Running}).Debug("dropping duplicate notification")
		return
	}
	subs := make([]subscription, len(f.subs))
	copy(subs, f.subs)
	f.mu.Unlock()

	for _, s := range subs {
		s.handler(n)
	}
}

// transition records n and reports whether it changes anything. Must hold f.mu.
func (f *FanOut) transition(n Notification) bool {
	switch n.Kind {
	case SessionStarted:
		if f.started {
			return false
		}
		f.started = true
		f.running = nil
	case SessionStopped:
		if !f.started {
			return false
		}
		f.started = false
		f.running = nil
	case RunningStateChanged:
		if f.running != nil && *f.running == n.Running {
			return false
		}
		running := n.Running
		f.running = &running
	}
	return true
}
