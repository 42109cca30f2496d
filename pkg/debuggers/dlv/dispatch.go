package dlv

import (
	"sync"

	"github.com/solo-io/squash-session/pkg/debuggers"
)

// dispatcher delivers events one at a time on its own goroutine. push never
// blocks, so commands can report events while their caller holds a lock that
// the handler needs.
type dispatcher struct {
	mu      sync.Mutex
	handler debuggers.EventHandler
	queue   []debuggers.Event
	closed  bool
	signal  chan struct{}
	stopped chan struct{}
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		signal:  make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) subscribe(h debuggers.EventHandler) {
	d.mu.Lock()
	d.handler = h
	d.mu.Unlock()
}

func (d *dispatcher) push(ev debuggers.Event) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, ev)
	d.mu.Unlock()
	d.wake()
}

// close delivers what is queued and then stops the goroutine.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wake()
}

func (d *dispatcher) wake() {
	select {
	case d.signal <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.stopped)
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		closed := d.closed
		h := d.handler
		d.mu.Unlock()

		for _, ev := range batch {
			if h != nil {
				h(ev)
			}
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-d.signal
	}
}
