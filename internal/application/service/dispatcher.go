package service

import (
	"sync"
)

// dispatcher delivers observer callbacks in FIFO order on its own goroutine.
//
// The queue is unbounded. Enqueue never blocks, and callbacks may call back
// into the service.
type dispatcher struct {
	mu     sync.Mutex
	events []func()
	closed bool
	signal chan struct{} // buffered, size 1
	done   chan struct{}
}

func newDispatcher() *dispatcher {
	return &dispatcher{
		events: make([]func(), 0, 64),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Enqueue schedules fn. Returns false once the dispatcher is closed.
func (d *dispatcher) Enqueue(fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}
	d.events = append(d.events, fn)

	select {
	case d.signal <- struct{}{}:
	default:
	}
	return true
}

// Run delivers events until Close is called and the queue is drained
func (d *dispatcher) Run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		batch := d.events
		d.events = make([]func(), 0, 64)
		closed := d.closed
		d.mu.Unlock()

		for _, fn := range batch {
			fn()
		}
		if closed && len(batch) == 0 {
			return
		}
		if len(batch) == 0 {
			<-d.signal
		}
	}
}

// Close stops accepting events. Pending events are still delivered.
func (d *dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		select {
		case d.signal <- struct{}{}:
		default:
		}
	}
	d.mu.Unlock()
}

// Wait blocks until Run has returned
func (d *dispatcher) Wait() {
	<-d.done
}
