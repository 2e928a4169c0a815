package logging

import "sync"

// Base implements the Start/Enqueue/Close/Join plumbing shared by every
// Logger, mirroring BaseLogger.run()'s queue-drain loop and its
// sentinel-triggered call to end(). Concrete loggers embed Base and supply
// a handle func for each event plus an end func for final cleanup.
type Base struct {
	queue chan Event
	done  chan struct{}
	once  sync.Once

	handle func(Event)
	end    func()
}

// NewBase wires a Base around handle (called for every enqueued event, in
// order, from the logger's own goroutine) and end (called once after the
// queue is drained and Close has been called).
func NewBase(handle func(Event), end func()) *Base {
	return &Base{
		queue:  make(chan Event, 256),
		done:   make(chan struct{}),
		handle: handle,
		end:    end,
	}
}

func (b *Base) Start() {
	go func() {
		for event := range b.queue {
			b.handle(event)
		}
		if b.end != nil {
			b.end()
		}
		close(b.done)
	}()
}

func (b *Base) Enqueue(event Event) {
	b.queue <- event
}

// Close signals that no further events will be enqueued, the Go analogue of
// BaseLogger.run()'s `if item is None: break` sentinel.
func (b *Base) Close() {
	b.once.Do(func() { close(b.queue) })
}

func (b *Base) Join() {
	<-b.done
}
