// Package logging implements the result logging pipeline: a Manager
// fanning out log events to a set of background Loggers, grounded on
// original_source/threedb/result_logging/logger_manager.py and
// base_logger.py. The Python originals run each logger as a separate
// multiprocessing.Process reading off a Queue; here each Logger runs as a
// goroutine reading off a channel, closed (rather than sent a nil
// sentinel) to signal shutdown.
package logging

// Event is one log record: the job descriptor fields plus the result
// buffer slot a Logger implementation reads its tensors from by
// ResultSlot, matching spec.md §4.1/§4.8's "loggers read tensors by
// result_ix from the shared buffer" and the dict PolicyController.render()
// builds before calling logger_manager.log(). Event deliberately does not
// carry the tensors themselves: a Logger reads the slot through the same
// *buffer.Buffer the controller allocated it in, using its own registrant
// id, so the buffer's refcount/backpressure discipline (a slot is not
// recycled until every registrant has read and freed it) governs loggers
// exactly the way it governs the controller, rather than loggers working
// off a private pre-made copy.
type Event struct {
	JobID       string
	Order       int
	Environment string
	Model       string
	RenderArgs  map[string]interface{}
	ResultSlot  int
}

// Logger consumes Events asynchronously. Start begins the consumer
// goroutine; Enqueue posts an event (never blocks the caller for long,
// mirroring Queue.put's effectively-unbounded buffering); Join waits for
// every enqueued event to be processed and any resources (file handles) to
// be released, mirroring BaseLogger.run()'s sentinel-triggered exit plus
// end().
type Logger interface {
	Start()
	Enqueue(Event)
	Close()
	Join()
}

// Manager fans a single log stream out to every registered Logger,
// replacing LoggerManager's loop over self.loggers with the same shape.
type Manager struct {
	loggers []Logger
}

// NewManager returns an empty Manager; loggers are added with Register.
func NewManager() *Manager { return &Manager{} }

// Register adds logger to the set that Log/Start/Close/Join fan out to.
func (m *Manager) Register(logger Logger) { m.loggers = append(m.loggers, logger) }

// Log enqueues event on every registered logger.
func (m *Manager) Log(event Event) {
	for _, l := range m.loggers {
		l.Enqueue(event)
	}
}

// Start starts every registered logger's consumer goroutine.
func (m *Manager) Start() {
	for _, l := range m.loggers {
		l.Start()
	}
}

// Close signals every registered logger that no further events are coming.
func (m *Manager) Close() {
	for _, l := range m.loggers {
		l.Close()
	}
}

// Join waits for every registered logger to finish draining its queue.
func (m *Manager) Join() {
	for _, l := range m.loggers {
		l.Join()
	}
}
