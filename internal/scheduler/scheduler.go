// Package scheduler implements the master-side event loop: a single
// goroutine handling one request at a time over a REP socket, matching
// original_source/threedb/scheduling/base_scheduler.py's Scheduler and its
// single-threaded schedule_work() loop almost verbatim (Go gains nothing
// from parallelizing this loop, since it owns the one REP socket and must
// reply to each request before the client sends its next one anyway).
package scheduler

import (
	"fmt"
	"sort"
	"time"

	"github.com/luxfi/log"

	"github.com/three-db/threedb/internal/buffer"
	"github.com/three-db/threedb/internal/controller"
	"github.com/three-db/threedb/internal/logging"
	"github.com/three-db/threedb/internal/logx"
	"github.com/three-db/threedb/internal/metrics"
	"github.com/three-db/threedb/internal/tensor"
	"github.com/three-db/threedb/internal/wire"
)

// workEntry tracks one outstanding job the way base_scheduler.py's
// `work_queue` dict does: which controller owns it, how many times it has
// been sent to a worker, and when it was first scheduled, all of which feed
// the custom_order sort in handlePull.
type workEntry struct {
	ctrl          *controller.Controller
	job           *wire.Job
	numScheduled  int
	timeScheduled time.Time
}

// Info is the static experiment-wide bundle sent in reply to an `info`
// request, matching Scheduler.send_info's payload.
type Info struct {
	RenderArgs     map[string]interface{}
	InferenceArgs  map[string]interface{}
	ControlsArgs   map[string]map[string]interface{}
	EvaluationArgs map[string]interface{}
}

// Scheduler is the master's request handler. Exactly one goroutine should
// call Run.
type Scheduler struct {
	conn               transport
	maxRunningPolicies int
	envs, models       []string
	info               Info

	buf    *buffer.Buffer
	logMgr *logging.Manager
	log    log.Logger

	linkedWorkers map[string]struct{}

	pool       []*controller.Controller // not yet started
	running    map[*controller.Controller]struct{}
	numPolicies int
	donePolicies int

	workQueue map[string]*workEntry

	declared bool // Scheduler.running in the Python original: has `decl` happened

	totalRenders, validRenders int
}

// transport is the subset of *wire.Conn the scheduler's event loop needs;
// factored out so tests can drive the loop against a fake transport instead
// of a real ZeroMQ socket pair.
type transport interface {
	Recv() (*wire.Envelope, error)
	Reply(*wire.Envelope) error
}

// New binds a REP socket on port and returns a Scheduler ready for Run.
func New(port, maxRunningPolicies int, envs, models []string, info Info, controllers []*controller.Controller, buf *buffer.Buffer, logMgr *logging.Manager) (*Scheduler, error) {
	conn, err := wire.Listen(port)
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	return newWithTransport(conn, maxRunningPolicies, envs, models, info, controllers, buf, logMgr), nil
}

func newWithTransport(conn transport, maxRunningPolicies int, envs, models []string, info Info, controllers []*controller.Controller, buf *buffer.Buffer, logMgr *logging.Manager) *Scheduler {
	metrics.BufferCapacity.Set(float64(buf.Capacity()))
	return &Scheduler{
		conn:               conn,
		maxRunningPolicies: maxRunningPolicies,
		envs:               envs,
		models:             models,
		info:               info,
		buf:                buf,
		logMgr:             logMgr,
		log:                logx.New(logx.Scheduler),
		linkedWorkers:      map[string]struct{}{},
		pool:               controllers,
		running:            map[*controller.Controller]struct{}{},
		numPolicies:        len(controllers),
		workQueue:          map[string]*workEntry{},
	}
}

// Run drives the scheduler's event loop until every policy controller has
// completed, then shuts down, matching schedule_work()'s `while True` loop
// and its break condition `len(done_policies) == num_policies`.
func (s *Scheduler) Run() error {
	for len(s.running) > 0 || s.donePolicies < s.numPolicies {
		if err := s.handleOne(); err != nil {
			return err
		}
		s.reapFinishedControllers()
		s.reportProgress()
	}
	s.log.Info("received all results, shutting down workers")
	return s.shutdown()
}

// handleOne serves exactly one request. Only a failure of the transport
// itself (Recv/Reply) is returned to the caller and propagates out of Run:
// a request that is merely invalid or out of order for this scheduler's
// current state (a pull or push arriving before any decl, a schema mismatch) is this
// one worker's fault and is answered with a KindError reply instead of
// tearing down the whole process, per spec.md §7 ("violation is fatal to
// the offender, not the master").
func (s *Scheduler) handleOne() error {
	env, err := s.conn.Recv()
	if err != nil {
		return fmt.Errorf("scheduler: recv: %w", err)
	}
	s.linkedWorkers[env.WorkerID] = struct{}{}
	metrics.WorkersLinked.Set(float64(len(s.linkedWorkers)))

	if !s.declared && env.Kind != wire.KindInfo && env.Kind != wire.KindDecl {
		return s.dropWorker(env, fmt.Errorf("first message was %q, not info/decl: possible race condition", env.Kind))
	}
	if s.declared {
		s.pullFromRunningControllers()
		s.maybeStartPolicy()
	}

	var dispatchErr error
	switch env.Kind {
	case wire.KindInfo:
		dispatchErr = s.sendInfo()
	case wire.KindDecl:
		dispatchErr = s.start(env.DeclaredOutputs)
	case wire.KindPull:
		dispatchErr = s.handlePull(env)
	case wire.KindPush:
		dispatchErr = s.handlePush(env)
	default:
		return s.conn.Reply(&wire.Envelope{Kind: wire.KindBadQuery})
	}
	if dispatchErr != nil {
		return s.dropWorker(env, dispatchErr)
	}
	return nil
}

// dropWorker logs why a single request was rejected and replies with a
// KindError envelope instead of letting the error propagate out of Run. It
// unlinks the offending worker id so a later legitimate connection using
// the same id isn't confused with the dropped one. Only a failure of the
// reply itself (a genuine transport error) is returned.
func (s *Scheduler) dropWorker(env *wire.Envelope, cause error) error {
	s.log.Error("dropping misbehaving worker", "worker_id", env.WorkerID, "kind", env.Kind, "err", cause)
	delete(s.linkedWorkers, env.WorkerID)
	metrics.WorkersLinked.Set(float64(len(s.linkedWorkers)))
	if err := s.conn.Reply(&wire.Envelope{Kind: wire.KindError, WorkerID: env.WorkerID, Error: cause.Error()}); err != nil {
		return fmt.Errorf("scheduler: replying error to worker %q: %w", env.WorkerID, err)
	}
	return nil
}

func (s *Scheduler) sendInfo() error {
	return s.conn.Reply(&wire.Envelope{
		Kind:           wire.KindInfo,
		Environments:   s.envs,
		Models:         s.models,
		RenderArgs:     s.info.RenderArgs,
		InferenceArgs:  s.info.InferenceArgs,
		ControlsArgs:   s.info.ControlsArgs,
		EvaluationArgs: s.info.EvaluationArgs,
	})
}

// start declares the buffer's output schema and, the first time it's
// called, starts the logging pipeline, matching Scheduler.start().
func (s *Scheduler) start(declared map[string]tensor.Schema) error {
	if err := s.buf.Declare(declared); err != nil {
		return fmt.Errorf("scheduler: declaring buffer schema: %w", err)
	}
	if err := s.conn.Reply(&wire.Envelope{Kind: wire.KindAck}); err != nil {
		return err
	}
	if !s.declared {
		s.logMgr.Start()
		s.declared = true
	}
	return nil
}

// pullFromRunningControllers drains up to 10 pending jobs from the running
// controllers into the shared work queue, at most one from each running
// controller per call, matching schedule_work()'s per-tick pull cap.
func (s *Scheduler) pullFromRunningControllers() {
	pulled := 0
	for ctrl := range s.running {
		job := ctrl.PullWork()
		if job == nil {
			continue
		}
		pulled++
		s.workQueue[job.ID] = &workEntry{ctrl: ctrl, job: job, timeScheduled: time.Now()}
		if pulled >= 10 {
			break
		}
	}
}

// maybeStartPolicy starts a new policy controller when the work queue is
// thin relative to the number of linked workers and there is room under
// maxRunningPolicies, matching schedule_work()'s little_work/policies_left/
// running_max_policies gating. It starts at most one controller per call.
// There is no cooldown between admissions: the next request can start
// another controller as long as the work queue is still thin, and how much
// work was pulled on the previous request is not taken into account.
func (s *Scheduler) maybeStartPolicy() {
	littleWork := len(s.workQueue) < 2*len(s.linkedWorkers)
	policiesLeft := len(s.pool) > 0
	atMax := len(s.running) >= s.maxRunningPolicies
	if littleWork && policiesLeft && !atMax {
		next := s.pool[len(s.pool)-1]
		s.pool = s.pool[:len(s.pool)-1]
		s.running[next] = struct{}{}
		metrics.PoliciesRunning.Set(float64(len(s.running)))
		go next.Run()
	}
}

func (s *Scheduler) reapFinishedControllers() {
	for ctrl := range s.running {
		if ctrl.Alive() {
			continue
		}
		delete(s.running, ctrl)
		s.donePolicies++
		metrics.PoliciesRunning.Set(float64(len(s.running)))
		metrics.PoliciesDone.Inc()
		if err := ctrl.Err(); err != nil {
			s.log.Error("policy controller finished with an error", "environment", ctrl.Environment, "model", ctrl.Model, "err", err)
		}
	}
}

// handlePull serves up to batch_size jobs to the calling worker, sorted the
// same way as custom_order in handle_pull: fewest prior sends first, then
// affinity to the worker's last (environment, model) pair, then
// first-scheduled, then job id for determinism.
func (s *Scheduler) handlePull(env *wire.Envelope) error {
	entries := make([]*workEntry, 0, len(s.workQueue))
	for _, e := range s.workQueue {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.numScheduled != b.numScheduled {
			return a.numScheduled < b.numScheduled
		}
		ai := affinityPenalty(a.job, env.LastEnvironment, env.LastModel)
		bi := affinityPenalty(b.job, env.LastEnvironment, env.LastModel)
		if ai != bi {
			return ai < bi
		}
		if !a.timeScheduled.Equal(b.timeScheduled) {
			return a.timeScheduled.Before(b.timeScheduled)
		}
		return a.job.ID < b.job.ID
	})

	batchSize := env.BatchSize
	if batchSize > len(entries) {
		batchSize = len(entries)
	}
	toSend := make([]wire.Job, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		entries[i].numScheduled++
		toSend = append(toSend, *entries[i].job)
	}
	metrics.PendingJobs.Set(float64(len(s.workQueue)))

	return s.conn.Reply(&wire.Envelope{Kind: wire.KindWork, ParamsToRender: toSend})
}

func affinityPenalty(job *wire.Job, lastEnv, lastModel string) int {
	penalty := 0
	if job.Environment != lastEnv {
		penalty++
	}
	if job.Model != lastModel {
		penalty++
	}
	return penalty
}

// handlePush records a pushed result: if the job is still outstanding, it
// is handed to the owning controller and removed from the work queue;
// otherwise another worker already completed it and the buffer slot is
// force-freed, matching handle_push()'s `else: self.buffer.free(result, -1)`.
func (s *Scheduler) handlePush(env *wire.Envelope) error {
	s.totalRenders++
	metrics.RendersTotal.Inc()

	slot, err := s.buf.Allocate(env.Data)
	if err != nil {
		return fmt.Errorf("scheduler: allocating result slot: %w", err)
	}

	if entry, ok := s.workQueue[env.JobID]; ok {
		delete(s.workQueue, env.JobID)
		entry.ctrl.PushResult(env.JobID, slot)
		s.validRenders++
		metrics.RendersValid.Inc()
	} else {
		s.buf.Free(slot, buffer.ForceRelease)
	}
	metrics.PendingJobs.Set(float64(len(s.workQueue)))

	return s.conn.Reply(&wire.Envelope{Kind: wire.KindAck})
}

func (s *Scheduler) reportProgress() {
	metrics.BufferOccupancy.Set(float64(s.buf.Occupied()))
}

// shutdown tells every linked worker to exit, then drains the logging
// pipeline, matching Scheduler.shutdown().
func (s *Scheduler) shutdown() error {
	for len(s.linkedWorkers) > 0 {
		env, err := s.conn.Recv()
		if err != nil {
			return fmt.Errorf("scheduler: recv during shutdown: %w", err)
		}
		if err := s.conn.Reply(&wire.Envelope{Kind: wire.KindDie}); err != nil {
			return err
		}
		delete(s.linkedWorkers, env.WorkerID)
	}

	s.buf.Close()
	s.logMgr.Close()
	s.log.Info("waiting for pending logging")
	s.logMgr.Join()
	s.log.Info("have a nice day")
	return nil
}

// Close releases the underlying socket when the transport has one (a
// *wire.Conn does); used by callers that abort before Run's normal shutdown
// path runs.
func (s *Scheduler) Close() error {
	if c, ok := s.conn.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
