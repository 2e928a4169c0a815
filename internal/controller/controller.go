// Package controller implements PolicyController, the goroutine that runs
// one Policy against one (environment, model) pair and turns its sample
// batches into scheduled jobs, grounded on
// original_source/threedb/scheduling/policy_controller.py. The Python
// original is a multiprocessing.Process with a pair of Queues; here it is a
// goroutine with a pair of channels, since the scheduler that pulls its
// work and the controller itself already live in the same Go process (only
// the worker is a separate OS process, per the master/worker split in
// spec.md §2).
package controller

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/luxfi/log"

	"github.com/three-db/threedb/internal/buffer"
	"github.com/three-db/threedb/internal/logging"
	"github.com/three-db/threedb/internal/logx"
	"github.com/three-db/threedb/internal/policy"
	"github.com/three-db/threedb/internal/search"
	"github.com/three-db/threedb/internal/tensor"
	"github.com/three-db/threedb/internal/wire"
)

// pushed is what the scheduler hands back to a Controller once a worker has
// returned a result for one of its jobs.
type pushed struct {
	jobID string
	slot  buffer.SlotIndex
}

// Controller drives one Policy over one (environment, model) pair. Exactly
// one goroutine ever calls Run; PullWork/PushResult are called from the
// scheduler's own single-threaded event loop and are safe for that use
// (the work map is guarded by a mutex since Run's batch-posting and the
// scheduler's PullWork race on it, even though both live on allegedly
// "single-threaded" loops that are actually distinct goroutines here).
type Controller struct {
	Environment string
	Model       string

	space  *search.Space
	pol    policy.Policy
	logMgr *logging.Manager
	buf    *buffer.Buffer
	regID  int
	log    log.Logger

	mu       sync.Mutex
	queue    []*wire.Job          // not yet pulled by the scheduler (ordered, FIFO)
	inFlight map[string]*wire.Job // whole current batch, for order/env/model lookup once a result comes back

	results chan pushed
	done    chan struct{}
	runErr  error
}

// New builds a Controller. regID is the buffer registrant id this
// controller's own Free calls will use (PolicyController registers once
// per policy_controller.py's `self.buffer.free(result_ix, 1)`, a bit
// reserved for controllers specifically rather than loggers).
func New(env, model string, space *search.Space, pol policy.Policy, logMgr *logging.Manager, buf *buffer.Buffer, regID int) *Controller {
	return &Controller{
		Environment: env,
		Model:       model,
		space:       space,
		pol:         pol,
		logMgr:      logMgr,
		buf:         buf,
		regID:       regID,
		log:         logx.New(logx.Controller),
		inFlight:    map[string]*wire.Job{},
		results:     make(chan pushed, 256),
		done:        make(chan struct{}),
	}
}

// HintScheduler exposes the underlying policy's scheduling hint (spec.md
// §7's progress reporting).
func (c *Controller) HintScheduler() (startOrder, totalQueries int) {
	return c.pol.HintScheduler()
}

// Run drives the policy to completion, posting jobs and waiting for their
// results via RenderBatch. It is meant to be called as `go ctrl.Run()`; its
// completion is observed via Alive/Wait, replacing the Python original's
// `process.is_alive()` poll in the scheduler's main loop.
func (c *Controller) Run() {
	defer close(c.done)
	if err := c.pol.Run(c.renderBatch); err != nil {
		c.runErr = err
		c.log.Error("policy run failed", "environment", c.Environment, "model", c.Model, "err", err)
	}
}

// Alive reports whether Run is still in progress, the Go analogue of
// `multiprocessing.Process.is_alive()`.
func (c *Controller) Alive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Err returns the error Run finished with, if any; only meaningful once
// Alive() is false.
func (c *Controller) Err() error { return c.runErr }

// renderBatch is the `render`/`render_and_send` closure PolicyController
// builds in its `run()` method: it unpacks each sample into a Job, posts it
// to the pending set the scheduler pulls from, then blocks collecting
// results in original order before returning.
func (c *Controller) renderBatch(batch []policy.Sample) (policy.Tensors, error) {
	order := make([]*wire.Job, len(batch))
	controlOrder := c.space.ControlOrder()

	c.mu.Lock()
	for i, sample := range batch {
		args, err := c.space.Unpack(sample.Continuous, sample.Discrete)
		if err != nil {
			c.mu.Unlock()
			return nil, fmt.Errorf("controller: unpacking sample %d: %w", i, err)
		}
		job := &wire.Job{
			Order:        i,
			ID:           uuid.NewString(),
			Environment:  c.Environment,
			Model:        c.Model,
			RenderArgs:   search.Flatten(args),
			ControlOrder: controlOrder,
		}
		order[i] = job
		c.inFlight[job.ID] = job
		c.queue = append(c.queue, job)
	}
	c.mu.Unlock()

	results := make([]tensor.Dict, len(batch))
	for i := 0; i < len(batch); i++ {
		msg := <-c.results
		job, ok := c.lookup(msg.jobID)
		if !ok {
			return nil, fmt.Errorf("controller: result for unknown job %q", msg.jobID)
		}
		data, err := c.buf.Read(msg.slot)
		if err != nil {
			return nil, fmt.Errorf("controller: reading slot for job %q: %w", msg.jobID, err)
		}
		results[job.Order] = data.Clone()

		c.logMgr.Log(logging.Event{
			JobID:       job.ID,
			Order:       job.Order,
			Environment: job.Environment,
			Model:       job.Model,
			RenderArgs:  job.RenderArgs,
			ResultSlot:  int(msg.slot),
		})

		c.buf.Free(msg.slot, c.regID)
	}

	return stack(results), nil
}

func (c *Controller) lookup(jobID string) (*wire.Job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	job, ok := c.inFlight[jobID]
	if ok {
		delete(c.inFlight, jobID)
	}
	return job, ok
}

// PullWork removes and returns the oldest not-yet-pulled job, or nil when
// there is currently none, the Go analogue of
// `work_queue.get(block=False)`. Once pulled, ownership of the job
// (including re-issue to other workers on reissue-with-dedup) belongs
// entirely to the scheduler's own work table; the controller only hears
// about it again via PushResult.
func (c *Controller) PullWork() *wire.Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil
	}
	job := c.queue[0]
	c.queue = c.queue[1:]
	return job
}

// PushResult delivers a (job id, buffer slot) pair back to whichever
// renderBatch call is waiting on it, the Go analogue of
// `result_queue.put((descriptor, result))`.
func (c *Controller) PushResult(jobID string, slot buffer.SlotIndex) {
	c.results <- pushed{jobID: jobID, slot: slot}
}

// stack groups per-channel tensors across a batch of results into
// policy.Tensors, the Go analogue of `np.stack([res[k] for res in
// client_results])` for each channel key.
func stack(results []tensor.Dict) policy.Tensors {
	if len(results) == 0 {
		return nil
	}
	out := make(policy.Tensors)
	for key := range results[0] {
		values := make([]interface{}, len(results))
		for i, r := range results {
			values[i] = r[key]
		}
		out[key] = values
	}
	return out
}
