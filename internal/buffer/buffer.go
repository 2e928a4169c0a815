// Package buffer implements the fixed-capacity, reference-counted result
// slot table described in spec.md §4.1, grounded on
// original_source/threedb/utils.py's CyclicBuffer: a free-list of slot
// indices plus an event queue of release messages, where each registered
// consumer holds one bit of an 8-bit refcount mask and a slot returns to
// the free-list only once every bit has been cleared.
package buffer

import (
	"fmt"
	"sync"

	"github.com/luxfi/log"

	"github.com/three-db/threedb/internal/logx"
	"github.com/three-db/threedb/internal/tensor"
)

// MaxRegistrants is the maximum number of distinct consumers that may
// register against a Buffer; refcounts are an 8-bit mask, one bit per
// registrant (spec.md §4.1).
const MaxRegistrants = 8

// SlotIndex identifies one row of the buffer, in [0, capacity).
type SlotIndex int

// ForceRelease is the registrant id passed to Free to drop a slot
// unconditionally, as the scheduler does for a duplicate push result
// (spec.md §4.5).
const ForceRelease = -1

type releaseEvent struct {
	slot       SlotIndex
	registrant int
}

// Buffer is the process-wide (here: master-process-wide) result slot
// table. All exported methods are safe for concurrent use.
type Buffer struct {
	log log.Logger

	mu          sync.RWMutex
	initialized bool
	schema      map[string]tensor.Schema

	capacity int
	slots    []tensor.Dict
	refcount []uint8
	inFree   []bool
	freeList []SlotIndex

	regMu    sync.Mutex
	regCount int

	events  chan releaseEvent
	closed  chan struct{}
	closeOn sync.Once
}

// New allocates a Buffer with the given slot capacity. The buffer is not
// usable for Allocate/Read until Declare has been called.
func New(capacity int) *Buffer {
	b := &Buffer{
		log:      logx.New(logx.Buffer),
		capacity: capacity,
		slots:    make([]tensor.Dict, capacity),
		refcount: make([]uint8, capacity),
		inFree:   make([]bool, capacity),
		freeList: make([]SlotIndex, 0, capacity),
		events:   make(chan releaseEvent, 4*capacity+MaxRegistrants),
		closed:   make(chan struct{}),
	}
	for i := 0; i < capacity; i++ {
		b.freeList = append(b.freeList, SlotIndex(i))
		b.inFree[i] = true
	}
	return b
}

// Capacity returns the number of slots in the buffer.
func (b *Buffer) Capacity() int { return b.capacity }

// Declare sets the buffer's channel schema exactly once. A later call with
// a differing schema is rejected (spec.md §3: DeclaredOutputs is
// monotone); a later call with an identical schema is a harmless no-op.
func (b *Buffer) Declare(schema map[string]tensor.Schema) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		if !schemaEqual(b.schema, schema) {
			return fmt.Errorf("buffer: %w", ErrSchemaMismatch)
		}
		return nil
	}
	b.schema = schema
	b.initialized = true
	b.log.Info("buffer schema declared", "channels", len(schema))
	return nil
}

// Initialized reports whether Declare has committed a schema.
func (b *Buffer) Initialized() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.initialized
}

func schemaEqual(a, b map[string]tensor.Schema) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		ov, ok := b[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Register grants the caller a fresh registrant id (1..MaxRegistrants);
// every allocated slot's refcount includes every registrant's bit, and
// the caller must eventually Free each slot it observes.
func (b *Buffer) Register() (int, error) {
	b.regMu.Lock()
	defer b.regMu.Unlock()
	if b.regCount >= MaxRegistrants {
		return 0, fmt.Errorf("buffer: %w", ErrTooManyRegistrants)
	}
	b.regCount++
	return b.regCount, nil
}

func (b *Buffer) fullMask() uint8 {
	b.regMu.Lock()
	defer b.regMu.Unlock()
	if b.regCount == 0 {
		return 0
	}
	return uint8(1<<uint(b.regCount) - 1)
}

// Allocate obtains a free slot, writes data into it, and returns its
// index. It validates every channel in data against the declared schema
// and blocks (applying backpressure) when no slot is free until a
// registrant releases one (spec.md §4.1, §5).
func (b *Buffer) Allocate(data tensor.Dict) (SlotIndex, error) {
	b.mu.RLock()
	initialized := b.initialized
	schema := b.schema
	b.mu.RUnlock()
	if !initialized {
		return 0, fmt.Errorf("buffer: %w", ErrNotInitialized)
	}
	if err := tensor.Validate(data, schema); err != nil {
		return 0, err
	}

	idx, err := b.nextFreeIndex()
	if err != nil {
		return 0, err
	}

	b.mu.Lock()
	b.slots[idx] = data.Clone()
	b.mu.Unlock()
	return idx, nil
}

func (b *Buffer) nextFreeIndex() (SlotIndex, error) {
	waited := false
	for {
		b.drainEvents(false)

		b.mu.Lock()
		if n := len(b.freeList); n > 0 {
			idx := b.freeList[n-1]
			b.freeList = b.freeList[:n-1]
			b.inFree[idx] = false
			b.refcount[idx] = b.fullMask()
			b.mu.Unlock()
			return idx, nil
		}
		b.mu.Unlock()

		if !waited {
			b.log.Debug("buffer exhausted, waiting on release events")
			waited = true
		}

		select {
		case ev := <-b.events:
			b.apply(ev)
		case <-b.closed:
			return 0, ErrClosed
		}
	}
}

// drainEvents applies every release event currently queued without
// blocking; if block is true it waits for at least one event first.
func (b *Buffer) drainEvents(block bool) {
	if block {
		select {
		case ev := <-b.events:
			b.apply(ev)
		case <-b.closed:
			return
		}
	}
	for {
		select {
		case ev := <-b.events:
			b.apply(ev)
		default:
			return
		}
	}
}

func (b *Buffer) apply(ev releaseEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ev.registrant == ForceRelease {
		b.refcount[ev.slot] = 0
	} else {
		bit := uint8(1) << uint(ev.registrant-1)
		b.refcount[ev.slot] &^= bit
	}
	if b.refcount[ev.slot] == 0 && !b.inFree[ev.slot] {
		b.inFree[ev.slot] = true
		b.freeList = append(b.freeList, ev.slot)
	}
}

// Read returns the tensors currently stored at slot. The result is only
// valid while at least one registrant still holds the slot (spec.md §4.1,
// §5); callers that need to retain data past their own Free call must
// Clone it first.
func (b *Buffer) Read(slot SlotIndex) (tensor.Dict, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if int(slot) < 0 || int(slot) >= b.capacity {
		return nil, fmt.Errorf("buffer: %w: %d", ErrBadSlot, slot)
	}
	return b.slots[slot], nil
}

// Free posts a release for slot from registrant (or ForceRelease to drop
// it unconditionally, as the scheduler does for a duplicate push result).
// Free posts to the internal event queue, which Allocate and Occupied
// drain; it blocks only while that queue is full, and returns at once if
// the buffer has been closed.
func (b *Buffer) Free(slot SlotIndex, registrant int) {
	select {
	case b.events <- releaseEvent{slot: slot, registrant: registrant}:
	case <-b.closed:
	}
}

// Occupied reports how many slots are currently outstanding (not on the
// free list); used for progress reporting (spec.md §7).
func (b *Buffer) Occupied() int {
	b.drainEvents(false)
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.capacity - len(b.freeList)
}

// Close shuts the buffer down, unblocking any goroutine waiting in
// Allocate.
func (b *Buffer) Close() {
	b.closeOn.Do(func() { close(b.closed) })
}
