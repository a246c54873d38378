package donsched

import (
	"cmp"
	"fmt"
	"iter"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
)

// EventHook receives scheduler events. Hooks run with the scheduler lock held
// and must not call back into the [Scheduler].
type EventHook interface {
	OnWait(q QueueID, t ThreadID)
	OnAcquire(q QueueID, t ThreadID)
	OnNext(q QueueID, next ThreadID, ok bool)
	OnRelease(q QueueID, t ThreadID)
	OnPriorityChange(t ThreadID, from, to int)
	OnExit(t ThreadID)
}

// Scheduler owns every thread record and wait queue of a kernel and decides
// which waiter is granted a resource next. It supports the following
// operations:
//
//   - Registration of threads and creation of wait queues
//   - Waiting for, acquiring, and handing over resources
//   - Base priority changes, clamped to the bounds of the policy
//   - Effective priority with transitive donation
//
// All methods are safe for concurrent use; each runs under a single lock so
// that the kernel sees one mutator at a time. No method ever blocks on
// anything but that lock.
type Scheduler struct {
	mu     sync.Mutex
	policy Policy
	rng    *rand.Rand
	logger *slog.Logger
	events EventHook

	threads []threadRecord
	index   map[ThreadID]int
	free    []int

	queues []waitQueue

	// Logical clock stamped on every enqueue. In theory it could overflow,
	// but not before 2^64 waits.
	clock uint64
}

// New creates a new [Scheduler] with the given options.
func New(opts ...Option) *Scheduler {
	o := &Options{Policy: Policies.MaxPriorityFifo}
	for _, opt := range opts {
		opt(o)
	}

	if !o.Policy.IsValid() {
		o.Policy = Policies.MaxPriorityFifo
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}

	return &Scheduler{
		policy: o.Policy,
		rng:    o.Rand,
		logger: o.Logger.With("component", "scheduler", "policy", o.Policy.String()),
		events: o.Events,
		index:  make(map[ThreadID]int),
	}
}

// Policy returns the policy the scheduler was created with.
func (s *Scheduler) Policy() Policy {
	return s.policy
}

// RegisterThread returns the state of the thread with the given id,
// registering it with the default priority of the policy if it is unknown.
func (s *Scheduler) RegisterThread(id ThreadID) Thread {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.threads[s.slot(id)].snapshot()
}

// Thread returns the state of a registered thread.
func (s *Scheduler) Thread(id ThreadID) (Thread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.index[id]
	if !ok {
		return Thread{ID: id, WaitingOn: noQueue}, false
	}
	return s.threads[slot].snapshot(), true
}

// Threads returns an iterator over a snapshot of every registered thread,
// ordered by id.
func (s *Scheduler) Threads() iter.Seq[Thread] {
	s.mu.Lock()
	all := make([]Thread, 0, len(s.index))
	for _, slot := range s.index {
		all = append(all, s.threads[slot].snapshot())
	}
	s.mu.Unlock()

	slices.SortFunc(all, func(a, b Thread) int { return cmp.Compare(a.ID, b.ID) })

	return func(yield func(Thread) bool) {
		for _, t := range all {
			if !yield(t) {
				return
			}
		}
	}
}

// Exit discards a terminated thread. It leaves any queue it was waiting on
// and every queue it owned becomes ownerless.
func (s *Scheduler) Exit(id ThreadID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.index[id]
	if !ok {
		return
	}

	t := &s.threads[slot]
	if t.waitingOn != noQueue {
		s.queues[t.waitingOn].remove(slot)
	}
	for _, q := range t.owned {
		s.queues[q].owner = noOwner
	}

	s.logger.Debug("exit", "thread", id, "owned", t.owned)

	*t = threadRecord{waitingOn: noQueue}
	delete(s.index, id)
	s.free = append(s.free, slot)

	if s.events != nil {
		s.events.OnExit(id)
	}
}

// SetPriority sets the base priority of a thread, clamped into the bounds of
// the policy.
func (s *Scheduler) SetPriority(id ThreadID, priority int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setBase(&s.threads[s.slot(id)], priority)
}

// Priority returns the base priority of a thread.
func (s *Scheduler) Priority(id ThreadID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.threads[s.slot(id)].base
}

// IncreasePriority raises the base priority of a thread by one. It returns
// false, changing nothing, if the priority is already at the maximum.
func (s *Scheduler) IncreasePriority(id ThreadID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &s.threads[s.slot(id)]
	if t.base >= s.policy.bounds.Max {
		return false
	}
	return s.setBase(t, t.base+1)
}

// DecreasePriority lowers the base priority of a thread by one. It returns
// false, changing nothing, if the priority is already at the minimum.
func (s *Scheduler) DecreasePriority(id ThreadID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &s.threads[s.slot(id)]
	if t.base <= s.policy.bounds.Min {
		return false
	}
	return s.setBase(t, t.base-1)
}

// EffectivePriority returns the priority a thread is scheduled with: its base
// priority combined with everything donated to it, directly or through a
// chain of owners.
func (s *Scheduler) EffectivePriority(id ThreadID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.newEval("EffectivePriority").effective(s.slot(id))
}

// NewQueue creates a wait queue for a new resource. If transferPriority is
// true, waiters donate to the owner of the queue.
func (s *Scheduler) NewQueue(transferPriority bool) QueueID {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := QueueID(len(s.queues))
	s.queues = append(s.queues, waitQueue{transfer: transferPriority, owner: noOwner})

	s.logger.Debug("new queue", "queue", id, "transfer", transferPriority)
	return id
}

// Queue returns a snapshot of a wait queue, including the effective priority
// of each waiter.
func (s *Scheduler) Queue(q QueueID) (Queue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wq, err := s.queue("Queue", q)
	if err != nil {
		return Queue{}, err
	}

	snap := Queue{ID: q, TransferPriority: wq.transfer}
	if wq.owner != noOwner {
		snap.Owner, snap.HasOwner = s.threads[wq.owner].id, true
	}

	e := s.newEval("Queue")
	for _, slot := range wq.waiting {
		v, err := e.effective(slot)
		if err != nil {
			return Queue{}, err
		}
		snap.Waiters = append(snap.Waiters, Waiter{Thread: s.threads[slot].id, EffectivePriority: v})
	}
	return snap, nil
}

// WaitForAccess puts a thread on a queue because it could not obtain the
// guarded resource. The caller is responsible for blocking the thread until
// [Scheduler.NextThread] selects it.
func (s *Scheduler) WaitForAccess(q QueueID, id ThreadID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wq, err := s.queue("WaitForAccess", q)
	if err != nil {
		return err
	}

	slot := s.slot(id)
	t := &s.threads[slot]
	if t.waitingOn != noQueue || wq.owner == slot {
		return &InvalidStateError{Op: "WaitForAccess", Thread: id, Queue: q, State: t.state()}
	}

	s.clock++
	t.enqueuedAt = s.clock
	t.waitingOn = q
	wq.waiting = append(wq.waiting, slot)

	s.logger.Debug("wait for access", "thread", id, "queue", q, "enqueued_at", t.enqueuedAt)

	if s.events != nil {
		s.events.OnWait(q, id)
	}
	return nil
}

// Acquire grants a queue to a thread directly, such as when a lock is free.
// Any previous owner loses the queue.
func (s *Scheduler) Acquire(q QueueID, id ThreadID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wq, err := s.queue("Acquire", q)
	if err != nil {
		return err
	}

	slot := s.slot(id)
	if t := &s.threads[slot]; t.waitingOn != noQueue {
		return &InvalidStateError{Op: "Acquire", Thread: id, Queue: q, State: t.state()}
	}

	s.setOwner(q, wq, slot)
	return nil
}

// NextThread hands a queue over to the waiter chosen by the policy and
// returns it. The previous owner stops receiving donations through the
// queue. If nobody is waiting, the queue is left without an owner and ok is
// false.
func (s *Scheduler) NextThread(q QueueID) (next ThreadID, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wq, err := s.queue("NextThread", q)
	if err != nil {
		return 0, false, err
	}

	e := s.newEval("NextThread")
	e.released = q

	i, err := s.pick(wq, e)
	if err != nil {
		return 0, false, err
	}

	if wq.owner != noOwner {
		s.threads[wq.owner].removeOwned(q)
		wq.owner = noOwner
	}

	if i < 0 {
		s.logger.Debug("next thread", "queue", q, "empty", true)
		if s.events != nil {
			s.events.OnNext(q, 0, false)
		}
		return 0, false, nil
	}

	slot := wq.waiting[i]
	wq.waiting = slices.Delete(wq.waiting, i, i+1)
	t := &s.threads[slot]
	t.waitingOn = noQueue

	s.logger.Debug("next thread", "queue", q, "thread", t.id, "waited_since", t.enqueuedAt)
	if s.events != nil {
		s.events.OnNext(q, t.id, true)
	}

	s.setOwner(q, wq, slot)
	return t.id, true, nil
}

// Release gives up ownership of a queue without handing it to a waiter. It
// fails if the thread does not own the queue.
func (s *Scheduler) Release(q QueueID, id ThreadID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wq, err := s.queue("Release", q)
	if err != nil {
		return err
	}

	slot, ok := s.index[id]
	if !ok || wq.owner != slot {
		state := Unregistered
		if ok {
			state = s.threads[slot].state()
		}
		return &InvalidStateError{Op: "Release", Thread: id, Queue: q, State: state}
	}

	s.threads[slot].removeOwned(q)
	wq.owner = noOwner

	s.logger.Debug("release", "thread", id, "queue", q)
	if s.events != nil {
		s.events.OnRelease(q, id)
	}
	return nil
}

// pick returns the index in wq.waiting of the thread the policy selects, or
// -1 if there is none.
func (s *Scheduler) pick(wq *waitQueue, e *donationEval) (int, error) {
	if len(wq.waiting) == 0 {
		return -1, nil
	}

	weights := make([]int, len(wq.waiting))
	for i, slot := range wq.waiting {
		v, err := e.effective(slot)
		if err != nil {
			return -1, err
		}
		weights[i] = v
	}

	if s.policy.policy == policyLottery {
		return draw(weights, s.rng), nil
	}

	best := 0
	for i := 1; i < len(weights); i++ {
		if weights[i] > weights[best] {
			best = i
			continue
		}
		// Equal priorities go to the longest waiter.
		if weights[i] == weights[best] &&
			s.threads[wq.waiting[i]].enqueuedAt < s.threads[wq.waiting[best]].enqueuedAt {
			best = i
		}
	}
	return best, nil
}

func (s *Scheduler) setOwner(q QueueID, wq *waitQueue, slot int) {
	if wq.owner != noOwner && wq.owner != slot {
		s.threads[wq.owner].removeOwned(q)
	}
	wq.owner = slot

	t := &s.threads[slot]
	t.addOwned(q)

	s.logger.Debug("acquire", "thread", t.id, "queue", q)
	if s.events != nil {
		s.events.OnAcquire(q, t.id)
	}
}

func (s *Scheduler) setBase(t *threadRecord, priority int) bool {
	priority = s.policy.bounds.Clamp(priority)
	if priority == t.base {
		return false
	}

	old := t.base
	t.base = priority

	s.logger.Debug("set priority", "thread", t.id, "from", old, "to", priority)
	if s.events != nil {
		s.events.OnPriorityChange(t.id, old, priority)
	}
	return true
}

// slot returns the arena slot of a thread, registering it if needed.
func (s *Scheduler) slot(id ThreadID) int {
	if slot, ok := s.index[id]; ok {
		return slot
	}

	rec := threadRecord{
		id:        id,
		live:      true,
		base:      s.policy.bounds.Default,
		waitingOn: noQueue,
	}

	var slot int
	if n := len(s.free); n > 0 {
		slot = s.free[n-1]
		s.free = s.free[:n-1]
		s.threads[slot] = rec
	} else {
		slot = len(s.threads)
		s.threads = append(s.threads, rec)
	}
	s.index[id] = slot

	s.logger.Debug("register thread", "thread", id, "priority", rec.base)
	return slot
}

func (s *Scheduler) queue(op string, q QueueID) (*waitQueue, error) {
	if q < 0 || int(q) >= len(s.queues) {
		return nil, fmt.Errorf("%s: queue %d: %w", op, q, ErrUnknownQueue)
	}
	return &s.queues[q], nil
}
