package ksync

import (
	"fmt"

	"github.com/tomasbasham/donsched"
)

// Wakeup describes a thread taken off a condition variable.
type Wakeup struct {
	Thread donsched.ThreadID

	// Runnable is true if the thread also got the lock back. Otherwise it now
	// waits on the lock, donating to its holder.
	Runnable bool
}

// Condition is a condition variable bound to a [Lock]. Sleepers are woken in
// the order the scheduler's policy picks them.
type Condition struct {
	s    *donsched.Scheduler
	q    donsched.QueueID
	lock *Lock
}

// NewCondition creates a condition variable guarded by lock.
func NewCondition(s *donsched.Scheduler, lock *Lock) *Condition {
	return &Condition{s: s, q: s.NewQueue(false), lock: lock}
}

// Sleep atomically releases the lock held by t and puts t to sleep on the
// condition. The lock passes to the returned thread, if any; t must yield.
func (c *Condition) Sleep(t donsched.ThreadID) (next donsched.ThreadID, ok bool, err error) {
	c.lock.mu.Lock()
	defer c.lock.mu.Unlock()

	if !c.lock.held || c.lock.holder != t {
		return 0, false, fmt.Errorf("sleep: thread %d: %w", t, ErrNotHolder)
	}

	if err := c.s.WaitForAccess(c.q, t); err != nil {
		return 0, false, err
	}
	return c.lock.release(t)
}

// Wake moves one sleeper back to the lock. ok is false if nobody sleeps.
func (c *Condition) Wake() (w Wakeup, ok bool, err error) {
	woken, ok, err := c.s.NextThread(c.q)
	if err != nil || !ok {
		return Wakeup{}, false, err
	}

	// Nobody owns a condition variable.
	if err := c.s.Release(c.q, woken); err != nil {
		return Wakeup{}, false, err
	}

	granted, err := c.lock.Acquire(woken)
	if err != nil {
		return Wakeup{}, false, err
	}
	return Wakeup{Thread: woken, Runnable: granted}, true, nil
}

// WakeAll moves every sleeper back to the lock.
func (c *Condition) WakeAll() ([]Wakeup, error) {
	var all []Wakeup
	for {
		w, ok, err := c.Wake()
		if err != nil {
			return all, err
		}
		if !ok {
			return all, nil
		}
		all = append(all, w)
	}
}
