package ksync

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tomasbasham/donsched"
)

// ErrNotHolder is returned when a thread releases or sleeps on a lock it does
// not hold.
var ErrNotHolder = errors.New("lock not held by thread")

// Lock is a mutual exclusion lock whose waiters donate priority to the
// holder.
type Lock struct {
	s *donsched.Scheduler
	q donsched.QueueID

	mu     sync.Mutex
	held   bool
	holder donsched.ThreadID
}

// NewLock creates a free lock backed by a transferring wait queue.
func NewLock(s *donsched.Scheduler) *Lock {
	return &Lock{s: s, q: s.NewQueue(true)}
}

// Queue returns the wait queue guarding the lock.
func (l *Lock) Queue() donsched.QueueID {
	return l.q
}

// Acquire takes the lock for t if it is free. Otherwise t is queued behind
// the holder, donating its priority, and granted is false: t must yield until
// a [Lock.Release] hands it the lock.
func (l *Lock) Acquire(t donsched.ThreadID) (granted bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held && l.holder == t {
		return false, fmt.Errorf("acquire: thread %d already holds the lock: %w", t, donsched.ErrInvalidState)
	}

	if !l.held {
		if err := l.s.Acquire(l.q, t); err != nil {
			return false, err
		}
		l.held, l.holder = true, t
		return true, nil
	}

	if err := l.s.WaitForAccess(l.q, t); err != nil {
		return false, err
	}
	return false, nil
}

// Release frees the lock held by t and hands it to the next waiter, which is
// returned. If nobody waits the lock becomes free and ok is false.
func (l *Lock) Release(t donsched.ThreadID) (next donsched.ThreadID, ok bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.release(t)
}

func (l *Lock) release(t donsched.ThreadID) (donsched.ThreadID, bool, error) {
	if !l.held || l.holder != t {
		return 0, false, fmt.Errorf("release: thread %d: %w", t, ErrNotHolder)
	}

	next, ok, err := l.s.NextThread(l.q)
	if err != nil {
		return 0, false, err
	}

	l.held, l.holder = ok, next
	return next, ok, nil
}

// HeldBy reports whether t holds the lock.
func (l *Lock) HeldBy(t donsched.ThreadID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.held && l.holder == t
}

// Holder returns the thread holding the lock, if any.
func (l *Lock) Holder() (donsched.ThreadID, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.holder, l.held
}
