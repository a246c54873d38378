package ksync

import (
	"fmt"
	"sync"

	"github.com/tomasbasham/donsched"
)

// Join lets threads wait for a target thread to finish. Joiners donate their
// priority to the target while it runs.
type Join struct {
	s      *donsched.Scheduler
	q      donsched.QueueID
	target donsched.ThreadID

	mu       sync.Mutex
	finished bool
}

// NewJoin creates the join point of target. The target owns it until
// [Join.Finish].
func NewJoin(s *donsched.Scheduler, target donsched.ThreadID) (*Join, error) {
	q := s.NewQueue(true)
	if err := s.Acquire(q, target); err != nil {
		return nil, fmt.Errorf("join %d: %w", target, err)
	}
	return &Join{s: s, q: q, target: target}, nil
}

// Join waits for the target on behalf of t. done is true if the target has
// already finished; otherwise t must yield until [Join.Finish] wakes it.
func (j *Join) Join(t donsched.ThreadID) (done bool, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if t == j.target {
		return false, fmt.Errorf("join: thread %d joining itself: %w", t, donsched.ErrInvalidState)
	}
	if j.finished {
		return true, nil
	}

	if err := j.s.WaitForAccess(j.q, t); err != nil {
		return false, err
	}
	return false, nil
}

// Finish marks the target as finished and returns every joiner, in the
// order the scheduler picks them.
func (j *Join) Finish() ([]donsched.ThreadID, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.finished = true

	var woken []donsched.ThreadID
	for {
		t, ok, err := j.s.NextThread(j.q)
		if err != nil {
			return woken, err
		}
		if !ok {
			return woken, nil
		}
		if err := j.s.Release(j.q, t); err != nil {
			return woken, err
		}
		woken = append(woken, t)
	}
}

// Finished reports whether the target has finished.
func (j *Join) Finished() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.finished
}
