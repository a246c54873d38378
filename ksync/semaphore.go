package ksync

import (
	"sync"

	"github.com/tomasbasham/donsched"
)

// Semaphore is a counting semaphore. A freed permit is handed straight to the
// waiter chosen by the scheduler, so late arrivals cannot barge past it.
// Waiters do not donate: a semaphore has no single holder.
type Semaphore struct {
	s *donsched.Scheduler
	q donsched.QueueID

	mu    sync.Mutex
	value int
}

// NewSemaphore creates a semaphore with the given number of permits.
func NewSemaphore(s *donsched.Scheduler, permits int) *Semaphore {
	return &Semaphore{s: s, q: s.NewQueue(false), value: max(permits, 0)}
}

// P takes a permit for t. If none is available t is queued and proceed is
// false: t must yield until a [Semaphore.V] wakes it.
func (m *Semaphore) P(t donsched.ThreadID) (proceed bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.value > 0 {
		m.value--
		return true, nil
	}

	if err := m.s.WaitForAccess(m.q, t); err != nil {
		return false, err
	}
	return false, nil
}

// V returns a permit. If a thread is waiting it receives the permit and is
// returned as woken.
func (m *Semaphore) V() (woken donsched.ThreadID, ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	woken, ok, err = m.s.NextThread(m.q)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		m.value++
		return 0, false, nil
	}

	// The queue only orders waiters; nobody owns a semaphore.
	if err := m.s.Release(m.q, woken); err != nil {
		return 0, false, err
	}
	return woken, true, nil
}

// Value returns the number of available permits.
func (m *Semaphore) Value() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.value
}
