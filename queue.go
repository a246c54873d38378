package donsched

import "slices"

// QueueID is the handle of a wait queue. Queue ids are never reused.
type QueueID int

// Waiter describes a thread blocked on a queue.
type Waiter struct {
	Thread            ThreadID
	EffectivePriority int
}

// Queue is a point-in-time snapshot of a wait queue. Waiters are listed in
// enqueue order.
type Queue struct {
	ID               QueueID
	TransferPriority bool
	Owner            ThreadID
	HasOwner         bool
	Waiters          []Waiter
}

const noOwner = -1

type waitQueue struct {
	transfer bool
	owner    int   // arena slot, or noOwner
	waiting  []int // arena slots in enqueue order
}

func (q *waitQueue) remove(slot int) {
	q.waiting = slices.DeleteFunc(q.waiting, func(s int) bool { return s == slot })
}
