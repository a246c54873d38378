// Package donsched implements the scheduling core of a teaching kernel: wait
// queues that decide which blocked thread is granted a resource next, with
// priority donation to defeat priority inversion.
//
// Every kernel resource (lock, join, semaphore, condition) is guarded by a
// wait queue created with [Scheduler.NewQueue]. Threads that cannot obtain
// the resource call [Scheduler.WaitForAccess]; when the resource is freed
// the holder calls [Scheduler.NextThread] to pick the next owner.
//
// Two policies are available, chosen once per scheduler:
//
//   - [Policies].MaxPriorityFifo grants the waiter with the highest effective
//     priority, breaking ties by the longest wait. Donation takes the maximum.
//   - [Policies].WeightedLottery holds a ticket-weighted random draw among the
//     waiters. Donation adds tickets.
//
// Donation is transitive: a thread waiting on a queue whose owner is itself
// waiting elsewhere raises the priority of every owner along the chain.
// Effective values are derived on every read and never stored, so a base
// priority is only ever changed by [Scheduler.SetPriority] and friends.
package donsched
