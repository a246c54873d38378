// Package ksync provides the kernel synchronisation primitives that consume a
// [donsched.Scheduler]: locks, counting semaphores, condition variables, and
// joins.
//
// The primitives never block. A method that would put the calling thread to
// sleep records it on the resource's wait queue and reports that the thread
// must yield; a method that frees a resource returns the thread the scheduler
// picked to run next. Dispatching threads is left to the caller's
// execution layer.
package ksync
