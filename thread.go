package donsched

import "slices"

// ThreadID identifies a logical kernel thread. It is chosen by the caller and
// stays stable for the thread's lifetime.
type ThreadID int

// ThreadState is the scheduling state of a thread as seen by the scheduler.
type ThreadState int

const (
	Unregistered ThreadState = iota
	Idle
	Waiting
	Owning
)

func (s ThreadState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Waiting:
		return "waiting"
	case Owning:
		return "owning"
	default:
		return "unregistered"
	}
}

// Thread is a point-in-time snapshot of a thread's scheduling state.
type Thread struct {
	ID        ThreadID
	Priority  int
	State     ThreadState
	WaitingOn QueueID // only meaningful when State is Waiting
	Owned     []QueueID
}

// noQueue marks a thread that is not waiting.
const noQueue QueueID = -1

// threadRecord is an arena slot. Effective priority is not stored; it is
// derived from the donation graph on every read.
type threadRecord struct {
	id        ThreadID
	live      bool
	base      int
	owned     []QueueID
	waitingOn QueueID

	// The enqueuedAt stamp comes from the scheduler's logical clock and orders
	// waiters of equal priority. It is only meaningful while waiting.
	enqueuedAt uint64
}

func (t *threadRecord) state() ThreadState {
	switch {
	case !t.live:
		return Unregistered
	case t.waitingOn != noQueue:
		return Waiting
	case len(t.owned) > 0:
		return Owning
	default:
		return Idle
	}
}

func (t *threadRecord) addOwned(q QueueID) {
	if !slices.Contains(t.owned, q) {
		t.owned = append(t.owned, q)
	}
}

func (t *threadRecord) removeOwned(q QueueID) {
	t.owned = slices.DeleteFunc(t.owned, func(o QueueID) bool { return o == q })
}

func (t *threadRecord) snapshot() Thread {
	return Thread{
		ID:        t.id,
		Priority:  t.base,
		State:     t.state(),
		WaitingOn: t.waitingOn,
		Owned:     slices.Clone(t.owned),
	}
}
