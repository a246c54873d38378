package donsched

// donationEval computes effective priorities for the duration of a single
// scheduler operation. Results are memoised, which is sound because the
// donation graph cannot change while the scheduler lock is held.
type donationEval struct {
	s  *Scheduler
	op string

	// Queue treated as ownerless during evaluation. NextThread uses it to
	// rank waiters as they will stand once the current owner lets go.
	released QueueID

	memo   map[int]int
	onPath map[int]bool
	path   []int
}

func (s *Scheduler) newEval(op string) *donationEval {
	return &donationEval{
		s:        s,
		op:       op,
		released: noQueue,
		memo:     make(map[int]int),
		onPath:   make(map[int]bool),
	}
}

// effective returns the base value of the thread in slot combined with the
// effective value of every thread waiting on a transferring queue it owns.
// Donors are evaluated recursively, so donation follows chains of
// ownership to any depth.
func (e *donationEval) effective(slot int) (int, error) {
	if v, ok := e.memo[slot]; ok {
		return v, nil
	}
	if e.onPath[slot] {
		return 0, e.cycleFrom(slot)
	}

	e.onPath[slot] = true
	e.path = append(e.path, slot)
	defer func() {
		e.path = e.path[:len(e.path)-1]
		delete(e.onPath, slot)
	}()

	t := &e.s.threads[slot]
	v := t.base
	for _, qid := range t.owned {
		q := &e.s.queues[qid]
		if !q.transfer || qid == e.released {
			continue
		}
		for _, w := range q.waiting {
			d, err := e.effective(w)
			if err != nil {
				return 0, err
			}
			v = e.s.policy.combine(v, d)
		}
	}

	e.memo[slot] = v
	return v, nil
}

func (e *donationEval) cycleFrom(slot int) error {
	var cycle []ThreadID
	for i := len(e.path) - 1; i >= 0; i-- {
		cycle = append(cycle, e.s.threads[e.path[i]].id)
		if e.path[i] == slot {
			break
		}
	}
	return &InvariantViolationError{Op: e.op, Cycle: cycle}
}
