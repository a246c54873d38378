package scenario

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/tomasbasham/donsched"
)

// StepResult is the outcome of one step.
type StepResult struct {
	Index int
	Op    Op

	// Winner is the thread chosen by a next step, or [None].
	Winner string

	// Failure describes an unmet expectation or an unexpected error. Empty
	// if the step passed.
	Failure string
}

// Failed reports whether the step did not go as the scenario expected.
func (r StepResult) Failed() bool {
	return r.Failure != ""
}

// Result is the outcome of a scenario run.
type Result struct {
	Name  string
	Steps []StepResult
}

// Failures returns the steps that failed.
func (r *Result) Failures() []StepResult {
	var failed []StepResult
	for _, st := range r.Steps {
		if st.Failed() {
			failed = append(failed, st)
		}
	}
	return failed
}

// Passed reports whether every step passed.
func (r *Result) Passed() bool {
	return len(r.Failures()) == 0
}

// Run replays the scenario against a fresh scheduler. opts are applied after
// the scenario's own policy and seed, so callers can override either.
// Unmet expectations are reported in the result; the returned error is only
// set if ctx is done before the last step.
func (sc *Scenario) Run(ctx context.Context, opts ...donsched.Option) (*Result, error) {
	s := donsched.New(append(sc.options(), opts...)...)

	for _, t := range sc.Threads {
		id := sc.ids[t.Name]
		if t.Priority != nil {
			s.SetPriority(id, *t.Priority)
		} else {
			s.RegisterThread(id)
		}
	}

	queues := make(map[string]donsched.QueueID, len(sc.Queues))
	for _, q := range sc.Queues {
		queues[q.Name] = s.NewQueue(q.Transfer)
	}

	r := &runner{sc: sc, s: s, queues: queues}
	res := &Result{Name: sc.Name, Steps: make([]StepResult, 0, len(sc.Steps))}
	for i, st := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Steps = append(res.Steps, r.step(i, st))
	}
	return res, nil
}

type runner struct {
	sc     *Scenario
	s      *donsched.Scheduler
	queues map[string]donsched.QueueID
}

func (r *runner) step(i int, st Step) StepResult {
	res := StepResult{Index: i, Op: st.Op}
	id := r.sc.ids[st.Thread]
	q := r.queues[st.Queue]

	var (
		got  string
		want = st.Expect
		err  error
	)
	switch st.Op {
	case OpRegister:
		r.s.RegisterThread(id)
	case OpSetPriority:
		r.s.SetPriority(id, *st.Value)
	case OpIncrease:
		got = strconv.FormatBool(r.s.IncreasePriority(id))
	case OpDecrease:
		got = strconv.FormatBool(r.s.DecreasePriority(id))
	case OpWait:
		err = r.s.WaitForAccess(q, id)
	case OpAcquire:
		err = r.s.Acquire(q, id)
	case OpRelease:
		err = r.s.Release(q, id)
	case OpExit:
		r.s.Exit(id)
	case OpNext:
		var (
			next donsched.ThreadID
			ok   bool
		)
		next, ok, err = r.s.NextThread(q)
		if err == nil {
			got = r.name(next, ok)
			res.Winner = got
		}
	case OpExpectEffective:
		var v int
		v, err = r.s.EffectivePriority(id)
		got, want = strconv.Itoa(v), strconv.Itoa(*st.Value)
	case OpExpectPriority:
		got, want = strconv.Itoa(r.s.Priority(id)), strconv.Itoa(*st.Value)
	case OpExpectOwner:
		var snap donsched.Queue
		snap, err = r.s.Queue(q)
		got = r.name(snap.Owner, snap.HasOwner)
	}

	switch {
	case st.Error != "":
		if wantErr := namedErrors[st.Error]; !errors.Is(err, wantErr) {
			res.Failure = fmt.Sprintf("expected %s error, got: %v", st.Error, err)
		}
	case err != nil:
		res.Failure = err.Error()
	case want != "" && got != want:
		res.Failure = fmt.Sprintf("expected %s, got %s", want, got)
	}
	return res
}

func (r *runner) name(id donsched.ThreadID, ok bool) string {
	if !ok {
		return None
	}
	return r.sc.ThreadName(id)
}
