// Package scenario loads scripted scheduler sessions from YAML and replays
// them against a [donsched.Scheduler], checking the expectations they state.
//
// A scenario names its threads and queues and lists steps:
//
//	policy: priority
//	bounds: {min: 0, max: 10, default: 1}
//	threads:
//	  - {name: L, priority: 2}
//	  - {name: H, priority: 10}
//	queues:
//	  - {name: lock, transfer: true}
//	steps:
//	  - {op: acquire, queue: lock, thread: L}
//	  - {op: wait, queue: lock, thread: H}
//	  - {op: expect_effective, thread: L, value: 10}
//	  - {op: next, queue: lock, expect: H}
package scenario

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tomasbasham/donsched"
)

// Op is the operation performed by a [Step].
type Op string

const (
	OpRegister        Op = "register"
	OpSetPriority     Op = "set_priority"
	OpIncrease        Op = "increase"
	OpDecrease        Op = "decrease"
	OpWait            Op = "wait"
	OpAcquire         Op = "acquire"
	OpNext            Op = "next"
	OpRelease         Op = "release"
	OpExit            Op = "exit"
	OpExpectEffective Op = "expect_effective"
	OpExpectPriority  Op = "expect_priority"
	OpExpectOwner     Op = "expect_owner"
)

// None is the name reported by a next step on an empty queue and by
// expect_owner on an ownerless queue.
const None = "none"

type opArgs struct {
	thread, queue, value bool
}

var ops = map[Op]opArgs{
	OpRegister:        {thread: true},
	OpSetPriority:     {thread: true, value: true},
	OpIncrease:        {thread: true},
	OpDecrease:        {thread: true},
	OpWait:            {thread: true, queue: true},
	OpAcquire:         {thread: true, queue: true},
	OpNext:            {queue: true},
	OpRelease:         {thread: true, queue: true},
	OpExit:            {thread: true},
	OpExpectEffective: {thread: true, value: true},
	OpExpectPriority:  {thread: true, value: true},
	OpExpectOwner:     {queue: true},
}

var namedErrors = map[string]error{
	"invalid_state":       donsched.ErrInvalidState,
	"invariant_violation": donsched.ErrInvariantViolation,
}

// Bounds overrides the priority bounds of the scenario's policy.
type Bounds struct {
	Min     int `yaml:"min"`
	Max     int `yaml:"max"`
	Default int `yaml:"default"`
}

// ThreadSpec declares a thread and its initial base priority.
type ThreadSpec struct {
	Name     string `yaml:"name"`
	Priority *int   `yaml:"priority"`
}

// QueueSpec declares a wait queue.
type QueueSpec struct {
	Name     string `yaml:"name"`
	Transfer bool   `yaml:"transfer"`
}

// Step is a single scheduler call, optionally with an expected outcome.
type Step struct {
	Op     Op     `yaml:"op"`
	Thread string `yaml:"thread,omitempty"`
	Queue  string `yaml:"queue,omitempty"`
	Value  *int   `yaml:"value,omitempty"`

	// Expect is the winner of a next step, the owner for expect_owner, or
	// "true"/"false" for increase and decrease.
	Expect string `yaml:"expect,omitempty"`

	// Error names the error the step must fail with: invalid_state or
	// invariant_violation.
	Error string `yaml:"error,omitempty"`
}

// Scenario is a scripted scheduler session.
type Scenario struct {
	Name    string       `yaml:"name"`
	Policy  string       `yaml:"policy"`
	Seed    uint64       `yaml:"seed"`
	Bounds  *Bounds      `yaml:"bounds"`
	Threads []ThreadSpec `yaml:"threads"`
	Queues  []QueueSpec  `yaml:"queues"`
	Steps   []Step       `yaml:"steps"`

	ids   map[string]donsched.ThreadID
	names []string // indexed by ThreadID
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	if sc.Name == "" {
		sc.Name = path
	}
	return sc, nil
}

// Parse decodes and validates a scenario. Threads referenced by steps but
// not declared are registered on first use with the policy default.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := sc.compile(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// ThreadName returns the scenario name of a thread id.
func (sc *Scenario) ThreadName(id donsched.ThreadID) string {
	if int(id) <= 0 || int(id) >= len(sc.names) {
		return fmt.Sprintf("#%d", id)
	}
	return sc.names[id]
}

func (sc *Scenario) compile() error {
	if sc.Policy != "" && !donsched.ParsePolicy(sc.Policy).IsValid() {
		return fmt.Errorf("unknown policy %q", sc.Policy)
	}

	// Thread ids start at 1 so that the zero ThreadID never names a thread.
	sc.ids = make(map[string]donsched.ThreadID)
	sc.names = []string{""}
	for _, t := range sc.Threads {
		if t.Name == "" || t.Name == None {
			return fmt.Errorf("invalid thread name %q", t.Name)
		}
		if _, dup := sc.ids[t.Name]; dup {
			return fmt.Errorf("duplicate thread %q", t.Name)
		}
		sc.addThread(t.Name)
	}

	queues := make(map[string]bool)
	for _, q := range sc.Queues {
		if q.Name == "" || queues[q.Name] {
			return fmt.Errorf("invalid or duplicate queue %q", q.Name)
		}
		queues[q.Name] = true
	}

	var errs []error
	for i, st := range sc.Steps {
		args, ok := ops[st.Op]
		if !ok {
			errs = append(errs, fmt.Errorf("step %d: unknown op %q", i, st.Op))
			continue
		}
		if args.thread {
			if st.Thread == "" || st.Thread == None {
				errs = append(errs, fmt.Errorf("step %d: %s needs a thread", i, st.Op))
			} else if _, ok := sc.ids[st.Thread]; !ok {
				sc.addThread(st.Thread)
			}
		}
		if args.queue && !queues[st.Queue] {
			errs = append(errs, fmt.Errorf("step %d: %s on unknown queue %q", i, st.Op, st.Queue))
		}
		if args.value && st.Value == nil {
			errs = append(errs, fmt.Errorf("step %d: %s needs a value", i, st.Op))
		}
		if _, ok := namedErrors[st.Error]; st.Error != "" && !ok {
			errs = append(errs, fmt.Errorf("step %d: unknown error %q", i, st.Error))
		}
	}
	return errors.Join(errs...)
}

func (sc *Scenario) addThread(name string) {
	sc.ids[name] = donsched.ThreadID(len(sc.names))
	sc.names = append(sc.names, name)
}

// options returns the scheduler options the scenario asks for.
func (sc *Scenario) options() []donsched.Option {
	var opts []donsched.Option
	if sc.Policy != "" || sc.Bounds != nil {
		p := donsched.Policies.MaxPriorityFifo
		if sc.Policy != "" {
			p = donsched.ParsePolicy(sc.Policy)
		}
		if sc.Bounds != nil {
			p = p.WithBounds(donsched.Bounds(*sc.Bounds))
		}
		opts = append(opts, donsched.WithPolicy(p))
	}
	if sc.Seed != 0 {
		opts = append(opts, donsched.WithSeed(sc.Seed))
	}
	return opts
}
