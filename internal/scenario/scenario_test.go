package scenario_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/tomasbasham/donsched/internal/scenario"
)

const inversion = `
name: inversion
policy: priority
bounds: {min: 0, max: 10, default: 1}
threads:
  - {name: L, priority: 2}
  - {name: A, priority: 5}
  - {name: B, priority: 10}
  - {name: C, priority: 3}
queues:
  - {name: lock, transfer: true}
steps:
  - {op: acquire, queue: lock, thread: L}
  - {op: wait, queue: lock, thread: A}
  - {op: wait, queue: lock, thread: B}
  - {op: wait, queue: lock, thread: C}
  - {op: expect_effective, thread: L, value: 10}
  - {op: expect_priority, thread: L, value: 2}
  - {op: next, queue: lock, expect: B}
  - {op: expect_owner, queue: lock, expect: B}
  - {op: expect_effective, thread: L, value: 2}
  - {op: next, queue: lock, expect: A}
  - {op: release, queue: lock, thread: A}
  - {op: expect_owner, queue: lock, expect: none}
`

const draw = `
name: draw
policy: lottery
seed: 2009
threads:
  - {name: A, priority: 2}
  - {name: B, priority: 5}
  - {name: C, priority: 10}
  - {name: D, priority: 3}
queues:
  - {name: cpu}
steps:
  - {op: wait, queue: cpu, thread: A}
  - {op: wait, queue: cpu, thread: B}
  - {op: wait, queue: cpu, thread: C}
  - {op: wait, queue: cpu, thread: D}
  - {op: next, queue: cpu}
`

func parse(t *testing.T, src string) *scenario.Scenario {
	t.Helper()

	sc, err := scenario.Parse([]byte(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return sc
}

func TestRun(t *testing.T) {
	t.Parallel()

	res, err := parse(t, inversion).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Passed() {
		t.Errorf("expected every step to pass, got failures: %+v", res.Failures())
	}

	var winners []string
	for _, st := range res.Steps {
		if st.Op == scenario.OpNext {
			winners = append(winners, st.Winner)
		}
	}
	if want := []string{"B", "A"}; !slices.Equal(winners, want) {
		t.Errorf("mismatch:\n  got:  %v\n  want: %v", winners, want)
	}
}

func TestRun_ReportsFailures(t *testing.T) {
	t.Parallel()

	src := `
threads:
  - {name: A, priority: 3}
queues:
  - {name: q, transfer: true}
steps:
  - {op: expect_priority, thread: A, value: 4}
  - {op: wait, queue: q, thread: A}
  - {op: wait, queue: q, thread: A, error: invalid_state}
  - {op: acquire, queue: q, thread: A}
  - {op: increase, thread: A, expect: "true"}
  - {op: next, queue: q, expect: none}
`
	res, err := parse(t, src).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	var failed []int
	for _, st := range res.Failures() {
		failed = append(failed, st.Index)
	}
	// 0: wrong base priority, 3: acquire while waiting, 5: A was still queued.
	if want := []int{0, 3, 5}; !slices.Equal(failed, want) {
		t.Errorf("mismatch:\n  got:  %v\n  want: %v", failed, want)
	}
	if got := res.Steps[5].Winner; got != "A" {
		t.Errorf("mismatch:\n  got:  %q\n  want: %q", got, "A")
	}
}

func TestRun_Cycle(t *testing.T) {
	t.Parallel()

	src := `
queues:
  - {name: q1, transfer: true}
  - {name: q2, transfer: true}
steps:
  - {op: acquire, queue: q1, thread: A}
  - {op: acquire, queue: q2, thread: B}
  - {op: wait, queue: q2, thread: A}
  - {op: wait, queue: q1, thread: B}
  - {op: expect_effective, thread: A, value: 1, error: invariant_violation}
`
	res, err := parse(t, src).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Passed() {
		t.Errorf("expected the cycle to be reported, got failures: %+v", res.Failures())
	}
}

func TestRun_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := parse(t, inversion).Run(ctx); err == nil {
		t.Error("expected an error from a cancelled context")
	}
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		src  string
		want string
	}{
		"unknown policy": {
			src:  "policy: round-robin\n",
			want: "unknown policy",
		},
		"unknown op": {
			src:  "steps:\n  - {op: yield, thread: A}\n",
			want: "unknown op",
		},
		"unknown queue": {
			src:  "steps:\n  - {op: wait, queue: q, thread: A}\n",
			want: "unknown queue",
		},
		"missing value": {
			src:  "steps:\n  - {op: set_priority, thread: A}\n",
			want: "needs a value",
		},
		"missing thread": {
			src:  "queues:\n  - {name: q}\nsteps:\n  - {op: wait, queue: q}\n",
			want: "needs a thread",
		},
		"duplicate thread": {
			src:  "threads:\n  - {name: A}\n  - {name: A}\n",
			want: "duplicate thread",
		},
		"unknown error": {
			src:  "steps:\n  - {op: exit, thread: A, error: boom}\n",
			want: "unknown error",
		},
		"malformed yaml": {
			src:  "steps: [\n",
			want: "parse scenario",
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := scenario.Parse([]byte(tt.src))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got: %v", tt.want, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "draw.yaml")
	if err := os.WriteFile(path, []byte(strings.Replace(draw, "name: draw\n", "", 1)), 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}

	sc, err := scenario.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if sc.Name != path {
		t.Errorf("expected the path as the default name, got: %q", sc.Name)
	}

	if _, err := scenario.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestRunTrials(t *testing.T) {
	t.Parallel()

	sc := parse(t, draw)

	const n = 4000
	tally, err := sc.RunTrials(context.Background(), n, 8)
	if err != nil {
		t.Fatalf("trials: %v", err)
	}
	if tally.Trials != n || tally.Failed != 0 {
		t.Errorf("mismatch:\n  got:  %d trials, %d failed\n  want: %d trials, 0 failed", tally.Trials, tally.Failed, n)
	}

	var total int64
	for _, w := range tally.Wins {
		total += w.Count
	}
	if total != n {
		t.Errorf("expected one winner per trial, got: %d", total)
	}

	for thread, tickets := range map[string]float64{"A": 2, "B": 5, "C": 10, "D": 3} {
		want := tickets / 20
		if got := tally.Share(4, thread); math.Abs(got-want) > 0.05 {
			t.Errorf("share of %s mismatch:\n  got:  %.3f\n  want: %.3f", thread, got, want)
		}
	}

	again, err := sc.RunTrials(context.Background(), n, 3)
	if err != nil {
		t.Fatalf("trials: %v", err)
	}
	if !slices.Equal(tally.Wins, again.Wins) {
		t.Error("expected trials with the same seeds to agree")
	}
}

func TestRunTrials_NoTrials(t *testing.T) {
	t.Parallel()

	if _, err := parse(t, draw).RunTrials(context.Background(), 0, 1); err == nil {
		t.Error("expected an error for zero trials")
	}
}
