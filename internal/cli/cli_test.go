package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tomasbasham/donsched/internal/trace"
)

const handover = `
name: handover
bounds: {min: 0, max: 10, default: 1}
threads:
  - {name: low, priority: 2}
  - {name: high, priority: 9}
queues:
  - {name: lock, transfer: true}
steps:
  - {op: acquire, queue: lock, thread: low}
  - {op: wait, queue: lock, thread: high}
  - {op: expect_effective, thread: low, value: 9}
  - {op: next, queue: lock, expect: high}
`

const odds = `
name: odds
policy: lottery
seed: 11
threads:
  - {name: rich, priority: 99}
  - {name: poor, priority: 1}
queues:
  - {name: cpu}
steps:
  - {op: wait, queue: cpu, thread: rich}
  - {op: wait, queue: cpu, thread: poor}
  - {op: next, queue: cpu}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// execute runs the root command with a config file that does not exist, so
// that only defaults and flags apply.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append(args, "--config", filepath.Join(t.TempDir(), "none.yaml")))

	err := root.Execute()
	return out.String(), err
}

func TestRun_Passes(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "run", writeFile(t, "handover.yaml", handover))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, want := range []string{"step 3 next: high", "handover: 4 steps passed"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestRun_FailedStep(t *testing.T) {
	t.Parallel()

	src := strings.Replace(handover, "expect: high", "expect: low", 1)
	out, err := execute(t, "run", writeFile(t, "handover.yaml", src))
	if err == nil || !strings.Contains(err.Error(), "1 of 4 steps failed") {
		t.Errorf("expected a failed step, got: %v", err)
	}
	if !strings.Contains(out, "FAIL expected low, got high") {
		t.Errorf("expected the failure in the output, got:\n%s", out)
	}
}

func TestRun_UnknownPolicy(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "run", writeFile(t, "handover.yaml", handover), "--policy", "round-robin")
	if err == nil || !strings.Contains(err.Error(), "unknown policy") {
		t.Errorf("expected an unknown policy error, got: %v", err)
	}
}

func TestRun_Trace(t *testing.T) {
	t.Parallel()

	db := filepath.Join(t.TempDir(), "trace.db")
	out, err := execute(t, "run", writeFile(t, "handover.yaml", handover), "--trace", db)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "trace: "+db) {
		t.Errorf("expected the trace location in the output, got:\n%s", out)
	}

	st, err := trace.Open(db, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("open trace: %v", err)
	}
	runs, err := st.Runs(context.Background())
	st.Close()
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Name != "handover" || runs[0].Policy != "priority" {
		t.Fatalf("mismatch:\n  got:  %+v\n  want: one priority run named handover", runs)
	}

	out, err = execute(t, "trace", db)
	if err != nil {
		t.Fatalf("trace: %v", err)
	}
	if !strings.Contains(out, runs[0].ID) {
		t.Errorf("expected the run id in the listing, got:\n%s", out)
	}

	out, err = execute(t, "trace", db, runs[0].ID)
	if err != nil {
		t.Fatalf("trace events: %v", err)
	}
	for _, want := range []string{"priority", "acquire", "wait", "next", "1 -> 9"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}

	if _, err := execute(t, "trace", db, "no-such-run"); err == nil {
		t.Error("expected an error for an unknown run")
	}
}

func TestTrials(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "trials", writeFile(t, "odds.yaml", odds), "-n", "500", "--workers", "2")
	if err != nil {
		t.Fatalf("trials: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 3 {
		t.Fatalf("expected a header and at least one row, got:\n%s", out)
	}
	// Rows are ordered by wins, so the thread holding 99 of 100 tickets leads.
	if fields := strings.Fields(lines[2]); len(fields) < 2 || fields[1] != "rich" {
		t.Errorf("expected rich to win most often, got:\n%s", out)
	}
}

func TestTrials_NoTrials(t *testing.T) {
	t.Parallel()

	if _, err := execute(t, "trials", writeFile(t, "odds.yaml", odds), "-n", "0"); err == nil {
		t.Error("expected an error for zero trials")
	}
}
