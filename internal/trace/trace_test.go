package trace_test

import (
	"bytes"
	"context"
	"log/slog"
	"slices"
	"testing"

	"github.com/tomasbasham/donsched"
	"github.com/tomasbasham/donsched/internal/trace"
)

func testStore(t *testing.T) *trace.Store {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	st, err := trace.Open(":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestRecorder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := testStore(t)

	rec, err := st.NewRun(ctx, "handover", donsched.Policies.MaxPriorityFifo, 7)
	if err != nil {
		t.Fatalf("new run: %v", err)
	}

	s := donsched.New(donsched.WithEventHook(rec))
	q := s.NewQueue(true)

	s.SetPriority(1, 3)
	if err := s.Acquire(q, 1); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := s.WaitForAccess(q, 2); err != nil {
		t.Fatalf("wait for access: %v", err)
	}
	if _, _, err := s.NextThread(q); err != nil {
		t.Fatalf("next thread: %v", err)
	}
	if _, _, err := s.NextThread(q); err != nil {
		t.Fatalf("next thread: %v", err)
	}
	s.Exit(2)

	if err := rec.Err(); err != nil {
		t.Fatalf("record: %v", err)
	}

	events, err := st.Events(ctx, rec.RunID())
	if err != nil {
		t.Fatalf("events: %v", err)
	}

	want := []trace.Event{
		{Seq: 1, Kind: trace.KindPriority, Queue: -1, Thread: 1, From: 1, To: 3},
		{Seq: 2, Kind: trace.KindAcquire, Queue: q, Thread: 1},
		{Seq: 3, Kind: trace.KindWait, Queue: q, Thread: 2},
		{Seq: 4, Kind: trace.KindNext, Queue: q, Thread: 2},
		{Seq: 5, Kind: trace.KindAcquire, Queue: q, Thread: 2},
		{Seq: 6, Kind: trace.KindIdle, Queue: q, Thread: -1},
		{Seq: 7, Kind: trace.KindExit, Queue: -1, Thread: 2},
	}
	if !slices.Equal(events, want) {
		t.Errorf("mismatch:\n  got:  %+v\n  want: %+v", events, want)
	}
}

func TestStore_Runs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := testStore(t)

	first, err := st.NewRun(ctx, "first", donsched.Policies.WeightedLottery, 1<<63+5)
	if err != nil {
		t.Fatalf("new run: %v", err)
	}
	first.OnExit(1)
	first.OnExit(2)

	second, err := st.NewRun(ctx, "second", donsched.Policies.MaxPriorityFifo, 0)
	if err != nil {
		t.Fatalf("new run: %v", err)
	}
	if first.RunID() == second.RunID() {
		t.Fatal("expected distinct run ids")
	}

	runs, err := st.Runs(ctx)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got: %d", len(runs))
	}

	byName := make(map[string]trace.Run)
	for _, r := range runs {
		byName[r.Name] = r
	}

	got := byName["first"]
	if got.ID != first.RunID() || got.Policy != "lottery" || got.Seed != 1<<63+5 || got.Events != 2 {
		t.Errorf("mismatch:\n  got:  %+v\n  want: lottery run with seed %d and 2 events", got, uint64(1<<63+5))
	}
	if byName["second"].Events != 0 {
		t.Errorf("expected no events in the second run, got: %d", byName["second"].Events)
	}
}

func TestStore_EventsUnknownRun(t *testing.T) {
	t.Parallel()

	events, err := testStore(t).Events(context.Background(), "no-such-run")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events, got: %+v", events)
	}
}

func TestStore_MigrateTwice(t *testing.T) {
	t.Parallel()

	if err := testStore(t).Migrate(context.Background()); err != nil {
		t.Errorf("expected a second migration to succeed, got: %v", err)
	}
}
