// Package trace records scheduler events into a SQLite database so that a
// run can be inspected after the fact.
package trace

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/tomasbasham/donsched"
)

// Kind is the type of a recorded event.
type Kind string

const (
	KindWait     Kind = "wait"
	KindAcquire  Kind = "acquire"
	KindNext     Kind = "next"
	KindIdle     Kind = "idle" // next on an empty queue
	KindRelease  Kind = "release"
	KindPriority Kind = "priority"
	KindExit     Kind = "exit"
)

// Run describes a recorded run.
type Run struct {
	ID        string
	Name      string
	Policy    string
	Seed      uint64
	StartedAt time.Time
	Events    int
}

// Event is a single recorded scheduler event. Queue and Thread are -1 when
// the event does not concern one.
type Event struct {
	Seq    int64
	Kind   Kind
	Queue  donsched.QueueID
	Thread donsched.ThreadID
	From   int
	To     int
}

// Store is a SQLite database of recorded runs.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the trace database at path. Use ":memory:" for an
// in-memory database.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	// Events arrive one at a time under the scheduler lock; a single
	// connection also keeps an in-memory database alive across statements.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &Store{
		db:     db,
		logger: logger.With("component", "trace"),
	}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// NewRun inserts a run and returns a [Recorder] that appends its events.
func (s *Store) NewRun(ctx context.Context, name string, policy donsched.Policy, seed uint64) (*Recorder, error) {
	id := uuid.NewString()
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", id)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, name, policy, seed, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, name, policy.String(), int64(seed), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return &Recorder{store: s, ctx: ctx, id: id}, nil
}

// Runs lists every recorded run, oldest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs")

	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.name, r.policy, r.seed, r.started_at, COUNT(e.seq)
		 FROM runs r LEFT JOIN events e ON e.run_id = r.id
		 GROUP BY r.id ORDER BY r.started_at, r.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r         Run
			seed      int64
			startedAt string
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Policy, &seed, &startedAt, &r.Events); err != nil {
			return nil, err
		}
		r.Seed = uint64(seed)
		r.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
		if err != nil {
			return nil, fmt.Errorf("parse started_at of %s: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Events returns the events of a run in the order they happened. An unknown
// run has no events.
func (s *Store) Events(ctx context.Context, runID string) ([]Event, error) {
	s.logger.Debug("sql", "op", "select", "table", "events", "run_id", runID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, kind, queue_id, thread_id, from_priority, to_priority
		 FROM events WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Seq, &e.Kind, &e.Queue, &e.Thread, &e.From, &e.To); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Recorder implements [donsched.EventHook] by appending every event to its
// run. Hooks cannot fail, so the first write error is kept and reported by
// [Recorder.Err]; later events are dropped.
type Recorder struct {
	store *Store
	ctx   context.Context
	id    string

	mu  sync.Mutex
	seq int64
	err error
}

var _ donsched.EventHook = (*Recorder)(nil)

// RunID returns the id of the run being recorded.
func (r *Recorder) RunID() string {
	return r.id
}

// Err returns the first error met while recording.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.err
}

func (r *Recorder) OnWait(q donsched.QueueID, t donsched.ThreadID) {
	r.record(Event{Kind: KindWait, Queue: q, Thread: t})
}

func (r *Recorder) OnAcquire(q donsched.QueueID, t donsched.ThreadID) {
	r.record(Event{Kind: KindAcquire, Queue: q, Thread: t})
}

func (r *Recorder) OnNext(q donsched.QueueID, next donsched.ThreadID, ok bool) {
	if !ok {
		r.record(Event{Kind: KindIdle, Queue: q, Thread: -1})
		return
	}
	r.record(Event{Kind: KindNext, Queue: q, Thread: next})
}

func (r *Recorder) OnRelease(q donsched.QueueID, t donsched.ThreadID) {
	r.record(Event{Kind: KindRelease, Queue: q, Thread: t})
}

func (r *Recorder) OnPriorityChange(t donsched.ThreadID, from, to int) {
	r.record(Event{Kind: KindPriority, Queue: -1, Thread: t, From: from, To: to})
}

func (r *Recorder) OnExit(t donsched.ThreadID) {
	r.record(Event{Kind: KindExit, Queue: -1, Thread: t})
}

func (r *Recorder) record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return
	}

	r.seq++
	_, err := r.store.db.ExecContext(r.ctx,
		`INSERT INTO events (run_id, seq, kind, queue_id, thread_id, from_priority, to_priority)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.id, r.seq, string(e.Kind), int64(e.Queue), int64(e.Thread), e.From, e.To,
	)
	if err != nil {
		r.err = fmt.Errorf("record %s event %d: %w", e.Kind, r.seq, err)
		r.store.logger.Warn("dropping trace events", "run_id", r.id, "error", err)
	}
}
