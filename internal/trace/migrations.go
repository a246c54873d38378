package trace

import (
	"context"
	"database/sql"
	"fmt"
)

// schema holds the DDL of the trace database. Each statement uses IF NOT
// EXISTS so that migrating twice is harmless.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		policy     TEXT NOT NULL,
		seed       INTEGER NOT NULL DEFAULT 0,
		started_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS events (
		run_id        TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq           INTEGER NOT NULL,
		kind          TEXT NOT NULL,
		queue_id      INTEGER NOT NULL DEFAULT -1,
		thread_id     INTEGER NOT NULL DEFAULT -1,
		from_priority INTEGER NOT NULL DEFAULT 0,
		to_priority   INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (run_id, seq)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_events_thread ON events(run_id, thread_id)`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
