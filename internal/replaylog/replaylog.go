// Package replaylog implements an optional SQLite-backed sink used only
// by the `replay` CLI command to persist one run's emitted records and
// compare them against a second run for determinism.
//
// This is narrowly scoped on purpose: entity state lives only for the
// simulation run and is never persisted, so this package never stores
// entity state, only a side log of emitted records for a one-off
// comparison.
package replaylog

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/resinker/internal/scheduler"
	"github.com/roach88/resinker/internal/value"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	seq        INTEGER PRIMARY KEY,
	event_type TEXT NOT NULL,
	timestamp  TEXT NOT NULL,
	payload    TEXT NOT NULL
);
`

// Log is an append-only record of one run's emitted events, backed by SQLite.
type Log struct {
	db  *sql.DB
	seq int
}

// Open creates or truncates the database at path and applies the schema.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("replaylog: open %q: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("replaylog: connect: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("replaylog: %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("replaylog: apply schema: %w", err)
	}
	if _, err := db.Exec("DELETE FROM records"); err != nil {
		db.Close()
		return nil, fmt.Errorf("replaylog: clear previous run: %w", err)
	}
	return &Log{db: db}, nil
}

// Name implements sink.Sink so a Log can be wired into a run's fan-out
// during `resinker replay`.
func (l *Log) Name() string { return "replaylog" }

// Write appends rec to the log, in call order.
func (l *Log) Write(rec scheduler.Record) error {
	payload, err := value.MarshalJSON(rec.Payload)
	if err != nil {
		return fmt.Errorf("replaylog: marshal payload: %w", err)
	}
	l.seq++
	_, err = l.db.Exec(
		"INSERT INTO records (seq, event_type, timestamp, payload) VALUES (?, ?, ?, ?)",
		l.seq, rec.EventType, rec.Timestamp.Format("2006-01-02T15:04:05Z07:00"), string(payload),
	)
	return err
}

func (l *Log) Flush() error { return nil }

func (l *Log) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// StoredRecord is one row read back for comparison.
type StoredRecord struct {
	Seq       int
	EventType string
	Timestamp string
	Payload   string
}

// ReadAll returns every record in sequence order.
func (l *Log) ReadAll() ([]StoredRecord, error) {
	rows, err := l.db.Query("SELECT seq, event_type, timestamp, payload FROM records ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("replaylog: query: %w", err)
	}
	defer rows.Close()

	var out []StoredRecord
	for rows.Next() {
		var r StoredRecord
		if err := rows.Scan(&r.Seq, &r.EventType, &r.Timestamp, &r.Payload); err != nil {
			return nil, fmt.Errorf("replaylog: scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Diff compares two record sequences, ignoring timestamp (which only
// matches across runs when time_progression.start_time is not "now"),
// returning a human-readable description of the first mismatch, or "" if
// the sequences are identical on event_type and payload.
func Diff(a, b []StoredRecord) string {
	if len(a) != len(b) {
		return fmt.Sprintf("record count differs: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].EventType != b[i].EventType {
			return fmt.Sprintf("record %d: event_type differs: %q vs %q", i, a[i].EventType, b[i].EventType)
		}
		if a[i].Payload != b[i].Payload {
			return fmt.Sprintf("record %d: payload differs: %s vs %s", i, a[i].Payload, b[i].Payload)
		}
	}
	return ""
}
