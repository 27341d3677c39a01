// Package events keeps a process-lifetime audit trail of registration,
// build, warm-up, and teardown activity in a SQLite database. the schema
// is dropped and recreated on every Open: the journal never survives a
// restart and is never read to reconstruct routing or lifecycle state, it
// exists purely so an operator can ask "what happened to app X" without
// grepping container logs by hand.
package events

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
DROP TABLE IF EXISTS events;
CREATE TABLE events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	app_name   TEXT NOT NULL,
	kind       TEXT NOT NULL,
	detail     TEXT NOT NULL,
	at         DATETIME NOT NULL
);
`

// Kind enumerates the categories of event appended to the journal.
type Kind string

const (
	KindRegistrationAttempt Kind = "registration_attempt"
	KindBuildSucceeded      Kind = "build_succeeded"
	KindBuildFailed         Kind = "build_failed"
	KindWarmUp              Kind = "warm_up"
	KindIdleEviction        Kind = "idle_eviction"
	KindTransportFailure    Kind = "transport_failure"
)

// Event is one row of the journal.
type Event struct {
	AppName string    `json:"app_name"`
	Kind    Kind      `json:"kind"`
	Detail  string    `json:"detail"`
	At      time.Time `json:"at"`
}

// Journal wraps the underlying *sql.DB. SetMaxOpenConns(1) matches the
// teacher's db package: SQLite does not tolerate concurrent writers well,
// and the journal writes far more often than it's read.
type Journal struct {
	conn *sql.DB
}

// Open creates (or truncates) the journal database at path and prepares
// its schema.
func Open(path string) (*Journal, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open events database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply events schema: %w", err)
	}

	return &Journal{conn: conn}, nil
}

// Close releases the underlying database handle.
func (journal *Journal) Close() error {
	return journal.conn.Close()
}

// Append records one event. failures to append are not fatal to the
// caller's operation, they are diagnostic-only -- callers typically log a
// warning and continue rather than propagate the error.
func (journal *Journal) Append(appName string, kind Kind, detail string) error {
	_, err := journal.conn.Exec(
		`INSERT INTO events (app_name, kind, detail, at) VALUES (?, ?, ?, ?)`,
		appName, string(kind), detail, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append event for %q: %w", appName, err)
	}
	return nil
}

// Recent returns the most recent 100 events for appName, newest first.
func (journal *Journal) Recent(appName string) ([]Event, error) {
	rows, err := journal.conn.Query(
		`SELECT app_name, kind, detail, at FROM events WHERE app_name = ? ORDER BY id DESC LIMIT 100`,
		appName,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events for %q: %w", appName, err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		var kind string
		if err := rows.Scan(&event.AppName, &kind, &event.Detail, &event.At); err != nil {
			return nil, fmt.Errorf("failed to scan event row for %q: %w", appName, err)
		}
		event.Kind = Kind(kind)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading event rows for %q: %w", appName, err)
	}

	return events, nil
}
