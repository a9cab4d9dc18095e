// Package journal is a flat append-only event log in SQLite, separate from
// the relational store. One row per pipeline event with the full payload as
// JSON, for replaying a session or debugging a decision after the fact.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

type EventJournal struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	ownsDB bool
}

// Record is one journal row. Payload holds the marshalled event.
type Record struct {
	ID      int64           `json:"id"`
	TS      int64           `json:"ts"`
	Kind    string          `json:"kind"`
	Symbol  string          `json:"symbol,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Query filters Recent lookups. Zero fields match everything.
type Query struct {
	Kind   string
	Symbol string
	Limit  int
	Offset int
}

func New(path string) (*EventJournal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("journal path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &EventJournal{db: db, path: path, ownsDB: true}, nil
}

// UseExternalDB reuses an already-open SQLite connection, avoiding a second
// writer against the same file.
func UseExternalDB(db *sql.DB) (*EventJournal, error) {
	if db == nil {
		return nil, fmt.Errorf("journal: nil db")
	}
	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	return &EventJournal{db: db}, nil
}

func ensureSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS event_journal (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts INTEGER NOT NULL,
	kind TEXT NOT NULL,
	symbol TEXT NOT NULL DEFAULT '',
	payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_event_journal_ts ON event_journal(ts);
CREATE INDEX IF NOT EXISTS idx_event_journal_kind_ts ON event_journal(kind, ts);
`
	_, err := db.Exec(schema)
	return err
}

// Append marshals payload and inserts one row. The write lock serializes
// appends; SQLite allows a single writer anyway.
func (j *EventJournal) Append(ctx context.Context, kind, symbol string, payload any) error {
	if j == nil || j.db == nil {
		return nil
	}
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return fmt.Errorf("journal: kind is required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("journal: marshal payload: %w", err)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO event_journal (ts, kind, symbol, payload) VALUES (?, ?, ?, ?)`,
		time.Now().UnixMilli(), kind, strings.ToUpper(strings.TrimSpace(symbol)), string(raw))
	return err
}

// Recent returns rows newest first.
func (j *EventJournal) Recent(ctx context.Context, q Query) ([]Record, error) {
	if j == nil || j.db == nil {
		return nil, fmt.Errorf("journal not initialized")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	var (
		where []string
		args  []any
	)
	if q.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, q.Kind)
	}
	if q.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, strings.ToUpper(q.Symbol))
	}
	query := "SELECT id, ts, kind, symbol, payload FROM event_journal"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, q.Offset)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec     Record
			payload string
		)
		if err := rows.Scan(&rec.ID, &rec.TS, &rec.Kind, &rec.Symbol, &payload); err != nil {
			return nil, err
		}
		rec.Payload = json.RawMessage(payload)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (j *EventJournal) Close() error {
	if j == nil || j.db == nil || !j.ownsDB {
		return nil
	}
	return j.db.Close()
}
