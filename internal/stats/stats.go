// Package stats persists per-key press and block counters plus a
// journal of blocked events to SQLite. Writes are buffered and flushed
// off the capture hot path.
package stats

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Schema for the chatterd stats store.
const schema = `
CREATE TABLE IF NOT EXISTS key_counters (
    key             INTEGER PRIMARY KEY,
    press_count     INTEGER NOT NULL DEFAULT 0,
    blocked_count   INTEGER NOT NULL DEFAULT 0,
    last_blocked_ms INTEGER
);

CREATE TABLE IF NOT EXISTS blocked_events (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    key             INTEGER NOT NULL,
    timestamp_ms    INTEGER NOT NULL,
    delta_ms        INTEGER NOT NULL,
    policy          TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_blocked_timestamp ON blocked_events(timestamp_ms);
CREATE INDEX IF NOT EXISTS idx_blocked_key ON blocked_events(key, timestamp_ms);
`

// KeyCounter holds aggregated counters for one key code.
type KeyCounter struct {
	Key           uint16
	PressCount    uint64
	BlockedCount  uint64
	LastBlockedMs int64
}

// BlockedEvent is one journaled suppression.
type BlockedEvent struct {
	ID          int64
	Key         uint16
	TimestampMs int64
	DeltaMs     int64
	Policy      string
}

// Store represents the SQLite stats store.
type Store struct {
	db *sql.DB

	mu      sync.Mutex
	pending []BlockedEvent
	presses map[uint16]uint64

	flushEvery time.Duration
	done       chan struct{}
	wg         sync.WaitGroup
	closed     bool
}

// Open opens or creates the SQLite database at the given path, applies
// the schema, and starts the background flusher.
func Open(path string, flushEvery time.Duration) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if flushEvery <= 0 {
		flushEvery = 5 * time.Second
	}

	s := &Store{
		db:         db,
		presses:    make(map[uint16]uint64),
		flushEvery: flushEvery,
		done:       make(chan struct{}),
	}

	s.wg.Add(1)
	go s.flushLoop()

	return s, nil
}

// Close flushes pending data and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()

	if err := s.Flush(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}

// RecordPress buffers one passed press for a key. Called on the
// capture hot path; never touches the database.
func (s *Store) RecordPress(key uint16) {
	s.mu.Lock()
	s.presses[key]++
	s.mu.Unlock()
}

// RecordBlocked buffers one suppressed press. Called on the capture
// hot path; never touches the database.
func (s *Store) RecordBlocked(key uint16, timestampMs, deltaMs int64, policy string) {
	s.mu.Lock()
	s.pending = append(s.pending, BlockedEvent{
		Key:         key,
		TimestampMs: timestampMs,
		DeltaMs:     deltaMs,
		Policy:      policy,
	})
	s.mu.Unlock()
}

// flushLoop periodically writes buffered counters out.
func (s *Store) flushLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.flushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Flush()
		case <-s.done:
			return
		}
	}
}

// Flush writes all buffered presses and blocked events in one
// transaction.
func (s *Store) Flush() error {
	s.mu.Lock()
	pending := s.pending
	presses := s.presses
	s.pending = nil
	s.presses = make(map[uint16]uint64)
	s.mu.Unlock()

	if len(pending) == 0 && len(presses) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	pressStmt, err := tx.Prepare(`
		INSERT INTO key_counters (key, press_count, blocked_count)
		VALUES (?, ?, 0)
		ON CONFLICT(key) DO UPDATE SET press_count = press_count + excluded.press_count`)
	if err != nil {
		return fmt.Errorf("prepare press statement: %w", err)
	}
	defer pressStmt.Close()

	for key, count := range presses {
		if _, err := pressStmt.Exec(key, count); err != nil {
			return fmt.Errorf("upsert press counter: %w", err)
		}
	}

	if len(pending) > 0 {
		eventStmt, err := tx.Prepare(`
			INSERT INTO blocked_events (key, timestamp_ms, delta_ms, policy)
			VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare event statement: %w", err)
		}
		defer eventStmt.Close()

		blockStmt, err := tx.Prepare(`
			INSERT INTO key_counters (key, press_count, blocked_count, last_blocked_ms)
			VALUES (?, 0, 1, ?)
			ON CONFLICT(key) DO UPDATE SET
				blocked_count = blocked_count + 1,
				last_blocked_ms = excluded.last_blocked_ms`)
		if err != nil {
			return fmt.Errorf("prepare block statement: %w", err)
		}
		defer blockStmt.Close()

		for _, e := range pending {
			if _, err := eventStmt.Exec(e.Key, e.TimestampMs, e.DeltaMs, e.Policy); err != nil {
				return fmt.Errorf("insert blocked event: %w", err)
			}
			if _, err := blockStmt.Exec(e.Key, e.TimestampMs); err != nil {
				return fmt.Errorf("upsert block counter: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// Counters returns all per-key counters, most-blocked first.
func (s *Store) Counters() ([]KeyCounter, error) {
	rows, err := s.db.Query(`
		SELECT key, press_count, blocked_count, COALESCE(last_blocked_ms, 0)
		FROM key_counters
		ORDER BY blocked_count DESC, key ASC`)
	if err != nil {
		return nil, fmt.Errorf("query counters: %w", err)
	}
	defer rows.Close()

	return scanCounters(rows)
}

// TopBlocked returns up to limit keys with the most blocked presses.
func (s *Store) TopBlocked(limit int) ([]KeyCounter, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.Query(`
		SELECT key, press_count, blocked_count, COALESCE(last_blocked_ms, 0)
		FROM key_counters
		WHERE blocked_count > 0
		ORDER BY blocked_count DESC, key ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top blocked: %w", err)
	}
	defer rows.Close()

	return scanCounters(rows)
}

// Counter returns the counters for one key, or nil when unseen.
func (s *Store) Counter(key uint16) (*KeyCounter, error) {
	var c KeyCounter
	err := s.db.QueryRow(`
		SELECT key, press_count, blocked_count, COALESCE(last_blocked_ms, 0)
		FROM key_counters WHERE key = ?`, key,
	).Scan(&c.Key, &c.PressCount, &c.BlockedCount, &c.LastBlockedMs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get counter: %w", err)
	}
	return &c, nil
}

// BlockedSince returns journaled blocked events at or after the given
// Unix-millisecond timestamp, oldest first.
func (s *Store) BlockedSince(sinceMs int64) ([]BlockedEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, key, timestamp_ms, delta_ms, policy
		FROM blocked_events
		WHERE timestamp_ms >= ?
		ORDER BY timestamp_ms ASC`, sinceMs)
	if err != nil {
		return nil, fmt.Errorf("query blocked events: %w", err)
	}
	defer rows.Close()

	var events []BlockedEvent
	for rows.Next() {
		var e BlockedEvent
		if err := rows.Scan(&e.ID, &e.Key, &e.TimestampMs, &e.DeltaMs, &e.Policy); err != nil {
			return nil, fmt.Errorf("scan blocked event: %w", err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blocked events: %w", err)
	}

	return events, nil
}

// Totals returns the summed press and blocked counts across all keys,
// including buffered data not yet flushed.
func (s *Store) Totals() (presses, blocked uint64, err error) {
	err = s.db.QueryRow(`
		SELECT COALESCE(SUM(press_count), 0), COALESCE(SUM(blocked_count), 0)
		FROM key_counters`,
	).Scan(&presses, &blocked)
	if err != nil {
		return 0, 0, fmt.Errorf("query totals: %w", err)
	}

	s.mu.Lock()
	for _, count := range s.presses {
		presses += count
	}
	blocked += uint64(len(s.pending))
	s.mu.Unlock()

	return presses, blocked, nil
}

// Reset clears all counters and the blocked-event journal.
func (s *Store) Reset() error {
	s.mu.Lock()
	s.pending = nil
	s.presses = make(map[uint16]uint64)
	s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM blocked_events`); err != nil {
		return fmt.Errorf("clear blocked events: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM key_counters`); err != nil {
		return fmt.Errorf("clear key counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// Prune removes journaled blocked events older than the cutoff. The
// aggregated counters are kept.
func (s *Store) Prune(beforeMs int64) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM blocked_events WHERE timestamp_ms < ?`, beforeMs)
	if err != nil {
		return 0, fmt.Errorf("prune blocked events: %w", err)
	}
	return result.RowsAffected()
}

// scanCounters is a helper to scan counter rows into a slice.
func scanCounters(rows *sql.Rows) ([]KeyCounter, error) {
	var counters []KeyCounter

	for rows.Next() {
		var c KeyCounter
		if err := rows.Scan(&c.Key, &c.PressCount, &c.BlockedCount, &c.LastBlockedMs); err != nil {
			return nil, fmt.Errorf("scan counter: %w", err)
		}
		counters = append(counters, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counters: %w", err)
	}

	return counters, nil
}
