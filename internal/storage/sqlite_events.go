package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/corveth/warmap/internal/snapshot"
)

// EventStore is the durable log of territory exchange events. Every ownership
// change the ingestor observes lands here; the analyzer reads it back to
// rebuild history.
type EventStore struct {
	db *sql.DB
}

// NewEventStore opens (or creates) the SQLite database at path and runs migrations.
func NewEventStore(dbPath string) (*EventStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Connection pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &EventStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

// migrate creates the schema if it doesn't exist.
func (s *EventStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS exchange_events (
		ts        INTEGER NOT NULL,
		territory TEXT NOT NULL,
		guild     TEXT NOT NULL,
		prefix    TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (ts, territory, guild)
	);

	CREATE INDEX IF NOT EXISTS idx_exchange_events_ts ON exchange_events(ts);
	CREATE INDEX IF NOT EXISTS idx_exchange_events_territory ON exchange_events(territory);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *EventStore) Close() error {
	return s.db.Close()
}

// InsertBatch writes a batch of exchange events in a single transaction.
// Duplicate (ts, territory, guild) rows are ignored, so replaying a Kafka
// partition after a consumer restart is safe.
func (s *EventStore) InsertBatch(events []snapshot.RawExchange) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO exchange_events (ts, territory, guild, prefix)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.Exec(ev.Unix, ev.Territory, ev.Guild, ev.Prefix); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// LoadSince returns all events with ts >= sinceUnix ordered by timestamp.
func (s *EventStore) LoadSince(sinceUnix int64) ([]snapshot.RawExchange, error) {
	rows, err := s.db.Query(`
		SELECT ts, territory, guild, prefix
		FROM exchange_events
		WHERE ts >= ?
		ORDER BY ts ASC, territory ASC, guild ASC`, sinceUnix)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []snapshot.RawExchange
	for rows.Next() {
		var ev snapshot.RawExchange
		if err := rows.Scan(&ev.Unix, &ev.Territory, &ev.Guild, &ev.Prefix); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Count returns the total number of stored events.
func (s *EventStore) Count() (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM exchange_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// Prune deletes events older than beforeUnix and returns the number removed.
func (s *EventStore) Prune(beforeUnix int64) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM exchange_events WHERE ts < ?`, beforeUnix)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return deleted, nil
}
