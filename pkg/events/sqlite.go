package events

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteSchema is the event log schema. Events are append-only; consumers
// that need richer storage build their own views from this log.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS proxy_events (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id  TEXT NOT NULL,
    provider    TEXT,
    kind        TEXT NOT NULL,
    path        TEXT,
    detail      TEXT,
    payload     TEXT,
    created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_proxy_events_request ON proxy_events(request_id);
CREATE INDEX IF NOT EXISTS idx_proxy_events_kind ON proxy_events(kind);
`

// SQLiteSinkConfig contains configuration for the sqlite event sink.
type SQLiteSinkConfig struct {
	// Path is the database file path.
	Path string

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// SQLiteSink persists proxy events to a sqlite database. It is a reference
// consumer of the event stream; losing it never affects proxy correctness.
type SQLiteSink struct {
	db     *sql.DB
	insert *sql.Stmt
	mu     sync.Mutex
	logger *slog.Logger
}

// NewSQLiteSink opens (or creates) the event database at the configured
// path, enables WAL mode and prepares the insert statement.
func NewSQLiteSink(cfg SQLiteSinkConfig) (*SQLiteSink, error) {
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	logger := slog.Default().With("component", "events.sqlite")

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event database %q: %w", cfg.Path, err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", cfg.BusyTimeout.Milliseconds())); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create event schema: %w", err)
	}

	insert, err := db.Prepare(`INSERT INTO proxy_events
		(request_id, provider, kind, path, detail, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare insert: %w", err)
	}

	logger.Info("sqlite event sink initialized", "path", cfg.Path)

	return &SQLiteSink{db: db, insert: insert, logger: logger}, nil
}

// Emit appends the event to the log. Write failures are logged, never
// propagated: a broken sink must not fail the request that produced the
// event.
func (s *SQLiteSink) Emit(ev Event) {
	var payload []byte
	if ev.Payload != nil {
		var err error
		payload, err = json.Marshal(ev.Payload)
		if err != nil {
			payload = nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.insert.Exec(ev.RequestID, ev.Provider, string(ev.Kind), ev.Path, ev.Detail, string(payload), ev.Time)
	if err != nil {
		s.logger.Warn("failed to persist proxy event", "error", err, "request_id", ev.RequestID)
	}
}

// Count returns the number of stored events of the given kind, or all
// events when kind is empty.
func (s *SQLiteSink) Count(kind Kind) (int, error) {
	var (
		n   int
		err error
	)
	if kind == "" {
		err = s.db.QueryRow("SELECT COUNT(*) FROM proxy_events").Scan(&n)
	} else {
		err = s.db.QueryRow("SELECT COUNT(*) FROM proxy_events WHERE kind = ?", string(kind)).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// Close releases the prepared statement and the database handle.
func (s *SQLiteSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.insert != nil {
		_ = s.insert.Close()
	}
	return s.db.Close()
}
