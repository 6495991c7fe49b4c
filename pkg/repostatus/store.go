package repostatus

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/opensuse-zypp/zyppcore/pkg/ziperr"
)

// Operation names one history log entry's kind.
type Operation string

const (
	OpAddRepository    Operation = "add_repository"
	OpRemoveRepository Operation = "remove_repository"
	OpModifyRepository Operation = "modify_repository"
	OpRefreshMetadata  Operation = "refresh_metadata"
	OpAddService       Operation = "add_service"
	OpRemoveService    Operation = "remove_service"
	OpModifyService    Operation = "modify_service"
	OpRefreshService   Operation = "refresh_service"
)

// HistoryEntry is one row of the history log.
type HistoryEntry struct {
	ID        int64
	Alias     string
	Operation Operation
	Detail    string
	Timestamp time.Time
}

// Store persists RepoStatus fingerprints and the history log in a single
// sqlite database under the target root's cache directory.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if needed) the sqlite database at path, in WAL mode
// with a busy timeout, and ensures its schema exists.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &ziperr.IOError{Path: path, Detail: "open repostatus database", Cause: err}
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS repo_fingerprints (
		alias TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		alias TEXT NOT NULL,
		operation TEXT NOT NULL,
		detail TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_alias ON history(alias);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return &ziperr.IOError{Detail: "initialize repostatus schema", Cause: err}
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// LastFingerprint returns the previously recorded fingerprint for alias, or
// ("", false) if none is on record.
func (s *Store) LastFingerprint(ctx context.Context, alias string) (Fingerprint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fp string
	err := s.db.QueryRowContext(ctx, `SELECT fingerprint FROM repo_fingerprints WHERE alias = ?`, alias).Scan(&fp)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, &ziperr.IOError{Detail: "query repo fingerprint", Cause: err}
	}
	return Fingerprint(fp), true, nil
}

// SetFingerprint records fp as alias's current metadata fingerprint.
func (s *Store) SetFingerprint(ctx context.Context, alias string, fp Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repo_fingerprints (alias, fingerprint, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(alias) DO UPDATE SET fingerprint = excluded.fingerprint, updated_at = excluded.updated_at
	`, alias, string(fp), time.Now().Unix())
	if err != nil {
		return &ziperr.IOError{Detail: "write repo fingerprint", Cause: err}
	}
	return nil
}

// DeleteFingerprint drops the stored fingerprint for alias, used when a
// repository is removed.
func (s *Store) DeleteFingerprint(ctx context.Context, alias string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM repo_fingerprints WHERE alias = ?`, alias); err != nil {
		return &ziperr.IOError{Detail: "delete repo fingerprint", Cause: err}
	}
	return nil
}

// Record appends one history log entry.
func (s *Store) Record(ctx context.Context, alias string, op Operation, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO history (alias, operation, detail, created_at) VALUES (?, ?, ?, ?)
	`, alias, string(op), detail, time.Now().Unix())
	if err != nil {
		return &ziperr.IOError{Detail: "write history entry", Cause: err}
	}
	return nil
}

// History returns alias's history log entries, oldest first.
func (s *Store) History(ctx context.Context, alias string) ([]HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, alias, operation, detail, created_at FROM history
		WHERE alias = ? ORDER BY id ASC
	`, alias)
	if err != nil {
		return nil, &ziperr.IOError{Detail: "query history", Cause: err}
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var op string
		var ts int64
		if err := rows.Scan(&e.ID, &e.Alias, &op, &e.Detail, &ts); err != nil {
			return nil, &ziperr.IOError{Detail: "scan history row", Cause: err}
		}
		e.Operation = Operation(op)
		e.Timestamp = time.Unix(ts, 0).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &ziperr.IOError{Detail: "iterate history rows", Cause: err}
	}
	return out, nil
}
