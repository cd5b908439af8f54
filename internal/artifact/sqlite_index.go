package artifact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

const indexSchema = `
CREATE TABLE IF NOT EXISTS stage_index (
    session_id  TEXT NOT NULL,
    stage       TEXT NOT NULL,
    path        TEXT NOT NULL,
    timestamp   TEXT NOT NULL,
    fingerprint TEXT NOT NULL,
    updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (session_id, stage)
);

CREATE TABLE IF NOT EXISTS index_generation (
    session_id  TEXT PRIMARY KEY,
    generation  TEXT NOT NULL,
    updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SQLiteIndex is a persistent stage index shared by every session under a
// sessions directory. Each session sees its own rows through Session.
type SQLiteIndex struct {
	db *sql.DB
}

// OpenSQLiteIndex opens (or creates) the index database at dbPath.
func OpenSQLiteIndex(ctx context.Context, dbPath string) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("index: open database: %w", err)
	}

	// SQLite has a single writer; one pooled connection keeps PRAGMAs in effect.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, indexSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: create schema: %w", err)
	}

	return &SQLiteIndex{db: db}, nil
}

// Close releases the database.
func (x *SQLiteIndex) Close() error {
	return x.db.Close()
}

// Session returns the Index view for one session.
func (x *SQLiteIndex) Session(sessionID string) Index {
	return &sqliteSessionIndex{db: x.db, session: sessionID}
}

type sqliteSessionIndex struct {
	db      *sql.DB
	session string
}

func (s *sqliteSessionIndex) Lookup(stage string) (Location, bool, error) {
	const q = `SELECT path, timestamp, fingerprint FROM stage_index WHERE session_id = ? AND stage = ?`
	var (
		loc Location
		ts  string
	)
	err := s.db.QueryRowContext(context.Background(), q, s.session, stage).Scan(&loc.Path, &ts, &loc.Fingerprint)
	if errors.Is(err, sql.ErrNoRows) {
		return Location{}, false, nil
	}
	if err != nil {
		return Location{}, false, fmt.Errorf("index: lookup %q: %w", stage, err)
	}
	loc.Stage = stage
	if loc.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
		return Location{}, false, fmt.Errorf("index: lookup %q: parse timestamp: %w", stage, err)
	}
	return loc, true, nil
}

func (s *sqliteSessionIndex) Record(loc Location) error {
	const q = `
		INSERT INTO stage_index (session_id, stage, path, timestamp, fingerprint, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(session_id, stage) DO UPDATE SET
			path = excluded.path,
			timestamp = excluded.timestamp,
			fingerprint = excluded.fingerprint,
			updated_at = CURRENT_TIMESTAMP`
	_, err := s.db.ExecContext(context.Background(), q,
		s.session, loc.Stage, loc.Path, loc.Timestamp.UTC().Format(time.RFC3339Nano), loc.Fingerprint)
	if err != nil {
		return fmt.Errorf("index: record %q: %w", loc.Stage, err)
	}
	return nil
}

func (s *sqliteSessionIndex) Reset(locs []Location) error {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: reset: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM stage_index WHERE session_id = ?`, s.session); err != nil {
		return fmt.Errorf("index: reset: clear: %w", err)
	}
	const q = `INSERT INTO stage_index (session_id, stage, path, timestamp, fingerprint) VALUES (?, ?, ?, ?, ?)`
	for _, loc := range locs {
		if _, err := tx.ExecContext(ctx, q,
			s.session, loc.Stage, loc.Path, loc.Timestamp.UTC().Format(time.RFC3339Nano), loc.Fingerprint); err != nil {
			return fmt.Errorf("index: reset: insert %q: %w", loc.Stage, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: reset: commit: %w", err)
	}
	return nil
}

func (s *sqliteSessionIndex) Len() (int, error) {
	var n int
	err := s.db.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM stage_index WHERE session_id = ?`, s.session).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}

func (s *sqliteSessionIndex) Generation() (string, error) {
	var gen string
	err := s.db.QueryRowContext(context.Background(),
		`SELECT generation FROM index_generation WHERE session_id = ?`, s.session).Scan(&gen)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: generation: %w", err)
	}
	return gen, nil
}

func (s *sqliteSessionIndex) SetGeneration(gen string) error {
	const q = `
		INSERT INTO index_generation (session_id, generation, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(session_id) DO UPDATE SET
			generation = excluded.generation,
			updated_at = CURRENT_TIMESTAMP`
	if _, err := s.db.ExecContext(context.Background(), q, s.session, gen); err != nil {
		return fmt.Errorf("index: set generation: %w", err)
	}
	return nil
}
