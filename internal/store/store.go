// Package store implements the optional SQLite-backed breakpoint
// persistence described in SPEC_FULL.md §3/§4.1: source breakpoints survive
// a server restart until the client reconnects and re-sends setBreakpoints.
//
// Grounded on the teacher's pkg/database.SQLiteDB: the pure-Go
// modernc.org/sqlite driver, the single-open-connection WAL setup (SQLite
// doesn't benefit from a connection pool and serializes writes anyway), and
// the connect/close/ping shape all carry over; this package only adds the
// one table this server needs instead of a general Database interface.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Row is one persisted source breakpoint (SPEC_FULL.md §3 "Persisted
// breakpoint row").
type Row struct {
	ScriptRef    int64
	Line         int
	SourcePath   string
	SourceOrigin string
}

// Store persists breakpoint rows to a SQLite database. A nil *Store is
// valid and every method is a no-op against it, so callers can wire an
// unconfigured (persistence disabled) store without branching.
type Store struct {
	db *sql.DB
}

// Open connects to (creating if needed) the SQLite database at path. An
// empty path means persistence is disabled; Open returns (nil, nil) and
// callers use the nil *Store.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, nil
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create table: %w", err)
	}
	return &Store{db: db}, nil
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS breakpoints (
	script_ref    INTEGER NOT NULL,
	line          INTEGER NOT NULL,
	source_path   TEXT NOT NULL,
	source_origin TEXT NOT NULL,
	PRIMARY KEY (script_ref, line)
)`

// Close releases the underlying connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Upsert records one breakpoint row, replacing any existing row at the same
// (script_ref, line).
func (s *Store) Upsert(ctx context.Context, row Row) error {
	if s == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO breakpoints (script_ref, line, source_path, source_origin) VALUES (?, ?, ?, ?)
		 ON CONFLICT(script_ref, line) DO UPDATE SET source_path=excluded.source_path, source_origin=excluded.source_origin`,
		row.ScriptRef, row.Line, row.SourcePath, row.SourceOrigin)
	if err != nil {
		return fmt.Errorf("store: upsert: %w", err)
	}
	return nil
}

// DeleteForScript removes every row for one ScriptRef (breakpoints.ClearAll
// / InvalidateForScript persistence hook, SPEC_FULL.md §4.1).
func (s *Store) DeleteForScript(ctx context.Context, scriptRef int64) error {
	if s == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM breakpoints WHERE script_ref = ?`, scriptRef)
	if err != nil {
		return fmt.Errorf("store: delete for script %d: %w", scriptRef, err)
	}
	return nil
}

// DeleteAll clears every persisted row. The server does not call it;
// clear_all and invalidate_for_script remove rows through DeleteForScript.
func (s *Store) DeleteAll(ctx context.Context) error {
	if s == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM breakpoints`)
	if err != nil {
		return fmt.Errorf("store: delete all: %w", err)
	}
	return nil
}

// LoadForScript returns every persisted row for one ScriptRef, restored as
// source breakpoints the first time that script appears in a loadedSources
// response.
func (s *Store) LoadForScript(ctx context.Context, scriptRef int64) ([]Row, error) {
	if s == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT script_ref, line, source_path, source_origin FROM breakpoints WHERE script_ref = ?`, scriptRef)
	if err != nil {
		return nil, fmt.Errorf("store: load for script %d: %w", scriptRef, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ScriptRef, &r.Line, &r.SourcePath, &r.SourceOrigin); err != nil {
			return nil, fmt.Errorf("store: scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
