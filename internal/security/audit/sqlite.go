// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS audit_log (
	seq         INTEGER PRIMARY KEY,
	timestamp   TEXT NOT NULL,
	username    TEXT,
	system_call TEXT NOT NULL,
	status      TEXT NOT NULL CHECK (status IN ('success', 'failed')),
	details     TEXT NOT NULL DEFAULT '',
	prev_hash   TEXT NOT NULL,
	hash        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_log_username ON audit_log(username);
CREATE INDEX IF NOT EXISTS idx_audit_log_system_call ON audit_log(system_call);

CREATE TRIGGER IF NOT EXISTS audit_log_no_update BEFORE UPDATE ON audit_log
BEGIN SELECT RAISE(ABORT, 'audit_log is append-only'); END;
CREATE TRIGGER IF NOT EXISTS audit_log_no_delete BEFORE DELETE ON audit_log
BEGIN SELECT RAISE(ABORT, 'audit_log is append-only'); END;
`

// SQLiteLog stores sealed entries in an audit_log table. Each append reads
// the chain head and inserts the new row inside one transaction; triggers
// reject UPDATE and DELETE.
type SQLiteLog struct {
	db     *sql.DB
	opts   options
	sealer *Sealer
	mu     sync.Mutex
}

var _ Log = (*SQLiteLog)(nil)

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string, opts ...Option) (*SQLiteLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("%w: create directory: %w", ErrAudit, err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrAudit, path, err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: failed to set pragma: %w", ErrAudit, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to initialize schema: %w", ErrAudit, err)
	}

	o := buildOptions(opts)
	return &SQLiteLog{db: db, opts: o, sealer: NewSealer(o.key)}, nil
}

// Append implements Appender.
func (l *SQLiteLog) Append(ctx context.Context, e Entry) (Entry, error) {
	e, err := l.opts.prepare(e)
	if err != nil {
		return Entry{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, l.alert(err)
	}
	defer tx.Rollback()

	var prevSeq uint64
	var prevHash string
	err = tx.QueryRowContext(ctx,
		`SELECT seq, hash FROM audit_log ORDER BY seq DESC LIMIT 1`).Scan(&prevSeq, &prevHash)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Entry{}, l.alert(err)
	}

	sealed, err := l.sealer.Seal(e, prevSeq, prevHash)
	if err != nil {
		return Entry{}, l.alert(err)
	}

	var username sql.NullString
	if sealed.Actor != "" {
		username = sql.NullString{String: sealed.Actor, Valid: true}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO audit_log (seq, timestamp, username, system_call, status, details, prev_hash, hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sealed.Seq, sealed.Timestamp.Format(time.RFC3339Nano), username,
		sealed.Action, string(sealed.Status), sealed.Details, sealed.PrevHash, sealed.Hash)
	if err != nil {
		return Entry{}, l.alert(err)
	}
	if err := tx.Commit(); err != nil {
		return Entry{}, l.alert(err)
	}
	return sealed, nil
}

// Entries implements Log.
func (l *SQLiteLog) Entries(ctx context.Context) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		rows, err := l.db.QueryContext(ctx,
			`SELECT seq, timestamp, username, system_call, status, details, prev_hash, hash
			 FROM audit_log ORDER BY seq ASC`)
		if err != nil {
			yield(Entry{}, fmt.Errorf("%w: %w", ErrAudit, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var (
				e        Entry
				ts       string
				username sql.NullString
				status   string
			)
			if err := rows.Scan(&e.Seq, &ts, &username, &e.Action, &status, &e.Details, &e.PrevHash, &e.Hash); err != nil {
				yield(Entry{}, fmt.Errorf("%w: %w", ErrAudit, err))
				return
			}
			e.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
			if err != nil {
				yield(Entry{}, fmt.Errorf("%w: seq %d: %w", ErrAudit, e.Seq, err))
				return
			}
			e.Actor = username.String
			e.Status = Status(status)
			if !yield(e, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Entry{}, fmt.Errorf("%w: %w", ErrAudit, err))
		}
	}
}

// Close implements Log.
func (l *SQLiteLog) Close() error {
	return l.db.Close()
}

func (l *SQLiteLog) alert(err error) error {
	fmt.Fprintf(os.Stderr, "[AU-5 ALERT] Audit insert failed: %v\n", err)
	return fmt.Errorf("%w: %w", ErrAudit, err)
}
