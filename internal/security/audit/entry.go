// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"
)

// =============================================================================
// ENTRY
// =============================================================================

// Status is the outcome recorded for an attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Lifecycle actions. Dispatched operations use the operation name instead.
const (
	ActionLogin  = "login"
	ActionSignup = "signup"
	ActionLogout = "logout"
	ActionUnlock = "unlock"
)

// legacyTimeLayout is the timestamp format of unsealed records written by
// earlier deployments.
const legacyTimeLayout = "2006-01-02 15:04:05"

var (
	// ErrAudit wraps every failure to persist or read an entry.
	ErrAudit = errors.New("audit log failure")

	// ErrInvalidEntry is returned by Append for an entry with no action or
	// an unknown status.
	ErrInvalidEntry = errors.New("invalid audit entry")
)

// Entry is one immutable audit record.
type Entry struct {
	// Seq is the 1-based position in the chain; 0 for unsealed records.
	Seq uint64

	Timestamp time.Time

	// Actor is the principal name. Empty means no principal and is
	// serialized as null.
	Actor string

	// Action is a lifecycle action or an operation name.
	Action string

	Status  Status
	Details string

	PrevHash string
	Hash     string
}

// Sealed reports whether the entry carries a chain hash.
func (e Entry) Sealed() bool {
	return e.Hash != ""
}

// Succeeded reports whether the entry records a success.
func (e Entry) Succeeded() bool {
	return e.Status == StatusSuccess
}

// wireEntry is the JSON form. Field names match the line format of the
// legacy system_calls.log so older files stay readable.
type wireEntry struct {
	Seq        uint64  `json:"seq,omitempty"`
	Timestamp  string  `json:"timestamp"`
	Username   *string `json:"username"`
	SystemCall string  `json:"system_call"`
	Status     Status  `json:"status"`
	Details    string  `json:"details"`
	PrevHash   string  `json:"prev_hash,omitempty"`
	Hash       string  `json:"hash,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e Entry) MarshalJSON() ([]byte, error) {
	w := wireEntry{
		Seq:        e.Seq,
		Timestamp:  e.Timestamp.UTC().Format(time.RFC3339Nano),
		SystemCall: e.Action,
		Status:     e.Status,
		Details:    e.Details,
		PrevHash:   e.PrevHash,
		Hash:       e.Hash,
	}
	if e.Actor != "" {
		actor := e.Actor
		w.Username = &actor
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler. Both RFC 3339 and the legacy
// "YYYY-MM-DD HH:MM:SS" local-time stamps are accepted.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var w wireEntry
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	ts, err := time.Parse(time.RFC3339Nano, w.Timestamp)
	if err != nil {
		ts, err = time.ParseInLocation(legacyTimeLayout, w.Timestamp, time.Local)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q", w.Timestamp)
		}
	}
	*e = Entry{
		Seq:       w.Seq,
		Timestamp: ts,
		Action:    w.SystemCall,
		Status:    w.Status,
		Details:   w.Details,
		PrevHash:  w.PrevHash,
		Hash:      w.Hash,
	}
	if w.Username != nil {
		e.Actor = *w.Username
	}
	return nil
}

// =============================================================================
// LOG INTERFACES
// =============================================================================

// Appender persists entries. Append seals the entry, writes it durably and
// returns the sealed copy. An entry is never partially written.
type Appender interface {
	Append(ctx context.Context, e Entry) (Entry, error)
}

// Log is an append-only audit log.
type Log interface {
	Appender

	// Entries yields every entry in append order. Each call starts a fresh
	// pass over the log, so the sequence can be ranged over repeatedly.
	Entries(ctx context.Context) iter.Seq2[Entry, error]

	Close() error
}

// Collect drains an Entries sequence into a slice.
func Collect(seq iter.Seq2[Entry, error]) ([]Entry, error) {
	var out []Entry
	for e, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
	return out, nil
}

// =============================================================================
// OPTIONS
// =============================================================================

type options struct {
	key      []byte
	redactor Redactor
	now      func() time.Time
}

// Option configures a Log.
type Option func(*options)

// WithKey sets the HMAC key used to seal entries. Without a key entries
// are chained with plain SHA-256, which detects accidental edits but not a
// deliberate rewrite of the whole file.
func WithKey(key []byte) Option {
	return func(o *options) {
		o.key = key
	}
}

// WithRedactor replaces the default redactor. Pass nil to disable
// redaction.
func WithRedactor(r Redactor) Option {
	return func(o *options) {
		o.redactor = r
	}
}

// WithClock sets the time source used for entries without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{
		redactor: DefaultRedactor(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// prepare validates e and fills in the fields every backend sets the same
// way before sealing.
func (o options) prepare(e Entry) (Entry, error) {
	if e.Action == "" {
		return Entry{}, fmt.Errorf("%w: empty action", ErrInvalidEntry)
	}
	if e.Status != StatusSuccess && e.Status != StatusFailed {
		return Entry{}, fmt.Errorf("%w: status %q", ErrInvalidEntry, e.Status)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = o.now()
	}
	e.Timestamp = e.Timestamp.UTC()
	if o.redactor != nil {
		e.Details = o.redactor.Redact(e.Details)
	}
	e.Seq, e.PrevHash, e.Hash = 0, "", ""
	return e, nil
}
