// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"maps"
	"math"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/syscallgate/internal/security"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotFound is returned by a Backend that has never been written.
	ErrNotFound = errors.New("credential store not initialized")

	// ErrStorage wraps every backend I/O failure.
	ErrStorage = errors.New("credential storage failure")

	// ErrAlreadyExists is returned by Create when the username is taken.
	ErrAlreadyExists = errors.New("username already exists")

	// ErrUserNotFound is returned by Update for an unknown username.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidCredential is returned by Create for an empty username or password.
	ErrInvalidCredential = errors.New("username and password must not be empty")

	// ErrNoBootstrap is returned by Load when nothing is persisted and no
	// bootstrap password hash was configured.
	ErrNoBootstrap = errors.New("no credential store and no bootstrap password hash configured " +
		"(generate one with `syscallgate users hash-password` and set bootstrap.password_hash " +
		"or SYSCALLGATE_BOOTSTRAP_PASSWORD_HASH)")

	// ErrNoChange may be returned from an Update callback to skip the save.
	ErrNoChange = errors.New("no change")
)

// =============================================================================
// RECORD
// =============================================================================

// Record is the credential state of one principal. The username is the key
// of the enclosing Users map and is not repeated here.
type Record struct {
	// PasswordHash is a Hasher encoding, never plaintext.
	PasswordHash string `json:"password_hash" cbor:"1,keyasint"`

	Role security.Role `json:"role" cbor:"2,keyasint"`

	// FailedAttempts counts consecutive failures since the last success.
	FailedAttempts int `json:"failed_attempts" cbor:"3,keyasint"`

	// LockedUntil is a Unix epoch in seconds, nil when never locked.
	LockedUntil *float64 `json:"locked_until" cbor:"4,keyasint,omitempty"`
}

// LockedAt returns the lock expiry, if one is recorded. An expired lock is
// still returned; callers compare it against the current time.
func (r Record) LockedAt() (time.Time, bool) {
	if r.LockedUntil == nil {
		return time.Time{}, false
	}
	sec, frac := math.Modf(*r.LockedUntil)
	return time.Unix(int64(sec), int64(frac*1e9)), true
}

// IsLocked reports whether the record is locked at now.
func (r Record) IsLocked(now time.Time) bool {
	until, ok := r.LockedAt()
	return ok && now.Before(until)
}

// SetLockedUntil records a lock expiry.
func (r *Record) SetLockedUntil(t time.Time) {
	v := float64(t.UnixNano()) / 1e9
	r.LockedUntil = &v
}

// ClearLock removes any recorded lock expiry.
func (r *Record) ClearLock() {
	r.LockedUntil = nil
}

func (r Record) clone() Record {
	if r.LockedUntil != nil {
		v := *r.LockedUntil
		r.LockedUntil = &v
	}
	return r
}

// =============================================================================
// USERS
// =============================================================================

// Users is the complete username -> Record mapping.
type Users map[string]Record

// Clone returns a deep copy.
func (u Users) Clone() Users {
	out := make(Users, len(u))
	for name, rec := range u {
		out[name] = rec.clone()
	}
	return out
}

// Names returns the usernames in sorted order.
func (u Users) Names() []string {
	return slices.Sorted(maps.Keys(u))
}

// NormalizeUsername applies NFKC normalization and trims surrounding
// whitespace so visually identical names map to one key.
func NormalizeUsername(name string) string {
	return strings.TrimSpace(norm.NFKC.String(name))
}

// Bootstrap describes the administrator returned by Load before anything
// has been persisted.
type Bootstrap struct {
	Username     string
	Role         security.Role
	PasswordHash string
}

func (b Bootstrap) users() (Users, error) {
	if b.PasswordHash == "" {
		return nil, ErrNoBootstrap
	}
	name := NormalizeUsername(b.Username)
	if name == "" {
		name = "admin"
	}
	role := b.Role
	if !role.Valid() {
		role = security.RoleAdmin
	}
	return Users{name: {PasswordHash: b.PasswordHash, Role: role}}, nil
}
