// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jeranaias/syscallgate/internal/storage"
)

var (
	// ErrUnknownUser matches an AuthError of KindUnknownUser.
	ErrUnknownUser = errors.New("unknown user")

	// ErrWrongPassword matches an AuthError of KindWrongPassword.
	ErrWrongPassword = errors.New("invalid password")

	// ErrAccountLocked matches an AuthError of KindAccountLocked.
	ErrAccountLocked = errors.New("account locked")

	// ErrAlreadyExists is returned by Signup when the username is taken.
	ErrAlreadyExists = storage.ErrAlreadyExists
)

// Kind classifies an authentication failure.
type Kind int

const (
	KindUnknownUser Kind = iota + 1
	KindWrongPassword
	KindAccountLocked
)

func (k Kind) String() string {
	switch k {
	case KindUnknownUser:
		return "unknown_user"
	case KindWrongPassword:
		return "wrong_password"
	case KindAccountLocked:
		return "account_locked"
	default:
		return "unknown"
	}
}

// AuthError is the typed result of a rejected authentication.
type AuthError struct {
	Kind     Kind
	Username string

	// Remaining is the time left on the lock (KindAccountLocked).
	Remaining time.Duration

	// AttemptsLeft is the number of failures allowed before the account
	// locks (KindWrongPassword). It is zero when this attempt locked it.
	AttemptsLeft int

	// LockedUntil is set when the account is locked, either already
	// (KindAccountLocked) or as a result of this attempt.
	LockedUntil time.Time
}

func (e *AuthError) Error() string {
	switch e.Kind {
	case KindUnknownUser:
		return "user not found"
	case KindAccountLocked:
		return fmt.Sprintf("account locked; try again in %d seconds", e.RemainingSeconds())
	case KindWrongPassword:
		if e.JustLocked() {
			return "invalid password; account is now locked"
		}
		return fmt.Sprintf("invalid password (%d attempt(s) left)", e.AttemptsLeft)
	default:
		return "authentication failed"
	}
}

// Unwrap maps the kind onto its sentinel so errors.Is works.
func (e *AuthError) Unwrap() error {
	switch e.Kind {
	case KindUnknownUser:
		return ErrUnknownUser
	case KindWrongPassword:
		return ErrWrongPassword
	case KindAccountLocked:
		return ErrAccountLocked
	default:
		return nil
	}
}

// RemainingSeconds rounds Remaining up to whole seconds.
func (e *AuthError) RemainingSeconds() int {
	return int(math.Ceil(e.Remaining.Seconds()))
}

// JustLocked reports whether this failed attempt locked the account.
func (e *AuthError) JustLocked() bool {
	return e.Kind == KindWrongPassword && !e.LockedUntil.IsZero()
}
