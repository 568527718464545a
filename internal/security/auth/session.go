// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/syscallgate/internal/security"
)

// Session is the identity handed back by a successful Authenticate. It is
// what a caller presents to the dispatcher.
type Session struct {
	ID              string        `json:"id"`
	Username        string        `json:"username"`
	Role            security.Role `json:"role"`
	AuthenticatedAt time.Time     `json:"authenticated_at"`
}

func newSession(username string, role security.Role, now time.Time) *Session {
	return &Session{
		ID:              uuid.NewString(),
		Username:        username,
		Role:            role,
		AuthenticatedAt: now,
	}
}

// LockStatus is a read-only view of one principal's lockout state.
type LockStatus struct {
	Username       string        `json:"username"`
	Role           security.Role `json:"role"`
	FailedAttempts int           `json:"failed_attempts"`
	Locked         bool          `json:"locked"`
	LockedUntil    *time.Time    `json:"locked_until,omitempty"`
	Remaining      time.Duration `json:"remaining_ns,omitempty"`
}
