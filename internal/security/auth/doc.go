// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth provides authentication with account lockout.
//
// This package implements NIST 800-53 controls:
//   - IA-2: Identification and Authentication (Organizational Users)
//   - IA-5(1): Password-Based Authentication
//   - AC-7: Unsuccessful Logon Attempts
//
// # Account Lockout (AC-7)
//
// Each principal is either unlocked or locked until a point in time. A
// wrong password increments the failure counter; when the counter reaches
// the threshold (3 by default) the account is locked for the lockout
// duration (300 seconds by default). While locked, attempts are rejected
// without touching the counter. Expiry is evaluated lazily on the next
// attempt: there is no background unlock. A successful login resets the
// counter to zero.
//
//	gate := auth.NewGate(store, auditLog,
//	    auth.WithMaxAttempts(3),
//	    auth.WithLockoutDuration(300*time.Second))
//
//	session, err := gate.Authenticate(ctx, "alice", password)
//	var authErr *auth.AuthError
//	if errors.As(err, &authErr) && authErr.Kind == auth.KindAccountLocked {
//	    fmt.Printf("locked for %ds\n", authErr.RemainingSeconds())
//	}
//
// Every Authenticate, Signup, Logout and Unlock call appends exactly one
// audit entry.
package auth
