// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/syscallgate/internal/security"
	"github.com/jeranaias/syscallgate/internal/security/audit"
	"github.com/jeranaias/syscallgate/internal/storage"
	"github.com/jeranaias/syscallgate/internal/telemetry"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultMaxAttempts is the failure count that locks an account.
	DefaultMaxAttempts = 3

	// DefaultLockoutDuration is how long a locked account stays locked.
	DefaultLockoutDuration = 300 * time.Second
)

// CredentialStore is the subset of the credential store the gate needs.
type CredentialStore interface {
	Load(ctx context.Context) (storage.Users, error)
	Create(ctx context.Context, username, password string, role security.Role) error
	Update(ctx context.Context, username string, fn func(*storage.Record) error) error
}

// =============================================================================
// GATE
// =============================================================================

// Gate authenticates principals against a CredentialStore and enforces
// account lockout. It is safe for concurrent use; serialization of the
// read-modify-write on a record is the store's job.
type Gate struct {
	store       CredentialStore
	log         audit.Appender
	hasher      storage.Hasher
	maxAttempts int
	lockout     time.Duration
	now         func() time.Time
	logger      *zap.Logger
	metrics     *telemetry.Metrics
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithMaxAttempts sets the lockout threshold. Values below 1 are ignored.
func WithMaxAttempts(n int) GateOption {
	return func(g *Gate) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithLockoutDuration sets the lock length. Values <= 0 are ignored.
func WithLockoutDuration(d time.Duration) GateOption {
	return func(g *Gate) {
		if d > 0 {
			g.lockout = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) GateOption {
	return func(g *Gate) {
		g.now = now
	}
}

// WithHasher sets the hasher used to verify and upgrade digests. It should
// match the one the store creates records with.
func WithHasher(h storage.Hasher) GateOption {
	return func(g *Gate) {
		g.hasher = h
	}
}

// WithLogger sets the operational logger.
func WithLogger(l *zap.Logger) GateOption {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithMetrics enables Prometheus counters.
func WithMetrics(m *telemetry.Metrics) GateOption {
	return func(g *Gate) {
		g.metrics = m
	}
}

// NewGate creates a gate over store that records every attempt to log.
func NewGate(store CredentialStore, log audit.Appender, opts ...GateOption) *Gate {
	g := &Gate{
		store:       store,
		log:         log,
		hasher:      storage.DefaultHasher(),
		maxAttempts: DefaultMaxAttempts,
		lockout:     DefaultLockoutDuration,
		now:         time.Now,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// MaxAttempts returns the lockout threshold in use.
func (g *Gate) MaxAttempts() int { return g.maxAttempts }

// LockoutDuration returns the lock length in use.
func (g *Gate) LockoutDuration() time.Duration { return g.lockout }

// =============================================================================
// AUTHENTICATE
// =============================================================================

// Authenticate checks password for username and applies the lockout
// policy. On success the failure counter is reset and a Session returned.
// Rejections are *AuthError values; any other error is a store or audit
// failure. Exactly one audit entry is appended per call.
//
// A record is written only when its state changes: a locked account or an
// unknown user leaves the store untouched. The password is verified against
// a snapshot before the store's writer lock is taken, so one slow key
// derivation does not stall logins for other principals; the lock and
// counter decisions are made again under the lock.
func (g *Gate) Authenticate(ctx context.Context, username, password string) (*Session, error) {
	username = storage.NormalizeUsername(username)
	now := g.now()

	var (
		session *Session
		authErr *AuthError
	)
	check, err := g.precheck(ctx, username, password, now)
	if err == nil {
		err = g.store.Update(ctx, username, func(rec *storage.Record) error {
			if until, ok := rec.LockedAt(); ok && now.Before(until) {
				authErr = &AuthError{
					Kind:        KindAccountLocked,
					Username:    username,
					Remaining:   until.Sub(now),
					LockedUntil: until,
				}
				return authErr
			}

			// The digest changed since the snapshot; verify the current one.
			if rec.PasswordHash != check.hash {
				check = passwordCheck{hash: rec.PasswordHash, ok: g.hasher.Verify(rec.PasswordHash, password)}
			}

			if check.ok {
				rec.FailedAttempts = 0
				rec.ClearLock()
				if check.upgraded != "" {
					rec.PasswordHash = check.upgraded
				}
				session = newSession(username, rec.Role, now)
				return nil
			}

			rec.FailedAttempts++
			authErr = &AuthError{
				Kind:         KindWrongPassword,
				Username:     username,
				AttemptsLeft: max(g.maxAttempts-rec.FailedAttempts, 0),
			}
			if rec.FailedAttempts >= g.maxAttempts {
				until := now.Add(g.lockout)
				rec.SetLockedUntil(until)
				authErr.LockedUntil = until
			}
			return nil
		})
	}

	switch {
	case errors.Is(err, storage.ErrUserNotFound):
		authErr = &AuthError{Kind: KindUnknownUser, Username: username}
	case errors.As(err, &authErr):
	case err != nil:
		g.logger.Error("credential store update failed",
			zap.String("username", username), zap.Error(err))
		if auditErr := g.record(ctx, username, audit.ActionLogin, audit.StatusFailed, "Credential store unavailable"); auditErr != nil {
			return nil, errors.Join(err, auditErr)
		}
		return nil, err
	}

	if authErr != nil {
		g.observeRejection(authErr)
		if auditErr := g.record(ctx, username, audit.ActionLogin, audit.StatusFailed, loginDetails(authErr)); auditErr != nil {
			return nil, auditErr
		}
		return nil, authErr
	}

	g.metrics.ObserveAuth(telemetry.AuthSuccess)
	g.logger.Info("login succeeded",
		zap.String("username", username),
		zap.String("role", session.Role.String()),
		zap.String("session", session.ID))
	if err := g.record(ctx, username, audit.ActionLogin, audit.StatusSuccess, ""); err != nil {
		return nil, err
	}
	return session, nil
}

// passwordCheck is the outcome of verifying a password against one digest.
type passwordCheck struct {
	hash     string
	ok       bool
	upgraded string
}

// precheck verifies password against a snapshot of the record without
// holding the writer lock. An account that is already locked is rejected
// here without deriving a key.
func (g *Gate) precheck(ctx context.Context, username, password string, now time.Time) (passwordCheck, error) {
	users, err := g.store.Load(ctx)
	if err != nil {
		return passwordCheck{}, err
	}
	rec, ok := users[username]
	if !ok {
		return passwordCheck{}, storage.ErrUserNotFound
	}
	if until, ok := rec.LockedAt(); ok && now.Before(until) {
		return passwordCheck{}, &AuthError{
			Kind:        KindAccountLocked,
			Username:    username,
			Remaining:   until.Sub(now),
			LockedUntil: until,
		}
	}

	check := passwordCheck{hash: rec.PasswordHash, ok: g.hasher.Verify(rec.PasswordHash, password)}
	if check.ok && g.hasher.NeedsRehash(rec.PasswordHash) {
		if upgraded, err := g.hasher.Hash(password); err == nil {
			check.upgraded = upgraded
		}
	}
	return check, nil
}

func (g *Gate) observeRejection(e *AuthError) {
	fields := []zap.Field{zap.String("username", e.Username), zap.Stringer("reason", e.Kind)}
	switch e.Kind {
	case KindUnknownUser:
		g.metrics.ObserveAuth(telemetry.AuthUnknownUser)
	case KindAccountLocked:
		g.metrics.ObserveAuth(telemetry.AuthLocked)
		fields = append(fields, zap.Duration("remaining", e.Remaining))
	case KindWrongPassword:
		g.metrics.ObserveAuth(telemetry.AuthWrongPassword)
		if e.JustLocked() {
			g.metrics.ObserveLockout()
			g.logger.Warn("account locked",
				zap.String("username", e.Username),
				zap.Time("locked_until", e.LockedUntil))
		}
	}
	g.logger.Info("login rejected", fields...)
}

func loginDetails(e *AuthError) string {
	switch e.Kind {
	case KindUnknownUser:
		return "Unknown user"
	case KindAccountLocked:
		return fmt.Sprintf("Account locked (%d seconds remaining)", e.RemainingSeconds())
	case KindWrongPassword:
		if e.JustLocked() {
			return "Invalid password; account locked"
		}
		return "Invalid password"
	default:
		return ""
	}
}

// =============================================================================
// SIGNUP / LOGOUT
// =============================================================================

// Signup creates a principal with role. It fails with ErrAlreadyExists if
// the name is taken. No password policy is applied beyond non-empty. One
// audit entry, naming the new principal, is appended whatever the outcome.
func (g *Gate) Signup(ctx context.Context, username, password string, role security.Role) error {
	return g.create(ctx, "", username, password, role)
}

// CreateUser is Signup performed by actor, who is what the audit entry
// names. It is the administrative provisioning path.
func (g *Gate) CreateUser(ctx context.Context, actor, username, password string, role security.Role) error {
	return g.create(ctx, actor, username, password, role)
}

func (g *Gate) create(ctx context.Context, actor, username, password string, role security.Role) error {
	username = storage.NormalizeUsername(username)
	if actor == "" {
		actor = username
	}

	err := g.store.Create(ctx, username, password, role)
	g.metrics.ObserveSignup(err == nil)

	status, details := audit.StatusSuccess, ""
	if role.IsAdmin() {
		details = "role=admin"
	}
	if err != nil {
		status = audit.StatusFailed
		details = signupDetails(err)
		g.logger.Info("signup rejected", zap.String("username", username), zap.Error(err))
	} else {
		g.logger.Info("user created",
			zap.String("username", username),
			zap.String("role", role.String()),
			zap.String("actor", actor))
	}

	if auditErr := g.record(ctx, actor, audit.ActionSignup, status, details); auditErr != nil {
		return errors.Join(err, auditErr)
	}
	return err
}

func signupDetails(err error) string {
	switch {
	case errors.Is(err, storage.ErrAlreadyExists):
		return "Username already exists"
	case errors.Is(err, storage.ErrInvalidCredential):
		return "Username and password must not be empty"
	case errors.Is(err, security.ErrInvalidRole):
		return "Invalid role"
	default:
		return "Credential store unavailable"
	}
}

// Logout records the end of a session.
func (g *Gate) Logout(ctx context.Context, s *Session) error {
	if s == nil {
		return nil
	}
	g.logger.Info("logout", zap.String("username", s.Username), zap.String("session", s.ID))
	return g.record(ctx, s.Username, audit.ActionLogout, audit.StatusSuccess, "")
}

// =============================================================================
// LOCKOUT ADMINISTRATION
// =============================================================================

// Unlock clears the failure counter and any lock on username. actor is the
// administrator performing it and is what the audit entry names.
func (g *Gate) Unlock(ctx context.Context, actor, username string) error {
	username = storage.NormalizeUsername(username)
	err := g.store.Update(ctx, username, func(rec *storage.Record) error {
		if rec.FailedAttempts == 0 && rec.LockedUntil == nil {
			return storage.ErrNoChange
		}
		rec.FailedAttempts = 0
		rec.ClearLock()
		return nil
	})

	status, details := audit.StatusSuccess, "target="+username
	if errors.Is(err, storage.ErrUserNotFound) {
		err = &AuthError{Kind: KindUnknownUser, Username: username}
	}
	if err != nil {
		status = audit.StatusFailed
		g.logger.Warn("unlock failed", zap.String("username", username), zap.Error(err))
	} else {
		g.logger.Info("account unlocked", zap.String("username", username), zap.String("actor", actor))
	}

	if auditErr := g.record(ctx, actor, audit.ActionUnlock, status, details); auditErr != nil {
		return errors.Join(err, auditErr)
	}
	return err
}

// Status reports the lockout state of username without modifying it.
func (g *Gate) Status(ctx context.Context, username string) (LockStatus, error) {
	users, err := g.store.Load(ctx)
	if err != nil {
		return LockStatus{}, err
	}
	username = storage.NormalizeUsername(username)
	rec, ok := users[username]
	if !ok {
		return LockStatus{}, &AuthError{Kind: KindUnknownUser, Username: username}
	}
	return g.statusOf(username, rec), nil
}

// StatusAll reports every principal, sorted by name.
func (g *Gate) StatusAll(ctx context.Context) ([]LockStatus, error) {
	users, err := g.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]LockStatus, 0, len(users))
	for _, name := range users.Names() {
		out = append(out, g.statusOf(name, users[name]))
	}
	return out, nil
}

func (g *Gate) statusOf(username string, rec storage.Record) LockStatus {
	now := g.now()
	st := LockStatus{
		Username:       username,
		Role:           rec.Role,
		FailedAttempts: rec.FailedAttempts,
	}
	if until, ok := rec.LockedAt(); ok && now.Before(until) {
		st.Locked = true
		st.LockedUntil = &until
		st.Remaining = until.Sub(now)
	}
	return st
}

// record appends one audit entry. Failures are logged and counted; the
// caller decides whether they are fatal.
func (g *Gate) record(ctx context.Context, actor, action string, status audit.Status, details string) error {
	_, err := g.log.Append(ctx, audit.Entry{
		Timestamp: g.now(),
		Actor:     actor,
		Action:    action,
		Status:    status,
		Details:   details,
	})
	if err != nil {
		g.metrics.ObserveAuditError()
		g.logger.Error("audit append failed",
			zap.String("action", action),
			zap.String("actor", actor),
			zap.Error(err))
	}
	return err
}
