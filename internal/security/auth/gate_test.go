// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/syscallgate/internal/security"
	"github.com/jeranaias/syscallgate/internal/security/audit"
	"github.com/jeranaias/syscallgate/internal/storage"
)

// sha256("admin123"), the digest format of older users.json files.
const legacyAdminHash = "240be518fabd2724ddb6f04eeb1da5967448d7e831c08c8fa822809f74c720a9"

var testHasher = &storage.PBKDF2Hasher{Iterations: 1000}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	gate    *Gate
	backend *storage.MemoryBackend
	store   *storage.Store
	log     *audit.MemoryLog
	clock   *fakeClock
}

func newFixture(t *testing.T, opts ...GateOption) *fixture {
	t.Helper()
	f := &fixture{
		backend: storage.NewMemoryBackend(),
		log:     audit.NewMemory(),
		clock:   &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	f.store = storage.NewStore(f.backend,
		storage.WithHasher(testHasher),
		storage.WithBootstrap(storage.Bootstrap{
			Username:     "admin",
			Role:         security.RoleAdmin,
			PasswordHash: legacyAdminHash,
		}))
	base := []GateOption{WithHasher(testHasher), WithClock(f.clock.Now)}
	f.gate = NewGate(f.store, f.log, append(base, opts...)...)
	return f
}

func (f *fixture) signup(t *testing.T, username, password string) {
	t.Helper()
	require.NoError(t, f.gate.Signup(context.Background(), username, password, security.RoleUser))
}

func (f *fixture) record(t *testing.T, username string) storage.Record {
	t.Helper()
	rec, err := f.store.Get(context.Background(), username)
	require.NoError(t, err)
	return rec
}

func requireKind(t *testing.T, err error, kind Kind) *AuthError {
	t.Helper()
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr), "expected *AuthError, got %v", err)
	require.Equal(t, kind, authErr.Kind)
	return authErr
}

// =============================================================================
// AUTHENTICATE
// =============================================================================

func TestAuthenticate_BootstrapAdmin(t *testing.T) {
	f := newFixture(t)

	session, err := f.gate.Authenticate(context.Background(), "admin", "admin123")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "admin", session.Username)
	assert.Equal(t, security.RoleAdmin, session.Role)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, f.clock.Now(), session.AuthenticatedAt)

	entries := f.log.Snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, "admin", entries[0].Actor)
	assert.Equal(t, audit.ActionLogin, entries[0].Action)
	assert.Equal(t, audit.StatusSuccess, entries[0].Status)
}

func TestAuthenticate_UpgradesLegacyDigest(t *testing.T) {
	f := newFixture(t)

	_, err := f.gate.Authenticate(context.Background(), "admin", "admin123")
	require.NoError(t, err)

	rec := f.record(t, "admin")
	assert.NotEqual(t, legacyAdminHash, rec.PasswordHash)
	assert.True(t, strings.HasPrefix(rec.PasswordHash, "pbkdf2-sha256$"))
	assert.True(t, testHasher.Verify(rec.PasswordHash, "admin123"))

	// The upgraded digest still authenticates.
	_, err = f.gate.Authenticate(context.Background(), "admin", "admin123")
	require.NoError(t, err)
}

func TestAuthenticate_UnknownUser(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "alice", "pw1")
	writes := f.backend.Writes()

	session, err := f.gate.Authenticate(context.Background(), "mallory", "x")
	assert.Nil(t, session)
	requireKind(t, err, KindUnknownUser)
	assert.ErrorIs(t, err, ErrUnknownUser)
	assert.Equal(t, writes, f.backend.Writes(), "unknown user must not write the store")

	entries := f.log.Snapshot()
	last := entries[len(entries)-1]
	assert.Equal(t, "mallory", last.Actor)
	assert.Equal(t, audit.StatusFailed, last.Status)
}

func TestAuthenticate_WrongPasswordCountsDown(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "alice", "pw1")

	_, err := f.gate.Authenticate(context.Background(), "alice", "bad")
	authErr := requireKind(t, err, KindWrongPassword)
	assert.Equal(t, 2, authErr.AttemptsLeft)
	assert.False(t, authErr.JustLocked())
	assert.Equal(t, 1, f.record(t, "alice").FailedAttempts)

	_, err = f.gate.Authenticate(context.Background(), "alice", "bad")
	authErr = requireKind(t, err, KindWrongPassword)
	assert.Equal(t, 1, authErr.AttemptsLeft)
	assert.Equal(t, 2, f.record(t, "alice").FailedAttempts)
}

func TestAuthenticate_LockoutScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signup(t, "alice", "pw1")
	start := f.log.Len()

	for range 2 {
		_, err := f.gate.Authenticate(ctx, "alice", "bad")
		requireKind(t, err, KindWrongPassword)
	}
	_, err := f.gate.Authenticate(ctx, "alice", "bad")
	authErr := requireKind(t, err, KindWrongPassword)
	assert.True(t, authErr.JustLocked())
	assert.Equal(t, f.clock.Now().Add(DefaultLockoutDuration), authErr.LockedUntil)

	rec := f.record(t, "alice")
	assert.Equal(t, 3, rec.FailedAttempts)
	assert.True(t, rec.IsLocked(f.clock.Now()))

	// Correct password while locked is still rejected and nothing is written.
	writes := f.backend.Writes()
	f.clock.Advance(100 * time.Second)
	_, err = f.gate.Authenticate(ctx, "alice", "pw1")
	authErr = requireKind(t, err, KindAccountLocked)
	assert.ErrorIs(t, err, ErrAccountLocked)
	assert.Equal(t, 200, authErr.RemainingSeconds())
	assert.Equal(t, writes, f.backend.Writes())
	assert.Equal(t, 3, f.record(t, "alice").FailedAttempts)

	// The lock lapses lazily; the next correct attempt resets everything.
	f.clock.Advance(201 * time.Second)
	session, err := f.gate.Authenticate(ctx, "alice", "pw1")
	require.NoError(t, err)
	assert.Equal(t, security.RoleUser, session.Role)
	rec = f.record(t, "alice")
	assert.Zero(t, rec.FailedAttempts)
	assert.Nil(t, rec.LockedUntil)

	// One audit entry per attempt.
	assert.Equal(t, start+5, f.log.Len())
}

func TestAuthenticate_RelocksAfterLapseOnNextFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signup(t, "alice", "pw1")

	for range 3 {
		_, _ = f.gate.Authenticate(ctx, "alice", "bad")
	}
	f.clock.Advance(DefaultLockoutDuration + time.Second)

	_, err := f.gate.Authenticate(ctx, "alice", "bad")
	authErr := requireKind(t, err, KindWrongPassword)
	assert.True(t, authErr.JustLocked(), "counter is not reset by the lock lapsing")
	assert.Equal(t, 4, f.record(t, "alice").FailedAttempts)
}

func TestAuthenticate_CustomThresholds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithMaxAttempts(1), WithLockoutDuration(10*time.Second))
	f.signup(t, "alice", "pw1")

	_, err := f.gate.Authenticate(ctx, "alice", "bad")
	assert.True(t, requireKind(t, err, KindWrongPassword).JustLocked())

	f.clock.Advance(10 * time.Second)
	_, err = f.gate.Authenticate(ctx, "alice", "pw1")
	require.NoError(t, err)
}

func TestAuthenticate_ConcurrentFailuresNeverExceedThreshold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signup(t, "alice", "pw1")
	start := f.log.Len()

	const n = 10
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.gate.Authenticate(ctx, "alice", "bad")
		}()
	}
	wg.Wait()

	assert.Equal(t, DefaultMaxAttempts, f.record(t, "alice").FailedAttempts)
	assert.Equal(t, start+n, f.log.Len())
}

// gatedHasher blocks Verify for one password until released.
type gatedHasher struct {
	*storage.PBKDF2Hasher
	password string
	entered  chan struct{}
	release  chan struct{}
}

func (h *gatedHasher) Verify(encoded, password string) bool {
	if password == h.password {
		close(h.entered)
		<-h.release
	}
	return h.PBKDF2Hasher.Verify(encoded, password)
}

func TestAuthenticate_SlowVerifyDoesNotBlockOthers(t *testing.T) {
	ctx := context.Background()
	hasher := &gatedHasher{
		PBKDF2Hasher: testHasher,
		password:     "slow-pw",
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	f := newFixture(t, WithHasher(hasher))
	f.signup(t, "alice", "slow-pw")
	f.signup(t, "bob", "pw2")

	slow := make(chan error, 1)
	go func() {
		_, err := f.gate.Authenticate(ctx, "alice", "slow-pw")
		slow <- err
	}()
	<-hasher.entered

	fast := make(chan error, 1)
	go func() {
		_, err := f.gate.Authenticate(ctx, "bob", "pw2")
		fast <- err
	}()
	select {
	case err := <-fast:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		close(hasher.release)
		t.Fatal("login for bob waited on alice's password check")
	}

	close(hasher.release)
	require.NoError(t, <-slow)
	assert.Zero(t, f.record(t, "alice").FailedAttempts)
}

func TestAuthenticate_PasswordChangedDuringCheck(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signup(t, "alice", "old-pw")

	// A digest that no longer matches the snapshot is verified again.
	newHash, err := testHasher.Hash("new-pw")
	require.NoError(t, err)
	f.gate.store = &swappingStore{CredentialStore: f.store, username: "alice", hash: newHash}

	_, err = f.gate.Authenticate(ctx, "alice", "old-pw")
	requireKind(t, err, KindWrongPassword)
	assert.Equal(t, 1, f.record(t, "alice").FailedAttempts)
}

// swappingStore replaces one digest between the snapshot and the update.
type swappingStore struct {
	CredentialStore
	username string
	hash     string
}

func (s *swappingStore) Update(ctx context.Context, username string, fn func(*storage.Record) error) error {
	return s.CredentialStore.Update(ctx, username, func(rec *storage.Record) error {
		if username == s.username {
			rec.PasswordHash = s.hash
		}
		return fn(rec)
	})
}

func TestAuthenticate_StoreFailure(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "alice", "pw1")
	boom := errors.New("disk full")
	f.backend.FailWrites(boom)

	session, err := f.gate.Authenticate(context.Background(), "alice", "pw1")
	assert.Nil(t, session)
	require.ErrorIs(t, err, boom)
	assert.False(t, errors.As(err, new(*AuthError)))

	entries := f.log.Snapshot()
	assert.Equal(t, audit.StatusFailed, entries[len(entries)-1].Status)
}

func TestAuthenticate_AuditFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "alice", "pw1")
	boom := errors.New("audit offline")
	f.log.FailAppends(boom)

	session, err := f.gate.Authenticate(context.Background(), "alice", "pw1")
	assert.Nil(t, session)
	require.ErrorIs(t, err, boom)
}

// =============================================================================
// SIGNUP / LOGOUT
// =============================================================================

func TestSignup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.gate.Signup(ctx, "bob", "pw", security.RoleUser))
	err := f.gate.Signup(ctx, "bob", "other", security.RoleUser)
	require.ErrorIs(t, err, ErrAlreadyExists)

	err = f.gate.Signup(ctx, "", "pw", security.RoleUser)
	require.ErrorIs(t, err, storage.ErrInvalidCredential)

	entries := f.log.Snapshot()
	require.Len(t, entries, 3)
	assert.Equal(t, audit.StatusSuccess, entries[0].Status)
	assert.Equal(t, audit.StatusFailed, entries[1].Status)
	assert.Equal(t, "Username already exists", entries[1].Details)
	assert.Equal(t, audit.ActionSignup, entries[2].Action)

	rec := f.record(t, "bob")
	assert.Equal(t, security.RoleUser, rec.Role)
	assert.True(t, testHasher.Verify(rec.PasswordHash, "pw"))
}

func TestCreateUser_AdminRole(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.gate.CreateUser(context.Background(), "admin", "ops", "pw", security.RoleAdmin))

	assert.Equal(t, security.RoleAdmin, f.record(t, "ops").Role)
	entries := f.log.Snapshot()
	assert.Equal(t, "admin", entries[0].Actor)
	assert.Equal(t, "role=admin", entries[0].Details)
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	session, err := f.gate.Authenticate(context.Background(), "admin", "admin123")
	require.NoError(t, err)

	require.NoError(t, f.gate.Logout(context.Background(), session))
	require.NoError(t, f.gate.Logout(context.Background(), nil))

	entries := f.log.Snapshot()
	require.Len(t, entries, 2)
	assert.Equal(t, audit.ActionLogout, entries[1].Action)
	assert.Equal(t, "admin", entries[1].Actor)
}

// =============================================================================
// LOCKOUT ADMINISTRATION
// =============================================================================

func TestUnlock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.signup(t, "alice", "pw1")
	for range 3 {
		_, _ = f.gate.Authenticate(ctx, "alice", "bad")
	}

	st, err := f.gate.Status(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, st.Locked)
	assert.Equal(t, DefaultLockoutDuration, st.Remaining)

	require.NoError(t, f.gate.Unlock(ctx, "admin", "alice"))
	st, err = f.gate.Status(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, st.Locked)
	assert.Zero(t, st.FailedAttempts)

	_, err = f.gate.Authenticate(ctx, "alice", "pw1")
	require.NoError(t, err)

	entries := f.log.Snapshot()
	unlock := entries[len(entries)-2]
	assert.Equal(t, audit.ActionUnlock, unlock.Action)
	assert.Equal(t, "admin", unlock.Actor)
	assert.Equal(t, "target=alice", unlock.Details)
}

func TestUnlock_NoChangeSkipsWrite(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "alice", "pw1")
	writes := f.backend.Writes()

	require.NoError(t, f.gate.Unlock(context.Background(), "admin", "alice"))
	assert.Equal(t, writes, f.backend.Writes())
}

func TestUnlock_UnknownUser(t *testing.T) {
	f := newFixture(t)
	err := f.gate.Unlock(context.Background(), "admin", "ghost")
	require.ErrorIs(t, err, ErrUnknownUser)

	entries := f.log.Snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, audit.StatusFailed, entries[0].Status)
}

func TestStatusAll(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "carol", "pw")
	f.signup(t, "bob", "pw")

	all, err := f.gate.StatusAll(context.Background())
	require.NoError(t, err)
	names := make([]string, 0, len(all))
	for _, st := range all {
		names = append(names, st.Username)
	}
	assert.Equal(t, []string{"admin", "bob", "carol"}, names)
}

func TestAuthError_Messages(t *testing.T) {
	locked := &AuthError{Kind: KindAccountLocked, Remaining: 299500 * time.Millisecond}
	assert.Equal(t, 300, locked.RemainingSeconds())
	assert.Contains(t, locked.Error(), "300 seconds")

	wrong := &AuthError{Kind: KindWrongPassword, AttemptsLeft: 2}
	assert.Contains(t, wrong.Error(), "2 attempt(s) left")
	assert.ErrorIs(t, wrong, ErrWrongPassword)

	assert.Equal(t, "account_locked", KindAccountLocked.String())
}
