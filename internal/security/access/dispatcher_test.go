// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package access

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/syscallgate/internal/commands"
	"github.com/jeranaias/syscallgate/internal/security"
	"github.com/jeranaias/syscallgate/internal/security/audit"
)

// countingRegistry returns a catalog whose handlers count invocations.
func countingRegistry(t *testing.T, calls *atomic.Int32) *commands.Registry {
	t.Helper()
	echo := commands.HandlerFunc(func(ctx context.Context, args []string) (string, error) {
		calls.Add(1)
		if len(args) == 0 {
			return "ok", nil
		}
		return "ok:" + args[0], nil
	})
	reg, err := commands.NewRegistry(
		commands.Descriptor{Name: "read", Description: "Read from a file", Handler: echo},
		commands.Descriptor{Name: "delete", Description: "Delete a file", AdminOnly: true, Handler: echo},
		commands.Descriptor{Name: "fail", Handler: commands.HandlerFunc(func(context.Context, []string) (string, error) {
			calls.Add(1)
			return "", errors.New("disk on fire")
		})},
		commands.Descriptor{Name: "panic", Handler: commands.HandlerFunc(func(context.Context, []string) (string, error) {
			calls.Add(1)
			panic("boom")
		})},
	)
	require.NoError(t, err)
	return reg
}

func requireKind(t *testing.T, err error, kind Kind) *DispatchError {
	t.Helper()
	var de *DispatchError
	require.True(t, errors.As(err, &de), "expected *DispatchError, got %v", err)
	require.Equal(t, kind, de.Kind)
	return de
}

func TestExecute_Success(t *testing.T) {
	var calls atomic.Int32
	log := audit.NewMemory()
	d := NewDispatcher(countingRegistry(t, &calls), log)

	out, err := d.Execute(context.Background(), "alice", security.RoleUser, "read", "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "ok:notes.txt", out)
	assert.EqualValues(t, 1, calls.Load())

	entries := log.Snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0].Actor)
	assert.Equal(t, "read", entries[0].Action)
	assert.Equal(t, audit.StatusSuccess, entries[0].Status)
	assert.Equal(t, `("notes.txt")`, entries[0].Details)
}

func TestExecute_UnknownOperation(t *testing.T) {
	var calls atomic.Int32
	log := audit.NewMemory()
	d := NewDispatcher(countingRegistry(t, &calls), log)

	out, err := d.Execute(context.Background(), "alice", security.RoleAdmin, "format_disk")
	assert.Empty(t, out)
	de := requireKind(t, err, KindUnknownOperation)
	assert.Equal(t, MsgInvalidCall, de.Error())
	assert.ErrorIs(t, err, ErrUnknownOperation)
	assert.Zero(t, calls.Load())

	entries := log.Snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, "format_disk", entries[0].Action)
	assert.Equal(t, audit.StatusFailed, entries[0].Status)
	assert.Equal(t, MsgInvalidCall, entries[0].Details)
}

func TestExecute_BlankOperationIsStillAudited(t *testing.T) {
	for _, name := range []string{"", "   ", "\t"} {
		t.Run(strconv.Quote(name), func(t *testing.T) {
			var calls atomic.Int32
			log, err := audit.OpenFile(filepath.Join(t.TempDir(), "audit.jsonl"))
			require.NoError(t, err)
			t.Cleanup(func() { log.Close() })
			d := NewDispatcher(countingRegistry(t, &calls), log)

			_, err = d.Execute(context.Background(), "alice", security.RoleUser, name)
			requireKind(t, err, KindUnknownOperation)
			assert.NotErrorIs(t, err, audit.ErrInvalidEntry)
			assert.Zero(t, calls.Load())

			entries, err := audit.Collect(log.Entries(context.Background()))
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, InvalidAction, entries[0].Action)
			assert.Equal(t, "alice", entries[0].Actor)
			assert.Equal(t, audit.StatusFailed, entries[0].Status)
			assert.Equal(t, MsgInvalidCall+" "+strconv.Quote(name), entries[0].Details)
		})
	}
}

func TestExecute_UnauthorizedNeverInvokesHandler(t *testing.T) {
	var calls atomic.Int32
	log := audit.NewMemory()
	d := NewDispatcher(countingRegistry(t, &calls), log)

	for range 5 {
		_, err := d.Execute(context.Background(), "alice", security.RoleUser, "delete", "/etc/passwd")
		requireKind(t, err, KindUnauthorized)
		assert.ErrorIs(t, err, ErrUnauthorized)
	}
	assert.Zero(t, calls.Load())

	entries := log.Snapshot()
	require.Len(t, entries, 5)
	for _, e := range entries {
		assert.Equal(t, audit.StatusFailed, e.Status)
		assert.Equal(t, MsgUnauthorized, e.Details)
	}
}

func TestExecute_AdminMayRunAdminOnly(t *testing.T) {
	var calls atomic.Int32
	d := NewDispatcher(countingRegistry(t, &calls), audit.NewMemory())

	out, err := d.Execute(context.Background(), "root", security.RoleAdmin, "delete", "tmp.txt")
	require.NoError(t, err)
	assert.Equal(t, "ok:tmp.txt", out)
}

func TestExecute_HandlerFailure(t *testing.T) {
	var calls atomic.Int32
	log := audit.NewMemory()
	d := NewDispatcher(countingRegistry(t, &calls), log)

	_, err := d.Execute(context.Background(), "alice", security.RoleUser, "fail")
	de := requireKind(t, err, KindHandlerFailure)
	assert.Equal(t, "disk on fire", de.Message)
	assert.ErrorIs(t, err, ErrHandlerFailure)

	entries := log.Snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, "disk on fire", entries[0].Details)
}

func TestExecute_HandlerPanicIsContained(t *testing.T) {
	var calls atomic.Int32
	log := audit.NewMemory()
	d := NewDispatcher(countingRegistry(t, &calls), log)

	var err error
	assert.NotPanics(t, func() {
		_, err = d.Execute(context.Background(), "alice", security.RoleUser, "panic")
	})
	de := requireKind(t, err, KindHandlerFailure)
	assert.Contains(t, de.Message, "boom")
	assert.Equal(t, 1, log.Len())
}

func TestExecute_ArgumentErrorFromBuiltins(t *testing.T) {
	log := audit.NewMemory()
	d := NewDispatcher(commands.Default(), log)

	_, err := d.Execute(context.Background(), "alice", security.RoleUser, "write", "only-a-name")
	requireKind(t, err, KindHandlerFailure)
	var argErr *commands.ArgumentError
	assert.True(t, errors.As(err, &argErr))

	out, err := d.Execute(context.Background(), "alice", security.RoleUser, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "listing of .")
	assert.Equal(t, 2, log.Len())
}

func TestExecute_AuditFailureWithholdsResult(t *testing.T) {
	var calls atomic.Int32
	log := audit.NewMemory()
	boom := errors.New("audit offline")
	log.FailAppends(boom)
	d := NewDispatcher(countingRegistry(t, &calls), log)

	out, err := d.Execute(context.Background(), "alice", security.RoleUser, "read", "x")
	assert.Empty(t, out)
	require.ErrorIs(t, err, boom)

	_, err = d.Execute(context.Background(), "alice", security.RoleUser, "delete", "x")
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestExecute_RateLimit(t *testing.T) {
	var calls atomic.Int32
	log := audit.NewMemory()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	d := NewDispatcher(countingRegistry(t, &calls), log,
		WithRateLimit(1, 2),
		WithClock(func() time.Time { return now }))

	for range 2 {
		_, err := d.Execute(context.Background(), "alice", security.RoleUser, "read", "x")
		require.NoError(t, err)
	}
	_, err := d.Execute(context.Background(), "alice", security.RoleUser, "read", "x")
	requireKind(t, err, KindRateLimited)

	// Budgets are per principal.
	_, err = d.Execute(context.Background(), "bob", security.RoleUser, "read", "x")
	require.NoError(t, err)

	assert.EqualValues(t, 3, calls.Load())
	assert.Equal(t, 4, log.Len())
}

func TestExecute_HandlerTimeout(t *testing.T) {
	reg, err := commands.NewRegistry(commands.Descriptor{
		Name: "slow",
		Handler: commands.HandlerFunc(func(ctx context.Context, _ []string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}),
	})
	require.NoError(t, err)
	log := audit.NewMemory()
	d := NewDispatcher(reg, log, WithHandlerTimeout(10*time.Millisecond))

	_, err = d.Execute(context.Background(), "alice", security.RoleUser, "slow")
	requireKind(t, err, KindHandlerFailure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, log.Len())
	assert.Equal(t, audit.StatusFailed, log.Snapshot()[0].Status)
}

func TestExecute_IdleLimitersArePruned(t *testing.T) {
	var calls atomic.Int32
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	d := NewDispatcher(countingRegistry(t, &calls), audit.NewMemory(),
		WithRateLimit(1, 1),
		WithClock(func() time.Time { return now }))
	ctx := context.Background()

	for i := range maxIdleLimiters {
		_, err := d.Execute(ctx, "user"+strconv.Itoa(i), security.RoleUser, "read", "x")
		require.NoError(t, err)
	}
	require.Len(t, d.limiters, maxIdleLimiters)

	// "busy" has spent its budget and must keep its limiter.
	_, err := d.Execute(ctx, "busy", security.RoleUser, "read", "x")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	d.limiters["busy"].AllowN(now, 1)
	_, err = d.Execute(ctx, "newcomer", security.RoleUser, "read", "x")
	require.NoError(t, err)

	assert.Len(t, d.limiters, 2)
	assert.Contains(t, d.limiters, "busy")
	_, err = d.Execute(ctx, "busy", security.RoleUser, "read", "x")
	requireKind(t, err, KindRateLimited)
}

func TestExecute_ConcurrentCallsOneEntryEach(t *testing.T) {
	var calls atomic.Int32
	log := audit.NewMemory()
	d := NewDispatcher(countingRegistry(t, &calls), log)

	const n = 50
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			op := "read"
			if i%2 == 0 {
				op = "delete"
			}
			_, _ = d.Execute(context.Background(), "alice", security.RoleUser, op, "f")
		}()
	}
	wg.Wait()

	assert.EqualValues(t, n/2, calls.Load())
	require.Equal(t, n, log.Len())
	report, err := audit.Verify(context.Background(), log.Entries(context.Background()), audit.NewSealer(nil))
	require.NoError(t, err)
	assert.True(t, report.Verified)
}

func TestFormatArgs(t *testing.T) {
	assert.Equal(t, "()", FormatArgs(nil))
	assert.Equal(t, `("a", "b c")`, FormatArgs([]string{"a", "b c"}))
	assert.Equal(t, `("say \"hi\"")`, FormatArgs([]string{`say "hi"`}))
}
