// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"sync"
)

// MemoryBackend is an in-process Backend for tests. It counts writes so
// callers can assert how often a mapping was persisted.
type MemoryBackend struct {
	mu       sync.Mutex
	users    Users
	written  bool
	writes   int
	writeErr error
	readErr  error
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend returns an empty backend that reads as ErrNotFound.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// NewMemoryBackendWith returns a backend pre-populated with users.
func NewMemoryBackendWith(users Users) *MemoryBackend {
	return &MemoryBackend{users: users.Clone(), written: true}
}

// Read implements Backend.
func (m *MemoryBackend) Read(ctx context.Context) (Users, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	if !m.written {
		return nil, ErrNotFound
	}
	return m.users.Clone(), nil
}

// Write implements Backend.
func (m *MemoryBackend) Write(ctx context.Context, users Users) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.users = users.Clone()
	m.written = true
	m.writes++
	return nil
}

// Close implements Backend.
func (m *MemoryBackend) Close() error {
	return nil
}

// Writes returns the number of successful Write calls.
func (m *MemoryBackend) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Snapshot returns a copy of the persisted mapping.
func (m *MemoryBackend) Snapshot() Users {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users.Clone()
}

// FailWrites makes subsequent writes return err. Pass nil to clear.
func (m *MemoryBackend) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// FailReads makes subsequent reads return err. Pass nil to clear.
func (m *MemoryBackend) FailReads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}
