// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jeranaias/syscallgate/internal/security"
)

// =============================================================================
// STORE
// =============================================================================

// Store is the credential store. It is safe for concurrent use: all
// mutations go through one writer lock, and backends that implement Locker
// are additionally locked across processes.
type Store struct {
	backend   Backend
	hasher    Hasher
	bootstrap Bootstrap

	// mu is the single-writer lock for load-modify-save sequences.
	mu sync.Mutex
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithHasher sets the password hasher used by Create.
func WithHasher(h Hasher) StoreOption {
	return func(s *Store) {
		s.hasher = h
	}
}

// WithBootstrap sets the administrator returned before the first save.
func WithBootstrap(b Bootstrap) StoreOption {
	return func(s *Store) {
		s.bootstrap = b
	}
}

// NewStore wraps backend.
func NewStore(backend Backend, opts ...StoreOption) *Store {
	s := &Store{
		backend: backend,
		hasher:  DefaultHasher(),
		bootstrap: Bootstrap{
			Username: "admin",
			Role:     security.RoleAdmin,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hasher returns the password hasher in use.
func (s *Store) Hasher() Hasher {
	return s.hasher
}

// Load returns the full mapping. When the backend has never been written
// it returns exactly one record: the configured bootstrap administrator.
func (s *Store) Load(ctx context.Context) (Users, error) {
	users, err := s.backend.Read(ctx)
	if errors.Is(err, ErrNotFound) {
		return s.bootstrap.users()
	}
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = Users{}
	}
	return users, nil
}

// Save replaces the persisted mapping with users.
func (s *Store) Save(ctx context.Context, users Users) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lockBackend()
	if err != nil {
		return err
	}
	defer unlock()

	return s.backend.Write(ctx, users)
}

// Create inserts a new principal with a fresh digest of password, zero
// failed attempts and no lock, then persists the mapping. Nothing is
// written when it fails.
func (s *Store) Create(ctx context.Context, username, password string, role security.Role) error {
	username = NormalizeUsername(username)
	if username == "" || password == "" {
		return ErrInvalidCredential
	}
	if !role.Valid() {
		return fmt.Errorf("%w: %q", security.ErrInvalidRole, role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lockBackend()
	if err != nil {
		return err
	}
	defer unlock()

	users, err := s.Load(ctx)
	if err != nil {
		return err
	}
	if _, exists := users[username]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, username)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	users[username] = Record{
		PasswordHash: hash,
		Role:         role,
	}
	return s.backend.Write(ctx, users)
}

// Update runs fn against the record for username and persists the result
// with exactly one Write. When fn returns an error nothing is written; the
// error is returned unchanged except for ErrNoChange, which yields nil.
func (s *Store) Update(ctx context.Context, username string, fn func(*Record) error) error {
	username = NormalizeUsername(username)

	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lockBackend()
	if err != nil {
		return err
	}
	defer unlock()

	users, err := s.Load(ctx)
	if err != nil {
		return err
	}
	rec, ok := users[username]
	if !ok {
		return ErrUserNotFound
	}
	if err := fn(&rec); err != nil {
		if errors.Is(err, ErrNoChange) {
			return nil
		}
		return err
	}
	users[username] = rec
	return s.backend.Write(ctx, users)
}

// Get returns a copy of one record.
func (s *Store) Get(ctx context.Context, username string) (Record, error) {
	users, err := s.Load(ctx)
	if err != nil {
		return Record{}, err
	}
	rec, ok := users[NormalizeUsername(username)]
	if !ok {
		return Record{}, ErrUserNotFound
	}
	return rec.clone(), nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) lockBackend() (func() error, error) {
	if l, ok := s.backend.(Locker); ok {
		return l.Lock()
	}
	return func() error { return nil }, nil
}
