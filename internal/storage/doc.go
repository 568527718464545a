// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists credential records for syscallgate.
//
// A Store owns the whole username -> Record mapping. Every mutation is a
// load-modify-save of the complete mapping performed under a single writer
// lock, and every save replaces the previous contents atomically:
//
//	store := storage.NewStore(storage.NewFileBackend(path),
//	    storage.WithBootstrap(storage.Bootstrap{
//	        Username:     "admin",
//	        Role:         security.RoleAdmin,
//	        PasswordHash: cfg.Bootstrap.PasswordHash,
//	    }))
//
//	if err := store.Create(ctx, "alice", "secret", security.RoleUser); errors.Is(err, storage.ErrAlreadyExists) {
//	    // username taken
//	}
//
// Three backends are provided: FileBackend (a JSON document replaced via
// atomic rename), BoltBackend (a bbolt bucket replaced inside one write
// transaction) and MemoryBackend (for tests).
//
// Until the first mutation is persisted, Load returns a single bootstrap
// administrator whose password hash comes from configuration. No default
// secret is compiled into the binary.
package storage
