// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import "context"

// Backend is the durable home of the Users mapping.
type Backend interface {
	// Read returns the persisted mapping, or ErrNotFound when nothing has
	// ever been written.
	Read(ctx context.Context) (Users, error)

	// Write replaces the persisted mapping entirely. A failure must leave
	// the previous contents intact.
	Write(ctx context.Context, users Users) error

	Close() error
}

// Locker is implemented by backends that may be shared between processes.
// The Store holds the lock across each load-modify-save.
type Locker interface {
	Lock() (unlock func() error, err error)
}
