// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jeranaias/syscallgate/internal/util"
)

// FileBackend stores the mapping as one JSON object keyed by username:
//
//	{"alice": {"password_hash": "...", "role": "user", "failed_attempts": 0, "locked_until": null}}
type FileBackend struct {
	path string
}

var (
	_ Backend = (*FileBackend)(nil)
	_ Locker  = (*FileBackend)(nil)
)

// NewFileBackend returns a backend for the JSON file at path. The file is
// created on the first Write.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Path returns the backing file path.
func (b *FileBackend) Path() string {
	return b.path
}

// Read implements Backend. A missing or empty file reads as ErrNotFound.
func (b *FileBackend) Read(ctx context.Context) (Users, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: read %s: %w", ErrStorage, b.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrNotFound
	}

	var users Users
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrStorage, b.path, err)
	}
	if users == nil {
		return nil, fmt.Errorf("%w: decode %s: expected a JSON object", ErrStorage, b.path)
	}
	return users, nil
}

// Write implements Backend using an atomic rename.
func (b *FileBackend) Write(ctx context.Context, users Users) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if users == nil {
		users = Users{}
	}
	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrStorage, err)
	}
	if err := util.AtomicWriteFile(b.path, data, 0600); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}

// Lock implements Locker with an advisory lock on a sidecar file.
func (b *FileBackend) Lock() (func() error, error) {
	l, err := util.LockFile(b.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return l.Unlock, nil
}

// Close implements Backend.
func (b *FileBackend) Close() error {
	return nil
}
