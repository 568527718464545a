// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileLock is an exclusive advisory lock held on a sidecar file. It guards
// writers in separate processes; goroutines inside one process still need
// their own mutex.
type FileLock struct {
	f *os.File
}

// LockFile blocks until it holds an exclusive lock on path+".lock".
func LockFile(path string) (*FileLock, error) {
	lockPath := path + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := lockExclusive(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to lock %s: %w", lockPath, err)
	}
	return &FileLock{f: f}, nil
}

// Unlock releases the lock. It is safe to call on a nil lock.
func (l *FileLock) Unlock() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unlockFile(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}
