// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"context"
	"iter"
	"slices"
	"sync"
)

// MemoryLog is an in-process Log for tests.
type MemoryLog struct {
	opts   options
	sealer *Sealer

	mu      sync.Mutex
	entries []Entry
	failErr error
}

var _ Log = (*MemoryLog)(nil)

// NewMemory returns an empty MemoryLog.
func NewMemory(opts ...Option) *MemoryLog {
	o := buildOptions(opts)
	return &MemoryLog{opts: o, sealer: NewSealer(o.key)}
}

// Append implements Appender.
func (m *MemoryLog) Append(ctx context.Context, e Entry) (Entry, error) {
	e, err := m.opts.prepare(e)
	if err != nil {
		return Entry{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return Entry{}, m.failErr
	}

	var prevSeq uint64
	var prevHash string
	if n := len(m.entries); n > 0 {
		prevSeq, prevHash = m.entries[n-1].Seq, m.entries[n-1].Hash
	}
	sealed, err := m.sealer.Seal(e, prevSeq, prevHash)
	if err != nil {
		return Entry{}, err
	}
	m.entries = append(m.entries, sealed)
	return sealed, nil
}

// Entries implements Log. The sequence iterates a snapshot taken when the
// pass begins.
func (m *MemoryLog) Entries(ctx context.Context) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		for _, e := range m.Snapshot() {
			if !yield(e, nil) {
				return
			}
		}
	}
}

// Snapshot returns a copy of all entries.
func (m *MemoryLog) Snapshot() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.entries)
}

// Len returns the number of entries.
func (m *MemoryLog) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// FailAppends makes subsequent appends return err. Pass nil to clear.
func (m *MemoryLog) FailAppends(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

// Close implements Log.
func (m *MemoryLog) Close() error {
	return nil
}
