// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"sync"

	"github.com/jeranaias/syscallgate/internal/util"
)

// maxLineSize bounds a single JSONL record.
const maxLineSize = 1 << 20

// FileLog is a JSON Lines audit log. Each Append is a single write of one
// complete line to a file opened with O_APPEND, followed by fsync. A mutex
// serialises goroutines and an advisory file lock serialises processes.
type FileLog struct {
	path   string
	opts   options
	sealer *Sealer

	mu       sync.Mutex
	f        *os.File
	lastSeq  uint64
	lastHash string
	size     int64 // file size after our last append or scan
}

var _ Log = (*FileLog)(nil)

// OpenFile opens or creates the log at path and recovers the chain head
// from its existing contents.
func OpenFile(path string, opts ...Option) (*FileLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("%w: create directory: %w", ErrAudit, err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrAudit, path, err)
	}
	o := buildOptions(opts)
	l := &FileLog{
		path:   path,
		opts:   o,
		sealer: NewSealer(o.key),
		f:      f,
	}
	if err := l.recoverHead(); err != nil {
		f.Close()
		return nil, err
	}
	return l, nil
}

// Path returns the log file path.
func (l *FileLog) Path() string {
	return l.path
}

// Append implements Appender.
func (l *FileLog) Append(ctx context.Context, e Entry) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	e, err := l.opts.prepare(e)
	if err != nil {
		return Entry{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return Entry{}, fmt.Errorf("%w: log closed", ErrAudit)
	}

	lock, err := util.LockFile(l.path)
	if err != nil {
		return Entry{}, l.alert(err)
	}
	defer lock.Unlock()

	// Another process may have appended since our last write.
	if info, err := l.f.Stat(); err != nil {
		return Entry{}, l.alert(err)
	} else if info.Size() != l.size {
		if err := l.recoverHead(); err != nil {
			return Entry{}, l.alert(err)
		}
	}

	sealed, err := l.sealer.Seal(e, l.lastSeq, l.lastHash)
	if err != nil {
		return Entry{}, l.alert(err)
	}
	line, err := json.Marshal(sealed)
	if err != nil {
		return Entry{}, l.alert(err)
	}
	line = append(line, '\n')

	n, err := l.f.Write(line)
	if err != nil {
		return Entry{}, l.alert(err)
	}
	if err := l.f.Sync(); err != nil {
		return Entry{}, l.alert(err)
	}

	l.size += int64(n)
	l.lastSeq = sealed.Seq
	l.lastHash = sealed.Hash
	return sealed, nil
}

// Entries implements Log. Every call reopens the file and reads it from the
// beginning; a missing file yields nothing.
func (l *FileLog) Entries(ctx context.Context) iter.Seq2[Entry, error] {
	return ReadFile(ctx, l.path)
}

// Close implements Log.
func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// recoverHead scans the file for the last sealed entry. Caller must hold
// l.mu or be the constructor.
func (l *FileLog) recoverHead() error {
	var lastSeq uint64
	var lastHash string
	for e, err := range ReadFile(context.Background(), l.path) {
		if err != nil {
			return fmt.Errorf("%w: recover chain head: %w", ErrAudit, err)
		}
		if e.Sealed() {
			lastSeq, lastHash = e.Seq, e.Hash
		}
	}
	info, err := l.f.Stat()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAudit, err)
	}
	l.lastSeq, l.lastHash, l.size = lastSeq, lastHash, info.Size()
	return nil
}

// alert reports an AU-5 processing failure on stderr and wraps err.
func (l *FileLog) alert(err error) error {
	fmt.Fprintf(os.Stderr, "[AU-5 ALERT] Audit write to %s failed: %v\n", l.path, err)
	return fmt.Errorf("%w: %w", ErrAudit, err)
}

// ReadFile yields the entries of a JSONL audit file in order. Blank lines
// are skipped; a malformed line ends the sequence with an error.
func ReadFile(ctx context.Context, path string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return
			}
			yield(Entry{}, fmt.Errorf("%w: %w", ErrAudit, err))
			return
		}
		defer f.Close()
		readLines(ctx, f, 0, yield)
	}
}

// readLines decodes JSONL records from r. lineNo is the number of lines
// already consumed, used in error messages.
func readLines(ctx context.Context, r io.Reader, lineNo int, yield func(Entry, error) bool) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			yield(Entry{}, err)
			return
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			yield(Entry{}, fmt.Errorf("%w: line %d: %w", ErrAudit, lineNo, err))
			return
		}
		if !yield(e, nil) {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		yield(Entry{}, fmt.Errorf("%w: %w", ErrAudit, err))
	}
}
