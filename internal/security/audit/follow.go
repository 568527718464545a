// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Follow calls fn for each entry appended to the JSONL log at path until
// ctx is done or fn returns an error. With fromStart the existing entries
// are delivered first; otherwise only new ones are. A line is delivered
// only once its terminating newline has been written.
func Follow(ctx context.Context, path string, fromStart bool, fn func(Entry) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAudit, err)
	}
	defer f.Close()
	if !fromStart {
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			return fmt.Errorf("%w: %w", ErrAudit, err)
		}
	}

	reader := bufio.NewReader(f)
	var pending []byte
	drain := func() error {
		for {
			chunk, err := reader.ReadBytes('\n')
			pending = append(pending, chunk...)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("%w: %w", ErrAudit, err)
			}
			line := bytes.TrimSpace(pending)
			if len(line) > 0 {
				var e Entry
				if err := json.Unmarshal(line, &e); err != nil {
					return fmt.Errorf("%w: %w", ErrAudit, err)
				}
				if err := fn(e); err != nil {
					return err
				}
			}
			pending = pending[:0]
		}
	}

	if err := drain(); err != nil {
		return err
	}

	base := filepath.Base(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base || !ev.Has(fsnotify.Write) {
				continue
			}
			if err := drain(); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch error: %w", err)
		}
	}
}
