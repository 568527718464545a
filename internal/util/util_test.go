// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile_Basic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	data := []byte(`{"admin":{}}`)

	if err := AtomicWriteFile(path, data, 0600); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read back: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("content mismatch: got %q, want %q", got, data)
	}
}

func TestAtomicWriteFile_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "users.json")
	if err := AtomicWriteFile(path, []byte("x"), 0600); err != nil {
		t.Fatalf("AtomicWriteFile failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected file to exist: %v", err)
	}
}

func TestAtomicWriteFile_OverwritesAndLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.json")

	for _, content := range []string{"first", "second, longer content", "3"} {
		if err := AtomicWriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("AtomicWriteFile(%q) failed: %v", content, err)
		}
	}

	got, _ := os.ReadFile(path)
	if string(got) != "3" {
		t.Errorf("expected last write to win, got %q", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("expected only the target file, found %v", names)
	}
}

// =============================================================================
// FILE LOCK TESTS
// =============================================================================

func TestLockFile_SerializesHolders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")

	first, err := LockFile(path)
	if err != nil {
		t.Fatalf("LockFile failed: %v", err)
	}

	var mu sync.Mutex
	acquired := false
	done := make(chan struct{})
	go func() {
		defer close(done)
		second, err := LockFile(path)
		if err != nil {
			t.Errorf("second LockFile failed: %v", err)
			return
		}
		mu.Lock()
		acquired = true
		mu.Unlock()
		second.Unlock()
	}()

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	early := acquired
	mu.Unlock()
	if early {
		t.Fatal("second holder acquired the lock while the first still held it")
	}

	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	<-done
	if !acquired {
		t.Error("second holder never acquired the lock")
	}
}

func TestFileLock_UnlockNil(t *testing.T) {
	var l *FileLock
	if err := l.Unlock(); err != nil {
		t.Errorf("Unlock on nil lock returned %v", err)
	}
}

// =============================================================================
// STRING TESTS
// =============================================================================

func TestTruncateWidth(t *testing.T) {
	tests := []struct {
		name  string
		input string
		width int
		want  string
	}{
		{"fits", "read", 10, "read"},
		{"exact", "delete", 6, "delete"},
		{"ascii cut", "Reading file: report.txt", 10, "Reading..."},
		{"zero", "anything", 0, ""},
		{"tiny", "abcdef", 2, "ab"},
		{"wide runes", "日本語テキスト", 7, "日本..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateWidth(tt.input, tt.width); got != tt.want {
				t.Errorf("TruncateWidth(%q, %d) = %q, want %q", tt.input, tt.width, got, tt.want)
			}
		})
	}
}

func TestPadWidth(t *testing.T) {
	if got := PadWidth("list", 6); got != "list  " {
		t.Errorf("PadWidth = %q", got)
	}
	if got := PadWidth("execute", 5); got != "ex..." {
		t.Errorf("PadWidth truncation = %q", got)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := ExpandHome("~/.syscallgate/users.json"); got != filepath.Join(home, ".syscallgate", "users.json") {
		t.Errorf("ExpandHome = %q", got)
	}
	if got := ExpandHome("/var/lib/users.json"); got != "/var/lib/users.json" {
		t.Errorf("absolute path changed: %q", got)
	}
}
