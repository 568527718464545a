// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// prompt.go - Line input for the menu and password prompts.
package cli

import (
	"errors"
	"io"
	"strings"

	"github.com/peterh/liner"
)

// ErrAborted is returned by a Prompter when the user presses Ctrl+C.
var ErrAborted = errors.New("input aborted")

// Prompter reads one line of user input per call. Implementations return
// io.EOF when input is exhausted.
type Prompter interface {
	Prompt(label string) (string, error)
	Password(label string) (string, error)
	Close() error
}

// LinePrompter is a Prompter backed by liner. Menu choices and usernames
// go into the in-memory history; passwords never do.
type LinePrompter struct {
	line *liner.State
}

// NewLinePrompter puts the terminal into liner's raw mode. Callers must
// Close it to restore the terminal.
func NewLinePrompter() *LinePrompter {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	return &LinePrompter{line: line}
}

// Prompt reads a line. Surrounding whitespace is trimmed.
func (p *LinePrompter) Prompt(label string) (string, error) {
	input, err := p.line.Prompt(label)
	if err != nil {
		return "", translateLinerErr(err)
	}
	input = strings.TrimSpace(input)
	if input != "" {
		p.line.AppendHistory(input)
	}
	return input, nil
}

// Password reads a line without echo. When stdout is not a terminal liner
// cannot hide input, so it falls back to a plain prompt.
func (p *LinePrompter) Password(label string) (string, error) {
	input, err := p.line.PasswordPrompt(label)
	if errors.Is(err, liner.ErrNotTerminalOutput) {
		input, err = p.line.Prompt(label)
	}
	if err != nil {
		return "", translateLinerErr(err)
	}
	return input, nil
}

// Close restores the terminal.
func (p *LinePrompter) Close() error {
	return p.line.Close()
}

func translateLinerErr(err error) error {
	if errors.Is(err, liner.ErrPromptAborted) {
		return ErrAborted
	}
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	return err
}
