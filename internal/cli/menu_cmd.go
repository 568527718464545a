// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// menu_cmd.go - The default interactive command.
//
// Command: menu
// Aliases: interactive
//
// Input may be piped; liner falls back to plain line reading when stdin
// is not a terminal.
package cli

import (
	"context"
	"errors"
	"os"
)

// HandleMenu runs the interactive menu.
func HandleMenu(ctx context.Context, args Args) error {
	if args.JSON {
		return NewValidationErrorWithExample("--json", "", "the interactive menu has no JSON mode",
			"syscallgate exec read notes.txt --user alice --json")
	}

	rt, err := OpenRuntime(ctx, args)
	if err != nil {
		return err
	}

	prompter := NewLinePrompter()
	runErr := RunMenu(ctx, rt.Sim, prompter, os.Stdout)
	return errors.Join(runErr, prompter.Close(), rt.Close())
}
