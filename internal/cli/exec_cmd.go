// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// exec_cmd.go - Authenticate and dispatch a single operation.
//
// Command: exec <operation> [args...] --user <name>
// Aliases: run
//
// The password is read from SYSCALLGATE_PASSWORD or prompted for. The
// run is audited as login, the operation and logout, exactly as the
// interactive menu would record it.
//
// Examples:
//
//	syscallgate exec read notes.txt --user alice
//	syscallgate exec write notes.txt "hello world" --user alice
//	SYSCALLGATE_PASSWORD=... syscallgate exec list --user alice --json
package cli

import (
	"context"
	"errors"
	"fmt"
)

// ExecResult is the JSON data for exec.
type ExecResult struct {
	User      string   `json:"user"`
	Role      string   `json:"role,omitempty"`
	Operation string   `json:"operation"`
	Args      []string `json:"args"`
	Result    string   `json:"result,omitempty"`
}

// HandleExec handles "exec".
func HandleExec(ctx context.Context, args Args) error {
	p := NewArgParser(args.Raw)
	op := p.Subcommand()
	if op == "" {
		return ErrMissingArgument("operation", "syscallgate exec read notes.txt --user alice")
	}
	username := p.Flag("user", "u")
	if username == "" {
		return ErrMissingArgument("--user", "syscallgate exec "+op+" --user alice")
	}
	opArgs := p.PositionalFrom(1)

	password, err := readPassword("Password: ", false)
	if err != nil {
		return err
	}

	rt, err := OpenRuntime(ctx, args)
	if err != nil {
		return err
	}
	defer rt.Close()

	return OutputJSON(args.JSON, "exec", func() (interface{}, error) {
		data := ExecResult{User: username, Operation: op, Args: opArgs}

		session, err := rt.Sim.Authenticate(ctx, username, password)
		if err != nil {
			return data, err
		}
		data.User = session.Username
		data.Role = session.Role.String()

		result, execErr := rt.Sim.Execute(ctx, session, op, opArgs...)
		if err := rt.Sim.Logout(ctx, session); err != nil {
			return data, errors.Join(execErr, err)
		}
		if execErr != nil {
			return data, execErr
		}

		data.Result = result
		if !args.JSON {
			fmt.Println(result)
		}
		return data, nil
	})
}
