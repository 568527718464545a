// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// users_cmd.go - Principal management (IA-2).
//
// Command: users [subcommand]
// Aliases: user
//
// Subcommands:
//
//	list (default)              List principals with role and lock state
//	create <name> [--role R]    Create a principal (audited as the operator)
//	hash-password               Print a digest for bootstrap.password_hash
package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/jeranaias/syscallgate/internal/security"
	"github.com/jeranaias/syscallgate/internal/security/auth"
	"github.com/jeranaias/syscallgate/internal/storage"
)

// HandleUsers handles "users".
func HandleUsers(ctx context.Context, args Args) error {
	p := NewArgParser(args.Raw)
	switch p.Subcommand() {
	case "", "list", "ls":
		return handleUsersList(ctx, args)
	case "create", "add":
		return handleUsersCreate(ctx, args, p)
	case "hash-password", "hash":
		return handleUsersHash(args)
	default:
		return NewValidationErrorWithExample("users subcommand", p.Subcommand(), "unknown subcommand",
			"syscallgate users [list|create <name> [--role user|admin]|hash-password]")
	}
}

func handleUsersList(ctx context.Context, args Args) error {
	rt, err := OpenRuntime(ctx, args)
	if err != nil {
		return err
	}
	defer rt.Close()

	return OutputJSON(args.JSON, "users list", func() (interface{}, error) {
		users, err := rt.Sim.Users(ctx)
		if err != nil {
			return nil, err
		}
		if !args.JSON {
			printUsers(users)
		}
		return map[string]interface{}{"users": users, "count": len(users)}, nil
	})
}

func printUsers(users []auth.LockStatus) {
	fmt.Println()
	fmt.Println(TitleStyle.Render("Principals"))
	fmt.Println(RenderSeparator(60))
	if len(users) == 0 {
		fmt.Println(DimStyle.Render("  No principals."))
		return
	}
	t := newTable(os.Stdout, 24, 8, 8, 16)
	t.header("USERNAME", "ROLE", "FAILED", "STATE")
	for _, u := range users {
		state := "active"
		if u.Locked {
			state = "locked " + formatDuration(u.Remaining)
		}
		t.row(u.Username, u.Role.String(), strconv.Itoa(u.FailedAttempts), state)
	}
	fmt.Println()
}

// handleUsersCreate provisions a principal of any role. It does not
// authenticate; access to the store files is the trust boundary. The audit
// entry names the OS operator.
func handleUsersCreate(ctx context.Context, args Args, p *ArgParser) error {
	username := p.Positional(1)
	if username == "" {
		return ErrMissingArgument("username", "syscallgate users create alice --role user")
	}
	role, err := security.ParseRole(p.FlagOrDefault("role", string(security.RoleUser)))
	if err != nil {
		return NewValidationErrorWithExample("--role", p.Flag("role"), "must be user or admin", "--role admin")
	}

	password, err := readPassword("Password: ", true)
	if err != nil {
		return err
	}

	rt, err := OpenRuntime(ctx, args)
	if err != nil {
		return err
	}
	defer rt.Close()

	return OutputJSON(args.JSON, "users create", func() (interface{}, error) {
		data := map[string]string{"username": storage.NormalizeUsername(username), "role": role.String()}
		if err := rt.Sim.CreateUser(ctx, operatorName(), username, password, role); err != nil {
			return data, err
		}
		if !args.JSON && !args.Quiet {
			fmt.Printf("%s created %s (%s)\n", RenderStatus("ok"), data["username"], role)
		}
		return data, nil
	})
}

// handleUsersHash prints a digest without touching the store, so it works
// before the first run when no bootstrap hash exists yet.
func handleUsersHash(args Args) error {
	password, err := readPassword("Password: ", true)
	if err != nil {
		return err
	}
	return OutputJSON(args.JSON, "users hash-password", func() (interface{}, error) {
		if password == "" {
			return nil, storage.ErrInvalidCredential
		}
		digest, err := storage.DefaultHasher().Hash(password)
		if err != nil {
			return nil, err
		}
		if !args.JSON {
			fmt.Println(digest)
			if !args.Quiet {
				fmt.Fprintln(os.Stderr, DimStyle.Render("Set bootstrap.password_hash or SYSCALLGATE_BOOTSTRAP_PASSWORD_HASH to this value."))
			}
		}
		return map[string]string{"password_hash": digest}, nil
	})
}
