// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// lockout_cmd.go - AC-7 (Unsuccessful Logon Attempts) management.
//
// Command: lockout [subcommand]
// Aliases: lock
//
// Subcommands:
//
//	status [user] (default)    Show the policy, or one principal's state
//	unlock <user>              Clear the failure count and any lock
//
// Examples:
//
//	syscallgate lockout
//	syscallgate lockout status alice --json
//	syscallgate lockout unlock alice
package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jeranaias/syscallgate/internal/security/audit"
	"github.com/jeranaias/syscallgate/internal/security/auth"
	"github.com/jeranaias/syscallgate/internal/storage"
)

// LockoutPolicy is the JSON data for "lockout status" without a user.
type LockoutPolicy struct {
	MaxAttempts     int      `json:"max_attempts"`
	LockoutSeconds  int      `json:"lockout_seconds"`
	LockedCount     int      `json:"locked_count"`
	LockedPrincipals []string `json:"locked_principals"`
}

// HandleLockout handles "lockout".
func HandleLockout(ctx context.Context, args Args) error {
	p := NewArgParser(args.Raw)
	switch p.Subcommand() {
	case "", "status":
		return handleLockoutStatus(ctx, args, p.Positional(1))
	case "unlock", "reset":
		return handleLockoutUnlock(ctx, args, p.Positional(1))
	default:
		return NewValidationErrorWithExample("lockout subcommand", p.Subcommand(), "unknown subcommand",
			"syscallgate lockout [status [user]|unlock <user>]")
	}
}

func handleLockoutStatus(ctx context.Context, args Args, username string) error {
	rt, err := OpenRuntime(ctx, args)
	if err != nil {
		return err
	}
	defer rt.Close()

	if username != "" {
		return OutputJSON(args.JSON, "lockout status", func() (interface{}, error) {
			st, err := rt.Sim.LockStatus(ctx, username)
			if err != nil {
				if errors.Is(err, auth.ErrUnknownUser) {
					return nil, &NotFoundError{Resource: "user", ID: username}
				}
				return nil, err
			}
			if !args.JSON {
				printLockStatus(st)
			}
			return st, nil
		})
	}

	return OutputJSON(args.JSON, "lockout status", func() (interface{}, error) {
		maxAttempts, duration := rt.Sim.Lockout()
		users, err := rt.Sim.Users(ctx)
		if err != nil {
			return nil, err
		}
		policy := LockoutPolicy{
			MaxAttempts:     maxAttempts,
			LockoutSeconds:  int(duration.Seconds()),
			LockedPrincipals: []string{},
		}
		for _, u := range users {
			if u.Locked {
				policy.LockedPrincipals = append(policy.LockedPrincipals, u.Username)
			}
		}
		policy.LockedCount = len(policy.LockedPrincipals)

		if !args.JSON {
			fmt.Println()
			fmt.Println(TitleStyle.Render("AC-7 Lockout Status"))
			fmt.Println(RenderSeparator(50))
			fmt.Printf("  %s%d consecutive failures\n", RenderLabel("Threshold:"), maxAttempts)
			fmt.Printf("  %s%s\n", RenderLabel("Lockout Duration:"), formatDuration(duration))
			fmt.Printf("  %s%d\n", RenderLabel("Currently Locked:"), policy.LockedCount)
			for _, name := range policy.LockedPrincipals {
				fmt.Printf("    %s %s\n", RenderStatus("locked"), name)
			}
			fmt.Println()
		}
		return policy, nil
	})
}

func printLockStatus(st auth.LockStatus) {
	fmt.Println()
	fmt.Println(TitleStyle.Render("Lockout: " + st.Username))
	fmt.Println(RenderSeparator(50))
	fmt.Printf("  %s%s\n", RenderLabel("Role:"), st.Role)
	fmt.Printf("  %s%s\n", RenderLabel("Failed Attempts:"), strconv.Itoa(st.FailedAttempts))
	if st.Locked {
		fmt.Printf("  %s%s (%s remaining)\n", RenderLabel("State:"), RenderStatus("locked"), formatDuration(st.Remaining))
	} else {
		fmt.Printf("  %s%s\n", RenderLabel("State:"), RenderStatus("ok"))
	}
	fmt.Println()
}

// handleLockoutUnlock is an operator command; see handleUsersCreate.
func handleLockoutUnlock(ctx context.Context, args Args, username string) error {
	if username == "" {
		return ErrMissingArgument("user", "syscallgate lockout unlock alice")
	}

	rt, err := OpenRuntime(ctx, args)
	if err != nil {
		return err
	}
	defer rt.Close()

	return OutputJSON(args.JSON, "lockout unlock", func() (interface{}, error) {
		err := rt.Sim.Unlock(ctx, operatorName(), username)
		changed := true
		switch {
		case errors.Is(err, audit.ErrAudit):
			return nil, err
		case errors.Is(err, storage.ErrNoChange):
			changed = false
		case errors.Is(err, auth.ErrUnknownUser):
			return nil, &NotFoundError{Resource: "user", ID: username}
		case err != nil:
			return nil, err
		}

		if !args.JSON && !args.Quiet {
			if changed {
				fmt.Printf("%s %s unlocked\n", RenderStatus("ok"), username)
			} else {
				fmt.Printf("%s %s was not locked\n", RenderStatus("unchanged"), username)
			}
		}
		return map[string]interface{}{"username": username, "changed": changed}, nil
	})
}
