// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ops_cmd.go - Show the operation catalog.
//
// Command: ops [--role user|admin]
// Aliases: operations, calls
//
// The catalog is compiled in, so this command needs no store or log.
package cli

import (
	"fmt"
	"os"
	"slices"

	"github.com/jeranaias/syscallgate/internal/commands"
	"github.com/jeranaias/syscallgate/internal/security"
)

// OpInfo is one catalog row in JSON output.
type OpInfo struct {
	commands.Info
	Allowed *bool `json:"allowed,omitempty"`
}

// HandleOps handles "ops".
func HandleOps(args Args) error {
	p := NewArgParser(args.Raw)
	var role security.Role
	if r := p.Flag("role", "r"); r != "" {
		parsed, err := security.ParseRole(r)
		if err != nil {
			return NewValidationErrorWithExample("--role", r, "must be user or admin", "syscallgate ops --role user")
		}
		role = parsed
	}

	registry := commands.Default()
	return OutputJSON(args.JSON, "ops", func() (interface{}, error) {
		allowed := slices.Collect(registry.AllowedFor(role))
		var ops []OpInfo
		for _, info := range registry.Describe() {
			op := OpInfo{Info: info}
			if role != "" {
				ok := slices.Contains(allowed, info.Name)
				op.Allowed = &ok
			}
			ops = append(ops, op)
		}
		if !args.JSON {
			printOps(ops, role)
		}
		return map[string]interface{}{"operations": ops, "role": role}, nil
	})
}

func printOps(ops []OpInfo, role security.Role) {
	title := "Operation Catalog"
	if role != "" {
		title += " (" + role.String() + ")"
	}
	fmt.Println()
	fmt.Println(TitleStyle.Render(title))
	fmt.Println(RenderSeparator(70))
	t := newTable(os.Stdout, 10, 26, 8, 30)
	t.header("NAME", "DESCRIPTION", "ACCESS", "USAGE")
	for _, op := range ops {
		access := "all"
		if op.AdminOnly {
			access = "admin"
		}
		if op.Allowed != nil && !*op.Allowed {
			access = "denied"
		}
		t.row(op.Name, op.Description, access, op.Usage)
	}
	fmt.Println()
}
