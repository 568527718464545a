// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"fmt"
	"strings"
)

// ArgumentError reports positional arguments that do not fit an operation.
type ArgumentError struct {
	Operation string
	Want      int
	Got       int
	Missing   string
}

func (e *ArgumentError) Error() string {
	if e.Missing != "" {
		return fmt.Sprintf("%s: missing required argument %q", e.Operation, e.Missing)
	}
	return fmt.Sprintf("%s: expected at most %d argument(s), got %d", e.Operation, e.Want, e.Got)
}

// simulated builds a handler that validates arguments against params,
// fills defaults and formats the result. No real I/O is performed.
func simulated(op string, params []Param, format func(args []string) string) Handler {
	return HandlerFunc(func(ctx context.Context, args []string) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if len(args) > len(params) {
			return "", &ArgumentError{Operation: op, Want: len(params), Got: len(args)}
		}
		filled := make([]string, len(params))
		for i, p := range params {
			if i < len(args) && strings.TrimSpace(args[i]) != "" {
				filled[i] = args[i]
				continue
			}
			if p.Required() {
				return "", &ArgumentError{Operation: op, Want: len(params), Got: len(args), Missing: p.Name}
			}
			filled[i] = p.Default
		}
		return format(filled), nil
	})
}

var (
	filenameParam = Param{Name: "filename", Prompt: "Enter filename"}
	contentParam  = Param{Name: "content", Prompt: "Enter content"}
	programParam  = Param{Name: "program", Prompt: "Enter program name"}
	dirParam      = Param{Name: "directory", Prompt: "Enter directory (press Enter for current)", Default: "."}
)

// Builtins returns the standard catalog in menu order: read, write,
// execute, delete, list. execute and delete are admin-only.
func Builtins() []Descriptor {
	return []Descriptor{
		{
			Name:        "read",
			Description: "Read from a file",
			Params:      []Param{filenameParam},
			Handler: simulated("read", []Param{filenameParam}, func(a []string) string {
				return fmt.Sprintf("Simulated read from %s: Sample content", a[0])
			}),
		},
		{
			Name:        "write",
			Description: "Write to a file",
			Params:      []Param{filenameParam, contentParam},
			Handler: simulated("write", []Param{filenameParam, contentParam}, func(a []string) string {
				return fmt.Sprintf("Simulated write to %s: %s", a[0], a[1])
			}),
		},
		{
			Name:        "execute",
			Description: "Execute a program",
			AdminOnly:   true,
			Params:      []Param{programParam},
			Handler: simulated("execute", []Param{programParam}, func(a []string) string {
				return "Simulated execution of " + a[0]
			}),
		},
		{
			Name:        "delete",
			Description: "Delete a file",
			AdminOnly:   true,
			Params:      []Param{filenameParam},
			Handler: simulated("delete", []Param{filenameParam}, func(a []string) string {
				return "Simulated deletion of " + a[0]
			}),
		},
		{
			Name:        "list",
			Description: "List directory contents",
			Params:      []Param{dirParam},
			Handler: simulated("list", []Param{dirParam}, func(a []string) string {
				return fmt.Sprintf("Simulated directory listing of %s: file1.txt, file2.txt, dir1/", a[0])
			}),
		},
	}
}

// Default returns a Registry holding Builtins.
func Default() *Registry {
	return MustRegistry(Builtins()...)
}
